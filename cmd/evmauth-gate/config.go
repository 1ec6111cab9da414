package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/layer-3/evmauth/core"
)

const defaultListen = ":9000"

// settings is the process configuration read from the environment
type settings struct {
	Gate       core.Config
	RedisURL   string // empty keeps revocations and events in process
	RateLimit  int
	Listen     string
	PolicyPath string
}

func loadSettings(getenv func(string) string) (settings, error) {
	env := func(key, def string) string {
		if v := getenv(key); v != "" {
			return v
		}
		return def
	}

	var s settings
	var err error

	s.Gate.ContractAddress = getenv("EVMAUTH_CONTRACT_ADDRESS")
	s.Gate.RPCURL = getenv("EVMAUTH_RPC_URL")
	s.Gate.JWTSecret = getenv("EVMAUTH_JWT_SECRET")
	s.Gate.JWTIssuer = getenv("EVMAUTH_JWT_ISSUER")
	s.Gate.ExpectedAudience = getenv("EVMAUTH_EXPECTED_AUDIENCE")

	if s.Gate.ChainID, err = strconv.ParseInt(env("EVMAUTH_CHAIN_ID", "0"), 10, 64); err != nil {
		return s, fmt.Errorf("EVMAUTH_CHAIN_ID: %w", err)
	}
	if s.Gate.Cache.TTL, err = parseDuration(env("EVMAUTH_CACHE_TTL", "60s")); err != nil {
		return s, fmt.Errorf("EVMAUTH_CACHE_TTL: %w", err)
	}
	if s.Gate.Cache.MaxSize, err = strconv.Atoi(env("EVMAUTH_CACHE_MAX_SIZE", "1000")); err != nil {
		return s, fmt.Errorf("EVMAUTH_CACHE_MAX_SIZE: %w", err)
	}
	if s.Gate.RPCTimeout, err = parseDuration(env("EVMAUTH_RPC_TIMEOUT", "10s")); err != nil {
		return s, fmt.Errorf("EVMAUTH_RPC_TIMEOUT: %w", err)
	}

	for key, dst := range map[string]*bool{
		"EVMAUTH_CACHE_DISABLED": &s.Gate.Cache.Disabled,
		"EVMAUTH_DEV_MODE":       &s.Gate.DevMode,
		"EVMAUTH_DEBUG":          &s.Gate.Debug,
	} {
		if *dst, err = strconv.ParseBool(env(key, "false")); err != nil {
			return s, fmt.Errorf("%s: %w", key, err)
		}
	}

	if s.RateLimit, err = strconv.Atoi(env("EVMAUTH_RATE_LIMIT", "0")); err != nil {
		return s, fmt.Errorf("EVMAUTH_RATE_LIMIT: %w", err)
	}

	s.RedisURL = getenv("REDIS_URL")
	s.Listen = env("EVMAUTH_LISTEN", defaultListen)
	s.PolicyPath = getenv("EVMAUTH_POLICY_FILE")
	return s, nil
}

// parseDuration accepts a Go duration or a whole number of seconds
func parseDuration(v string) (time.Duration, error) {
	if secs, err := strconv.Atoi(v); err == nil {
		return time.Duration(secs) * time.Second, nil
	}
	return time.ParseDuration(v)
}
