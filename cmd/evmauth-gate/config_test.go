package main

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func envOf(m map[string]string) func(string) string {
	return func(key string) string { return m[key] }
}

func TestLoadSettingsDefaults(t *testing.T) {
	s, err := loadSettings(envOf(nil))
	require.NoError(t, err)

	assert.Equal(t, 60*time.Second, s.Gate.Cache.TTL)
	assert.Equal(t, 1000, s.Gate.Cache.MaxSize)
	assert.Equal(t, 10*time.Second, s.Gate.RPCTimeout)
	assert.False(t, s.Gate.DevMode)
	assert.Empty(t, s.RedisURL, "Redis is opt-in")
	assert.Equal(t, defaultListen, s.Listen)
	assert.Zero(t, s.RateLimit)

	// nothing secret is defaulted
	assert.Empty(t, s.Gate.JWTSecret)
	assert.Error(t, s.Gate.Validate())
}

func TestLoadSettings(t *testing.T) {
	s, err := loadSettings(envOf(map[string]string{
		"EVMAUTH_CONTRACT_ADDRESS":  "0x9f2B42FB651b75CC3db4ef9FEd913A22BA4629Cf",
		"EVMAUTH_CHAIN_ID":          "1223954",
		"EVMAUTH_RPC_URL":           "https://rpc.example.org",
		"EVMAUTH_JWT_SECRET":        "s3cret",
		"EVMAUTH_EXPECTED_AUDIENCE": "risk-server",
		"EVMAUTH_CACHE_TTL":         "120",
		"EVMAUTH_CACHE_MAX_SIZE":    "50",
		"EVMAUTH_CACHE_DISABLED":    "true",
		"EVMAUTH_DEV_MODE":          "1",
		"EVMAUTH_RATE_LIMIT":        "30",
		"EVMAUTH_RPC_TIMEOUT":       "2s",
		"REDIS_URL":                 "redis://cache:6379/1",
	}))
	require.NoError(t, err)
	require.NoError(t, s.Gate.Validate())

	assert.EqualValues(t, 1223954, s.Gate.ChainID)
	assert.Equal(t, 2*time.Minute, s.Gate.Cache.TTL)
	assert.Equal(t, 50, s.Gate.Cache.MaxSize)
	assert.True(t, s.Gate.Cache.Disabled)
	assert.True(t, s.Gate.DevMode)
	assert.False(t, s.Gate.Debug)
	assert.Equal(t, 30, s.RateLimit)
	assert.Equal(t, 2*time.Second, s.Gate.RPCTimeout)
	assert.Equal(t, "risk-server", s.Gate.ExpectedAudience)
	assert.Equal(t, "redis://cache:6379/1", s.RedisURL)
}

func TestLoadSettingsRejectsGarbage(t *testing.T) {
	for _, key := range []string{"EVMAUTH_CHAIN_ID", "EVMAUTH_CACHE_TTL", "EVMAUTH_CACHE_MAX_SIZE", "EVMAUTH_DEBUG", "EVMAUTH_RATE_LIMIT"} {
		_, err := loadSettings(envOf(map[string]string{key: "garbage"}))
		assert.ErrorContains(t, err, key)
	}
}
