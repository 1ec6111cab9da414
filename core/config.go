package core

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

const (
	// DefaultCacheTTL is how long an ownership result stays cached
	DefaultCacheTTL = 60 * time.Second

	// DefaultCacheMaxSize bounds the number of cached ownership results
	DefaultCacheMaxSize = 1000

	// DefaultRPCTimeout bounds a single on-chain query
	DefaultRPCTimeout = 10 * time.Second
)

// CacheConfig controls the ownership cache
type CacheConfig struct {
	TTL      time.Duration
	MaxSize  int
	Disabled bool
}

// Config is the static configuration of the gate. It is validated once when
// the gate is constructed and never mutated afterwards
type Config struct {
	ContractAddress  string
	ChainID          int64
	RPCURL           string
	JWTSecret        string
	JWTIssuer        string
	ExpectedAudience string
	Cache            CacheConfig
	RPCTimeout       time.Duration
	DevMode          bool
	Debug            bool
}

// WithDefaults returns a copy of c with zero cache and timeout values replaced
// by their defaults
func (c Config) WithDefaults() Config {
	if c.Cache.TTL <= 0 {
		c.Cache.TTL = DefaultCacheTTL
	}
	if c.Cache.MaxSize <= 0 {
		c.Cache.MaxSize = DefaultCacheMaxSize
	}
	if c.RPCTimeout <= 0 {
		c.RPCTimeout = DefaultRPCTimeout
	}
	return c
}

// Validate checks the contract address, chain id, RPC endpoint and bearer
// token secret
func (c Config) Validate() error {
	if !IsAddress(c.ContractAddress) {
		return fmt.Errorf("%w: invalid contract address format %q", ErrInvalidConfig, c.ContractAddress)
	}
	if c.ChainID <= 0 {
		return fmt.Errorf("%w: chain id must be a positive integer, got %d", ErrInvalidConfig, c.ChainID)
	}
	u, err := url.Parse(c.RPCURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("%w: invalid RPC URL format %q", ErrInvalidConfig, c.RPCURL)
	}
	if c.JWTSecret == "" {
		return fmt.Errorf("%w: jwt secret is required", ErrInvalidConfig)
	}
	return nil
}

// Contract returns the configured contract address
func (c Config) Contract() common.Address {
	return common.HexToAddress(c.ContractAddress)
}

// SameContract compares addr with the configured contract, ignoring case
func (c Config) SameContract(addr string) bool {
	return strings.EqualFold(addr, c.ContractAddress)
}
