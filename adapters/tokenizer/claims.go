package tokenizer

import (
	"github.com/golang-jwt/jwt/v5"
	"github.com/layer-3/evmauth/core"
)

// BearerClaims are the claims of the token embedded in a proof
type BearerClaims struct {
	jwt.RegisteredClaims
	WalletAddress string       `json:"wallet_address,omitempty"` // Preferred over sub
	EVMAuth       *ScopeClaims `json:"evmauth,omitempty"`
}

// ScopeClaims bind a token to a chain and contract
type ScopeClaims struct {
	ChainID         core.Number `json:"chainId"`
	ContractAddress string      `json:"contractAddress"`
}
