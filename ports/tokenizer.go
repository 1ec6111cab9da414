package ports

import "github.com/layer-3/evmauth/core"

// BearerValidator verifies the bearer token embedded in a proof
type BearerValidator interface {
	// Validate checks signature, expiry and the configured issuer / audience of
	// the token and returns its claims. serverName is the audience fallback
	// when no audience is configured
	Validate(token string, serverName string) (*core.BearerClaims, error)
}
