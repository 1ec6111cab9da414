package tokenizer

import (
	"errors"
	"fmt"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/layer-3/evmauth/core"
	"github.com/layer-3/evmauth/ports"
)

// HMACValidator implements the BearerValidator interface for HS256 tokens
type HMACValidator struct {
	secret   []byte
	issuer   string
	audience string
}

// NewHMACValidator creates a validator. Empty issuer or audience disables the
// respective check; without an audience the token must be addressed to the
// challenge's server name
func NewHMACValidator(secret, issuer, audience string) ports.BearerValidator {
	return &HMACValidator{
		secret:   []byte(secret),
		issuer:   issuer,
		audience: audience,
	}
}

// Validate parses and verifies tokenStr
func (v *HMACValidator) Validate(tokenStr string, serverName string) (*core.BearerClaims, error) {
	claims := &BearerClaims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(token *jwt.Token) (interface{}, error) {
		// Validate the signing method
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return v.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, &core.VerificationError{Reason: core.ReasonJWTExpired, Message: "JWT token has expired", Err: err}
		}
		return nil, &core.VerificationError{Reason: core.ReasonJWTInvalid, Message: "JWT verification failed", Err: err}
	}
	if !token.Valid {
		return nil, core.NewVerificationError(core.ReasonJWTInvalid, "JWT verification failed")
	}

	wallet, err := walletFromClaims(claims)
	if err != nil {
		return nil, err
	}

	if v.issuer != "" && claims.Issuer != v.issuer {
		return nil, core.NewVerificationError(core.ReasonJWTInvalid,
			"invalid JWT issuer: expected %s, got %s", v.issuer, claims.Issuer)
	}

	if v.audience != "" {
		if !contains(claims.Audience, v.audience) {
			return nil, core.NewVerificationError(core.ReasonJWTInvalid,
				"JWT audience does not match expected: %s", v.audience)
		}
	} else if len(claims.Audience) != 1 || claims.Audience[0] != serverName {
		return nil, core.NewVerificationError(core.ReasonJWTInvalid, "JWT audience does not match server name")
	}

	out := &core.BearerClaims{
		ID:       claims.ID,
		Wallet:   wallet,
		Issuer:   claims.Issuer,
		Audience: claims.Audience,
	}
	if claims.ExpiresAt != nil {
		out.ExpiresAt = claims.ExpiresAt.Time
	}
	if claims.EVMAuth != nil {
		out.Scope = &core.Scope{
			ChainID:         int64(claims.EVMAuth.ChainID),
			ContractAddress: claims.EVMAuth.ContractAddress,
		}
	}
	return out, nil
}

// walletFromClaims prefers wallet_address and falls back to the legacy sub claim
func walletFromClaims(claims *BearerClaims) (string, error) {
	if core.IsAddress(claims.WalletAddress) {
		return strings.ToLower(claims.WalletAddress), nil
	}
	if core.IsAddress(claims.Subject) {
		return strings.ToLower(claims.Subject), nil
	}
	return "", core.NewVerificationError(core.ReasonJWTInvalid,
		"JWT missing valid wallet address in wallet_address or sub claim")
}

func contains(values []string, want string) bool {
	for _, v := range values {
		if v == want {
			return true
		}
	}
	return false
}
