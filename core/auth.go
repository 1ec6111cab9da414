package core

import "time"

// Scope is the optional chain / contract assertion carried by a bearer token
type Scope struct {
	ChainID         int64  // Chain the token was issued for
	ContractAddress string // Contract the token was issued for
}

// BearerClaims are the verified claims of the token embedded in a proof
type BearerClaims struct {
	ID        string    // Token id (jti), used for revocation
	Wallet    string    // Lower-cased wallet address from wallet_address or sub
	Issuer    string    // Issuer (iss)
	Audience  []string  // Audience (aud)
	ExpiresAt time.Time // Expiry (exp)
	Scope     *Scope    // Embedded evmauth claim, nil when absent
}

// Outcome of an authorization attempt
type Outcome string

const (
	OutcomeGranted         Outcome = "granted"
	OutcomeProofRejected   Outcome = "proof_rejected"
	OutcomePaymentRequired Outcome = "payment_required"
	OutcomeNetworkError    Outcome = "network_error"
)

// Decision records the terminal state of one protected call
type Decision struct {
	Method   string    `json:"method,omitempty"`
	Wallet   string    `json:"wallet,omitempty"`
	TokenIDs []TokenID `json:"token_ids"`
	Outcome  Outcome   `json:"outcome"`
	Reason   Reason    `json:"reason,omitempty"`
	DevMode  bool      `json:"dev_mode,omitempty"`
	At       time.Time `json:"at"`
}
