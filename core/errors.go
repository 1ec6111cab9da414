package core

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidConfig  = errors.New("invalid evmauth configuration")
	ErrInvalidAddress = errors.New("invalid ethereum address")
	ErrInvalidTokenID = errors.New("invalid token id")
	ErrTokenRevoked   = errors.New("token has been revoked")
)

// Reason identifies why a proof was rejected. The set is closed; every
// value has a description and remediation steps in the denial builder
type Reason string

const (
	ReasonProofMissing       Reason = "PROOF_MISSING"
	ReasonProofExpired       Reason = "PROOF_EXPIRED"
	ReasonProofMalformed     Reason = "PROOF_MALFORMED"
	ReasonProofInvalid       Reason = "PROOF_INVALID"
	ReasonChainMismatch      Reason = "CHAIN_MISMATCH"
	ReasonDomainMismatch     Reason = "DOMAIN_MISMATCH"
	ReasonSignatureInvalid   Reason = "SIGNATURE_INVALID"
	ReasonJWTInvalid         Reason = "JWT_INVALID"
	ReasonJWTExpired         Reason = "JWT_EXPIRED"
	ReasonJWTSubjectMismatch Reason = "JWT_SUBJECT_MISMATCH"
)

// Reasons lists every proof rejection reason
var Reasons = []Reason{
	ReasonProofMissing,
	ReasonProofExpired,
	ReasonProofMalformed,
	ReasonProofInvalid,
	ReasonChainMismatch,
	ReasonDomainMismatch,
	ReasonSignatureInvalid,
	ReasonJWTInvalid,
	ReasonJWTExpired,
	ReasonJWTSubjectMismatch,
}

// Valid reports whether r is one of the known reasons
func (r Reason) Valid() bool {
	for _, known := range Reasons {
		if r == known {
			return true
		}
	}
	return false
}

// VerificationError is returned for every rejected proof
type VerificationError struct {
	Reason  Reason
	Message string
	Err     error
}

// NewVerificationError creates a VerificationError without a cause
func NewVerificationError(reason Reason, format string, args ...any) *VerificationError {
	return &VerificationError{Reason: reason, Message: fmt.Sprintf(format, args...)}
}

func (e *VerificationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Reason, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Reason, e.Message)
}

func (e *VerificationError) Unwrap() error {
	return e.Err
}

// ReasonOf extracts the rejection reason from err, or returns fallback when err
// carries none
func ReasonOf(err error, fallback Reason) Reason {
	var verr *VerificationError
	if errors.As(err, &verr) && verr.Reason.Valid() {
		return verr.Reason
	}
	return fallback
}
