package service

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/layer-3/evmauth/core"
)

// extractionRule picks a candidate value out of a request envelope
type extractionRule struct {
	location string
	pick     func(*core.Request) json.RawMessage
}

// proofRules are tried in order; the call arguments win over the legacy slots
var proofRules = []extractionRule{
	{"params.arguments." + core.ArgProof, func(r *core.Request) json.RawMessage { return r.Argument(core.ArgProof) }},
	{core.ArgProof, func(r *core.Request) json.RawMessage { return r.Proof }},
	{"params." + core.ArgProof, func(r *core.Request) json.RawMessage {
		if r.Params == nil {
			return nil
		}
		return r.Params.Proof
	}},
}

var walletRules = []extractionRule{
	{"params.arguments." + core.ArgWallet, func(r *core.Request) json.RawMessage { return r.Argument(core.ArgWallet) }},
	{core.ArgWallet, func(r *core.Request) json.RawMessage { return r.Wallet }},
	{"params." + core.ArgWallet, func(r *core.Request) json.RawMessage {
		if r.Params == nil {
			return nil
		}
		return r.Params.Wallet
	}},
}

// wireProof accepts both the canonical proof shape and the server shape, where
// domain, types and a JSON-encoded message sit at the top level
type wireProof struct {
	Challenge     *core.Challenge `json:"challenge"`
	Signature     string          `json:"signature"`
	ChainID       core.Number     `json:"chainId"`
	ExpiresAt     core.Number     `json:"expiresAt"`
	WalletAddress string          `json:"walletAddress"`
	Mode          string          `json:"mode"`

	Domain      *core.Domain    `json:"domain"`
	PrimaryType string          `json:"primaryType"`
	Types       core.Types      `json:"types"`
	Message     json.RawMessage `json:"message"`
}

// Extractor locates the proof of a request
type Extractor struct {
	devMode bool
}

// NewExtractor creates an extractor. With devMode a bare wallet assertion is
// accepted when no proof is present
func NewExtractor(devMode bool) *Extractor {
	return &Extractor{devMode: devMode}
}

// Extract returns the request's proof, or nil when there is none. A proof that
// cannot be decoded yields a PROOF_MALFORMED error
func (e *Extractor) Extract(req *core.Request) (*core.Proof, error) {
	if req == nil {
		return nil, nil
	}

	if raw, location := firstPresent(req, proofRules); raw != nil {
		proof, err := decodeProof(raw)
		if err != nil {
			return nil, &core.VerificationError{
				Reason:  core.ReasonProofMalformed,
				Message: "failed to decode proof at " + location,
				Err:     err,
			}
		}
		return proof, nil
	}

	if !e.devMode {
		return nil, nil
	}
	if raw, _ := firstPresent(req, walletRules); raw != nil {
		var wallet string
		if err := json.Unmarshal(raw, &wallet); err != nil {
			// verification rejects the empty address as PROOF_INVALID
			wallet = ""
		}
		return &core.Proof{WalletAddress: wallet, Mode: core.ModeDev}, nil
	}
	return nil, nil
}

func firstPresent(req *core.Request, rules []extractionRule) (json.RawMessage, string) {
	for _, rule := range rules {
		if raw := rule.pick(req); present(raw) {
			return raw, rule.location
		}
	}
	return nil, ""
}

// present treats missing, null and falsy scalars as absent
func present(raw json.RawMessage) bool {
	raw = bytes.TrimSpace(raw)
	switch string(raw) {
	case "", "null", "false", "0", `""`:
		return false
	}
	return true
}

func decodeProof(raw json.RawMessage) (*core.Proof, error) {
	raw = bytes.TrimSpace(raw)
	// some clients send the proof object JSON-encoded as a string
	if raw[0] == '"' {
		var inner string
		if err := json.Unmarshal(raw, &inner); err != nil {
			return nil, err
		}
		raw = json.RawMessage(inner)
	}

	var w wireProof
	if err := json.Unmarshal(raw, &w); err != nil {
		return nil, err
	}

	proof := &core.Proof{
		Challenge:     w.Challenge,
		Signature:     w.Signature,
		ChainID:       w.ChainID,
		ExpiresAt:     w.ExpiresAt,
		WalletAddress: w.WalletAddress,
		Mode:          w.Mode,
	}
	if proof.IsDev() {
		return proof, nil
	}
	if w.Challenge != nil && w.Challenge.Types != nil && w.Challenge.Message != nil {
		return proof, nil
	}
	return normalizeServerProof(proof, &w)
}

// normalizeServerProof rebuilds the challenge of a server-shaped proof. Proofs
// that fit neither shape are returned unchanged for verification to reject
func normalizeServerProof(proof *core.Proof, w *wireProof) (*core.Proof, error) {
	msg := bytes.TrimSpace(w.Message)
	if len(msg) == 0 || msg[0] != '"' {
		return proof, nil
	}

	var encoded string
	if err := json.Unmarshal(msg, &encoded); err != nil {
		return nil, err
	}
	var message core.Message
	if err := json.Unmarshal([]byte(encoded), &message); err != nil {
		return nil, fmt.Errorf("failed to parse server proof message: %w", err)
	}

	primaryType := w.PrimaryType
	if primaryType == "" {
		primaryType = core.PrimaryType
	}
	types := w.Types
	if types == nil {
		types = core.DefaultTypes()
	}

	proof.Challenge = &core.Challenge{
		Domain:      w.Domain,
		PrimaryType: primaryType,
		Types:       types,
		Message:     &message,
	}
	if proof.ChainID == 0 && w.Domain != nil {
		proof.ChainID = w.Domain.ChainID
	}
	return proof, nil
}
