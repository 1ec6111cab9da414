package core

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

const (
	// DomainName is the EIP-712 domain name every proof must be bound to
	DomainName = "EVMAuth"

	// DomainVersion is the EIP-712 domain version every proof must be bound to
	DomainVersion = "1"

	// PrimaryType is the EIP-712 primary type of the signed challenge
	PrimaryType = "EVMAuthRequest"

	// ModeDev marks a development proof
	ModeDev = "dev"
)

// Number is an integer that decodes from a JSON number or a decimal / 0x-hex string
type Number int64

func (n *Number) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*n = 0
		return nil
	}
	s := string(data)
	if strings.HasPrefix(s, `"`) {
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
	}
	v, err := strconv.ParseInt(s, 0, 64)
	if err != nil {
		f, ferr := strconv.ParseFloat(s, 64)
		if ferr != nil || f != float64(int64(f)) {
			return fmt.Errorf("invalid integer %q", s)
		}
		v = int64(f)
	}
	*n = Number(v)
	return nil
}

// Text is a string that also decodes from a JSON number or boolean literal
type Text string

func (t *Text) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch {
	case bytes.Equal(data, []byte("null")):
		*t = ""
	case len(data) > 0 && data[0] == '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*t = Text(s)
	case len(data) > 0 && (data[0] == '{' || data[0] == '['):
		return fmt.Errorf("expected a scalar, got %s", data)
	default:
		*t = Text(data)
	}
	return nil
}

// Field is one member of an EIP-712 struct type
type Field struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// Types maps EIP-712 type names to their members
type Types map[string][]Field

// DefaultTypes returns the type schema of an EVMAuth challenge
func DefaultTypes() Types {
	return Types{
		"EIP712Domain": {
			{Name: "name", Type: "string"},
			{Name: "version", Type: "string"},
			{Name: "chainId", Type: "uint256"},
			{Name: "verifyingContract", Type: "address"},
		},
		PrimaryType: {
			{Name: "serverName", Type: "string"},
			{Name: "resourceName", Type: "string"},
			{Name: "requiredTokens", Type: "string"},
			{Name: "jwt", Type: "string"},
			{Name: "timestamp", Type: "string"},
			{Name: "nonce", Type: "string"},
		},
	}
}

// Domain is the EIP-712 domain of a challenge
type Domain struct {
	Name              string `json:"name"`
	Version           string `json:"version"`
	ChainID           Number `json:"chainId"`
	VerifyingContract string `json:"verifyingContract"`
}

// Message is the signed body of a challenge
type Message struct {
	ServerName     Text `json:"serverName"`
	ResourceName   Text `json:"resourceName"`
	RequiredTokens Text `json:"requiredTokens"`
	JWT            Text `json:"jwt"`
	Timestamp      Text `json:"timestamp"`
	Nonce          Text `json:"nonce"`
}

// Complete reports whether every message field is present
func (m Message) Complete() bool {
	return m.ServerName != "" && m.ResourceName != "" && m.RequiredTokens != "" &&
		m.JWT != "" && m.Timestamp != "" && m.Nonce != ""
}

// Map returns the message as EIP-712 message data
func (m Message) Map() map[string]any {
	return map[string]any{
		"serverName":     string(m.ServerName),
		"resourceName":   string(m.ResourceName),
		"requiredTokens": string(m.RequiredTokens),
		"jwt":            string(m.JWT),
		"timestamp":      string(m.Timestamp),
		"nonce":          string(m.Nonce),
	}
}

// Challenge is the EIP-712 typed data a wallet signs
type Challenge struct {
	Domain      *Domain  `json:"domain"`
	PrimaryType string   `json:"primaryType"`
	Types       Types    `json:"types"`
	Message     *Message `json:"message"`
}

// Proof is a signed challenge presented with a call. A development proof
// carries only WalletAddress and Mode
type Proof struct {
	Challenge     *Challenge `json:"challenge,omitempty"`
	Signature     string     `json:"signature,omitempty"`
	ChainID       Number     `json:"chainId,omitempty"`
	ExpiresAt     Number     `json:"expiresAt,omitempty"`
	WalletAddress string     `json:"walletAddress,omitempty"`
	Mode          string     `json:"mode,omitempty"`
}

// IsDev reports whether p is a development proof: either explicitly marked or
// a bare wallet address without challenge and signature
func (p *Proof) IsDev() bool {
	if p.Mode == ModeDev {
		return true
	}
	return p.WalletAddress != "" && p.Challenge == nil && p.Signature == ""
}

// EffectiveChainID returns the top-level chain id, falling back to the domain's
func (p *Proof) EffectiveChainID() int64 {
	if p.ChainID != 0 {
		return int64(p.ChainID)
	}
	if p.Challenge != nil && p.Challenge.Domain != nil {
		return int64(p.Challenge.Domain.ChainID)
	}
	return 0
}

// Expiry returns the absolute expiry instant (ExpiresAt is epoch milliseconds)
func (p *Proof) Expiry() time.Time {
	return time.UnixMilli(int64(p.ExpiresAt))
}
