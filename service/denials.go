package service

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/layer-3/evmauth/core"
)

// Code is the machine-readable code of a denial
type Code string

const (
	CodeProofRequired   Code = "EVMAUTH_PROOF_REQUIRED"
	CodePaymentRequired Code = "402"
	CodeNetworkError    Code = "EVMAUTH_NETWORK_ERROR"
	CodeConfigError     Code = "EVMAUTH_CONFIG_ERROR"
	CodeRateLimited     Code = "EVMAUTH_RATE_LIMITED"
	CodeNotConnected    Code = "EVMAUTH_NOT_CONNECTED"
)

// MarshalJSON encodes the payment code as the number 402 and all others as strings
func (c Code) MarshalJSON() ([]byte, error) {
	if c == CodePaymentRequired {
		return []byte(c), nil
	}
	return json.Marshal(string(c))
}

// UnmarshalJSON accepts both the numeric and the string form
func (c *Code) UnmarshalJSON(data []byte) error {
	if len(data) > 0 && data[0] != '"' {
		*c = Code(data)
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	*c = Code(s)
	return nil
}

const proofServer = "EVMAuth MCP Server"

// Tool names the tool the caller should invoke to resolve a denial
type Tool struct {
	Server    string         `json:"server"`
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments,omitempty"`
}

// Action tells the caller how to recover
type Action struct {
	Description string   `json:"description"`
	Steps       []string `json:"steps"`
	Tool        *Tool    `json:"tool,omitempty"`
}

// Denial is returned in place of a protected handler's output
type Denial struct {
	Code    Code           `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details"`
	Action  Action         `json:"claude_action"`
}

func (d *Denial) Error() string {
	return fmt.Sprintf("%s: %s", string(d.Code), d.Message)
}

// Reason returns details.reason for proof denials
func (d *Denial) Reason() core.Reason {
	r, _ := d.Details["reason"].(core.Reason)
	return r
}

// Result renders the denial as a tool result carrying {"error": denial}
func (d *Denial) Result() *core.Result {
	body, err := json.MarshalIndent(map[string]*Denial{"error": d}, "", "  ")
	if err != nil {
		body = []byte(`{"error":{"code":"EVMAUTH_PROOF_REQUIRED","message":"failed to encode denial"}}`)
	}
	return core.TextResult(string(body))
}

// ProofRequired denies a call whose proof is missing or rejected
func ProofRequired(reason core.Reason, cfg core.Config) *Denial {
	return &Denial{
		Code:    CodeProofRequired,
		Message: "Cryptographic proof of wallet ownership required",
		Details: map[string]any{
			"reason":          reason,
			"contractAddress": cfg.ContractAddress,
			"chainId":         cfg.ChainID,
		},
		Action: Action{
			Description: proofErrorDescription(reason),
			Steps:       proofErrorSteps(reason),
			Tool:        &Tool{Server: proofServer, Name: "create_signed_proof"},
		},
	}
}

// PaymentRequired denies a call whose wallet owns none of the required tokens
func PaymentRequired(tokenIDs []core.TokenID, cfg core.Config, wallet string) *Denial {
	ids := make([]string, len(tokenIDs))
	for i, id := range tokenIDs {
		ids[i] = id.String()
	}

	details := map[string]any{
		"requiredTokens":  tokenIDs,
		"contractAddress": cfg.ContractAddress,
		"chainId":         cfg.ChainID,
	}
	if wallet != "" {
		details["checkedWallet"] = wallet
	}

	var primary core.TokenID
	if len(tokenIDs) > 0 {
		primary = tokenIDs[0]
	}

	return &Denial{
		Code:    CodePaymentRequired,
		Message: "Payment Required",
		Details: details,
		Action: Action{
			Description: "You need to purchase access tokens to use this tool",
			Steps: []string{
				`Call the "purchase_token" tool on EVMAuth MCP Server`,
				"Purchase one of these token IDs: " + strings.Join(ids, ", "),
				"Wait for transaction confirmation",
				"Retry this tool call after purchase completes",
			},
			Tool: &Tool{
				Server:    proofServer,
				Name:      "purchase_token",
				Arguments: map[string]any{"tokenId": primary, "quantity": 1},
			},
		},
	}
}

// NetworkError denies a call whose ownership could not be determined
func NetworkError(cfg core.Config) *Denial {
	return &Denial{
		Code:    CodeNetworkError,
		Message: "Failed to verify token ownership due to network error",
		Details: map[string]any{
			"rpcUrl":    cfg.RPCURL,
			"errorType": "NETWORK_ERROR",
			"retryable": true,
		},
		Action: Action{
			Description: "Network connectivity issue when checking token ownership",
			Steps: []string{
				"Wait a moment for network conditions to improve",
				"Retry the tool call",
				"If persistent, contact server administrator",
			},
		},
	}
}

// ConfigError reports a misconfigured server
func ConfigError(field string, value any, expected string) *Denial {
	return &Denial{
		Code:    CodeConfigError,
		Message: "Invalid EVMAuth configuration",
		Details: map[string]any{
			"field":        field,
			"value":        value,
			"expected":     expected,
			"configErrors": []string{fmt.Sprintf("Invalid %s: %s", field, expected)},
		},
		Action: Action{
			Description: "The MCP server has invalid EVMAuth configuration",
			Steps: []string{
				"Contact the server administrator",
				"Provide the configuration error details",
				"Wait for the configuration to be fixed",
			},
		},
	}
}

// RateLimited denies a call from a client that exceeded its request budget
func RateLimited(retryAfter int, limit string) *Denial {
	if retryAfter <= 0 {
		retryAfter = 60
	}
	return &Denial{
		Code:    CodeRateLimited,
		Message: "Too many verification attempts",
		Details: map[string]any{
			"retryAfter": retryAfter,
			"limit":      limit,
		},
		Action: Action{
			Description: "You've exceeded the rate limit for token verification",
			Steps: []string{
				fmt.Sprintf("Wait %d seconds before retrying", retryAfter),
				"Consider batching multiple operations",
				"If persistent, contact server administrator",
			},
		},
	}
}

// NotConnected tells the caller to connect the proof-issuing server first
func NotConnected() *Denial {
	return &Denial{
		Code:    CodeNotConnected,
		Message: "EVMAuth MCP Server is not connected",
		Details: map[string]any{
			"reason": "Cannot create authentication proof without EVMAuth MCP Server",
		},
		Action: Action{
			Description: "You need to connect to EVMAuth MCP Server before using token-gated tools",
			Steps: []string{
				`Look for "EVMAuth MCP Server" in your connected MCP servers list`,
				"If not connected, ask the user to connect it first",
				`Once connected, you can use the "create_signed_proof" tool`,
				"The server provides wallet management and proof generation",
				"After connecting, retry the original tool that required authentication",
			},
			Tool: &Tool{Server: proofServer, Name: "create_signed_proof"},
		},
	}
}

func proofErrorDescription(reason core.Reason) string {
	switch reason {
	case core.ReasonProofExpired:
		return "Your authentication proof has expired. You need to create a new one."
	case core.ReasonChainMismatch:
		return "Your proof was signed for a different blockchain network."
	case core.ReasonSignatureInvalid:
		return "The cryptographic signature on your proof is invalid."
	case core.ReasonJWTInvalid:
		return "The JWT token embedded in your proof is invalid."
	case core.ReasonJWTExpired:
		return "The JWT token in your proof has expired."
	case core.ReasonJWTSubjectMismatch:
		return "The wallet address in the JWT does not match the signature."
	case core.ReasonDomainMismatch:
		return "The proof was created for a different contract or chain."
	case core.ReasonProofInvalid:
		return "Your authentication proof is incomplete or incorrectly formatted."
	case core.ReasonProofMalformed:
		return "Your authentication proof could not be read."
	case core.ReasonProofMissing:
		return "You need to authenticate with EVMAuth MCP Server first"
	}
	return "You need to authenticate with EVMAuth MCP Server first"
}

func proofErrorSteps(reason core.Reason) []string {
	switch reason {
	case core.ReasonProofMissing:
		return []string{
			"First, make sure EVMAuth MCP Server is connected",
			`Call the "create_signed_proof" tool on EVMAuth MCP Server`,
			"Copy the entire proof object from the response",
			"Include it as the _evmauthProof parameter in this tool",
			"Retry this tool call with the proof included",
		}
	case core.ReasonProofExpired, core.ReasonJWTExpired:
		return []string{
			"Your proof has expired (they last 5 minutes)",
			`Call "create_signed_proof" to get a fresh proof`,
			"Use the new proof immediately to avoid expiration",
			"Include the fresh proof in _evmauthProof parameter",
			"Retry this tool call",
		}
	case core.ReasonChainMismatch, core.ReasonDomainMismatch:
		return []string{
			"Your proof was created for a different blockchain or contract",
			"Ensure EVMAuth MCP Server is configured for the correct network",
			`Call "create_signed_proof" to get a proof for this network`,
			"Include the correct proof in _evmauthProof parameter",
			"Retry this tool call",
		}
	case core.ReasonProofMalformed, core.ReasonProofInvalid, core.ReasonSignatureInvalid,
		core.ReasonJWTInvalid, core.ReasonJWTSubjectMismatch:
	}
	return []string{
		"There was an issue with your authentication proof",
		`Call "create_signed_proof" to get a fresh proof`,
		"Ensure you are using the correct wallet",
		"Include the new proof in _evmauthProof parameter",
		"Retry this tool call",
	}
}
