package core

import (
	"encoding/json"
)

const (
	// ArgProof is the argument name carrying a signed proof
	ArgProof = "_evmauthProof"

	// ArgWallet is the argument name carrying a development wallet assertion
	ArgWallet = "_evmauthWallet"
)

// Request is the envelope of an inbound tool call. Proofs are accepted in the
// call arguments and, for compatibility, at the top level and in params
type Request struct {
	Method string          `json:"method,omitempty"`
	Params *Params         `json:"params,omitempty"`
	Proof  json.RawMessage `json:"_evmauthProof,omitempty"`
	Wallet json.RawMessage `json:"_evmauthWallet,omitempty"`
}

// Params carries the tool name and its arguments
type Params struct {
	Name      string                     `json:"name,omitempty"`
	Arguments map[string]json.RawMessage `json:"arguments,omitempty"`
	Proof     json.RawMessage            `json:"_evmauthProof,omitempty"`
	Wallet    json.RawMessage            `json:"_evmauthWallet,omitempty"`
}

// Envelope lets *Request satisfy the carrier constraint of the gate
func (r *Request) Envelope() *Request {
	return r
}

// Argument returns the raw argument value, or nil when absent
func (r *Request) Argument(name string) json.RawMessage {
	if r == nil || r.Params == nil {
		return nil
	}
	return r.Params.Arguments[name]
}

// UserArguments returns the call arguments without the authorization fields
func (r *Request) UserArguments() map[string]json.RawMessage {
	out := make(map[string]json.RawMessage)
	if r == nil || r.Params == nil {
		return out
	}
	for k, v := range r.Params.Arguments {
		if k == ArgProof || k == ArgWallet {
			continue
		}
		out[k] = v
	}
	return out
}

// Content is one item of a tool result
type Content struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

// Result is the output of a tool call
type Result struct {
	Content []Content `json:"content"`
	IsError bool      `json:"isError,omitempty"`
}

// TextResult wraps text in a single-item result
func TextResult(text string) *Result {
	return &Result{Content: []Content{{Type: "text", Text: text}}}
}
