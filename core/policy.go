package core

import (
	"fmt"
	"math/big"
	"os"
	"sort"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// TokenID is an ERC-1155 token id
type TokenID uint64

// BigInt returns the id as a uint256 call argument
func (id TokenID) BigInt() *big.Int {
	return new(big.Int).SetUint64(uint64(id))
}

func (id TokenID) String() string {
	return strconv.FormatUint(uint64(id), 10)
}

// ParseTokenIDs parses a comma separated list of token ids
func ParseTokenIDs(s string) ([]TokenID, error) {
	var ids []TokenID
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		v, err := strconv.ParseUint(part, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: %q", ErrInvalidTokenID, part)
		}
		ids = append(ids, TokenID(v))
	}
	return ids, nil
}

// TierName returns the display name of the access tier a token id grants
func TierName(id TokenID) string {
	switch id {
	case 1:
		return "Basic"
	case 3:
		return "Premium"
	case 5:
		return "Pro"
	default:
		return "Free"
	}
}

// Requirement lists the token ids that unlock a method; owning any one of them
// is sufficient. An empty requirement means the method is free
type Requirement []TokenID

// UnmarshalYAML accepts null, a single id or a list of ids
func (r *Requirement) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		if node.Tag == "!!null" {
			*r = nil
			return nil
		}
		var id TokenID
		if err := node.Decode(&id); err != nil {
			return fmt.Errorf("%w: %q", ErrInvalidTokenID, node.Value)
		}
		*r = Requirement{id}
		return nil
	case yaml.SequenceNode:
		var ids []TokenID
		if err := node.Decode(&ids); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidTokenID, err)
		}
		*r = ids
		return nil
	}
	return fmt.Errorf("%w: unsupported yaml node at line %d", ErrInvalidTokenID, node.Line)
}

// Policy maps method names to the tokens required to call them
type Policy map[string]Requirement

// DefaultPolicy returns the built-in tier assignment
func DefaultPolicy() Policy {
	return Policy{
		"ping":                nil,
		"whoami":              {1},
		"checkAddressThreat":  {1},
		"checkSanctionStatus": {1},
		"analyzeContract":     {3},
		"analyzeTransaction":  {3},
		"analyzeUrl":          {5},
	}
}

// Required returns the token ids for method, nil when the method is free or unknown
func (p Policy) Required(method string) []TokenID {
	return p[method]
}

// IsProtected reports whether calling method requires a token
func (p Policy) IsProtected(method string) bool {
	return len(p[method]) > 0
}

// Methods returns the method names in sorted order
func (p Policy) Methods() []string {
	names := make([]string, 0, len(p))
	for name := range p {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ParsePolicy decodes a YAML policy document
func ParsePolicy(data []byte) (Policy, error) {
	var p Policy
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("failed to parse policy: %w", err)
	}
	if p == nil {
		p = Policy{}
	}
	return p, nil
}

// LoadPolicy reads a YAML policy file
func LoadPolicy(path string) (Policy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read policy: %w", err)
	}
	return ParsePolicy(data)
}
