package core

import (
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// IsAddress reports whether s is a 0x-prefixed 20-byte hex address. Mixed-case
// input must carry a valid EIP-55 checksum
func IsAddress(s string) bool {
	if !strings.HasPrefix(s, "0x") || !common.IsHexAddress(s) {
		return false
	}
	body := s[2:]
	if body == strings.ToLower(body) || body == strings.ToUpper(body) {
		return true
	}
	return common.HexToAddress(s).Hex() == s
}

// ParseAddress validates s with IsAddress and converts it
func ParseAddress(s string) (common.Address, error) {
	if !IsAddress(s) {
		return common.Address{}, ErrInvalidAddress
	}
	return common.HexToAddress(s), nil
}

// LowerHex returns the lower-cased 0x form used for cache keys and responses
func LowerHex(addr common.Address) string {
	return strings.ToLower(addr.Hex())
}

// Redact shortens an address for log output
func Redact(addr string) string {
	if len(addr) <= 10 {
		return addr
	}
	return addr[:10] + "..."
}
