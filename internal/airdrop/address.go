package airdrop

import (
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// IsValidAddress reports whether s has the 0x-prefixed 20-byte hex shape.
// No checksum validation; addresses are compared lowercased everywhere.
func IsValidAddress(s string) bool {
	s = strings.TrimSpace(s)
	return strings.HasPrefix(s, "0x") && common.IsHexAddress(s)
}

// ExtractAddressFromStreamID pulls a wallet address out of a structured
// identifier. Two encodings occur in the wild:
//
//	"0xabc.../some/path"  — stream path, address before the first slash
//	32-byte hex value     — type-tag byte + 20-byte address + padding
//
// Returns ok=false on any failure; never panics.
func ExtractAddressFromStreamID(id string) (common.Address, bool) {
	id = strings.TrimSpace(id)
	if id == "" {
		return common.Address{}, false
	}
	if i := strings.IndexByte(id, '/'); i > 0 {
		head := id[:i]
		if IsValidAddress(head) {
			return common.HexToAddress(head), true
		}
		return common.Address{}, false
	}
	if IsValidAddress(id) {
		return common.HexToAddress(id), true
	}
	// Encoded form: one tag byte, then the address, then zero padding.
	raw := strings.TrimPrefix(id, "0x")
	if len(raw) != 64 || !isHex(raw) {
		return common.Address{}, false
	}
	b := common.FromHex(raw)
	if len(b) != 32 {
		return common.Address{}, false
	}
	for _, p := range b[21:] {
		if p != 0 {
			return common.Address{}, false
		}
	}
	addr := common.BytesToAddress(b[1:21])
	if addr == (common.Address{}) {
		return common.Address{}, false
	}
	return addr, true
}

func isHex(s string) bool {
	for _, c := range s {
		switch {
		case c >= '0' && c <= '9', c >= 'a' && c <= 'f', c >= 'A' && c <= 'F':
		default:
			return false
		}
	}
	return len(s)%2 == 0
}
