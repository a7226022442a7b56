package main

import (
	"fmt"
	"math/big"
	"strings"
)

func atoi(s string, d int) int {
	var n int
	if _, err := fmt.Sscan(strings.TrimSpace(s), &n); err != nil {
		return d
	}
	return n
}

func mustBig(s string) *big.Int {
	s = strings.TrimSpace(s)
	z := new(big.Int)
	var ok bool
	if strings.HasPrefix(s, "0x") {
		z, ok = z.SetString(s[2:], 16)
	} else {
		z, ok = z.SetString(s, 10)
	}
	if !ok {
		return big.NewInt(0)
	}
	return z
}

func formatEther(x *big.Int) string {
	if x == nil {
		return "0"
	}
	r := new(big.Rat).SetFrac(new(big.Int).Set(x), big.NewInt(1_000_000_000_000_000_000))
	return r.FloatString(6)
}

// toBaseUnits converts a human token amount ("12.5") into the smallest unit
// using the token's decimals.
func toBaseUnits(s string, decimals uint8) (*big.Int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, fmt.Errorf("empty amount")
	}
	parts := strings.SplitN(s, ".", 2)
	whole := parts[0]
	frac := ""
	if len(parts) == 2 {
		frac = parts[1]
	}
	if len(frac) > int(decimals) {
		return nil, fmt.Errorf("too many decimal places (max %d)", decimals)
	}
	frac = frac + strings.Repeat("0", int(decimals)-len(frac))
	z, ok := new(big.Int).SetString(whole+frac, 10)
	if !ok {
		return nil, fmt.Errorf("malformed amount %q", s)
	}
	if z.Sign() < 0 {
		return nil, fmt.Errorf("amount must be positive")
	}
	return z, nil
}
