package airdrop

import (
	"math"
	"math/big"
)

const bpsDenominator = 10_000

// TaxSplit is the exact three-way split of a gross amount.
// HolderTax + AdminTax + Net == gross always holds.
type TaxSplit struct {
	HolderTax *big.Int
	AdminTax  *big.Int
	Net       *big.Int
}

// ComputeTax splits gross using integer basis-point arithmetic. Percents are
// clamped to [0,100] and converted to bps by rounding percent*100 to the
// nearest integer; each tax is floor(gross*bps/10000). The admin bps is
// additionally capped at whatever the holder tax left, so the combined taxes
// never exceed gross and net stays >= 0. Admin tax is zero when no admin
// payout address is configured (hasAdmin=false).
func ComputeTax(gross *big.Int, holderPercent, adminPercent float64, hasAdmin bool) TaxSplit {
	if gross == nil || gross.Sign() < 0 {
		gross = big.NewInt(0)
	}
	holderBps := percentToBps(holderPercent)
	holderTax := taxPortion(gross, holderBps)
	adminTax := big.NewInt(0)
	if hasAdmin {
		adminBps := percentToBps(adminPercent)
		if adminBps > bpsDenominator-holderBps {
			adminBps = bpsDenominator - holderBps
		}
		adminTax = taxPortion(gross, adminBps)
	}
	net := new(big.Int).Sub(gross, holderTax)
	net.Sub(net, adminTax)
	return TaxSplit{HolderTax: holderTax, AdminTax: adminTax, Net: net}
}

func percentToBps(p float64) int64 {
	if p < 0 {
		p = 0
	}
	if p > 100 {
		p = 100
	}
	return int64(math.Round(p * 100))
}

func taxPortion(gross *big.Int, bps int64) *big.Int {
	t := new(big.Int).Mul(gross, big.NewInt(bps))
	return t.Div(t, big.NewInt(bpsDenominator))
}
