package airdrop

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Status is the lifecycle state of an airdrop.
//
//	pending -> funded -> distributing -> completed
//	                ^         |
//	                +---------+  (rollback when the net payout fails)
//
// cancelled is reachable from pending and funded only.
type Status string

const (
	StatusPending      Status = "pending"
	StatusFunded       Status = "funded"
	StatusDistributing Status = "distributing"
	StatusCompleted    Status = "completed"
	StatusCancelled    Status = "cancelled"
)

// Type selects how the recipient set is built.
type Type string

const (
	// TypeScoped derives recipients from an NFT collection's holder set.
	TypeScoped Type = "scoped"
	// TypeOpen accrues recipients through explicit joins.
	TypeOpen Type = "open"
)

// Airdrop is the central aggregate. It is owned exclusively by Service; other
// components receive copies of the fields they need and return derived values.
type Airdrop struct {
	ID             string
	CreatorAddress common.Address
	Type           Type

	// JoinMode allows joins on a scoped airdrop, gated on membership in the
	// discovered holder set.
	JoinMode bool

	// Collection is the NFT contract recipients are derived from (scoped).
	Collection common.Address

	Currency         common.Address
	CurrencyDecimals uint8

	TotalAmount     *big.Int
	TaxPercent      float64
	TaxAmount       *big.Int
	AdminTaxPercent float64
	AdminTaxAmount  *big.Int
	NetAmount       *big.Int

	// AmountPerRecipient = NetAmount / RecipientCount, floor division.
	// Recomputed whenever the participant set changes; the remainder stays in
	// the treasury.
	AmountPerRecipient *big.Int

	RecipientCount int
	Participants   []common.Address

	// TaxHolders is the holder-tax payout snapshot, captured independently of
	// Participants. For scoped join-mode airdrops it doubles as the membership
	// gate for joins.
	TaxHolders []common.Address

	// MaxParticipants caps join-mode airdrops; 0 = unbounded.
	MaxParticipants int

	Status Status

	DepositTxHash              common.Hash
	DistributionTxHash         common.Hash
	TaxDistributionTxHash      common.Hash
	AdminTaxDistributionTxHash common.Hash

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Clone returns a deep copy so repository round-trips never alias big.Int or
// slice state with the caller.
func (a *Airdrop) Clone() *Airdrop {
	if a == nil {
		return nil
	}
	cp := *a
	cp.TotalAmount = copyBig(a.TotalAmount)
	cp.TaxAmount = copyBig(a.TaxAmount)
	cp.AdminTaxAmount = copyBig(a.AdminTaxAmount)
	cp.NetAmount = copyBig(a.NetAmount)
	cp.AmountPerRecipient = copyBig(a.AmountPerRecipient)
	cp.Participants = append([]common.Address(nil), a.Participants...)
	cp.TaxHolders = append([]common.Address(nil), a.TaxHolders...)
	return &cp
}

// recomputePerRecipient refreshes RecipientCount and AmountPerRecipient from
// the current participant set.
func (a *Airdrop) recomputePerRecipient() {
	a.RecipientCount = len(a.Participants)
	if a.RecipientCount == 0 || a.NetAmount == nil {
		a.AmountPerRecipient = big.NewInt(0)
		return
	}
	a.AmountPerRecipient = new(big.Int).Div(a.NetAmount, big.NewInt(int64(a.RecipientCount)))
}

func (a *Airdrop) hasParticipant(addr common.Address) bool {
	for _, p := range a.Participants {
		if p == addr {
			return true
		}
	}
	return false
}

func (a *Airdrop) isHolder(addr common.Address) bool {
	for _, h := range a.TaxHolders {
		if h == addr {
			return true
		}
	}
	return false
}

func copyBig(x *big.Int) *big.Int {
	if x == nil {
		return nil
	}
	return new(big.Int).Set(x)
}
