package store

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/ligun0805/airdrop-engine/internal/airdrop"
)

// sampleAirdrop builds a fully-populated record. Timestamps are truncated to
// millisecond precision, matching what the sqlite store persists.
func sampleAirdrop(id string, creator common.Address) *airdrop.Airdrop {
	now := time.Now().UTC().Truncate(time.Millisecond)
	return &airdrop.Airdrop{
		ID:                 id,
		CreatorAddress:     creator,
		Type:               airdrop.TypeScoped,
		JoinMode:           true,
		Collection:         common.HexToAddress("0x00000000000000000000000000000000000000cc"),
		Currency:           common.HexToAddress("0x00000000000000000000000000000000000000aa"),
		CurrencyDecimals:   18,
		TotalAmount:        big.NewInt(1000),
		TaxPercent:         2,
		TaxAmount:          big.NewInt(20),
		AdminTaxPercent:    1,
		AdminTaxAmount:     big.NewInt(10),
		NetAmount:          big.NewInt(970),
		AmountPerRecipient: big.NewInt(485),
		RecipientCount:     2,
		Participants: []common.Address{
			common.HexToAddress("0x0000000000000000000000000000000000000001"),
			common.HexToAddress("0x0000000000000000000000000000000000000002"),
		},
		TaxHolders: []common.Address{
			common.HexToAddress("0x0000000000000000000000000000000000000001"),
			common.HexToAddress("0x0000000000000000000000000000000000000002"),
			common.HexToAddress("0x0000000000000000000000000000000000000003"),
		},
		MaxParticipants: 5,
		Status:          airdrop.StatusFunded,
		DepositTxHash:   common.HexToHash("0x01"),
		CreatedAt:       now,
		UpdatedAt:       now,
	}
}
