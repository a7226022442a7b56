package airdrop

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// DefaultBatchCapacity bounds one batched execute call. 80 transfer
// instructions stay well under the block gas limit for any sane token.
const DefaultBatchCapacity = 80

// Batch is a contiguous slice of recipients paid amountEach in one call.
type Batch struct {
	Recipients []common.Address
	AmountEach *big.Int
}

// PlanBatches splits recipients into contiguous chunks of at most capacity
// entries, preserving order. Pure and total: concatenating the batches always
// reproduces the input list.
func PlanBatches(recipients []common.Address, amountEach *big.Int, capacity int) []Batch {
	if capacity <= 0 {
		capacity = DefaultBatchCapacity
	}
	if len(recipients) == 0 {
		return nil
	}
	out := make([]Batch, 0, (len(recipients)+capacity-1)/capacity)
	for start := 0; start < len(recipients); start += capacity {
		end := start + capacity
		if end > len(recipients) {
			end = len(recipients)
		}
		out = append(out, Batch{
			Recipients: recipients[start:end],
			AmountEach: amountEach,
		})
	}
	return out
}
