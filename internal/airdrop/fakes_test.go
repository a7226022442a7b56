package airdrop

import (
	"bytes"
	"context"
	"errors"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// fakeReader serves totalSupply/ownerOf reads and transfer logs from memory.
type fakeReader struct {
	mu       sync.Mutex
	supply   uint64
	owners   map[uint64]common.Address
	callErr  error
	batchErr error
	head     uint64
	logs     []types.Log
}

func (f *fakeReader) Call(_ context.Context, _ common.Address, data []byte) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.callErr != nil {
		return nil, f.callErr
	}
	if len(data) >= 4 && bytes.Equal(data[:4], selTotalSupply) {
		return common.LeftPadBytes(new(big.Int).SetUint64(f.supply).Bytes(), 32), nil
	}
	return nil, errors.New("unexpected call")
}

func (f *fakeReader) BatchCall(_ context.Context, elems []BatchElem) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.batchErr != nil {
		return f.batchErr
	}
	for i := range elems {
		id := new(big.Int).SetBytes(elems[i].Data[4:]).Uint64()
		if owner, ok := f.owners[id]; ok {
			elems[i].Result = common.LeftPadBytes(owner.Bytes(), 32)
		} else {
			elems[i].Err = errors.New("execution reverted")
		}
	}
	return nil
}

func (f *fakeReader) FilterLogs(_ context.Context, q ethereum.FilterQuery) ([]types.Log, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	from := q.FromBlock.Uint64()
	to := q.ToBlock.Uint64()
	out := make([]types.Log, 0)
	for _, lg := range f.logs {
		if lg.BlockNumber >= from && lg.BlockNumber <= to {
			out = append(out, lg)
		}
	}
	return out, nil
}

func (f *fakeReader) BlockNumber(context.Context) (uint64, error) {
	return f.head, nil
}

// fakeWriter scripts batched-execution outcomes. execErrs is consumed one
// entry per ExecuteBatch call (nil = success); once drained, calls succeed.
type fakeWriter struct {
	mu             sync.Mutex
	failAll        bool
	execErrs       []error
	revertNext     int // next N submitted batches get a failed receipt
	unsupported    bool
	unsupportedFor int // first N capability checks report false
	checks         int
	calls          int
	executed       [][]Transfer
	receipts       map[common.Hash]uint64
	receiptGate    chan struct{} // when set, WaitForReceipt blocks until closed
}

func (f *fakeWriter) ExecuteBatch(_ context.Context, _, _ common.Address, transfers []Transfer) (common.Hash, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	var err error
	switch {
	case f.failAll:
		err = errors.New("rpc: connection reset")
	case len(f.execErrs) > 0:
		err = f.execErrs[0]
		f.execErrs = f.execErrs[1:]
	}
	if err != nil {
		return common.Hash{}, err
	}
	cp := make([]Transfer, len(transfers))
	copy(cp, transfers)
	f.executed = append(f.executed, cp)
	h := common.BigToHash(big.NewInt(int64(f.calls)))
	if f.receipts == nil {
		f.receipts = make(map[common.Hash]uint64)
	}
	st := types.ReceiptStatusSuccessful
	if f.revertNext > 0 {
		f.revertNext--
		st = types.ReceiptStatusFailed
	}
	f.receipts[h] = st
	return h, nil
}

func (f *fakeWriter) WaitForReceipt(_ context.Context, tx common.Hash) (uint64, error) {
	f.mu.Lock()
	gate := f.receiptGate
	f.mu.Unlock()
	if gate != nil {
		<-gate
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if st, ok := f.receipts[tx]; ok {
		return st, nil
	}
	return 0, errors.New("receipt not found")
}

func (f *fakeWriter) SupportsBatchedExecution(context.Context, common.Address) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.checks++
	if f.checks <= f.unsupportedFor {
		return false, nil
	}
	return !f.unsupported, nil
}

func (f *fakeWriter) setReceipt(tx common.Hash, status uint64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.receipts == nil {
		f.receipts = make(map[common.Hash]uint64)
	}
	f.receipts[tx] = status
}

func (f *fakeWriter) executedBatches() [][]Transfer {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([][]Transfer, len(f.executed))
	copy(out, f.executed)
	return out
}

func addr(n byte) common.Address {
	return common.BytesToAddress([]byte{n})
}

func mapResolver(m map[string]common.Address) WalletResolver {
	return WalletResolverFunc(func(_ context.Context, identity string) (common.Address, bool, error) {
		a, ok := m[identity]
		return a, ok, nil
	})
}
