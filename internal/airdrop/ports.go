package airdrop

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// BatchElem is one read inside a fault-tolerant batched call. A failed element
// records its error and leaves the rest of the batch intact.
type BatchElem struct {
	To     common.Address
	Data   []byte
	Result []byte
	Err    error
}

// Transfer is a single token movement inside a batched execution.
type Transfer struct {
	To     common.Address
	Amount *big.Int
}

// Reader is the chain-read collaborator.
type Reader interface {
	// Call performs one eth_call against the latest block.
	Call(ctx context.Context, to common.Address, data []byte) ([]byte, error)
	// BatchCall executes elems as one JSON-RPC batch. Individual elements may
	// fail without failing the batch; the returned error covers transport
	// failure only.
	BatchCall(ctx context.Context, elems []BatchElem) error
	FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error)
	BlockNumber(ctx context.Context) (uint64, error)
}

// Writer is the chain-write collaborator backing batched distribution.
type Writer interface {
	// ExecuteBatch submits one on-chain call encoding len(transfers) token
	// transfer instructions from the treasury and returns its tx hash.
	ExecuteBatch(ctx context.Context, treasury, token common.Address, transfers []Transfer) (common.Hash, error)
	// WaitForReceipt blocks (bounded internally) until the tx is mined and
	// returns the receipt status.
	WaitForReceipt(ctx context.Context, tx common.Hash) (uint64, error)
	// SupportsBatchedExecution reports whether addr can run a batched execute
	// call (delegated execution code present).
	SupportsBatchedExecution(ctx context.Context, addr common.Address) (bool, error)
}

// WalletResolver maps an opaque external identity to a payable wallet.
// ok=false means the identity has no wallet; err covers lookup failure.
type WalletResolver interface {
	ResolveWallet(ctx context.Context, identity string) (common.Address, bool, error)
}

// WalletResolverFunc adapts a function to WalletResolver.
type WalletResolverFunc func(ctx context.Context, identity string) (common.Address, bool, error)

func (f WalletResolverFunc) ResolveWallet(ctx context.Context, identity string) (common.Address, bool, error) {
	return f(ctx, identity)
}

// Repository persists airdrop records. Implementations must return deep
// copies; the engine is the only mutator.
type Repository interface {
	Create(ctx context.Context, a *Airdrop) error
	Get(ctx context.Context, id string) (*Airdrop, error)
	Update(ctx context.Context, a *Airdrop) error
	ListByCreator(ctx context.Context, creator common.Address) ([]*Airdrop, error)
	// ListOpenJoinable returns funded join-mode airdrops with capacity left.
	ListOpenJoinable(ctx context.Context) ([]*Airdrop, error)
}
