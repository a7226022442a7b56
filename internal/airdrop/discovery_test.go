package airdrop

import (
	"context"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/require"
)

func testDiscoveryConfig() DiscoveryConfig {
	return DiscoveryConfig{
		Timeout:       100 * time.Millisecond,
		Attempts:      2,
		RetryDelay:    time.Millisecond,
		ReadBatchSize: 2,
		LogWindow:     2,
	}
}

func TestDiscoverHoldersEnumeration(t *testing.T) {
	reader := &fakeReader{
		supply: 4,
		owners: map[uint64]common.Address{
			1: addr(1),
			2: addr(2),
			3: addr(1), // same owner twice
			4: addr(3),
		},
	}
	d := NewHolderDiscovery(reader, testDiscoveryConfig(), nil)

	got := d.DiscoverHolders(context.Background(), addr(0xCC))
	require.Equal(t, []common.Address{addr(1), addr(2), addr(3)}, got)
}

func TestDiscoverHoldersZeroBasedFallback(t *testing.T) {
	// A 0-based collection: the 1-based pass finds nothing, the 0-based
	// retry does.
	reader := &fakeReader{
		supply: 1,
		owners: map[uint64]common.Address{0: addr(5)},
	}
	d := NewHolderDiscovery(reader, testDiscoveryConfig(), nil)

	got := d.DiscoverHolders(context.Background(), addr(0xCC))
	require.Equal(t, []common.Address{addr(5)}, got)
}

func TestDiscoverHoldersToleratesPerIDFailures(t *testing.T) {
	// id 2 is burned: its ownerOf reverts and the rest of the batch survives.
	reader := &fakeReader{
		supply: 3,
		owners: map[uint64]common.Address{
			1: addr(1),
			3: addr(3),
		},
	}
	d := NewHolderDiscovery(reader, testDiscoveryConfig(), nil)

	got := d.DiscoverHolders(context.Background(), addr(0xCC))
	require.Equal(t, []common.Address{addr(1), addr(3)}, got)
}

func transferLog(block uint64, from, to common.Address, tokenID int64) types.Log {
	return types.Log{
		BlockNumber: block,
		Topics: []common.Hash{
			topicTransfer,
			common.BytesToHash(from.Bytes()),
			common.BytesToHash(to.Bytes()),
			common.BigToHash(big.NewInt(tokenID)),
		},
	}
}

func consecutiveLog(block uint64, firstID, lastID int64, from, to common.Address) types.Log {
	return types.Log{
		BlockNumber: block,
		Topics: []common.Hash{
			topicConsecutiveTransfer,
			common.BigToHash(big.NewInt(firstID)),
			common.BytesToHash(from.Bytes()),
			common.BytesToHash(to.Bytes()),
		},
		Data: common.BigToHash(big.NewInt(lastID)).Bytes(),
	}
}

func TestDiscoverHoldersLogScanFallback(t *testing.T) {
	var zero common.Address
	reader := &fakeReader{
		callErr: errors.New("execution reverted"), // no totalSupply
		head:    5,
		logs: []types.Log{
			transferLog(1, zero, addr(1), 1),          // mint 1 -> A
			consecutiveLog(2, 2, 4, zero, addr(2)),    // mint 2..4 -> B
			transferLog(3, addr(1), addr(3), 1),       // 1 moves A -> C
			transferLog(4, addr(2), zero, 2),          // 2 burned
			transferLog(5, addr(2), addr(1), 3),       // 3 moves B -> A
		},
	}
	d := NewHolderDiscovery(reader, testDiscoveryConfig(), nil)

	// Final ownership: 1->C, 2->burned, 3->A, 4->B. First-seen token order
	// makes the result deterministic.
	got := d.DiscoverHolders(context.Background(), addr(0xCC))
	require.Equal(t, []common.Address{addr(3), addr(1), addr(2)}, got)
}

func TestDiscoverHoldersSkipsERC20ShapedTransfers(t *testing.T) {
	reader := &fakeReader{
		callErr: errors.New("execution reverted"),
		head:    1,
		logs: []types.Log{
			{
				BlockNumber: 1,
				Topics: []common.Hash{
					topicTransfer,
					common.BytesToHash(addr(1).Bytes()),
					common.BytesToHash(addr(2).Bytes()),
				},
				Data: common.BigToHash(big.NewInt(100)).Bytes(),
			},
		},
	}
	d := NewHolderDiscovery(reader, testDiscoveryConfig(), nil)
	require.Empty(t, d.DiscoverHolders(context.Background(), addr(0xCC)))
}

func TestDiscoverHoldersStopsBackoffOnCancel(t *testing.T) {
	reader := &fakeReader{callErr: errors.New("execution reverted")}
	d := NewHolderDiscovery(reader, DiscoveryConfig{
		Timeout:       100 * time.Millisecond,
		Attempts:      3,
		RetryDelay:    time.Minute,
		ReadBatchSize: 2,
		LogWindow:     2,
	}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(20*time.Millisecond, cancel)

	start := time.Now()
	require.Empty(t, d.DiscoverHolders(ctx, addr(0xCC)))
	require.Less(t, time.Since(start), 5*time.Second, "cancellation must cut the retry backoff short")
}

func TestDiscoverHoldersEmptyIsNotAnError(t *testing.T) {
	reader := &fakeReader{supply: 0, head: 0}
	d := NewHolderDiscovery(reader, testDiscoveryConfig(), nil)
	require.Empty(t, d.DiscoverHolders(context.Background(), addr(0xCC)))
}
