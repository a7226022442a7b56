package airdrop

import (
	"context"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"go.uber.org/zap"
)

// DiscoveryConfig tunes the holder enumeration strategy.
type DiscoveryConfig struct {
	Timeout       time.Duration // per-attempt budget for the primary strategy
	Attempts      int           // primary strategy retries
	RetryDelay    time.Duration // fixed delay between retries
	ReadBatchSize int           // token ids per batched read
	LogWindow     uint64        // blocks per window in the fallback scan
}

// DefaultDiscoveryConfig fills zero fields with the defaults.
func (c DiscoveryConfig) withDefaults() DiscoveryConfig {
	if c.Timeout <= 0 {
		c.Timeout = 30 * time.Second
	}
	if c.Attempts <= 0 {
		c.Attempts = 3
	}
	if c.RetryDelay <= 0 {
		c.RetryDelay = 3 * time.Second
	}
	if c.ReadBatchSize <= 0 {
		c.ReadBatchSize = 256
	}
	if c.LogWindow == 0 {
		c.LogWindow = 5_000
	}
	return c
}

var (
	selTotalSupply = sel("totalSupply()")
	selOwnerOf     = sel("ownerOf(uint256)")

	topicTransfer = crypto.Keccak256Hash([]byte("Transfer(address,address,uint256)"))
	// ERC721A batch mints emit one event for a whole id range.
	topicConsecutiveTransfer = crypto.Keccak256Hash([]byte("ConsecutiveTransfer(uint256,uint256,address,address)"))
)

func sel(sig string) []byte {
	return crypto.Keccak256([]byte(sig))[:4]
}

// HolderDiscovery enumerates the current owner set of an NFT collection.
type HolderDiscovery struct {
	reader Reader
	cfg    DiscoveryConfig
	log    *zap.Logger
}

func NewHolderDiscovery(reader Reader, cfg DiscoveryConfig, log *zap.Logger) *HolderDiscovery {
	if log == nil {
		log = zap.NewNop()
	}
	return &HolderDiscovery{reader: reader, cfg: cfg.withDefaults(), log: log}
}

// DiscoverHolders returns the distinct owner set of contract, first-seen
// order, zero address excluded. The enumerable path runs under a timeout and
// retry budget; only when it yields nothing does the transfer-log fallback
// run. An empty result is a valid outcome ("no eligible recipients"), never
// an error.
func (d *HolderDiscovery) DiscoverHolders(ctx context.Context, contract common.Address) []common.Address {
	for attempt := 1; attempt <= d.cfg.Attempts; attempt++ {
		attemptCtx, cancel := context.WithTimeout(ctx, d.cfg.Timeout)
		holders, err := d.enumerateHolders(attemptCtx, contract)
		cancel()
		if err == nil && len(holders) > 0 {
			return holders
		}
		if err != nil {
			d.log.Warn("holder enumeration attempt failed",
				zap.String("contract", contract.Hex()),
				zap.Int("attempt", attempt),
				zap.Error(err))
		}
		if ctx.Err() != nil {
			return nil
		}
		if attempt < d.cfg.Attempts {
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(d.cfg.RetryDelay):
			}
		}
	}

	d.log.Info("enumeration exhausted, falling back to transfer log scan",
		zap.String("contract", contract.Hex()))
	holders, err := d.scanTransferLogs(ctx, contract)
	if err != nil {
		d.log.Warn("transfer log scan failed", zap.String("contract", contract.Hex()), zap.Error(err))
		return nil
	}
	return holders
}

// enumerateHolders reads totalSupply then ownerOf over batched calls,
// tolerating per-id failures. Collections disagree on the token-id origin, so
// a 1-based pass that finds nothing is retried 0-based.
func (d *HolderDiscovery) enumerateHolders(ctx context.Context, contract common.Address) ([]common.Address, error) {
	ret, err := d.reader.Call(ctx, contract, selTotalSupply)
	if err != nil {
		return nil, err
	}
	if len(ret) < 32 {
		return nil, nil
	}
	supply := new(big.Int).SetBytes(ret[len(ret)-32:])
	if supply.Sign() <= 0 || !supply.IsUint64() {
		return nil, nil
	}
	n := supply.Uint64()

	for _, origin := range []uint64{1, 0} {
		holders, err := d.ownersForRange(ctx, contract, origin, n)
		if err != nil {
			return nil, err
		}
		if len(holders) > 0 {
			return holders, nil
		}
	}
	return nil, nil
}

func (d *HolderDiscovery) ownersForRange(ctx context.Context, contract common.Address, origin, count uint64) ([]common.Address, error) {
	seen := make(map[common.Address]struct{})
	holders := make([]common.Address, 0)

	batch := make([]BatchElem, 0, d.cfg.ReadBatchSize)
	for id := origin; id < origin+count; id++ {
		data := append(append([]byte{}, selOwnerOf...), common.LeftPadBytes(new(big.Int).SetUint64(id).Bytes(), 32)...)
		batch = append(batch, BatchElem{To: contract, Data: data})
		if len(batch) == d.cfg.ReadBatchSize || id == origin+count-1 {
			if err := d.reader.BatchCall(ctx, batch); err != nil {
				return nil, err
			}
			for _, el := range batch {
				// Individual ownerOf calls revert for burned or out-of-range
				// ids; skip them and keep the rest of the batch.
				if el.Err != nil || len(el.Result) < 32 {
					continue
				}
				owner := common.BytesToAddress(el.Result[len(el.Result)-32:])
				if owner == (common.Address{}) {
					continue
				}
				if _, dup := seen[owner]; dup {
					continue
				}
				seen[owner] = struct{}{}
				holders = append(holders, owner)
			}
			batch = batch[:0]
		}
	}
	return holders, nil
}

// scanTransferLogs replays ownership history from genesis to the current
// block, folding token id -> current owner. O(chain height); last resort for
// collections without enumeration.
func (d *HolderDiscovery) scanTransferLogs(ctx context.Context, contract common.Address) ([]common.Address, error) {
	head, err := d.reader.BlockNumber(ctx)
	if err != nil {
		return nil, err
	}

	owners := make(map[string]common.Address)
	idOrder := make([]string, 0)
	setOwner := func(id string, owner common.Address) {
		if _, known := owners[id]; !known {
			idOrder = append(idOrder, id)
		}
		owners[id] = owner
	}
	for from := uint64(0); from <= head; from += d.cfg.LogWindow {
		to := from + d.cfg.LogWindow - 1
		if to > head {
			to = head
		}
		logs, err := d.reader.FilterLogs(ctx, ethereum.FilterQuery{
			FromBlock: new(big.Int).SetUint64(from),
			ToBlock:   new(big.Int).SetUint64(to),
			Addresses: []common.Address{contract},
			Topics:    [][]common.Hash{{topicTransfer, topicConsecutiveTransfer}},
		})
		if err != nil {
			return nil, err
		}
		for _, lg := range logs {
			if len(lg.Topics) == 0 {
				continue
			}
			switch lg.Topics[0] {
			case topicTransfer:
				// ERC721 Transfer has all three args indexed; the ERC20
				// variant (two indexed) is skipped by the arity check.
				if len(lg.Topics) != 4 {
					continue
				}
				tokenID := new(big.Int).SetBytes(lg.Topics[3].Bytes())
				setOwner(tokenID.String(), common.BytesToAddress(lg.Topics[2].Bytes()))
			case topicConsecutiveTransfer:
				// fromTokenId (indexed), toTokenId (data), from (indexed), to (indexed)
				if len(lg.Topics) != 4 || len(lg.Data) < 32 {
					continue
				}
				first := new(big.Int).SetBytes(lg.Topics[1].Bytes())
				last := new(big.Int).SetBytes(lg.Data[:32])
				newOwner := common.BytesToAddress(lg.Topics[3].Bytes())
				for id := new(big.Int).Set(first); id.Cmp(last) <= 0; id.Add(id, big.NewInt(1)) {
					setOwner(id.String(), newOwner)
				}
			}
		}
	}

	// Walk ids in first-seen order so the result is deterministic for a given
	// event history.
	seen := make(map[common.Address]struct{}, len(owners))
	holders := make([]common.Address, 0, len(owners))
	for _, id := range idOrder {
		owner := owners[id]
		if owner == (common.Address{}) {
			continue
		}
		if _, dup := seen[owner]; dup {
			continue
		}
		seen[owner] = struct{}{}
		holders = append(holders, owner)
	}
	return holders, nil
}
