package airdrop

import (
	"context"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"
)

// ExecutorConfig tunes the outer retry loop around one payout run.
type ExecutorConfig struct {
	Treasury   common.Address
	Attempts   int
	RetryDelay time.Duration
}

func (c ExecutorConfig) withDefaults() ExecutorConfig {
	if c.Attempts <= 0 {
		c.Attempts = 4
	}
	if c.RetryDelay <= 0 {
		c.RetryDelay = 2 * time.Second
	}
	return c
}

// Outcome is the terminal result of one payout run.
type Outcome struct {
	OK               bool
	LastTxHash       common.Hash
	BatchesConfirmed int
	Err              error
}

// DistributionExecutor moves funds for one payout leg: a sequence of batches,
// each executed as a single batched on-chain call and confirmed before the
// next is sent. Confirmed batches survive attempt boundaries, so a retry
// resumes from the first unconfirmed batch and every batch executes at most
// once.
type DistributionExecutor struct {
	writer Writer
	cfg    ExecutorConfig
	log    *zap.Logger
}

func NewDistributionExecutor(writer Writer, cfg ExecutorConfig, log *zap.Logger) *DistributionExecutor {
	if log == nil {
		log = zap.NewNop()
	}
	return &DistributionExecutor{writer: writer, cfg: cfg.withDefaults(), log: log}
}

// ExecuteBatches runs all batches of one payout leg from the treasury.
// A payer other than the configured treasury is a wiring mistake and fails
// immediately without retry.
func (e *DistributionExecutor) ExecuteBatches(ctx context.Context, from, token common.Address, batches []Batch) Outcome {
	if from != e.cfg.Treasury {
		return Outcome{Err: configf("payer %s is not the treasury %s", from.Hex(), e.cfg.Treasury.Hex())}
	}
	if len(batches) == 0 {
		return Outcome{OK: true}
	}

	confirmed := 0
	var lastHash common.Hash
	var lastErr error

	for attempt := 1; attempt <= e.cfg.Attempts; attempt++ {
		if attempt > 1 {
			select {
			case <-ctx.Done():
				return Outcome{
					LastTxHash:       lastHash,
					BatchesConfirmed: confirmed,
					Err:              fmt.Errorf("%w: %d/%d batches confirmed: %v", ErrTransientChain, confirmed, len(batches), ctx.Err()),
				}
			case <-time.After(e.cfg.RetryDelay):
			}
		}

		// Capability checks flake on some RPC providers; re-check per attempt
		// rather than giving up on the first false.
		supported, err := e.writer.SupportsBatchedExecution(ctx, from)
		if err != nil || !supported {
			if err == nil {
				err = fmt.Errorf("treasury %s does not support batched execution", from.Hex())
			}
			lastErr = err
			e.log.Warn("batched execution capability check failed",
				zap.Int("attempt", attempt), zap.Error(err))
			continue
		}

		lastErr = nil
		for i := confirmed; i < len(batches); i++ {
			b := batches[i]
			transfers := make([]Transfer, len(b.Recipients))
			for j, rcpt := range b.Recipients {
				transfers[j] = Transfer{To: rcpt, Amount: b.AmountEach}
			}
			hash, err := e.writer.ExecuteBatch(ctx, from, token, transfers)
			if err != nil {
				lastErr = fmt.Errorf("batch %d submit: %w", i, err)
				break
			}
			status, err := e.writer.WaitForReceipt(ctx, hash)
			if err != nil {
				lastErr = fmt.Errorf("batch %d receipt: %w", i, err)
				break
			}
			if status != types.ReceiptStatusSuccessful {
				lastErr = fmt.Errorf("batch %d reverted (tx %s)", i, hash.Hex())
				break
			}
			confirmed = i + 1
			lastHash = hash
			e.log.Info("batch confirmed",
				zap.Int("batch", i),
				zap.Int("recipients", len(b.Recipients)),
				zap.String("tx", hash.Hex()))
		}
		if confirmed == len(batches) {
			return Outcome{OK: true, LastTxHash: lastHash, BatchesConfirmed: confirmed}
		}
		e.log.Warn("payout attempt incomplete",
			zap.Int("attempt", attempt),
			zap.Int("confirmed", confirmed),
			zap.Int("total", len(batches)),
			zap.Error(lastErr))
	}

	return Outcome{
		LastTxHash:       lastHash,
		BatchesConfirmed: confirmed,
		Err:              fmt.Errorf("%w: %d/%d batches confirmed after %d attempts: %v", ErrTransientChain, confirmed, len(batches), e.cfg.Attempts, lastErr),
	}
}
