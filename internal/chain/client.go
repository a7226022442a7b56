package chain

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
	"go.uber.org/zap"

	"github.com/ligun0805/airdrop-engine/internal/airdrop"
)

// Client implements the chain-read collaborator on top of one JSON-RPC
// endpoint.
type Client struct {
	ec  *ethclient.Client
	rc  *rpc.Client
	log *zap.Logger
}

// Dial connects to rpcURL.
func Dial(ctx context.Context, rpcURL string, log *zap.Logger) (*Client, error) {
	if log == nil {
		log = zap.NewNop()
	}
	rc, err := rpc.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("dial rpc: %w", err)
	}
	return &Client{ec: ethclient.NewClient(rc), rc: rc, log: log}, nil
}

// Eth exposes the underlying ethclient for callers that need raw access
// (balance and chain-id reads in the CLI).
func (c *Client) Eth() *ethclient.Client { return c.ec }

func (c *Client) Close() { c.rc.Close() }

func isRateLimitError(err error) bool {
	if err == nil {
		return false
	}
	s := err.Error()
	return strings.Contains(s, "Too Many Requests") || strings.Contains(s, "-32005")
}

// Call performs eth_call with small exponential backoff.
func (c *Client) Call(ctx context.Context, to common.Address, data []byte) ([]byte, error) {
	const maxAttempts = 3
	backoff := 200 * time.Millisecond
	var lastErr error
	msg := ethereum.CallMsg{To: &to, Data: data}
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		ret, err := c.ec.CallContract(ctx, msg, nil)
		if err == nil {
			return ret, nil
		}
		lastErr = err
		if attempt < maxAttempts {
			time.Sleep(backoff)
			if isRateLimitError(err) {
				backoff *= 2
			}
		}
	}
	return nil, lastErr
}

// BatchCall sends elems as one JSON-RPC batch of eth_call requests. A revert
// or error on one element lands in that element's Err; the batch itself only
// fails on transport errors.
func (c *Client) BatchCall(ctx context.Context, elems []airdrop.BatchElem) error {
	if len(elems) == 0 {
		return nil
	}
	batch := make([]rpc.BatchElem, len(elems))
	results := make([]hexutil.Bytes, len(elems))
	for i, el := range elems {
		arg := map[string]any{
			"to":   el.To,
			"data": hexutil.Bytes(el.Data),
		}
		batch[i] = rpc.BatchElem{
			Method: "eth_call",
			Args:   []any{arg, "latest"},
			Result: &results[i],
		}
	}
	if err := c.rc.BatchCallContext(ctx, batch); err != nil {
		return fmt.Errorf("batch call: %w", err)
	}
	for i := range elems {
		elems[i].Err = batch[i].Error
		elems[i].Result = results[i]
	}
	return nil
}

func (c *Client) FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error) {
	return c.ec.FilterLogs(ctx, q)
}

func (c *Client) BlockNumber(ctx context.Context) (uint64, error) {
	return c.ec.BlockNumber(ctx)
}
