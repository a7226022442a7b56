package chain

import (
	"bytes"
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	u256 "github.com/holiman/uint256"
	"go.uber.org/zap"

	"github.com/ligun0805/airdrop-engine/internal/airdrop"
)

// ABI of a minimal batch-execute delegate:
// execute((address,uint256,bytes)[] calls). The treasury EOA delegates its
// code to this contract via EIP-7702, so one transaction carries a whole
// batch of token transfers.
const executeDelegateABI = `[
  {"type":"function","stateMutability":"payable","name":"execute",
   "inputs":[{"name":"calls","type":"tuple[]","components":[
     {"name":"target","type":"address"},
     {"name":"value","type":"uint256"},
     {"name":"data","type":"bytes"}]}],"outputs":[]}
]`

// Delegation designator prefix per EIP-7702: 0xef0100 || delegate address.
var delegationPrefix = []byte{0xef, 0x01, 0x00}

var executeABI abi.ABI

func init() {
	ab, err := abi.JSON(strings.NewReader(executeDelegateABI))
	if err != nil {
		panic(err)
	}
	executeABI = ab
}

// executeCall mirrors the delegate's Call tuple.
type executeCall struct {
	Target common.Address
	Value  *big.Int
	Data   []byte
}

// EncodeERC20Transfer builds transfer(to, amount) calldata.
func EncodeERC20Transfer(to common.Address, amount *big.Int) []byte {
	selector := common.FromHex("0xa9059cbb")
	arg1 := common.LeftPadBytes(to.Bytes(), 32)
	arg2 := common.LeftPadBytes(amount.Bytes(), 32)
	return append(selector, append(arg1, arg2...)...)
}

// EncodeExecuteBatch packs one execute() call carrying amount transfers of
// token to each recipient.
func EncodeExecuteBatch(token common.Address, transfers []airdrop.Transfer) ([]byte, error) {
	calls := make([]executeCall, len(transfers))
	for i, t := range transfers {
		calls[i] = executeCall{
			Target: token,
			Value:  big.NewInt(0),
			Data:   EncodeERC20Transfer(t.To, t.Amount),
		}
	}
	return executeABI.Pack("execute", calls)
}

// WriterConfig tunes the chain-write side.
type WriterConfig struct {
	ReceiptTimeout time.Duration // bound on one receipt wait
	PollInterval   time.Duration
	GasPerTransfer uint64 // fallback gas budget per transfer instruction
}

func (c WriterConfig) withDefaults() WriterConfig {
	if c.ReceiptTimeout <= 0 {
		c.ReceiptTimeout = 90 * time.Second
	}
	if c.PollInterval <= 0 {
		c.PollInterval = time.Second
	}
	if c.GasPerTransfer == 0 {
		c.GasPerTransfer = 60_000
	}
	return c
}

// Writer executes batched transfers from the treasury EOA whose code is
// delegated (EIP-7702) to a batch-execute contract.
type Writer struct {
	client      *Client
	chainID     *big.Int
	treasury    common.Address
	treasuryKey *ecdsa.PrivateKey
	delegate    common.Address
	cfg         WriterConfig
	log         *zap.Logger
}

func NewWriter(client *Client, chainID *big.Int, treasuryKey *ecdsa.PrivateKey, delegate common.Address, cfg WriterConfig, log *zap.Logger) *Writer {
	if log == nil {
		log = zap.NewNop()
	}
	return &Writer{
		client:      client,
		chainID:     chainID,
		treasury:    crypto.PubkeyToAddress(treasuryKey.PublicKey),
		treasuryKey: treasuryKey,
		delegate:    delegate,
		cfg:         cfg.withDefaults(),
		log:         log,
	}
}

// Treasury is the payer address derived from the configured key.
func (w *Writer) Treasury() common.Address { return w.treasury }

// SupportsBatchedExecution reports whether addr carries a delegation
// designator pointing at the configured execute delegate.
func (w *Writer) SupportsBatchedExecution(ctx context.Context, addr common.Address) (bool, error) {
	code, err := w.client.ec.CodeAt(ctx, addr, nil)
	if err != nil {
		return false, fmt.Errorf("code at %s: %w", addr.Hex(), err)
	}
	if len(code) != 23 || !bytes.HasPrefix(code, delegationPrefix) {
		return false, nil
	}
	if w.delegate == (common.Address{}) {
		return true, nil
	}
	return common.BytesToAddress(code[3:]) == w.delegate, nil
}

// EnsureDelegation installs the delegation designator on the treasury when
// missing: one self-sponsored SetCodeTx carrying a single authorization.
func (w *Writer) EnsureDelegation(ctx context.Context) error {
	ok, err := w.SupportsBatchedExecution(ctx, w.treasury)
	if err != nil {
		return err
	}
	if ok {
		return nil
	}
	if w.delegate == (common.Address{}) {
		return errors.New("no execute delegate configured")
	}

	nonce, err := w.client.ec.PendingNonceAt(ctx, w.treasury)
	if err != nil {
		return fmt.Errorf("nonce: %w", err)
	}
	// Self-sponsored: the authorization nonce must be one past the tx nonce.
	auth, err := types.SignSetCode(w.treasuryKey, types.SetCodeAuthorization{
		ChainID: *u256.MustFromBig(w.chainID),
		Address: w.delegate,
		Nonce:   nonce + 1,
	})
	if err != nil {
		return fmt.Errorf("sign authorization: %w", err)
	}

	tip, cap, err := w.prepareFees(ctx)
	if err != nil {
		return err
	}
	tx := types.NewTx(&types.SetCodeTx{
		ChainID:   u256.MustFromBig(w.chainID),
		Nonce:     nonce,
		GasTipCap: u256.MustFromBig(tip),
		GasFeeCap: u256.MustFromBig(cap),
		Gas:       80_000,
		To:        w.treasury,
		Value:     u256.NewInt(0),
		AuthList:  []types.SetCodeAuthorization{auth},
	})
	signed, err := types.SignTx(tx, types.NewPragueSigner(w.chainID), w.treasuryKey)
	if err != nil {
		return fmt.Errorf("sign setcode tx: %w", err)
	}
	if err := w.client.ec.SendTransaction(ctx, signed); err != nil {
		return fmt.Errorf("send setcode tx: %w", err)
	}
	w.log.Info("delegation install submitted", zap.String("tx", signed.Hash().Hex()))
	status, err := w.WaitForReceipt(ctx, signed.Hash())
	if err != nil {
		return err
	}
	if status != types.ReceiptStatusSuccessful {
		return fmt.Errorf("setcode tx %s reverted", signed.Hash().Hex())
	}
	return nil
}

// ExecuteBatch submits one execute() call with len(transfers) transfer
// instructions and returns its hash without waiting for inclusion.
func (w *Writer) ExecuteBatch(ctx context.Context, treasury, token common.Address, transfers []airdrop.Transfer) (common.Hash, error) {
	if treasury != w.treasury {
		return common.Hash{}, fmt.Errorf("payer %s does not match treasury key %s", treasury.Hex(), w.treasury.Hex())
	}
	calldata, err := EncodeExecuteBatch(token, transfers)
	if err != nil {
		return common.Hash{}, fmt.Errorf("encode execute: %w", err)
	}

	nonce, err := w.client.ec.PendingNonceAt(ctx, w.treasury)
	if err != nil {
		return common.Hash{}, fmt.Errorf("nonce: %w", err)
	}
	tip, cap, err := w.prepareFees(ctx)
	if err != nil {
		return common.Hash{}, err
	}

	gas := uint64(len(transfers))*w.cfg.GasPerTransfer + 50_000
	if est, err := w.client.ec.EstimateGas(ctx, ethereum.CallMsg{
		From: w.treasury,
		To:   &w.treasury,
		Data: calldata,
	}); err == nil && est > 0 {
		gas = est + est/10
	} else if err != nil {
		w.log.Warn("estimateGas failed, using fallback", zap.Uint64("gas", gas), zap.Error(err))
	}

	tx := types.NewTx(&types.DynamicFeeTx{
		ChainID:   w.chainID,
		Nonce:     nonce,
		GasTipCap: tip,
		GasFeeCap: cap,
		Gas:       gas,
		To:        &w.treasury, // self-call runs the delegated execute code
		Value:     big.NewInt(0),
		Data:      calldata,
	})
	signed, err := types.SignTx(tx, types.LatestSignerForChainID(w.chainID), w.treasuryKey)
	if err != nil {
		return common.Hash{}, fmt.Errorf("sign: %w", err)
	}
	if err := w.client.ec.SendTransaction(ctx, signed); err != nil {
		return common.Hash{}, fmt.Errorf("send: %w", err)
	}
	return signed.Hash(), nil
}

// WaitForReceipt polls for the receipt, bounded by ReceiptTimeout. A stalled
// chain surfaces as an error instead of blocking forever.
func (w *Writer) WaitForReceipt(ctx context.Context, tx common.Hash) (uint64, error) {
	waitCtx, cancel := context.WithTimeout(ctx, w.cfg.ReceiptTimeout)
	defer cancel()
	for {
		rcpt, err := w.client.ec.TransactionReceipt(waitCtx, tx)
		if err == nil && rcpt != nil {
			return rcpt.Status, nil
		}
		if err != nil && !errors.Is(err, ethereum.NotFound) && waitCtx.Err() == nil {
			w.log.Debug("receipt poll error", zap.String("tx", tx.Hex()), zap.Error(err))
		}
		select {
		case <-waitCtx.Done():
			return 0, fmt.Errorf("receipt wait for %s: %w", tx.Hex(), waitCtx.Err())
		case <-time.After(w.cfg.PollInterval):
		}
	}
}

// prepareFees: tip defaults to 2 gwei, cap = max(2*baseFee+tip, 2*tip).
func (w *Writer) prepareFees(ctx context.Context) (tip, cap *big.Int, err error) {
	h, err := w.client.ec.HeaderByNumber(ctx, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("head: %w", err)
	}
	tip = new(big.Int).Mul(big.NewInt(2), big.NewInt(1_000_000_000))
	base := big.NewInt(0)
	if h.BaseFee != nil {
		base = h.BaseFee
	}
	cap = new(big.Int).Add(new(big.Int).Mul(base, big.NewInt(2)), tip)
	if t2 := new(big.Int).Mul(tip, big.NewInt(2)); t2.Cmp(cap) > 0 {
		cap = t2
	}
	return tip, cap, nil
}
