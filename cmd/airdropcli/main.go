package main

import (
	"bufio"
	"context"
	"fmt"
	"math/big"
	"os"
	"strings"

	"github.com/joho/godotenv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"go.uber.org/zap"

	"github.com/ligun0805/airdrop-engine/internal/airdrop"
	"github.com/ligun0805/airdrop-engine/internal/chain"
	"github.com/ligun0805/airdrop-engine/internal/config"
	"github.com/ligun0805/airdrop-engine/internal/store"
)

func main() {
	_ = godotenv.Load()
	_ = godotenv.Overload(".env.local")

	ctx := context.Background()
	cfg := config.Load()
	log := newLogger(cfg.LogLevel)
	defer log.Sync()

	treasuryPK := cfg.TreasuryPKHex
	if strings.TrimSpace(treasuryPK) == "" {
		treasuryPK = readPassword("Treasury private key: ")
	}
	key, err := crypto.HexToECDSA(strings.TrimPrefix(strings.TrimSpace(treasuryPK), "0x"))
	must(err, "treasury key")
	treasury := crypto.PubkeyToAddress(key.PublicKey)

	client, err := chain.Dial(ctx, cfg.RPCURL, log)
	must(err, "dial RPC")
	defer client.Close()

	var chainID *big.Int
	if cfg.ChainID != "" {
		chainID = mustBig(cfg.ChainID)
	} else {
		chainID, err = client.Eth().ChainID(ctx)
		must(err, "chain id")
	}

	var delegate common.Address
	if cfg.DelegateHex != "" {
		if !airdrop.IsValidAddress(cfg.DelegateHex) {
			die("DELEGATE_ADDRESS is not a valid address")
		}
		delegate = common.HexToAddress(cfg.DelegateHex)
	}
	var adminTax common.Address
	if cfg.AdminTaxAddressHex != "" {
		if !airdrop.IsValidAddress(cfg.AdminTaxAddressHex) {
			die("ADMIN_TAX_ADDRESS is not a valid address")
		}
		adminTax = common.HexToAddress(cfg.AdminTaxAddressHex)
	}

	writer := chain.NewWriter(client, chainID, key, delegate, chain.WriterConfig{
		ReceiptTimeout: cfg.ReceiptTimeout,
	}, log)

	var repo airdrop.Repository
	if cfg.DBPath != "" {
		db, err := store.OpenSQLite(cfg.DBPath)
		must(err, "open store")
		defer db.Close()
		repo = db
	} else {
		repo = store.NewMemory()
	}

	discovery := airdrop.NewHolderDiscovery(client, airdrop.DiscoveryConfig{
		Timeout:       cfg.DiscoveryTimeout,
		Attempts:      cfg.DiscoveryAttempts,
		RetryDelay:    cfg.DiscoveryRetryDelay,
		ReadBatchSize: cfg.ReadBatchSize,
		LogWindow:     cfg.LogWindowBlocks,
	}, log)
	resolver := airdrop.NewRecipientResolver(treasury, loadIdentityMap(log), log)
	executor := airdrop.NewDistributionExecutor(writer, airdrop.ExecutorConfig{
		Treasury:   treasury,
		Attempts:   cfg.ExecAttempts,
		RetryDelay: cfg.ExecRetryDelay,
	}, log)
	svc := airdrop.NewService(repo, discovery, resolver, executor, writer, airdrop.ServiceConfig{
		Treasury:        treasury,
		AdminTaxAddress: adminTax,
		BatchCapacity:   cfg.BatchCapacity,
		GraceDelay:      cfg.GraceDelay,
	}, log)
	svc.SetObserver(func(id string, ok bool, runErr error) {
		if ok {
			fmt.Printf("\n[done] airdrop %s distributed\n", id)
		} else {
			fmt.Printf("\n[fail] airdrop %s distribution failed: %v\n", id, runErr)
		}
	})

	bal, _ := client.Eth().BalanceAt(ctx, treasury, nil)
	fmt.Println("=== CONFIG (.env) ===")
	fmt.Println("RPC_URL            :", cfg.RPCURL)
	fmt.Println("CHAIN_ID           :", chainID.String())
	fmt.Println("TREASURY           :", treasury.Hex())
	fmt.Println("  -> ETH balance   :", formatEther(bal))
	fmt.Println("DELEGATE (7702)    :", delegate.Hex())
	fmt.Println("ADMIN_TAX_ADDRESS  :", adminTax.Hex())
	fmt.Println("HOLDER_TAX_PERCENT :", cfg.HolderTaxPercent)
	fmt.Println("ADMIN_TAX_PERCENT  :", cfg.AdminTaxPercent)
	fmt.Println("BATCH_CAPACITY     :", cfg.BatchCapacity)
	fmt.Println("=====================")

	reader := bufio.NewReader(os.Stdin)
	for {
		cmd := readLine(reader, "\ncommand (create/deposit/join/launch/cancel/status/list/delegate/quit): ")
		switch strings.ToLower(cmd) {
		case "delegate":
			if err := writer.EnsureDelegation(ctx); err != nil {
				fmt.Println("  error:", err)
			} else {
				fmt.Println("  treasury delegation active")
			}
		case "create":
			cmdCreate(ctx, reader, svc, cfg, treasury)
		case "deposit":
			id := readLine(reader, "airdrop id: ")
			tx := readLine(reader, "deposit tx hash: ")
			a, err := svc.ConfirmDeposit(ctx, id, common.HexToHash(tx))
			report(a, err)
		case "join":
			id := readLine(reader, "airdrop id: ")
			ident := readLine(reader, "wallet or identity: ")
			a, err := svc.Join(ctx, id, ident)
			report(a, err)
		case "launch":
			id := readLine(reader, "airdrop id: ")
			a, err := svc.Launch(ctx, id)
			report(a, err)
		case "cancel":
			id := readLine(reader, "airdrop id: ")
			a, err := svc.Cancel(ctx, id)
			report(a, err)
		case "status":
			id := readLine(reader, "airdrop id: ")
			a, err := svc.Get(ctx, id)
			report(a, err)
		case "list":
			list, err := svc.ListByCreator(ctx, treasury)
			if err != nil {
				fmt.Println("  error:", err)
				continue
			}
			for _, a := range list {
				fmt.Printf("  %s  %-12s  %d recipients  net=%s\n", a.ID, a.Status, a.RecipientCount, a.NetAmount)
			}
		case "quit", "exit", "q":
			return
		default:
			fmt.Println("  unknown command")
		}
	}
}

func cmdCreate(ctx context.Context, reader *bufio.Reader, svc *airdrop.Service, cfg config.Settings, treasury common.Address) {
	typ := airdrop.Type(readLine(reader, "type (scoped/open): "))
	var collection common.Address
	joinMode := false
	if typ == airdrop.TypeScoped {
		c := readLine(reader, "NFT collection address: ")
		if !airdrop.IsValidAddress(c) {
			fmt.Println("  [!] invalid collection address")
			return
		}
		collection = common.HexToAddress(c)
		joinMode = yes(readLine(reader, "allow joins (y/n): "))
	}
	cur := readLine(reader, "token contract: ")
	if !airdrop.IsValidAddress(cur) {
		fmt.Println("  [!] invalid token address")
		return
	}
	decimals := uint8(atoi(readLine(reader, "token decimals: "), 18))
	amount, err := toBaseUnits(readLine(reader, "total amount (tokens): "), decimals)
	if err != nil {
		fmt.Println("  [!] bad amount:", err)
		return
	}
	maxP := 0
	if typ == airdrop.TypeOpen || joinMode {
		maxP = atoi(readLine(reader, "max participants (0 = unbounded): "), 0)
	}
	a, err := svc.Create(ctx, airdrop.CreateRequest{
		Creator:          treasury,
		Type:             typ,
		JoinMode:         joinMode,
		Collection:       collection,
		Currency:         common.HexToAddress(cur),
		CurrencyDecimals: decimals,
		TotalAmount:      amount,
		TaxPercent:       cfg.HolderTaxPercent,
		AdminTaxPercent:  cfg.AdminTaxPercent,
		MaxParticipants:  maxP,
	})
	report(a, err)
}

func report(a *airdrop.Airdrop, err error) {
	if err != nil {
		fmt.Println("  error:", err)
		return
	}
	fmt.Printf("  id=%s status=%s recipients=%d per-recipient=%s\n",
		a.ID, a.Status, a.RecipientCount, a.AmountPerRecipient)
}

// loadIdentityMap builds a wallet resolver from IDENTITY_MAP entries of the
// form "identity=0xaddr,identity2=0xaddr2". Unknown identities stay
// unresolved.
func loadIdentityMap(log *zap.Logger) airdrop.WalletResolver {
	raw := strings.TrimSpace(os.Getenv("IDENTITY_MAP"))
	m := make(map[string]common.Address)
	for _, pair := range strings.Split(raw, ",") {
		kv := strings.SplitN(strings.TrimSpace(pair), "=", 2)
		if len(kv) != 2 || !airdrop.IsValidAddress(kv[1]) {
			continue
		}
		m[kv[0]] = common.HexToAddress(kv[1])
	}
	if len(m) > 0 {
		log.Info("identity map loaded", zap.Int("entries", len(m)))
	}
	return airdrop.WalletResolverFunc(func(_ context.Context, identity string) (common.Address, bool, error) {
		addr, ok := m[identity]
		return addr, ok, nil
	})
}

func newLogger(level string) *zap.Logger {
	cfg := zap.NewDevelopmentConfig()
	if err := cfg.Level.UnmarshalText([]byte(level)); err != nil {
		cfg.Level.SetLevel(zap.InfoLevel)
	}
	log, err := cfg.Build()
	must(err, "logger")
	return log
}
