package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	_ "github.com/glebarez/sqlite"

	"github.com/ethereum/go-ethereum/common"

	"github.com/ligun0805/airdrop-engine/internal/airdrop"
)

// SQLite persists airdrop records in a single table. Amounts are stored as
// decimal strings (token amounts exceed int64), address lists as JSON arrays.
type SQLite struct {
	db *sql.DB
}

// ErrPathRequired is returned when the backing store path is missing.
var ErrPathRequired = errors.New("sqlite store path must be configured")

const schema = `
CREATE TABLE IF NOT EXISTS airdrops (
    id                  TEXT PRIMARY KEY,
    creator             TEXT NOT NULL,
    type                TEXT NOT NULL,
    join_mode           INTEGER NOT NULL,
    collection          TEXT NOT NULL,
    currency            TEXT NOT NULL,
    currency_decimals   INTEGER NOT NULL,
    total_amount        TEXT NOT NULL,
    tax_percent         REAL NOT NULL,
    tax_amount          TEXT NOT NULL,
    admin_tax_percent   REAL NOT NULL,
    admin_tax_amount    TEXT NOT NULL,
    net_amount          TEXT NOT NULL,
    amount_per_recipient TEXT NOT NULL,
    recipient_count     INTEGER NOT NULL,
    participants        TEXT NOT NULL,
    tax_holders         TEXT NOT NULL,
    max_participants    INTEGER NOT NULL,
    status              TEXT NOT NULL,
    deposit_tx          TEXT NOT NULL,
    distribution_tx     TEXT NOT NULL,
    tax_distribution_tx TEXT NOT NULL,
    admin_tax_distribution_tx TEXT NOT NULL,
    created_at          INTEGER NOT NULL,
    updated_at          INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_airdrops_creator ON airdrops(creator);
CREATE INDEX IF NOT EXISTS idx_airdrops_status ON airdrops(status);
`

// OpenSQLite initialises the backing store at path (a sqlite DSN).
func OpenSQLite(path string) (*SQLite, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return nil, ErrPathRequired
	}
	db, err := sql.Open("sqlite", trimmed)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &SQLite{db: db}, nil
}

// Close releases database resources.
func (s *SQLite) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

const insertSQL = `INSERT INTO airdrops (
    id, creator, type, join_mode, collection, currency, currency_decimals,
    total_amount, tax_percent, tax_amount, admin_tax_percent, admin_tax_amount,
    net_amount, amount_per_recipient, recipient_count, participants, tax_holders,
    max_participants, status, deposit_tx, distribution_tx, tax_distribution_tx,
    admin_tax_distribution_tx, created_at, updated_at
) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`

func (s *SQLite) Create(ctx context.Context, a *airdrop.Airdrop) error {
	_, err := s.db.ExecContext(ctx, insertSQL, flatten(a)...)
	if err != nil {
		return fmt.Errorf("insert airdrop: %w", err)
	}
	return nil
}

const updateSQL = `UPDATE airdrops SET
    creator=?, type=?, join_mode=?, collection=?, currency=?, currency_decimals=?,
    total_amount=?, tax_percent=?, tax_amount=?, admin_tax_percent=?, admin_tax_amount=?,
    net_amount=?, amount_per_recipient=?, recipient_count=?, participants=?, tax_holders=?,
    max_participants=?, status=?, deposit_tx=?, distribution_tx=?, tax_distribution_tx=?,
    admin_tax_distribution_tx=?, created_at=?, updated_at=?
  WHERE id=?`

func (s *SQLite) Update(ctx context.Context, a *airdrop.Airdrop) error {
	args := flatten(a)
	// Move id from first positional slot to the WHERE clause.
	args = append(args[1:], args[0])
	res, err := s.db.ExecContext(ctx, updateSQL, args...)
	if err != nil {
		return fmt.Errorf("update airdrop: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return airdrop.ErrNotFound
	}
	return nil
}

const selectSQL = `SELECT
    id, creator, type, join_mode, collection, currency, currency_decimals,
    total_amount, tax_percent, tax_amount, admin_tax_percent, admin_tax_amount,
    net_amount, amount_per_recipient, recipient_count, participants, tax_holders,
    max_participants, status, deposit_tx, distribution_tx, tax_distribution_tx,
    admin_tax_distribution_tx, created_at, updated_at
  FROM airdrops`

func (s *SQLite) Get(ctx context.Context, id string) (*airdrop.Airdrop, error) {
	row := s.db.QueryRowContext(ctx, selectSQL+" WHERE id=?", id)
	a, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, airdrop.ErrNotFound
	}
	return a, err
}

func (s *SQLite) ListByCreator(ctx context.Context, creator common.Address) ([]*airdrop.Airdrop, error) {
	rows, err := s.db.QueryContext(ctx, selectSQL+" WHERE creator=? ORDER BY created_at, id",
		strings.ToLower(creator.Hex()))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collect(rows)
}

func (s *SQLite) ListOpenJoinable(ctx context.Context) ([]*airdrop.Airdrop, error) {
	rows, err := s.db.QueryContext(ctx, selectSQL+
		" WHERE status=? AND join_mode=1 AND (max_participants=0 OR recipient_count < max_participants)"+
		" ORDER BY created_at, id", string(airdrop.StatusFunded))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collect(rows)
}

func flatten(a *airdrop.Airdrop) []any {
	return []any{
		a.ID,
		strings.ToLower(a.CreatorAddress.Hex()),
		string(a.Type),
		boolToInt(a.JoinMode),
		strings.ToLower(a.Collection.Hex()),
		strings.ToLower(a.Currency.Hex()),
		a.CurrencyDecimals,
		bigString(a.TotalAmount),
		a.TaxPercent,
		bigString(a.TaxAmount),
		a.AdminTaxPercent,
		bigString(a.AdminTaxAmount),
		bigString(a.NetAmount),
		bigString(a.AmountPerRecipient),
		a.RecipientCount,
		addrsJSON(a.Participants),
		addrsJSON(a.TaxHolders),
		a.MaxParticipants,
		string(a.Status),
		a.DepositTxHash.Hex(),
		a.DistributionTxHash.Hex(),
		a.TaxDistributionTxHash.Hex(),
		a.AdminTaxDistributionTxHash.Hex(),
		a.CreatedAt.UnixMilli(),
		a.UpdatedAt.UnixMilli(),
	}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*airdrop.Airdrop, error) {
	var (
		a                                            airdrop.Airdrop
		typ, status                                  string
		joinMode                                     int
		creator, collection, currency                string
		total, tax, adminTax, net, perRecipient      string
		participants, taxHolders                     string
		depositTx, distTx, taxDistTx, adminTaxDistTx string
		createdAt, updatedAt                         int64
	)
	err := row.Scan(
		&a.ID, &creator, &typ, &joinMode, &collection, &currency, &a.CurrencyDecimals,
		&total, &a.TaxPercent, &tax, &a.AdminTaxPercent, &adminTax,
		&net, &perRecipient, &a.RecipientCount, &participants, &taxHolders,
		&a.MaxParticipants, &status, &depositTx, &distTx, &taxDistTx,
		&adminTaxDistTx, &createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}
	a.CreatorAddress = common.HexToAddress(creator)
	a.Type = airdrop.Type(typ)
	a.JoinMode = joinMode != 0
	a.Collection = common.HexToAddress(collection)
	a.Currency = common.HexToAddress(currency)
	if a.TotalAmount, err = parseBig(total); err != nil {
		return nil, err
	}
	if a.TaxAmount, err = parseBig(tax); err != nil {
		return nil, err
	}
	if a.AdminTaxAmount, err = parseBig(adminTax); err != nil {
		return nil, err
	}
	if a.NetAmount, err = parseBig(net); err != nil {
		return nil, err
	}
	if a.AmountPerRecipient, err = parseBig(perRecipient); err != nil {
		return nil, err
	}
	if a.Participants, err = parseAddrs(participants); err != nil {
		return nil, err
	}
	if a.TaxHolders, err = parseAddrs(taxHolders); err != nil {
		return nil, err
	}
	a.Status = airdrop.Status(status)
	a.DepositTxHash = common.HexToHash(depositTx)
	a.DistributionTxHash = common.HexToHash(distTx)
	a.TaxDistributionTxHash = common.HexToHash(taxDistTx)
	a.AdminTaxDistributionTxHash = common.HexToHash(adminTaxDistTx)
	a.CreatedAt = time.UnixMilli(createdAt).UTC()
	a.UpdatedAt = time.UnixMilli(updatedAt).UTC()
	return &a, nil
}

func collect(rows *sql.Rows) ([]*airdrop.Airdrop, error) {
	out := make([]*airdrop.Airdrop, 0)
	for rows.Next() {
		a, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func bigString(x *big.Int) string {
	if x == nil {
		return "0"
	}
	return x.String()
}

func parseBig(s string) (*big.Int, error) {
	z, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, fmt.Errorf("malformed amount %q", s)
	}
	return z, nil
}

func addrsJSON(addrs []common.Address) string {
	hexes := make([]string, len(addrs))
	for i, a := range addrs {
		hexes[i] = strings.ToLower(a.Hex())
	}
	b, _ := json.Marshal(hexes)
	return string(b)
}

func parseAddrs(s string) ([]common.Address, error) {
	var hexes []string
	if err := json.Unmarshal([]byte(s), &hexes); err != nil {
		return nil, fmt.Errorf("malformed address list: %w", err)
	}
	out := make([]common.Address, len(hexes))
	for i, h := range hexes {
		out[i] = common.HexToAddress(h)
	}
	return out, nil
}
