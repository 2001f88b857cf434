/*
Package sqlite provides the SQLite-backed write-receipt store.

PURPOSE:
  Confirmed writes (purchase, renew, cancel) leave no trace off-chain once
  the transaction is mined; the receipt store keeps an append-only audit
  log of what this service submitted on whose behalf. Derived policy state
  is never stored here - the ledger stays authoritative and status is
  re-resolved on every read.

APPEND-ONLY ENFORCEMENT:
  - No UPDATE or DELETE statements on receipts
  - Premium amounts stored as minor-unit decimal text, never floats

WAL MODE:
  SQLite is opened with WAL (Write-Ahead Logging) so readers don't block
  the single writer.

USAGE:
  store, err := sqlite.New("./data/coverage.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

SEE ALSO:
  - api/handlers.go: Records a receipt after each confirmed write
  - ledger/gateway.go: The Receipt the rows are built from
*/
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"math/big"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/warp/coverage-engine/insurance"
)

// Action identifies which write a receipt records.
type Action string

const (
	ActionPurchase Action = "purchase"
	ActionRenew    Action = "renew"
	ActionCancel   Action = "cancel"
)

// Receipt is one confirmed write.
type Receipt struct {
	ID          string
	Address     insurance.Address
	Action      Action
	PolicyID    insurance.PolicyID
	TxHash      string
	BlockNumber uint64
	Premium     *big.Int // minor units; zero for cancels
	CreatedAt   time.Time
}

// Store persists receipts in SQLite.
type Store struct {
	db *sql.DB
}

// New opens (or creates) the receipt database. Use ":memory:" for tests.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	-- Write receipts (append-only audit log)
	CREATE TABLE IF NOT EXISTS receipts (
		id TEXT PRIMARY KEY,
		address TEXT NOT NULL,
		action TEXT NOT NULL,
		policy_id INTEGER NOT NULL,
		tx_hash TEXT NOT NULL,
		block_number INTEGER NOT NULL,
		premium_minor TEXT NOT NULL,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_receipts_address
		ON receipts(address, created_at);
	CREATE INDEX IF NOT EXISTS idx_receipts_policy
		ON receipts(policy_id);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Save appends a receipt. The id is assigned here if empty.
func (s *Store) Save(ctx context.Context, r Receipt) (Receipt, error) {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now().UTC()
	}
	premium := "0"
	if r.Premium != nil {
		premium = r.Premium.String()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO receipts (id, address, action, policy_id, tx_hash, block_number, premium_minor, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.Address.String(), string(r.Action), uint64(r.PolicyID),
		r.TxHash, r.BlockNumber, premium, r.CreatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return Receipt{}, fmt.Errorf("failed to save receipt: %w", err)
	}
	return r, nil
}

// ListByAddress returns a holder's receipts, newest first.
func (s *Store) ListByAddress(ctx context.Context, addr insurance.Address) ([]Receipt, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, address, action, policy_id, tx_hash, block_number, premium_minor, created_at
		FROM receipts
		WHERE address = ?
		ORDER BY created_at DESC`,
		addr.String(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list receipts: %w", err)
	}
	defer rows.Close()

	var receipts []Receipt
	for rows.Next() {
		r, err := scanReceipt(rows)
		if err != nil {
			return nil, err
		}
		receipts = append(receipts, r)
	}
	return receipts, rows.Err()
}

// ListByPolicy returns the write history of one policy, oldest first.
func (s *Store) ListByPolicy(ctx context.Context, id insurance.PolicyID) ([]Receipt, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, address, action, policy_id, tx_hash, block_number, premium_minor, created_at
		FROM receipts
		WHERE policy_id = ?
		ORDER BY created_at ASC`,
		uint64(id),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list receipts: %w", err)
	}
	defer rows.Close()

	var receipts []Receipt
	for rows.Next() {
		r, err := scanReceipt(rows)
		if err != nil {
			return nil, err
		}
		receipts = append(receipts, r)
	}
	return receipts, rows.Err()
}

func scanReceipt(rows *sql.Rows) (Receipt, error) {
	var (
		r         Receipt
		address   string
		action    string
		policyID  uint64
		premium   string
		createdAt string
	)
	if err := rows.Scan(&r.ID, &address, &action, &policyID, &r.TxHash, &r.BlockNumber, &premium, &createdAt); err != nil {
		return Receipt{}, fmt.Errorf("failed to scan receipt: %w", err)
	}

	r.Address = insurance.Address(address)
	r.Action = Action(action)
	r.PolicyID = insurance.PolicyID(policyID)

	value, ok := new(big.Int).SetString(premium, 10)
	if !ok {
		return Receipt{}, fmt.Errorf("malformed premium %q in receipt %s", premium, r.ID)
	}
	r.Premium = value

	t, err := time.Parse(time.RFC3339Nano, createdAt)
	if err != nil {
		return Receipt{}, fmt.Errorf("malformed created_at in receipt %s: %w", r.ID, err)
	}
	r.CreatedAt = t
	return r, nil
}
