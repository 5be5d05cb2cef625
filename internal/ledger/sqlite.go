package ledger

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	apperrors "synth-exchange/internal/errors"
)

// SQLite is a ledger persisted in its own SQLite database. Balances are
// stored as integer cents.
type SQLite struct {
	db       *sql.DB
	starting int64
}

// NewSQLite opens or creates the ledger database at dbPath.
func NewSQLite(dbPath string, startingBalance float64) (*SQLite, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000&_txlock=immediate")
	if err != nil {
		return nil, fmt.Errorf("failed to open ledger database: %w", err)
	}
	db.SetMaxOpenConns(4)
	db.SetConnMaxLifetime(time.Hour)

	schema := `
	CREATE TABLE IF NOT EXISTS balances (
		user_id TEXT PRIMARY KEY,
		cents INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS entries (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id TEXT NOT NULL,
		cents INTEGER NOT NULL,
		memo TEXT NOT NULL,
		created_at INTEGER NOT NULL
	);
	`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize ledger schema: %w", err)
	}

	return &SQLite{db: db, starting: toCents(startingBalance)}, nil
}

// Close closes the database connection.
func (l *SQLite) Close() error {
	return l.db.Close()
}

// Balance returns the user's balance, granting the starting balance on first use.
func (l *SQLite) Balance(ctx context.Context, userID string) (float64, error) {
	var cents int64
	err := l.db.QueryRowContext(ctx, "SELECT cents FROM balances WHERE user_id = ?", userID).Scan(&cents)
	if err == sql.ErrNoRows {
		return fromCents(l.starting), nil
	}
	if err != nil {
		return 0, fmt.Errorf("%w: %v", apperrors.ErrLedgerFailure, err)
	}
	return fromCents(cents), nil
}

// Adjust applies amount to the user's balance in one transaction.
func (l *SQLite) Adjust(ctx context.Context, userID string, amount float64, memo string) error {
	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: %v", apperrors.ErrLedgerFailure, err)
	}
	defer tx.Rollback()

	cents := l.starting
	err = tx.QueryRowContext(ctx, "SELECT cents FROM balances WHERE user_id = ?", userID).Scan(&cents)
	if err != nil && err != sql.ErrNoRows {
		return fmt.Errorf("%w: %v", apperrors.ErrLedgerFailure, err)
	}

	delta := toCents(amount)
	if cents+delta < 0 {
		return fmt.Errorf("%w: balance %.2f, adjustment %.2f", apperrors.ErrInsufficientFunds, fromCents(cents), fromCents(delta))
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO balances (user_id, cents) VALUES (?, ?)
		ON CONFLICT(user_id) DO UPDATE SET cents = excluded.cents
	`, userID, cents+delta)
	if err != nil {
		return fmt.Errorf("%w: %v", apperrors.ErrLedgerFailure, err)
	}
	_, err = tx.ExecContext(ctx, "INSERT INTO entries (user_id, cents, memo, created_at) VALUES (?, ?, ?, ?)",
		userID, delta, memo, time.Now().UnixNano())
	if err != nil {
		return fmt.Errorf("%w: %v", apperrors.ErrLedgerFailure, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: %v", apperrors.ErrLedgerFailure, err)
	}
	return nil
}

func toCents(v float64) int64 {
	return decimal.NewFromFloat(v).Round(2).Shift(2).IntPart()
}

func fromCents(c int64) float64 {
	return decimal.New(c, -2).InexactFloat64()
}
