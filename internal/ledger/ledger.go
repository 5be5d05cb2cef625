// Package ledger provides the external balance service the trading engine
// debits and credits.
package ledger

import (
	"context"
	"fmt"
	"sync"

	"github.com/shopspring/decimal"

	apperrors "synth-exchange/internal/errors"
)

// Ledger holds user cash balances.
type Ledger interface {
	Balance(ctx context.Context, userID string) (float64, error)
	// Adjust applies a signed amount. A debit that would take the balance
	// below zero fails with ErrInsufficientFunds and changes nothing.
	Adjust(ctx context.Context, userID string, amount float64, memo string) error
}

// Round2 rounds a money amount to cents.
func Round2(v float64) float64 {
	return decimal.NewFromFloat(v).Round(2).InexactFloat64()
}

// Paper is an in-memory ledger that grants every new user a starting balance.
type Paper struct {
	mu       sync.Mutex
	starting decimal.Decimal
	balances map[string]decimal.Decimal
	history  []Entry
}

// Entry is one applied adjustment.
type Entry struct {
	UserID string
	Amount float64
	Memo   string
}

// NewPaper creates a paper ledger.
func NewPaper(startingBalance float64) *Paper {
	return &Paper{
		starting: decimal.NewFromFloat(startingBalance).Round(2),
		balances: make(map[string]decimal.Decimal),
	}
}

func (p *Paper) balance(userID string) decimal.Decimal {
	b, ok := p.balances[userID]
	if !ok {
		b = p.starting
		p.balances[userID] = b
	}
	return b
}

// Balance returns the user's balance.
func (p *Paper) Balance(ctx context.Context, userID string) (float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, apperrors.Wrap(apperrors.ErrLedgerFailure, err.Error())
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.balance(userID).InexactFloat64(), nil
}

// Adjust applies amount to the user's balance.
func (p *Paper) Adjust(ctx context.Context, userID string, amount float64, memo string) error {
	if err := ctx.Err(); err != nil {
		return apperrors.Wrap(apperrors.ErrLedgerFailure, err.Error())
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	delta := decimal.NewFromFloat(amount).Round(2)
	next := p.balance(userID).Add(delta)
	if next.IsNegative() {
		return fmt.Errorf("%w: balance %s, adjustment %s", apperrors.ErrInsufficientFunds, p.balance(userID).StringFixed(2), delta.StringFixed(2))
	}
	p.balances[userID] = next
	p.history = append(p.history, Entry{UserID: userID, Amount: delta.InexactFloat64(), Memo: memo})
	return nil
}

// History returns a copy of every applied adjustment, oldest first.
func (p *Paper) History() []Entry {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]Entry(nil), p.history...)
}
