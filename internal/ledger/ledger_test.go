package ledger

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	apperrors "synth-exchange/internal/errors"
)

func newLedgers(t *testing.T) map[string]Ledger {
	t.Helper()
	sq, err := NewSQLite(filepath.Join(t.TempDir(), "ledger.db"), 1000)
	if err != nil {
		t.Fatalf("NewSQLite: %v", err)
	}
	t.Cleanup(func() { sq.Close() })
	return map[string]Ledger{
		"paper":  NewPaper(1000),
		"sqlite": sq,
	}
}

func TestLedgerAdjust(t *testing.T) {
	ctx := context.Background()

	for name, l := range newLedgers(t) {
		t.Run(name, func(t *testing.T) {
			if b, err := l.Balance(ctx, "u1"); err != nil || b != 1000 {
				t.Fatalf("starting balance = %v, %v; want 1000", b, err)
			}

			if err := l.Adjust(ctx, "u1", -100.505, "buy CY"); err != nil {
				t.Fatalf("debit: %v", err)
			}
			if err := l.Adjust(ctx, "u1", 50.25, "sell CY"); err != nil {
				t.Fatalf("credit: %v", err)
			}
			b, _ := l.Balance(ctx, "u1")
			if b != 949.74 {
				t.Errorf("balance = %v, want 949.74", b)
			}

			err := l.Adjust(ctx, "u1", -5000, "too much")
			if !errors.Is(err, apperrors.ErrInsufficientFunds) {
				t.Fatalf("overdraft err = %v, want ErrInsufficientFunds", err)
			}
			if after, _ := l.Balance(ctx, "u1"); after != b {
				t.Errorf("failed debit changed balance to %v", after)
			}

			if other, _ := l.Balance(ctx, "u2"); other != 1000 {
				t.Errorf("second user balance = %v, want 1000", other)
			}
		})
	}
}

func TestPaperCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	p := NewPaper(10)
	if err := p.Adjust(ctx, "u1", 1, "x"); !errors.Is(err, apperrors.ErrLedgerFailure) {
		t.Fatalf("err = %v, want ErrLedgerFailure", err)
	}
	if len(p.History()) != 0 {
		t.Errorf("cancelled adjust recorded history")
	}
}

func TestRound2(t *testing.T) {
	tests := []struct {
		in   float64
		want float64
	}{
		{1.005, 1.01},
		{100.504, 100.5},
		{-2.675, -2.68},
		{0, 0},
	}
	for _, tt := range tests {
		if got := Round2(tt.in); got != tt.want {
			t.Errorf("Round2(%v) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
