package simulation

import (
	"math"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"synth-exchange/internal/config"
	"synth-exchange/internal/models"
)

func newTestPressure() *PressureLedger {
	cfg := config.Default()
	return NewPressureLedger(cfg.Simulation, cfg.Trading)
}

func TestProperty_DecayShrinksPressure(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)
	ledger := newTestPressure()

	properties.Property("|pressure| never grows without trades", prop.ForAll(
		func(pressure float64, ticks int) bool {
			s := &models.Stock{MarketPressure: pressure}
			for i := 0; i < ticks; i++ {
				before := math.Abs(s.MarketPressure)
				ledger.Decay(s)
				if math.Abs(s.MarketPressure) > before {
					return false
				}
			}
			return true
		},
		gen.Float64Range(-1e7, 1e7),
		gen.IntRange(1, 50),
	))

	properties.TestingRun(t)
}

func TestDecayConvertsPendingSell(t *testing.T) {
	ledger := newTestPressure()
	s := &models.Stock{MarketPressure: 0, PendingSell: 100}

	ledger.Decay(s)

	// 100 * 0.9 = 90, 5% of that converts.
	if got, want := s.PendingSell, 85.5; math.Abs(got-want) > 1e-9 {
		t.Errorf("pending = %v, want %v", got, want)
	}
	if got, want := s.MarketPressure, -4.5; math.Abs(got-want) > 1e-9 {
		t.Errorf("pressure = %v, want %v", got, want)
	}
}

func TestBuyThenProfitableSellPressure(t *testing.T) {
	ledger := newTestPressure()
	s := models.NewStock("X", "X", "Tech", 100, 0.02)

	delta := ledger.ApplyBuy(s, 100_000)
	if delta <= 0 || s.MarketPressure <= 0 {
		t.Fatalf("buy should raise pressure, delta=%v", delta)
	}
	if s.PendingSell <= delta {
		t.Errorf("pending %v should exceed immediate delta %v", s.PendingSell, delta)
	}

	profit := ledger.SellPressure(110_000, 10_000)
	loss := ledger.SellPressure(110_000, -10_000)
	if profit <= loss {
		t.Errorf("profit pressure %v should exceed loss pressure %v", profit, loss)
	}

	pending := s.PendingSell
	got := ledger.ApplySell(s, 110_000, 10_000)
	if got != -profit {
		t.Errorf("sell delta = %v, want %v", got, -profit)
	}
	if s.PendingSell >= pending {
		t.Error("profitable sell should release pending pressure")
	}

	pending = s.PendingSell
	ledger.ApplySell(s, 90_000, -10_000)
	if s.PendingSell != pending {
		t.Error("losing sell must not touch pending pressure")
	}
}

func TestApplyIntrinsicIsOneSided(t *testing.T) {
	ledger := newTestPressure()
	s := models.NewStock("X", "X", "Tech", 100, 0.02)

	if d := ledger.ApplyIntrinsic(s, 80); d != 0 || s.MarketPressure != 0 {
		t.Errorf("lower value must not push pressure, got %v", d)
	}
	if d := ledger.ApplyIntrinsic(s, 110); d != 50 {
		t.Errorf("delta = %v, want 50", d)
	}
}
