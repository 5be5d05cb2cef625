package simulation

import (
	"testing"

	"github.com/rs/zerolog"

	"synth-exchange/internal/config"
	"synth-exchange/internal/models"
)

func newTestMaker(mutate func(*config.MarketMakerConfig)) *MarketMaker {
	cfg := config.Default().MarketMaker
	if mutate != nil {
		mutate(&cfg)
	}
	return NewMarketMaker(cfg, NewRand(5), zerolog.Nop())
}

func TestRigCycleReturnsToNoneOnce(t *testing.T) {
	mm := newTestMaker(func(c *config.MarketMakerConfig) {
		c.RigProbability = 1
		c.RigUpProbability = 1
	})
	s := models.NewStock("X", "X", "Tech", 100, 0.02)

	mm.Impact(s, s.CurrentPrice)
	if st := mm.State("X"); st.RigState != models.RigTrappingUp {
		t.Fatalf("rig not launched: %s", st.RigState)
	}
	mm.cfg.RigProbability = 0

	cfg := mm.cfg
	cycle := cfg.TrapDuration + cfg.HarvestDuration + cfg.RigCooldown
	seen := map[models.RigState]bool{}
	returned := 0
	for i := 1; i <= cycle+10; i++ {
		mm.Impact(s, s.CurrentPrice)
		st := mm.State("X")
		seen[st.RigState] = true
		if st.RigState == models.RigNone {
			returned++
			if returned == 1 && i != cycle {
				t.Fatalf("returned to none after %d ticks, want %d", i, cycle)
			}
		}
	}
	if returned == 0 {
		t.Fatal("rig never returned to none")
	}
	for _, state := range []models.RigState{models.RigTrappingUp, models.RigHarvestingUp, models.RigCooling} {
		if !seen[state] {
			t.Errorf("state %s skipped", state)
		}
	}
	if seen[models.RigTrappingDown] || seen[models.RigHarvestingDown] {
		t.Error("unexpected downward rig")
	}
}

func TestRigDirectionOfImpact(t *testing.T) {
	mm := newTestMaker(func(c *config.MarketMakerConfig) {
		c.RigProbability = 1
		c.RigUpProbability = 0
	})
	s := models.NewStock("X", "X", "Tech", 100, 0.02)
	mm.Impact(s, 100)
	mm.cfg.RigProbability = 0

	if st := mm.State("X"); st.RigState != models.RigTrappingDown {
		t.Fatalf("state = %s", st.RigState)
	}
	if impact := mm.Impact(s, 100); impact >= 0 {
		t.Errorf("trapping down impact = %v, want negative", impact)
	}
	for i := 0; i < mm.cfg.TrapDuration-1; i++ {
		mm.Impact(s, 100)
	}
	if st := mm.State("X"); st.RigState != models.RigHarvestingDown {
		t.Fatalf("state = %s, want harvesting_down", st.RigState)
	}
	if impact := mm.Impact(s, 100); impact <= 0 {
		t.Errorf("harvesting down impact = %v, want positive", impact)
	}
}

func TestPassiveRules(t *testing.T) {
	mm := newTestMaker(func(c *config.MarketMakerConfig) { c.RigProbability = 0 })

	tests := []struct {
		name     string
		price    float64
		pressure float64
		wantSign int
	}{
		{"fair value, calm", 100, 0, 0},
		{"overvalued sells", 130, 0, -1},
		{"undervalued buys", 70, 0, 1},
		{"heavy buy pressure countered", 100, 100_000, -1},
		{"heavy sell pressure countered", 100, -100_000, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := models.NewStock("P", "P", "Tech", 100, 0.02)
			s.MarketPressure = tt.pressure
			impact := mm.Impact(s, tt.price)
			switch {
			case tt.wantSign == 0 && impact != 0,
				tt.wantSign < 0 && impact >= 0,
				tt.wantSign > 0 && impact <= 0:
				t.Errorf("impact = %v, want sign %d", impact, tt.wantSign)
			}
		})
	}
}

func TestPositionClamped(t *testing.T) {
	mm := newTestMaker(func(c *config.MarketMakerConfig) {
		c.RigProbability = 0
		c.MaxPosition = 1000
	})
	s := models.NewStock("P", "P", "Tech", 100, 0.02)
	for i := 0; i < 20; i++ {
		mm.Impact(s, 300)
	}
	if pos := mm.State("P").Position; pos != -1000 {
		t.Errorf("position = %v, want -1000", pos)
	}
}

func TestDipDeclineGuards(t *testing.T) {
	flat := make([]float64, 15)
	for i := range flat {
		flat[i] = 100
	}
	crash := append(append([]float64{}, flat[:10]...), 70, 70, 70, 70, 70)
	zero := append(append([]float64{}, flat[:14]...), 0)
	jump := append(append([]float64{}, flat[:10]...), 40, 40, 40, 40, 40)

	tests := []struct {
		name    string
		history []float64
		wantOK  bool
		wantMin float64
	}{
		{"short history", flat[:14], false, 0},
		{"flat", flat, true, 0},
		{"30% drop", crash, true, 0.29},
		{"non-positive price", zero, false, 0},
		{"implausible jump", jump, false, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, ok := DipDecline(tt.history, 5, 0.5)
			if ok != tt.wantOK {
				t.Fatalf("ok = %v, want %v", ok, tt.wantOK)
			}
			if ok && d < tt.wantMin {
				t.Errorf("decline = %v, want >= %v", d, tt.wantMin)
			}
		})
	}
}

func TestDipAttackCooldown(t *testing.T) {
	mm := newTestMaker(func(c *config.MarketMakerConfig) { c.RigProbability = 0 })
	s := models.NewStock("D", "D", "Tech", 100, 0.02)
	s.PriceHistory = []float64{100, 100, 100, 100, 100, 100, 100, 100, 100, 100, 70, 70, 70, 70, 70}

	first := mm.Impact(s, 100)
	if first >= 0 {
		t.Fatalf("dip attack should push down, got %v", first)
	}
	if cd := mm.State("D").DipAttackCooldown; cd != mm.cfg.DipCooldown {
		t.Fatalf("cooldown = %d", cd)
	}
	if second := mm.Impact(s, 100); second != 0 {
		t.Errorf("cooldown should suppress the rule, got %v", second)
	}
}
