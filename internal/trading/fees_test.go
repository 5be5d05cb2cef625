package trading

import (
	"math"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"synth-exchange/internal/config"
	"synth-exchange/internal/errors"
	"synth-exchange/internal/models"
)

func TestFeeTierMultiplier(t *testing.T) {
	f := NewFeeSchedule(config.Default().Trading)
	tests := []struct {
		total float64
		want  float64
	}{
		{0, 1},
		{99_999, 1},
		{100_000, 3},
		{499_999, 3},
		{650_000, 8},
		{999_999, 15},
		{5_000_000, 50},
		{2_000_000_000, 50},
	}
	for _, tt := range tests {
		if got := f.TierMultiplier(tt.total); got != tt.want {
			t.Errorf("TierMultiplier(%v) = %v, want %v", tt.total, got, tt.want)
		}
	}
}

func TestFeeTiersAreSorted(t *testing.T) {
	cfg := config.Default().Trading
	cfg.FeeTiers = []config.FeeTier{{MaxVolume: 1000, Multiplier: 2}, {MaxVolume: 10, Multiplier: 1}}
	f := NewFeeSchedule(cfg)
	if got := f.TierMultiplier(5); got != 1 {
		t.Errorf("TierMultiplier(5) = %v, want 1", got)
	}
	if got := f.TierMultiplier(50_000); got != 2 {
		t.Errorf("TierMultiplier above all tiers = %v, want 2", got)
	}
}

func TestFrequencyMultiplier(t *testing.T) {
	f := NewFeeSchedule(config.Default().Trading)
	tests := []struct {
		recent int
		want   float64
	}{
		{0, 1},
		{5, 1},
		{6, 1.2},
		{10, 2},
		{20, 4},
		{21, 8.4},
	}
	for _, tt := range tests {
		if got := f.FrequencyMultiplier(tt.recent); math.Abs(got-tt.want) > 1e-9 {
			t.Errorf("FrequencyMultiplier(%d) = %v, want %v", tt.recent, got, tt.want)
		}
	}
}

func TestFee(t *testing.T) {
	f := NewFeeSchedule(config.Default().Trading)
	tests := []struct {
		name      string
		side      models.OrderSide
		gross     float64
		dayVolume float64
		recent    int
		want      float64
	}{
		{"small buy", models.OrderSideBuy, 1000, 0, 0, 5},
		{"small sell", models.OrderSideSell, 1000, 0, 0, 10},
		{"buy crossing a tier", models.OrderSideBuy, 100_000, 0, 0, 1500},
		{"sell after a busy day", models.OrderSideSell, 109_945, 100_000, 0, 3298.35},
		{"frequent trader", models.OrderSideBuy, 1000, 0, 6, 6},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := f.Fee(tt.side, tt.gross, tt.dayVolume, tt.recent)
			if err != nil {
				t.Fatal(err)
			}
			if got != tt.want {
				t.Errorf("Fee = %v, want %v", got, tt.want)
			}
		})
	}

	if _, err := f.Fee(models.OrderSideBuy, -1, 0, 0); !errors.Is(err, errors.ErrInvalidValue) {
		t.Errorf("negative gross err = %v", err)
	}
}

func TestProperty_FeeMonotoneInVolume(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)
	f := NewFeeSchedule(config.Default().Trading)

	properties.Property("a larger same-day volume never lowers the fee", prop.ForAll(
		func(gross, lo, extra float64, recent int) bool {
			a, _ := f.Fee(models.OrderSideBuy, gross, lo, recent)
			b, _ := f.Fee(models.OrderSideBuy, gross, lo+extra, recent)
			return b >= a
		},
		gen.Float64Range(1, 1_000_000),
		gen.Float64Range(0, 2_000_000),
		gen.Float64Range(0, 2_000_000),
		gen.IntRange(0, 40),
	))

	properties.TestingRun(t)
}
