package trading

import (
	"math"
	"testing"

	"synth-exchange/internal/config"
	"synth-exchange/internal/errors"
)

func TestLiquiditySlippage(t *testing.T) {
	tight := config.Default().Trading
	tight.DailyLiquidityLimit = 50_000

	tests := []struct {
		name      string
		cfg       config.TradingConfig
		order     float64
		dayVolume float64
		want      float64
		err       error
	}{
		{"ample liquidity", config.Default().Trading, 1000, 0, 0, nil},
		{"cap used up", config.Default().Trading, 100, 1_000_000, 0, errors.ErrLiquidityExhausted},
		{"above extreme threshold", config.Default().Trading, 900_000, 0, 0.5, nil},
		{"extreme slippage capped", config.Default().Trading, 2_000_000, 0, 0.8, nil},
		{"near the cap", tight, 45_000, 0, 0.145, nil},
		{"below the near-cap band", tight, 30_000, 0, 0, nil},
		{"disabled cap", config.TradingConfig{}, 1e9, 1e9, 0, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := LiquiditySlippage(tt.cfg, tt.order, tt.dayVolume)
			if !errors.Is(err, tt.err) {
				t.Fatalf("err = %v, want %v", err, tt.err)
			}
			if math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("slippage = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestSellSlippage(t *testing.T) {
	cfg := config.Default().Trading
	if got := SellSlippage(cfg, 1000); math.Abs(got-0.0005) > 1e-12 {
		t.Errorf("SellSlippage(1000) = %v", got)
	}
	if got := SellSlippage(cfg, 10_000_000); got != 0.3 {
		t.Errorf("SellSlippage cap = %v, want 0.3", got)
	}
}

func TestDilution(t *testing.T) {
	cfg := config.Default().Trading
	tests := []struct {
		qty  int64
		want int64
	}{
		{1, 0},
		{1000, 800},
		{5_000_000, 1_000_000},
	}
	for _, tt := range tests {
		if got := Dilution(cfg, tt.qty); got != tt.want {
			t.Errorf("Dilution(%d) = %d, want %d", tt.qty, got, tt.want)
		}
	}
}
