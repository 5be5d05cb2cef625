package trading

import (
	"sort"

	"github.com/shopspring/decimal"

	"synth-exchange/internal/config"
	"synth-exchange/internal/errors"
	"synth-exchange/internal/models"
)

// FeeSchedule prices orders progressively by the user's same-day traded
// value and penalises frequent trading.
type FeeSchedule struct {
	cfg   config.TradingConfig
	tiers []config.FeeTier
}

// NewFeeSchedule creates a schedule with the tiers ordered by ceiling.
func NewFeeSchedule(cfg config.TradingConfig) FeeSchedule {
	tiers := append([]config.FeeTier(nil), cfg.FeeTiers...)
	sort.Slice(tiers, func(i, j int) bool { return tiers[i].MaxVolume < tiers[j].MaxVolume })
	return FeeSchedule{cfg: cfg, tiers: tiers}
}

// TierMultiplier returns the multiplier of the first tier whose ceiling
// covers total, or the last tier's above every ceiling.
func (f FeeSchedule) TierMultiplier(total float64) float64 {
	if len(f.tiers) == 0 {
		return 1
	}
	for _, t := range f.tiers {
		if total <= t.MaxVolume {
			return t.Multiplier
		}
	}
	return f.tiers[len(f.tiers)-1].Multiplier
}

// FrequencyMultiplier returns the penalty for recent trades in the window.
func (f FeeSchedule) FrequencyMultiplier(recent int) float64 {
	m := 1.0
	if excess := recent - f.cfg.FrequentTradeThreshold; excess > 0 {
		m *= 1 + float64(excess)*f.cfg.FrequentTradeStep
	}
	if recent > f.cfg.MaxTradesForPenalty {
		m *= f.cfg.FrequentTradePenalty
	}
	return m
}

// Fee returns the fee for an order of value gross, rounded to cents.
func (f FeeSchedule) Fee(side models.OrderSide, gross, dayVolume float64, recent int) (float64, error) {
	if gross < 0 {
		return 0, errors.NewValidationError("gross", gross, "order value cannot be negative", errors.ErrInvalidValue)
	}
	rate := f.cfg.BuyFeeRate
	if side == models.OrderSideSell {
		rate = f.cfg.SellFeeRate
	}
	mult := f.TierMultiplier(dayVolume+gross) * f.FrequencyMultiplier(recent)
	return decimal.NewFromFloat(gross).
		Mul(decimal.NewFromFloat(rate)).
		Mul(decimal.NewFromFloat(mult)).
		Round(2).
		InexactFloat64(), nil
}
