package trading

import (
	"math"

	"synth-exchange/internal/config"
	"synth-exchange/internal/errors"
)

const (
	extremeShortageWeight = 0.5
	nearCapWeight         = 0.05
)

// LiquiditySlippage returns the extra execution cost fraction for a buy of
// value order in a stock that has traded dayVolume today. It fails with
// ErrLiquidityExhausted once the daily cap is used up.
func LiquiditySlippage(cfg config.TradingConfig, order, dayVolume float64) (float64, error) {
	if cfg.DailyLiquidityLimit <= 0 {
		return 0, nil
	}
	remaining := cfg.DailyLiquidityLimit - dayVolume
	if remaining <= 0 {
		return 0, errors.ErrLiquidityExhausted
	}

	total := dayVolume + order
	if t := cfg.ExtremeSlippageThreshold; t > 0 && total > t {
		shortage := (total - t) / t
		return math.Min(cfg.MaxExtremeSlippage, shortage*extremeShortageWeight+cfg.LiquidityShortagePenalty), nil
	}
	if order > remaining*cfg.NearCapRatio {
		return cfg.LiquidityShortagePenalty + order/remaining*nearCapWeight, nil
	}
	return 0, nil
}

// SellSlippage returns the price discount for selling qty shares.
func SellSlippage(cfg config.TradingConfig, qty int64) float64 {
	return math.Min(float64(qty)*cfg.SlippageFactor, cfg.MaxSlippage)
}

// Dilution returns the new shares a listed issuer mints for a buy of qty.
func Dilution(cfg config.TradingConfig, qty int64) int64 {
	n := int64(float64(qty) * cfg.DilutionRatio)
	if cfg.MaxDilutionPerTrade > 0 && n > cfg.MaxDilutionPerTrade {
		n = cfg.MaxDilutionPerTrade
	}
	return max(n, 0)
}
