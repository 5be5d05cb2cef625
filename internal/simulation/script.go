package simulation

import (
	"math"
	"time"

	"synth-exchange/internal/config"
	"synth-exchange/internal/models"
)

const momentumWindow = 5

// ScriptGenerator derives each stock's daily plan from the macro regime,
// recent momentum and valuation.
type ScriptGenerator struct {
	cfg config.SimulationConfig
	rng *Rand
}

// NewScriptGenerator creates a generator drawing from rng.
func NewScriptGenerator(cfg config.SimulationConfig, rng *Rand) *ScriptGenerator {
	return &ScriptGenerator{cfg: cfg, rng: rng}
}

// OpenDay rolls s into the trading day date. When closePrior is set the
// current price becomes the previous close and joins the daily close window.
// The fundamental value drifts slightly and a fresh script is installed.
func (g *ScriptGenerator) OpenDay(s *models.Stock, macro models.MacroCycle, date time.Time, closePrior bool) {
	s.PreviousClose = s.CurrentPrice
	if closePrior {
		s.PushDailyClose(s.CurrentPrice, g.cfg.DailyCloseLen)
	}
	if d := g.cfg.FundamentalDrift; d > 0 {
		s.FundamentalValue = models.FloorPrice(s.FundamentalValue * g.rng.Uniform(1-d, 1+d))
	}
	script := g.Generate(s, macro, date)
	s.Script = &script
}

// Generate returns the script for stock on date under macro.
func (g *ScriptGenerator) Generate(stock *models.Stock, macro models.MacroCycle, date time.Time) models.DailyScript {
	lastClose := LastClose(stock)
	bias := g.rng.Weighted(BiasWeights(stock, macro))
	chosen := models.Biases[bias]

	baseRange := stock.Volatility * g.rng.Uniform(0.7, 1.5)
	if macro.Volatility == models.VolatilityHigh {
		baseRange *= 1.7
	}
	if chosen != models.BiasSideways {
		baseRange *= 1.3
	}

	change := lastClose * baseRange * g.rng.Uniform(0.4, 1.0)
	var target float64
	switch chosen {
	case models.BiasUp:
		target = lastClose + change
	case models.BiasDown:
		target = lastClose - change
	case models.BiasSideways:
		sign := 1.0
		if g.rng.Chance(0.5) {
			sign = -1
		}
		target = lastClose + change/2*sign
	}

	return models.DailyScript{
		Date:        date,
		Bias:        chosen,
		RangeFactor: baseRange,
		TargetClose: models.FloorPrice(target),
	}
}

// BiasWeights returns the [UP, SIDEWAYS, DOWN] weights used to draw a bias.
func BiasWeights(stock *models.Stock, macro models.MacroCycle) []float64 {
	weights := []float64{1, 1, 1}

	switch macro.Cycle {
	case models.CycleBull:
		weights[0] *= 2
	case models.CycleBear:
		weights[2] *= 2
	case models.CycleNeutral:
	}

	m := Momentum(stock.DailyCloses)
	switch {
	case m > 0:
		weights[0] *= 1 + 1.5*m
	case m < 0:
		weights[2] *= 1 + 1.5*math.Abs(m)
	}

	ratio := ValuationRatio(stock)
	switch {
	case ratio < 0.7:
		weights[0] *= 1 / math.Max(ratio, 0.1)
	case ratio > 1.5:
		weights[2] *= ratio
	}

	return weights
}

// LastClose returns the previous close, or the current price before the first close.
func LastClose(stock *models.Stock) float64 {
	if stock.PreviousClose > 0 {
		return stock.PreviousClose
	}
	return stock.CurrentPrice
}

// ValuationRatio returns last close over fundamental value, or 1 without a
// usable fundamental value.
func ValuationRatio(stock *models.Stock) float64 {
	if stock.FundamentalValue <= 0 {
		return 1
	}
	return LastClose(stock) / stock.FundamentalValue
}

// Momentum is the linearly weighted sign sum of the last five daily moves,
// normalised to [-1, 1]. It is zero with fewer than five closes.
func Momentum(closes []float64) float64 {
	if len(closes) < momentumWindow {
		return 0
	}
	start := len(closes) - momentumWindow - 1
	if start < 0 {
		start = 0
	}
	window := closes[start:]

	var sum, total float64
	for i := 1; i < len(window); i++ {
		w := float64(i)
		total += w
		switch {
		case window[i] > window[i-1]:
			sum += w
		case window[i] < window[i-1]:
			sum -= w
		}
	}
	if total == 0 {
		return 0
	}
	return sum / total
}
