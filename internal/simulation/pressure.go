package simulation

import (
	"math"

	"synth-exchange/internal/config"
	"synth-exchange/internal/models"
)

// PressureLedger accumulates and decays trade-flow pressure on a stock.
// Callers must hold the stock's lock.
type PressureLedger struct {
	decay      float64
	pendDecay  float64
	conversion float64
	influence  float64
	trading    config.TradingConfig
}

// NewPressureLedger creates a ledger from the simulation and trading tunables.
func NewPressureLedger(sim config.SimulationConfig, trading config.TradingConfig) *PressureLedger {
	return &PressureLedger{
		decay:      sim.PressureDecay,
		pendDecay:  sim.PendingDecay,
		conversion: sim.PendingConversion,
		influence:  sim.PressureInfluence,
		trading:    trading,
	}
}

// Influence returns the price delta contributed by the current market pressure.
func (p *PressureLedger) Influence(s *models.Stock) float64 {
	return s.MarketPressure * p.influence
}

// Decay applies one tick of geometric decay. A fraction of the pending sell
// pressure converts into negative market pressure.
func (p *PressureLedger) Decay(s *models.Stock) {
	s.MarketPressure *= p.decay
	if s.PendingSell > 0 {
		s.PendingSell *= p.pendDecay
		converted := s.PendingSell * p.conversion
		s.MarketPressure -= converted
		s.PendingSell -= converted
	}
	if s.PendingSell < 0 {
		s.PendingSell = 0
	}
}

// BuyPressure returns the raw pressure generated by a buy costing cost.
func (p *PressureLedger) BuyPressure(cost float64) float64 {
	if cost <= 0 {
		return 0
	}
	return math.Pow(cost, 0.90) * p.trading.CostPressureFactor
}

// ApplyBuy injects buy pressure and queues future profit-taking drag.
// It returns the change in market pressure.
func (p *PressureLedger) ApplyBuy(s *models.Stock, cost float64) float64 {
	bp := p.BuyPressure(cost)
	delta := bp * p.trading.BuyPressureRatio
	s.MarketPressure += delta
	s.PendingSell += bp * p.trading.PendingSellRatio
	return delta
}

// SellPressure returns the (positive) magnitude of pressure a sell with the
// given gross income and profit/loss generates.
func (p *PressureLedger) SellPressure(gross, profitLoss float64) float64 {
	if gross <= 0 {
		return 0
	}
	base := math.Pow(gross, 0.95) * p.trading.SellPressureFactor
	if profitLoss > 0 {
		profit := math.Pow(profitLoss, 0.95) * p.trading.SellPressureFactor * p.trading.ProfitSellMultiplier
		return base + profit
	}
	return base * p.trading.LossSellRatio
}

// ApplySell injects sell pressure and, on profitable sells, releases part of
// the pending sell pressure. It returns the change in market pressure.
func (p *PressureLedger) ApplySell(s *models.Stock, gross, profitLoss float64) float64 {
	total := p.SellPressure(gross, profitLoss)
	s.MarketPressure -= total
	if profitLoss > 0 && s.PendingSell > 0 {
		s.PendingSell -= math.Min(s.PendingSell, total*p.trading.PendingReleaseRatio)
	}
	return -total
}

// ApplyIntrinsic lifts pressure toward a higher intrinsic value. It never
// pushes pressure down for a lower value.
func (p *PressureLedger) ApplyIntrinsic(s *models.Stock, value float64) float64 {
	if s.CurrentPrice >= value {
		return 0
	}
	delta := (value - s.CurrentPrice) * p.trading.IntrinsicPressureFactor
	s.MarketPressure += delta
	return delta
}
