package simulation

import (
	"math"
	"time"

	"synth-exchange/internal/config"
	"synth-exchange/internal/models"
)

// TickResult is the outcome of advancing one stock by one tick.
type TickResult struct {
	Candle models.Candle
	Event  *EventResult
	Impact float64
}

// PriceEngine advances a stock's price one tick at a time.
type PriceEngine struct {
	cfg      config.SimulationConfig
	rng      *Rand
	pressure *PressureLedger
	maker    *MarketMaker
	events   *EventOverlay
}

// NewPriceEngine wires the tick model. maker may be nil.
func NewPriceEngine(cfg config.SimulationConfig, rng *Rand, pressure *PressureLedger, maker *MarketMaker, events *EventOverlay) *PriceEngine {
	return &PriceEngine{
		cfg:      cfg,
		rng:      rng,
		pressure: pressure,
		maker:    maker,
		events:   events,
	}
}

// Tick advances s by one tick stamped at. remaining is the number of ticks
// left before the close, at least one. It reports false when s has no
// script for the day. The caller must hold the stock's lock.
func (e *PriceEngine) Tick(s *models.Stock, at time.Time, remaining int) (TickResult, bool) {
	script := s.Script
	if script == nil {
		return TickResult{}, false
	}
	if remaining < 1 {
		remaining = 1
	}

	open := s.CurrentPrice
	var res TickResult
	var high, low, closePrice float64

	if ev, fired := e.maybeEvent(s); fired {
		res.Event = ev
		closePrice = s.CurrentPrice
		high, low = math.Max(open, closePrice), math.Min(open, closePrice)
		e.pressure.Decay(s)
	} else {
		e.advanceWave(s, script.Bias)

		perTick := script.RangeFactor / math.Sqrt(float64(e.cfg.TicksPerDay))
		effVol := perTick * e.cfg.VolatilityMultiplier

		trend := s.Momentum * open * effVol * e.rng.Uniform(0.8, 1.2)
		walk := open * effVol * e.rng.Normal(0, e.cfg.RandomWalkSigma)
		reversion := -(open - s.SMA(e.cfg.SMAWindow, open)) * e.cfg.MeanReversionFactor
		anchor := (script.TargetClose - open) / float64(remaining) * e.cfg.AnchorPullFactor
		pressure := e.pressure.Influence(s)

		e.pressure.Decay(s)
		if e.maker != nil {
			res.Impact = e.maker.Impact(s, open)
		}

		closePrice = models.FloorPrice(round2(open + trend + walk + reversion + anchor + pressure + res.Impact))

		wick := open * perTick * e.cfg.WickFactor
		high = round2(math.Max(open, closePrice) + e.rng.Uniform(0, wick))
		low = models.FloorPrice(round2(math.Min(open, closePrice) - e.rng.Uniform(0, wick)))
		s.CurrentPrice = closePrice
	}

	s.PushPrice(s.CurrentPrice, e.cfg.PriceHistoryLen)
	res.Candle = models.Candle{
		Ticker:    s.Ticker,
		Timestamp: at,
		Open:      open,
		High:      math.Max(high, closePrice),
		Low:       math.Min(low, closePrice),
		Close:     closePrice,
	}
	s.AppendCandle(res.Candle, e.cfg.CandleHistoryLen)
	s.UpdatedAt = at
	return res, true
}

func (e *PriceEngine) maybeEvent(s *models.Stock) (*EventResult, bool) {
	if e.events == nil {
		return nil, false
	}
	return e.events.Maybe(s)
}

// advanceWave runs the momentum wave lifecycle for one tick.
func (e *PriceEngine) advanceWave(s *models.Stock, bias models.Bias) {
	if s.WaveDuration > 0 && s.WaveTick >= s.WaveDuration {
		s.Momentum = 0
		s.WaveTick = 0
		s.WaveDuration = 0
	}

	if s.WaveDuration == 0 && e.rng.Chance(e.cfg.WaveStartProbability) {
		var up float64
		switch bias {
		case models.BiasUp:
			up = 0.6
		case models.BiasDown:
			up = 0.4
		case models.BiasSideways:
			up = 0.5
		}
		dir := -1.0
		if e.rng.Chance(up) {
			dir = 1
		}

		if e.rng.Chance(e.cfg.BigWaveProbability) {
			s.WavePeak = dir * e.rng.Uniform(e.cfg.BigWavePeakMin, e.cfg.BigWavePeakMax)
			s.WaveDuration = e.rng.IntRange(e.cfg.BigWaveMinTicks, e.cfg.BigWaveMaxTicks)
		} else {
			s.WavePeak = dir * e.rng.Uniform(e.cfg.SmallWavePeakMin, e.cfg.SmallWavePeakMax)
			s.WaveDuration = e.rng.IntRange(e.cfg.SmallWaveMinTicks, e.cfg.SmallWaveMaxTicks)
		}
		s.WaveTick = 0
	}

	if s.WaveDuration > 0 {
		s.WaveTick++
		progress := float64(s.WaveTick) / float64(s.WaveDuration)
		s.Momentum = s.WavePeak * math.Sin(progress*math.Pi)
	}
}
