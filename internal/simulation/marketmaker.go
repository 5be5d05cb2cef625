package simulation

import (
	"math"
	"sync"

	"github.com/rs/zerolog"

	"synth-exchange/internal/config"
	"synth-exchange/internal/models"
)

// MarketMaker is the per-stock counter-party. It leans against valuation
// gaps and heavy pressure, and now and then runs a bait-and-harvest rig.
type MarketMaker struct {
	cfg    config.MarketMakerConfig
	rng    *Rand
	logger zerolog.Logger

	mu     sync.Mutex
	states map[string]*models.MarketMakerState
}

// NewMarketMaker creates a market maker.
func NewMarketMaker(cfg config.MarketMakerConfig, rng *Rand, logger zerolog.Logger) *MarketMaker {
	return &MarketMaker{
		cfg:    cfg,
		rng:    rng,
		logger: logger.With().Str("component", "market_maker").Logger(),
		states: make(map[string]*models.MarketMakerState),
	}
}

// State returns a copy of the state for ticker. The caller must hold the
// stock's lock.
func (m *MarketMaker) State(ticker string) models.MarketMakerState {
	return *m.state(ticker)
}

// Restore replaces the state for ticker.
func (m *MarketMaker) Restore(ticker string, st models.MarketMakerState) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if st.RigState == "" {
		st.RigState = models.RigNone
	}
	m.states[ticker] = &st
}

// Remove forgets ticker.
func (m *MarketMaker) Remove(ticker string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.states, ticker)
}

func (m *MarketMaker) state(ticker string) *models.MarketMakerState {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, ok := m.states[ticker]
	if !ok {
		st = models.NewMarketMakerState()
		m.states[ticker] = st
	}
	return st
}

// Impact advances the market maker for one tick of s opening at open and
// returns the signed price impact. The caller must hold the stock's lock.
func (m *MarketMaker) Impact(s *models.Stock, open float64) float64 {
	if !m.cfg.Enabled || s.FundamentalValue <= 0 {
		return 0
	}
	st := m.state(s.Ticker)
	base := m.cfg.BaseImpact

	var impact, traded float64

	switch st.RigState {
	case models.RigCooling:
		st.RigCooldown--
		if st.RigCooldown <= 0 {
			st.RigCooldown = 0
			st.RigState = models.RigNone
			st.RigProgress = 0
		}
		return 0

	case models.RigTrappingUp, models.RigTrappingDown:
		dir := 1.0
		if st.RigState == models.RigTrappingDown {
			dir = -1
		}
		trap := m.cfg.MaxRigPressure*0.6 + float64(st.RigProgress)*5
		impact += dir * trap * base * 2
		traded += dir * trap
		st.RigProgress++
		if st.RigProgress >= m.cfg.TrapDuration {
			if dir > 0 {
				st.RigState = models.RigHarvestingUp
			} else {
				st.RigState = models.RigHarvestingDown
			}
			st.RigProgress = 0
			m.logger.Info().Str("ticker", s.Ticker).Str("rig_state", string(st.RigState)).Msg("Rig harvesting")
		}

	case models.RigHarvestingUp, models.RigHarvestingDown:
		dir := -1.0
		if st.RigState == models.RigHarvestingDown {
			dir = 1
		}
		impact += dir * m.cfg.MaxRigPressure * base * 3
		traded += dir * m.cfg.MaxRigPressure
		st.RigProgress++
		if st.RigProgress >= m.cfg.HarvestDuration {
			st.RigState = models.RigCooling
			st.RigProgress = 0
			st.RigCooldown = m.cfg.RigCooldown
			m.logger.Info().Str("ticker", s.Ticker).Int("cooldown", st.RigCooldown).Msg("Rig complete, cooling")
		}

	case models.RigNone:
		i, t := m.passive(s, st, open)
		impact += i
		traded += t
		m.maybeLaunch(s.Ticker, st)
	}

	st.Position = clamp(st.Position+traded, -m.cfg.MaxPosition, m.cfg.MaxPosition)
	return impact
}

// passive applies the valuation, pressure and dip-attack rules.
func (m *MarketMaker) passive(s *models.Stock, st *models.MarketMakerState, open float64) (impact, traded float64) {
	base := m.cfg.BaseImpact
	ratio := open / s.FundamentalValue
	upper := 1 + m.cfg.DeviationThreshold
	lower := 1 - m.cfg.DeviationThreshold

	switch {
	case ratio > upper:
		amount := m.cfg.Budget * math.Min(m.cfg.MaxIntensity, (ratio-upper)*2)
		impact -= amount * base
		traded -= amount
	case ratio < lower:
		amount := m.cfg.Budget * math.Min(m.cfg.MaxIntensity, (lower-ratio)*2)
		impact += amount * base
		traded += amount
	}

	if p := s.MarketPressure; math.Abs(p) > m.cfg.PressureThreshold {
		counter := math.Abs(p * m.cfg.CounterTradeIntensity)
		if p > 0 {
			impact -= counter * base * 5
			traded -= counter
		} else {
			impact += counter * base * 5
			traded += counter
		}
	}

	if decline, ok := DipDecline(s.PriceHistory, m.cfg.DipWindow, m.cfg.DipMaxJump); ok {
		cooldown := st.DipAttackCooldown
		if cooldown > 0 {
			st.DipAttackCooldown--
		}
		if decline > m.cfg.DipDeclineThreshold && cooldown <= 0 {
			dip := math.Min(m.cfg.DipMaxPressure, math.Abs(s.MarketPressure)+15)
			impact -= dip * base * 1.5
			traded -= dip
			st.DipAttackCooldown = m.cfg.DipCooldown
			m.logger.Info().Str("ticker", s.Ticker).Float64("decline", decline).Msg("Dip attack")
		}
	}

	return impact, traded
}

func (m *MarketMaker) maybeLaunch(ticker string, st *models.MarketMakerState) {
	if st.RigCooldown > 0 || !m.rng.Chance(m.cfg.RigProbability) {
		return
	}
	if m.rng.Chance(m.cfg.RigUpProbability) {
		st.RigState = models.RigTrappingUp
	} else {
		st.RigState = models.RigTrappingDown
	}
	st.RigProgress = 0
	m.logger.Info().Str("ticker", ticker).Str("rig_state", string(st.RigState)).Msg("Rig started")
}

// DipDecline compares the average of the last window prices with the window
// before it and returns the fractional decline. ok is false when there is not
// enough history or the data fails the sanity guards: non-positive prices or a
// move of maxJump or more between the two windows.
func DipDecline(history []float64, window int, maxJump float64) (decline float64, ok bool) {
	if window <= 0 || len(history) < 3*window {
		return 0, false
	}
	recent := history[len(history)-2*window:]
	for _, p := range recent {
		if p <= 0 {
			return 0, false
		}
	}
	prev := mean(recent[:window])
	last := mean(recent[window:])
	if prev <= 0 || last <= 0 {
		return 0, false
	}
	decline = (prev - last) / prev
	if math.Abs(decline) >= maxJump {
		return 0, false
	}
	return decline, true
}

func mean(xs []float64) float64 {
	sum := 0.0
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
