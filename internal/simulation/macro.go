package simulation

import (
	"sync"

	"synth-exchange/internal/config"
	"synth-exchange/internal/models"
)

// RegimeChange describes one macro transition.
type RegimeChange struct {
	Kind string // "cycle" or "volatility"
	From string
	To   string
}

// Macro holds the process-wide market regime. It advances once per
// calendar day.
type Macro struct {
	mu    sync.RWMutex
	state models.MacroCycle
	cfg   config.SimulationConfig
	rng   *Rand
}

// NewMacro creates a neutral, low-volatility regime.
func NewMacro(cfg config.SimulationConfig, rng *Rand) *Macro {
	return &Macro{
		state: models.MacroCycle{Cycle: models.CycleNeutral, Volatility: models.VolatilityLow},
		cfg:   cfg,
		rng:   rng,
	}
}

// State returns a copy of the current regime.
func (m *Macro) State() models.MacroCycle {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// Restore replaces the regime, e.g. when rehydrating from storage.
func (m *Macro) Restore(state models.MacroCycle) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state = state
}

// AdvanceDay moves the regime forward one day and returns any transitions.
func (m *Macro) AdvanceDay() []RegimeChange {
	m.mu.Lock()
	defer m.mu.Unlock()

	var changes []RegimeChange

	m.state.CycleDays++
	if m.state.CycleDays > m.cfg.MacroMinDwell && m.rng.Chance(m.cfg.CycleSwitchProbability) {
		from := m.state.Cycle
		m.state.Cycle = m.pickOtherCycle(from)
		m.state.CycleDays = 0
		changes = append(changes, RegimeChange{Kind: "cycle", From: string(from), To: string(m.state.Cycle)})
	}

	m.state.VolatilityDays++
	if m.state.VolatilityDays > m.cfg.MacroMinDwell && m.rng.Chance(m.cfg.VolatilitySwitchProbability) {
		from := m.state.Volatility
		switch from {
		case models.VolatilityLow:
			m.state.Volatility = models.VolatilityHigh
		case models.VolatilityHigh:
			m.state.Volatility = models.VolatilityLow
		}
		m.state.VolatilityDays = 0
		changes = append(changes, RegimeChange{Kind: "volatility", From: string(from), To: string(m.state.Volatility)})
	}

	return changes
}

func (m *Macro) pickOtherCycle(current models.Cycle) models.Cycle {
	others := make([]models.Cycle, 0, len(models.Cycles)-1)
	for _, c := range models.Cycles {
		if c != current {
			others = append(others, c)
		}
	}
	return others[m.rng.IntRange(0, len(others)-1)]
}
