package simulation

import (
	"fmt"
	"math"

	"synth-exchange/internal/models"
)

// MarketEvent is one row of the native random event table.
type MarketEvent struct {
	Kind     string // "positive" or "negative"
	Headline string
	Detail   string
	MinPct   float64
	MaxPct   float64
	Weight   float64
	Industry string // empty applies to every industry
}

// NativeEvents is the weighted event table for simulator-owned stocks.
var NativeEvents = []MarketEvent{
	{Kind: "positive", Headline: "Sector tailwind", Detail: "receives new policy support for its sector", MinPct: 0.05, MaxPct: 0.12, Weight: 20, Industry: "Tech"},
	{Kind: "positive", Headline: "Partnership", Detail: "announces a strategic partnership with an industry giant", MinPct: 0.03, MaxPct: 0.08, Weight: 15},
	{Kind: "positive", Headline: "Breakthrough", Detail: "unveils a breakthrough technology", MinPct: 0.10, MaxPct: 0.20, Weight: 5},
	{Kind: "negative", Headline: "Regulatory inquiry", Detail: "faces a regulator review of its sector", MinPct: -0.10, MaxPct: -0.04, Weight: 20},
	{Kind: "negative", Headline: "Scandal", Detail: "is hit by a data leak scandal", MinPct: -0.15, MaxPct: -0.08, Weight: 10},
	{Kind: "negative", Headline: "Product recall", Detail: "recalls its flagship product over a safety flaw", MinPct: -0.25, MaxPct: -0.18, Weight: 3},
}

// EventResult is the outcome of a fired native event.
type EventResult struct {
	Event   MarketEvent
	Percent float64
	Message string
}

// EventOverlay fires native events on non-listed stocks.
type EventOverlay struct {
	rng         *Rand
	probability float64
	table       []MarketEvent
}

// NewEventOverlay creates an overlay over table firing with probability per tick.
func NewEventOverlay(rng *Rand, probability float64, table []MarketEvent) *EventOverlay {
	return &EventOverlay{rng: rng, probability: probability, table: table}
}

// Eligible returns the rows that apply to industry.
func (o *EventOverlay) Eligible(industry string) []MarketEvent {
	var out []MarketEvent
	for _, e := range o.table {
		if e.Industry == "" || e.Industry == industry {
			out = append(out, e)
		}
	}
	return out
}

// Maybe draws whether an event fires for s this tick and, if so, applies it
// to the current price. Listed stocks never receive native events.
func (o *EventOverlay) Maybe(s *models.Stock) (*EventResult, bool) {
	if s.IsListed || !o.rng.Chance(o.probability) {
		return nil, false
	}
	rows := o.Eligible(s.Industry)
	if len(rows) == 0 {
		return nil, false
	}
	weights := make([]float64, len(rows))
	for i, e := range rows {
		weights[i] = e.Weight
	}
	ev := rows[o.rng.Weighted(weights)]

	pct := math.Round(o.rng.Uniform(ev.MinPct, ev.MaxPct)*10000) / 10000
	s.CurrentPrice = models.FloorPrice(round2(s.CurrentPrice * (1 + pct)))

	return &EventResult{
		Event:   ev,
		Percent: pct,
		Message: fmt.Sprintf("[%s] %s (%s) %s; price moves %+.2f%%", ev.Headline, s.Name, s.Ticker, ev.Detail, pct*100),
	}, true
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
