package simulation

import (
	"math"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"synth-exchange/internal/config"
	"synth-exchange/internal/models"
)

// HarnessOptions configures an offline replay of the tick model.
type HarnessOptions struct {
	Seed   int64
	Days   int
	Start  time.Time
	Stocks []*models.Stock
}

// StockSummary describes one stock at the end of a replay.
type StockSummary struct {
	Ticker        string
	FirstOpen     float64
	LastClose     float64
	High          float64
	Low           float64
	Candles       int
	Events        int
	Bias          models.Bias
	Pressure      float64
	MakerPosition float64
}

// Change returns the fractional move from the first open to the last close.
func (s StockSummary) Change() float64 {
	if s.FirstOpen == 0 {
		return 0
	}
	return s.LastClose/s.FirstOpen - 1
}

// HarnessResult is the outcome of a replay.
type HarnessResult struct {
	Seed    int64
	Days    int
	Ticks   int
	Macro   models.MacroCycle
	Regimes []RegimeChange
	Stocks  []StockSummary
	Candles map[string][]models.Candle
}

// RunHarness drives the full model for opts.Days trading days without a wall
// clock. The same seed and inputs always produce the same result.
func RunHarness(cfg *config.Config, opts HarnessOptions, logger zerolog.Logger) HarnessResult {
	seed := opts.Seed
	if seed == 0 {
		seed = 1
	}
	rng := NewRand(seed)
	sim := cfg.Simulation

	macro := NewMacro(sim, rng)
	scripts := NewScriptGenerator(sim, rng)
	pressure := NewPressureLedger(sim, cfg.Trading)
	maker := NewMarketMaker(cfg.MarketMaker, rng, logger)
	events := NewEventOverlay(rng, sim.NativeEventProbability, NativeEvents)
	engine := NewPriceEngine(sim, rng, pressure, maker, events)

	stocks := opts.Stocks
	if len(stocks) == 0 {
		stocks = DefaultBoard()
	}
	sort.Slice(stocks, func(i, j int) bool { return stocks[i].Ticker < stocks[j].Ticker })

	start := opts.Start
	if start.IsZero() {
		start = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	}
	open, _ := cfg.Market.OpenOffset()

	summaries := make([]StockSummary, len(stocks))
	for i, s := range stocks {
		summaries[i] = StockSummary{Ticker: s.Ticker, FirstOpen: s.CurrentPrice, High: s.CurrentPrice, Low: s.CurrentPrice}
	}

	res := HarnessResult{Seed: seed, Days: opts.Days, Candles: make(map[string][]models.Candle)}
	for day := 0; day < opts.Days; day++ {
		date := start.AddDate(0, 0, day)
		res.Regimes = append(res.Regimes, macro.AdvanceDay()...)
		state := macro.State()
		for _, s := range stocks {
			scripts.OpenDay(s, state, date, day > 0)
		}

		for tick := 0; tick < sim.TicksPerDay; tick++ {
			at := date.Add(open + time.Duration(tick)*sim.TickInterval)
			for i, s := range stocks {
				out, ok := engine.Tick(s, at, sim.TicksPerDay-tick)
				if !ok {
					continue
				}
				sum := &summaries[i]
				sum.Candles++
				sum.High = math.Max(sum.High, out.Candle.High)
				sum.Low = math.Min(sum.Low, out.Candle.Low)
				if out.Event != nil {
					sum.Events++
				}
				res.Candles[s.Ticker] = append(res.Candles[s.Ticker], out.Candle)
			}
			res.Ticks++
		}
	}

	for i, s := range stocks {
		summaries[i].LastClose = s.CurrentPrice
		summaries[i].Pressure = s.MarketPressure
		summaries[i].MakerPosition = maker.State(s.Ticker).Position
		if s.Script != nil {
			summaries[i].Bias = s.Script.Bias
		}
	}
	res.Stocks = summaries
	res.Macro = macro.State()
	return res
}
