// Package market owns the live stock registry and drives the simulation
// against the wall clock.
package market

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"synth-exchange/internal/config"
	"synth-exchange/internal/errors"
	"synth-exchange/internal/logging"
	"synth-exchange/internal/metrics"
	"synth-exchange/internal/models"
	"synth-exchange/internal/notify"
	"synth-exchange/internal/simulation"
	"synth-exchange/internal/store"
	"synth-exchange/internal/stream"
)

// Options wires the collaborators of an Engine. Store is required; the rest
// fall back to no-op or default implementations.
type Options struct {
	Store    store.Store
	Notifier notify.Notifier
	Hub      *stream.Hub
	Metrics  *metrics.Recorder
	Clock    *Clock
	Rand     *simulation.Rand
	Logger   zerolog.Logger
}

// Engine is the market: the stock registry, the macro regime and the tick
// model, bound to a store.
type Engine struct {
	cfg      *config.Config
	clock    *Clock
	rng      *simulation.Rand
	macro    *simulation.Macro
	scripts  *simulation.ScriptGenerator
	pressure *simulation.PressureLedger
	maker    *simulation.MarketMaker
	prices   *simulation.PriceEngine
	registry *Registry

	store    store.Store
	notifier notify.Notifier
	hub      *stream.Hub
	metrics  *metrics.Recorder
	logger   zerolog.Logger

	dayMu sync.Mutex
	day   time.Time

	// listMu serializes listings so a ticker is checked, saved and
	// registered as one step.
	listMu sync.Mutex
}

// NewEngine creates an engine. Call Load before ticking.
func NewEngine(cfg *config.Config, opts Options) (*Engine, error) {
	if opts.Store == nil {
		return nil, errors.NewValidationError("store", nil, "a store is required", errors.ErrConfigInvalid)
	}

	clock := opts.Clock
	if clock == nil {
		var err error
		if clock, err = NewClock(cfg.Market); err != nil {
			return nil, errors.Wrap(err, "creating market clock")
		}
	}

	rng := opts.Rand
	if rng == nil {
		seed := cfg.Simulation.Seed
		if seed == 0 {
			seed = time.Now().UnixNano()
		}
		rng = simulation.NewRand(seed)
	}

	notifier := opts.Notifier
	if notifier == nil {
		notifier = notify.NoOpNotifier{}
	}

	logger := opts.Logger.With().Str("component", "market").Logger()
	sim := cfg.Simulation
	pressure := simulation.NewPressureLedger(sim, cfg.Trading)
	maker := simulation.NewMarketMaker(cfg.MarketMaker, rng, logger)
	events := simulation.NewEventOverlay(rng, sim.NativeEventProbability, simulation.NativeEvents)

	return &Engine{
		cfg:      cfg,
		clock:    clock,
		rng:      rng,
		macro:    simulation.NewMacro(sim, rng),
		scripts:  simulation.NewScriptGenerator(sim, rng),
		pressure: pressure,
		maker:    maker,
		prices:   simulation.NewPriceEngine(sim, rng, pressure, maker, events),
		registry: NewRegistry(),
		store:    opts.Store,
		notifier: notifier,
		hub:      opts.Hub,
		metrics:  opts.Metrics,
		logger:   logger,
	}, nil
}

// Load rehydrates the registry and macro state from the store. An empty
// store is seeded with the default board when configured.
func (e *Engine) Load(ctx context.Context) error {
	st, ok, err := e.store.LoadMarketState(ctx)
	if err != nil {
		return errors.Wrap(err, "loading market state")
	}
	if ok {
		e.macro.Restore(st.Macro)
		if !st.TradingDay.IsZero() {
			e.day = e.clock.TradingDay(st.TradingDay)
		}
	}

	recs, err := e.store.LoadStocks(ctx)
	if err != nil {
		return errors.Wrap(err, "loading stocks")
	}

	for _, rec := range recs {
		s := rec.Stock
		if err := e.rehydrate(ctx, &s); err != nil {
			return err
		}
		e.maker.Restore(s.Ticker, rec.Maker)
		if err := e.registry.Add(&s); err != nil {
			return errors.Wrapf(err, "registering %s", s.Ticker)
		}
	}

	if len(recs) == 0 && e.cfg.Simulation.SeedStocks {
		for _, s := range simulation.DefaultBoard() {
			if err := e.store.SaveStock(ctx, store.StockRecord{Stock: s.Snapshot(), Maker: *models.NewMarketMakerState()}); err != nil {
				return errors.Wrapf(err, "seeding %s", s.Ticker)
			}
			if err := e.registry.Add(s); err != nil {
				return err
			}
		}
		e.logger.Info().Int("stocks", e.registry.Len()).Msg("Seeded default board")
	}

	macro := e.macro.State()
	e.logger.Info().
		Int("stocks", e.registry.Len()).
		Str("cycle", string(macro.Cycle)).
		Str("volatility", string(macro.Volatility)).
		Msg("Market loaded")
	return nil
}

func (e *Engine) rehydrate(ctx context.Context, s *models.Stock) error {
	// Script dates come back from storage in the process zone.
	if s.Script != nil {
		s.Script.Date = e.clock.TradingDay(s.Script.Date)
	}

	candles, err := e.store.RecentCandles(ctx, s.Ticker, e.cfg.Simulation.CandleHistoryLen)
	if err != nil {
		return errors.Wrapf(err, "loading candles for %s", s.Ticker)
	}
	s.Candles = candles

	if len(s.PriceHistory) == 0 {
		from := max(0, len(candles)-e.cfg.Simulation.PriceHistoryLen)
		for _, c := range candles[from:] {
			s.PushPrice(c.Close, e.cfg.Simulation.PriceHistoryLen)
		}
		if len(s.PriceHistory) == 0 {
			s.PushPrice(s.CurrentPrice, e.cfg.Simulation.PriceHistoryLen)
		}
	}
	return nil
}

// Clock returns the market clock.
func (e *Engine) Clock() *Clock {
	return e.clock
}

// Pressure returns the pressure ledger shared with the order path.
func (e *Engine) Pressure() *simulation.PressureLedger {
	return e.pressure
}

// Macro returns the current macro regime.
func (e *Engine) Macro() models.MacroCycle {
	return e.macro.State()
}

// Tickers returns the live tickers in order.
func (e *Engine) Tickers() []string {
	return e.registry.Tickers()
}

// WithStock runs fn while holding ticker's lock. fn must not retain s.
func (e *Engine) WithStock(ticker string, fn func(s *models.Stock) error) error {
	en, ok := e.registry.get(ticker)
	if !ok {
		return errors.ErrStockNotFound
	}
	en.mu.Lock()
	defer en.mu.Unlock()
	if en.removed {
		return errors.ErrStockNotFound
	}
	return fn(en.stock)
}

// Record returns the persistable form of s. The caller must hold s's lock.
func (e *Engine) Record(s *models.Stock) store.StockRecord {
	return store.StockRecord{Stock: s.Snapshot(), Maker: e.maker.State(s.Ticker)}
}

// Stock returns a snapshot of ticker.
func (e *Engine) Stock(ticker string) (models.Stock, error) {
	var out models.Stock
	err := e.WithStock(ticker, func(s *models.Stock) error {
		out = s.Snapshot()
		return nil
	})
	return out, err
}

// Stocks returns snapshots of every live stock ordered by ticker.
func (e *Engine) Stocks() []models.Stock {
	entries := e.registry.snapshot()
	out := make([]models.Stock, 0, len(entries))
	for _, en := range entries {
		en.mu.Lock()
		if !en.removed {
			out = append(out, en.stock.Snapshot())
		}
		en.mu.Unlock()
	}
	return out
}

// Quote returns the latest quote for ticker.
func (e *Engine) Quote(ticker string) (models.Quote, error) {
	var q models.Quote
	err := e.WithStock(ticker, func(s *models.Stock) error {
		q = quoteOf(s, s.UpdatedAt, "")
		return nil
	})
	return q, err
}

// Candles returns up to limit of the latest persisted candles for ticker.
func (e *Engine) Candles(ctx context.Context, ticker string, limit int) ([]models.Candle, error) {
	if !e.registry.Has(ticker) {
		return nil, errors.ErrStockNotFound
	}
	return e.store.RecentCandles(ctx, ticker, limit)
}

// MakerState returns the market maker state for ticker.
func (e *Engine) MakerState(ticker string) (models.MarketMakerState, error) {
	var st models.MarketMakerState
	err := e.WithStock(ticker, func(s *models.Stock) error {
		st = e.maker.State(s.Ticker)
		return nil
	})
	return st, err
}

// Tick runs one simulation pass at now: rolls the day when needed, advances
// every stock one tick, persists the results and publishes quotes. Per-stock
// failures are joined into the returned error and never stop other stocks.
func (e *Engine) Tick(ctx context.Context, now time.Time) error {
	start := time.Now()
	logger := logging.WithOperation(e.logger, "tick")
	if err := e.rollover(ctx, now); err != nil {
		return err
	}

	interval := e.cfg.Simulation.TickInterval
	now = now.In(e.clock.Location())
	day := e.clock.TradingDay(now)
	at := day.Add(now.Sub(day).Truncate(interval))
	remaining := e.clock.RemainingTicks(now, interval)

	var (
		outs []tickOutput
		errs []error
		busy []*entry
	)
	advance := func(en *entry) {
		out, ok, err := e.advance(en, day, at, remaining)
		switch {
		case err != nil:
			errs = append(errs, err)
			e.recordFailure(logger, err, "advance")
		case ok:
			outs = append(outs, out)
		}
	}

	for _, en := range e.registry.snapshot() {
		if err := ctx.Err(); err != nil {
			return err
		}
		// Stocks locked by an order are revisited once the rest are done.
		if !en.mu.TryLock() {
			busy = append(busy, en)
			continue
		}
		advance(en)
		en.mu.Unlock()
	}
	for _, en := range busy {
		en.mu.Lock()
		advance(en)
		en.mu.Unlock()
	}

	errs = append(errs, e.persist(ctx, logger, outs)...)
	e.publish(ctx, logger, outs)

	elapsed := time.Since(start)
	if e.metrics != nil {
		e.metrics.RecordTick(elapsed)
	}
	logging.LogTick(logger, at, len(outs), elapsed)
	return errors.Join(errs...)
}

type tickOutput struct {
	entry  *entry
	record store.StockRecord
	candle models.Candle
	event  *simulation.EventResult
	quote  models.Quote
}

// advance ticks one stock. The caller holds en.mu.
func (e *Engine) advance(en *entry, day, at time.Time, remaining int) (out tickOutput, ok bool, err error) {
	if en.removed {
		return out, false, nil
	}
	s := en.stock
	defer func() {
		if r := recover(); r != nil {
			out, ok = tickOutput{}, false
			err = errors.NewTickError(s.Ticker, "advance", fmt.Errorf("panic: %v", r))
		}
	}()

	if !s.Script.Valid(day) {
		e.scripts.OpenDay(s, e.macro.State(), day, s.Script != nil)
	}

	res, ticked := e.prices.Tick(s, at, remaining)
	if !ticked {
		return out, false, nil
	}

	out = tickOutput{
		entry:  en,
		record: e.Record(s),
		candle: res.Candle,
		event:  res.Event,
	}
	msg := ""
	if res.Event != nil {
		msg = res.Event.Message
	}
	out.quote = quoteOf(s, at, msg)
	return out, true, nil
}

func (e *Engine) persist(ctx context.Context, logger zerolog.Logger, outs []tickOutput) []error {
	var (
		g    errgroup.Group
		mu   sync.Mutex
		errs []error
	)
	g.SetLimit(max(1, e.cfg.Simulation.PersistWorkers))

	for _, out := range outs {
		g.Go(func() error {
			if err := e.saveTick(ctx, out); err != nil {
				terr := errors.NewTickError(out.record.Stock.Ticker, "persist", err)
				e.recordFailure(logger, terr, "persist")
				mu.Lock()
				errs = append(errs, terr)
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()
	return errs
}

// saveTick writes the entry's current state with the tick's candle. It holds
// the entry lock so an order committed after the tick is never overwritten
// by the older tick snapshot, and a delisted stock is skipped.
func (e *Engine) saveTick(ctx context.Context, out tickOutput) error {
	en := out.entry
	en.mu.Lock()
	defer en.mu.Unlock()
	if en.removed {
		return nil
	}
	return e.store.SaveTick(ctx, e.Record(en.stock), out.candle)
}

func (e *Engine) publish(ctx context.Context, logger zerolog.Logger, outs []tickOutput) {
	for _, out := range outs {
		if e.hub != nil {
			e.hub.Publish(out.quote)
		}
		if e.metrics != nil {
			e.metrics.RecordQuote(out.quote.Ticker, out.quote.Price, out.quote.MarketPressure, out.record.Maker.Position)
		}
		if out.event == nil {
			continue
		}
		if e.metrics != nil {
			e.metrics.RecordEvent(out.quote.Ticker, out.event.Event.Kind)
		}
		tickerLogger := logging.WithTicker(logger, out.quote.Ticker)
		tickerLogger.Info().
			Float64("percent", out.event.Percent).
			Msg(out.event.Message)
		e.notifier.Notify(ctx, notify.EventNotification(out.quote.Ticker, out.event.Message, out.event.Percent))
	}
}

func (e *Engine) recordFailure(logger zerolog.Logger, err error, stage string) {
	logger.Error().Err(err).Str("stage", stage).Msg("Tick failed for stock")
	if e.metrics != nil {
		e.metrics.RecordTickFailure(stage)
	}
}

// rollover advances the macro regime once per new trading day. Scripts are
// opened lazily per stock on their first tick of the day.
func (e *Engine) rollover(ctx context.Context, now time.Time) error {
	day := e.clock.TradingDay(now)

	e.dayMu.Lock()
	defer e.dayMu.Unlock()
	if !e.day.IsZero() && !day.After(e.day) {
		return nil
	}

	changes := e.macro.AdvanceDay()
	e.day = day
	for _, c := range changes {
		logging.LogRegimeChange(e.logger, c.Kind, c.From, c.To)
		e.notifier.Notify(ctx, notify.RegimeNotification(c.Kind, c.From, c.To))
	}

	if err := e.store.SaveMarketState(ctx, store.MarketState{Macro: e.macro.State(), TradingDay: day}); err != nil {
		return errors.NewTickError("", "market_state", err)
	}
	e.logger.Info().Time("day", day).Msg("Trading day opened")
	return nil
}

func quoteOf(s *models.Stock, at time.Time, event string) models.Quote {
	q := models.Quote{
		Ticker:         s.Ticker,
		Price:          s.CurrentPrice,
		PreviousClose:  s.PreviousClose,
		Change:         round2(s.CurrentPrice - s.PreviousClose),
		MarketPressure: s.MarketPressure,
		Event:          event,
		Timestamp:      at,
	}
	if s.PreviousClose > 0 {
		q.ChangePercent = round2((s.CurrentPrice/s.PreviousClose - 1) * 100)
	}
	return q
}
