// Package trading settles market orders against the live market, the
// position store and the cash ledger.
package trading

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"synth-exchange/internal/config"
	"synth-exchange/internal/errors"
	"synth-exchange/internal/ledger"
	"synth-exchange/internal/logging"
	"synth-exchange/internal/market"
	"synth-exchange/internal/metrics"
	"synth-exchange/internal/models"
	"synth-exchange/internal/notify"
	"synth-exchange/internal/simulation"
	"synth-exchange/internal/store"
)

// Market is the part of the live market the order path needs.
type Market interface {
	Clock() *market.Clock
	Pressure() *simulation.PressureLedger
	WithStock(ticker string, fn func(s *models.Stock) error) error
	Record(s *models.Stock) store.StockRecord
}

// Options wires the collaborators of an Engine. Market, Store and Ledger
// are required.
type Options struct {
	Market   Market
	Store    store.Store
	Ledger   ledger.Ledger
	Notifier notify.Notifier
	Metrics  *metrics.Recorder
	Logger   zerolog.Logger
}

// Engine executes buy and sell orders. Each order takes the (user, stock)
// lock, then the stock lock, and settles lots, trade, stock snapshot and
// ledger leg as one unit.
type Engine struct {
	cfg      config.TradingConfig
	fees     FeeSchedule
	market   Market
	store    store.Store
	ledger   ledger.Ledger
	notifier notify.Notifier
	metrics  *metrics.Recorder
	logger   zerolog.Logger
	locks    *keyedLocks
	newID    func() string
}

// NewEngine creates a trading engine.
func NewEngine(cfg config.TradingConfig, opts Options) (*Engine, error) {
	switch {
	case opts.Market == nil:
		return nil, errors.NewValidationError("market", nil, "a market is required", errors.ErrConfigInvalid)
	case opts.Store == nil:
		return nil, errors.NewValidationError("store", nil, "a store is required", errors.ErrConfigInvalid)
	case opts.Ledger == nil:
		return nil, errors.NewValidationError("ledger", nil, "a ledger is required", errors.ErrConfigInvalid)
	}
	notifier := opts.Notifier
	if notifier == nil {
		notifier = notify.NoOpNotifier{}
	}
	return &Engine{
		cfg:      cfg,
		fees:     NewFeeSchedule(cfg),
		market:   opts.Market,
		store:    opts.Store,
		ledger:   opts.Ledger,
		notifier: notifier,
		metrics:  opts.Metrics,
		logger:   opts.Logger.With().Str("component", "trading").Logger(),
		locks:    newKeyedLocks(),
		newID:    uuid.NewString,
	}, nil
}

// Balance returns the user's cash balance.
func (e *Engine) Balance(ctx context.Context, userID string) (float64, error) {
	return e.ledger.Balance(ctx, userID)
}

// orderContext holds the per-order lookups the fee and liquidity rules use.
type orderContext struct {
	now          time.Time
	userVolume   float64
	recentTrades int
	stockVolume  float64
}

func (e *Engine) loadOrderContext(ctx context.Context, userID, ticker string, now time.Time) (orderContext, error) {
	day := e.market.Clock().TradingDay(now)
	oc := orderContext{now: now}

	var err error
	if oc.userVolume, err = e.store.UserVolumeSince(ctx, userID, day); err != nil {
		return oc, errors.Wrap(err, "loading user volume")
	}
	if oc.recentTrades, err = e.store.UserTradeCountSince(ctx, userID, now.Add(-e.cfg.FrequentTradeWindow)); err != nil {
		return oc, errors.Wrap(err, "loading recent trades")
	}
	if oc.stockVolume, err = e.store.StockVolumeSince(ctx, ticker, day); err != nil {
		return oc, errors.Wrap(err, "loading stock volume")
	}
	return oc, nil
}

// adjust runs the ledger leg under the configured timeout. Any failure other
// than an overdraft is reported as ErrLedgerFailure.
func (e *Engine) adjust(ctx context.Context, userID string, amount float64, memo string) error {
	lctx, cancel := context.WithTimeout(ctx, e.cfg.LedgerTimeout)
	defer cancel()
	err := e.ledger.Adjust(lctx, userID, amount, memo)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, errors.ErrInsufficientFunds), errors.Is(err, errors.ErrLedgerFailure):
		return err
	default:
		return errors.Join(errors.ErrLedgerFailure, err)
	}
}

// reverse undoes a ledger leg whose store transaction failed to commit.
func (e *Engine) reverse(ctx context.Context, userID string, amount float64, memo string, cause error) {
	rctx := context.WithoutCancel(ctx)
	logger := logging.WithUser(e.logger, userID)
	if err := e.adjust(rctx, userID, -amount, "reversal: "+memo); err != nil {
		logger.Error().
			Err(err).
			AnErr("cause", cause).
			Float64("amount", amount).
			Msg("Ledger reversal failed")
		return
	}
	logger.Warn().
		AnErr("cause", cause).
		Float64("amount", amount).
		Msg("Ledger leg reversed after store failure")
}

func (e *Engine) reject(userID, ticker string, side models.OrderSide, err error) error {
	reason := reasonOf(err)
	if e.metrics != nil {
		e.metrics.RecordOrderError(reason)
	}
	logger := logging.WithTicker(logging.WithUser(e.logger, userID), ticker)
	ev := logger.Warn()
	if reason == "internal" || reason == "ledger" {
		ev = logger.Error()
	}
	ev.Err(err).
		Str("side", string(side)).
		Str("reason", reason).
		Msg("Order rejected")
	return errors.NewOrderError(userID, ticker, string(side), reason, err)
}

func (e *Engine) settled(ctx context.Context, t models.Trade) {
	if e.metrics != nil {
		e.metrics.RecordTrade(t.Ticker, string(t.Side))
	}
	logging.LogTrade(e.logger, t.UserID, t.Ticker, string(t.Side), t.Quantity, t.Price, t.Fee)
	e.notifier.Notify(ctx, notify.TradeNotification(t))
}

func reasonOf(err error) string {
	switch {
	case errors.Is(err, errors.ErrMarketClosed):
		return "market_closed"
	case errors.Is(err, errors.ErrInvalidQuantity):
		return "invalid_quantity"
	case errors.Is(err, errors.ErrStockNotFound):
		return "stock_not_found"
	case errors.Is(err, errors.ErrInsufficientFunds):
		return "insufficient_funds"
	case errors.Is(err, errors.ErrInsufficientShares):
		return "insufficient_shares"
	case errors.Is(err, errors.ErrLiquidityExhausted):
		return "liquidity_exhausted"
	case errors.Is(err, errors.ErrLedgerFailure):
		return "ledger"
	default:
		return "internal"
	}
}

func memo(side models.OrderSide, qty int64, ticker string, fee float64) string {
	return fmt.Sprintf("%s %d %s (fee %.2f)", side, qty, ticker, fee)
}
