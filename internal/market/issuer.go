package market

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"synth-exchange/internal/errors"
	"synth-exchange/internal/models"
	"synth-exchange/internal/notify"
)

// ListedIndustry is the industry of every issuer-listed stock.
const ListedIndustry = "listed"

// Listing describes a stock registered by an issuer.
type Listing struct {
	Ticker      string
	Name        string
	Price       float64
	TotalShares int64
	OwnerID     string
}

// NormalizeTicker returns the canonical form of a ticker.
func NormalizeTicker(ticker string) string {
	return strings.ToUpper(strings.TrimSpace(ticker))
}

// IsTickerAvailable reports whether ticker can be listed.
func (e *Engine) IsTickerAvailable(ticker string) bool {
	t := NormalizeTicker(ticker)
	return t != "" && !e.registry.Has(t)
}

// ListStock registers a new issuer stock, opens its trading day right away
// and persists it. Listed stocks never receive native events.
func (e *Engine) ListStock(ctx context.Context, l Listing) (models.Stock, error) {
	ticker := NormalizeTicker(l.Ticker)
	switch {
	case ticker == "":
		return models.Stock{}, errors.NewValidationError("ticker", l.Ticker, "ticker is required", errors.ErrInvalidValue)
	case l.Price <= 0:
		return models.Stock{}, errors.NewValidationError("price", l.Price, "price must be positive", errors.ErrInvalidValue)
	case l.TotalShares < 0:
		return models.Stock{}, errors.NewValidationError("total_shares", l.TotalShares, "share count cannot be negative", errors.ErrInvalidValue)
	}
	name := strings.TrimSpace(l.Name)
	if name == "" {
		name = ticker
	}

	e.listMu.Lock()
	defer e.listMu.Unlock()
	if e.registry.Has(ticker) {
		return models.Stock{}, errors.ErrStockExists
	}

	now := e.clock.Now()
	if err := e.rollover(ctx, now); err != nil {
		return models.Stock{}, err
	}
	day := e.clock.TradingDay(now)

	s := models.NewStock(ticker, name, ListedIndustry, l.Price, e.cfg.Trading.ListedVolatility)
	s.IsListed = true
	s.OwnerID = l.OwnerID
	s.TotalShares = l.TotalShares
	s.UpdatedAt = now
	e.scripts.OpenDay(s, e.macro.State(), day, false)

	// The stock is unreachable until registered, so it needs no lock here.
	e.maker.Restore(ticker, *models.NewMarketMakerState())
	if err := e.store.SaveStock(ctx, e.Record(s)); err != nil {
		e.maker.Remove(ticker)
		return models.Stock{}, errors.Wrapf(err, "persisting listing %s", ticker)
	}
	out := s.Snapshot()
	if err := e.registry.Add(s); err != nil {
		e.maker.Remove(ticker)
		return models.Stock{}, err
	}

	e.logger.Info().
		Str("ticker", ticker).
		Str("owner", l.OwnerID).
		Float64("price", out.CurrentPrice).
		Int64("total_shares", out.TotalShares).
		Msg("Stock listed")
	e.notifier.Notify(ctx, notify.ListingNotification(ticker, fmt.Sprintf("%s (%s) listed at %.2f", name, ticker, out.CurrentPrice)))
	return out, nil
}

// Delist removes a listed stock with its candles and lots.
func (e *Engine) Delist(ctx context.Context, ticker string) error {
	ticker = NormalizeTicker(ticker)
	en, ok := e.registry.get(ticker)
	if !ok {
		return errors.ErrStockNotFound
	}

	en.mu.Lock()
	defer en.mu.Unlock()
	if en.removed {
		return errors.ErrStockNotFound
	}
	if !en.stock.IsListed {
		return errors.ErrNotListed
	}
	if err := e.store.DeleteStock(ctx, ticker); err != nil {
		return errors.Wrapf(err, "delisting %s", ticker)
	}

	en.removed = true
	e.registry.Remove(ticker)
	e.maker.Remove(ticker)
	if e.hub != nil {
		e.hub.UnsubscribeAll(ticker)
	}
	if e.metrics != nil {
		e.metrics.Forget(ticker)
	}

	e.logger.Info().Str("ticker", ticker).Msg("Stock delisted")
	e.notifier.Notify(ctx, notify.ListingNotification(ticker, ticker+" delisted"))
	return nil
}

// ReportEarnings reprices a listed stock by an earnings modifier, where 1.0
// is neutral. The move is damped by the configured sensitivity.
func (e *Engine) ReportEarnings(ctx context.Context, ticker string, modifier float64) (models.Stock, error) {
	if modifier <= 0 {
		return models.Stock{}, errors.NewValidationError("modifier", modifier, "modifier must be positive", errors.ErrInvalidValue)
	}
	factor := 1 + (modifier-1)*e.cfg.Trading.EarningsSensitivity
	return e.reprice(ctx, ticker, factor, "earnings")
}

// ReportEvent reprices a listed stock by pct, e.g. -0.1 for a 10% drop.
func (e *Engine) ReportEvent(ctx context.Context, ticker string, pct float64) (models.Stock, error) {
	if pct <= -1 {
		return models.Stock{}, errors.NewValidationError("percent", pct, "move must stay above -100%", errors.ErrInvalidValue)
	}
	return e.reprice(ctx, ticker, 1+pct, "event")
}

func (e *Engine) reprice(ctx context.Context, ticker string, factor float64, kind string) (models.Stock, error) {
	var out models.Stock
	err := e.updateListed(ctx, ticker, func(s *models.Stock) error {
		s.CurrentPrice = models.FloorPrice(round2(s.CurrentPrice * factor))
		s.FundamentalValue = models.FloorPrice(round2(s.FundamentalValue * factor))
		s.PushPrice(s.CurrentPrice, e.cfg.Simulation.PriceHistoryLen)
		out = s.Snapshot()
		return nil
	})
	if err != nil {
		return models.Stock{}, err
	}

	e.logger.Info().
		Str("ticker", out.Ticker).
		Str("kind", kind).
		Float64("factor", factor).
		Float64("price", out.CurrentPrice).
		Msg("Issuer report applied")
	e.notifier.Notify(ctx, notify.EarningsNotification(out.Ticker, factor, out.CurrentPrice))
	return out, nil
}

// SetIntrinsicValue updates the fundamental value of a listed stock. A value
// above the current price adds buying pressure; a lower value adds none.
// It returns the pressure added.
func (e *Engine) SetIntrinsicValue(ctx context.Context, ticker string, value float64) (float64, error) {
	if value <= 0 {
		return 0, errors.NewValidationError("value", value, "intrinsic value must be positive", errors.ErrInvalidValue)
	}
	var delta float64
	err := e.updateListed(ctx, ticker, func(s *models.Stock) error {
		delta = e.pressure.ApplyIntrinsic(s, value)
		s.FundamentalValue = round2(value)
		return nil
	})
	return delta, err
}

// MarketCap returns price times total shares for a listed stock.
func (e *Engine) MarketCap(ticker string) (float64, error) {
	var mcap float64
	err := e.WithStock(NormalizeTicker(ticker), func(s *models.Stock) error {
		if !s.IsListed {
			return errors.ErrNotListed
		}
		mcap = decimal.NewFromFloat(s.CurrentPrice).Mul(decimal.NewFromInt(s.TotalShares)).Round(2).InexactFloat64()
		return nil
	})
	return mcap, err
}

// updateListed applies fn to a listed stock and persists it. The stock is
// restored when persistence fails.
func (e *Engine) updateListed(ctx context.Context, ticker string, fn func(s *models.Stock) error) error {
	return e.WithStock(NormalizeTicker(ticker), func(s *models.Stock) error {
		if !s.IsListed {
			return errors.ErrNotListed
		}
		before := s.Snapshot()
		if err := fn(s); err != nil {
			return err
		}
		s.UpdatedAt = e.clock.Now()
		if err := e.store.SaveStock(ctx, e.Record(s)); err != nil {
			candles := s.Candles
			*s = before
			s.Candles = candles
			return errors.Wrapf(err, "persisting %s", s.Ticker)
		}
		return nil
	})
}

func round2(v float64) float64 {
	return decimal.NewFromFloat(v).Round(2).InexactFloat64()
}
