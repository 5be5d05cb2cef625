package trading

import (
	"context"
	"sort"

	"github.com/shopspring/decimal"

	"synth-exchange/internal/errors"
	"synth-exchange/internal/market"
	"synth-exchange/internal/models"
	"synth-exchange/internal/store"
)

// buyQuote is the priced form of a buy.
type buyQuote struct {
	qty      int64
	price    float64
	gross    float64
	slippage float64
	cost     float64
	fee      float64
	total    float64
}

func (e *Engine) quoteBuy(oc orderContext, price float64, qty int64) (buyQuote, error) {
	gross := mulQty(price, qty)
	slip, err := LiquiditySlippage(e.cfg, gross, oc.stockVolume)
	if err != nil {
		return buyQuote{}, err
	}
	cost := round2(gross * (1 + slip))
	fee, err := e.fees.Fee(models.OrderSideBuy, cost, oc.userVolume, oc.recentTrades)
	if err != nil {
		return buyQuote{}, err
	}
	return buyQuote{
		qty:      qty,
		price:    price,
		gross:    gross,
		slippage: slip,
		cost:     cost,
		fee:      fee,
		total:    round2(cost + fee),
	}, nil
}

// sizer picks the buy quantity once the stock is locked.
type sizer func(oc orderContext, price float64) (int64, error)

// Buy purchases qty shares of ticker at the current price.
func (e *Engine) Buy(ctx context.Context, userID, ticker string, qty int64) (models.Trade, error) {
	ticker = market.NormalizeTicker(ticker)
	if qty <= 0 {
		return models.Trade{}, e.reject(userID, ticker, models.OrderSideBuy, errors.ErrInvalidQuantity)
	}
	return e.buy(ctx, userID, ticker, func(orderContext, float64) (int64, error) { return qty, nil })
}

// BuyAllIn buys the largest quantity of ticker the user's balance covers,
// fee and slippage included.
func (e *Engine) BuyAllIn(ctx context.Context, userID, ticker string) (models.Trade, error) {
	ticker = market.NormalizeTicker(ticker)
	return e.buy(ctx, userID, ticker, func(oc orderContext, price float64) (int64, error) {
		balance, err := e.ledger.Balance(ctx, userID)
		if err != nil {
			return 0, errors.Join(errors.ErrLedgerFailure, err)
		}
		if n := e.maxAffordable(oc, price, balance); n > 0 {
			return n, nil
		}
		return 0, errors.ErrInsufficientFunds
	})
}

// maxAffordable returns the largest quantity whose total cost fits balance.
// Total cost grows with quantity, so the first unaffordable size bounds it.
func (e *Engine) maxAffordable(oc orderContext, price, balance float64) int64 {
	if price <= 0 || balance < price {
		return 0
	}
	upper := int(balance/price) + 1
	n := sort.Search(upper, func(i int) bool {
		q, err := e.quoteBuy(oc, price, int64(i+1))
		return err != nil || q.total > balance
	})
	return int64(n)
}

func (e *Engine) buy(ctx context.Context, userID, ticker string, size sizer) (models.Trade, error) {
	unlock := e.locks.lock(userID, ticker)
	defer unlock()

	var trade models.Trade
	err := e.market.WithStock(ticker, func(s *models.Stock) error {
		clock := e.market.Clock()
		now := clock.Now()
		if !clock.IsOpen(now) {
			return errors.ErrMarketClosed
		}

		oc, err := e.loadOrderContext(ctx, userID, ticker, now)
		if err != nil {
			return err
		}
		qty, err := size(oc, s.CurrentPrice)
		if err != nil {
			return err
		}
		q, err := e.quoteBuy(oc, s.CurrentPrice, qty)
		if err != nil {
			return err
		}

		next := s.Snapshot()
		e.market.Pressure().ApplyBuy(&next, q.cost)
		if next.IsListed {
			next.TotalShares += Dilution(e.cfg, qty)
		}
		next.UpdatedAt = now

		trade = models.Trade{
			ID:        e.newID(),
			UserID:    userID,
			Ticker:    ticker,
			Side:      models.OrderSideBuy,
			Quantity:  qty,
			Price:     q.price,
			Gross:     q.cost,
			Fee:       q.fee,
			Slippage:  q.slippage,
			Timestamp: now,
		}
		lot := models.Lot{
			ID:            e.newID(),
			UserID:        userID,
			Ticker:        ticker,
			Quantity:      qty,
			PurchasePrice: q.cost / float64(qty),
			PurchasedAt:   now,
		}
		note := memo(models.OrderSideBuy, qty, ticker, q.fee)

		if err := e.commit(ctx, userID, -q.total, note, func(ctx context.Context, tx store.Tx) error {
			if err := tx.InsertLot(ctx, lot); err != nil {
				return err
			}
			if err := tx.AppendTrade(ctx, trade); err != nil {
				return err
			}
			return tx.SaveStock(ctx, e.market.Record(&next))
		}); err != nil {
			return err
		}

		s.MarketPressure = next.MarketPressure
		s.PendingSell = next.PendingSell
		s.TotalShares = next.TotalShares
		s.UpdatedAt = now
		return nil
	})
	if err != nil {
		return models.Trade{}, e.reject(userID, ticker, models.OrderSideBuy, err)
	}

	e.settled(ctx, trade)
	return trade, nil
}

// Sell sells qty unlocked shares of ticker, consuming lots oldest first.
func (e *Engine) Sell(ctx context.Context, userID, ticker string, qty int64) (models.Trade, error) {
	ticker = market.NormalizeTicker(ticker)
	if qty <= 0 {
		return models.Trade{}, e.reject(userID, ticker, models.OrderSideSell, errors.ErrInvalidQuantity)
	}
	return e.sell(ctx, userID, ticker, qty)
}

// SellAll sells every unlocked share the user holds in ticker.
func (e *Engine) SellAll(ctx context.Context, userID, ticker string) (models.Trade, error) {
	ticker = market.NormalizeTicker(ticker)
	return e.sell(ctx, userID, ticker, 0)
}

// SellPortfolio sells every unlocked position of the user. It returns the
// trades that settled; failures on single stocks are joined into the error.
func (e *Engine) SellPortfolio(ctx context.Context, userID string) ([]models.Trade, error) {
	lots, err := e.store.UserLots(ctx, userID)
	if err != nil {
		return nil, errors.Wrap(err, "loading lots")
	}
	cutoff := e.market.Clock().Now().Add(-e.cfg.SellLock)

	var tickers []string
	seen := make(map[string]bool)
	for _, l := range lots {
		if seen[l.Ticker] || l.PurchasedAt.After(cutoff) {
			continue
		}
		seen[l.Ticker] = true
		tickers = append(tickers, l.Ticker)
	}
	sort.Strings(tickers)
	if len(tickers) == 0 {
		return nil, errors.NewOrderError(userID, "", string(models.OrderSideSell), "insufficient_shares", errors.ErrInsufficientShares)
	}

	var (
		trades []models.Trade
		errs   []error
	)
	for _, t := range tickers {
		tr, err := e.SellAll(ctx, userID, t)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		trades = append(trades, tr)
	}
	return trades, errors.Join(errs...)
}

// sell settles a sell of qty shares; qty 0 sells everything unlocked.
func (e *Engine) sell(ctx context.Context, userID, ticker string, qty int64) (models.Trade, error) {
	unlock := e.locks.lock(userID, ticker)
	defer unlock()

	var trade models.Trade
	err := e.market.WithStock(ticker, func(s *models.Stock) error {
		clock := e.market.Clock()
		now := clock.Now()
		if !clock.IsOpen(now) {
			return errors.ErrMarketClosed
		}
		cutoff := now.Add(-e.cfg.SellLock)

		if qty == 0 {
			lots, err := e.store.Lots(ctx, userID, ticker)
			if err != nil {
				return errors.Wrap(err, "loading lots")
			}
			if qty = store.SellableQuantity(lots, cutoff); qty == 0 {
				return errors.ErrInsufficientShares
			}
		}

		oc, err := e.loadOrderContext(ctx, userID, ticker, now)
		if err != nil {
			return err
		}

		slip := SellSlippage(e.cfg, qty)
		price := s.CurrentPrice * (1 - slip)
		gross := mulQty(price, qty)
		fee, err := e.fees.Fee(models.OrderSideSell, gross, oc.userVolume, oc.recentTrades)
		if err != nil {
			return err
		}
		net := round2(gross - fee)
		next := s.Snapshot()
		next.UpdatedAt = now

		trade = models.Trade{
			ID:        e.newID(),
			UserID:    userID,
			Ticker:    ticker,
			Side:      models.OrderSideSell,
			Quantity:  qty,
			Price:     round2(price),
			Gross:     gross,
			Fee:       fee,
			Slippage:  slip,
			Timestamp: now,
		}
		note := memo(models.OrderSideSell, qty, ticker, fee)

		if err := e.commit(ctx, userID, net, note, func(ctx context.Context, tx store.Tx) error {
			fills, err := tx.ConsumeLots(ctx, userID, ticker, qty, cutoff)
			if err != nil {
				return err
			}
			trade.ProfitLoss = round2(gross - costBasis(fills))
			e.market.Pressure().ApplySell(&next, gross, trade.ProfitLoss)
			if err := tx.AppendTrade(ctx, trade); err != nil {
				return err
			}
			return tx.SaveStock(ctx, e.market.Record(&next))
		}); err != nil {
			return err
		}

		s.MarketPressure = next.MarketPressure
		s.PendingSell = next.PendingSell
		s.UpdatedAt = now
		return nil
	})
	if err != nil {
		return models.Trade{}, e.reject(userID, ticker, models.OrderSideSell, err)
	}

	e.settled(ctx, trade)
	return trade, nil
}

// commit runs fn in a store transaction and settles amount on the ledger as
// the last step inside it. When the ledger leg succeeded but the commit did
// not, the leg is reversed.
func (e *Engine) commit(ctx context.Context, userID string, amount float64, note string, fn func(ctx context.Context, tx store.Tx) error) error {
	settled := false
	err := e.store.InTx(ctx, func(tx store.Tx) error {
		if err := fn(ctx, tx); err != nil {
			return err
		}
		if err := e.adjust(ctx, userID, amount, note); err != nil {
			return err
		}
		settled = true
		return nil
	})
	if err != nil && settled {
		e.reverse(ctx, userID, amount, note, err)
	}
	return err
}

func costBasis(fills []models.LotFill) float64 {
	total := decimal.Zero
	for _, f := range fills {
		total = total.Add(decimal.NewFromFloat(f.Price).Mul(decimal.NewFromInt(f.Quantity)))
	}
	return total.InexactFloat64()
}

func mulQty(price float64, qty int64) float64 {
	return decimal.NewFromFloat(price).Mul(decimal.NewFromInt(qty)).Round(2).InexactFloat64()
}

func round2(v float64) float64 {
	return decimal.NewFromFloat(v).Round(2).InexactFloat64()
}
