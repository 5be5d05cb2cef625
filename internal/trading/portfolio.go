package trading

import (
	"context"
	"sort"

	"github.com/shopspring/decimal"

	"synth-exchange/internal/errors"
	"synth-exchange/internal/models"
)

// Portfolio values the user's holdings at current prices. Lots in stocks
// that are no longer listed are skipped.
func (e *Engine) Portfolio(ctx context.Context, userID string) (models.Portfolio, error) {
	balance, err := e.ledger.Balance(ctx, userID)
	if err != nil {
		return models.Portfolio{}, errors.Join(errors.ErrLedgerFailure, err)
	}
	lots, err := e.store.UserLots(ctx, userID)
	if err != nil {
		return models.Portfolio{}, errors.Wrap(err, "loading lots")
	}

	cutoff := e.market.Clock().Now().Add(-e.cfg.SellLock)
	type agg struct {
		qty      int64
		sellable int64
		cost     decimal.Decimal
	}
	byTicker := make(map[string]*agg)
	for _, l := range lots {
		a, ok := byTicker[l.Ticker]
		if !ok {
			a = &agg{}
			byTicker[l.Ticker] = a
		}
		a.qty += l.Quantity
		if !l.PurchasedAt.After(cutoff) {
			a.sellable += l.Quantity
		}
		a.cost = a.cost.Add(decimal.NewFromFloat(l.PurchasePrice).Mul(decimal.NewFromInt(l.Quantity)))
	}

	p := models.Portfolio{UserID: userID, Balance: balance}
	value := decimal.Zero
	for ticker, a := range byTicker {
		var price float64
		err := e.market.WithStock(ticker, func(s *models.Stock) error {
			price = s.CurrentPrice
			return nil
		})
		if errors.Is(err, errors.ErrStockNotFound) {
			continue
		}
		if err != nil {
			return models.Portfolio{}, err
		}

		mv := decimal.NewFromFloat(price).Mul(decimal.NewFromInt(a.qty))
		p.Positions = append(p.Positions, models.Position{
			UserID:      userID,
			Ticker:      ticker,
			Quantity:    a.qty,
			Sellable:    a.sellable,
			AverageCost: a.cost.Div(decimal.NewFromInt(a.qty)).Round(4).InexactFloat64(),
			MarketPrice: price,
			MarketValue: mv.Round(2).InexactFloat64(),
			ProfitLoss:  mv.Sub(a.cost).Round(2).InexactFloat64(),
		})
		value = value.Add(mv)
	}
	sort.Slice(p.Positions, func(i, j int) bool { return p.Positions[i].Ticker < p.Positions[j].Ticker })

	p.MarketValue = value.Round(2).InexactFloat64()
	p.TotalAsset = value.Add(decimal.NewFromFloat(balance)).Round(2).InexactFloat64()
	return p, nil
}

// DefaultRankingLimit is the leaderboard size when none is given.
const DefaultRankingLimit = 10

// Ranking returns the top limit holders by total asset, cash balance plus
// holdings at current prices. Ties rank by user ID.
func (e *Engine) Ranking(ctx context.Context, limit int) ([]models.RankingEntry, error) {
	if limit <= 0 {
		limit = DefaultRankingLimit
	}
	holders, err := e.store.Holders(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "loading holders")
	}

	entries := make([]models.RankingEntry, 0, len(holders))
	for _, userID := range holders {
		p, err := e.Portfolio(ctx, userID)
		if err != nil {
			return nil, errors.Wrapf(err, "valuing %s", userID)
		}
		entries = append(entries, models.RankingEntry{
			UserID:      userID,
			Balance:     p.Balance,
			MarketValue: p.MarketValue,
			TotalAsset:  p.TotalAsset,
		})
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].TotalAsset != entries[j].TotalAsset {
			return entries[i].TotalAsset > entries[j].TotalAsset
		}
		return entries[i].UserID < entries[j].UserID
	})
	if len(entries) > limit {
		entries = entries[:limit]
	}
	for i := range entries {
		entries[i].Rank = i + 1
	}
	return entries, nil
}
