package store

import (
	"context"
	"slices"
	"sort"
	"sync"
	"time"

	apperrors "synth-exchange/internal/errors"
	"synth-exchange/internal/models"
)

// MemoryStore is an in-process Store used for simulations and tests.
type MemoryStore struct {
	mu      sync.Mutex
	stocks  map[string]StockRecord
	candles map[string]map[int64]models.Candle
	lots    []models.Lot
	trades  []models.Trade
	state   *MarketState
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		stocks:  make(map[string]StockRecord),
		candles: make(map[string]map[int64]models.Candle),
	}
}

func (m *MemoryStore) SaveStock(ctx context.Context, rec StockRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saveStock(rec)
	return nil
}

func (m *MemoryStore) saveStock(rec StockRecord) {
	rec.Stock = rec.Stock.Snapshot()
	m.stocks[rec.Stock.Ticker] = rec
}

func (m *MemoryStore) LoadStocks(ctx context.Context) ([]StockRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]StockRecord, 0, len(m.stocks))
	for _, rec := range m.stocks {
		rec.Stock = rec.Stock.Snapshot()
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Stock.Ticker < out[j].Stock.Ticker })
	return out, nil
}

func (m *MemoryStore) DeleteStock(ctx context.Context, ticker string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.stocks, ticker)
	delete(m.candles, ticker)
	m.lots = slices.DeleteFunc(m.lots, func(l models.Lot) bool { return l.Ticker == ticker })
	return nil
}

func (m *MemoryStore) UpsertCandle(ctx context.Context, c models.Candle) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.upsertCandle(c)
	return nil
}

func (m *MemoryStore) upsertCandle(c models.Candle) {
	series, ok := m.candles[c.Ticker]
	if !ok {
		series = make(map[int64]models.Candle)
		m.candles[c.Ticker] = series
	}
	series[c.Timestamp.Unix()] = c
}

func (m *MemoryStore) SaveTick(ctx context.Context, rec StockRecord, c models.Candle) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.stocks[rec.Stock.Ticker]; !ok {
		return apperrors.NewDataError("stock", rec.Stock.Ticker, "no stored row to update", apperrors.ErrDataNotFound)
	}
	m.saveStock(rec)
	m.upsertCandle(c)
	return nil
}

func (m *MemoryStore) GetCandles(ctx context.Context, ticker string, from, to time.Time) ([]models.Candle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Candle
	for ts, c := range m.candles[ticker] {
		if ts >= from.Unix() && ts <= to.Unix() {
			out = append(out, c)
		}
	}
	sortCandles(out)
	return out, nil
}

func (m *MemoryStore) RecentCandles(ctx context.Context, ticker string, limit int) ([]models.Candle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.Candle, 0, len(m.candles[ticker]))
	for _, c := range m.candles[ticker] {
		out = append(out, c)
	}
	sortCandles(out)
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

func sortCandles(cs []models.Candle) {
	sort.Slice(cs, func(i, j int) bool { return cs[i].Timestamp.Before(cs[j].Timestamp) })
}

func (m *MemoryStore) SaveMarketState(ctx context.Context, st MarketState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state = &st
	return nil
}

func (m *MemoryStore) LoadMarketState(ctx context.Context) (MarketState, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state == nil {
		return MarketState{}, false, nil
	}
	return *m.state, true, nil
}

func (m *MemoryStore) Lots(ctx context.Context, userID, ticker string) ([]models.Lot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lotsFor(userID, ticker, time.Time{}), nil
}

// lotsFor returns matching lots oldest first. A zero cutoff matches every lot.
func (m *MemoryStore) lotsFor(userID, ticker string, cutoff time.Time) []models.Lot {
	var out []models.Lot
	for _, l := range m.lots {
		if l.UserID != userID || (ticker != "" && l.Ticker != ticker) {
			continue
		}
		if !cutoff.IsZero() && l.PurchasedAt.After(cutoff) {
			continue
		}
		out = append(out, l)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Ticker != out[j].Ticker {
			return out[i].Ticker < out[j].Ticker
		}
		if !out[i].PurchasedAt.Equal(out[j].PurchasedAt) {
			return out[i].PurchasedAt.Before(out[j].PurchasedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func (m *MemoryStore) UserLots(ctx context.Context, userID string) ([]models.Lot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lotsFor(userID, "", time.Time{}), nil
}

func (m *MemoryStore) Holders(ctx context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []string
	for _, l := range m.lots {
		if !slices.Contains(out, l.UserID) {
			out = append(out, l.UserID)
		}
	}
	slices.Sort(out)
	return out, nil
}

func (m *MemoryStore) Trades(ctx context.Context, filter TradeFilter) ([]models.Trade, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Trade
	for i := len(m.trades) - 1; i >= 0; i-- {
		t := m.trades[i]
		if filter.UserID != "" && t.UserID != filter.UserID {
			continue
		}
		if filter.Ticker != "" && t.Ticker != filter.Ticker {
			continue
		}
		if filter.Side != "" && t.Side != filter.Side {
			continue
		}
		if !filter.Since.IsZero() && t.Timestamp.Before(filter.Since) {
			continue
		}
		out = append(out, t)
		if filter.Limit > 0 && len(out) == filter.Limit {
			break
		}
	}
	return out, nil
}

func (m *MemoryStore) UserVolumeSince(ctx context.Context, userID string, since time.Time) (float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var v float64
	for _, t := range m.trades {
		if t.UserID == userID && !t.Timestamp.Before(since) {
			v += t.Gross
		}
	}
	return v, nil
}

func (m *MemoryStore) UserTradeCountSince(ctx context.Context, userID string, since time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, t := range m.trades {
		if t.UserID == userID && !t.Timestamp.Before(since) {
			n++
		}
	}
	return n, nil
}

func (m *MemoryStore) StockVolumeSince(ctx context.Context, ticker string, since time.Time) (float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var v float64
	for _, t := range m.trades {
		if t.Ticker == ticker && !t.Timestamp.Before(since) {
			v += t.Gross
		}
	}
	return v, nil
}

// InTx stages writes and applies them only when fn succeeds. The store lock
// is held for the whole of fn, so fn must not call back into the store.
func (m *MemoryStore) InTx(ctx context.Context, fn func(tx Tx) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	tx := &memoryTx{
		store:  m,
		lots:   slices.Clone(m.lots),
		stocks: make(map[string]StockRecord),
	}
	if err := fn(tx); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	m.lots = tx.lots
	m.trades = append(m.trades, tx.trades...)
	for _, rec := range tx.stocks {
		m.saveStock(rec)
	}
	return nil
}

func (m *MemoryStore) Close() error { return nil }

type memoryTx struct {
	store  *MemoryStore
	lots   []models.Lot
	trades []models.Trade
	stocks map[string]StockRecord
}

func (t *memoryTx) InsertLot(ctx context.Context, lot models.Lot) error {
	t.lots = append(t.lots, lot)
	return nil
}

func (t *memoryTx) ConsumeLots(ctx context.Context, userID, ticker string, qty int64, cutoff time.Time) ([]models.LotFill, error) {
	view := &MemoryStore{lots: t.lots}
	eligible := view.lotsFor(userID, ticker, cutoff)
	fills, err := planFills(eligible, qty)
	if err != nil {
		return nil, err
	}

	taken := make(map[string]int64, len(fills))
	for _, f := range fills {
		taken[f.LotID] = f.Quantity
	}
	next := t.lots[:0:0]
	for _, l := range t.lots {
		if q, ok := taken[l.ID]; ok {
			l.Quantity -= q
			if l.Quantity == 0 {
				continue
			}
		}
		next = append(next, l)
	}
	t.lots = next
	return fills, nil
}

func (t *memoryTx) AppendTrade(ctx context.Context, tr models.Trade) error {
	t.trades = append(t.trades, tr)
	return nil
}

func (t *memoryTx) SaveStock(ctx context.Context, rec StockRecord) error {
	t.stocks[rec.Stock.Ticker] = rec
	return nil
}
