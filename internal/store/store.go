// Package store provides data persistence interfaces and implementations.
package store

import (
	"context"
	"time"

	"synth-exchange/internal/models"
)

// StockRecord is the persisted snapshot of one stock and its market maker.
type StockRecord struct {
	Stock models.Stock
	Maker models.MarketMakerState
}

// MarketState is the persisted process-wide simulation state.
type MarketState struct {
	Macro      models.MacroCycle
	TradingDay time.Time // zero before the first open
}

// Store defines the interface for market persistence.
type Store interface {
	// Stocks
	SaveStock(ctx context.Context, rec StockRecord) error
	LoadStocks(ctx context.Context) ([]StockRecord, error)
	DeleteStock(ctx context.Context, ticker string) error

	// Candles
	UpsertCandle(ctx context.Context, c models.Candle) error
	SaveTick(ctx context.Context, rec StockRecord, c models.Candle) error
	GetCandles(ctx context.Context, ticker string, from, to time.Time) ([]models.Candle, error)
	RecentCandles(ctx context.Context, ticker string, limit int) ([]models.Candle, error)

	// Market state
	SaveMarketState(ctx context.Context, st MarketState) error
	LoadMarketState(ctx context.Context) (MarketState, bool, error)

	// Holdings
	Lots(ctx context.Context, userID, ticker string) ([]models.Lot, error)
	UserLots(ctx context.Context, userID string) ([]models.Lot, error)
	// Holders lists every user holding at least one lot, sorted.
	Holders(ctx context.Context) ([]string, error)

	// Trade history
	Trades(ctx context.Context, filter TradeFilter) ([]models.Trade, error)
	UserVolumeSince(ctx context.Context, userID string, since time.Time) (float64, error)
	UserTradeCountSince(ctx context.Context, userID string, since time.Time) (int, error)
	StockVolumeSince(ctx context.Context, ticker string, since time.Time) (float64, error)

	// InTx runs fn in one atomic unit. Any error from fn rolls everything back.
	InTx(ctx context.Context, fn func(tx Tx) error) error

	Close() error
}

// Tx is the set of writes an order commits atomically.
type Tx interface {
	InsertLot(ctx context.Context, lot models.Lot) error
	// ConsumeLots removes qty shares from the user's lots purchased at or
	// before cutoff, oldest first. It fails with ErrInsufficientShares and
	// changes nothing when fewer than qty eligible shares exist.
	ConsumeLots(ctx context.Context, userID, ticker string, qty int64, cutoff time.Time) ([]models.LotFill, error)
	AppendTrade(ctx context.Context, t models.Trade) error
	SaveStock(ctx context.Context, rec StockRecord) error
}

// TradeFilter defines filters for querying trades.
type TradeFilter struct {
	UserID string
	Ticker string
	Side   models.OrderSide
	Since  time.Time
	Limit  int
}

// SellableQuantity sums the lot quantity purchased at or before cutoff.
func SellableQuantity(lots []models.Lot, cutoff time.Time) int64 {
	var n int64
	for _, l := range lots {
		if !l.PurchasedAt.After(cutoff) {
			n += l.Quantity
		}
	}
	return n
}
