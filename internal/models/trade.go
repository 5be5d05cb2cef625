package models

import "time"

// Trade represents a settled order leg.
type Trade struct {
	ID         string
	UserID     string
	Ticker     string
	Side       OrderSide
	Quantity   int64
	Price      float64
	Gross      float64
	Fee        float64
	Slippage   float64
	ProfitLoss float64
	Timestamp  time.Time
}

// Lot is one discrete purchase subject to FIFO consumption and a sell lock.
type Lot struct {
	ID            string
	UserID        string
	Ticker        string
	Quantity      int64
	PurchasePrice float64
	PurchasedAt   time.Time
}

// LotFill records how much of a lot a sell consumed.
type LotFill struct {
	LotID    string
	Quantity int64
	Price    float64
}

// Position aggregates a user's lots in one stock.
type Position struct {
	UserID      string
	Ticker      string
	Quantity    int64
	Sellable    int64
	AverageCost float64
	MarketPrice float64
	MarketValue float64
	ProfitLoss  float64
}

// Portfolio summarises a user's holdings and cash.
type Portfolio struct {
	UserID      string
	Balance     float64
	Positions   []Position
	MarketValue float64
	TotalAsset  float64
}

// RankingEntry is one row of the total asset leaderboard.
type RankingEntry struct {
	Rank        int
	UserID      string
	Balance     float64
	MarketValue float64
	TotalAsset  float64
}
