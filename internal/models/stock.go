package models

import "time"

// History bounds used when none are configured.
const (
	DefaultPriceHistoryLen  = 60
	DefaultDailyCloseLen    = 20
	DefaultCandleHistoryLen = 9000
)

// MinPrice is the hard floor for every price.
const MinPrice = 0.01

// Stock is the simulated state of one ticker.
type Stock struct {
	Ticker     string
	Name       string
	Industry   string
	Volatility float64

	CurrentPrice     float64
	PreviousClose    float64
	FundamentalValue float64

	Script *DailyScript

	Momentum       float64
	WaveTick       int
	WaveDuration   int
	WavePeak       float64
	MarketPressure float64
	PendingSell    float64

	PriceHistory []float64
	DailyCloses  []float64
	Candles      []Candle

	OwnerID     string
	TotalShares int64
	IsListed    bool

	UpdatedAt time.Time
}

// NewStock creates a stock priced at price with the fundamental value anchored to it.
func NewStock(ticker, name, industry string, price, volatility float64) *Stock {
	price = FloorPrice(price)
	return &Stock{
		Ticker:           ticker,
		Name:             name,
		Industry:         industry,
		Volatility:       volatility,
		CurrentPrice:     price,
		PreviousClose:    price,
		FundamentalValue: price,
		PriceHistory:     []float64{price},
	}
}

// FloorPrice clamps p to MinPrice.
func FloorPrice(p float64) float64 {
	if p < MinPrice {
		return MinPrice
	}
	return p
}

// PushPrice appends p to the recent price window.
func (s *Stock) PushPrice(p float64, limit int) {
	s.PriceHistory = pushBounded(s.PriceHistory, p, limit, DefaultPriceHistoryLen)
}

// PushDailyClose appends p to the daily close window.
func (s *Stock) PushDailyClose(p float64, limit int) {
	s.DailyCloses = pushBounded(s.DailyCloses, p, limit, DefaultDailyCloseLen)
}

// AppendCandle adds c to the candle series, replacing the last candle when
// it has the same timestamp.
func (s *Stock) AppendCandle(c Candle, limit int) {
	if n := len(s.Candles); n > 0 && s.Candles[n-1].Timestamp.Equal(c.Timestamp) {
		s.Candles[n-1] = c
		return
	}
	if limit <= 0 {
		limit = DefaultCandleHistoryLen
	}
	s.Candles = append(s.Candles, c)
	if len(s.Candles) > limit {
		s.Candles = append(s.Candles[:0:0], s.Candles[len(s.Candles)-limit:]...)
	}
}

// SMA returns the simple moving average of the last n recent prices, or
// fallback when fewer than n prices exist.
func (s *Stock) SMA(n int, fallback float64) float64 {
	if n <= 0 || len(s.PriceHistory) < n {
		return fallback
	}
	sum := 0.0
	for _, p := range s.PriceHistory[len(s.PriceHistory)-n:] {
		sum += p
	}
	return sum / float64(n)
}

// Snapshot returns a copy safe to hand to another goroutine.
func (s *Stock) Snapshot() Stock {
	c := *s
	c.PriceHistory = append([]float64(nil), s.PriceHistory...)
	c.DailyCloses = append([]float64(nil), s.DailyCloses...)
	c.Candles = nil
	if s.Script != nil {
		script := *s.Script
		c.Script = &script
	}
	return c
}

func pushBounded(buf []float64, v float64, limit, def int) []float64 {
	if limit <= 0 {
		limit = def
	}
	buf = append(buf, v)
	if len(buf) > limit {
		buf = append(buf[:0:0], buf[len(buf)-limit:]...)
	}
	return buf
}
