// Package models provides domain models for the market simulator.
package models

import (
	"time"
)

// OrderSide represents the side of an order.
type OrderSide string

const (
	OrderSideBuy  OrderSide = "BUY"
	OrderSideSell OrderSide = "SELL"
)

// MarketStatus represents the current market status.
type MarketStatus string

const (
	MarketOpen   MarketStatus = "OPEN"
	MarketClosed MarketStatus = "CLOSED"
)

// Bias is the planned direction of a stock for one trading day.
type Bias string

const (
	BiasUp       Bias = "UP"
	BiasSideways Bias = "SIDEWAYS"
	BiasDown     Bias = "DOWN"
)

// Biases lists every bias in weight-slot order.
var Biases = [3]Bias{BiasUp, BiasSideways, BiasDown}

// Cycle is the macro market cycle.
type Cycle string

const (
	CycleBull    Cycle = "BULL"
	CycleBear    Cycle = "BEAR"
	CycleNeutral Cycle = "NEUTRAL"
)

// Cycles lists every macro cycle.
var Cycles = [3]Cycle{CycleBull, CycleBear, CycleNeutral}

// VolatilityRegime is the macro volatility level.
type VolatilityRegime string

const (
	VolatilityLow  VolatilityRegime = "LOW"
	VolatilityHigh VolatilityRegime = "HIGH"
)

// RigState is the market maker's manipulation state.
type RigState string

const (
	RigNone           RigState = "none"
	RigTrappingUp     RigState = "trapping_up"
	RigTrappingDown   RigState = "trapping_down"
	RigHarvestingUp   RigState = "harvesting_up"
	RigHarvestingDown RigState = "harvesting_down"
	RigCooling        RigState = "cooling"
)

// MacroCycle is the process-wide market regime.
type MacroCycle struct {
	Cycle          Cycle
	Volatility     VolatilityRegime
	CycleDays      int
	VolatilityDays int
}

// DailyScript is the per-stock plan for one trading day.
type DailyScript struct {
	Date        time.Time
	Bias        Bias
	RangeFactor float64
	TargetClose float64
}

// Valid reports whether the script belongs to the given calendar day.
func (s *DailyScript) Valid(day time.Time) bool {
	if s == nil {
		return false
	}
	y1, m1, d1 := s.Date.Date()
	y2, m2, d2 := day.Date()
	return y1 == y2 && m1 == m2 && d1 == d2
}

// Candle represents OHLC data for one tick.
type Candle struct {
	Ticker    string
	Timestamp time.Time
	Open      float64
	High      float64
	Low       float64
	Close     float64
}

// Quote is a price update published after a tick.
type Quote struct {
	Ticker         string
	Price          float64
	PreviousClose  float64
	Change         float64
	ChangePercent  float64
	MarketPressure float64
	Event          string
	Timestamp      time.Time
}

// MarketMakerState is the per-stock state of the market maker.
type MarketMakerState struct {
	Position          float64
	RigState          RigState
	RigProgress       int
	RigCooldown       int
	DipAttackCooldown int
}

// NewMarketMakerState returns an idle market maker state.
func NewMarketMakerState() *MarketMakerState {
	return &MarketMakerState{RigState: RigNone}
}
