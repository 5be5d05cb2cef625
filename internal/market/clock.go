package market

import (
	"time"

	"synth-exchange/internal/config"
	"synth-exchange/internal/models"
)

// Clock decides whether the market is open and when it next changes state.
// The window is the same every calendar day and the close instant is inclusive.
type Clock struct {
	location *time.Location
	open     time.Duration
	close    time.Duration
	now      func() time.Time
}

// NewClock creates a clock for the configured trading window.
func NewClock(cfg config.MarketConfig) (*Clock, error) {
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}
	open, err := cfg.OpenOffset()
	if err != nil {
		return nil, err
	}
	closeAt, err := cfg.CloseOffset()
	if err != nil {
		return nil, err
	}
	return &Clock{location: loc, open: open, close: closeAt, now: time.Now}, nil
}

// SetNow replaces the wall clock, for tests and the replay harness.
func (c *Clock) SetNow(now func() time.Time) {
	c.now = now
}

// Now returns the current time in the market's location.
func (c *Clock) Now() time.Time {
	return c.now().In(c.location)
}

// Location returns the market time zone.
func (c *Clock) Location() *time.Location {
	return c.location
}

// Status returns the market status at t and the time until the next transition.
// When open the wait is the time until close, never less than one second.
func (c *Clock) Status(t time.Time) (models.MarketStatus, time.Duration) {
	t = t.In(c.location)
	day := c.TradingDay(t)
	tod := t.Truncate(time.Second).Sub(day)

	switch {
	case tod < c.open:
		return models.MarketClosed, day.Add(c.open).Sub(t)
	case tod <= c.close:
		wait := day.Add(c.close).Sub(t)
		if wait < time.Second {
			wait = time.Second
		}
		return models.MarketOpen, wait
	default:
		next := time.Date(t.Year(), t.Month(), t.Day()+1, 0, 0, 0, 0, c.location)
		return models.MarketClosed, next.Add(c.open).Sub(t)
	}
}

// IsOpen reports whether the market is open at t.
func (c *Clock) IsOpen(t time.Time) bool {
	status, _ := c.Status(t)
	return status == models.MarketOpen
}

// TradingDay returns local midnight of the calendar day containing t.
func (c *Clock) TradingDay(t time.Time) time.Time {
	t = t.In(c.location)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, c.location)
}

// CloseAt returns the close instant of the day containing t.
func (c *Clock) CloseAt(t time.Time) time.Time {
	return c.TradingDay(t).Add(c.close)
}

// RemainingTicks returns how many ticks of length interval remain before
// today's close, never less than one.
func (c *Clock) RemainingTicks(t time.Time, interval time.Duration) int {
	if interval <= 0 {
		return 1
	}
	left := c.CloseAt(t).Sub(t.In(c.location))
	n := int((left + interval - 1) / interval)
	if n < 1 {
		return 1
	}
	return n
}
