package market

import (
	"testing"
	"time"

	"synth-exchange/internal/config"
	"synth-exchange/internal/models"
)

func utcClock(t *testing.T) *Clock {
	t.Helper()
	cfg := config.Default()
	cfg.Market.Timezone = "UTC"
	c, err := NewClock(cfg.Market)
	if err != nil {
		t.Fatalf("NewClock: %v", err)
	}
	return c
}

func TestClockStatusAroundBoundaries(t *testing.T) {
	c := utcClock(t)
	at := func(d, h, m, s int) time.Time { return time.Date(2024, 3, d, h, m, s, 0, time.UTC) }

	tests := []struct {
		name     string
		now      time.Time
		status   models.MarketStatus
		wait     time.Duration
		tradeday time.Time
	}{
		{"second before open", at(1, 7, 59, 59), models.MarketClosed, time.Second, at(1, 0, 0, 0)},
		{"at open", at(1, 8, 0, 0), models.MarketOpen, 15*time.Hour + 59*time.Minute + 59*time.Second, at(1, 0, 0, 0)},
		{"second before close", at(1, 23, 59, 58), models.MarketOpen, time.Second, at(1, 0, 0, 0)},
		{"close is inclusive", at(1, 23, 59, 59), models.MarketOpen, time.Second, at(1, 0, 0, 0)},
		{"midnight", at(2, 0, 0, 0), models.MarketClosed, 8 * time.Hour, at(2, 0, 0, 0)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, wait := c.Status(tt.now)
			if status != tt.status {
				t.Errorf("status = %s, want %s", status, tt.status)
			}
			if wait != tt.wait {
				t.Errorf("wait = %v, want %v", wait, tt.wait)
			}
			if got := c.TradingDay(tt.now); !got.Equal(tt.tradeday) {
				t.Errorf("trading day = %v, want %v", got, tt.tradeday)
			}
			if c.IsOpen(tt.now) != (tt.status == models.MarketOpen) {
				t.Error("IsOpen disagrees with Status")
			}
		})
	}
}

func TestClockRemainingTicks(t *testing.T) {
	c := utcClock(t)
	tests := []struct {
		now  time.Time
		want int
	}{
		{time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC), 192},
		{time.Date(2024, 3, 1, 23, 50, 0, 0, time.UTC), 2},
		{time.Date(2024, 3, 1, 23, 55, 0, 0, time.UTC), 1},
		{time.Date(2024, 3, 1, 23, 59, 59, 0, time.UTC), 1},
	}
	for _, tt := range tests {
		if got := c.RemainingTicks(tt.now, 5*time.Minute); got != tt.want {
			t.Errorf("RemainingTicks(%s) = %d, want %d", tt.now.Format(time.TimeOnly), got, tt.want)
		}
	}
}

func TestClockNowUsesMarketZone(t *testing.T) {
	c := utcClock(t)
	fixed := time.Date(2024, 3, 1, 12, 0, 0, 0, time.FixedZone("X", 3600))
	c.SetNow(func() time.Time { return fixed })
	if got := c.Now(); got.Location() != time.UTC || got.Hour() != 11 {
		t.Errorf("Now() = %v, want 11:00 UTC", got)
	}
}
