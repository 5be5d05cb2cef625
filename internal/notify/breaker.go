package notify

import (
	"context"

	"synth-exchange/internal/resilience"
)

// GuardedChannel stops calling a channel that keeps failing until its
// breaker cools down.
type GuardedChannel struct {
	NotificationChannel
	breaker *resilience.Breaker
}

// Guard wraps ch in a circuit breaker named after the channel.
func Guard(ch NotificationChannel, cfg resilience.BreakerConfig) *GuardedChannel {
	return &GuardedChannel{
		NotificationChannel: ch,
		breaker:             resilience.NewBreaker(ch.Name(), cfg),
	}
}

// Send delivers n unless the breaker is open.
func (g *GuardedChannel) Send(ctx context.Context, n Notification) error {
	return g.breaker.Do(func() error {
		return g.NotificationChannel.Send(ctx, n)
	})
}

// State returns the breaker state.
func (g *GuardedChannel) State() resilience.CircuitState {
	return g.breaker.State()
}
