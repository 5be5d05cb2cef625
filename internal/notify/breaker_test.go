package notify

import (
	"context"
	"errors"
	"testing"
	"time"

	"synth-exchange/internal/resilience"
)

func TestGuardStopsCallingFailingChannel(t *testing.T) {
	inner := &recordingChannel{name: "webhook", err: errors.New("connection refused")}
	g := Guard(inner, resilience.BreakerConfig{FailureThreshold: 2, Cooldown: time.Hour})

	if g.Name() != "webhook" {
		t.Errorf("Name() = %q", g.Name())
	}

	ctx := context.Background()
	for i := 0; i < 4; i++ {
		_ = g.Send(ctx, Notification{Title: "tick"})
	}
	if len(inner.got) != 2 {
		t.Errorf("inner channel called %d times, want 2", len(inner.got))
	}
	if err := g.Send(ctx, Notification{}); !errors.Is(err, resilience.ErrCircuitOpen) {
		t.Errorf("err = %v, want ErrCircuitOpen", err)
	}
	if g.State() != resilience.CircuitOpen {
		t.Errorf("state = %s", g.State())
	}
}
