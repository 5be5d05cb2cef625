package market

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"synth-exchange/internal/errors"
	"synth-exchange/internal/logging"
	"synth-exchange/internal/models"
)

// Run drives Tick from the wall clock until ctx is done. While open it
// ticks on interval boundaries; while closed it sleeps until the open. A
// failed or panicking pass backs off before the next attempt.
func (e *Engine) Run(ctx context.Context) error {
	logger := logging.WithOperation(e.logger, "scheduler")
	logger.Info().
		Dur("interval", e.cfg.Simulation.TickInterval).
		Int("stocks", e.registry.Len()).
		Msg("Scheduler started")

	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info().Msg("Scheduler stopped")
			return nil
		case <-timer.C:
		}
		wait := e.step(ctx, logger)
		if ctx.Err() != nil {
			continue
		}
		timer.Reset(wait)
	}
}

// step runs one scheduler iteration and returns how long to sleep.
func (e *Engine) step(ctx context.Context, logger zerolog.Logger) (wait time.Duration) {
	backoff := e.cfg.Simulation.RetryBackoff
	defer func() {
		if r := recover(); r != nil {
			e.recordFailure(logger, errors.NewTickError("", "scheduler", fmt.Errorf("panic: %v", r)), "scheduler")
			wait = backoff
		}
	}()

	now := e.clock.Now()
	status, until := e.clock.Status(now)
	if status == models.MarketClosed {
		logger.Debug().Dur("wait", until).Msg("Market closed")
		return until
	}

	if err := e.Tick(ctx, now); err != nil {
		if ctx.Err() != nil {
			return 0
		}
		logger.Error().Err(err).Dur("backoff", backoff).Msg("Tick pass failed")
		return backoff
	}
	return nextBoundary(e.clock.Now(), e.cfg.Simulation.TickInterval)
}

// nextBoundary returns the wait until the next multiple of interval, never
// less than a second.
func nextBoundary(now time.Time, interval time.Duration) time.Duration {
	if interval <= 0 {
		return time.Second
	}
	wait := interval - time.Duration(now.UnixNano()%int64(interval))
	if wait < time.Second {
		wait = time.Second
	}
	return wait
}
