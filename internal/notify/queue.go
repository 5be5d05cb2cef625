package notify

import (
	"context"
	"sync/atomic"

	"github.com/rs/zerolog"
)

// Queue hands notifications to a background goroutine so the tick loop and
// order path never wait on a slow channel. A full buffer drops the message.
type Queue struct {
	next    Notifier
	ch      chan Notification
	logger  zerolog.Logger
	dropped atomic.Uint64
}

// NewQueue creates a queue of size buffered notifications in front of next.
func NewQueue(next Notifier, size int, logger zerolog.Logger) *Queue {
	if size <= 0 {
		size = 256
	}
	return &Queue{
		next:   next,
		ch:     make(chan Notification, size),
		logger: logger.With().Str("component", "notify_queue").Logger(),
	}
}

// Notify enqueues n without blocking.
func (q *Queue) Notify(ctx context.Context, n Notification) {
	select {
	case q.ch <- n:
	default:
		q.dropped.Add(1)
		q.logger.Warn().Str("type", string(n.Type)).Str("ticker", n.Ticker).Msg("Notification dropped")
	}
}

// Run delivers queued notifications until ctx is done.
func (q *Queue) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case n := <-q.ch:
			q.next.Notify(ctx, n)
		}
	}
}

// Dropped returns the number of notifications lost to a full buffer.
func (q *Queue) Dropped() uint64 {
	return q.dropped.Load()
}
