package notify

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"synth-exchange/internal/models"
	"synth-exchange/internal/resilience"
)

// QuotePublisher publishes a tick quote on a named channel.
type QuotePublisher interface {
	PublishQuote(ctx context.Context, channel string, q models.Quote) error
}

// QuoteFeed forwards hub quotes to an external publisher. It consumes on the
// hub goroutine without blocking and publishes from Run.
type QuoteFeed struct {
	pub     QuotePublisher
	channel string
	tickers []string
	quotes  chan models.Quote
	breaker *resilience.Breaker
	timeout time.Duration
	logger  zerolog.Logger
	dropped atomic.Uint64
}

// NewQuoteFeed creates a feed of tickers (all when empty) onto channel.
func NewQuoteFeed(pub QuotePublisher, channel string, tickers []string, buffer int, logger zerolog.Logger) *QuoteFeed {
	if buffer <= 0 {
		buffer = 256
	}
	return &QuoteFeed{
		pub:     pub,
		channel: channel,
		tickers: tickers,
		quotes:  make(chan models.Quote, buffer),
		breaker: resilience.NewBreaker("quote-feed", resilience.DefaultBreakerConfig()),
		timeout: 5 * time.Second,
		logger:  logger.With().Str("component", "quote-feed").Str("channel", channel).Logger(),
	}
}

// OnQuote queues q, dropping it when the feed is behind.
func (f *QuoteFeed) OnQuote(q models.Quote) {
	select {
	case f.quotes <- q:
	default:
		f.dropped.Add(1)
	}
}

// Tickers returns the tickers the feed forwards.
func (f *QuoteFeed) Tickers() []string {
	return f.tickers
}

// Dropped returns how many quotes were dropped, queued or failed.
func (f *QuoteFeed) Dropped() uint64 {
	return f.dropped.Load()
}

// Run publishes queued quotes until ctx is done.
func (f *QuoteFeed) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case q := <-f.quotes:
			err := f.breaker.Do(func() error {
				pctx, cancel := context.WithTimeout(ctx, f.timeout)
				defer cancel()
				return f.pub.PublishQuote(pctx, f.channel, q)
			})
			if err != nil {
				f.dropped.Add(1)
				f.logger.Debug().Err(err).Str("ticker", q.Ticker).Msg("Quote not published")
			}
		}
	}
}
