// Package stream fans out per-tick quotes to in-process subscribers.
package stream

import (
	"context"
	"slices"
	"sync"
	"time"

	"synth-exchange/internal/models"
)

// AllTickers subscribes to every ticker.
const AllTickers = "*"

// HubConfig holds configuration for the Stream Hub.
type HubConfig struct {
	// BufferSize is the size of the internal quote channel buffer.
	BufferSize int
	// SubscriberBufferSize is the size of each subscriber's channel buffer.
	SubscriberBufferSize int
}

// DefaultHubConfig returns the default hub configuration.
func DefaultHubConfig() HubConfig {
	return HubConfig{
		BufferSize:           1000,
		SubscriberBufferSize: 100,
	}
}

// Hub distributes quotes from the tick loop to subscribers. Publishing never
// blocks; slow subscribers lose quotes.
type Hub struct {
	config      HubConfig
	mu          sync.RWMutex
	subscribers map[string][]*Subscriber
	quotes      chan models.Quote
	done        chan struct{}
	started     bool
	consumers   []Consumer
	consumersMu sync.RWMutex

	metricsMu sync.Mutex
	received  uint64
	delivered uint64
	dropped   uint64
}

// Subscriber represents a channel subscriber.
type Subscriber struct {
	Channel      chan models.Quote
	DroppedCount int
	CreatedAt    time.Time
}

// NewHub creates a new stream hub with default configuration.
func NewHub() *Hub {
	return NewHubWithConfig(DefaultHubConfig())
}

// NewHubWithConfig creates a new stream hub with custom configuration.
func NewHubWithConfig(config HubConfig) *Hub {
	return &Hub{
		config:      config,
		subscribers: make(map[string][]*Subscriber),
		quotes:      make(chan models.Quote, config.BufferSize),
		done:        make(chan struct{}),
	}
}

// Start begins the distribution loop. It returns when the loop is running.
func (h *Hub) Start(ctx context.Context) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.started {
		return
	}
	h.started = true
	go h.loop(ctx)
}

func (h *Hub) loop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-h.done:
			return
		case q := <-h.quotes:
			h.metricsMu.Lock()
			h.received++
			h.metricsMu.Unlock()

			h.broadcast(q)
			h.notifyConsumers(q)
		}
	}
}

// Stop stops the hub and closes all subscriber channels.
func (h *Hub) Stop() {
	h.mu.Lock()
	defer h.mu.Unlock()

	if !h.started {
		return
	}
	close(h.done)
	h.started = false

	for ticker, subs := range h.subscribers {
		for _, sub := range subs {
			close(sub.Channel)
		}
		delete(h.subscribers, ticker)
	}
}

// Subscribe returns a channel receiving quotes for ticker, or for every
// ticker when ticker is AllTickers.
func (h *Hub) Subscribe(ticker string) <-chan models.Quote {
	ch := make(chan models.Quote, h.config.SubscriberBufferSize)
	sub := &Subscriber{Channel: ch, CreatedAt: time.Now()}

	h.mu.Lock()
	h.subscribers[ticker] = append(h.subscribers[ticker], sub)
	h.mu.Unlock()

	return ch
}

// Unsubscribe removes and closes a subscriber channel.
func (h *Hub) Unsubscribe(ticker string, ch <-chan models.Quote) {
	h.mu.Lock()
	defer h.mu.Unlock()

	subs := h.subscribers[ticker]
	for i, sub := range subs {
		if sub.Channel == ch {
			close(sub.Channel)
			h.subscribers[ticker] = slices.Delete(subs, i, i+1)
			break
		}
	}
	if len(h.subscribers[ticker]) == 0 {
		delete(h.subscribers, ticker)
	}
}

// UnsubscribeAll removes every subscriber of ticker, used on delisting.
func (h *Hub) UnsubscribeAll(ticker string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, sub := range h.subscribers[ticker] {
		close(sub.Channel)
	}
	delete(h.subscribers, ticker)
}

// Publish queues a quote for distribution, dropping it when the buffer is full.
func (h *Hub) Publish(q models.Quote) {
	select {
	case h.quotes <- q:
	default:
		h.metricsMu.Lock()
		h.dropped++
		h.metricsMu.Unlock()
	}
}

func (h *Hub) broadcast(q models.Quote) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, key := range []string{q.Ticker, AllTickers} {
		for _, sub := range h.subscribers[key] {
			select {
			case sub.Channel <- q:
				h.metricsMu.Lock()
				h.delivered++
				h.metricsMu.Unlock()
			default:
				sub.DroppedCount++
				h.metricsMu.Lock()
				h.dropped++
				h.metricsMu.Unlock()
			}
		}
	}
}

// SubscriberCount returns the number of subscribers for ticker.
func (h *Hub) SubscriberCount(ticker string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscribers[ticker])
}

// HubMetrics contains hub counters.
type HubMetrics struct {
	Received  uint64
	Delivered uint64
	Dropped   uint64
}

// Metrics returns hub counters.
func (h *Hub) Metrics() HubMetrics {
	h.metricsMu.Lock()
	defer h.metricsMu.Unlock()
	return HubMetrics{Received: h.received, Delivered: h.delivered, Dropped: h.dropped}
}

// Consumer processes quotes synchronously on the hub goroutine.
type Consumer interface {
	OnQuote(q models.Quote)
	// Tickers returns the tickers of interest; empty means all.
	Tickers() []string
}

// RegisterConsumer adds a consumer.
func (h *Hub) RegisterConsumer(c Consumer) {
	h.consumersMu.Lock()
	defer h.consumersMu.Unlock()
	h.consumers = append(h.consumers, c)
}

func (h *Hub) notifyConsumers(q models.Quote) {
	h.consumersMu.RLock()
	consumers := slices.Clone(h.consumers)
	h.consumersMu.RUnlock()

	for _, c := range consumers {
		if t := c.Tickers(); len(t) == 0 || slices.Contains(t, q.Ticker) {
			c.OnQuote(q)
		}
	}
}
