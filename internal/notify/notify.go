// Package notify provides notification functionality for the market simulator.
package notify

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"synth-exchange/internal/config"
	"synth-exchange/internal/models"
	"synth-exchange/internal/resilience"
)

// Notifier accepts fire-and-forget messages. Delivery failures never reach
// the caller.
type Notifier interface {
	Notify(ctx context.Context, n Notification)
}

// NotificationChannel defines the interface for a notification channel.
type NotificationChannel interface {
	Name() string
	Send(ctx context.Context, n Notification) error
	IsEnabled() bool
}

// Notification represents a notification message.
type Notification struct {
	Type      NotificationType
	Title     string
	Message   string
	Ticker    string
	Data      map[string]any
	Timestamp time.Time
}

// NotificationType represents the type of notification.
type NotificationType string

const (
	NotificationEvent    NotificationType = "event"
	NotificationRegime   NotificationType = "regime"
	NotificationListing  NotificationType = "listing"
	NotificationEarnings NotificationType = "earnings"
	NotificationTrade    NotificationType = "trade"
	NotificationError    NotificationType = "error"
	NotificationInfo     NotificationType = "info"
)

// MultiNotifier sends notifications to multiple channels.
type MultiNotifier struct {
	channels []NotificationChannel
	timeout  time.Duration
	logger   zerolog.Logger
	mu       sync.RWMutex
}

// NewMultiNotifier creates a MultiNotifier with the channels enabled in cfg.
// The Redis channel is added by the caller once a client is connected.
func NewMultiNotifier(cfg config.NotificationConfig, logger zerolog.Logger) *MultiNotifier {
	mn := &MultiNotifier{
		timeout: cfg.Timeout,
		logger:  logger.With().Str("component", "notify").Logger(),
	}
	if !cfg.Enabled {
		return mn
	}

	if cfg.Log {
		mn.channels = append(mn.channels, NewLogChannel(logger))
	}
	if cfg.Webhook.Enabled {
		webhook := NewWebhookNotifier(cfg.Webhook, cfg.Timeout)
		mn.channels = append(mn.channels, Guard(webhook, resilience.DefaultBreakerConfig()))
	}

	return mn
}

// AddChannel adds a notification channel.
func (mn *MultiNotifier) AddChannel(ch NotificationChannel) {
	mn.mu.Lock()
	defer mn.mu.Unlock()
	mn.channels = append(mn.channels, ch)
}

// Channels returns the names of the registered channels.
func (mn *MultiNotifier) Channels() []string {
	mn.mu.RLock()
	defer mn.mu.RUnlock()
	names := make([]string, 0, len(mn.channels))
	for _, ch := range mn.channels {
		names = append(names, ch.Name())
	}
	return names
}

// Send sends a notification to all enabled channels and reports every
// channel failure.
func (mn *MultiNotifier) Send(ctx context.Context, n Notification) error {
	if n.Timestamp.IsZero() {
		n.Timestamp = time.Now()
	}
	if mn.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, mn.timeout)
		defer cancel()
	}

	mn.mu.RLock()
	channels := mn.channels
	mn.mu.RUnlock()

	var errs []string
	for _, ch := range channels {
		if ch.IsEnabled() {
			if err := ch.Send(ctx, n); err != nil {
				mn.logger.Warn().Err(err).Str("channel", ch.Name()).Str("type", string(n.Type)).Msg("Notification failed")
				errs = append(errs, fmt.Sprintf("%s: %v", ch.Name(), err))
			}
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("notification errors: %s", strings.Join(errs, "; "))
	}
	return nil
}

// Notify implements Notifier. Failures are logged by Send.
func (mn *MultiNotifier) Notify(ctx context.Context, n Notification) {
	_ = mn.Send(ctx, n)
}

// EventNotification builds the notification for a fired native event.
func EventNotification(ticker, message string, percent float64) Notification {
	return Notification{
		Type:    NotificationEvent,
		Title:   "Market event: " + ticker,
		Message: message,
		Ticker:  ticker,
		Data:    map[string]any{"percent": percent},
	}
}

// RegimeNotification builds the notification for a macro regime change.
func RegimeNotification(kind, from, to string) Notification {
	return Notification{
		Type:    NotificationRegime,
		Title:   "Regime change",
		Message: fmt.Sprintf("%s regime moved from %s to %s", kind, from, to),
		Data:    map[string]any{"kind": kind, "from": from, "to": to},
	}
}

// ListingNotification builds the notification for a listing or delisting.
func ListingNotification(ticker, message string) Notification {
	return Notification{
		Type:    NotificationListing,
		Title:   "Listing: " + ticker,
		Message: message,
		Ticker:  ticker,
	}
}

// EarningsNotification builds the notification for an issuer price shock.
func EarningsNotification(ticker string, factor, price float64) Notification {
	return Notification{
		Type:    NotificationEarnings,
		Title:   "Issuer report: " + ticker,
		Message: fmt.Sprintf("%s repriced by %+.2f%% to %.2f", ticker, (factor-1)*100, price),
		Ticker:  ticker,
		Data:    map[string]any{"factor": factor, "price": price},
	}
}

// TradeNotification builds the notification for a settled trade.
func TradeNotification(t models.Trade) Notification {
	return Notification{
		Type:    NotificationTrade,
		Title:   fmt.Sprintf("%s %s", t.Side, t.Ticker),
		Message: fmt.Sprintf("%s %s %d @ %.2f (fee %.2f)", t.UserID, t.Side, t.Quantity, t.Price, t.Fee),
		Ticker:  t.Ticker,
		Data: map[string]any{
			"user_id":     t.UserID,
			"quantity":    t.Quantity,
			"price":       t.Price,
			"gross":       t.Gross,
			"fee":         t.Fee,
			"profit_loss": t.ProfitLoss,
		},
		Timestamp: t.Timestamp,
	}
}

// LogChannel writes notifications to the structured log.
type LogChannel struct {
	logger zerolog.Logger
}

// NewLogChannel creates a log channel.
func NewLogChannel(logger zerolog.Logger) *LogChannel {
	return &LogChannel{logger: logger.With().Str("component", "notify").Logger()}
}

func (l *LogChannel) Name() string    { return "log" }
func (l *LogChannel) IsEnabled() bool { return true }

// Send logs the notification.
func (l *LogChannel) Send(ctx context.Context, n Notification) error {
	ev := l.logger.Info().Str("type", string(n.Type)).Str("title", n.Title)
	if n.Ticker != "" {
		ev = ev.Str("ticker", n.Ticker)
	}
	ev.Msg(n.Message)
	return nil
}

// NoOpNotifier discards every notification.
type NoOpNotifier struct{}

func (NoOpNotifier) Notify(ctx context.Context, n Notification) {}
