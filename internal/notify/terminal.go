package notify

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/fatih/color"
)

// TerminalChannel prints notifications as single colored lines.
type TerminalChannel struct {
	mu      sync.Mutex
	w       io.Writer
	enabled bool
}

// NewTerminalChannel creates a terminal channel writing to w.
func NewTerminalChannel(w io.Writer) *TerminalChannel {
	return &TerminalChannel{w: w, enabled: true}
}

func (t *TerminalChannel) Name() string { return "terminal" }

func (t *TerminalChannel) IsEnabled() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.enabled
}

// SetEnabled enables or disables the channel.
func (t *TerminalChannel) SetEnabled(enabled bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.enabled = enabled
}

// Send writes the formatted notification.
func (t *TerminalChannel) Send(ctx context.Context, n Notification) error {
	line := FormatNotification(n)
	t.mu.Lock()
	defer t.mu.Unlock()
	_, err := fmt.Fprintln(t.w, line)
	return err
}

// FormatNotification renders n as one terminal line. Colors follow
// color.NoColor.
func FormatNotification(n Notification) string {
	var sb strings.Builder

	var label string
	var c *color.Color
	switch n.Type {
	case NotificationEvent:
		label = "EVENT"
		c = color.New(color.FgYellow, color.Bold)
	case NotificationRegime:
		label = "REGIME"
		c = color.New(color.FgCyan)
	case NotificationListing:
		label = "LISTING"
		c = color.New(color.FgBlue)
	case NotificationEarnings:
		label = "EARNINGS"
		c = color.New(color.FgMagenta)
	case NotificationTrade:
		label = "TRADE"
		c = color.New(color.FgGreen)
	case NotificationError:
		label = "ERROR"
		c = color.New(color.FgRed, color.Bold)
	default:
		label = "INFO"
		c = color.New(color.FgWhite)
	}

	sb.WriteString(c.Sprintf("[%s] %s", n.Timestamp.Format("15:04:05"), label))
	if n.Ticker != "" {
		sb.WriteString(" | " + n.Ticker)
	}
	sb.WriteString(" | " + n.Message)
	return sb.String()
}
