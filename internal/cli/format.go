package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// FormatMoney formats an amount with two decimals and thousands separators.
func FormatMoney(amount float64) string {
	d := decimal.NewFromFloat(amount).Round(2)
	negative := d.IsNegative()
	s := d.Abs().StringFixed(2)

	intPart, decPart, _ := strings.Cut(s, ".")
	result := groupThousands(intPart) + "." + decPart
	if negative {
		result = "-" + result
	}
	return result
}

// groupThousands inserts a comma every three digits from the right.
func groupThousands(s string) string {
	n := len(s)
	if n <= 3 {
		return s
	}
	var b strings.Builder
	head := n % 3
	if head > 0 {
		b.WriteString(s[:head])
	}
	for i := head; i < n; i += 3 {
		if b.Len() > 0 {
			b.WriteByte(',')
		}
		b.WriteString(s[i : i+3])
	}
	return b.String()
}

// FormatPercent formats a percentage with sign.
func FormatPercent(value float64) string {
	sign := ""
	if value > 0 {
		sign = "+"
	}
	return fmt.Sprintf("%s%.2f%%", sign, value)
}

// FormatPnL formats P&L with sign.
func FormatPnL(pnl float64) string {
	formatted := FormatMoney(pnl)
	if pnl > 0 && formatted != "0.00" {
		return "+" + formatted
	}
	return formatted
}

// FormatQuantity formats a share count with thousands separators.
func FormatQuantity(qty int64) string {
	if qty < 0 {
		return "-" + groupThousands(fmt.Sprintf("%d", -qty))
	}
	return groupThousands(fmt.Sprintf("%d", qty))
}

// FormatCompact formats large amounts as K, M or B.
func FormatCompact(amount float64) string {
	abs := amount
	if abs < 0 {
		abs = -abs
	}
	switch {
	case abs >= 1e9:
		return fmt.Sprintf("%.2fB", amount/1e9)
	case abs >= 1e6:
		return fmt.Sprintf("%.2fM", amount/1e6)
	case abs >= 1e3:
		return fmt.Sprintf("%.2fK", amount/1e3)
	}
	return FormatMoney(amount)
}

// FormatDuration formats a wait like "2h05m" or "45s".
func FormatDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	if h == 0 {
		return fmt.Sprintf("%dm", m)
	}
	return fmt.Sprintf("%dh%02dm", h, m)
}
