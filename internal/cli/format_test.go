package cli

import (
	"math"
	"regexp"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

func TestFormatMoney(t *testing.T) {
	tests := []struct {
		amount float64
		want   string
	}{
		{0, "0.00"},
		{5, "5.00"},
		{999.999, "1,000.00"},
		{1234.5, "1,234.50"},
		{1_005_146.65, "1,005,146.65"},
		{-98_500, "-98,500.00"},
		{-0.001, "0.00"},
	}
	for _, tt := range tests {
		if got := FormatMoney(tt.amount); got != tt.want {
			t.Errorf("FormatMoney(%v) = %q, want %q", tt.amount, got, tt.want)
		}
	}
}

func TestFormatPnL(t *testing.T) {
	if got := FormatPnL(9945); got != "+9,945.00" {
		t.Errorf("FormatPnL(9945) = %q", got)
	}
	if got := FormatPnL(-12.5); got != "-12.50" {
		t.Errorf("FormatPnL(-12.5) = %q", got)
	}
	if got := FormatPnL(0.001); got != "0.00" {
		t.Errorf("FormatPnL(0.001) = %q", got)
	}
}

func TestFormatHelpers(t *testing.T) {
	if got := FormatQuantity(-1_234_567); got != "-1,234,567" {
		t.Errorf("FormatQuantity = %q", got)
	}
	if got := FormatCompact(2_500_000); got != "2.50M" {
		t.Errorf("FormatCompact = %q", got)
	}
	if got := FormatCompact(950); got != "950.00" {
		t.Errorf("FormatCompact small = %q", got)
	}
	tests := []struct {
		d    time.Duration
		want string
	}{
		{45 * time.Second, "45s"},
		{5 * time.Minute, "5m"},
		{2*time.Hour + 5*time.Minute, "2h05m"},
	}
	for _, tt := range tests {
		if got := FormatDuration(tt.d); got != tt.want {
			t.Errorf("FormatDuration(%v) = %q, want %q", tt.d, got, tt.want)
		}
	}
}

func TestVisibleLenIgnoresEscapes(t *testing.T) {
	if got := visibleLen("\x1b[32m● OPEN\x1b[0m"); got != 6 {
		t.Errorf("visibleLen = %d, want 6", got)
	}
}

func TestProperty_MoneyFormatting(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	grouped := regexp.MustCompile(`^-?\d{1,3}(,\d{3})*\.\d{2}$`)

	properties.Property("FormatMoney groups digits in threes with two decimals", prop.ForAll(
		func(amount float64) bool {
			return grouped.MatchString(FormatMoney(amount))
		},
		gen.Float64Range(-1e12, 1e12),
	))

	properties.Property("FormatMoney preserves the rounded value", prop.ForAll(
		func(amount float64) bool {
			parsed, err := strconv.ParseFloat(strings.ReplaceAll(FormatMoney(amount), ",", ""), 64)
			if err != nil {
				return false
			}
			return math.Abs(parsed-amount) <= 0.005+1e-6
		},
		gen.Float64Range(-1e9, 1e9),
	))

	properties.TestingRun(t)
}
