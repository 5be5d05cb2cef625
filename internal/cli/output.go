package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"unicode/utf8"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"synth-exchange/internal/models"
)

// Output handles formatted output for the CLI.
type Output struct {
	writer       io.Writer
	jsonMode     bool
	colorEnabled bool
}

// NewOutput creates a new Output instance.
func NewOutput(cmd *cobra.Command) *Output {
	jsonMode, _ := cmd.Flags().GetBool("json")
	return &Output{
		writer:       cmd.OutOrStdout(),
		jsonMode:     jsonMode,
		colorEnabled: !jsonMode && isTerminal(cmd.OutOrStdout()),
	}
}

// isTerminal checks if w is a terminal.
func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// IsJSON returns true if JSON output mode is enabled.
func (o *Output) IsJSON() bool {
	return o.jsonMode
}

// JSON outputs data as JSON.
func (o *Output) JSON(data interface{}) error {
	encoder := json.NewEncoder(o.writer)
	encoder.SetIndent("", "  ")
	return encoder.Encode(data)
}

// Println prints a message with newline.
func (o *Output) Println(args ...interface{}) {
	fmt.Fprintln(o.writer, args...)
}

// Printf prints a formatted message.
func (o *Output) Printf(format string, args ...interface{}) {
	fmt.Fprintf(o.writer, format, args...)
}

// Success prints a success message in green.
func (o *Output) Success(format string, args ...interface{}) {
	o.line(color.FgGreen, format, args...)
}

// Error prints an error message in red.
func (o *Output) Error(format string, args ...interface{}) {
	o.line(color.FgRed, format, args...)
}

// Warning prints a warning message in yellow.
func (o *Output) Warning(format string, args ...interface{}) {
	o.line(color.FgYellow, format, args...)
}

// Info prints an info message in cyan.
func (o *Output) Info(format string, args ...interface{}) {
	o.line(color.FgCyan, format, args...)
}

// Bold prints a bold message.
func (o *Output) Bold(format string, args ...interface{}) {
	o.line(color.Bold, format, args...)
}

// Dim prints a dimmed message.
func (o *Output) Dim(format string, args ...interface{}) {
	o.line(color.Faint, format, args...)
}

func (o *Output) line(attr color.Attribute, format string, args ...interface{}) {
	fmt.Fprintln(o.writer, o.paint(fmt.Sprintf(format, args...), attr))
}

// paint wraps text in the given attributes when color is enabled.
func (o *Output) paint(text string, attrs ...color.Attribute) string {
	c := color.New(attrs...)
	if o.colorEnabled {
		c.EnableColor()
	} else {
		c.DisableColor()
	}
	return c.Sprint(text)
}

// Green returns green colored text.
func (o *Output) Green(text string) string { return o.paint(text, color.FgGreen) }

// Red returns red colored text.
func (o *Output) Red(text string) string { return o.paint(text, color.FgRed) }

// Yellow returns yellow colored text.
func (o *Output) Yellow(text string) string { return o.paint(text, color.FgYellow) }

// Cyan returns cyan colored text.
func (o *Output) Cyan(text string) string { return o.paint(text, color.FgCyan) }

// DimText returns dimmed text.
func (o *Output) DimText(text string) string { return o.paint(text, color.Faint) }

func (o *Output) signed(v float64, text string) string {
	switch {
	case v > 0:
		return o.Green(text)
	case v < 0:
		return o.Red(text)
	default:
		return text
	}
}

// FormatPnL formats profit or loss with sign and color.
func (o *Output) FormatPnL(pnl float64) string {
	return o.signed(pnl, FormatPnL(pnl))
}

// FormatPercent formats a percentage with sign and color.
func (o *Output) FormatPercent(pct float64) string {
	return o.signed(pct, FormatPercent(pct))
}

// MarketStatus renders the market status.
func (o *Output) MarketStatus(status models.MarketStatus) string {
	switch status {
	case models.MarketOpen:
		return o.Green("● OPEN")
	case models.MarketClosed:
		return o.Red("● CLOSED")
	default:
		return string(status)
	}
}

// Bias renders a daily bias.
func (o *Output) Bias(b models.Bias) string {
	switch b {
	case models.BiasUp:
		return o.Green("↑ UP")
	case models.BiasDown:
		return o.Red("↓ DOWN")
	case models.BiasSideways:
		return o.Yellow("→ SIDEWAYS")
	default:
		return "-"
	}
}

// Table represents a simple table for output.
type Table struct {
	headers []string
	rows    [][]string
	output  *Output
}

// NewTable creates a new table.
func NewTable(output *Output, headers ...string) *Table {
	return &Table{headers: headers, output: output}
}

// AddRow adds a row to the table.
func (t *Table) AddRow(cells ...string) {
	t.rows = append(t.rows, cells)
}

// Render renders the table.
func (t *Table) Render() {
	if len(t.headers) == 0 {
		return
	}

	widths := make([]int, len(t.headers))
	for i, h := range t.headers {
		widths[i] = visibleLen(h)
	}
	for _, row := range t.rows {
		for i, cell := range row {
			if i < len(widths) && visibleLen(cell) > widths[i] {
				widths[i] = visibleLen(cell)
			}
		}
	}

	t.printRow(t.headers, widths, true)
	parts := make([]string, len(widths))
	for i, w := range widths {
		parts[i] = strings.Repeat("─", w)
	}
	t.output.Println(t.output.DimText(strings.Join(parts, "──")))
	for _, row := range t.rows {
		t.printRow(row, widths, false)
	}
}

func (t *Table) printRow(cells []string, widths []int, header bool) {
	parts := make([]string, 0, len(cells))
	for i, cell := range cells {
		if i >= len(widths) {
			break
		}
		padded := cell + strings.Repeat(" ", max(widths[i]-visibleLen(cell), 0))
		if header {
			padded = t.output.paint(padded, color.Bold)
		}
		parts = append(parts, padded)
	}
	t.output.Println(strings.Join(parts, "  "))
}

// visibleLen counts the runes of s outside ANSI escape sequences.
func visibleLen(s string) int {
	n := 0
	for i := 0; i < len(s); {
		if s[i] == '\x1b' {
			for i < len(s) && s[i] != 'm' {
				i++
			}
			i++
			continue
		}
		_, size := utf8.DecodeRuneInString(s[i:])
		i += size
		n++
	}
	return n
}
