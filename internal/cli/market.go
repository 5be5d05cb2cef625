package cli

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"synth-exchange/internal/models"
	"synth-exchange/internal/simulation"
)

func addMarketCommands(rootCmd *cobra.Command, app *App) {
	rootCmd.AddCommand(newStatusCmd(app))
	rootCmd.AddCommand(newStocksCmd(app))
	rootCmd.AddCommand(newQuoteCmd(app))
	rootCmd.AddCommand(newCandlesCmd(app))
	rootCmd.AddCommand(newTickCmd(app))
}

func newStatusCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show market session and macro regime",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			ctx := cmd.Context()
			if err := app.open(ctx, session{}); err != nil {
				return err
			}

			clock := app.Market.Clock()
			now := clock.Now()
			status, wait := clock.Status(now)
			macro := app.Market.Macro()

			if output.IsJSON() {
				return output.JSON(map[string]any{
					"status":     status,
					"now":        now,
					"wait":       wait.String(),
					"cycle":      macro.Cycle,
					"volatility": macro.Volatility,
					"stocks":     len(app.Market.Tickers()),
				})
			}

			output.Printf("Market:     %s\n", output.MarketStatus(status))
			output.Printf("Time:       %s\n", now.Format("2006-01-02 15:04:05 MST"))
			if status == models.MarketOpen {
				output.Printf("Closes in:  %s\n", FormatDuration(wait))
			} else {
				output.Printf("Opens in:   %s\n", FormatDuration(wait))
			}
			output.Printf("Cycle:      %s (%d days)\n", macro.Cycle, macro.CycleDays)
			output.Printf("Volatility: %s (%d days)\n", macro.Volatility, macro.VolatilityDays)
			output.Printf("Stocks:     %d\n", len(app.Market.Tickers()))
			return nil
		},
	}
}

func newStocksCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "stocks",
		Short: "List every stock on the board",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if err := app.open(cmd.Context(), session{}); err != nil {
				return err
			}

			stocks := app.Market.Stocks()
			if output.IsJSON() {
				return output.JSON(stocks)
			}
			if len(stocks) == 0 {
				output.Warning("No stocks listed")
				return nil
			}

			table := NewTable(output, "Ticker", "Name", "Industry", "Price", "Change", "Bias", "Pressure")
			for _, s := range stocks {
				var bias models.Bias
				if s.Script != nil {
					bias = s.Script.Bias
				}
				table.AddRow(
					s.Ticker,
					s.Name,
					s.Industry,
					FormatMoney(s.CurrentPrice),
					output.FormatPercent(changePercent(s.CurrentPrice, s.PreviousClose)),
					output.Bias(bias),
					fmt.Sprintf("%.4f", s.MarketPressure),
				)
			}
			table.Render()
			return nil
		},
	}
}

func newQuoteCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "quote <ticker>",
		Short: "Show the latest quote for a stock",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if err := app.open(cmd.Context(), session{}); err != nil {
				return err
			}

			ticker := strings.ToUpper(args[0])
			q, err := app.Market.Quote(ticker)
			if err != nil {
				return fmt.Errorf("%s: %w", ticker, err)
			}
			maker, err := app.Market.MakerState(ticker)
			if err != nil {
				return fmt.Errorf("%s: %w", ticker, err)
			}
			if output.IsJSON() {
				return output.JSON(map[string]any{
					"quote": q,
					"maker": maker,
				})
			}

			output.Bold("%s", q.Ticker)
			output.Printf("  Price:      %s\n", FormatMoney(q.Price))
			output.Printf("  Prev close: %s\n", FormatMoney(q.PreviousClose))
			output.Printf("  Change:     %s (%s)\n", output.FormatPnL(q.Change), output.FormatPercent(q.ChangePercent))
			output.Printf("  Pressure:   %.4f\n", q.MarketPressure)
			output.Printf("  Maker:      %s (position %.2f)\n", maker.RigState, maker.Position)

			if mcap, err := app.Market.MarketCap(ticker); err == nil {
				output.Printf("  Market cap: %s\n", FormatCompact(mcap))
			}
			return nil
		},
	}
}

func newCandlesCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "candles <ticker>",
		Short: "Show recent candles for a stock",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if err := app.open(cmd.Context(), session{}); err != nil {
				return err
			}

			limit, _ := cmd.Flags().GetInt("limit")
			ticker := strings.ToUpper(args[0])
			candles, err := app.Market.Candles(cmd.Context(), ticker, limit)
			if err != nil {
				return fmt.Errorf("%s: %w", ticker, err)
			}
			if output.IsJSON() {
				return output.JSON(candles)
			}

			table := NewTable(output, "Time", "Open", "High", "Low", "Close")
			loc := app.Market.Clock().Location()
			for _, c := range candles {
				table.AddRow(
					c.Timestamp.In(loc).Format("01-02 15:04"),
					FormatMoney(c.Open),
					FormatMoney(c.High),
					FormatMoney(c.Low),
					output.signed(c.Close-c.Open, FormatMoney(c.Close)),
				)
			}
			table.Render()
			return nil
		},
	}
	cmd.Flags().IntP("limit", "n", 24, "number of candles")
	return cmd
}

func newTickCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "tick",
		Short: "Run one simulation pass now",
		Long:  "Advance every stock by one tick at the current time and persist the result. Does nothing while the market is closed.",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if err := app.open(cmd.Context(), session{}); err != nil {
				return err
			}
			now := app.Market.Clock().Now()
			if !app.Market.Clock().IsOpen(now) {
				output.Warning("Market is closed")
				return nil
			}
			if err := app.Market.Tick(cmd.Context(), now); err != nil {
				output.Error("Tick finished with errors: %v", err)
				return err
			}
			output.Success("✓ Ticked %d stocks", len(app.Market.Tickers()))
			return nil
		},
	}
}

func newSimulateCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Replay the price model offline",
		Long: `Drive the full price model for a number of trading days without touching the
stored market. The same seed always produces the same result.`,
		Example: `  synthx simulate --days 5 --seed 42
  synthx simulate --days 30 --json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			days, _ := cmd.Flags().GetInt("days")
			seed, _ := cmd.Flags().GetInt64("seed")
			if days <= 0 {
				return fmt.Errorf("days must be positive")
			}

			started := time.Now()
			res := simulation.RunHarness(app.Config, simulation.HarnessOptions{Seed: seed, Days: days}, app.Logger)
			if output.IsJSON() {
				return output.JSON(map[string]any{
					"seed":    res.Seed,
					"days":    res.Days,
					"ticks":   res.Ticks,
					"macro":   res.Macro,
					"regimes": res.Regimes,
					"stocks":  res.Stocks,
				})
			}

			output.Bold("Simulated %d days (%d ticks, seed %d) in %s", res.Days, res.Ticks, res.Seed, time.Since(started).Round(time.Millisecond))
			output.Printf("Final regime: %s / %s, %d regime changes\n", res.Macro.Cycle, res.Macro.Volatility, len(res.Regimes))
			output.Println()

			table := NewTable(output, "Ticker", "Open", "Close", "Change", "High", "Low", "Events", "Maker")
			for _, s := range res.Stocks {
				table.AddRow(
					s.Ticker,
					FormatMoney(s.FirstOpen),
					FormatMoney(s.LastClose),
					output.FormatPercent(s.Change()*100),
					FormatMoney(s.High),
					FormatMoney(s.Low),
					fmt.Sprintf("%d", s.Events),
					FormatCompact(s.MakerPosition),
				)
			}
			table.Render()
			return nil
		},
	}
	cmd.Flags().Int("days", 5, "trading days to simulate")
	cmd.Flags().Int64("seed", 1, "random seed")
	return cmd
}

func changePercent(price, prev float64) float64 {
	if prev <= 0 {
		return 0
	}
	return (price - prev) / prev * 100
}

// withTimeout bounds one-shot commands.
func withTimeout(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	return context.WithTimeout(cmd.Context(), 30*time.Second)
}
