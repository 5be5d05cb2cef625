package cli

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"synth-exchange/internal/market"
	"synth-exchange/internal/models"
)

func addIssuerCommands(rootCmd *cobra.Command, app *App) {
	rootCmd.AddCommand(newListCmd(app))
	rootCmd.AddCommand(newDelistCmd(app))

	issuer := &cobra.Command{
		Use:   "issuer",
		Short: "Issuer actions on listed stocks",
	}
	issuer.AddCommand(newEarningsCmd(app))
	issuer.AddCommand(newEventCmd(app))
	issuer.AddCommand(newIntrinsicCmd(app))
	rootCmd.AddCommand(issuer)
}

func newListCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "list <ticker> <price>",
		Short:   "List a new issuer stock",
		Example: `  synthx list ACME 25.50 --name "Acme Corp" --shares 1000000`,
		Args:    cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			ctx, cancel := withTimeout(cmd)
			defer cancel()
			if err := app.open(ctx, session{}); err != nil {
				return err
			}

			price, err := strconv.ParseFloat(args[1], 64)
			if err != nil {
				return fmt.Errorf("invalid price %q", args[1])
			}
			name, _ := cmd.Flags().GetString("name")
			shares, _ := cmd.Flags().GetInt64("shares")

			s, err := app.Market.ListStock(ctx, market.Listing{
				Ticker:      args[0],
				Name:        name,
				Price:       price,
				TotalShares: shares,
				OwnerID:     userOf(cmd),
			})
			if err != nil {
				output.Error("Listing failed: %v", err)
				return err
			}
			if output.IsJSON() {
				return output.JSON(s)
			}
			output.Success("✓ Listed %s (%s) at %s", s.Ticker, s.Name, FormatMoney(s.CurrentPrice))
			output.Printf("  Shares: %s\n", FormatQuantity(s.TotalShares))
			return nil
		},
	}
	cmd.Flags().String("name", "", "company name (default: ticker)")
	cmd.Flags().Int64("shares", 0, "initial total shares")
	return cmd
}

func newDelistCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "delist <ticker>",
		Short: "Remove a listed stock",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			ctx, cancel := withTimeout(cmd)
			defer cancel()
			if err := app.open(ctx, session{}); err != nil {
				return err
			}

			ticker := strings.ToUpper(args[0])
			if err := app.Market.Delist(ctx, ticker); err != nil {
				output.Error("Delist failed: %v", err)
				return err
			}
			if output.IsJSON() {
				return output.JSON(map[string]string{"delisted": ticker})
			}
			output.Success("✓ Delisted %s", ticker)
			return nil
		},
	}
}

func newEarningsCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:     "earnings <ticker> <modifier>",
		Short:   "Report earnings (1.0 is neutral)",
		Example: `  synthx issuer earnings ACME 1.2`,
		Args:    cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			mod, err := strconv.ParseFloat(args[1], 64)
			if err != nil {
				return fmt.Errorf("invalid modifier %q", args[1])
			}
			return runReprice(cmd, app, args[0], func(t string) (models.Stock, error) {
				return app.Market.ReportEarnings(cmd.Context(), t, mod)
			})
		},
	}
}

func newEventCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:     "event <ticker> <percent>",
		Short:   "Report a corporate event moving the price by percent",
		Example: `  synthx issuer event ACME -10`,
		Args:    cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			pct, err := strconv.ParseFloat(args[1], 64)
			if err != nil {
				return fmt.Errorf("invalid percent %q", args[1])
			}
			return runReprice(cmd, app, args[0], func(t string) (models.Stock, error) {
				return app.Market.ReportEvent(cmd.Context(), t, pct/100)
			})
		},
	}
}

func runReprice(cmd *cobra.Command, app *App, ticker string, fn func(string) (models.Stock, error)) error {
	output := NewOutput(cmd)
	if err := app.open(cmd.Context(), session{}); err != nil {
		return err
	}
	ticker = strings.ToUpper(ticker)
	before, err := app.Market.Stock(ticker)
	if err != nil {
		return fmt.Errorf("%s: %w", ticker, err)
	}
	s, err := fn(ticker)
	if err != nil {
		output.Error("Report failed: %v", err)
		return err
	}
	if output.IsJSON() {
		return output.JSON(s)
	}
	output.Success("✓ %s repriced", s.Ticker)
	output.Printf("  Price: %s → %s (%s)\n", FormatMoney(before.CurrentPrice), FormatMoney(s.CurrentPrice),
		output.FormatPercent(changePercent(s.CurrentPrice, before.CurrentPrice)))
	return nil
}

func newIntrinsicCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "intrinsic <ticker> <value>",
		Short: "Set the intrinsic value of a listed stock",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if err := app.open(cmd.Context(), session{}); err != nil {
				return err
			}
			value, err := strconv.ParseFloat(args[1], 64)
			if err != nil {
				return fmt.Errorf("invalid value %q", args[1])
			}
			ticker := strings.ToUpper(args[0])
			delta, err := app.Market.SetIntrinsicValue(cmd.Context(), ticker, value)
			if err != nil {
				output.Error("Update failed: %v", err)
				return err
			}
			if output.IsJSON() {
				return output.JSON(map[string]any{"ticker": ticker, "value": value, "pressure": delta})
			}
			output.Success("✓ %s intrinsic value set to %s", ticker, FormatMoney(value))
			if delta > 0 {
				output.Printf("  Added buy pressure: %.4f\n", delta)
			}
			return nil
		},
	}
}
