package cli

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"synth-exchange/internal/models"
	"synth-exchange/internal/store"
)

func addTradingCommands(rootCmd *cobra.Command, app *App) {
	rootCmd.AddCommand(newBuyCmd(app))
	rootCmd.AddCommand(newSellCmd(app))
	rootCmd.AddCommand(newPortfolioCmd(app))
	rootCmd.AddCommand(newRankingCmd(app))
	rootCmd.AddCommand(newTradesCmd(app))
	rootCmd.AddCommand(newBalanceCmd(app))
}

func newBuyCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "buy <ticker> [quantity]",
		Short: "Buy shares at the current price",
		Example: `  synthx buy CY 100
  synthx buy CY --all`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			ctx, cancel := withTimeout(cmd)
			defer cancel()
			if err := app.open(ctx, session{}); err != nil {
				return err
			}

			all, _ := cmd.Flags().GetBool("all")
			ticker := strings.ToUpper(args[0])
			var (
				trade models.Trade
				err   error
			)
			switch {
			case all:
				trade, err = app.Trading.BuyAllIn(ctx, userOf(cmd), ticker)
			case len(args) == 2:
				qty, perr := strconv.ParseInt(args[1], 10, 64)
				if perr != nil {
					return fmt.Errorf("invalid quantity %q", args[1])
				}
				trade, err = app.Trading.Buy(ctx, userOf(cmd), ticker, qty)
			default:
				return fmt.Errorf("quantity or --all is required")
			}
			if err != nil {
				output.Error("Order rejected: %v", err)
				return err
			}
			return showTrade(output, trade)
		},
	}
	cmd.Flags().Bool("all", false, "spend the whole balance")
	return cmd
}

func newSellCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sell [ticker] [quantity]",
		Short: "Sell unlocked shares at the current price",
		Example: `  synthx sell CY 50
  synthx sell CY --all
  synthx sell --portfolio`,
		Args: cobra.RangeArgs(0, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			ctx, cancel := withTimeout(cmd)
			defer cancel()
			if err := app.open(ctx, session{}); err != nil {
				return err
			}

			user := userOf(cmd)
			if portfolio, _ := cmd.Flags().GetBool("portfolio"); portfolio {
				trades, err := app.Trading.SellPortfolio(ctx, user)
				if output.IsJSON() && err == nil {
					return output.JSON(trades)
				}
				for _, t := range trades {
					showTradeLine(output, t)
				}
				if err != nil {
					output.Error("Some positions could not be sold: %v", err)
				}
				return err
			}

			if len(args) == 0 {
				return fmt.Errorf("ticker is required")
			}
			ticker := strings.ToUpper(args[0])
			all, _ := cmd.Flags().GetBool("all")
			var (
				trade models.Trade
				err   error
			)
			switch {
			case all:
				trade, err = app.Trading.SellAll(ctx, user, ticker)
			case len(args) == 2:
				qty, perr := strconv.ParseInt(args[1], 10, 64)
				if perr != nil {
					return fmt.Errorf("invalid quantity %q", args[1])
				}
				trade, err = app.Trading.Sell(ctx, user, ticker, qty)
			default:
				return fmt.Errorf("quantity, --all or --portfolio is required")
			}
			if err != nil {
				output.Error("Order rejected: %v", err)
				return err
			}
			return showTrade(output, trade)
		},
	}
	cmd.Flags().Bool("all", false, "sell every unlocked share of the stock")
	cmd.Flags().Bool("portfolio", false, "sell every unlocked position")
	return cmd
}

func showTrade(output *Output, t models.Trade) error {
	if output.IsJSON() {
		return output.JSON(t)
	}
	output.Success("✓ %s %s %s", t.Side, FormatQuantity(t.Quantity), t.Ticker)
	output.Printf("  Price:    %s\n", FormatMoney(t.Price))
	output.Printf("  Gross:    %s\n", FormatMoney(t.Gross))
	output.Printf("  Fee:      %s\n", FormatMoney(t.Fee))
	if t.Slippage > 0 {
		output.Printf("  Slippage: %.3f%%\n", t.Slippage*100)
	}
	if t.Side == models.OrderSideSell {
		output.Printf("  P/L:      %s\n", output.FormatPnL(t.ProfitLoss))
	}
	return nil
}

func showTradeLine(output *Output, t models.Trade) {
	pl := ""
	if t.Side == models.OrderSideSell {
		pl = output.FormatPnL(t.ProfitLoss)
	}
	output.Printf("%-4s %-6s %8s @ %10s  fee %8s  %s\n", t.Side, t.Ticker, FormatQuantity(t.Quantity),
		FormatMoney(t.Price), FormatMoney(t.Fee), pl)
}

func newPortfolioCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "portfolio",
		Short: "Show holdings valued at current prices",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			ctx, cancel := withTimeout(cmd)
			defer cancel()
			if err := app.open(ctx, session{}); err != nil {
				return err
			}

			p, err := app.Trading.Portfolio(ctx, userOf(cmd))
			if err != nil {
				return err
			}
			if output.IsJSON() {
				return output.JSON(p)
			}

			output.Bold("Portfolio: %s", p.UserID)
			if len(p.Positions) > 0 {
				table := NewTable(output, "Ticker", "Qty", "Sellable", "Avg Cost", "Price", "Value", "P/L")
				for _, pos := range p.Positions {
					table.AddRow(
						pos.Ticker,
						FormatQuantity(pos.Quantity),
						FormatQuantity(pos.Sellable),
						FormatMoney(pos.AverageCost),
						FormatMoney(pos.MarketPrice),
						FormatMoney(pos.MarketValue),
						output.FormatPnL(pos.ProfitLoss),
					)
				}
				table.Render()
			} else {
				output.Dim("No holdings")
			}
			output.Println()
			output.Printf("Cash:        %s\n", FormatMoney(p.Balance))
			output.Printf("Holdings:    %s\n", FormatMoney(p.MarketValue))
			output.Printf("Total asset: %s\n", FormatMoney(p.TotalAsset))
			return nil
		},
	}
}

func newRankingCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ranking",
		Short: "Show the total asset leaderboard",
		Example: `  synthx ranking
  synthx ranking -n 3 --json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			ctx, cancel := withTimeout(cmd)
			defer cancel()
			if err := app.open(ctx, session{}); err != nil {
				return err
			}

			limit, _ := cmd.Flags().GetInt("limit")
			ranking, err := app.Trading.Ranking(ctx, limit)
			if err != nil {
				return err
			}
			if output.IsJSON() {
				return output.JSON(ranking)
			}
			if len(ranking) == 0 {
				output.Dim("No holders yet")
				return nil
			}

			table := NewTable(output, "#", "User", "Cash", "Holdings", "Total Asset")
			for _, e := range ranking {
				table.AddRow(
					strconv.Itoa(e.Rank),
					e.UserID,
					FormatMoney(e.Balance),
					FormatMoney(e.MarketValue),
					FormatMoney(e.TotalAsset),
				)
			}
			table.Render()
			return nil
		},
	}
	cmd.Flags().IntP("limit", "n", 10, "number of holders to show")
	return cmd
}

func newTradesCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "trades [ticker]",
		Short: "Show trade history",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			ctx, cancel := withTimeout(cmd)
			defer cancel()
			if err := app.open(ctx, session{}); err != nil {
				return err
			}

			limit, _ := cmd.Flags().GetInt("limit")
			filter := store.TradeFilter{UserID: userOf(cmd), Limit: limit}
			if len(args) == 1 {
				filter.Ticker = strings.ToUpper(args[0])
			}
			trades, err := app.Store.Trades(ctx, filter)
			if err != nil {
				return err
			}
			if output.IsJSON() {
				return output.JSON(trades)
			}
			if len(trades) == 0 {
				output.Dim("No trades")
				return nil
			}

			loc := app.Market.Clock().Location()
			table := NewTable(output, "Time", "Side", "Ticker", "Qty", "Price", "Gross", "Fee", "P/L")
			for _, t := range trades {
				side := output.Green(string(t.Side))
				pl := "-"
				if t.Side == models.OrderSideSell {
					side = output.Red(string(t.Side))
					pl = output.FormatPnL(t.ProfitLoss)
				}
				table.AddRow(
					t.Timestamp.In(loc).Format("01-02 15:04"),
					side,
					t.Ticker,
					FormatQuantity(t.Quantity),
					FormatMoney(t.Price),
					FormatMoney(t.Gross),
					FormatMoney(t.Fee),
					pl,
				)
			}
			table.Render()
			return nil
		},
	}
	cmd.Flags().IntP("limit", "n", 20, "maximum trades to show")
	return cmd
}

func newBalanceCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "balance",
		Short: "Show the cash balance",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			ctx, cancel := withTimeout(cmd)
			defer cancel()
			if err := app.open(ctx, session{}); err != nil {
				return err
			}
			b, err := app.Trading.Balance(ctx, userOf(cmd))
			if err != nil {
				return err
			}
			if output.IsJSON() {
				return output.JSON(map[string]any{"user": userOf(cmd), "balance": b})
			}
			output.Printf("%s: %s\n", userOf(cmd), FormatMoney(b))
			return nil
		},
	}
}
