// Package cli provides the command-line interface for the market simulator.
package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"synth-exchange/internal/config"
	"synth-exchange/internal/ledger"
	"synth-exchange/internal/logging"
	"synth-exchange/internal/market"
	"synth-exchange/internal/metrics"
	"synth-exchange/internal/notify"
	"synth-exchange/internal/security"
	"synth-exchange/internal/store"
	"synth-exchange/internal/stream"
	"synth-exchange/internal/trading"
)

// Version information
const (
	Version   = "0.1.0"
	BuildDate = "2024-03-01"
)

// App holds the application dependencies. The market side is opened lazily
// by the commands that need it.
type App struct {
	Config *config.Config
	Logger zerolog.Logger

	Store   store.Store
	Ledger  ledger.Ledger
	Market  *market.Engine
	Trading *trading.Engine

	closers []func() error
}

// session carries the long-running collaborators serve wires in.
type session struct {
	notifier notify.Notifier
	metrics  *metrics.Recorder
	hub      *stream.Hub
}

// open connects the store and ledger, loads the market and builds the
// trading engine.
func (a *App) open(ctx context.Context, s session) error {
	if a.Market != nil {
		return nil
	}
	cfg := a.Config

	st, err := store.NewSQLiteStore(cfg.Storage.Path)
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}
	a.closers = append(a.closers, st.Close)
	a.Store = st

	led, err := ledger.NewSQLite(cfg.Storage.LedgerPath, cfg.Trading.StartingBalance)
	if err != nil {
		return fmt.Errorf("opening ledger: %w", err)
	}
	a.closers = append(a.closers, led.Close)
	a.Ledger = led

	if s.notifier == nil {
		s.notifier = notify.NewMultiNotifier(cfg.Notifications, a.Logger)
	}

	mkt, err := market.NewEngine(cfg, market.Options{
		Store:    st,
		Notifier: s.notifier,
		Hub:      s.hub,
		Metrics:  s.metrics,
		Logger:   a.Logger,
	})
	if err != nil {
		return err
	}
	if err := mkt.Load(ctx); err != nil {
		return fmt.Errorf("loading market: %w", err)
	}
	a.Market = mkt

	a.Trading, err = trading.NewEngine(cfg.Trading, trading.Options{
		Market:   mkt,
		Store:    st,
		Ledger:   led,
		Notifier: s.notifier,
		Metrics:  s.metrics,
		Logger:   a.Logger,
	})
	return err
}

// Close releases everything open opened, newest first.
func (a *App) Close() error {
	var first error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil && first == nil {
			first = err
		}
	}
	a.closers = nil
	return first
}

// NewRootCmd creates the root command for the CLI.
func NewRootCmd(logger zerolog.Logger) *cobra.Command {
	app := &App{Logger: logger}

	rootCmd := &cobra.Command{
		Use:   "synthx",
		Short: "synthx - synthetic securities market simulator",
		Long: `synthx simulates a small stock market: scripted daily trends, momentum waves,
a market maker, random events and user orders that move prices.

Run 'synthx serve' to start the tick loop. Trading and issuer commands work on
the same persisted market.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			dir, _ := cmd.Flags().GetString("config")
			cfg, err := config.Load(dir)
			if err != nil {
				return err
			}
			app.Config = cfg

			if debug, _ := cmd.Flags().GetBool("debug"); debug {
				cfg.Logging.Level = "debug"
				logging.SetDebugLevel()
			}
			app.Logger = logging.NewLoggerWithConfig(logging.LogConfig{
				Level:      cfg.Logging.Level,
				Console:    cfg.Logging.Console,
				File:       cfg.Logging.File,
				FilePath:   cfg.Logging.FilePath,
				MaxSize:    cfg.Logging.MaxSize,
				MaxBackups: cfg.Logging.MaxBackups,
				MaxAge:     cfg.Logging.MaxAge,
			})
			return nil
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			return app.Close()
		},
	}

	rootCmd.PersistentFlags().String("config", "", "config directory (default: ~/.config/synthx)")
	rootCmd.PersistentFlags().Bool("json", false, "output in JSON format")
	rootCmd.PersistentFlags().Bool("debug", false, "enable debug logging")
	rootCmd.PersistentFlags().StringP("user", "u", defaultUser(), "user id for trading commands")

	rootCmd.AddCommand(newVersionCmd())
	rootCmd.AddCommand(newConfigCmd(app))
	addMarketCommands(rootCmd, app)
	addIssuerCommands(rootCmd, app)
	addTradingCommands(rootCmd, app)
	rootCmd.AddCommand(newServeCmd(app))
	rootCmd.AddCommand(newSimulateCmd(app))

	return rootCmd
}

func defaultUser() string {
	if u := os.Getenv("SYNTHX_USER"); u != "" {
		return u
	}
	return "local"
}

func userOf(cmd *cobra.Command) string {
	u, _ := cmd.Flags().GetString("user")
	return u
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return nil
		},
		Run: func(cmd *cobra.Command, args []string) {
			output := NewOutput(cmd)
			if output.IsJSON() {
				output.JSON(map[string]string{
					"version":    Version,
					"build_date": BuildDate,
				})
				return
			}
			output.Printf("synthx v%s\n", Version)
			output.Dim("Build date: %s", BuildDate)
		},
	}
}

func newConfigCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration management",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show current configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			cfg := security.RedactConfig(*app.Config)
			if output.IsJSON() {
				return output.JSON(cfg)
			}
			showConfig(output, &cfg)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "path",
		Short: "Show configuration directory path",
		Run: func(cmd *cobra.Command, args []string) {
			output := NewOutput(cmd)
			dir, _ := cmd.Flags().GetString("config")
			if dir == "" {
				dir = config.DefaultConfigDir()
			}
			if output.IsJSON() {
				output.JSON(map[string]string{"path": dir})
				return
			}
			output.Println(dir)
		},
	})

	return cmd
}

func showConfig(output *Output, cfg *config.Config) {
	output.Bold("Market")
	output.Printf("  Session:          %s - %s (%s)\n", cfg.Market.OpenTime, cfg.Market.CloseTime, cfg.Market.Timezone)
	output.Printf("  Tick interval:    %s\n", cfg.Simulation.TickInterval)
	output.Printf("  Seed:             %d\n", cfg.Simulation.Seed)
	output.Println()

	output.Bold("Trading")
	output.Printf("  Sell lock:        %s\n", cfg.Trading.SellLock)
	output.Printf("  Buy / sell fee:   %.2f%% / %.2f%%\n", cfg.Trading.BuyFeeRate*100, cfg.Trading.SellFeeRate*100)
	output.Printf("  Liquidity cap:    %s\n", FormatMoney(cfg.Trading.DailyLiquidityLimit))
	output.Printf("  Starting balance: %s\n", FormatMoney(cfg.Trading.StartingBalance))
	output.Println()

	output.Bold("Market Maker")
	output.Printf("  Enabled:          %v\n", cfg.MarketMaker.Enabled)
	output.Printf("  Budget:           %s\n", FormatMoney(cfg.MarketMaker.Budget))
	output.Println()

	output.Bold("Storage")
	output.Printf("  Market DB:        %s\n", cfg.Storage.Path)
	output.Printf("  Ledger DB:        %s\n", cfg.Storage.LedgerPath)
	output.Println()

	output.Bold("Outputs")
	output.Printf("  Notifications:    %v (webhook %v)\n", cfg.Notifications.Enabled, cfg.Notifications.Webhook.Enabled)
	output.Printf("  Webhook URL:      %s\n", cfg.Notifications.Webhook.URL)
	output.Printf("  Metrics:          %v (%s)\n", cfg.Metrics.Enabled, cfg.Metrics.Addr)
	output.Printf("  Redis:            %v (%s %s)\n", cfg.Redis.Enabled, cfg.Redis.Addr, cfg.Redis.Channel)
	if cfg.Redis.Password != "" {
		output.Printf("  Redis password:   %s\n", cfg.Redis.Password)
	}
}
