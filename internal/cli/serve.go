package cli

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"synth-exchange/internal/logging"
	"synth-exchange/internal/metrics"
	"synth-exchange/internal/models"
	"synth-exchange/internal/notify"
	"synth-exchange/internal/resilience"
	"synth-exchange/internal/stream"
)

func newServeCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the market simulation",
		Long: `Run the tick loop until interrupted. Quotes stream to the terminal with
--watch, market events go to the configured notification channels, quotes
are republished on redis.quote_channel and Prometheus metrics are served
when enabled.`,
		Example: `  synthx serve
  synthx serve --watch CY,HL
  synthx serve --watch '*' --quiet`,
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			cfg := app.Config
			logger := app.Logger

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			var feed *notify.QuoteFeed
			multi := notify.NewMultiNotifier(cfg.Notifications, logger)
			if quiet, _ := cmd.Flags().GetBool("quiet"); !quiet {
				multi.AddChannel(notify.NewTerminalChannel(cmd.OutOrStdout()))
			}
			if cfg.Redis.Enabled {
				var rdb *redis.Client
				err := resilience.Retry(ctx, resilience.DefaultRetryConfig(), func(ctx context.Context) error {
					var err error
					rdb, err = notify.NewRedisClient(ctx, cfg.Redis)
					return err
				})
				if err != nil {
					logger.Warn().Err(err).Str("addr", cfg.Redis.Addr).Msg("Redis unavailable, continuing without it")
				} else {
					pub := notify.NewRedisPublisher(rdb, cfg.Redis.Channel)
					app.closers = append(app.closers, pub.Close)
					multi.AddChannel(notify.Guard(pub, resilience.DefaultBreakerConfig()))
					if cfg.Redis.QuoteChannel != "" {
						feed = notify.NewQuoteFeed(pub, cfg.Redis.QuoteChannel, nil, 0, logger)
					}
				}
			}
			queue := notify.NewQueue(multi, 0, logger)
			recorder := metrics.New(cfg.Metrics.Namespace)
			hub := stream.NewHub()

			if err := app.open(ctx, session{notifier: queue, metrics: recorder, hub: hub}); err != nil {
				return err
			}

			output.Success("✓ Market loaded: %d stocks", len(app.Market.Tickers()))
			if channels := multi.Channels(); len(channels) > 0 {
				output.Dim("Notifications: %s", strings.Join(channels, ", "))
			}

			g, ctx := errgroup.WithContext(ctx)

			hub.Start(ctx)
			g.Go(func() error {
				<-ctx.Done()
				hub.Stop()
				return nil
			})
			g.Go(func() error { return queue.Run(ctx) })
			if feed != nil {
				hub.RegisterConsumer(feed)
				g.Go(func() error { return feed.Run(ctx) })
			}

			var watched []string
			if watch, _ := cmd.Flags().GetString("watch"); watch != "" {
				for _, ticker := range strings.Split(watch, ",") {
					ticker = strings.ToUpper(strings.TrimSpace(ticker))
					watched = append(watched, ticker)
					ch := hub.Subscribe(ticker)
					g.Go(func() error {
						for q := range ch {
							printQuote(output, q)
						}
						return nil
					})
				}
			}

			if cfg.Metrics.Enabled {
				mux := http.NewServeMux()
				mux.Handle("/metrics", recorder.Handler())
				srv := &http.Server{Addr: cfg.Metrics.Addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
				g.Go(func() error {
					logger.Info().Str("addr", cfg.Metrics.Addr).Msg("Metrics server listening")
					if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
						return err
					}
					return nil
				})
				g.Go(func() error {
					<-ctx.Done()
					shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
					defer cancel()
					return srv.Shutdown(shutdownCtx)
				})
			}

			g.Go(func() error {
				logStreamMetrics(ctx, logger, hub, watched, time.Minute)
				return nil
			})

			g.Go(func() error { return app.Market.Run(ctx) })

			err := g.Wait()
			if dropped := queue.Dropped(); dropped > 0 {
				logger.Warn().Uint64("dropped", dropped).Msg("Notifications dropped during run")
			}
			if feed != nil && feed.Dropped() > 0 {
				logger.Warn().Uint64("dropped", feed.Dropped()).Msg("Quotes not published to Redis")
			}
			output.Dim("Market stopped")
			return err
		},
	}
	cmd.Flags().StringP("watch", "w", "", "comma separated tickers to stream, '*' for all")
	cmd.Flags().BoolP("quiet", "q", false, "do not print market events")
	return cmd
}

// logStreamMetrics logs hub counters every interval until ctx is done.
func logStreamMetrics(ctx context.Context, logger zerolog.Logger, hub *stream.Hub, watched []string, interval time.Duration) {
	logger = logging.WithOperation(logger, "stream")
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m := hub.Metrics()
			subscribers := 0
			for _, t := range watched {
				subscribers += hub.SubscriberCount(t)
			}
			logger.Info().
				Uint64("received", m.Received).
				Uint64("delivered", m.Delivered).
				Uint64("dropped", m.Dropped).
				Int("subscribers", subscribers).
				Msg("Stream metrics")
		}
	}
}

func printQuote(output *Output, q models.Quote) {
	event := ""
	if q.Event != "" {
		event = output.Yellow(" ⚡ " + q.Event)
	}
	output.Printf("%s %-6s %10s %s%s\n",
		output.DimText(q.Timestamp.Format("15:04")),
		q.Ticker,
		FormatMoney(q.Price),
		output.FormatPercent(q.ChangePercent),
		event,
	)
}
