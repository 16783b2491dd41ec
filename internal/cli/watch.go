package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"flag-scanner/internal/analysis/patterns"
	"flag-scanner/internal/analysis/screener"
	"flag-scanner/internal/api"
	"flag-scanner/internal/feed"
	"flag-scanner/internal/notify"
	"flag-scanner/internal/watch"
)

// addWatchCommands adds the long-running commands.
func addWatchCommands(rootCmd *cobra.Command, app *App) {
	rootCmd.AddCommand(newWatchCmd(app))
	rootCmd.AddCommand(newServeCmd(app))
}

func newWatchCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Scan a watchlist on a schedule and publish new flags",
		Long: `Run latest-mode scans over every symbol of a watchlist on a cron schedule.

New patterns are stored and published to the terminal, and to Redis when
[redis] is enabled. A pattern is published once; failed deliveries are
retried on the next run.`,
		Example: `  flagscan watch
  flagscan watch --schedule "@every 5m" --timeframes 15m,1h
  flagscan watch --once`,
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			cfg := app.Config

			once, _ := cmd.Flags().GetBool("once")
			spec, _ := cmd.Flags().GetString("schedule")
			list, _ := cmd.Flags().GetString("watchlist")
			tfs, _ := cmd.Flags().GetString("timeframes")
			if spec == "" {
				spec = cfg.Watch.Schedule
			}
			if list == "" {
				list = cfg.Watch.Watchlist
			}
			timeframes := cfg.Watch.Timeframes
			if tfs != "" {
				timeframes = SplitList(tfs)
			}

			ds, err := app.Store()
			if err != nil {
				return err
			}

			// Alerts go to stderr in JSON mode so stdout stays a single document.
			alerts := output.Writer()
			if output.IsJSON() {
				alerts = cmd.ErrOrStderr()
			}
			terminal := notify.NewTerminalChannel(alerts, cfg.UI.ColorEnabled && output.ColorEnabled())
			terminal.SetBellEnabled(cfg.UI.Bell)
			notifier := notify.NewMultiNotifier(cfg.Watch.MinQuality, terminal)
			var guard *notify.GuardedChannel
			if cfg.Redis.Enabled {
				rc := newRedisChannel(cfg)
				defer rc.Close()
				guard = notify.NewGuardedChannel(rc, notify.DefaultBreakerConfig())
				notifier.AddChannel(guard)
			}

			scr := screener.NewScreener(ds, cfg.Scanner.Workers,
				patterns.WithConfig(cfg.ScannerConfig()),
				patterns.WithScanType(patterns.ScanLatest),
			)
			provider := feed.NewStoreProvider(ds, cfg.Scanner.Lookback).Bars

			w := watch.New(ds, scr, provider, notifier, watch.Options{
				Spec:       spec,
				Watchlist:  list,
				Timeframes: timeframes,
			}, app.Logger)

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			if once {
				report, err := w.RunOnce(ctx)
				if err != nil && report == nil {
					return err
				}
				if output.IsJSON() {
					if jerr := output.JSON(report); jerr != nil {
						return jerr
					}
				} else {
					output.Dim("Run %s: %d jobs, %d failed, %d found, %d new, %d published in %s",
						report.RunID, report.Jobs, report.Failed, report.Found, report.New, report.Published,
						FormatDuration(report.Duration))
					printBreakerStats(output, guard)
				}
				return err
			}

			if err := w.Register(); err != nil {
				return err
			}
			w.Start(ctx)
			output.Info("Watching %s %v on %q (next run %s). Press Ctrl+C to stop.",
				list, timeframes, spec, FormatDateTime(w.Next()))

			<-ctx.Done()
			w.Stop()
			output.Println()
			output.Success("Watcher stopped")
			printBreakerStats(output, guard)
			return nil
		},
	}

	cmd.Flags().Bool("once", false, "Run a single scan and exit")
	cmd.Flags().String("schedule", "", "Cron spec or descriptor (default from config)")
	cmd.Flags().String("watchlist", "", "Watchlist to scan (default from config)")
	cmd.Flags().String("timeframes", "", "Comma-separated timeframes (default from config)")

	return cmd
}

func printBreakerStats(output *Output, g *notify.GuardedChannel) {
	if g == nil {
		return
	}
	st := g.Stats()
	line := fmt.Sprintf("%s: breaker %s, %d delivered, %d failed, %d rejected",
		g.Name(), st.State, st.Delivered, st.Failed, st.Rejected)
	if st.State == notify.BreakerClosed {
		output.Dim("%s", line)
		return
	}
	output.Warning("%s", line)
}

func newServeCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the scan API over HTTP",
		Long: `Serve the JSON API:

  GET  /healthz
  POST /v1/scan                     scan bars supplied in the request body
  GET  /v1/symbols/{symbol}/scan    scan stored bars
  GET  /v1/patterns                 list stored patterns`,
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)

			listen, _ := cmd.Flags().GetString("listen")
			if listen == "" {
				listen = app.Config.API.Listen
			}

			ds, err := app.Store()
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			srv := api.NewServer(ds, app.Config.ScannerConfig(), app.Config.Scanner.Lookback, app.Logger)
			output.Info("Listening on http://%s", listen)
			return srv.ListenAndServe(ctx, listen)
		},
	}

	cmd.Flags().String("listen", "", "Listen address (default from config)")
	return cmd
}
