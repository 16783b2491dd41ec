package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"flag-scanner/internal/config"
	"flag-scanner/internal/notify"
	"flag-scanner/pkg/utils"
)

func newRedisChannel(cfg *config.Config) *notify.RedisChannel {
	return notify.NewRedisChannel(notify.RedisOptions{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Credentials.Redis.Password,
		DB:       cfg.Redis.DB,
		Channel:  cfg.Redis.Channel,
		Prefix:   cfg.Redis.Prefix,
		TTL:      cfg.Redis.TTL,
	})
}

// addSignalCommands adds commands that read published signals back from Redis.
func addSignalCommands(rootCmd *cobra.Command, app *App) {
	cmd := &cobra.Command{
		Use:   "signals",
		Short: "Read signals published to Redis",
		Long:  "Inspect the signals the watcher publishes when [redis] is enabled.",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := rootCmd.PersistentPreRunE(cmd, args); err != nil {
				return err
			}
			if !app.Config.Redis.Enabled {
				return fmt.Errorf("redis is disabled; set [redis] enabled = true in %s", config.TemplatePath(app.Config.Dir()))
			}
			return nil
		},
	}

	cmd.AddCommand(newSignalsLastCmd(app))
	cmd.AddCommand(newSignalsTailCmd(app))

	rootCmd.AddCommand(cmd)
}

func newSignalsLastCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "last <symbol>",
		Short:   "Show the latest live signal for a series",
		Example: `  flagscan signals last ACME --timeframe 1h`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()

			symbol := strings.ToUpper(args[0])
			timeframe, _ := cmd.Flags().GetString("timeframe")

			rc := newRedisChannel(app.Config)
			defer rc.Close()

			sig, err := rc.Last(ctx, symbol, timeframe)
			if err != nil {
				output.Error("Redis at %s: %v", app.Config.Redis.Addr, err)
				return err
			}

			if output.IsJSON() {
				return output.JSON(sig)
			}
			if sig == nil {
				output.Warning("No live signal for %s %s", symbol, timeframe)
				return nil
			}
			printSignal(output, *sig)
			return nil
		},
	}

	cmd.Flags().StringP("timeframe", "t", "1h", "Timeframe")
	return cmd
}

func newSignalsTailCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "tail",
		Short: "Follow signals as they are published",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			rc := newRedisChannel(app.Config)
			defer rc.Close()

			signals, err := rc.Subscribe(ctx)
			if err != nil {
				output.Error("Redis at %s: %v", app.Config.Redis.Addr, err)
				return err
			}
			if !output.IsJSON() {
				output.Info("Following %s. Press Ctrl+C to stop.", app.Config.Redis.Channel)
			}

			for sig := range signals {
				if output.IsJSON() {
					if err := output.JSON(sig); err != nil {
						return err
					}
					continue
				}
				printSignal(output, sig)
			}
			return nil
		},
	}
}

func printSignal(output *Output, s notify.Signal) {
	p := s.Pattern
	output.Printf("%s  %-8s %-4s %s  Q %s  anchors %s  T4 %s  target %s\n",
		FormatDateTime(s.EmittedAt),
		s.Symbol,
		p.Timeframe,
		output.Direction(p.Direction),
		output.Quality(p.QualityScore),
		FormatAnchors(p),
		utils.FormatPrice(p.T4.Price),
		utils.FormatPrice(s.TargetPrice),
	)
}
