// Package cli provides the command-line interface for the flag scanner.
package cli

import (
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"flag-scanner/internal/config"
	"flag-scanner/internal/logging"
	"flag-scanner/internal/store"
)

// Version information
const (
	Version   = "0.3.0"
	BuildDate = "2026-10-01"
)

// App holds the application dependencies.
type App struct {
	Config *config.Config
	Logger zerolog.Logger

	// LoggerFromConfig rebuilds Logger from the [log] section once config is loaded.
	LoggerFromConfig bool

	store store.DataStore
}

// NewApp creates an application with the given bootstrap logger.
func NewApp(logger zerolog.Logger) *App {
	return &App{Logger: logger}
}

// Store opens the configured database on first use.
func (a *App) Store() (store.DataStore, error) {
	if a.store != nil {
		return a.store, nil
	}
	ds, err := store.NewSQLiteStore(a.Config.Store.Path)
	if err != nil {
		return nil, err
	}
	a.Logger.Debug().Str("path", a.Config.Store.Path).Msg("SQLite store initialized")
	a.store = ds
	return ds, nil
}

// Close releases the store.
func (a *App) Close() error {
	if a.store == nil {
		return nil
	}
	err := a.store.Close()
	a.store = nil
	return err
}

// NewRootCmd creates the root command for the CLI.
func NewRootCmd(app *App) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "flagscan",
		Short: "Flag pattern scanner for OHLCV price series",
		Long: `flagscan finds five-point bull and bear flag continuation patterns in bar series.

Bars are imported from CSV files into a local SQLite store, scanned on demand or on a
schedule, and detected patterns can be listed, exported or published to Redis.

Use 'flagscan help <command>' for more information about a command.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			configDir, _ := cmd.Flags().GetString("config")
			cfg, err := config.Load(configDir)
			if err != nil {
				return err
			}
			app.Config = cfg

			if app.LoggerFromConfig {
				app.Logger = logging.NewLoggerWithConfig(cfg.LogConfig())
			}

			// Handle debug flag
			debug, _ := cmd.Flags().GetBool("debug")
			if debug {
				logging.SetDebugLevel()
				app.Logger = app.Logger.Level(zerolog.DebugLevel)
			}
			return nil
		},
	}

	// Global flags
	rootCmd.PersistentFlags().String("config", "", "config directory (default: ~/.config/flag-scanner)")
	rootCmd.PersistentFlags().Bool("json", false, "output in JSON format")
	rootCmd.PersistentFlags().Bool("debug", false, "enable debug logging")

	rootCmd.AddCommand(newVersionCmd())
	rootCmd.AddCommand(newConfigCmd(app))
	addDataCommands(rootCmd, app)
	addScanCommands(rootCmd, app)
	addPatternCommands(rootCmd, app)
	addWatchCommands(rootCmd, app)
	addWatchlistCommands(rootCmd, app)
	addSignalCommands(rootCmd, app)

	return rootCmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			output := NewOutput(cmd)
			if output.IsJSON() {
				output.JSON(map[string]string{
					"version":    Version,
					"build_date": BuildDate,
				})
			} else {
				output.Printf("flagscan v%s\n", Version)
				output.Dim("Build date: %s", BuildDate)
			}
		},
	}
}

func newConfigCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration management",
		Long:  "View and validate application configuration.",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show current configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if output.IsJSON() {
				return output.JSON(app.Config)
			}
			return showConfig(output, app.Config)
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "path",
		Short: "Show configuration file path",
		Run: func(cmd *cobra.Command, args []string) {
			output := NewOutput(cmd)
			path := config.TemplatePath(app.Config.Dir())
			if output.IsJSON() {
				output.JSON(map[string]string{"path": path})
			} else {
				output.Println(path)
			}
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "validate",
		Short: "Validate configuration files",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if err := app.Config.Validate(); err != nil {
				output.Error("Configuration validation failed: %v", err)
				return err
			}
			if output.IsJSON() {
				return output.JSON(map[string]bool{"valid": true})
			}
			output.Success("Configuration is valid")
			return nil
		},
	})

	return cmd
}

func showConfig(output *Output, cfg *config.Config) error {
	s := cfg.Scanner
	output.Bold("Scanner")
	output.Printf("  Window:          %d\n", s.Window)
	output.Printf("  Min bars:        %d\n", s.MinBars)
	output.Printf("  T3 / T4 span:    %d / %d\n", s.MaxT3Span, s.MaxT4Span)
	output.Printf("  Pole lookback:   %d\n", s.PoleLookback)
	output.Printf("  Freshness bars:  %d\n", s.FreshnessBars)
	output.Printf("  Dedup distance:  %d\n", s.DedupDistance)
	output.Printf("  Workers:         %d\n", s.Workers)
	for tf, v := range s.Tolerance {
		output.Printf("  Tolerance %-5s  %.4f\n", tf+":", v)
	}
	for tf, v := range s.MinPolePercent {
		output.Printf("  Min pole %-6s  %.2f%%\n", tf+":", v)
	}
	output.Println()

	output.Bold("Store")
	output.Printf("  Path:            %s\n", cfg.Store.Path)
	output.Println()

	output.Bold("Watch")
	output.Printf("  Schedule:        %s\n", cfg.Watch.Schedule)
	output.Printf("  Watchlist:       %s\n", cfg.Watch.Watchlist)
	output.Printf("  Timeframes:      %v\n", cfg.Watch.Timeframes)
	output.Printf("  Min quality:     %d\n", cfg.Watch.MinQuality)
	output.Println()

	output.Bold("Redis")
	output.Printf("  Enabled:         %v\n", cfg.Redis.Enabled)
	output.Printf("  Address:         %s (db %d)\n", cfg.Redis.Addr, cfg.Redis.DB)
	output.Printf("  Channel:         %s\n", cfg.Redis.Channel)
	output.Printf("  TTL:             %s\n", cfg.Redis.TTL)
	output.Println()

	output.Bold("API")
	output.Printf("  Listen:          %s\n", cfg.API.Listen)
	output.Println()

	output.Bold("Log")
	output.Printf("  Level:           %s\n", cfg.Log.Level)
	output.Printf("  File:            %v (%s)\n", cfg.Log.File, cfg.Log.FilePath)

	return nil
}
