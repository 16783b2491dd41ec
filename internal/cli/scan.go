package cli

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"flag-scanner/internal/analysis"
	"flag-scanner/internal/analysis/patterns"
	"flag-scanner/internal/analysis/screener"
	"flag-scanner/internal/feed"
	"flag-scanner/internal/logging"
	"flag-scanner/internal/models"
	"flag-scanner/internal/store"
	"flag-scanner/pkg/utils"
)

// addScanCommands adds single-series and multi-series scan commands.
func addScanCommands(rootCmd *cobra.Command, app *App) {
	rootCmd.AddCommand(newScanCmd(app))
	rootCmd.AddCommand(newScreenCmd(app))
}

type scanOutput struct {
	Symbol    string                 `json:"symbol"`
	Timeframe string                 `json:"timeframe"`
	ScanType  patterns.ScanType      `json:"scan_type"`
	Bars      int                    `json:"bars"`
	Saved     int                    `json:"saved,omitempty"`
	RunID     string                 `json:"run_id,omitempty"`
	Patterns  []patterns.FlagPattern `json:"patterns"`
}

func newScanCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "scan <symbol>",
		Short: "Scan one bar series for flag patterns",
		Long: `Scan one symbol and timeframe for bull and bear flag patterns.

Bars come from the store unless --csv names a file. In "all" mode every historical
pattern is reported; in "latest" mode only patterns whose last anchor is within a
few bars of the end of the series.`,
		Example: `  flagscan scan ACME --timeframe 1h
  flagscan scan ACME --mode latest --save
  flagscan scan ACME --csv acme_5m.csv --timeframe 5m --min-pole 2`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
			defer cancel()

			symbol := strings.ToUpper(args[0])
			timeframe, _ := cmd.Flags().GetString("timeframe")
			csvPath, _ := cmd.Flags().GetString("csv")
			save, _ := cmd.Flags().GetBool("save")

			opts, scanType, err := scanOptions(cmd, app)
			if err != nil {
				return err
			}

			var bars []models.Bar
			if csvPath != "" {
				bars, err = feed.ReadCSVFile(csvPath)
			} else {
				var ds store.DataStore
				if ds, err = app.Store(); err == nil {
					bars, err = feed.NewStoreProvider(ds, app.Config.Scanner.Lookback).Bars(ctx, symbol, timeframe)
				}
			}
			if err != nil {
				output.Error("Failed to load bars: %v", err)
				return err
			}

			start := time.Now()
			found := patterns.Scan(bars, timeframe, opts...)
			logging.LogScan(app.Logger, symbol, timeframe, len(bars), len(found), time.Since(start), nil)

			result := scanOutput{
				Symbol:    symbol,
				Timeframe: timeframe,
				ScanType:  scanType,
				Bars:      len(bars),
				Patterns:  found,
			}
			if result.Patterns == nil {
				result.Patterns = []patterns.FlagPattern{}
			}

			if save && len(found) > 0 {
				ds, err := app.Store()
				if err != nil {
					return err
				}
				result.RunID = uuid.NewString()
				inserted, err := ds.SavePatterns(ctx, symbol, result.RunID, found)
				if err != nil {
					output.Error("Failed to save patterns: %v", err)
					return err
				}
				result.Saved = len(inserted)
			}

			if output.IsJSON() {
				return output.JSON(result)
			}
			displayScan(output, result)
			return nil
		},
	}

	cmd.Flags().StringP("timeframe", "t", "1h", "Timeframe")
	cmd.Flags().String("csv", "", "Read bars from a CSV file instead of the store")
	cmd.Flags().Bool("save", false, "Store detected patterns")
	addScanFlags(cmd)

	return cmd
}

func addScanFlags(cmd *cobra.Command) {
	cmd.Flags().StringP("mode", "m", "all", "Scan mode: all or latest")
	cmd.Flags().IntP("window", "w", 0, "Extremum half-window (default from config)")
	cmd.Flags().Float64("min-pole", 0, "Minimum pole height in percent (default per timeframe)")
	cmd.Flags().StringP("direction", "d", "both", "Direction: bullish, bearish or both")
}

// scanOptions turns the shared scan flags into search options.
func scanOptions(cmd *cobra.Command, app *App) ([]patterns.Option, patterns.ScanType, error) {
	mode, _ := cmd.Flags().GetString("mode")
	window, _ := cmd.Flags().GetInt("window")
	direction, _ := cmd.Flags().GetString("direction")

	scanType, err := patterns.ParseScanType(mode)
	if err != nil {
		return nil, "", err
	}
	if window < 0 {
		return nil, "", fmt.Errorf("--window must not be negative")
	}

	opts := []patterns.Option{
		patterns.WithConfig(app.Config.ScannerConfig()),
		patterns.WithScanType(scanType),
		patterns.WithWindow(window),
	}
	if cmd.Flags().Changed("min-pole") {
		minPole, _ := cmd.Flags().GetFloat64("min-pole")
		if minPole < 0 {
			return nil, "", fmt.Errorf("--min-pole must not be negative")
		}
		opts = append(opts, patterns.WithMinPolePercent(minPole))
	}
	switch strings.ToLower(direction) {
	case "", "both":
	default:
		dir, ok := analysis.ParseDirection(direction)
		if !ok {
			return nil, "", fmt.Errorf("unknown direction %q (want bullish, bearish or both)", direction)
		}
		opts = append(opts, patterns.WithDirections(dir))
	}
	return opts, scanType, nil
}

func displayScan(output *Output, r scanOutput) {
	output.Bold("%s %s  (%s bars, %s mode)", r.Symbol, r.Timeframe, utils.FormatCount(int64(r.Bars)), r.ScanType)
	output.Println()

	if len(r.Patterns) == 0 {
		output.Warning("No flag patterns found")
		return
	}

	table := NewTable(output, "DIR", "Q", "", "ANCHORS", "POLE", "T4", "T4 TIME", "TARGET")
	for _, p := range r.Patterns {
		table.AddRow(
			output.Direction(p.Direction),
			output.Quality(p.QualityScore),
			output.DimText(QualityBar(p.QualityScore)),
			FormatAnchors(p),
			FormatPolePercent(p),
			utils.FormatPrice(p.T4.Price),
			FormatDateTime(p.T4.Time),
			utils.FormatPrice(p.TargetPrice()),
		)
	}
	table.Render()

	if r.RunID != "" {
		output.Println()
		output.Dim("Saved %d new patterns (run %s)", r.Saved, r.RunID)
	}
}

type screenOutput struct {
	Jobs    int            `json:"jobs"`
	Filters []string       `json:"filters,omitempty"`
	Results []screenResult `json:"results"`
}

type screenResult struct {
	Symbol      string                 `json:"symbol"`
	Timeframe   string                 `json:"timeframe"`
	Bars        int                    `json:"bars"`
	BestQuality int                    `json:"best_quality"`
	Error       string                 `json:"error,omitempty"`
	Patterns    []patterns.FlagPattern `json:"patterns,omitempty"`
}

func newScreenCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "screen [symbols...]",
		Short: "Scan many symbols concurrently",
		Long: `Scan several symbols and timeframes in parallel and list those with flags.

Symbols default to the watchlist. Filters narrow the patterns kept per series; they
take the form <field><op><value> with fields quality, direction (1 bull, -1 bear),
pole_pct, age and flag_bars.

Presets:
  strong      quality >= 80
  fresh_bull  bullish, at most 3 bars old
  fresh_bear  bearish, at most 3 bars old
  tall_pole   pole >= 10% of price
  tight       flag of at most 15 bars`,
		Example: `  flagscan screen
  flagscan screen ACME BETA --timeframes 1h,1d --mode latest
  flagscan screen --filter "quality>=80" --filter "pole_pct>5" --save-query strong5
  flagscan screen --query strong5 --dir ./bars`,
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
			defer cancel()

			timeframes, _ := cmd.Flags().GetString("timeframes")
			listName, _ := cmd.Flags().GetString("watchlist")
			dir, _ := cmd.Flags().GetString("dir")
			workers, _ := cmd.Flags().GetInt("workers")
			exprs, _ := cmd.Flags().GetStringArray("filter")
			presetName, _ := cmd.Flags().GetString("preset")
			queryName, _ := cmd.Flags().GetString("query")
			saveName, _ := cmd.Flags().GetString("save-query")

			opts, _, err := scanOptions(cmd, app)
			if err != nil {
				return err
			}

			ds, err := app.Store()
			if err != nil {
				return err
			}
			if workers <= 0 {
				workers = app.Config.Scanner.Workers
			}
			scr := screener.NewScreener(ds, workers, opts...)

			var filters []screener.Filter
			if presetName != "" {
				preset, err := screener.GetPresetByName(presetName)
				if err != nil {
					return err
				}
				filters = append(filters, preset.Filters...)
			}
			if queryName != "" {
				saved, err := scr.LoadQuery(ctx, queryName)
				if err != nil {
					return err
				}
				filters = append(filters, saved...)
			}
			for _, expr := range exprs {
				f, err := screener.ParseFilter(expr)
				if err != nil {
					return err
				}
				filters = append(filters, f)
			}
			if saveName != "" {
				if err := scr.SaveQuery(ctx, saveName, filters); err != nil {
					return err
				}
				app.Logger.Info().Str("query", saveName).Int("filters", len(filters)).Msg("Screener query saved")
			}

			symbols := make([]string, 0, len(args))
			for _, s := range args {
				symbols = append(symbols, strings.ToUpper(s))
			}
			if len(symbols) == 0 {
				if listName == "" {
					listName = app.Config.Watch.Watchlist
				}
				if symbols, err = ds.GetWatchlist(ctx, listName); err != nil {
					return err
				}
				if len(symbols) == 0 {
					output.Warning("Watchlist %s is empty. Pass symbols or use 'flagscan watchlist add'.", listName)
					return nil
				}
			}

			tfs := SplitList(timeframes)
			if len(tfs) == 0 {
				tfs = app.Config.Watch.Timeframes
			}

			provider := screener.BarProvider(feed.NewStoreProvider(ds, app.Config.Scanner.Lookback).Bars)
			if dir != "" {
				provider = feed.NewDirProvider(dir).Bars
			}

			jobs := screener.Jobs(symbols, tfs)
			results, err := scr.Scan(logging.WithLogger(ctx, app.Logger), jobs, filters, provider)
			if err != nil {
				return err
			}

			out := screenOutput{Jobs: len(jobs), Results: make([]screenResult, 0, len(results))}
			for _, f := range filters {
				out.Filters = append(out.Filters, f.String())
			}
			for _, r := range results {
				sr := screenResult{
					Symbol:      r.Symbol,
					Timeframe:   r.Timeframe,
					Bars:        len(r.Bars),
					BestQuality: r.BestQuality,
					Patterns:    r.Patterns,
				}
				if r.Error != nil {
					sr.Error = r.Error.Error()
				}
				out.Results = append(out.Results, sr)
			}

			if output.IsJSON() {
				return output.JSON(out)
			}
			displayScreen(output, out)
			return nil
		},
	}

	cmd.Flags().String("timeframes", "", "Comma separated timeframes (default from config)")
	cmd.Flags().String("watchlist", "", "Watchlist used when no symbols are given")
	cmd.Flags().String("dir", "", "Read bars from SYMBOL_TIMEFRAME.csv files in this directory")
	cmd.Flags().Int("workers", 0, "Concurrent scans (default from config)")
	cmd.Flags().StringArrayP("filter", "f", nil, "Pattern filter such as quality>=80 (repeatable)")
	cmd.Flags().String("preset", "", "Preset screener name")
	cmd.Flags().String("query", "", "Load a saved filter set")
	cmd.Flags().String("save-query", "", "Save the resulting filter set under this name")
	addScanFlags(cmd)

	return cmd
}

func displayScreen(output *Output, out screenOutput) {
	if len(out.Filters) > 0 {
		output.Dim("Filters: %s", strings.Join(out.Filters, ", "))
	}

	matched := 0
	table := NewTable(output, "SYMBOL", "TF", "BARS", "FLAGS", "BEST", "LATEST")
	var failed []screenResult
	for _, r := range out.Results {
		if r.Error != "" {
			failed = append(failed, r)
			continue
		}
		matched++
		latest := r.Patterns[0]
		for _, p := range r.Patterns[1:] {
			if p.T4.Index > latest.T4.Index {
				latest = p
			}
		}
		table.AddRow(
			r.Symbol,
			r.Timeframe,
			utils.FormatCount(int64(r.Bars)),
			fmt.Sprintf("%d", len(r.Patterns)),
			output.Quality(r.BestQuality),
			fmt.Sprintf("%s %s", output.Direction(latest.Direction), FormatDateTime(latest.T4.Time)),
		)
	}

	if matched == 0 {
		output.Warning("No flags found in %d series", out.Jobs)
	} else {
		table.Render()
		output.Println()
		output.Success("%d of %d series have flags", matched, out.Jobs)
	}

	for _, r := range failed {
		output.Error("%s %s: %s", r.Symbol, r.Timeframe, TruncateString(r.Error, 100))
	}
}
