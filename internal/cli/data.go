package cli

import (
	"context"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	apperrors "flag-scanner/internal/errors"
	"flag-scanner/internal/feed"
	"flag-scanner/internal/models"
	"flag-scanner/internal/store"
	"flag-scanner/pkg/utils"
)

// addDataCommands adds bar import and inspection commands.
func addDataCommands(rootCmd *cobra.Command, app *App) {
	cmd := &cobra.Command{
		Use:   "data",
		Short: "Manage stored bar series",
		Long:  "Import bars from CSV files, list stored series and export them again.",
	}

	cmd.AddCommand(newDataImportCmd(app))
	cmd.AddCommand(newDataListCmd(app))
	cmd.AddCommand(newDataExportCmd(app))

	rootCmd.AddCommand(cmd)
}

func newDataImportCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "import <file.csv>",
		Short: "Import bars from a CSV file",
		Long: `Import OHLCV bars from a CSV file with the header time,open,high,low,close,volume.

Times may be unix seconds, RFC3339, "2006-01-02 15:04:05" or "2006-01-02".
Rows are sorted by time and validated before anything is written. Re-importing
a series replaces bars with the same timestamp.`,
		Example: `  flagscan data import acme_1h.csv --symbol ACME --timeframe 1h`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
			defer cancel()

			symbol, _ := cmd.Flags().GetString("symbol")
			timeframe, _ := cmd.Flags().GetString("timeframe")
			symbol = strings.ToUpper(symbol)

			bars, err := feed.ReadCSVFile(args[0])
			if err != nil {
				output.Error("Failed to read %s: %v", args[0], err)
				return err
			}
			if len(bars) == 0 {
				return apperrors.Wrapf(apperrors.ErrInsufficientData, "%s has no rows", args[0])
			}

			ds, err := app.Store()
			if err != nil {
				return err
			}
			if err := ds.SaveCandles(ctx, symbol, timeframe, bars); err != nil {
				output.Error("Failed to save bars: %v", err)
				return err
			}
			if err := store.NewFreshnessTracker(ds, nil).MarkSynced(store.SyncTypeImport); err != nil {
				app.Logger.Warn().Err(err).Msg("Failed to record import time")
			}

			app.Logger.Info().
				Str("symbol", symbol).
				Str("timeframe", timeframe).
				Int("bars", len(bars)).
				Msg("Bars imported")

			if output.IsJSON() {
				return output.JSON(map[string]interface{}{
					"symbol":    symbol,
					"timeframe": timeframe,
					"bars":      len(bars),
					"first":     bars[0].Time,
					"last":      models.LastTime(bars),
				})
			}
			output.Success("Imported %s bars for %s %s", utils.FormatCount(int64(len(bars))), symbol, timeframe)
			output.Dim("  %s to %s", FormatDateTime(bars[0].Time), FormatDateTime(models.LastTime(bars)))
			return nil
		},
	}

	cmd.Flags().StringP("symbol", "s", "", "Symbol the bars belong to (required)")
	cmd.Flags().StringP("timeframe", "t", "1h", "Timeframe label of the bars")
	cmd.MarkFlagRequired("symbol")

	return cmd
}

func newDataListCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List stored bar series",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			ctx := context.Background()

			ds, err := app.Store()
			if err != nil {
				return err
			}
			series, err := ds.ListSeries(ctx)
			if err != nil {
				return err
			}

			if output.IsJSON() {
				if series == nil {
					series = []store.SeriesInfo{}
				}
				return output.JSON(series)
			}

			if len(series) == 0 {
				output.Warning("No bars stored. Use 'flagscan data import' first.")
				return nil
			}

			tracker := store.NewFreshnessTracker(ds, nil)
			table := NewTable(output, "SYMBOL", "TF", "BARS", "FIRST", "LAST", "UPDATED")
			for _, s := range series {
				fresh, err := tracker.SeriesFreshness(ctx, s.Symbol, s.Timeframe)
				status := "-"
				if err == nil {
					status = store.FormatFreshness(fresh)
					if !fresh.IsFresh {
						status = output.Yellow(status)
					}
				}
				table.AddRow(
					s.Symbol,
					s.Timeframe,
					utils.FormatCount(int64(s.Bars)),
					FormatDateTime(s.First),
					FormatDateTime(s.Last),
					status,
				)
			}
			table.Render()

			output.Println()
			for _, st := range []store.SyncDataType{store.SyncTypeImport, store.SyncTypeScan} {
				if f := tracker.GetDataFreshness(st); !f.LastUpdated.IsZero() {
					output.Dim("Last %s: %s (%s)", st, FormatDateTime(f.LastUpdated), store.FormatFreshness(f))
				}
			}
			return nil
		},
	}
}

func newDataExportCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "export <symbol>",
		Short:   "Export stored bars to CSV",
		Example: `  flagscan data export ACME --timeframe 1h --out acme_1h.csv`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			ctx := context.Background()

			symbol := strings.ToUpper(args[0])
			timeframe, _ := cmd.Flags().GetString("timeframe")
			limit, _ := cmd.Flags().GetInt("limit")
			out, _ := cmd.Flags().GetString("out")

			ds, err := app.Store()
			if err != nil {
				return err
			}
			bars, err := feed.NewStoreProvider(ds, limit).Bars(ctx, symbol, timeframe)
			if err != nil {
				output.Error("Failed to load bars: %v", err)
				return err
			}

			if out == "" {
				return feed.WriteCSV(output.Writer(), bars)
			}
			f, err := os.Create(out)
			if err != nil {
				return err
			}
			defer f.Close()
			if err := feed.WriteCSV(f, bars); err != nil {
				return err
			}
			output.Success("Wrote %d bars to %s", len(bars), out)
			return nil
		},
	}

	cmd.Flags().StringP("timeframe", "t", "1h", "Timeframe")
	cmd.Flags().Int("limit", feed.DefaultLookback, "Most recent bars to export")
	cmd.Flags().StringP("out", "o", "", "Output file (default: stdout)")

	return cmd
}
