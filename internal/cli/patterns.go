package cli

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"flag-scanner/internal/analysis"
	"flag-scanner/internal/export"
	"flag-scanner/internal/store"
	"flag-scanner/pkg/utils"
)

// addPatternCommands adds commands over stored patterns.
func addPatternCommands(rootCmd *cobra.Command, app *App) {
	cmd := &cobra.Command{
		Use:   "patterns",
		Short: "List and export stored patterns",
	}

	cmd.AddCommand(newPatternsListCmd(app))
	cmd.AddCommand(newPatternsExportCmd(app))

	rootCmd.AddCommand(cmd)
}

func addPatternFilterFlags(cmd *cobra.Command, defaultLimit int) {
	cmd.Flags().StringP("symbol", "s", "", "Only this symbol")
	cmd.Flags().StringP("timeframe", "t", "", "Only this timeframe")
	cmd.Flags().StringP("direction", "d", "", "Only bullish or bearish")
	cmd.Flags().Int("min-quality", 0, "Minimum quality score")
	cmd.Flags().String("since", "", "Only patterns detected within this duration, e.g. 24h")
	cmd.Flags().Int("limit", defaultLimit, "Maximum patterns (0 for no limit)")
}

func patternFilter(cmd *cobra.Command) (store.PatternFilter, error) {
	symbol, _ := cmd.Flags().GetString("symbol")
	timeframe, _ := cmd.Flags().GetString("timeframe")
	direction, _ := cmd.Flags().GetString("direction")
	minQuality, _ := cmd.Flags().GetInt("min-quality")
	since, _ := cmd.Flags().GetString("since")
	limit, _ := cmd.Flags().GetInt("limit")

	filter := store.PatternFilter{
		Symbol:     strings.ToUpper(symbol),
		Timeframe:  timeframe,
		MinQuality: minQuality,
		Limit:      limit,
	}
	if direction != "" {
		dir, ok := analysis.ParseDirection(direction)
		if !ok {
			return filter, fmt.Errorf("unknown direction %q (want bullish or bearish)", direction)
		}
		filter.Direction = dir
	}
	if since != "" {
		d, err := time.ParseDuration(since)
		if err != nil {
			return filter, fmt.Errorf("invalid --since: %w", err)
		}
		filter.Since = time.Now().Add(-d)
	}
	return filter, nil
}

func newPatternsListCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List stored patterns, newest first",
		Example: `  flagscan patterns list
  flagscan patterns list --symbol ACME --direction bullish --min-quality 80`,
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)

			filter, err := patternFilter(cmd)
			if err != nil {
				return err
			}
			ds, err := app.Store()
			if err != nil {
				return err
			}
			recs, err := ds.GetPatterns(context.Background(), filter)
			if err != nil {
				return err
			}

			if output.IsJSON() {
				if recs == nil {
					recs = []store.PatternRecord{}
				}
				return output.JSON(recs)
			}

			if len(recs) == 0 {
				output.Warning("No stored patterns match")
				return nil
			}

			table := NewTable(output, "SYMBOL", "TF", "DIR", "Q", "POLE", "T1 TIME", "T4 TIME", "T4", "TARGET", "SENT")
			for _, r := range recs {
				p := r.Pattern()
				sent := output.DimText("no")
				if r.Published {
					sent = "yes"
				}
				table.AddRow(
					r.Symbol,
					r.Timeframe,
					output.Direction(p.Direction),
					output.Quality(r.QualityScore),
					utils.FormatPercent((r.T1Price-r.T0Price)/r.T0Price*100),
					FormatDateTime(r.T1Time),
					FormatDateTime(r.T4Time),
					utils.FormatPrice(r.T4Price),
					utils.FormatPrice(p.TargetPrice()),
					sent,
				)
			}
			table.Render()
			return nil
		},
	}

	addPatternFilterFlags(cmd, 50)
	return cmd
}

func newPatternsExportCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export stored patterns as a dataset",
		Long: fmt.Sprintf(`Export stored patterns with their anchors, pole and quality as one flat record
per pattern. Supported formats: %s.`, strings.Join(export.Formats(), ", ")),
		Example: `  flagscan patterns export --format csv --out flags.csv
  flagscan patterns export --format parquet --out flags.parquet --min-quality 60`,
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)

			format, _ := cmd.Flags().GetString("format")
			out, _ := cmd.Flags().GetString("out")

			saver := export.NewSaver(format)
			if saver == nil {
				return fmt.Errorf("unsupported format %q (supported: %s)", format, strings.Join(export.Formats(), ", "))
			}

			filter, err := patternFilter(cmd)
			if err != nil {
				return err
			}
			ds, err := app.Store()
			if err != nil {
				return err
			}
			recs, err := ds.GetPatterns(context.Background(), filter)
			if err != nil {
				return err
			}
			records := export.FromStored(recs)

			if out == "" {
				return saver.Write(output.Writer(), records)
			}
			if err := export.SaveFile(saver, out, records); err != nil {
				output.Error("Export failed: %v", err)
				return err
			}

			app.Logger.Info().Str("path", out).Str("format", saver.Extension()).Int("records", len(records)).Msg("Patterns exported")
			if output.IsJSON() {
				return output.JSON(map[string]interface{}{"path": out, "records": len(records)})
			}
			output.Success("Exported %d patterns to %s", len(records), out)
			return nil
		},
	}

	cmd.Flags().String("format", "json", "Output format")
	cmd.Flags().StringP("out", "o", "", "Output file (default: stdout)")
	addPatternFilterFlags(cmd, 0)
	return cmd
}
