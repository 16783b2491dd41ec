package cli

import (
	"context"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"flag-scanner/internal/store"
)

// addWatchlistCommands adds watchlist management commands.
func addWatchlistCommands(rootCmd *cobra.Command, app *App) {
	cmd := &cobra.Command{
		Use:   "watchlist",
		Short: "Manage watchlists",
		Long:  "Watchlists name the symbols the watch command scans.",
	}

	cmd.AddCommand(newWatchlistAddCmd(app))
	cmd.AddCommand(newWatchlistRemoveCmd(app))
	cmd.AddCommand(newWatchlistShowCmd(app))

	rootCmd.AddCommand(cmd)
}

func newWatchlistAddCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "add <symbol>...",
		Short:   "Add symbols to a watchlist",
		Example: `  flagscan watchlist add ACME GLOBEX --list tech`,
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			list, _ := cmd.Flags().GetString("list")

			ds, err := app.Store()
			if err != nil {
				return err
			}

			added := make([]string, 0, len(args))
			for _, arg := range args {
				symbol := strings.ToUpper(arg)
				if err := ds.AddToWatchlist(context.Background(), symbol, list); err != nil {
					output.Error("Failed to add %s: %v", symbol, err)
					return err
				}
				added = append(added, symbol)
			}

			if output.IsJSON() {
				return output.JSON(map[string]interface{}{"list": list, "added": added})
			}
			output.Success("Added %s to %s", strings.Join(added, ", "), list)
			return nil
		},
	}

	cmd.Flags().StringP("list", "l", store.DefaultWatchlist, "Watchlist name")
	return cmd
}

func newWatchlistRemoveCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "remove <symbol>",
		Short: "Remove a symbol from a watchlist",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			list, _ := cmd.Flags().GetString("list")
			symbol := strings.ToUpper(args[0])

			ds, err := app.Store()
			if err != nil {
				return err
			}
			if err := ds.RemoveFromWatchlist(context.Background(), symbol, list); err != nil {
				output.Error("Failed to remove %s: %v", symbol, err)
				return err
			}

			if output.IsJSON() {
				return output.JSON(map[string]string{"list": list, "removed": symbol})
			}
			output.Success("Removed %s from %s", symbol, list)
			return nil
		},
	}

	cmd.Flags().StringP("list", "l", store.DefaultWatchlist, "Watchlist name")
	return cmd
}

func newWatchlistShowCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show watchlist symbols",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			ctx := context.Background()
			list, _ := cmd.Flags().GetString("list")
			all, _ := cmd.Flags().GetBool("all")

			ds, err := app.Store()
			if err != nil {
				return err
			}

			lists := map[string][]string{}
			if all {
				lists, err = ds.GetAllWatchlists(ctx)
			} else {
				var symbols []string
				symbols, err = ds.GetWatchlist(ctx, list)
				if symbols == nil {
					symbols = []string{}
				}
				lists[list] = symbols
			}
			if err != nil {
				return err
			}

			if output.IsJSON() {
				return output.JSON(lists)
			}

			names := make([]string, 0, len(lists))
			for name := range lists {
				names = append(names, name)
			}
			sort.Strings(names)

			if len(names) == 0 {
				output.Warning("No watchlists. Use 'flagscan watchlist add' first.")
				return nil
			}
			for _, name := range names {
				symbols := lists[name]
				output.Bold("%s (%d)", name, len(symbols))
				if len(symbols) == 0 {
					output.Dim("  empty")
					continue
				}
				output.Printf("  %s\n", strings.Join(symbols, " "))
			}
			return nil
		},
	}

	cmd.Flags().StringP("list", "l", store.DefaultWatchlist, "Watchlist name")
	cmd.Flags().Bool("all", false, "Show every watchlist")
	return cmd
}
