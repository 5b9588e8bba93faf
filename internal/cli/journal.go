package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"daily-equity-trader/internal/models"
	"daily-equity-trader/internal/security"
	"daily-equity-trader/internal/store"
	"daily-equity-trader/pkg/utils"
)

// addJournalCommands adds the cycle history commands.
func addJournalCommands(rootCmd *cobra.Command, app *App) {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Cycle history from the journal",
		Long:  "Review past runs, the equity curve and fills recorded by each cycle.",
	}

	cmd.AddCommand(newHistoryRunsCmd(app))
	cmd.AddCommand(newHistoryEquityCmd(app))
	cmd.AddCommand(newHistoryFillsCmd(app))

	rootCmd.AddCommand(cmd)
}

func journalContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 30*time.Second)
}

// dateRange reads the --from and --to flags. Empty flags are unbounded.
func dateRange(cmd *cobra.Command) (models.Date, models.Date, error) {
	var from, to models.Date
	for _, f := range []struct {
		name string
		dst  *models.Date
	}{{"from", &from}, {"to", &to}} {
		s, _ := cmd.Flags().GetString(f.name)
		if s == "" {
			continue
		}
		d, err := models.ParseDate(s)
		if err != nil {
			return from, to, fmt.Errorf("invalid --%s %q: %w", f.name, s, err)
		}
		*f.dst = d
	}
	return from, to, nil
}

func newHistoryRunsCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List recent cycle runs",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			ctx, cancel := journalContext()
			defer cancel()

			db, err := app.DB()
			if err != nil {
				return err
			}
			limit, _ := cmd.Flags().GetInt("limit")
			runs, err := db.Runs(ctx, limit)
			if err != nil {
				return err
			}

			if output.IsJSON() {
				return output.JSON(runs)
			}
			if len(runs) == 0 {
				output.Info("No runs recorded yet.")
				return nil
			}

			table := NewTable(output, "Date", "Started", "Status", "Fills", "Rejected", "Reason")
			for _, r := range runs {
				status := output.StatusString(string(r.Status))
				if r.DryRun {
					status += " (dry)"
				}
				table.AddRow(
					r.Date.String(),
					r.StartedAt.In(utils.LondonLocation).Format("2006-01-02 15:04"),
					status,
					fmt.Sprintf("%d", r.Fills),
					fmt.Sprintf("%d", r.Rejections),
					truncate(r.Reason, 40),
				)
			}
			table.Render()
			return nil
		},
	}
	cmd.Flags().Int("limit", 20, "number of runs to show")
	return cmd
}

func newHistoryEquityCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "equity",
		Short: "Show the end-of-day equity curve",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			ctx, cancel := journalContext()
			defer cancel()

			from, to, err := dateRange(cmd)
			if err != nil {
				return err
			}
			db, err := app.DB()
			if err != nil {
				return err
			}
			points, err := db.EquityHistory(ctx, from, to)
			if err != nil {
				return err
			}

			if output.IsJSON() {
				return output.JSON(points)
			}
			if len(points) == 0 {
				output.Info("No equity history recorded yet.")
				return nil
			}

			table := NewTable(output, "Date", "Cash", "Unsettled", "Positions", "Equity", "Change", "Drawdown")
			for i, p := range points {
				change := "-"
				if i > 0 {
					change = output.FormatPnL(p.Equity.Sub(points[i-1].Equity))
				}
				table.AddRow(
					p.Date.String(),
					utils.FormatGBP(p.Cash),
					utils.FormatGBP(p.Unsettled),
					utils.FormatGBP(p.Positions),
					utils.FormatGBP(p.Equity),
					change,
					utils.FormatRatio(p.Drawdown),
				)
			}
			table.Render()

			first, last := points[0], points[len(points)-1]
			output.Println()
			output.Printf("  Period P&L: %s\n", output.FormatPnL(last.Equity.Sub(first.Equity)))
			output.Printf("  Peak:       %s\n", utils.FormatGBP(last.Peak))
			return nil
		},
	}
	cmd.Flags().String("from", "", "first day (YYYY-MM-DD)")
	cmd.Flags().String("to", "", "last day (YYYY-MM-DD)")
	return cmd
}

func newHistoryFillsCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "fills [ticker]",
		Short: "List recorded fills",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			ctx, cancel := journalContext()
			defer cancel()

			from, to, err := dateRange(cmd)
			if err != nil {
				return err
			}
			filter := store.FillFilter{From: from, To: to}
			filter.Limit, _ = cmd.Flags().GetInt("limit")
			if len(args) == 1 {
				ticker, err := security.NormalizeTicker(args[0])
				if err != nil {
					return err
				}
				filter.Ticker = ticker
			}

			db, err := app.DB()
			if err != nil {
				return err
			}
			fills, err := db.Fills(ctx, filter)
			if err != nil {
				return err
			}

			if output.IsJSON() {
				return output.JSON(fills)
			}
			if len(fills) == 0 {
				output.Info("No fills recorded.")
				return nil
			}

			table := NewTable(output, "Date", "Ticker", "Side", "Qty", "Price", "Notional", "Costs", "Cash")
			for _, f := range fills {
				table.AddRow(
					f.Date.String(),
					f.Ticker,
					string(f.Side),
					utils.FormatQuantity(f.Quantity),
					utils.FormatGBP(f.FillPrice),
					utils.FormatGBP(f.Notional),
					utils.FormatGBP(f.Fee.Add(f.StampDuty)),
					output.FormatPnL(f.CashImpact),
				)
			}
			table.Render()
			return nil
		},
	}
	cmd.Flags().String("from", "", "first day (YYYY-MM-DD)")
	cmd.Flags().String("to", "", "last day (YYYY-MM-DD)")
	cmd.Flags().Int("limit", 50, "maximum fills to show")
	return cmd
}

// truncate shortens s to n runes with an ellipsis.
func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	if n <= 1 {
		return string(r[:n])
	}
	return string(r[:n-1]) + "…"
}
