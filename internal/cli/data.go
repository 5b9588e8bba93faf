package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"daily-equity-trader/internal/analysis/indicators"
	"daily-equity-trader/internal/decision"
	"daily-equity-trader/internal/trading"
	"daily-equity-trader/pkg/utils"
)

// addDataCommands adds market data and report commands.
func addDataCommands(rootCmd *cobra.Command, app *App) {
	rootCmd.AddCommand(newSnapshotCmd(app))
	rootCmd.AddCommand(newCalendarCmd(app))
	rootCmd.AddCommand(newReportCmd(app))
}

func newSnapshotCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "snapshot",
		Short: "Build the indicator snapshot table",
		Long: `Compute the per-ticker indicator snapshot for the universe and write it
to market_data.csv in the data directory. The ledger is not touched.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			universe, err := app.Universe()
			if err != nil {
				return err
			}

			cfg := app.Config
			engine := indicators.NewEngine(cfg.Indicators.Workers, cfg.Indicators.MinRows, app.Logger)
			table, err := engine.BuildTable(context.Background(), universe, app.Bars())
			if err != nil {
				return err
			}

			path := filepath.Join(cfg.Paths.DataDir, trading.MarketDataName)
			if err := table.WriteFile(path); err != nil {
				return err
			}

			if output.IsJSON() {
				return output.JSON(map[string]interface{}{
					"path":    path,
					"rows":    table.Rows(),
					"skipped": table.Skipped,
				})
			}

			t := NewTable(output, "Ticker", "Close", "SMA50", "SMA200", "Slope", "ATR14", "Vol Ratio", "Below 50")
			for _, s := range table.Rows() {
				t.AddRow(
					s.Ticker,
					s.Close.String(),
					s.SMA50.String(),
					s.SMA200.String(),
					string(s.SMA50Slope),
					s.ATR14.String(),
					s.VolumeRatio20D.String(),
					fmt.Sprintf("%d", s.ConsecutiveDaysBelowSMA50),
				)
			}
			t.Render()
			for _, sk := range table.Skipped {
				output.Warning("  skipped %s: %s", sk.Ticker, sk.Reason)
			}
			output.Println()
			output.Dim("Wrote %s", path)
			return nil
		},
	}
	return cmd
}

func newCalendarCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "calendar",
		Short: "Show the trading calendar for a day",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			asOf, _, err := parseDateFlag(cmd)
			if err != nil {
				return err
			}
			cal, err := app.Calendar()
			if err != nil {
				return err
			}
			info := cal.Info(asOf)
			if output.IsJSON() {
				return output.JSON(info)
			}

			output.Bold("%s (%s)", asOf, asOf.Weekday())
			switch {
			case !info.IsTradingDay:
				output.Warning("  Market closed")
			case info.IsHalfDay:
				output.Info("  Half day, closes %s", utils.SessionClose(asOf, true).Format("15:04"))
			default:
				output.Success("  Trading day, closes %s", utils.SessionClose(asOf, false).Format("15:04"))
			}
			output.Printf("  Next trading day: %s\n", info.NextTradingDay)
			if len(info.BankHolidaysNext5Days) > 0 {
				output.Printf("  Holidays ahead:   %s\n", strings.Join(info.BankHolidaysNext5Days, ", "))
			}
			return nil
		},
	}
	cmd.Flags().String("date", "", "day to describe (YYYY-MM-DD), default today in London")
	return cmd
}

func newReportCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Show the latest daily report",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			dir := app.Config.Paths.OutputDir

			status, err := decision.ReadRunStatus(dir)
			if err != nil && !os.IsNotExist(err) {
				return err
			}
			report, err := os.ReadFile(filepath.Join(dir, decision.ReportName))
			if err != nil && !os.IsNotExist(err) {
				return err
			}

			if output.IsJSON() {
				return output.JSON(map[string]interface{}{
					"run_status": status,
					"report":     string(report),
				})
			}

			if status != nil {
				output.Printf("%s  %s  %s\n", status.AsOfDate, output.StatusString(string(status.Status)), status.Reason)
			}
			if len(report) == 0 {
				output.Info("No daily report in %s", dir)
				return nil
			}
			if raw, _ := cmd.Flags().GetBool("raw"); raw {
				output.Println(string(report))
				return nil
			}
			return output.Markdown(string(report))
		},
	}
	cmd.Flags().Bool("raw", false, "print the markdown source")
	return cmd
}
