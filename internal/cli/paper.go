package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"daily-equity-trader/internal/calendar"
	"daily-equity-trader/internal/errors"
	"daily-equity-trader/internal/models"
	"daily-equity-trader/internal/portfolio"
	"daily-equity-trader/internal/trading"
	"daily-equity-trader/pkg/utils"
)

// universeTemplate is written by init when no universe exists.
const universeTemplate = "ticker,name,sector,instrument_type,uk_equity_flag,quote_unit,status\n"

// addPaperCommands adds the paper account commands.
func addPaperCommands(rootCmd *cobra.Command, app *App) {
	rootCmd.AddCommand(newRunCmd(app))
	rootCmd.AddCommand(newInitCmd(app))
	rootCmd.AddCommand(newStatusCmd(app))
}

// parseDateFlag returns the --date value, or today in London.
func parseDateFlag(cmd *cobra.Command) (models.Date, bool, error) {
	s, _ := cmd.Flags().GetString("date")
	if s == "" {
		return utils.LondonToday(), false, nil
	}
	d, err := models.ParseDate(s)
	if err != nil {
		return models.Date{}, true, fmt.Errorf("invalid --date %q: %w", s, err)
	}
	return d, true, nil
}

func newRunCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the daily trading cycle",
		Long: `Run one end-of-day cycle: build the indicator snapshot, roll the ledger
forward, ask the decision engine for orders and fill them at the close.

Without --date the cycle runs for today in London.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			dryRun, _ := cmd.Flags().GetBool("dry-run")

			asOf, explicit, err := parseDateFlag(cmd)
			if err != nil {
				return err
			}

			cycle, err := app.Cycle()
			if err != nil {
				return err
			}

			if !explicit {
				cal, err := app.Calendar()
				if err != nil {
					return err
				}
				info := cal.Info(asOf)
				now := time.Now()
				closeAt := utils.SessionClose(asOf, info.IsHalfDay).Format("15:04")
				switch {
				case !info.IsTradingDay:
				case utils.IsMarketOpen(now, info.IsHalfDay):
					app.Logger.Warn().Str("close", closeAt).Msg("Market still open, today's bar is incomplete")
				case !utils.ClosingPriceFinal(now, asOf, info.IsHalfDay):
					app.Logger.Warn().Str("close", closeAt).Msg("Closing auction not finished, today's close may be provisional")
				}
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			res, runErr := cycle.Run(ctx, asOf, trading.RunOptions{DryRun: dryRun})
			if output.IsJSON() {
				if err := output.JSON(res); err != nil {
					return err
				}
				return runErr
			}
			printCycleResult(output, res)
			return runErr
		},
	}

	cmd.Flags().Bool("dry-run", false, "stop after the decision without applying orders")
	cmd.Flags().String("date", "", "as-of date (YYYY-MM-DD), default today in London")
	return cmd
}

func printCycleResult(output *Output, res *trading.CycleResult) {
	if res == nil {
		return
	}
	output.Bold("Cycle %s", res.Date)
	output.Printf("  Run:      %s\n", res.RunID)
	output.Printf("  Status:   %s\n", output.StatusString(string(res.Status)))
	if res.Reason != "" {
		output.Printf("  Reason:   %s\n", res.Reason)
	}
	if res.DryRun {
		output.Printf("  Mode:     dry run\n")
	}
	output.Printf("  Tickers:  %d qualified, %d skipped\n", res.Qualified, len(res.Skipped))
	if res.Roll != nil && res.Roll.Settled.IsPositive() {
		output.Printf("  Settled:  %s\n", utils.FormatGBP(res.Roll.Settled))
	}

	if res.Execution != nil {
		output.Println()
		if len(res.Execution.Fills) > 0 {
			output.Bold("Fills")
			table := NewTable(output, "Ticker", "Side", "Qty", "Price", "Fee", "Stamp", "Cash")
			for _, f := range res.Execution.Fills {
				table.AddRow(
					f.Ticker,
					string(f.Side),
					utils.FormatQuantity(f.Quantity),
					utils.FormatGBP(f.FillPrice),
					utils.FormatGBP(f.Fee),
					utils.FormatGBP(f.StampDuty),
					output.FormatPnL(f.CashImpact),
				)
			}
			table.Render()
		} else {
			output.Info("No fills.")
		}
		if len(res.Execution.Rejections) > 0 {
			output.Println()
			output.Bold("Rejections")
			for _, r := range res.Execution.Rejections {
				output.Warning("  %s %s %s: %s", r.Order.Side, utils.FormatQuantity(r.Order.Quantity), r.Order.Ticker, r.Reason)
			}
		}
		if len(res.Stops) > 0 {
			output.Println()
			output.Dim("Stops updated: %v", res.Stops)
		}
	}

	if res.Ledger != nil {
		output.Println()
		printLedgerSummary(output, res.Ledger)
	}
}

func newInitCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create a fresh paper ledger",
		Long: `Create the ledger funded with --cash, plus the working directories,
a holiday calendar and an empty universe file when they do not exist yet.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			ctx := context.Background()
			force, _ := cmd.Flags().GetBool("force")

			cash := decimal.NewFromFloat(app.Config.Trading.InitialCash)
			if cmd.Flags().Changed("cash") {
				s, _ := cmd.Flags().GetString("cash")
				v, err := decimal.NewFromString(s)
				if err != nil {
					return fmt.Errorf("invalid --cash %q: %w", s, err)
				}
				cash = v
			}
			asOf, _, err := parseDateFlag(cmd)
			if err != nil {
				return err
			}

			ledgers, err := app.Ledgers()
			if err != nil {
				return err
			}
			if _, err := ledgers.Load(ctx); err == nil && !force {
				return fmt.Errorf("ledger already exists (use --force to replace it)")
			} else if err != nil && !errors.Is(err, errors.ErrLedgerNotFound) && !force {
				return err
			}

			l, err := portfolio.Bootstrap(cash, asOf)
			if err != nil {
				return err
			}
			if err := ledgers.Save(ctx, l); err != nil {
				return err
			}

			cfg := app.Config
			for _, dir := range []string{cfg.Paths.DataDir, cfg.Paths.OutputDir, cfg.Paths.BarsDir, cfg.Decision.InboxDir} {
				if err := os.MkdirAll(dir, 0755); err != nil {
					return err
				}
			}
			if err := calendar.WriteDefaultHolidays(cfg.Paths.Holidays); err != nil {
				return err
			}
			if _, err := os.Stat(cfg.Paths.Universe); os.IsNotExist(err) {
				if err := os.MkdirAll(filepath.Dir(cfg.Paths.Universe), 0755); err != nil {
					return err
				}
				if err := os.WriteFile(cfg.Paths.Universe, []byte(universeTemplate), 0644); err != nil {
					return err
				}
			}

			app.Logger.Info().
				Str("cash", l.CashBalance.StringFixed(models.MoneyPlaces)).
				Str("as_of", asOf.String()).
				Str("backend", cfg.Ledger.Backend).
				Msg("Ledger initialised")

			if output.IsJSON() {
				return output.JSON(l)
			}
			output.Success("✓ Ledger initialised with %s on %s", utils.FormatGBP(l.CashBalance), asOf)
			output.Dim("Universe: %s", cfg.Paths.Universe)
			output.Dim("Bars:     %s", cfg.Paths.BarsDir)
			output.Dim("Holidays: %s", cfg.Paths.Holidays)
			return nil
		},
	}

	cmd.Flags().String("cash", "", "starting cash in GBP (default trading.initial_cash)")
	cmd.Flags().String("date", "", "ledger as-of date (YYYY-MM-DD), default today in London")
	cmd.Flags().Bool("force", false, "replace an existing ledger")
	return cmd
}

func newStatusCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the paper ledger",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			ledgers, err := app.Ledgers()
			if err != nil {
				return err
			}
			l, err := ledgers.Load(context.Background())
			if err != nil {
				if errors.Is(err, errors.ErrLedgerNotFound) {
					output.Warning("No ledger yet. Run 'trader init' first.")
				}
				return err
			}

			if output.IsJSON() {
				return output.JSON(map[string]interface{}{
					"ledger":   l,
					"drawdown": portfolio.Drawdown(l),
				})
			}
			printLedgerSummary(output, l)
			if len(l.Positions) == 0 {
				return nil
			}

			output.Println()
			output.Bold("Positions")
			table := NewTable(output, "Ticker", "Qty", "Avg Cost", "Value", "P&L", "Stop", "Days", "Sector")
			for _, p := range l.Positions {
				stop := "-"
				if p.StopPrice.Valid {
					stop = utils.FormatGBP(p.StopPrice.Decimal)
				}
				table.AddRow(
					p.Ticker,
					utils.FormatQuantity(p.Quantity),
					utils.FormatGBP(p.AvgCost),
					utils.FormatGBP(p.MarketValue),
					output.FormatPnL(p.UnrealisedPnL),
					stop,
					fmt.Sprintf("%d", p.DaysHeld),
					p.Sector,
				)
			}
			table.Render()
			return nil
		},
	}
}

func printLedgerSummary(output *Output, l *models.Ledger) {
	output.Bold("Ledger as of %s", l.AsOfDate)
	output.Printf("  Cash:       %s\n", utils.FormatGBP(l.CashBalance))
	if l.UnsettledSellProceeds.IsPositive() {
		output.Printf("  Unsettled:  %s (due %s)\n", utils.FormatGBP(l.UnsettledSellProceeds), l.SettlementDueDate)
	}
	output.Printf("  Positions:  %s (%d)\n", utils.FormatGBP(l.PositionsValue()), len(l.Positions))
	output.Printf("  Equity:     %s\n", utils.FormatGBP(l.EquityValue))
	output.Printf("  Peak:       %s\n", utils.FormatGBP(l.PortfolioPeakEquity))
	output.Printf("  Drawdown:   %s\n", utils.FormatRatio(portfolio.Drawdown(l)))
}
