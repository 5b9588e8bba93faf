package trading

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"

	"daily-equity-trader/internal/analysis/indicators"
	"daily-equity-trader/internal/calendar"
	"daily-equity-trader/internal/config"
	"daily-equity-trader/internal/decision"
	"daily-equity-trader/internal/errors"
	"daily-equity-trader/internal/logging"
	"daily-equity-trader/internal/models"
	"daily-equity-trader/internal/notify"
	"daily-equity-trader/internal/portfolio"
	"daily-equity-trader/internal/store"
	"daily-equity-trader/pkg/id"
)

// Artifact names written by a cycle.
const (
	MarketDataName    = "market_data.csv"
	CalendarName      = "trading_calendar.json"
	ExecutionName     = "execution_report.json"
	defaultLogDirName = "logs"
)

// CycleDeps wires a Cycle to its collaborators. Journal and Notifier are optional.
type CycleDeps struct {
	Config     *config.Config
	Calendar   *calendar.Calendar
	Universe   []models.TickerMeta
	Bars       indicators.BarSource
	Indicators *indicators.Engine
	Ledgers    store.LedgerStore
	Journal    store.Journal
	Decider    decision.Engine
	Notifier   notify.Notifier
	Logger     zerolog.Logger
}

// Cycle runs the daily paper-trading pass. It is the only writer of the ledger.
type Cycle struct {
	deps     CycleDeps
	executor *Executor
	logger   zerolog.Logger
}

// RunOptions modifies a single run.
type RunOptions struct {
	// DryRun stops after the decision; no orders are applied.
	DryRun bool
}

// CycleResult summarises one run.
type CycleResult struct {
	RunID     string                `json:"run_id"`
	Date      models.Date           `json:"date"`
	Status    models.RunStatus      `json:"status"`
	Reason    string                `json:"reason,omitempty"`
	DryRun    bool                  `json:"dry_run"`
	Skipped   []indicators.Skipped  `json:"skipped,omitempty"`
	Roll      *portfolio.RollReport `json:"roll,omitempty"`
	Execution *ExecutionReport      `json:"execution,omitempty"`
	Stops     []string              `json:"stops_updated,omitempty"`
	Ledger    *models.Ledger        `json:"ledger,omitempty"`
	Qualified int                   `json:"qualified_tickers"`
}

// NewCycle validates the dependencies and builds the executor.
func NewCycle(deps CycleDeps) (*Cycle, error) {
	switch {
	case deps.Config == nil:
		return nil, fmt.Errorf("cycle: config is required")
	case deps.Calendar == nil:
		return nil, fmt.Errorf("cycle: calendar is required")
	case deps.Bars == nil:
		return nil, fmt.Errorf("cycle: bar source is required")
	case deps.Ledgers == nil:
		return nil, fmt.Errorf("cycle: ledger store is required")
	case deps.Decider == nil:
		return nil, fmt.Errorf("cycle: decision engine is required")
	}
	if deps.Indicators == nil {
		deps.Indicators = indicators.NewEngine(deps.Config.Indicators.Workers, deps.Config.Indicators.MinRows, deps.Logger)
	}

	executor, err := NewExecutor(deps.Config.Pricing, deps.Logger)
	if err != nil {
		return nil, err
	}
	return &Cycle{
		deps:     deps,
		executor: executor,
		logger:   logging.WithOperation(deps.Logger, "cycle"),
	}, nil
}

// Run executes one cycle for asOf. Non-OK outcomes are reported through the
// result status; the error is reserved for failures the caller must see
// (no usable market data, ledger problems, cancellation).
func (c *Cycle) Run(ctx context.Context, asOf models.Date, opts RunOptions) (*CycleResult, error) {
	started := time.Now()
	res := &CycleResult{
		RunID:  id.At(started),
		Date:   asOf,
		Status: models.RunStatusOK,
		DryRun: opts.DryRun,
	}
	log := logging.WithRunID(c.logger, res.RunID)
	cfg := c.deps.Config

	log.Info().
		Str("as_of", asOf.String()).
		Str("mode", cfg.Trading.Mode).
		Str("strategy", cfg.Trading.StrategyProfile).
		Bool("dry_run", opts.DryRun).
		Msg("Cycle started")

	ctx = logging.WithLogger(ctx, logging.WithRunID(c.deps.Logger, res.RunID))
	err := c.run(ctx, asOf, opts, res, log)
	if err != nil && res.Status == models.RunStatusOK {
		res.Status = models.RunStatusBlocked
		res.Reason = err.Error()
	}
	c.finish(ctx, res, started, err, log)
	return res, err
}

func (c *Cycle) run(ctx context.Context, asOf models.Date, opts RunOptions, res *CycleResult, log zerolog.Logger) error {
	cfg := c.deps.Config

	// Step 1: Kill switch
	if cfg.Trading.KillSwitch {
		log.Warn().Msg("Kill switch is on, no trades")
		return c.halt(res, models.RunStatusNoTrades, "Kill switch enabled")
	}

	// Step 2: Trading calendar
	info := c.deps.Calendar.Info(asOf)
	if err := calendar.WriteJSON(filepath.Join(cfg.Paths.DataDir, CalendarName), info); err != nil {
		return errors.Wrap(err, "writing trading calendar")
	}
	if !info.IsTradingDay {
		log.Info().Msg("Not a trading day")
		return c.halt(res, models.RunStatusNoTrades, "Non-trading day")
	}
	if info.IsHalfDay {
		log.Info().Msg("Half trading day, reduced liquidity expected")
	}

	// Step 3: Indicator snapshot table
	table, err := c.deps.Indicators.BuildTable(ctx, c.deps.Universe, c.deps.Bars)
	if table != nil {
		res.Skipped = table.Skipped
		res.Qualified = table.Len()
	}
	if err != nil {
		if ctx.Err() != nil {
			return err
		}
		_ = c.halt(res, models.RunStatusBlocked, "Market data unavailable")
		return err
	}

	// Step 4: Decision inputs on disk
	if err := table.WriteFile(filepath.Join(cfg.Paths.DataDir, MarketDataName)); err != nil {
		return errors.Wrap(err, "writing market data")
	}

	// Step 5: Roll the ledger forward and persist it
	ledger, err := c.deps.Ledgers.Load(ctx)
	if err != nil {
		if errors.Is(err, errors.ErrLedgerNotFound) {
			_ = c.halt(res, models.RunStatusBlocked, "Ledger not initialised")
		}
		return errors.Wrap(err, "loading ledger")
	}
	roll := portfolio.Roll(ledger, asOf, table, log)
	res.Roll = &roll
	if err := portfolio.CheckInvariants(ledger); err != nil {
		return err
	}
	if err := c.deps.Ledgers.Save(ctx, ledger); err != nil {
		return errors.Wrap(err, "saving ledger")
	}
	res.Ledger = ledger

	// Step 6: Decide
	outcome, err := c.deps.Decider.Decide(ctx, decision.Input{
		AsOf:      asOf,
		Settings:  DecisionSettings(cfg),
		Snapshots: table,
		Ledger:    ledger.Clone(),
		Universe:  c.deps.Universe,
		Calendar:  info,
	})
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		log.Error().Err(err).Msg("Decision engine failed")
		c.notifyError(ctx, err, "decision engine", log)
		return c.halt(res, models.RunStatusBlocked, fmt.Sprintf("Decision engine error: %v", err))
	}
	res.Status = outcome.Status
	res.Reason = outcome.Reason
	log.Info().
		Str("status", string(outcome.Status)).
		Str("reason", outcome.Reason).
		Int("orders", len(outcome.Orders)).
		Msg("Decision received")

	if opts.DryRun {
		log.Info().Msg("Dry run complete, not applying trades")
		return nil
	}
	if outcome.Status != models.RunStatusOK {
		return c.halt(res, outcome.Status, outcome.Reason)
	}
	if err := decision.WriteOutcome(cfg.Paths.OutputDir, asOf, outcome); err != nil {
		log.Warn().Err(err).Msg("Failed to write decision outputs")
	}

	// Step 7: Apply orders and stops on a working copy
	working := ledger.Clone()
	report := c.executor.Apply(working, outcome.Orders, table)
	res.Stops = portfolio.ApplyStops(working, outcome.Stops)
	if err := portfolio.CheckInvariants(working); err != nil {
		return err
	}
	if err := c.deps.Ledgers.Save(ctx, working); err != nil {
		return errors.Wrap(err, "saving ledger")
	}
	res.Execution = report
	res.Ledger = working

	if err := writeJSONFile(filepath.Join(cfg.Paths.OutputDir, ExecutionName), report); err != nil {
		log.Warn().Err(err).Msg("Failed to write execution report")
	}

	// Step 8: Journal and trade log
	if c.deps.Journal != nil {
		if err := c.deps.Journal.RecordFills(ctx, res.RunID, report.Fills); err != nil {
			log.Warn().Err(err).Msg("Failed to journal fills")
		}
	}
	if wrote, n, err := decision.AppendTradeLog(c.tradeLogPath(), outcome.TradeLog); err != nil {
		log.Warn().Err(err).Msg("Failed to append trade log")
	} else if wrote {
		log.Info().Int("entries", n).Msg("Trade log updated")
	}
	return nil
}

// halt records a non-OK outcome and writes run_status.json with an empty
// orders.csv for downstream readers.
func (c *Cycle) halt(res *CycleResult, status models.RunStatus, reason string) error {
	res.Status = status
	res.Reason = reason
	if err := decision.WriteRunStatus(c.deps.Config.Paths.OutputDir, status, res.Date, reason); err != nil {
		return errors.Wrap(err, "writing run status")
	}
	return nil
}

// finish journals the run and sends the summary. Failures here are logged,
// never returned.
func (c *Cycle) finish(ctx context.Context, res *CycleResult, started time.Time, runErr error, log zerolog.Logger) {
	if runErr != nil {
		log.Error().Err(runErr).Str("status", string(res.Status)).Msg("Cycle failed")
		c.notifyError(ctx, runErr, "cycle "+res.Date.String(), log)
	}

	var fills []models.Fill
	var rejections []models.Rejection
	if res.Execution != nil {
		fills = res.Execution.Fills
		rejections = res.Execution.Rejections
	}

	if c.deps.Journal != nil {
		if res.Ledger != nil {
			if err := c.deps.Journal.RecordEquity(ctx, EquityPoint(res.Ledger)); err != nil {
				log.Warn().Err(err).Msg("Failed to journal equity")
			}
		}
		if err := c.deps.Journal.RecordRun(ctx, store.RunRecord{
			ID:         res.RunID,
			Date:       res.Date,
			StartedAt:  started,
			Status:     res.Status,
			Reason:     res.Reason,
			Fills:      len(fills),
			Rejections: len(rejections),
			DryRun:     res.DryRun,
		}); err != nil {
			log.Warn().Err(err).Msg("Failed to journal run")
		}
	}

	if c.deps.Notifier != nil && runErr == nil {
		summary := &notify.CycleSummary{
			RunID:      res.RunID,
			Date:       res.Date,
			Status:     res.Status,
			Reason:     res.Reason,
			DryRun:     res.DryRun,
			Fills:      fills,
			Rejections: rejections,
		}
		if res.Ledger != nil {
			summary.Cash = res.Ledger.CashBalance
			summary.Unsettled = res.Ledger.UnsettledSellProceeds
			summary.Equity = res.Ledger.EquityValue
			summary.Peak = res.Ledger.PortfolioPeakEquity
			summary.Drawdown = portfolio.Drawdown(res.Ledger)
		}
		if err := c.deps.Notifier.SendCycle(ctx, summary); err != nil {
			log.Warn().Err(err).Msg("Failed to send cycle notification")
		}
	}

	log.Info().
		Str("status", string(res.Status)).
		Str("reason", res.Reason).
		Int("fills", len(fills)).
		Int("rejections", len(rejections)).
		Dur("elapsed", time.Since(started)).
		Msg("Cycle complete")
}

func (c *Cycle) notifyError(ctx context.Context, err error, where string, log zerolog.Logger) {
	if c.deps.Notifier == nil {
		return
	}
	if nerr := c.deps.Notifier.SendError(ctx, err, where); nerr != nil {
		log.Warn().Err(nerr).Msg("Failed to send error notification")
	}
}

func (c *Cycle) tradeLogPath() string {
	if p := c.deps.Config.Paths.TradeLog; p != "" {
		return p
	}
	return filepath.Join(c.deps.Config.Dir, defaultLogDirName, "trade_log.json")
}

// EquityPoint captures the ledger's valuation for the journal.
func EquityPoint(l *models.Ledger) store.EquityPoint {
	return store.EquityPoint{
		Date:      l.AsOfDate,
		Cash:      l.CashBalance,
		Unsettled: l.UnsettledSellProceeds,
		Positions: l.PositionsValue(),
		Equity:    l.EquityValue,
		Peak:      l.PortfolioPeakEquity,
		Drawdown:  portfolio.Drawdown(l),
	}
}

// DecisionSettings is the configuration excerpt shown to the decision engine.
func DecisionSettings(cfg *config.Config) map[string]interface{} {
	return map[string]interface{}{
		"mode":             cfg.Trading.Mode,
		"strategy_profile": cfg.Trading.StrategyProfile,
		"kill_switch":      cfg.Trading.KillSwitch,
		"currency":         models.Currency,
		"pricing":          cfg.Pricing,
	}
}

func writeJSONFile(path string, v interface{}) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, append(data, '\n'), 0644)
}
