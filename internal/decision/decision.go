// Package decision connects the cycle to the collaborator that turns the
// snapshot table into orders. Engines either read files dropped by an
// external process or ask a chat model.
package decision

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/shopspring/decimal"

	"daily-equity-trader/internal/analysis/indicators"
	"daily-equity-trader/internal/calendar"
	"daily-equity-trader/internal/models"
)

// Engine decides the day's orders.
type Engine interface {
	Decide(ctx context.Context, in Input) (*Outcome, error)
}

// Input is everything the collaborator sees for one cycle.
type Input struct {
	AsOf      models.Date
	Settings  map[string]interface{} // rendered as config.json
	Snapshots *indicators.SnapshotTable
	Ledger    *models.Ledger
	Universe  []models.TickerMeta
	Calendar  calendar.Info
}

// Outcome is the collaborator's answer.
type Outcome struct {
	Status   models.RunStatus
	Reason   string
	Orders   []models.Order
	Plan     *TradePlan
	Stops    map[string]decimal.Decimal
	TradeLog json.RawMessage // trade_log_update.json, nil when absent
	Report   string          // daily_report.md
}

// RunStatusFile is the layout of run_status.json.
type RunStatusFile struct {
	Status   models.RunStatus `json:"status"`
	AsOfDate models.Date      `json:"as_of_date"`
	Reason   string           `json:"reason"`
	Currency string           `json:"currency"`
}

// TradePlan is the subset of trade_plan.json the cycle acts on. Unknown
// fields are preserved in Raw.
type TradePlan struct {
	Decisions []PlanDecision  `json:"decisions"`
	Raw       json.RawMessage `json:"-"`
}

// PlanDecision is one per-ticker entry of the plan.
type PlanDecision struct {
	Ticker string    `json:"ticker"`
	Action string    `json:"action,omitempty"`
	Stop   *PlanStop `json:"stop,omitempty"`
}

// PlanStop carries the protective stop for a holding.
type PlanStop struct {
	PriceGBP decimal.NullDecimal `json:"price_gbp"`
}

// Stops maps tickers to the positive stop prices named in the plan.
func (p *TradePlan) Stops() map[string]decimal.Decimal {
	stops := map[string]decimal.Decimal{}
	if p == nil {
		return stops
	}
	for _, d := range p.Decisions {
		if d.Ticker == "" || d.Stop == nil || !d.Stop.PriceGBP.Valid {
			continue
		}
		if d.Stop.PriceGBP.Decimal.IsPositive() {
			stops[d.Ticker] = d.Stop.PriceGBP.Decimal
		}
	}
	return stops
}

// ParseRunStatus normalises a status code. Anything unrecognised blocks the run.
func ParseRunStatus(s string) models.RunStatus {
	switch models.RunStatus(strings.ToUpper(strings.TrimSpace(s))) {
	case models.RunStatusOK:
		return models.RunStatusOK
	case models.RunStatusNoTrades:
		return models.RunStatusNoTrades
	}
	return models.RunStatusBlocked
}
