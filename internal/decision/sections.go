package decision

import (
	"bytes"
	"encoding/json"
	"regexp"
	"strings"

	"github.com/rs/zerolog"

	"daily-equity-trader/internal/models"
)

// Collaborator file names.
const (
	RunStatusName   = "run_status.json"
	TradePlanName   = "trade_plan.json"
	OrdersName      = "orders.csv"
	ReportName      = "daily_report.md"
	TradeLogName    = "trade_log_update.json"
	RawResponseName = "raw_response.txt"
)

// OutputNames lists the sections a collaborator produces, in answer order.
var OutputNames = []string{RunStatusName, TradePlanName, OrdersName, ReportName, TradeLogName}

var (
	sectionHeader = regexp.MustCompile(`===\s*(\S+\.(?:json|csv|md))\s*===`)
	codeFence     = regexp.MustCompile("```(?:json|csv|markdown|md)?[ \t]*")
	jsonObject    = regexp.MustCompile(`\{[\s\S]*\}`)
)

// SplitSections cuts a response into "=== name ===" delimited sections.
// Text before the first header is discarded. A repeated name keeps the last.
func SplitSections(text string) map[string]string {
	sections := map[string]string{}
	locs := sectionHeader.FindAllStringSubmatchIndex(text, -1)
	for i, loc := range locs {
		name := text[loc[2]:loc[3]]
		end := len(text)
		if i+1 < len(locs) {
			end = locs[i+1][0]
		}
		sections[name] = strings.TrimSpace(text[loc[1]:end])
	}
	return sections
}

// stripFences removes markdown code fences around a section body.
func stripFences(s string) string {
	return strings.TrimSpace(codeFence.ReplaceAllString(s, ""))
}

// parseJSONSection decodes a JSON section into out, tolerating code fences
// and prose around a single object. It reports whether decoding succeeded.
func parseJSONSection(text string, out interface{}) bool {
	cleaned := stripFences(text)
	if cleaned == "" {
		return false
	}
	if json.Unmarshal([]byte(cleaned), out) == nil {
		return true
	}
	if m := jsonObject.FindString(cleaned); m != "" {
		return json.Unmarshal([]byte(m), out) == nil
	}
	return false
}

// outcomeFromSections turns collaborator sections into an Outcome. A missing
// or unreadable run status blocks the run.
func outcomeFromSections(sections map[string]string, logger zerolog.Logger) (*Outcome, error) {
	out := &Outcome{Status: models.RunStatusBlocked, Reason: "missing run status"}

	var status struct {
		Status string `json:"status"`
		Reason string `json:"reason"`
	}
	if parseJSONSection(sections[RunStatusName], &status) {
		out.Status = ParseRunStatus(status.Status)
		out.Reason = status.Reason
	} else {
		logger.Warn().Str("section", RunStatusName).Msg("Missing or unreadable section")
	}

	if body := sections[TradePlanName]; body != "" {
		var plan TradePlan
		if parseJSONSection(body, &plan) {
			plan.Raw = json.RawMessage(stripFences(body))
			if !json.Valid(plan.Raw) {
				plan.Raw = nil
			}
			out.Plan = &plan
			out.Stops = plan.Stops()
		} else {
			logger.Warn().Str("section", TradePlanName).Msg("Unreadable section")
		}
	}

	if body := stripFences(sections[OrdersName]); body != "" {
		orders, err := ParseOrdersCSV(strings.NewReader(body + "\n"))
		if err != nil {
			return nil, err
		}
		out.Orders = orders
	}

	out.Report = sections[ReportName]

	if body := sections[TradeLogName]; body != "" {
		var entry json.RawMessage
		if parseJSONSection(body, &entry) {
			var compact bytes.Buffer
			if json.Compact(&compact, entry) == nil {
				out.TradeLog = compact.Bytes()
			}
		}
	}

	logger.Debug().
		Str("status", string(out.Status)).
		Int("orders", len(out.Orders)).
		Int("stops", len(out.Stops)).
		Bool("report", out.Report != "").
		Msg("Parsed collaborator output")
	return out, nil
}
