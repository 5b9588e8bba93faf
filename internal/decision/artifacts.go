package decision

import (
	"encoding/json"
	"os"
	"path/filepath"

	"daily-equity-trader/internal/models"
)

// WriteRunStatus records a non-OK outcome: run_status.json plus a
// header-only orders.csv in dir.
func WriteRunStatus(dir string, status models.RunStatus, asOf models.Date, reason string) error {
	if err := writeJSON(filepath.Join(dir, RunStatusName), RunStatusFile{
		Status:   status,
		AsOfDate: asOf,
		Reason:   reason,
		Currency: models.Currency,
	}); err != nil {
		return err
	}
	return WriteOrdersFile(filepath.Join(dir, OrdersName), nil)
}

// ReadRunStatus reads run_status.json from dir.
func ReadRunStatus(dir string) (*RunStatusFile, error) {
	data, err := os.ReadFile(filepath.Join(dir, RunStatusName))
	if err != nil {
		return nil, err
	}
	var s RunStatusFile
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// WriteOutcome persists a parsed outcome into dir using the collaborator
// file names. orders.csv is always written, header-only when empty.
func WriteOutcome(dir string, asOf models.Date, out *Outcome) error {
	if err := writeJSON(filepath.Join(dir, RunStatusName), RunStatusFile{
		Status:   out.Status,
		AsOfDate: asOf,
		Reason:   out.Reason,
		Currency: models.Currency,
	}); err != nil {
		return err
	}
	if out.Plan != nil && len(out.Plan.Raw) > 0 {
		if err := writeJSON(filepath.Join(dir, TradePlanName), out.Plan.Raw); err != nil {
			return err
		}
	}
	if err := WriteOrdersFile(filepath.Join(dir, OrdersName), out.Orders); err != nil {
		return err
	}
	if out.Report != "" {
		if err := os.WriteFile(filepath.Join(dir, ReportName), []byte(out.Report+"\n"), 0644); err != nil {
			return err
		}
	}
	if len(out.TradeLog) > 0 {
		if err := writeJSON(filepath.Join(dir, TradeLogName), out.TradeLog); err != nil {
			return err
		}
	}
	return nil
}

// AppendTradeLog appends entry to the JSON array at path when the entry
// carries a non-empty "entries" list. It reports whether anything was written
// and the resulting array length. An unreadable existing log starts over.
func AppendTradeLog(path string, entry json.RawMessage) (bool, int, error) {
	if len(entry) == 0 {
		return false, 0, nil
	}
	var probe struct {
		Entries []json.RawMessage `json:"entries"`
	}
	if err := json.Unmarshal(entry, &probe); err != nil || len(probe.Entries) == 0 {
		return false, 0, nil
	}

	var existing []json.RawMessage
	if data, err := os.ReadFile(path); err == nil {
		if json.Unmarshal(data, &existing) != nil {
			existing = nil
		}
	}
	existing = append(existing, entry)

	if err := writeJSON(path, existing); err != nil {
		return false, 0, err
	}
	return true, len(existing), nil
}

func writeJSON(path string, v interface{}) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, append(data, '\n'), 0644)
}
