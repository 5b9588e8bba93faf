package indicators

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/gocarina/gocsv"

	"daily-equity-trader/internal/models"
)

// Skipped records a universe ticker that did not make it into the table.
type Skipped struct {
	Ticker string `json:"ticker"`
	Reason string `json:"reason"`
}

// SnapshotTable holds one snapshot per qualifying ticker, keyed by ticker and
// iterated in insertion order.
type SnapshotTable struct {
	rows    []*models.Snapshot
	byKey   map[string]*models.Snapshot
	Skipped []Skipped
}

// NewSnapshotTable returns an empty table.
func NewSnapshotTable() *SnapshotTable {
	return &SnapshotTable{byKey: make(map[string]*models.Snapshot)}
}

// Add inserts or replaces the snapshot for its ticker.
func (t *SnapshotTable) Add(s *models.Snapshot) {
	if _, exists := t.byKey[s.Ticker]; exists {
		for i, r := range t.rows {
			if r.Ticker == s.Ticker {
				t.rows[i] = s
			}
		}
	} else {
		t.rows = append(t.rows, s)
	}
	t.byKey[s.Ticker] = s
}

// Get returns the snapshot for ticker. It is safe to call on a nil table.
func (t *SnapshotTable) Get(ticker string) (*models.Snapshot, bool) {
	if t == nil {
		return nil, false
	}
	s, ok := t.byKey[ticker]
	return s, ok
}

// Close returns the latest close for ticker, if one is available.
func (t *SnapshotTable) Close(ticker string) (float64, bool) {
	s, ok := t.Get(ticker)
	if !ok || !s.Close.Valid {
		return 0, false
	}
	return s.Close.Float64, true
}

// Rows returns the snapshots in table order.
func (t *SnapshotTable) Rows() []*models.Snapshot {
	if t == nil {
		return nil
	}
	return t.rows
}

// Len returns the number of snapshots.
func (t *SnapshotTable) Len() int {
	if t == nil {
		return 0
	}
	return len(t.rows)
}

// WriteCSV writes the table in the market_data.csv format.
func (t *SnapshotTable) WriteCSV(w io.Writer) error {
	rows := t.Rows()
	if rows == nil {
		rows = []*models.Snapshot{}
	}
	return gocsv.Marshal(&rows, w)
}

// WriteFile writes the table to path, creating parent directories.
func (t *SnapshotTable) WriteFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("creating output directory: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating %s: %w", path, err)
	}
	if err := t.WriteCSV(f); err != nil {
		f.Close()
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return f.Close()
}

// ReadSnapshotCSV parses a market_data.csv table.
func ReadSnapshotCSV(r io.Reader) (*SnapshotTable, error) {
	var rows []*models.Snapshot
	if err := gocsv.Unmarshal(r, &rows); err != nil {
		return nil, fmt.Errorf("parsing snapshot table: %w", err)
	}
	t := NewSnapshotTable()
	for _, s := range rows {
		if s.Ticker == "" {
			continue
		}
		t.Add(s)
	}
	return t, nil
}

// ReadSnapshotFile reads a market_data.csv file.
func ReadSnapshotFile(path string) (*SnapshotTable, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ReadSnapshotCSV(f)
}
