package store

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"daily-equity-trader/internal/errors"
	"daily-equity-trader/internal/models"
)

// JSONFileStore keeps the ledger in positions.json.
type JSONFileStore struct {
	path string
}

// NewJSONFileStore creates a store backed by path.
func NewJSONFileStore(path string) *JSONFileStore {
	return &JSONFileStore{path: path}
}

// Path returns the ledger file location.
func (s *JSONFileStore) Path() string { return s.path }

func (s *JSONFileStore) Load(ctx context.Context) (*models.Ledger, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%s: %w", s.path, errors.ErrLedgerNotFound)
		}
		return nil, err
	}
	var l models.Ledger
	if err := json.Unmarshal(data, &l); err != nil {
		return nil, errors.Wrapf(err, "decoding ledger %s", s.path)
	}
	return &l, nil
}

// Save writes to a temporary file in the same directory, syncs it and renames
// it over the target.
func (s *JSONFileStore) Save(ctx context.Context, l *models.Ledger) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.MarshalIndent(l, "", "  ")
	if err != nil {
		return errors.Wrap(err, "encoding ledger")
	}
	return writeFileAtomic(s.path, append(data, '\n'))
}

func (s *JSONFileStore) Close() error { return nil }

func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) // no-op after a successful rename

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpName, 0644); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}
