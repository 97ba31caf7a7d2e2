// Package memory persists group history, participant personality snapshots,
// per-agent action records, and operator decision logs as JSON files under a
// data directory.
package memory

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// Store is the file-backed memory layer for one supervisor process.
type Store struct {
	dataDir string
	logsDir string
}

func NewStore(dataDir, logsDir string) *Store {
	return &Store{dataDir: dataDir, logsDir: logsDir}
}

func (s *Store) groupDir(chatID string) string {
	return filepath.Join(s.dataDir, chatID)
}

// saveJSON writes atomically: temp file → fsync → rename.
func saveJSON(path string, v any) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create dir: %w", err)
	}

	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal %s: %w", path, err)
	}

	tmpFile, err := os.CreateTemp(dir, "memory-*.tmp")
	if err != nil {
		return err
	}
	tmpPath := tmpFile.Name()
	defer func() {
		_ = os.Remove(tmpPath)
	}()

	if _, err := tmpFile.Write(data); err != nil {
		tmpFile.Close()
		return err
	}
	if err := tmpFile.Sync(); err != nil {
		tmpFile.Close()
		return err
	}
	tmpFile.Close()

	return os.Rename(tmpPath, path)
}

// loadJSON reads a JSON file into out. A missing file leaves out untouched
// and returns false.
func loadJSON(path string, out any) (bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("read %s: %w", path, err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return false, fmt.Errorf("parse %s: %w", path, err)
	}
	return true, nil
}
