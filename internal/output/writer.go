// Package output persists the analytics collections as JSON files.
package output

import (
	"calscrape/internal/models"
	"calscrape/internal/pipeline"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"
)

const (
	allFile      = "all.json"
	usersDir     = "users"
	manifestFile = "run.json"
)

// Manifest describes one run next to its outputs.
type Manifest struct {
	RunID       string         `json:"runId"`
	GeneratedAt time.Time      `json:"generatedAt"`
	From        time.Time      `json:"from"`
	To          time.Time      `json:"to"`
	Windows     int            `json:"windows"`
	Fetched     int            `json:"fetched"`
	Relevant    int            `json:"relevant"`
	Global      int            `json:"global"`
	Users       map[string]int `json:"users"`
}

// Writer writes all.json, users/<email>.json and run.json under a directory.
type Writer struct {
	logger *slog.Logger
	dir    string
}

// NewWriter creates a Writer rooted at dir.
func NewWriter(logger *slog.Logger, dir string) *Writer {
	return &Writer{logger: logger, dir: dir}
}

// Write persists res and its manifest, creating missing directories. Files
// from a previous run are replaced, and user files for users absent from res
// are removed.
func (w *Writer) Write(res pipeline.Result, manifest Manifest) error {
	userDir := filepath.Join(w.dir, usersDir)
	if err := os.MkdirAll(userDir, 0o755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	all := res.All
	if all == nil {
		all = []models.NormalizedEvent{}
	}
	if err := writeJSON(filepath.Join(w.dir, allFile), all); err != nil {
		return err
	}

	for user := range res.ByUser {
		if filepath.Base(user) != user || strings.HasPrefix(user, ".") {
			return fmt.Errorf("refusing to write user file for %q", user)
		}
	}
	if err := w.removeStaleUserFiles(userDir, res.ByUser); err != nil {
		return err
	}

	for user, events := range res.ByUser {
		if err := writeJSON(filepath.Join(userDir, user+".json"), events); err != nil {
			return err
		}
	}

	if err := writeJSON(filepath.Join(w.dir, manifestFile), manifest); err != nil {
		return err
	}

	w.logger.Info("Wrote results", "dir", w.dir, "global", len(all), "users", len(res.ByUser))
	return nil
}

func (w *Writer) removeStaleUserFiles(userDir string, current map[string][]models.NormalizedEvent) error {
	paths, err := filepath.Glob(filepath.Join(userDir, "*.json"))
	if err != nil {
		return fmt.Errorf("failed to list user files: %w", err)
	}
	for _, path := range paths {
		if _, ok := current[strings.TrimSuffix(filepath.Base(path), ".json")]; ok {
			continue
		}
		if err := os.Remove(path); err != nil {
			return fmt.Errorf("failed to remove stale user file: %w", err)
		}
		w.logger.Debug("Removed stale user file", "file", path)
	}
	return nil
}

// writeJSON writes v to path through a temp file in the same directory.
func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "    ")
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", filepath.Base(path), err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".calscrape-*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file for %s: %w", path, err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("failed to move %s into place: %w", path, err)
	}
	return nil
}
