package ics

import (
	"calscrape/internal/models"
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
)

// FileSource serves events from a directory holding one <email>.ics export
// per tracked user. Every fetch returns a single page.
type FileSource struct {
	logger   *slog.Logger
	dir      string
	expander Expander
}

// NewFileSource creates a FileSource reading from dir.
func NewFileSource(logger *slog.Logger, dir string) *FileSource {
	return &FileSource{logger: logger, dir: dir}
}

// FetchPage returns the instances from user's export that overlap window.
func (s *FileSource) FetchPage(ctx context.Context, user string, window models.TimeRange, _ string) (*models.EventPage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	path := filepath.Join(s.dir, user+".ics")
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open calendar export for %s: %w", user, err)
	}
	defer f.Close()

	cals, err := Decode(f)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	page := &models.EventPage{}
	for _, cal := range cals {
		events, err := s.expander.Expand(cal, user, window)
		if err != nil {
			return nil, fmt.Errorf("failed to expand %s: %w", path, err)
		}
		page.Items = append(page.Items, events...)
	}

	s.logger.Debug("Read calendar export", "user", user, "file", path, "count", len(page.Items))
	return page, nil
}
