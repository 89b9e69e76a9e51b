package scraper

import (
	"calscrape/internal/directory"
	"calscrape/internal/models"
	"calscrape/internal/output"
	"calscrape/internal/pipeline"
	"calscrape/internal/timerange"
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// EventSource supplies raw events for one user and window, page by page.
// An empty NextPageToken marks the last page.
type EventSource interface {
	FetchPage(ctx context.Context, user string, window models.TimeRange, pageToken string) (*models.EventPage, error)
}

// ResultWriter persists the final collections.
type ResultWriter interface {
	Write(res pipeline.Result, manifest output.Manifest) error
}

// Scraper fetches every tracked user's calendar window by window and turns
// the events into analytics collections.
type Scraper struct {
	logger *slog.Logger
	source EventSource
	users  *directory.Directory
	writer ResultWriter
	dryRun bool
	now    func() time.Time
}

// NewScraper creates a new Scraper.
func NewScraper(logger *slog.Logger, source EventSource, users *directory.Directory, writer ResultWriter, dryRun bool) *Scraper {
	return &Scraper{
		logger: logger,
		source: source,
		users:  users,
		writer: writer,
		dryRun: dryRun,
		now:    time.Now,
	}
}

// Run scrapes [from, to] in windows of windowDays, most recent first.
// Relevant events from all windows are accumulated and aggregated in a single
// pass, then written once. Any fetch failure aborts the run and nothing is
// written.
func (s *Scraper) Run(ctx context.Context, from, to time.Time, windowDays int) (pipeline.Result, error) {
	runID := uuid.NewString()
	ranges := timerange.Split(from, to, windowDays)
	s.logger.Info("Starting scrape.", "run", runID, "from", from, "to", to, "windows", len(ranges), "users", len(s.users.Users()))

	acc := pipeline.NewAccumulator()
	for _, window := range ranges {
		for _, user := range s.users.Users() {
			events, err := s.fetchAll(ctx, user.Email, window)
			if err != nil {
				return pipeline.Result{}, fmt.Errorf("failed to fetch events for %s in %s: %w", user.Email, window.String(), err)
			}
			kept := acc.Add(user.Email, events)
			s.logger.Info("Fetched events.", "user", user.Email, "window", window.String(), "count", len(events), "relevant", kept)
		}
	}

	relevant := acc.Events()
	res := acc.Aggregate(s.users)
	s.logger.Info("Aggregated all windows in a single pass.",
		"fetched", acc.Fetched(),
		"relevant", len(relevant),
		"repeated", acc.Repeated(),
		"global", len(res.All),
		"users", len(res.ByUser),
	)

	manifest := output.Manifest{
		RunID:       runID,
		GeneratedAt: s.now().UTC(),
		From:        from,
		To:          to,
		Windows:     len(ranges),
		Fetched:     acc.Fetched(),
		Relevant:    len(relevant),
		Global:      len(res.All),
		Users:       make(map[string]int, len(res.ByUser)),
	}
	for user, events := range res.ByUser {
		manifest.Users[user] = len(events)
	}

	if s.dryRun {
		s.logger.Info("[DRY RUN] Skipping write.", "global", len(res.All), "users", len(res.ByUser))
		return res, nil
	}
	if err := s.writer.Write(res, manifest); err != nil {
		return pipeline.Result{}, fmt.Errorf("failed to write results: %w", err)
	}

	s.logger.Info("Scrape finished.", "run", runID)
	return res, nil
}

// fetchAll follows continuation tokens until the source reports the last page.
func (s *Scraper) fetchAll(ctx context.Context, user string, window models.TimeRange) ([]*models.RawEvent, error) {
	var events []*models.RawEvent
	token := ""
	for {
		page, err := s.source.FetchPage(ctx, user, window, token)
		if err != nil {
			return nil, err
		}
		events = append(events, page.Items...)

		if page.NextPageToken == "" {
			return events, nil
		}
		if page.NextPageToken == token {
			return nil, fmt.Errorf("event source repeated page token %q", token)
		}
		token = page.NextPageToken
	}
}
