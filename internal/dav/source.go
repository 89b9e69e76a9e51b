package dav

import (
	"calscrape/internal/ics"
	"calscrape/internal/models"
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/emersion/go-webdav/caldav"
)

// userPlaceholder is replaced with the user's email in calendar path templates.
const userPlaceholder = "{user}"

// basicAuthTransport adds Basic Auth and a User-Agent to each request.
type basicAuthTransport struct {
	Username  string
	Password  string
	Transport http.RoundTripper
}

// RoundTrip adds required headers and authentication to each request.
func (t *basicAuthTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())
	if t.Username != "" {
		req.SetBasicAuth(t.Username, t.Password)
	}
	req.Header.Set("User-Agent", "calscrape/1.0")
	return t.Transport.RoundTrip(req)
}

// Source reads each tracked user's calendar from a CalDAV server through a
// delegated account that can see all of them.
type Source struct {
	client       *caldav.Client
	logger       *slog.Logger
	pathTemplate string
	expander     ics.Expander
}

// NewSource creates a Source. pathTemplate locates a user's calendar
// collection relative to endpoint and must contain "{user}", for example
// "/dav/calendars/{user}/default/".
func NewSource(logger *slog.Logger, endpoint, username, password, pathTemplate string) (*Source, error) {
	if !strings.Contains(pathTemplate, userPlaceholder) {
		return nil, fmt.Errorf("calendar path template %q must contain %s", pathTemplate, userPlaceholder)
	}

	httpClient := &http.Client{Transport: &basicAuthTransport{
		Username:  username,
		Password:  password,
		Transport: http.DefaultTransport,
	}}

	client, err := caldav.NewClient(httpClient, endpoint)
	if err != nil {
		return nil, fmt.Errorf("failed to create caldav client: %w", err)
	}

	return &Source{client: client, logger: logger, pathTemplate: pathTemplate}, nil
}

// FetchPage runs a calendar-query for VEVENTs overlapping window on user's
// calendar and expands recurring events locally. CalDAV has no paging, so
// the result is always a single page.
func (s *Source) FetchPage(ctx context.Context, user string, window models.TimeRange, _ string) (*models.EventPage, error) {
	path := s.calendarPath(user)
	s.logger.Debug("Querying CalDAV calendar", "user", user, "path", path, "window", window.String())

	query := &caldav.CalendarQuery{
		CompRequest: caldav.CalendarCompRequest{
			Name:     "VCALENDAR",
			AllProps: true,
			AllComps: true,
		},
		CompFilter: caldav.CompFilter{
			Name: "VCALENDAR",
			Comps: []caldav.CompFilter{{
				Name:  "VEVENT",
				Start: window.From,
				End:   window.To,
			}},
		},
	}

	objects, err := s.client.QueryCalendar(ctx, path, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query calendar for %s: %w", user, err)
	}

	page := &models.EventPage{}
	for _, obj := range objects {
		if obj.Data == nil {
			continue
		}
		events, err := s.expander.Expand(obj.Data, user, window)
		if err != nil {
			return nil, fmt.Errorf("failed to expand %s: %w", obj.Path, err)
		}
		page.Items = append(page.Items, events...)
	}

	return page, nil
}

func (s *Source) calendarPath(user string) string {
	return strings.ReplaceAll(s.pathTemplate, userPlaceholder, url.PathEscape(user))
}
