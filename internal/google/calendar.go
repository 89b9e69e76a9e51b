package google

import (
	"calscrape/internal/models"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/calendar/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

const (
	credentialsFile = "credentials.json"

	pageSize     = 1000
	maxAttendees = 1000
	maxRetries   = 5
)

// CalendarClient reads other users' calendars through the Google Calendar API.
type CalendarClient struct {
	service *calendar.Service
	logger  *slog.Logger

	// newBackOff builds the retry policy for a single page request.
	newBackOff func() backoff.BackOff
}

// NewClient creates a client authenticated with a user OAuth token saved by
// the auth command. The token's account must be able to read every tracked
// user's calendar.
func NewClient(ctx context.Context, logger *slog.Logger, clientID, clientSecret, tokenFile string) (*CalendarClient, error) {
	config, err := getOAuthConfig(clientID, clientSecret)
	if err != nil {
		return nil, fmt.Errorf("failed to get OAuth config: %w", err)
	}

	token, err := tokenFromFile(tokenFile)
	if err != nil {
		return nil, fmt.Errorf("could not load token %s: %w. Please run the 'auth' command first", tokenFile, err)
	}

	return NewClientWithOptions(ctx, logger, option.WithHTTPClient(config.Client(ctx, token)))
}

// NewServiceAccountClient creates a client from a service account key. When
// subject is set, the service account impersonates that user through
// domain-wide delegation.
func NewServiceAccountClient(ctx context.Context, logger *slog.Logger, keyFile, subject string) (*CalendarClient, error) {
	b, err := os.ReadFile(keyFile)
	if err != nil {
		return nil, fmt.Errorf("unable to read service account key: %w", err)
	}

	jwtConfig, err := google.JWTConfigFromJSON(b, calendar.CalendarReadonlyScope)
	if err != nil {
		return nil, fmt.Errorf("unable to parse service account key: %w", err)
	}
	jwtConfig.Subject = subject

	return NewClientWithOptions(ctx, logger, option.WithHTTPClient(jwtConfig.Client(ctx)))
}

// NewClientWithOptions creates a client from raw API options.
func NewClientWithOptions(ctx context.Context, logger *slog.Logger, opts ...option.ClientOption) (*CalendarClient, error) {
	service, err := calendar.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create calendar service: %w", err)
	}

	return &CalendarClient{
		service: service,
		logger:  logger,
		newBackOff: func() backoff.BackOff {
			return backoff.WithMaxRetries(backoff.NewExponentialBackOff(), maxRetries)
		},
	}, nil
}

// FetchPage lists one page of single-instance events on user's calendar that
// overlap window, ordered by start time. Transient API failures are retried.
func (c *CalendarClient) FetchPage(ctx context.Context, user string, window models.TimeRange, pageToken string) (*models.EventPage, error) {
	c.logger.Debug("Fetching events page", "user", user, "window", window.String(), "pageToken", pageToken)

	var events *calendar.Events
	op := func() error {
		var err error
		events, err = c.service.Events.List(user).
			TimeMin(window.From.Format(time.RFC3339)).
			TimeMax(window.To.Format(time.RFC3339)).
			MaxResults(pageSize).
			SingleEvents(true).
			OrderBy("startTime").
			ShowHiddenInvitations(true).
			MaxAttendees(maxAttendees).
			PageToken(pageToken).
			Context(ctx).
			Do()
		if err != nil && !isTransient(err) {
			return backoff.Permanent(err)
		}
		return err
	}
	notify := func(err error, wait time.Duration) {
		c.logger.Warn("Retrying events page", "user", user, "wait", wait, "error", err)
	}

	if err := backoff.RetryNotify(op, backoff.WithContext(c.newBackOff(), ctx), notify); err != nil {
		return nil, fmt.Errorf("failed to list events for %s: %w", user, err)
	}

	return &models.EventPage{
		Items:         c.toRawEvents(events.Items),
		NextPageToken: events.NextPageToken,
	}, nil
}

func isTransient(err error) bool {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		return apiErr.Code == http.StatusTooManyRequests || apiErr.Code >= http.StatusInternalServerError
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}

// toRawEvents converts Google Calendar events to the internal RawEvent model.
func (c *CalendarClient) toRawEvents(items []*calendar.Event) []*models.RawEvent {
	events := make([]*models.RawEvent, 0, len(items))
	for _, item := range items {
		e := &models.RawEvent{
			ID:               item.Id,
			Start:            c.toEventTime(item.Id, item.Start),
			End:              c.toEventTime(item.Id, item.End),
			Summary:          item.Summary,
			Description:      item.Description,
			HTMLLink:         item.HtmlLink,
			RecurringEventID: item.RecurringEventId,
			Sequence:         item.Sequence,
			Created:          parseTimestamp(item.Created),
			Updated:          parseTimestamp(item.Updated),
		}
		if item.Creator != nil {
			e.CreatorEmail = item.Creator.Email
		}
		for _, a := range item.Attendees {
			if a == nil {
				continue
			}
			e.Attendees = append(e.Attendees, models.Attendee{
				Email:          a.Email,
				ResponseStatus: a.ResponseStatus,
				Optional:       a.Optional,
				Resource:       a.Resource,
				Self:           a.Self,
			})
		}
		events = append(events, e)
	}
	return events
}

func (c *CalendarClient) toEventTime(id string, t *calendar.EventDateTime) *models.EventTime {
	if t == nil {
		return nil
	}
	et := &models.EventTime{Date: t.Date}
	if t.DateTime != "" {
		dt, err := time.Parse(time.RFC3339, t.DateTime)
		if err != nil {
			c.logger.Debug("Ignoring unparseable event time", "id", id, "dateTime", t.DateTime, "error", err)
			return et
		}
		et.DateTime = dt
	}
	return et
}

func parseTimestamp(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

// GetOAuthConfigForAuthFlow is used by the auth command to get the config for the web flow.
func GetOAuthConfigForAuthFlow(clientID, clientSecret string) (*oauth2.Config, error) {
	return getOAuthConfig(clientID, clientSecret)
}

// getOAuthConfig reads credentials and returns an OAuth2 config.
// It prioritizes explicit client credentials over a local credentials.json file.
func getOAuthConfig(clientID, clientSecret string) (*oauth2.Config, error) {
	if clientID != "" && clientSecret != "" {
		return &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			RedirectURL:  "urn:ietf:wg:oauth:2.0:oob",
			Scopes:       []string{calendar.CalendarReadonlyScope},
			Endpoint:     google.Endpoint,
		}, nil
	}

	b, err := os.ReadFile(credentialsFile)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("credentials.json not found. Please provide GOOGLE_CLIENT_ID and GOOGLE_CLIENT_SECRET env vars or place credentials.json in the working directory")
		}
		return nil, fmt.Errorf("unable to read client secret file: %w", err)
	}

	config, err := google.ConfigFromJSON(b, calendar.CalendarReadonlyScope)
	if err != nil {
		return nil, fmt.Errorf("unable to parse client secret file to config: %w", err)
	}
	config.RedirectURL = "urn:ietf:wg:oauth:2.0:oob"
	return config, nil
}

// TokenFromWeb exchanges an authorization code for a token.
func TokenFromWeb(ctx context.Context, config *oauth2.Config, authCode string) (*oauth2.Token, error) {
	return config.Exchange(ctx, authCode)
}

// SaveToken saves a token to a file path.
func SaveToken(path string, token *oauth2.Token) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("unable to create token file: %w", err)
	}
	defer f.Close()
	return json.NewEncoder(f).Encode(token)
}

func tokenFromFile(file string) (*oauth2.Token, error) {
	f, err := os.Open(file)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	tok := &oauth2.Token{}
	err = json.NewDecoder(f).Decode(tok)
	return tok, err
}
