// Package config holds the settings of one scrape run.
package config

import (
	"errors"
	"fmt"
	"time"
)

// Event sources.
const (
	SourceGoogle = "google"
	SourceICS    = "ics"
	SourceCalDAV = "caldav"
)

const (
	DefaultInput      = "./input/users.json"
	DefaultOutput     = "./output"
	DefaultFrom       = "2020-12-01T00:00:00Z"
	DefaultWindowDays = 20
	DefaultTokenFile  = "token.json"
)

// ErrInvalidRange is returned when from is not before to.
var ErrInvalidRange = errors.New("time range start must be before its end")

// GoogleConfig selects how the Google Calendar API is authenticated. A
// service account key takes precedence over an OAuth token file.
type GoogleConfig struct {
	ClientID           string
	ClientSecret       string
	TokenFile          string
	ServiceAccountFile string
	Subject            string
}

// CalDAVConfig locates users' calendars on a CalDAV server.
type CalDAVConfig struct {
	Endpoint     string
	PathTemplate string
	Username     string
	Password     string
}

// Config is the effective configuration of a run.
type Config struct {
	Input      string
	Output     string
	From       time.Time
	To         time.Time
	WindowDays int
	Source     string
	DryRun     bool

	Google GoogleConfig
	ICSDir string
	CalDAV CalDAVConfig
}

// ParseTime accepts RFC 3339 timestamps or plain YYYY-MM-DD dates (UTC midnight).
func ParseTime(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid time %q: expected RFC 3339 or YYYY-MM-DD", s)
	}
	return t, nil
}

// ValidateRange checks that [from, to] is non-empty and windowDays positive.
func ValidateRange(from, to time.Time, windowDays int) error {
	if !from.Before(to) {
		return fmt.Errorf("%w: %s >= %s", ErrInvalidRange, from.Format(time.RFC3339), to.Format(time.RFC3339))
	}
	if windowDays <= 0 {
		return fmt.Errorf("window days must be positive, got %d", windowDays)
	}
	return nil
}

// Validate checks the configuration before anything is fetched.
func (c *Config) Validate() error {
	if c.Input == "" {
		return errors.New("input path is empty")
	}
	if c.Output == "" && !c.DryRun {
		return errors.New("output path is empty")
	}
	if err := ValidateRange(c.From, c.To, c.WindowDays); err != nil {
		return err
	}

	switch c.Source {
	case SourceGoogle:
		if c.Google.ServiceAccountFile == "" && c.Google.TokenFile == "" {
			return errors.New("google source needs a token file or a service account key")
		}
	case SourceICS:
		if c.ICSDir == "" {
			return errors.New("ics source needs a directory of calendar exports")
		}
	case SourceCalDAV:
		if c.CalDAV.Endpoint == "" || c.CalDAV.PathTemplate == "" {
			return errors.New("caldav source needs an endpoint and a calendar path template")
		}
	default:
		return fmt.Errorf("unknown event source %q", c.Source)
	}
	return nil
}
