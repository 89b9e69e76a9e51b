// Package pipeline turns raw calendar events into the global and per-user
// analytics collections.
package pipeline

import (
	"calscrape/internal/models"
	"math"
	"strings"
	"time"
)

// maxMeetingMinutes is the longest span still treated as a meeting rather
// than a blocked calendar.
const maxMeetingMinutes = 4 * 60

var irrelevantSummaryKeywords = []string{
	"family",
	"kid",
	"cake",
	"party",
	"placeholder",
	"[hold]",
	"notice",
}

// IsRelevant reports whether a raw event can represent a human meeting.
func IsRelevant(event *models.RawEvent) bool {
	if !event.Start.HasDateTime() || !event.End.HasDateTime() {
		return false
	}
	if len(event.Attendees) < 2 {
		return false
	}
	if containsAny(strings.ToLower(event.Summary), irrelevantSummaryKeywords) {
		return false
	}

	return durationMinutes(event.Start.DateTime, event.End.DateTime) <= maxMeetingMinutes
}

// Filter returns the relevant events, preserving order.
func Filter(events []*models.RawEvent) []*models.RawEvent {
	relevant := make([]*models.RawEvent, 0, len(events))
	for _, e := range events {
		if IsRelevant(e) {
			relevant = append(relevant, e)
		}
	}
	return relevant
}

// durationMinutes rounds to the nearest minute, halves rounding up.
func durationMinutes(start, end time.Time) int {
	ms := float64(end.Sub(start).Milliseconds())
	return int(math.Floor(ms/60000 + 0.5))
}

func containsAny(s string, keywords []string) bool {
	for _, k := range keywords {
		if strings.Contains(s, k) {
			return true
		}
	}
	return false
}
