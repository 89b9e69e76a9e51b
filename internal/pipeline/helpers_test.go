package pipeline_test

import (
	"calscrape/internal/directory"
	"calscrape/internal/models"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func mustTime(t *testing.T, s string) time.Time {
	t.Helper()
	tm, err := time.Parse(time.RFC3339, s)
	require.NoError(t, err)
	return tm
}

func at(t *testing.T, s string) *models.EventTime {
	t.Helper()
	return &models.EventTime{DateTime: mustTime(t, s)}
}

func attendee(email, status string) models.Attendee {
	return models.Attendee{Email: email, ResponseStatus: status}
}

func meeting(t *testing.T, id, summary, start, end string, attendees ...models.Attendee) *models.RawEvent {
	t.Helper()
	return &models.RawEvent{
		ID:        id,
		Summary:   summary,
		Start:     at(t, start),
		End:       at(t, end),
		Attendees: attendees,
	}
}

func emails(attendees []models.Attendee) []string {
	out := make([]string, 0, len(attendees))
	for _, a := range attendees {
		out = append(out, a.Email)
	}
	return out
}

func newDirectory(t *testing.T, users ...directory.User) *directory.Directory {
	t.Helper()
	dir, err := directory.New(users)
	require.NoError(t, err)
	return dir
}
