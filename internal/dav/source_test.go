package dav

import (
	"calscrape/internal/models"
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const calendarData = `BEGIN:VCALENDAR
VERSION:2.0
PRODID:-//calscrape//test//EN
BEGIN:VEVENT
UID:sync@x.com
DTSTAMP:20210101T000000Z
DTSTART:20210104T100000Z
DTEND:20210104T110000Z
SUMMARY:Sync
ATTENDEE;PARTSTAT=ACCEPTED:mailto:a@x.com
ATTENDEE;PARTSTAT=NEEDS-ACTION:mailto:b@x.com
END:VEVENT
END:VCALENDAR
`

// multistatus wraps calendarData in a REPORT response. Line ends are sent as
// character references since XML parsers fold raw CRLF into LF.
func multistatus() string {
	return `<?xml version="1.0" encoding="utf-8"?>
<d:multistatus xmlns:d="DAV:" xmlns:c="urn:ietf:params:xml:ns:caldav">
  <d:response>
    <d:href>/dav/calendars/a@x.com/default/sync.ics</d:href>
    <d:propstat>
      <d:prop>
        <d:getetag>"1"</d:getetag>
        <c:calendar-data>` + strings.ReplaceAll(calendarData, "\n", "&#13;\n") + `</c:calendar-data>
      </d:prop>
      <d:status>HTTP/1.1 200 OK</d:status>
    </d:propstat>
  </d:response>
</d:multistatus>`
}

func TestNewSourceRequiresUserPlaceholder(t *testing.T) {
	_, err := NewSource(slog.New(slog.NewTextHandler(io.Discard, nil)), "https://dav.x.com/", "svc", "secret", "/dav/calendars/shared/")
	require.Error(t, err)
}

func TestFetchPage(t *testing.T) {
	var gotPath, gotMethod, gotUser string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotMethod = r.Method
		gotUser, _, _ = r.BasicAuth()
		w.Header().Set("Content-Type", "application/xml; charset=utf-8")
		w.WriteHeader(http.StatusMultiStatus)
		_, _ = io.WriteString(w, multistatus())
	}))
	defer srv.Close()

	src, err := NewSource(slog.New(slog.NewTextHandler(io.Discard, nil)), srv.URL, "svc", "secret", "/dav/calendars/{user}/default/")
	require.NoError(t, err)

	window := models.TimeRange{
		From: time.Date(2021, 1, 1, 0, 0, 0, 0, time.UTC),
		To:   time.Date(2021, 1, 21, 0, 0, 0, 0, time.UTC),
	}
	page, err := src.FetchPage(context.Background(), "a@x.com", window, "")
	require.NoError(t, err)

	assert.Equal(t, "REPORT", gotMethod)
	assert.Equal(t, "/dav/calendars/a@x.com/default/", gotPath)
	assert.Equal(t, "svc", gotUser)

	require.Len(t, page.Items, 1)
	e := page.Items[0]
	assert.Equal(t, "sync@x.com", e.ID)
	assert.Equal(t, "Sync", e.Summary)
	require.Len(t, e.Attendees, 2)
	assert.True(t, e.Attendees[0].Self)
	assert.Equal(t, models.ResponseNeedsAction, e.Attendees[1].ResponseStatus)
	assert.Empty(t, page.NextPageToken)
}
