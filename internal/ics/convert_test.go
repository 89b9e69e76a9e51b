package ics_test

import (
	"calscrape/internal/ics"
	"calscrape/internal/models"
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const calendarExport = `BEGIN:VCALENDAR
VERSION:2.0
PRODID:-//calscrape//test//EN
BEGIN:VEVENT
UID:weekly@x.com
DTSTAMP:20210101T000000Z
DTSTART:20210104T100000Z
DTEND:20210104T103000Z
RRULE:FREQ=WEEKLY;COUNT=4
EXDATE:20210111T100000Z
SUMMARY:Weekly sync
DESCRIPTION:Status updates
URL:https://cal.x.com/weekly
ORGANIZER:mailto:a@x.com
ATTENDEE;PARTSTAT=ACCEPTED:mailto:a@x.com
ATTENDEE;PARTSTAT=TENTATIVE;ROLE=OPT-PARTICIPANT:mailto:b@x.com
ATTENDEE;CUTYPE=ROOM;PARTSTAT=ACCEPTED:mailto:room@x.com
SEQUENCE:3
CREATED:20201201T090000Z
LAST-MODIFIED:20201202T090000Z
END:VEVENT
BEGIN:VEVENT
UID:weekly@x.com
RECURRENCE-ID:20210118T100000Z
DTSTAMP:20210101T000000Z
DTSTART:20210118T140000Z
DTEND:20210118T150000Z
SUMMARY:Weekly sync (moved)
ATTENDEE;PARTSTAT=ACCEPTED:mailto:a@x.com
ATTENDEE;PARTSTAT=DECLINED:mailto:b@x.com
END:VEVENT
BEGIN:VEVENT
UID:holiday@x.com
DTSTAMP:20210101T000000Z
DTSTART;VALUE=DATE:20210106
DTEND;VALUE=DATE:20210107
SUMMARY:Holiday
END:VEVENT
BEGIN:VEVENT
UID:old@x.com
DTSTAMP:20210101T000000Z
DTSTART:20201201T100000Z
DTEND:20201201T110000Z
SUMMARY:Old
END:VEVENT
END:VCALENDAR
`

func crlf(s string) string {
	return strings.ReplaceAll(s, "\n", "\r\n")
}

func january() models.TimeRange {
	return models.TimeRange{
		From: time.Date(2021, 1, 1, 0, 0, 0, 0, time.UTC),
		To:   time.Date(2021, 1, 31, 0, 0, 0, 0, time.UTC),
	}
}

func TestExpand(t *testing.T) {
	cals, err := ics.Decode(strings.NewReader(crlf(calendarExport)))
	require.NoError(t, err)
	require.Len(t, cals, 1)

	events, err := ics.Expander{}.Expand(cals[0], "a@x.com", january())
	require.NoError(t, err)

	ids := make([]string, 0, len(events))
	for _, e := range events {
		ids = append(ids, e.ID)
	}
	assert.Equal(t, []string{
		"weekly@x.com_20210104T100000Z",
		"holiday@x.com",
		"weekly@x.com_20210118T100000Z",
		"weekly@x.com_20210125T100000Z",
	}, ids)

	first := events[0]
	assert.Equal(t, "weekly@x.com", first.RecurringEventID)
	assert.Equal(t, "Weekly sync", first.Summary)
	assert.Equal(t, "Status updates", first.Description)
	assert.Equal(t, "https://cal.x.com/weekly", first.HTMLLink)
	assert.Equal(t, "a@x.com", first.CreatorEmail)
	assert.Equal(t, int64(3), first.Sequence)
	assert.Equal(t, time.Date(2020, 12, 1, 9, 0, 0, 0, time.UTC), first.Created.UTC())
	assert.Equal(t, time.Date(2020, 12, 2, 9, 0, 0, 0, time.UTC), first.Updated.UTC())
	assert.True(t, first.Start.DateTime.Equal(time.Date(2021, 1, 4, 10, 0, 0, 0, time.UTC)))
	assert.True(t, first.End.DateTime.Equal(time.Date(2021, 1, 4, 10, 30, 0, 0, time.UTC)))
	assert.Equal(t, []models.Attendee{
		{Email: "a@x.com", ResponseStatus: models.ResponseAccepted, Self: true},
		{Email: "b@x.com", ResponseStatus: models.ResponseTentative, Optional: true},
		{Email: "room@x.com", ResponseStatus: models.ResponseAccepted, Resource: true},
	}, first.Attendees)

	holiday := events[1]
	assert.False(t, holiday.Start.HasDateTime())
	assert.Equal(t, "2021-01-06", holiday.Start.Date)
	assert.Empty(t, holiday.RecurringEventID)

	moved := events[2]
	assert.Equal(t, "Weekly sync (moved)", moved.Summary)
	assert.Equal(t, "weekly@x.com", moved.RecurringEventID)
	assert.True(t, moved.Start.DateTime.Equal(time.Date(2021, 1, 18, 14, 0, 0, 0, time.UTC)))
	assert.Equal(t, models.ResponseDeclined, moved.Attendees[1].ResponseStatus)

	last := events[3]
	assert.True(t, last.Start.DateTime.Equal(time.Date(2021, 1, 25, 10, 0, 0, 0, time.UTC)))
	assert.True(t, last.End.DateTime.Equal(time.Date(2021, 1, 25, 10, 30, 0, 0, time.UTC)))
}

func TestExpandMarksSelfByOwner(t *testing.T) {
	cals, err := ics.Decode(strings.NewReader(crlf(calendarExport)))
	require.NoError(t, err)

	events, err := ics.Expander{}.Expand(cals[0], "B@x.com", january())
	require.NoError(t, err)
	require.NotEmpty(t, events)

	assert.False(t, events[0].Attendees[0].Self)
	assert.True(t, events[0].Attendees[1].Self)
}

func TestExpandNarrowWindow(t *testing.T) {
	cals, err := ics.Decode(strings.NewReader(crlf(calendarExport)))
	require.NoError(t, err)

	window := models.TimeRange{
		From: time.Date(2021, 1, 20, 0, 0, 0, 0, time.UTC),
		To:   time.Date(2021, 1, 31, 0, 0, 0, 0, time.UTC),
	}
	events, err := ics.Expander{}.Expand(cals[0], "a@x.com", window)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "weekly@x.com_20210125T100000Z", events[0].ID)
}

func TestFileSource(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a@x.com.ics"), []byte(crlf(calendarExport)), 0644))

	src := ics.NewFileSource(slog.New(slog.NewTextHandler(io.Discard, nil)), dir)

	page, err := src.FetchPage(context.Background(), "a@x.com", january(), "")
	require.NoError(t, err)
	assert.Len(t, page.Items, 4)
	assert.Empty(t, page.NextPageToken)

	_, err = src.FetchPage(context.Background(), "nobody@x.com", january(), "")
	require.Error(t, err)
}

const missingUIDExport = `BEGIN:VCALENDAR
VERSION:2.0
PRODID:-//calscrape//test//EN
BEGIN:VEVENT
DTSTAMP:20210101T000000Z
DTSTART:20210104T100000Z
DTEND:20210104T110000Z
SUMMARY:Ad hoc
ORGANIZER:mailto:a@x.com
ATTENDEE;PARTSTAT=ACCEPTED:mailto:a@x.com
ATTENDEE;PARTSTAT=ACCEPTED:mailto:b@x.com
END:VEVENT
BEGIN:VEVENT
DTSTAMP:20210101T000000Z
DTSTART:20210105T100000Z
DTEND:20210105T110000Z
SUMMARY:Ad hoc
ORGANIZER:mailto:a@x.com
END:VEVENT
END:VCALENDAR
`

func TestExpandMissingUIDIsStable(t *testing.T) {
	read := func() []*models.RawEvent {
		cals, err := ics.Decode(strings.NewReader(crlf(missingUIDExport)))
		require.NoError(t, err)
		require.Len(t, cals, 1)
		events, err := ics.Expander{}.Expand(cals[0], "a@x.com", january())
		require.NoError(t, err)
		require.Len(t, events, 2)
		return events
	}

	first, second := read(), read()
	assert.NotEmpty(t, first[0].ID)
	assert.Equal(t, first[0].ID, second[0].ID)
	assert.Equal(t, first[1].ID, second[1].ID)
	assert.NotEqual(t, first[0].ID, first[1].ID, "different starts give different ids")
}
