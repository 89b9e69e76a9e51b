package pipeline_test

import (
	"calscrape/internal/directory"
	"calscrape/internal/models"
	"calscrape/internal/pipeline"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAggregateSingleUser(t *testing.T) {
	dir := newDirectory(t, directory.User{Email: "a@x.com", Aliases: []string{"a.alt@x.com"}})

	e := meeting(t, "evt-1", "Design review", "2021-01-04T10:00:00Z", "2021-01-04T11:00:00Z",
		models.Attendee{Email: "a@x.com", ResponseStatus: models.ResponseAccepted, Self: true},
		attendee("b@x.com", models.ResponseAccepted),
	)
	relevant := pipeline.Filter([]*models.RawEvent{e})
	require.Len(t, relevant, 1)

	res := pipeline.Aggregate(relevant, dir)

	require.Len(t, res.All, 1)
	assert.Equal(t, 2, res.All[0].ParticipantsCount)
	assert.Equal(t, 1, res.All[0].ParticipantsKnownCount)
	assert.Empty(t, res.All[0].User)

	require.Len(t, res.ByUser, 1)
	require.Len(t, res.ByUser["a@x.com"], 1)
	assert.Equal(t, "a@x.com", res.ByUser["a@x.com"][0].User)
}

func TestAggregateSharedMeeting(t *testing.T) {
	dir := newDirectory(t,
		directory.User{Email: "a@x.com"},
		directory.User{Email: "b@x.com"},
	)

	fromA := meeting(t, "evt-a", "Sync", "2021-01-04T10:00:00Z", "2021-01-04T11:00:00Z",
		models.Attendee{Email: "a@x.com", ResponseStatus: models.ResponseAccepted, Self: true},
		attendee("b@x.com", models.ResponseAccepted),
	)
	fromB := meeting(t, "evt-b", "Sync", "2021-01-04T10:00:00Z", "2021-01-04T11:00:00Z",
		attendee("a@x.com", models.ResponseAccepted),
		models.Attendee{Email: "b@x.com", ResponseStatus: models.ResponseAccepted, Self: true},
		attendee("c@y.com", models.ResponseAccepted),
	)
	outsider := meeting(t, "evt-c", "Vendor call", "2021-01-05T10:00:00Z", "2021-01-05T11:00:00Z",
		models.Attendee{Email: "v@y.com", ResponseStatus: models.ResponseAccepted, Self: true},
		attendee("a@x.com", models.ResponseAccepted),
	)

	res := pipeline.Aggregate([]*models.RawEvent{fromA, fromB, outsider}, dir)

	require.Len(t, res.All, 2)
	ids := map[string]struct{}{}
	for _, ne := range res.All {
		assert.Empty(t, ne.User)
		_, dup := ids[ne.ID]
		assert.False(t, dup, "global ids are unique")
		ids[ne.ID] = struct{}{}
	}
	assert.Equal(t, 3, res.All[0].ParticipantsCount, "attendees are unioned across copies")
	assert.Equal(t, 2, res.All[0].ParticipantsKnownCount)

	require.Len(t, res.ByUser, 2)
	assert.Len(t, res.ByUser["a@x.com"], 1)
	assert.Len(t, res.ByUser["b@x.com"], 1)

	perUser := 0
	for _, list := range res.ByUser {
		perUser += len(list)
	}
	assert.GreaterOrEqual(t, perUser, len(res.All))

	res.ByUser["a@x.com"][0].Participants[0] = "mutated"
	assert.NotEqual(t, "mutated", res.All[0].Participants[0], "collections do not share records")
}

func TestAccumulator(t *testing.T) {
	dir := newDirectory(t, directory.User{Email: "a@x.com"})

	spanning := meeting(t, "evt-1", "Sync", "2021-01-20T23:30:00Z", "2021-01-21T00:30:00Z",
		models.Attendee{Email: "a@x.com", ResponseStatus: models.ResponseAccepted, Self: true},
		attendee("b@x.com", models.ResponseAccepted),
	)
	allDay := &models.RawEvent{
		ID:        "evt-2",
		Start:     &models.EventTime{Date: "2021-01-20"},
		End:       &models.EventTime{Date: "2021-01-21"},
		Attendees: spanning.Attendees,
	}

	acc := pipeline.NewAccumulator()
	assert.Equal(t, 1, acc.Add("a@x.com", []*models.RawEvent{spanning, allDay}))
	assert.Equal(t, 0, acc.Add("a@x.com", []*models.RawEvent{spanning}), "adjacent window repeat")
	assert.Equal(t, 1, acc.Add("b@x.com", []*models.RawEvent{spanning}), "another calendar's copy is kept")

	assert.Equal(t, 4, acc.Fetched())
	assert.Equal(t, 1, acc.Repeated())
	assert.Len(t, acc.Events(), 2)

	res := acc.Aggregate(dir)
	assert.Len(t, res.All, 1)
	assert.Len(t, res.ByUser["a@x.com"], 2)
}
