package models

import "time"

// Attendee response statuses as reported by the calendar source.
const (
	ResponseAccepted    = "accepted"
	ResponseDeclined    = "declined"
	ResponseTentative   = "tentative"
	ResponseNeedsAction = "needsAction"
)

// TimeRange is a bounded [From, To] interval used for one fetch cycle.
type TimeRange struct {
	From time.Time `json:"from"`
	To   time.Time `json:"to"`
}

// String formats the range for logging.
func (r TimeRange) String() string {
	return r.From.Format(time.RFC3339) + "/" + r.To.Format(time.RFC3339)
}

// EventTime is the start or end of a raw event. All-day events only carry a Date.
type EventTime struct {
	Date     string    // YYYY-MM-DD, set for all-day events
	DateTime time.Time // zero when the event has no precise time
}

// HasDateTime reports whether the time is a precise date-time.
func (t *EventTime) HasDateTime() bool {
	return t != nil && !t.DateTime.IsZero()
}

// StartDate returns the calendar date of t in its own offset, or the all-day Date.
func (t *EventTime) StartDate() string {
	if t == nil {
		return ""
	}
	if !t.DateTime.IsZero() {
		return t.DateTime.Format(time.DateOnly)
	}
	return t.Date
}

// Attendee is one entry of a raw event's guest list.
type Attendee struct {
	Email          string
	ResponseStatus string
	Optional       bool
	Resource       bool // room or equipment
	Self           bool // the calendar owner's own entry
}

// RawEvent is an unprocessed meeting record as returned by an event source.
// It is never mutated once handed to the pipeline.
type RawEvent struct {
	ID               string
	Start            *EventTime
	End              *EventTime
	Summary          string
	Description      string // may contain markup
	HTMLLink         string
	CreatorEmail     string
	RecurringEventID string
	Sequence         int64
	Created          time.Time
	Updated          time.Time
	Attendees        []Attendee
}

// LastModified returns Updated, falling back to Created.
func (e *RawEvent) LastModified() time.Time {
	if !e.Updated.IsZero() {
		return e.Updated
	}
	return e.Created
}

// EventPage is one page of events returned by an event source.
type EventPage struct {
	Items         []*RawEvent
	NextPageToken string
}

// NormalizedEvent is the flat analytics record written to the outputs.
type NormalizedEvent struct {
	ID            string     `json:"id"`
	StartTime     time.Time  `json:"startTime"`
	EndTime       time.Time  `json:"endTime"`
	Duration      int        `json:"duration"` // minutes
	DurationHours float64    `json:"durationHours"`
	HTMLLink      string     `json:"htmlLink"`
	Created       *time.Time `json:"created,omitempty"`
	Updated       *time.Time `json:"updated,omitempty"`

	Summary        string `json:"summary"`
	Description    string `json:"description"`    // markup removed
	DescriptionRaw string `json:"descriptionRaw"` // as received
	Text           string `json:"text"`           // summary + description, markup removed

	RecurringEventID string `json:"recurringEventId,omitempty"`
	IsRecurring      bool   `json:"isRecurring"`
	Sequence         int64  `json:"sequence"`

	Creator string `json:"creator,omitempty"`

	// Participants are the attendees assumed to have actually spent time in the meeting.
	Participants           []string `json:"participants"`
	ParticipantsCount      int      `json:"participantsCount"`
	ParticipantsKnownCount int      `json:"participantsKnownCount"`

	Accepted         []string `json:"accepted"`
	AcceptedCount    int      `json:"acceptedCount"`
	Declined         []string `json:"declined"`
	DeclinedCount    int      `json:"declinedCount"`
	Tentative        []string `json:"tentative"`
	TentativeCount   int      `json:"tentativeCount"`
	NeedsAction      []string `json:"needsAction"`
	NeedsActionCount int      `json:"needsActionsCount"` // name kept for existing consumers
	Required         []string `json:"required"`
	RequiredCount    int      `json:"requiredCount"`
	Optional         []string `json:"optional"`
	OptionalCount    int      `json:"optionalCount"`

	IsOneOnOne bool `json:"isOneOnOne"`
	IsInternal bool `json:"isInternal"` // reserved, always false

	// User is the canonical email of the calendar owner. Only set on per-user records.
	User string `json:"user,omitempty"`
}
