package pipeline

import (
	"calscrape/internal/directory"
	"calscrape/internal/models"
	"strings"
	"time"
)

// largeInviteThreshold is the guest count above which an invite is treated
// as a broadcast rather than a meeting.
const largeInviteThreshold = 12

var (
	groupMailboxMarkers = []string{"support", "employees", "-cal", "cal-"}
	socialKeywords      = []string{"social", "break", "guild", "ama", "hangout", "coffee", "watercooler"}
)

// Resolver maps any known email alias to its canonical email. Unknown
// emails resolve to directory.Unknown instead of failing.
type Resolver interface {
	Canonical(email string) string
}

// Normalize projects a relevant raw event into an analytics record.
// The event must carry precise start and end date-times.
func Normalize(event *models.RawEvent, users Resolver) models.NormalizedEvent {
	var people []models.Attendee
	for _, a := range event.Attendees {
		if a.Email != "" && !a.Resource {
			people = append(people, a)
		}
	}

	var accepted, declined, tentative, needsAction, required, optional []models.Attendee
	for _, a := range people {
		switch a.ResponseStatus {
		case models.ResponseAccepted:
			accepted = append(accepted, a)
		case models.ResponseDeclined:
			declined = append(declined, a)
		case models.ResponseTentative:
			tentative = append(tentative, a)
		case models.ResponseNeedsAction:
			needsAction = append(needsAction, a)
		}
		if a.Optional {
			optional = append(optional, a)
		} else {
			required = append(required, a)
		}
	}

	participants := append([]models.Attendee(nil), accepted...)
	if !AttendanceOnlyIfAccepted(attendeeEmails(event.Attendees), event.Summary) {
		participants = append(participants, tentative...)
		participants = append(participants, needsAction...)
	}

	start := event.Start.DateTime
	end := event.End.DateTime
	minutes := durationMinutes(start, end)

	participantEmails := canonicalEmails(participants, users)
	known := 0
	for _, p := range participantEmails {
		if p != directory.Unknown {
			known++
		}
	}

	sequence := event.Sequence
	if sequence == 0 {
		sequence = 1
	}

	ne := models.NormalizedEvent{
		ID:            event.ID,
		StartTime:     start,
		EndTime:       end,
		Duration:      minutes,
		DurationHours: float64(minutes) / 60,
		HTMLLink:      event.HTMLLink,
		Created:       timePtr(event.Created),
		Updated:       timePtr(event.LastModified()),

		Summary:        event.Summary,
		Description:    StripMarkup(event.Description),
		DescriptionRaw: event.Description,
		Text:           StripMarkup(event.Summary + "\n" + event.Description),

		RecurringEventID: event.RecurringEventID,
		IsRecurring:      event.RecurringEventID != "",
		Sequence:         sequence,

		Participants:           participantEmails,
		ParticipantsCount:      len(participants),
		ParticipantsKnownCount: known,

		Accepted:         canonicalEmails(accepted, users),
		AcceptedCount:    len(accepted),
		Declined:         canonicalEmails(declined, users),
		DeclinedCount:    len(declined),
		Tentative:        canonicalEmails(tentative, users),
		TentativeCount:   len(tentative),
		NeedsAction:      canonicalEmails(needsAction, users),
		NeedsActionCount: len(needsAction),
		Required:         canonicalEmails(required, users),
		RequiredCount:    len(required),
		Optional:         canonicalEmails(optional, users),
		OptionalCount:    len(optional),

		IsOneOnOne: len(people) == 2,
		// Team-based internal detection is not implemented.
		IsInternal: false,
	}

	if event.CreatorEmail != "" {
		ne.Creator = users.Canonical(event.CreatorEmail)
	}
	for _, p := range participants {
		if p.Self {
			ne.User = users.Canonical(p.Email)
			break
		}
	}

	return ne
}

// AttendanceOnlyIfAccepted reports whether tentative and unanswered guests
// should be assumed absent: broadcast-sized invites, group mailboxes, untitled
// events and social gatherings.
func AttendanceOnlyIfAccepted(emails []string, summary string) bool {
	if len(emails) > largeInviteThreshold {
		return true
	}
	for _, email := range emails {
		if containsAny(email, groupMailboxMarkers) {
			return true
		}
	}
	if summary == "" {
		return true
	}
	return containsAny(strings.ToLower(summary), socialKeywords)
}

func attendeeEmails(attendees []models.Attendee) []string {
	emails := make([]string, 0, len(attendees))
	for _, a := range attendees {
		emails = append(emails, a.Email)
	}
	return emails
}

func canonicalEmails(attendees []models.Attendee, users Resolver) []string {
	emails := make([]string, 0, len(attendees))
	for _, a := range attendees {
		emails = append(emails, users.Canonical(a.Email))
	}
	return emails
}

func timePtr(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
