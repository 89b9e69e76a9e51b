// Package ics converts iCalendar data into raw events, expanding recurring
// events into single instances.
package ics

import (
	"calscrape/internal/models"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/emersion/go-ical"
	"github.com/google/uuid"
	"github.com/teambition/rrule-go"
)

const instanceIDLayout = "20060102T150405Z"

// Decode reads every VCALENDAR object from r.
func Decode(r io.Reader) ([]*ical.Calendar, error) {
	dec := ical.NewDecoder(r)
	var cals []*ical.Calendar
	for {
		cal, err := dec.Decode()
		if err == io.EOF {
			return cals, nil
		}
		if err != nil {
			return nil, fmt.Errorf("failed to decode calendar: %w", err)
		}
		cals = append(cals, cal)
	}
}

// Expander turns VEVENTs into single-instance raw events overlapping a window.
type Expander struct {
	// Location applies to floating times. Defaults to UTC.
	Location *time.Location
}

type override struct {
	key   string
	uid   string
	event ical.Event
}

// Expand returns the instances of cal's events that overlap window, seen
// from owner's calendar, ordered by start time. The owner's attendee entry
// is marked as self.
func (x Expander) Expand(cal *ical.Calendar, owner string, window models.TimeRange) ([]*models.RawEvent, error) {
	loc := x.Location
	if loc == nil {
		loc = time.UTC
	}

	var bases []ical.Event
	var overrides []override
	overridden := make(map[string]struct{})
	for _, ev := range cal.Events() {
		if ev.Props.Get(ical.PropRecurrenceID) == nil {
			bases = append(bases, ev)
			continue
		}
		rid, err := ev.Props.DateTime(ical.PropRecurrenceID, loc)
		if err != nil {
			return nil, fmt.Errorf("invalid RECURRENCE-ID: %w", err)
		}
		uid := eventUID(ev)
		key := instanceKey(uid, rid)
		overrides = append(overrides, override{key: key, uid: uid, event: ev})
		overridden[key] = struct{}{}
	}

	var out []*models.RawEvent
	for _, ev := range bases {
		instances, err := x.expandEvent(ev, overridden, owner, window, loc)
		if err != nil {
			return nil, err
		}
		out = append(out, instances...)
	}
	for _, ov := range overrides {
		e, err := toRawEvent(ov.event, owner, loc)
		if err != nil {
			return nil, err
		}
		e.ID = ov.key
		e.RecurringEventID = ov.uid
		if overlaps(e, window) {
			out = append(out, e)
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		return startOf(out[i]).Before(startOf(out[j]))
	})
	return out, nil
}

func (x Expander) expandEvent(ev ical.Event, overridden map[string]struct{}, owner string, window models.TimeRange, loc *time.Location) ([]*models.RawEvent, error) {
	base, err := toRawEvent(ev, owner, loc)
	if err != nil {
		return nil, err
	}

	rule := ev.Props.Get(ical.PropRecurrenceRule)
	if rule == nil || base.Start == nil {
		if overlaps(base, window) {
			return []*models.RawEvent{base}, nil
		}
		return nil, nil
	}

	start, err := ev.DateTimeStart(loc)
	if err != nil {
		return nil, fmt.Errorf("invalid DTSTART on %s: %w", base.ID, err)
	}
	end, err := ev.DateTimeEnd(loc)
	if err != nil {
		return nil, fmt.Errorf("invalid DTEND on %s: %w", base.ID, err)
	}
	length := end.Sub(start)

	r, err := rrule.StrToRRule(rule.Value)
	if err != nil {
		return nil, fmt.Errorf("invalid RRULE on %s: %w", base.ID, err)
	}
	r.DTStart(start)

	var set rrule.Set
	set.RRule(r)
	exdates, err := dateTimes(ev.Props.Values(ical.PropExceptionDates), loc)
	if err != nil {
		return nil, fmt.Errorf("invalid EXDATE on %s: %w", base.ID, err)
	}
	for _, ex := range exdates {
		set.ExDate(ex.In(start.Location()))
	}

	allDay := !base.Start.HasDateTime()
	var out []*models.RawEvent
	for _, s := range set.Between(window.From.Add(-length), window.To, true) {
		key := instanceKey(base.ID, s)
		if _, ok := overridden[key]; ok {
			continue
		}
		instance := *base
		instance.ID = key
		instance.RecurringEventID = base.ID
		instance.Start = eventTime(s, allDay)
		instance.End = eventTime(s.Add(length), allDay)
		instance.Attendees = append([]models.Attendee(nil), base.Attendees...)
		out = append(out, &instance)
	}
	return out, nil
}

func toRawEvent(ev ical.Event, owner string, loc *time.Location) (*models.RawEvent, error) {
	e := &models.RawEvent{
		ID:          eventUID(ev),
		Summary:     propText(ev, ical.PropSummary),
		Description: propText(ev, ical.PropDescription),
		HTMLLink:    propText(ev, ical.PropURL),
	}

	allDay := false
	if p := ev.Props.Get(ical.PropDateTimeStart); p != nil {
		allDay = p.ValueType() == ical.ValueDate
		start, err := ev.DateTimeStart(loc)
		if err != nil {
			return nil, fmt.Errorf("invalid DTSTART on %s: %w", e.ID, err)
		}
		end, err := ev.DateTimeEnd(loc)
		if err != nil {
			return nil, fmt.Errorf("invalid DTEND on %s: %w", e.ID, err)
		}
		e.Start = eventTime(start, allDay)
		e.End = eventTime(end, allDay)
	}

	if p := ev.Props.Get(ical.PropSequence); p != nil {
		if seq, err := strconv.ParseInt(strings.TrimSpace(p.Value), 10, 64); err == nil {
			e.Sequence = seq
		}
	}
	if t, err := ev.Props.DateTime(ical.PropCreated, loc); err == nil {
		e.Created = t
	}
	if t, err := ev.Props.DateTime(ical.PropLastModified, loc); err == nil {
		e.Updated = t
	}
	if p := ev.Props.Get(ical.PropOrganizer); p != nil {
		e.CreatorEmail = mailto(p.Value)
	}

	for _, p := range ev.Props.Values(ical.PropAttendee) {
		email := mailto(p.Value)
		e.Attendees = append(e.Attendees, models.Attendee{
			Email:          email,
			ResponseStatus: responseStatus(p.Params.Get(ical.ParamParticipationStatus)),
			Optional:       isOptionalRole(p.Params.Get(ical.ParamRole)),
			Resource:       isResource(p.Params.Get(ical.ParamCalendarUserType)),
			Self:           email != "" && strings.EqualFold(email, owner),
		})
	}

	return e, nil
}

// eventUID returns the UID of ev. Events without one get a name-based UUID
// derived from their start, summary and organizer, so every read of the same
// export yields the same id.
func eventUID(ev ical.Event) string {
	if uid := propText(ev, ical.PropUID); uid != "" {
		return uid
	}

	var name strings.Builder
	for _, prop := range []string{ical.PropDateTimeStart, ical.PropSummary, ical.PropOrganizer} {
		if p := ev.Props.Get(prop); p != nil {
			name.WriteString(p.Value)
		}
		name.WriteByte('\n')
	}
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(name.String())).String()
}

func propText(ev ical.Event, name string) string {
	s, err := ev.Props.Text(name)
	if err != nil {
		return ""
	}
	return s
}

func eventTime(t time.Time, allDay bool) *models.EventTime {
	if allDay {
		return &models.EventTime{Date: t.Format(time.DateOnly)}
	}
	return &models.EventTime{DateTime: t}
}

// startOf returns the instant an event starts, all-day events at midnight UTC.
func startOf(e *models.RawEvent) time.Time {
	if e.Start == nil {
		return time.Time{}
	}
	if e.Start.HasDateTime() {
		return e.Start.DateTime
	}
	t, _ := time.Parse(time.DateOnly, e.Start.Date)
	return t
}

func endOf(e *models.RawEvent) time.Time {
	if e.End == nil {
		return startOf(e)
	}
	if e.End.HasDateTime() {
		return e.End.DateTime
	}
	t, _ := time.Parse(time.DateOnly, e.End.Date)
	return t
}

func overlaps(e *models.RawEvent, window models.TimeRange) bool {
	return !startOf(e).After(window.To) && !endOf(e).Before(window.From)
}

func instanceKey(uid string, start time.Time) string {
	return uid + "_" + start.UTC().Format(instanceIDLayout)
}

// dateTimes parses date-time properties that may hold comma-separated lists.
func dateTimes(props []ical.Prop, loc *time.Location) ([]time.Time, error) {
	var out []time.Time
	for _, p := range props {
		for _, v := range strings.Split(p.Value, ",") {
			single := ical.NewProp(p.Name)
			single.Params = p.Params
			single.Value = strings.TrimSpace(v)
			t, err := single.DateTime(loc)
			if err != nil {
				return nil, err
			}
			out = append(out, t)
		}
	}
	return out, nil
}

func mailto(v string) string {
	v = strings.TrimSpace(v)
	if len(v) >= 7 && strings.EqualFold(v[:7], "mailto:") {
		v = v[7:]
	}
	return v
}

func responseStatus(partstat string) string {
	switch strings.ToUpper(partstat) {
	case "ACCEPTED":
		return models.ResponseAccepted
	case "DECLINED":
		return models.ResponseDeclined
	case "TENTATIVE":
		return models.ResponseTentative
	default:
		return models.ResponseNeedsAction
	}
}

func isOptionalRole(role string) bool {
	switch strings.ToUpper(role) {
	case "OPT-PARTICIPANT", "NON-PARTICIPANT":
		return true
	}
	return false
}

func isResource(cutype string) bool {
	switch strings.ToUpper(cutype) {
	case "RESOURCE", "ROOM":
		return true
	}
	return false
}
