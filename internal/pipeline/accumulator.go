package pipeline

import "calscrape/internal/models"

type copyKey struct {
	calendar string
	id       string
	start    int64
}

// Accumulator collects relevant events across all fetch windows so the
// outputs are aggregated and written once per run.
type Accumulator struct {
	seen     map[copyKey]struct{}
	events   []*models.RawEvent
	fetched  int
	repeated int
}

// NewAccumulator returns an empty Accumulator.
func NewAccumulator() *Accumulator {
	return &Accumulator{seen: make(map[copyKey]struct{})}
}

// Add records events fetched from calendar and returns how many were kept.
// Irrelevant events are dropped, as is a copy already fetched from the same
// calendar by an adjacent window.
func (a *Accumulator) Add(calendar string, events []*models.RawEvent) int {
	a.fetched += len(events)
	kept := 0
	for _, e := range events {
		if !IsRelevant(e) {
			continue
		}
		key := copyKey{calendar: calendar, id: e.ID, start: e.Start.DateTime.UnixNano()}
		if _, ok := a.seen[key]; ok {
			a.repeated++
			continue
		}
		a.seen[key] = struct{}{}
		a.events = append(a.events, e)
		kept++
	}
	return kept
}

// Fetched is the number of raw events passed to Add.
func (a *Accumulator) Fetched() int { return a.fetched }

// Repeated is the number of relevant copies dropped as already seen.
func (a *Accumulator) Repeated() int { return a.repeated }

// Events returns the accumulated relevant events in arrival order.
func (a *Accumulator) Events() []*models.RawEvent {
	return append([]*models.RawEvent(nil), a.events...)
}

// Aggregate builds the outputs from everything accumulated so far.
func (a *Accumulator) Aggregate(users Resolver) Result {
	return Aggregate(a.events, users)
}
