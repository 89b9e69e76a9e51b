package pipeline

import (
	"calscrape/internal/models"
	"sort"
)

// group is the set of raw copies judged to be one logical meeting.
type group struct {
	id     string
	events []*models.RawEvent
}

// Deduplicate merges raw copies of the same meeting into one record each.
//
// Copies are first grouped by event id. Id groups whose representative (first
// copy) shares a signature, start date plus summary, are then folded together
// by mergeIntoFirstSeen. Each surviving group yields one event: a lone copy
// passes through unchanged, otherwise mergeCopies builds the record.
// Output order follows the first appearance of each surviving id.
func Deduplicate(events []*models.RawEvent) []*models.RawEvent {
	groups := groupByID(events)
	groups = mergeIntoFirstSeen(groups)

	unique := make([]*models.RawEvent, 0, len(groups))
	for _, g := range groups {
		sortMostRecentFirst(g.events)
		if len(g.events) == 1 {
			unique = append(unique, g.events[0])
			continue
		}
		unique = append(unique, mergeCopies(g.events))
	}
	return unique
}

func groupByID(events []*models.RawEvent) []*group {
	var groups []*group
	byID := make(map[string]*group)
	for _, e := range events {
		g, ok := byID[e.ID]
		if !ok {
			g = &group{id: e.ID}
			byID[e.ID] = g
			groups = append(groups, g)
		}
		g.events = append(g.events, e)
	}
	return groups
}

func signature(e *models.RawEvent) string {
	return e.Start.StartDate() + e.Summary
}

// mergeIntoFirstSeen is the cross-id merge rule: among id groups sharing a
// signature, the group whose id appeared first in the input is the target.
// Every later group's copies are appended to it, in order, and the later
// group is dropped.
func mergeIntoFirstSeen(groups []*group) []*group {
	targets := make(map[string]*group)
	kept := make([]*group, 0, len(groups))
	for _, g := range groups {
		sig := signature(g.events[0])
		if target, ok := targets[sig]; ok {
			target.events = append(target.events, g.events...)
			continue
		}
		targets[sig] = g
		kept = append(kept, g)
	}
	return kept
}

// sortMostRecentFirst orders copies by last modification, newest first.
// Ties keep their input order.
func sortMostRecentFirst(events []*models.RawEvent) {
	sort.SliceStable(events, func(i, j int) bool {
		return events[i].LastModified().After(events[j].LastModified())
	})
}

// mergeCopies builds one record from copies sorted newest first. Fields come
// from the oldest copy; attendees are the union over all copies, first
// occurrence per email winning.
func mergeCopies(events []*models.RawEvent) *models.RawEvent {
	merged := *events[len(events)-1]

	seen := make(map[string]struct{})
	var attendees []models.Attendee
	for _, e := range events {
		for _, a := range e.Attendees {
			if _, ok := seen[a.Email]; ok {
				continue
			}
			seen[a.Email] = struct{}{}
			attendees = append(attendees, a)
		}
	}
	merged.Attendees = attendees

	return &merged
}
