// Package timerange splits an overall interval into bounded fetch windows.
package timerange

import (
	"calscrape/internal/models"
	"time"
)

// boundaryGap separates consecutive windows so an event starting exactly on a
// boundary is not fetched twice.
const boundaryGap = time.Second

// Split carves [from, to] into windows of windowDays calendar days, working
// backward from to. Windows are returned most recent first. The final window
// always starts at from and covers whatever remains, so it may be shorter
// (or, when windowDays spans the whole range, longer) than the others.
// A non-positive windowDays or from >= to yields the single window {from, to}.
func Split(from, to time.Time, windowDays int) []models.TimeRange {
	if windowDays <= 0 {
		return []models.TimeRange{{From: from, To: to}}
	}

	var ranges []models.TimeRange
	curTo := to
	for {
		curFrom := curTo.AddDate(0, 0, -windowDays)
		if !curFrom.After(from) {
			break
		}
		ranges = append(ranges, models.TimeRange{From: curFrom, To: curTo})
		curTo = curFrom.Add(-boundaryGap)
	}

	return append(ranges, models.TimeRange{From: from, To: curTo})
}
