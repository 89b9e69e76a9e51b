package pipeline

import (
	"calscrape/internal/directory"
	"calscrape/internal/models"
)

// Result holds the two output collections.
type Result struct {
	// All has one record per logical meeting, without an owning user.
	All []models.NormalizedEvent
	// ByUser buckets every relevant raw copy by its owner's canonical email.
	ByUser map[string][]models.NormalizedEvent
}

// Aggregate builds both collections from relevance-filtered events. The
// global collection is deduplicated, the per-user one is not, so a meeting
// appears once globally and once per tracked attendee copy.
func Aggregate(relevant []*models.RawEvent, users Resolver) Result {
	res := Result{
		All:    make([]models.NormalizedEvent, 0, len(relevant)),
		ByUser: make(map[string][]models.NormalizedEvent),
	}

	for _, e := range Deduplicate(relevant) {
		ne := Normalize(e, users)
		ne.User = ""
		res.All = append(res.All, ne)
	}

	for _, e := range relevant {
		ne := Normalize(e, users)
		if ne.User == "" || ne.User == directory.Unknown {
			continue
		}
		res.ByUser[ne.User] = append(res.ByUser[ne.User], ne)
	}

	return res
}
