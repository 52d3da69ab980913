package ranking

import (
	"sort"

	"github.com/mcdev12/curator/go/internal/models"
)

// BuildOutcome converts committed assignments into the canonical outcome
// triple: ranking by rank ascending, removed and deferred each in the order
// the items were marked.
func BuildOutcome(items []models.Item, assignments map[string]models.Assignment) models.Outcome {
	ranking := itemsOfKind(items, assignments, models.AssignmentRanked)
	sort.Slice(ranking, func(i, j int) bool {
		return assignments[ranking[i].ID].Rank < assignments[ranking[j].ID].Rank
	})

	return models.Outcome{
		Ranking:  notNil(ranking),
		Removed:  notNil(itemsOfKind(items, assignments, models.AssignmentRemoved)),
		Deferred: notNil(itemsOfKind(items, assignments, models.AssignmentDeferred)),
	}
}

// notNil keeps empty outcome groups as empty arrays rather than null once
// the outcome is marshalled for the ledger.
func notNil(items []models.Item) []models.Item {
	if items == nil {
		return []models.Item{}
	}
	return items
}

// DefaultOutcome is the outcome of confirming the untouched source order:
// the full batch as the ranking, nothing removed or deferred.
func DefaultOutcome(items []models.Item) models.Outcome {
	ranking := make([]models.Item, len(items))
	copy(ranking, items)
	return models.Outcome{
		Ranking:  ranking,
		Removed:  []models.Item{},
		Deferred: []models.Item{},
	}
}
