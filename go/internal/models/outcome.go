package models

// Outcome is the final disjoint triple recorded for a session: the confirmed
// ranking (by rank ascending), the removed items (in mark order) and the
// deferred items (in mark order).
type Outcome struct {
	Ranking  []Item `json:"ranking"`
	Removed  []Item `json:"removed"`
	Deferred []Item `json:"deferred"`
}
