package models

// AssignmentKind defines the outcome chosen for an item.
type AssignmentKind string

const (
	AssignmentRanked   AssignmentKind = "RANKED"
	AssignmentRemoved  AssignmentKind = "REMOVED"
	AssignmentDeferred AssignmentKind = "DEFERRED"
)

// Assignment records the outcome chosen for one item during a tweak session.
// Rank is meaningful only for RANKED assignments. Seq is the order in which
// the item was handled, so the removed and deferred groups keep their
// first-marked order.
type Assignment struct {
	Kind AssignmentKind `json:"kind"`
	Rank int            `json:"rank,omitempty"`
	Seq  int            `json:"seq"`
}
