package ranking

import (
	"sync"

	"github.com/mcdev12/curator/go/internal/models"
)

// Session is the per-conversation unit of state for the ranking workflow.
// All mutation happens under mu; button events and timer fires alike must
// acquire it before touching any field (single-writer discipline).
type Session struct {
	mu sync.Mutex

	Conversation string
	Items        []models.Item
	Assignments  map[string]models.Assignment
	Mode         models.SessionMode

	// PanelRef is the handle of the single outstanding rendered message for
	// this session. A new render replaces, never appends.
	PanelRef string

	// CountdownRemaining is meaningful only in Reviewing.
	CountdownRemaining int

	// Generation tags every timer armed during the current mode epoch. A
	// fired timer whose captured generation no longer matches is stale and
	// must discard itself.
	Generation uint64

	// handledSeq numbers assignments in the order items were handled.
	handledSeq int
}

func newSession(conversation string, items []models.Item, countdownSec int) *Session {
	return &Session{
		Conversation:       conversation,
		Items:              items,
		Assignments:        make(map[string]models.Assignment),
		Mode:               models.ModeReviewing,
		CountdownRemaining: countdownSec,
	}
}

// bumpGeneration opens a new mode epoch, invalidating every timer armed in
// the previous one.
func (s *Session) bumpGeneration() {
	s.Generation++
}

// clearAssignments drops all in-progress tweak state.
func (s *Session) clearAssignments() {
	s.Assignments = make(map[string]models.Assignment)
	s.handledSeq = 0
}

// rankedCount returns the number of RANKED assignments.
func (s *Session) rankedCount() int {
	n := 0
	for _, a := range s.Assignments {
		if a.Kind == models.AssignmentRanked {
			n++
		}
	}
	return n
}

// allHandled reports whether every item has an assignment.
func (s *Session) allHandled() bool {
	return len(s.Assignments) == len(s.Items)
}

// hasItem reports whether id belongs to this session's batch.
func (s *Session) hasItem(id string) bool {
	for _, it := range s.Items {
		if it.ID == id {
			return true
		}
	}
	return false
}

// assign records an outcome for an unhandled item. Returns false if the item
// is unknown or already handled; the caller treats that as a silent no-op.
// Ranks are dense: the next rank is always rankedCount+1.
func (s *Session) assign(id string, kind models.AssignmentKind) bool {
	if !s.hasItem(id) {
		return false
	}
	if _, handled := s.Assignments[id]; handled {
		return false
	}

	s.handledSeq++
	a := models.Assignment{Kind: kind, Seq: s.handledSeq}
	if kind == models.AssignmentRanked {
		a.Rank = s.rankedCount() + 1
	}
	s.Assignments[id] = a
	return true
}
