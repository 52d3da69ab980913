package ranking

import (
	"fmt"
	"sort"
	"strings"

	"github.com/mcdev12/curator/go/internal/models"
)

// Action tags carried on panel buttons and echoed back by the gateway.
const (
	ActionConfirmDefault = "confirm_default"
	ActionEnterTweak     = "start_tweak"
	ActionConfirmTweak   = "confirm_tweak"
	ActionReset          = "redo_all"

	actionRankPrefix   = "rank:"
	actionRemovePrefix = "remove:"
	actionDeferPrefix  = "defer:"
)

// RankAction returns the action tag that ranks the given item next.
func RankAction(id string) string { return actionRankPrefix + id }

// RemoveAction returns the action tag that marks the given item removed.
func RemoveAction(id string) string { return actionRemovePrefix + id }

// DeferAction returns the action tag that defers the given item.
func DeferAction(id string) string { return actionDeferPrefix + id }

// PanelAction is one button on a panel.
type PanelAction struct {
	Label string `json:"label"`
	Tag   string `json:"tag"`
}

// Panel is the renderable description of the session's current view: display
// text plus an ordered button model. Composition is pure and deterministic so
// repeated renders of the same state produce an identical panel.
type Panel struct {
	Text    string        `json:"text"`
	Actions []PanelAction `json:"actions"`
}

// FinalizeTrigger distinguishes how a session reached Finalized, which only
// changes the terminal panel wording.
type FinalizeTrigger string

const (
	TriggerConfirmDefault FinalizeTrigger = "confirm_default"
	TriggerConfirmTweak   FinalizeTrigger = "confirm_tweak"
	TriggerDeadline       FinalizeTrigger = "deadline"
)

// ComposePanel maps session state to the panel for its mode. It never emits
// an action for an already-handled item, so double submission is impossible
// by construction rather than checked downstream.
func ComposePanel(items []models.Item, assignments map[string]models.Assignment, mode models.SessionMode, countdownRemaining int) Panel {
	switch mode {
	case models.ModeReviewing:
		return composeReviewPanel(items, countdownRemaining)
	case models.ModeTweaking:
		return composeTweakPanel(items, assignments)
	case models.ModeAwaitingTweakConfirm:
		return composeTweakConfirmPanel(items, assignments)
	default:
		return Panel{Text: "Session closed."}
	}
}

// ComposeFinalizedPanel builds the terminal panel. It carries no actions.
func ComposeFinalizedPanel(trigger FinalizeTrigger) Panel {
	switch trigger {
	case TriggerDeadline:
		return Panel{Text: "Ranking auto-confirmed and exported!"}
	case TriggerConfirmTweak:
		return Panel{Text: "Tweaked ranking confirmed and exported!"}
	default:
		return Panel{Text: "Ranking confirmed and exported!"}
	}
}

func composeReviewPanel(items []models.Item, countdownRemaining int) Panel {
	var b strings.Builder
	b.WriteString("Current ranking:\n")
	for i, it := range items {
		fmt.Fprintf(&b, "%d. %s\n", i+1, it.Title)
	}
	fmt.Fprintf(&b, "\nConfirm auto-sends in %ds...", countdownRemaining)

	return Panel{
		Text: b.String(),
		Actions: []PanelAction{
			{Label: "Confirm", Tag: ActionConfirmDefault},
			{Label: "Tweak Ranking", Tag: ActionEnterTweak},
		},
	}
}

func composeTweakPanel(items []models.Item, assignments map[string]models.Assignment) Panel {
	var b strings.Builder
	writeGroups(&b, items, assignments, "Ranked so far:", true)
	b.WriteString("\n(This panel resets after a period of inactivity)")

	nextRank := countKind(assignments, models.AssignmentRanked) + 1
	var actions []PanelAction
	for _, it := range items {
		if _, handled := assignments[it.ID]; handled {
			continue
		}
		actions = append(actions,
			PanelAction{Label: fmt.Sprintf("#%d %s", nextRank, it.Title), Tag: RankAction(it.ID)},
			PanelAction{Label: "Remove", Tag: RemoveAction(it.ID)},
			PanelAction{Label: "Defer", Tag: DeferAction(it.ID)},
		)
	}
	if len(assignments) > 0 {
		actions = append(actions, PanelAction{Label: "Do Over", Tag: ActionReset})
	}

	return Panel{Text: b.String(), Actions: actions}
}

func composeTweakConfirmPanel(items []models.Item, assignments map[string]models.Assignment) Panel {
	var b strings.Builder
	writeGroups(&b, items, assignments, "Final Ranking:", false)
	text := b.String()
	if text == "" {
		text = "Nothing was picked"
	}

	return Panel{
		Text: text,
		Actions: []PanelAction{
			{Label: "Confirm", Tag: ActionConfirmTweak},
			{Label: "Do Over", Tag: ActionReset},
		},
	}
}

// writeGroups renders the ranked / removed / deferred groups, and the
// still-unhandled list when includeUnhandled is set. Groups are separated by
// a blank line; the first written group starts at the top of the text.
func writeGroups(b *strings.Builder, items []models.Item, assignments map[string]models.Assignment, rankedHeader string, includeUnhandled bool) {
	ranked := itemsOfKind(items, assignments, models.AssignmentRanked)
	sort.Slice(ranked, func(i, j int) bool {
		return assignments[ranked[i].ID].Rank < assignments[ranked[j].ID].Rank
	})
	removed := itemsOfKind(items, assignments, models.AssignmentRemoved)
	deferred := itemsOfKind(items, assignments, models.AssignmentDeferred)

	if includeUnhandled || len(ranked) > 0 {
		b.WriteString(rankedHeader + "\n")
		for i, it := range ranked {
			fmt.Fprintf(b, "%d. %s\n", i+1, it.Title)
		}
	}
	if len(removed) > 0 {
		groupSep(b)
		b.WriteString("Marked for Removal:\n")
		for _, it := range removed {
			fmt.Fprintf(b, "- %s\n", it.Title)
		}
	}
	if len(deferred) > 0 {
		groupSep(b)
		b.WriteString("Deferred:\n")
		for _, it := range deferred {
			fmt.Fprintf(b, "- %s\n", it.Title)
		}
	}
	if includeUnhandled {
		var left []models.Item
		for _, it := range items {
			if _, handled := assignments[it.ID]; !handled {
				left = append(left, it)
			}
		}
		if len(left) > 0 {
			groupSep(b)
			b.WriteString("To be handled:\n")
			for _, it := range left {
				fmt.Fprintf(b, "- %s\n", it.Title)
			}
		}
	}
}

func groupSep(b *strings.Builder) {
	if b.Len() > 0 {
		b.WriteByte('\n')
	}
}

// itemsOfKind returns the items carrying the given assignment kind in
// mark order (assignment sequence).
func itemsOfKind(items []models.Item, assignments map[string]models.Assignment, kind models.AssignmentKind) []models.Item {
	var out []models.Item
	for _, it := range items {
		if a, ok := assignments[it.ID]; ok && a.Kind == kind {
			out = append(out, it)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return assignments[out[i].ID].Seq < assignments[out[j].ID].Seq
	})
	return out
}

func countKind(assignments map[string]models.Assignment, kind models.AssignmentKind) int {
	n := 0
	for _, a := range assignments {
		if a.Kind == kind {
			n++
		}
	}
	return n
}
