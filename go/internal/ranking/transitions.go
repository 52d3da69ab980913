package ranking

import (
	"strings"
	"time"

	"github.com/mcdev12/curator/go/internal/models"
)

// effect is one side effect a transition asks the engine to carry out. The
// transition itself only mutates session state; all I/O and timer work goes
// through effects so the state change commits before anything external runs.
type effect interface{}

type armOnceEffect struct {
	kind TimerKind
	d    time.Duration
}

type armRepeatingEffect struct {
	kind     TimerKind
	interval time.Duration
}

type cancelEffect struct {
	kind TimerKind
}

type cancelAllEffect struct{}

type renderEffect struct {
	panel Panel
}

type finalizeEffect struct {
	outcome models.Outcome
	trigger FinalizeTrigger
}

type revertEffect struct {
	reason string
}

type eventKind int

const (
	evConfirmDefault eventKind = iota
	evEnterTweak
	evRank
	evRemove
	evDefer
	evReset
	evConfirmTweak
	evCountdownTick
	evDeadlineFired
	evInactivityFired
)

type event struct {
	kind   eventKind
	itemID string
}

// parseAction maps a gateway action tag to an engine event.
func parseAction(tag string) (event, bool) {
	switch tag {
	case ActionConfirmDefault:
		return event{kind: evConfirmDefault}, true
	case ActionEnterTweak:
		return event{kind: evEnterTweak}, true
	case ActionConfirmTweak:
		return event{kind: evConfirmTweak}, true
	case ActionReset:
		return event{kind: evReset}, true
	}
	if id, ok := strings.CutPrefix(tag, actionRankPrefix); ok && id != "" {
		return event{kind: evRank, itemID: id}, true
	}
	if id, ok := strings.CutPrefix(tag, actionRemovePrefix); ok && id != "" {
		return event{kind: evRemove, itemID: id}, true
	}
	if id, ok := strings.CutPrefix(tag, actionDeferPrefix); ok && id != "" {
		return event{kind: evDefer, itemID: id}, true
	}
	return event{}, false
}

func timerEvent(kind TimerKind) (event, bool) {
	switch kind {
	case TimerCountdown:
		return event{kind: evCountdownTick}, true
	case TimerDeadline:
		return event{kind: evDeadlineFired}, true
	case TimerInactivity:
		return event{kind: evInactivityFired}, true
	default:
		return event{}, false
	}
}

// transition is the state machine step: it consumes one event, mutates the
// session, and returns the effects to carry out. The caller holds the
// session lock. Any event whose guard fails returns nil and has mutated
// nothing.
func transition(sess *Session, ev event, cfg Config) []effect {
	switch ev.kind {
	case evConfirmDefault:
		if sess.Mode != models.ModeReviewing {
			return nil
		}
		return finalizeDefault(sess, TriggerConfirmDefault)

	case evEnterTweak:
		if sess.Mode != models.ModeReviewing {
			return nil
		}
		sess.Mode = models.ModeTweaking
		sess.bumpGeneration()
		sess.clearAssignments()
		return []effect{
			cancelEffect{kind: TimerCountdown},
			cancelEffect{kind: TimerDeadline},
			armOnceEffect{kind: TimerInactivity, d: cfg.Inactivity},
			renderEffect{panel: ComposePanel(sess.Items, sess.Assignments, sess.Mode, 0)},
		}

	case evRank, evRemove, evDefer:
		if sess.Mode != models.ModeTweaking {
			return nil
		}
		if !sess.assign(ev.itemID, assignmentKind(ev.kind)) {
			return nil
		}
		if sess.allHandled() {
			sess.Mode = models.ModeAwaitingTweakConfirm
			sess.bumpGeneration()
		}
		return []effect{
			armOnceEffect{kind: TimerInactivity, d: cfg.Inactivity},
			renderEffect{panel: ComposePanel(sess.Items, sess.Assignments, sess.Mode, 0)},
		}

	case evReset:
		if sess.Mode != models.ModeTweaking && sess.Mode != models.ModeAwaitingTweakConfirm {
			return nil
		}
		sess.Mode = models.ModeTweaking
		sess.bumpGeneration()
		sess.clearAssignments()
		return []effect{
			armOnceEffect{kind: TimerInactivity, d: cfg.Inactivity},
			renderEffect{panel: ComposePanel(sess.Items, sess.Assignments, sess.Mode, 0)},
		}

	case evConfirmTweak:
		if sess.Mode != models.ModeAwaitingTweakConfirm {
			return nil
		}
		outcome := BuildOutcome(sess.Items, sess.Assignments)
		sess.Mode = models.ModeFinalized
		sess.bumpGeneration()
		return []effect{
			cancelAllEffect{},
			finalizeEffect{outcome: outcome, trigger: TriggerConfirmTweak},
			renderEffect{panel: ComposeFinalizedPanel(TriggerConfirmTweak)},
		}

	case evCountdownTick:
		if sess.Mode != models.ModeReviewing {
			return nil
		}
		sess.CountdownRemaining--
		if sess.CountdownRemaining <= 0 {
			sess.CountdownRemaining = 0
			// The deadline timer fires on its own; the countdown has nothing
			// left to display.
			return []effect{
				cancelEffect{kind: TimerCountdown},
				renderEffect{panel: ComposePanel(sess.Items, sess.Assignments, sess.Mode, 0)},
			}
		}
		return []effect{
			renderEffect{panel: ComposePanel(sess.Items, sess.Assignments, sess.Mode, sess.CountdownRemaining)},
		}

	case evDeadlineFired:
		if sess.Mode != models.ModeReviewing {
			return nil
		}
		return finalizeDefault(sess, TriggerDeadline)

	case evInactivityFired:
		if sess.Mode != models.ModeTweaking && sess.Mode != models.ModeAwaitingTweakConfirm {
			return nil
		}
		sess.Mode = models.ModeReviewing
		sess.bumpGeneration()
		sess.clearAssignments()
		sess.CountdownRemaining = int(cfg.AutoConfirm / time.Second)
		effs := []effect{
			cancelEffect{kind: TimerInactivity},
			revertEffect{reason: "inactivity"},
		}
		return append(effs, enterReviewingEffects(sess, cfg)...)

	default:
		return nil
	}
}

// finalizeDefault commits the untouched source order. Assignments are filled
// in with the default ranks so a finalized session always carries a complete
// assignment map.
func finalizeDefault(sess *Session, trigger FinalizeTrigger) []effect {
	sess.clearAssignments()
	for _, it := range sess.Items {
		sess.assign(it.ID, models.AssignmentRanked)
	}
	sess.Mode = models.ModeFinalized
	sess.bumpGeneration()
	return []effect{
		cancelAllEffect{},
		finalizeEffect{outcome: DefaultOutcome(sess.Items), trigger: trigger},
		renderEffect{panel: ComposeFinalizedPanel(trigger)},
	}
}

// enterReviewingEffects arms the Reviewing timer pair and renders the review
// panel. The session must already be in Reviewing with CountdownRemaining at
// its full value.
func enterReviewingEffects(sess *Session, cfg Config) []effect {
	return []effect{
		armRepeatingEffect{kind: TimerCountdown, interval: cfg.CountdownTick},
		armOnceEffect{kind: TimerDeadline, d: cfg.AutoConfirm},
		renderEffect{panel: ComposePanel(sess.Items, sess.Assignments, sess.Mode, sess.CountdownRemaining)},
	}
}

func assignmentKind(kind eventKind) models.AssignmentKind {
	switch kind {
	case evRemove:
		return models.AssignmentRemoved
	case evDefer:
		return models.AssignmentDeferred
	default:
		return models.AssignmentRanked
	}
}
