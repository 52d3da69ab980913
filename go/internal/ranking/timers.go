package ranking

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

// TimerKind identifies one of the three timers a session can own.
type TimerKind string

const (
	// TimerCountdown is the repeating Reviewing-mode tick that refreshes the
	// remaining-time display.
	TimerCountdown TimerKind = "countdown"
	// TimerDeadline is the one-shot Reviewing-mode timer that forces
	// confirmation of the default order.
	TimerDeadline TimerKind = "deadline"
	// TimerInactivity is the one-shot timer that reverts an unfinished tweak
	// session back to Reviewing.
	TimerInactivity TimerKind = "inactivity"
)

// Clock is the interface we use for time operations.
// In production, use clockwork.NewRealClock(). In tests, a FakeClock.
type Clock interface {
	Now() time.Time
	NewTimer(d time.Duration) clockwork.Timer
	NewTicker(d time.Duration) clockwork.Ticker
}

// FireFunc is invoked (on its own goroutine) when a timer fires. gen is the
// session generation captured when the timer was armed; the receiver must
// compare it against the live generation under the session lock and discard
// the fire on mismatch. Cancellation is best-effort, so this check is the
// correctness backstop, not an optimization.
type FireFunc func(conversation string, kind TimerKind, gen uint64)

type timerKey struct {
	conversation string
	kind         TimerKind
}

type armedTimer struct {
	gen    uint64
	stop   chan struct{}
	timer  clockwork.Timer
	ticker clockwork.Ticker
}

// TimerManager owns every live timer across sessions, guaranteeing at most
// one timer per kind per conversation. Arming a kind replaces any existing
// timer of that kind.
type TimerManager struct {
	clock Clock
	fire  FireFunc

	mu     sync.Mutex
	active map[timerKey]*armedTimer
}

// NewTimerManager creates a timer manager dispatching fires to fn.
func NewTimerManager(clock Clock, fn FireFunc) *TimerManager {
	return &TimerManager{
		clock:  clock,
		fire:   fn,
		active: make(map[timerKey]*armedTimer),
	}
}

// ArmOnce schedules a one-shot timer of the given kind, first cancelling any
// existing timer of that kind for the conversation.
func (tm *TimerManager) ArmOnce(conversation string, kind TimerKind, gen uint64, d time.Duration) {
	key := timerKey{conversation: conversation, kind: kind}
	timer := tm.clock.NewTimer(d)
	at := &armedTimer{gen: gen, stop: make(chan struct{}), timer: timer}
	tm.install(key, at)

	go func() {
		select {
		case <-timer.Chan():
			// A cancel that landed before the fire wins; see stopped().
			if at.stopped() {
				return
			}
			tm.remove(key, at)
			tm.fire(conversation, kind, at.gen)
		case <-at.stop:
			stopAndDrainTimer(timer)
		}
	}()

	log.Debug().
		Str("conversation", conversation).
		Str("kind", string(kind)).
		Uint64("generation", gen).
		Dur("duration", d).
		Msg("armed one-shot timer")
}

// ArmRepeating schedules a repeating timer of the given kind at a fixed
// cadence, replacing any existing timer of that kind. Every tick dispatches a
// fire tagged with the same captured generation.
func (tm *TimerManager) ArmRepeating(conversation string, kind TimerKind, gen uint64, interval time.Duration) {
	key := timerKey{conversation: conversation, kind: kind}
	ticker := tm.clock.NewTicker(interval)
	at := &armedTimer{gen: gen, stop: make(chan struct{}), ticker: ticker}
	tm.install(key, at)

	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.Chan():
				if at.stopped() {
					return
				}
				tm.fire(conversation, kind, at.gen)
			case <-at.stop:
				return
			}
		}
	}()

	log.Debug().
		Str("conversation", conversation).
		Str("kind", string(kind)).
		Uint64("generation", gen).
		Dur("interval", interval).
		Msg("armed repeating timer")
}

// Cancel requests removal of the current timer of the given kind. Best
// effort: a fire already dispatched will still reach FireFunc and must be
// discarded there via the generation check.
func (tm *TimerManager) Cancel(conversation string, kind TimerKind) {
	tm.mu.Lock()
	defer tm.mu.Unlock()
	tm.cancelLocked(timerKey{conversation: conversation, kind: kind})
}

// CancelAll clears every timer kind for a conversation.
func (tm *TimerManager) CancelAll(conversation string) {
	tm.mu.Lock()
	defer tm.mu.Unlock()
	for _, kind := range []TimerKind{TimerCountdown, TimerDeadline, TimerInactivity} {
		tm.cancelLocked(timerKey{conversation: conversation, kind: kind})
	}
}

// Shutdown cancels every live timer across all conversations.
func (tm *TimerManager) Shutdown() {
	tm.mu.Lock()
	defer tm.mu.Unlock()
	for key := range tm.active {
		tm.cancelLocked(key)
		log.Debug().
			Str("conversation", key.conversation).
			Str("kind", string(key.kind)).
			Msg("cancelled timer on shutdown")
	}
}

// Armed returns the timer kinds currently live for a conversation.
func (tm *TimerManager) Armed(conversation string) []TimerKind {
	tm.mu.Lock()
	defer tm.mu.Unlock()
	var kinds []TimerKind
	for _, kind := range []TimerKind{TimerCountdown, TimerDeadline, TimerInactivity} {
		if _, ok := tm.active[timerKey{conversation: conversation, kind: kind}]; ok {
			kinds = append(kinds, kind)
		}
	}
	return kinds
}

// install atomically replaces the entry for key, cancelling any existing
// timer of that kind. This prevents a window where two timers of the same
// kind could be live between Stop() and delete().
func (tm *TimerManager) install(key timerKey, at *armedTimer) {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	if _, exists := tm.active[key]; exists {
		tm.cancelLocked(key)
		log.Debug().
			Str("conversation", key.conversation).
			Str("kind", string(key.kind)).
			Msg("replaced existing timer")
	}

	tm.active[key] = at
}

func (tm *TimerManager) cancelLocked(key timerKey) {
	at, exists := tm.active[key]
	if !exists {
		return
	}
	close(at.stop)
	if at.timer != nil {
		stopAndDrainTimer(at.timer)
	}
	if at.ticker != nil {
		at.ticker.Stop()
	}
	delete(tm.active, key)
}

// remove deletes key only if it still maps to at, so a fired timer never
// evicts the replacement that was armed after it.
func (tm *TimerManager) remove(key timerKey, at *armedTimer) {
	tm.mu.Lock()
	defer tm.mu.Unlock()
	if current, exists := tm.active[key]; exists && current == at {
		delete(tm.active, key)
	}
}

// stopped reports whether this timer was cancelled. A fire that raced a
// cancel checks this before dispatching so a cancel that strictly preceded
// the fire is honored; a fire already past this point is caught by the
// generation check instead.
func (at *armedTimer) stopped() bool {
	select {
	case <-at.stop:
		return true
	default:
		return false
	}
}

// stopAndDrainTimer safely stops a timer and drains its channel to prevent
// goroutine leaks, following the pattern in the time.Timer.Stop docs.
func stopAndDrainTimer(timer clockwork.Timer) {
	if !timer.Stop() {
		select {
		case <-timer.Chan():
		default:
		}
	}
}
