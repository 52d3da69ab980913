package ranking

import (
	"context"
	"fmt"
	"time"

	"github.com/mcdev12/curator/go/internal/models"
	"github.com/rs/zerolog/log"
)

// ItemSource supplies the ordered item batch for a new session.
type ItemSource interface {
	LoadItems(ctx context.Context) ([]models.Item, error)
}

// Gateway renders the single active panel for a conversation, replacing the
// previous one, and returns the handle of the rendered message.
type Gateway interface {
	Render(ctx context.Context, conversation string, panel Panel) (string, error)
}

// ResultSink durably records a finalized outcome for a conversation, and the
// session lifecycle events surrounding it.
type ResultSink interface {
	SaveOutcome(ctx context.Context, conversation string, outcome models.Outcome, trigger string) error
	RecordSessionStarted(ctx context.Context, conversation string, itemCount int) error
	RecordTweakReverted(ctx context.Context, conversation string, reason string) error
}

// Config holds the workflow durations.
type Config struct {
	// AutoConfirm is how long a Reviewing session waits before the default
	// order is force-confirmed.
	AutoConfirm time.Duration
	// Inactivity is how long a tweak session may sit idle before it reverts
	// to Reviewing.
	Inactivity time.Duration
	// CountdownTick is the cadence of the Reviewing countdown refresh.
	CountdownTick time.Duration
}

// DefaultConfig returns the stock workflow durations.
func DefaultConfig() Config {
	return Config{
		AutoConfirm:   30 * time.Second,
		Inactivity:    15 * time.Second,
		CountdownTick: 1 * time.Second,
	}
}

// Engine is the state machine driving every ranking session. External events
// (start, action tags from the gateway, timer fires) enter here; the engine
// mutates session state under the session lock and carries out the resulting
// effects through its collaborators. Sessions are independent and processed
// in parallel; within one session every mutation is serialized.
type Engine struct {
	source   ItemSource
	gateway  Gateway
	sink     ResultSink
	registry *Registry
	timers   *TimerManager
	cfg      Config
}

// NewEngine creates the ranking engine and its timer manager.
func NewEngine(source ItemSource, gateway Gateway, sink ResultSink, clock Clock, cfg Config) *Engine {
	e := &Engine{
		source:   source,
		gateway:  gateway,
		sink:     sink,
		registry: NewRegistry(),
		cfg:      cfg,
	}
	e.timers = NewTimerManager(clock, e.HandleTimerFired)
	return e
}

// Start begins a fresh session for a conversation, tearing down any previous
// one. A catalog failure is fatal to the start: no session is created and
// any existing session is left untouched.
func (e *Engine) Start(ctx context.Context, conversation string) error {
	items, err := e.source.LoadItems(ctx)
	if err != nil {
		log.Error().Err(err).Str("conversation", conversation).Msg("failed to load item batch")
		return fmt.Errorf("start session: %w", err)
	}

	// The new session seeds its generation strictly above every generation
	// this conversation has ever armed, whether the predecessor was replaced
	// here or already retired. Cancellation is best-effort, so a fire from an
	// old timer can still be in flight; a fresh generation floor guarantees
	// it fails the generation check instead of mutating the new session.
	floor := e.registry.RetiredGeneration(conversation)
	if prev, ok := e.registry.Get(conversation); ok {
		prev.mu.Lock()
		prev.bumpGeneration()
		if prev.Generation > floor {
			floor = prev.Generation
		}
		prev.mu.Unlock()
		e.timers.CancelAll(conversation)
	}

	sess := newSession(conversation, items, int(e.cfg.AutoConfirm/time.Second))
	sess.Generation = floor + 1
	e.registry.Put(conversation, sess)

	log.Info().
		Str("conversation", conversation).
		Int("items", len(items)).
		Msg("session started")

	if err := e.sink.RecordSessionStarted(ctx, conversation, len(items)); err != nil {
		log.Warn().Err(err).Str("conversation", conversation).Msg("failed to record session start")
	}

	sess.mu.Lock()
	var effs []effect
	if len(items) == 0 {
		// Nothing to rank; the session finalizes immediately with all three
		// outcome sets empty.
		sess.Mode = models.ModeFinalized
		sess.bumpGeneration()
		effs = []effect{
			finalizeEffect{outcome: DefaultOutcome(nil), trigger: TriggerConfirmDefault},
			renderEffect{panel: ComposeFinalizedPanel(TriggerConfirmDefault)},
		}
	} else {
		effs = enterReviewingEffects(sess, e.cfg)
	}
	e.apply(ctx, sess, effs)
	finalized := sess.Mode == models.ModeFinalized
	gen := sess.Generation
	sess.mu.Unlock()

	if finalized {
		e.registry.Retire(conversation, gen)
	}
	return nil
}

// HandleAction processes a user action tag reported by the gateway. Unknown
// tags, tags for conversations without a session, and tags whose mode guard
// fails are all silent no-ops.
func (e *Engine) HandleAction(ctx context.Context, conversation string, tag string) error {
	ev, ok := parseAction(tag)
	if !ok {
		log.Debug().Str("conversation", conversation).Str("tag", tag).Msg("unknown action tag")
		return nil
	}

	sess, ok := e.registry.Get(conversation)
	if !ok {
		return nil
	}

	sess.mu.Lock()
	effs := transition(sess, ev, e.cfg)
	e.apply(ctx, sess, effs)
	finalized := sess.Mode == models.ModeFinalized
	gen := sess.Generation
	sess.mu.Unlock()

	if finalized {
		e.registry.Retire(conversation, gen)
	}
	return nil
}

// HandleTimerFired is the timer manager's dispatch target. The captured
// generation is compared against the session's live generation under the
// session lock; a mismatch means the timer belongs to a previous mode epoch
// and the fire discards itself without mutating state or rendering.
func (e *Engine) HandleTimerFired(conversation string, kind TimerKind, gen uint64) {
	sess, ok := e.registry.Get(conversation)
	if !ok {
		return
	}

	sess.mu.Lock()
	if gen != sess.Generation {
		log.Debug().
			Str("conversation", conversation).
			Str("kind", string(kind)).
			Uint64("fired_generation", gen).
			Uint64("live_generation", sess.Generation).
			Msg("discarding stale timer fire")
		sess.mu.Unlock()
		return
	}

	ev, ok := timerEvent(kind)
	if !ok {
		sess.mu.Unlock()
		return
	}

	effs := transition(sess, ev, e.cfg)
	e.apply(context.Background(), sess, effs)
	finalized := sess.Mode == models.ModeFinalized
	liveGen := sess.Generation
	sess.mu.Unlock()

	if finalized {
		e.registry.Retire(conversation, liveGen)
	}
}

// Session returns the live session for a conversation, if any.
func (e *Engine) Session(conversation string) (*Session, bool) {
	return e.registry.Get(conversation)
}

// Timers exposes the engine's timer manager.
func (e *Engine) Timers() *TimerManager {
	return e.timers
}

// Shutdown cancels every live timer.
func (e *Engine) Shutdown() {
	e.timers.Shutdown()
}

// apply carries out the effects produced by a transition, in order. The
// session lock is held throughout. Gateway failures are logged and swallowed:
// the state transition has already committed and the next successful render
// shows the current state. Ledger failures are logged; finalize is one-way.
func (e *Engine) apply(ctx context.Context, sess *Session, effs []effect) {
	for _, ef := range effs {
		switch ef := ef.(type) {
		case armOnceEffect:
			e.timers.ArmOnce(sess.Conversation, ef.kind, sess.Generation, ef.d)
		case armRepeatingEffect:
			e.timers.ArmRepeating(sess.Conversation, ef.kind, sess.Generation, ef.interval)
		case cancelEffect:
			e.timers.Cancel(sess.Conversation, ef.kind)
		case cancelAllEffect:
			e.timers.CancelAll(sess.Conversation)
		case renderEffect:
			ref, err := e.gateway.Render(ctx, sess.Conversation, ef.panel)
			if err != nil {
				log.Warn().
					Err(err).
					Str("conversation", sess.Conversation).
					Msg("panel render failed")
				continue
			}
			sess.PanelRef = ref
		case revertEffect:
			if err := e.sink.RecordTweakReverted(ctx, sess.Conversation, ef.reason); err != nil {
				log.Warn().
					Err(err).
					Str("conversation", sess.Conversation).
					Msg("failed to record tweak revert")
			}
		case finalizeEffect:
			if err := e.sink.SaveOutcome(ctx, sess.Conversation, ef.outcome, string(ef.trigger)); err != nil {
				log.Error().
					Err(err).
					Str("conversation", sess.Conversation).
					Msg("failed to persist outcome")
			}
		}
	}
}
