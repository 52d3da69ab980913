package ranking

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/curator/go/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testConversation = "chat-42"

type fakeSource struct {
	items []models.Item
	err   error
}

func (f *fakeSource) LoadItems(ctx context.Context) ([]models.Item, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.items, nil
}

type fakeGateway struct {
	mu     sync.Mutex
	panels []Panel
	fail   bool
}

func (g *fakeGateway) Render(ctx context.Context, conversation string, panel Panel) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.fail {
		return "", errors.New("gateway down")
	}
	g.panels = append(g.panels, panel)
	return fmt.Sprintf("msg-%d", len(g.panels)), nil
}

func (g *fakeGateway) renderCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.panels)
}

func (g *fakeGateway) lastPanel() Panel {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.panels[len(g.panels)-1]
}

type savedOutcome struct {
	conversation string
	outcome      models.Outcome
	trigger      string
}

type fakeSink struct {
	mu      sync.Mutex
	saves   []savedOutcome
	starts  []string
	reverts []string
	err     error
}

func (s *fakeSink) SaveOutcome(ctx context.Context, conversation string, outcome models.Outcome, trigger string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saves = append(s.saves, savedOutcome{conversation: conversation, outcome: outcome, trigger: trigger})
	return s.err
}

func (s *fakeSink) RecordSessionStarted(ctx context.Context, conversation string, itemCount int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.starts = append(s.starts, conversation)
	return nil
}

func (s *fakeSink) RecordTweakReverted(ctx context.Context, conversation string, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reverts = append(s.reverts, reason)
	return nil
}

func (s *fakeSink) saveCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.saves)
}

func (s *fakeSink) lastSave() savedOutcome {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saves[len(s.saves)-1]
}

func testItems() []models.Item {
	return []models.Item{
		{ID: "x", Title: "X", SourceOrder: 1},
		{ID: "y", Title: "Y", SourceOrder: 2},
		{ID: "z", Title: "Z", SourceOrder: 3},
	}
}

func newTestEngine(items []models.Item) (*Engine, *fakeGateway, *fakeSink) {
	gw := &fakeGateway{}
	sink := &fakeSink{}
	e := NewEngine(&fakeSource{items: items}, gw, sink, clockwork.NewFakeClock(), DefaultConfig())
	return e, gw, sink
}

func titles(items []models.Item) []string {
	out := make([]string, len(items))
	for i, it := range items {
		out[i] = it.Title
	}
	return out
}

func TestConfirmDefaultPersistsSourceOrder(t *testing.T) {
	e, gw, sink := newTestEngine(testItems())
	ctx := context.Background()

	require.NoError(t, e.Start(ctx, testConversation))
	assert.ElementsMatch(t, []TimerKind{TimerCountdown, TimerDeadline}, e.Timers().Armed(testConversation))
	assert.Equal(t, []string{testConversation}, sink.starts)

	require.NoError(t, e.HandleAction(ctx, testConversation, ActionConfirmDefault))

	require.Equal(t, 1, sink.saveCount())
	save := sink.lastSave()
	assert.Equal(t, testConversation, save.conversation)
	assert.Equal(t, []string{"X", "Y", "Z"}, titles(save.outcome.Ranking))
	assert.Empty(t, save.outcome.Removed)
	assert.Empty(t, save.outcome.Deferred)
	assert.Equal(t, string(TriggerConfirmDefault), save.trigger)

	// Finalized sessions are discarded and leave no timers armed.
	assert.Empty(t, e.Timers().Armed(testConversation))
	_, ok := e.Session(testConversation)
	assert.False(t, ok)
	assert.Equal(t, "Ranking confirmed and exported!", gw.lastPanel().Text)
	assert.Empty(t, gw.lastPanel().Actions)
}

func TestTweakFlowPersistsAssignments(t *testing.T) {
	e, gw, sink := newTestEngine(testItems())
	ctx := context.Background()

	require.NoError(t, e.Start(ctx, testConversation))
	require.NoError(t, e.HandleAction(ctx, testConversation, ActionEnterTweak))

	// The tweak pair of timers is mutually exclusive with the review pair.
	assert.Equal(t, []TimerKind{TimerInactivity}, e.Timers().Armed(testConversation))

	require.NoError(t, e.HandleAction(ctx, testConversation, RankAction("z")))
	require.NoError(t, e.HandleAction(ctx, testConversation, RemoveAction("x")))
	require.NoError(t, e.HandleAction(ctx, testConversation, DeferAction("y")))

	sess, ok := e.Session(testConversation)
	require.True(t, ok)
	assert.Equal(t, models.ModeAwaitingTweakConfirm, sess.Mode)
	assert.Len(t, sess.Assignments, len(sess.Items))

	panel := gw.lastPanel()
	assert.Contains(t, panel.Text, "1. Z")
	assert.Contains(t, panel.Text, "Marked for Removal:\n- X")
	assert.Contains(t, panel.Text, "Deferred:\n- Y")

	require.NoError(t, e.HandleAction(ctx, testConversation, ActionConfirmTweak))

	require.Equal(t, 1, sink.saveCount())
	save := sink.lastSave()
	assert.Equal(t, []string{"Z"}, titles(save.outcome.Ranking))
	assert.Equal(t, []string{"X"}, titles(save.outcome.Removed))
	assert.Equal(t, []string{"Y"}, titles(save.outcome.Deferred))
	assert.Equal(t, string(TriggerConfirmTweak), save.trigger)
	assert.Empty(t, e.Timers().Armed(testConversation))
}

func TestInactivityRevertsToReviewing(t *testing.T) {
	e, _, sink := newTestEngine(testItems())
	ctx := context.Background()

	require.NoError(t, e.Start(ctx, testConversation))
	require.NoError(t, e.HandleAction(ctx, testConversation, ActionEnterTweak))
	require.NoError(t, e.HandleAction(ctx, testConversation, RankAction("x")))

	sess, ok := e.Session(testConversation)
	require.True(t, ok)
	sess.mu.Lock()
	gen := sess.Generation
	sess.mu.Unlock()

	e.HandleTimerFired(testConversation, TimerInactivity, gen)

	sess.mu.Lock()
	assert.Equal(t, models.ModeReviewing, sess.Mode)
	assert.Empty(t, sess.Assignments)
	assert.Equal(t, 30, sess.CountdownRemaining)
	sess.mu.Unlock()

	assert.ElementsMatch(t, []TimerKind{TimerCountdown, TimerDeadline}, e.Timers().Armed(testConversation))
	assert.Zero(t, sink.saveCount())
	assert.Equal(t, []string{"inactivity"}, sink.reverts)
}

func TestDeadlineForcesDefaultOrder(t *testing.T) {
	e, _, sink := newTestEngine(testItems())
	ctx := context.Background()

	require.NoError(t, e.Start(ctx, testConversation))

	sess, ok := e.Session(testConversation)
	require.True(t, ok)
	sess.mu.Lock()
	gen := sess.Generation
	sess.mu.Unlock()

	e.HandleTimerFired(testConversation, TimerDeadline, gen)

	require.Equal(t, 1, sink.saveCount())
	save := sink.lastSave()
	assert.Equal(t, []string{"X", "Y", "Z"}, titles(save.outcome.Ranking))
	assert.Equal(t, string(TriggerDeadline), save.trigger)
	assert.Empty(t, e.Timers().Armed(testConversation))
	_, ok = e.Session(testConversation)
	assert.False(t, ok)
}

func TestStaleTimerFireIsNoOp(t *testing.T) {
	e, gw, sink := newTestEngine(testItems())
	ctx := context.Background()

	require.NoError(t, e.Start(ctx, testConversation))
	sess, _ := e.Session(testConversation)
	sess.mu.Lock()
	staleGen := sess.Generation
	sess.mu.Unlock()

	// Entering tweak opens a new generation epoch, invalidating the
	// Reviewing deadline even if its fire is already in flight.
	require.NoError(t, e.HandleAction(ctx, testConversation, ActionEnterTweak))

	renders := gw.renderCount()
	e.HandleTimerFired(testConversation, TimerDeadline, staleGen)

	assert.Zero(t, sink.saveCount())
	assert.Equal(t, renders, gw.renderCount())
	sess.mu.Lock()
	assert.Equal(t, models.ModeTweaking, sess.Mode)
	sess.mu.Unlock()
}

func TestGuardFailuresAreSilent(t *testing.T) {
	e, gw, sink := newTestEngine(testItems())
	ctx := context.Background()

	require.NoError(t, e.Start(ctx, testConversation))

	// Wrong mode: tweak actions in Reviewing.
	renders := gw.renderCount()
	require.NoError(t, e.HandleAction(ctx, testConversation, RankAction("x")))
	require.NoError(t, e.HandleAction(ctx, testConversation, ActionConfirmTweak))
	require.NoError(t, e.HandleAction(ctx, testConversation, ActionReset))
	assert.Equal(t, renders, gw.renderCount())

	require.NoError(t, e.HandleAction(ctx, testConversation, ActionEnterTweak))
	require.NoError(t, e.HandleAction(ctx, testConversation, RankAction("x")))

	// Already handled item and unknown item are both no-ops.
	renders = gw.renderCount()
	require.NoError(t, e.HandleAction(ctx, testConversation, RankAction("x")))
	require.NoError(t, e.HandleAction(ctx, testConversation, RemoveAction("x")))
	require.NoError(t, e.HandleAction(ctx, testConversation, RankAction("nope")))
	assert.Equal(t, renders, gw.renderCount())

	// Unknown tags and unknown conversations.
	require.NoError(t, e.HandleAction(ctx, testConversation, "bogus"))
	require.NoError(t, e.HandleAction(ctx, "other-chat", ActionConfirmDefault))
	assert.Zero(t, sink.saveCount())
}

func TestRanksStayDense(t *testing.T) {
	e, _, _ := newTestEngine(testItems())
	ctx := context.Background()

	require.NoError(t, e.Start(ctx, testConversation))
	require.NoError(t, e.HandleAction(ctx, testConversation, RankAction("y")))
	require.NoError(t, e.HandleAction(ctx, testConversation, ActionEnterTweak))
	require.NoError(t, e.HandleAction(ctx, testConversation, RankAction("y")))
	require.NoError(t, e.HandleAction(ctx, testConversation, RemoveAction("x")))
	require.NoError(t, e.HandleAction(ctx, testConversation, RankAction("z")))

	sess, ok := e.Session(testConversation)
	require.True(t, ok)
	sess.mu.Lock()
	defer sess.mu.Unlock()

	var ranks []int
	for _, a := range sess.Assignments {
		if a.Kind == models.AssignmentRanked {
			ranks = append(ranks, a.Rank)
		}
	}
	assert.ElementsMatch(t, []int{1, 2}, ranks)
}

func TestResetClearsAssignments(t *testing.T) {
	e, gw, _ := newTestEngine(testItems())
	ctx := context.Background()

	require.NoError(t, e.Start(ctx, testConversation))
	require.NoError(t, e.HandleAction(ctx, testConversation, ActionEnterTweak))
	require.NoError(t, e.HandleAction(ctx, testConversation, RankAction("x")))
	require.NoError(t, e.HandleAction(ctx, testConversation, RankAction("y")))
	require.NoError(t, e.HandleAction(ctx, testConversation, RankAction("z")))

	sess, _ := e.Session(testConversation)
	sess.mu.Lock()
	assert.Equal(t, models.ModeAwaitingTweakConfirm, sess.Mode)
	sess.mu.Unlock()

	require.NoError(t, e.HandleAction(ctx, testConversation, ActionReset))

	sess.mu.Lock()
	assert.Equal(t, models.ModeTweaking, sess.Mode)
	assert.Empty(t, sess.Assignments)
	sess.mu.Unlock()
	assert.Equal(t, []TimerKind{TimerInactivity}, e.Timers().Armed(testConversation))

	// Rank numbering restarts from 1.
	require.NoError(t, e.HandleAction(ctx, testConversation, RankAction("z")))
	assert.Contains(t, gw.lastPanel().Text, "1. Z")
}

func TestCountdownTickDecrements(t *testing.T) {
	e, gw, _ := newTestEngine(testItems())
	ctx := context.Background()

	require.NoError(t, e.Start(ctx, testConversation))
	sess, _ := e.Session(testConversation)
	sess.mu.Lock()
	gen := sess.Generation
	sess.mu.Unlock()

	e.HandleTimerFired(testConversation, TimerCountdown, gen)
	e.HandleTimerFired(testConversation, TimerCountdown, gen)

	sess.mu.Lock()
	assert.Equal(t, 28, sess.CountdownRemaining)
	sess.mu.Unlock()
	assert.Contains(t, gw.lastPanel().Text, "Confirm auto-sends in 28s...")
}

func TestEmptyCatalogFinalizesImmediately(t *testing.T) {
	e, gw, sink := newTestEngine(nil)
	ctx := context.Background()

	require.NoError(t, e.Start(ctx, testConversation))

	require.Equal(t, 1, sink.saveCount())
	save := sink.lastSave()
	assert.Empty(t, save.outcome.Ranking)
	assert.Empty(t, save.outcome.Removed)
	assert.Empty(t, save.outcome.Deferred)
	assert.Empty(t, e.Timers().Armed(testConversation))
	_, ok := e.Session(testConversation)
	assert.False(t, ok)
	assert.Empty(t, gw.lastPanel().Actions)
}

func TestStartFailsWhenSourceUnavailable(t *testing.T) {
	gw := &fakeGateway{}
	sink := &fakeSink{}
	e := NewEngine(&fakeSource{err: errors.New("store offline")}, gw, sink, clockwork.NewFakeClock(), DefaultConfig())

	err := e.Start(context.Background(), testConversation)
	require.Error(t, err)
	_, ok := e.Session(testConversation)
	assert.False(t, ok)
	assert.Zero(t, gw.renderCount())
}

func TestRestartReplacesSession(t *testing.T) {
	e, _, _ := newTestEngine(testItems())
	ctx := context.Background()

	require.NoError(t, e.Start(ctx, testConversation))
	require.NoError(t, e.HandleAction(ctx, testConversation, ActionEnterTweak))
	require.NoError(t, e.HandleAction(ctx, testConversation, RankAction("x")))

	old, _ := e.Session(testConversation)

	require.NoError(t, e.Start(ctx, testConversation))

	sess, ok := e.Session(testConversation)
	require.True(t, ok)
	assert.NotSame(t, old, sess)
	sess.mu.Lock()
	assert.Equal(t, models.ModeReviewing, sess.Mode)
	assert.Empty(t, sess.Assignments)
	sess.mu.Unlock()
	assert.ElementsMatch(t, []TimerKind{TimerCountdown, TimerDeadline}, e.Timers().Armed(testConversation))
}

func TestStaleFireFromReplacedSessionIsDiscarded(t *testing.T) {
	e, _, sink := newTestEngine(testItems())
	ctx := context.Background()

	require.NoError(t, e.Start(ctx, testConversation))
	old, ok := e.Session(testConversation)
	require.True(t, ok)
	old.mu.Lock()
	oldGen := old.Generation
	old.mu.Unlock()

	require.NoError(t, e.Start(ctx, testConversation))

	// A deadline fire from the first session that slipped past CancelAll
	// must fail the generation check against the replacement session.
	e.HandleTimerFired(testConversation, TimerDeadline, oldGen)

	sess, ok := e.Session(testConversation)
	require.True(t, ok)
	sess.mu.Lock()
	assert.Equal(t, models.ModeReviewing, sess.Mode)
	assert.Greater(t, sess.Generation, oldGen)
	sess.mu.Unlock()
	assert.Zero(t, sink.saveCount())
}

func TestStaleFireAfterFinalizeAndRestartIsDiscarded(t *testing.T) {
	e, _, sink := newTestEngine(testItems())
	ctx := context.Background()

	require.NoError(t, e.Start(ctx, testConversation))
	old, ok := e.Session(testConversation)
	require.True(t, ok)
	old.mu.Lock()
	oldGen := old.Generation
	old.mu.Unlock()

	require.NoError(t, e.HandleAction(ctx, testConversation, ActionConfirmDefault))
	require.Equal(t, 1, sink.saveCount())

	// The retired generation keeps the new session's epoch monotonic even
	// though the finalized session is gone from the registry.
	require.NoError(t, e.Start(ctx, testConversation))

	e.HandleTimerFired(testConversation, TimerDeadline, oldGen)

	sess, ok := e.Session(testConversation)
	require.True(t, ok)
	sess.mu.Lock()
	assert.Equal(t, models.ModeReviewing, sess.Mode)
	sess.mu.Unlock()
	assert.Equal(t, 1, sink.saveCount())
}

func TestRenderFailureDoesNotBlockTransition(t *testing.T) {
	e, gw, sink := newTestEngine(testItems())
	gw.fail = true
	ctx := context.Background()

	require.NoError(t, e.Start(ctx, testConversation))
	sess, ok := e.Session(testConversation)
	require.True(t, ok)
	sess.mu.Lock()
	assert.Equal(t, models.ModeReviewing, sess.Mode)
	assert.Empty(t, sess.PanelRef)
	sess.mu.Unlock()

	// Finalize still commits even though the terminal render fails too.
	require.NoError(t, e.HandleAction(ctx, testConversation, ActionConfirmDefault))
	assert.Equal(t, 1, sink.saveCount())
}

func TestPersistFailureIsOneWay(t *testing.T) {
	e, _, sink := newTestEngine(testItems())
	sink.err = errors.New("ledger down")
	ctx := context.Background()

	require.NoError(t, e.Start(ctx, testConversation))
	require.NoError(t, e.HandleAction(ctx, testConversation, ActionConfirmDefault))

	// The session finalized regardless; it is gone and its timers with it.
	_, ok := e.Session(testConversation)
	assert.False(t, ok)
	assert.Empty(t, e.Timers().Armed(testConversation))
}
