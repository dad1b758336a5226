package eventconsumers

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/trackerkit/perkwatch/src/eventmodels"
	"github.com/trackerkit/perkwatch/src/eventpubsub"
)

type fakeConfigStore struct {
	mu       sync.Mutex
	config   *eventmodels.SessionsConfigYAML
	perkRuns map[string]time.Time
	potState *eventmodels.PotTrackingState
}

func newFakeConfigStore(sessions ...*eventmodels.Session) *fakeConfigStore {
	return &fakeConfigStore{
		config:   &eventmodels.SessionsConfigYAML{Sessions: sessions},
		perkRuns: make(map[string]time.Time),
	}
}

func (s *fakeConfigStore) LoadSessions() (*eventmodels.SessionsConfigYAML, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.config, nil
}

func (s *fakeConfigStore) RecordPerkRun(sessionLabel string, perk eventmodels.PerkKind, ranAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, session := range s.config.Sessions {
		if session.Label == sessionLabel {
			s.perkRuns[fmt.Sprintf("%s/%s", sessionLabel, perk)] = ranAt
			return nil
		}
	}

	return eventmodels.ErrSessionNotFound
}

func (s *fakeConfigStore) RecordPotState(state eventmodels.PotTrackingState) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.potState = &state
	return nil
}

func (s *fakeConfigStore) removeSession(sessionLabel string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var kept []*eventmodels.Session
	for _, session := range s.config.Sessions {
		if session.Label != sessionLabel {
			kept = append(kept, session)
		}
	}
	s.config.Sessions = kept
}

func (s *fakeConfigStore) recordedRun(sessionLabel string, perk eventmodels.PerkKind) (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ranAt, ok := s.perkRuns[fmt.Sprintf("%s/%s", sessionLabel, perk)]
	return ranAt, ok
}

func createWedgeSessionFixture(label, username string, points uint) *eventmodels.Session {
	session := eventmodels.NewSession(label, username)
	session.Points = points
	session.PerkConfigs[eventmodels.PerkWedge] = &eventmodels.PerkConfig{
		Enabled:        true,
		Trigger:        eventmodels.TriggerPoints,
		PointThreshold: 50_000,
		Params:         eventmodels.PerkParams{WedgeMethod: "points"},
	}

	return session
}

func createVaultSessionFixture(label, username string, points uint) *eventmodels.Session {
	session := eventmodels.NewSession(label, username)
	session.Points = points
	session.PerkConfigs[eventmodels.PerkVaultDonation] = &eventmodels.PerkConfig{
		Enabled:        true,
		Trigger:        eventmodels.TriggerPoints,
		PointThreshold: 10_000,
	}
	session.VaultConfig = &eventmodels.VaultAutomationConfig{
		FrequencyHours:    24,
		MinPointThreshold: 10_000,
		DonationAmount:    2_000,
		OncePerPot:        true,
	}

	return session
}

func newWorkerFixture(store eventmodels.ConfigStore, vaultTotal uint64) *PerkAutomationWorker {
	wg := sync.WaitGroup{}
	guardrails := NewGuardrailRegistry()
	potTracker := NewPotCycleTracker(staticVaultTotal(vaultTotal), eventmodels.PotTrackingState{})

	return NewPerkAutomationWorker(&wg, store, guardrails, potTracker, time.Minute, time.Minute)
}

func collectAutomationEvents(t *testing.T) chan *eventmodels.AutomationEvent {
	ch := make(chan *eventmodels.AutomationEvent, 32)
	err := eventpubsub.Subscribe(eventpubsub.AutomationEventTopic, func(event *eventmodels.AutomationEvent) {
		ch <- event
	})
	assert.Nil(t, err)

	return ch
}

func waitForEvent(t *testing.T, ch chan *eventmodels.AutomationEvent, outcome eventmodels.AutomationOutcome) *eventmodels.AutomationEvent {
	deadline := time.After(2 * time.Second)
	for {
		select {
		case event := <-ch:
			if event.Outcome == outcome {
				return event
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %v event", outcome)
			return nil
		}
	}
}

func Test_PerkAutomationWorker_Tick(t *testing.T) {
	ctx := context.Background()

	t.Run("fires an eligible perk and tracks it in flight", func(t *testing.T) {
		// arrange
		eventpubsub.Init()
		events := collectAutomationEvents(t)
		store := newFakeConfigStore(createWedgeSessionFixture("S1", "alice", 60_000))
		worker := newWorkerFixture(store, 0)

		// act
		worker.Tick(ctx)

		// assert
		fired := waitForEvent(t, events, eventmodels.OutcomeFired)
		assert.Equal(t, "S1", fired.SessionLabel)
		assert.Equal(t, eventmodels.PerkWedge, fired.Perk)

		worker.mu.Lock()
		assert.Len(t, worker.pending, 1)
		worker.mu.Unlock()
	})

	t.Run("publishes waiting when the trigger is not met", func(t *testing.T) {
		eventpubsub.Init()
		events := collectAutomationEvents(t)
		store := newFakeConfigStore(createWedgeSessionFixture("S1", "alice", 10_000))
		worker := newWorkerFixture(store, 0)

		worker.Tick(ctx)

		waiting := waitForEvent(t, events, eventmodels.OutcomeWaiting)
		assert.Contains(t, waiting.Detail, "threshold")

		worker.mu.Lock()
		assert.Empty(t, worker.pending)
		worker.mu.Unlock()
	})

	t.Run("blocks the losing session of a shared username", func(t *testing.T) {
		// arrange: S2 enables the same perk for the same username as S1
		eventpubsub.Init()
		events := collectAutomationEvents(t)
		store := newFakeConfigStore(
			createWedgeSessionFixture("S1", "alice", 60_000),
			createWedgeSessionFixture("S2", "alice", 60_000),
		)
		worker := newWorkerFixture(store, 0)

		// act
		worker.Tick(ctx)

		// assert: S1 fires, S2 is blocked naming S1
		blocked := waitForEvent(t, events, eventmodels.OutcomeBlockedGuardrail)
		assert.Equal(t, "S2", blocked.SessionLabel)
		assert.Equal(t, "S1", blocked.BlockedBy)

		worker.mu.Lock()
		assert.Len(t, worker.pending, 1)
		worker.mu.Unlock()
	})

	t.Run("coalesces while an execution is in flight", func(t *testing.T) {
		eventpubsub.Init()
		store := newFakeConfigStore(createWedgeSessionFixture("S1", "alice", 60_000))
		worker := newWorkerFixture(store, 0)

		worker.Tick(ctx)
		worker.Tick(ctx)

		worker.mu.Lock()
		assert.Len(t, worker.pending, 1)
		assert.Len(t, worker.byDecision, 1)
		worker.mu.Unlock()
	})

	t.Run("admits at most one vault donation per pot across usernames", func(t *testing.T) {
		// arrange: different usernames, so the guardrail alone cannot
		// serialize them
		eventpubsub.Init()
		events := collectAutomationEvents(t)
		store := newFakeConfigStore(
			createVaultSessionFixture("S1", "alice", 50_000),
			createVaultSessionFixture("S2", "bob", 50_000),
		)
		worker := newWorkerFixture(store, 5_000_000)

		// act
		worker.Tick(ctx)

		// assert: one fires carrying the donation amount, the other is denied
		// while the first is in flight
		var fired, denied *eventmodels.AutomationEvent
		deadline := time.After(2 * time.Second)
		for fired == nil || denied == nil {
			select {
			case event := <-events:
				switch event.Outcome {
				case eventmodels.OutcomeFired:
					fired = event
				case eventmodels.OutcomeDeniedPotCycle:
					denied = event
				}
			case <-deadline:
				t.Fatal("timed out waiting for fired and denied events")
			}
		}
		assert.Equal(t, uint(2_000), fired.DonationPoints)
		assert.Contains(t, denied.Detail, "in flight")

		worker.mu.Lock()
		assert.Len(t, worker.pending, 1)
		worker.mu.Unlock()
	})

	t.Run("denies a vault donation already made in the current pot", func(t *testing.T) {
		eventpubsub.Init()
		events := collectAutomationEvents(t)
		store := newFakeConfigStore(createVaultSessionFixture("S1", "alice", 50_000))
		worker := newWorkerFixture(store, 5_000_000)
		worker.potTracker.RecordDonation(2_000)

		worker.Tick(ctx)

		denied := waitForEvent(t, events, eventmodels.OutcomeDeniedPotCycle)
		assert.Equal(t, uint64(0), denied.PotIndex)

		worker.mu.Lock()
		assert.Empty(t, worker.pending)
		worker.mu.Unlock()
	})
}

func Test_PerkAutomationWorker_HandleResult(t *testing.T) {
	ctx := context.Background()

	t.Run("records last run only on success", func(t *testing.T) {
		// arrange
		eventpubsub.Init()
		store := newFakeConfigStore(createWedgeSessionFixture("S1", "alice", 60_000))
		worker := newWorkerFixture(store, 0)
		worker.Tick(ctx)

		worker.mu.Lock()
		decisionID := worker.pending[inflightKey{SessionLabel: "S1", Perk: eventmodels.PerkWedge}].decision.ID
		worker.mu.Unlock()

		// act
		worker.handleResult(eventmodels.ExecutionResult{DecisionID: decisionID, Success: true})

		// assert
		_, recorded := store.recordedRun("S1", eventmodels.PerkWedge)
		assert.True(t, recorded)

		worker.mu.Lock()
		assert.Empty(t, worker.pending)
		worker.mu.Unlock()
	})

	t.Run("keeps the perk eligible after a failed execution", func(t *testing.T) {
		eventpubsub.Init()
		events := collectAutomationEvents(t)
		store := newFakeConfigStore(createWedgeSessionFixture("S1", "alice", 60_000))
		worker := newWorkerFixture(store, 0)
		worker.Tick(ctx)

		worker.mu.Lock()
		decisionID := worker.pending[inflightKey{SessionLabel: "S1", Perk: eventmodels.PerkWedge}].decision.ID
		worker.mu.Unlock()

		worker.handleResult(eventmodels.ExecutionResult{DecisionID: decisionID, Success: false, Detail: "tracker rejected the purchase"})

		failed := waitForEvent(t, events, eventmodels.OutcomeExecutionFailed)
		assert.Contains(t, failed.Detail, "rejected")

		_, recorded := store.recordedRun("S1", eventmodels.PerkWedge)
		assert.False(t, recorded)

		// next tick evaluates the pair again
		worker.Tick(ctx)
		worker.mu.Lock()
		assert.Len(t, worker.pending, 1)
		worker.mu.Unlock()
	})

	t.Run("records the donation in the pot tracker after a vault success", func(t *testing.T) {
		eventpubsub.Init()
		store := newFakeConfigStore(createVaultSessionFixture("S1", "alice", 50_000))
		worker := newWorkerFixture(store, 19_999_000)
		worker.Tick(ctx)

		worker.mu.Lock()
		decisionID := worker.pending[inflightKey{SessionLabel: "S1", Perk: eventmodels.PerkVaultDonation}].decision.ID
		worker.mu.Unlock()

		worker.handleResult(eventmodels.ExecutionResult{DecisionID: decisionID, Success: true})

		state := worker.potTracker.State()
		assert.Equal(t, uint64(20_001_000), state.RunningTotal)
		assert.Equal(t, uint64(1), state.CurrentPotIndex)
		assert.True(t, state.DonatedInPot)

		assert.NotNil(t, store.potState)
		assert.Equal(t, uint64(1), store.potState.CurrentPotIndex)
	})

	t.Run("frees the pot when a vault execution fails", func(t *testing.T) {
		// arrange
		eventpubsub.Init()
		store := newFakeConfigStore(createVaultSessionFixture("S1", "alice", 50_000))
		worker := newWorkerFixture(store, 5_000_000)
		worker.Tick(ctx)

		worker.mu.Lock()
		decisionID := worker.pending[inflightKey{SessionLabel: "S1", Perk: eventmodels.PerkVaultDonation}].decision.ID
		worker.mu.Unlock()

		// act
		worker.handleResult(eventmodels.ExecutionResult{DecisionID: decisionID, Success: false, Detail: "donation rejected"})

		// assert: the pot was never marked donated and the next tick fires again
		state := worker.potTracker.State()
		assert.False(t, state.DonatedInPot)

		worker.Tick(ctx)
		worker.mu.Lock()
		assert.Len(t, worker.pending, 1)
		worker.mu.Unlock()
	})

	t.Run("discards the result of a session deleted mid flight", func(t *testing.T) {
		eventpubsub.Init()
		store := newFakeConfigStore(createWedgeSessionFixture("S1", "alice", 60_000))
		worker := newWorkerFixture(store, 0)
		worker.Tick(ctx)

		worker.mu.Lock()
		decisionID := worker.pending[inflightKey{SessionLabel: "S1", Perk: eventmodels.PerkWedge}].decision.ID
		worker.mu.Unlock()

		store.removeSession("S1")

		worker.handleResult(eventmodels.ExecutionResult{DecisionID: decisionID, Success: true})

		_, recorded := store.recordedRun("S1", eventmodels.PerkWedge)
		assert.False(t, recorded)
	})

	t.Run("ignores results for unknown decisions", func(t *testing.T) {
		eventpubsub.Init()
		store := newFakeConfigStore(createWedgeSessionFixture("S1", "alice", 60_000))
		worker := newWorkerFixture(store, 0)

		worker.handleResult(eventmodels.ExecutionResult{Success: true})

		_, recorded := store.recordedRun("S1", eventmodels.PerkWedge)
		assert.False(t, recorded)
	})
}

func Test_PerkAutomationWorker_ExpireStalePending(t *testing.T) {
	ctx := context.Background()

	// arrange: an execution that never reports back
	eventpubsub.Init()
	events := collectAutomationEvents(t)
	store := newFakeConfigStore(createWedgeSessionFixture("S1", "alice", 60_000))
	worker := newWorkerFixture(store, 0)
	worker.Tick(ctx)

	// act: the deadline passes
	worker.expireStalePending(time.Now().UTC().Add(2 * time.Minute))

	// assert: the pair reverts to idle without marking success
	failed := waitForEvent(t, events, eventmodels.OutcomeExecutionFailed)
	assert.Contains(t, failed.Detail, "did not report")

	_, recorded := store.recordedRun("S1", eventmodels.PerkWedge)
	assert.False(t, recorded)

	worker.mu.Lock()
	assert.Empty(t, worker.pending)
	worker.mu.Unlock()

	// next tick evaluates the pair again
	worker.Tick(ctx)
	worker.mu.Lock()
	assert.Len(t, worker.pending, 1)
	worker.mu.Unlock()
}

func Test_PerkAutomationWorker_SessionDeletedBetweenTicks(t *testing.T) {
	ctx := context.Background()

	// arrange
	eventpubsub.Init()
	store := newFakeConfigStore(
		createWedgeSessionFixture("S1", "alice", 60_000),
		createWedgeSessionFixture("S2", "alice", 60_000),
	)
	worker := newWorkerFixture(store, 0)
	worker.Tick(ctx)

	worker.mu.Lock()
	assert.Len(t, worker.pending, 1)
	worker.mu.Unlock()

	// act: the owning session is deleted, next tick releases its guardrail
	store.removeSession("S1")
	worker.Tick(ctx)

	// assert: S2 now owns the perk and fires
	worker.mu.Lock()
	_, s2Pending := worker.pending[inflightKey{SessionLabel: "S2", Perk: eventmodels.PerkWedge}]
	_, s1Pending := worker.pending[inflightKey{SessionLabel: "S1", Perk: eventmodels.PerkWedge}]
	worker.mu.Unlock()

	assert.True(t, s2Pending)
	assert.False(t, s1Pending)
}
