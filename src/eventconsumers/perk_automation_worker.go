package eventconsumers

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/trackerkit/perkwatch/src/eventmodels"
	"github.com/trackerkit/perkwatch/src/eventpubsub"
	"github.com/trackerkit/perkwatch/src/eventservices"
)

type inflightKey struct {
	SessionLabel string
	Perk         eventmodels.PerkKind
}

type pendingExecution struct {
	decision    *eventmodels.FireDecision
	session     *eventmodels.Session
	firedAt     time.Time
	deadline    time.Time
	potReserved bool
}

// PerkAutomationWorker is the scheduler loop: one tick per interval, every
// (session, perk) pair evaluated concurrently, at most one in-flight
// execution per pair.
type PerkAutomationWorker struct {
	wg            *sync.WaitGroup
	store         eventmodels.ConfigStore
	guardrails    *GuardrailRegistry
	potTracker    *PotCycleTracker
	tickInterval  time.Duration
	resultTimeout time.Duration

	mu          sync.Mutex
	pending     map[inflightKey]*pendingExecution
	byDecision  map[uuid.UUID]inflightKey
	knownLabels map[string]bool

	results chan eventmodels.ExecutionResult
}

func NewPerkAutomationWorker(wg *sync.WaitGroup, store eventmodels.ConfigStore, guardrails *GuardrailRegistry, potTracker *PotCycleTracker, tickInterval, resultTimeout time.Duration) *PerkAutomationWorker {
	return &PerkAutomationWorker{
		wg:            wg,
		store:         store,
		guardrails:    guardrails,
		potTracker:    potTracker,
		tickInterval:  tickInterval,
		resultTimeout: resultTimeout,
		pending:       make(map[inflightKey]*pendingExecution),
		byDecision:    make(map[uuid.UUID]inflightKey),
		knownLabels:   make(map[string]bool),
		results:       make(chan eventmodels.ExecutionResult, 64),
	}
}

func (w *PerkAutomationWorker) Start(ctx context.Context) {
	w.wg.Add(1)

	OnExecutionResult(func(result eventmodels.ExecutionResult) {
		select {
		case w.results <- result:
		case <-ctx.Done():
		}
	})

	timer := time.NewTicker(w.tickInterval)

	go func() {
		defer w.wg.Done()
		defer timer.Stop()

		for {
			select {
			case <-ctx.Done():
				log.Info("stopping PerkAutomationWorker consumer")
				return
			case result := <-w.results:
				w.handleResult(result)
			case <-timer.C:
				w.Tick(ctx)
			}
		}
	}()
}

// Tick runs one full evaluation pass. Exported so the scheduler command can
// run an immediate pass at startup without waiting for the first interval.
func (w *PerkAutomationWorker) Tick(ctx context.Context) {
	tracer := otel.GetTracerProvider().Tracer("eventconsumers:scheduler")
	ctx, span := tracer.Start(ctx, "SchedulerTick")
	defer span.End()

	now := time.Now().UTC()
	w.expireStalePending(now)

	config, err := w.store.LoadSessions()
	if err != nil {
		log.Errorf("PerkAutomationWorker.Tick: failed to load sessions: %v", err)
		return
	}

	w.syncRegistry(config.Sessions)

	sessions := make([]*eventmodels.Session, len(config.Sessions))
	copy(sessions, config.Sessions)
	sort.Slice(sessions, func(i, j int) bool { return sessions[i].Label < sessions[j].Label })

	span.SetAttributes(attribute.Int("sessions", len(sessions)))

	// A failure in one pair must never block the others: every pair gets its
	// own goroutine, joined before the tick returns. Executions themselves
	// stay pending across ticks.
	var evalWg sync.WaitGroup
	for _, session := range sessions {
		for _, perk := range session.EnabledPerks() {
			evalWg.Add(1)
			go func(session *eventmodels.Session, perk eventmodels.PerkKind) {
				defer evalWg.Done()
				w.evaluatePair(ctx, session, perk, now)
			}(session, perk)
		}
	}

	evalWg.Wait()
}

// syncRegistry refreshes guardrail entries from the freshly loaded configs
// and drops entries for sessions that no longer exist.
func (w *PerkAutomationWorker) syncRegistry(sessions []*eventmodels.Session) {
	current := make(map[string]bool, len(sessions))
	for _, session := range sessions {
		current[session.Label] = true
	}

	w.mu.Lock()
	var removed []string
	for label := range w.knownLabels {
		if !current[label] {
			removed = append(removed, label)
		}
	}
	w.knownLabels = current
	w.mu.Unlock()

	for _, label := range removed {
		w.guardrails.Unregister(label)
		w.discardPendingForSession(label)
	}

	w.guardrails.Seed(sessions)
}

func (w *PerkAutomationWorker) evaluatePair(ctx context.Context, session *eventmodels.Session, perk eventmodels.PerkKind, now time.Time) {
	tracer := otel.GetTracerProvider().Tracer("eventconsumers:scheduler")
	_, span := tracer.Start(ctx, "EvaluatePair")
	span.SetAttributes(attribute.String("session", session.Label), attribute.String("perk", string(perk)))
	defer span.End()

	key := inflightKey{SessionLabel: session.Label, Perk: perk}

	w.mu.Lock()
	if _, inflight := w.pending[key]; inflight {
		w.mu.Unlock()
		log.Debugf("PerkAutomationWorker.evaluatePair: %s/%s still awaiting executor result, coalescing", session.Label, perk)
		return
	}
	w.mu.Unlock()

	if blocked, owner := w.guardrails.CheckAndReserve(session.Label, session.Username, perk); blocked {
		event := eventmodels.NewAutomationEvent(eventmodels.OutcomeBlockedGuardrail, session, perk, now)
		event.BlockedBy = owner
		eventpubsub.PublishAutomationEvent("PerkAutomationWorker", event)
		return
	}

	cfg := session.PerkConfigs[perk]
	evaluation := eventservices.EvaluateTrigger(*cfg, now, session.Points)
	if !evaluation.ShouldFire {
		event := eventmodels.NewAutomationEvent(eventmodels.OutcomeWaiting, session, perk, now)
		event.Detail = evaluation.Reason
		eventpubsub.PublishAutomationEvent("PerkAutomationWorker", event)
		return
	}

	params := cfg.Params
	potReserved := false

	if perk == eventmodels.PerkVaultDonation {
		params.DonationPoints = session.VaultConfig.DonationAmount

		if session.VaultConfig.OncePerPot {
			admission, err := w.potTracker.Admit(ctx)
			if err != nil {
				log.Warnf("PerkAutomationWorker.evaluatePair: %v", err)
			}

			if !admission.Allowed {
				event := eventmodels.NewAutomationEvent(eventmodels.OutcomeDeniedPotCycle, session, perk, now)
				event.PotIndex = admission.PotIndex
				event.Detail = admission.Reason
				eventpubsub.PublishAutomationEvent("PerkAutomationWorker", event)
				return
			}

			potReserved = true
		}
	}

	decision := eventmodels.NewFireDecision(session, perk, params, now)

	w.mu.Lock()
	// re-check under the lock: another goroutine may have fired this pair
	// between the first check and now
	if _, inflight := w.pending[key]; inflight {
		w.mu.Unlock()
		if potReserved {
			w.potTracker.Release()
		}
		return
	}
	w.pending[key] = &pendingExecution{
		decision:    decision,
		session:     session,
		firedAt:     now,
		deadline:    now.Add(w.resultTimeout),
		potReserved: potReserved,
	}
	w.byDecision[decision.ID] = key
	w.mu.Unlock()

	event := eventmodels.NewAutomationEvent(eventmodels.OutcomeFired, session, perk, now)
	event.DecisionID = decision.ID.String()
	if perk == eventmodels.PerkVaultDonation {
		event.DonationPoints = params.DonationPoints
	}
	eventpubsub.PublishAutomationEvent("PerkAutomationWorker", event)

	EmitFireDecision(decision)
}

func (w *PerkAutomationWorker) handleResult(result eventmodels.ExecutionResult) {
	w.mu.Lock()
	key, ok := w.byDecision[result.DecisionID]
	if !ok {
		w.mu.Unlock()
		log.Warnf("PerkAutomationWorker.handleResult: no pending execution for decision %v", result.DecisionID)
		return
	}

	p := w.pending[key]
	delete(w.pending, key)
	delete(w.byDecision, result.DecisionID)
	w.mu.Unlock()

	if !result.Success {
		if p.potReserved {
			w.potTracker.Release()
		}

		// last_run_at stays untouched so the perk remains eligible next tick
		event := eventmodels.NewAutomationEvent(eventmodels.OutcomeExecutionFailed, p.session, key.Perk, time.Now().UTC())
		event.DecisionID = result.DecisionID.String()
		event.Detail = result.Detail
		eventpubsub.PublishAutomationEvent("PerkAutomationWorker", event)
		return
	}

	// the donation reached the community pot even if the session is gone, so
	// the pot state is recorded before the session lookup
	if key.Perk == eventmodels.PerkVaultDonation {
		w.potTracker.RecordDonation(p.decision.Params.DonationPoints)

		if err := w.store.RecordPotState(w.potTracker.State()); err != nil {
			log.Errorf("PerkAutomationWorker.handleResult: failed to persist pot state: %v", err)
		}
	}

	if err := w.store.RecordPerkRun(key.SessionLabel, key.Perk, p.firedAt); err != nil {
		// a session deleted mid-flight completes, but its result is discarded
		log.Infof("PerkAutomationWorker.handleResult: discarding result for %s/%s: %v", key.SessionLabel, key.Perk, err)
		return
	}

	log.Infof("PerkAutomationWorker.handleResult: %s/%s executed successfully", key.SessionLabel, key.Perk)
}

// expireStalePending reverts executions whose result never arrived, so a
// perk can not get permanently stuck in the fired state.
func (w *PerkAutomationWorker) expireStalePending(now time.Time) {
	w.mu.Lock()
	var expired []*pendingExecution
	for key, p := range w.pending {
		if now.After(p.deadline) {
			expired = append(expired, p)
			delete(w.pending, key)
			delete(w.byDecision, p.decision.ID)
		}
	}
	w.mu.Unlock()

	for _, p := range expired {
		if p.potReserved {
			w.potTracker.Release()
		}

		log.Warnf("PerkAutomationWorker.expireStalePending: %v for %s/%s", eventmodels.ErrExecutorTimeout, p.decision.SessionLabel, p.decision.Perk)

		event := eventmodels.NewAutomationEvent(eventmodels.OutcomeExecutionFailed, p.session, p.decision.Perk, now)
		event.DecisionID = p.decision.ID.String()
		event.Detail = eventmodels.ErrExecutorTimeout.Error()
		eventpubsub.PublishAutomationEvent("PerkAutomationWorker", event)
	}
}

func (w *PerkAutomationWorker) discardPendingForSession(sessionLabel string) {
	w.mu.Lock()
	var discarded []*pendingExecution
	for key, p := range w.pending {
		if key.SessionLabel == sessionLabel {
			discarded = append(discarded, p)
			delete(w.pending, key)
			delete(w.byDecision, p.decision.ID)
		}
	}
	w.mu.Unlock()

	for _, p := range discarded {
		if p.potReserved {
			w.potTracker.Release()
		}
	}
}
