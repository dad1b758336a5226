package eventconsumers

import (
	"context"
	"fmt"
	"sync"

	log "github.com/sirupsen/logrus"

	"github.com/trackerkit/perkwatch/src/eventmodels"
)

// VaultTotalFetcher supplies the community-wide vault running total. The
// upstream totals endpoint is an external collaborator.
type VaultTotalFetcher interface {
	FetchVaultTotal(ctx context.Context) (uint64, error)
}

// VaultTotalFunc adapts a plain function to the VaultTotalFetcher interface.
type VaultTotalFunc func(ctx context.Context) (uint64, error)

func (f VaultTotalFunc) FetchVaultTotal(ctx context.Context) (uint64, error) {
	return f(ctx)
}

type PotAdmission struct {
	Allowed  bool
	PotIndex uint64
	Reason   string
}

// PotCycleTracker enforces the once-per-pot donation constraint. The state is
// process-wide: every vault automation config across all sessions donates into
// the same community pot, so admission is decided centrally.
type PotCycleTracker struct {
	mu       sync.Mutex
	fetcher  VaultTotalFetcher
	state    eventmodels.PotTrackingState
	reserved bool
}

func NewPotCycleTracker(fetcher VaultTotalFetcher, state eventmodels.PotTrackingState) *PotCycleTracker {
	return &PotCycleTracker{
		fetcher: fetcher,
		state:   state,
	}
}

// Admit decides whether one more donation may go into the current pot, and
// reserves the pot for the caller when it allows. The reservation holds until
// RecordDonation confirms the donation or Release reverts it, so two
// evaluations racing within one tick can never both be admitted. When the
// upstream total cannot be fetched the decision fails closed: deny rather
// than assume pot index 0 and risk re-donating into an already satisfied pot.
func (t *PotCycleTracker) Admit(ctx context.Context) (PotAdmission, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	fetched, err := t.fetcher.FetchVaultTotal(ctx)
	if err != nil {
		return PotAdmission{
				Allowed:  false,
				PotIndex: t.state.CurrentPotIndex,
				Reason:   "vault total unavailable",
			}, fmt.Errorf("PotCycleTracker.Admit: failed to fetch vault total: %w: %v",
				eventmodels.ErrTrackingUnavailable, err)
	}

	// The fetched total can lag behind donations this process just recorded,
	// so the tracked total never moves backwards.
	if fetched > t.state.RunningTotal {
		t.state.RunningTotal = fetched
	}

	t.advanceLocked()

	if t.state.DonatedInPot {
		return PotAdmission{
			Allowed:  false,
			PotIndex: t.state.CurrentPotIndex,
			Reason:   fmt.Sprintf("pot %d: %v", t.state.CurrentPotIndex, eventmodels.ErrPotCycleExhausted),
		}, nil
	}

	if t.reserved {
		return PotAdmission{
			Allowed:  false,
			PotIndex: t.state.CurrentPotIndex,
			Reason:   fmt.Sprintf("pot %d: a donation is already in flight", t.state.CurrentPotIndex),
		}, nil
	}

	t.reserved = true
	return PotAdmission{Allowed: true, PotIndex: t.state.CurrentPotIndex}, nil
}

// Release reverts a reservation whose execution failed or timed out, so the
// pot becomes admittable again.
func (t *PotCycleTracker) Release() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.reserved = false
}

// RecordDonation adds a confirmed donation to the running total, consuming
// any outstanding admission reservation on the way. A donation
// that pushes the total across a pot boundary counts as the donation of the
// pot it lands in.
func (t *PotCycleTracker) RecordDonation(amount uint) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.reserved = false
	t.state.RunningTotal += uint64(amount)
	t.advanceLocked()
	t.state.DonatedInPot = true

	log.Infof("PotCycleTracker.RecordDonation: recorded %d points, running total %d, pot %d",
		amount, t.state.RunningTotal, t.state.CurrentPotIndex)
}

// State returns a snapshot for persistence.
func (t *PotCycleTracker) State() eventmodels.PotTrackingState {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.state
}

// advanceLocked moves the pot index forward when the running total has
// crossed into a new pot, resetting the donated flag. Must be called with the
// mutex held.
func (t *PotCycleTracker) advanceLocked() {
	index := t.state.RunningTotal / eventmodels.PotSizePoints
	if index > t.state.CurrentPotIndex {
		log.Infof("PotCycleTracker: pot advanced from %d to %d", t.state.CurrentPotIndex, index)
		t.state.CurrentPotIndex = index
		t.state.DonatedInPot = false
	}
}
