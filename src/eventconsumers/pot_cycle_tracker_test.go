package eventconsumers

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/trackerkit/perkwatch/src/eventmodels"
)

func staticVaultTotal(total uint64) VaultTotalFunc {
	return func(ctx context.Context) (uint64, error) {
		return total, nil
	}
}

func Test_PotCycleTracker_Admit(t *testing.T) {
	ctx := context.Background()

	t.Run("allows the first donation of a pot", func(t *testing.T) {
		// arrange
		tracker := NewPotCycleTracker(staticVaultTotal(5_000_000), eventmodels.PotTrackingState{})

		// act
		admission, err := tracker.Admit(ctx)

		// assert
		assert.Nil(t, err)
		assert.True(t, admission.Allowed)
		assert.Equal(t, uint64(0), admission.PotIndex)
	})

	t.Run("denies a second donation within the same pot", func(t *testing.T) {
		tracker := NewPotCycleTracker(staticVaultTotal(5_000_000), eventmodels.PotTrackingState{})

		admission, err := tracker.Admit(ctx)
		assert.Nil(t, err)
		assert.True(t, admission.Allowed)

		tracker.RecordDonation(2_000)

		admission, err = tracker.Admit(ctx)
		assert.Nil(t, err)
		assert.False(t, admission.Allowed)
		assert.Equal(t, uint64(0), admission.PotIndex)
	})

	t.Run("allows again once the community total crosses into the next pot", func(t *testing.T) {
		tracker := NewPotCycleTracker(staticVaultTotal(5_000_000), eventmodels.PotTrackingState{})
		tracker.RecordDonation(2_000)

		// the rest of the community fills the pot
		tracker.fetcher = staticVaultTotal(eventmodels.PotSizePoints + 1)

		admission, err := tracker.Admit(ctx)
		assert.Nil(t, err)
		assert.True(t, admission.Allowed)
		assert.Equal(t, uint64(1), admission.PotIndex)
	})

	t.Run("reserves the pot for an admitted donation still in flight", func(t *testing.T) {
		// arrange
		tracker := NewPotCycleTracker(staticVaultTotal(5_000_000), eventmodels.PotTrackingState{})

		// act: nothing is recorded between the two calls
		first, errFirst := tracker.Admit(ctx)
		second, errSecond := tracker.Admit(ctx)

		// assert
		assert.Nil(t, errFirst)
		assert.True(t, first.Allowed)
		assert.Nil(t, errSecond)
		assert.False(t, second.Allowed)
		assert.Contains(t, second.Reason, "in flight")
	})

	t.Run("releasing a reservation makes the pot admittable again", func(t *testing.T) {
		tracker := NewPotCycleTracker(staticVaultTotal(5_000_000), eventmodels.PotTrackingState{})

		admission, err := tracker.Admit(ctx)
		assert.Nil(t, err)
		assert.True(t, admission.Allowed)

		tracker.Release()

		admission, err = tracker.Admit(ctx)
		assert.Nil(t, err)
		assert.True(t, admission.Allowed)
	})

	t.Run("fails closed when the vault total is unavailable", func(t *testing.T) {
		tracker := NewPotCycleTracker(VaultTotalFunc(func(ctx context.Context) (uint64, error) {
			return 0, fmt.Errorf("totals endpoint unreachable")
		}), eventmodels.PotTrackingState{})

		admission, err := tracker.Admit(ctx)

		assert.ErrorIs(t, err, eventmodels.ErrTrackingUnavailable)
		assert.False(t, admission.Allowed)
	})
}

func Test_PotCycleTracker_RecordDonation(t *testing.T) {
	ctx := context.Background()

	t.Run("a donation crossing the pot boundary counts against the new pot", func(t *testing.T) {
		// arrange: 19,999,000 tracked, 2,000 point donation crosses into pot 1
		tracker := NewPotCycleTracker(staticVaultTotal(19_999_000), eventmodels.PotTrackingState{})

		admission, err := tracker.Admit(ctx)
		assert.Nil(t, err)
		assert.True(t, admission.Allowed)
		assert.Equal(t, uint64(0), admission.PotIndex)

		// act
		tracker.RecordDonation(2_000)

		// assert: total is now 20,001,000, pot 1, already donated
		state := tracker.State()
		assert.Equal(t, uint64(20_001_000), state.RunningTotal)
		assert.Equal(t, uint64(1), state.CurrentPotIndex)
		assert.True(t, state.DonatedInPot)

		admission, err = tracker.Admit(ctx)
		assert.Nil(t, err)
		assert.False(t, admission.Allowed)
		assert.Equal(t, uint64(1), admission.PotIndex)
	})

	t.Run("a stale fetched total never regresses the tracked total", func(t *testing.T) {
		tracker := NewPotCycleTracker(staticVaultTotal(19_999_000), eventmodels.PotTrackingState{})
		_, err := tracker.Admit(ctx)
		assert.Nil(t, err)

		tracker.RecordDonation(2_000)

		// fetcher still reports the pre-donation total
		_, err = tracker.Admit(ctx)
		assert.Nil(t, err)
		assert.Equal(t, uint64(20_001_000), tracker.State().RunningTotal)
	})
}
