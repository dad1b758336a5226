package eventservices

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"github.com/trackerkit/perkwatch/src/eventmodels"
)

func createEventFixture(outcome eventmodels.AutomationOutcome, perk eventmodels.PerkKind, donation uint, at time.Time) *eventmodels.AutomationEvent {
	return &eventmodels.AutomationEvent{
		ID:             uuid.New(),
		Time:           at,
		Outcome:        outcome,
		SessionLabel:   "S1",
		Username:       "alice",
		Perk:           perk,
		Points:         50_000,
		DonationPoints: donation,
	}
}

func Test_BuildDonationReport(t *testing.T) {
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	t.Run("empty journal produces an empty report", func(t *testing.T) {
		report, err := BuildDonationReport(nil)

		assert.Nil(t, err)
		assert.Equal(t, 0, report.FiredCount)
		assert.Equal(t, "no vault donations fired", report.String())
	})

	t.Run("sums donation amounts of fired vault donations only", func(t *testing.T) {
		// arrange: the 50,000 point session balance on each event must not
		// leak into the totals
		events := []*eventmodels.AutomationEvent{
			createEventFixture(eventmodels.OutcomeFired, eventmodels.PerkVaultDonation, 2_000, base.Add(2*time.Hour)),
			createEventFixture(eventmodels.OutcomeFired, eventmodels.PerkVaultDonation, 4_000, base),
			createEventFixture(eventmodels.OutcomeFired, eventmodels.PerkWedge, 0, base.Add(time.Hour)),
			createEventFixture(eventmodels.OutcomeDeniedPotCycle, eventmodels.PerkVaultDonation, 2_000, base.Add(3*time.Hour)),
		}

		// act
		report, err := BuildDonationReport(events)

		// assert
		assert.Nil(t, err)
		assert.Equal(t, 2, report.FiredCount)
		assert.Equal(t, 6_000.0, report.TotalPoints)
		assert.Equal(t, 3_000.0, report.MeanPoints)
		assert.Equal(t, base, report.FirstEventAt)
		assert.Equal(t, base.Add(2*time.Hour), report.LastEventAt)
	})
}

type stubGuardrailChecker struct {
	owner string
}

func (c stubGuardrailChecker) IsBlocked(sessionLabel, username string, perk eventmodels.PerkKind) (bool, string) {
	if c.owner != "" && c.owner != sessionLabel {
		return true, c.owner
	}

	return false, ""
}

func Test_RenderSessionsTable(t *testing.T) {
	// arrange
	session := eventmodels.NewSession("S2", "alice")
	session.Points = 1_234_567
	session.PerkConfigs[eventmodels.PerkWedge] = &eventmodels.PerkConfig{
		Enabled:        true,
		Trigger:        eventmodels.TriggerPoints,
		PointThreshold: 50_000,
	}
	config := &eventmodels.SessionsConfigYAML{
		Sessions:    []*eventmodels.Session{session},
		PotTracking: eventmodels.PotTrackingState{CurrentPotIndex: 2, RunningTotal: 45_000_000},
	}

	// act
	rendered := RenderSessionsTable(config, stubGuardrailChecker{owner: "S1"})

	// assert
	assert.Contains(t, rendered, "S2")
	assert.Contains(t, rendered, "alice")
	assert.Contains(t, rendered, "blocked by S1")
	assert.Contains(t, rendered, ">= 50000 points")
	assert.Contains(t, rendered, "Pot 2")
}
