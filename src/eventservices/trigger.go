package eventservices

import (
	"fmt"
	"time"

	"github.com/trackerkit/perkwatch/src/eventmodels"
)

// EvaluateTrigger decides whether a perk automation is eligible to fire right
// now. It never mutates the config; updating last_run_at after a confirmed
// execution is the scheduler's job.
//
// For TriggerBoth, both sub-conditions must hold (AND). Each sub-condition is
// still reported independently in the returned evaluation.
func EvaluateTrigger(config eventmodels.PerkConfig, now time.Time, currentPoints uint) eventmodels.TriggerEvaluation {
	if !config.Enabled {
		return eventmodels.TriggerEvaluation{Reason: "disabled"}
	}

	var ev eventmodels.TriggerEvaluation

	if config.Trigger.UsesTime() {
		ev.TimeChecked = true
		// never-run perks are immediately eligible
		if config.LastRunAt == nil {
			ev.TimeSatisfied = true
		} else {
			ev.TimeSatisfied = now.Sub(*config.LastRunAt) >= config.Interval()
		}
	}

	if config.Trigger.UsesPoints() {
		ev.PointsChecked = true
		ev.PointsSatisfied = currentPoints >= config.PointThreshold
	}

	switch config.Trigger {
	case eventmodels.TriggerTime:
		ev.ShouldFire = ev.TimeSatisfied
	case eventmodels.TriggerPoints:
		ev.ShouldFire = ev.PointsSatisfied
	case eventmodels.TriggerBoth:
		ev.ShouldFire = ev.TimeSatisfied && ev.PointsSatisfied
	}

	if !ev.ShouldFire {
		ev.Reason = waitReason(config, ev, currentPoints)
	}

	return ev
}

func waitReason(config eventmodels.PerkConfig, ev eventmodels.TriggerEvaluation, currentPoints uint) string {
	if ev.TimeChecked && !ev.TimeSatisfied {
		return fmt.Sprintf("interval of %d days has not elapsed since last run", config.IntervalDays)
	}

	return fmt.Sprintf("points %d below threshold %d", currentPoints, config.PointThreshold)
}
