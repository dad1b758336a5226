package eventservices

import (
	"fmt"
	"strings"
	"time"

	"github.com/montanaflynn/stats"
	"github.com/olekukonko/tablewriter"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/trackerkit/perkwatch/src/eventmodels"
)

// GuardrailChecker is the slice of the guardrail registry the status table
// needs.
type GuardrailChecker interface {
	IsBlocked(sessionLabel, username string, perk eventmodels.PerkKind) (bool, string)
}

type DonationReport struct {
	FiredCount   int
	TotalPoints  float64
	MeanPoints   float64
	FirstEventAt time.Time
	LastEventAt  time.Time
}

// BuildDonationReport summarizes the fired vault donations in a journal. The
// totals are donation amounts, not session balances.
func BuildDonationReport(events []*eventmodels.AutomationEvent) (*DonationReport, error) {
	var amounts []float64
	report := &DonationReport{}

	for _, event := range events {
		if event.Outcome != eventmodels.OutcomeFired || event.Perk != eventmodels.PerkVaultDonation {
			continue
		}

		amounts = append(amounts, float64(event.DonationPoints))

		if report.FiredCount == 0 {
			report.FirstEventAt = event.Time
			report.LastEventAt = event.Time
		} else {
			report.FirstEventAt = minTime(report.FirstEventAt, event.Time)
			report.LastEventAt = maxTime(report.LastEventAt, event.Time)
		}

		report.FiredCount++
	}

	if report.FiredCount == 0 {
		return report, nil
	}

	total, err := stats.Sum(amounts)
	if err != nil {
		return nil, fmt.Errorf("BuildDonationReport: failed to compute total: %w", err)
	}

	mean, err := stats.Mean(amounts)
	if err != nil {
		return nil, fmt.Errorf("BuildDonationReport: failed to compute mean: %w", err)
	}

	report.TotalPoints = total
	report.MeanPoints = mean

	return report, nil
}

func (r *DonationReport) String() string {
	p := message.NewPrinter(language.English)

	if r.FiredCount == 0 {
		return "no vault donations fired"
	}

	return p.Sprintf("%d vault donations fired between %s and %s, %.0f points total (mean %.0f)",
		r.FiredCount, r.FirstEventAt.Format(time.RFC3339), r.LastEventAt.Format(time.RFC3339), r.TotalPoints, r.MeanPoints)
}

// RenderSessionsTable prints session and perk automation state, including
// guardrail blocks and the shared pot position.
func RenderSessionsTable(config *eventmodels.SessionsConfigYAML, guardrails GuardrailChecker) string {
	display := &strings.Builder{}
	p := message.NewPrinter(language.English)

	table := tablewriter.NewWriter(display)
	table.SetHeader([]string{"Session", "Username", "Points", "Perk", "Trigger", "Last Run", "State"})
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetColumnSeparator("")

	for _, session := range config.Sessions {
		for _, kind := range eventmodels.AllPerkKinds() {
			cfg, ok := session.PerkConfigs[kind]
			if !ok {
				continue
			}

			lastRun := "never"
			if cfg.LastRunAt != nil {
				lastRun = cfg.LastRunAt.Format("2006-01-02 15:04")
			}

			state := "disabled"
			if cfg.Enabled {
				state = "enabled"
				if blocked, owner := guardrails.IsBlocked(session.Label, session.Username, kind); blocked {
					state = fmt.Sprintf("blocked by %s", owner)
				}
			}

			table.Append([]string{
				session.Label,
				session.Username,
				p.Sprintf("%d", session.Points),
				string(kind),
				describeTrigger(cfg),
				lastRun,
				state,
			})
		}
	}

	table.Render()

	display.WriteString(p.Sprintf("Pot %d, running total %d points, donated in current pot: %v\n",
		config.PotTracking.CurrentPotIndex, config.PotTracking.RunningTotal, config.PotTracking.DonatedInPot))

	return display.String()
}

func minTime(a, b time.Time) time.Time {
	if a.Before(b) {
		return a
	}

	return b
}

func maxTime(a, b time.Time) time.Time {
	if a.After(b) {
		return a
	}

	return b
}

func describeTrigger(cfg *eventmodels.PerkConfig) string {
	switch cfg.Trigger {
	case eventmodels.TriggerTime:
		return fmt.Sprintf("every %d days", cfg.IntervalDays)
	case eventmodels.TriggerPoints:
		return fmt.Sprintf(">= %d points", cfg.PointThreshold)
	case eventmodels.TriggerBoth:
		return fmt.Sprintf("every %d days and >= %d points", cfg.IntervalDays, cfg.PointThreshold)
	default:
		return string(cfg.Trigger)
	}
}
