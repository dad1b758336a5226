package eventmodels

import (
	"time"

	"github.com/google/uuid"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

type AutomationOutcome string

const (
	OutcomeFired            AutomationOutcome = "fired"
	OutcomeWaiting          AutomationOutcome = "waiting"
	OutcomeBlockedGuardrail AutomationOutcome = "blocked-by-guardrail"
	OutcomeDeniedPotCycle   AutomationOutcome = "denied-by-pot-cycle"
	OutcomeExecutionFailed  AutomationOutcome = "execution-failed"
)

// AutomationEvent is the record published to the notifier boundary for every
// decision outcome. The detail columns mirror the structured fields the
// downstream event log displays.
type AutomationEvent struct {
	ID           uuid.UUID         `csv:"id" json:"id"`
	Time         time.Time         `csv:"time" json:"time"`
	Outcome      AutomationOutcome `csv:"outcome" json:"outcome"`
	SessionLabel string            `csv:"session_label" json:"session_label"`
	Username     string            `csv:"username" json:"username"`
	Perk         PerkKind          `csv:"perk_kind" json:"perk_kind"`

	// Detail fields; zero values mean not applicable to this outcome.
	// Points is the session balance when the decision was made;
	// DonationPoints is the amount a fired vault donation sends.
	Points         uint   `csv:"points" json:"points"`
	DonationPoints uint   `csv:"donation_points" json:"donation_points"`
	PotIndex       uint64 `csv:"pot_index" json:"pot_index"`
	BlockedBy      string `csv:"blocked_by" json:"blocked_by"`
	DecisionID     string `csv:"decision_id" json:"decision_id"`
	Detail         string `csv:"detail" json:"detail"`
}

func NewAutomationEvent(outcome AutomationOutcome, session *Session, perk PerkKind, occurredAt time.Time) *AutomationEvent {
	return &AutomationEvent{
		ID:           uuid.New(),
		Time:         occurredAt,
		Outcome:      outcome,
		SessionLabel: session.Label,
		Username:     session.Username,
		Perk:         perk,
		Points:       session.Points,
	}
}

func (e *AutomationEvent) String() string {
	p := message.NewPrinter(language.English)

	switch e.Outcome {
	case OutcomeFired:
		if e.DonationPoints > 0 {
			return p.Sprintf("[%s] %s/%s fired a %d point donation with %d points", e.Outcome, e.SessionLabel, e.Perk, e.DonationPoints, e.Points)
		}
		return p.Sprintf("[%s] %s/%s fired with %d points", e.Outcome, e.SessionLabel, e.Perk, e.Points)
	case OutcomeBlockedGuardrail:
		return p.Sprintf("[%s] %s/%s blocked by session %s (username=%s)", e.Outcome, e.SessionLabel, e.Perk, e.BlockedBy, e.Username)
	case OutcomeDeniedPotCycle:
		return p.Sprintf("[%s] %s/%s denied: pot %d already received a donation", e.Outcome, e.SessionLabel, e.Perk, e.PotIndex)
	case OutcomeExecutionFailed:
		return p.Sprintf("[%s] %s/%s failed: %s", e.Outcome, e.SessionLabel, e.Perk, e.Detail)
	default:
		return p.Sprintf("[%s] %s/%s: %s", e.Outcome, e.SessionLabel, e.Perk, e.Detail)
	}
}
