package eventmodels

import (
	"time"

	"github.com/google/uuid"
)

// FireDecision is the engine's output: a request for the external executor to
// perform one purchase or donation. The engine never talks to the tracker
// site itself.
type FireDecision struct {
	ID           uuid.UUID  `json:"id"`
	SessionLabel string     `json:"session_label"`
	Username     string     `json:"username"`
	Perk         PerkKind   `json:"perk_kind"`
	Params       PerkParams `json:"params"`
	RequestedAt  time.Time  `json:"requested_at"`
}

func NewFireDecision(session *Session, perk PerkKind, params PerkParams, requestedAt time.Time) *FireDecision {
	return &FireDecision{
		ID:           uuid.New(),
		SessionLabel: session.Label,
		Username:     session.Username,
		Perk:         perk,
		Params:       params,
		RequestedAt:  requestedAt,
	}
}

// ExecutionResult is reported back asynchronously by the executor once the
// purchase or donation has been attempted.
type ExecutionResult struct {
	DecisionID uuid.UUID `json:"decision_id"`
	Success    bool      `json:"success"`
	Detail     string    `json:"detail"`
}
