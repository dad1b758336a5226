package eventmodels

import "errors"

var (
	ErrConfigInvalid       = errors.New("perk configuration is invalid")
	ErrGuardrailConflict   = errors.New("perk is already automated by another session for this username")
	ErrPotCycleExhausted   = errors.New("a donation was already made in the current pot")
	ErrTrackingUnavailable = errors.New("vault running total is unavailable")
	ErrExecutorTimeout     = errors.New("executor did not report a result in time")
	ErrSessionNotFound     = errors.New("session not found")
)
