package eventmodels

import "time"

// ConfigStore is the engine's view of the surrounding application's config
// persistence. Reads happen at every tick; writes happen only after an
// execution result is known.
type ConfigStore interface {
	LoadSessions() (*SessionsConfigYAML, error)
	RecordPerkRun(sessionLabel string, perk PerkKind, ranAt time.Time) error
	RecordPotState(state PotTrackingState) error
}
