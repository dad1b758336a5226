package eventmodels

import (
	"fmt"
	"time"
)

// PerkParams carries the perk-specific purchase parameters. The policy engine
// treats them opaquely; they only matter to the executor.
type PerkParams struct {
	WedgeMethod    string `yaml:"wedge_method,omitempty" json:"wedge_method,omitempty"`
	VIPWeeks       uint   `yaml:"vip_weeks,omitempty" json:"vip_weeks,omitempty"`
	UploadGB       uint   `yaml:"upload_gb,omitempty" json:"upload_gb,omitempty"`
	DonationPoints uint   `yaml:"donation_points,omitempty" json:"donation_points,omitempty"`
}

type PerkConfig struct {
	Enabled bool        `yaml:"enabled" json:"enabled"`
	Trigger TriggerType `yaml:"trigger_type" json:"trigger_type"`

	// Both interval and threshold are always retained, regardless of the
	// active trigger type, so switching trigger types never loses prior
	// configuration.
	IntervalDays   uint `yaml:"trigger_interval_days" json:"trigger_interval_days"`
	PointThreshold uint `yaml:"trigger_point_threshold" json:"trigger_point_threshold"`

	// LastRunAt is nil when the perk has never fired. A nil value is
	// immediately eligible under time triggers.
	LastRunAt *time.Time `yaml:"last_run_at,omitempty" json:"last_run_at,omitempty"`

	Params PerkParams `yaml:"params" json:"params"`
}

// Validate rejects configurations at save time so invalid thresholds never
// reach the evaluator.
func (c PerkConfig) Validate() error {
	if _, err := ParseTriggerType(string(c.Trigger)); err != nil {
		return fmt.Errorf("PerkConfig.Validate: %w: %v", ErrConfigInvalid, err)
	}

	if c.Trigger.UsesTime() && c.IntervalDays == 0 {
		return fmt.Errorf("PerkConfig.Validate: %w: trigger_interval_days must be positive for time triggers", ErrConfigInvalid)
	}

	if c.Trigger.UsesPoints() && c.PointThreshold == 0 {
		return fmt.Errorf("PerkConfig.Validate: %w: trigger_point_threshold must be positive for point triggers", ErrConfigInvalid)
	}

	return nil
}

func (c PerkConfig) Interval() time.Duration {
	return time.Duration(c.IntervalDays) * 24 * time.Hour
}
