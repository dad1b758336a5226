package eventmodels

import (
	"fmt"
)

// PotSizePoints is the size of one community vault pot. The pot is shared by
// every session in the process, so the constant is process-wide rather than
// per-session.
const PotSizePoints uint64 = 20_000_000

// PotTrackingState is the persisted slice of the pot tracker: which pot the
// tracked running total currently sits in, and whether a donation has already
// been recorded in it.
type PotTrackingState struct {
	CurrentPotIndex uint64 `yaml:"current_pot_index" json:"current_pot_index"`
	DonatedInPot    bool   `yaml:"donated_in_current_pot" json:"donated_in_current_pot"`
	RunningTotal    uint64 `yaml:"running_total" json:"running_total"`
}

// VaultAutomationConfig specializes PerkConfig for vault donations.
type VaultAutomationConfig struct {
	FrequencyHours    uint `yaml:"frequency_hours" json:"frequency_hours"`
	MinPointThreshold uint `yaml:"min_points_threshold" json:"min_points_threshold"`
	DonationAmount    uint `yaml:"donation_amount" json:"donation_amount"`
	OncePerPot        bool `yaml:"once_per_pot" json:"once_per_pot"`
}

func (c VaultAutomationConfig) Validate() error {
	if c.DonationAmount == 0 {
		return fmt.Errorf("VaultAutomationConfig.Validate: %w: donation_amount must be positive", ErrConfigInvalid)
	}

	if uint64(c.DonationAmount) > PotSizePoints {
		return fmt.Errorf("VaultAutomationConfig.Validate: %w: donation_amount exceeds the pot size", ErrConfigInvalid)
	}

	return nil
}
