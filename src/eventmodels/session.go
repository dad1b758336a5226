package eventmodels

import (
	"fmt"
)

// Session is one automated account context. Several sessions may share the
// same underlying tracker username when the account is reached via different
// network paths.
type Session struct {
	Label       string                   `yaml:"label" json:"label"`
	Username    string                   `yaml:"username" json:"username"`
	Points      uint                     `yaml:"points" json:"points"`
	PerkConfigs map[PerkKind]*PerkConfig `yaml:"perk_automation" json:"perk_automation"`
	VaultConfig *VaultAutomationConfig   `yaml:"vault_automation,omitempty" json:"vault_automation,omitempty"`
}

func NewSession(label, username string) *Session {
	return &Session{
		Label:       label,
		Username:    username,
		PerkConfigs: make(map[PerkKind]*PerkConfig),
	}
}

func (s *Session) Validate() error {
	if s.Label == "" {
		return fmt.Errorf("Session.Validate: %w: label is required", ErrConfigInvalid)
	}

	if s.Username == "" {
		return fmt.Errorf("Session.Validate: %w: username is required", ErrConfigInvalid)
	}

	for kind, cfg := range s.PerkConfigs {
		if _, err := ParsePerkKind(string(kind)); err != nil {
			return fmt.Errorf("Session.Validate: %w", err)
		}

		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("Session.Validate: perk %v: %w", kind, err)
		}
	}

	if _, ok := s.PerkConfigs[PerkVaultDonation]; ok {
		if s.VaultConfig == nil {
			return fmt.Errorf("Session.Validate: %w: vault donation enabled without vault_automation config", ErrConfigInvalid)
		}

		if err := s.VaultConfig.Validate(); err != nil {
			return fmt.Errorf("Session.Validate: %w", err)
		}
	}

	return nil
}

// EnabledPerks returns the perk kinds with automation switched on, in the
// stable AllPerkKinds order so tick evaluation is deterministic.
func (s *Session) EnabledPerks() []PerkKind {
	var kinds []PerkKind
	for _, kind := range AllPerkKinds() {
		if cfg, ok := s.PerkConfigs[kind]; ok && cfg.Enabled {
			kinds = append(kinds, kind)
		}
	}

	return kinds
}
