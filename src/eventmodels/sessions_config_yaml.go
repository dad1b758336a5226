package eventmodels

import (
	"fmt"
	"strings"
)

// SessionsConfigYAML is the on-disk shape of the config store. PotTracking is
// stored once at the top level: the pot is community-wide, never per-session.
type SessionsConfigYAML struct {
	Sessions    []*Session       `yaml:"sessions"`
	PotTracking PotTrackingState `yaml:"pot_tracking"`
}

func (c *SessionsConfigYAML) GetSession(label string) (*Session, error) {
	want := strings.ToLower(label)
	for _, session := range c.Sessions {
		if strings.ToLower(session.Label) == want {
			return session, nil
		}
	}

	return nil, fmt.Errorf("SessionsConfigYAML.GetSession: %w: %s", ErrSessionNotFound, label)
}

func (c *SessionsConfigYAML) Validate() error {
	seen := make(map[string]bool)
	for _, session := range c.Sessions {
		if err := session.Validate(); err != nil {
			return fmt.Errorf("SessionsConfigYAML.Validate: %w", err)
		}

		key := strings.ToLower(session.Label)
		if seen[key] {
			return fmt.Errorf("SessionsConfigYAML.Validate: %w: duplicate session label %s", ErrConfigInvalid, session.Label)
		}
		seen[key] = true
	}

	return nil
}
