package configstore

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/trackerkit/perkwatch/src/eventmodels"
)

// YAMLSessionStore reads and writes the session config file. Writes go
// through a temp file and rename so a crash mid-write never corrupts the
// config.
type YAMLSessionStore struct {
	mu    sync.Mutex
	path  string
	cache eventmodels.SessionDataStore
}

func NewYAMLSessionStore(path string) *YAMLSessionStore {
	return &YAMLSessionStore{
		path:  path,
		cache: eventmodels.NewSessionDataStore(),
	}
}

func (s *YAMLSessionStore) LoadSessions() (*eventmodels.SessionsConfigYAML, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.loadLocked()
}

// RecordPerkRun persists last_run_at for one perk after a confirmed
// successful execution. Returns ErrSessionNotFound if the session was deleted
// in the meantime, so the caller can discard the result.
func (s *YAMLSessionStore) RecordPerkRun(sessionLabel string, perk eventmodels.PerkKind, ranAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	config, err := s.loadLocked()
	if err != nil {
		return fmt.Errorf("YAMLSessionStore.RecordPerkRun: %w", err)
	}

	session, err := config.GetSession(sessionLabel)
	if err != nil {
		return fmt.Errorf("YAMLSessionStore.RecordPerkRun: %w", err)
	}

	cfg, ok := session.PerkConfigs[perk]
	if !ok {
		return fmt.Errorf("YAMLSessionStore.RecordPerkRun: session %s has no %v config", sessionLabel, perk)
	}

	cfg.LastRunAt = &ranAt

	if err := s.saveLocked(config); err != nil {
		return fmt.Errorf("YAMLSessionStore.RecordPerkRun: %w", err)
	}

	log.Debugf("YAMLSessionStore.RecordPerkRun: recorded %s/%v run at %v", sessionLabel, perk, ranAt)
	return nil
}

func (s *YAMLSessionStore) RecordPotState(state eventmodels.PotTrackingState) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	config, err := s.loadLocked()
	if err != nil {
		return fmt.Errorf("YAMLSessionStore.RecordPotState: %w", err)
	}

	config.PotTracking = state

	if err := s.saveLocked(config); err != nil {
		return fmt.Errorf("YAMLSessionStore.RecordPotState: %w", err)
	}

	return nil
}

// RefreshPoints records an externally observed balance for one session.
func (s *YAMLSessionStore) RefreshPoints(sessionLabel string, points uint) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	config, err := s.loadLocked()
	if err != nil {
		return fmt.Errorf("YAMLSessionStore.RefreshPoints: %w", err)
	}

	session, err := config.GetSession(sessionLabel)
	if err != nil {
		return fmt.Errorf("YAMLSessionStore.RefreshPoints: %w", err)
	}

	// the cache holds the same session pointers as the loaded config
	if ev := s.cache.UpdatePoints(session.Label, points); ev != nil {
		log.Debugf("YAMLSessionStore.RefreshPoints: %s points %d -> %d", ev.SessionLabel, ev.Old, ev.New)
	}

	if err := s.saveLocked(config); err != nil {
		return fmt.Errorf("YAMLSessionStore.RefreshPoints: %w", err)
	}

	return nil
}

// SaveSession upserts one session config, the write path behind the
// surrounding application's config-save surface.
func (s *YAMLSessionStore) SaveSession(session *eventmodels.Session) error {
	if err := session.Validate(); err != nil {
		return fmt.Errorf("YAMLSessionStore.SaveSession: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	config, err := s.loadLocked()
	if err != nil {
		return fmt.Errorf("YAMLSessionStore.SaveSession: %w", err)
	}

	// labels match case-insensitively everywhere, the same rule GetSession uses
	replaced := false
	for i, existing := range config.Sessions {
		if strings.EqualFold(existing.Label, session.Label) {
			config.Sessions[i] = session
			replaced = true
			break
		}
	}

	if !replaced {
		config.Sessions = append(config.Sessions, session)
	}

	if err := s.saveLocked(config); err != nil {
		return fmt.Errorf("YAMLSessionStore.SaveSession: %w", err)
	}

	return nil
}

// DeleteSession removes one session config.
func (s *YAMLSessionStore) DeleteSession(sessionLabel string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	config, err := s.loadLocked()
	if err != nil {
		return fmt.Errorf("YAMLSessionStore.DeleteSession: %w", err)
	}

	var kept []*eventmodels.Session
	removedLabel := ""
	for _, session := range config.Sessions {
		if strings.EqualFold(session.Label, sessionLabel) {
			removedLabel = session.Label
			continue
		}
		kept = append(kept, session)
	}

	if removedLabel == "" {
		return fmt.Errorf("YAMLSessionStore.DeleteSession: %w: %s", eventmodels.ErrSessionNotFound, sessionLabel)
	}

	config.Sessions = kept
	s.cache.Delete(removedLabel)

	if err := s.saveLocked(config); err != nil {
		return fmt.Errorf("YAMLSessionStore.DeleteSession: %w", err)
	}

	return nil
}

func (s *YAMLSessionStore) loadLocked() (*eventmodels.SessionsConfigYAML, error) {
	bytes, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return &eventmodels.SessionsConfigYAML{}, nil
		}

		return nil, fmt.Errorf("YAMLSessionStore.loadLocked: failed to read %s: %w", s.path, err)
	}

	var config eventmodels.SessionsConfigYAML
	if err := yaml.Unmarshal(bytes, &config); err != nil {
		return nil, fmt.Errorf("YAMLSessionStore.loadLocked: failed to parse %s: %w", s.path, err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("YAMLSessionStore.loadLocked: %w", err)
	}

	s.cache = eventmodels.NewSessionDataStore()
	for _, session := range config.Sessions {
		s.cache.Add(session)
	}

	return &config, nil
}

func (s *YAMLSessionStore) saveLocked(config *eventmodels.SessionsConfigYAML) error {
	bytes, err := yaml.Marshal(config)
	if err != nil {
		return fmt.Errorf("YAMLSessionStore.saveLocked: failed to marshal config: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, os.ModePerm); err != nil {
		return fmt.Errorf("YAMLSessionStore.saveLocked: failed to create %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, ".sessions-*.yaml")
	if err != nil {
		return fmt.Errorf("YAMLSessionStore.saveLocked: failed to create temp file: %w", err)
	}

	if _, err := tmp.Write(bytes); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("YAMLSessionStore.saveLocked: failed to write temp file: %w", err)
	}

	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("YAMLSessionStore.saveLocked: failed to close temp file: %w", err)
	}

	if err := os.Rename(tmp.Name(), s.path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("YAMLSessionStore.saveLocked: failed to replace %s: %w", s.path, err)
	}

	return nil
}
