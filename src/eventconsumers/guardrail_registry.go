package eventconsumers

import (
	"fmt"
	"sort"
	"sync"

	log "github.com/sirupsen/logrus"

	"github.com/trackerkit/perkwatch/src/eventmodels"
)

type GuardrailEntry struct {
	SessionLabel string
	Username     string
	Perk         eventmodels.PerkKind
	Enabled      bool
}

// GuardrailRegistry is the process-wide table preventing two sessions that
// share the same tracker username from running the same perk automation
// concurrently. The tie-break policy is first-to-register wins: a session that
// loses the race keeps its stored enabled flag, but the registry marks it
// non-executing and the scheduler never fires it.
type GuardrailRegistry struct {
	mu        sync.Mutex
	userLocks map[string]*sync.Mutex
	entries   map[string]map[eventmodels.PerkKind]*GuardrailEntry
}

func NewGuardrailRegistry() *GuardrailRegistry {
	return &GuardrailRegistry{
		userLocks: make(map[string]*sync.Mutex),
		entries:   make(map[string]map[eventmodels.PerkKind]*GuardrailEntry),
	}
}

// usernameLock serializes registry operations per username. Different
// usernames never contend with each other.
func (r *GuardrailRegistry) usernameLock(username string) *sync.Mutex {
	r.mu.Lock()
	defer r.mu.Unlock()

	lock, ok := r.userLocks[username]
	if !ok {
		lock = &sync.Mutex{}
		r.userLocks[username] = lock
	}

	return lock
}

// Register upserts one entry. Enabling a perk that another session already
// owns for the same username registers the entry as disabled and returns
// ErrGuardrailConflict naming the owner, so the caller can surface a blocking
// reason.
func (r *GuardrailRegistry) Register(sessionLabel, username string, perk eventmodels.PerkKind, enabled bool) error {
	lock := r.usernameLock(username)
	lock.Lock()
	defer lock.Unlock()

	if enabled {
		if owner := r.enabledOwner(sessionLabel, username, perk); owner != "" {
			r.upsert(sessionLabel, username, perk, false)
			return fmt.Errorf("GuardrailRegistry.Register: %w: perk %v for username %s is owned by session %s",
				eventmodels.ErrGuardrailConflict, perk, username, owner)
		}
	}

	r.upsert(sessionLabel, username, perk, enabled)
	return nil
}

// CheckAndReserve is the scheduler-path form of Register: under one username
// lock it checks for a conflicting owner and, finding none, records the
// caller as the enabled holder. No other session of the same username can
// slip in between the check and the reservation.
func (r *GuardrailRegistry) CheckAndReserve(sessionLabel, username string, perk eventmodels.PerkKind) (bool, string) {
	lock := r.usernameLock(username)
	lock.Lock()
	defer lock.Unlock()

	if owner := r.enabledOwner(sessionLabel, username, perk); owner != "" {
		return true, owner
	}

	r.upsert(sessionLabel, username, perk, true)
	return false, ""
}

// IsBlocked reports whether some other session with the same username holds
// the same perk enabled, and which one.
func (r *GuardrailRegistry) IsBlocked(sessionLabel, username string, perk eventmodels.PerkKind) (bool, string) {
	lock := r.usernameLock(username)
	lock.Lock()
	defer lock.Unlock()

	owner := r.enabledOwner(sessionLabel, username, perk)
	return owner != "", owner
}

// Unregister removes every entry for a session, releasing its perks for other
// sessions of the same username. Called on session deletion.
func (r *GuardrailRegistry) Unregister(sessionLabel string) {
	r.mu.Lock()
	perks, ok := r.entries[sessionLabel]
	r.mu.Unlock()

	if !ok {
		return
	}

	usernames := make(map[string]bool)
	for _, entry := range perks {
		usernames[entry.Username] = true
	}

	for username := range usernames {
		lock := r.usernameLock(username)
		lock.Lock()
		r.mu.Lock()
		delete(r.entries, sessionLabel)
		r.mu.Unlock()
		lock.Unlock()
	}

	log.Debugf("GuardrailRegistry.Unregister: removed entries for session %s", sessionLabel)
}

// Seed populates the registry from persisted session configs at startup.
// Sessions are registered in label order so conflict resolution is
// deterministic across restarts.
func (r *GuardrailRegistry) Seed(sessions []*eventmodels.Session) {
	sorted := make([]*eventmodels.Session, len(sessions))
	copy(sorted, sessions)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Label < sorted[j].Label })

	for _, session := range sorted {
		for _, kind := range eventmodels.AllPerkKinds() {
			cfg, ok := session.PerkConfigs[kind]
			if !ok {
				continue
			}

			if err := r.Register(session.Label, session.Username, kind, cfg.Enabled); err != nil {
				log.Warnf("GuardrailRegistry.Seed: %v", err)
			}
		}
	}
}

// enabledOwner must be called with the username lock held.
func (r *GuardrailRegistry) enabledOwner(sessionLabel, username string, perk eventmodels.PerkKind) string {
	r.mu.Lock()
	defer r.mu.Unlock()

	for label, perks := range r.entries {
		if label == sessionLabel {
			continue
		}

		entry, ok := perks[perk]
		if !ok {
			continue
		}

		if entry.Username == username && entry.Enabled {
			return label
		}
	}

	return ""
}

// upsert must be called with the username lock held.
func (r *GuardrailRegistry) upsert(sessionLabel, username string, perk eventmodels.PerkKind, enabled bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	perks, ok := r.entries[sessionLabel]
	if !ok {
		perks = make(map[eventmodels.PerkKind]*GuardrailEntry)
		r.entries[sessionLabel] = perks
	}

	perks[perk] = &GuardrailEntry{
		SessionLabel: sessionLabel,
		Username:     username,
		Perk:         perk,
		Enabled:      enabled,
	}
}
