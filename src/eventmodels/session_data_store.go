package eventmodels

import log "github.com/sirupsen/logrus"

type SessionDataStore map[string]*Session

func (s SessionDataStore) Add(session *Session) {
	s[session.Label] = session
	log.Debugf("SessionDataStore.Add: added session %s (username=%s)", session.Label, session.Username)
}

func (s SessionDataStore) Delete(label string) {
	delete(s, label)
	log.Debugf("SessionDataStore.Delete: removed session %s", label)
}

// UpdatePoints refreshes a session balance and reports the change, so callers
// can record the update without re-reading the store.
func (s SessionDataStore) UpdatePoints(label string, points uint) *SessionPointsModifyEvent {
	session, ok := s[label]
	if !ok {
		return nil
	}

	if session.Points == points {
		return nil
	}

	ev := &SessionPointsModifyEvent{
		SessionLabel: label,
		Old:          session.Points,
		New:          points,
	}
	session.Points = points

	return ev
}

func NewSessionDataStore() SessionDataStore {
	return make(map[string]*Session)
}

type SessionPointsModifyEvent struct {
	SessionLabel string
	Old          uint
	New          uint
}
