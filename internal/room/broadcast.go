package room

import (
	"github.com/sirupsen/logrus"
)

// Router fans event payloads out to connected sessions. Delivery is
// best-effort and never blocks: a full or closed connection is logged and
// skipped without affecting the remaining recipients.
type Router struct {
	sessions *SessionManager
	log      *logrus.Entry
}

// NewRouter creates a router over the room's sessions.
func NewRouter(sessions *SessionManager) *Router {
	if sessions == nil {
		panic("session manager cannot be nil for Router")
	}
	return &Router{
		sessions: sessions,
		log:      logrus.WithFields(logrus.Fields{"component": "broadcast", "room_id": sessions.room.ID}),
	}
}

// ToAll delivers payload to every open connection.
func (r *Router) ToAll(payload []byte) {
	r.send(payload, "")
}

// ToOthers delivers payload to every open connection except the origin of
// the triggering message, so the originator does not receive an echo.
func (r *Router) ToOthers(excludeConnectionID string, payload []byte) {
	r.send(payload, excludeConnectionID)
}

func (r *Router) send(payload []byte, exclude string) {
	for _, session := range r.sessions.Snapshot() {
		if session.Participant.ConnectionID == exclude {
			continue
		}
		if !session.Send(payload) {
			r.log.WithField("connection_id", session.Participant.ConnectionID).
				Warn("Dropped frame for slow or closed connection")
		}
	}
}
