package room

import (
	"errors"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"

	"collaborative-rooms/internal/domain"
)

// Join refusal errors. Each maps to a distinct upgrade status so a rejected
// client can tell why it was turned away.
var (
	ErrRoomLocked    = errors.New("room is locked")
	ErrRoomFull      = errors.New("room is at participant capacity")
	ErrPrivateRoom   = errors.New("room is private or requires approval")
	ErrInvalidSecret = errors.New("invalid room access secret")
	ErrNoSession     = errors.New("no session for connection")
)

// Sender delivers serialized frames to one connection. Send must never
// block; it reports false when the frame was dropped. Implemented by the
// websocket client.
type Sender interface {
	Send(payload []byte) bool
	Close()
}

// Session pairs a live connection with its participant record.
type Session struct {
	Participant *domain.Participant
	sender      Sender
}

// Send forwards a frame to the session's connection.
func (s *Session) Send(payload []byte) bool { return s.sender.Send(payload) }

// SessionManager owns the authoritative mapping from connection ID to
// participant for one room. It admits or rejects joins and derives
// permissions from roles.
type SessionManager struct {
	room     *domain.Room
	mu       sync.RWMutex
	sessions map[string]*Session
	joined   int // total admits, drives color assignment
	log      *logrus.Entry
}

// NewSessionManager creates the manager for room.
func NewSessionManager(room *domain.Room) *SessionManager {
	if room == nil {
		panic("room cannot be nil for SessionManager")
	}
	return &SessionManager{
		room:     room,
		sessions: make(map[string]*Session),
		log:      logrus.WithFields(logrus.Fields{"component": "sessions", "room_id": room.ID}),
	}
}

// CanJoin checks join eligibility before any connection state exists: the
// room must be public, or the caller the owner, or anonymous access allowed
// for an unidentified caller with approval not required.
func (sm *SessionManager) CanJoin(userID string) error {
	settings := sm.room.Settings
	if settings.IsPublic {
		return nil
	}
	if userID != "" && userID == sm.room.OwnerID {
		return nil
	}
	if settings.AllowAnonymous && userID == "" && !settings.RequireApproval {
		return nil
	}
	return ErrPrivateRoom
}

// CheckSecret validates the optional room access secret. Owners are exempt.
func (sm *SessionManager) CheckSecret(userID, secret string) error {
	hash := sm.room.Settings.AccessSecretHash
	if hash == "" || (userID != "" && userID == sm.room.OwnerID) {
		return nil
	}
	if bcrypt.CompareHashAndPassword([]byte(hash), []byte(secret)) != nil {
		return ErrInvalidSecret
	}
	return nil
}

// Admit creates the participant for a connection. Rejects when the room is
// locked or at capacity. Role: owner match wins, then a recorded invitation,
// then viewer.
func (sm *SessionManager) Admit(connectionID, userID, name string, sender Sender) (*Session, error) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	if sm.room.Status == domain.RoomLocked {
		return nil, ErrRoomLocked
	}
	if max := sm.room.Settings.MaxParticipants; max > 0 && len(sm.sessions) >= max {
		return nil, ErrRoomFull
	}

	role := domain.RoleViewer
	if userID != "" && userID == sm.room.OwnerID {
		role = domain.RoleOwner
	} else if invited, ok := sm.room.Invitations[userID]; ok && userID != "" {
		role = invited
	}

	now := time.Now()
	participant := &domain.Participant{
		UserID:       userID,
		ConnectionID: connectionID,
		Name:         name,
		Role:         role,
		Permissions:  domain.PermissionsFor(role),
		JoinedAt:     now,
		LastActivity: now,
		Presence:     domain.PresenceActive,
		Color:        domain.ColorForIndex(sm.joined),
	}
	sm.joined++

	session := &Session{Participant: participant, sender: sender}
	sm.sessions[connectionID] = session
	sm.room.Participants[connectionID] = participant
	sm.room.Touch()

	sm.log.WithFields(logrus.Fields{
		"connection_id": connectionID,
		"user_id":       userID,
		"role":          role,
		"count":         len(sm.sessions),
	}).Info("Participant admitted")
	return session, nil
}

// Remove deletes the participant and its connection. Returns whether the
// room is now empty, which signals the coordinator to stop auto-save and
// force a final persist.
func (sm *SessionManager) Remove(connectionID string) (empty bool) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	if _, ok := sm.sessions[connectionID]; !ok {
		return len(sm.sessions) == 0
	}
	delete(sm.sessions, connectionID)
	delete(sm.room.Participants, connectionID)
	sm.room.Touch()

	sm.log.WithFields(logrus.Fields{
		"connection_id": connectionID,
		"remaining":     len(sm.sessions),
	}).Info("Participant removed")
	return len(sm.sessions) == 0
}

// TouchActivity bumps the participant's activity timestamp. All mutable
// participant fields are written under the session lock so concurrent
// marshals of the shared records stay consistent.
func (sm *SessionManager) TouchActivity(connectionID string) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	if s, ok := sm.sessions[connectionID]; ok {
		s.Participant.LastActivity = time.Now()
	}
}

// SetCursor records the participant's live cursor state.
func (sm *SessionManager) SetCursor(connectionID string, cursor *domain.CursorState) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	if s, ok := sm.sessions[connectionID]; ok {
		s.Participant.Cursor = cursor
	}
}

// SetPresence records the participant's self-reported presence.
func (sm *SessionManager) SetPresence(connectionID string, status domain.PresenceStatus) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	if s, ok := sm.sessions[connectionID]; ok {
		s.Participant.Presence = status
	}
}

// MarkIdle flips an active participant to idle. Reports whether the state
// changed, so the caller broadcasts only on an actual transition.
func (sm *SessionManager) MarkIdle(connectionID string) bool {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	s, ok := sm.sessions[connectionID]
	if !ok || s.Participant.Presence != domain.PresenceActive {
		return false
	}
	s.Participant.Presence = domain.PresenceIdle
	return true
}

// Activity is one participant's liveness reading for the maintenance pass.
type Activity struct {
	ConnectionID string
	LastActivity time.Time
	Presence     domain.PresenceStatus
}

// ActivityReadings returns each live session's activity state.
func (sm *SessionManager) ActivityReadings() []Activity {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	out := make([]Activity, 0, len(sm.sessions))
	for _, s := range sm.sessions {
		out = append(out, Activity{
			ConnectionID: s.Participant.ConnectionID,
			LastActivity: s.Participant.LastActivity,
			Presence:     s.Participant.Presence,
		})
	}
	return out
}

// Get returns the session for a connection.
func (sm *SessionManager) Get(connectionID string) (*Session, bool) {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	s, ok := sm.sessions[connectionID]
	return s, ok
}

// Count returns the number of live sessions.
func (sm *SessionManager) Count() int {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return len(sm.sessions)
}

// Snapshot returns the current sessions. The slice is a copy; the sessions
// are shared.
func (sm *SessionManager) Snapshot() []*Session {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	out := make([]*Session, 0, len(sm.sessions))
	for _, s := range sm.sessions {
		out = append(out, s)
	}
	return out
}

// RunRead executes fn while holding the session read lock, for callers that
// marshal the shared participant map.
func (sm *SessionManager) RunRead(fn func()) {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	fn()
}

// Participants returns copies of all live participant records, safe to
// marshal without holding the session lock.
func (sm *SessionManager) Participants() []*domain.Participant {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	out := make([]*domain.Participant, 0, len(sm.sessions))
	for _, s := range sm.sessions {
		out = append(out, copyParticipant(s.Participant))
	}
	return out
}

// CopyParticipant returns a copy of one participant record.
func (sm *SessionManager) CopyParticipant(connectionID string) (*domain.Participant, bool) {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	s, ok := sm.sessions[connectionID]
	if !ok {
		return nil, false
	}
	return copyParticipant(s.Participant), true
}

func copyParticipant(p *domain.Participant) *domain.Participant {
	cp := *p
	cp.Permissions = append([]domain.Permission(nil), p.Permissions...)
	if p.Cursor != nil {
		cursor := *p.Cursor
		cp.Cursor = &cursor
	}
	return &cp
}
