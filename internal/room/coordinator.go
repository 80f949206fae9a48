// Package room implements the per-room coordination core: one Coordinator
// instance owns a room's lifecycle end to end. The platform guarantee of a
// single coordinator per room identity means concurrency only arises from
// the many connections funneling messages into this one instance.
package room

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"collaborative-rooms/internal/document"
	"collaborative-rooms/internal/domain"
	"collaborative-rooms/internal/ot"
	"collaborative-rooms/internal/repository"
)

// persistEveryOps is the write-back cadence: the room record is persisted
// after this many applied operations, in addition to the maintenance
// schedule and the final participant departure.
const persistEveryOps = 10

// OperationSink receives every applied operation for background archival.
type OperationSink interface {
	EnqueueOperation(roomID string, op *domain.Operation)
}

type pendingOp struct {
	op     *domain.Operation
	origin string // connection ID of the submitter
	since  uint64 // revision the submitter had seen
}

// Coordinator serializes all mutations of one room. Inbound operations are
// buffered in a FIFO queue and drained under a single-flight guard, so the
// applier is never invoked concurrently for the same room.
type Coordinator struct {
	room     *domain.Room
	metrics  *domain.RoomMetrics
	sessions *SessionManager
	router   *Router
	applier  *document.Applier
	store    repository.StateRepository
	sink     OperationSink

	mu           sync.Mutex // guards document, metrics, status, opsSinceSave
	opsSinceSave int

	qmu      sync.Mutex
	queue    []*pendingOp
	draining atomic.Bool

	maintenance *Scheduler
	log         *logrus.Entry
}

// NewCoordinator creates the coordinator for room. sink may be nil when no
// archive worker is wired (tests).
func NewCoordinator(room *domain.Room, metrics *domain.RoomMetrics, store repository.StateRepository, sink OperationSink) *Coordinator {
	if room == nil {
		panic("room cannot be nil for Coordinator")
	}
	if store == nil {
		panic("state repository cannot be nil for Coordinator")
	}
	if metrics == nil {
		metrics = &domain.RoomMetrics{RoomID: room.ID}
	}
	sessions := NewSessionManager(room)
	c := &Coordinator{
		room:     room,
		metrics:  metrics,
		sessions: sessions,
		router:   NewRouter(sessions),
		applier:  document.NewApplier(room),
		store:    store,
		sink:     sink,
		log:      logrus.WithFields(logrus.Fields{"component": "coordinator", "room_id": room.ID}),
	}
	return c
}

// ID returns the room identity.
func (c *Coordinator) ID() string { return c.room.ID }

// Sessions exposes the session manager.
func (c *Coordinator) Sessions() *SessionManager { return c.sessions }

// StartMaintenance arms the recurring maintenance task. Interval falls back
// to the room's auto-save interval.
func (c *Coordinator) StartMaintenance(interval time.Duration) {
	if interval <= 0 {
		interval = c.room.Settings.AutoSaveInterval
	}
	if interval <= 0 {
		interval = 30 * time.Second
	}
	c.maintenance = NewScheduler(interval, c.RunMaintenance)
	c.maintenance.Start()
}

// --- Join / leave ---

// CheckJoin validates eligibility before the connection upgrade so refusals
// can carry a distinct HTTP status. No session state is created.
func (c *Coordinator) CheckJoin(userID, secret string) error {
	c.mu.Lock()
	locked := c.room.Status == domain.RoomLocked
	c.mu.Unlock()
	if locked {
		return ErrRoomLocked
	}
	if err := c.sessions.CanJoin(userID); err != nil {
		return err
	}
	if err := c.sessions.CheckSecret(userID, secret); err != nil {
		return err
	}
	if max := c.room.Settings.MaxParticipants; max > 0 && c.sessions.Count() >= max {
		return ErrRoomFull
	}
	return nil
}

// Join admits a connection, sends the room_joined handshake to it and
// announces user_joined to everyone else.
func (c *Coordinator) Join(connectionID, userID, name string, sender Sender) (*Session, error) {
	session, err := c.sessions.Admit(connectionID, userID, name, sender)
	if err != nil {
		return nil, err
	}

	you, _ := c.sessions.CopyParticipant(connectionID)

	c.mu.Lock()
	c.metrics.ObservePeak(c.sessions.Count())
	snapshot := domain.RoomSnapshot{
		RoomID:       c.room.ID,
		Name:         c.room.Name,
		Type:         c.room.Type,
		Status:       c.room.Status,
		Document:     c.room.Document,
		Participants: c.sessions.Participants(),
		Settings:     c.room.Settings,
		You:          you,
	}
	joined, err := domain.NewEvent(domain.EvtRoomJoined, connectionID, snapshot)
	c.mu.Unlock()
	if err != nil {
		c.log.WithError(err).Error("Failed to build room_joined event")
	} else {
		session.Send(joined)
	}

	if announce, err := domain.NewEvent(domain.EvtUserJoined, connectionID, you); err == nil {
		c.router.ToOthers(connectionID, announce)
	}
	return session, nil
}

// Leave removes the connection's participant. On the final departure the
// room is persisted one last time and auto-save stops.
func (c *Coordinator) Leave(connectionID string) (empty bool) {
	participant, ok := c.sessions.CopyParticipant(connectionID)
	if !ok {
		return c.sessions.Count() == 0
	}
	empty = c.sessions.Remove(connectionID)

	if left, err := domain.NewEvent(domain.EvtUserLeft, connectionID, participant); err == nil {
		c.router.ToOthers(connectionID, left)
	}
	if empty {
		if c.maintenance != nil {
			c.maintenance.Stop()
		}
		c.persist("final")
	}
	return empty
}

// --- Inbound protocol dispatch ---

// Dispatch processes one inbound envelope to completion. Malformed payloads
// are answered with an error event on the same connection and never
// propagate to other participants.
func (c *Coordinator) Dispatch(connectionID string, env *domain.Envelope) {
	session, ok := c.sessions.Get(connectionID)
	if !ok {
		c.log.WithField("connection_id", connectionID).Warn("Message from unknown connection")
		return
	}

	c.mu.Lock()
	c.metrics.TotalMessages++
	c.mu.Unlock()
	c.sessions.TouchActivity(connectionID)

	switch env.Type {
	case domain.MsgHeartbeat:
		// Activity already bumped; nothing else to do.
	case domain.MsgOperation:
		c.handleOperation(session, env)
	case domain.MsgCursor:
		c.handleCursor(session, env, domain.EvtCursorMoved)
	case domain.MsgSelection:
		c.handleCursor(session, env, domain.EvtSelectionChanged)
	case domain.MsgChat:
		c.handleChat(session, env)
	case domain.MsgPresence:
		c.handlePresence(session, env)
	default:
		c.sendError(session, "unknown message type: "+env.Type)
	}
}

// handleOperation queues a write for the transform/apply pipeline. Without
// write permission the message is rejected silently: no state change, no
// broadcast.
func (c *Coordinator) handleOperation(session *Session, env *domain.Envelope) {
	if !session.Participant.Can(domain.PermWrite) {
		c.log.WithFields(logrus.Fields{
			"connection_id": session.Participant.ConnectionID,
			"role":          session.Participant.Role,
		}).Debug("Operation rejected: no write permission")
		return
	}

	op, err := domain.DecodeOperation(env.Data)
	if err != nil {
		c.log.WithError(err).Warn("Malformed operation payload")
		c.sendError(session, "malformed operation: "+err.Error())
		return
	}
	if op.ID == "" {
		op.ID = uuid.NewString()
	}
	op.Author = session.Participant.ConnectionID
	if session.Participant.UserID != "" {
		op.Author = session.Participant.UserID
	}
	op.Timestamp = time.Now()

	// The client reports the revision it last observed; zero means it was
	// editing the current head, so no historical transform applies.
	since := op.Revision
	if since == 0 {
		c.mu.Lock()
		since = c.room.Document.Version
		c.mu.Unlock()
	}

	c.qmu.Lock()
	c.queue = append(c.queue, &pendingOp{
		op:     op,
		origin: session.Participant.ConnectionID,
		since:  since,
	})
	c.qmu.Unlock()

	c.drainQueue()
}

// drainQueue applies pending operations strictly sequentially. The CAS flag
// makes a concurrent drain request a no-op; the outer loop re-checks the
// queue after releasing the flag so no late enqueue is stranded.
func (c *Coordinator) drainQueue() {
	for {
		if !c.draining.CompareAndSwap(false, true) {
			return
		}
		for {
			c.qmu.Lock()
			if len(c.queue) == 0 {
				c.qmu.Unlock()
				break
			}
			pending := c.queue[0]
			c.queue = c.queue[1:]
			c.qmu.Unlock()

			c.applyPending(pending)
		}
		c.draining.Store(false)

		c.qmu.Lock()
		again := len(c.queue) > 0
		c.qmu.Unlock()
		if !again {
			return
		}
	}
}

func (c *Coordinator) applyPending(pending *pendingOp) {
	c.mu.Lock()
	doc := c.room.Document
	result := ot.Transform(pending.op, doc.Operations, pending.since, doc.Version)
	if err := c.applier.Apply(result.Op); err != nil {
		c.mu.Unlock()
		c.log.WithError(err).WithField("op_id", pending.op.ID).Warn("Operation could not be applied")
		if session, ok := c.sessions.Get(pending.origin); ok {
			c.sendError(session, "operation rejected: "+err.Error())
		}
		return
	}
	c.metrics.TotalOperations++
	c.metrics.ConflictsResolved += uint64(result.Conflicts)
	c.metrics.UpdatedAt = time.Now()
	c.opsSinceSave++
	needsPersist := c.opsSinceSave >= persistEveryOps
	applied := *result.Op
	c.mu.Unlock()

	if frame, err := domain.NewEvent(domain.EvtOperationApplied, pending.origin, applied); err == nil {
		c.router.ToOthers(pending.origin, frame)
	}
	if c.sink != nil {
		c.sink.EnqueueOperation(c.room.ID, &applied)
	}
	if needsPersist {
		c.persist("cadence")
	}
}

func (c *Coordinator) handleCursor(session *Session, env *domain.Envelope, event string) {
	var payload domain.CursorPayload
	if err := decodeInto(env.Data, &payload); err != nil {
		c.sendError(session, "malformed cursor payload")
		return
	}
	c.sessions.SetCursor(session.Participant.ConnectionID, &domain.CursorState{
		Position:     payload.Position,
		SelectionEnd: payload.SelectionEnd,
	})
	if frame, err := domain.NewEvent(event, session.Participant.ConnectionID, payload); err == nil {
		c.router.ToOthers(session.Participant.ConnectionID, frame)
	}
}

// handleChat broadcasts to all connections, including the sender: clients
// rely on the echo for consistent ordering. Chat is never persisted in the
// document log.
func (c *Coordinator) handleChat(session *Session, env *domain.Envelope) {
	if !session.Participant.Can(domain.PermChat) {
		c.log.WithField("connection_id", session.Participant.ConnectionID).
			Debug("Chat rejected: no chat permission")
		return
	}
	var payload domain.ChatPayload
	if err := decodeInto(env.Data, &payload); err != nil {
		c.sendError(session, "malformed chat payload")
		return
	}
	payload.From = session.Participant.Name
	if frame, err := domain.NewEvent(domain.EvtChatMessage, session.Participant.ConnectionID, payload); err == nil {
		c.router.ToAll(frame)
	}
}

func (c *Coordinator) handlePresence(session *Session, env *domain.Envelope) {
	var payload domain.PresencePayload
	if err := decodeInto(env.Data, &payload); err != nil {
		c.sendError(session, "malformed presence payload")
		return
	}
	switch payload.Status {
	case domain.PresenceActive, domain.PresenceIdle, domain.PresenceAway:
	default:
		c.sendError(session, "unknown presence status")
		return
	}
	c.sessions.SetPresence(session.Participant.ConnectionID, payload.Status)
	if frame, err := domain.NewEvent(domain.EvtPresenceUpdated, session.Participant.ConnectionID, payload); err == nil {
		c.router.ToOthers(session.Participant.ConnectionID, frame)
	}
}

// --- Administrative actions ---

// Lock refuses all subsequent joins and announces room_locked.
func (c *Coordinator) Lock() {
	c.mu.Lock()
	c.room.Status = domain.RoomLocked
	c.room.Touch()
	c.mu.Unlock()
	if frame, err := domain.NewEvent(domain.EvtRoomLocked, "", nil); err == nil {
		c.router.ToAll(frame)
	}
	c.persist("lock")
}

// Unlock reverses Lock.
func (c *Coordinator) Unlock() {
	c.mu.Lock()
	c.room.Status = domain.RoomActive
	c.room.Touch()
	c.mu.Unlock()
	if frame, err := domain.NewEvent(domain.EvtRoomUnlocked, "", nil); err == nil {
		c.router.ToAll(frame)
	}
	c.persist("unlock")
}

// Kick force-closes a connection and removes its participant. The standard
// user_left event is the only notice other participants receive.
func (c *Coordinator) Kick(connectionID string) error {
	session, ok := c.sessions.Get(connectionID)
	if !ok {
		return ErrNoSession
	}
	session.sender.Close()
	c.Leave(connectionID)
	return nil
}

// --- Maintenance ---

// RunMaintenance performs one maintenance pass: evict idle participants,
// persist when auto-save is on. The scheduler re-arms after this returns.
func (c *Coordinator) RunMaintenance() {
	timeout := c.room.Settings.InactivityTimeout
	now := time.Now()
	for _, reading := range c.sessions.ActivityReadings() {
		idle := now.Sub(reading.LastActivity)
		switch {
		case timeout > 0 && idle > timeout:
			c.log.WithFields(logrus.Fields{
				"connection_id": reading.ConnectionID,
				"idle":          idle,
			}).Info("Evicting idle participant")
			if err := c.Kick(reading.ConnectionID); err != nil {
				c.log.WithError(err).Warn("Idle eviction failed")
			}
		case timeout > 0 && idle > timeout/2 && reading.Presence == domain.PresenceActive:
			if !c.sessions.MarkIdle(reading.ConnectionID) {
				continue
			}
			payload := domain.PresencePayload{Status: domain.PresenceIdle}
			if frame, err := domain.NewEvent(domain.EvtPresenceUpdated, reading.ConnectionID, payload); err == nil {
				c.router.ToOthers(reading.ConnectionID, frame)
			}
		}
	}

	if c.room.Settings.AutoSave && c.sessions.Count() > 0 {
		if c.persist("auto-save") {
			c.mu.Lock()
			c.metrics.AutoSaves++
			c.mu.Unlock()
		}
	}
}

// --- Persistence ---

// persist writes the room and metrics records. Failures are logged and left
// for the next cycle; a broadcast of document_saved follows success.
func (c *Coordinator) persist(reason string) bool {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	c.mu.Lock()
	var saveErr error
	c.sessions.RunRead(func() {
		saveErr = c.store.SaveRoom(ctx, c.room)
	})
	if saveErr == nil {
		saveErr = c.store.SaveMetrics(ctx, c.metrics)
	}
	version := c.room.Document.Version
	if saveErr == nil {
		c.opsSinceSave = 0
	}
	c.mu.Unlock()

	if saveErr != nil {
		c.log.WithError(saveErr).WithField("reason", reason).Error("Persist failed, will retry next cycle")
		return false
	}
	c.log.WithFields(logrus.Fields{"reason": reason, "version": version}).Debug("Room persisted")
	if frame, err := domain.NewEvent(domain.EvtDocumentSaved, "", map[string]uint64{"version": version}); err == nil {
		c.router.ToAll(frame)
	}
	return true
}

// --- Read surface for the admin HTTP handlers ---

// Snapshot returns a self-contained room snapshot for admin reads. Document
// and participants are copied so the caller can marshal them after this
// returns.
func (c *Coordinator) Snapshot() domain.RoomSnapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return domain.RoomSnapshot{
		RoomID:       c.room.ID,
		Name:         c.room.Name,
		Type:         c.room.Type,
		Status:       c.room.Status,
		Document:     c.room.Document.Clone(),
		Participants: c.sessions.Participants(),
		Settings:     c.room.Settings,
	}
}

// Metrics returns a copy of the current metrics record.
func (c *Coordinator) Metrics() domain.RoomMetrics {
	c.mu.Lock()
	defer c.mu.Unlock()
	return *c.metrics
}

// OperationsAfter returns recorded operations with revision > from.
func (c *Coordinator) OperationsAfter(from uint64) []domain.Operation {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.room.Document.OperationsAfter(from)
}

// History returns the full operation log, checkpoints and current version.
func (c *Coordinator) History() ([]domain.Operation, []domain.Checkpoint, uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	ops := make([]domain.Operation, len(c.room.Document.Operations))
	copy(ops, c.room.Document.Operations)
	cps := make([]domain.Checkpoint, len(c.room.Document.Checkpoints))
	copy(cps, c.room.Document.Checkpoints)
	return ops, cps, c.room.Document.Version
}

// Content returns the current document content and version.
func (c *Coordinator) Content() (string, uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.room.Document.Content, c.room.Document.Version
}

// Shutdown stops maintenance and forces a final persist.
func (c *Coordinator) Shutdown() {
	if c.maintenance != nil {
		c.maintenance.Stop()
	}
	c.persist("shutdown")
}

var errEmptyPayload = errors.New("empty payload")

func decodeInto(data []byte, v interface{}) error {
	if len(data) == 0 {
		return errEmptyPayload
	}
	return json.Unmarshal(data, v)
}

func (c *Coordinator) sendError(session *Session, message string) {
	frame, err := domain.NewEvent(domain.EvtError, session.Participant.ConnectionID, map[string]string{"message": message})
	if err != nil {
		return
	}
	session.Send(frame)
}
