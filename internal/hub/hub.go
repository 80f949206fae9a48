// Package hub owns the live coordinator registry and the websocket
// connection plumbing. One coordinator exists per room identity; rooms are
// created lazily on first access and dropped from the registry once empty.
package hub

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"collaborative-rooms/internal/document"
	"collaborative-rooms/internal/domain"
	"collaborative-rooms/internal/repository"
	"collaborative-rooms/internal/room"
)

// Hub maps room IDs to their coordinators.
type Hub struct {
	store               repository.StateRepository
	archive             repository.ArchiveRepository
	sink                room.OperationSink
	maintenanceInterval time.Duration

	mu           sync.Mutex
	coordinators map[string]*room.Coordinator
	log          *logrus.Entry
}

// NewHub creates the registry. archive and sink may be nil when no archive
// worker is wired.
func NewHub(store repository.StateRepository, archive repository.ArchiveRepository, sink room.OperationSink, maintenanceInterval time.Duration) *Hub {
	if store == nil {
		panic("state repository cannot be nil for Hub")
	}
	return &Hub{
		store:               store,
		archive:             archive,
		sink:                sink,
		maintenanceInterval: maintenanceInterval,
		coordinators:        make(map[string]*room.Coordinator),
		log:                 logrus.WithField("component", "hub"),
	}
}

// Coordinator returns the live coordinator for roomID, loading persisted
// state or lazily creating the room on first access. creatorUserID becomes
// the owner of a newly created room.
func (h *Hub) Coordinator(ctx context.Context, roomID, creatorUserID string) (*room.Coordinator, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if c, ok := h.coordinators[roomID]; ok {
		return c, nil
	}

	logCtx := h.log.WithField("room_id", roomID)
	r, err := h.store.LoadRoom(ctx, roomID)
	if err != nil {
		if !errors.Is(err, repository.ErrNotFound) {
			// A failed load leaves the room state unavailable until the
			// next successful load; we never guess at stale state.
			logCtx.WithError(err).Error("Room load failed")
			return nil, err
		}
		r = domain.NewRoom(roomID, roomID, domain.RoomTypeDocument, creatorUserID)
		logCtx.WithField("owner", creatorUserID).Info("Room created lazily on first access")
	}

	h.replayArchivedTail(ctx, r, logCtx)

	metrics, err := h.store.LoadMetrics(ctx, roomID)
	if err != nil {
		if !errors.Is(err, repository.ErrNotFound) {
			logCtx.WithError(err).Warn("Metrics load failed, starting fresh counters")
		}
		metrics = &domain.RoomMetrics{RoomID: roomID}
	}

	c := room.NewCoordinator(r, metrics, h.store, h.sink)
	c.StartMaintenance(h.maintenanceInterval)
	h.coordinators[roomID] = c
	return c, nil
}

// replayArchivedTail catches a freshly loaded room up with operations the
// archive recorded after the room record was last persisted, closing the
// write-back cadence gap across a restart.
func (h *Hub) replayArchivedTail(ctx context.Context, r *domain.Room, logCtx *logrus.Entry) {
	if h.archive == nil {
		return
	}
	tail, err := h.archive.OperationsAfter(ctx, r.ID, r.Document.Version, 0)
	if err != nil {
		logCtx.WithError(err).Warn("Archive replay failed, continuing with persisted state")
		return
	}
	if len(tail) == 0 {
		return
	}
	applier := document.NewApplier(r)
	replayed := 0
	for i := range tail {
		if err := applier.Apply(&tail[i]); err != nil {
			logCtx.WithError(err).WithField("revision", tail[i].Revision).Warn("Archived operation could not be replayed")
			break
		}
		replayed++
	}
	logCtx.WithFields(logrus.Fields{
		"replayed": replayed,
		"version":  r.Document.Version,
	}).Info("Replayed archived operations")
}

// Lookup returns a live coordinator without creating one.
func (h *Hub) Lookup(roomID string) (*room.Coordinator, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	c, ok := h.coordinators[roomID]
	return c, ok
}

// HandleDisconnect removes the connection's participant and retires the
// coordinator when its room is empty. The final persist already ran inside
// Leave.
func (h *Hub) HandleDisconnect(roomID, connectionID string) {
	h.mu.Lock()
	c, ok := h.coordinators[roomID]
	h.mu.Unlock()
	if !ok {
		return
	}
	if c.Leave(connectionID) {
		h.mu.Lock()
		delete(h.coordinators, roomID)
		h.mu.Unlock()
		h.log.WithField("room_id", roomID).Info("Room empty, coordinator retired")
	}
}

// Shutdown persists and stops every live coordinator.
func (h *Hub) Shutdown() {
	h.mu.Lock()
	coordinators := make([]*room.Coordinator, 0, len(h.coordinators))
	for _, c := range h.coordinators {
		coordinators = append(coordinators, c)
	}
	h.coordinators = make(map[string]*room.Coordinator)
	h.mu.Unlock()

	for _, c := range coordinators {
		c.Shutdown()
	}
	h.log.WithField("rooms", len(coordinators)).Info("Hub shut down")
}
