// Package http serves the administrative surface for live rooms: state and
// metrics reads, operation resync, history, export and the lock/unlock/kick
// actions.
package http

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"collaborative-rooms/internal/domain"
	"collaborative-rooms/internal/hub"
)

// RoomHandler exposes a live room's coordinator over HTTP.
type RoomHandler struct {
	hub *hub.Hub
	log *logrus.Entry
}

// NewRoomHandler creates the handler.
func NewRoomHandler(h *hub.Hub) *RoomHandler {
	if h == nil {
		panic("hub cannot be nil for RoomHandler")
	}
	return &RoomHandler{hub: h, log: logrus.WithField("component", "http_handler")}
}

// coordinator resolves the live coordinator or answers 404. The admin
// surface never creates rooms.
func (h *RoomHandler) coordinator(c *gin.Context) (coord roomCoordinator, ok bool) {
	roomID := c.Param("roomId")
	live, found := h.hub.Lookup(roomID)
	if !found {
		ErrorResponse(c, http.StatusNotFound, "room not live")
		return nil, false
	}
	return live, true
}

// roomCoordinator is the read/admin surface the handler needs. Narrowed for
// handler tests.
type roomCoordinator interface {
	Snapshot() domain.RoomSnapshot
	Metrics() domain.RoomMetrics
	OperationsAfter(from uint64) []domain.Operation
	History() ([]domain.Operation, []domain.Checkpoint, uint64)
	Content() (string, uint64)
	Lock()
	Unlock()
	Kick(connectionID string) error
}

// GetDocument serves GET /api/rooms/:roomId/document with the room snapshot
// plus metrics.
func (h *RoomHandler) GetDocument(c *gin.Context) {
	coord, ok := h.coordinator(c)
	if !ok {
		return
	}
	SuccessResponse(c, http.StatusOK, gin.H{
		"room":    coord.Snapshot(),
		"metrics": coord.Metrics(),
	})
}

// GetOperations serves GET /api/rooms/:roomId/operations?from=<revision> for
// client resync.
func (h *RoomHandler) GetOperations(c *gin.Context) {
	coord, ok := h.coordinator(c)
	if !ok {
		return
	}
	from, err := strconv.ParseUint(c.DefaultQuery("from", "0"), 10, 64)
	if err != nil {
		ErrorResponse(c, http.StatusBadRequest, "invalid from revision")
		return
	}
	ops := coord.OperationsAfter(from)
	SuccessResponse(c, http.StatusOK, gin.H{"operations": ops, "from": from})
}

// GetHistory serves GET /api/rooms/:roomId/history: full log, checkpoints
// and current version.
func (h *RoomHandler) GetHistory(c *gin.Context) {
	coord, ok := h.coordinator(c)
	if !ok {
		return
	}
	ops, checkpoints, version := coord.History()
	SuccessResponse(c, http.StatusOK, gin.H{
		"operations":  ops,
		"checkpoints": checkpoints,
		"version":     version,
	})
}

// Export serves GET /api/rooms/:roomId/export?format=json|txt as a document
// download.
func (h *RoomHandler) Export(c *gin.Context) {
	coord, ok := h.coordinator(c)
	if !ok {
		return
	}
	format := c.DefaultQuery("format", "json")
	switch format {
	case "json":
		snapshot := coord.Snapshot()
		c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%s.json", snapshot.RoomID))
		c.JSON(http.StatusOK, snapshot.Document)
	case "txt":
		content, _ := coord.Content()
		c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%s.txt", c.Param("roomId")))
		c.Data(http.StatusOK, "text/plain; charset=utf-8", []byte(content))
	default:
		ErrorResponse(c, http.StatusBadRequest, "unsupported export format: "+format)
	}
}

// Lock serves POST /api/rooms/:roomId/lock.
func (h *RoomHandler) Lock(c *gin.Context) {
	coord, ok := h.coordinator(c)
	if !ok {
		return
	}
	coord.Lock()
	h.log.WithField("room_id", c.Param("roomId")).Info("Room locked by admin")
	SuccessResponse(c, http.StatusOK, gin.H{"status": domain.RoomLocked})
}

// Unlock serves POST /api/rooms/:roomId/unlock.
func (h *RoomHandler) Unlock(c *gin.Context) {
	coord, ok := h.coordinator(c)
	if !ok {
		return
	}
	coord.Unlock()
	h.log.WithField("room_id", c.Param("roomId")).Info("Room unlocked by admin")
	SuccessResponse(c, http.StatusOK, gin.H{"status": domain.RoomActive})
}

// Kick serves POST /api/rooms/:roomId/kick?connectionId=<id>.
func (h *RoomHandler) Kick(c *gin.Context) {
	coord, ok := h.coordinator(c)
	if !ok {
		return
	}
	connectionID := c.Query("connectionId")
	if connectionID == "" {
		ErrorResponse(c, http.StatusBadRequest, "connectionId is required")
		return
	}
	if err := coord.Kick(connectionID); err != nil {
		ErrorResponse(c, http.StatusNotFound, "connection not found")
		return
	}
	h.log.WithFields(logrus.Fields{
		"room_id":       c.Param("roomId"),
		"connection_id": connectionID,
	}).Info("Participant kicked by admin")
	SuccessResponse(c, http.StatusOK, gin.H{"kicked": connectionID})
}
