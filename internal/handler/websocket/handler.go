// Package websocket handles connection upgrades and hands admitted clients
// to the hub.
package websocket

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"collaborative-rooms/internal/auth"
	"collaborative-rooms/internal/hub"
	"collaborative-rooms/internal/room"
)

// Handler upgrades join requests. Refusals happen before the upgrade with a
// distinct status per cause: 401 invalid token, 403 locked or forbidden,
// 404 missing room, 407 full, 426 non-upgrade request.
type Handler struct {
	upgrader websocket.Upgrader
	hub      *hub.Hub
	verifier *auth.Verifier
	log      *logrus.Entry
}

// NewHandler creates the upgrade handler. allowedOrigin is the browser
// origin accepted for cross-origin upgrades; "*" accepts any. Requests
// without an Origin header (non-browser clients) are always accepted.
func NewHandler(h *hub.Hub, verifier *auth.Verifier, allowedOrigin string) *Handler {
	if h == nil {
		panic("hub cannot be nil for websocket Handler")
	}
	if verifier == nil {
		panic("token verifier cannot be nil for websocket Handler")
	}
	return &Handler{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				return origin == "" || allowedOrigin == "*" || origin == allowedOrigin
			},
		},
		hub:      h,
		verifier: verifier,
		log:      logrus.WithField("component", "ws_handler"),
	}
}

// HandleConnection serves GET /ws/room/:roomId?userId&username&token&secret.
func (h *Handler) HandleConnection(c *gin.Context) {
	if !websocket.IsWebSocketUpgrade(c.Request) {
		c.JSON(http.StatusUpgradeRequired, gin.H{"error": "websocket upgrade required"})
		return
	}

	roomID := c.Param("roomId")
	if roomID == "" {
		c.JSON(http.StatusNotFound, gin.H{"error": "room not found"})
		return
	}
	userID := c.Query("userId")
	username := c.Query("username")
	token := c.Query("token")
	secret := c.Query("secret")

	logCtx := h.log.WithFields(logrus.Fields{"room_id": roomID, "user_id": userID})

	// The verifier is consulted only when the join carries both a token and
	// a user identity.
	if token != "" && userID != "" {
		payload := h.verifier.Verify(token, c.ClientIP())
		if payload == nil || payload.UserID != userID {
			logCtx.Warn("Join refused: invalid token")
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}
		if username == "" {
			username = payload.Username
		}
	}
	if username == "" {
		username = "anonymous"
	}

	coordinator, err := h.hub.Coordinator(c.Request.Context(), roomID, userID)
	if err != nil {
		logCtx.WithError(err).Warn("Join refused: room unavailable")
		c.JSON(http.StatusNotFound, gin.H{"error": "room not found"})
		return
	}

	if err := coordinator.CheckJoin(userID, secret); err != nil {
		status := http.StatusForbidden
		switch {
		case errors.Is(err, room.ErrRoomFull):
			status = http.StatusProxyAuthRequired
		case errors.Is(err, room.ErrRoomLocked), errors.Is(err, room.ErrPrivateRoom), errors.Is(err, room.ErrInvalidSecret):
			status = http.StatusForbidden
		}
		logCtx.WithError(err).Info("Join refused")
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade writes its own HTTP error response.
		logCtx.WithError(err).Error("Upgrade failed")
		return
	}

	connectionID := uuid.NewString()
	client := hub.NewClient(h.hub, conn, coordinator, connectionID)

	if _, err := coordinator.Join(connectionID, userID, username, client); err != nil {
		// The eligibility check raced with another join; the session was
		// never created, so close without a leave.
		logCtx.WithError(err).Info("Join refused after upgrade")
		_ = conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.ClosePolicyViolation, err.Error()))
		client.Close()
		return
	}

	client.Run()
	logCtx.WithField("connection_id", connectionID).Info("Client connected")
}
