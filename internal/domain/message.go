package domain

import (
	"encoding/json"
	"time"
)

// Inbound message types carried in the client-to-server envelope.
const (
	MsgOperation = "operation"
	MsgCursor    = "cursor"
	MsgSelection = "selection"
	MsgChat      = "chat"
	MsgPresence  = "presence"
	MsgHeartbeat = "heartbeat"
)

// Server-to-client event types.
const (
	EvtRoomJoined       = "room_joined"
	EvtUserJoined       = "user_joined"
	EvtUserLeft         = "user_left"
	EvtOperationApplied = "operation_applied"
	EvtCursorMoved      = "cursor_moved"
	EvtSelectionChanged = "selection_changed"
	EvtChatMessage      = "chat_message"
	EvtPresenceUpdated  = "presence_updated"
	EvtRoomLocked       = "room_locked"
	EvtRoomUnlocked     = "room_unlocked"
	EvtDocumentSaved    = "document_saved"
	EvtError            = "error"
)

// Envelope is the message frame in both directions.
type Envelope struct {
	Type         string          `json:"type"`
	UserID       string          `json:"userId,omitempty"`
	ConnectionID string          `json:"connectionId,omitempty"`
	Data         json.RawMessage `json:"data,omitempty"`
	Timestamp    time.Time       `json:"timestamp"`
}

// NewEvent builds an outbound envelope, marshaling data as the payload.
// Returns the serialized frame ready for the wire.
func NewEvent(eventType, connectionID string, data interface{}) ([]byte, error) {
	var raw json.RawMessage
	if data != nil {
		b, err := json.Marshal(data)
		if err != nil {
			return nil, err
		}
		raw = b
	}
	return json.Marshal(Envelope{
		Type:         eventType,
		ConnectionID: connectionID,
		Data:         raw,
		Timestamp:    time.Now(),
	})
}

// ChatPayload is the data field of a chat message.
type ChatPayload struct {
	Text string `json:"text"`
	From string `json:"from,omitempty"`
}

// PresencePayload is the data field of a presence update.
type PresencePayload struct {
	Status PresenceStatus `json:"status"`
}

// CursorPayload is the data field of cursor and selection messages.
type CursorPayload struct {
	Position     int `json:"position"`
	SelectionEnd int `json:"selectionEnd"`
}

// RoomSnapshot is the data field of the room_joined handshake: everything a
// new client needs to render current state without a second round trip.
type RoomSnapshot struct {
	RoomID       string         `json:"roomId"`
	Name         string         `json:"name"`
	Type         RoomType       `json:"type"`
	Status       RoomStatus     `json:"status"`
	Document     *DocumentState `json:"document"`
	Participants []*Participant `json:"participants"`
	Settings     RoomSettings   `json:"settings"`
	You          *Participant   `json:"you"`
}
