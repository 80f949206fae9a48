package domain

import "time"

// RoomType identifies what kind of document a room hosts. Insert/delete
// operations are only defined for the string-content types; whiteboard and
// slide rooms mutate their state through format attributes instead.
type RoomType string

const (
	RoomTypeDocument   RoomType = "document"
	RoomTypeChat       RoomType = "chat"
	RoomTypeWhiteboard RoomType = "whiteboard"
	RoomTypeCode       RoomType = "code"
	RoomTypeSlides     RoomType = "slides"
)

// RoomStatus is the room-level lifecycle state. Archived is terminal and set
// only by an external administrative action.
type RoomStatus string

const (
	RoomActive   RoomStatus = "active"
	RoomLocked   RoomStatus = "locked"
	RoomArchived RoomStatus = "archived"
)

// RoomSettings controls join eligibility and maintenance behavior.
type RoomSettings struct {
	IsPublic          bool          `json:"isPublic"`
	RequireApproval   bool          `json:"requireApproval"`
	MaxParticipants   int           `json:"maxParticipants"`
	AllowComments     bool          `json:"allowComments"`
	VersionHistory    bool          `json:"versionHistory"`
	AutoSave          bool          `json:"autoSave"`
	AutoSaveInterval  time.Duration `json:"autoSaveInterval"`
	InactivityTimeout time.Duration `json:"inactivityTimeout"`
	AllowAnonymous    bool          `json:"allowAnonymous"`
	// AccessSecretHash is a bcrypt hash of the optional room secret. Empty
	// means no secret is required.
	AccessSecretHash string `json:"accessSecretHash,omitempty"`
}

// RoomMeta carries free-form bookkeeping for a room.
type RoomMeta struct {
	CreatedAt time.Time         `json:"createdAt"`
	UpdatedAt time.Time         `json:"updatedAt"`
	Tags      map[string]string `json:"tags,omitempty"`
}

// Room is the unit of isolation and persistence: one collaboratively edited
// document plus its live session state. Exactly one coordinator owns a Room
// at a time; nothing in here is safe for shared-memory access across rooms.
type Room struct {
	ID           string                  `json:"id"`
	Name         string                  `json:"name"`
	Type         RoomType                `json:"type"`
	OwnerID      string                  `json:"ownerId"`
	Participants map[string]*Participant `json:"participants"`
	Document     *DocumentState          `json:"document"`
	Settings     RoomSettings            `json:"settings"`
	Metadata     RoomMeta                `json:"metadata"`
	Status       RoomStatus              `json:"status"`
	// Invitations maps a user ID to the role granted by a prior invitation.
	// Consulted on admit when the joiner is not the owner.
	Invitations map[string]Role `json:"invitations,omitempty"`
}

// DefaultSettings are applied when a room is created lazily on first access.
func DefaultSettings() RoomSettings {
	return RoomSettings{
		IsPublic:          true,
		MaxParticipants:   50,
		AllowComments:     true,
		VersionHistory:    true,
		AutoSave:          true,
		AutoSaveInterval:  30 * time.Second,
		InactivityTimeout: 30 * time.Minute,
		AllowAnonymous:    true,
	}
}

// NewRoom creates a room with an empty document, owned by ownerID.
func NewRoom(id, name string, roomType RoomType, ownerID string) *Room {
	now := time.Now()
	return &Room{
		ID:           id,
		Name:         name,
		Type:         roomType,
		OwnerID:      ownerID,
		Participants: make(map[string]*Participant),
		Document:     NewDocumentState(),
		Settings:     DefaultSettings(),
		Metadata:     RoomMeta{CreatedAt: now, UpdatedAt: now},
		Status:       RoomActive,
	}
}

// Touch bumps the metadata update timestamp. Called on every participant
// collection mutation.
func (r *Room) Touch() {
	r.Metadata.UpdatedAt = time.Now()
}

// StringContent reports whether the room's document content is a plain
// string that insert/delete can splice.
func (r *Room) StringContent() bool {
	switch r.Type {
	case RoomTypeDocument, RoomTypeChat, RoomTypeCode:
		return true
	}
	return false
}
