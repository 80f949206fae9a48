package domain

import "time"

// Role is a participant's role within one room.
type Role string

const (
	RoleOwner     Role = "owner"
	RoleEditor    Role = "editor"
	RoleCommenter Role = "commenter"
	RoleViewer    Role = "viewer"
)

// Permission is a single capability inside a room.
type Permission string

const (
	PermRead    Permission = "read"
	PermWrite   Permission = "write"
	PermDelete  Permission = "delete"
	PermAdmin   Permission = "admin"
	PermShare   Permission = "share"
	PermChat    Permission = "chat"
	PermComment Permission = "comment"
)

// rolePermissions is the fixed role-to-permission table. Permissions are
// derived from the role, never stored independently.
var rolePermissions = map[Role][]Permission{
	RoleOwner:     {PermRead, PermWrite, PermDelete, PermAdmin, PermShare, PermChat},
	RoleEditor:    {PermRead, PermWrite, PermChat},
	RoleCommenter: {PermRead, PermComment, PermChat},
	RoleViewer:    {PermRead},
}

// PermissionsFor returns the permission set for a role. Unknown roles get
// the viewer set.
func PermissionsFor(role Role) []Permission {
	perms, ok := rolePermissions[role]
	if !ok {
		perms = rolePermissions[RoleViewer]
	}
	out := make([]Permission, len(perms))
	copy(out, perms)
	return out
}

// PresenceStatus is a participant's self-reported activity state.
type PresenceStatus string

const (
	PresenceActive PresenceStatus = "active"
	PresenceIdle   PresenceStatus = "idle"
	PresenceAway   PresenceStatus = "away"
)

// CursorState is a live cursor or selection within the document. Not
// persisted and never bumps the document revision.
type CursorState struct {
	Position int `json:"position"`
	// SelectionEnd < 0 means a bare cursor with no selection.
	SelectionEnd int `json:"selectionEnd"`
}

// Participant is one connected session within a room. ConnectionID is unique
// per live connection and not stable across reconnects; UserID (optional)
// identifies the underlying user.
type Participant struct {
	UserID       string         `json:"userId,omitempty"`
	ConnectionID string         `json:"connectionId"`
	Name         string         `json:"name"`
	Role         Role           `json:"role"`
	Permissions  []Permission   `json:"permissions"`
	JoinedAt     time.Time      `json:"joinedAt"`
	LastActivity time.Time      `json:"lastActivity"`
	Cursor       *CursorState   `json:"cursor,omitempty"`
	Presence     PresenceStatus `json:"presence"`
	Color        string         `json:"color"`
}

// Can reports whether the participant holds the given permission.
func (p *Participant) Can(perm Permission) bool {
	for _, have := range p.Permissions {
		if have == perm {
			return true
		}
	}
	return false
}

// participantColors is the palette cycled through as sessions join.
var participantColors = []string{
	"#e6194b", "#3cb44b", "#ffe119", "#4363d8", "#f58231",
	"#911eb4", "#46f0f0", "#f032e6", "#bcf60c", "#008080",
}

// ColorForIndex assigns a display color by join order.
func ColorForIndex(i int) string {
	if i < 0 {
		i = 0
	}
	return participantColors[i%len(participantColors)]
}
