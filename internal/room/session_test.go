package room_test

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"collaborative-rooms/internal/domain"
	"collaborative-rooms/internal/room"
)

func TestSessionManager_CanJoin(t *testing.T) {
	tests := []struct {
		name      string
		isPublic  bool
		anonymous bool
		approval  bool
		userID    string
		wantErr   error
	}{
		{name: "public room admits anyone", isPublic: true, userID: "u1"},
		{name: "owner joins private room", userID: "owner-1"},
		{name: "anonymous allowed without approval", anonymous: true, userID: ""},
		{name: "anonymous blocked by approval", anonymous: true, approval: true, userID: "", wantErr: room.ErrPrivateRoom},
		{name: "identified stranger blocked from private room", userID: "stranger", wantErr: room.ErrPrivateRoom},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := domain.NewRoom("r1", "r1", domain.RoomTypeDocument, "owner-1")
			r.Settings.IsPublic = tt.isPublic
			r.Settings.AllowAnonymous = tt.anonymous
			r.Settings.RequireApproval = tt.approval
			sm := room.NewSessionManager(r)

			err := sm.CanJoin(tt.userID)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestSessionManager_AdmitRoleDerivation(t *testing.T) {
	r := domain.NewRoom("r1", "r1", domain.RoomTypeDocument, "owner-1")
	r.Invitations = map[string]domain.Role{"editor-1": domain.RoleEditor}
	sm := room.NewSessionManager(r)

	owner, err := sm.Admit("c1", "owner-1", "Owner", &fakeSender{})
	require.NoError(t, err)
	assert.Equal(t, domain.RoleOwner, owner.Participant.Role)
	assert.True(t, owner.Participant.Can(domain.PermAdmin))

	editor, err := sm.Admit("c2", "editor-1", "Editor", &fakeSender{})
	require.NoError(t, err)
	assert.Equal(t, domain.RoleEditor, editor.Participant.Role)
	assert.True(t, editor.Participant.Can(domain.PermWrite))
	assert.False(t, editor.Participant.Can(domain.PermAdmin))

	viewer, err := sm.Admit("c3", "someone", "Viewer", &fakeSender{})
	require.NoError(t, err)
	assert.Equal(t, domain.RoleViewer, viewer.Participant.Role)
	assert.False(t, viewer.Participant.Can(domain.PermWrite))
	assert.True(t, viewer.Participant.Can(domain.PermRead))

	// Admission mutates the room's participant collection.
	assert.Len(t, r.Participants, 3)
	assert.False(t, r.Metadata.UpdatedAt.Equal(r.Metadata.CreatedAt))
}

func TestSessionManager_CapacityAndLocked(t *testing.T) {
	r := domain.NewRoom("r1", "r1", domain.RoomTypeDocument, "owner-1")
	r.Settings.MaxParticipants = 2
	sm := room.NewSessionManager(r)

	for i := 0; i < 2; i++ {
		_, err := sm.Admit(fmt.Sprintf("c%d", i), "", "guest", &fakeSender{})
		require.NoError(t, err)
	}

	_, err := sm.Admit("c-over", "", "late", &fakeSender{})
	assert.ErrorIs(t, err, room.ErrRoomFull)
	// Capacity and locked are distinct refusals.
	assert.NotErrorIs(t, err, room.ErrRoomLocked)
	assert.Equal(t, 2, sm.Count())

	r.Status = domain.RoomLocked
	_, err = sm.Admit("c-locked", "", "late", &fakeSender{})
	assert.ErrorIs(t, err, room.ErrRoomLocked)
}

func TestSessionManager_RemoveReportsEmpty(t *testing.T) {
	r := domain.NewRoom("r1", "r1", domain.RoomTypeDocument, "owner-1")
	sm := room.NewSessionManager(r)

	_, err := sm.Admit("c1", "", "a", &fakeSender{})
	require.NoError(t, err)
	_, err = sm.Admit("c2", "", "b", &fakeSender{})
	require.NoError(t, err)

	assert.False(t, sm.Remove("c1"))
	assert.True(t, sm.Remove("c2"))
	assert.Empty(t, r.Participants)

	// Removing an unknown connection is a no-op on an empty room.
	assert.True(t, sm.Remove("c1"))
}

func TestSessionManager_AccessSecret(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("sesame"), bcrypt.MinCost)
	require.NoError(t, err)

	r := domain.NewRoom("r1", "r1", domain.RoomTypeDocument, "owner-1")
	r.Settings.AccessSecretHash = string(hash)
	sm := room.NewSessionManager(r)

	assert.NoError(t, sm.CheckSecret("guest", "sesame"))
	assert.ErrorIs(t, sm.CheckSecret("guest", "wrong"), room.ErrInvalidSecret)
	// The owner is exempt.
	assert.NoError(t, sm.CheckSecret("owner-1", ""))
}

func TestSessionManager_ColorsAssignedByJoinOrder(t *testing.T) {
	r := domain.NewRoom("r1", "r1", domain.RoomTypeDocument, "owner-1")
	sm := room.NewSessionManager(r)

	a, _ := sm.Admit("c1", "", "a", &fakeSender{})
	b, _ := sm.Admit("c2", "", "b", &fakeSender{})
	assert.NotEqual(t, a.Participant.Color, b.Participant.Color)
}
