package document_test

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"collaborative-rooms/internal/document"
	"collaborative-rooms/internal/domain"
)

func newTestRoom(roomType domain.RoomType) *domain.Room {
	return domain.NewRoom("r1", "test room", roomType, "owner-1")
}

func TestApplier_InsertAndDelete(t *testing.T) {
	room := newTestRoom(domain.RoomTypeDocument)
	applier := document.NewApplier(room)

	insert := &domain.Operation{
		ID: "1", Kind: domain.OpInsert, Position: 0, Content: "hello",
		Author: "a", Timestamp: time.Now(), Revision: 1,
	}
	require.NoError(t, applier.Apply(insert))
	assert.Equal(t, "hello", room.Document.Content)
	assert.Equal(t, uint64(1), room.Document.Version)

	del := &domain.Operation{
		ID: "2", Kind: domain.OpDelete, Position: 0, Length: 2,
		Author: "a", Timestamp: time.Now(), Revision: 2,
	}
	require.NoError(t, applier.Apply(del))
	assert.Equal(t, "llo", room.Document.Content)
	assert.Equal(t, uint64(2), room.Document.Version)
	assert.Equal(t, "a", room.Document.LastModifiedBy)
	assert.Len(t, room.Document.Operations, 2)
}

func TestApplier_InsertMidContent(t *testing.T) {
	room := newTestRoom(domain.RoomTypeCode)
	applier := document.NewApplier(room)

	require.NoError(t, applier.Apply(&domain.Operation{Kind: domain.OpInsert, Position: 0, Content: "acd", Revision: 1}))
	require.NoError(t, applier.Apply(&domain.Operation{Kind: domain.OpInsert, Position: 1, Content: "b", Revision: 2}))
	assert.Equal(t, "abcd", room.Document.Content)
}

func TestApplier_DeleteBeyondEndTruncates(t *testing.T) {
	room := newTestRoom(domain.RoomTypeDocument)
	applier := document.NewApplier(room)

	require.NoError(t, applier.Apply(&domain.Operation{Kind: domain.OpInsert, Position: 0, Content: "abc", Revision: 1}))
	require.NoError(t, applier.Apply(&domain.Operation{Kind: domain.OpDelete, Position: 1, Length: 99, Revision: 2}))
	assert.Equal(t, "a", room.Document.Content)
}

func TestApplier_FormatMergesAttributes(t *testing.T) {
	room := newTestRoom(domain.RoomTypeWhiteboard)
	applier := document.NewApplier(room)

	require.NoError(t, applier.Apply(&domain.Operation{
		Kind: domain.OpFormat, Attributes: map[string]string{"10:20": "#ff0000"}, Revision: 1,
	}))
	require.NoError(t, applier.Apply(&domain.Operation{
		Kind: domain.OpFormat, Attributes: map[string]string{"10:20": "#00ff00", "5:5": "#0000ff"}, Revision: 2,
	}))

	assert.Equal(t, "#00ff00", room.Document.Attributes["10:20"])
	assert.Equal(t, "#0000ff", room.Document.Attributes["5:5"])
	assert.Equal(t, uint64(2), room.Document.Version)
}

func TestApplier_RetainAdvancesVersionOnly(t *testing.T) {
	room := newTestRoom(domain.RoomTypeDocument)
	applier := document.NewApplier(room)

	require.NoError(t, applier.Apply(&domain.Operation{Kind: domain.OpInsert, Position: 0, Content: "abc", Revision: 1}))
	require.NoError(t, applier.Apply(&domain.Operation{Kind: domain.OpRetain, Position: 0, Length: 3, Revision: 2}))
	assert.Equal(t, "abc", room.Document.Content)
	assert.Equal(t, uint64(2), room.Document.Version)
}

func TestApplier_RejectsSpliceOnStructuredRoom(t *testing.T) {
	room := newTestRoom(domain.RoomTypeSlides)
	applier := document.NewApplier(room)

	err := applier.Apply(&domain.Operation{Kind: domain.OpInsert, Position: 0, Content: "x", Revision: 1})
	assert.ErrorIs(t, err, document.ErrUnsupportedOp)
	assert.Equal(t, uint64(0), room.Document.Version)
	assert.Empty(t, room.Document.Operations)
}

func TestApplier_MonotonicRevisions(t *testing.T) {
	room := newTestRoom(domain.RoomTypeDocument)
	applier := document.NewApplier(room)

	for i := 1; i <= 120; i++ {
		op := &domain.Operation{
			ID: fmt.Sprintf("op-%d", i), Kind: domain.OpInsert, Position: 0,
			Content: "x", Timestamp: time.Now(), Revision: uint64(i),
		}
		require.NoError(t, applier.Apply(op))
		assert.Equal(t, uint64(i), room.Document.Version)
	}

	var last uint64
	for _, op := range room.Document.Operations {
		assert.Greater(t, op.Revision, last)
		last = op.Revision
	}
}

func TestApplier_CheckpointCadenceAndBound(t *testing.T) {
	room := newTestRoom(domain.RoomTypeDocument)
	applier := document.NewApplier(room)

	// 25 checkpoint-eligible revisions; retention keeps only the last 20.
	total := domain.CheckpointEvery * 25
	for i := 1; i <= total; i++ {
		require.NoError(t, applier.Apply(&domain.Operation{
			Kind: domain.OpInsert, Position: 0, Content: "x", Revision: uint64(i),
		}))
	}

	require.Len(t, room.Document.Checkpoints, domain.MaxCheckpoints)
	first := room.Document.Checkpoints[0]
	latest := room.Document.Checkpoints[len(room.Document.Checkpoints)-1]
	assert.Equal(t, uint64(domain.CheckpointEvery*6), first.Version)
	assert.Equal(t, uint64(total), latest.Version)
	assert.Len(t, latest.Content, total)
}
