package worker_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"collaborative-rooms/internal/domain"
	"collaborative-rooms/internal/tasks"
	"collaborative-rooms/internal/worker"
)

type memArchive struct {
	mu  sync.Mutex
	ops map[string][]domain.Operation
	err error
}

func (m *memArchive) SaveOperation(_ context.Context, roomID string, op *domain.Operation) error {
	if m.err != nil {
		return m.err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ops == nil {
		m.ops = map[string][]domain.Operation{}
	}
	m.ops[roomID] = append(m.ops[roomID], *op)
	return nil
}

func (m *memArchive) OperationsAfter(_ context.Context, roomID string, from uint64, limit int) ([]domain.Operation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Operation
	for _, op := range m.ops[roomID] {
		if op.Revision > from {
			out = append(out, op)
		}
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

func TestOperationArchiveHandler_ProcessTask(t *testing.T) {
	archive := &memArchive{}
	h := worker.NewOperationArchiveHandler(archive)

	op := &domain.Operation{
		ID: "op-1", Kind: domain.OpInsert, Content: "x", Revision: 3, Timestamp: time.Now(),
	}
	payload, err := tasks.NewOperationArchivePayload("r1", op)
	require.NoError(t, err)

	err = h.ProcessTask(context.Background(), asynq.NewTask(tasks.TypeOperationArchive, payload))
	require.NoError(t, err)

	stored, err := archive.OperationsAfter(context.Background(), "r1", 0, 0)
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, "op-1", stored[0].ID)
	assert.Equal(t, uint64(3), stored[0].Revision)
}

func TestOperationArchiveHandler_UndecodablePayloadSkipsRetry(t *testing.T) {
	h := worker.NewOperationArchiveHandler(&memArchive{})

	err := h.ProcessTask(context.Background(), asynq.NewTask(tasks.TypeOperationArchive, []byte("{broken")))
	require.Error(t, err)
	assert.ErrorIs(t, err, asynq.SkipRetry)
}

func TestOperationArchiveHandler_StorageErrorRetries(t *testing.T) {
	archive := &memArchive{err: errors.New("db gone")}
	h := worker.NewOperationArchiveHandler(archive)

	payload, err := tasks.NewOperationArchivePayload("r1", &domain.Operation{ID: "op-1", Kind: domain.OpInsert, Content: "x"})
	require.NoError(t, err)

	err = h.ProcessTask(context.Background(), asynq.NewTask(tasks.TypeOperationArchive, payload))
	require.Error(t, err)
	assert.NotErrorIs(t, err, asynq.SkipRetry)
}
