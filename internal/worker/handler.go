package worker

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"

	"collaborative-rooms/internal/repository"
	"collaborative-rooms/internal/tasks"
)

// OperationArchiveHandler writes applied operations into the relational
// archive.
type OperationArchiveHandler struct {
	archive repository.ArchiveRepository
	log     *logrus.Entry
}

// NewOperationArchiveHandler creates the handler.
func NewOperationArchiveHandler(archive repository.ArchiveRepository) *OperationArchiveHandler {
	if archive == nil {
		panic("archive repository cannot be nil for OperationArchiveHandler")
	}
	return &OperationArchiveHandler{
		archive: archive,
		log:     logrus.WithField("component", "archive_handler"),
	}
}

// ProcessTask handles one operation:archive task. Returning an error lets
// asynq retry with backoff.
func (h *OperationArchiveHandler) ProcessTask(ctx context.Context, task *asynq.Task) error {
	var payload tasks.OperationArchivePayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		// A payload that cannot decode will never succeed; skip retries.
		h.log.WithError(err).Error("Undecodable archive payload, dropping task")
		return fmt.Errorf("decode archive payload: %v: %w", err, asynq.SkipRetry)
	}
	if err := h.archive.SaveOperation(ctx, payload.RoomID, &payload.Operation); err != nil {
		return fmt.Errorf("archive operation %s: %w", payload.Operation.ID, err)
	}
	h.log.WithFields(logrus.Fields{
		"room_id":  payload.RoomID,
		"revision": payload.Operation.Revision,
	}).Debug("Operation archived")
	return nil
}
