// Package tasks defines the asynq task types and payloads.
package tasks

import (
	"encoding/json"

	"collaborative-rooms/internal/domain"
)

const (
	// TypeOperationArchive durably archives one applied operation.
	TypeOperationArchive = "operation:archive"
)

// OperationArchivePayload carries one applied operation to the worker.
type OperationArchivePayload struct {
	RoomID    string           `json:"roomId"`
	Operation domain.Operation `json:"operation"`
}

// NewOperationArchivePayload serializes the archive payload.
func NewOperationArchivePayload(roomID string, op *domain.Operation) ([]byte, error) {
	return json.Marshal(OperationArchivePayload{RoomID: roomID, Operation: *op})
}
