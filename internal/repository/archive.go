package repository

import (
	"context"

	"collaborative-rooms/internal/domain"
)

// ArchiveRepository is the durable relational archive of applied operations.
// Written asynchronously by the background worker; the in-memory operation
// log stays authoritative for live rooms.
type ArchiveRepository interface {
	// SaveOperation appends one applied operation to the archive.
	SaveOperation(ctx context.Context, roomID string, op *domain.Operation) error

	// OperationsAfter returns archived operations for roomID with revision
	// greater than from, in ascending revision order.
	OperationsAfter(ctx context.Context, roomID string, from uint64, limit int) ([]domain.Operation, error)
}
