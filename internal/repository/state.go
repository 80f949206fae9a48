package repository

import (
	"context"
	"time"

	"collaborative-rooms/internal/domain"
)

// StateRepository is the persistent store adapter for room state. Two
// logical records exist per room: the full room record and its metrics
// record. The adapter carries no logic of its own.
type StateRepository interface {
	// SaveRoom durably writes the full room record.
	SaveRoom(ctx context.Context, room *domain.Room) error

	// LoadRoom reads a room record. Returns ErrNotFound if the room has
	// never been persisted.
	LoadRoom(ctx context.Context, roomID string) (*domain.Room, error)

	// SaveMetrics durably writes the room's metrics record.
	SaveMetrics(ctx context.Context, metrics *domain.RoomMetrics) error

	// LoadMetrics reads the metrics record. Returns ErrNotFound when absent.
	LoadMetrics(ctx context.Context, roomID string) (*domain.RoomMetrics, error)

	// CheckRateLimit increments the counter for key and reports whether the
	// request rate exceeded limit within window.
	CheckRateLimit(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}
