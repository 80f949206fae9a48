// Package gormpersistence implements the relational operation archive.
package gormpersistence

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"gorm.io/gorm"

	"collaborative-rooms/internal/domain"
)

// OperationRecord is the archived form of an applied operation. Attribute
// maps are flattened to JSON so the schema stays driver-agnostic.
type OperationRecord struct {
	ID         uint      `gorm:"primaryKey"`
	RoomID     string    `gorm:"size:64;index:idx_room_revision,priority:1;not null"`
	OpID       string    `gorm:"size:64;not null"`
	Kind       string    `gorm:"size:16;not null"`
	Position   int       `gorm:"not null"`
	Length     int       `gorm:"not null"`
	Content    string    `gorm:"type:text"`
	Attributes string    `gorm:"type:text"`
	Author     string    `gorm:"size:64;index"`
	Revision   uint64    `gorm:"index:idx_room_revision,priority:2;not null"`
	AppliedAt  time.Time `gorm:"index;not null"`
	CreatedAt  time.Time `gorm:"autoCreateTime"`
}

// OperationRepository is the GORM implementation of repository.ArchiveRepository.
type OperationRepository struct {
	db *gorm.DB
}

// NewOperationRepository creates the repository.
func NewOperationRepository(db *gorm.DB) *OperationRepository {
	if db == nil {
		panic("database connection cannot be nil for OperationRepository")
	}
	return &OperationRepository{db: db}
}

// Migrate creates the archive table.
func (r *OperationRepository) Migrate() error {
	return r.db.AutoMigrate(&OperationRecord{})
}

// SaveOperation appends one applied operation to the archive.
func (r *OperationRepository) SaveOperation(ctx context.Context, roomID string, op *domain.Operation) error {
	record, err := toRecord(roomID, op)
	if err != nil {
		return err
	}
	if err := r.db.WithContext(ctx).Create(record).Error; err != nil {
		return fmt.Errorf("gorm: save operation %s for room %s: %w", op.ID, roomID, err)
	}
	return nil
}

// OperationsAfter returns archived operations with revision > from in
// ascending revision order. limit <= 0 means no limit.
func (r *OperationRepository) OperationsAfter(ctx context.Context, roomID string, from uint64, limit int) ([]domain.Operation, error) {
	query := r.db.WithContext(ctx).
		Where("room_id = ? AND revision > ?", roomID, from).
		Order("revision asc")
	if limit > 0 {
		query = query.Limit(limit)
	}
	var records []OperationRecord
	if err := query.Find(&records).Error; err != nil {
		return nil, fmt.Errorf("gorm: list operations for room %s after %d: %w", roomID, from, err)
	}
	ops := make([]domain.Operation, 0, len(records))
	for i := range records {
		op, err := fromRecord(&records[i])
		if err != nil {
			return nil, err
		}
		ops = append(ops, *op)
	}
	return ops, nil
}

func toRecord(roomID string, op *domain.Operation) (*OperationRecord, error) {
	var attrs string
	if len(op.Attributes) > 0 {
		b, err := json.Marshal(op.Attributes)
		if err != nil {
			return nil, fmt.Errorf("gorm: marshal attributes for operation %s: %w", op.ID, err)
		}
		attrs = string(b)
	}
	return &OperationRecord{
		RoomID:     roomID,
		OpID:       op.ID,
		Kind:       string(op.Kind),
		Position:   op.Position,
		Length:     op.Length,
		Content:    op.Content,
		Attributes: attrs,
		Author:     op.Author,
		Revision:   op.Revision,
		AppliedAt:  op.Timestamp,
	}, nil
}

func fromRecord(rec *OperationRecord) (*domain.Operation, error) {
	op := &domain.Operation{
		ID:        rec.OpID,
		Kind:      domain.OpKind(rec.Kind),
		Position:  rec.Position,
		Length:    rec.Length,
		Content:   rec.Content,
		Author:    rec.Author,
		Timestamp: rec.AppliedAt,
		Revision:  rec.Revision,
	}
	if rec.Attributes != "" {
		if err := json.Unmarshal([]byte(rec.Attributes), &op.Attributes); err != nil {
			return nil, fmt.Errorf("gorm: unmarshal attributes for operation %s: %w", rec.OpID, err)
		}
	}
	return op, nil
}
