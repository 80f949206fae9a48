// Package document mutates a room's DocumentState with transformed
// operations. Callers must serialize access: the applier is only ever
// invoked from the coordinator's single-flight drain.
package document

import (
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"collaborative-rooms/internal/domain"
)

var (
	// ErrUnsupportedOp is returned when insert/delete is applied to a room
	// whose content is not a plain string.
	ErrUnsupportedOp = errors.New("operation not supported for this room type")
	// ErrOutOfRange is returned when an operation's position falls outside
	// the current content even after transformation.
	ErrOutOfRange = errors.New("operation position out of range")
)

// Applier applies operations to one room's document.
type Applier struct {
	room *domain.Room
	log  *logrus.Entry
}

// NewApplier creates an applier bound to room.
func NewApplier(room *domain.Room) *Applier {
	if room == nil {
		panic("room cannot be nil for Applier")
	}
	return &Applier{
		room: room,
		log:  logrus.WithFields(logrus.Fields{"component": "applier", "room_id": room.ID}),
	}
}

// Apply mutates the document with a transformed operation, appends it to the
// log, advances the version and takes a checkpoint on the snapshot cadence.
// op.Revision must already be assigned by the transform engine.
func (a *Applier) Apply(op *domain.Operation) error {
	doc := a.room.Document

	switch op.Kind {
	case domain.OpInsert:
		if !a.room.StringContent() {
			return ErrUnsupportedOp
		}
		pos := clamp(op.Position, len(doc.Content))
		doc.Content = doc.Content[:pos] + op.Content + doc.Content[pos:]
	case domain.OpDelete:
		if !a.room.StringContent() {
			return ErrUnsupportedOp
		}
		pos := clamp(op.Position, len(doc.Content))
		end := pos + op.Length
		if end > len(doc.Content) {
			end = len(doc.Content)
		}
		doc.Content = doc.Content[:pos] + doc.Content[end:]
	case domain.OpFormat:
		if doc.Attributes == nil {
			doc.Attributes = make(map[string]string)
		}
		for k, v := range op.Attributes {
			doc.Attributes[k] = v
		}
	case domain.OpRetain:
		// No content mutation; retain only advances cursor bookkeeping.
	default:
		return fmt.Errorf("applier: %w: kind %q", ErrUnsupportedOp, op.Kind)
	}

	doc.Operations = append(doc.Operations, *op)
	doc.Version = op.Revision
	doc.LastModified = op.Timestamp
	doc.LastModifiedBy = op.Author

	if op.Revision%domain.CheckpointEvery == 0 {
		a.checkpoint(op)
	}
	return nil
}

// checkpoint records a full-content snapshot, evicting the oldest entry once
// the retention bound is hit.
func (a *Applier) checkpoint(op *domain.Operation) {
	doc := a.room.Document
	doc.Checkpoints = append(doc.Checkpoints, domain.Checkpoint{
		Version:   op.Revision,
		Content:   doc.Content,
		Author:    op.Author,
		Timestamp: op.Timestamp,
	})
	if len(doc.Checkpoints) > domain.MaxCheckpoints {
		doc.Checkpoints = doc.Checkpoints[len(doc.Checkpoints)-domain.MaxCheckpoints:]
	}
	a.log.WithField("version", op.Revision).Debug("Checkpoint recorded")
}

// clamp bounds a transformed position to the current content length. The
// transform protects against drift but a stale client can still aim past
// the end.
func clamp(pos, max int) int {
	if pos < 0 {
		return 0
	}
	if pos > max {
		return max
	}
	return pos
}
