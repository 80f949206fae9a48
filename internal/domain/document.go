package domain

import "time"

const (
	// CheckpointEvery controls the snapshot cadence: a checkpoint is taken
	// on every multiple of this revision number.
	CheckpointEvery = 50
	// MaxCheckpoints bounds the retained snapshot list; oldest evicted first.
	MaxCheckpoints = 20
)

// Checkpoint is a periodic full-content snapshot. Checkpoints are a sparse
// cache of history, never authoritative over the operation log.
type Checkpoint struct {
	Version   uint64    `json:"version"`
	Content   string    `json:"content"`
	Author    string    `json:"author,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// DocumentState is the materialized document plus its history.
//
// Invariant: Version equals the revision of the last applied operation, and
// Operations is ordered by strictly increasing revision.
type DocumentState struct {
	Content        string            `json:"content"`
	Attributes     map[string]string `json:"attributes,omitempty"`
	Version        uint64            `json:"version"`
	LastModified   time.Time         `json:"lastModified"`
	LastModifiedBy string            `json:"lastModifiedBy,omitempty"`
	Operations     []Operation       `json:"operations"`
	Checkpoints    []Checkpoint      `json:"checkpoints,omitempty"`
}

// NewDocumentState returns an empty document at version 0.
func NewDocumentState() *DocumentState {
	return &DocumentState{
		Attributes: make(map[string]string),
		Operations: make([]Operation, 0),
	}
}

// Clone returns a deep copy safe to marshal after the coordinator lock is
// released. Recorded operations are immutable, so their attribute maps are
// shared.
func (d *DocumentState) Clone() *DocumentState {
	cp := *d
	if d.Attributes != nil {
		cp.Attributes = make(map[string]string, len(d.Attributes))
		for k, v := range d.Attributes {
			cp.Attributes[k] = v
		}
	}
	cp.Operations = append([]Operation(nil), d.Operations...)
	cp.Checkpoints = append([]Checkpoint(nil), d.Checkpoints...)
	return &cp
}

// OperationsAfter returns recorded operations with revision > from, in log
// order. Used for client resync.
func (d *DocumentState) OperationsAfter(from uint64) []Operation {
	out := make([]Operation, 0)
	for _, op := range d.Operations {
		if op.Revision > from {
			out = append(out, op)
		}
	}
	return out
}
