package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

// OpKind is the kind of a single edit instruction.
type OpKind string

const (
	OpInsert    OpKind = "insert"
	OpDelete    OpKind = "delete"
	OpRetain    OpKind = "retain"
	OpFormat    OpKind = "format"
	OpCursor    OpKind = "cursor"
	OpSelection OpKind = "selection"
)

// Operation is one atomic edit. Immutable once recorded; recorded operations
// form the append-only log in DocumentState ordered by strictly increasing
// Revision.
type Operation struct {
	ID       string `json:"id"`
	Kind     OpKind `json:"kind"`
	Position int    `json:"position"`
	// Content is set for insert, Length for delete/retain, Attributes for
	// format. The unused fields stay at their zero values.
	Content    string            `json:"content,omitempty"`
	Length     int               `json:"length,omitempty"`
	Attributes map[string]string `json:"attributes,omitempty"`
	Author     string            `json:"author,omitempty"`
	Timestamp  time.Time         `json:"timestamp"`
	Revision   uint64            `json:"revision"`
}

// Span returns the length of the document range the operation touches.
func (op *Operation) Span() int {
	switch op.Kind {
	case OpInsert:
		return len(op.Content)
	case OpDelete, OpRetain:
		return op.Length
	}
	return 0
}

// Validate rejects operations that can never be applied regardless of
// document state.
func (op *Operation) Validate() error {
	switch op.Kind {
	case OpInsert:
		if op.Content == "" {
			return fmt.Errorf("insert operation without content")
		}
	case OpDelete:
		if op.Length <= 0 {
			return fmt.Errorf("delete operation with non-positive length %d", op.Length)
		}
	case OpRetain, OpFormat, OpCursor, OpSelection:
	default:
		return fmt.Errorf("unknown operation kind %q", op.Kind)
	}
	if op.Position < 0 {
		return fmt.Errorf("operation position %d is negative", op.Position)
	}
	return nil
}

// DecodeOperation parses an operation from a message envelope's data field.
func DecodeOperation(data json.RawMessage) (*Operation, error) {
	var op Operation
	if err := json.Unmarshal(data, &op); err != nil {
		return nil, fmt.Errorf("decode operation: %w", err)
	}
	if err := op.Validate(); err != nil {
		return nil, err
	}
	return &op, nil
}
