// Package ot implements the positional operational-transform engine.
//
// The model is best-effort last-applied-wins reconciliation: an incoming
// operation is transformed against every already-applied operation in
// ascending revision order, accumulating position shifts so concurrent edits
// do not drift. It protects positions, not semantic intent, and resolves
// overlapping three-way edits purely by revision order.
package ot

import "collaborative-rooms/internal/domain"

// Result is the outcome of transforming one incoming operation.
type Result struct {
	Op *domain.Operation
	// Conflicts counts the historical operations whose affected range
	// overlapped the incoming one.
	Conflicts int
}

// Transform adjusts incoming against the applied history and stamps it with
// the next revision. history must be in ascending revision order; only
// operations with revision > sinceRevision are considered, so a client that
// reports the revision it last saw is transformed against exactly the edits
// it missed.
//
// Shift rules: a historical insert at or before the incoming position pushes
// it right by the inserted length; a historical delete strictly before pulls
// it left by the deleted length. Format and retain never shift anything.
// The adjustment is cumulative across the history walk.
func Transform(incoming *domain.Operation, history []domain.Operation, sinceRevision, currentRevision uint64) Result {
	op := *incoming
	conflicts := 0

	for i := range history {
		applied := &history[i]
		if applied.Revision <= sinceRevision {
			continue
		}
		if !positional(op.Kind) || !positional(applied.Kind) {
			continue
		}
		if Conflicts(&op, applied) {
			conflicts++
		}
		switch applied.Kind {
		case domain.OpInsert:
			if applied.Position <= op.Position {
				op.Position += applied.Span()
			}
		case domain.OpDelete:
			if applied.Position < op.Position {
				// Never pull the position past the start of the deleted
				// range: an edit inside deleted text lands at its boundary.
				if op.Position-applied.Span() < applied.Position {
					op.Position = applied.Position
				} else {
					op.Position -= applied.Span()
				}
			}
		}
	}

	op.Revision = currentRevision + 1
	return Result{Op: &op, Conflicts: conflicts}
}

// Conflicts reports whether two operations affect overlapping ranges
// [position, position+span) and both are of a kind that moves content.
// Format and retain never conflict.
func Conflicts(a, b *domain.Operation) bool {
	if !positional(a.Kind) || !positional(b.Kind) {
		return false
	}
	aEnd := a.Position + a.Span()
	bEnd := b.Position + b.Span()
	return a.Position < bEnd && b.Position < aEnd
}

func positional(k domain.OpKind) bool {
	return k == domain.OpInsert || k == domain.OpDelete
}
