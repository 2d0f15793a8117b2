package history

import (
	"errors"
	"fmt"
	"sync"

	"github.com/dshills/docforge/internal/version"
)

// Common errors for history operations.
var (
	ErrNothingToUndo = errors.New("nothing to undo")
	ErrNothingToRedo = errors.New("nothing to redo")
	ErrNotApplied    = errors.New("history: only applied operations can be recorded")
)

// DefaultMaxEntries is used when no positive limit is configured.
const DefaultMaxEntries = 1000

// LeafMover applies leaf pointer changes atomically.
// *version.Store implements it.
type LeafMover interface {
	SetLeaves(changes []version.LeafChange) error
}

// History is a linear undo/redo stack of applied operations.
//
// Entries before the cursor are undoable; entries at or after it are
// redoable. Pushing a new operation discards the redoable tail.
type History struct {
	mu sync.Mutex

	leaves  LeafMover
	entries []*Operation
	cursor  int

	// dropped counts entries trimmed from the front, so checkpoints keep
	// pointing at the same operation after trimming.
	dropped int

	maxEntries int
}

// New creates a history that moves leaves through leaves.
func New(leaves LeafMover, maxEntries int) *History {
	if maxEntries <= 0 {
		maxEntries = DefaultMaxEntries
	}
	return &History{
		leaves:     leaves,
		maxEntries: maxEntries,
	}
}

// Push records an applied operation at the cursor, discarding any
// redoable entries.
func (h *History) Push(op *Operation) error {
	if op == nil || op.Status != StatusApplied {
		return ErrNotApplied
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	clear(h.entries[h.cursor:])
	h.entries = append(h.entries[:h.cursor], op)
	h.cursor++
	h.trimLocked()
	return nil
}

func (h *History) trimLocked() {
	if len(h.entries) <= h.maxEntries {
		return
	}
	excess := len(h.entries) - h.maxEntries
	clear(h.entries[:excess])
	h.entries = h.entries[excess:]
	h.cursor -= excess
	if h.cursor < 0 {
		h.cursor = 0
	}
	h.dropped += excess
}

// Undo reverts the operation before the cursor.
func (h *History) Undo() (*Operation, error) {
	return h.UndoIf(nil)
}

// UndoIf is Undo with a guard. guard runs under the history lock with a
// copy of the operation about to be undone; if it returns an error nothing
// changes.
func (h *History) UndoIf(guard func(*Operation) error) (*Operation, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.cursor == 0 {
		return nil, ErrNothingToUndo
	}
	op := h.entries[h.cursor-1]
	if guard != nil {
		if err := guard(op.Clone()); err != nil {
			return nil, err
		}
	}
	if err := h.leaves.SetLeaves(undoChanges(op)); err != nil {
		return nil, fmt.Errorf("undo %s: %w", op.Kind, err)
	}
	h.cursor--
	return op.Clone(), nil
}

// Redo re-applies the operation at the cursor.
func (h *History) Redo() (*Operation, error) {
	return h.RedoIf(nil)
}

// RedoIf is Redo with a guard, see UndoIf.
func (h *History) RedoIf(guard func(*Operation) error) (*Operation, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.cursor == len(h.entries) {
		return nil, ErrNothingToRedo
	}
	op := h.entries[h.cursor]
	if guard != nil {
		if err := guard(op.Clone()); err != nil {
			return nil, err
		}
	}
	if err := h.leaves.SetLeaves(redoChanges(op)); err != nil {
		return nil, fmt.Errorf("redo %s: %w", op.Kind, err)
	}
	h.cursor++
	return op.Clone(), nil
}

func undoChanges(op *Operation) []version.LeafChange {
	changes := make([]version.LeafChange, len(op.Effects))
	for i, e := range op.Effects {
		if e.Created {
			changes[i] = version.LeafChange{FileID: e.FileID, VersionID: e.After, Activation: version.Deactivate}
		} else {
			changes[i] = version.LeafChange{FileID: e.FileID, VersionID: e.Before}
		}
	}
	return changes
}

func redoChanges(op *Operation) []version.LeafChange {
	changes := make([]version.LeafChange, len(op.Effects))
	for i, e := range op.Effects {
		changes[i] = version.LeafChange{FileID: e.FileID, VersionID: e.After}
		if e.Created {
			changes[i].Activation = version.Activate
		}
	}
	return changes
}

// CanUndo returns true if undo is available.
func (h *History) CanUndo() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.cursor > 0
}

// CanRedo returns true if redo is available.
func (h *History) CanRedo() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.cursor < len(h.entries)
}

// UndoCount returns the number of undoable operations.
func (h *History) UndoCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.cursor
}

// RedoCount returns the number of redoable operations.
func (h *History) RedoCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.entries) - h.cursor
}

// PeekUndo returns a copy of the operation Undo would revert.
func (h *History) PeekUndo() (*Operation, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.cursor == 0 {
		return nil, false
	}
	return h.entries[h.cursor-1].Clone(), true
}

// PeekRedo returns a copy of the operation Redo would re-apply.
func (h *History) PeekRedo() (*Operation, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.cursor == len(h.entries) {
		return nil, false
	}
	return h.entries[h.cursor].Clone(), true
}

// Entries describes every recorded operation, oldest first.
func (h *History) Entries() []OperationInfo {
	h.mu.Lock()
	defer h.mu.Unlock()

	out := make([]OperationInfo, len(h.entries))
	for i, op := range h.entries {
		out[i] = OperationInfo{
			ID:          op.ID,
			Kind:        op.Kind,
			Description: op.Description(),
			Timestamp:   op.Timestamp,
			Undone:      i >= h.cursor,
		}
	}
	return out
}

// Clear forgets all entries. Leaves are not touched.
func (h *History) Clear() {
	h.mu.Lock()
	defer h.mu.Unlock()

	clear(h.entries)
	h.dropped += len(h.entries)
	h.entries = nil
	h.cursor = 0
}

// SetMaxEntries changes the maximum number of entries.
// If the stack is larger, the oldest entries are removed.
func (h *History) SetMaxEntries(max int) {
	if max <= 0 {
		max = DefaultMaxEntries
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	h.maxEntries = max
	h.trimLocked()
}

// MaxEntries returns the maximum number of entries.
func (h *History) MaxEntries() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.maxEntries
}
