package history

import "errors"

// ErrCheckpointLost is returned when the operation a checkpoint was taken
// after has been trimmed, cleared or replaced by a new branch.
var ErrCheckpointLost = errors.New("history: checkpoint is no longer reachable")

// Checkpoint represents a point in history that can be returned to.
type Checkpoint struct {
	position int    // absolute, counting trimmed entries
	opID     string // operation just before the cursor; empty at the start
}

// CreateCheckpoint creates a checkpoint at the current history position.
func (h *History) CreateCheckpoint() Checkpoint {
	h.mu.Lock()
	defer h.mu.Unlock()

	cp := Checkpoint{position: h.dropped + h.cursor}
	if h.cursor > 0 {
		cp.opID = h.entries[h.cursor-1].ID
	}
	return cp
}

// distance returns how many redos (positive) or undos (negative) separate
// the cursor from cp.
func (h *History) distance(cp Checkpoint) (int, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	idx := cp.position - h.dropped
	if idx < 0 || idx > len(h.entries) {
		return 0, ErrCheckpointLost
	}
	if cp.opID == "" {
		if idx != 0 {
			return 0, ErrCheckpointLost
		}
	} else if idx == 0 || h.entries[idx-1].ID != cp.opID {
		return 0, ErrCheckpointLost
	}
	return idx - h.cursor, nil
}

// UndoToCheckpoint undoes all operations since the checkpoint. It returns
// the undone operations, most recent first, including those undone before
// an error stopped it.
func (h *History) UndoToCheckpoint(cp Checkpoint) ([]*Operation, error) {
	var undone []*Operation
	for {
		d, err := h.distance(cp)
		if err != nil {
			return undone, err
		}
		if d >= 0 {
			return undone, nil
		}
		op, err := h.Undo()
		if err != nil {
			return undone, err
		}
		undone = append(undone, op)
	}
}

// RedoToCheckpoint redoes operations until the checkpoint is reached.
func (h *History) RedoToCheckpoint(cp Checkpoint) ([]*Operation, error) {
	var redone []*Operation
	for {
		d, err := h.distance(cp)
		if err != nil {
			return redone, err
		}
		if d <= 0 {
			return redone, nil
		}
		op, err := h.Redo()
		if err != nil {
			return redone, err
		}
		redone = append(redone, op)
	}
}
