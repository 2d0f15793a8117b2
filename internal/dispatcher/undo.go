package dispatcher

import (
	"context"

	"github.com/dshills/docforge/internal/event"
	"github.com/dshills/docforge/internal/history"
)

const (
	directionUndo = "undo"
	directionRedo = "redo"
)

// Undo reverts the most recent applied operation. It fails with a
// *ConflictError while any file the operation touched is busy.
func (e *Engine) Undo(ctx context.Context) (*history.Operation, error) {
	return e.move(ctx, directionUndo)
}

// Redo re-applies the most recently undone operation. It fails with a
// *ConflictError while any file the operation touched is busy.
func (e *Engine) Redo(ctx context.Context) (*history.Operation, error) {
	return e.move(ctx, directionRedo)
}

func (e *Engine) move(ctx context.Context, direction string) (*history.Operation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var held []string
	guard := func(op *history.Operation) error {
		ids := op.FileIDs()
		if err := e.acquire(ids, direction+":"+op.ID); err != nil {
			return err
		}
		held = ids
		return nil
	}

	var (
		op    *history.Operation
		err   error
		topic event.Topic
	)
	if direction == directionUndo {
		op, err = e.history.UndoIf(guard)
		topic = event.TopicHistoryUndo
	} else {
		op, err = e.history.RedoIf(guard)
		topic = event.TopicHistoryRedo
	}
	e.release(held)
	e.stats().RecordHistory(direction, err)

	if err != nil {
		e.log().Debug(direction+" refused", "err", err)
		return nil, err
	}
	e.log().Info(direction, "op", op.ID, "kind", op.Kind, "files", op.FileIDs())
	e.publish(ctx, topic, op, op.ID)
	return op, nil
}
