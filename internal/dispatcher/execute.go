package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"strings"
	"time"

	"github.com/dshills/docforge/internal/event"
	"github.com/dshills/docforge/internal/history"
	"github.com/dshills/docforge/internal/operation"
	"github.com/dshills/docforge/internal/processor"
	"github.com/dshills/docforge/internal/selection"
	"github.com/dshills/docforge/internal/version"
)

// Execute runs one operation.
//
// Requests that fail validation, selection or the in-flight check return
// a nil operation and an error; nothing is recorded. Once the operation is
// recorded as pending it always comes back:
//   - applied, with a nil error;
//   - failed with a nil error when the processor failed (op.Err holds a
//     *processor.Error);
//   - failed with ctx.Err() when the context ended before commit;
//   - failed with the commit error when committing the outputs failed.
func (e *Engine) Execute(ctx context.Context, req Request) (*history.Operation, error) {
	return e.execute(ctx, req, "")
}

// Retry runs a recorded operation again against the current leaves of its
// input files. The new operation names the old one in RetryOf.
func (e *Engine) Retry(ctx context.Context, operationID string) (*history.Operation, error) {
	prev, err := e.Operation(operationID)
	if err != nil {
		return nil, err
	}
	req := Request{
		Kind:      prev.Kind,
		FileIDs:   prev.InputFileIDs,
		Selection: prev.Selection,
		Params:    prev.Params,
	}
	return e.execute(ctx, req, prev.ID)
}

func (e *Engine) execute(ctx context.Context, req Request, retryOf string) (*history.Operation, error) {
	start := time.Now()

	params, err := e.validate(req)
	if err != nil {
		return nil, e.reject(err)
	}
	req.Params = params
	if err := e.runPreHooks(ctx, req); err != nil {
		return nil, e.reject(err)
	}

	op := history.NewOperation(req.Kind, req.FileIDs, req.Selection, params)
	op.RetryOf = retryOf

	if err := e.acquire(req.FileIDs, op.ID); err != nil {
		return nil, err
	}
	defer e.release(req.FileIDs)

	inputs, err := e.resolve(req)
	if err != nil {
		return nil, e.reject(err)
	}
	op.InputVersionIDs = make([]string, len(inputs))
	for i, in := range inputs {
		op.InputVersionIDs[i] = in.VersionID
	}
	e.record(op)
	e.log().Debug("operation pending", "op", op.ID, "kind", op.Kind, "files", op.InputFileIDs)

	if err := ctx.Err(); err != nil {
		e.fail(ctx, op, err, start)
		return op.Clone(), err
	}

	outputs, err := e.process(ctx, op.Kind, inputs, params)
	if err != nil {
		e.fail(ctx, op, err, start)
		var perr *processor.Error
		if errors.As(err, &perr) {
			return op.Clone(), nil
		}
		return op.Clone(), err
	}
	if err := processor.CheckOutputs(inputs, outputs); err != nil {
		e.fail(ctx, op, &processor.Error{Kind: op.Kind, Err: err}, start)
		return op.Clone(), nil
	}
	if err := ctx.Err(); err != nil {
		e.fail(ctx, op, err, start)
		return op.Clone(), err
	}

	effects, err := e.commit(op, inputs, outputs)
	if err != nil {
		e.fail(ctx, op, err, start)
		return op.Clone(), err
	}

	e.update(op, func(o *history.Operation) {
		o.MarkApplied(effects)
		o.Duration = time.Since(start)
	})
	if err := e.history.Push(op); err != nil {
		return op.Clone(), fmt.Errorf("recording %s: %w", op.ID, err)
	}

	e.stats().RecordExecute(op.Kind, string(history.StatusApplied), op.Duration)
	e.log().Info("operation applied", "op", op.ID, "kind", op.Kind, "files", op.InputFileIDs, "versions", op.ResultVersionIDs)
	e.publish(ctx, event.TopicOperationApplied, op, "")
	e.runPostHooks(ctx, op)
	return op.Clone(), nil
}

func (e *Engine) reject(err error) error {
	var verr *ValidationError
	if errors.As(err, &verr) {
		e.stats().RecordRejection(verr.Field)
		e.log().Debug("request rejected", "field", verr.Field, "err", err)
	}
	return err
}

func (e *Engine) fail(ctx context.Context, op *history.Operation, err error, start time.Time) {
	e.update(op, func(o *history.Operation) {
		o.MarkFailed(err)
		o.Duration = time.Since(start)
	})
	e.stats().RecordExecute(op.Kind, string(history.StatusFailed), op.Duration)
	e.log().Warn("operation failed", "op", op.ID, "kind", op.Kind, "files", op.InputFileIDs, "err", err)
	e.publish(ctx, event.TopicOperationFailed, op, "")
	e.runPostHooks(ctx, op)
}

// validate checks the request against the kind's schema and returns the
// parameters to run with.
func (e *Engine) validate(req Request) (operation.Params, error) {
	schema, ok := operation.Lookup(req.Kind)
	if !ok {
		return nil, invalid("kind", "unknown operation kind %q", req.Kind)
	}
	if !schema.AcceptsInputs(len(req.FileIDs)) {
		return nil, invalid("files", "%s takes %s input files, got %d", req.Kind, schema.InputRange(), len(req.FileIDs))
	}

	seen := make(map[string]bool, len(req.FileIDs))
	for _, id := range req.FileIDs {
		if id == "" {
			return nil, invalid("files", "empty file id")
		}
		if seen[id] {
			return nil, invalid("files", "file %s given twice", id)
		}
		seen[id] = true

		f, err := e.store.File(id)
		if err != nil {
			return nil, &ValidationError{Field: "files", Reason: "unknown file", Err: err}
		}
		if !f.Active {
			return nil, invalid("files", "file %s is not active", id)
		}
	}

	params := req.Params
	if params == nil {
		p, ok := operation.DefaultParams(req.Kind)
		if !ok {
			return nil, invalid("params", "%s requires parameters", req.Kind)
		}
		params = p
	}
	if params.Kind() != req.Kind {
		return nil, invalid("params", "%s parameters given to %s", params.Kind(), req.Kind)
	}
	if err := params.Validate(); err != nil {
		field := "params"
		var perr *operation.ParamError
		if errors.As(err, &perr) {
			field = "params." + perr.Field
		}
		return nil, &ValidationError{Field: field, Reason: "invalid parameters", Err: err}
	}

	hasSelection := strings.TrimSpace(req.Selection) != ""
	if hasSelection && !schema.PageScoped {
		return nil, invalid("selection", "%s does not take a page selection", req.Kind)
	}
	if sp, ok := params.(operation.SplitParams); ok && sp.Every > 0 && hasSelection {
		return nil, invalid("selection", "split takes a selection or every, not both")
	}
	return params, nil
}

// resolve snapshots the leaf of every input and, for page scoped kinds,
// evaluates the selection against it.
func (e *Engine) resolve(req Request) ([]processor.Input, error) {
	schema, _ := operation.Lookup(req.Kind)

	var expr *selection.Expr
	if schema.PageScoped {
		x, err := selection.Compile(req.Selection)
		if err != nil {
			return nil, &ValidationError{Field: "selection", Reason: "syntax error", Err: err}
		}
		expr = x
	}

	inputs := make([]processor.Input, len(req.FileIDs))
	for i, id := range req.FileIDs {
		f, err := e.store.File(id)
		if err != nil {
			return nil, &ValidationError{Field: "files", Reason: "unknown file", Err: err}
		}
		leaf, err := e.store.Leaf(id)
		if err != nil {
			return nil, &ValidationError{Field: "files", Reason: "unknown file", Err: err}
		}
		in := processor.Input{
			FileID:      id,
			DisplayName: f.DisplayName,
			VersionID:   leaf.ID,
			Handle:      leaf.Handle,
			Pages:       leaf.Pages,
		}

		if expr != nil {
			if expr.IsEmpty() {
				in.Selected = allPositions(leaf.PageCount())
			} else {
				sel, err := expr.Eval(leaf.PageCount())
				if err != nil {
					return nil, &ValidationError{Field: "selection", Reason: "out of range for " + f.DisplayName, Err: err}
				}
				if len(sel) == 0 {
					return nil, invalid("selection", "%q matches no page of %s", req.Selection, f.DisplayName)
				}
				in.Selected = sel
			}
		}
		inputs[i] = in
	}
	return inputs, nil
}

func allPositions(n uint) []uint {
	out := make([]uint, n)
	for i := range out {
		out[i] = uint(i + 1)
	}
	return out
}

type processResult struct {
	outputs []processor.Output
	err     error
}

// process calls the processor. Processor failures, timeouts and panics
// come back as *processor.Error; cancellation of ctx comes back as
// ctx.Err().
func (e *Engine) process(ctx context.Context, kind operation.Kind, inputs []processor.Input, params operation.Params) ([]processor.Output, error) {
	pctx := ctx
	if e.config.Timeout > 0 {
		var cancel context.CancelFunc
		pctx, cancel = context.WithTimeout(ctx, e.config.Timeout)
		defer cancel()
	}

	done := make(chan processResult, 1)
	go func() {
		outputs, err := e.executeWithRecovery(pctx, kind, inputs, params)
		done <- processResult{outputs: outputs, err: err}
	}()

	var res processResult
	select {
	case res = <-done:
	case <-pctx.Done():
		res.err = pctx.Err()
	}

	if res.err == nil {
		return res.outputs, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if errors.Is(pctx.Err(), context.DeadlineExceeded) {
		return nil, &processor.Error{Kind: kind, Err: fmt.Errorf("%w after %s", ErrTimeout, e.config.Timeout)}
	}
	var perr *processor.Error
	if errors.As(res.err, &perr) {
		return nil, perr
	}
	return nil, &processor.Error{Kind: kind, Err: res.err}
}

func (e *Engine) executeWithRecovery(ctx context.Context, kind operation.Kind, inputs []processor.Input, params operation.Params) (outputs []processor.Output, err error) {
	if e.config.RecoverFromPanic {
		defer func() {
			if r := recover(); r != nil {
				buf := make([]byte, 4096)
				n := runtime.Stack(buf, false)
				e.log().Error("processor panic", "kind", kind, "panic", r, "stack", string(buf[:n]))
				e.stats().RecordPanic(kind)
				outputs = nil
				err = fmt.Errorf("%w: %v", ErrPanic, r)
			}
		}()
	}
	return e.proc.Process(ctx, kind, inputs, params)
}

// commit writes every output into the version graph. If a commit fails,
// leaves already moved are put back and new files are deactivated; the
// versions written so far stay in the graph unreferenced.
func (e *Engine) commit(op *history.Operation, inputs []processor.Input, outputs []processor.Output) ([]history.FileEffect, error) {
	parents := make([]string, len(inputs))
	for i, in := range inputs {
		parents[i] = in.VersionID
	}
	var created []history.FileEffect

	for i, out := range outputs {
		if out.Target != processor.NewFile {
			v, err := e.store.Commit(inputs[out.Target].FileID, parents[out.Target], out.Pages, out.Handle)
			if err != nil {
				return nil, e.rollback(op, inputs, parents, created, fmt.Errorf("commit output %d of %s: %w", i, op.Kind, err))
			}
			parents[out.Target] = v.ID
			continue
		}

		fileID := out.FileID
		if fileID == "" {
			fileID = version.NewFileID()
		}
		name := out.DisplayName
		if name == "" {
			name = inputs[0].DisplayName
		}
		pages := version.ClonePages(out.Pages)
		for j := range pages {
			if pages[j].Ref.FileID == "" {
				pages[j].Ref.FileID = fileID
			}
		}
		v, err := e.store.CreateDerived(fileID, name, inputs[0].VersionID, pages, out.Handle)
		if err != nil {
			return nil, e.rollback(op, inputs, parents, created, fmt.Errorf("create output %d of %s: %w", i, op.Kind, err))
		}
		created = append(created, history.FileEffect{FileID: fileID, After: v.ID, Created: true})
	}

	var effects []history.FileEffect
	for i, in := range inputs {
		if parents[i] != in.VersionID {
			effects = append(effects, history.FileEffect{FileID: in.FileID, Before: in.VersionID, After: parents[i]})
		}
	}
	return append(effects, created...), nil
}

func (e *Engine) rollback(op *history.Operation, inputs []processor.Input, parents []string, created []history.FileEffect, cause error) error {
	var changes []version.LeafChange
	for i, in := range inputs {
		if parents[i] != in.VersionID {
			changes = append(changes, version.LeafChange{FileID: in.FileID, VersionID: in.VersionID})
		}
	}
	for _, c := range created {
		changes = append(changes, version.LeafChange{FileID: c.FileID, VersionID: c.After, Activation: version.Deactivate})
	}
	if len(changes) == 0 {
		return cause
	}
	if err := e.store.SetLeaves(changes); err != nil {
		e.log().Error("rollback failed", "op", op.ID, "kind", op.Kind, "err", err)
		return errors.Join(cause, fmt.Errorf("rollback: %w", err))
	}
	e.log().Warn("commit rolled back", "op", op.ID, "kind", op.Kind, "files", len(changes))
	return cause
}

// publish sends op on the bus. Delivery does not depend on the caller's
// context staying alive, and handler errors are only logged.
func (e *Engine) publish(ctx context.Context, topic event.Topic, op *history.Operation, correlation string) {
	bus := e.eventBus()
	if bus == nil {
		return
	}
	ev := event.NewEvent(topic, op.Clone(), e.config.Source)
	if correlation != "" {
		ev = ev.WithCorrelation(correlation)
	}
	if err := event.PublishEvent(context.WithoutCancel(ctx), bus, ev); err != nil {
		e.log().Warn("event handler failed", "topic", topic, "op", op.ID, "err", err)
	}
}
