package dispatcher

import (
	"context"

	"github.com/dshills/docforge/internal/history"
)

// PreExecuteHook is called after a request passed validation and before
// any file is locked. Returning an error rejects the request with a
// *ValidationError on field "hook".
type PreExecuteHook interface {
	PreExecute(ctx context.Context, req Request) error
}

// PostExecuteHook is called once an operation has been applied or has
// failed. It sees a copy of the operation.
type PostExecuteHook interface {
	PostExecute(ctx context.Context, op *history.Operation)
}

// PreExecuteFunc is a function adapter for PreExecuteHook.
type PreExecuteFunc func(ctx context.Context, req Request) error

// PreExecute implements PreExecuteHook.
func (f PreExecuteFunc) PreExecute(ctx context.Context, req Request) error {
	return f(ctx, req)
}

// PostExecuteFunc is a function adapter for PostExecuteHook.
type PostExecuteFunc func(ctx context.Context, op *history.Operation)

// PostExecute implements PostExecuteHook.
func (f PostExecuteFunc) PostExecute(ctx context.Context, op *history.Operation) {
	f(ctx, op)
}

// RegisterPreHook adds a pre-execute hook. Hooks run in registration order
// and the first error wins.
func (e *Engine) RegisterPreHook(h PreExecuteHook) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.preHooks = append(e.preHooks, h)
}

// RegisterPostHook adds a post-execute hook.
func (e *Engine) RegisterPostHook(h PostExecuteHook) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.postHooks = append(e.postHooks, h)
}

func (e *Engine) runPreHooks(ctx context.Context, req Request) error {
	e.mu.RLock()
	hooks := make([]PreExecuteHook, len(e.preHooks))
	copy(hooks, e.preHooks)
	e.mu.RUnlock()

	for _, h := range hooks {
		if err := h.PreExecute(ctx, req); err != nil {
			return &ValidationError{Field: "hook", Reason: "rejected", Err: err}
		}
	}
	return nil
}

func (e *Engine) runPostHooks(ctx context.Context, op *history.Operation) {
	e.mu.RLock()
	hooks := make([]PostExecuteHook, len(e.postHooks))
	copy(hooks, e.postHooks)
	e.mu.RUnlock()

	for _, h := range hooks {
		h.PostExecute(ctx, op.Clone())
	}
}
