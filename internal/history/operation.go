package history

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/dshills/docforge/internal/operation"
)

// Status is the lifecycle state of an Operation.
type Status string

// Operation states. An operation only moves forward:
// pending -> applied or pending -> failed.
const (
	StatusPending Status = "pending"
	StatusApplied Status = "applied"
	StatusFailed  Status = "failed"
)

// FileEffect records how an applied operation moved one file's leaf.
type FileEffect struct {
	FileID string
	Before string // leaf before the operation; empty when Created
	After  string // leaf after the operation

	// Created is set for files the operation brought into existence.
	// Undo deactivates them instead of moving their leaf.
	Created bool
}

// Operation is a recorded unit of work.
type Operation struct {
	ID   string
	Kind operation.Kind

	InputFileIDs    []string
	InputVersionIDs []string
	Selection       string
	Params          operation.Params

	ResultVersionIDs []string
	Effects          []FileEffect

	// RetryOf names the operation this one re-executes, if any.
	RetryOf string

	Status      Status
	Timestamp   time.Time
	Duration    time.Duration
	ErrorDetail string

	// Err holds the failure of a failed operation. It is not persisted.
	Err error
}

// NewOperation creates a pending operation.
func NewOperation(kind operation.Kind, fileIDs []string, selection string, params operation.Params) *Operation {
	return &Operation{
		ID:           uuid.NewString(),
		Kind:         kind,
		InputFileIDs: append([]string(nil), fileIDs...),
		Selection:    selection,
		Params:       params,
		Status:       StatusPending,
		Timestamp:    time.Now(),
	}
}

// MarkApplied records the operation's effects and marks it applied.
func (op *Operation) MarkApplied(effects []FileEffect) {
	op.Effects = append([]FileEffect(nil), effects...)
	op.ResultVersionIDs = make([]string, len(effects))
	for i, e := range effects {
		op.ResultVersionIDs[i] = e.After
	}
	op.Status = StatusApplied
	op.ErrorDetail = ""
	op.Err = nil
}

// MarkFailed marks the operation failed with err.
func (op *Operation) MarkFailed(err error) {
	op.Status = StatusFailed
	op.Err = err
	if err != nil {
		op.ErrorDetail = err.Error()
	}
}

// FileIDs returns every file the operation touched: its inputs followed
// by any files it created.
func (op *Operation) FileIDs() []string {
	out := append([]string(nil), op.InputFileIDs...)
	seen := make(map[string]bool, len(out))
	for _, id := range out {
		seen[id] = true
	}
	for _, e := range op.Effects {
		if !seen[e.FileID] {
			seen[e.FileID] = true
			out = append(out, e.FileID)
		}
	}
	return out
}

// Description returns a short human readable summary.
func (op *Operation) Description() string {
	desc := fmt.Sprintf("%s %s", op.Kind, strings.Join(op.InputFileIDs, ", "))
	if op.Selection != "" {
		desc += " [" + op.Selection + "]"
	}
	return desc
}

// Clone returns a copy safe to hand to callers.
func (op *Operation) Clone() *Operation {
	c := *op
	c.InputFileIDs = append([]string(nil), op.InputFileIDs...)
	c.InputVersionIDs = append([]string(nil), op.InputVersionIDs...)
	c.ResultVersionIDs = append([]string(nil), op.ResultVersionIDs...)
	c.Effects = append([]FileEffect(nil), op.Effects...)
	return &c
}

// OperationInfo describes a history entry without exposing the record.
type OperationInfo struct {
	ID          string
	Kind        operation.Kind
	Description string
	Timestamp   time.Time
	Undone      bool
}
