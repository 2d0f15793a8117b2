// Package processor defines the boundary between the operation engine and
// the code that actually transforms documents.
//
// The engine hands a Processor immutable snapshots of the input versions
// together with the resolved page positions, and gets back the page list
// and content handle of every version to commit. A Processor never touches
// the version graph itself.
package processor

import (
	"context"
	"fmt"

	"github.com/dshills/docforge/internal/operation"
	"github.com/dshills/docforge/internal/version"
)

// NewFile marks an Output that becomes a new file rather than a new
// version of one of the inputs.
const NewFile = -1

// Input is one input file as seen by a Processor.
type Input struct {
	FileID      string
	DisplayName string
	VersionID   string
	Handle      version.ContentHandle
	Pages       []version.Page

	// Selected holds ascending 1-based positions into Pages. It is empty
	// for kinds that are not page scoped.
	Selected []uint
}

// Output is one version produced by a Processor.
type Output struct {
	// Target is the index of the input this output is committed on, or
	// NewFile.
	Target int

	// FileID and DisplayName name the new file when Target is NewFile.
	// An empty FileID lets the engine allocate one; pages referring to
	// the empty file id are relabelled to it.
	FileID      string
	DisplayName string

	Pages  []version.Page
	Handle version.ContentHandle
}

// Processor performs document transformations.
type Processor interface {
	Process(ctx context.Context, kind operation.Kind, inputs []Input, params operation.Params) ([]Output, error)
}

// ProcessorFunc adapts a function to the Processor interface.
type ProcessorFunc func(ctx context.Context, kind operation.Kind, inputs []Input, params operation.Params) ([]Output, error)

// Process calls f.
func (f ProcessorFunc) Process(ctx context.Context, kind operation.Kind, inputs []Input, params operation.Params) ([]Output, error) {
	return f(ctx, kind, inputs, params)
}

// Error is a failure reported by, or on behalf of, a Processor.
type Error struct {
	Kind operation.Kind
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("processor: %s failed: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// CheckOutputs verifies that outputs only target existing inputs and that
// new files carry at least one page.
func CheckOutputs(inputs []Input, outputs []Output) error {
	if len(outputs) == 0 {
		return fmt.Errorf("no outputs produced")
	}
	for i, out := range outputs {
		switch {
		case out.Target == NewFile:
			if len(out.Pages) == 0 {
				return fmt.Errorf("output %d: new file without pages", i)
			}
		case out.Target < 0 || out.Target >= len(inputs):
			return fmt.Errorf("output %d: target %d is not an input", i, out.Target)
		}
	}
	return nil
}
