// Package operation defines the operation kinds the engine can run and
// their typed parameters.
//
// Parameters form a tagged union: every kind has exactly one Params type,
// and Params.Kind reports which. The dispatcher checks that the kind of a
// request and the kind of its parameters agree before anything runs.
package operation

import (
	"fmt"
	"sort"
)

// Kind names an operation.
type Kind string

// Operation kinds.
const (
	Rotate      Kind = "rotate"
	DeletePages Kind = "delete-pages"
	Redact      Kind = "redact"
	Reorder     Kind = "reorder"
	InsertBlank Kind = "insert-blank"
	Split       Kind = "split"
	Merge       Kind = "merge"
)

// Unbounded is used as Schema.MaxInputs for kinds accepting any number of inputs.
const Unbounded = 0

// Schema describes the shape of a kind's request.
type Schema struct {
	Kind Kind

	// PageScoped kinds resolve a selection expression against each input.
	PageScoped bool

	MinInputs int
	MaxInputs int // Unbounded for no limit

	Description string
}

// AcceptsInputs reports whether n input files satisfy the schema.
func (s Schema) AcceptsInputs(n int) bool {
	if n < s.MinInputs {
		return false
	}
	return s.MaxInputs == Unbounded || n <= s.MaxInputs
}

// InputRange renders the accepted input count for messages.
func (s Schema) InputRange() string {
	switch {
	case s.MaxInputs == Unbounded:
		return fmt.Sprintf("at least %d", s.MinInputs)
	case s.MinInputs == s.MaxInputs:
		return fmt.Sprintf("exactly %d", s.MinInputs)
	default:
		return fmt.Sprintf("%d to %d", s.MinInputs, s.MaxInputs)
	}
}

var schemas = map[Kind]Schema{
	Rotate:      {Kind: Rotate, PageScoped: true, MinInputs: 1, Description: "rotate selected pages clockwise"},
	DeletePages: {Kind: DeletePages, PageScoped: true, MinInputs: 1, Description: "remove selected pages"},
	Redact:      {Kind: Redact, PageScoped: true, MinInputs: 1, Description: "black out areas on selected pages"},
	Reorder:     {Kind: Reorder, MinInputs: 1, MaxInputs: 1, Description: "permute the pages of a file"},
	InsertBlank: {Kind: InsertBlank, MinInputs: 1, MaxInputs: 1, Description: "insert blank pages"},
	Split:       {Kind: Split, PageScoped: true, MinInputs: 1, MaxInputs: 1, Description: "split a file into parts"},
	Merge:       {Kind: Merge, MinInputs: 2, Description: "append files onto the first input"},
}

// Lookup returns the schema registered for kind.
func Lookup(kind Kind) (Schema, bool) {
	s, ok := schemas[kind]
	return s, ok
}

// Kinds returns all registered kinds in name order.
func Kinds() []Kind {
	out := make([]Kind, 0, len(schemas))
	for k := range schemas {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Params is the typed parameter set of one kind.
type Params interface {
	Kind() Kind
	Validate() error
}

// DefaultParams returns the zero parameters for kind if they are valid
// on their own, so requests for such kinds may omit parameters.
func DefaultParams(kind Kind) (Params, bool) {
	p, ok := zeroParams(kind)
	if !ok || p.Validate() != nil {
		return nil, false
	}
	return p, true
}

func zeroParams(kind Kind) (Params, bool) {
	switch kind {
	case Rotate:
		return RotateParams{}, true
	case DeletePages:
		return DeletePagesParams{}, true
	case Redact:
		return RedactParams{}, true
	case Reorder:
		return ReorderParams{}, true
	case InsertBlank:
		return InsertBlankParams{}, true
	case Split:
		return SplitParams{}, true
	case Merge:
		return MergeParams{}, true
	}
	return nil, false
}

// ParamError reports an invalid parameter field.
type ParamError struct {
	Field  string
	Reason string
}

func (e *ParamError) Error() string {
	return fmt.Sprintf("invalid parameter %s: %s", e.Field, e.Reason)
}

func paramErr(field, format string, args ...any) error {
	return &ParamError{Field: field, Reason: fmt.Sprintf(format, args...)}
}
