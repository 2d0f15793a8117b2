package selection

import "fmt"

// SyntaxError reports a malformed or out-of-range selection expression.
type SyntaxError struct {
	// Reason is a human readable description of the problem.
	Reason string

	// Offset is the byte offset of the offending text, or -1 if unknown.
	Offset int

	// Fragment is the offending text, if known.
	Fragment string
}

// Error implements the error interface.
func (e *SyntaxError) Error() string {
	if e.Offset < 0 {
		return "selection: " + e.Reason
	}
	if e.Fragment == "" {
		return fmt.Sprintf("selection: %s at offset %d", e.Reason, e.Offset)
	}
	return fmt.Sprintf("selection: %s at offset %d (%q)", e.Reason, e.Offset, e.Fragment)
}

func errorAt(src string, start, end int, format string, args ...any) *SyntaxError {
	if start > len(src) {
		start = len(src)
	}
	if end > len(src) {
		end = len(src)
	}
	if end < start {
		end = start
	}
	return &SyntaxError{
		Reason:   fmt.Sprintf(format, args...),
		Offset:   start,
		Fragment: src[start:end],
	}
}
