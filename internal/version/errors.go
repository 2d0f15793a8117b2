package version

import (
	"errors"
	"fmt"
)

// Errors returned by Store operations.
var (
	// ErrUnknownFile indicates the file id is not in the graph.
	ErrUnknownFile = errors.New("version: unknown file")

	// ErrFileExists indicates a root version already exists for the file.
	ErrFileExists = errors.New("version: file already exists")

	// ErrInvalidPages indicates a page list violates the commit invariants.
	ErrInvalidPages = errors.New("version: invalid page list")
)

// StaleParentError is returned by Commit when the parent version is no
// longer the file's leaf. Callers must re-fetch the leaf and retry.
type StaleParentError struct {
	FileID   string
	ParentID string
	LeafID   string
}

// Error implements the error interface.
func (e *StaleParentError) Error() string {
	return fmt.Sprintf("version: stale parent %s for file %s (leaf is %s)", e.ParentID, e.FileID, e.LeafID)
}

// UnknownVersionError is returned when a version id is not part of a
// file's lineage.
type UnknownVersionError struct {
	FileID    string
	VersionID string
}

// Error implements the error interface.
func (e *UnknownVersionError) Error() string {
	return fmt.Sprintf("version: %s is not in the lineage of file %s", e.VersionID, e.FileID)
}

func invalidPages(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidPages, fmt.Sprintf(format, args...))
}
