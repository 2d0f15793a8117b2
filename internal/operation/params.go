package operation

import (
	"math"

	"github.com/dshills/docforge/internal/version"
)

// MaxInsertCount caps the number of blank pages one insert may add.
const MaxInsertCount = 1000

// RotateParams rotates pages clockwise by Angle degrees, relative to
// their current rotation.
type RotateParams struct {
	Angle int `json:"angle"`
}

// Kind implements Params.
func (RotateParams) Kind() Kind { return Rotate }

// Validate implements Params.
func (p RotateParams) Validate() error {
	switch p.Angle {
	case 0, 90, 180, 270:
		return nil
	}
	return paramErr("angle", "must be one of 0, 90, 180, 270 (got %d)", p.Angle)
}

// DeletePagesParams removes the selected pages.
type DeletePagesParams struct{}

// Kind implements Params.
func (DeletePagesParams) Kind() Kind { return DeletePages }

// Validate implements Params. Deleting takes no parameters.
func (DeletePagesParams) Validate() error { return nil }

// RedactParams blacks out Areas on every selected page.
type RedactParams struct {
	Areas  []version.Rect `json:"areas"`
	Reason string         `json:"reason,omitempty"`
}

// Kind implements Params.
func (RedactParams) Kind() Kind { return Redact }

// Validate implements Params.
func (p RedactParams) Validate() error {
	if len(p.Areas) == 0 {
		return paramErr("areas", "at least one area is required")
	}
	for i, a := range p.Areas {
		if !finite(a.X, a.Y, a.Width, a.Height) {
			return paramErr("areas", "area %d has a non-finite coordinate", i)
		}
		if a.Width <= 0 || a.Height <= 0 {
			return paramErr("areas", "area %d must have a positive width and height", i)
		}
		if a.X < 0 || a.Y < 0 {
			return paramErr("areas", "area %d must not start at a negative offset", i)
		}
	}
	return nil
}

// ReorderParams permutes the pages of a single file. Order lists 1-based
// positions of the current leaf in their new order; Reverse flips it.
type ReorderParams struct {
	Order   []uint `json:"order,omitempty"`
	Reverse bool   `json:"reverse,omitempty"`
}

// Kind implements Params.
func (ReorderParams) Kind() Kind { return Reorder }

// Validate implements Params.
func (p ReorderParams) Validate() error {
	if p.Reverse == (len(p.Order) > 0) {
		return paramErr("order", "exactly one of order or reverse is required")
	}
	seen := make(map[uint]bool, len(p.Order))
	for _, pos := range p.Order {
		if pos == 0 {
			return paramErr("order", "positions start at 1")
		}
		if seen[pos] {
			return paramErr("order", "position %d appears twice", pos)
		}
		seen[pos] = true
	}
	return nil
}

// InsertBlankParams inserts Count blank pages after position After
// (0 inserts before the first page). A zero Width or Height copies the
// size of the neighbouring page.
type InsertBlankParams struct {
	After  uint    `json:"after"`
	Count  uint    `json:"count"`
	Width  float64 `json:"width,omitempty"`
	Height float64 `json:"height,omitempty"`
}

// Kind implements Params.
func (InsertBlankParams) Kind() Kind { return InsertBlank }

// Validate implements Params.
func (p InsertBlankParams) Validate() error {
	if p.Count == 0 || p.Count > MaxInsertCount {
		return paramErr("count", "must be between 1 and %d", MaxInsertCount)
	}
	if !finite(p.Width, p.Height) || p.Width < 0 || p.Height < 0 {
		return paramErr("size", "width and height must be non-negative")
	}
	return nil
}

// SplitParams splits a file into parts. Without Every the resolved
// selection names the positions that start a new part.
type SplitParams struct {
	Every uint `json:"every,omitempty"`
}

// Kind implements Params.
func (SplitParams) Kind() Kind { return Split }

// Validate implements Params. Every and the selection are checked by the dispatcher.
func (SplitParams) Validate() error { return nil }

// MergeParams appends every further input onto the first one.
type MergeParams struct{}

// Kind implements Params.
func (MergeParams) Kind() Kind { return Merge }

// Validate implements Params. Merging takes no parameters.
func (MergeParams) Validate() error { return nil }

func finite(vals ...float64) bool {
	for _, v := range vals {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}
