package version

import (
	"time"

	"github.com/google/uuid"
)

// ContentHandle is an opaque reference to a version's byte payload.
// It is produced and interpreted by the processor, never by the graph.
type ContentHandle string

// PageRef identifies a page within a file.
// Number is 1-based and stable across reorders; it is not a position.
type PageRef struct {
	FileID string `json:"fileId"`
	Number uint   `json:"number"`
}

// Rect is an axis-aligned area on a page, in points.
type Rect struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Page is a page record inside a Version.
type Page struct {
	Ref PageRef `json:"ref"`

	// Provenance of the page. For pages that were merged or split out of
	// another file this names the file and page they came from.
	OriginalFileID string `json:"originalFileId,omitempty"`
	OriginalNumber uint   `json:"originalNumber,omitempty"`

	Rotation   int     `json:"rotation"`
	Width      float64 `json:"width,omitempty"`
	Height     float64 `json:"height,omitempty"`
	Blank      bool    `json:"blank,omitempty"`
	Redactions []Rect  `json:"redactions,omitempty"`
}

// Clone returns a deep copy of the page.
func (p Page) Clone() Page {
	if p.Redactions != nil {
		p.Redactions = append([]Rect(nil), p.Redactions...)
	}
	return p
}

// ClonePages returns a deep copy of a page list.
func ClonePages(pages []Page) []Page {
	if pages == nil {
		return nil
	}
	out := make([]Page, len(pages))
	for i, p := range pages {
		out[i] = p.Clone()
	}
	return out
}

// Version is an immutable snapshot of a file.
type Version struct {
	ID       string
	FileID   string
	ParentID string // empty for a root created by CreateRoot
	Seq      int    // position in the file's lineage, starting at 0
	Created  time.Time
	Pages    []Page
	Handle   ContentHandle
}

// PageCount returns the number of pages in the version.
func (v *Version) PageCount() uint {
	return uint(len(v.Pages))
}

// IsRoot reports whether v is the first version of its file.
func (v *Version) IsRoot() bool {
	return v.Seq == 0
}

// Clone returns a deep copy of the version.
func (v *Version) Clone() *Version {
	c := *v
	c.Pages = ClonePages(v.Pages)
	return &c
}

// File is a document in the version graph.
type File struct {
	ID          string
	DisplayName string
	Pinned      bool
	Active      bool
	LeafID      string
	Created     time.Time

	// Versions lists version ids in lineage order. It is never truncated.
	Versions []string
}

// Clone returns a copy of the file record.
func (f *File) Clone() *File {
	c := *f
	c.Versions = append([]string(nil), f.Versions...)
	return &c
}

// State returns the mutable part of the file record.
func (f *File) State() FileState {
	return FileState{
		FileID:      f.ID,
		DisplayName: f.DisplayName,
		Pinned:      f.Pinned,
		Active:      f.Active,
		LeafID:      f.LeafID,
		Created:     f.Created,
	}
}

// FileState is the mutable part of a File as seen by a Persister.
type FileState struct {
	FileID      string
	DisplayName string
	Pinned      bool
	Active      bool
	LeafID      string
	Created     time.Time
}

// Activation says what a LeafChange does to a file's active flag.
type Activation int

const (
	// KeepActive leaves the active flag as it is.
	KeepActive Activation = iota
	// Activate puts the file into the active working set.
	Activate
	// Deactivate takes the file out of the active working set.
	Deactivate
)

// LeafChange moves one file's leaf pointer and, optionally, its active flag.
type LeafChange struct {
	FileID     string
	VersionID  string
	Activation Activation
}

// NewFileID returns a fresh file id.
func NewFileID() string {
	return uuid.NewString()
}

func newVersionID() string {
	return uuid.NewString()
}
