// Package pagelist is a Processor that works on page records alone.
//
// The content of a version is its page manifest, stored as canonical JSON
// in a content.Store. Rendering real document bytes is left to processors
// that wrap a document library; pagelist gives the engine and its tools a
// complete, deterministic implementation of every operation kind.
package pagelist

import (
	"context"
	"fmt"

	"github.com/dshills/docforge/internal/content"
	"github.com/dshills/docforge/internal/operation"
	"github.com/dshills/docforge/internal/processor"
	"github.com/dshills/docforge/internal/version"
)

// Default page size in points, US Letter.
const (
	DefaultWidth  = 612.0
	DefaultHeight = 792.0
)

// Manifest is the stored form of a version's content.
type Manifest struct {
	FileID string         `json:"fileId"`
	Pages  []version.Page `json:"pages"`
}

// Processor implements processor.Processor over page manifests.
type Processor struct {
	blobs *content.Store
}

// New creates a Processor writing manifests to blobs.
func New(blobs *content.Store) *Processor {
	return &Processor{blobs: blobs}
}

// Store returns the content store manifests are written to.
func (p *Processor) Store() *content.Store {
	return p.blobs
}

// Import stores the manifest of a new document and returns its handle,
// ready to be passed to version.Store.CreateRoot.
func (p *Processor) Import(fileID string, pages []version.Page) (version.ContentHandle, error) {
	return p.blobs.PutJSON(Manifest{FileID: fileID, Pages: pages})
}

// Manifest loads the manifest stored under h.
func (p *Processor) Manifest(h version.ContentHandle) (Manifest, error) {
	var m Manifest
	err := p.blobs.GetJSON(h, &m)
	return m, err
}

// Pages builds n numbered pages of the given size for fileID.
func Pages(fileID string, n uint, width, height float64) []version.Page {
	out := make([]version.Page, n)
	for i := range out {
		out[i] = version.Page{
			Ref:    version.PageRef{FileID: fileID, Number: uint(i + 1)},
			Width:  width,
			Height: height,
		}
	}
	return out
}

// Process implements processor.Processor.
func (p *Processor) Process(ctx context.Context, kind operation.Kind, inputs []processor.Input, params operation.Params) ([]processor.Output, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(inputs) == 0 {
		return nil, fmt.Errorf("no inputs")
	}

	var (
		outputs []processor.Output
		err     error
	)
	switch prm := params.(type) {
	case operation.RotateParams:
		outputs, err = perInput(inputs, func(in processor.Input) ([]version.Page, error) {
			return rotate(in, prm.Angle), nil
		})
	case operation.DeletePagesParams:
		outputs, err = perInput(inputs, deletePages)
	case operation.RedactParams:
		outputs, err = perInput(inputs, func(in processor.Input) ([]version.Page, error) {
			return redact(in, prm.Areas), nil
		})
	case operation.ReorderParams:
		outputs, err = perInput(inputs, func(in processor.Input) ([]version.Page, error) {
			return reorder(in, prm)
		})
	case operation.InsertBlankParams:
		outputs, err = perInput(inputs, func(in processor.Input) ([]version.Page, error) {
			return insertBlank(in, prm)
		})
	case operation.SplitParams:
		outputs, err = split(inputs[0], prm.Every)
	case operation.MergeParams:
		outputs, err = merge(inputs)
	default:
		return nil, fmt.Errorf("unsupported operation %s", kind)
	}
	if err != nil {
		return nil, err
	}

	for i := range outputs {
		fileID := outputs[i].FileID
		if outputs[i].Target != processor.NewFile {
			fileID = inputs[outputs[i].Target].FileID
		}
		h, err := p.Import(fileID, outputs[i].Pages)
		if err != nil {
			return nil, err
		}
		outputs[i].Handle = h
	}
	return outputs, nil
}

func perInput(inputs []processor.Input, fn func(processor.Input) ([]version.Page, error)) ([]processor.Output, error) {
	outputs := make([]processor.Output, 0, len(inputs))
	for i, in := range inputs {
		pages, err := fn(in)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", in.FileID, err)
		}
		outputs = append(outputs, processor.Output{Target: i, Pages: pages})
	}
	return outputs, nil
}

// selectedSet maps 0-based indexes of the selected positions.
func selectedSet(in processor.Input) map[int]bool {
	set := make(map[int]bool, len(in.Selected))
	for _, pos := range in.Selected {
		set[int(pos)-1] = true
	}
	return set
}

func rotate(in processor.Input, angle int) []version.Page {
	pages := version.ClonePages(in.Pages)
	sel := selectedSet(in)
	for i := range pages {
		if sel[i] {
			pages[i].Rotation = (pages[i].Rotation + angle) % 360
		}
	}
	return pages
}

func deletePages(in processor.Input) ([]version.Page, error) {
	sel := selectedSet(in)
	if len(sel) >= len(in.Pages) {
		return nil, fmt.Errorf("cannot delete every page")
	}
	pages := make([]version.Page, 0, len(in.Pages)-len(sel))
	for i, pg := range in.Pages {
		if !sel[i] {
			pages = append(pages, pg.Clone())
		}
	}
	return pages, nil
}

func redact(in processor.Input, areas []version.Rect) []version.Page {
	pages := version.ClonePages(in.Pages)
	sel := selectedSet(in)
	for i := range pages {
		if sel[i] {
			pages[i].Redactions = append(pages[i].Redactions, areas...)
		}
	}
	return pages
}

func reorder(in processor.Input, prm operation.ReorderParams) ([]version.Page, error) {
	n := len(in.Pages)
	pages := make([]version.Page, 0, n)
	if prm.Reverse {
		for i := n - 1; i >= 0; i-- {
			pages = append(pages, in.Pages[i].Clone())
		}
		return pages, nil
	}

	if len(prm.Order) != n {
		return nil, fmt.Errorf("order lists %d positions, file has %d pages", len(prm.Order), n)
	}
	for _, pos := range prm.Order {
		if pos == 0 || int(pos) > n {
			return nil, fmt.Errorf("position %d is out of range 1-%d", pos, n)
		}
		pages = append(pages, in.Pages[pos-1].Clone())
	}
	return pages, nil
}

func insertBlank(in processor.Input, prm operation.InsertBlankParams) ([]version.Page, error) {
	n := len(in.Pages)
	if int(prm.After) > n {
		return nil, fmt.Errorf("cannot insert after position %d of %d", prm.After, n)
	}

	width, height := prm.Width, prm.Height
	if width == 0 || height == 0 {
		w, h := DefaultWidth, DefaultHeight
		if n > 0 {
			neighbour := in.Pages[0]
			if prm.After > 0 {
				neighbour = in.Pages[prm.After-1]
			}
			w, h = neighbour.Width, neighbour.Height
		}
		if width == 0 {
			width = w
		}
		if height == 0 {
			height = h
		}
	}

	next := nextNumber(in.Pages)
	blanks := make([]version.Page, prm.Count)
	for i := range blanks {
		blanks[i] = version.Page{
			Ref:    version.PageRef{FileID: in.FileID, Number: next + uint(i)},
			Width:  width,
			Height: height,
			Blank:  true,
		}
	}

	pages := make([]version.Page, 0, n+len(blanks))
	pages = append(pages, version.ClonePages(in.Pages[:prm.After])...)
	pages = append(pages, blanks...)
	pages = append(pages, version.ClonePages(in.Pages[prm.After:])...)
	return pages, nil
}

// split cuts the input before every selected position (or every `every`
// pages). The first part stays on the input file; the rest become new
// files whose pages are renumbered from 1 and keep their provenance.
func split(in processor.Input, every uint) ([]processor.Output, error) {
	n := len(in.Pages)
	starts := map[int]bool{0: true}
	if every > 0 {
		for i := 0; i < n; i += int(every) {
			starts[i] = true
		}
	} else {
		for _, pos := range in.Selected {
			starts[int(pos)-1] = true
		}
	}

	var parts [][]version.Page
	for i, pg := range in.Pages {
		if starts[i] {
			parts = append(parts, nil)
		}
		parts[len(parts)-1] = append(parts[len(parts)-1], pg.Clone())
	}
	if len(parts) < 2 {
		return nil, fmt.Errorf("split of %d pages yields a single part", n)
	}

	outputs := []processor.Output{{Target: 0, Pages: parts[0]}}
	for k, part := range parts[1:] {
		fileID := version.NewFileID()
		outputs = append(outputs, processor.Output{
			Target:      processor.NewFile,
			FileID:      fileID,
			DisplayName: fmt.Sprintf("%s (part %d)", displayName(in), k+2),
			Pages:       relabel(part, fileID, 1),
		})
	}
	return outputs, nil
}

// merge appends every further input onto the first one.
func merge(inputs []processor.Input) ([]processor.Output, error) {
	if len(inputs) < 2 {
		return nil, fmt.Errorf("merge needs at least two inputs")
	}
	base := inputs[0]
	pages := version.ClonePages(base.Pages)
	next := nextNumber(base.Pages)
	for _, in := range inputs[1:] {
		moved := relabel(in.Pages, base.FileID, next)
		next += uint(len(moved))
		pages = append(pages, moved...)
	}
	return []processor.Output{{Target: 0, Pages: pages}}, nil
}

// relabel moves pages to fileID, numbering them from first and recording
// where each page came from.
func relabel(pages []version.Page, fileID string, first uint) []version.Page {
	out := version.ClonePages(pages)
	for i := range out {
		if out[i].OriginalFileID == "" {
			out[i].OriginalFileID = out[i].Ref.FileID
			out[i].OriginalNumber = out[i].Ref.Number
		}
		out[i].Ref = version.PageRef{FileID: fileID, Number: first + uint(i)}
	}
	return out
}

func nextNumber(pages []version.Page) uint {
	var highest uint
	for _, pg := range pages {
		if pg.Ref.Number > highest {
			highest = pg.Ref.Number
		}
	}
	return highest + 1
}

func displayName(in processor.Input) string {
	if in.DisplayName != "" {
		return in.DisplayName
	}
	return in.FileID
}
