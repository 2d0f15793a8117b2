package pagelist

import (
	"context"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/dshills/docforge/internal/content"
	"github.com/dshills/docforge/internal/operation"
	"github.com/dshills/docforge/internal/processor"
	"github.com/dshills/docforge/internal/version"
)

func newProcessor(t *testing.T) *Processor {
	t.Helper()
	blobs, err := content.NewStore(1)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(blobs.Close)
	return New(blobs)
}

func input(fileID string, n uint, selected ...uint) processor.Input {
	return processor.Input{
		FileID:      fileID,
		DisplayName: fileID + ".pdf",
		VersionID:   fileID + "-v0",
		Pages:       Pages(fileID, n, DefaultWidth, DefaultHeight),
		Selected:    selected,
	}
}

func numbers(pages []version.Page) []uint {
	out := make([]uint, len(pages))
	for i, p := range pages {
		out[i] = p.Ref.Number
	}
	return out
}

func process(t *testing.T, p *Processor, kind operation.Kind, params operation.Params, inputs ...processor.Input) []processor.Output {
	t.Helper()
	outs, err := p.Process(context.Background(), kind, inputs, params)
	if err != nil {
		t.Fatalf("Process(%s) failed: %v", kind, err)
	}
	if err := processor.CheckOutputs(inputs, outs); err != nil {
		t.Fatalf("CheckOutputs failed: %v", err)
	}
	return outs
}

func TestRotate(t *testing.T) {
	p := newProcessor(t)
	in := input("a", 3, 1, 3)
	in.Pages[2].Rotation = 270

	outs := process(t, p, operation.Rotate, operation.RotateParams{Angle: 90}, in)
	if len(outs) != 1 || outs[0].Target != 0 {
		t.Fatalf("unexpected outputs %+v", outs)
	}
	got := []int{outs[0].Pages[0].Rotation, outs[0].Pages[1].Rotation, outs[0].Pages[2].Rotation}
	if diff := cmp.Diff([]int{90, 0, 0}, got); diff != "" {
		t.Errorf("rotation mismatch (-want +got):\n%s", diff)
	}
	if in.Pages[0].Rotation != 0 {
		t.Error("input pages were modified")
	}

	m, err := p.Manifest(outs[0].Handle)
	if err != nil {
		t.Fatalf("Manifest failed: %v", err)
	}
	if m.FileID != "a" || len(m.Pages) != 3 || m.Pages[0].Rotation != 90 {
		t.Errorf("stored manifest %+v", m)
	}
}

func TestRotateMultipleInputs(t *testing.T) {
	p := newProcessor(t)
	outs := process(t, p, operation.Rotate, operation.RotateParams{Angle: 180}, input("a", 2, 1), input("b", 2, 2))
	if len(outs) != 2 || outs[1].Target != 1 {
		t.Fatalf("unexpected outputs %+v", outs)
	}
	if outs[1].Pages[1].Rotation != 180 || outs[1].Pages[0].Rotation != 0 {
		t.Errorf("second input rotated wrong: %+v", outs[1].Pages)
	}
}

func TestDeletePages(t *testing.T) {
	p := newProcessor(t)
	outs := process(t, p, operation.DeletePages, operation.DeletePagesParams{}, input("a", 5, 2, 4))
	if diff := cmp.Diff([]uint{1, 3, 5}, numbers(outs[0].Pages)); diff != "" {
		t.Errorf("remaining pages (-want +got):\n%s", diff)
	}

	_, err := p.Process(context.Background(), operation.DeletePages, []processor.Input{input("a", 2, 1, 2)}, operation.DeletePagesParams{})
	if err == nil || !strings.Contains(err.Error(), "every page") {
		t.Errorf("expected error deleting every page, got %v", err)
	}
}

func TestRedact(t *testing.T) {
	p := newProcessor(t)
	area := version.Rect{X: 10, Y: 10, Width: 50, Height: 20}
	outs := process(t, p, operation.Redact, operation.RedactParams{Areas: []version.Rect{area}}, input("a", 2, 2))
	if len(outs[0].Pages[0].Redactions) != 0 {
		t.Error("unselected page was redacted")
	}
	if diff := cmp.Diff([]version.Rect{area}, outs[0].Pages[1].Redactions); diff != "" {
		t.Errorf("redactions (-want +got):\n%s", diff)
	}
}

func TestReorder(t *testing.T) {
	p := newProcessor(t)

	outs := process(t, p, operation.Reorder, operation.ReorderParams{Order: []uint{3, 1, 2}}, input("a", 3))
	if diff := cmp.Diff([]uint{3, 1, 2}, numbers(outs[0].Pages)); diff != "" {
		t.Errorf("order (-want +got):\n%s", diff)
	}

	outs = process(t, p, operation.Reorder, operation.ReorderParams{Reverse: true}, input("a", 3))
	if diff := cmp.Diff([]uint{3, 2, 1}, numbers(outs[0].Pages)); diff != "" {
		t.Errorf("reverse (-want +got):\n%s", diff)
	}

	bad := []operation.ReorderParams{
		{Order: []uint{1, 2}},
		{Order: []uint{1, 2, 4}},
	}
	for _, prm := range bad {
		if _, err := p.Process(context.Background(), operation.Reorder, []processor.Input{input("a", 3)}, prm); err == nil {
			t.Errorf("expected error for order %v", prm.Order)
		}
	}
}

func TestInsertBlank(t *testing.T) {
	p := newProcessor(t)
	in := input("a", 2)
	in.Pages[0].Width, in.Pages[0].Height = 100, 200

	outs := process(t, p, operation.InsertBlank, operation.InsertBlankParams{After: 1, Count: 2}, in)
	pages := outs[0].Pages
	if diff := cmp.Diff([]uint{1, 3, 4, 2}, numbers(pages)); diff != "" {
		t.Errorf("numbers (-want +got):\n%s", diff)
	}
	if !pages[1].Blank || pages[1].Width != 100 || pages[1].Height != 200 {
		t.Errorf("blank page should copy neighbour size: %+v", pages[1])
	}

	outs = process(t, p, operation.InsertBlank, operation.InsertBlankParams{After: 0, Count: 1, Width: 50, Height: 60}, input("a", 1))
	if !outs[0].Pages[0].Blank || outs[0].Pages[0].Width != 50 {
		t.Errorf("insert before first page: %+v", outs[0].Pages)
	}

	if _, err := p.Process(context.Background(), operation.InsertBlank, []processor.Input{input("a", 1)}, operation.InsertBlankParams{After: 2, Count: 1}); err == nil {
		t.Error("expected error inserting past the end")
	}
}

func TestSplitBySelection(t *testing.T) {
	p := newProcessor(t)
	outs := process(t, p, operation.Split, operation.SplitParams{}, input("a", 5, 3, 5))
	if len(outs) != 3 {
		t.Fatalf("got %d outputs, want 3", len(outs))
	}
	if outs[0].Target != 0 || len(outs[0].Pages) != 2 {
		t.Errorf("first part %+v", outs[0])
	}
	second := outs[1]
	if second.Target != processor.NewFile || second.FileID == "" {
		t.Fatalf("second part should be a new file: %+v", second)
	}
	if second.DisplayName != "a.pdf (part 2)" {
		t.Errorf("DisplayName = %q", second.DisplayName)
	}
	if diff := cmp.Diff([]uint{1, 2}, numbers(second.Pages)); diff != "" {
		t.Errorf("second part numbers (-want +got):\n%s", diff)
	}
	if second.Pages[0].Ref.FileID != second.FileID || second.Pages[0].OriginalFileID != "a" || second.Pages[0].OriginalNumber != 3 {
		t.Errorf("provenance not kept: %+v", second.Pages[0])
	}
	if outs[1].FileID == outs[2].FileID {
		t.Error("parts share a file id")
	}
}

func TestSplitEvery(t *testing.T) {
	p := newProcessor(t)
	outs := process(t, p, operation.Split, operation.SplitParams{Every: 2}, input("a", 5))
	if len(outs) != 3 || len(outs[2].Pages) != 1 {
		t.Errorf("unexpected parts %+v", outs)
	}

	if _, err := p.Process(context.Background(), operation.Split, []processor.Input{input("a", 3, 1)}, operation.SplitParams{}); err == nil {
		t.Error("expected error for a single part")
	}
}

func TestMerge(t *testing.T) {
	p := newProcessor(t)
	outs := process(t, p, operation.Merge, operation.MergeParams{}, input("a", 2), input("b", 2))
	if len(outs) != 1 || outs[0].Target != 0 {
		t.Fatalf("unexpected outputs %+v", outs)
	}
	pages := outs[0].Pages
	if diff := cmp.Diff([]uint{1, 2, 3, 4}, numbers(pages)); diff != "" {
		t.Errorf("numbers (-want +got):\n%s", diff)
	}
	if pages[2].Ref.FileID != "a" || pages[2].OriginalFileID != "b" || pages[2].OriginalNumber != 1 {
		t.Errorf("merged page provenance: %+v", pages[2])
	}
}

func TestProcessCancelled(t *testing.T) {
	p := newProcessor(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := p.Process(ctx, operation.Merge, []processor.Input{input("a", 1), input("b", 1)}, operation.MergeParams{}); err != context.Canceled {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestCommitsIntoStore(t *testing.T) {
	p := newProcessor(t)
	store := version.NewStore()
	pages := Pages("a", 4, DefaultWidth, DefaultHeight)
	h, err := p.Import("a", pages)
	if err != nil {
		t.Fatal(err)
	}
	root, err := store.CreateRoot("a", "a.pdf", pages, h)
	if err != nil {
		t.Fatal(err)
	}

	in := processor.Input{FileID: "a", VersionID: root.ID, Handle: root.Handle, Pages: root.Pages, Selected: []uint{3}}
	outs := process(t, p, operation.Split, operation.SplitParams{}, in)
	if _, err := store.Commit("a", root.ID, outs[0].Pages, outs[0].Handle); err != nil {
		t.Fatalf("Commit failed: %v", err)
	}
	if _, err := store.CreateDerived(outs[1].FileID, outs[1].DisplayName, root.ID, outs[1].Pages, outs[1].Handle); err != nil {
		t.Fatalf("CreateDerived failed: %v", err)
	}
}
