package version

import (
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func pagesFor(fileID string, n uint) []Page {
	pages := make([]Page, n)
	for i := range pages {
		pages[i] = Page{Ref: PageRef{FileID: fileID, Number: uint(i + 1)}, Width: 595, Height: 842}
	}
	return pages
}

func TestCreateRoot(t *testing.T) {
	s := NewStore()

	v, err := s.CreateRoot("a", "a.pdf", pagesFor("a", 3), "h0")
	if err != nil {
		t.Fatalf("CreateRoot failed: %v", err)
	}
	if v.ParentID != "" || !v.IsRoot() {
		t.Errorf("root version has parent %q seq %d", v.ParentID, v.Seq)
	}
	if v.PageCount() != 3 {
		t.Errorf("PageCount() = %d, want 3", v.PageCount())
	}

	leaf, err := s.Leaf("a")
	if err != nil {
		t.Fatalf("Leaf failed: %v", err)
	}
	if leaf.ID != v.ID {
		t.Errorf("leaf = %s, want %s", leaf.ID, v.ID)
	}

	f, err := s.File("a")
	if err != nil {
		t.Fatal(err)
	}
	if !f.Active || f.Pinned || f.DisplayName != "a.pdf" {
		t.Errorf("unexpected file record %+v", f)
	}

	if _, err := s.CreateRoot("a", "again", nil, ""); !errors.Is(err, ErrFileExists) {
		t.Errorf("second CreateRoot error = %v, want ErrFileExists", err)
	}
}

func TestCommitAdvancesLeaf(t *testing.T) {
	s := NewStore()
	root, _ := s.CreateRoot("a", "a.pdf", pagesFor("a", 2), "h0")

	v1, err := s.Commit("a", root.ID, pagesFor("a", 1), "h1")
	if err != nil {
		t.Fatalf("Commit failed: %v", err)
	}
	if v1.ParentID != root.ID || v1.Seq != 1 {
		t.Errorf("v1 parent=%s seq=%d", v1.ParentID, v1.Seq)
	}

	leaf, _ := s.Leaf("a")
	if leaf.ID != v1.ID {
		t.Errorf("leaf = %s, want %s", leaf.ID, v1.ID)
	}

	lineage, err := s.Lineage("a")
	if err != nil {
		t.Fatal(err)
	}
	var ids []string
	for _, v := range lineage {
		ids = append(ids, v.ID)
	}
	if diff := cmp.Diff([]string{root.ID, v1.ID}, ids); diff != "" {
		t.Errorf("lineage mismatch:\n%s", diff)
	}
}

func TestCommitStaleParent(t *testing.T) {
	s := NewStore()
	root, _ := s.CreateRoot("a", "a.pdf", pagesFor("a", 2), "h0")
	v1, _ := s.Commit("a", root.ID, pagesFor("a", 2), "h1")

	_, err := s.Commit("a", root.ID, pagesFor("a", 1), "h2")
	var stale *StaleParentError
	if !errors.As(err, &stale) {
		t.Fatalf("expected *StaleParentError, got %v", err)
	}
	if stale.LeafID != v1.ID || stale.ParentID != root.ID {
		t.Errorf("unexpected error fields %+v", stale)
	}

	lineage, _ := s.Lineage("a")
	if len(lineage) != 2 {
		t.Errorf("stale commit must not append, lineage has %d versions", len(lineage))
	}
}

func TestCommitUnknownFile(t *testing.T) {
	s := NewStore()
	if _, err := s.Commit("missing", "", nil, ""); !errors.Is(err, ErrUnknownFile) {
		t.Errorf("expected ErrUnknownFile, got %v", err)
	}
}

func TestCommitPageInvariants(t *testing.T) {
	s := NewStore()
	root, _ := s.CreateRoot("a", "a.pdf", pagesFor("a", 2), "h0")

	tests := []struct {
		name  string
		pages []Page
	}{
		{"zero number", []Page{{Ref: PageRef{FileID: "a", Number: 0}}}},
		{"duplicate number", []Page{{Ref: PageRef{FileID: "a", Number: 1}}, {Ref: PageRef{FileID: "a", Number: 1}}}},
		{"unknown ref file", []Page{{Ref: PageRef{FileID: "ghost", Number: 1}}}},
		{"unknown origin", []Page{{Ref: PageRef{FileID: "a", Number: 1}, OriginalFileID: "ghost", OriginalNumber: 1}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := s.Commit("a", root.ID, tt.pages, "h"); !errors.Is(err, ErrInvalidPages) {
				t.Errorf("expected ErrInvalidPages, got %v", err)
			}
		})
	}

	// cross-file provenance is legal once the origin file is known
	if _, err := s.CreateRoot("b", "b.pdf", pagesFor("b", 1), "hb"); err != nil {
		t.Fatal(err)
	}
	merged := append(pagesFor("a", 2), Page{Ref: PageRef{FileID: "a", Number: 3}, OriginalFileID: "b", OriginalNumber: 1})
	if _, err := s.Commit("a", root.ID, merged, "hm"); err != nil {
		t.Errorf("commit with known origin failed: %v", err)
	}
}

func TestSetLeaf(t *testing.T) {
	s := NewStore()
	root, _ := s.CreateRoot("a", "a.pdf", pagesFor("a", 2), "h0")
	v1, _ := s.Commit("a", root.ID, pagesFor("a", 1), "h1")
	other, _ := s.CreateRoot("b", "b.pdf", pagesFor("b", 1), "hb")

	if err := s.SetLeaf("a", root.ID); err != nil {
		t.Fatalf("SetLeaf failed: %v", err)
	}
	if leaf, _ := s.Leaf("a"); leaf.ID != root.ID {
		t.Errorf("leaf = %s, want root", leaf.ID)
	}

	var unknown *UnknownVersionError
	if err := s.SetLeaf("a", other.ID); !errors.As(err, &unknown) {
		t.Errorf("expected *UnknownVersionError for foreign version, got %v", err)
	}
	if err := s.SetLeaf("a", "nope"); !errors.As(err, &unknown) {
		t.Errorf("expected *UnknownVersionError, got %v", err)
	}

	// committing against a non-head leaf is fine once it is the leaf again
	if _, err := s.Commit("a", root.ID, pagesFor("a", 2), "h2"); err != nil {
		t.Errorf("commit on moved leaf failed: %v", err)
	}
	lineage, _ := s.Lineage("a")
	if len(lineage) != 3 || lineage[1].ID != v1.ID {
		t.Errorf("lineage must keep every version, got %d", len(lineage))
	}
}

func TestSetLeavesAtomic(t *testing.T) {
	s := NewStore()
	a0, _ := s.CreateRoot("a", "a.pdf", pagesFor("a", 2), "")
	a1, _ := s.Commit("a", a0.ID, pagesFor("a", 1), "")
	b0, _ := s.CreateRoot("b", "b.pdf", pagesFor("b", 2), "")
	b1, _ := s.Commit("b", b0.ID, pagesFor("b", 1), "")

	err := s.SetLeaves([]LeafChange{
		{FileID: "a", VersionID: a0.ID, Activation: Activate},
		{FileID: "b", VersionID: "bogus", Activation: Activate},
	})
	var unknown *UnknownVersionError
	if !errors.As(err, &unknown) {
		t.Fatalf("expected *UnknownVersionError, got %v", err)
	}
	if leaf, _ := s.Leaf("a"); leaf.ID != a1.ID {
		t.Error("file a moved despite failed batch")
	}
	if leaf, _ := s.Leaf("b"); leaf.ID != b1.ID {
		t.Error("file b moved despite failed batch")
	}

	err = s.SetLeaves([]LeafChange{
		{FileID: "a", VersionID: a0.ID, Activation: Activate},
		{FileID: "b", VersionID: b0.ID, Activation: Deactivate},
	})
	if err != nil {
		t.Fatalf("SetLeaves failed: %v", err)
	}
	if leaf, _ := s.Leaf("a"); leaf.ID != a0.ID {
		t.Error("file a did not move")
	}
	if f, _ := s.File("b"); f.Active || f.LeafID != b0.ID {
		t.Errorf("file b state %+v", f)
	}
}

func TestSetLeavesKeepsActiveFlag(t *testing.T) {
	s := NewStore()
	a0, _ := s.CreateRoot("a", "a.pdf", pagesFor("a", 2), "")
	a1, _ := s.Commit("a", a0.ID, pagesFor("a", 1), "")
	if err := s.Remove("a"); err != nil {
		t.Fatal(err)
	}

	if err := s.SetLeaves([]LeafChange{{FileID: "a", VersionID: a0.ID}}); err != nil {
		t.Fatalf("SetLeaves failed: %v", err)
	}
	if f, _ := s.File("a"); f.Active || f.LeafID != a0.ID {
		t.Errorf("file a state %+v, want inactive at %s", f, a0.ID)
	}

	if err := s.SetLeaves([]LeafChange{{FileID: "a", VersionID: a1.ID, Activation: Activate}}); err != nil {
		t.Fatal(err)
	}
	if f, _ := s.File("a"); !f.Active || f.LeafID != a1.ID {
		t.Errorf("file a state %+v, want active at %s", f, a1.ID)
	}
}

func TestCreateDerived(t *testing.T) {
	s := NewStore()
	src, _ := s.CreateRoot("a", "a.pdf", pagesFor("a", 4), "")

	part := []Page{
		{Ref: PageRef{FileID: "a-2", Number: 1}, OriginalFileID: "a", OriginalNumber: 3},
		{Ref: PageRef{FileID: "a-2", Number: 2}, OriginalFileID: "a", OriginalNumber: 4},
	}
	v, err := s.CreateDerived("a-2", "a (2).pdf", src.ID, part, "")
	if err != nil {
		t.Fatalf("CreateDerived failed: %v", err)
	}
	if v.ParentID != src.ID || v.FileID != "a-2" || !v.IsRoot() {
		t.Errorf("unexpected derived version %+v", v)
	}

	var unknown *UnknownVersionError
	if _, err := s.CreateDerived("a-3", "x", "missing", nil, ""); !errors.As(err, &unknown) {
		t.Errorf("expected *UnknownVersionError, got %v", err)
	}
	if _, err := s.CreateDerived("a-4", "x", "", nil, ""); !errors.As(err, &unknown) {
		t.Errorf("expected *UnknownVersionError for empty parent, got %v", err)
	}
}

func TestActiveSetAndPinning(t *testing.T) {
	clock := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	s := NewStore(WithClock(func() time.Time {
		clock = clock.Add(time.Second)
		return clock
	}))
	s.CreateRoot("a", "a.pdf", pagesFor("a", 1), "")
	s.CreateRoot("b", "b.pdf", pagesFor("b", 1), "")
	s.CreateRoot("c", "c.pdf", pagesFor("c", 1), "")

	if err := s.Remove("b"); err != nil {
		t.Fatal(err)
	}
	var active []string
	for _, f := range s.Files() {
		active = append(active, f.ID)
	}
	if diff := cmp.Diff([]string{"a", "c"}, active); diff != "" {
		t.Errorf("active set mismatch:\n%s", diff)
	}
	if len(s.AllFiles()) != 3 {
		t.Errorf("AllFiles() should include removed files")
	}
	if _, err := s.Lineage("b"); err != nil {
		t.Errorf("removed file must keep its lineage: %v", err)
	}
	if err := s.Restore("b"); err != nil {
		t.Fatal(err)
	}
	if len(s.Files()) != 3 {
		t.Errorf("restored file missing from active set")
	}

	leafA, _ := s.Leaf("a")
	s.Commit("a", leafA.ID, pagesFor("a", 1), "")
	leafB, _ := s.Leaf("b")
	s.Commit("b", leafB.ID, pagesFor("b", 1), "")
	if err := s.Pin("a"); err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{"b"}, s.CompactionCandidates(1)); diff != "" {
		t.Errorf("pinned files must not be compaction candidates:\n%s", diff)
	}
	if err := s.Unpin("a"); err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{"a", "b"}, s.CompactionCandidates(1)); diff != "" {
		t.Errorf("candidates after unpin:\n%s", diff)
	}
	if err := s.Pin("ghost"); !errors.Is(err, ErrUnknownFile) {
		t.Errorf("Pin(ghost) = %v", err)
	}
}

func TestReturnedValuesAreCopies(t *testing.T) {
	s := NewStore()
	v, _ := s.CreateRoot("a", "a.pdf", pagesFor("a", 2), "")
	v.Pages[0].Rotation = 90

	leaf, _ := s.Leaf("a")
	if leaf.Pages[0].Rotation != 0 {
		t.Error("mutating a returned version changed the graph")
	}

	f, _ := s.File("a")
	f.Versions[0] = "tampered"
	if again, _ := s.File("a"); again.Versions[0] != v.ID {
		t.Error("mutating a returned file changed the graph")
	}
}

type recordingPersister struct {
	versions []*Version
	states   [][]FileState
	fail     error
}

func (p *recordingPersister) SaveVersion(v *Version, st FileState) error {
	if p.fail != nil {
		return p.fail
	}
	p.versions = append(p.versions, v.Clone())
	p.states = append(p.states, []FileState{st})
	return nil
}

func (p *recordingPersister) SaveStates(states []FileState) error {
	if p.fail != nil {
		return p.fail
	}
	p.states = append(p.states, append([]FileState(nil), states...))
	return nil
}

func (p *recordingPersister) LoadFiles() ([]FileState, error) {
	latest := make(map[string]FileState)
	var order []string
	for _, batch := range p.states {
		for _, st := range batch {
			if _, ok := latest[st.FileID]; !ok {
				order = append(order, st.FileID)
			}
			latest[st.FileID] = st
		}
	}
	out := make([]FileState, 0, len(order))
	for _, id := range order {
		out = append(out, latest[id])
	}
	return out, nil
}

func (p *recordingPersister) LoadVersions(fileID string) ([]*Version, error) {
	var out []*Version
	for _, v := range p.versions {
		if v.FileID == fileID {
			out = append(out, v)
		}
	}
	return out, nil
}

func TestPersisterFailureAbortsMutation(t *testing.T) {
	p := &recordingPersister{}
	s := NewStore(WithPersister(p))
	root, err := s.CreateRoot("a", "a.pdf", pagesFor("a", 1), "")
	if err != nil {
		t.Fatal(err)
	}

	p.fail = errors.New("disk full")
	if _, err := s.Commit("a", root.ID, pagesFor("a", 1), ""); !errors.Is(err, p.fail) {
		t.Fatalf("expected persister error, got %v", err)
	}
	if lineage, _ := s.Lineage("a"); len(lineage) != 1 {
		t.Errorf("failed persist must not change memory, lineage has %d", len(lineage))
	}
	if err := s.Pin("a"); !errors.Is(err, p.fail) {
		t.Errorf("expected persister error from Pin, got %v", err)
	}
	if f, _ := s.File("a"); f.Pinned {
		t.Error("failed persist must not pin")
	}
}

func TestLoadRoundTrip(t *testing.T) {
	p := &recordingPersister{}
	s := NewStore(WithPersister(p))
	a0, _ := s.CreateRoot("a", "a.pdf", pagesFor("a", 3), "h0")
	a1, _ := s.Commit("a", a0.ID, pagesFor("a", 2), "h1")
	s.CreateRoot("b", "b.pdf", pagesFor("b", 1), "hb")
	s.SetLeaf("a", a0.ID)
	s.Pin("b")

	loaded, err := Load(p)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	leaf, err := loaded.Leaf("a")
	if err != nil {
		t.Fatal(err)
	}
	if leaf.ID != a0.ID {
		t.Errorf("loaded leaf = %s, want %s", leaf.ID, a0.ID)
	}
	lineage, _ := loaded.Lineage("a")
	if len(lineage) != 2 || lineage[1].ID != a1.ID {
		t.Errorf("loaded lineage wrong: %d versions", len(lineage))
	}
	if f, _ := loaded.File("b"); !f.Pinned {
		t.Error("pin flag not restored")
	}
}
