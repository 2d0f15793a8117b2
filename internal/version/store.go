package version

import (
	"fmt"
	"sort"
	"sync"
	"time"
)

// Persister receives graph mutations before they are applied in memory.
type Persister interface {
	// SaveVersion stores a new version together with its file's new state.
	SaveVersion(v *Version, state FileState) error

	// SaveStates stores the new state of one or more files atomically.
	SaveStates(states []FileState) error
}

// Source provides previously persisted graph state.
type Source interface {
	// LoadFiles returns every file state, in creation order.
	LoadFiles() ([]FileState, error)

	// LoadVersions returns a file's versions in lineage order.
	LoadVersions(fileID string) ([]*Version, error)
}

// Option configures a Store.
type Option func(*Store)

// WithPersister makes the store write every mutation through p.
func WithPersister(p Persister) Option {
	return func(s *Store) {
		s.persister = p
	}
}

// WithClock overrides the time source used for version timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

// Store is the in-memory version graph.
type Store struct {
	mu sync.RWMutex

	files    map[string]*File
	versions map[string]*Version

	persister Persister
	now       func() time.Time
}

// NewStore creates an empty version graph.
func NewStore(opts ...Option) *Store {
	s := &Store{
		files:    make(map[string]*File),
		versions: make(map[string]*Version),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Load rebuilds a store from persisted state.
// The persister option, if any, is only consulted for mutations after loading.
func Load(src Source, opts ...Option) (*Store, error) {
	s := NewStore(opts...)

	states, err := src.LoadFiles()
	if err != nil {
		return nil, fmt.Errorf("loading files: %w", err)
	}
	for _, st := range states {
		versions, err := src.LoadVersions(st.FileID)
		if err != nil {
			return nil, fmt.Errorf("loading versions of %s: %w", st.FileID, err)
		}
		f := &File{
			ID:          st.FileID,
			DisplayName: st.DisplayName,
			Pinned:      st.Pinned,
			Active:      st.Active,
			LeafID:      st.LeafID,
			Created:     st.Created,
		}
		for _, v := range versions {
			s.versions[v.ID] = v.Clone()
			f.Versions = append(f.Versions, v.ID)
		}
		if _, ok := s.versions[f.LeafID]; !ok {
			return nil, &UnknownVersionError{FileID: f.ID, VersionID: f.LeafID}
		}
		s.files[f.ID] = f
	}
	return s, nil
}

// CreateRoot creates a new file with its first version.
func (s *Store) CreateRoot(fileID, displayName string, pages []Page, handle ContentHandle) (*Version, error) {
	return s.createRoot(fileID, displayName, "", pages, handle)
}

// CreateDerived creates a new file whose first version descends from a
// version of another file, as happens when a split produces new documents.
func (s *Store) CreateDerived(fileID, displayName, fromVersionID string, pages []Page, handle ContentHandle) (*Version, error) {
	if fromVersionID == "" {
		return nil, &UnknownVersionError{FileID: fileID, VersionID: fromVersionID}
	}
	return s.createRoot(fileID, displayName, fromVersionID, pages, handle)
}

func (s *Store) createRoot(fileID, displayName, parentID string, pages []Page, handle ContentHandle) (*Version, error) {
	if fileID == "" {
		return nil, fmt.Errorf("%w: empty file id", ErrUnknownFile)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.files[fileID]; exists {
		return nil, fmt.Errorf("%w: %s", ErrFileExists, fileID)
	}
	if parentID != "" {
		if _, ok := s.versions[parentID]; !ok {
			return nil, &UnknownVersionError{FileID: fileID, VersionID: parentID}
		}
	}
	if err := s.checkPages(fileID, pages); err != nil {
		return nil, err
	}

	now := s.now()
	v := &Version{
		ID:       newVersionID(),
		FileID:   fileID,
		ParentID: parentID,
		Seq:      0,
		Created:  now,
		Pages:    ClonePages(pages),
		Handle:   handle,
	}
	f := &File{
		ID:          fileID,
		DisplayName: displayName,
		Active:      true,
		LeafID:      v.ID,
		Created:     now,
		Versions:    []string{v.ID},
	}

	if s.persister != nil {
		if err := s.persister.SaveVersion(v, f.State()); err != nil {
			return nil, fmt.Errorf("persisting root of %s: %w", fileID, err)
		}
	}

	s.files[fileID] = f
	s.versions[v.ID] = v
	return v.Clone(), nil
}

// Commit appends a new version to a file and makes it the leaf.
// parentID must be the file's current leaf; otherwise a *StaleParentError
// is returned and nothing changes.
func (s *Store) Commit(fileID, parentID string, pages []Page, handle ContentHandle) (*Version, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, ok := s.files[fileID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownFile, fileID)
	}
	if f.LeafID != parentID {
		return nil, &StaleParentError{FileID: fileID, ParentID: parentID, LeafID: f.LeafID}
	}
	if err := s.checkPages(fileID, pages); err != nil {
		return nil, err
	}

	v := &Version{
		ID:       newVersionID(),
		FileID:   fileID,
		ParentID: parentID,
		Seq:      len(f.Versions),
		Created:  s.now(),
		Pages:    ClonePages(pages),
		Handle:   handle,
	}
	state := f.State()
	state.LeafID = v.ID

	if s.persister != nil {
		if err := s.persister.SaveVersion(v, state); err != nil {
			return nil, fmt.Errorf("persisting version of %s: %w", fileID, err)
		}
	}

	s.versions[v.ID] = v
	f.Versions = append(f.Versions, v.ID)
	f.LeafID = v.ID
	return v.Clone(), nil
}

// SetLeaf makes versionID the leaf of fileID.
func (s *Store) SetLeaf(fileID, versionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.applyLocked([]LeafChange{{FileID: fileID, VersionID: versionID}})
}

// SetLeaves applies several leaf changes atomically: every change is
// validated before any is applied, so on error no file is modified.
func (s *Store) SetLeaves(changes []LeafChange) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.applyLocked(changes)
}

func (s *Store) applyLocked(changes []LeafChange) error {
	states := make([]FileState, 0, len(changes))
	for _, c := range changes {
		f, ok := s.files[c.FileID]
		if !ok {
			return fmt.Errorf("%w: %s", ErrUnknownFile, c.FileID)
		}
		v, ok := s.versions[c.VersionID]
		if !ok || v.FileID != c.FileID {
			return &UnknownVersionError{FileID: c.FileID, VersionID: c.VersionID}
		}
		st := f.State()
		st.LeafID = c.VersionID
		switch c.Activation {
		case Activate:
			st.Active = true
		case Deactivate:
			st.Active = false
		}
		states = append(states, st)
	}

	if s.persister != nil && len(states) > 0 {
		if err := s.persister.SaveStates(states); err != nil {
			return fmt.Errorf("persisting leaf changes: %w", err)
		}
	}

	for _, st := range states {
		f := s.files[st.FileID]
		f.LeafID = st.LeafID
		f.Active = st.Active
	}
	return nil
}

// Pin marks a file as exempt from history compaction.
func (s *Store) Pin(fileID string) error {
	return s.updateFile(fileID, func(st *FileState) { st.Pinned = true })
}

// Unpin clears the pinned flag.
func (s *Store) Unpin(fileID string) error {
	return s.updateFile(fileID, func(st *FileState) { st.Pinned = false })
}

// Remove takes a file out of the active working set. Its lineage is kept.
func (s *Store) Remove(fileID string) error {
	return s.updateFile(fileID, func(st *FileState) { st.Active = false })
}

// Restore puts a removed file back into the active working set.
func (s *Store) Restore(fileID string) error {
	return s.updateFile(fileID, func(st *FileState) { st.Active = true })
}

// Rename changes a file's display name.
func (s *Store) Rename(fileID, displayName string) error {
	return s.updateFile(fileID, func(st *FileState) { st.DisplayName = displayName })
}

func (s *Store) updateFile(fileID string, fn func(*FileState)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, ok := s.files[fileID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownFile, fileID)
	}
	st := f.State()
	fn(&st)

	if s.persister != nil {
		if err := s.persister.SaveStates([]FileState{st}); err != nil {
			return fmt.Errorf("persisting file %s: %w", fileID, err)
		}
	}

	f.DisplayName = st.DisplayName
	f.Pinned = st.Pinned
	f.Active = st.Active
	return nil
}

// Leaf returns the current leaf version of a file.
func (s *Store) Leaf(fileID string) (*Version, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	f, ok := s.files[fileID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownFile, fileID)
	}
	return s.versions[f.LeafID].Clone(), nil
}

// Lineage returns every version of a file in creation order.
func (s *Store) Lineage(fileID string) ([]*Version, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	f, ok := s.files[fileID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownFile, fileID)
	}
	out := make([]*Version, len(f.Versions))
	for i, id := range f.Versions {
		out[i] = s.versions[id].Clone()
	}
	return out, nil
}

// Version returns a version by id.
func (s *Store) Version(versionID string) (*Version, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	v, ok := s.versions[versionID]
	if !ok {
		return nil, &UnknownVersionError{VersionID: versionID}
	}
	return v.Clone(), nil
}

// File returns a file record, active or not.
func (s *Store) File(fileID string) (*File, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	f, ok := s.files[fileID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownFile, fileID)
	}
	return f.Clone(), nil
}

// Files returns the active working set ordered by creation time.
func (s *Store) Files() []*File {
	return s.listFiles(func(f *File) bool { return f.Active })
}

// AllFiles returns every file, including removed ones.
func (s *Store) AllFiles() []*File {
	return s.listFiles(func(*File) bool { return true })
}

func (s *Store) listFiles(keep func(*File) bool) []*File {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*File, 0, len(s.files))
	for _, f := range s.files {
		if keep(f) {
			out = append(out, f.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Created.Equal(out[j].Created) {
			return out[i].Created.Before(out[j].Created)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// CompactionCandidates returns the ids of unpinned files whose lineage is
// longer than maxDepth. Pinned files are never returned.
func (s *Store) CompactionCandidates(maxDepth int) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var ids []string
	for id, f := range s.files {
		if !f.Pinned && len(f.Versions) > maxDepth {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}

// checkPages enforces the commit invariants for a page list owned by
// fileID: page numbers are positive and unique, and every referenced file
// is known to the graph.
func (s *Store) checkPages(fileID string, pages []Page) error {
	seen := make(map[uint]bool, len(pages))
	for i, p := range pages {
		if p.Ref.Number == 0 {
			return invalidPages("page %d has number 0", i+1)
		}
		if seen[p.Ref.Number] {
			return invalidPages("duplicate page number %d", p.Ref.Number)
		}
		seen[p.Ref.Number] = true

		if !s.knownFile(fileID, p.Ref.FileID) {
			return invalidPages("page %d references unknown file %q", p.Ref.Number, p.Ref.FileID)
		}
		if p.OriginalFileID != "" && !s.knownFile(fileID, p.OriginalFileID) {
			return invalidPages("page %d originates from unknown file %q", p.Ref.Number, p.OriginalFileID)
		}
	}
	return nil
}

func (s *Store) knownFile(owner, id string) bool {
	if id == owner {
		return true
	}
	_, ok := s.files[id]
	return ok
}
