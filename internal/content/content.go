// Package content is a content-addressed blob store for version payloads.
//
// Blobs are keyed by their BLAKE3 digest and kept zstd-compressed in
// memory. A handle has the form "blake3:<hex digest>"; storing the same
// bytes twice yields the same handle and a single copy.
package content

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/klauspost/compress/zstd"
	"lukechampine.com/blake3"

	"github.com/dshills/docforge/internal/version"
)

const handlePrefix = "blake3:"

var (
	// ErrNotFound is returned when no blob exists for a handle.
	ErrNotFound = errors.New("content: blob not found")

	// ErrCorrupt is returned when a stored blob no longer matches its digest.
	ErrCorrupt = errors.New("content: blob does not match its digest")

	// ErrInvalidHandle is returned for handles not produced by this package.
	ErrInvalidHandle = errors.New("content: invalid handle")
)

// Store holds compressed blobs keyed by digest.
type Store struct {
	mu    sync.RWMutex
	blobs map[string][]byte

	enc *zstd.Encoder
	dec *zstd.Decoder

	rawBytes        int64
	compressedBytes int64
}

// NewStore creates a blob store compressing at the given zstd level
// (1 = fastest, 22 = smallest; 0 selects the library default).
func NewStore(level int) (*Store, error) {
	encLevel := zstd.SpeedDefault
	if level > 0 {
		encLevel = zstd.EncoderLevelFromZstd(level)
	}
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(encLevel))
	if err != nil {
		return nil, fmt.Errorf("creating zstd encoder: %w", err)
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		enc.Close()
		return nil, fmt.Errorf("creating zstd decoder: %w", err)
	}
	return &Store{
		blobs: make(map[string][]byte),
		enc:   enc,
		dec:   dec,
	}, nil
}

// Close releases encoder and decoder resources.
func (s *Store) Close() {
	s.enc.Close()
	s.dec.Close()
}

// Handle returns the handle data would be stored under, without storing it.
func Handle(data []byte) version.ContentHandle {
	sum := blake3.Sum256(data)
	return version.ContentHandle(handlePrefix + hex.EncodeToString(sum[:]))
}

// Put stores data and returns its handle.
func (s *Store) Put(data []byte) (version.ContentHandle, error) {
	h := Handle(data)
	key := string(h)

	s.mu.RLock()
	_, exists := s.blobs[key]
	s.mu.RUnlock()
	if exists {
		return h, nil
	}

	compressed := s.enc.EncodeAll(data, nil)

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.blobs[key]; !exists {
		s.blobs[key] = compressed
		s.rawBytes += int64(len(data))
		s.compressedBytes += int64(len(compressed))
	}
	return h, nil
}

// Get returns the bytes stored under h, verifying their digest.
func (s *Store) Get(h version.ContentHandle) ([]byte, error) {
	if !strings.HasPrefix(string(h), handlePrefix) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidHandle, h)
	}

	s.mu.RLock()
	compressed, ok := s.blobs[string(h)]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, h)
	}

	data, err := s.dec.DecodeAll(compressed, nil)
	if err != nil {
		return nil, fmt.Errorf("decompressing %s: %w", h, err)
	}
	if Handle(data) != h {
		return nil, fmt.Errorf("%w: %s", ErrCorrupt, h)
	}
	return data, nil
}

// Has reports whether a blob is stored under h.
func (s *Store) Has(h version.ContentHandle) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.blobs[string(h)]
	return ok
}

// Stats describes store usage.
type Stats struct {
	Blobs           int
	RawBytes        int64
	CompressedBytes int64
}

// Stats returns current store usage.
func (s *Store) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Stats{
		Blobs:           len(s.blobs),
		RawBytes:        s.rawBytes,
		CompressedBytes: s.compressedBytes,
	}
}
