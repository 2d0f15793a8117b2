package content

import (
	"encoding/json"
	"fmt"

	"github.com/dshills/docforge/internal/version"
)

// CanonicalJSON encodes v with sorted object keys and no insignificant
// whitespace, so equal values always hash to the same handle.
func CanonicalJSON(v any) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	// encoding/json writes map keys in sorted order; a round trip through
	// a generic value turns struct field order into key order as well.
	var generic any
	if err := json.Unmarshal(data, &generic); err != nil {
		return nil, err
	}
	return json.Marshal(generic)
}

// PutJSON stores the canonical JSON encoding of v.
func (s *Store) PutJSON(v any) (version.ContentHandle, error) {
	data, err := CanonicalJSON(v)
	if err != nil {
		return "", fmt.Errorf("encoding manifest: %w", err)
	}
	return s.Put(data)
}

// GetJSON decodes the JSON blob stored under h into v.
func (s *Store) GetJSON(h version.ContentHandle, v any) error {
	data, err := s.Get(h)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decoding %s: %w", h, err)
	}
	return nil
}
