package operation

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// DecodeParams turns a loosely typed parameter bag, as received from a UI
// or a config file, into the Params type of kind. Unknown fields are
// rejected. A nil or empty bag yields the kind's zero parameters; the
// caller still has to Validate them.
func DecodeParams(kind Kind, raw map[string]any) (Params, error) {
	zero, ok := zeroParams(kind)
	if !ok {
		return nil, fmt.Errorf("unknown operation kind %q", kind)
	}
	if len(raw) == 0 {
		return zero, nil
	}

	data, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("encoding %s parameters: %w", kind, err)
	}

	switch kind {
	case Rotate:
		return decodeInto[RotateParams](kind, data)
	case DeletePages:
		return decodeInto[DeletePagesParams](kind, data)
	case Redact:
		return decodeInto[RedactParams](kind, data)
	case Reorder:
		return decodeInto[ReorderParams](kind, data)
	case InsertBlank:
		return decodeInto[InsertBlankParams](kind, data)
	case Split:
		return decodeInto[SplitParams](kind, data)
	case Merge:
		return decodeInto[MergeParams](kind, data)
	}
	return nil, fmt.Errorf("unknown operation kind %q", kind)
}

func decodeInto[T Params](kind Kind, data []byte) (Params, error) {
	var p T
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&p); err != nil {
		return nil, &ParamError{Field: string(kind), Reason: err.Error()}
	}
	return p, nil
}
