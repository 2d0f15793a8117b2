package operation

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/dshills/docforge/internal/version"
)

func TestSchemas(t *testing.T) {
	tests := []struct {
		kind       Kind
		pageScoped bool
		accept     []int
		reject     []int
	}{
		{Rotate, true, []int{1, 5}, []int{0}},
		{DeletePages, true, []int{1, 2}, []int{0}},
		{Redact, true, []int{1, 3}, []int{0}},
		{Reorder, false, []int{1}, []int{0, 2}},
		{InsertBlank, false, []int{1}, []int{0, 2}},
		{Split, true, []int{1}, []int{0, 2}},
		{Merge, false, []int{2, 10}, []int{0, 1}},
	}

	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			s, ok := Lookup(tt.kind)
			if !ok {
				t.Fatalf("Lookup(%q) failed", tt.kind)
			}
			if s.PageScoped != tt.pageScoped {
				t.Errorf("PageScoped = %v, want %v", s.PageScoped, tt.pageScoped)
			}
			for _, n := range tt.accept {
				if !s.AcceptsInputs(n) {
					t.Errorf("AcceptsInputs(%d) = false", n)
				}
			}
			for _, n := range tt.reject {
				if s.AcceptsInputs(n) {
					t.Errorf("AcceptsInputs(%d) = true", n)
				}
			}
		})
	}

	if _, ok := Lookup("explode"); ok {
		t.Error("Lookup of unknown kind succeeded")
	}
	if got := len(Kinds()); got != 7 {
		t.Errorf("len(Kinds()) = %d, want 7", got)
	}
}

func TestInputRange(t *testing.T) {
	tests := map[Kind]string{
		Rotate:  "at least 1",
		Reorder: "exactly 1",
		Merge:   "at least 2",
	}
	for kind, want := range tests {
		s, _ := Lookup(kind)
		if got := s.InputRange(); got != want {
			t.Errorf("%s InputRange() = %q, want %q", kind, got, want)
		}
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		params Params
		field  string // empty when valid
	}{
		{"rotate 90", RotateParams{Angle: 90}, ""},
		{"rotate 45", RotateParams{Angle: 45}, "angle"},
		{"rotate negative", RotateParams{Angle: -90}, "angle"},
		{"redact ok", RedactParams{Areas: []version.Rect{{X: 0, Y: 0, Width: 10, Height: 10}}}, ""},
		{"redact no areas", RedactParams{}, "areas"},
		{"redact zero width", RedactParams{Areas: []version.Rect{{Width: 0, Height: 1}}}, "areas"},
		{"redact negative x", RedactParams{Areas: []version.Rect{{X: -1, Width: 1, Height: 1}}}, "areas"},
		{"reorder order", ReorderParams{Order: []uint{2, 1}}, ""},
		{"reorder reverse", ReorderParams{Reverse: true}, ""},
		{"reorder neither", ReorderParams{}, "order"},
		{"reorder both", ReorderParams{Order: []uint{1}, Reverse: true}, "order"},
		{"reorder zero", ReorderParams{Order: []uint{0, 1}}, "order"},
		{"reorder duplicate", ReorderParams{Order: []uint{1, 1}}, "order"},
		{"insert ok", InsertBlankParams{After: 2, Count: 3}, ""},
		{"insert zero count", InsertBlankParams{Count: 0}, "count"},
		{"insert too many", InsertBlankParams{Count: MaxInsertCount + 1}, "count"},
		{"insert negative size", InsertBlankParams{Count: 1, Width: -1}, "size"},
		{"split", SplitParams{Every: 2}, ""},
		{"merge", MergeParams{}, ""},
		{"delete", DeletePagesParams{}, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.params.Validate()
			if tt.field == "" {
				if err != nil {
					t.Errorf("Validate() = %v, want nil", err)
				}
				return
			}
			var pe *ParamError
			if !errors.As(err, &pe) {
				t.Fatalf("Validate() = %v, want *ParamError", err)
			}
			if pe.Field != tt.field {
				t.Errorf("Field = %q, want %q", pe.Field, tt.field)
			}
		})
	}
}

func TestDefaultParams(t *testing.T) {
	for _, kind := range []Kind{Rotate, DeletePages, Split, Merge} {
		p, ok := DefaultParams(kind)
		if !ok {
			t.Errorf("DefaultParams(%s) not available", kind)
			continue
		}
		if p.Kind() != kind {
			t.Errorf("DefaultParams(%s).Kind() = %s", kind, p.Kind())
		}
	}
	for _, kind := range []Kind{Redact, Reorder, InsertBlank, "unknown"} {
		if _, ok := DefaultParams(kind); ok {
			t.Errorf("DefaultParams(%s) should require explicit parameters", kind)
		}
	}
}

func TestDecodeParams(t *testing.T) {
	tests := []struct {
		name string
		kind Kind
		raw  map[string]any
		want Params
	}{
		{"rotate", Rotate, map[string]any{"angle": 180}, RotateParams{Angle: 180}},
		{"redact", Redact, map[string]any{
			"areas":  []any{map[string]any{"x": 1, "y": 2, "width": 3, "height": 4}},
			"reason": "pii",
		}, RedactParams{Areas: []version.Rect{{X: 1, Y: 2, Width: 3, Height: 4}}, Reason: "pii"}},
		{"reorder", Reorder, map[string]any{"order": []any{3, 1, 2}}, ReorderParams{Order: []uint{3, 1, 2}}},
		{"insert", InsertBlank, map[string]any{"after": 0, "count": 2, "width": 612.0}, InsertBlankParams{Count: 2, Width: 612}},
		{"split", Split, map[string]any{"every": 5}, SplitParams{Every: 5}},
		{"merge empty", Merge, nil, MergeParams{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DecodeParams(tt.kind, tt.raw)
			if err != nil {
				t.Fatalf("DecodeParams failed: %v", err)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestDecodeParamsErrors(t *testing.T) {
	if _, err := DecodeParams("explode", nil); err == nil {
		t.Error("expected error for unknown kind")
	}

	_, err := DecodeParams(Rotate, map[string]any{"angel": 90})
	var pe *ParamError
	if !errors.As(err, &pe) {
		t.Fatalf("expected *ParamError for unknown field, got %v", err)
	}

	if _, err := DecodeParams(Rotate, map[string]any{"angle": "ninety"}); err == nil {
		t.Error("expected error for mistyped field")
	}
}
