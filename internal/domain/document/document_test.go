package document

import (
	"encoding/json"
	"strings"
	"testing"
	"time"
)

func TestNew_Valid(t *testing.T) {
	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	doc, err := New("doc-1", at, map[string]any{"name": "solar", "capacity": 100})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if doc.ID() != "doc-1" {
		t.Errorf("ID() = %q", doc.ID())
	}
	if !doc.ImportedAt().Equal(at) {
		t.Errorf("ImportedAt() = %v", doc.ImportedAt())
	}
	if doc.Fields()["capacity"] != float64(100) {
		t.Errorf("capacity should be normalized to float64, got %T", doc.Fields()["capacity"])
	}
}

func TestNew_EmptyID(t *testing.T) {
	if _, err := New("", time.Time{}, nil); err == nil {
		t.Fatal("expected error for empty ID")
	}
}

func TestNew_IDTooLong(t *testing.T) {
	if _, err := New(strings.Repeat("a", MaxIDLength+1), time.Time{}, nil); err == nil {
		t.Fatal("expected error for long ID")
	}
}

func TestNew_StripsReservedKeys(t *testing.T) {
	doc, err := New("doc-1", time.Time{}, map[string]any{FieldID: "other", FieldImportedAt: "x", "a": "b"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := doc.Fields()[FieldID]; ok {
		t.Error("fields must not carry _id")
	}
	if _, ok := doc.Fields()[FieldImportedAt]; ok {
		t.Error("fields must not carry _imported_at")
	}
}

func TestNew_DeepCopiesInput(t *testing.T) {
	nested := map[string]any{"k": "v"}
	in := map[string]any{"nested": nested}
	doc, err := New("doc-1", time.Time{}, in)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	nested["k"] = "mutated"
	in["extra"] = 1
	got := doc.Fields()["nested"].(map[string]any)["k"]
	if got != "v" {
		t.Errorf("document was mutated through caller map: %v", got)
	}
	if _, ok := doc.Fields()["extra"]; ok {
		t.Error("document picked up a key added after construction")
	}
}

func TestFromMap_ParsesImportedAt(t *testing.T) {
	tests := []struct {
		name string
		raw  any
		want time.Time
	}{
		{"rfc3339", "2026-03-01T10:00:00Z", time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)},
		{"epoch millis", float64(1700000000000), time.UnixMilli(1700000000000).UTC()},
		{"date only", "2026-03-01", time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			doc, err := FromMap(map[string]any{FieldID: "x", FieldImportedAt: tc.raw})
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !doc.ImportedAt().Equal(tc.want) {
				t.Errorf("ImportedAt() = %v, want %v", doc.ImportedAt(), tc.want)
			}
		})
	}
}

func TestFromMap_Errors(t *testing.T) {
	tests := []struct {
		name string
		in   map[string]any
	}{
		{"missing id", map[string]any{"a": 1}},
		{"bool id", map[string]any{FieldID: true}},
		{"bad timestamp", map[string]any{FieldID: "x", FieldImportedAt: "yesterday"}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := FromMap(tc.in); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestMerge(t *testing.T) {
	doc, _ := New("doc-1", time.Time{}, map[string]any{"a": "1", "b": "2"})
	merged := doc.Merge(map[string]any{"b": nil, "c": 3, FieldID: "hijack"})

	if merged.ID() != "doc-1" {
		t.Errorf("Merge changed _id to %q", merged.ID())
	}
	if _, ok := merged.Fields()["b"]; ok {
		t.Error("nil value should remove field")
	}
	if merged.Fields()["c"] != float64(3) {
		t.Errorf("c = %v", merged.Fields()["c"])
	}
	if _, ok := doc.Fields()["c"]; ok {
		t.Error("Merge mutated the original document")
	}
}

func TestJSONRoundTrip(t *testing.T) {
	at := time.Date(2026, 5, 6, 7, 8, 9, 123, time.UTC)
	doc, _ := New("doc-1", at, map[string]any{"metadata": map[string]any{"kb_datastore": "ADT"}})

	data, err := json.Marshal(doc)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var back Document
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !doc.Equal(back) {
		t.Errorf("round trip mismatch:\n got %v\nwant %v", back.ToMap(), doc.ToMap())
	}
}

func TestResolve(t *testing.T) {
	doc, _ := New("doc-1", time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), map[string]any{
		"topology_template": map[string]any{
			"node_templates": map[string]any{
				"web": map[string]any{"type": "Docker"},
				"db":  map[string]any{"type": "Postgres"},
			},
		},
		"ports": []any{80, 443},
	})

	tests := []struct {
		path string
		want []any
	}{
		{"_id", []any{"doc-1"}},
		{"_imported_at", []any{"2026-01-01T00:00:00Z"}},
		{"topology_template.node_templates.*.type", []any{"Postgres", "Docker"}},
		{"topology_template.node_templates.web.type", []any{"Docker"}},
		{"ports.1", []any{float64(443)}},
		{"ports.*", []any{float64(80), float64(443)}},
		{"ports.9", nil},
		{"missing.path", nil},
	}
	for _, tc := range tests {
		t.Run(tc.path, func(t *testing.T) {
			got := doc.Resolve(ParsePath(tc.path))
			if len(got) != len(tc.want) {
				t.Fatalf("Resolve(%q) = %v, want %v", tc.path, got, tc.want)
			}
			for i := range got {
				if got[i] != tc.want[i] {
					t.Errorf("Resolve(%q)[%d] = %v, want %v", tc.path, i, got[i], tc.want[i])
				}
			}
		})
	}
}

func TestParsePath(t *testing.T) {
	p := ParsePath("a..b.*")
	if p.String() != "a.b.*" {
		t.Errorf("String() = %q", p.String())
	}
	if !p.HasWildcard() {
		t.Error("expected wildcard")
	}
}
