package document

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strconv"
	"time"
)

// Reserved top-level keys.
const (
	FieldID         = "_id"
	FieldImportedAt = "_imported_at"
	FieldFilename   = "_filename"
	FieldStorage    = "_storage_type"
	FieldLineage    = "_lineage"
)

// MaxIDLength is the maximum document identifier length.
const MaxIDLength = 512

// Document is an opaque catalog document (immutable value object).
// Fields never contain _id or _imported_at; those live in dedicated members.
type Document struct {
	id         string
	importedAt time.Time
	fields     map[string]any
}

// New validates and creates a Document. The fields map is deep-copied and normalized
// (integers become float64, nested maps become map[string]any) so that documents
// decoded from JSON and YAML compare equal.
func New(id string, importedAt time.Time, fields map[string]any) (Document, error) {
	if id == "" {
		return Document{}, fmt.Errorf("document ID is required")
	}
	if len(id) > MaxIDLength {
		return Document{}, fmt.Errorf("document ID too long (max %d)", MaxIDLength)
	}
	norm := make(map[string]any, len(fields))
	for k, v := range fields {
		if k == FieldID || k == FieldImportedAt {
			continue
		}
		norm[k] = normalize(v)
	}
	return Document{id: id, importedAt: importedAt.UTC(), fields: norm}, nil
}

// FromMap builds a Document from a decoded map carrying _id and (optionally) _imported_at.
func FromMap(m map[string]any) (Document, error) {
	id, err := idFromValue(m[FieldID])
	if err != nil {
		return Document{}, err
	}
	var importedAt time.Time
	if raw, ok := m[FieldImportedAt]; ok && raw != nil {
		t, ok := ParseTime(raw)
		if !ok {
			return Document{}, fmt.Errorf("document %q: unparsable %s %v", id, FieldImportedAt, raw)
		}
		importedAt = t
	}
	return New(id, importedAt, m)
}

// ID returns the document identifier.
func (d Document) ID() string { return d.id }

// ImportedAt returns the ingestion timestamp.
func (d Document) ImportedAt() time.Time { return d.importedAt }

// Fields returns the document body without reserved identity keys. Callers must not mutate it.
func (d Document) Fields() map[string]any { return d.fields }

// IsZero reports whether the document is the zero value.
func (d Document) IsZero() bool { return d.id == "" }

// WithImportedAt returns a copy stamped with t.
func (d Document) WithImportedAt(t time.Time) Document {
	d.importedAt = t.UTC()
	return d
}

// Merge returns a new document with data merged over the top-level fields.
// _id is never changed; a nil value removes the field.
func (d Document) Merge(data map[string]any) Document {
	merged := make(map[string]any, len(d.fields)+len(data))
	for k, v := range d.fields {
		merged[k] = v
	}
	for k, v := range data {
		if k == FieldID || k == FieldImportedAt {
			continue
		}
		if v == nil {
			delete(merged, k)
			continue
		}
		merged[k] = normalize(v)
	}
	return Document{id: d.id, importedAt: d.importedAt, fields: merged}
}

// WithField returns a copy carrying one extra top-level field.
func (d Document) WithField(key string, value any) Document {
	return d.Merge(map[string]any{key: value})
}

// ToMap returns a fresh map including _id and _imported_at.
func (d Document) ToMap() map[string]any {
	m := make(map[string]any, len(d.fields)+2)
	for k, v := range d.fields {
		m[k] = v
	}
	m[FieldID] = d.id
	if !d.importedAt.IsZero() {
		m[FieldImportedAt] = d.importedAt.Format(time.RFC3339Nano)
	}
	return m
}

// Equal reports whether two documents carry the same identity, timestamp and body.
func (d Document) Equal(o Document) bool {
	return d.id == o.id && d.importedAt.Equal(o.importedAt) && reflect.DeepEqual(d.fields, o.fields)
}

// SameBody reports whether two documents carry the same body regardless of timestamp.
func (d Document) SameBody(o Document) bool {
	return d.id == o.id && reflect.DeepEqual(d.fields, o.fields)
}

// MarshalJSON encodes the document as a flat object.
func (d Document) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.ToMap())
}

// UnmarshalJSON decodes a flat object carrying _id.
func (d *Document) UnmarshalJSON(data []byte) error {
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return fmt.Errorf("decode document: %w", err)
	}
	parsed, err := FromMap(m)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// ParseTime accepts RFC3339(Nano) strings, epoch milliseconds and time.Time.
func ParseTime(v any) (time.Time, bool) {
	switch t := v.(type) {
	case time.Time:
		return t.UTC(), true
	case string:
		for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02 15:04:05", "2006-01-02"} {
			if parsed, err := time.Parse(layout, t); err == nil {
				return parsed.UTC(), true
			}
		}
		if ms, err := strconv.ParseInt(t, 10, 64); err == nil {
			return time.UnixMilli(ms).UTC(), true
		}
	case float64:
		return time.UnixMilli(int64(t)).UTC(), true
	case int64:
		return time.UnixMilli(t).UTC(), true
	case int:
		return time.UnixMilli(int64(t)).UTC(), true
	case json.Number:
		if ms, err := t.Int64(); err == nil {
			return time.UnixMilli(ms).UTC(), true
		}
	}
	return time.Time{}, false
}

func idFromValue(v any) (string, error) {
	switch id := v.(type) {
	case string:
		if id == "" {
			return "", fmt.Errorf("document %s is empty", FieldID)
		}
		return id, nil
	case float64:
		return strconv.FormatFloat(id, 'f', -1, 64), nil
	case int:
		return strconv.Itoa(id), nil
	case nil:
		return "", fmt.Errorf("document %s is required", FieldID)
	default:
		return "", fmt.Errorf("document %s must be a string, got %T", FieldID, v)
	}
}

// Normalize deep-copies v into JSON-compatible shapes.
func Normalize(v any) any { return normalize(v) }

func normalize(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, e := range t {
			out[k] = normalize(e)
		}
		return out
	case map[any]any:
		out := make(map[string]any, len(t))
		for k, e := range t {
			out[fmt.Sprint(k)] = normalize(e)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = normalize(e)
		}
		return out
	case []string:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = e
		}
		return out
	case int:
		return float64(t)
	case int8:
		return float64(t)
	case int16:
		return float64(t)
	case int32:
		return float64(t)
	case int64:
		return float64(t)
	case uint:
		return float64(t)
	case uint8:
		return float64(t)
	case uint16:
		return float64(t)
	case uint32:
		return float64(t)
	case uint64:
		return float64(t)
	case float32:
		return float64(t)
	case json.Number:
		if f, err := t.Float64(); err == nil {
			return f
		}
		return t.String()
	case time.Time:
		return t.UTC().Format(time.RFC3339Nano)
	default:
		return v
	}
}
