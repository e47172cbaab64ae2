package metadata

import (
	"fmt"
	"reflect"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cast"

	"github.com/kailas-cloud/swarmkb/internal/domain"
)

// Patch is a validated partial update with values coerced to field kinds.
// updated_at is never part of a patch; the writer stamps it.
type Patch struct {
	values map[string]any
}

// NewPatch validates raw field changes.
// Identity fields fail with domain.ErrImmutableField; unknown fields and
// values that cannot be coerced fail with domain.ErrInvalidSchema.
func NewPatch(raw map[string]any) (Patch, error) {
	names := make([]string, 0, len(raw))
	for k := range raw {
		names = append(names, k)
	}
	sort.Strings(names)

	values := make(map[string]any, len(raw))
	for _, name := range names {
		if IsImmutable(name) {
			return Patch{}, fmt.Errorf("%w: %s", domain.ErrImmutableField, name)
		}
		f, ok := Lookup(name)
		if !ok {
			return Patch{}, fmt.Errorf("%w: unknown field %q", domain.ErrInvalidSchema, name)
		}
		if name == "updated_at" {
			continue
		}
		v, err := coerce(f, raw[name])
		if err != nil {
			return Patch{}, fmt.Errorf("%w: field %s: %w", domain.ErrInvalidSchema, name, err)
		}
		values[name] = v
	}
	return Patch{values: values}, nil
}

// Fields returns the changed field names in sorted order.
func (p Patch) Fields() []string {
	out := make([]string, 0, len(p.values))
	for k := range p.values {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// IsEmpty reports whether the patch changes nothing.
func (p Patch) IsEmpty() bool { return len(p.values) == 0 }

// Apply returns a copy of r with the patch applied and updated_at set to now.
func (p Patch) Apply(r Record, now time.Time) Record {
	v := reflect.ValueOf(&r).Elem()
	for name, val := range p.values {
		assign(v, fieldIndex[name], val)
	}
	r.UpdatedAt = now.UTC()
	return r
}

func coerce(f Field, v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	switch f.Kind {
	case KindStrings:
		return toTags(v)
	case KindInt:
		return cast.ToInt64E(v)
	case KindFloat:
		return cast.ToFloat64E(v)
	case KindTime:
		t, err := cast.ToTimeE(v)
		if err != nil {
			return nil, err
		}
		return t.UTC(), nil
	default:
		s, err := cast.ToStringE(v)
		if err != nil {
			return nil, err
		}
		if f.Name == "status" {
			st, ok := ParseStatus(s)
			if !ok {
				return nil, fmt.Errorf("unknown status %q", s)
			}
			return st, nil
		}
		return s, nil
	}
}

// Set returns a copy of r with values assigned by field name and coerced to each
// field's kind. Unlike a Patch it may set identity fields and leaves updated_at as given.
func Set(r Record, values map[string]any) (Record, error) {
	v := reflect.ValueOf(&r).Elem()
	for name, raw := range values {
		f, ok := Lookup(name)
		if !ok {
			return Record{}, fmt.Errorf("%w: unknown field %q", domain.ErrInvalidSchema, name)
		}
		val, err := coerce(f, raw)
		if err != nil {
			return Record{}, fmt.Errorf("%w: field %s: %w", domain.ErrInvalidSchema, name, err)
		}
		assign(v, f, val)
	}
	return r, nil
}

func assign(v reflect.Value, f Field, val any) {
	fv := v.Field(f.index)
	if val == nil {
		fv.Set(reflect.Zero(fv.Type()))
		return
	}
	fv.Set(reflect.ValueOf(val).Convert(fv.Type()))
}

// toTags accepts a list or a comma separated string. Elements are trimmed
// and blanks dropped.
func toTags(v any) ([]string, error) {
	var raw []string
	if s, ok := v.(string); ok {
		raw = strings.Split(s, ",")
	} else {
		var err error
		if raw, err = cast.ToStringSliceE(v); err != nil {
			return nil, err
		}
	}
	out := make([]string, 0, len(raw))
	for _, t := range raw {
		if t = strings.TrimSpace(t); t != "" {
			out = append(out, t)
		}
	}
	return out, nil
}
