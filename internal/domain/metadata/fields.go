package metadata

import (
	"reflect"
	"strings"
	"time"
)

// Kind is the value shape of a record field.
type Kind int

// Field kinds.
const (
	KindString Kind = iota
	KindStrings
	KindInt
	KindFloat
	KindTime
)

func (k Kind) String() string {
	switch k {
	case KindStrings:
		return "string[]"
	case KindInt:
		return "int"
	case KindFloat:
		return "float"
	case KindTime:
		return "timestamp"
	default:
		return "string"
	}
}

// Field describes one record attribute.
type Field struct {
	Name  string
	Kind  Kind
	index int
}

// Immutable fields cannot be changed by an update.
var immutable = map[string]bool{"id": true, "_id": true, "associated_id": true}

var (
	fieldTable []Field
	fieldIndex map[string]Field
)

func init() {
	t := reflect.TypeOf(Record{})
	timeType := reflect.TypeOf(time.Time{})
	fieldTable = make([]Field, 0, t.NumField())
	fieldIndex = make(map[string]Field, t.NumField())
	for i := 0; i < t.NumField(); i++ {
		sf := t.Field(i)
		name, _, _ := strings.Cut(sf.Tag.Get("json"), ",")
		var kind Kind
		switch {
		case sf.Type == timeType:
			kind = KindTime
		case sf.Type.Kind() == reflect.Slice:
			kind = KindStrings
		case sf.Type.Kind() == reflect.Int64:
			kind = KindInt
		case sf.Type.Kind() == reflect.Float64:
			kind = KindFloat
		default:
			kind = KindString
		}
		f := Field{Name: name, Kind: kind, index: i}
		fieldTable = append(fieldTable, f)
		fieldIndex[name] = f
	}
}

// Fields returns every record attribute in declaration order.
func Fields() []Field {
	out := make([]Field, len(fieldTable))
	copy(out, fieldTable)
	return out
}

// FieldNames returns the attribute names in declaration order.
func FieldNames() []string {
	out := make([]string, len(fieldTable))
	for i, f := range fieldTable {
		out[i] = f.Name
	}
	return out
}

// Lookup finds a field by its JSON name.
func Lookup(name string) (Field, bool) {
	f, ok := fieldIndex[name]
	return f, ok
}

// IsImmutable reports whether name can never be updated.
func IsImmutable(name string) bool { return immutable[name] }

// Values returns the record's attribute values in declaration order.
// Slices are []string, times time.Time, integers int64.
func (r Record) Values() []any {
	v := reflect.ValueOf(r)
	out := make([]any, len(fieldTable))
	for i, f := range fieldTable {
		fv := v.Field(f.index)
		if f.Name == "status" {
			out[i] = string(r.Status)
			continue
		}
		out[i] = fv.Interface()
	}
	return out
}

// Get returns a single attribute value.
func (r Record) Get(name string) (any, bool) {
	f, ok := fieldIndex[name]
	if !ok {
		return nil, false
	}
	if name == "status" {
		return string(r.Status), true
	}
	return reflect.ValueOf(r).Field(f.index).Interface(), true
}

// Equivalent reports whether two records carry the same attribute values.
// Timestamps compare at microsecond precision and nil slices equal empty ones,
// matching what the relational mirror can represent.
func (r Record) Equivalent(o Record) bool {
	a, b := r.Values(), o.Values()
	for i := range a {
		switch x := a[i].(type) {
		case time.Time:
			y := b[i].(time.Time)
			if !x.Truncate(time.Microsecond).Equal(y.Truncate(time.Microsecond)) {
				return false
			}
		case []string:
			y := b[i].([]string)
			if len(x) != len(y) {
				return false
			}
			for j := range x {
				if x[j] != y[j] {
					return false
				}
			}
		default:
			if a[i] != b[i] {
				return false
			}
		}
	}
	return true
}
