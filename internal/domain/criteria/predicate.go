package criteria

import (
	"encoding/json"
	"regexp"

	"github.com/kailas-cloud/swarmkb/internal/domain/document"
)

// Operator is a leaf comparison.
type Operator string

// Supported operators.
const (
	OpEq    Operator = "eq"
	OpNe    Operator = "ne"
	OpGt    Operator = "gt"
	OpGte   Operator = "gte"
	OpLt    Operator = "lt"
	OpLte   Operator = "lte"
	OpRegex Operator = "regex"
	OpIn    Operator = "in"
)

// Logic joins the children of a group node.
type Logic string

// Group kinds.
const (
	And Logic = "AND"
	Or  Logic = "OR"
)

// Predicate is a compiled, immutable predicate tree.
// A leaf carries (path, operator, value); a group carries (logic, children).
// The zero value matches every document.
type Predicate struct {
	logic    Logic
	children []Predicate

	path  document.Path
	op    Operator
	value any
	re    *regexp.Regexp
}

// MatchAll returns a predicate that accepts every document.
func MatchAll() Predicate { return Predicate{} }

// IsMatchAll reports whether the predicate accepts every document.
func (p Predicate) IsMatchAll() bool { return p.logic == "" && p.op == "" }

// IsLeaf reports whether the predicate is a single comparison.
func (p Predicate) IsLeaf() bool { return p.op != "" }

// Logic returns the group kind, empty for leaves.
func (p Predicate) Logic() Logic { return p.logic }

// Children returns the group members.
func (p Predicate) Children() []Predicate { return p.children }

// Field returns the dotted field path of a leaf.
func (p Predicate) Field() string { return p.path.String() }

// Operator returns the leaf operator.
func (p Predicate) Operator() Operator { return p.op }

// Value returns the leaf operand.
func (p Predicate) Value() any { return p.value }

// Match evaluates the predicate against a document.
// Wildcard segments are expanded per document; a leaf holds when any expansion holds.
func (p Predicate) Match(d document.Document) bool {
	switch {
	case p.IsMatchAll():
		return true
	case p.IsLeaf():
		for _, actual := range d.Resolve(p.path) {
			if p.compare(actual) {
				return true
			}
		}
		return false
	case p.logic == And:
		for _, c := range p.children {
			if !c.Match(d) {
				return false
			}
		}
		return true
	default:
		for _, c := range p.children {
			if c.Match(d) {
				return true
			}
		}
		return false
	}
}

func (p Predicate) compare(actual any) bool {
	switch p.op {
	case OpEq:
		eq, ok := equal(actual, p.value)
		return ok && eq
	case OpNe:
		eq, ok := equal(actual, p.value)
		return ok && !eq
	case OpGt, OpGte, OpLt, OpLte:
		a, ok := actual.(float64)
		if !ok {
			return false
		}
		b := p.value.(float64)
		switch p.op {
		case OpGt:
			return a > b
		case OpGte:
			return a >= b
		case OpLt:
			return a < b
		default:
			return a <= b
		}
	case OpRegex:
		s, ok := actual.(string)
		return ok && p.re.MatchString(s)
	case OpIn:
		for _, want := range p.value.([]any) {
			if eq, ok := equal(actual, want); ok && eq {
				return true
			}
		}
	}
	return false
}

// equal compares same-kind scalars. ok is false when the kinds differ.
func equal(a, b any) (eq, ok bool) {
	switch x := a.(type) {
	case float64:
		y, ok := b.(float64)
		return ok && x == y, ok
	case string:
		y, ok := b.(string)
		return ok && x == y, ok
	case bool:
		y, ok := b.(bool)
		return ok && x == y, ok
	}
	return false, false
}

// MarshalJSON emits the canonical form accepted back by Compile:
// leaves as {"field","operator","value"} triples, groups as {"AND"|"OR": [...]},
// match-all as an empty list.
func (p Predicate) MarshalJSON() ([]byte, error) {
	switch {
	case p.IsMatchAll():
		return []byte("[]"), nil
	case p.IsLeaf():
		return json.Marshal(struct {
			Field    string   `json:"field"`
			Operator Operator `json:"operator"`
			Value    any      `json:"value"`
		}{p.path.String(), p.op, p.value})
	default:
		return json.Marshal(map[string][]Predicate{string(p.logic): p.children})
	}
}

// UnmarshalJSON compiles any accepted criteria shape.
func (p *Predicate) UnmarshalJSON(data []byte) error {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return &Error{Reason: "invalid JSON: " + err.Error()}
	}
	compiled, err := Compile(raw)
	if err != nil {
		return err
	}
	*p = compiled
	return nil
}

// String returns the canonical JSON form.
func (p Predicate) String() string {
	b, err := p.MarshalJSON()
	if err != nil {
		return "<invalid predicate>"
	}
	return string(b)
}
