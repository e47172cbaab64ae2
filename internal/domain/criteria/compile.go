package criteria

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/kailas-cloud/swarmkb/internal/domain/document"
)

// MaxDepth bounds group nesting.
const MaxDepth = 32

var operatorAliases = map[string]Operator{
	"eq": OpEq, "=": OpEq, "==": OpEq,
	"ne": OpNe, "!=": OpNe, "<>": OpNe,
	"gt": OpGt, ">": OpGt,
	"gte": OpGte, ">=": OpGte,
	"lt": OpLt, "<": OpLt,
	"lte": OpLte, "<=": OpLte,
	"regex": OpRegex, "contains": OpRegex,
	"in": OpIn,
}

// Compile turns decoded criteria (JSON or YAML shaped) into a predicate tree.
//
// Accepted shapes, arbitrarily nested:
//
//	[clause, ...]                                  implicit AND, empty list matches all
//	{"AND": [...]} / {"OR": [...]}                 also $and / $or, any case
//	{"field": value, ...}                          equality, several keys AND-ed
//	{"field": {"$gt": 1, "$lt": 5}}                operator map
//	{"field": "f", "operator": "gt", "value": 1}   triple ("op" also accepted)
//	{"f": value, "op": "regex"}                    single field with an op key
func Compile(raw any) (Predicate, error) {
	return compileNode(raw, "$", 0)
}

// CompileStrings compiles command-line "field:value[:operator]" clauses joined by AND.
// A bare field:value is a string equality. With an operator, values that parse
// as integers or floats become numbers.
func CompileStrings(clauses []string) (Predicate, error) {
	leaves := make([]Predicate, 0, len(clauses))
	for i, c := range clauses {
		at := fmt.Sprintf("$[%d]", i)
		parts := strings.SplitN(c, ":", 3)
		if len(parts) < 2 || parts[0] == "" {
			return Predicate{}, malformed(at, "expected field:value[:operator], got %q", c)
		}
		opName, value := "eq", any(parts[1])
		if len(parts) == 3 {
			opName, value = parts[2], coerceScalar(parts[1])
		}
		leaf, err := newLeaf(at, parts[0], opName, value)
		if err != nil {
			return Predicate{}, err
		}
		leaves = append(leaves, leaf)
	}
	return join(And, leaves), nil
}

func compileNode(raw any, at string, depth int) (Predicate, error) {
	if depth > MaxDepth {
		return Predicate{}, malformed(at, "nesting deeper than %d", MaxDepth)
	}
	switch v := raw.(type) {
	case nil:
		return MatchAll(), nil
	case Predicate:
		return v, nil
	case []any:
		return compileList(v, at, depth)
	case []map[string]any:
		items := make([]any, len(v))
		for i := range v {
			items[i] = v[i]
		}
		return compileList(items, at, depth)
	case map[string]any:
		return compileMap(v, at, depth)
	case map[any]any:
		return compileNode(document.Normalize(v), at, depth)
	default:
		return Predicate{}, malformed(at, "unsupported criteria of type %T", raw)
	}
}

func compileList(items []any, at string, depth int) (Predicate, error) {
	children := make([]Predicate, 0, len(items))
	for i, item := range items {
		c, err := compileNode(item, fmt.Sprintf("%s[%d]", at, i), depth+1)
		if err != nil {
			return Predicate{}, err
		}
		if c.IsMatchAll() {
			continue
		}
		children = append(children, c)
	}
	return join(And, children), nil
}

func compileMap(m map[string]any, at string, depth int) (Predicate, error) {
	if len(m) == 0 {
		return MatchAll(), nil
	}

	// Triple: {"field", "operator"|"op", "value"}.
	if f, ok := m["field"].(string); ok {
		if opName, ok := opKey(m); ok {
			val, hasVal := m["value"]
			if !hasVal {
				return Predicate{}, malformed(at, "missing value for field %q", f)
			}
			return newLeaf(at, f, opName, val)
		}
	}

	// Single field plus "op": {"type": "Docker", "op": "regex"}.
	if opName, ok := m["op"].(string); ok && len(m) == 2 {
		for k, v := range m {
			if k != "op" {
				return newLeaf(at+"."+k, k, opName, v)
			}
		}
	}

	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	children := make([]Predicate, 0, len(keys))
	for _, k := range keys {
		sub := at + "." + k
		if logic, ok := parseLogic(k); ok {
			g, err := compileGroup(logic, m[k], sub, depth)
			if err != nil {
				return Predicate{}, err
			}
			children = append(children, g)
			continue
		}
		if strings.HasPrefix(k, "$") {
			return Predicate{}, malformed(sub, "unknown operator %q", k)
		}
		if ops, ok := operatorMap(m[k]); ok {
			opKeys := make([]string, 0, len(ops))
			for op := range ops {
				opKeys = append(opKeys, op)
			}
			sort.Strings(opKeys)
			for _, op := range opKeys {
				leaf, err := newLeaf(sub, k, op, ops[op])
				if err != nil {
					return Predicate{}, err
				}
				children = append(children, leaf)
			}
			continue
		}
		leaf, err := newLeaf(sub, k, "eq", m[k])
		if err != nil {
			return Predicate{}, err
		}
		children = append(children, leaf)
	}
	return join(And, children), nil
}

func compileGroup(logic Logic, raw any, at string, depth int) (Predicate, error) {
	var items []any
	switch v := raw.(type) {
	case []any:
		items = v
	case []map[string]any:
		for _, e := range v {
			items = append(items, e)
		}
	case map[string]any:
		items = []any{v}
	default:
		return Predicate{}, malformed(at, "%s group must be a list, got %T", logic, raw)
	}
	if len(items) == 0 {
		return Predicate{}, malformed(at, "empty %s group", logic)
	}
	children := make([]Predicate, 0, len(items))
	for i, item := range items {
		c, err := compileNode(item, fmt.Sprintf("%s[%d]", at, i), depth+1)
		if err != nil {
			return Predicate{}, err
		}
		if c.IsMatchAll() {
			if logic == Or {
				return MatchAll(), nil
			}
			continue
		}
		children = append(children, c)
	}
	return join(logic, children), nil
}

func newLeaf(at, field, opName string, value any) (Predicate, error) {
	path := document.ParsePath(field)
	if len(path) == 0 {
		return Predicate{}, malformed(at, "empty field path")
	}
	name := strings.ToLower(strings.TrimPrefix(strings.TrimSpace(opName), "$"))
	op, ok := operatorAliases[name]
	if !ok {
		return Predicate{}, malformed(at, "unknown operator %q", opName)
	}
	value = document.Normalize(value)
	leaf := Predicate{path: path, op: op}

	switch op {
	case OpGt, OpGte, OpLt, OpLte:
		f, ok := toNumber(value)
		if !ok {
			return Predicate{}, malformed(at, "operator %s needs a number, got %v", op, value)
		}
		leaf.value = f
	case OpRegex:
		s, ok := value.(string)
		if !ok {
			return Predicate{}, malformed(at, "operator %s needs a string, got %T", opName, value)
		}
		if name == "contains" {
			s = regexp.QuoteMeta(s)
		}
		re, err := regexp.Compile(s)
		if err != nil {
			return Predicate{}, malformed(at, "bad regex %q: %v", s, err)
		}
		leaf.value, leaf.re = s, re
	case OpIn:
		list, ok := value.([]any)
		if !ok {
			return Predicate{}, malformed(at, "operator in needs a list, got %T", value)
		}
		leaf.value = list
	default:
		switch value.(type) {
		case string, float64, bool:
		default:
			return Predicate{}, malformed(at, "operator %s needs a scalar, got %T", op, value)
		}
		leaf.value = value
	}
	return leaf, nil
}

// join collapses single-child groups and flattens nested groups of the same kind.
func join(logic Logic, children []Predicate) Predicate {
	flat := make([]Predicate, 0, len(children))
	for _, c := range children {
		if c.logic == logic {
			flat = append(flat, c.children...)
			continue
		}
		flat = append(flat, c)
	}
	switch len(flat) {
	case 0:
		return MatchAll()
	case 1:
		return flat[0]
	default:
		return Predicate{logic: logic, children: flat}
	}
}

func opKey(m map[string]any) (string, bool) {
	if s, ok := m["operator"].(string); ok {
		return s, true
	}
	s, ok := m["op"].(string)
	return s, ok
}

func parseLogic(key string) (Logic, bool) {
	switch strings.ToUpper(strings.TrimPrefix(key, "$")) {
	case "AND":
		return And, true
	case "OR":
		return Or, true
	}
	return "", false
}

// operatorMap reports whether v is {"$op": operand, ...}.
func operatorMap(v any) (map[string]any, bool) {
	m, ok := v.(map[string]any)
	if !ok || len(m) == 0 {
		return nil, false
	}
	for k := range m {
		if !strings.HasPrefix(k, "$") {
			return nil, false
		}
	}
	return m, true
}

func toNumber(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case string:
		f, err := strconv.ParseFloat(n, 64)
		return f, err == nil
	}
	return 0, false
}

func coerceScalar(s string) any {
	if i, err := strconv.ParseInt(s, 10, 64); err == nil {
		return float64(i)
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	return s
}
