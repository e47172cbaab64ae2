package document

import (
	"sort"
	"strconv"
	"strings"
	"time"
)

// Wildcard matches any element of a map or array at one path level.
const Wildcard = "*"

// Path is a parsed dot-separated field path.
type Path []string

// ParsePath splits a dotted field path. Empty segments are dropped.
func ParsePath(s string) Path {
	parts := strings.Split(s, ".")
	out := make(Path, 0, len(parts))
	for _, p := range parts {
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// String joins the path back with dots.
func (p Path) String() string { return strings.Join(p, ".") }

// HasWildcard reports whether any segment is a wildcard.
func (p Path) HasWildcard() bool {
	for _, s := range p {
		if s == Wildcard {
			return true
		}
	}
	return false
}

// Resolve enumerates every concrete value the path addresses in the document.
// Wildcards expand per document; map keys are visited in sorted order so the
// expansion is deterministic.
func (d Document) Resolve(p Path) []any {
	if len(p) == 0 {
		return nil
	}
	switch p[0] {
	case FieldID:
		if len(p) == 1 {
			return []any{d.id}
		}
		return nil
	case FieldImportedAt:
		if len(p) == 1 && !d.importedAt.IsZero() {
			return []any{d.importedAt.Format(time.RFC3339Nano)}
		}
		return nil
	}
	var out []any
	resolve(d.fields, p, &out)
	return out
}

func resolve(node any, p Path, out *[]any) {
	if len(p) == 0 {
		*out = append(*out, node)
		return
	}
	seg, rest := p[0], p[1:]
	switch n := node.(type) {
	case map[string]any:
		if seg == Wildcard {
			keys := make([]string, 0, len(n))
			for k := range n {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			for _, k := range keys {
				resolve(n[k], rest, out)
			}
			return
		}
		if v, ok := n[seg]; ok {
			resolve(v, rest, out)
		}
	case []any:
		if seg == Wildcard {
			for _, e := range n {
				resolve(e, rest, out)
			}
			return
		}
		idx, err := strconv.Atoi(seg)
		if err != nil || idx < 0 || idx >= len(n) {
			return
		}
		resolve(n[idx], rest, out)
	}
}
