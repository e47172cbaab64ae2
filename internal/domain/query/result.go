package query

import (
	"github.com/kailas-cloud/swarmkb/internal/domain/document"
)

// Annotation keys added to documents when sources are requested.
const (
	FieldSources          = "_sources"
	FieldDivergentSources = "_divergent_sources"
)

// Meta describes how complete a result is.
type Meta struct {
	Errors    map[string]string   `json:"errors,omitempty"`
	Truncated bool                `json:"truncated"`
	Quorate   *bool               `json:"quorate,omitempty"`
	Fallback  bool                `json:"fallback,omitempty"`
	Sources   map[string][]string `json:"sources,omitempty"`
	Responded []string            `json:"responded,omitempty"`
}

// Result is the merged answer of a query.
type Result struct {
	Documents []document.Document `json:"data"`
	Meta      Meta                `json:"meta"`
}
