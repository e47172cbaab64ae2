package query

import (
	"sort"

	"github.com/kailas-cloud/swarmkb/internal/domain/document"
	domquery "github.com/kailas-cloud/swarmkb/internal/domain/query"
)

// TieBreakPolicy orders two sources whose copies carry the same _imported_at.
type TieBreakPolicy int

// TieBreakLocalThenPeerID prefers the local copy, then the lexically smallest peer id.
const TieBreakLocalThenPeerID TieBreakPolicy = iota

// Prefer reports whether source a wins over source b.
func (p TieBreakPolicy) Prefer(a, b string) bool {
	switch {
	case a == b:
		return false
	case a == domquery.LocalSource:
		return true
	case b == domquery.LocalSource:
		return false
	}
	return a < b
}

type candidate struct {
	source string
	doc    document.Document
}

func (p TieBreakPolicy) beats(c, cur candidate) bool {
	ct, curt := c.doc.ImportedAt(), cur.doc.ImportedAt()
	if !ct.Equal(curt) {
		return ct.After(curt)
	}
	return p.Prefer(c.source, cur.source)
}

// merged is the outcome of deduplicating a set of envelopes.
type merged struct {
	docs      []document.Document
	sources   map[string][]string
	divergent map[string][]string
}

// merge deduplicates documents by _id across envelopes. Failed envelopes are skipped.
// The result does not depend on envelope order, and merging the same envelope twice
// changes nothing.
func merge(envs []domquery.Envelope, policy TieBreakPolicy) merged {
	byID := make(map[string][]candidate)
	for _, env := range envs {
		if !env.OK() {
			continue
		}
		for _, d := range env.Documents {
			byID[d.ID()] = append(byID[d.ID()], candidate{source: env.PeerID, doc: d})
		}
	}

	out := merged{
		docs:      make([]document.Document, 0, len(byID)),
		sources:   make(map[string][]string, len(byID)),
		divergent: make(map[string][]string),
	}
	for id, cands := range byID {
		win := cands[0]
		for _, c := range cands[1:] {
			if policy.beats(c, win) {
				win = c
			}
		}

		seen := make(map[string]bool, len(cands))
		var srcs, div []string
		for _, c := range cands {
			if !seen[c.source] {
				seen[c.source] = true
				srcs = append(srcs, c.source)
			}
			if !c.doc.Equal(win.doc) && !contains(div, c.source) {
				div = append(div, c.source)
			}
		}
		sort.Strings(srcs)
		sort.Strings(div)

		out.docs = append(out.docs, win.doc)
		out.sources[id] = srcs
		if len(div) > 0 {
			out.divergent[id] = div
		}
	}
	sort.Slice(out.docs, func(i, j int) bool { return out.docs[i].ID() < out.docs[j].ID() })
	return out
}

// annotate stamps provenance fields on every document.
func (m merged) annotate() []document.Document {
	docs := make([]document.Document, len(m.docs))
	for i, d := range m.docs {
		d = d.WithField(domquery.FieldSources, m.sources[d.ID()])
		if div, ok := m.divergent[d.ID()]; ok {
			d = d.WithField(domquery.FieldDivergentSources, div)
		}
		docs[i] = d
	}
	return docs
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
