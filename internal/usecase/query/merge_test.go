package query

import (
	"fmt"
	"testing"

	"github.com/kailas-cloud/swarmkb/internal/domain/document"
	domquery "github.com/kailas-cloud/swarmkb/internal/domain/query"
)

func TestTieBreakLocalThenPeerID(t *testing.T) {
	p := TieBreakLocalThenPeerID
	tests := []struct {
		a, b string
		want bool
	}{
		{"local", "peer-a", true},
		{"peer-a", "local", false},
		{"peer-a", "peer-b", true},
		{"peer-b", "peer-a", false},
		{"peer-a", "peer-a", false},
	}
	for _, tt := range tests {
		if got := p.Prefer(tt.a, tt.b); got != tt.want {
			t.Errorf("Prefer(%q, %q) = %v, want %v", tt.a, tt.b, got, tt.want)
		}
	}
}

func TestMerge_NewestWins(t *testing.T) {
	envs := []domquery.Envelope{
		{PeerID: "local", Documents: []document.Document{doc(t, "x", 1, map[string]any{"v": "old"})}},
		{PeerID: "peer-b", Documents: []document.Document{doc(t, "x", 5, map[string]any{"v": "new"})}},
	}
	m := merge(envs, TieBreakLocalThenPeerID)
	if len(m.docs) != 1 || m.docs[0].Fields()["v"] != "new" {
		t.Fatalf("expected newest copy, got %+v", m.docs)
	}
	if fmt.Sprint(m.divergent["x"]) != "[local]" {
		t.Errorf("divergent = %v, want [local]", m.divergent["x"])
	}
}

func TestMerge_TieBreak(t *testing.T) {
	local := doc(t, "x", 1, map[string]any{"v": "local"})
	a := doc(t, "x", 1, map[string]any{"v": "a"})
	b := doc(t, "x", 1, map[string]any{"v": "b"})

	m := merge([]domquery.Envelope{
		{PeerID: "peer-b", Documents: []document.Document{b}},
		{PeerID: "peer-a", Documents: []document.Document{a}},
		{PeerID: "local", Documents: []document.Document{local}},
	}, TieBreakLocalThenPeerID)
	if m.docs[0].Fields()["v"] != "local" {
		t.Errorf("expected local copy to win, got %v", m.docs[0].Fields()["v"])
	}

	m = merge([]domquery.Envelope{
		{PeerID: "peer-b", Documents: []document.Document{b}},
		{PeerID: "peer-a", Documents: []document.Document{a}},
	}, TieBreakLocalThenPeerID)
	if m.docs[0].Fields()["v"] != "a" {
		t.Errorf("expected peer-a copy to win, got %v", m.docs[0].Fields()["v"])
	}
}

func TestMerge_OrderIndependentAndIdempotent(t *testing.T) {
	e1 := domquery.Envelope{PeerID: "local", Documents: []document.Document{
		doc(t, "a", 1, map[string]any{"n": 1}),
		doc(t, "b", 3, map[string]any{"n": 2}),
	}}
	e2 := domquery.Envelope{PeerID: "peer-1", Documents: []document.Document{
		doc(t, "b", 3, map[string]any{"n": 9}),
		doc(t, "c", 2, nil),
	}}
	e3 := domquery.Envelope{PeerID: "peer-2", Documents: []document.Document{
		doc(t, "a", 4, map[string]any{"n": 7}),
	}}

	want := fingerprint(merge([]domquery.Envelope{e1, e2, e3}, TieBreakLocalThenPeerID))
	orders := [][]domquery.Envelope{
		{e3, e2, e1},
		{e2, e1, e3},
		{e1, e1, e2, e3, e3},
	}
	for i, envs := range orders {
		if got := fingerprint(merge(envs, TieBreakLocalThenPeerID)); got != want {
			t.Errorf("order %d: got %s, want %s", i, got, want)
		}
	}
}

func TestMerge_SkipsFailedEnvelopes(t *testing.T) {
	m := merge([]domquery.Envelope{
		{PeerID: "peer-1", Err: fmt.Errorf("refused"), Documents: []document.Document{doc(t, "z", 9, nil)}},
		{PeerID: "local", Documents: []document.Document{doc(t, "a", 1, nil)}},
	}, TieBreakLocalThenPeerID)
	if fmt.Sprint(docIDs(m.docs)) != "[a]" {
		t.Errorf("got %v, want [a]", docIDs(m.docs))
	}
}

func TestMerge_Annotate(t *testing.T) {
	m := merge([]domquery.Envelope{
		{PeerID: "peer-2", Documents: []document.Document{doc(t, "a", 1, map[string]any{"v": 1})}},
		{PeerID: "local", Documents: []document.Document{doc(t, "a", 1, map[string]any{"v": 1})}},
		{PeerID: "peer-1", Documents: []document.Document{doc(t, "a", 1, map[string]any{"v": 2})}},
	}, TieBreakLocalThenPeerID)

	docs := m.annotate()
	f := docs[0].Fields()
	if fmt.Sprint(f[domquery.FieldSources]) != "[local peer-1 peer-2]" {
		t.Errorf("sources = %v", f[domquery.FieldSources])
	}
	if fmt.Sprint(f[domquery.FieldDivergentSources]) != "[peer-1]" {
		t.Errorf("divergent = %v", f[domquery.FieldDivergentSources])
	}
	if _, ok := m.docs[0].Fields()[domquery.FieldSources]; ok {
		t.Error("annotate mutated the merged documents")
	}
}

func fingerprint(m merged) string {
	s := ""
	for _, d := range m.docs {
		s += fmt.Sprintf("%s@%s=%v|%v;", d.ID(), d.ImportedAt().Format("15:04:05"), d.Fields(), m.sources[d.ID()])
	}
	return s
}
