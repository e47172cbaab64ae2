package query

import (
	"context"
	"testing"
	"time"

	"github.com/kailas-cloud/swarmkb/internal/domain/criteria"
	"github.com/kailas-cloud/swarmkb/internal/domain/document"
)

// --- Mocks ---

type mockPeer struct {
	id    string
	delay time.Duration
	docs  []document.Document
	err   error
}

func (m *mockPeer) ID() string { return m.id }

func (m *mockPeer) Query(ctx context.Context, _ string, _ criteria.Predicate) ([]document.Document, error) {
	if m.delay > 0 {
		select {
		case <-time.After(m.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if m.err != nil {
		return nil, m.err
	}
	return m.docs, nil
}

type mockLocal struct {
	docs  []document.Document
	err   error
	delay time.Duration
}

func (m *mockLocal) Evaluate(_ context.Context, _ string, _ criteria.Predicate) ([]document.Document, error) {
	time.Sleep(m.delay)
	return m.docs, m.err
}

// --- Helpers ---

var epoch = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func doc(t *testing.T, id string, ageSec int, fields map[string]any) document.Document {
	t.Helper()
	d, err := document.New(id, epoch.Add(time.Duration(ageSec)*time.Second), fields)
	if err != nil {
		t.Fatalf("new document: %v", err)
	}
	return d
}

func docIDs(docs []document.Document) []string {
	out := make([]string, len(docs))
	for i, d := range docs {
		out[i] = d.ID()
	}
	return out
}
