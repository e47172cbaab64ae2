package enrichment

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/kailas-cloud/swarmkb/internal/domain"
	"github.com/kailas-cloud/swarmkb/internal/domain/document"
	dommeta "github.com/kailas-cloud/swarmkb/internal/domain/metadata"
)

// --- Mocks ---

// memPrimary is an in-memory primary store. failPuts makes the first N puts fail.
type memPrimary struct {
	mu       sync.Mutex
	recs     map[string]dommeta.Record
	puts     int
	failPuts int
	putErr   error
	getErr   error
}

func newMemPrimary() *memPrimary { return &memPrimary{recs: make(map[string]dommeta.Record)} }

func (m *memPrimary) Put(_ context.Context, rec dommeta.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.puts++
	if m.putErr != nil && (m.failPuts == 0 || m.puts <= m.failPuts) {
		return m.putErr
	}
	m.recs[rec.ID] = rec
	return nil
}

func (m *memPrimary) Get(_ context.Context, id string) (dommeta.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getErr != nil {
		return dommeta.Record{}, m.getErr
	}
	rec, ok := m.recs[id]
	if !ok {
		return dommeta.Record{}, domain.ErrNotFound
	}
	return rec, nil
}

func (m *memPrimary) FindByAssociatedID(ctx context.Context, associatedID string) (dommeta.Record, error) {
	m.mu.Lock()
	var id string
	for _, r := range m.recs {
		if r.AssociatedID == associatedID {
			id = r.ID
		}
	}
	m.mu.Unlock()
	if id == "" {
		return dommeta.Record{}, domain.ErrNotFound
	}
	return m.Get(ctx, id)
}

func (m *memPrimary) List(_ context.Context) ([]dommeta.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]dommeta.Record, 0, len(m.recs))
	for _, r := range m.recs {
		out = append(out, r)
	}
	return out, nil
}

func (m *memPrimary) get(id string) (dommeta.Record, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.recs[id]
	return r, ok
}

type memMirror struct {
	mu      sync.Mutex
	rows    map[string]dommeta.Record
	upserts int
	err     error
}

func newMemMirror() *memMirror { return &memMirror{rows: make(map[string]dommeta.Record)} }

func (m *memMirror) Upsert(_ context.Context, rec dommeta.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.upserts++
	if m.err != nil {
		return m.err
	}
	m.rows[rec.ID] = rec
	return nil
}

func (m *memMirror) List(_ context.Context) ([]dommeta.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]dommeta.Record, 0, len(m.rows))
	for _, r := range m.rows {
		out = append(out, r)
	}
	return out, nil
}

func (m *memMirror) setErr(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

func (m *memMirror) get(id string) (dommeta.Record, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rows[id]
	return r, ok
}

type mockExtractor struct {
	fn func(ctx context.Context, store string, doc document.Document) (dommeta.Record, error)
}

func (m *mockExtractor) Extract(ctx context.Context, store string, doc document.Document) (dommeta.Record, error) {
	if m.fn != nil {
		return m.fn(ctx, store, doc)
	}
	return dommeta.Record{Name: doc.ID()}, nil
}

// --- Helpers ---

var fixedNow = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func fastRetry() RetryPolicy {
	return RetryPolicy{MaxAttempts: 3, InitialBackoff: time.Millisecond, MaxBackoff: 2 * time.Millisecond}
}

func newTestPipeline(primary Primary, mirror Mirror, ex Extractor) *Pipeline {
	return New(primary, mirror, ex, nil).
		WithRetry(fastRetry()).
		WithWriteTimeout(time.Second).
		WithNodeID("node-a").
		WithClock(func() time.Time { return fixedNow })
}

func testDoc(t *testing.T, id string, fields map[string]any) document.Document {
	t.Helper()
	d, err := document.New(id, fixedNow, fields)
	if err != nil {
		t.Fatalf("new document: %v", err)
	}
	return d
}

func drain(t *testing.T, p *Pipeline) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := p.Wait(ctx); err != nil {
		t.Fatalf("wait: %v", err)
	}
}
