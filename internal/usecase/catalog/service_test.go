package catalog

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/kailas-cloud/swarmkb/internal/domain"
	"github.com/kailas-cloud/swarmkb/internal/domain/batch"
	"github.com/kailas-cloud/swarmkb/internal/domain/criteria"
	"github.com/kailas-cloud/swarmkb/internal/domain/document"
	"github.com/kailas-cloud/swarmkb/internal/domain/upload"
	"github.com/kailas-cloud/swarmkb/internal/repository/snapshot"
	"github.com/kailas-cloud/swarmkb/internal/usecase/evaluator"
)

// --- Mocks ---

// memDocs is a durable store that writes through to a snapshot.
type memDocs struct {
	snap   *snapshot.Snapshot
	putErr error
	delErr error
	stored map[string][]document.Document
}

func newMemDocs(snap *snapshot.Snapshot) *memDocs {
	return &memDocs{snap: snap, stored: make(map[string][]document.Document)}
}

func (m *memDocs) Put(_ context.Context, store string, doc document.Document) (string, error) {
	if m.putErr != nil {
		return "", m.putErr
	}
	m.stored[store] = append(m.stored[store], doc)
	m.snap.Put(store, doc)
	return "1-0", nil
}

func (m *memDocs) Delete(_ context.Context, store, id string) error {
	if m.delErr != nil {
		return m.delErr
	}
	m.snap.Delete(store, id)
	return nil
}

func (m *memDocs) List(_ context.Context, store string) ([]document.Document, error) {
	return m.stored[store], nil
}

func (m *memDocs) Stores(_ context.Context) ([]string, error) {
	var out []string
	for k := range m.stored {
		out = append(out, k)
	}
	return out, nil
}

type mockEnricher struct {
	mu   sync.Mutex
	seen []string
}

func (m *mockEnricher) OnIngest(store string, doc document.Document) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seen = append(m.seen, store+"/"+doc.ID())
}

type mockIndex struct {
	rows []upload.Template
	err  error
}

func (m *mockIndex) UpsertTemplate(_ context.Context, t upload.Template) error {
	m.rows = append(m.rows, t)
	return m.err
}

// --- Helpers ---

var fixedNow = time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

type fixture struct {
	svc      *Service
	snap     *snapshot.Snapshot
	docs     *memDocs
	enricher *mockEnricher
	index    *mockIndex
}

func newFixture() fixture {
	snap := snapshot.New()
	docs := newMemDocs(snap)
	enricher := &mockEnricher{}
	index := &mockIndex{}
	n := 0
	svc := New(docs, evaluator.New(snap), snap, nil).
		WithEnricher(enricher).
		WithTemplateIndex(index).
		WithNodeID("node-a").
		WithClock(func() time.Time { return fixedNow }).
		WithIDGenerator(func() string { n++; return fmt.Sprintf("gen-%d", n) })
	return fixture{svc: svc, snap: snap, docs: docs, enricher: enricher, index: index}
}

func mustCompile(t *testing.T, raw any) criteria.Predicate {
	t.Helper()
	p, err := criteria.Compile(raw)
	if err != nil {
		t.Fatal(err)
	}
	return p
}

// --- Tests ---

func TestPut_AssignsIDsAndEnriches(t *testing.T) {
	f := newFixture()
	results, err := f.svc.Put(context.Background(), "dsswres", []map[string]any{
		{"_id": "given", "type": "Docker"},
		{"type": "Compute"},
	})
	if err != nil {
		t.Fatal(err)
	}
	if results[0].ID() != "given" || results[1].ID() != "gen-1" {
		t.Errorf("ids = %s, %s", results[0].ID(), results[1].ID())
	}
	for _, r := range results {
		if r.Status() != batch.StatusOK {
			t.Errorf("%s: %v", r.ID(), r.Err())
		}
	}

	d, ok := f.snap.Get("dsswres", "gen-1")
	if !ok || !d.ImportedAt().Equal(fixedNow) {
		t.Errorf("snapshot not updated: %+v", d)
	}
	if fmt.Sprint(f.enricher.seen) != "[dsswres/given dsswres/gen-1]" {
		t.Errorf("enriched = %v", f.enricher.seen)
	}
}

func TestPut_MetadataStoreIsNotEnriched(t *testing.T) {
	f := newFixture()
	if _, err := f.svc.Put(context.Background(), domain.MetadataStore, []map[string]any{{"name": "x"}}); err != nil {
		t.Fatal(err)
	}
	if len(f.enricher.seen) != 0 {
		t.Errorf("metadata store triggered enrichment: %v", f.enricher.seen)
	}
}

func TestPut_Limits(t *testing.T) {
	f := newFixture()
	raws := make([]map[string]any, MaxBatchSize+1)
	if _, err := f.svc.Put(context.Background(), "s", raws); !errors.Is(err, ErrBatchTooLarge) {
		t.Errorf("expected ErrBatchTooLarge, got %v", err)
	}
	if _, err := f.svc.Put(context.Background(), "bad store", nil); !errors.Is(err, domain.ErrInvalidSchema) {
		t.Errorf("expected ErrInvalidSchema, got %v", err)
	}
}

func TestPut_PerItemFailures(t *testing.T) {
	f := newFixture()
	results, err := f.svc.Put(context.Background(), "s", []map[string]any{
		{"_id": []any{"not", "an", "id"}},
		{"_id": "ok"},
	})
	if err != nil {
		t.Fatal(err)
	}
	if results[0].Status() != batch.StatusError || !errors.Is(results[0].Err(), domain.ErrInvalidSchema) {
		t.Errorf("first item: %v", results[0].Err())
	}
	if results[1].Status() != batch.StatusOK {
		t.Errorf("second item: %v", results[1].Err())
	}

	f.docs.putErr = errors.New("connection refused")
	results, _ = f.svc.Put(context.Background(), "s", []map[string]any{{"_id": "x"}})
	if !errors.Is(results[0].Err(), domain.ErrStoreUnavailable) {
		t.Errorf("expected ErrStoreUnavailable, got %v", results[0].Err())
	}
}

func TestGetUpdateDelete(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	_, _ = f.svc.Put(ctx, "s", []map[string]any{
		{"_id": "a", "type": "Docker", "kb_datastore": "ADT"},
		{"_id": "b", "type": "Docker", "kb_datastore": "OTHER"},
		{"_id": "c", "type": "Compute", "kb_datastore": "ADT"},
	})

	p := mustCompile(t, map[string]any{"$and": []any{
		map[string]any{"type": "Docker", "op": "regex"},
		map[string]any{"kb_datastore": "ADT", "op": "eq"},
	}})
	docs, err := f.svc.Get(ctx, "s", p)
	if err != nil || len(docs) != 1 || docs[0].ID() != "a" {
		t.Fatalf("get: %v, %v", docs, err)
	}

	n, err := f.svc.Update(ctx, "s", mustCompile(t, map[string]any{"type": "Docker"}), map[string]any{"reviewed": true})
	if err != nil || n != 2 {
		t.Fatalf("update: %d, %v", n, err)
	}
	d, _ := f.snap.Get("s", "b")
	if d.Fields()["reviewed"] != true {
		t.Errorf("update not applied: %v", d.Fields())
	}

	if _, err := f.svc.Update(ctx, "s", criteria.MatchAll(), map[string]any{"_id": "z"}); !errors.Is(err, domain.ErrImmutableField) {
		t.Errorf("expected ErrImmutableField, got %v", err)
	}

	n, err = f.svc.Delete(ctx, "s", mustCompile(t, map[string]any{"kb_datastore": "ADT"}))
	if err != nil || n != 2 {
		t.Fatalf("delete: %d, %v", n, err)
	}
	if f.snap.Len("s") != 1 {
		t.Errorf("snapshot len = %d, want 1", f.snap.Len("s"))
	}
}

func TestDelete_StoreDown(t *testing.T) {
	f := newFixture()
	_, _ = f.svc.Put(context.Background(), "s", []map[string]any{{"_id": "a"}})
	f.docs.delErr = errors.New("timeout")

	if _, err := f.svc.Delete(context.Background(), "s", criteria.MatchAll()); !errors.Is(err, domain.ErrStoreUnavailable) {
		t.Errorf("expected ErrStoreUnavailable, got %v", err)
	}
}

func TestWarm(t *testing.T) {
	f := newFixture()
	_, _ = f.svc.Put(context.Background(), "s1", []map[string]any{{"_id": "a"}, {"_id": "b"}})
	_, _ = f.svc.Put(context.Background(), "s2", []map[string]any{{"_id": "c"}})

	fresh := snapshot.New()
	svc := New(f.docs, evaluator.New(fresh), fresh, nil)
	n, err := svc.Warm(context.Background(), nil)
	if err != nil || n != 3 {
		t.Fatalf("warm: %d, %v", n, err)
	}
	if fresh.Len("s1") != 2 || fresh.Len("s2") != 1 {
		t.Errorf("snapshot: s1=%d s2=%d", fresh.Len("s1"), fresh.Len("s2"))
	}
}
