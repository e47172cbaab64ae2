package document

import (
	"context"
	"testing"
	"time"

	"github.com/kailas-cloud/swarmkb/internal/db"
	domdoc "github.com/kailas-cloud/swarmkb/internal/domain/document"
)

// mockStore implements the consumer interface for tests.
type mockStore struct {
	getFn       func(ctx context.Context, key string) ([]byte, error)
	mgetFn      func(ctx context.Context, keys []string) ([][]byte, error)
	scanFn      func(ctx context.Context, pattern string) ([]string, error)
	appendFn    func(ctx context.Context, e db.LogEntry) (string, error)
	removeFn    func(ctx context.Context, stream, key string) (string, error)
	streamLenFn func(ctx context.Context, stream string) (int64, error)
}

func (m *mockStore) Get(ctx context.Context, key string) ([]byte, error) {
	if m.getFn != nil {
		return m.getFn(ctx, key)
	}
	return nil, db.ErrKeyNotFound
}

func (m *mockStore) MGet(ctx context.Context, keys []string) ([][]byte, error) {
	if m.mgetFn != nil {
		return m.mgetFn(ctx, keys)
	}
	return make([][]byte, len(keys)), nil
}

func (m *mockStore) Scan(ctx context.Context, pattern string) ([]string, error) {
	if m.scanFn != nil {
		return m.scanFn(ctx, pattern)
	}
	return nil, nil
}

func (m *mockStore) Append(ctx context.Context, e db.LogEntry) (string, error) {
	if m.appendFn != nil {
		return m.appendFn(ctx, e)
	}
	return "1-0", nil
}

func (m *mockStore) Remove(ctx context.Context, stream, key string) (string, error) {
	if m.removeFn != nil {
		return m.removeFn(ctx, stream, key)
	}
	return "1-1", nil
}

func (m *mockStore) StreamLen(ctx context.Context, stream string) (int64, error) {
	if m.streamLenFn != nil {
		return m.streamLenFn(ctx, stream)
	}
	return 0, nil
}

// mockCache records write-through calls.
type mockCache struct {
	puts    []string
	deletes []string
}

func (c *mockCache) Put(storeName string, doc domdoc.Document) {
	c.puts = append(c.puts, storeName+"/"+doc.ID())
}

func (c *mockCache) Delete(storeName, id string) {
	c.deletes = append(c.deletes, storeName+"/"+id)
}

func newTestRepo(t *testing.T) (*Repo, *mockStore, *mockCache) {
	t.Helper()
	ms := &mockStore{}
	mc := &mockCache{}
	return New(ms).WithCache(mc), ms, mc
}

func testDocument(t *testing.T) domdoc.Document {
	t.Helper()
	d, err := domdoc.New("doc-1", time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), map[string]any{
		"kb_datastore": "ADT",
		"nodes":        map[string]any{"web": map[string]any{"type": "Docker"}},
	})
	if err != nil {
		t.Fatalf("domdoc.New: %v", err)
	}
	return d
}
