// Package snapshot holds the node's in-memory copy of every store.
// Reads are lock-free; writes are exclusive per document id, so ingestions
// into different ids never block each other or unrelated readers.
package snapshot

import (
	"sort"

	"github.com/puzpuzpuz/xsync/v3"

	"github.com/kailas-cloud/swarmkb/internal/domain/document"
)

type storeMap = xsync.MapOf[string, document.Document]

// Snapshot is a concurrent two-level map: store name -> document id -> document.
type Snapshot struct {
	stores *xsync.MapOf[string, *storeMap]
}

// New creates an empty snapshot.
func New() *Snapshot {
	return &Snapshot{stores: xsync.NewMapOf[string, *storeMap]()}
}

func (s *Snapshot) store(name string) *storeMap {
	m, _ := s.stores.LoadOrCompute(name, func() *storeMap {
		return xsync.NewMapOf[string, document.Document]()
	})
	return m
}

// Put stores doc unless a copy with a later _imported_at is already present.
// Documents are immutable values, so readers holding an older copy are unaffected.
func (s *Snapshot) Put(storeName string, doc document.Document) {
	s.store(storeName).Compute(doc.ID(), func(old document.Document, loaded bool) (document.Document, bool) {
		if loaded && old.ImportedAt().After(doc.ImportedAt()) {
			return old, false
		}
		return doc, false
	})
}

// Delete removes a document.
func (s *Snapshot) Delete(storeName, id string) {
	if m, ok := s.stores.Load(storeName); ok {
		m.Delete(id)
	}
}

// Get returns a document by id.
func (s *Snapshot) Get(storeName, id string) (document.Document, bool) {
	m, ok := s.stores.Load(storeName)
	if !ok {
		return document.Document{}, false
	}
	return m.Load(id)
}

// Range calls fn for every document in the store until fn returns false.
// Each document observed is a complete value; concurrent writes never tear it.
func (s *Snapshot) Range(storeName string, fn func(document.Document) bool) {
	m, ok := s.stores.Load(storeName)
	if !ok {
		return
	}
	m.Range(func(_ string, d document.Document) bool {
		return fn(d)
	})
}

// Len returns the number of documents in a store.
func (s *Snapshot) Len(storeName string) int {
	m, ok := s.stores.Load(storeName)
	if !ok {
		return 0
	}
	return m.Size()
}

// Stores returns the known store names in sorted order.
func (s *Snapshot) Stores() []string {
	var names []string
	s.stores.Range(func(name string, _ *storeMap) bool {
		names = append(names, name)
		return true
	})
	sort.Strings(names)
	return names
}

// Load replaces a store's contents with docs.
func (s *Snapshot) Load(storeName string, docs []document.Document) {
	m := xsync.NewMapOf[string, document.Document]()
	for _, d := range docs {
		m.Store(d.ID(), d)
	}
	s.stores.Store(storeName, m)
}
