package document

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/kailas-cloud/swarmkb/internal/db"
	"github.com/kailas-cloud/swarmkb/internal/domain"
	domdoc "github.com/kailas-cloud/swarmkb/internal/domain/document"
)

// mgetBatch bounds the number of keys fetched per MGET.
const mgetBatch = 200

// store is the consumer interface for the log store (ISP).
type store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	MGet(ctx context.Context, keys []string) ([][]byte, error)
	Scan(ctx context.Context, pattern string) ([]string, error)
	Append(ctx context.Context, e db.LogEntry) (string, error)
	Remove(ctx context.Context, stream, key string) (string, error)
	StreamLen(ctx context.Context, stream string) (int64, error)
}

// cache receives every durable write so local reads stay current.
type cache interface {
	Put(storeName string, doc domdoc.Document)
	Delete(storeName, id string)
}

// Repo persists documents to the replicated log store.
type Repo struct {
	store store
	cache cache
}

// New creates a document repository.
func New(s store) *Repo {
	return &Repo{store: s}
}

// WithCache mirrors successful writes into c.
func (r *Repo) WithCache(c cache) *Repo {
	r.cache = c
	return r
}

// Put appends doc to the store's stream and materializes it. Returns the stream entry id.
func (r *Repo) Put(ctx context.Context, storeName string, doc domdoc.Document) (string, error) {
	data, err := json.Marshal(doc)
	if err != nil {
		return "", fmt.Errorf("marshal document %s: %w", doc.ID(), err)
	}
	entryID, err := r.store.Append(ctx, db.LogEntry{
		Stream: streamKey(storeName),
		Key:    docKey(storeName, doc.ID()),
		Value:  data,
	})
	if err != nil {
		return "", fmt.Errorf("append %s/%s: %w", storeName, doc.ID(), err)
	}
	if r.cache != nil {
		r.cache.Put(storeName, doc)
	}
	return entryID, nil
}

// Get returns a document by id.
func (r *Repo) Get(ctx context.Context, storeName, id string) (domdoc.Document, error) {
	raw, err := r.store.Get(ctx, docKey(storeName, id))
	if err != nil {
		if errors.Is(err, db.ErrKeyNotFound) {
			return domdoc.Document{}, fmt.Errorf("document %s/%s: %w", storeName, id, domain.ErrNotFound)
		}
		return domdoc.Document{}, fmt.Errorf("get %s/%s: %w", storeName, id, err)
	}
	var doc domdoc.Document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return domdoc.Document{}, fmt.Errorf("decode %s/%s: %w", storeName, id, err)
	}
	return doc, nil
}

// Delete records a delete on the stream and drops the materialized key.
func (r *Repo) Delete(ctx context.Context, storeName, id string) error {
	if _, err := r.store.Remove(ctx, streamKey(storeName), docKey(storeName, id)); err != nil {
		return fmt.Errorf("remove %s/%s: %w", storeName, id, err)
	}
	if r.cache != nil {
		r.cache.Delete(storeName, id)
	}
	return nil
}

// List returns every materialized document of a store. Undecodable entries are skipped.
func (r *Repo) List(ctx context.Context, storeName string) ([]domdoc.Document, error) {
	keys, err := r.store.Scan(ctx, docKey(storeName, "*"))
	if err != nil {
		return nil, fmt.Errorf("scan %s: %w", storeName, err)
	}
	docs := make([]domdoc.Document, 0, len(keys))
	for start := 0; start < len(keys); start += mgetBatch {
		end := min(start+mgetBatch, len(keys))
		vals, err := r.store.MGet(ctx, keys[start:end])
		if err != nil {
			return nil, fmt.Errorf("mget %s: %w", storeName, err)
		}
		for _, raw := range vals {
			if raw == nil {
				continue
			}
			var doc domdoc.Document
			if err := json.Unmarshal(raw, &doc); err != nil {
				continue
			}
			docs = append(docs, doc)
		}
	}
	return docs, nil
}

// Stores returns the names of stores that hold at least one document.
func (r *Repo) Stores(ctx context.Context) ([]string, error) {
	keys, err := r.store.Scan(ctx, domain.KeyPrefix+"doc:*")
	if err != nil {
		return nil, fmt.Errorf("scan stores: %w", err)
	}
	seen := make(map[string]bool)
	var names []string
	for _, k := range keys {
		rest := strings.TrimPrefix(k, domain.KeyPrefix+"doc:")
		name, _, ok := strings.Cut(rest, ":")
		if !ok || seen[name] {
			continue
		}
		seen[name] = true
		names = append(names, name)
	}
	return names, nil
}

// LogLength returns the number of entries in a store's stream.
func (r *Repo) LogLength(ctx context.Context, storeName string) (int64, error) {
	n, err := r.store.StreamLen(ctx, streamKey(storeName))
	if err != nil {
		return 0, fmt.Errorf("stream length %s: %w", storeName, err)
	}
	return n, nil
}

func docKey(storeName, id string) string {
	return domain.DocumentKey(storeName, id)
}

func streamKey(storeName string) string {
	return domain.KeyPrefix + "log:" + storeName
}
