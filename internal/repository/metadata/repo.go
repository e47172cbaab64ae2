package metadata

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/kailas-cloud/swarmkb/internal/db"
	"github.com/kailas-cloud/swarmkb/internal/domain"
	domdoc "github.com/kailas-cloud/swarmkb/internal/domain/document"
	dommeta "github.com/kailas-cloud/swarmkb/internal/domain/metadata"
)

// docStore is the consumer interface for the log-store document repository (ISP).
type docStore interface {
	Put(ctx context.Context, storeName string, doc domdoc.Document) (string, error)
	Get(ctx context.Context, storeName, id string) (domdoc.Document, error)
	List(ctx context.Context, storeName string) ([]domdoc.Document, error)
}

// kvStore holds the associated_id -> record id index.
type kvStore interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
}

// Repo is the primary metadata store, backed by the replicated log.
type Repo struct {
	docs  docStore
	kv    kvStore
	store string
	now   func() time.Time
}

// New creates a metadata repository writing to domain.MetadataStore.
func New(docs docStore, kv kvStore) *Repo {
	return &Repo{docs: docs, kv: kv, store: domain.MetadataStore, now: time.Now}
}

// WithClock overrides the timestamp source.
func (r *Repo) WithClock(now func() time.Time) *Repo {
	r.now = now
	return r
}

// Put durably writes the record and indexes it by associated_id.
func (r *Repo) Put(ctx context.Context, rec dommeta.Record) error {
	if err := rec.Validate(); err != nil {
		return fmt.Errorf("%w: %w", domain.ErrInvalidSchema, err)
	}
	doc, err := rec.Document(r.now())
	if err != nil {
		return err
	}
	if _, err := r.docs.Put(ctx, r.store, doc); err != nil {
		return fmt.Errorf("put metadata %s: %w", rec.ID, err)
	}
	if err := r.kv.Set(ctx, assocKey(rec.AssociatedID), []byte(rec.ID)); err != nil {
		return fmt.Errorf("index metadata %s: %w", rec.ID, err)
	}
	return nil
}

// Get returns a record by id.
func (r *Repo) Get(ctx context.Context, id string) (dommeta.Record, error) {
	doc, err := r.docs.Get(ctx, r.store, id)
	if err != nil {
		return dommeta.Record{}, fmt.Errorf("get metadata %s: %w", id, err)
	}
	return dommeta.FromDocument(doc)
}

// FindByAssociatedID returns the record derived from a source document.
func (r *Repo) FindByAssociatedID(ctx context.Context, associatedID string) (dommeta.Record, error) {
	raw, err := r.kv.Get(ctx, assocKey(associatedID))
	if err != nil {
		if errors.Is(err, db.ErrKeyNotFound) {
			return dommeta.Record{}, fmt.Errorf("metadata for %s: %w", associatedID, domain.ErrNotFound)
		}
		return dommeta.Record{}, fmt.Errorf("lookup metadata for %s: %w", associatedID, err)
	}
	return r.Get(ctx, string(raw))
}

// List returns every record in the primary store.
func (r *Repo) List(ctx context.Context) ([]dommeta.Record, error) {
	docs, err := r.docs.List(ctx, r.store)
	if err != nil {
		return nil, fmt.Errorf("list metadata: %w", err)
	}
	out := make([]dommeta.Record, 0, len(docs))
	for _, d := range docs {
		rec, err := dommeta.FromDocument(d)
		if err != nil {
			continue
		}
		out = append(out, rec)
	}
	return out, nil
}

func assocKey(associatedID string) string {
	return domain.KeyPrefix + "meta:assoc:" + associatedID
}
