// Package catalog implements document CRUD and template uploads on top of the log store.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kailas-cloud/swarmkb/internal/domain"
	"github.com/kailas-cloud/swarmkb/internal/domain/batch"
	"github.com/kailas-cloud/swarmkb/internal/domain/criteria"
	"github.com/kailas-cloud/swarmkb/internal/domain/document"
)

// MaxBatchSize caps the documents accepted by one Put.
const MaxBatchSize = 100

// ErrBatchTooLarge signals a Put over MaxBatchSize.
var ErrBatchTooLarge = errors.New("batch too large")

// Service coordinates document writes, local reads and enrichment.
type Service struct {
	docs     Documents
	eval     Evaluator
	snap     Snapshot
	enricher Enricher
	index    TemplateIndex
	nodeID   string
	newID    func() string
	now      func() time.Time
	logger   *zap.Logger
}

// New creates a catalog service.
func New(docs Documents, eval Evaluator, snap Snapshot, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		docs:   docs,
		eval:   eval,
		snap:   snap,
		newID:  uuid.NewString,
		now:    time.Now,
		logger: logger,
	}
}

// WithEnricher triggers enrichment on every stored document.
func (s *Service) WithEnricher(e Enricher) *Service {
	s.enricher = e
	return s
}

// WithTemplateIndex records uploads in the relational mirror.
func (s *Service) WithTemplateIndex(i TemplateIndex) *Service {
	s.index = i
	return s
}

// WithNodeID sets the node id recorded as uploader and in lineage.
func (s *Service) WithNodeID(id string) *Service {
	s.nodeID = id
	return s
}

// WithClock overrides the timestamp source.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// WithIDGenerator overrides document id generation.
func (s *Service) WithIDGenerator(fn func() string) *Service {
	s.newID = fn
	return s
}

// Put stores each raw document, assigning _id when absent and stamping _imported_at.
// Items fail independently; the returned results follow input order.
func (s *Service) Put(ctx context.Context, store string, raws []map[string]any) ([]batch.Result, error) {
	if err := domain.ValidateStoreName(store); err != nil {
		return nil, fmt.Errorf("put: %w", err)
	}
	if len(raws) > MaxBatchSize {
		return nil, fmt.Errorf("put %d documents: %w (max %d)", len(raws), ErrBatchTooLarge, MaxBatchSize)
	}

	results := make([]batch.Result, len(raws))
	for i, raw := range raws {
		doc, err := s.prepare(raw)
		if err != nil {
			results[i] = batch.NewError(fmt.Sprint(raw[document.FieldID]), fmt.Errorf("%w: %w", domain.ErrInvalidSchema, err))
			continue
		}
		if err := s.persist(ctx, store, doc); err != nil {
			results[i] = batch.NewError(doc.ID(), err)
			continue
		}
		results[i] = batch.NewOK(doc.ID())
	}
	return results, nil
}

func (s *Service) prepare(raw map[string]any) (document.Document, error) {
	fields := make(map[string]any, len(raw)+2)
	for k, v := range raw {
		fields[k] = v
	}
	if id, ok := fields[document.FieldID]; !ok || id == nil || id == "" {
		fields[document.FieldID] = s.newID()
	}
	delete(fields, document.FieldImportedAt)

	doc, err := document.FromMap(fields)
	if err != nil {
		return document.Document{}, err
	}
	return doc.WithImportedAt(s.now()), nil
}

// persist writes doc durably and schedules enrichment.
func (s *Service) persist(ctx context.Context, store string, doc document.Document) error {
	if _, err := s.docs.Put(ctx, store, doc); err != nil {
		return fmt.Errorf("%w: %w", domain.ErrStoreUnavailable, err)
	}
	if s.enricher != nil && store != domain.MetadataStore {
		s.enricher.OnIngest(store, doc)
	}
	return nil
}

// Get returns the local documents of store matching p.
func (s *Service) Get(ctx context.Context, store string, p criteria.Predicate) ([]document.Document, error) {
	docs, err := s.eval.Evaluate(ctx, store, p)
	if err != nil {
		return nil, fmt.Errorf("get: %w", err)
	}
	return docs, nil
}

// Update merges data into every local document matching p and returns how many changed.
// _id cannot be changed; a nil value removes a field.
func (s *Service) Update(ctx context.Context, store string, p criteria.Predicate, data map[string]any) (int, error) {
	if _, ok := data[document.FieldID]; ok {
		return 0, fmt.Errorf("update: %w: %s", domain.ErrImmutableField, document.FieldID)
	}
	matches, err := s.Get(ctx, store, p)
	if err != nil {
		return 0, fmt.Errorf("update: %w", err)
	}

	updated := 0
	for _, d := range matches {
		next := d.Merge(data).WithImportedAt(s.now())
		if err := s.persist(ctx, store, next); err != nil {
			return updated, fmt.Errorf("update %s: %w", d.ID(), err)
		}
		updated++
	}
	return updated, nil
}

// Delete removes every local document matching p and returns how many were removed.
func (s *Service) Delete(ctx context.Context, store string, p criteria.Predicate) (int, error) {
	matches, err := s.Get(ctx, store, p)
	if err != nil {
		return 0, fmt.Errorf("delete: %w", err)
	}

	deleted := 0
	for _, d := range matches {
		if err := s.docs.Delete(ctx, store, d.ID()); err != nil {
			return deleted, fmt.Errorf("delete %s: %w: %w", d.ID(), domain.ErrStoreUnavailable, err)
		}
		deleted++
	}
	return deleted, nil
}

// Warm loads the snapshot from the log store. Without stores, every known store is loaded.
func (s *Service) Warm(ctx context.Context, stores []string) (int, error) {
	if len(stores) == 0 {
		var err error
		if stores, err = s.docs.Stores(ctx); err != nil {
			return 0, fmt.Errorf("warm: %w", err)
		}
	}

	total := 0
	for _, name := range stores {
		docs, err := s.docs.List(ctx, name)
		if err != nil {
			return total, fmt.Errorf("warm %s: %w", name, err)
		}
		s.snap.Load(name, docs)
		total += len(docs)
		s.logger.Info("Snapshot loaded", zap.String("store", name), zap.Int("documents", len(docs)))
	}
	return total, nil
}
