// Package enrichment derives metadata records from ingested documents and keeps
// the log store and the relational mirror in agreement.
package enrichment

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/puzpuzpuz/xsync/v3"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/kailas-cloud/swarmkb/internal/domain"
	"github.com/kailas-cloud/swarmkb/internal/domain/document"
	dommeta "github.com/kailas-cloud/swarmkb/internal/domain/metadata"
	logpkg "github.com/kailas-cloud/swarmkb/internal/logger"
	"github.com/kailas-cloud/swarmkb/internal/metrics"
)

// DefaultWorkers bounds concurrently running tasks.
const DefaultWorkers = 8

// Outcome is the final state of one enrichment task.
type Outcome = dommeta.Outcome

// Pipeline runs enrichment tasks asynchronously.
type Pipeline struct {
	primary   Primary
	mirror    Mirror
	extractor Extractor

	retry        RetryPolicy
	writeTimeout time.Duration
	workers      int64
	sem          *semaphore.Weighted
	nodeID       string
	now          func() time.Time
	logger       *zap.Logger
	oplog        *zap.Logger

	mu      sync.RWMutex
	closed  bool
	wg      sync.WaitGroup
	baseCtx context.Context
	cancel  context.CancelFunc

	outcomes *xsync.MapOf[string, Outcome]
	dirty    *xsync.MapOf[string, struct{}]
}

// New creates a pipeline. mirror may be nil when no relational mirror is configured.
func New(primary Primary, mirror Mirror, extractor Extractor, logger *zap.Logger) *Pipeline {
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Pipeline{
		primary:      primary,
		mirror:       mirror,
		extractor:    extractor,
		retry:        DefaultRetryPolicy(),
		writeTimeout: DefaultWriteTimeout,
		workers:      DefaultWorkers,
		sem:          semaphore.NewWeighted(DefaultWorkers),
		now:          time.Now,
		logger:       logger,
		oplog:        logpkg.Operational(logger),
		baseCtx:      ctx,
		cancel:       cancel,
		outcomes:     xsync.NewMapOf[string, Outcome](),
		dirty:        xsync.NewMapOf[string, struct{}](),
	}
}

// WithRetry overrides the retry policy. Zero fields keep their defaults.
func (p *Pipeline) WithRetry(rp RetryPolicy) *Pipeline {
	p.retry = rp.withDefaults()
	return p
}

// WithWorkers bounds concurrently running tasks.
func (p *Pipeline) WithWorkers(n int) *Pipeline {
	if n > 0 {
		p.workers = int64(n)
		p.sem = semaphore.NewWeighted(p.workers)
	}
	return p
}

// WithWriteTimeout bounds each individual store write.
func (p *Pipeline) WithWriteTimeout(d time.Duration) *Pipeline {
	if d > 0 {
		p.writeTimeout = d
	}
	return p
}

// WithNodeID stamps peer_id on records this node derives.
func (p *Pipeline) WithNodeID(id string) *Pipeline {
	p.nodeID = id
	return p
}

// WithClock overrides the timestamp source.
func (p *Pipeline) WithClock(now func() time.Time) *Pipeline {
	p.now = now
	return p
}

// OnIngest schedules enrichment of doc and returns immediately.
// Tasks submitted after Close are dropped.
func (p *Pipeline) OnIngest(store string, doc document.Document) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		p.logger.Warn("Enrichment dropped, pipeline closed",
			zap.String("store", store), zap.String("associated_id", doc.ID()))
		return
	}

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		if err := p.sem.Acquire(p.baseCtx, 1); err != nil {
			return
		}
		defer p.sem.Release(1)

		metrics.EnrichmentInFlight.Inc()
		defer metrics.EnrichmentInFlight.Dec()

		p.finish(p.process(p.baseCtx, store, doc))
	}()
}

// Outcome returns the latest outcome recorded on this node for a source document.
func (p *Pipeline) Outcome(associatedID string) (Outcome, bool) {
	return p.outcomes.Load(associatedID)
}

// Dirty returns the number of records whose mirror row needs repair.
func (p *Pipeline) Dirty() int { return p.dirty.Size() }

// process runs extract, publish and mirror for one document.
func (p *Pipeline) process(ctx context.Context, store string, doc document.Document) Outcome {
	out := Outcome{
		AssociatedID: doc.ID(),
		SourceStore:  store,
		MetadataID:   dommeta.NewID(store, doc.ID()),
	}

	var rec dommeta.Record
	attempts, err := p.retry.do(ctx, p.writeTimeout, func(actx context.Context) error {
		var err error
		rec, err = p.extractor.Extract(actx, store, doc)
		return err
	})
	out.Attempts = attempts
	if err != nil {
		return p.fail(ctx, out, p.identity(dommeta.Record{}, store, doc), fmt.Errorf("extract: %w", err))
	}
	rec = p.identity(rec, store, doc)

	now := p.now().UTC()
	rec.Status = dommeta.StatusPublished
	rec.PublishedAt = now
	rec.UpdatedAt = now

	attempts, err = p.retry.do(ctx, p.writeTimeout, func(actx context.Context) error {
		return p.primary.Put(actx, rec)
	})
	out.Attempts += attempts
	metrics.EnrichmentAttempts.Observe(float64(attempts))
	if err != nil {
		return p.fail(ctx, out, rec, fmt.Errorf("primary write: %w", err))
	}
	out.Status = dommeta.StatusPublished
	out.MirrorSynced = p.syncMirror(ctx, rec)
	return out
}

// identity fills the fields the pipeline owns regardless of what the extractor returned.
func (p *Pipeline) identity(rec dommeta.Record, store string, doc document.Document) dommeta.Record {
	rec.ID = dommeta.NewID(store, doc.ID())
	rec.AssociatedID = doc.ID()
	rec.SourceStore = store
	rec.Status = dommeta.StatusPending
	if rec.PeerID == "" {
		rec.PeerID = p.nodeID
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = p.now().UTC()
	}
	return rec
}

// fail records an exhausted task: a best-effort error record and an operational log entry.
func (p *Pipeline) fail(ctx context.Context, out Outcome, rec dommeta.Record, cause error) Outcome {
	out.Status = dommeta.StatusError
	out.Error = cause.Error()

	rec.Status = dommeta.StatusError
	rec.ErrorMessage = cause.Error()
	rec.UpdatedAt = p.now().UTC()
	rec.PublishedAt = time.Time{}

	wctx, cancel := context.WithTimeout(ctx, p.writeTimeout)
	defer cancel()
	if err := p.primary.Put(wctx, rec); err != nil {
		p.logger.Warn("Error record write failed", zap.String("metadata_id", rec.ID), zap.Error(err))
	} else {
		out.MirrorSynced = p.syncMirror(ctx, rec)
	}

	p.oplog.Error("Enrichment failed",
		zap.String("associated_id", out.AssociatedID),
		zap.String("source_store", out.SourceStore),
		zap.String("metadata_id", out.MetadataID),
		zap.Int("attempts", out.Attempts),
		zap.Error(cause),
	)
	return out
}

// syncMirror upserts rec into the mirror, marking it dirty on failure.
func (p *Pipeline) syncMirror(ctx context.Context, rec dommeta.Record) bool {
	if p.mirror == nil {
		return false
	}
	_, err := p.retry.do(ctx, p.writeTimeout, func(actx context.Context) error {
		return p.mirror.Upsert(actx, rec)
	})
	if err != nil {
		p.markDirty(rec.ID)
		p.logger.Warn("Mirror upsert failed, queued for reconciliation",
			zap.String("metadata_id", rec.ID), zap.Error(err))
		return false
	}
	p.clearDirty(rec.ID)
	return true
}

func (p *Pipeline) markDirty(id string) {
	p.dirty.Store(id, struct{}{})
	metrics.MirrorDirty.Set(float64(p.dirty.Size()))
}

func (p *Pipeline) clearDirty(id string) {
	p.dirty.Delete(id)
	metrics.MirrorDirty.Set(float64(p.dirty.Size()))
}

func (p *Pipeline) finish(out Outcome) {
	out.FinishedAt = p.now().UTC()
	p.outcomes.Store(out.AssociatedID, out)
	metrics.EnrichmentTotal.WithLabelValues(string(out.Status)).Inc()

	p.logger.Debug("Enrichment finished",
		zap.String("associated_id", out.AssociatedID),
		zap.String("status", string(out.Status)),
		zap.Int("attempts", out.Attempts),
		zap.Bool("mirror_synced", out.MirrorSynced),
	)
}

// Wait blocks until every scheduled task has finished or ctx ends.
func (p *Pipeline) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("wait for enrichment: %w", ctx.Err())
	}
}

// Close stops accepting tasks and drains in-flight ones. When ctx ends first,
// remaining tasks are cancelled.
func (p *Pipeline) Close(ctx context.Context) error {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()

	err := p.Wait(ctx)
	p.cancel()
	return err
}

// GetMetadata returns a record from the primary store.
func (p *Pipeline) GetMetadata(ctx context.Context, id string) (dommeta.Record, error) {
	rec, err := p.primary.Get(ctx, id)
	if err != nil {
		return dommeta.Record{}, storeErr(err)
	}
	return rec, nil
}

// FindByAssociatedID returns the record derived from a source document.
func (p *Pipeline) FindByAssociatedID(ctx context.Context, associatedID string) (dommeta.Record, error) {
	rec, err := p.primary.FindByAssociatedID(ctx, associatedID)
	if err != nil {
		return dommeta.Record{}, storeErr(err)
	}
	return rec, nil
}

// UpdateFields applies a validated patch to a record in both stores.
// updated_at is always stamped by the pipeline. A mirror failure is logged and
// queued for reconciliation; it does not fail the call.
func (p *Pipeline) UpdateFields(ctx context.Context, id string, fields map[string]any) (dommeta.Record, error) {
	patch, err := dommeta.NewPatch(fields)
	if err != nil {
		return dommeta.Record{}, fmt.Errorf("update metadata %s: %w", id, err)
	}

	rec, err := p.primary.Get(ctx, id)
	if err != nil {
		return dommeta.Record{}, fmt.Errorf("update metadata %s: %w", id, storeErr(err))
	}

	updated := patch.Apply(rec, p.now())
	wctx, cancel := context.WithTimeout(ctx, p.writeTimeout)
	defer cancel()
	if err := p.primary.Put(wctx, updated); err != nil {
		if permanent(err) {
			return dommeta.Record{}, fmt.Errorf("update metadata %s: %w", id, err)
		}
		return dommeta.Record{}, fmt.Errorf("update metadata %s: %w: %w", id, domain.ErrStoreUnavailable, err)
	}

	if p.mirror != nil {
		mctx, mcancel := context.WithTimeout(ctx, p.writeTimeout)
		defer mcancel()
		if err := p.mirror.Upsert(mctx, updated); err != nil {
			p.markDirty(updated.ID)
			p.logger.Warn("Mirror update failed, queued for reconciliation",
				zap.String("metadata_id", updated.ID), zap.Error(err))
		} else {
			p.clearDirty(updated.ID)
		}
	}

	p.logger.Info("Metadata updated",
		zap.String("metadata_id", id),
		zap.Strings("fields", patch.Fields()),
	)
	return updated, nil
}

// storeErr keeps not-found as is and classifies everything else as an unavailable store.
func storeErr(err error) error {
	if errors.Is(err, domain.ErrNotFound) || errors.Is(err, domain.ErrStoreUnavailable) {
		return err
	}
	return fmt.Errorf("%w: %w", domain.ErrStoreUnavailable, err)
}
