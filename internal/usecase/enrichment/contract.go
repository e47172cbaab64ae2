package enrichment

import (
	"context"

	"github.com/kailas-cloud/swarmkb/internal/domain/document"
	dommeta "github.com/kailas-cloud/swarmkb/internal/domain/metadata"
)

// Primary is the replicated log store holding metadata records.
type Primary interface {
	Put(ctx context.Context, rec dommeta.Record) error
	Get(ctx context.Context, id string) (dommeta.Record, error)
	FindByAssociatedID(ctx context.Context, associatedID string) (dommeta.Record, error)
	List(ctx context.Context) ([]dommeta.Record, error)
}

// Mirror is the relational copy of the metadata records.
type Mirror interface {
	Upsert(ctx context.Context, rec dommeta.Record) error
	List(ctx context.Context) ([]dommeta.Record, error)
}

// Extractor derives a metadata record from an ingested document.
// Identity fields are filled in by the pipeline and may be left empty.
type Extractor interface {
	Extract(ctx context.Context, store string, doc document.Document) (dommeta.Record, error)
}
