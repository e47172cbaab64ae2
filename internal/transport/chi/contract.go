package chi

import (
	"context"

	"github.com/kailas-cloud/swarmkb/internal/domain/batch"
	"github.com/kailas-cloud/swarmkb/internal/domain/criteria"
	"github.com/kailas-cloud/swarmkb/internal/domain/document"
	dommeta "github.com/kailas-cloud/swarmkb/internal/domain/metadata"
	domquery "github.com/kailas-cloud/swarmkb/internal/domain/query"
	"github.com/kailas-cloud/swarmkb/internal/domain/replication"
	"github.com/kailas-cloud/swarmkb/internal/domain/upload"
	healthuc "github.com/kailas-cloud/swarmkb/internal/usecase/health"
	"github.com/kailas-cloud/swarmkb/internal/usecase/verifier"
)

// Catalog serves the CRUD commands and uploads.
type Catalog interface {
	Put(ctx context.Context, store string, raws []map[string]any) ([]batch.Result, error)
	Get(ctx context.Context, store string, p criteria.Predicate) ([]document.Document, error)
	Update(ctx context.Context, store string, p criteria.Predicate, data map[string]any) (int, error)
	Delete(ctx context.Context, store string, p criteria.Predicate) (int, error)
	Upload(ctx context.Context, req upload.Request) (upload.Result, error)
}

// Querier runs distributed queries.
type Querier interface {
	Query(ctx context.Context, store string, p criteria.Predicate, opts domquery.Options) (domquery.Result, error)
	Peers() []string
}

// Metadata reads and edits enrichment records.
type Metadata interface {
	GetMetadata(ctx context.Context, id string) (dommeta.Record, error)
	FindByAssociatedID(ctx context.Context, associatedID string) (dommeta.Record, error)
	UpdateFields(ctx context.Context, id string, fields map[string]any) (dommeta.Record, error)
	Outcome(associatedID string) (dommeta.Outcome, bool)
}

// SQLRunner executes statements against the relational mirror.
type SQLRunner interface {
	RunSQL(ctx context.Context, stmt string) ([]map[string]any, error)
}

// Verifier checks replication and the mirror schema.
type Verifier interface {
	CheckReplication(ctx context.Context, associatedID string, peers []verifier.Peer) replication.Report
	VerifySchema(ctx context.Context, expected []string) (replication.SchemaReport, error)
}

// HealthChecker reports component health.
type HealthChecker interface {
	Check(ctx context.Context) healthuc.Report
}

// DirtyCounter reports records whose mirror write is pending repair.
type DirtyCounter interface {
	Dirty() int
}
