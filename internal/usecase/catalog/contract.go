package catalog

import (
	"context"

	"github.com/kailas-cloud/swarmkb/internal/domain/criteria"
	"github.com/kailas-cloud/swarmkb/internal/domain/document"
	"github.com/kailas-cloud/swarmkb/internal/domain/upload"
)

// Documents is the durable document store.
type Documents interface {
	Put(ctx context.Context, store string, doc document.Document) (string, error)
	Delete(ctx context.Context, store, id string) error
	List(ctx context.Context, store string) ([]document.Document, error)
	Stores(ctx context.Context) ([]string, error)
}

// Evaluator answers predicates against the local snapshot.
type Evaluator interface {
	Evaluate(ctx context.Context, store string, p criteria.Predicate) ([]document.Document, error)
}

// Snapshot is loaded from the durable store at startup.
type Snapshot interface {
	Load(store string, docs []document.Document)
}

// Enricher is notified of every document stored outside the metadata store.
type Enricher interface {
	OnIngest(store string, doc document.Document)
}

// TemplateIndex records uploaded templates in the relational mirror.
type TemplateIndex interface {
	UpsertTemplate(ctx context.Context, t upload.Template) error
}
