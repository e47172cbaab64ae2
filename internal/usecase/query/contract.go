package query

import (
	"context"

	"github.com/kailas-cloud/swarmkb/internal/domain/criteria"
	"github.com/kailas-cloud/swarmkb/internal/domain/document"
)

// Peer is a remote node able to evaluate a predicate against its own snapshot.
type Peer interface {
	ID() string
	Query(ctx context.Context, store string, p criteria.Predicate) ([]document.Document, error)
}

// Local evaluates a predicate against this node's snapshot.
type Local interface {
	Evaluate(ctx context.Context, store string, p criteria.Predicate) ([]document.Document, error)
}
