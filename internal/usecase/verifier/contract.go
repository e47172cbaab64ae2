package verifier

import (
	"context"

	dommeta "github.com/kailas-cloud/swarmkb/internal/domain/metadata"
)

// Peer is a node that can be asked for the record derived from a document.
type Peer interface {
	ID() string
	FindMetadata(ctx context.Context, associatedID string) (dommeta.Record, error)
}

// SchemaInspector lists the columns of a mirror table.
type SchemaInspector interface {
	Columns(ctx context.Context, table string) ([]string, error)
}

// Finder looks records up in this node's primary store.
type Finder interface {
	FindByAssociatedID(ctx context.Context, associatedID string) (dommeta.Record, error)
}
