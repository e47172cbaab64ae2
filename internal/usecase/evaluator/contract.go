package evaluator

import "github.com/kailas-cloud/swarmkb/internal/domain/document"

// Snapshot is the read side of the node's in-memory document cache.
type Snapshot interface {
	Range(storeName string, fn func(document.Document) bool)
}
