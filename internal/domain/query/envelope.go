package query

import (
	"time"

	"github.com/kailas-cloud/swarmkb/internal/domain"
	"github.com/kailas-cloud/swarmkb/internal/domain/document"
)

// LocalSource is the provenance tag of the node's own snapshot.
const LocalSource = domain.LocalSource

// Envelope is one source's answer to one query round.
type Envelope struct {
	PeerID    string
	Documents []document.Document
	Latency   time.Duration
	Err       error
}

// OK reports whether the source answered without error.
func (e Envelope) OK() bool { return e.Err == nil }
