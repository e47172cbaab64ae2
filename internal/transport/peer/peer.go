// Package peer adapts remote swarmkb nodes to the query and verifier usecases.
package peer

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/kailas-cloud/swarmkb/internal/config"
	"github.com/kailas-cloud/swarmkb/internal/domain/criteria"
	"github.com/kailas-cloud/swarmkb/internal/domain/document"
	dommeta "github.com/kailas-cloud/swarmkb/internal/domain/metadata"
	"github.com/kailas-cloud/swarmkb/internal/usecase/query"
	"github.com/kailas-cloud/swarmkb/internal/usecase/verifier"
	swarmkb "github.com/kailas-cloud/swarmkb/pkg/sdk"
)

var (
	_ query.Peer    = (*Peer)(nil)
	_ verifier.Peer = (*Peer)(nil)
)

// Peer is a remote node reached over its HTTP API.
type Peer struct {
	id     string
	client *swarmkb.Client
}

// New creates a Peer for the node at baseURL.
func New(id, baseURL string, opts ...swarmkb.Option) (*Peer, error) {
	if id == "" {
		return nil, fmt.Errorf("peer id is required for %s", baseURL)
	}
	c, err := swarmkb.New(baseURL, opts...)
	if err != nil {
		return nil, fmt.Errorf("peer %s: %w", id, err)
	}
	return &Peer{id: id, client: c}, nil
}

// FromConfig builds one Peer per configured entry. All peers share the
// context path and per-call timeout and report to reg when it is non-nil.
func FromConfig(
	peers []config.PeerConfig,
	contextPath string,
	timeout time.Duration,
	reg prometheus.Registerer,
) ([]*Peer, error) {
	hc := &http.Client{Timeout: timeout}
	out := make([]*Peer, 0, len(peers))
	for _, pc := range peers {
		opts := []swarmkb.Option{
			swarmkb.WithContext(contextPath),
			swarmkb.WithHTTPClient(hc),
		}
		if pc.APIKey != "" {
			opts = append(opts, swarmkb.WithAPIKey(pc.APIKey))
		}
		if reg != nil {
			opts = append(opts, swarmkb.WithPrometheus(reg))
		}
		p, err := New(pc.ID, pc.URL, opts...)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

// ID implements query.Peer and verifier.Peer.
func (p *Peer) ID() string { return p.id }

// Query asks the remote node to evaluate p against its own snapshot only.
func (p *Peer) Query(ctx context.Context, store string, pred criteria.Predicate) ([]document.Document, error) {
	docs, err := p.client.PeerQuery(ctx, store, pred)
	if err != nil {
		return nil, fmt.Errorf("peer %s query: %w", p.id, err)
	}
	return docs, nil
}

// FindMetadata looks up the remote node's metadata record for associatedID.
func (p *Peer) FindMetadata(ctx context.Context, associatedID string) (dommeta.Record, error) {
	rec, err := p.client.MetadataFor(ctx, associatedID)
	if err != nil {
		return dommeta.Record{}, fmt.Errorf("peer %s metadata: %w", p.id, err)
	}
	return rec, nil
}

// QueryPeers converts to the query usecase's peer list.
func QueryPeers(peers []*Peer) []query.Peer {
	out := make([]query.Peer, len(peers))
	for i, p := range peers {
		out[i] = p
	}
	return out
}

// VerifierPeers converts to the verifier usecase's peer list.
func VerifierPeers(peers []*Peer) []verifier.Peer {
	out := make([]verifier.Peer, len(peers))
	for i, p := range peers {
		out[i] = p
	}
	return out
}
