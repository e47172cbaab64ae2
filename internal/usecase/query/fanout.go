package query

import (
	"context"
	"sort"
	"time"

	"github.com/kailas-cloud/swarmkb/internal/domain/criteria"
	domquery "github.com/kailas-cloud/swarmkb/internal/domain/query"
	"github.com/kailas-cloud/swarmkb/internal/metrics"
)

// round is what one fan-out collected before it returned.
type round struct {
	envs      []domquery.Envelope
	unsettled []string
	successes int
	failures  int
	expired   bool
}

// anyResults reports whether some peer answered with at least one document.
func (r round) anyResults() bool {
	for _, env := range r.envs {
		if env.OK() && len(env.Documents) > 0 {
			return true
		}
	}
	return false
}

// fanOut queries every peer in parallel until all settle, ctx ends, or stop returns true.
// The result channel is buffered for every peer so abandoned calls never block.
func (s *Service) fanOut(
	ctx context.Context, store string, p criteria.Predicate, stop func(*round) bool,
) round {
	var r round
	if len(s.peers) == 0 {
		return r
	}

	results := make(chan domquery.Envelope, len(s.peers))
	pending := make(map[string]bool, len(s.peers))
	for _, peer := range s.peers {
		pending[peer.ID()] = true
		go func(peer Peer) {
			pctx, cancel := s.peerContext(ctx)
			defer cancel()
			start := time.Now()
			docs, err := peer.Query(pctx, store, p)
			results <- domquery.Envelope{
				PeerID:    peer.ID(),
				Documents: docs,
				Latency:   time.Since(start),
				Err:       err,
			}
		}(peer)
	}

collect:
	for len(pending) > 0 {
		select {
		case env := <-results:
			if !env.OK() && ctx.Err() != nil {
				// The call was cut off by the deadline rather than failing on its own.
				r.expired = true
				break collect
			}
			delete(pending, env.PeerID)
			metrics.ObservePeer(env.PeerID, env.Latency, env.Err)
			if env.OK() {
				r.successes++
			} else {
				env.Documents = nil
				r.failures++
			}
			r.envs = append(r.envs, env)
			if stop != nil && stop(&r) {
				break collect
			}
		case <-ctx.Done():
			r.expired = true
			break collect
		}
	}

	for id := range pending {
		r.unsettled = append(r.unsettled, id)
	}
	sort.Strings(r.unsettled)
	return r
}

func (s *Service) peerContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.peerTimeout > 0 {
		return context.WithTimeout(ctx, s.peerTimeout)
	}
	return context.WithCancel(ctx)
}
