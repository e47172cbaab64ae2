// Package query coordinates federated queries across the local snapshot and cluster peers.
package query

import (
	"context"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/swarmkb/internal/domain"
	"github.com/kailas-cloud/swarmkb/internal/domain/criteria"
	domquery "github.com/kailas-cloud/swarmkb/internal/domain/query"
	"github.com/kailas-cloud/swarmkb/internal/metrics"
)

const errNoResponse = "no response within time budget"

// Service executes query strategies against local and remote sources.
type Service struct {
	local       Local
	peers       []Peer
	budget      time.Duration
	peerTimeout time.Duration
	quorumN     int
	policy      TieBreakPolicy
	logger      *zap.Logger
}

// New creates a coordinator. peers may be empty.
func New(local Local, peers []Peer, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		local:  local,
		peers:  peers,
		budget: domquery.DefaultTimeBudget,
		policy: TieBreakLocalThenPeerID,
		logger: logger,
	}
}

// WithBudget sets the default time budget used when a request does not carry one.
func (s *Service) WithBudget(d time.Duration) *Service {
	if d > 0 {
		s.budget = d
	}
	return s
}

// WithPeerTimeout bounds each individual peer call. The query budget still applies.
func (s *Service) WithPeerTimeout(d time.Duration) *Service {
	if d > 0 {
		s.peerTimeout = d
	}
	return s
}

// WithQuorum sets the quorum size used when a QUORUM request does not carry quorum_n.
func (s *Service) WithQuorum(n int) *Service {
	if n > 0 {
		s.quorumN = n
	}
	return s
}

// Peers returns the ids of the known peers.
func (s *Service) Peers() []string {
	ids := make([]string, len(s.peers))
	for i, p := range s.peers {
		ids[i] = p.ID()
	}
	sort.Strings(ids)
	return ids
}

// Query answers p over store using the strategy and consistency in opts.
// Peer failures are reported in the result meta; only STRONG turns them into an error.
// Budget expiry truncates gracefully; caller cancellation returns the context error.
func (s *Service) Query(
	ctx context.Context, store string, p criteria.Predicate, opts domquery.Options,
) (domquery.Result, error) {
	if err := domain.ValidateStoreName(store); err != nil {
		return domquery.Result{}, fmt.Errorf("query: %w", err)
	}
	opts, err := opts.Normalize()
	if err != nil {
		return domquery.Result{}, fmt.Errorf("query: %w", err)
	}
	if opts.QuorumN == 0 {
		opts.QuorumN = s.quorumN
	}

	start := time.Now()
	budget := opts.Budget(s.budget)

	var res domquery.Result
	switch opts.Strategy {
	case domquery.LocalOnly:
		res, err = s.localOnly(ctx, store, p, opts)
	case domquery.RemoteThenLocalFallback:
		res, err = s.remoteThenLocal(ctx, budget, store, p, opts)
	default:
		res, err = s.fanOutMerge(ctx, budget, store, p, opts)
	}
	if ctx.Err() != nil {
		err = ctx.Err()
	}
	if err != nil {
		return domquery.Result{}, fmt.Errorf("query %s: %w", store, err)
	}

	metrics.ObserveQuery(string(opts.Strategy), string(opts.Consistency), time.Since(start), res.Meta.Truncated)
	s.logger.Debug("Query completed",
		zap.String("store", store),
		zap.String("strategy", string(opts.Strategy)),
		zap.String("consistency", string(opts.Consistency)),
		zap.Int("documents", len(res.Documents)),
		zap.Bool("truncated", res.Meta.Truncated),
		zap.Duration("duration", time.Since(start)),
	)
	return res, nil
}

func (s *Service) evaluateLocal(ctx context.Context, store string, p criteria.Predicate) (domquery.Envelope, error) {
	start := time.Now()
	docs, err := s.local.Evaluate(ctx, store, p)
	if err != nil {
		return domquery.Envelope{}, fmt.Errorf("local evaluation: %w", err)
	}
	return domquery.Envelope{PeerID: domquery.LocalSource, Documents: docs, Latency: time.Since(start)}, nil
}

func (s *Service) localOnly(
	ctx context.Context, store string, p criteria.Predicate, opts domquery.Options,
) (domquery.Result, error) {
	env, err := s.evaluateLocal(ctx, store, p)
	if err != nil {
		return domquery.Result{}, err
	}
	return s.build([]domquery.Envelope{env}, opts, domquery.Meta{}), nil
}

// fanOutMerge serves REMOTE_ONLY, LOCAL_THEN_REMOTE_MERGE, PARALLEL_MERGE and QUORUM.
// The peers' budget starts when the fan-out does, after any sequential local scan.
func (s *Service) fanOutMerge(
	ctx context.Context, budget time.Duration, store string, p criteria.Predicate, opts domquery.Options,
) (domquery.Result, error) {
	var (
		envs     []domquery.Envelope
		localCh  chan localResult
		quorumN  = opts.QuorumSize(len(s.peers))
		useLocal = opts.IncludesLocal()
	)

	if useLocal {
		switch opts.Strategy {
		case domquery.LocalThenRemoteMerge:
			env, err := s.evaluateLocal(ctx, store, p)
			if err != nil {
				return domquery.Result{}, err
			}
			envs = append(envs, env)
		default:
			localCh = make(chan localResult, 1)
			go func() {
				env, err := s.evaluateLocal(ctx, store, p)
				localCh <- localResult{env: env, err: err}
			}()
		}
	}

	budgetCtx, cancel := context.WithTimeout(ctx, budget)
	defer cancel()
	r := s.fanOut(budgetCtx, store, p, stopCondition(opts, quorumN))

	if localCh != nil {
		lr := <-localCh
		if lr.err != nil {
			return domquery.Result{}, lr.err
		}
		envs = append(envs, lr.env)
	}

	meta, err := s.settle(r, opts)
	if err != nil {
		return domquery.Result{}, err
	}
	if opts.Strategy == domquery.Quorum {
		// A node without peers has nobody to agree with.
		quorate := len(s.peers) > 0 && r.successes >= quorumN
		meta.Quorate = &quorate
		meta.Truncated = !quorate || (opts.Consistency == domquery.Eventual && len(r.unsettled) > 0)
	}
	return s.build(append(envs, r.envs...), opts, meta), nil
}

func (s *Service) remoteThenLocal(
	ctx context.Context, budget time.Duration, store string, p criteria.Predicate, opts domquery.Options,
) (domquery.Result, error) {
	budgetCtx, cancel := context.WithTimeout(ctx, budget)
	defer cancel()
	r := s.fanOut(budgetCtx, store, p, stopCondition(opts, 0))
	meta, err := s.settle(r, opts)
	if err != nil {
		return domquery.Result{}, err
	}

	envs := r.envs
	if !r.anyResults() {
		env, err := s.evaluateLocal(ctx, store, p)
		if err != nil {
			return domquery.Result{}, err
		}
		envs = append(envs, env)
		meta.Fallback = true
	}
	return s.build(envs, opts, meta), nil
}

// settle converts a fan-out round into result meta, applying the consistency policy.
func (s *Service) settle(r round, opts domquery.Options) (domquery.Meta, error) {
	failed := make(map[string]string)
	for _, env := range r.envs {
		if !env.OK() {
			failed[env.PeerID] = env.Err.Error()
			s.logger.Warn("Peer query failed",
				zap.String("peer", env.PeerID),
				zap.Duration("latency", env.Latency),
				zap.Error(env.Err),
			)
		}
	}
	if r.expired {
		for _, id := range r.unsettled {
			failed[id] = errNoResponse
		}
	}

	if opts.Consistency == domquery.Strong && len(failed) > 0 {
		return domquery.Meta{}, &domquery.ConsistencyError{Failed: failed}
	}

	meta := domquery.Meta{}
	if len(failed) > 0 {
		meta.Errors = failed
	}
	switch opts.Consistency {
	case domquery.Eventual:
		meta.Truncated = len(r.unsettled) > 0
	default:
		meta.Truncated = r.successes < len(s.peers)
	}
	return meta, nil
}

// build merges envelopes into a result carrying meta.
func (s *Service) build(envs []domquery.Envelope, opts domquery.Options, meta domquery.Meta) domquery.Result {
	m := merge(envs, s.policy)

	for _, env := range envs {
		if env.OK() {
			meta.Responded = append(meta.Responded, env.PeerID)
		}
	}
	sort.Strings(meta.Responded)

	docs := m.docs
	if opts.AnnotateSource {
		docs = m.annotate()
		meta.Sources = m.sources
	}
	return domquery.Result{Documents: docs, Meta: meta}
}

// stopCondition returns when a fan-out round may end before every peer settled.
func stopCondition(opts domquery.Options, quorumN int) func(*round) bool {
	return func(r *round) bool {
		if opts.Consistency == domquery.Strong {
			return r.failures > 0
		}
		if opts.Strategy == domquery.Quorum && opts.Consistency == domquery.BestEffort {
			return r.successes >= quorumN
		}
		return false
	}
}

type localResult struct {
	env domquery.Envelope
	err error
}
