package query

import (
	"fmt"
	"strings"
	"time"

	"github.com/kailas-cloud/swarmkb/internal/domain"
)

// Strategy selects where a query is answered from.
type Strategy string

// Query strategies.
const (
	LocalOnly               Strategy = "LOCAL_ONLY"
	RemoteOnly              Strategy = "REMOTE_ONLY"
	LocalThenRemoteMerge    Strategy = "LOCAL_THEN_REMOTE_MERGE"
	RemoteThenLocalFallback Strategy = "REMOTE_THEN_LOCAL_FALLBACK"
	ParallelMerge           Strategy = "PARALLEL_MERGE"
	Quorum                  Strategy = "QUORUM"
)

// Consistency controls how strictly the coordinator waits for peers.
type Consistency string

// Consistency levels.
const (
	BestEffort Consistency = "BEST_EFFORT"
	Eventual   Consistency = "EVENTUAL"
	Strong     Consistency = "STRONG"
)

// Defaults and limits.
const (
	DefaultStrategy    = LocalOnly
	DefaultConsistency = BestEffort
	DefaultTimeBudget  = 1500 * time.Millisecond
	MaxTimeBudget      = 60 * time.Second
)

// Options are per-request query settings. They are never persisted.
type Options struct {
	Strategy       Strategy    `json:"strategy,omitempty"`
	Consistency    Consistency `json:"consistency,omitempty"`
	IncludeLocal   *bool       `json:"include_local,omitempty"`
	AnnotateSource bool        `json:"annotate_source,omitempty"`
	TimeBudgetMS   int         `json:"time_budget_ms,omitempty"`
	QuorumN        int         `json:"quorum_n,omitempty"`
}

// Normalize upper-cases enum values, fills defaults and validates.
func (o Options) Normalize() (Options, error) {
	o.Strategy = Strategy(strings.ToUpper(strings.TrimSpace(string(o.Strategy))))
	o.Consistency = Consistency(strings.ToUpper(strings.TrimSpace(string(o.Consistency))))
	if o.Strategy == "" {
		o.Strategy = DefaultStrategy
	}
	if o.Consistency == "" {
		o.Consistency = DefaultConsistency
	}

	switch o.Strategy {
	case LocalOnly, RemoteOnly, LocalThenRemoteMerge, RemoteThenLocalFallback, ParallelMerge, Quorum:
	default:
		return Options{}, fmt.Errorf("%w: unknown strategy %q", domain.ErrInvalidOptions, o.Strategy)
	}
	switch o.Consistency {
	case BestEffort, Eventual, Strong:
	default:
		return Options{}, fmt.Errorf("%w: unknown consistency %q", domain.ErrInvalidOptions, o.Consistency)
	}
	if o.TimeBudgetMS < 0 {
		return Options{}, fmt.Errorf("%w: negative time_budget_ms", domain.ErrInvalidOptions)
	}
	if time.Duration(o.TimeBudgetMS)*time.Millisecond > MaxTimeBudget {
		return Options{}, fmt.Errorf("%w: time_budget_ms exceeds %s", domain.ErrInvalidOptions, MaxTimeBudget)
	}
	if o.QuorumN < 0 {
		return Options{}, fmt.Errorf("%w: negative quorum_n", domain.ErrInvalidOptions)
	}
	return o, nil
}

// IncludesLocal reports whether local results join a merging strategy.
func (o Options) IncludesLocal() bool {
	switch o.Strategy {
	case LocalOnly:
		return true
	case RemoteOnly:
		return false
	}
	return o.IncludeLocal == nil || *o.IncludeLocal
}

// Budget returns the time budget, falling back to def and then DefaultTimeBudget.
func (o Options) Budget(def time.Duration) time.Duration {
	if o.TimeBudgetMS > 0 {
		return time.Duration(o.TimeBudgetMS) * time.Millisecond
	}
	if def > 0 {
		return def
	}
	return DefaultTimeBudget
}

// QuorumSize returns the number of successful peers a QUORUM query needs.
// Without an explicit quorum_n it is a majority of peers, capped at the peer count.
// With no peers it is 0, and the coordinator reports such a query as not quorate.
func (o Options) QuorumSize(peers int) int {
	n := o.QuorumN
	if n == 0 {
		n = peers/2 + 1
	}
	if n > peers {
		n = peers
	}
	return n
}

// Bool returns a pointer to b, for IncludeLocal.
func Bool(b bool) *bool { return &b }
