// Package verifier probes peers for replicated metadata and checks the mirror schema.
// It never writes.
package verifier

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/kailas-cloud/swarmkb/internal/domain"
	dommeta "github.com/kailas-cloud/swarmkb/internal/domain/metadata"
	"github.com/kailas-cloud/swarmkb/internal/domain/replication"
)

// Defaults.
const (
	DefaultProbeTimeout = 2 * time.Second
	DefaultConcurrency  = 16
	MetadataTable       = "metadata_catalog"
)

// Service runs replication and schema checks.
type Service struct {
	schema      SchemaInspector
	timeout     time.Duration
	concurrency int
	now         func() time.Time
	logger      *zap.Logger
}

// New creates a verifier. schema may be nil when no mirror is configured.
func New(schema SchemaInspector, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		schema:      schema,
		timeout:     DefaultProbeTimeout,
		concurrency: DefaultConcurrency,
		now:         time.Now,
		logger:      logger,
	}
}

// WithTimeout bounds each peer probe.
func (s *Service) WithTimeout(d time.Duration) *Service {
	if d > 0 {
		s.timeout = d
	}
	return s
}

// WithConcurrency bounds how many peers are probed at once.
func (s *Service) WithConcurrency(n int) *Service {
	if n > 0 {
		s.concurrency = n
	}
	return s
}

// CheckReplication asks every peer for the record derived from associatedID.
// Peers are reported in id order.
func (s *Service) CheckReplication(ctx context.Context, associatedID string, peers []Peer) replication.Report {
	report := replication.Report{
		AssociatedID: associatedID,
		Peers:        make([]replication.PeerPresence, len(peers)),
		CheckedAt:    s.now().UTC(),
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for i, peer := range peers {
		g.Go(func() error {
			report.Peers[i] = s.probe(gctx, peer, associatedID)
			return nil
		})
	}
	_ = g.Wait()

	sort.Slice(report.Peers, func(i, j int) bool { return report.Peers[i].PeerID < report.Peers[j].PeerID })
	s.logger.Debug("Replication checked",
		zap.String("associated_id", associatedID),
		zap.Strings("present", report.Present()),
		zap.Strings("absent", report.Absent()),
		zap.Strings("unreachable", report.Unreachable()),
	)
	return report
}

func (s *Service) probe(ctx context.Context, peer Peer, associatedID string) replication.PeerPresence {
	pctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	start := time.Now()
	rec, err := peer.FindMetadata(pctx, associatedID)
	latency := time.Since(start)

	out := replication.PeerPresence{PeerID: peer.ID(), Latency: latency, LatencyMS: latency.Milliseconds()}
	switch {
	case err == nil:
		out.Present = true
		out.MetadataID = rec.ID
		out.Status = string(rec.Status)
	case errors.Is(err, domain.ErrNotFound):
	default:
		out.Error = err.Error()
	}
	return out
}

// VerifySchema compares the mirror's metadata table with expected columns.
// An empty expected list means the record's own field list.
func (s *Service) VerifySchema(ctx context.Context, expected []string) (replication.SchemaReport, error) {
	if s.schema == nil {
		return replication.SchemaReport{}, fmt.Errorf("verify schema: %w: no mirror configured", domain.ErrStoreUnavailable)
	}
	if len(expected) == 0 {
		expected = dommeta.FieldNames()
	}

	actual, err := s.schema.Columns(ctx, MetadataTable)
	if err != nil {
		return replication.SchemaReport{}, fmt.Errorf("verify schema: %w", err)
	}

	have := make(map[string]bool, len(actual))
	for _, c := range actual {
		have[c] = true
	}
	want := make(map[string]bool, len(expected))
	report := replication.SchemaReport{Expected: expected, Actual: actual, Missing: []string{}}
	for _, c := range expected {
		want[c] = true
		if !have[c] {
			report.Missing = append(report.Missing, c)
		}
	}
	for _, c := range actual {
		if !want[c] {
			report.Extra = append(report.Extra, c)
		}
	}
	return report, nil
}

// LocalPeer exposes this node's primary store as a probe target.
type LocalPeer struct {
	NodeID string
	Finder Finder
}

// ID implements Peer.
func (l LocalPeer) ID() string { return l.NodeID }

// FindMetadata implements Peer.
func (l LocalPeer) FindMetadata(ctx context.Context, associatedID string) (dommeta.Record, error) {
	rec, err := l.Finder.FindByAssociatedID(ctx, associatedID)
	if err != nil {
		return dommeta.Record{}, fmt.Errorf("local lookup: %w", err)
	}
	return rec, nil
}
