package health

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// Status is the node-level verdict.
type Status string

const (
	// Healthy: every component answers.
	Healthy Status = "ok"
	// Degraded: the log store serves but the mirror is down or lagging.
	Degraded Status = "degraded"
	// Unhealthy: the log store is down; writes cannot be accepted.
	Unhealthy Status = "error"
)

// CheckResult is one component's outcome.
type CheckResult string

const (
	// CheckOK indicates a passing probe.
	CheckOK CheckResult = "ok"
	// CheckError indicates a failing probe.
	CheckError CheckResult = "error"
	// CheckLagging marks a mirror whose repair backlog exceeds the threshold.
	CheckLagging CheckResult = "lagging"
)

// Component names in Report.Checks.
const (
	ComponentDatabase = "database"
	ComponentMirror   = "mirror"
	ComponentBacklog  = "mirror_backlog"
)

// DefaultProbeTimeout bounds each component probe.
const DefaultProbeTimeout = 2 * time.Second

// Report aggregates health check results.
type Report struct {
	Status Status
	Checks map[string]CheckResult
	// Dirty is the mirror repair backlog, zero without a backlog source.
	Dirty int
}

// Service probes the node's stores.
type Service struct {
	db        DBPinger
	mirror    MirrorPinger
	backlog   Backlog
	threshold int
	timeout   time.Duration
}

// New creates a Service. mirror can be nil.
func New(db DBPinger, mirror MirrorPinger) *Service {
	return &Service{db: db, mirror: mirror, timeout: DefaultProbeTimeout}
}

// WithBacklog reports the node degraded once more than threshold records
// wait for a mirror repair.
func (s *Service) WithBacklog(b Backlog, threshold int) *Service {
	s.backlog = b
	s.threshold = threshold
	return s
}

// WithTimeout sets the per-probe timeout.
func (s *Service) WithTimeout(d time.Duration) *Service {
	if d > 0 {
		s.timeout = d
	}
	return s
}

// Check probes every component concurrently.
func (s *Service) Check(ctx context.Context) Report {
	var mu sync.Mutex
	checks := make(map[string]CheckResult, 3)
	record := func(name string, err error) {
		res := CheckOK
		if err != nil {
			res = CheckError
		}
		mu.Lock()
		checks[name] = res
		mu.Unlock()
	}

	var g errgroup.Group
	g.Go(func() error {
		pctx, cancel := context.WithTimeout(ctx, s.timeout)
		defer cancel()
		record(ComponentDatabase, s.db.Ping(pctx))
		return nil
	})
	if s.mirror != nil {
		g.Go(func() error {
			pctx, cancel := context.WithTimeout(ctx, s.timeout)
			defer cancel()
			record(ComponentMirror, s.mirror.PingContext(pctx))
			return nil
		})
	}
	_ = g.Wait()

	report := Report{Checks: checks}
	if s.backlog != nil {
		report.Dirty = s.backlog.Dirty()
		checks[ComponentBacklog] = CheckOK
		if report.Dirty > s.threshold {
			checks[ComponentBacklog] = CheckLagging
		}
	}

	switch {
	case checks[ComponentDatabase] == CheckError:
		report.Status = Unhealthy
	case checks[ComponentMirror] == CheckError, checks[ComponentBacklog] == CheckLagging:
		report.Status = Degraded
	default:
		report.Status = Healthy
	}
	return report
}
