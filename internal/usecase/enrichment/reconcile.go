package enrichment

import (
	"context"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	dommeta "github.com/kailas-cloud/swarmkb/internal/domain/metadata"
)

// ReconcileReport summarizes one reconciliation pass.
type ReconcileReport struct {
	Checked    int      `json:"checked"`
	Missing    []string `json:"missing,omitempty"`
	Mismatched []string `json:"mismatched,omitempty"`
	Repaired   int      `json:"repaired"`
	Failed     []string `json:"failed,omitempty"`
	Orphaned   []string `json:"orphaned,omitempty"`
}

// Reconcile compares the primary store with the mirror and re-upserts every
// mirror row that is missing or differs. The primary store is authoritative.
func (p *Pipeline) Reconcile(ctx context.Context) (ReconcileReport, error) {
	var report ReconcileReport
	if p.mirror == nil {
		return report, nil
	}

	primary, err := p.primary.List(ctx)
	if err != nil {
		return report, fmt.Errorf("reconcile: list primary: %w", storeErr(err))
	}
	mirrored, err := p.mirror.List(ctx)
	if err != nil {
		return report, fmt.Errorf("reconcile: list mirror: %w", err)
	}

	rows := make(map[string]dommeta.Record, len(mirrored))
	for _, rec := range mirrored {
		rows[rec.ID] = rec
	}

	for _, rec := range primary {
		report.Checked++
		row, ok := rows[rec.ID]
		delete(rows, rec.ID)
		switch {
		case !ok:
			report.Missing = append(report.Missing, rec.ID)
		case !rec.Equivalent(row):
			report.Mismatched = append(report.Mismatched, rec.ID)
		default:
			p.clearDirty(rec.ID)
			continue
		}

		wctx, cancel := context.WithTimeout(ctx, p.writeTimeout)
		err := p.mirror.Upsert(wctx, rec)
		cancel()
		if err != nil {
			p.markDirty(rec.ID)
			report.Failed = append(report.Failed, rec.ID)
			p.logger.Warn("Reconcile upsert failed", zap.String("metadata_id", rec.ID), zap.Error(err))
			continue
		}
		p.clearDirty(rec.ID)
		report.Repaired++
	}

	for id := range rows {
		report.Orphaned = append(report.Orphaned, id)
	}
	sort.Strings(report.Orphaned)

	if report.Repaired > 0 || len(report.Failed) > 0 {
		p.logger.Info("Reconciliation repaired mirror",
			zap.Int("checked", report.Checked),
			zap.Int("repaired", report.Repaired),
			zap.Int("failed", len(report.Failed)),
		)
	}
	return report, nil
}

// RunReconciler reconciles every interval until ctx ends.
func (p *Pipeline) RunReconciler(ctx context.Context, interval time.Duration) {
	if p.mirror == nil || interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := p.Reconcile(ctx); err != nil {
				p.logger.Warn("Reconciliation failed", zap.Error(err))
			}
		}
	}
}
