// Package evaluator answers predicates against the node's own snapshot.
package evaluator

import (
	"context"
	"fmt"
	"sort"

	"github.com/kailas-cloud/swarmkb/internal/domain"
	"github.com/kailas-cloud/swarmkb/internal/domain/criteria"
	"github.com/kailas-cloud/swarmkb/internal/domain/document"
)

// ctxCheckEvery bounds how many documents are scanned between cancellation checks.
const ctxCheckEvery = 256

// Service evaluates compiled predicates over a snapshot.
type Service struct {
	snap Snapshot
}

// New creates an evaluator over snap.
func New(snap Snapshot) *Service {
	return &Service{snap: snap}
}

// Evaluate returns every document of store matching p, sorted by id.
// An unknown store yields an empty result.
func (s *Service) Evaluate(ctx context.Context, store string, p criteria.Predicate) ([]document.Document, error) {
	if err := domain.ValidateStoreName(store); err != nil {
		return nil, fmt.Errorf("evaluate: %w", err)
	}

	var (
		out     []document.Document
		scanned int
		ctxErr  error
	)
	s.snap.Range(store, func(d document.Document) bool {
		scanned++
		if scanned%ctxCheckEvery == 0 {
			if ctxErr = ctx.Err(); ctxErr != nil {
				return false
			}
		}
		if p.Match(d) {
			out = append(out, d)
		}
		return true
	})
	if ctxErr != nil {
		return nil, fmt.Errorf("evaluate %s: %w", store, ctxErr)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].ID() < out[j].ID() })
	return out, nil
}
