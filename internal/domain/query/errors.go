package query

import (
	"fmt"
	"sort"
	"strings"

	"github.com/kailas-cloud/swarmkb/internal/domain"
)

// ConsistencyError lists the peers that kept a STRONG query from completing.
// It unwraps to domain.ErrConsistencyUnavailable.
type ConsistencyError struct {
	Failed map[string]string
}

func (e *ConsistencyError) Error() string {
	ids := make([]string, 0, len(e.Failed))
	for id := range e.Failed {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = id + ": " + e.Failed[id]
	}
	return fmt.Sprintf("%s: %s", domain.ErrConsistencyUnavailable, strings.Join(parts, "; "))
}

func (e *ConsistencyError) Unwrap() error { return domain.ErrConsistencyUnavailable }
