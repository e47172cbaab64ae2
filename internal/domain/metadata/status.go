package metadata

import (
	"strings"
	"time"
)

// Status is the lifecycle state of a record: pending, then published,
// then optionally stale or error.
type Status string

// Lifecycle states.
const (
	StatusPending   Status = "pending"
	StatusPublished Status = "published"
	StatusStale     Status = "stale"
	StatusError     Status = "error"
)

// Outcome is the final state of one enrichment task.
type Outcome struct {
	AssociatedID string    `json:"associated_id"`
	SourceStore  string    `json:"source_store"`
	MetadataID   string    `json:"metadata_id"`
	Status       Status    `json:"status"`
	Attempts     int       `json:"attempts"`
	MirrorSynced bool      `json:"mirror_synced"`
	Error        string    `json:"error,omitempty"`
	FinishedAt   time.Time `json:"finished_at"`
}

// ParseStatus accepts any case.
func ParseStatus(s string) (Status, bool) {
	st := Status(strings.ToLower(strings.TrimSpace(s)))
	return st, st.Valid()
}

// Valid reports whether s is a known lifecycle state.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusPublished, StatusStale, StatusError:
		return true
	}
	return false
}
