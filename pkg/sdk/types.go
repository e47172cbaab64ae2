package swarmkb

import (
	"time"

	"github.com/kailas-cloud/swarmkb/internal/domain/document"
	dommeta "github.com/kailas-cloud/swarmkb/internal/domain/metadata"
	domquery "github.com/kailas-cloud/swarmkb/internal/domain/query"
	"github.com/kailas-cloud/swarmkb/internal/domain/replication"
	"github.com/kailas-cloud/swarmkb/internal/domain/upload"
)

// Document is a catalog document: an _id, an _imported_at stamp and free-form fields.
type Document = document.Document

// MetadataRecord is the fixed-schema record derived from an ingested document.
type MetadataRecord = dommeta.Record

// EnrichmentOutcome is the last enrichment task a node ran for a document.
type EnrichmentOutcome = dommeta.Outcome

// QueryOptions are per-request query settings.
type QueryOptions = domquery.Options

// Strategy selects where a query is evaluated.
type Strategy = domquery.Strategy

// Consistency decides how peer failures affect a query.
type Consistency = domquery.Consistency

// QueryMeta describes how complete a query result is.
type QueryMeta = domquery.Meta

// UploadResult describes where an uploaded template ended up.
type UploadResult = upload.Result

// PeerPresence is one peer's answer to a replication probe.
type PeerPresence = replication.PeerPresence

// Query strategies.
const (
	LocalOnly               = domquery.LocalOnly
	RemoteOnly              = domquery.RemoteOnly
	LocalThenRemoteMerge    = domquery.LocalThenRemoteMerge
	RemoteThenLocalFallback = domquery.RemoteThenLocalFallback
	ParallelMerge           = domquery.ParallelMerge
	Quorum                  = domquery.Quorum
)

// Consistency levels.
const (
	BestEffort = domquery.BestEffort
	Eventual   = domquery.Eventual
	Strong     = domquery.Strong
)

// DefaultStore is the store commands use when none is given.
const DefaultStore = "dsswres"

// QueryResult is the merged answer of a distributed query.
type QueryResult struct {
	Documents []Document
	Meta      QueryMeta
}

// PutItem is the per-document outcome of Put.
type PutItem struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

// PutResult is the outcome of a Put batch.
type PutResult struct {
	Items     []PutItem
	Succeeded int
	Failed    int
}

// ReplicationReport says which nodes hold the metadata of a document.
type ReplicationReport struct {
	AssociatedID    string         `json:"associated_id"`
	Peers           []PeerPresence `json:"peers"`
	CheckedAt       time.Time      `json:"checked_at"`
	Present         []string       `json:"present"`
	Absent          []string       `json:"absent"`
	Unreachable     []string       `json:"unreachable"`
	FullyReplicated bool           `json:"fully_replicated"`
}

// SchemaReport compares the mirror's columns with the metadata field list.
type SchemaReport struct {
	OK            bool     `json:"ok"`
	Total         int      `json:"total"`
	ExpectedTotal int      `json:"expected_total"`
	Missing       []string `json:"missing"`
	Present       []string `json:"present"`
	Extra         []string `json:"extra,omitempty"`
}

// AgentStatus describes the node the client talks to.
type AgentStatus struct {
	NodeID    string   `json:"node_id"`
	Role      string   `json:"role"`
	Version   string   `json:"version"`
	Peers     []string `json:"peers"`
	PeerCount int      `json:"peer_count"`
	Dirty     int      `json:"dirty_records"`
}

// HealthStatus represents the aggregated node health.
type HealthStatus struct {
	Status string            `json:"status"` // "ok", "degraded", "error"
	Checks map[string]string `json:"checks"` // component → "ok", "error" or "lagging"
	Dirty  int               `json:"dirty,omitempty"`
}

// UploadOptions control how a template is stored. The zero value stores the
// full, queryable structure in the default store.
type UploadOptions struct {
	BlobOnly    bool
	TargetStore string
	Uploader    string
}
