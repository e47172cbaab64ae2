package chi

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/kailas-cloud/swarmkb/internal/domain"
	"github.com/kailas-cloud/swarmkb/internal/domain/criteria"
	"github.com/kailas-cloud/swarmkb/internal/domain/replication"
	"github.com/kailas-cloud/swarmkb/internal/version"
)

// NodeRole is reported by /agent/status. Every node both serves and coordinates.
const NodeRole = "peer"

// PeerQueryRequest is the body of POST /peer/query.
type PeerQueryRequest struct {
	DSType   string `json:"dstype,omitempty"`
	Criteria any    `json:"criteria,omitempty"`
}

// PeerQueryMeta identifies the answering node.
type PeerQueryMeta struct {
	NodeID string `json:"node_id"`
	Count  int    `json:"count"`
}

// ReplicationData is the body of GET /replication/{associated_id}.
type ReplicationData struct {
	replication.Report
	Present         []string `json:"present"`
	Absent          []string `json:"absent"`
	Unreachable     []string `json:"unreachable"`
	FullyReplicated bool     `json:"fully_replicated"`
}

// SchemaData is the body of GET /schema/verify.
type SchemaData struct {
	OK            bool     `json:"ok"`
	Total         int      `json:"total"`
	ExpectedTotal int      `json:"expected_total"`
	Missing       []string `json:"missing"`
	Present       []string `json:"present"`
	Extra         []string `json:"extra,omitempty"`
}

// AgentStatus is the body of GET /agent/status.
type AgentStatus struct {
	NodeID    string   `json:"node_id"`
	Role      string   `json:"role"`
	Version   string   `json:"version"`
	Peers     []string `json:"peers"`
	PeerCount int      `json:"peer_count"`
	Dirty     int      `json:"dirty_records"`
}

// PeerQuery handles POST /peer/query: local-only evaluation for a coordinating peer.
func (s *Server) PeerQuery(w http.ResponseWriter, r *http.Request) {
	var req PeerQueryRequest
	if !s.decode(w, r, &req) {
		return
	}
	store := req.DSType
	if store == "" {
		store = domain.DefaultStore
	}
	p, err := criteria.Compile(req.Criteria)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}
	docs, err := s.svc.Catalog.Get(r.Context(), store, p)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}
	writeOK(w, docs, PeerQueryMeta{NodeID: s.nodeID, Count: len(docs)})
}

// Replication handles GET /replication/{associated_id}.
func (s *Server) Replication(w http.ResponseWriter, r *http.Request) {
	assoc := chi.URLParam(r, "associated_id")
	if assoc == "" {
		writeError(w, http.StatusBadRequest, CodeBadRequest, "associated_id is required")
		return
	}
	report := s.svc.Verifier.CheckReplication(r.Context(), assoc, s.svc.Replicas)
	writeOK(w, ReplicationData{
		Report:          report,
		Present:         nonNil(report.Present()),
		Absent:          nonNil(report.Absent()),
		Unreachable:     nonNil(report.Unreachable()),
		FullyReplicated: report.FullyReplicated(),
	}, nil)
}

// VerifySchema handles GET /schema/verify.
func (s *Server) VerifySchema(w http.ResponseWriter, r *http.Request) {
	report, err := s.svc.Verifier.VerifySchema(r.Context(), nil)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}
	missing := make(map[string]bool, len(report.Missing))
	for _, m := range report.Missing {
		missing[m] = true
	}
	present := make([]string, 0, len(report.Expected))
	for _, c := range report.Expected {
		if !missing[c] {
			present = append(present, c)
		}
	}
	writeOK(w, SchemaData{
		OK:            report.OK(),
		Total:         len(report.Actual),
		ExpectedTotal: len(report.Expected),
		Missing:       report.Missing,
		Present:       present,
		Extra:         report.Extra,
	}, nil)
}

// AgentStatus handles GET /agent/status.
func (s *Server) AgentStatus(w http.ResponseWriter, _ *http.Request) {
	peers := nonNil(s.svc.Query.Peers())
	status := AgentStatus{
		NodeID:    s.nodeID,
		Role:      NodeRole,
		Version:   version.Version,
		Peers:     peers,
		PeerCount: len(peers),
	}
	if s.svc.Enrichment != nil {
		status.Dirty = s.svc.Enrichment.Dirty()
	}
	writeOK(w, status, nil)
}

// ListPeers handles GET /peers.
func (s *Server) ListPeers(w http.ResponseWriter, _ *http.Request) {
	peers := nonNil(s.svc.Query.Peers())
	writeOK(w, peers, map[string]int{"count": len(peers)})
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
