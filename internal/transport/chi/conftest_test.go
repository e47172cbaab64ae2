package chi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/swarmkb/internal/domain/batch"
	"github.com/kailas-cloud/swarmkb/internal/domain/criteria"
	"github.com/kailas-cloud/swarmkb/internal/domain/document"
	dommeta "github.com/kailas-cloud/swarmkb/internal/domain/metadata"
	domquery "github.com/kailas-cloud/swarmkb/internal/domain/query"
	"github.com/kailas-cloud/swarmkb/internal/domain/replication"
	"github.com/kailas-cloud/swarmkb/internal/domain/upload"
	healthuc "github.com/kailas-cloud/swarmkb/internal/usecase/health"
	"github.com/kailas-cloud/swarmkb/internal/usecase/verifier"
)

// --- mock catalog ---

type mockCatalog struct {
	putResults []batch.Result
	putErr     error
	docs       []document.Document
	getErr     error
	updated    int
	deleted    int
	mutateErr  error
	uploadRes  upload.Result
	uploadErr  error

	lastStore  string
	lastPred   criteria.Predicate
	lastData   map[string]any
	lastPut    []map[string]any
	lastUpload upload.Request
}

func (m *mockCatalog) Put(_ context.Context, store string, raws []map[string]any) ([]batch.Result, error) {
	m.lastStore, m.lastPut = store, raws
	return m.putResults, m.putErr
}

func (m *mockCatalog) Get(_ context.Context, store string, p criteria.Predicate) ([]document.Document, error) {
	m.lastStore, m.lastPred = store, p
	return m.docs, m.getErr
}

func (m *mockCatalog) Update(_ context.Context, store string, p criteria.Predicate, data map[string]any) (int, error) {
	m.lastStore, m.lastPred, m.lastData = store, p, data
	return m.updated, m.mutateErr
}

func (m *mockCatalog) Delete(_ context.Context, store string, p criteria.Predicate) (int, error) {
	m.lastStore, m.lastPred = store, p
	return m.deleted, m.mutateErr
}

func (m *mockCatalog) Upload(_ context.Context, req upload.Request) (upload.Result, error) {
	m.lastUpload = req
	return m.uploadRes, m.uploadErr
}

// --- mock querier ---

type mockQuerier struct {
	res      domquery.Result
	err      error
	peers    []string
	lastOpts domquery.Options
}

func (m *mockQuerier) Query(_ context.Context, _ string, _ criteria.Predicate, opts domquery.Options) (domquery.Result, error) {
	m.lastOpts = opts
	return m.res, m.err
}

func (m *mockQuerier) Peers() []string { return m.peers }

// --- mock metadata ---

type mockMetadata struct {
	rec        dommeta.Record
	outcomes   map[string]dommeta.Outcome
	err        error
	lastID     string
	lastAssoc  string
	lastFields map[string]any
}

func (m *mockMetadata) GetMetadata(_ context.Context, id string) (dommeta.Record, error) {
	m.lastID = id
	return m.rec, m.err
}

func (m *mockMetadata) FindByAssociatedID(_ context.Context, aid string) (dommeta.Record, error) {
	m.lastAssoc = aid
	return m.rec, m.err
}

func (m *mockMetadata) Outcome(aid string) (dommeta.Outcome, bool) {
	out, ok := m.outcomes[aid]
	return out, ok
}

func (m *mockMetadata) UpdateFields(_ context.Context, id string, fields map[string]any) (dommeta.Record, error) {
	m.lastID, m.lastFields = id, fields
	return m.rec, m.err
}

// --- mock sql ---

type mockSQL struct {
	rows     []map[string]any
	err      error
	lastStmt string
}

func (m *mockSQL) RunSQL(_ context.Context, stmt string) ([]map[string]any, error) {
	m.lastStmt = stmt
	return m.rows, m.err
}

// --- mock verifier ---

type mockVerifier struct {
	report    replication.Report
	schema    replication.SchemaReport
	schemaErr error
	lastPeers int
}

func (m *mockVerifier) CheckReplication(_ context.Context, aid string, peers []verifier.Peer) replication.Report {
	m.lastPeers = len(peers)
	r := m.report
	r.AssociatedID = aid
	return r
}

func (m *mockVerifier) VerifySchema(_ context.Context, _ []string) (replication.SchemaReport, error) {
	return m.schema, m.schemaErr
}

// --- mock health ---

type mockHealth struct {
	report healthuc.Report
}

func (m *mockHealth) Check(context.Context) healthuc.Report { return m.report }

type mockDirty struct{ n int }

func (m mockDirty) Dirty() int { return m.n }

// --- fixture ---

type fixture struct {
	catalog  *mockCatalog
	query    *mockQuerier
	metadata *mockMetadata
	sql      *mockSQL
	verifier *mockVerifier
	health   *mockHealth
	handler  http.Handler
}

func newFixture(t *testing.T, apiKeys ...string) *fixture {
	t.Helper()
	f := &fixture{
		catalog:  &mockCatalog{},
		query:    &mockQuerier{},
		metadata: &mockMetadata{},
		sql:      &mockSQL{},
		verifier: &mockVerifier{},
		health:   &mockHealth{report: healthuc.Report{Status: healthuc.Healthy, Checks: map[string]healthuc.CheckResult{}}},
	}
	srv := NewServer(Services{
		Catalog:    f.catalog,
		Query:      f.query,
		Metadata:   f.metadata,
		SQL:        f.sql,
		Verifier:   f.verifier,
		Replicas:   []verifier.Peer{verifier.LocalPeer{NodeID: "node-a"}},
		Health:     f.health,
		Enrichment: mockDirty{n: 2},
	}, "node-a", zap.NewNop())
	f.handler = srv.Routes("swarmkb", apiKeys)
	return f
}

func (f *fixture) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if s, ok := body.(string); ok {
			buf.WriteString(s)
		} else if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	f.handler.ServeHTTP(rr, req)
	return rr
}

type envelope struct {
	Status string          `json:"status"`
	Data   json.RawMessage `json:"data"`
	Meta   json.RawMessage `json:"meta"`
}

func decodeEnvelope(t *testing.T, rr *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	if err := json.NewDecoder(rr.Body).Decode(&env); err != nil {
		t.Fatalf("decode envelope: %v (body=%s)", err, rr.Body.String())
	}
	return env
}

func decodeErr(t *testing.T, rr *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var e ErrorResponse
	if err := json.NewDecoder(rr.Body).Decode(&e); err != nil {
		t.Fatalf("decode error: %v", err)
	}
	return e
}

func testDoc(t *testing.T, id string, fields map[string]any) document.Document {
	t.Helper()
	d, err := document.New(id, time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC), fields)
	if err != nil {
		t.Fatalf("document.New: %v", err)
	}
	return d
}
