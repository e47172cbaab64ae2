package peer

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/kailas-cloud/swarmkb/internal/config"
	"github.com/kailas-cloud/swarmkb/internal/domain"
	"github.com/kailas-cloud/swarmkb/internal/domain/criteria"
)

func newRemote(t *testing.T, h http.HandlerFunc) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return srv
}

func TestQuery_SendsCanonicalCriteria(t *testing.T) {
	var got map[string]any
	srv := newRemote(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/kb/peer/query" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer secret" {
			t.Errorf("auth = %q", r.Header.Get("Authorization"))
		}
		_ = json.NewDecoder(r.Body).Decode(&got)
		_, _ = w.Write([]byte(`{"status":"success","data":[{"_id":"d1","kind":"solar"}],"meta":{"node_id":"b","count":1}}`))
	})

	peers, err := FromConfig([]config.PeerConfig{{ID: "b", URL: srv.URL, APIKey: "secret"}}, "kb", time.Second, nil)
	if err != nil {
		t.Fatalf("FromConfig: %v", err)
	}
	pred, err := criteria.Compile(map[string]any{"kind": "solar"})
	if err != nil {
		t.Fatal(err)
	}
	docs, err := peers[0].Query(context.Background(), "assets", pred)
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(docs) != 1 || docs[0].ID() != "d1" {
		t.Errorf("docs = %v", docs)
	}
	if got["dstype"] != "assets" {
		t.Errorf("dstype = %v", got["dstype"])
	}
	// The remote recompiles what we send.
	raw, _ := json.Marshal(got["criteria"])
	var back criteria.Predicate
	if err := json.Unmarshal(raw, &back); err != nil {
		t.Fatalf("criteria not recompilable: %v (%s)", err, raw)
	}
	if back.String() != pred.String() {
		t.Errorf("criteria = %s, want %s", back, pred)
	}
}

func TestFindMetadata(t *testing.T) {
	srv := newRemote(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Query().Get("associated_id") {
		case "d1":
			_, _ = w.Write([]byte(`{"status":"success","data":{"id":"m1","associated_id":"d1"}}`))
		default:
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"code":"not_found","message":"not found"}`))
		}
	})
	p, err := New("b", srv.URL)
	if err != nil {
		t.Fatal(err)
	}

	rec, err := p.FindMetadata(context.Background(), "d1")
	if err != nil || rec.ID != "m1" {
		t.Fatalf("FindMetadata = %+v, %v", rec, err)
	}
	if _, err := p.FindMetadata(context.Background(), "d2"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestQuery_Unreachable(t *testing.T) {
	srv := newRemote(t, func(http.ResponseWriter, *http.Request) {})
	url := srv.URL
	srv.Close()

	p, err := New("gone", url)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := p.Query(context.Background(), "assets", criteria.MatchAll()); err == nil {
		t.Error("expected error for closed peer")
	}
}

func TestFromConfig(t *testing.T) {
	reg := prometheus.NewRegistry()
	peers, err := FromConfig([]config.PeerConfig{
		{ID: "b", URL: "http://b:8080"},
		{ID: "c", URL: "http://c:8080"},
	}, "swarmkb", time.Second, reg)
	if err != nil {
		t.Fatalf("FromConfig: %v", err)
	}
	if len(QueryPeers(peers)) != 2 || VerifierPeers(peers)[1].ID() != "c" {
		t.Errorf("peers = %v", peers)
	}

	if _, err := FromConfig([]config.PeerConfig{{URL: "http://x"}}, "swarmkb", time.Second, nil); err == nil {
		t.Error("missing id should fail")
	}
	if _, err := FromConfig([]config.PeerConfig{{ID: "x", URL: "::bad"}}, "swarmkb", time.Second, nil); err == nil {
		t.Error("bad url should fail")
	}
}
