package openai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/swarmkb/internal/domain/document"
	"github.com/kailas-cloud/swarmkb/internal/metrics"
	"github.com/kailas-cloud/swarmkb/internal/usecase/enrichment"
)

func TestMain(m *testing.M) {
	metrics.RegisterCatalogMetrics()
	os.Exit(m.Run())
}

// chatResponse mirrors the OpenAI-compatible chat completion response.
type chatResponse struct {
	ID      string `json:"id"`
	Object  string `json:"object"`
	Model   string `json:"model"`
	Choices []struct {
		Index   int `json:"index"`
		Message struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
}

func chatServer(t *testing.T, content string, status int) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer test-key" {
			t.Errorf("unexpected auth header: %s", r.Header.Get("Authorization"))
		}
		var req map[string]any
		_ = json.NewDecoder(r.Body).Decode(&req)
		if req["model"] != "test-model" {
			t.Errorf("model = %v", req["model"])
		}

		w.Header().Set("Content-Type", "application/json")
		if status != http.StatusOK {
			w.WriteHeader(status)
			_, _ = w.Write([]byte(`{"detail":"quota exceeded"}`))
			return
		}
		resp := chatResponse{ID: "c1", Object: "chat.completion", Model: "test-model"}
		resp.Choices = make([]struct {
			Index   int `json:"index"`
			Message struct {
				Role    string `json:"role"`
				Content string `json:"content"`
			} `json:"message"`
			FinishReason string `json:"finish_reason"`
		}, 1)
		resp.Choices[0].Message.Role = "assistant"
		resp.Choices[0].Message.Content = content
		resp.Choices[0].FinishReason = "stop"
		resp.Usage.PromptTokens = 40
		resp.Usage.CompletionTokens = 12
		resp.Usage.TotalTokens = 52
		_ = json.NewEncoder(w).Encode(resp)
	}))
	t.Cleanup(server.Close)
	return server
}

func newTestExtractor(url string) *Extractor {
	return NewExtractor(nil, &Config{
		APIKey:  "test-key",
		BaseURL: url,
		Model:   "test-model",
		Logger:  zap.NewNop(),
	})
}

func testDoc(t *testing.T) document.Document {
	t.Helper()
	d, err := document.New("d1", time.Now(), map[string]any{"name": "pump", "tags": []any{"water"}})
	if err != nil {
		t.Fatal(err)
	}
	return d
}

func TestExtract_FillsDescriptiveFields(t *testing.T) {
	server := chatServer(t,
		`{"description":"A water pump service.","keywords":["Pump"," hydraulics ","pump"],"category":"service","data_domain":"utilities"}`,
		http.StatusOK)

	rec, err := newTestExtractor(server.URL).Extract(context.Background(), "assets", testDoc(t))
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}
	if rec.Description != "A water pump service." {
		t.Errorf("description = %q", rec.Description)
	}
	if rec.Category != "service" || rec.DataDomain != "utilities" {
		t.Errorf("category=%q domain=%q", rec.Category, rec.DataDomain)
	}
	if rec.ExtractionMethod != ExtractionLLM {
		t.Errorf("method = %q", rec.ExtractionMethod)
	}
	if rec.Name != "pump" || rec.StorageLocation != "assets/d1" {
		t.Errorf("rule fields lost: %+v", rec)
	}
	count := map[string]int{}
	for _, k := range rec.Keywords {
		count[k]++
	}
	if count["pump"] != 1 || count["hydraulics"] != 1 {
		t.Errorf("keywords = %v", rec.Keywords)
	}
}

func TestExtract_ProviderErrorFallsBack(t *testing.T) {
	server := chatServer(t, "", http.StatusTooManyRequests)

	rec, err := newTestExtractor(server.URL).Extract(context.Background(), "assets", testDoc(t))
	if err != nil {
		t.Fatalf("Extract should fall back, got %v", err)
	}
	if rec.ExtractionMethod != enrichment.ExtractionRules {
		t.Errorf("method = %q, want rules", rec.ExtractionMethod)
	}
	if rec.ProcessingStatus != ProcessingLLMSkipped || !strings.Contains(rec.ErrorMessage, "store assets") {
		t.Errorf("skip not recorded: status=%q error=%q", rec.ProcessingStatus, rec.ErrorMessage)
	}
}

func TestExtract_InvalidJSONFallsBack(t *testing.T) {
	server := chatServer(t, "not json", http.StatusOK)

	rec, err := newTestExtractor(server.URL).Extract(context.Background(), "assets", testDoc(t))
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if rec.ExtractionMethod != enrichment.ExtractionRules || rec.Description != "" {
		t.Errorf("record = %+v", rec)
	}
}

func TestExtract_RecordsBudget(t *testing.T) {
	server := chatServer(t, `{"description":"d"}`, http.StatusOK)
	budget := enrichment.NewExtractionBudget("test-model", enrichment.BudgetLimits{Daily: 1000}, zap.NewNop())
	ex := NewExtractor(nil, &Config{
		APIKey: "test-key", BaseURL: server.URL, Model: "test-model", Budget: budget,
	})

	if _, err := ex.Extract(context.Background(), "assets", testDoc(t)); err != nil {
		t.Fatalf("Extract: %v", err)
	}
	used := budget.Used(context.Background(), "assets")
	if used[enrichment.ScopeDaily] != 52 || used[enrichment.ScopeStoreDaily] != 52 {
		t.Errorf("used = %v, want 52 per scope", used)
	}
	if other := budget.Used(context.Background(), "other"); other[enrichment.ScopeStoreDaily] != 0 {
		t.Errorf("another store was charged: %v", other)
	}
}

func TestExtract_BudgetExhaustedSkipsModel(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		t.Error("model called with exhausted budget")
		w.WriteHeader(http.StatusInternalServerError)
	}))
	t.Cleanup(server.Close)

	budget := enrichment.NewExtractionBudget("test-model", enrichment.BudgetLimits{
		StoreDaily: 10, Action: enrichment.BudgetActionReject,
	}, zap.NewNop())
	budget.Record("assets", enrichment.TokenUsage{Prompt: 8, Completion: 2})
	ex := NewExtractor(nil, &Config{
		APIKey: "test-key", BaseURL: server.URL, Model: "test-model", Budget: budget,
	})

	rec, err := ex.Extract(context.Background(), "assets", testDoc(t))
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if rec.ExtractionMethod != enrichment.ExtractionRules {
		t.Errorf("method = %q, want rules", rec.ExtractionMethod)
	}
	if rec.ProcessingStatus != ProcessingLLMSkipped || !strings.Contains(rec.ErrorMessage, "store assets") {
		t.Errorf("skip not recorded: status=%q error=%q", rec.ProcessingStatus, rec.ErrorMessage)
	}
}

func TestExtract_CancelledContext(t *testing.T) {
	server := chatServer(t, `{}`, http.StatusOK)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := newTestExtractor(server.URL).Extract(ctx, "assets", testDoc(t)); err == nil {
		t.Error("expected context error")
	}
}

func TestParseAPIError_Detail(t *testing.T) {
	if got := extractDetail([]byte(`{"detail":"bad model"}`)); got != "bad model" {
		t.Errorf("detail = %q", got)
	}
	if got := extractDetail([]byte(`oops`)); got != "" {
		t.Errorf("detail = %q", got)
	}
}

func TestMergeKeywords(t *testing.T) {
	got := mergeKeywords([]string{"a"}, []string{"A", "b", "", "b"})
	if len(got) != 2 || got[1] != "b" {
		t.Errorf("got %v", got)
	}
}
