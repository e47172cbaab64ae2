// Package openai enriches metadata records through an OpenAI-compatible chat API.
package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/kailas-cloud/swarmkb/internal/domain/document"
	dommeta "github.com/kailas-cloud/swarmkb/internal/domain/metadata"
	"github.com/kailas-cloud/swarmkb/internal/metrics"
	"github.com/kailas-cloud/swarmkb/internal/usecase/enrichment"
)

// ExtractionLLM names the LLM-assisted extraction method.
const ExtractionLLM = "llm"

// DefaultMaxPromptBytes caps the document excerpt sent to the model.
const DefaultMaxPromptBytes = 8 << 10

const systemPrompt = `You describe catalog documents. Reply with a JSON object with keys ` +
	`"description" (one sentence), "keywords" (up to 10 lowercase strings), ` +
	`"category" (one word) and "data_domain" (one word). Do not add other keys.`

// ProcessingLLMSkipped marks a record that kept its rule-derived fields because
// the token budget was exhausted.
const ProcessingLLMSkipped = "llm_skipped"

// Budget gates LLM calls by token spend per source store.
type Budget interface {
	Check(ctx context.Context, store string) error
	Record(store string, usage enrichment.TokenUsage)
}

// Extractor fills the descriptive fields of a rule-derived record with a
// chat completion. Provider failures fall back to the base record.
type Extractor struct {
	base     enrichment.Extractor
	client   *openai.Client
	model    string
	user     string
	maxBytes int
	budget   Budget
	logger   *zap.Logger
}

// Config holds the LLM provider settings.
type Config struct {
	APIKey         string
	BaseURL        string
	Model          string
	User           string
	MaxPromptBytes int
	Budget         Budget
	Logger         *zap.Logger
}

// NewExtractor wraps base. A nil base uses enrichment.RuleExtractor.
func NewExtractor(base enrichment.Extractor, cfg *Config) *Extractor {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	if base == nil {
		base = enrichment.RuleExtractor{}
	}
	maxBytes := cfg.MaxPromptBytes
	if maxBytes <= 0 {
		maxBytes = DefaultMaxPromptBytes
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Extractor{
		base:     base,
		client:   openai.NewClientWithConfig(clientCfg),
		model:    cfg.Model,
		user:     cfg.User,
		maxBytes: maxBytes,
		budget:   cfg.Budget,
		logger:   logger,
	}
}

// llmFields is the JSON object the model is asked to return.
type llmFields struct {
	Description string   `json:"description"`
	Keywords    []string `json:"keywords"`
	Category    string   `json:"category"`
	DataDomain  string   `json:"data_domain"`
}

// Extract implements enrichment.Extractor.
func (e *Extractor) Extract(ctx context.Context, store string, doc document.Document) (dommeta.Record, error) {
	rec, err := e.base.Extract(ctx, store, doc)
	if err != nil {
		return dommeta.Record{}, err
	}

	if e.budget != nil {
		if err := e.budget.Check(ctx, store); err != nil {
			metrics.LLMRequestsTotal.WithLabelValues(e.model, "budget_exceeded").Inc()
			e.logger.Debug("llm budget exhausted, keeping rule-based record",
				zap.String("associated_id", doc.ID()), zap.Error(err))
			rec.ProcessingStatus = ProcessingLLMSkipped
			rec.ErrorMessage = err.Error()
			return rec, nil
		}
	}

	fields, err := e.complete(ctx, store, doc)
	if err != nil {
		if ctx.Err() != nil {
			return dommeta.Record{}, ctx.Err()
		}
		e.logger.Warn("llm extraction failed, keeping rule-based record",
			zap.String("associated_id", doc.ID()), zap.Error(err))
		return rec, nil
	}

	if fields.Description != "" && rec.Description == "" {
		rec.Description = strings.TrimSpace(fields.Description)
	}
	rec.Keywords = mergeKeywords(rec.Keywords, fields.Keywords)
	if rec.Category == "" {
		rec.Category = fields.Category
	}
	if rec.DataDomain == "" {
		rec.DataDomain = fields.DataDomain
	}
	rec.ExtractionMethod = ExtractionLLM
	return rec, nil
}

func (e *Extractor) complete(ctx context.Context, store string, doc document.Document) (llmFields, error) {
	body, err := json.Marshal(doc.Fields())
	if err != nil {
		return llmFields{}, fmt.Errorf("encode document: %w", err)
	}
	if len(body) > e.maxBytes {
		body = body[:e.maxBytes]
	}

	req := openai.ChatCompletionRequest{
		Model: e.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: string(body)},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
		User: e.user,
	}

	start := time.Now()
	resp, err := e.client.CreateChatCompletion(ctx, req)
	duration := time.Since(start)
	if err != nil {
		metrics.LLMRequestsTotal.WithLabelValues(e.model, "error").Inc()
		return llmFields{}, parseAPIError(err)
	}
	metrics.LLMRequestDuration.WithLabelValues(e.model).Observe(duration.Seconds())
	if resp.Usage.TotalTokens > 0 {
		metrics.LLMTokensTotal.WithLabelValues(e.model, "prompt").Add(float64(resp.Usage.PromptTokens))
		metrics.LLMTokensTotal.WithLabelValues(e.model, "completion").Add(float64(resp.Usage.CompletionTokens))
		if e.budget != nil {
			e.budget.Record(store, enrichment.TokenUsage{
				Prompt:     int64(resp.Usage.PromptTokens),
				Completion: int64(resp.Usage.CompletionTokens),
			})
		}
	}

	if len(resp.Choices) == 0 {
		metrics.LLMRequestsTotal.WithLabelValues(e.model, "invalid_response").Inc()
		return llmFields{}, errors.New("empty completion")
	}
	var out llmFields
	if err := json.Unmarshal([]byte(resp.Choices[0].Message.Content), &out); err != nil {
		metrics.LLMRequestsTotal.WithLabelValues(e.model, "invalid_response").Inc()
		return llmFields{}, fmt.Errorf("decode completion: %w", err)
	}
	metrics.LLMRequestsTotal.WithLabelValues(e.model, "success").Inc()
	return out, nil
}

// mergeKeywords appends normalized model keywords not already present.
func mergeKeywords(have, extra []string) []string {
	seen := make(map[string]bool, len(have)+len(extra))
	for _, k := range have {
		seen[k] = true
	}
	for _, k := range extra {
		k = strings.ToLower(strings.TrimSpace(k))
		if k == "" || seen[k] {
			continue
		}
		seen[k] = true
		have = append(have, k)
	}
	return have
}

// parseAPIError extracts a human-readable error from the API response.
func parseAPIError(err error) error {
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		if detail := extractDetail(reqErr.Body); detail != "" {
			return fmt.Errorf("llm API error %d: %s", reqErr.HTTPStatusCode, detail)
		}
		return fmt.Errorf("llm API error %d: %s", reqErr.HTTPStatusCode, string(reqErr.Body))
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return fmt.Errorf("llm API error %d: %s", apiErr.HTTPStatusCode, apiErr.Message)
	}
	return fmt.Errorf("llm request failed: %w", err)
}

// extractDetail extracts the "detail" field from a JSON error body.
func extractDetail(body []byte) string {
	var parsed struct {
		Detail string `json:"detail"`
	}
	if json.Unmarshal(body, &parsed) == nil && parsed.Detail != "" {
		return parsed.Detail
	}
	return ""
}
