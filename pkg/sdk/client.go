package swarmkb

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// maxErrorBody bounds how much of a failed response is read.
const maxErrorBody = 64 << 10

// Client talks to one swarmkb node.
type Client struct {
	base   string
	apiKey string
	http   *http.Client
	obs    *observer
}

// envelope is the success body of every API call.
type envelope struct {
	Status string          `json:"status"`
	Data   json.RawMessage `json:"data"`
	Meta   json.RawMessage `json:"meta"`
}

// New creates a Client for the node at baseURL, e.g. "http://10.0.0.5:8080".
func New(baseURL string, opts ...Option) (*Client, error) {
	cfg := &clientConfig{context: DefaultContext, timeout: DefaultTimeout}
	for _, o := range opts {
		o.apply(cfg)
	}

	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("swarmkb: invalid base URL %q", baseURL)
	}
	if cfg.context == "" || strings.ContainsAny(cfg.context, "/ ") {
		return nil, fmt.Errorf("swarmkb: invalid context %q", cfg.context)
	}

	hc := cfg.httpClient
	if hc == nil {
		hc = &http.Client{Timeout: cfg.timeout}
	}
	obs, err := newObserver(u.Host, cfg.logger, cfg.metricsReg)
	if err != nil {
		return nil, err
	}
	return &Client{
		base:   u.String() + "/" + cfg.context,
		apiKey: cfg.apiKey,
		http:   hc,
		obs:    obs,
	}, nil
}

// BaseURL returns the prefix every request is sent to.
func (c *Client) BaseURL() string { return c.base }

// Health checks the node's components. A node reporting "error" answers 503,
// which is returned as a status rather than an error.
func (c *Client) Health(ctx context.Context) (hs HealthStatus, err error) {
	start := time.Now()
	defer func() { c.obs.observe("health", start, err) }()

	resp, err := c.send(ctx, http.MethodGet, "/health", nil)
	if err != nil {
		return HealthStatus{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusServiceUnavailable {
		return HealthStatus{}, decodeError(resp)
	}
	if err := json.NewDecoder(resp.Body).Decode(&hs); err != nil {
		return HealthStatus{}, fmt.Errorf("swarmkb: decode health: %w", err)
	}
	return hs, nil
}

// AgentStatus returns the node identity and its configured peers.
func (c *Client) AgentStatus(ctx context.Context) (st AgentStatus, err error) {
	start := time.Now()
	defer func() { c.obs.observe("agent_status", start, err) }()

	err = c.call(ctx, http.MethodGet, "/agent/status", nil, &st, nil)
	return st, err
}

// Peers returns the ids of the node's peers.
func (c *Client) Peers(ctx context.Context) (peers []string, err error) {
	start := time.Now()
	defer func() { c.obs.observe("peers", start, err) }()

	err = c.call(ctx, http.MethodGet, "/peers", nil, &peers, nil)
	return peers, err
}

// call sends a request and decodes the envelope's data and meta into out and meta.
// Either may be nil.
func (c *Client) call(ctx context.Context, method, path string, body, out, meta any) error {
	resp, err := c.send(ctx, method, path, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeError(resp)
	}

	var env envelope
	if err := jsonDecode(resp, &env); err != nil {
		return err
	}
	if out != nil && len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return fmt.Errorf("swarmkb: decode %s data: %w", path, err)
		}
	}
	if meta != nil && len(env.Meta) > 0 {
		if err := json.Unmarshal(env.Meta, meta); err != nil {
			return fmt.Errorf("swarmkb: decode %s meta: %w", path, err)
		}
	}
	return nil
}

func (c *Client) send(ctx context.Context, method, path string, body any) (*http.Response, error) {
	var rdr io.Reader = http.NoBody
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("swarmkb: encode %s: %w", path, err)
		}
		rdr = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base+path, rdr)
	if err != nil {
		return nil, fmt.Errorf("swarmkb: build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("swarmkb: %s %s: %w", method, path, err)
	}
	return resp, nil
}

func jsonDecode(resp *http.Response, v any) error {
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("swarmkb: decode %s: %w", resp.Request.URL.Path, err)
	}
	return nil
}

func decodeError(resp *http.Response) error {
	apiErr := &APIError{StatusCode: resp.StatusCode}
	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	if err != nil {
		return apiErr
	}
	if jerr := json.Unmarshal(raw, apiErr); jerr != nil || apiErr.Code == "" {
		apiErr.Message = strings.TrimSpace(string(raw))
	}
	return apiErr
}

// IsRetryable reports whether err is worth retrying against the same node.
func IsRetryable(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode >= 500
	}
	return err != nil && !errors.Is(err, context.Canceled)
}
