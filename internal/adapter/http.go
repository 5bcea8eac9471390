package adapter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"resty.dev/v3"

	"nodeflow/internal/domain"
)

// DefaultTimeout bounds one generation call when no timeout is configured
const DefaultTimeout = 2 * time.Minute

// HTTPConfig configures an HTTPGenerator
type HTTPConfig struct {
	// Endpoint is the backend base URL, e.g. http://localhost:9000
	Endpoint string
	Timeout  time.Duration
	APIKey   string
	// Types restricts the node types served; empty means every generative type
	Types []domain.NodeType
}

// HTTPGenerator forwards generation jobs to a remote backend as
// POST {endpoint}/v1/generate/{nodeType} with the Request as JSON body.
// The backend answers with a domain.Output or an error body
// {"code": "...", "message": "..."}.
type HTTPGenerator struct {
	client *resty.Client
	types  map[domain.NodeType]bool
}

var _ Generator = (*HTTPGenerator)(nil)

// NewHTTPGenerator creates a generator backed by cfg.Endpoint
func NewHTTPGenerator(cfg HTTPConfig) (*HTTPGenerator, error) {
	if cfg.Endpoint == "" {
		return nil, errors.New("generation endpoint is required")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	client := resty.New().
		SetBaseURL(cfg.Endpoint).
		SetTimeout(timeout).
		SetHeader("Accept", "application/json")
	if cfg.APIKey != "" {
		client.SetAuthToken(cfg.APIKey)
	}

	g := &HTTPGenerator{client: client}
	if len(cfg.Types) > 0 {
		g.types = make(map[domain.NodeType]bool, len(cfg.Types))
		for _, t := range cfg.Types {
			g.types[t] = true
		}
	}
	return g, nil
}

// Name returns the generator identifier
func (g *HTTPGenerator) Name() string { return "http" }

// Supports reports whether the backend is configured for t
func (g *HTTPGenerator) Supports(t domain.NodeType) bool {
	if !t.Generative() {
		return false
	}
	return g.types == nil || g.types[t]
}

// Generate posts the job and decodes the backend's answer
func (g *HTTPGenerator) Generate(ctx context.Context, req Request) (domain.Output, error) {
	var out domain.Output
	res, err := g.client.R().
		SetContext(ctx).
		SetPathParam("nodeType", string(req.NodeType)).
		SetBody(req).
		SetResult(&out).
		Post("/v1/generate/{nodeType}")
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return domain.Output{}, ctxErr
		}
		return domain.Output{}, fmt.Errorf("generate %s: %w", req.NodeType, err)
	}
	if res.IsError() {
		return domain.Output{}, decodeFailure(res.StatusCode(), res.String())
	}
	return out, nil
}

// Close releases the underlying HTTP client
func (g *HTTPGenerator) Close() error {
	return g.client.Close()
}

// decodeFailure turns an error response into a *Failure
func decodeFailure(status int, body string) error {
	var f Failure
	if err := json.Unmarshal([]byte(body), &f); err == nil && f.Message != "" {
		return &f
	}
	msg := http.StatusText(status)
	if body != "" {
		msg = body
	}
	return &Failure{Code: fmt.Sprintf("http_%d", status), Message: msg}
}
