package embed

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/trentonhq/trenton/internal/errors"
)

const (
	httpPoolSize       = 8
	httpConnectTimeout = 5 * time.Second
)

// HTTPConfig configures the HTTP embedding provider.
type HTTPConfig struct {
	// Endpoint is the model-server base URL, e.g. http://localhost:9870.
	Endpoint string
	// Model is the model identifier sent with each request.
	Model string
	// Dimensions is the expected vector size (0 = detect from the server).
	Dimensions int
	// Timeout bounds a single embedding request.
	Timeout time.Duration
	// SkipHealthCheck skips the startup probe (tests).
	SkipHealthCheck bool
}

// HTTPProvider talks to an external embedding model server over HTTP.
// File embeddings POST the file path to /v1/embed/file; the server is
// expected to share (or mount) the media filesystem. Text queries POST
// to /v1/embed/text.
type HTTPProvider struct {
	client    *http.Client
	transport *http.Transport
	cfg       HTTPConfig
	dims      int

	mu     sync.RWMutex
	closed bool
}

var _ Provider = (*HTTPProvider)(nil)

// NewHTTPProvider creates an HTTP provider and, unless skipped, probes the
// server for availability and vector dimensions.
func NewHTTPProvider(ctx context.Context, cfg HTTPConfig) (*HTTPProvider, error) {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}

	// No client-level timeout: per-request contexts carry the deadline so a
	// slow file embed does not inherit the short health-check budget.
	transport := &http.Transport{
		MaxIdleConns:        httpPoolSize,
		MaxIdleConnsPerHost: httpPoolSize,
		MaxConnsPerHost:     httpPoolSize * 2,
		IdleConnTimeout:     30 * time.Second,
	}
	p := &HTTPProvider{
		client:    &http.Client{Transport: transport},
		transport: transport,
		cfg:       cfg,
		dims:      cfg.Dimensions,
	}

	if !cfg.SkipHealthCheck {
		probeCtx, cancel := context.WithTimeout(ctx, cfg.Timeout)
		defer cancel()
		info, err := p.probe(probeCtx)
		if err != nil {
			transport.CloseIdleConnections()
			return nil, errors.ProviderError("embedding server unreachable", err).
				WithDetail("endpoint", cfg.Endpoint)
		}
		if p.dims == 0 {
			p.dims = info.Dimensions
		}
	}
	if p.dims == 0 {
		p.dims = DefaultDimensions
	}
	return p, nil
}

type serverInfo struct {
	Model      string `json:"model"`
	Dimensions int    `json:"dimensions"`
}

// probe checks the server's health endpoint and reads its reported model
// and dimensions.
func (p *HTTPProvider) probe(ctx context.Context) (*serverInfo, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.cfg.Endpoint+"/v1/health", nil)
	if err != nil {
		return nil, fmt.Errorf("create health request: %w", err)
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("health check: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("health check returned %d: %s", resp.StatusCode, body)
	}
	var info serverInfo
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return nil, fmt.Errorf("decode health response: %w", err)
	}
	return &info, nil
}

type embedFileRequest struct {
	Path          string `json:"path"`
	EmbeddingType string `json:"embedding_type"`
	Model         string `json:"model,omitempty"`
}

type embedTextRequest struct {
	Text           string `json:"text"`
	TargetModality string `json:"target_modality"`
	Model          string `json:"model,omitempty"`
}

type embedResponse struct {
	Embedding []float32 `json:"embedding"`
}

// EmbedFile requests a vector for the media file at path.
func (p *HTTPProvider) EmbedFile(ctx context.Context, path string, embeddingType string) ([]float32, error) {
	return p.post(ctx, "/v1/embed/file", embedFileRequest{
		Path:          path,
		EmbeddingType: embeddingType,
		Model:         p.cfg.Model,
	})
}

// EmbedText requests a query vector comparable to file vectors of the
// target type.
func (p *HTTPProvider) EmbedText(ctx context.Context, text string, targetType string) ([]float32, error) {
	return p.post(ctx, "/v1/embed/text", embedTextRequest{
		Text:           text,
		TargetModality: targetType,
		Model:          p.cfg.Model,
	})
}

func (p *HTTPProvider) post(ctx context.Context, route string, payload any) ([]float32, error) {
	p.mu.RLock()
	if p.closed {
		p.mu.RUnlock()
		return nil, errors.ProviderError("provider is closed", nil)
	}
	p.mu.RUnlock()

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}

	reqCtx, cancel := context.WithTimeout(ctx, p.cfg.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, p.cfg.Endpoint+route, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		if reqCtx.Err() == context.DeadlineExceeded {
			return nil, errors.New(errors.ErrCodeProviderTimeout, "embedding request timed out", err).
				WithDetail("route", route)
		}
		return nil, errors.ProviderError("embedding request failed", err).
			WithDetail("route", route)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, errors.ProviderError(
			fmt.Sprintf("embedding server returned %d: %s", resp.StatusCode, msg), nil).
			WithDetail("route", route)
	}

	var out embedResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, errors.ProviderError("decode embedding response", err)
	}
	if len(out.Embedding) == 0 {
		return nil, errors.New(errors.ErrCodeNoEmbedding, "server returned empty embedding", nil)
	}
	if p.dims != 0 && len(out.Embedding) != p.dims {
		return nil, errors.ProviderError(
			fmt.Sprintf("dimension mismatch: got %d, want %d", len(out.Embedding), p.dims), nil)
	}
	return out.Embedding, nil
}

// Dimensions returns the vector dimension.
func (p *HTTPProvider) Dimensions() int { return p.dims }

// Name returns the provider identifier.
func (p *HTTPProvider) Name() string {
	if p.cfg.Model != "" {
		return "http/" + p.cfg.Model
	}
	return "http"
}

// Available probes the server's health endpoint.
func (p *HTTPProvider) Available(ctx context.Context) bool {
	p.mu.RLock()
	if p.closed {
		p.mu.RUnlock()
		return false
	}
	p.mu.RUnlock()

	probeCtx, cancel := context.WithTimeout(ctx, httpConnectTimeout)
	defer cancel()
	_, err := p.probe(probeCtx)
	return err == nil
}

// Close shuts down idle connections.
func (p *HTTPProvider) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	p.transport.CloseIdleConnections()
	return nil
}
