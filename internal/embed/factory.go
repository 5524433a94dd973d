package embed

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/trentonhq/trenton/internal/config"
)

// New creates a provider from config and wraps it with the query cache.
func New(ctx context.Context, cfg config.ProviderConfig, logger *slog.Logger) (Provider, error) {
	var provider Provider
	switch cfg.Kind {
	case "http":
		p, err := NewHTTPProvider(ctx, HTTPConfig{
			Endpoint:   cfg.Endpoint,
			Model:      cfg.Model,
			Dimensions: cfg.Dimensions,
			Timeout:    cfg.Timeout.Std(),
		})
		if err != nil {
			return nil, err
		}
		provider = p
	case "static":
		provider = NewStaticProvider()
	default:
		return nil, fmt.Errorf("unknown provider kind %q", cfg.Kind)
	}

	logger.Info("embedding provider ready",
		"provider", provider.Name(),
		"dimensions", provider.Dimensions())

	return NewCachedProvider(provider, cfg.CacheSize), nil
}

// Handle lazily initializes a shared provider on first use. Construction
// can involve a network probe of the model server, so it is deferred off
// the startup path; concurrent first callers share one initialization.
type Handle struct {
	cfg    config.ProviderConfig
	logger *slog.Logger

	mu       sync.Mutex
	provider Provider
	initErr  error
	done     bool
}

// NewHandle creates an uninitialized handle.
func NewHandle(cfg config.ProviderConfig, logger *slog.Logger) *Handle {
	return &Handle{cfg: cfg, logger: logger}
}

// HandleFor wraps an already-constructed provider in an initialized handle.
func HandleFor(p Provider) *Handle {
	return &Handle{provider: p, done: true}
}

// Get returns the shared provider, initializing it on first call. A failed
// initialization is sticky: subsequent calls return the same error rather
// than hammering an unreachable server.
func (h *Handle) Get(ctx context.Context) (Provider, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.done {
		h.provider, h.initErr = New(ctx, h.cfg, h.logger)
		h.done = true
	}
	return h.provider, h.initErr
}

// Close closes the provider if it was initialized.
func (h *Handle) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.provider == nil {
		return nil
	}
	err := h.provider.Close()
	h.provider = nil
	h.done = false
	return err
}
