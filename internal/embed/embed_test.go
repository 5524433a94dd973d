package embed

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trentonhq/trenton/internal/config"
	"github.com/trentonhq/trenton/internal/media"
)

func TestTypesFor(t *testing.T) {
	assert.Equal(t, []string{TypeAudio}, TypesFor(media.ModalityAudio))
	assert.Equal(t, []string{TypeVideo, TypeAudioVideo}, TypesFor(media.ModalityVideo))
	assert.Nil(t, TypesFor(media.ModalityAll))
}

func TestStaticEmbedTextDeterministic(t *testing.T) {
	p := NewStaticProvider()
	ctx := context.Background()

	a, err := p.EmbedText(ctx, "sunset over the ocean", TypeVideo)
	require.NoError(t, err)
	b, err := p.EmbedText(ctx, "sunset over the ocean", TypeVideo)
	require.NoError(t, err)

	assert.Equal(t, a, b)
	assert.Len(t, a, StaticDimensions)
}

func TestStaticEmbedTextTargetTypeChangesVector(t *testing.T) {
	p := NewStaticProvider()
	ctx := context.Background()

	audio, err := p.EmbedText(ctx, "rain sounds", TypeAudio)
	require.NoError(t, err)
	video, err := p.EmbedText(ctx, "rain sounds", TypeVideo)
	require.NoError(t, err)

	assert.NotEqual(t, audio, video)
}

func TestStaticEmbedTextEmptyReturnsZeroVector(t *testing.T) {
	p := NewStaticProvider()

	vec, err := p.EmbedText(context.Background(), "   ", TypeAudio)
	require.NoError(t, err)
	assert.Equal(t, make([]float32, StaticDimensions), vec)
}

func TestStaticEmbedFile(t *testing.T) {
	p := NewStaticProvider()
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "clip.mp4")
	require.NoError(t, os.WriteFile(path, []byte("fake video bytes"), 0o644))

	video, err := p.EmbedFile(ctx, path, TypeVideo)
	require.NoError(t, err)
	again, err := p.EmbedFile(ctx, path, TypeVideo)
	require.NoError(t, err)
	av, err := p.EmbedFile(ctx, path, TypeAudioVideo)
	require.NoError(t, err)

	assert.Equal(t, video, again)
	assert.NotEqual(t, video, av)
}

func TestStaticEmbedFileMissing(t *testing.T) {
	p := NewStaticProvider()

	_, err := p.EmbedFile(context.Background(), "/nonexistent/clip.mp4", TypeVideo)
	assert.Error(t, err)
}

func TestStaticClosedRejectsCalls(t *testing.T) {
	p := NewStaticProvider()
	require.NoError(t, p.Close())

	_, err := p.EmbedText(context.Background(), "query", TypeAudio)
	assert.Error(t, err)
	assert.False(t, p.Available(context.Background()))
}

func newEmbedServer(t *testing.T, calls *atomic.Int32) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v1/health":
			_ = json.NewEncoder(w).Encode(map[string]any{"model": "pe-av-large", "dimensions": 4})
		case "/v1/embed/text", "/v1/embed/file":
			if calls != nil {
				calls.Add(1)
			}
			_ = json.NewEncoder(w).Encode(map[string]any{"embedding": []float32{0.1, 0.2, 0.3, 0.4}})
		default:
			http.NotFound(w, r)
		}
	}))
}

func TestHTTPProviderProbeDetectsDimensions(t *testing.T) {
	srv := newEmbedServer(t, nil)
	defer srv.Close()

	p, err := NewHTTPProvider(context.Background(), HTTPConfig{Endpoint: srv.URL})
	require.NoError(t, err)
	defer func() { _ = p.Close() }()

	assert.Equal(t, 4, p.Dimensions())
	assert.True(t, p.Available(context.Background()))
}

func TestHTTPProviderEmbedText(t *testing.T) {
	srv := newEmbedServer(t, nil)
	defer srv.Close()

	p, err := NewHTTPProvider(context.Background(), HTTPConfig{Endpoint: srv.URL, Model: "pe-av-large"})
	require.NoError(t, err)
	defer func() { _ = p.Close() }()

	vec, err := p.EmbedText(context.Background(), "dog barking", TypeAudio)
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float32{0.1, 0.2, 0.3, 0.4}, vec, 1e-6)
}

func TestHTTPProviderDimensionMismatch(t *testing.T) {
	srv := newEmbedServer(t, nil)
	defer srv.Close()

	p, err := NewHTTPProvider(context.Background(), HTTPConfig{Endpoint: srv.URL, Dimensions: 16})
	require.NoError(t, err)
	defer func() { _ = p.Close() }()

	_, err = p.EmbedText(context.Background(), "dog barking", TypeAudio)
	assert.Error(t, err)
}

func TestHTTPProviderServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "model not loaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	p, err := NewHTTPProvider(context.Background(), HTTPConfig{Endpoint: srv.URL, SkipHealthCheck: true})
	require.NoError(t, err)
	defer func() { _ = p.Close() }()

	_, err = p.EmbedText(context.Background(), "dog barking", TypeAudio)
	assert.Error(t, err)
}

func TestHTTPProviderUnreachable(t *testing.T) {
	_, err := NewHTTPProvider(context.Background(), HTTPConfig{Endpoint: "http://127.0.0.1:1"})
	assert.Error(t, err)
}

func TestCachedProviderHitsSkipInner(t *testing.T) {
	var calls atomic.Int32
	srv := newEmbedServer(t, &calls)
	defer srv.Close()

	inner, err := NewHTTPProvider(context.Background(), HTTPConfig{Endpoint: srv.URL})
	require.NoError(t, err)
	cached := NewCachedProvider(inner, 8)
	defer func() { _ = cached.Close() }()
	ctx := context.Background()

	// Given two identical queries and one different one
	_, err = cached.EmbedText(ctx, "dog barking", TypeAudio)
	require.NoError(t, err)
	_, err = cached.EmbedText(ctx, "dog barking", TypeAudio)
	require.NoError(t, err)
	_, err = cached.EmbedText(ctx, "dog barking", TypeVideo)
	require.NoError(t, err)

	// Then only the distinct (query, target) pairs reach the server
	assert.Equal(t, int32(2), calls.Load())
}

func TestCachedProviderDoesNotCacheFiles(t *testing.T) {
	var calls atomic.Int32
	srv := newEmbedServer(t, &calls)
	defer srv.Close()

	inner, err := NewHTTPProvider(context.Background(), HTTPConfig{Endpoint: srv.URL})
	require.NoError(t, err)
	cached := NewCachedProvider(inner, 8)
	defer func() { _ = cached.Close() }()
	ctx := context.Background()

	_, err = cached.EmbedFile(ctx, "/media/a.mp3", TypeAudio)
	require.NoError(t, err)
	_, err = cached.EmbedFile(ctx, "/media/a.mp3", TypeAudio)
	require.NoError(t, err)

	assert.Equal(t, int32(2), calls.Load())
}

func TestFactoryStatic(t *testing.T) {
	logger := slog.New(slog.DiscardHandler)

	p, err := New(context.Background(), config.ProviderConfig{Kind: "static"}, logger)
	require.NoError(t, err)
	defer func() { _ = p.Close() }()

	assert.Equal(t, "static", p.Name())
	assert.Equal(t, StaticDimensions, p.Dimensions())
}

func TestFactoryUnknownKind(t *testing.T) {
	logger := slog.New(slog.DiscardHandler)

	_, err := New(context.Background(), config.ProviderConfig{Kind: "quantum"}, logger)
	assert.Error(t, err)
}

func TestHandleLazyInitAndStickyError(t *testing.T) {
	logger := slog.New(slog.DiscardHandler)

	// Given a handle pointed at an unreachable server
	h := NewHandle(config.ProviderConfig{Kind: "http", Endpoint: "http://127.0.0.1:1"}, logger)

	_, err := h.Get(context.Background())
	require.Error(t, err)

	// The failure is remembered, not retried
	_, err2 := h.Get(context.Background())
	assert.Equal(t, err, err2)
}

func TestHandleReturnsSameProvider(t *testing.T) {
	logger := slog.New(slog.DiscardHandler)
	h := NewHandle(config.ProviderConfig{Kind: "static"}, logger)

	a, err := h.Get(context.Background())
	require.NoError(t, err)
	b, err := h.Get(context.Background())
	require.NoError(t, err)

	assert.Same(t, a, b)
	require.NoError(t, h.Close())
}
