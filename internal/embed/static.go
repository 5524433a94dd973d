package embed

import (
	"bufio"
	"context"
	"fmt"
	"hash/fnv"
	"io"
	"os"
	"strings"
	"sync"
	"unicode"
)

// StaticProvider generates deterministic hash-based embeddings with no
// external dependencies. Vectors carry no real semantic signal; the
// provider exists for offline smoke-testing and development without a
// model server. Identical inputs always produce identical vectors.
type StaticProvider struct {
	mu     sync.RWMutex
	closed bool
}

var _ Provider = (*StaticProvider)(nil)

// NewStaticProvider creates a static provider.
func NewStaticProvider() *StaticProvider {
	return &StaticProvider{}
}

const (
	staticChunkSize  = 64 * 1024
	staticTokenNgram = 3
)

// EmbedFile hashes the file's content in fixed-size chunks into vector
// buckets. The embedding type perturbs the hash so a video file's "video"
// and "audio_video" vectors differ.
func (p *StaticProvider) EmbedFile(ctx context.Context, path string, embeddingType string) ([]float32, error) {
	if err := p.checkOpen(); err != nil {
		return nil, err
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open file for embedding: %w", err)
	}
	defer func() { _ = f.Close() }()

	vector := make([]float32, StaticDimensions)
	reader := bufio.NewReader(f)
	buf := make([]byte, staticChunkSize)
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		n, err := reader.Read(buf)
		if n > 0 {
			h := fnv.New64()
			_, _ = h.Write([]byte(embeddingType))
			_, _ = h.Write(buf[:n])
			sum := h.Sum64()
			vector[sum%uint64(StaticDimensions)] += 1
			// Second bucket keeps single-chunk files from collapsing to a
			// one-hot vector.
			vector[(sum>>32)%uint64(StaticDimensions)] += 0.5
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read file for embedding: %w", err)
		}
	}
	return normalize(vector), nil
}

// EmbedText hashes the query's tokens and character trigrams into vector
// buckets, salted with the target type for cross-modal asymmetry.
func (p *StaticProvider) EmbedText(ctx context.Context, text string, targetType string) ([]float32, error) {
	if err := p.checkOpen(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return make([]float32, StaticDimensions), nil
	}

	vector := make([]float32, StaticDimensions)
	for _, token := range tokenize(trimmed) {
		vector[hashBucket(targetType+"\x00"+token)] += 0.7
	}
	flat := flatten(trimmed)
	for i := 0; i+staticTokenNgram <= len(flat); i++ {
		vector[hashBucket(targetType+"\x00"+flat[i:i+staticTokenNgram])] += 0.3
	}
	return normalize(vector), nil
}

// Dimensions returns the vector dimension.
func (p *StaticProvider) Dimensions() int { return StaticDimensions }

// Name returns the provider identifier.
func (p *StaticProvider) Name() string { return "static" }

// Available reports readiness; the static provider is always ready until
// closed.
func (p *StaticProvider) Available(_ context.Context) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return !p.closed
}

// Close marks the provider unusable.
func (p *StaticProvider) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}

func (p *StaticProvider) checkOpen() error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return fmt.Errorf("provider is closed")
	}
	return nil
}

// tokenize lowercases and splits text on non-alphanumeric runs.
func tokenize(text string) []string {
	var tokens []string
	var current strings.Builder
	for _, r := range strings.ToLower(text) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			current.WriteRune(r)
			continue
		}
		if current.Len() > 0 {
			tokens = append(tokens, current.String())
			current.Reset()
		}
	}
	if current.Len() > 0 {
		tokens = append(tokens, current.String())
	}
	return tokens
}

// flatten strips text to lowercase alphanumerics for n-gram extraction.
func flatten(text string) string {
	var sb strings.Builder
	for _, r := range strings.ToLower(text) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			sb.WriteRune(r)
		}
	}
	return sb.String()
}

func hashBucket(s string) int {
	h := fnv.New64()
	_, _ = h.Write([]byte(s))
	return int(h.Sum64() % uint64(StaticDimensions))
}
