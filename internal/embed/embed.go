// Package embed defines the embedding provider abstraction and its
// implementations: an HTTP client for an external model server and a
// deterministic hash-based provider for offline use and tests.
package embed

import (
	"context"
	"math"
	"time"

	"github.com/trentonhq/trenton/internal/media"
)

const (
	// DefaultTimeout bounds a single embedding request when the config
	// leaves it unset.
	DefaultTimeout = 60 * time.Second

	// DefaultDimensions is assumed when the server does not report one.
	DefaultDimensions = 512

	// StaticDimensions is the vector size of the hash-based provider.
	StaticDimensions = 256
)

// EmbeddingType names the semantic channel a vector was produced for.
// Audio files get one "audio" embedding; video files get a "video" and an
// "audio_video" embedding.
const (
	TypeAudio      = "audio"
	TypeVideo      = "video"
	TypeAudioVideo = "audio_video"
)

// TypesFor returns the embedding types produced for a file modality.
func TypesFor(m media.Modality) []string {
	switch m {
	case media.ModalityAudio:
		return []string{TypeAudio}
	case media.ModalityVideo:
		return []string{TypeVideo, TypeAudioVideo}
	}
	return nil
}

// Provider generates embedding vectors for media files and text queries.
// Implementations are safe for concurrent use.
type Provider interface {
	// EmbedFile embeds the media file at path for the given embedding type.
	EmbedFile(ctx context.Context, path string, embeddingType string) ([]float32, error)

	// EmbedText embeds a text query against the given target modality
	// space, so the result is comparable to file vectors of that type.
	EmbedText(ctx context.Context, text string, targetType string) ([]float32, error)

	// Dimensions returns the vector dimension.
	Dimensions() int

	// Name returns the provider identifier for logging and stats.
	Name() string

	// Available reports whether the provider is ready to serve requests.
	Available(ctx context.Context) bool

	// Close releases resources.
	Close() error
}

// normalize scales v to unit length. Zero vectors pass through unchanged.
func normalize(v []float32) []float32 {
	var sumSquares float64
	for _, val := range v {
		sumSquares += float64(val) * float64(val)
	}
	magnitude := math.Sqrt(sumSquares)
	if magnitude == 0 {
		return v
	}
	out := make([]float32, len(v))
	for i, val := range v {
		out[i] = float32(float64(val) / magnitude)
	}
	return out
}
