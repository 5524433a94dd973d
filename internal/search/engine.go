// Package search implements brute-force similarity search over stored
// embeddings: per-modality query vectors, dot-product scoring, threshold
// and top-k ranking, and a stable cross-modality merge.
package search

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/trentonhq/trenton/internal/config"
	"github.com/trentonhq/trenton/internal/deletion"
	"github.com/trentonhq/trenton/internal/embed"
	"github.com/trentonhq/trenton/internal/errors"
	"github.com/trentonhq/trenton/internal/media"
	"github.com/trentonhq/trenton/internal/metrics"
	"github.com/trentonhq/trenton/internal/store"
	"github.com/trentonhq/trenton/internal/vector"
)

// Kind is the type of query input.
type Kind string

const (
	// KindText queries with a free-text description.
	KindText Kind = "text"
	// KindAudio queries with an audio file path.
	KindAudio Kind = "audio"
	// KindVideo queries with a video file path.
	KindVideo Kind = "video"
)

// searchModalities is the fixed modality processing order. Merge stability
// depends on it: equal scores keep this order, then each modality's
// internal rank.
var searchModalities = []media.Modality{
	media.ModalityAudio,
	media.ModalityVideo,
	media.ModalityAudioVideo,
}

// Query is one search request.
type Query struct {
	// Value is free text for KindText, a local file path otherwise.
	Value string
	Kind  Kind
	// Modalities restricts the target search modalities (empty = all).
	Modalities []media.Modality
	// FolderIDs restricts results to these folders (empty = all).
	FolderIDs []int64
	// TopK caps the result count; 0 applies the configured default.
	TopK int
	// Threshold is the minimum similarity score.
	Threshold float64
}

// Result is one ranked hit.
type Result struct {
	File     store.File
	Score    float64
	Modality media.Modality
}

// Response is a completed search.
type Response struct {
	Results  []Result
	Total    int
	Elapsed  time.Duration
	Warnings []string
}

// Engine executes searches against the store and a shared provider handle.
type Engine struct {
	cfg      config.SearchConfig
	store    *store.Store
	provider *embed.Handle
	tracker  *deletion.Tracker
	logger   *slog.Logger
}

// NewEngine creates a search engine.
func NewEngine(cfg config.SearchConfig, st *store.Store, provider *embed.Handle, tracker *deletion.Tracker, logger *slog.Logger) *Engine {
	return &Engine{cfg: cfg, store: st, provider: provider, tracker: tracker, logger: logger}
}

// Search ranks stored files against the query. Deleted files remain in the
// results, flagged and accompanied by a one-shot warning, rather than being
// hidden.
func (e *Engine) Search(ctx context.Context, q Query) (*Response, error) {
	start := time.Now()
	metrics.SearchesTotal.WithLabelValues(string(q.Kind)).Inc()

	q, err := e.normalize(q)
	if err != nil {
		return nil, err
	}

	queryVectors, err := e.buildQueryVectors(ctx, q)
	if err != nil {
		return nil, err
	}
	if len(queryVectors) == 0 {
		return &Response{Results: []Result{}, Elapsed: time.Since(start)}, nil
	}

	merged, err := e.scanAndMerge(ctx, q, queryVectors, q.TopK)
	if err != nil {
		return nil, err
	}

	warnings, err := e.collectWarnings(ctx, merged)
	if err != nil {
		return nil, err
	}

	elapsed := time.Since(start)
	metrics.SearchDuration.Observe(elapsed.Seconds())
	return &Response{
		Results:  merged,
		Total:    len(merged),
		Elapsed:  elapsed,
		Warnings: warnings,
	}, nil
}

// FindSimilar ranks files similar to a reference file, using the
// reference's first stored embedding and excluding the reference itself.
func (e *Engine) FindSimilar(ctx context.Context, fileID int64, topK int, folderIDs []int64) (*Response, error) {
	start := time.Now()
	metrics.SearchesTotal.WithLabelValues("similar").Inc()

	file, err := e.store.GetFile(ctx, fileID)
	if err != nil {
		return nil, err
	}
	if file == nil {
		return nil, errors.NotFound(fmt.Sprintf("file %d not found", fileID))
	}
	embeddings, err := e.store.GetEmbeddingsByFile(ctx, fileID)
	if err != nil {
		return nil, err
	}
	if len(embeddings) == 0 {
		return nil, errors.New(errors.ErrCodeNoEmbedding,
			fmt.Sprintf("file %d has no stored embedding", fileID), nil)
	}
	ref := embeddings[0]
	refVec, err := vector.Decode(ref.Vector)
	if err != nil {
		return nil, err
	}

	if topK <= 0 {
		topK = e.cfg.DefaultTopK
	}
	if topK > e.cfg.MaxTopK {
		topK = e.cfg.MaxTopK
	}

	// k+1 capacity tolerates the reference matching itself.
	hits, err := e.scanModality(ctx, ref.Modality, refVec, folderIDs, 0, topK+1)
	if err != nil {
		return nil, err
	}
	results := make([]Result, 0, topK)
	for _, r := range hits {
		if r.File.ID == fileID {
			continue
		}
		results = append(results, r)
		if len(results) == topK {
			break
		}
	}

	warnings, err := e.collectWarnings(ctx, results)
	if err != nil {
		return nil, err
	}
	elapsed := time.Since(start)
	metrics.SearchDuration.Observe(elapsed.Seconds())
	return &Response{Results: results, Total: len(results), Elapsed: elapsed, Warnings: warnings}, nil
}

// normalize applies defaults and validates the request.
func (e *Engine) normalize(q Query) (Query, error) {
	if q.Value == "" {
		return q, errors.ValidationError("query value must not be empty", nil)
	}
	switch q.Kind {
	case KindText, KindAudio, KindVideo:
	default:
		return q, errors.ValidationError(fmt.Sprintf("unknown query kind %q", q.Kind), nil)
	}
	if q.TopK <= 0 {
		q.TopK = e.cfg.DefaultTopK
	}
	if q.TopK > e.cfg.MaxTopK {
		q.TopK = e.cfg.MaxTopK
	}
	if len(q.Modalities) == 0 {
		q.Modalities = searchModalities
	}
	for _, m := range q.Modalities {
		switch m {
		case media.ModalityAudio, media.ModalityVideo, media.ModalityAudioVideo:
		default:
			return q, errors.ValidationError(fmt.Sprintf("invalid search modality %q", m), nil)
		}
	}
	return q, nil
}

// buildQueryVectors computes one query vector per requested target
// modality. Text queries get a distinct vector per target. File queries
// get a single vector, reused across the targets the input kind can
// serve; incompatible targets are left out of the map. Targets whose
// provider call fails are dropped silently.
func (e *Engine) buildQueryVectors(ctx context.Context, q Query) (map[media.Modality][]float32, error) {
	provider, err := e.provider.Get(ctx)
	if err != nil {
		return nil, err
	}

	vectors := make(map[media.Modality][]float32, len(q.Modalities))
	switch q.Kind {
	case KindText:
		for _, target := range q.Modalities {
			vec, err := e.embedText(ctx, provider, q.Value, target)
			if err != nil || len(vec) == 0 {
				e.logger.Debug("no query vector for modality",
					"modality", target.String(), "error", err)
				continue
			}
			vectors[target] = vec
		}
	case KindAudio, KindVideo:
		compatible := map[media.Modality]bool{media.ModalityAudioVideo: true}
		embeddingType := embed.TypeAudio
		if q.Kind == KindVideo {
			embeddingType = embed.TypeVideo
		}
		compatible[media.Modality(embeddingType)] = true

		var shared []float32
		for _, target := range q.Modalities {
			if !compatible[target] {
				continue
			}
			if shared == nil {
				vec, err := e.embedFileQuery(ctx, provider, q.Value, embeddingType)
				if err != nil || len(vec) == 0 {
					e.logger.Debug("no query vector for file query", "error", err)
					break
				}
				shared = vec
			}
			vectors[target] = shared
		}
	}
	return vectors, nil
}

func (e *Engine) embedText(ctx context.Context, provider embed.Provider, text string, target media.Modality) ([]float32, error) {
	start := time.Now()
	vec, err := provider.EmbedText(ctx, text, target.String())
	status := "ok"
	if err != nil {
		status = "error"
	}
	metrics.EmbedRequestsTotal.WithLabelValues("text", status).Inc()
	metrics.EmbedDuration.Observe(time.Since(start).Seconds())
	return vec, err
}

func (e *Engine) embedFileQuery(ctx context.Context, provider embed.Provider, path, embeddingType string) ([]float32, error) {
	start := time.Now()
	vec, err := provider.EmbedFile(ctx, path, embeddingType)
	status := "ok"
	if err != nil {
		status = "error"
	}
	metrics.EmbedRequestsTotal.WithLabelValues("file", status).Inc()
	metrics.EmbedDuration.Observe(time.Since(start).Seconds())
	return vec, err
}

// scanAndMerge runs the per-modality scans concurrently and merges their
// top-k lists. The merge is a two-stage cap: each modality is capped
// before merging, so the concatenation is re-sorted (stably) and truncated
// rather than recomputed globally.
func (e *Engine) scanAndMerge(ctx context.Context, q Query, queryVectors map[media.Modality][]float32, topK int) ([]Result, error) {
	perModality := make([][]Result, len(searchModalities))

	g, gctx := errgroup.WithContext(ctx)
	for i, m := range searchModalities {
		vec, ok := queryVectors[m]
		if !ok {
			continue
		}
		i, m, vec := i, m, vec
		g.Go(func() error {
			hits, err := e.scanModality(gctx, m, vec, q.FolderIDs, q.Threshold, topK)
			if err != nil {
				return err
			}
			perModality[i] = hits
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var merged []Result
	for _, hits := range perModality {
		merged = append(merged, hits...)
	}
	sort.SliceStable(merged, func(a, b int) bool {
		return merged[a].Score > merged[b].Score
	})
	if len(merged) > topK {
		merged = merged[:topK]
	}
	if merged == nil {
		merged = []Result{}
	}
	return merged, nil
}

// scanModality scores every stored vector of one modality against the
// query vector and returns at most limit hits at or above the threshold,
// sorted by descending score.
func (e *Engine) scanModality(ctx context.Context, m media.Modality, queryVec []float32, folderIDs []int64, threshold float64, limit int) ([]Result, error) {
	candidates, err := e.store.ScanCandidates(ctx, store.CandidateFilter{
		Modality:       m,
		FolderIDs:      folderIDs,
		IncludeDeleted: true,
	})
	if err != nil {
		return nil, err
	}
	metrics.SearchCandidatesScanned.Observe(float64(len(candidates)))

	hits := make([]Result, 0, len(candidates))
	for _, c := range candidates {
		stored, err := vector.Decode(c.Vector)
		if err != nil {
			e.logger.Warn("undecodable stored vector", "file_id", c.File.ID, "error", err)
			continue
		}
		score := vector.Dot(queryVec, stored)
		if score < threshold {
			continue
		}
		hits = append(hits, Result{File: c.File, Score: score, Modality: m})
	}
	sort.SliceStable(hits, func(a, b int) bool {
		return hits[a].Score > hits[b].Score
	})
	if len(hits) > limit {
		hits = hits[:limit]
	}
	return hits, nil
}

// collectWarnings fires one-shot deletion notifications for deleted files
// in the result set.
func (e *Engine) collectWarnings(ctx context.Context, results []Result) ([]string, error) {
	var warnings []string
	for i := range results {
		msg, err := e.tracker.NotifyOnce(ctx, &results[i].File)
		if err != nil {
			return nil, err
		}
		if msg != "" {
			warnings = append(warnings, msg)
		}
	}
	return warnings, nil
}
