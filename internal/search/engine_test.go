package search

import (
	"context"
	"fmt"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trentonhq/trenton/internal/config"
	"github.com/trentonhq/trenton/internal/deletion"
	"github.com/trentonhq/trenton/internal/embed"
	"github.com/trentonhq/trenton/internal/media"
	"github.com/trentonhq/trenton/internal/store"
	"github.com/trentonhq/trenton/internal/vector"
)

// fakeProvider returns a fixed vector per target modality so dot products
// against seeded store vectors are known exactly.
type fakeProvider struct {
	text map[string][]float32
	file map[string][]float32
}

func (f *fakeProvider) EmbedText(_ context.Context, _ string, targetType string) ([]float32, error) {
	vec, ok := f.text[targetType]
	if !ok {
		return nil, fmt.Errorf("no alignment for %s", targetType)
	}
	return vec, nil
}

func (f *fakeProvider) EmbedFile(_ context.Context, _ string, embeddingType string) ([]float32, error) {
	vec, ok := f.file[embeddingType]
	if !ok {
		return nil, fmt.Errorf("no alignment for %s", embeddingType)
	}
	return vec, nil
}

func (f *fakeProvider) Dimensions() int                  { return 2 }
func (f *fakeProvider) Name() string                     { return "fake" }
func (f *fakeProvider) Available(_ context.Context) bool { return true }
func (f *fakeProvider) Close() error                     { return nil }

func defaultSearchConfig() config.SearchConfig {
	return config.SearchConfig{DefaultTopK: 10, MaxTopK: 100, DefaultThreshold: 0}
}

func newTestEngine(t *testing.T, provider embed.Provider) (*Engine, *store.Store) {
	t.Helper()
	logger := slog.New(slog.DiscardHandler)
	st, err := store.Open(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	tracker := deletion.NewTracker(st, logger)
	engine := NewEngine(defaultSearchConfig(), st, embed.HandleFor(provider), tracker, logger)
	return engine, st
}

// seedFile inserts a file with one embedding of the given type and vector.
func seedFile(t *testing.T, st *store.Store, folderID int64, path string, modality media.Modality, embeddingType string, vec []float32) *store.File {
	t.Helper()
	ctx := context.Background()
	f, err := st.CreateFile(ctx, folderID, media.FileInfo{
		Path:     path,
		Filename: path,
		Modality: modality,
		Size:     100,
		MimeType: "application/octet-stream",
	})
	require.NoError(t, err)
	require.NoError(t, st.UpsertEmbedding(ctx, f.ID, media.Modality(embeddingType), embeddingType, vector.Encode(vec)))
	return f
}

func mustFolder(t *testing.T, st *store.Store, path string) *store.Folder {
	t.Helper()
	folder, err := st.CreateFolder(context.Background(), path, media.ModalityAll)
	require.NoError(t, err)
	return folder
}

func TestSearchRanksByDotProductDescending(t *testing.T) {
	provider := &fakeProvider{text: map[string][]float32{
		embed.TypeAudio: {1, 0},
	}}
	engine, st := newTestEngine(t, provider)
	folder := mustFolder(t, st, "/media")

	// Scores: a=0.9, b=0.5, c=0.1
	seedFile(t, st, folder.ID, "/media/b.mp3", media.ModalityAudio, embed.TypeAudio, []float32{0.5, 1})
	seedFile(t, st, folder.ID, "/media/a.mp3", media.ModalityAudio, embed.TypeAudio, []float32{0.9, 1})
	seedFile(t, st, folder.ID, "/media/c.mp3", media.ModalityAudio, embed.TypeAudio, []float32{0.1, 1})

	resp, err := engine.Search(context.Background(), Query{
		Value: "guitar", Kind: KindText, Modalities: []media.Modality{media.ModalityAudio},
	})
	require.NoError(t, err)

	require.Len(t, resp.Results, 3)
	assert.Equal(t, "/media/a.mp3", resp.Results[0].File.Path)
	assert.InDelta(t, 0.9, resp.Results[0].Score, 1e-6)
	assert.Equal(t, "/media/b.mp3", resp.Results[1].File.Path)
	assert.Equal(t, "/media/c.mp3", resp.Results[2].File.Path)
	assert.Equal(t, 3, resp.Total)
}

func TestSearchAppliesThreshold(t *testing.T) {
	provider := &fakeProvider{text: map[string][]float32{embed.TypeAudio: {1, 0}}}
	engine, st := newTestEngine(t, provider)
	folder := mustFolder(t, st, "/media")

	seedFile(t, st, folder.ID, "/media/hi.mp3", media.ModalityAudio, embed.TypeAudio, []float32{0.8, 0})
	seedFile(t, st, folder.ID, "/media/lo.mp3", media.ModalityAudio, embed.TypeAudio, []float32{0.2, 0})

	resp, err := engine.Search(context.Background(), Query{
		Value: "guitar", Kind: KindText,
		Modalities: []media.Modality{media.ModalityAudio},
		Threshold:  0.5,
	})
	require.NoError(t, err)

	require.Len(t, resp.Results, 1)
	assert.Equal(t, "/media/hi.mp3", resp.Results[0].File.Path)
}

func TestSearchCapsAtTopK(t *testing.T) {
	provider := &fakeProvider{text: map[string][]float32{embed.TypeAudio: {1, 0}}}
	engine, st := newTestEngine(t, provider)
	folder := mustFolder(t, st, "/media")

	for i := 0; i < 5; i++ {
		seedFile(t, st, folder.ID, fmt.Sprintf("/media/%d.mp3", i), media.ModalityAudio,
			embed.TypeAudio, []float32{float32(i) / 10, 0})
	}

	resp, err := engine.Search(context.Background(), Query{
		Value: "guitar", Kind: KindText,
		Modalities: []media.Modality{media.ModalityAudio},
		TopK:       2,
	})
	require.NoError(t, err)

	require.Len(t, resp.Results, 2)
	assert.Equal(t, "/media/4.mp3", resp.Results[0].File.Path)
	assert.Equal(t, "/media/3.mp3", resp.Results[1].File.Path)
}

func TestSearchMergesModalitiesWithTwoStageCap(t *testing.T) {
	provider := &fakeProvider{text: map[string][]float32{
		embed.TypeAudio: {1, 0},
		embed.TypeVideo: {0, 1},
	}}
	engine, st := newTestEngine(t, provider)
	folder := mustFolder(t, st, "/media")

	// Audio scores 0.9 and 0.8; video scores 0.85. With top-k 2, each
	// modality is capped at 2, then the merge takes the global best 2.
	seedFile(t, st, folder.ID, "/media/a1.mp3", media.ModalityAudio, embed.TypeAudio, []float32{0.9, 0})
	seedFile(t, st, folder.ID, "/media/a2.mp3", media.ModalityAudio, embed.TypeAudio, []float32{0.8, 0})
	seedFile(t, st, folder.ID, "/media/v1.mp4", media.ModalityVideo, embed.TypeVideo, []float32{0, 0.85})

	resp, err := engine.Search(context.Background(), Query{
		Value: "storm", Kind: KindText,
		Modalities: []media.Modality{media.ModalityAudio, media.ModalityVideo},
		TopK:       2,
	})
	require.NoError(t, err)

	require.Len(t, resp.Results, 2)
	assert.Equal(t, "/media/a1.mp3", resp.Results[0].File.Path)
	assert.Equal(t, "/media/v1.mp4", resp.Results[1].File.Path)
}

func TestSearchEqualScoresKeepModalityOrder(t *testing.T) {
	provider := &fakeProvider{text: map[string][]float32{
		embed.TypeAudio: {1, 0},
		embed.TypeVideo: {1, 0},
	}}
	engine, st := newTestEngine(t, provider)
	folder := mustFolder(t, st, "/media")

	// Identical scores across modalities: audio is processed first, so it
	// stays first after the stable merge.
	seedFile(t, st, folder.ID, "/media/v.mp4", media.ModalityVideo, embed.TypeVideo, []float32{0.5, 0})
	seedFile(t, st, folder.ID, "/media/a.mp3", media.ModalityAudio, embed.TypeAudio, []float32{0.5, 0})

	resp, err := engine.Search(context.Background(), Query{
		Value: "tie", Kind: KindText,
		Modalities: []media.Modality{media.ModalityAudio, media.ModalityVideo},
	})
	require.NoError(t, err)

	require.Len(t, resp.Results, 2)
	assert.Equal(t, media.ModalityAudio, resp.Results[0].Modality)
	assert.Equal(t, media.ModalityVideo, resp.Results[1].Modality)
}

func TestSearchFolderFilter(t *testing.T) {
	provider := &fakeProvider{text: map[string][]float32{embed.TypeAudio: {1, 0}}}
	engine, st := newTestEngine(t, provider)
	folderA := mustFolder(t, st, "/media/a")
	folderB := mustFolder(t, st, "/media/b")

	seedFile(t, st, folderA.ID, "/media/a/x.mp3", media.ModalityAudio, embed.TypeAudio, []float32{0.9, 0})
	seedFile(t, st, folderB.ID, "/media/b/y.mp3", media.ModalityAudio, embed.TypeAudio, []float32{0.9, 0})

	resp, err := engine.Search(context.Background(), Query{
		Value: "guitar", Kind: KindText,
		Modalities: []media.Modality{media.ModalityAudio},
		FolderIDs:  []int64{folderB.ID},
	})
	require.NoError(t, err)

	require.Len(t, resp.Results, 1)
	assert.Equal(t, "/media/b/y.mp3", resp.Results[0].File.Path)
}

func TestSearchDeletedFileIncludedWithOneShotWarning(t *testing.T) {
	provider := &fakeProvider{text: map[string][]float32{embed.TypeAudio: {1, 0}}}
	engine, st := newTestEngine(t, provider)
	folder := mustFolder(t, st, "/media")
	f := seedFile(t, st, folder.ID, "/media/gone.mp3", media.ModalityAudio, embed.TypeAudio, []float32{0.9, 0})
	_, err := st.MarkFileDeleted(context.Background(), f.Path)
	require.NoError(t, err)

	q := Query{Value: "guitar", Kind: KindText, Modalities: []media.Modality{media.ModalityAudio}}

	// First search surfaces the file and warns
	resp, err := engine.Search(context.Background(), q)
	require.NoError(t, err)
	require.Len(t, resp.Results, 1)
	assert.True(t, resp.Results[0].File.IsDeleted)
	require.Len(t, resp.Warnings, 1)
	assert.Contains(t, resp.Warnings[0], "gone.mp3")

	// Second search still surfaces it but stays quiet
	resp, err = engine.Search(context.Background(), q)
	require.NoError(t, err)
	require.Len(t, resp.Results, 1)
	assert.Empty(t, resp.Warnings)
}

func TestSearchNoQueryVectorsReturnsEmpty(t *testing.T) {
	// Provider has no alignment for any modality
	provider := &fakeProvider{text: map[string][]float32{}}
	engine, st := newTestEngine(t, provider)
	folder := mustFolder(t, st, "/media")
	seedFile(t, st, folder.ID, "/media/a.mp3", media.ModalityAudio, embed.TypeAudio, []float32{1, 0})

	resp, err := engine.Search(context.Background(), Query{Value: "guitar", Kind: KindText})
	require.NoError(t, err)

	assert.Empty(t, resp.Results)
	assert.Zero(t, resp.Total)
}

func TestSearchPartialAlignmentDropsModalitySilently(t *testing.T) {
	// Only the audio alignment exists; video and audio_video are dropped.
	provider := &fakeProvider{text: map[string][]float32{embed.TypeAudio: {1, 0}}}
	engine, st := newTestEngine(t, provider)
	folder := mustFolder(t, st, "/media")
	seedFile(t, st, folder.ID, "/media/a.mp3", media.ModalityAudio, embed.TypeAudio, []float32{0.9, 0})
	seedFile(t, st, folder.ID, "/media/v.mp4", media.ModalityVideo, embed.TypeVideo, []float32{0.9, 0})

	resp, err := engine.Search(context.Background(), Query{Value: "guitar", Kind: KindText})
	require.NoError(t, err)

	require.Len(t, resp.Results, 1)
	assert.Equal(t, media.ModalityAudio, resp.Results[0].Modality)
}

func TestSearchAudioQueryTargetsCompatibleModalities(t *testing.T) {
	provider := &fakeProvider{file: map[string][]float32{embed.TypeAudio: {1, 0}}}
	engine, st := newTestEngine(t, provider)
	folder := mustFolder(t, st, "/media")

	seedFile(t, st, folder.ID, "/media/a.mp3", media.ModalityAudio, embed.TypeAudio, []float32{0.9, 0})
	seedFile(t, st, folder.ID, "/media/v.mp4", media.ModalityVideo, embed.TypeVideo, []float32{0.9, 0})
	seedFile(t, st, folder.ID, "/media/av.mp4", media.ModalityVideo, embed.TypeAudioVideo, []float32{0.7, 0})

	// An audio query reaches audio and audio_video spaces, never video.
	resp, err := engine.Search(context.Background(), Query{Value: "/query/ref.mp3", Kind: KindAudio})
	require.NoError(t, err)

	require.Len(t, resp.Results, 2)
	assert.Equal(t, media.ModalityAudio, resp.Results[0].Modality)
	assert.Equal(t, media.ModalityAudioVideo, resp.Results[1].Modality)
}

func TestSearchValidation(t *testing.T) {
	provider := &fakeProvider{}
	engine, _ := newTestEngine(t, provider)
	ctx := context.Background()

	_, err := engine.Search(ctx, Query{Value: "", Kind: KindText})
	assert.Error(t, err)

	_, err = engine.Search(ctx, Query{Value: "x", Kind: Kind("image")})
	assert.Error(t, err)

	_, err = engine.Search(ctx, Query{Value: "x", Kind: KindText, Modalities: []media.Modality{media.ModalityAll}})
	assert.Error(t, err)
}

func TestSearchTopKClampedToMax(t *testing.T) {
	provider := &fakeProvider{text: map[string][]float32{embed.TypeAudio: {1, 0}}}
	engine, st := newTestEngine(t, provider)
	folder := mustFolder(t, st, "/media")
	seedFile(t, st, folder.ID, "/media/a.mp3", media.ModalityAudio, embed.TypeAudio, []float32{1, 0})

	resp, err := engine.Search(context.Background(), Query{
		Value: "guitar", Kind: KindText,
		Modalities: []media.Modality{media.ModalityAudio},
		TopK:       100000,
	})
	require.NoError(t, err)
	assert.LessOrEqual(t, len(resp.Results), 100)
}

func TestFindSimilarDropsReference(t *testing.T) {
	provider := &fakeProvider{}
	engine, st := newTestEngine(t, provider)
	folder := mustFolder(t, st, "/media")

	ref := seedFile(t, st, folder.ID, "/media/ref.mp3", media.ModalityAudio, embed.TypeAudio, []float32{1, 0})
	seedFile(t, st, folder.ID, "/media/close.mp3", media.ModalityAudio, embed.TypeAudio, []float32{0.9, 0})
	seedFile(t, st, folder.ID, "/media/far.mp3", media.ModalityAudio, embed.TypeAudio, []float32{0.1, 0})

	resp, err := engine.FindSimilar(context.Background(), ref.ID, 2, nil)
	require.NoError(t, err)

	require.Len(t, resp.Results, 2)
	assert.Equal(t, "/media/close.mp3", resp.Results[0].File.Path)
	assert.Equal(t, "/media/far.mp3", resp.Results[1].File.Path)
	for _, r := range resp.Results {
		assert.NotEqual(t, ref.ID, r.File.ID)
	}
}

func TestFindSimilarStaysWithinModality(t *testing.T) {
	provider := &fakeProvider{}
	engine, st := newTestEngine(t, provider)
	folder := mustFolder(t, st, "/media")

	ref := seedFile(t, st, folder.ID, "/media/ref.mp3", media.ModalityAudio, embed.TypeAudio, []float32{1, 0})
	seedFile(t, st, folder.ID, "/media/v.mp4", media.ModalityVideo, embed.TypeVideo, []float32{1, 0})

	resp, err := engine.FindSimilar(context.Background(), ref.ID, 10, nil)
	require.NoError(t, err)

	assert.Empty(t, resp.Results)
}

func TestFindSimilarUnknownFile(t *testing.T) {
	provider := &fakeProvider{}
	engine, _ := newTestEngine(t, provider)

	_, err := engine.FindSimilar(context.Background(), 999, 5, nil)
	assert.Error(t, err)
}

func TestFindSimilarFileWithoutEmbedding(t *testing.T) {
	provider := &fakeProvider{}
	engine, st := newTestEngine(t, provider)
	folder := mustFolder(t, st, "/media")
	f, err := st.CreateFile(context.Background(), folder.ID, media.FileInfo{
		Path: "/media/bare.mp3", Filename: "bare.mp3", Modality: media.ModalityAudio,
	})
	require.NoError(t, err)

	_, err = engine.FindSimilar(context.Background(), f.ID, 5, nil)
	assert.Error(t, err)
}
