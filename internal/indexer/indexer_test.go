package indexer

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trentonhq/trenton/internal/config"
	"github.com/trentonhq/trenton/internal/deletion"
	"github.com/trentonhq/trenton/internal/embed"
	"github.com/trentonhq/trenton/internal/media"
	"github.com/trentonhq/trenton/internal/store"
	"github.com/trentonhq/trenton/internal/watcher"
)

func newTestOrchestrator(t *testing.T) (*Orchestrator, *store.Store, *watcher.Manager) {
	t.Helper()
	logger := slog.New(slog.DiscardHandler)
	provider := embed.NewHandle(config.ProviderConfig{Kind: "static"}, logger)
	t.Cleanup(func() { _ = provider.Close() })
	return newTestOrchestratorWith(t, provider)
}

func newTestOrchestratorWith(t *testing.T, provider *embed.Handle) (*Orchestrator, *store.Store, *watcher.Manager) {
	t.Helper()
	logger := slog.New(slog.DiscardHandler)

	st, err := store.Open(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	tracker := deletion.NewTracker(st, logger)
	watch := watcher.NewManager(watcher.NewDebouncer(50*time.Millisecond, 64), 64, logger)

	cfg := config.IndexingConfig{Workers: 2, EventCooldown: config.Duration(50 * time.Millisecond), QueueSize: 64}
	o := New(cfg, st, provider, tracker, watch, logger)
	return o, st, watch
}

// faultyProvider fails file embedding for one path and defers to the
// wrapped provider otherwise.
type faultyProvider struct {
	embed.Provider
	failPath string
}

func (p *faultyProvider) EmbedFile(ctx context.Context, path, embeddingType string) ([]float32, error) {
	if path == p.failPath {
		return nil, fmt.Errorf("model rejected %s", path)
	}
	return p.Provider.EmbedFile(ctx, path, embeddingType)
}

func writeMedia(t *testing.T, dir, name string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte("media bytes for "+name), 0o644))
	return path
}

func TestIndexFileCreatesRecordAndEmbeddings(t *testing.T) {
	o, st, _ := newTestOrchestrator(t)
	ctx := context.Background()
	dir := t.TempDir()

	folder, err := st.CreateFolder(ctx, dir, media.ModalityAll)
	require.NoError(t, err)
	path := writeMedia(t, dir, "song.mp3")

	require.NoError(t, o.IndexFile(ctx, folder.ID, path))

	file, err := st.GetFileByPath(ctx, path)
	require.NoError(t, err)
	require.NotNil(t, file)
	assert.Equal(t, media.ModalityAudio, file.Modality)
	require.NotNil(t, file.IndexedAt)

	embeddings, err := st.GetEmbeddingsByFile(ctx, file.ID)
	require.NoError(t, err)
	require.Len(t, embeddings, 1)
	assert.Equal(t, embed.TypeAudio, embeddings[0].EmbeddingType)
}

func TestIndexFileVideoGetsTwoEmbeddings(t *testing.T) {
	o, st, _ := newTestOrchestrator(t)
	ctx := context.Background()
	dir := t.TempDir()

	folder, err := st.CreateFolder(ctx, dir, media.ModalityAll)
	require.NoError(t, err)
	path := writeMedia(t, dir, "clip.mp4")

	require.NoError(t, o.IndexFile(ctx, folder.ID, path))

	file, err := st.GetFileByPath(ctx, path)
	require.NoError(t, err)
	embeddings, err := st.GetEmbeddingsByFile(ctx, file.ID)
	require.NoError(t, err)
	require.Len(t, embeddings, 2)
	assert.Equal(t, embed.TypeVideo, embeddings[0].EmbeddingType)
	assert.Equal(t, embed.TypeAudioVideo, embeddings[1].EmbeddingType)
}

func TestIndexFileIsIdempotent(t *testing.T) {
	o, st, _ := newTestOrchestrator(t)
	ctx := context.Background()
	dir := t.TempDir()

	folder, err := st.CreateFolder(ctx, dir, media.ModalityAll)
	require.NoError(t, err)
	path := writeMedia(t, dir, "song.mp3")

	require.NoError(t, o.IndexFile(ctx, folder.ID, path))
	require.NoError(t, o.IndexFile(ctx, folder.ID, path))

	file, err := st.GetFileByPath(ctx, path)
	require.NoError(t, err)
	embeddings, err := st.GetEmbeddingsByFile(ctx, file.ID)
	require.NoError(t, err)
	assert.Len(t, embeddings, 1)
}

func TestIndexFileRevivesSoftDeletedRecord(t *testing.T) {
	o, st, _ := newTestOrchestrator(t)
	ctx := context.Background()
	dir := t.TempDir()

	folder, err := st.CreateFolder(ctx, dir, media.ModalityAll)
	require.NoError(t, err)
	path := writeMedia(t, dir, "song.mp3")
	require.NoError(t, o.IndexFile(ctx, folder.ID, path))

	// Given the record was soft-deleted while the file is back on disk
	_, err = st.MarkFileDeleted(ctx, path)
	require.NoError(t, err)
	before, err := st.GetFileByPath(ctx, path)
	require.NoError(t, err)

	// When the path is indexed again
	require.NoError(t, o.IndexFile(ctx, folder.ID, path))

	// Then the same record comes back to life instead of a duplicate
	after, err := st.GetFileByPath(ctx, path)
	require.NoError(t, err)
	assert.Equal(t, before.ID, after.ID)
	assert.False(t, after.IsDeleted)
	assert.False(t, after.DeletionNotified)
}

func TestIndexFileSkipsInvalidFiles(t *testing.T) {
	o, st, _ := newTestOrchestrator(t)
	ctx := context.Background()
	dir := t.TempDir()

	folder, err := st.CreateFolder(ctx, dir, media.ModalityAll)
	require.NoError(t, err)

	// Empty and unsupported files are silent skips
	empty := filepath.Join(dir, "empty.mp3")
	require.NoError(t, os.WriteFile(empty, nil, 0o644))
	require.NoError(t, o.IndexFile(ctx, folder.ID, empty))
	require.NoError(t, o.IndexFile(ctx, folder.ID, filepath.Join(dir, "notes.txt")))
	require.NoError(t, o.IndexFile(ctx, folder.ID, filepath.Join(dir, "missing.mp3")))

	n, err := st.CountFilesByFolder(ctx, folder.ID)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestIndexFileResolvesOwningFolder(t *testing.T) {
	o, st, _ := newTestOrchestrator(t)
	ctx := context.Background()
	dir := t.TempDir()

	other, err := st.CreateFolder(ctx, filepath.Join(dir, "elsewhere"), media.ModalityAll)
	require.NoError(t, err)
	owner, err := st.CreateFolder(ctx, dir, media.ModalityAll)
	require.NoError(t, err)
	path := writeMedia(t, dir, "song.mp3")

	// folderID 0 forces prefix resolution
	require.NoError(t, o.IndexFile(ctx, 0, path))

	file, err := st.GetFileByPath(ctx, path)
	require.NoError(t, err)
	require.NotNil(t, file)
	assert.Equal(t, owner.ID, file.FolderID)
	assert.NotEqual(t, other.ID, file.FolderID)
}

func TestIndexFileUnownedPathIsSkipped(t *testing.T) {
	o, st, _ := newTestOrchestrator(t)
	ctx := context.Background()
	dir := t.TempDir()
	path := writeMedia(t, dir, "song.mp3")

	require.NoError(t, o.IndexFile(ctx, 0, path))

	file, err := st.GetFileByPath(ctx, path)
	require.NoError(t, err)
	assert.Nil(t, file)
}

func TestScanFolderFullIndexesEverything(t *testing.T) {
	o, st, _ := newTestOrchestrator(t)
	ctx := context.Background()
	dir := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(dir, "albums"), 0o755))

	folder, err := st.CreateFolder(ctx, dir, media.ModalityAll)
	require.NoError(t, err)
	writeMedia(t, dir, "a.mp3")
	writeMedia(t, dir, "b.mp4")
	writeMedia(t, filepath.Join(dir, "albums"), "c.flac")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("skip"), 0o644))

	job, err := o.ScanFolder(ctx, folder.ID, store.JobKindFullScan)
	require.NoError(t, err)

	assert.Equal(t, store.JobStatusCompleted, job.Status)
	assert.Equal(t, 3, job.TotalFiles)
	assert.Equal(t, 3, job.ProcessedFiles)
	assert.Zero(t, job.FailedFiles)
	require.NotNil(t, job.CompletedAt)

	updated, err := st.GetFolder(ctx, folder.ID)
	require.NoError(t, err)
	assert.NotNil(t, updated.LastIndexedAt)
}

func TestScanFolderIsolatesProviderFailures(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	writeMedia(t, dir, "a.mp3")
	bad := writeMedia(t, dir, "b.mp3")
	writeMedia(t, dir, "c.mp3")

	provider := embed.HandleFor(&faultyProvider{Provider: embed.NewStaticProvider(), failPath: bad})
	o, st, _ := newTestOrchestratorWith(t, provider)

	folder, err := st.CreateFolder(ctx, dir, media.ModalityAudio)
	require.NoError(t, err)

	job, err := o.ScanFolder(ctx, folder.ID, store.JobKindFullScan)
	require.NoError(t, err)

	// One bad file fails the file, not the job.
	assert.Equal(t, store.JobStatusCompleted, job.Status)
	assert.Equal(t, 3, job.TotalFiles)
	assert.Equal(t, 2, job.ProcessedFiles)
	assert.Equal(t, 1, job.FailedFiles)

	file, err := st.GetFileByPath(ctx, bad)
	require.NoError(t, err)
	require.NotNil(t, file)
	embeddings, err := st.GetEmbeddingsByFile(ctx, file.ID)
	require.NoError(t, err)
	assert.Empty(t, embeddings)
	assert.Nil(t, file.IndexedAt)
}

func TestScanFolderRespectsModalityFilter(t *testing.T) {
	o, st, _ := newTestOrchestrator(t)
	ctx := context.Background()
	dir := t.TempDir()

	folder, err := st.CreateFolder(ctx, dir, media.ModalityAudio)
	require.NoError(t, err)
	writeMedia(t, dir, "a.mp3")
	writeMedia(t, dir, "b.mp4")

	job, err := o.ScanFolder(ctx, folder.ID, store.JobKindFullScan)
	require.NoError(t, err)
	assert.Equal(t, 1, job.TotalFiles)
}

func TestScanFolderAudioVideoFilterSelectsVideoContainersOnly(t *testing.T) {
	o, st, _ := newTestOrchestrator(t)
	ctx := context.Background()
	dir := t.TempDir()

	folder, err := st.CreateFolder(ctx, dir, media.ModalityAudioVideo)
	require.NoError(t, err)
	writeMedia(t, dir, "a.mp3")
	writeMedia(t, dir, "b.mp4")

	job, err := o.ScanFolder(ctx, folder.ID, store.JobKindFullScan)
	require.NoError(t, err)
	assert.Equal(t, 1, job.TotalFiles)

	file, err := st.GetFileByPath(ctx, filepath.Join(dir, "b.mp4"))
	require.NoError(t, err)
	assert.NotNil(t, file)
}

func TestScanFolderReconcilesDeletions(t *testing.T) {
	o, st, _ := newTestOrchestrator(t)
	ctx := context.Background()
	dir := t.TempDir()

	folder, err := st.CreateFolder(ctx, dir, media.ModalityAll)
	require.NoError(t, err)
	path := writeMedia(t, dir, "a.mp3")
	require.NoError(t, o.IndexFile(ctx, folder.ID, path))
	require.NoError(t, os.Remove(path))

	_, err = o.ScanFolder(ctx, folder.ID, store.JobKindFullScan)
	require.NoError(t, err)

	file, err := st.GetFileByPath(ctx, path)
	require.NoError(t, err)
	assert.True(t, file.IsDeleted)
}

func TestIncrementalScanSkipsUnchangedFiles(t *testing.T) {
	o, st, _ := newTestOrchestrator(t)
	ctx := context.Background()
	dir := t.TempDir()

	folder, err := st.CreateFolder(ctx, dir, media.ModalityAll)
	require.NoError(t, err)
	unchanged := writeMedia(t, dir, "old.mp3")
	require.NoError(t, o.IndexFile(ctx, folder.ID, unchanged))

	// Make the stored index timestamp clearly newer than the file.
	require.NoError(t, st.TouchFileIndexed(ctx, mustFileID(t, st, unchanged), time.Now().Add(time.Hour)))
	fresh := writeMedia(t, dir, "new.mp3")

	job, err := o.ScanFolder(ctx, folder.ID, store.JobKindIncremental)
	require.NoError(t, err)

	assert.Equal(t, 1, job.TotalFiles)
	file, err := st.GetFileByPath(ctx, fresh)
	require.NoError(t, err)
	assert.NotNil(t, file)
}

func mustFileID(t *testing.T, st *store.Store, path string) int64 {
	t.Helper()
	f, err := st.GetFileByPath(context.Background(), path)
	require.NoError(t, err)
	require.NotNil(t, f)
	return f.ID
}

func TestScanAllCoversActiveFolders(t *testing.T) {
	o, st, _ := newTestOrchestrator(t)
	ctx := context.Background()
	dirA, dirB := t.TempDir(), t.TempDir()

	folderA, err := st.CreateFolder(ctx, dirA, media.ModalityAll)
	require.NoError(t, err)
	folderB, err := st.CreateFolder(ctx, dirB, media.ModalityAll)
	require.NoError(t, err)
	require.NoError(t, st.SetFolderActive(ctx, folderB.ID, false))
	writeMedia(t, dirA, "a.mp3")
	writeMedia(t, dirB, "b.mp3")

	job, err := o.ScanAll(ctx, store.JobKindFullScan)
	require.NoError(t, err)

	assert.Equal(t, store.JobStatusCompleted, job.Status)
	nA, err := st.CountFilesByFolder(ctx, folderA.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, nA)
	nB, err := st.CountFilesByFolder(ctx, folderB.ID)
	require.NoError(t, err)
	assert.Zero(t, nB)
}

func TestScanFolderAsyncCompletes(t *testing.T) {
	o, st, _ := newTestOrchestrator(t)
	ctx := context.Background()
	dir := t.TempDir()

	folder, err := st.CreateFolder(ctx, dir, media.ModalityAll)
	require.NoError(t, err)
	writeMedia(t, dir, "a.mp3")

	job, err := o.ScanFolderAsync(ctx, folder.ID, store.JobKindFullScan)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		got, err := st.GetJob(ctx, job.ID)
		return err == nil && got != nil && got.Status.Terminal()
	}, 5*time.Second, 20*time.Millisecond)

	got, err := st.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, store.JobStatusCompleted, got.Status)
	assert.Equal(t, 1, got.ProcessedFiles)
}

func TestWorkerPoolProcessesWatchEvents(t *testing.T) {
	o, st, watch := newTestOrchestrator(t)
	ctx := context.Background()
	dir := t.TempDir()

	folder, err := st.CreateFolder(ctx, dir, media.ModalityAll)
	require.NoError(t, err)
	require.NoError(t, watch.RegisterFolder(ctx, folder.ID, dir))
	require.NoError(t, o.Start(ctx))
	defer o.Stop()

	path := writeMedia(t, dir, "live.mp3")

	require.Eventually(t, func() bool {
		f, err := st.GetFileByPath(ctx, path)
		return err == nil && f != nil && f.IndexedAt != nil
	}, 5*time.Second, 20*time.Millisecond)
}

func TestWorkerPoolHandlesDeleteEvents(t *testing.T) {
	o, st, watch := newTestOrchestrator(t)
	ctx := context.Background()
	dir := t.TempDir()

	folder, err := st.CreateFolder(ctx, dir, media.ModalityAll)
	require.NoError(t, err)
	path := writeMedia(t, dir, "gone.mp3")
	require.NoError(t, o.IndexFile(ctx, folder.ID, path))

	require.NoError(t, watch.RegisterFolder(ctx, folder.ID, dir))
	require.NoError(t, o.Start(ctx))
	defer o.Stop()

	require.NoError(t, os.Remove(path))

	require.Eventually(t, func() bool {
		f, err := st.GetFileByPath(ctx, path)
		return err == nil && f != nil && f.IsDeleted
	}, 5*time.Second, 20*time.Millisecond)
}
