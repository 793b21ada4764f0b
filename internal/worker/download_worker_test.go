package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/hibiken/asynq"

	"github.com/tunevault/api/internal/audio"
	"github.com/tunevault/api/internal/client"
	"github.com/tunevault/api/internal/config"
	"github.com/tunevault/api/internal/model"
	"github.com/tunevault/api/internal/service"
)

// fakeJobStore keeps jobs in memory with the same update semantics as the
// Redis-backed store: copies on read, cancelled jobs never mutated.
type fakeJobStore struct {
	mu   sync.Mutex
	jobs map[string]*model.Job
}

func newFakeJobStore(jobs ...*model.Job) *fakeJobStore {
	s := &fakeJobStore{jobs: make(map[string]*model.Job)}
	for _, j := range jobs {
		cp := *j
		s.jobs[j.ID] = &cp
	}
	return s
}

func (s *fakeJobStore) Get(ctx context.Context, jobID string) (*model.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return nil, fmt.Errorf("job not found")
	}
	cp := *job
	return &cp, nil
}

func (s *fakeJobStore) Update(ctx context.Context, jobID string, mutate func(*model.Job)) (*model.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return nil, fmt.Errorf("job not found")
	}
	if job.Status == model.JobStatusCancelled {
		cp := *job
		return &cp, nil
	}
	cp := *job
	mutate(&cp)
	cp.UpdatedAt = time.Now()
	s.jobs[jobID] = &cp
	out := cp
	return &out, nil
}

func (s *fakeJobStore) SetProgress(ctx context.Context, jobID string, progress int, description string) error {
	_, err := s.Update(ctx, jobID, func(job *model.Job) {
		if progress > job.Progress {
			job.Progress = progress
		}
		job.Description = description
	})
	return err
}

func (s *fakeJobStore) CompleteJob(ctx context.Context, jobID string, fileName string, fileSize int64, downloadURL, description string) error {
	_, err := s.Update(ctx, jobID, func(job *model.Job) {
		job.Status = model.JobStatusCompleted
		job.Progress = 100
		job.FileName = fileName
		job.FileSize = fileSize
		job.DownloadURL = downloadURL
		job.Description = description
	})
	return err
}

func (s *fakeJobStore) FailJob(ctx context.Context, jobID string, errMsg string) error {
	_, err := s.Update(ctx, jobID, func(job *model.Job) {
		job.Status = model.JobStatusFailed
		job.Error = errMsg
	})
	return err
}

func (s *fakeJobStore) setStatus(jobID string, status model.JobStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[jobID].Status = status
}

type fakeCatalog struct {
	mu       sync.Mutex
	album    *model.AlbumInfo
	albumErr error
	mediaErr map[int64]error // permanent per-track failures
	flaky    map[int64]int   // transient failures before success
	resolves map[int64]int
}

func (f *fakeCatalog) ResolveAlbum(ctx context.Context, albumID, region string) (*model.AlbumInfo, error) {
	if f.albumErr != nil {
		return nil, f.albumErr
	}
	cp := *f.album
	return &cp, nil
}

func (f *fakeCatalog) ResolveTrackMediaURL(ctx context.Context, trackID int64, quality, region string) (*model.MediaURL, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.resolves == nil {
		f.resolves = make(map[int64]int)
	}
	f.resolves[trackID]++

	if err, ok := f.mediaErr[trackID]; ok {
		return nil, err
	}
	if f.flaky[trackID] > 0 {
		f.flaky[trackID]--
		return nil, fmt.Errorf("gateway timeout")
	}
	return &model.MediaURL{
		URL:      fmt.Sprintf("https://cdn.test/%d", trackID),
		MimeType: "audio/flac",
	}, nil
}

func (f *fakeCatalog) resolveCount(trackID int64) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.resolves[trackID]
}

type fakeDownloader struct {
	mu         sync.Mutex
	emptyFirst map[string]bool // serve a zero-byte body on the first hit
	onDownload func(url string)
}

func (f *fakeDownloader) DownloadFile(ctx context.Context, url, destPath string) error {
	f.mu.Lock()
	content := []byte("flac-audio-data")
	if f.emptyFirst[url] {
		f.emptyFirst[url] = false
		content = nil
	}
	hook := f.onDownload
	f.mu.Unlock()

	if hook != nil {
		hook(url)
	}
	return os.WriteFile(destPath, content, 0o644)
}

func (f *fakeDownloader) DownloadBytes(ctx context.Context, url string) ([]byte, error) {
	return nil, fmt.Errorf("no cover available")
}

type fakeQuota struct {
	mu       sync.Mutex
	decision service.QuotaDecision
	records  []int64
}

func (f *fakeQuota) Check(ctx context.Context, userID string, sizeBytes int64) (service.QuotaDecision, error) {
	return f.decision, nil
}

func (f *fakeQuota) Record(ctx context.Context, userID, jobID string, sizeBytes int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.records = append(f.records, sizeBytes)
	return nil
}

type fakeStorage struct {
	mu      sync.Mutex
	uploads []string
}

func (f *fakeStorage) Upload(ctx context.Context, key string, body io.Reader, contentType string) (string, error) {
	return "", nil
}

func (f *fakeStorage) UploadFile(ctx context.Context, localPath, key, contentType string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.uploads = append(f.uploads, key)
	return key, nil
}

func (f *fakeStorage) DeleteByPrefix(ctx context.Context, prefix string) (int, error) {
	return 0, nil
}

func (f *fakeStorage) GetSignedURL(ctx context.Context, key string, expiry time.Duration) (string, error) {
	return "https://signed.test/" + key, nil
}

func (f *fakeStorage) GetPublicURL(key string) string {
	return "https://public.test/" + key
}

func (f *fakeStorage) uploadCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.uploads)
}

// fakeLyrics always returns the configured lookup result
type fakeLyrics struct {
	lyrics *model.Lyrics
}

func (f fakeLyrics) Resolve(ctx context.Context, q client.LyricsQuery) *model.Lyrics {
	return f.lyrics
}

// fakeCodec stands in for ffmpeg: it just materializes the output file
type fakeCodec struct{}

func (fakeCodec) Run(ctx context.Context, args ...string) error {
	return os.WriteFile(args[len(args)-1], []byte("tagged-audio"), 0o644)
}

func testAlbum(trackIDs ...int64) *model.AlbumInfo {
	album := &model.AlbumInfo{
		ID:         "alb-1",
		Title:      "Kind of Blue",
		Artist:     "Miles Davis",
		TrackTotal: len(trackIDs),
		DiscTotal:  1,
	}
	for i, id := range trackIDs {
		album.Tracks = append(album.Tracks, model.TrackInfo{
			ID:         id,
			Title:      fmt.Sprintf("Track %d", id),
			TrackNum:   i + 1,
			DiscNum:    1,
			Streamable: true,
		})
	}
	return album
}

func testJob(id string) *model.Job {
	return &model.Job{
		ID:              id,
		Type:            model.JobTypeAlbum,
		AlbumID:         "alb-1",
		Source:          model.SourcePrimary,
		Region:          "US",
		Format:          model.FormatFLAC,
		TrackTemplate:   "{track} - {name}",
		ArchiveTemplate: "{artist} - {album}",
		LyricsMode:      model.LyricsModeOff,
		Status:          model.JobStatusPending,
		UserID:          "user-1",
		CreatedAt:       time.Now(),
	}
}

type env struct {
	store      *fakeJobStore
	catalog    *fakeCatalog
	downloader *fakeDownloader
	quota      *fakeQuota
	storage    *fakeStorage
	worker     *DownloadWorker
	scratch    string
}

func newEnv(t *testing.T, job *model.Job, catalog *fakeCatalog) *env {
	t.Helper()
	e := &env{
		store:      newFakeJobStore(job),
		catalog:    catalog,
		downloader: &fakeDownloader{},
		quota:      &fakeQuota{decision: service.QuotaDecision{Allowed: true}},
		storage:    &fakeStorage{},
		scratch:    t.TempDir(),
	}
	e.worker = NewDownloadWorker(
		e.store,
		e.quota,
		map[model.CatalogSource]client.CatalogClient{model.SourcePrimary: catalog},
		e.downloader,
		audio.NewEmbedder(fakeCodec{}),
		nil,
		e.storage,
		nil,
		&config.DownloadConfig{
			ScratchDir:      e.scratch,
			Concurrency:     2,
			MaxRetries:      3,
			RetryBaseMillis: 1,
		},
	)
	return e
}

func downloadTask(t *testing.T, jobID string) *asynq.Task {
	t.Helper()
	data, err := json.Marshal(&model.DownloadJobPayload{JobID: jobID})
	if err != nil {
		t.Fatal(err)
	}
	return asynq.NewTask("download:process", data)
}

func (e *env) run(t *testing.T, jobID string) error {
	t.Helper()
	return e.worker.ProcessTask(context.Background(), downloadTask(t, jobID))
}

func (e *env) job(t *testing.T, jobID string) *model.Job {
	t.Helper()
	job, err := e.store.Get(context.Background(), jobID)
	if err != nil {
		t.Fatal(err)
	}
	return job
}

func (e *env) assertScratchClean(t *testing.T) {
	t.Helper()
	entries, err := os.ReadDir(e.scratch)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Errorf("scratch dir not cleaned up: %v", entries)
	}
}

func TestProcessTaskAlbumSuccess(t *testing.T) {
	job := testJob("job-1")
	e := newEnv(t, job, &fakeCatalog{album: testAlbum(1, 2, 3)})

	if err := e.run(t, "job-1"); err != nil {
		t.Fatalf("ProcessTask() error: %v", err)
	}

	got := e.job(t, "job-1")
	if got.Status != model.JobStatusCompleted {
		t.Fatalf("status = %s, want completed (error: %s)", got.Status, got.Error)
	}
	if got.Progress != 100 {
		t.Errorf("progress = %d, want 100", got.Progress)
	}
	if got.FileName != "Miles Davis - Kind of Blue.zip" {
		t.Errorf("fileName = %q", got.FileName)
	}
	if !strings.HasPrefix(got.DownloadURL, "https://signed.test/downloads/job-1/") {
		t.Errorf("downloadURL = %q", got.DownloadURL)
	}
	if got.FileSize <= 0 {
		t.Errorf("fileSize = %d", got.FileSize)
	}

	if e.storage.uploadCount() != 1 {
		t.Errorf("uploads = %d, want 1", e.storage.uploadCount())
	}
	if len(e.quota.records) != 1 {
		t.Errorf("quota records = %d, want 1", len(e.quota.records))
	}
	e.assertScratchClean(t)
}

func TestProcessTaskSingleTrackSkipsArchive(t *testing.T) {
	job := testJob("job-2")
	job.Type = model.JobTypeTrack
	job.TrackID = 2
	e := newEnv(t, job, &fakeCatalog{album: testAlbum(1, 2, 3)})

	if err := e.run(t, "job-2"); err != nil {
		t.Fatalf("ProcessTask() error: %v", err)
	}

	got := e.job(t, "job-2")
	if got.Status != model.JobStatusCompleted {
		t.Fatalf("status = %s (error: %s)", got.Status, got.Error)
	}
	if got.FileName != "02 - Track 2.flac" {
		t.Errorf("fileName = %q, want bare track file", got.FileName)
	}
	if e.catalog.resolveCount(1) != 0 || e.catalog.resolveCount(3) != 0 {
		t.Error("other album tracks should not be touched for a track job")
	}
}

func TestProcessTaskSkipsNonPendingJob(t *testing.T) {
	job := testJob("job-3")
	job.Status = model.JobStatusProcessing
	catalog := &fakeCatalog{album: testAlbum(1)}
	e := newEnv(t, job, catalog)

	if err := e.run(t, "job-3"); err != nil {
		t.Fatalf("duplicate delivery should be acknowledged, got %v", err)
	}
	if e.catalog.resolveCount(1) != 0 {
		t.Error("duplicate delivery must not reprocess tracks")
	}
}

func TestProcessTaskPermanentTrackFailureNoRetries(t *testing.T) {
	job := testJob("job-4")
	catalog := &fakeCatalog{
		album:    testAlbum(1, 2),
		mediaErr: map[int64]error{1: fmt.Errorf("track 1: %w", client.ErrTrackUnavailable)},
	}
	e := newEnv(t, job, catalog)

	if err := e.run(t, "job-4"); err != nil {
		t.Fatalf("ProcessTask() error: %v", err)
	}

	if n := catalog.resolveCount(1); n != 1 {
		t.Errorf("unavailable track resolved %d times, want 1", n)
	}

	got := e.job(t, "job-4")
	if got.Status != model.JobStatusCompleted {
		t.Errorf("status = %s, want completed with the remaining track", got.Status)
	}
	if got.FileName != "02 - Track 2.flac" {
		t.Errorf("fileName = %q", got.FileName)
	}
}

func TestProcessTaskTransientFailureRetries(t *testing.T) {
	job := testJob("job-5")
	catalog := &fakeCatalog{
		album: testAlbum(1),
		flaky: map[int64]int{1: 2},
	}
	e := newEnv(t, job, catalog)

	if err := e.run(t, "job-5"); err != nil {
		t.Fatalf("ProcessTask() error: %v", err)
	}

	if n := catalog.resolveCount(1); n != 3 {
		t.Errorf("flaky track resolved %d times, want 3", n)
	}
	if got := e.job(t, "job-5"); got.Status != model.JobStatusCompleted {
		t.Errorf("status = %s (error: %s)", got.Status, got.Error)
	}
}

func TestProcessTaskZeroByteDownloadRetried(t *testing.T) {
	job := testJob("job-6")
	catalog := &fakeCatalog{album: testAlbum(1)}
	e := newEnv(t, job, catalog)
	e.downloader.emptyFirst = map[string]bool{"https://cdn.test/1": true}

	if err := e.run(t, "job-6"); err != nil {
		t.Fatalf("ProcessTask() error: %v", err)
	}

	if n := catalog.resolveCount(1); n != 2 {
		t.Errorf("resolve count = %d, want 2 (empty file retried)", n)
	}
	if got := e.job(t, "job-6"); got.Status != model.JobStatusCompleted {
		t.Errorf("status = %s (error: %s)", got.Status, got.Error)
	}
}

func TestProcessTaskAllTracksFailedFailsJob(t *testing.T) {
	job := testJob("job-7")
	unavailable := fmt.Errorf("gone: %w", client.ErrTrackUnavailable)
	catalog := &fakeCatalog{
		album:    testAlbum(1, 2),
		mediaErr: map[int64]error{1: unavailable, 2: unavailable},
	}
	e := newEnv(t, job, catalog)

	if err := e.run(t, "job-7"); err == nil {
		t.Fatal("want error when nothing could be downloaded")
	}

	got := e.job(t, "job-7")
	if got.Status != model.JobStatusFailed {
		t.Errorf("status = %s, want failed", got.Status)
	}
	if got.Error == "" {
		t.Error("failed job should carry an error message")
	}
	if e.storage.uploadCount() != 0 {
		t.Error("nothing should be uploaded for a failed job")
	}
	e.assertScratchClean(t)
}

func TestProcessTaskMetadataFailureIsFatal(t *testing.T) {
	job := testJob("job-8")
	e := newEnv(t, job, &fakeCatalog{albumErr: fmt.Errorf("catalog down")})

	if err := e.run(t, "job-8"); err == nil {
		t.Fatal("want error on metadata failure")
	}
	if got := e.job(t, "job-8"); got.Status != model.JobStatusFailed {
		t.Errorf("status = %s, want failed", got.Status)
	}
}

func TestProcessTaskCancellationBetweenWindows(t *testing.T) {
	job := testJob("job-9")
	catalog := &fakeCatalog{album: testAlbum(1, 2, 3)}
	e := newEnv(t, job, catalog)
	e.worker.concurrency = 1

	// Cancel the job while the first track downloads; the scheduler must
	// notice before the next window
	e.downloader.onDownload = func(url string) {
		e.store.setStatus("job-9", model.JobStatusCancelled)
	}

	if err := e.run(t, "job-9"); err != nil {
		t.Fatalf("cancelled job should be acknowledged, got %v", err)
	}

	got := e.job(t, "job-9")
	if got.Status != model.JobStatusCancelled {
		t.Errorf("status = %s, cancellation must never be overwritten", got.Status)
	}
	if catalog.resolveCount(2) != 0 || catalog.resolveCount(3) != 0 {
		t.Error("later windows ran after cancellation")
	}
	if e.storage.uploadCount() != 0 {
		t.Error("cancelled job must not upload")
	}
	e.assertScratchClean(t)
}

func TestProcessTaskQuotaExceededCompletesWithoutURL(t *testing.T) {
	job := testJob("job-10")
	e := newEnv(t, job, &fakeCatalog{album: testAlbum(1, 2)})
	e.quota.decision = service.QuotaDecision{
		Allowed:     false,
		Description: "storage quota exceeded: using 29.5 GB of 30.0 GB, file of 800.0 MB was not stored",
	}

	if err := e.run(t, "job-10"); err != nil {
		t.Fatalf("ProcessTask() error: %v", err)
	}

	got := e.job(t, "job-10")
	if got.Status != model.JobStatusCompleted {
		t.Fatalf("status = %s, want completed even over quota", got.Status)
	}
	if got.DownloadURL != "" {
		t.Errorf("downloadURL = %q, want empty", got.DownloadURL)
	}
	if !strings.Contains(got.Description, "storage quota exceeded") {
		t.Errorf("description = %q, want quota message", got.Description)
	}
	if !strings.Contains(got.Error, "storage quota exceeded") {
		t.Errorf("error = %q, want the shortfall surfaced there too", got.Error)
	}
	if got.FileName == "" || got.FileSize <= 0 {
		t.Errorf("artifact details missing: %q / %d", got.FileName, got.FileSize)
	}

	if e.storage.uploadCount() != 0 {
		t.Error("over-quota artifact must not be uploaded")
	}
	if len(e.quota.records) != 0 {
		t.Error("denied artifact must not be recorded against the window")
	}
	e.assertScratchClean(t)
}

func TestProcessTaskSkipsNonStreamableTracks(t *testing.T) {
	album := testAlbum(1, 2)
	album.Tracks[0].Streamable = false
	job := testJob("job-11")
	catalog := &fakeCatalog{album: album}
	e := newEnv(t, job, catalog)

	if err := e.run(t, "job-11"); err != nil {
		t.Fatalf("ProcessTask() error: %v", err)
	}

	if catalog.resolveCount(1) != 0 {
		t.Error("non-streamable track should never be resolved")
	}
	if got := e.job(t, "job-11"); got.Status != model.JobStatusCompleted {
		t.Errorf("status = %s (error: %s)", got.Status, got.Error)
	}
}

func TestSelectTracksMissingTrack(t *testing.T) {
	job := testJob("job-12")
	job.Type = model.JobTypeTrack
	job.TrackID = 99

	if _, err := selectTracks(job, testAlbum(1, 2)); err == nil {
		t.Error("want error when the requested track is not in the album")
	}
}

func TestProcessTaskEmbedModeM4AKeepsLyricsAsSidecar(t *testing.T) {
	job := testJob("job-13")
	job.Format = model.FormatM4A
	job.LyricsMode = model.LyricsModeEmbed
	e := newEnv(t, job, &fakeCatalog{album: testAlbum(1)})
	e.worker.lyrics = fakeLyrics{lyrics: &model.Lyrics{Text: "[00:01.00]So What", Synced: true}}

	if err := e.run(t, "job-13"); err != nil {
		t.Fatalf("ProcessTask() error: %v", err)
	}

	got := e.job(t, "job-13")
	if got.Status != model.JobStatusCompleted {
		t.Fatalf("status = %s (error: %s)", got.Status, got.Error)
	}
	// The container has no lyric tag, so the track ships with a sidecar and
	// the pair is archived instead of a bare audio file
	if got.FileName != "Miles Davis - Kind of Blue.zip" {
		t.Errorf("fileName = %q, want archive carrying the lyrics sidecar", got.FileName)
	}
}

func TestTrackPipelineLyricsSidecars(t *testing.T) {
	tests := []struct {
		name    string
		format  model.AudioFormat
		mode    model.LyricsMode
		lyrics  *model.Lyrics
		sidecar string // expected extension, "" for none
	}{
		{"embed mode with tag support", model.FormatFLAC, model.LyricsModeEmbed, &model.Lyrics{Text: "[00:01.00]line", Synced: true}, ""},
		{"embed mode without tag support", model.FormatM4A, model.LyricsModeEmbed, &model.Lyrics{Text: "[00:01.00]line", Synced: true}, ".lrc"},
		{"sidecar mode synced", model.FormatFLAC, model.LyricsModeSidecar, &model.Lyrics{Text: "[00:01.00]line", Synced: true}, ".lrc"},
		{"sidecar mode plain text", model.FormatFLAC, model.LyricsModeSidecar, &model.Lyrics{Text: "just words"}, ".txt"},
		{"sidecar mode no lyrics", model.FormatFLAC, model.LyricsModeSidecar, nil, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			album := testAlbum(1)
			job := testJob("job-p")
			job.Format = tt.format
			job.LyricsMode = tt.mode

			p := &trackPipeline{
				catalog:    &fakeCatalog{album: album},
				downloader: &fakeDownloader{},
				embedder:   audio.NewEmbedder(fakeCodec{}),
				lyrics:     fakeLyrics{lyrics: tt.lyrics},
				maxRetries: 1,
				retryBase:  time.Millisecond,
			}

			out, err := p.process(context.Background(), job, album, &album.Tracks[0], nil, t.TempDir())
			if err != nil {
				t.Fatalf("process() error: %v", err)
			}

			if tt.sidecar == "" {
				if len(out.Paths) != 1 {
					t.Fatalf("paths = %v, want audio file only", out.Paths)
				}
				return
			}
			if len(out.Paths) != 2 {
				t.Fatalf("paths = %v, want audio file plus sidecar", out.Paths)
			}
			if got := filepath.Ext(out.Paths[1]); got != tt.sidecar {
				t.Errorf("sidecar extension = %q, want %q", got, tt.sidecar)
			}
			data, err := os.ReadFile(out.Paths[1])
			if err != nil {
				t.Fatal(err)
			}
			if string(data) != tt.lyrics.Text {
				t.Errorf("sidecar content = %q", data)
			}
		})
	}
}

func TestContentTypeFor(t *testing.T) {
	tests := []struct {
		fileName string
		want     string
	}{
		{"Miles Davis - Kind of Blue.zip", "application/zip"},
		{"01 - So What.flac", "audio/flac"},
		{"01 - So What.m4a", "audio/mp4"},
		{"01 - So What.bin", "application/octet-stream"},
	}
	for _, tt := range tests {
		if got := contentTypeFor(tt.fileName); got != tt.want {
			t.Errorf("contentTypeFor(%q) = %q, want %q", tt.fileName, got, tt.want)
		}
	}
}

func TestExtFromMIME(t *testing.T) {
	tests := []struct {
		mime string
		want string
	}{
		{"audio/flac", ".flac"},
		{"audio/mpeg", ".mp3"},
		{"audio/mp4", ".m4a"},
		{"audio/ogg; codecs=vorbis", ".ogg"},
		{"AUDIO/WAV", ".wav"},
		{"application/octet-stream", ".bin"},
	}
	for _, tt := range tests {
		if got := extFromMIME(tt.mime); got != tt.want {
			t.Errorf("extFromMIME(%q) = %q, want %q", tt.mime, got, tt.want)
		}
	}
}
