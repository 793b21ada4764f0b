package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/hibiken/asynq"

	"github.com/tunevault/api/internal/archive"
	"github.com/tunevault/api/internal/audio"
	"github.com/tunevault/api/internal/client"
	"github.com/tunevault/api/internal/config"
	"github.com/tunevault/api/internal/model"
	"github.com/tunevault/api/internal/naming"
	"github.com/tunevault/api/internal/service"
)

const signedURLExpiry = 24 * time.Hour

// DownloadWorker processes download jobs
type DownloadWorker struct {
	jobs        JobStore
	quota       QuotaKeeper
	catalogs    map[model.CatalogSource]client.CatalogClient
	downloader  client.Downloader
	embedder    *audio.Embedder
	lyrics      service.LyricsResolver
	storage     client.StorageClient
	hub         Notifier
	scratchRoot string
	concurrency int
	maxRetries  int
	retryBase   time.Duration
}

// NewDownloadWorker creates a new download worker
func NewDownloadWorker(
	jobs JobStore,
	quota QuotaKeeper,
	catalogs map[model.CatalogSource]client.CatalogClient,
	downloader client.Downloader,
	embedder *audio.Embedder,
	lyrics service.LyricsResolver,
	storage client.StorageClient,
	hub Notifier,
	cfg *config.DownloadConfig,
) *DownloadWorker {
	return &DownloadWorker{
		jobs:        jobs,
		quota:       quota,
		catalogs:    catalogs,
		downloader:  downloader,
		embedder:    embedder,
		lyrics:      lyrics,
		storage:     storage,
		hub:         hub,
		scratchRoot: cfg.ScratchDir,
		concurrency: cfg.Concurrency,
		maxRetries:  cfg.MaxRetries,
		retryBase:   time.Duration(cfg.RetryBaseMillis) * time.Millisecond,
	}
}

// ProcessTask handles download task processing
func (w *DownloadWorker) ProcessTask(ctx context.Context, t *asynq.Task) (err error) {
	var payload model.DownloadJobPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("failed to unmarshal task payload: %w", err)
	}
	jobID := payload.JobID

	job, err := w.jobs.Get(ctx, jobID)
	if err != nil {
		return err
	}

	// Duplicate deliveries and tasks for cancelled jobs are acknowledged
	// without doing anything
	if job.Status != model.JobStatusPending {
		log.Printf("Job %s is %s, skipping pickup", jobID, job.Status)
		return nil
	}

	log.Printf("Starting download job: %s", jobID)

	defer func() {
		if r := recover(); r != nil {
			log.Printf("Job %s panicked: %v", jobID, r)
			w.failJob(context.Background(), jobID, fmt.Sprintf("internal error: %v", r))
			err = fmt.Errorf("job %s panicked: %v", jobID, r)
		}
	}()

	scratchDir := filepath.Join(w.scratchRoot, "dl-"+jobID)
	if err := os.MkdirAll(scratchDir, 0o755); err != nil {
		w.failJob(ctx, jobID, "Failed to allocate scratch space")
		return err
	}
	defer os.RemoveAll(scratchDir)

	return w.process(ctx, job, scratchDir)
}

func (w *DownloadWorker) process(ctx context.Context, job *model.Job, scratchDir string) error {
	jobID := job.ID

	catalog, ok := w.catalogs[job.Source]
	if !ok {
		w.failJob(ctx, jobID, fmt.Sprintf("Unknown catalog source: %s", job.Source))
		return fmt.Errorf("unknown catalog source %q", job.Source)
	}

	w.setProgress(ctx, jobID, 2, model.JobStatusProcessing, "Fetching album metadata...")

	album, err := catalog.ResolveAlbum(ctx, job.AlbumID, job.Region)
	if err != nil {
		w.failJob(ctx, jobID, fmt.Sprintf("Failed to fetch album metadata: %v", err))
		return err
	}

	tracks, err := selectTracks(job, album)
	if err != nil {
		w.failJob(ctx, jobID, err.Error())
		return err
	}

	coverArt := w.fetchCover(ctx, album)

	pipeline := &trackPipeline{
		catalog:    catalog,
		downloader: w.downloader,
		embedder:   w.embedder,
		lyrics:     w.lyrics,
		maxRetries: w.maxRetries,
		retryBase:  w.retryBase,
	}

	sink := newProgressSink(jobID, w.jobs, w.hub)
	sink.Send(progressBase, model.JobStatusDownloading, fmt.Sprintf("Downloading tracks (0/%d)...", len(tracks)))
	outputs, err := w.runBatches(ctx, pipeline, job, album, tracks, coverArt, scratchDir, sink)
	sink.Close()

	if errors.Is(err, errJobCancelled) {
		return nil
	}
	if err != nil {
		w.failJob(ctx, jobID, fmt.Sprintf("Download aborted: %v", err))
		return err
	}
	if len(outputs) == 0 {
		w.failJob(ctx, jobID, "No tracks could be downloaded")
		return fmt.Errorf("job %s: no tracks could be downloaded", jobID)
	}

	w.setProgress(ctx, jobID, 85, model.JobStatusDownloading, "Packaging files...")

	artifactPath, err := w.packageOutputs(job, album, outputs, scratchDir)
	if err != nil {
		w.failJob(ctx, jobID, fmt.Sprintf("Packaging failed: %v", err))
		return err
	}

	info, err := os.Stat(artifactPath)
	if err != nil {
		w.failJob(ctx, jobID, "Packaged file disappeared")
		return err
	}
	fileName := filepath.Base(artifactPath)
	fileSize := info.Size()

	// The quota decision happens strictly before any byte reaches storage
	w.setProgress(ctx, jobID, 90, model.JobStatusDownloading, "Checking storage quota...")
	decision, err := w.quota.Check(ctx, job.UserID, fileSize)
	if err != nil {
		w.failJob(ctx, jobID, fmt.Sprintf("Quota check failed: %v", err))
		return err
	}
	if !decision.Allowed {
		log.Printf("Job %s over quota: %s", jobID, decision.Description)
		// The job still completes, but the shortfall is surfaced in both the
		// description and the error field, and nothing reaches storage
		if _, err := w.jobs.Update(ctx, jobID, func(j *model.Job) {
			j.Status = model.JobStatusCompleted
			j.Progress = 100
			j.FileName = fileName
			j.FileSize = fileSize
			j.DownloadURL = ""
			j.Description = decision.Description
			j.Error = decision.Description
		}); err != nil {
			return err
		}
		w.broadcastComplete(jobID, fileName, fileSize, "")
		return nil
	}

	w.setProgress(ctx, jobID, 95, model.JobStatusDownloading, "Uploading...")

	key := fmt.Sprintf("downloads/%s/%s", jobID, fileName)
	if _, err := w.storage.UploadFile(ctx, artifactPath, key, contentTypeFor(fileName)); err != nil {
		w.failJob(ctx, jobID, fmt.Sprintf("Upload failed: %v", err))
		return err
	}

	downloadURL, err := w.storage.GetSignedURL(ctx, key, signedURLExpiry)
	if err != nil {
		log.Printf("Job %s: signing failed, falling back to public URL: %v", jobID, err)
		downloadURL = w.storage.GetPublicURL(key)
	}

	if err := w.quota.Record(ctx, job.UserID, jobID, fileSize); err != nil {
		log.Printf("Job %s: failed to record quota usage: %v", jobID, err)
	}

	if err := w.jobs.CompleteJob(ctx, jobID, fileName, fileSize, downloadURL, "Download ready"); err != nil {
		return err
	}
	w.broadcastComplete(jobID, fileName, fileSize, downloadURL)

	log.Printf("Download job %s completed: %s (%d bytes)", jobID, fileName, fileSize)
	return nil
}

// selectTracks narrows the album track list to what the job asked for,
// dropping tracks the provider won't stream
func selectTracks(job *model.Job, album *model.AlbumInfo) ([]model.TrackInfo, error) {
	var tracks []model.TrackInfo
	for _, t := range album.Tracks {
		if job.Type == model.JobTypeTrack && t.ID != job.TrackID {
			continue
		}
		if !t.Streamable {
			log.Printf("Job %s: skipping non-streamable track %d (%s)", job.ID, t.ID, t.Title)
			continue
		}
		tracks = append(tracks, t)
	}

	if len(tracks) == 0 {
		if job.Type == model.JobTypeTrack {
			return nil, fmt.Errorf("track %d is not available for download", job.TrackID)
		}
		return nil, fmt.Errorf("album has no streamable tracks")
	}
	return tracks, nil
}

// fetchCover downloads and normalizes album art. Best effort: tracks ship
// without art when this fails.
func (w *DownloadWorker) fetchCover(ctx context.Context, album *model.AlbumInfo) []byte {
	url := album.BestCoverURL()
	if url == "" {
		return nil
	}

	data, err := w.downloader.DownloadBytes(ctx, url)
	if err != nil {
		log.Printf("Cover download failed for album %s: %v", album.ID, err)
		return nil
	}

	prepared, err := audio.PrepareCover(data)
	if err != nil {
		log.Printf("Cover processing failed for album %s: %v", album.ID, err)
		return nil
	}
	return prepared
}

// packageOutputs returns the path of the final artifact: the single output
// file as-is, or a store-only archive when there is more than one
func (w *DownloadWorker) packageOutputs(job *model.Job, album *model.AlbumInfo, outputs []*model.TrackOutput, scratchDir string) (string, error) {
	var files []string
	for _, out := range outputs {
		files = append(files, out.Paths...)
	}

	if len(files) == 1 {
		return files[0], nil
	}

	folder := naming.Render(job.ArchiveTemplate, naming.AlbumData(album))
	zipPath := filepath.Join(scratchDir, folder+".zip")
	if _, err := archive.CreateZip(zipPath, folder, files); err != nil {
		return "", err
	}
	return zipPath, nil
}

// contentTypeFor derives the upload content type from the artifact itself:
// a raw-fallback file can carry a different extension than the job's target
// format.
func contentTypeFor(fileName string) string {
	ext := strings.ToLower(filepath.Ext(fileName))
	if ext == ".zip" {
		return "application/zip"
	}
	return model.AudioFormat(strings.TrimPrefix(ext, ".")).MIMEType()
}

func (w *DownloadWorker) setProgress(ctx context.Context, jobID string, progress int, status model.JobStatus, description string) {
	if _, err := w.jobs.Update(ctx, jobID, func(job *model.Job) {
		if progress > job.Progress {
			job.Progress = progress
		}
		if !job.Status.Terminal() {
			job.Status = status
		}
		job.Description = description
	}); err != nil {
		log.Printf("Failed to update progress for job %s: %v", jobID, err)
	}
	if w.hub != nil {
		w.hub.BroadcastProgress(jobID, progress, status, description)
	}
}

func (w *DownloadWorker) failJob(ctx context.Context, jobID, errMsg string) {
	if err := w.jobs.FailJob(ctx, jobID, errMsg); err != nil {
		log.Printf("Failed to mark job %s as failed: %v", jobID, err)
	}
	if w.hub != nil {
		w.hub.BroadcastError(jobID, "DOWNLOAD_FAILED", errMsg)
	}
}

func (w *DownloadWorker) broadcastComplete(jobID, fileName string, fileSize int64, downloadURL string) {
	if w.hub == nil {
		return
	}
	w.hub.BroadcastComplete(jobID, &model.DownloadResultResponse{
		JobID:       jobID,
		FileName:    fileName,
		FileSize:    fileSize,
		DownloadURL: downloadURL,
	})
}
