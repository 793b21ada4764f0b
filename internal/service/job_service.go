package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
	"github.com/tunevault/api/internal/client"
	"github.com/tunevault/api/internal/config"
	"github.com/tunevault/api/internal/model"
)

const (
	TaskTypeDownload = "download:process"

	jobTTL = 24 * time.Hour
)

// JobService handles download job management
type JobService struct {
	redis       *redis.Client
	asynqClient *asynq.Client
	storage     client.StorageClient
	cfg         *config.Config
}

func NewJobService(redisClient *redis.Client, asynqClient *asynq.Client, storage client.StorageClient, cfg *config.Config) *JobService {
	return &JobService{
		redis:       redisClient,
		asynqClient: asynqClient,
		storage:     storage,
		cfg:         cfg,
	}
}

// StartDownload queues a new download job
func (s *JobService) StartDownload(ctx context.Context, req *model.DownloadStartRequest, userID string) (*model.DownloadStartResponse, error) {
	jobID := uuid.New().String()
	now := time.Now()

	job := &model.Job{
		ID:              jobID,
		Type:            req.Type,
		AlbumID:         req.AlbumID,
		TrackID:         req.TrackID,
		Source:          req.Source,
		Region:          req.Region,
		Format:          req.Format,
		Bitrate:         req.Bitrate,
		TrackTemplate:   req.TrackTemplate,
		ArchiveTemplate: req.ArchiveTemplate,
		LyricsMode:      req.LyricsMode,
		Status:          model.JobStatusPending,
		Progress:        0,
		UserID:          userID,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	s.applyDefaults(job)

	if err := s.saveJob(ctx, job); err != nil {
		return nil, fmt.Errorf("failed to save job: %w", err)
	}

	task, err := newDownloadTask(jobID)
	if err != nil {
		return nil, fmt.Errorf("failed to create task: %w", err)
	}

	// Retries for transient per-track failures happen inside the worker;
	// a task that returns an error already marked the job failed.
	_, err = s.asynqClient.Enqueue(task,
		asynq.Queue("download"),
		asynq.MaxRetry(0),
		asynq.Retention(24*time.Hour),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to enqueue task: %w", err)
	}

	return &model.DownloadStartResponse{
		JobID:     jobID,
		Status:    model.JobStatusPending,
		CreatedAt: now,
	}, nil
}

// GetStatus returns the current status of a download job
func (s *JobService) GetStatus(ctx context.Context, jobID string) (*model.DownloadStatusResponse, error) {
	job, err := s.Get(ctx, jobID)
	if err != nil {
		return nil, err
	}

	return &model.DownloadStatusResponse{
		JobID:       job.ID,
		Status:      job.Status,
		Progress:    job.Progress,
		Description: job.Description,
		Error:       job.Error,
		CreatedAt:   job.CreatedAt,
		UpdatedAt:   job.UpdatedAt,
	}, nil
}

// GetResult returns the artifact details of a completed download job
func (s *JobService) GetResult(ctx context.Context, jobID string) (*model.DownloadResultResponse, error) {
	job, err := s.Get(ctx, jobID)
	if err != nil {
		return nil, err
	}

	if job.Status != model.JobStatusCompleted {
		return nil, fmt.Errorf("job not completed")
	}

	return &model.DownloadResultResponse{
		JobID:       job.ID,
		FileName:    job.FileName,
		FileSize:    job.FileSize,
		DownloadURL: job.DownloadURL,
	}, nil
}

// CancelDownload cancels a download job that has not finished yet
func (s *JobService) CancelDownload(ctx context.Context, jobID string) (*model.DownloadCancelResponse, error) {
	job, err := s.Get(ctx, jobID)
	if err != nil {
		return nil, err
	}

	if job.Status.Terminal() {
		return nil, fmt.Errorf("job already finished")
	}

	job.Status = model.JobStatusCancelled
	job.UpdatedAt = time.Now()

	if err := s.saveJob(ctx, job); err != nil {
		return nil, err
	}

	return &model.DownloadCancelResponse{
		Success: true,
		JobID:   jobID,
		Status:  model.JobStatusCancelled,
	}, nil
}

// DeleteDownload removes a finished job and any stored artifact for it
func (s *JobService) DeleteDownload(ctx context.Context, jobID string) error {
	job, err := s.Get(ctx, jobID)
	if err != nil {
		return err
	}

	if !job.Status.Terminal() {
		return fmt.Errorf("job not finished")
	}

	if s.storage != nil && job.DownloadURL != "" {
		if _, err := s.storage.DeleteByPrefix(ctx, fmt.Sprintf("downloads/%s/", jobID)); err != nil {
			return fmt.Errorf("failed to delete stored files: %w", err)
		}
	}

	return s.redis.Del(ctx, fmt.Sprintf("job:%s", jobID)).Err()
}

// Get loads a job by ID
func (s *JobService) Get(ctx context.Context, jobID string) (*model.Job, error) {
	data, err := s.redis.Get(ctx, fmt.Sprintf("job:%s", jobID)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, fmt.Errorf("job not found")
		}
		return nil, err
	}

	var job model.Job
	if err := json.Unmarshal(data, &job); err != nil {
		return nil, err
	}

	return &job, nil
}

// Update re-reads the job, applies mutate and persists the result with a
// fresh UpdatedAt stamp. A job that was cancelled externally is returned
// untouched so the worker can observe the cancellation.
func (s *JobService) Update(ctx context.Context, jobID string, mutate func(*model.Job)) (*model.Job, error) {
	job, err := s.Get(ctx, jobID)
	if err != nil {
		return nil, err
	}

	if job.Status == model.JobStatusCancelled {
		return job, nil
	}

	mutate(job)
	job.UpdatedAt = time.Now()

	if err := s.saveJob(ctx, job); err != nil {
		return nil, err
	}
	return job, nil
}

// SetProgress updates job progress (called by worker). Progress never
// moves backwards even if updates land out of order.
func (s *JobService) SetProgress(ctx context.Context, jobID string, progress int, description string) error {
	_, err := s.Update(ctx, jobID, func(job *model.Job) {
		if progress > job.Progress {
			job.Progress = progress
		}
		if description != "" {
			job.Description = description
		}
	})
	return err
}

// CompleteJob marks a job as completed (called by worker)
func (s *JobService) CompleteJob(ctx context.Context, jobID string, fileName string, fileSize int64, downloadURL, description string) error {
	_, err := s.Update(ctx, jobID, func(job *model.Job) {
		job.Status = model.JobStatusCompleted
		job.Progress = 100
		job.FileName = fileName
		job.FileSize = fileSize
		job.DownloadURL = downloadURL
		job.Description = description
		job.Error = ""
	})
	return err
}

// FailJob marks a job as failed (called by worker)
func (s *JobService) FailJob(ctx context.Context, jobID string, errMsg string) error {
	_, err := s.Update(ctx, jobID, func(job *model.Job) {
		job.Status = model.JobStatusFailed
		job.Error = errMsg
	})
	return err
}

func (s *JobService) applyDefaults(job *model.Job) {
	if job.Source == "" {
		job.Source = model.SourcePrimary
	}
	if job.Region == "" {
		job.Region = s.cfg.Catalog.DefaultRegion
	}
	if job.LyricsMode == "" {
		job.LyricsMode = model.LyricsModeEmbed
	}
	if job.TrackTemplate == "" {
		job.TrackTemplate = s.cfg.Download.TrackTemplate
	}
	if job.ArchiveTemplate == "" {
		job.ArchiveTemplate = s.cfg.Download.ArchiveTemplate
	}
	if job.Bitrate == 0 && !job.Format.Lossless() {
		job.Bitrate = 320
	}
}

func (s *JobService) saveJob(ctx context.Context, job *model.Job) error {
	data, err := json.Marshal(job)
	if err != nil {
		return err
	}
	return s.redis.Set(ctx, fmt.Sprintf("job:%s", job.ID), data, jobTTL).Err()
}

func newDownloadTask(jobID string) (*asynq.Task, error) {
	data, err := json.Marshal(&model.DownloadJobPayload{JobID: jobID})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTypeDownload, data), nil
}
