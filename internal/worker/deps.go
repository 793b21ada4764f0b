package worker

import (
	"context"

	"github.com/tunevault/api/internal/model"
	"github.com/tunevault/api/internal/service"
)

// JobStore is the slice of job persistence the worker needs
type JobStore interface {
	Get(ctx context.Context, jobID string) (*model.Job, error)
	Update(ctx context.Context, jobID string, mutate func(*model.Job)) (*model.Job, error)
	SetProgress(ctx context.Context, jobID string, progress int, description string) error
	CompleteJob(ctx context.Context, jobID string, fileName string, fileSize int64, downloadURL, description string) error
	FailJob(ctx context.Context, jobID string, errMsg string) error
}

// QuotaKeeper decides whether finished artifacts may be stored and records
// the ones that were
type QuotaKeeper interface {
	Check(ctx context.Context, userID string, sizeBytes int64) (service.QuotaDecision, error)
	Record(ctx context.Context, userID, jobID string, sizeBytes int64) error
}

// Notifier pushes job events to connected clients
type Notifier interface {
	BroadcastProgress(jobID string, progress int, status model.JobStatus, description string)
	BroadcastComplete(jobID string, result interface{})
	BroadcastError(jobID string, code, message string)
}
