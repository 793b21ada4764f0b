package worker

import (
	"context"
	"log"
	"time"

	"github.com/tunevault/api/internal/model"
)

type progressUpdate struct {
	progress    int
	status      model.JobStatus
	description string
}

// progressSink persists progress updates off the processing hot path. Sends
// never block: when the buffer is full the update is dropped, since a later
// update supersedes it anyway. Stale updates that would move progress
// backwards are discarded.
type progressSink struct {
	jobID   string
	store   JobStore
	hub     Notifier
	updates chan progressUpdate
	done    chan struct{}
}

func newProgressSink(jobID string, store JobStore, hub Notifier) *progressSink {
	s := &progressSink{
		jobID:   jobID,
		store:   store,
		hub:     hub,
		updates: make(chan progressUpdate, 16),
		done:    make(chan struct{}),
	}
	go s.drain()
	return s
}

// Send queues a progress update without blocking
func (s *progressSink) Send(progress int, status model.JobStatus, description string) {
	select {
	case s.updates <- progressUpdate{progress: progress, status: status, description: description}:
	default:
	}
}

// Close stops accepting updates and waits for queued ones to be persisted
func (s *progressSink) Close() {
	close(s.updates)
	<-s.done
}

func (s *progressSink) drain() {
	defer close(s.done)

	last := -1
	for u := range s.updates {
		if u.progress < last {
			continue
		}
		last = u.progress

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if _, err := s.store.Update(ctx, s.jobID, func(job *model.Job) {
			if u.progress > job.Progress {
				job.Progress = u.progress
			}
			if u.status != "" && !job.Status.Terminal() {
				job.Status = u.status
			}
			if u.description != "" {
				job.Description = u.description
			}
		}); err != nil {
			log.Printf("Failed to persist progress for job %s: %v", s.jobID, err)
		}
		cancel()

		if s.hub != nil {
			s.hub.BroadcastProgress(s.jobID, u.progress, u.status, u.description)
		}
	}
}
