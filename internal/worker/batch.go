package worker

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/tunevault/api/internal/model"
)

const (
	// progress is pinned to [progressBase, progressBase+progressSpan] while
	// tracks are downloading; the remainder covers packaging and upload
	progressBase = 5
	progressSpan = 75

	lyricsPrefetchCount = 5
)

// errJobCancelled aborts batch processing when the job was cancelled
// externally between windows
var errJobCancelled = errors.New("job cancelled")

// runBatches processes tracks in fixed windows. All tracks of a window run
// concurrently and the next window starts only when the whole window is done.
// A failed track is logged and skipped; the album keeps going.
func (w *DownloadWorker) runBatches(ctx context.Context, pipeline *trackPipeline, job *model.Job, album *model.AlbumInfo, tracks []model.TrackInfo, coverArt []byte, scratchDir string, sink *progressSink) ([]*model.TrackOutput, error) {
	batchSize := w.concurrency
	if batchSize < 1 {
		batchSize = 1
	}

	w.prefetchLyrics(ctx, job, album, tracks)

	var (
		mu      sync.Mutex
		outputs []*model.TrackOutput
		done    int
	)

	for start := 0; start < len(tracks); start += batchSize {
		// A cancel request lands in the store; honor it between windows
		current, err := w.jobs.Get(ctx, job.ID)
		if err == nil && current.Status == model.JobStatusCancelled {
			log.Printf("Job %s cancelled, stopping after %d/%d tracks", job.ID, done, len(tracks))
			return nil, errJobCancelled
		}

		end := start + batchSize
		if end > len(tracks) {
			end = len(tracks)
		}

		g, gctx := errgroup.WithContext(ctx)
		for i := start; i < end; i++ {
			track := tracks[i]
			g.Go(func() error {
				out, err := pipeline.process(gctx, job, album, &track, coverArt, scratchDir)

				mu.Lock()
				defer mu.Unlock()
				done++
				if err != nil {
					log.Printf("Job %s: track %d failed: %v", job.ID, track.ID, err)
				} else {
					outputs = append(outputs, out)
				}

				progress := progressBase + done*progressSpan/len(tracks)
				sink.Send(progress, model.JobStatusDownloading,
					fmt.Sprintf("Downloading tracks (%d/%d)...", done, len(tracks)))
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}
	}

	return outputs, nil
}

// prefetchLyrics warms the lyrics cache for the first tracks so the first
// window doesn't serialize on lookups
func (w *DownloadWorker) prefetchLyrics(ctx context.Context, job *model.Job, album *model.AlbumInfo, tracks []model.TrackInfo) {
	if job.LyricsMode == model.LyricsModeOff || w.lyrics == nil {
		return
	}

	n := lyricsPrefetchCount
	if n > len(tracks) {
		n = len(tracks)
	}
	for i := 0; i < n; i++ {
		track := tracks[i]
		go func() {
			w.lyrics.Resolve(ctx, lyricsQueryFor(album, &track))
		}()
	}
}
