package worker

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/tunevault/api/internal/client"
)

// errEmptyDownload marks a download that produced a zero-byte file. The
// provider occasionally serves these for valid URLs; a retry usually fixes it.
var errEmptyDownload = errors.New("downloaded file is empty")

// withRetry runs op up to attempts times with exponential backoff between
// failures (base, 2x base, 4x base, ...). A permanent error stops the loop
// immediately, as does context cancellation.
func withRetry(ctx context.Context, attempts int, base time.Duration, op func(context.Context) error) error {
	if attempts < 1 {
		attempts = 1
	}

	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		err = op(ctx)
		if err == nil {
			return nil
		}
		if errors.Is(err, client.ErrTrackUnavailable) || ctx.Err() != nil {
			return err
		}
		if attempt == attempts {
			break
		}

		delay := base << (attempt - 1)
		log.Printf("attempt %d/%d failed, retrying in %s: %v", attempt, attempts, delay, err)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
	return err
}
