package service

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/tunevault/api/internal/config"
)

// QuotaDecision is the outcome of a quota check for a finished artifact.
// A denied artifact still completes the job; it just never reaches storage.
type QuotaDecision struct {
	Allowed     bool
	Description string
}

// DecideQuota checks whether storing size more bytes keeps the user inside
// the rolling-window ceiling. Exactly at the ceiling is still allowed.
func DecideQuota(usedBytes, ceilingBytes, sizeBytes int64) QuotaDecision {
	if usedBytes+sizeBytes <= ceilingBytes {
		return QuotaDecision{Allowed: true}
	}
	return QuotaDecision{
		Allowed: false,
		Description: fmt.Sprintf(
			"storage quota exceeded: using %s of %s, file of %s was not stored",
			formatBytes(usedBytes), formatBytes(ceilingBytes), formatBytes(sizeBytes),
		),
	}
}

func formatBytes(n int64) string {
	switch {
	case n >= 1<<30:
		return fmt.Sprintf("%.1f GB", float64(n)/float64(1<<30))
	case n >= 1<<20:
		return fmt.Sprintf("%.1f MB", float64(n)/float64(1<<20))
	default:
		return fmt.Sprintf("%d B", n)
	}
}

// QuotaService tracks per-user stored bytes over a rolling window
type QuotaService struct {
	redis *redis.Client
	cfg   *config.Config
}

func NewQuotaService(redisClient *redis.Client, cfg *config.Config) *QuotaService {
	return &QuotaService{
		redis: redisClient,
		cfg:   cfg,
	}
}

// Check returns the quota decision for storing sizeBytes on behalf of
// userID. Guest jobs are exempt and always allowed.
func (s *QuotaService) Check(ctx context.Context, userID string, sizeBytes int64) (QuotaDecision, error) {
	if userID == "" {
		return QuotaDecision{Allowed: true}, nil
	}

	used, err := s.usedBytes(ctx, userID)
	if err != nil {
		return QuotaDecision{}, err
	}
	return DecideQuota(used, s.cfg.Quota.CeilingBytes, sizeBytes), nil
}

// Record registers a stored artifact against the user's window. Guests
// are never recorded.
func (s *QuotaService) Record(ctx context.Context, userID, jobID string, sizeBytes int64) error {
	if userID == "" {
		return nil
	}

	now := time.Now()
	key := quotaKey(userID)
	member := fmt.Sprintf("%s:%d", jobID, sizeBytes)

	pipe := s.redis.Pipeline()
	pipe.ZAdd(ctx, key, redis.Z{Score: float64(now.Unix()), Member: member})
	pipe.Expire(ctx, key, s.window()+24*time.Hour)
	_, err := pipe.Exec(ctx)
	return err
}

func (s *QuotaService) usedBytes(ctx context.Context, userID string) (int64, error) {
	key := quotaKey(userID)
	cutoff := time.Now().Add(-s.window()).Unix()

	// Drop entries that rolled out of the window before summing
	if err := s.redis.ZRemRangeByScore(ctx, key, "-inf", fmt.Sprintf("(%d", cutoff)).Err(); err != nil {
		return 0, err
	}

	members, err := s.redis.ZRange(ctx, key, 0, -1).Result()
	if err != nil {
		return 0, err
	}

	var total int64
	for _, m := range members {
		idx := strings.LastIndex(m, ":")
		if idx < 0 {
			continue
		}
		size, err := strconv.ParseInt(m[idx+1:], 10, 64)
		if err != nil {
			continue
		}
		total += size
	}
	return total, nil
}

func (s *QuotaService) window() time.Duration {
	return time.Duration(s.cfg.Quota.WindowDays) * 24 * time.Hour
}

func quotaKey(userID string) string {
	return fmt.Sprintf("quota:%s", userID)
}
