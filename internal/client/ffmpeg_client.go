package client

import (
	"bytes"
	"context"
	"fmt"
	"log"
	"os/exec"
	"strings"
	"time"

	"github.com/tunevault/api/internal/config"
)

// Transcoder defines the interface to the external codec tool
type Transcoder interface {
	Run(ctx context.Context, args ...string) error
}

// FFmpegClient invokes the ffmpeg binary for transcode and remux passes
type FFmpegClient struct {
	binary  string
	timeout time.Duration
}

// NewFFmpegClient creates a new codec tool wrapper
func NewFFmpegClient(cfg *config.FFmpegConfig) *FFmpegClient {
	return &FFmpegClient{
		binary:  cfg.Binary,
		timeout: time.Duration(cfg.Timeout) * time.Second,
	}
}

// Run executes one ffmpeg invocation. Output files are overwritten; stderr is
// folded into the returned error so callers can log the real failure.
func (c *FFmpegClient) Run(ctx context.Context, args ...string) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	full := append([]string{"-y", "-hide_banner", "-loglevel", "error"}, args...)
	cmd := exec.CommandContext(ctx, c.binary, full...)

	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out

	log.Printf("[FFmpeg] %s %s", c.binary, strings.Join(args, " "))

	if err := cmd.Run(); err != nil {
		return fmt.Errorf("ffmpeg failed: %v: %s", err, truncate(out.String(), 512))
	}
	return nil
}

// IsConfigured returns true if the client has a binary path set
func (c *FFmpegClient) IsConfigured() bool {
	return c.binary != ""
}

func truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
