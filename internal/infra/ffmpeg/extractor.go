package ffmpeg

import (
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/edc22osm/viofo2jpg/internal/domain/entity"
	"go.uber.org/zap"
)

const defaultTimeout = 60 * time.Second

// Extractor pulls single still frames out of a video with the ffmpeg
// binary. The binary path is configurable so tests and non-standard
// installs can point elsewhere.
type Extractor struct {
	ffmpegPath  string
	ffprobePath string
	timeout     time.Duration
	logger      *zap.Logger
}

func NewExtractor(ffmpegPath, ffprobePath string, logger *zap.Logger) *Extractor {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	if ffprobePath == "" {
		ffprobePath = "ffprobe"
	}
	return &Extractor{
		ffmpegPath:  ffmpegPath,
		ffprobePath: ffprobePath,
		timeout:     defaultTimeout,
		logger:      logger,
	}
}

// ExtractFrame writes the frame nearest to offset as a single JPEG at
// outPath. A transient ffmpeg failure is retried once.
func (e *Extractor) ExtractFrame(ctx context.Context, videoPath string, offset time.Duration, crop entity.CropRect, outPath string) error {
	args := []string{
		"-loglevel", "error",
		"-ss", formatOffset(offset),
		"-i", videoPath,
	}
	if !crop.IsZero() {
		args = append(args, "-filter:v", "crop="+crop.String())
	}
	args = append(args,
		"-frames:v", "1",
		"-qscale:v", "1",
		"-y",
		outPath,
	)

	var lastErr error
	for attempt := 0; attempt < 2; attempt++ {
		runCtx, cancel := context.WithTimeout(ctx, e.timeout)
		cmd := exec.CommandContext(runCtx, e.ffmpegPath, args...)
		output, err := cmd.CombinedOutput()
		cancel()
		if err == nil {
			return nil
		}
		lastErr = fmt.Errorf("%w: ffmpeg: %v, output: %s", entity.ErrExternalTool, err, strings.TrimSpace(string(output)))
		if ctx.Err() != nil {
			return lastErr
		}
		e.logger.Warn("ffmpeg failed, retrying",
			zap.String("video", videoPath),
			zap.Duration("offset", offset),
			zap.Error(err),
		)
	}
	return lastErr
}

// VideoDuration probes the container duration in seconds.
func (e *Extractor) VideoDuration(ctx context.Context, videoPath string) (float64, error) {
	runCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, e.ffprobePath,
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		videoPath,
	)
	output, err := cmd.Output()
	if err != nil {
		return 0, fmt.Errorf("%w: ffprobe: %v", entity.ErrExternalTool, err)
	}

	duration, err := strconv.ParseFloat(strings.TrimSpace(string(output)), 64)
	if err != nil {
		return 0, fmt.Errorf("%w: ffprobe: parse duration: %v", entity.ErrExternalTool, err)
	}
	return duration, nil
}

// formatOffset renders a duration as fractional seconds the way ffmpeg
// expects its -ss argument.
func formatOffset(d time.Duration) string {
	return strconv.FormatFloat(d.Seconds(), 'f', 3, 64)
}
