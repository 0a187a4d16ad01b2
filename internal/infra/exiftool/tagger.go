package exiftool

import (
	"context"
	"fmt"
	"math"
	"os/exec"
	"strings"
	"time"

	"github.com/edc22osm/viofo2jpg/internal/domain/entity"
	"go.uber.org/zap"
)

const (
	defaultTimeout = 30 * time.Second
	exifTimeLayout = "2006:01:02 15:04:05"
)

// Tagger writes GPS metadata into images by shelling out to exiftool.
type Tagger struct {
	path    string
	timeout time.Duration
	logger  *zap.Logger
}

func NewTagger(path string, logger *zap.Logger) *Tagger {
	if path == "" {
		path = "exiftool"
	}
	return &Tagger{path: path, timeout: defaultTimeout, logger: logger}
}

// WriteGeoTag embeds the fix's position, bearing and capture time into the
// image in place. A transient exiftool failure is retried once.
func (t *Tagger) WriteGeoTag(ctx context.Context, imagePath string, fix entity.GpsFix) error {
	latRef, lonRef := "N", "E"
	if fix.Latitude < 0 {
		latRef = "S"
	}
	if fix.Longitude < 0 {
		lonRef = "W"
	}

	args := []string{
		"-overwrite_original",
		fmt.Sprintf("-GPSLatitude=%.7f", math.Abs(fix.Latitude)),
		"-GPSLatitudeRef=" + latRef,
		fmt.Sprintf("-GPSLongitude=%.7f", math.Abs(fix.Longitude)),
		"-GPSLongitudeRef=" + lonRef,
		fmt.Sprintf("-GPSImgDirection=%.2f", fix.Bearing),
		"-GPSImgDirectionRef=T",
		fmt.Sprintf("-GPSSpeed=%.4f", fix.Speed*3.6),
		"-GPSSpeedRef=K",
	}
	if fix.Altitude != nil {
		args = append(args,
			fmt.Sprintf("-GPSAltitude=%.1f", math.Abs(*fix.Altitude)),
			"-GPSAltitudeRef="+altitudeRef(*fix.Altitude),
		)
	}
	if !fix.Time.IsZero() {
		ts := fix.Time.UTC().Format(exifTimeLayout)
		args = append(args,
			"-DateTimeOriginal="+ts,
			"-CreateDate="+ts,
			"-GPSDateStamp="+fix.Time.UTC().Format("2006:01:02"),
			"-GPSTimeStamp="+fix.Time.UTC().Format("15:04:05"),
		)
	}
	args = append(args, imagePath)

	var lastErr error
	for attempt := 0; attempt < 2; attempt++ {
		runCtx, cancel := context.WithTimeout(ctx, t.timeout)
		cmd := exec.CommandContext(runCtx, t.path, args...)
		output, err := cmd.CombinedOutput()
		cancel()
		if err == nil {
			return nil
		}
		lastErr = fmt.Errorf("%w: exiftool: %v, output: %s", entity.ErrExternalTool, err, strings.TrimSpace(string(output)))
		if ctx.Err() != nil {
			return lastErr
		}
		t.logger.Warn("exiftool failed, retrying",
			zap.String("image", imagePath),
			zap.Error(err),
		)
	}
	return lastErr
}

// altitudeRef maps to the EXIF convention: 0 above sea level, 1 below.
func altitudeRef(alt float64) string {
	if alt < 0 {
		return "1"
	}
	return "0"
}
