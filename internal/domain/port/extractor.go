package port

import (
	"context"
	"time"

	"github.com/edc22osm/viofo2jpg/internal/domain/entity"
)

// FrameExtractor pulls single still images out of a video file. The crop
// rectangle may be zero for no cropping.
type FrameExtractor interface {
	ExtractFrame(ctx context.Context, videoPath string, offset time.Duration, crop entity.CropRect, outPath string) error
	VideoDuration(ctx context.Context, videoPath string) (float64, error)
}
