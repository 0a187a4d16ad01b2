package port

import (
	"context"

	"github.com/edc22osm/viofo2jpg/internal/domain/entity"
)

// GeoTagger embeds standard GPS metadata into an image file in place.
type GeoTagger interface {
	WriteGeoTag(ctx context.Context, imagePath string, fix entity.GpsFix) error
}
