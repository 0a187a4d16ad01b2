package novatek

import (
	"sort"
	"time"

	"github.com/edc22osm/viofo2jpg/internal/domain/entity"
	"github.com/edc22osm/viofo2jpg/internal/geo"
)

// maxPlausibleSpeed in m/s; points implying faster travel from the track's
// median position are GPS glitches.
const maxPlausibleSpeed = 1000.0

// TrackBuilder accumulates decoded fixes for one source file, discards
// invalid ones and produces a time-ordered track.
type TrackBuilder struct {
	file  string
	fixes []entity.GpsFix
}

func NewTrackBuilder(file string) *TrackBuilder {
	return &TrackBuilder{file: file}
}

// Add appends a fix. Fixes flagged invalid by the firmware are dropped.
func (b *TrackBuilder) Add(fix entity.GpsFix) {
	if !fix.Valid {
		return
	}
	b.fixes = append(b.fixes, fix)
}

// Build sorts the accumulated fixes by timestamp (stable, ties keep
// arrival order) and returns the track. Zero valid fixes yields an
// explicitly empty track, not an error.
func (b *TrackBuilder) Build(videoStart time.Time) entity.Track {
	fixes := make([]entity.GpsFix, len(b.fixes))
	copy(fixes, b.fixes)
	sort.SliceStable(fixes, func(i, j int) bool {
		return fixes[i].Time.Before(fixes[j].Time)
	})
	return entity.Track{
		File:       b.file,
		VideoStart: videoStart,
		Fixes:      fixes,
	}
}

// RemoveOutliers drops fixes whose distance from the track's median point
// implies an impossible speed. Returns the filtered track and the number
// of fixes removed.
func RemoveOutliers(t entity.Track) (entity.Track, int) {
	if len(t.Fixes) < 3 {
		return t, 0
	}

	lats := make([]float64, len(t.Fixes))
	lons := make([]float64, len(t.Fixes))
	epochs := make([]int64, len(t.Fixes))
	for i, f := range t.Fixes {
		lats[i] = f.Latitude
		lons[i] = f.Longitude
		epochs[i] = f.Time.Unix()
	}
	sort.Float64s(lats)
	sort.Float64s(lons)
	sort.Slice(epochs, func(i, j int) bool { return epochs[i] < epochs[j] })

	midLat := lats[len(lats)/2]
	midLon := lons[len(lons)/2]
	midEpoch := epochs[len(epochs)/2]

	kept := t.Fixes[:0:0]
	removed := 0
	for _, f := range t.Fixes {
		dist := geo.Haversine(midLat, midLon, f.Latitude, f.Longitude)
		dt := f.Time.Unix() - midEpoch
		if dt < 0 {
			dt = -dt
		}
		speed := 0.0
		if dt > 0 {
			speed = dist / float64(dt)
		}
		if speed > maxPlausibleSpeed {
			removed++
			continue
		}
		kept = append(kept, f)
	}
	t.Fixes = kept
	return t, removed
}

// MergeDuplicates merges fixes sharing the same timestamp into one fix at
// their spherical centroid with averaged speed and bearing. Returns the
// merged track and the number of fixes folded away.
func MergeDuplicates(t entity.Track) (entity.Track, int) {
	if len(t.Fixes) < 2 {
		return t, 0
	}

	merged := make([]entity.GpsFix, 0, len(t.Fixes))
	folded := 0
	for i := 0; i < len(t.Fixes); {
		j := i + 1
		for j < len(t.Fixes) && t.Fixes[j].Time.Equal(t.Fixes[i].Time) {
			j++
		}
		if j == i+1 {
			merged = append(merged, t.Fixes[i])
			i = j
			continue
		}

		group := t.Fixes[i:j]
		lats := make([]float64, len(group))
		lons := make([]float64, len(group))
		var speed, bearing float64
		for k, f := range group {
			lats[k] = f.Latitude
			lons[k] = f.Longitude
			speed += f.Speed
			bearing += f.Bearing
		}
		center := group[0]
		center.Latitude, center.Longitude = geo.Centroid(lats, lons)
		center.Speed = speed / float64(len(group))
		center.Bearing = bearing / float64(len(group))
		merged = append(merged, center)
		folded += len(group) - 1
		i = j
	}
	t.Fixes = merged
	return t, folded
}
