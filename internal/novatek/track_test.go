package novatek

import (
	"testing"
	"time"

	"github.com/edc22osm/viofo2jpg/internal/domain/entity"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixAt(ts time.Time, lat, lon float64) entity.GpsFix {
	return entity.GpsFix{Time: ts, Latitude: lat, Longitude: lon, Valid: true}
}

func TestTrackBuilderSortsByTime(t *testing.T) {
	base := time.Date(2020, 7, 1, 9, 0, 0, 0, time.UTC)
	b := NewTrackBuilder("a.mp4")
	b.Add(fixAt(base.Add(2*time.Second), 48.0002, 11))
	b.Add(fixAt(base, 48.0000, 11))
	b.Add(fixAt(base.Add(time.Second), 48.0001, 11))

	track := b.Build(base)
	require.Len(t, track.Fixes, 3)
	assert.Equal(t, "a.mp4", track.File)
	assert.Equal(t, base, track.VideoStart)
	for i := 1; i < len(track.Fixes); i++ {
		assert.False(t, track.Fixes[i].Time.Before(track.Fixes[i-1].Time))
	}
}

func TestTrackBuilderDropsInvalid(t *testing.T) {
	base := time.Date(2020, 7, 1, 9, 0, 0, 0, time.UTC)
	b := NewTrackBuilder("a.mp4")
	b.Add(fixAt(base, 48, 11))
	b.Add(entity.GpsFix{Time: base.Add(time.Second), Valid: false})
	b.Add(fixAt(base.Add(2*time.Second), 48.0001, 11))

	track := b.Build(base)
	assert.Len(t, track.Fixes, 2)
}

func TestTrackBuilderEmpty(t *testing.T) {
	track := NewTrackBuilder("a.mp4").Build(time.Time{})
	assert.True(t, track.Empty())
	assert.True(t, track.Start().IsZero())
	assert.True(t, track.End().IsZero())
}

func TestRemoveOutliers(t *testing.T) {
	base := time.Date(2020, 7, 1, 9, 0, 0, 0, time.UTC)
	b := NewTrackBuilder("a.mp4")
	for i := 0; i < 5; i++ {
		b.Add(fixAt(base.Add(time.Duration(i)*time.Second), 48+float64(i)*0.0001, 11))
	}
	// A point on another continent one second later is a glitch.
	b.Add(fixAt(base.Add(5*time.Second), -33.9, 151.2))
	track := b.Build(base)

	cleaned, removed := RemoveOutliers(track)
	assert.Equal(t, 1, removed)
	assert.Len(t, cleaned.Fixes, 5)
	for _, f := range cleaned.Fixes {
		assert.InDelta(t, 48, f.Latitude, 0.01)
	}
}

func TestRemoveOutliersKeepsShortTracks(t *testing.T) {
	base := time.Date(2020, 7, 1, 9, 0, 0, 0, time.UTC)
	b := NewTrackBuilder("a.mp4")
	b.Add(fixAt(base, 48, 11))
	b.Add(fixAt(base.Add(time.Second), -33.9, 151.2))
	track := b.Build(base)

	cleaned, removed := RemoveOutliers(track)
	assert.Equal(t, 0, removed)
	assert.Len(t, cleaned.Fixes, 2)
}

func TestMergeDuplicates(t *testing.T) {
	base := time.Date(2020, 7, 1, 9, 0, 0, 0, time.UTC)
	b := NewTrackBuilder("a.mp4")
	f1 := fixAt(base, 48.0000, 11.0000)
	f1.Speed, f1.Bearing = 10, 90
	f2 := fixAt(base, 48.0002, 11.0000)
	f2.Speed, f2.Bearing = 20, 100
	b.Add(f1)
	b.Add(f2)
	b.Add(fixAt(base.Add(time.Second), 48.0004, 11.0000))
	track := b.Build(base)

	merged, folded := MergeDuplicates(track)
	assert.Equal(t, 1, folded)
	require.Len(t, merged.Fixes, 2)

	center := merged.Fixes[0]
	assert.Equal(t, base, center.Time)
	assert.InDelta(t, 48.0001, center.Latitude, 1e-5)
	assert.InDelta(t, 11.0000, center.Longitude, 1e-5)
	assert.InDelta(t, 15, center.Speed, 1e-9)
	assert.InDelta(t, 95, center.Bearing, 1e-9)
}

func TestMergeDuplicatesNoDuplicates(t *testing.T) {
	base := time.Date(2020, 7, 1, 9, 0, 0, 0, time.UTC)
	b := NewTrackBuilder("a.mp4")
	b.Add(fixAt(base, 48, 11))
	b.Add(fixAt(base.Add(time.Second), 48.0001, 11))
	track := b.Build(base)

	merged, folded := MergeDuplicates(track)
	assert.Equal(t, 0, folded)
	assert.Len(t, merged.Fixes, 2)
}
