package gpx

import (
	"strings"
	"testing"
	"time"

	"github.com/edc22osm/viofo2jpg/internal/domain/entity"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWrite(t *testing.T) {
	base := time.Date(2017, 8, 12, 10, 20, 30, 0, time.UTC)
	track := entity.Track{
		File:       "a.mp4",
		VideoStart: base,
		Fixes: []entity.GpsFix{
			{Time: base, Latitude: 48.1173, Longitude: 11.5167, Speed: 10, Bearing: 90, Valid: true},
			{Time: base.Add(time.Second), Latitude: 48.1174, Longitude: 11.5168, Speed: 11, Bearing: 91, Valid: true},
		},
	}

	var b strings.Builder
	require.NoError(t, Write(&b, "clip <1> & 2", track))
	out := b.String()

	assert.Contains(t, out, `<?xml version="1.0" encoding="UTF-8"?>`)
	assert.Contains(t, out, `version="1.0"`)
	assert.Equal(t, 2, strings.Count(out, "<trkpt "))
	assert.Contains(t, out, `lat="48.117300"`)
	assert.Contains(t, out, "<time>2017-08-12T10:20:30Z</time>")
	assert.Contains(t, out, "<name>clip &lt;1&gt; &amp; 2</name>")
	assert.NotContains(t, out, "clip <1>")
}

func TestWriteEmptyTrack(t *testing.T) {
	var b strings.Builder
	require.NoError(t, Write(&b, "empty", entity.Track{File: "a.mp4"}))
	out := b.String()
	assert.NotContains(t, out, "<trkpt")
	assert.Contains(t, out, "<trkseg>")
}
