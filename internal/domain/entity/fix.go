package entity

import "time"

// GpsFix is one decoded telemetry sample from the camera firmware.
// Latitude and longitude are signed decimal degrees (WGS84), speed is in
// m/s, bearing in degrees [0,360). A fix the firmware marked as "no fix"
// decodes with Valid=false and is dropped by the track builder.
type GpsFix struct {
	Time      time.Time
	Latitude  float64
	Longitude float64
	Altitude  *float64
	Speed     float64
	Bearing   float64
	Valid     bool
}

// InBounds reports whether the coordinates are inside the WGS84 domain.
func (f GpsFix) InBounds() bool {
	return f.Latitude >= -90 && f.Latitude <= 90 &&
		f.Longitude >= -180 && f.Longitude <= 180
}

// Track is the time-ordered sequence of valid fixes for one source video.
// It is immutable after construction and owned by the pipeline run
// processing that file.
type Track struct {
	File string
	// VideoStart is the UTC wall-clock time of the video's first frame,
	// inferred from the first fix and the number of records recorded
	// before GPS lock. Zero when the track is empty.
	VideoStart time.Time
	Fixes      []GpsFix
}

func (t Track) Empty() bool {
	return len(t.Fixes) == 0
}

func (t Track) Start() time.Time {
	if t.Empty() {
		return time.Time{}
	}
	return t.Fixes[0].Time
}

func (t Track) End() time.Time {
	if t.Empty() {
		return time.Time{}
	}
	return t.Fixes[len(t.Fixes)-1].Time
}
