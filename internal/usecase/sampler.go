package usecase

import (
	"sort"
	"time"

	"github.com/edc22osm/viofo2jpg/internal/domain/entity"
	"github.com/edc22osm/viofo2jpg/internal/geo"
)

// Sampler maps frame timestamps onto track fixes and applies the minimum
// travel distance filter. All fields are run-wide configuration; per-file
// filter state lives in SampleState so independent files can be processed
// concurrently.
type Sampler struct {
	// MaxSkew is the largest time difference allowed between a frame and
	// the fix resolved for it. Frames with no fix inside the skew get a
	// nil fix.
	MaxSkew time.Duration
	// MinDistance is the minimum travel distance in meters from the last
	// accepted fix. A candidate exactly at the threshold is accepted.
	MinDistance float64
	// NoSkip disables the distance filter entirely.
	NoSkip bool
}

// SampleState is the distance filter accumulator for one file or sequence.
type SampleState struct {
	hasLast bool
	lastLat float64
	lastLon float64
}

// Resolve returns the track fix closest to ts, or nil when no fix lies
// within the sampler's maximum skew.
func (s Sampler) Resolve(track entity.Track, ts time.Time) *entity.GpsFix {
	if track.Empty() {
		return nil
	}

	fixes := track.Fixes
	i := sort.Search(len(fixes), func(i int) bool {
		return !fixes[i].Time.Before(ts)
	})

	best := -1
	var bestDiff time.Duration
	for _, cand := range []int{i - 1, i} {
		if cand < 0 || cand >= len(fixes) {
			continue
		}
		diff := ts.Sub(fixes[cand].Time)
		if diff < 0 {
			diff = -diff
		}
		if best == -1 || diff < bestDiff {
			best = cand
			bestDiff = diff
		}
	}
	if best == -1 || bestDiff > s.MaxSkew {
		return nil
	}

	fix := fixes[best]
	return &fix
}

// Accept applies the distance filter to a resolved fix, updating the
// accumulator only for accepted fixes. The first fix of a file or
// sequence is always accepted. Frames with no fix pass through: they
// carry no position to filter on and do not advance the accumulator.
func (s Sampler) Accept(st *SampleState, fix *entity.GpsFix) bool {
	if fix == nil {
		return true
	}
	if !st.hasLast {
		st.hasLast = true
		st.lastLat = fix.Latitude
		st.lastLon = fix.Longitude
		return true
	}
	if s.NoSkip {
		st.lastLat = fix.Latitude
		st.lastLon = fix.Longitude
		return true
	}

	dist := geo.Haversine(st.lastLat, st.lastLon, fix.Latitude, fix.Longitude)
	if dist < s.MinDistance {
		return false
	}
	st.lastLat = fix.Latitude
	st.lastLon = fix.Longitude
	return true
}
