package usecase

import (
	"path/filepath"
	"strings"
	"time"

	"github.com/edc22osm/viofo2jpg/internal/domain/entity"
)

// FileFrames holds one source file's sampled frames in frame order.
type FileFrames struct {
	File    string
	Role    entity.CameraRole
	Samples []entity.FrameSample
}

// Segmenter groups the frames of the filename-ordered source files into
// continuous recording sequences for output placement.
type Segmenter struct {
	// Arrange enables per-sequence output folders. When false the whole
	// run is a single implicit group written to one flat directory.
	Arrange bool
	// ByRole starts a new sequence whenever the camera role changes
	// between consecutive files.
	ByRole bool
	// ContinuityGap is the largest time gap between the last frame of one
	// file and the first frame of the next that still counts as the same
	// continuous recording.
	ContinuityGap time.Duration
}

// Group assigns every file's frames to sequence groups. Directory names
// are deterministic for identical input ordering.
func (s Segmenter) Group(files []FileFrames) []entity.SequenceGroup {
	if !s.Arrange {
		flat := entity.SequenceGroup{}
		for _, f := range files {
			if flat.Start.IsZero() && len(f.Samples) > 0 {
				flat.Start = f.Samples[0].Timestamp
				flat.Role = f.Role
			}
			flat.Samples = append(flat.Samples, f.Samples...)
		}
		if len(flat.Samples) == 0 {
			return nil
		}
		return []entity.SequenceGroup{flat}
	}

	var groups []entity.SequenceGroup
	var cur *entity.SequenceGroup
	var lastTimestamp time.Time

	for _, f := range files {
		if len(f.Samples) == 0 {
			continue
		}
		first := f.Samples[0].Timestamp

		startNew := cur == nil
		if !startNew && s.ByRole && f.Role != cur.Role {
			startNew = true
		}
		if !startNew && (first.IsZero() || lastTimestamp.IsZero()) {
			// A file without wall-clock timestamps (no GPS data) cannot be
			// stitched to its neighbours.
			startNew = true
		}
		if !startNew && first.Sub(lastTimestamp) > s.ContinuityGap {
			startNew = true
		}

		if startNew {
			groups = append(groups, entity.SequenceGroup{
				Dir:   s.dirName(f, first),
				Role:  f.Role,
				Start: first,
			})
			cur = &groups[len(groups)-1]
		}
		cur.Samples = append(cur.Samples, f.Samples...)

		if last := f.Samples[len(f.Samples)-1].Timestamp; !last.IsZero() {
			lastTimestamp = last
		} else {
			lastTimestamp = time.Time{}
		}
	}
	return groups
}

func (s Segmenter) dirName(f FileFrames, start time.Time) string {
	if start.IsZero() {
		// No usable timestamps: fall back to the source base name, which
		// is just as deterministic.
		base := filepath.Base(f.File)
		return string(f.Role) + "_" + strings.TrimSuffix(base, filepath.Ext(base))
	}
	return string(f.Role) + "_" + start.UTC().Format("20060102T150405Z")
}
