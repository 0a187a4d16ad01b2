package usecase

import (
	"testing"
	"time"

	"github.com/edc22osm/viofo2jpg/internal/domain/entity"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fileFrames(file string, role entity.CameraRole, start time.Time, n int) FileFrames {
	ff := FileFrames{File: file, Role: role}
	for i := 0; i < n; i++ {
		ff.Samples = append(ff.Samples, entity.FrameSample{
			SourceFile: file,
			Role:       role,
			Index:      i,
			Offset:     time.Duration(i) * time.Second,
			Timestamp:  start.Add(time.Duration(i) * time.Second),
			Accepted:   true,
		})
	}
	return ff
}

func TestGroupFlat(t *testing.T) {
	base := time.Date(2017, 8, 12, 10, 20, 30, 0, time.UTC)
	files := []FileFrames{
		fileFrames("a_F.mp4", entity.RoleFront, base, 3),
		fileFrames("b_F.mp4", entity.RoleFront, base.Add(time.Hour), 3),
	}

	groups := Segmenter{Arrange: false}.Group(files)
	require.Len(t, groups, 1)
	assert.Equal(t, "", groups[0].Dir)
	assert.Len(t, groups[0].Samples, 6)
}

func TestGroupMergesContinuousFiles(t *testing.T) {
	base := time.Date(2017, 8, 12, 10, 20, 30, 0, time.UTC)
	// Second file starts one second after the first ends.
	files := []FileFrames{
		fileFrames("a_F.mp4", entity.RoleFront, base, 60),
		fileFrames("b_F.mp4", entity.RoleFront, base.Add(60*time.Second), 60),
	}

	groups := Segmenter{Arrange: true, ByRole: true, ContinuityGap: 30 * time.Second}.Group(files)
	require.Len(t, groups, 1)
	assert.Len(t, groups[0].Samples, 120)
	assert.Equal(t, "front_20170812T102030Z", groups[0].Dir)
}

func TestGroupSplitsOnGap(t *testing.T) {
	base := time.Date(2017, 8, 12, 10, 20, 30, 0, time.UTC)
	files := []FileFrames{
		fileFrames("a_F.mp4", entity.RoleFront, base, 60),
		fileFrames("b_F.mp4", entity.RoleFront, base.Add(10*time.Minute), 60),
	}

	groups := Segmenter{Arrange: true, ByRole: true, ContinuityGap: 30 * time.Second}.Group(files)
	require.Len(t, groups, 2)
	assert.Equal(t, "front_20170812T102030Z", groups[0].Dir)
	assert.Equal(t, "front_20170812T103030Z", groups[1].Dir)
}

func TestGroupSplitsOnRoleChange(t *testing.T) {
	base := time.Date(2017, 8, 12, 10, 20, 30, 0, time.UTC)
	// Front and rear clips interleave with identical timestamps.
	files := []FileFrames{
		fileFrames("a_F.mp4", entity.RoleFront, base, 10),
		fileFrames("a_R.mp4", entity.RoleRear, base, 10),
	}

	groups := Segmenter{Arrange: true, ByRole: true, ContinuityGap: 30 * time.Second}.Group(files)
	require.Len(t, groups, 2)
	assert.Equal(t, entity.RoleFront, groups[0].Role)
	assert.Equal(t, entity.RoleRear, groups[1].Role)
	assert.Equal(t, "front_20170812T102030Z", groups[0].Dir)
	assert.Equal(t, "rear_20170812T102030Z", groups[1].Dir)
}

func TestGroupZeroTimestampsGetOwnGroup(t *testing.T) {
	base := time.Date(2017, 8, 12, 10, 20, 30, 0, time.UTC)
	noGPS := FileFrames{File: "dark_F.mp4", Role: entity.RoleFront}
	for i := 0; i < 5; i++ {
		noGPS.Samples = append(noGPS.Samples, entity.FrameSample{
			SourceFile: "dark_F.mp4",
			Role:       entity.RoleFront,
			Index:      i,
			Offset:     time.Duration(i) * time.Second,
			Accepted:   true,
		})
	}
	files := []FileFrames{
		fileFrames("a_F.mp4", entity.RoleFront, base, 10),
		noGPS,
		fileFrames("b_F.mp4", entity.RoleFront, base.Add(15*time.Second), 10),
	}

	groups := Segmenter{Arrange: true, ByRole: true, ContinuityGap: 30 * time.Second}.Group(files)
	require.Len(t, groups, 3)
	// Untimestamped file falls back to its base name.
	assert.Equal(t, "front_dark_F", groups[1].Dir)
	// The file after it cannot be stitched either.
	assert.Equal(t, "front_20170812T102045Z", groups[2].Dir)
}

func TestGroupSkipsEmptyFiles(t *testing.T) {
	base := time.Date(2017, 8, 12, 10, 20, 30, 0, time.UTC)
	files := []FileFrames{
		{File: "empty_F.mp4", Role: entity.RoleFront},
		fileFrames("a_F.mp4", entity.RoleFront, base, 10),
	}

	groups := Segmenter{Arrange: true, ByRole: true, ContinuityGap: 30 * time.Second}.Group(files)
	require.Len(t, groups, 1)
	assert.Len(t, groups[0].Samples, 10)
}
