package entity

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"
)

// CropRect is the region of the source frame to retain, in the
// "width:height:x:y" convention used by ffmpeg's crop filter. The zero
// value means "no crop".
type CropRect struct {
	Width  int
	Height int
	X      int
	Y      int
}

func (c CropRect) IsZero() bool {
	return c == CropRect{}
}

func (c CropRect) String() string {
	return fmt.Sprintf("%d:%d:%d:%d", c.Width, c.Height, c.X, c.Y)
}

// CameraRole classifies a source file by the camera that recorded it.
type CameraRole string

const (
	RoleFront   CameraRole = "front"
	RoleRear    CameraRole = "rear"
	RoleUnknown CameraRole = "cam"
)

// rolePatterns maps a base-name suffix (before the extension) to a camera
// role. Viofo dual-channel cameras name clips ..._F.MP4 / ..._R.MP4.
var rolePatterns = []struct {
	Suffix string
	Role   CameraRole
}{
	{"R", RoleRear},
	{"F", RoleFront},
}

// DetectRole classifies a source file name into a camera role.
func DetectRole(path string) CameraRole {
	base := filepath.Base(path)
	name := strings.TrimSuffix(base, filepath.Ext(base))
	upper := strings.ToUpper(name)
	for _, p := range rolePatterns {
		if strings.HasSuffix(upper, p.Suffix) {
			return p.Role
		}
	}
	return RoleUnknown
}

// FrameSample is one candidate output image: a frame position in a source
// video paired with the fix resolved for it. Fix stays nil when no track
// fix lies within the sampler's time skew. Accepted records the distance
// filter outcome.
type FrameSample struct {
	SourceFile string
	Role       CameraRole
	Index      int
	Offset     time.Duration
	Timestamp  time.Time
	Crop       CropRect
	Fix        *GpsFix
	Accepted   bool
}
