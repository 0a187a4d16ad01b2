package entity

import "time"

// SequenceGroup is a maximal run of frame samples considered part of one
// continuous drive. Dir is the output directory name, deterministic for
// identical input ordering; empty for the implicit flat group.
type SequenceGroup struct {
	Dir     string
	Role    CameraRole
	Start   time.Time
	Samples []FrameSample
}
