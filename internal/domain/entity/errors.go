package entity

import "errors"

// Error taxonomy of the pipeline. Per-file errors never abort the run,
// per-frame errors never abort the file; only configuration errors are
// fatal to the process.
var (
	// ErrMalformedContainer marks an unparseable box tree. The file is
	// skipped, the run continues.
	ErrMalformedContainer = errors.New("malformed container")

	// ErrUnsupportedRecordFormat marks a GPS payload that matches no known
	// firmware layout. The file proceeds with an empty track.
	ErrUnsupportedRecordFormat = errors.New("unsupported gps record format")

	// ErrExternalTool marks a failed frame extraction or tagging call.
	// The frame is skipped, the file continues.
	ErrExternalTool = errors.New("external tool failure")

	// ErrInvalidConfig marks an invalid crop spec or threshold. Fatal at
	// startup, before any file is processed.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrJobNotFound marks a job id with no database record. In service
	// mode a first delivery creates the record; anything else is a bug.
	ErrJobNotFound = errors.New("job not found")
)
