package port

import "context"

// Archiver bundles a finished image set into a single file for upload.
type Archiver interface {
	CreateArchive(ctx context.Context, filePaths []string, outputPath string) error
}
