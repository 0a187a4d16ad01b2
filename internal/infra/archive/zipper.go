package archive

import (
	"archive/zip"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// Zipper bundles geotagged images into a single ZIP. Entries keep their
// sequence directory as a path prefix so the archive unpacks with the
// layout the pipeline produced.
type Zipper struct{}

func NewZipper() *Zipper {
	return &Zipper{}
}

func (z *Zipper) CreateArchive(ctx context.Context, filePaths []string, outputPath string) error {
	zipFile, err := os.Create(outputPath)
	if err != nil {
		return fmt.Errorf("create archive file: %w", err)
	}
	defer zipFile.Close()

	zipWriter := zip.NewWriter(zipFile)
	defer zipWriter.Close()

	base := commonDir(filePaths)
	for _, fp := range filePaths {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if err := addFile(zipWriter, fp, base); err != nil {
			return fmt.Errorf("add %s to archive: %w", fp, err)
		}
	}

	return nil
}

func addFile(zw *zip.Writer, filename, base string) error {
	file, err := os.Open(filename)
	if err != nil {
		return err
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return err
	}

	header, err := zip.FileInfoHeader(info)
	if err != nil {
		return err
	}

	header.Name = entryName(filename, base)
	header.Method = zip.Deflate

	writer, err := zw.CreateHeader(header)
	if err != nil {
		return err
	}

	_, err = io.Copy(writer, file)
	return err
}

func entryName(filename, base string) string {
	if base != "" {
		if rel, err := filepath.Rel(base, filename); err == nil && !strings.HasPrefix(rel, "..") {
			return filepath.ToSlash(rel)
		}
	}
	return filepath.Base(filename)
}

// commonDir returns the longest directory prefix shared by every path.
func commonDir(paths []string) string {
	if len(paths) == 0 {
		return ""
	}
	common := filepath.Dir(paths[0])
	for _, p := range paths[1:] {
		dir := filepath.Dir(p)
		for common != "" && common != "." && !within(dir, common) {
			common = filepath.Dir(common)
		}
	}
	return common
}

func within(dir, base string) bool {
	rel, err := filepath.Rel(base, dir)
	return err == nil && !strings.HasPrefix(rel, "..")
}
