package archive

import (
	"archive/zip"
	"context"
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, path, content string) string {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestCreateArchiveKeepsSequenceDirs(t *testing.T) {
	dir := t.TempDir()
	files := []string{
		writeFile(t, filepath.Join(dir, "front_20170812T102030Z", "a_0001.jpg"), "one"),
		writeFile(t, filepath.Join(dir, "front_20170812T102030Z", "a_0002.jpg"), "two"),
		writeFile(t, filepath.Join(dir, "rear_20170812T102030Z", "b_0001.jpg"), "three"),
	}

	out := filepath.Join(t.TempDir(), "images.zip")
	require.NoError(t, NewZipper().CreateArchive(context.Background(), files, out))

	zr, err := zip.OpenReader(out)
	require.NoError(t, err)
	defer zr.Close()

	var names []string
	for _, f := range zr.File {
		names = append(names, f.Name)
	}
	sort.Strings(names)
	assert.Equal(t, []string{
		"front_20170812T102030Z/a_0001.jpg",
		"front_20170812T102030Z/a_0002.jpg",
		"rear_20170812T102030Z/b_0001.jpg",
	}, names)
}

func TestCreateArchiveFlat(t *testing.T) {
	dir := t.TempDir()
	files := []string{
		writeFile(t, filepath.Join(dir, "a_0001.jpg"), "one"),
		writeFile(t, filepath.Join(dir, "a_0002.jpg"), "two"),
	}

	out := filepath.Join(t.TempDir(), "images.zip")
	require.NoError(t, NewZipper().CreateArchive(context.Background(), files, out))

	zr, err := zip.OpenReader(out)
	require.NoError(t, err)
	defer zr.Close()

	require.Len(t, zr.File, 2)
	assert.Equal(t, "a_0001.jpg", zr.File[0].Name)
}

func TestCreateArchiveMissingFile(t *testing.T) {
	out := filepath.Join(t.TempDir(), "images.zip")
	err := NewZipper().CreateArchive(context.Background(), []string{"/does/not/exist.jpg"}, out)
	assert.Error(t, err)
}
