package scan

import (
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// createFiles creates empty files under root, with the given relative paths.
func createFiles(t *testing.T, root string, relPaths ...string) {
	t.Helper()
	for _, relPath := range relPaths {
		filePath := filepath.Join(root, relPath)
		require.NoError(t, os.MkdirAll(filepath.Dir(filePath), 0755))
		require.NoError(t, os.WriteFile(filePath, []byte("x"), 0644))
	}
}

func labelsOf(records []ImageRecord) []string {
	labels := make([]string, 0, len(records))
	for _, r := range records {
		labels = append(labels, r.Label)
	}
	slices.Sort(labels)
	return labels
}

func TestLabel(t *testing.T) {
	assert.Equal(t, "cat", Label("/data/assets/cat/001.jpg", true))
	assert.Equal(t, "assets", Label("/data/assets/dog01.jpg", true))
	assert.Equal(t, ".", Label("dog01.jpg", true))

	assert.Equal(t, "cat", Label("/data/assets/cat01.jpg", false))
	assert.Equal(t, "dog", Label("/data/assets/cat/dog_7.png", false))
	assert.Equal(t, "", Label("/data/assets/01.jpg", false))
	assert.Equal(t, "café", Label("café9.png", false))

	// Deterministic.
	for range 3 {
		assert.Equal(t, "cat", Label("cat01.jpg", false))
	}
}

func TestImagesFolderLabels(t *testing.T) {
	root := t.TempDir()
	createFiles(t, root,
		"cat/1.jpg", "cat/2.jpg", "cat/3.png",
		"dog/1.jpg", "dog/2.png",
		"dog/notes.txt", "cat/4.JPG", "cat/5.jpeg", "README")
	records, err := Collect(Images(root, true))
	require.NoError(t, err)
	require.Len(t, records, 5)
	assert.Equal(t, []string{"cat", "cat", "cat", "dog", "dog"}, labelsOf(records))
	for _, r := range records {
		assert.True(t, IsImage(r.ImagePath), "unexpected file %q", r.ImagePath)
		_, err := os.Stat(r.ImagePath)
		assert.NoError(t, err)
	}
}

func TestImagesFileNameLabels(t *testing.T) {
	root := t.TempDir()
	createFiles(t, root, "cat01.jpg", "cat02.png", "dog_1.jpg", "sub/bird9.png")
	records, err := Collect(Images(root, false))
	require.NoError(t, err)
	assert.Equal(t, []string{"bird", "cat", "cat", "dog"}, labelsOf(records))
}

func TestImagesRestartable(t *testing.T) {
	root := t.TempDir()
	createFiles(t, root, "a/1.jpg", "b/2.png", "b/3.png")
	seq := Images(root, true)
	first, err := Collect(seq)
	require.NoError(t, err)
	second, err := Collect(seq)
	require.NoError(t, err)
	assert.ElementsMatch(t, first, second)

	// Breaking early must not leave any state behind.
	for range seq {
		break
	}
	third, err := Collect(seq)
	require.NoError(t, err)
	assert.ElementsMatch(t, first, third)
}

func TestImagesMissingRoot(t *testing.T) {
	records, err := Collect(Images(filepath.Join(t.TempDir(), "missing"), true))
	require.Error(t, err)
	assert.True(t, errors.Is(err, fs.ErrNotExist), "expected fs.ErrNotExist, got %v", err)
	assert.Empty(t, records)
}

func TestImagesEmptyLabel(t *testing.T) {
	root := t.TempDir()
	createFiles(t, root, "01.jpg")
	_, err := Collect(Images(root, false))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrEmptyLabel))
}

func TestImagesEmptyRoot(t *testing.T) {
	root := t.TempDir()
	createFiles(t, root, "notes.txt")
	records, err := Collect(Images(root, true))
	require.NoError(t, err)
	assert.Empty(t, records)
}
