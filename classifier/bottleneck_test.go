package classifier

import (
	"os"
	"testing"

	"github.com/gomlx/gomlx/types/tensors"
	"github.com/gomlx/imageclassifier/dataset"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBottleneckFeatures(t *testing.T) {
	ds := redsAndBlues(t, 5)
	featurizer := &colorFeaturizer{}
	var reported []Metrics
	builder := &bottleneckBuilder{
		featurizer: featurizer,
		workspace:  t.TempDir(),
		batchSize:  4,
		callback:   func(m Metrics) { reported = append(reported, m) },
	}

	features, err := builder.Features(ds, "train", false)
	require.NoError(t, err)
	assert.Equal(t, []int{10, 3}, features.Shape().Dimensions)
	assert.Equal(t, 3, featurizer.calls)
	require.Len(t, reported, 3)
	assert.Equal(t, Metrics{Phase: PhaseBottleneck, DatasetUsed: "train", ImageIndex: 10}, reported[2])

	// Features follow the order of the rows: red images have a larger red component.
	flat := tensors.CopyFlatData[float32](features)
	for ii, row := range ds.Rows() {
		red, blue := flat[ii*3], flat[ii*3+2]
		if row.Label == "red" {
			assert.Greater(t, red, blue, "row %d (%s)", ii, row.ImagePath)
		} else {
			assert.Less(t, red, blue, "row %d (%s)", ii, row.ImagePath)
		}
	}

	tensorPath, manifestPath := bottleneckPaths(builder.workspace, "train")
	require.FileExists(t, tensorPath)
	require.FileExists(t, manifestPath)

	// Reuse the cache: no calls to the featurizer.
	cached, err := builder.Features(ds, "train", true)
	require.NoError(t, err)
	assert.Equal(t, 3, featurizer.calls)
	assert.Equal(t, flat, tensors.CopyFlatData[float32](cached))

	// Not reusing recomputes.
	_, err = builder.Features(ds, "train", false)
	require.NoError(t, err)
	assert.Equal(t, 6, featurizer.calls)
}

func TestBottleneckCacheMismatch(t *testing.T) {
	ds := redsAndBlues(t, 3)
	featurizer := &colorFeaturizer{}
	builder := &bottleneckBuilder{featurizer: featurizer, workspace: t.TempDir(), batchSize: 16}
	_, err := builder.Features(ds, "validation", false)
	require.NoError(t, err)
	require.Equal(t, 1, featurizer.calls)

	// Different images: cache is ignored.
	subset, err := ds.Subset("smaller", []int{0, 1, 2})
	require.NoError(t, err)
	features, err := builder.Features(subset, "validation", true)
	require.NoError(t, err)
	assert.Equal(t, 2, featurizer.calls)
	assert.Equal(t, []int{3, 3}, features.Shape().Dimensions)

	// Corrupted manifest: cache is ignored.
	_, manifestPath := bottleneckPaths(builder.workspace, "validation")
	require.NoError(t, os.WriteFile(manifestPath, []byte("{"), 0644))
	_, err = builder.Features(subset, "validation", true)
	require.NoError(t, err)
	assert.Equal(t, 3, featurizer.calls)

	// Empty datasets can't be featurized.
	empty, err := ds.Subset("empty", nil)
	require.NoError(t, err)
	_, err = builder.Features(empty, "validation", true)
	assert.ErrorIs(t, err, dataset.ErrEmptyDataset)
}
