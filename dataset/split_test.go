package dataset

import (
	"fmt"
	"image/color"
	"math/rand"
	"path/filepath"
	"testing"

	"github.com/gomlx/imageclassifier/scan"
	"github.com/janpfeifer/must"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// numberedDataset creates a dataset with n images, alternating between 2 labels.
func numberedDataset(t *testing.T, n int) *Dataset {
	root := t.TempDir()
	for ii := range n {
		label := []string{"even", "odd"}[ii%2]
		writePNG(t, filepath.Join(root, label, fmt.Sprintf("%03d.png", ii)), color.Gray{Y: uint8(ii)})
	}
	records := must.M1(scan.Collect(scan.Images(root, true)))
	return must.M1(Assemble(records, AssembleOptions{Rand: rand.New(rand.NewSource(1))}))
}

func pathSet(ds *Dataset) map[string]bool {
	set := make(map[string]bool, ds.Len())
	for ii := range ds.Len() {
		set[ds.Row(ii).ImagePath] = true
	}
	return set
}

func TestSplitDatasetCompleteAndDisjoint(t *testing.T) {
	ds := numberedDataset(t, 20)
	for _, fractions := range [][2]float64{{0.3, 0.5}, {0, 0.5}, {1, 0.5}, {0.5, 0}, {0.5, 1}, {0.25, 0.3}} {
		split, err := SplitDataset(ds, fractions[0], fractions[1], 3)
		require.NoError(t, err)
		train, validation, test := split.Sizes()
		require.Equal(t, ds.Len(), train+validation+test, "fractions %v", fractions)

		all := pathSet(ds)
		seen := map[string]bool{}
		for _, part := range []*Dataset{split.Train, split.Validation, split.Test} {
			for path := range pathSet(part) {
				require.False(t, seen[path], "%q in more than one partition for fractions %v", path, fractions)
				require.True(t, all[path])
				seen[path] = true
			}
		}
		assert.Len(t, seen, ds.Len())
	}
}

func TestSplitDatasetSizes(t *testing.T) {
	ds := numberedDataset(t, 20)
	split, err := SplitDataset(ds, DefaultTestFraction, DefaultValidationTestFraction, 0)
	require.NoError(t, err)
	train, validation, test := split.Sizes()
	assert.Equal(t, []int{14, 3, 3}, []int{train, validation, test})
	assert.Equal(t, "train", split.Train.Name())
	assert.Equal(t, "validation", split.Validation.Name())
	assert.Equal(t, "test", split.Test.Name())

	// Label encoding is shared.
	assert.Same(t, ds.Labels(), split.Test.Labels())
}

func TestSplitCatsAndDogs(t *testing.T) {
	_, records := catsAndDogs(t)
	ds := must.M1(Assemble(records, AssembleOptions{}))
	split, err := SplitDataset(ds, 0.3, 0.5, 42)
	require.NoError(t, err)
	train, validation, test := split.Sizes()
	assert.Equal(t, []int{4, 1, 0}, []int{train, validation, test})
	assert.Empty(t, split.Test.Rows())
}

func TestTrainTestSplitDeterministic(t *testing.T) {
	ds := numberedDataset(t, 10)
	train1, test1, err := ds.TrainTestSplit(0.4, 11)
	require.NoError(t, err)
	train2, test2, err := ds.TrainTestSplit(0.4, 11)
	require.NoError(t, err)
	assert.Equal(t, pathSet(train1), pathSet(train2))
	assert.Equal(t, pathSet(test1), pathSet(test2))
	assert.Equal(t, 4, test1.Len())
	assert.Equal(t, 6, train1.Len())
}

func TestTrainTestSplitInvalidFraction(t *testing.T) {
	ds := numberedDataset(t, 4)
	for _, fraction := range []float64{-0.1, 1.5} {
		_, _, err := ds.TrainTestSplit(fraction, 0)
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrInvalidFraction))
	}
}

func TestSplitCount(t *testing.T) {
	assert.Equal(t, 1, splitCount(5, 0.3))
	assert.Equal(t, 30, splitCount(100, 0.3))
	assert.Equal(t, 29, splitCount(100, 0.29))
	assert.Equal(t, 0, splitCount(1, 0.5))
	assert.Equal(t, 7, splitCount(7, 1))
}
