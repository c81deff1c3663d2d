// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package dataset

import (
	"math"
	"math/rand"
	"slices"

	"github.com/pkg/errors"
)

const (
	// DefaultTestFraction is the fraction of the assembled dataset held out from training.
	DefaultTestFraction = 0.3

	// DefaultValidationTestFraction is the fraction of the held-out rows used for testing.
	// The remaining held-out rows are used for validation.
	DefaultValidationTestFraction = 0.5
)

// ErrInvalidFraction is returned for split fractions outside of [0, 1].
var ErrInvalidFraction = errors.New("invalid split fraction")

// Split holds the three disjoint partitions of a dataset.
type Split struct {
	Train, Validation, Test *Dataset
}

// splitCount is the number of rows of n that go to a partition of the given fraction: it rounds down.
// The epsilon absorbs floating point errors like 100*0.29 = 28.999999999999996.
func splitCount(n int, fraction float64) int {
	count := int(math.Floor(float64(n)*fraction + 1e-9))
	return min(count, n)
}

// TrainTestSplit partitions the dataset in two: test gets floor(Len() * testFraction) rows chosen at random,
// and train gets the rest.
//
// The choice is deterministic for a given seed. Both partitions keep the relative order of the rows.
func (ds *Dataset) TrainTestSplit(testFraction float64, seed int64) (train, test *Dataset, err error) {
	if math.IsNaN(testFraction) || testFraction < 0 || testFraction > 1 {
		return nil, nil, errors.Wrapf(ErrInvalidFraction, "test fraction %g must be in [0, 1]", testFraction)
	}
	n := ds.Len()
	numTest := splitCount(n, testFraction)
	perm := rand.New(rand.NewSource(seed)).Perm(n)
	testIndices := slices.Clone(perm[:numTest])
	trainIndices := slices.Clone(perm[numTest:])
	slices.Sort(testIndices)
	slices.Sort(trainIndices)

	train, err = ds.Subset(ds.name+"-train", trainIndices)
	if err != nil {
		return nil, nil, err
	}
	test, err = ds.Subset(ds.name+"-test", testIndices)
	if err != nil {
		return nil, nil, err
	}
	return train, test, nil
}

// SplitDataset partitions ds into train, validation and test sets.
//
// First testFraction of the rows is held out, and the rest is the train set. Then
// validationTestFraction of the held-out rows becomes the test set, and the remainder the validation set.
// See TrainTestSplit for the rounding.
//
// With DefaultTestFraction and DefaultValidationTestFraction, 100 rows are split into 70/15/15, and
// 5 rows into 4/1/0.
func SplitDataset(ds *Dataset, testFraction, validationTestFraction float64, seed int64) (*Split, error) {
	train, heldOut, err := ds.TrainTestSplit(testFraction, seed)
	if err != nil {
		return nil, err
	}
	validation, test, err := heldOut.TrainTestSplit(validationTestFraction, seed+1)
	if err != nil {
		return nil, err
	}
	return &Split{
		Train:      train.WithName("train"),
		Validation: validation.WithName("validation"),
		Test:       test.WithName("test"),
	}, nil
}

// Sizes returns the number of rows in the train, validation and test sets.
func (s *Split) Sizes() (train, validation, test int) {
	return s.Train.Len(), s.Validation.Len(), s.Test.Len()
}
