// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package classifier trains an image classifier by transfer learning: the images are featurized by a
// frozen pretrained backbone (InceptionV3), and a small classification head is trained on top of
// the features (the "bottleneck"), using GoMLX.
//
// Usage:
//
//	ctx := classifier.CreateDefaultContext()
//	opts := classifier.OptionsFromContext(ctx, workspaceDir)
//	opts.ValidationSet = split.Validation
//	pipeline, err := classifier.New(backend, ctx).Fit(split.Train, opts)
//	...
//	prediction, err := pipeline.Predict(split.Test.Row(0))
package classifier

import (
	"github.com/gomlx/imageclassifier/dataset"
	"github.com/pkg/errors"
)

// ErrTraining is wrapped by errors returned when the training can't be configured or fails.
var ErrTraining = errors.New("training failed")

// Trainer fits a Pipeline on a train dataset.
type Trainer interface {
	Fit(train *dataset.Dataset, opts Options) (Pipeline, error)
}

// Pipeline is a trained classifier.
type Pipeline interface {
	// Predict the label of one row. Only Row.Image is used.
	Predict(row dataset.Row) (Prediction, error)

	// Transform predicts every row of the dataset, in order.
	Transform(ds *dataset.Dataset) ([]Prediction, error)

	// Labels known by the classifier, indexed by their key.
	Labels() *dataset.LabelKeys
}

// Prediction of one image.
type Prediction struct {
	ImagePath string

	// Label is the actual label of the image, if known.
	Label string

	PredictedLabel string
	PredictedKey   int

	// Score is the probability assigned to PredictedLabel.
	Score float32
}

// Correct returns whether the predicted label matches the actual one.
func (p Prediction) Correct() bool {
	return p.Label == p.PredictedLabel
}
