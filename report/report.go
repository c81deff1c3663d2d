// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package report prints the predictions of a trained classifier on the test set.
package report

import (
	"fmt"
	"io"
	"path/filepath"

	"github.com/gomlx/imageclassifier/classifier"
	"github.com/gomlx/imageclassifier/dataset"
	"github.com/pkg/errors"
)

// DefaultNumImages is the number of predictions printed by ClassifyImages.
const DefaultNumImages = 10

const (
	singleImageBanner   = "===========================Single Image Classification==============================="
	multipleImageBanner = "===========================Multiple Image Classification============================="
	completeBanner      = "===========================Image Classification Complete============================="
	predictionBegin     = "---------------------------Image Classification Began--------------------------------"
	predictionEnd       = "---------------------------Image Classification Ended--------------------------------"
)

func printBanner(w io.Writer, banner string) {
	fmt.Fprintf(w, "\n%s\n\n", banner)
}

// Complete prints the banner marking the end of the program.
func Complete(w io.Writer) {
	printBanner(w, completeBanner)
}

// ClassifySingleImage predicts the first row of the test set and prints it.
func ClassifySingleImage(w io.Writer, pipeline classifier.Pipeline, test *dataset.Dataset) (classifier.Prediction, error) {
	if test == nil || test.Len() == 0 {
		return classifier.Prediction{}, errors.Wrap(dataset.ErrEmptyDataset, "no test images to classify")
	}
	prediction, err := pipeline.Predict(test.Row(0))
	if err != nil {
		return classifier.Prediction{}, errors.WithMessage(err, "classifying single image")
	}
	printBanner(w, singleImageBanner)
	OutputPrediction(w, prediction)
	return prediction, nil
}

// ClassifyImages predicts every row of the test set, and prints the first numImages predictions
// (none if numImages <= 0).
// It returns all the predictions.
func ClassifyImages(w io.Writer, pipeline classifier.Pipeline, test *dataset.Dataset, numImages int) ([]classifier.Prediction, error) {
	if test == nil || test.Len() == 0 {
		return nil, errors.Wrap(dataset.ErrEmptyDataset, "no test images to classify")
	}
	predictions, err := pipeline.Transform(test)
	if err != nil {
		return nil, errors.WithMessage(err, "classifying images")
	}
	printBanner(w, multipleImageBanner)
	for _, prediction := range predictions[:min(max(numImages, 0), len(predictions))] {
		OutputPrediction(w, prediction)
	}
	return predictions, nil
}

// OutputPrediction prints the prediction, using only the file name of the image.
func OutputPrediction(w io.Writer, p classifier.Prediction) {
	fmt.Fprintln(w, predictionBegin)
	fmt.Fprintf(w, "Image: %s | Actual Location: %s | Probable State: %s\n",
		filepath.Base(p.ImagePath), p.Label, p.PredictedLabel)
	fmt.Fprintln(w, predictionEnd)
}
