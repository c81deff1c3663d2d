// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// imageclassifier trains an image classifier on the images under --assets, where each image is
// labeled with the name of its folder (or the prefix of its file name), and reports its predictions
// on a held out test set.
//
// Hyperparameters can be set with --set, e.g.: --set="epochs=100;learning_rate=0.001".
package main

import (
	"flag"
	"fmt"
	"math/rand"
	"os"
	"time"

	"github.com/gomlx/gomlx/backends"
	"github.com/gomlx/gomlx/ml/context"
	"github.com/gomlx/gomlx/ui/commandline"
	"github.com/gomlx/imageclassifier/classifier"
	"github.com/gomlx/imageclassifier/dataset"
	"github.com/gomlx/imageclassifier/internal/fsutil"
	"github.com/gomlx/imageclassifier/report"
	"github.com/gomlx/imageclassifier/scan"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"

	_ "github.com/gomlx/gomlx/backends/default"
)

var (
	flagAssets    = flag.String("assets", "./assets", "Directory with the images, one subdirectory per label.")
	flagWorkspace = flag.String("workspace", "./workspace", "Directory where to store the pretrained weights, cached bottlenecks and checkpoints.")

	flagFolderLabels   = flag.Bool("folder_labels", true, "Use the name of the folder of the image as its label. If false, the label is the leading letters of the file name.")
	flagSkipUnreadable = flag.Bool("skip_unreadable", false, "Skip images that can't be read or decoded, instead of failing.")

	flagTestFraction       = flag.Float64("test_fraction", dataset.DefaultTestFraction, "Fraction of the images held out from training.")
	flagValidationFraction = flag.Float64("validation_test_fraction", dataset.DefaultValidationTestFraction, "Fraction of the held out images used for the test set, the rest is used for validation.")
	flagSeed               = flag.Int64("seed", 0, "Seed used to shuffle and split the images. If 0, a seed is derived from the current time.")

	flagNumImages = flag.Int("num_images", report.DefaultNumImages, "Number of test predictions to print.")
	flagVerbosity = flag.Int("verbosity", 1, "Level of verbosity, the higher the more verbose.")
)

func main() {
	ctx := classifier.CreateDefaultContext()
	settings := commandline.CreateContextSettingsFlag(ctx, "")
	klog.InitFlags(nil)
	flag.Parse()
	if err := run(ctx, *settings); err != nil {
		klog.Errorf("%+v", err)
		os.Exit(1)
	}
}

func run(ctx *context.Context, settings string) error {
	paramsSet, err := commandline.ParseContextSettings(ctx, settings)
	if err != nil {
		return err
	}
	klog.V(1).Infof("hyperparameters set: %q", paramsSet)

	assets, err := fsutil.ResolveDir(*flagAssets)
	if err != nil {
		return err
	}
	workspace, err := fsutil.EnsureDir(*flagWorkspace)
	if err != nil {
		return err
	}
	seed := *flagSeed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}

	records, err := scan.Collect(scan.Images(assets, *flagFolderLabels))
	if err != nil {
		return err
	}
	images, err := dataset.Assemble(records, dataset.AssembleOptions{
		Name:           "images",
		ImageFolder:    assets,
		Rand:           rand.New(rand.NewSource(seed)),
		SkipUnreadable: *flagSkipUnreadable,
	})
	if err != nil {
		return err
	}
	if *flagVerbosity >= 1 {
		images.Describe(os.Stdout)
	}
	split, err := dataset.SplitDataset(images, *flagTestFraction, *flagValidationFraction, seed)
	if err != nil {
		return err
	}
	numTrain, numValidation, numTest := split.Sizes()
	klog.Infof("split: %d train, %d validation, %d test images", numTrain, numValidation, numTest)
	if numTrain == 0 || numTest == 0 {
		return errors.Wrapf(dataset.ErrEmptyDataset, "not enough images to split %d images into train (%d) and test (%d)",
			images.Len(), numTrain, numTest)
	}

	backend := backends.MustNew()
	if *flagVerbosity >= 1 {
		fmt.Printf("Backend %q:\t%s\n", backend.Name(), backend.Description())
	}
	if *flagVerbosity >= 2 {
		fmt.Println(commandline.SprintContextSettings(ctx))
	}
	opts := classifier.OptionsFromContext(ctx, workspace)
	opts.ValidationSet = split.Validation
	opts.ShowProgress = *flagVerbosity >= 1
	trainer := classifier.New(backend, ctx)
	pipeline, err := trainer.Fit(split.Train, opts)
	if err != nil {
		return err
	}
	klog.Infof("checkpoint and training plot saved in %q", trainer.RunDir())

	if _, err = report.ClassifySingleImage(os.Stdout, pipeline, split.Test); err != nil {
		return err
	}
	predictions, err := report.ClassifyImages(os.Stdout, pipeline, split.Test, *flagNumImages)
	if err != nil {
		return err
	}
	if *flagVerbosity >= 1 {
		fmt.Println()
		report.Summary(os.Stdout, predictions)
	}
	report.Complete(os.Stdout)
	return nil
}
