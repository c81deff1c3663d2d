// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package classifier

import (
	"fmt"
	"strings"

	"github.com/gomlx/gomlx/ml/context"
	"github.com/gomlx/gomlx/ml/layers"
	"github.com/gomlx/gomlx/ml/layers/fnn"
	"github.com/gomlx/gomlx/ml/train/optimizers"
	"github.com/gomlx/gomlx/models/inceptionv3"
	"github.com/gomlx/imageclassifier/dataset"
	"github.com/pkg/errors"
)

// Arch is the pretrained backbone used to extract the image features.
type Arch string

// InceptionV3 pretrained on ImageNet, with the Keras weights.
const InceptionV3 Arch = "inception_v3"

// KnownArchs lists the supported backbones.
var KnownArchs = []Arch{InceptionV3}

// Hyperparameters names, set in the context by CreateDefaultContext.
const (
	ParamArch                      = "arch"
	ParamEpochs                    = "epochs"
	ParamBatchSize                 = "batch_size"
	ParamBottleneckBatchSize       = "bottleneck_batch_size"
	ParamImageSize                 = "image_size"
	ParamMetricsEverySteps         = "metrics_every_steps"
	ParamTestOnTrainSet            = "test_on_train_set"
	ParamReuseTrainBottleneck      = "reuse_train_bottleneck"
	ParamReuseValidationBottleneck = "reuse_validation_bottleneck"
)

// Options configures ImageClassificationTrainer.Fit.
type Options struct {
	// FeatureColumnName must be dataset.ColImage: the raw bytes of the image.
	FeatureColumnName string

	// LabelColumnName must be dataset.ColLabelAsKey.
	LabelColumnName string

	// ValidationSet is evaluated at the end of every epoch. It can be nil or empty, in which case
	// no validation metrics are reported.
	ValidationSet *dataset.Dataset

	// Arch is the pretrained backbone.
	Arch Arch

	// MetricsCallback is called with the bottleneck computation progress and the training metrics.
	// If nil, metrics are not reported.
	MetricsCallback func(Metrics)

	// TestOnTrainSet evaluates the trained model on the train set after training, and reports it
	// with MetricsCallback.
	TestOnTrainSet bool

	// ReuseTrainSetBottleneckCachedValues and ReuseValidationSetBottleneckCachedValues allow reading the
	// image features cached in WorkspacePath by a previous run, if they were computed for the same images.
	ReuseTrainSetBottleneckCachedValues      bool
	ReuseValidationSetBottleneckCachedValues bool

	// WorkspacePath holds the backbone weights, the bottleneck caches and the checkpoints of each run.
	WorkspacePath string

	// Epochs of training of the classification head.
	Epochs int

	// BatchSize for training the classification head.
	BatchSize int

	// BottleneckBatchSize is the number of images featurized at once by the backbone.
	BottleneckBatchSize int

	// ImageSize (height and width) images are resized to before going through the backbone.
	ImageSize int

	// MetricsEverySteps is the frequency, in training steps, MetricsCallback is called.
	// MetricsCallback is also called at the end of every epoch.
	MetricsEverySteps int

	// ShowProgress displays progress bars on the terminal.
	ShowProgress bool
}

// DefaultOptions returns the Options with the default values of CreateDefaultContext.
func DefaultOptions(workspacePath string) Options {
	return OptionsFromContext(CreateDefaultContext(), workspacePath)
}

// Validate the options, returning an error wrapping ErrTraining if they are not valid.
func (opts *Options) Validate() error {
	if opts.FeatureColumnName != dataset.ColImage {
		return errors.Wrapf(ErrTraining, "feature column must be %q, got %q", dataset.ColImage, opts.FeatureColumnName)
	}
	if opts.LabelColumnName != dataset.ColLabelAsKey {
		return errors.Wrapf(ErrTraining, "label column must be %q, got %q", dataset.ColLabelAsKey, opts.LabelColumnName)
	}
	known := false
	for _, arch := range KnownArchs {
		known = known || arch == opts.Arch
	}
	if !known {
		return errors.Wrapf(ErrTraining, "unknown architecture %q, valid values are %q", opts.Arch, KnownArchs)
	}
	if opts.WorkspacePath == "" {
		return errors.Wrap(ErrTraining, "workspace path not set")
	}
	if opts.Epochs <= 0 || opts.BatchSize <= 0 || opts.BottleneckBatchSize <= 0 || opts.MetricsEverySteps <= 0 {
		return errors.Wrapf(ErrTraining, "epochs (%d), batch sizes (%d, %d) and metrics frequency (%d) must be > 0",
			opts.Epochs, opts.BatchSize, opts.BottleneckBatchSize, opts.MetricsEverySteps)
	}
	if opts.ImageSize < inceptionv3.MinimumImageSize {
		return errors.Wrapf(ErrTraining, "image size %d smaller than the minimum %d of %s",
			opts.ImageSize, inceptionv3.MinimumImageSize, opts.Arch)
	}
	return nil
}

// CreateDefaultContext sets the context with the default hyperparameters used by the trainer.
// They can be changed with ui/commandline.ParseContextSettings, e.g. "epochs=50;learning_rate=0.001".
func CreateDefaultContext() *context.Context {
	ctx := context.New()
	ctx.RngStateReset()
	ctx.SetParams(map[string]any{
		ParamArch:                      string(InceptionV3),
		ParamEpochs:                    50,
		ParamBatchSize:                 10,
		ParamBottleneckBatchSize:       16,
		ParamImageSize:                 inceptionv3.ClassificationImageSize,
		ParamMetricsEverySteps:         10,
		ParamTestOnTrainSet:            false,
		ParamReuseTrainBottleneck:      false,
		ParamReuseValidationBottleneck: false,
		"num_checkpoints":              1,

		optimizers.ParamOptimizer:    "adam",
		optimizers.ParamLearningRate: 0.01,

		// Classification head on top of the bottleneck: a single linear layer by default.
		fnn.ParamNumHiddenLayers: 0,
		fnn.ParamNumHiddenNodes:  128,
		fnn.ParamResidual:        true,
		layers.ParamDropoutRate:  0.0,
	})
	return ctx
}

// OptionsFromContext returns the Options set from the context hyperparameters (see CreateDefaultContext).
// The MetricsCallback is set to DefaultMetricsCallback.
func OptionsFromContext(ctx *context.Context, workspacePath string) Options {
	return Options{
		FeatureColumnName:                        dataset.ColImage,
		LabelColumnName:                          dataset.ColLabelAsKey,
		Arch:                                     Arch(context.GetParamOr(ctx, ParamArch, string(InceptionV3))),
		MetricsCallback:                          DefaultMetricsCallback,
		TestOnTrainSet:                           context.GetParamOr(ctx, ParamTestOnTrainSet, false),
		ReuseTrainSetBottleneckCachedValues:      context.GetParamOr(ctx, ParamReuseTrainBottleneck, false),
		ReuseValidationSetBottleneckCachedValues: context.GetParamOr(ctx, ParamReuseValidationBottleneck, false),
		WorkspacePath:                            workspacePath,
		Epochs:                                   context.GetParamOr(ctx, ParamEpochs, 50),
		BatchSize:                                context.GetParamOr(ctx, ParamBatchSize, 10),
		BottleneckBatchSize:                      context.GetParamOr(ctx, ParamBottleneckBatchSize, 16),
		ImageSize:                                context.GetParamOr(ctx, ParamImageSize, inceptionv3.ClassificationImageSize),
		MetricsEverySteps:                        context.GetParamOr(ctx, ParamMetricsEverySteps, 10),
	}
}

// Phase of the training reported in Metrics.
type Phase string

const (
	PhaseBottleneck Phase = "Bottleneck Computation"
	PhaseTraining   Phase = "Training"
	PhaseEvaluation Phase = "Evaluation"
)

// Metrics reported to Options.MetricsCallback.
type Metrics struct {
	Phase Phase

	// DatasetUsed is the name of the dataset ("train" or "validation").
	DatasetUsed string

	// ImageIndex is the number of images featurized so far, during PhaseBottleneck.
	ImageIndex int

	// Step is the global training step, Epoch the current epoch (starting from 0).
	Step, Epoch int

	// Accuracy and CrossEntropy during PhaseTraining and PhaseEvaluation.
	Accuracy, CrossEntropy float64
}

// String implements fmt.Stringer.
func (m Metrics) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Phase: %s, Dataset used: %s", m.Phase, m.DatasetUsed)
	if m.Phase == PhaseBottleneck {
		fmt.Fprintf(&sb, ", Image Index: %d", m.ImageIndex)
		return sb.String()
	}
	if m.Phase == PhaseTraining {
		fmt.Fprintf(&sb, ", Step: %d, Epoch: %d", m.Step, m.Epoch)
	}
	fmt.Fprintf(&sb, ", Accuracy: %.4f, Cross-Entropy: %.4f", m.Accuracy, m.CrossEntropy)
	return sb.String()
}

// DefaultMetricsCallback prints the metrics, one line per call.
func DefaultMetricsCallback(m Metrics) {
	fmt.Println(m)
}
