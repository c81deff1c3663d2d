// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package classifier

import (
	"fmt"
	"math"
	"path/filepath"

	"github.com/gomlx/exceptions"
	"github.com/gomlx/gomlx/backends"
	"github.com/gomlx/gomlx/ml/context"
	"github.com/gomlx/gomlx/ml/context/checkpoints"
	"github.com/gomlx/gomlx/ml/data"
	"github.com/gomlx/gomlx/ml/train"
	"github.com/gomlx/gomlx/ml/train/losses"
	"github.com/gomlx/gomlx/ml/train/metrics"
	"github.com/gomlx/gomlx/ml/train/optimizers"
	"github.com/gomlx/gomlx/types/tensors"
	"github.com/gomlx/gomlx/ui/commandline"
	"github.com/gomlx/imageclassifier/dataset"
	"github.com/gomlx/imageclassifier/internal/fsutil"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

const (
	// RunsDir is the subdirectory of the workspace where each training run saves its checkpoint and plot.
	RunsDir = "runs"

	// PlotFileName of the accuracy plot saved in the run directory.
	PlotFileName = "training.png"

	movingAccuracyShortName = "~acc"
)

// ImageClassificationTrainer implements Trainer with GoMLX.
//
// The hyperparameters of the classification head (optimizer, learning rate, hidden layers) are read from
// the context, see CreateDefaultContext. The model variables are created under the "/model" scope of the
// context, so a new context should be used for each call to Fit.
type ImageClassificationTrainer struct {
	backend    backends.Backend
	ctx        *context.Context
	featurizer Featurizer

	// lastRunDir is the directory of the last run, with the checkpoint and plot.
	lastRunDir string
}

var _ Trainer = (*ImageClassificationTrainer)(nil)

// New creates a trainer using the given backend and context with the hyperparameters.
func New(backend backends.Backend, ctx *context.Context) *ImageClassificationTrainer {
	return &ImageClassificationTrainer{backend: backend, ctx: ctx}
}

// WithFeaturizer replaces the backbone defined by Options.Arch. Mostly used for testing.
func (t *ImageClassificationTrainer) WithFeaturizer(featurizer Featurizer) *ImageClassificationTrainer {
	t.featurizer = featurizer
	return t
}

// RunDir returns the directory where the last call to Fit saved its checkpoint and training plot.
func (t *ImageClassificationTrainer) RunDir() string { return t.lastRunDir }

// Fit trains the classifier on the images of trainSet, and returns the trained Pipeline.
//
// Errors in the configuration or during training wrap ErrTraining. Images that can't be decoded
// return errors wrapping dataset.ErrImageDecode.
func (t *ImageClassificationTrainer) Fit(trainSet *dataset.Dataset, opts Options) (Pipeline, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	if trainSet == nil || trainSet.Len() == 0 {
		return nil, errors.Wrapf(ErrTraining, "empty train set: %v", dataset.ErrEmptyDataset)
	}
	labels := trainSet.Labels()
	validation := opts.ValidationSet
	if validation != nil && validation.Len() == 0 {
		validation = nil
	}
	if validation != nil && validation.Labels() != labels {
		return nil, errors.Wrap(ErrTraining, "validation set doesn't share the label keys of the train set")
	}
	workspace, err := fsutil.EnsureDir(opts.WorkspacePath)
	if err != nil {
		return nil, err
	}

	if t.featurizer == nil {
		inception, err := NewInceptionV3Featurizer(t.backend, workspace, opts.ImageSize)
		if err != nil {
			return nil, errors.Wrapf(ErrTraining, "creating %s featurizer: %+v", opts.Arch, err)
		}
		t.featurizer = inception
	}
	bottleneck := &bottleneckBuilder{
		featurizer:   t.featurizer,
		workspace:    workspace,
		batchSize:    opts.BottleneckBatchSize,
		callback:     opts.MetricsCallback,
		showProgress: opts.ShowProgress,
	}
	trainFeatures, err := bottleneck.Features(trainSet, "train", opts.ReuseTrainSetBottleneckCachedValues)
	if err != nil {
		return nil, err
	}
	var validationFeatures *tensors.Tensor
	numValidation := 0
	if validation != nil {
		numValidation = validation.Len()
		validationFeatures, err = bottleneck.Features(validation, "validation", opts.ReuseValidationSetBottleneckCachedValues)
		if err != nil {
			return nil, err
		}
	}

	t.lastRunDir = filepath.Join(workspace, RunsDir, uuid.NewString())
	if _, err = fsutil.EnsureDir(t.lastRunDir); err != nil {
		return nil, err
	}
	klog.Infof("training %d labels on %d images (%d validation images), run directory %q",
		labels.Len(), trainSet.Len(), numValidation, t.lastRunDir)

	run := &trainingRun{
		trainer:            t,
		opts:               &opts,
		labels:             labels,
		trainFeatures:      trainFeatures,
		trainKeys:          trainSet.Keys(),
		validationFeatures: validationFeatures,
	}
	if validation != nil {
		run.validationKeys = validation.Keys()
	}
	var predictor *headPredictor
	var trainErr error
	err = exceptions.TryCatch[error](func() {
		predictor, trainErr = run.train()
	})
	if err == nil {
		err = trainErr
	}
	if err != nil {
		if errors.Is(err, ErrTraining) {
			return nil, err
		}
		return nil, errors.Wrapf(ErrTraining, "%+v", err)
	}
	return &gomlxPipeline{
		featurizer: t.featurizer,
		predictor:  predictor,
		labels:     labels,
		batchSize:  opts.BottleneckBatchSize,
	}, nil
}

// trainingRun holds the state of one call to Fit, after the bottleneck features are computed.
type trainingRun struct {
	trainer *ImageClassificationTrainer
	opts    *Options
	labels  *dataset.LabelKeys

	trainFeatures, validationFeatures *tensors.Tensor
	trainKeys, validationKeys         []int

	history trainingHistory
}

func (r *trainingRun) report(m Metrics) {
	r.history.record(m)
	if r.opts.MetricsCallback != nil {
		r.opts.MetricsCallback(m)
	}
}

// labelsTensor converts the keys to a tensor shaped [len(keys), 1], as used by sparse categorical losses.
func labelsTensor(keys []int) *tensors.Tensor {
	keys32 := make([]int32, len(keys))
	for ii, key := range keys {
		keys32[ii] = int32(key)
	}
	return tensors.FromFlatDataAndDimensions(keys32, len(keys), 1)
}

// scalarValue converts a scalar metric to float64.
func scalarValue(t *tensors.Tensor) float64 {
	switch v := t.Value().(type) {
	case float32:
		return float64(v)
	case float64:
		return v
	default:
		return math.NaN()
	}
}

// train the classification head. It may panic with errors from GoMLX.
func (r *trainingRun) train() (*headPredictor, error) {
	t, opts := r.trainer, r.opts
	backend := t.backend
	numLabels := r.labels.Len()
	numExamples := len(r.trainKeys)
	stepsPerEpoch := (numExamples + opts.BatchSize - 1) / opts.BatchSize

	trainDS, err := data.InMemoryFromData(backend, "train", []any{r.trainFeatures}, []any{labelsTensor(r.trainKeys)})
	if err != nil {
		return nil, errors.Wrapf(ErrTraining, "creating train dataset: %v", err)
	}
	trainDS.BatchSize(opts.BatchSize, false).Shuffle()

	checkpoint, err := checkpoints.Build(t.ctx).
		Dir(t.lastRunDir).
		Keep(context.GetParamOr(t.ctx, "num_checkpoints", 1)).
		Done()
	if err != nil {
		return nil, errors.Wrapf(ErrTraining, "creating checkpoint in %q: %v", t.lastRunDir, err)
	}

	movingAccuracyMetric := metrics.NewMovingAverageSparseCategoricalAccuracy("Moving Average Accuracy", movingAccuracyShortName, 0.01)
	meanAccuracyMetric := metrics.NewSparseCategoricalAccuracy("Mean Accuracy", "#acc")
	ctx := t.ctx.In("model")
	trainer := train.NewTrainer(backend, ctx, headModelFn(numLabels),
		losses.SparseCategoricalCrossEntropyLogits,
		optimizers.FromContext(ctx),
		[]metrics.Interface{movingAccuracyMetric},
		[]metrics.Interface{meanAccuracyMetric})
	predictor := newHeadPredictor(backend, ctx, numLabels)

	loop := train.NewLoop(trainer)
	if opts.ShowProgress {
		commandline.AttachProgressBar(loop)
	}
	train.EveryNSteps(loop, opts.MetricsEverySteps, "metrics callback", 100,
		func(loop *train.Loop, values []*tensors.Tensor) error {
			if (loop.LoopStep+1)%stepsPerEpoch != 0 {
				// End of epoch metrics are reported separately.
				r.report(r.trainingMetrics(loop, values))
			}
			return nil
		})
	loop.OnStep("end of epoch", 100, func(loop *train.Loop, values []*tensors.Tensor) error {
		if (loop.LoopStep+1)%stepsPerEpoch != 0 {
			return nil
		}
		r.report(r.trainingMetrics(loop, values))
		if r.validationFeatures == nil {
			return nil
		}
		accuracy, crossEntropy, err := predictor.evaluate(r.validationFeatures, r.validationKeys)
		if err != nil {
			return err
		}
		r.report(Metrics{
			Phase:        PhaseTraining,
			DatasetUsed:  "validation",
			Step:         loop.LoopStep + 1,
			Epoch:        loop.Epoch,
			Accuracy:     accuracy,
			CrossEntropy: crossEntropy,
		})
		return nil
	})

	if _, err = loop.RunEpochs(trainDS, opts.Epochs); err != nil {
		return nil, errors.Wrapf(ErrTraining, "training for %d epochs: %+v", opts.Epochs, err)
	}
	klog.V(1).Infof("trained %d steps, median train step: %d microseconds",
		loop.LoopStep, loop.MedianTrainStepDuration().Microseconds())

	if err = checkpoint.Save(); err != nil {
		return nil, errors.Wrapf(ErrTraining, "saving checkpoint: %v", err)
	}
	if err = r.history.Save(filepath.Join(t.lastRunDir, PlotFileName)); err != nil {
		klog.Warningf("failed to save training plot: %+v", err)
	}

	if opts.TestOnTrainSet {
		accuracy, crossEntropy, err := predictor.evaluate(r.trainFeatures, r.trainKeys)
		if err != nil {
			return nil, err
		}
		r.report(Metrics{Phase: PhaseEvaluation, DatasetUsed: "train", Step: loop.LoopStep,
			Epoch: opts.Epochs - 1, Accuracy: accuracy, CrossEntropy: crossEntropy})
	}
	return predictor, nil
}

// trainingMetrics converts the values of the trainer metrics to Metrics.
func (r *trainingRun) trainingMetrics(loop *train.Loop, values []*tensors.Tensor) Metrics {
	m := Metrics{
		Phase:        PhaseTraining,
		DatasetUsed:  "train",
		Step:         loop.LoopStep + 1,
		Epoch:        loop.Epoch,
		Accuracy:     math.NaN(),
		CrossEntropy: math.NaN(),
	}
	for ii, metric := range loop.Trainer.TrainMetrics() {
		if ii >= len(values) {
			break
		}
		switch metric.ShortName() {
		case movingAccuracyShortName:
			m.Accuracy = scalarValue(values[ii])
		case "~loss":
			m.CrossEntropy = scalarValue(values[ii])
		}
	}
	if math.IsNaN(m.CrossEntropy) && len(values) > 0 {
		// The first metric is the batch loss.
		m.CrossEntropy = scalarValue(values[0])
	}
	return m
}

// String implements fmt.Stringer.
func (t *ImageClassificationTrainer) String() string {
	if t.featurizer == nil {
		return fmt.Sprintf("ImageClassificationTrainer(%s)", t.backend.Name())
	}
	return fmt.Sprintf("ImageClassificationTrainer(%s, %s)", t.backend.Name(), t.featurizer.Name())
}
