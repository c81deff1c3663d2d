// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package classifier

import (
	"math"

	"github.com/gomlx/exceptions"
	"github.com/gomlx/gomlx/backends"
	"github.com/gomlx/gomlx/graph"
	"github.com/gomlx/gomlx/ml/context"
	"github.com/gomlx/gomlx/ml/layers/fnn"
	"github.com/gomlx/gomlx/ml/train"
	"github.com/gomlx/gomlx/types/tensors"
	"github.com/gomlx/gopjrt/dtypes"
	"github.com/gomlx/imageclassifier/dataset"
	"github.com/pkg/errors"
)

// headModelFn returns the model graph of the classification head: it takes the bottleneck features
// and returns the logits for each of the numLabels labels.
func headModelFn(numLabels int) train.ModelFn {
	return func(ctx *context.Context, spec any, inputs []*graph.Node) []*graph.Node {
		features := inputs[0]
		logits := fnn.New(ctx.In("head"), features, numLabels).Done()
		return []*graph.Node{logits}
	}
}

// headPredictor executes the trained head, returning the most probable label key and the probabilities
// of every label.
type headPredictor struct {
	exec      *context.Exec
	numLabels int
}

// newHeadPredictor for the head whose variables are (or will be) in ctx. It can only be called once
// the variables are created, that is, after the first training step.
func newHeadPredictor(backend backends.Backend, ctx *context.Context, numLabels int) *headPredictor {
	modelFn := headModelFn(numLabels)
	exec := context.NewExec(backend, ctx.Reuse(), func(ctx *context.Context, features *graph.Node) []*graph.Node {
		logits := modelFn(ctx, nil, []*graph.Node{features})[0]
		return []*graph.Node{graph.ArgMax(logits, -1, dtypes.Int32), graph.Softmax(logits, -1)}
	})
	return &headPredictor{exec: exec, numLabels: numLabels}
}

// predict returns the predicted key and the probabilities (flat, numLabels per example) for each example.
func (p *headPredictor) predict(features *tensors.Tensor) (keys []int32, probabilities []float32, err error) {
	err = exceptions.TryCatch[error](func() {
		outputs := p.exec.Call(features)
		keys = tensors.CopyFlatData[int32](outputs[0])
		probabilities = tensors.CopyFlatData[float32](outputs[1])
	})
	if err != nil {
		return nil, nil, errors.Wrapf(ErrTraining, "failed to execute classification head: %v", err)
	}
	return
}

// evaluate returns the accuracy and mean cross-entropy of the predictions for the features, given the labels.
func (p *headPredictor) evaluate(features *tensors.Tensor, labels []int) (accuracy, crossEntropy float64, err error) {
	keys, probabilities, err := p.predict(features)
	if err != nil {
		return 0, 0, err
	}
	if len(keys) != len(labels) {
		return 0, 0, errors.Errorf("got %d predictions for %d labels", len(keys), len(labels))
	}
	if len(labels) == 0 {
		return 0, 0, nil
	}
	var correct int
	for ii, label := range labels {
		if int(keys[ii]) == label {
			correct++
		}
		prob := float64(probabilities[ii*p.numLabels+label])
		crossEntropy -= math.Log(max(prob, 1e-7))
	}
	n := float64(len(labels))
	return float64(correct) / n, crossEntropy / n, nil
}

// gomlxPipeline is the Pipeline returned by ImageClassificationTrainer.Fit.
type gomlxPipeline struct {
	featurizer Featurizer
	predictor  *headPredictor
	labels     *dataset.LabelKeys
	batchSize  int
}

var _ Pipeline = (*gomlxPipeline)(nil)

// Labels implements Pipeline.
func (p *gomlxPipeline) Labels() *dataset.LabelKeys { return p.labels }

// Predict implements Pipeline.
func (p *gomlxPipeline) Predict(row dataset.Row) (Prediction, error) {
	predictions, err := p.predictRows([]dataset.Row{row})
	if err != nil {
		return Prediction{}, err
	}
	return predictions[0], nil
}

// Transform implements Pipeline.
func (p *gomlxPipeline) Transform(ds *dataset.Dataset) ([]Prediction, error) {
	predictions := make([]Prediction, 0, ds.Len())
	for start := 0; start < ds.Len(); start += p.batchSize {
		end := min(start+p.batchSize, ds.Len())
		rows := make([]dataset.Row, 0, end-start)
		for ii := start; ii < end; ii++ {
			rows = append(rows, ds.Row(ii))
		}
		batch, err := p.predictRows(rows)
		if err != nil {
			return nil, errors.WithMessagef(err, "predicting rows %d to %d of %q", start, end-1, ds.Name())
		}
		predictions = append(predictions, batch...)
	}
	return predictions, nil
}

func (p *gomlxPipeline) predictRows(rows []dataset.Row) ([]Prediction, error) {
	images := make([][]byte, len(rows))
	for ii, row := range rows {
		images[ii] = row.Image
	}
	features, err := p.featurizer.Featurize(images)
	if err != nil {
		return nil, err
	}
	keys, probabilities, err := p.predictor.predict(features)
	if err != nil {
		return nil, err
	}
	predictions := make([]Prediction, len(rows))
	for ii, row := range rows {
		key := int(keys[ii])
		label, err := p.labels.Decode(key)
		if err != nil {
			return nil, err
		}
		predictions[ii] = Prediction{
			ImagePath:      row.ImagePath,
			Label:          row.Label,
			PredictedLabel: label,
			PredictedKey:   key,
			Score:          probabilities[ii*p.predictor.numLabels+key],
		}
	}
	return predictions, nil
}
