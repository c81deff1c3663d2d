// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package classifier

import (
	"image/color"
	"math"

	"github.com/pkg/errors"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
)

// trainingHistory collects the accuracy reported during training, to be plotted at the end.
type trainingHistory struct {
	train, validation plotter.XYs
}

func (h *trainingHistory) record(m Metrics) {
	if m.Phase != PhaseTraining || math.IsNaN(m.Accuracy) || math.IsInf(m.Accuracy, 0) {
		return
	}
	point := plotter.XY{X: float64(m.Step), Y: m.Accuracy}
	if m.DatasetUsed == "validation" {
		h.validation = append(h.validation, point)
	} else {
		h.train = append(h.train, point)
	}
}

// Save plots the accuracy per step to a PNG file.
func (h *trainingHistory) Save(path string) error {
	p := plot.New()
	p.Title.Text = "Image Classification Training"
	p.X.Label.Text = "Step"
	p.Y.Label.Text = "Accuracy"
	p.Y.Min, p.Y.Max = 0, 1
	p.Add(plotter.NewGrid())
	curves := []struct {
		name   string
		points plotter.XYs
		color  color.Color
	}{
		{"train (moving average)", h.train, color.RGBA{R: 31, G: 119, B: 180, A: 255}},
		{"validation", h.validation, color.RGBA{R: 255, G: 127, B: 14, A: 255}},
	}
	for _, curve := range curves {
		if len(curve.points) == 0 {
			continue
		}
		line, points, err := plotter.NewLinePoints(curve.points)
		if err != nil {
			return errors.Wrapf(err, "plotting %s accuracy", curve.name)
		}
		line.Color = curve.color
		points.Color = curve.color
		p.Add(line, points)
		p.Legend.Add(curve.name, line, points)
	}
	p.Legend.Top = true
	p.Legend.Left = true
	if err := p.Save(8*vg.Inch, 5*vg.Inch, path); err != nil {
		return errors.Wrapf(err, "saving training plot to %q", path)
	}
	return nil
}
