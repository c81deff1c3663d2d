// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package classifier

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"slices"

	"github.com/gomlx/gomlx/types/tensors"
	"github.com/gomlx/gopjrt/dtypes"
	"github.com/gomlx/imageclassifier/dataset"
	"github.com/gomlx/imageclassifier/internal/fsutil"
	"github.com/muesli/termenv"
	"github.com/pkg/errors"
	"github.com/schollz/progressbar/v3"
	"k8s.io/klog/v2"
)

// bottleneckManifest describes the contents of a cached bottleneck file.
type bottleneckManifest struct {
	Featurizer string   `json:"featurizer"`
	Dims       []int    `json:"dims"`
	ImagePaths []string `json:"image_paths"`
}

// bottleneckPaths returns the path of the features tensor and of its manifest for the named set.
func bottleneckPaths(workspace, setName string) (tensorPath, manifestPath string) {
	base := filepath.Join(workspace, setName+"_bottleneck")
	return base + ".bin", base + ".json"
}

// bottleneckBuilder computes (or loads from the cache) the features of the images of a dataset.
type bottleneckBuilder struct {
	featurizer   Featurizer
	workspace    string
	batchSize    int
	callback     func(Metrics)
	showProgress bool
}

// Features returns a float32 tensor shaped [ds.Len(), featuresDim]. If reuse is set and a cache computed
// by the same featurizer for the same images is found, it is returned instead of featurizing the images.
// The features computed are always saved to the cache.
func (b *bottleneckBuilder) Features(ds *dataset.Dataset, setName string, reuse bool) (*tensors.Tensor, error) {
	if ds.Len() == 0 {
		return nil, errors.Wrapf(dataset.ErrEmptyDataset, "no images to featurize in %q", setName)
	}
	tensorPath, manifestPath := bottleneckPaths(b.workspace, setName)
	paths := ds.Frame().Col(dataset.ColImagePath).Records()
	if reuse {
		features, err := b.load(tensorPath, manifestPath, paths)
		if err == nil {
			klog.Infof("reusing cached bottleneck %q for %d images of %q", tensorPath, ds.Len(), setName)
			return features, nil
		}
		klog.Infof("not reusing cached bottleneck for %q: %v", setName, err)
	}

	features, err := b.compute(ds, setName)
	if err != nil {
		return nil, err
	}
	if err = b.save(features, tensorPath, manifestPath, paths); err != nil {
		klog.Warningf("failed to cache bottleneck for %q: %+v", setName, err)
	}
	return features, nil
}

func (b *bottleneckBuilder) compute(ds *dataset.Dataset, setName string) (*tensors.Tensor, error) {
	numImages := ds.Len()
	var bar *progressbar.ProgressBar
	if b.showProgress {
		term := termenv.NewOutput(os.Stdout)
		term.HideCursor()
		defer term.ShowCursor()
		bar = progressbar.NewOptions(numImages,
			progressbar.OptionSetWriter(os.Stdout),
			progressbar.OptionSetDescription(fmt.Sprintf("Bottleneck (%s)", setName)),
			progressbar.OptionUseANSICodes(true),
			progressbar.OptionEnableColorCodes(true),
			progressbar.OptionShowIts(),
			progressbar.OptionSetItsString("images"),
			progressbar.OptionShowCount(),
		)
	}

	var flat []float32
	featuresDim := -1
	batch := make([][]byte, 0, b.batchSize)
	for start := 0; start < numImages; start += b.batchSize {
		end := min(start+b.batchSize, numImages)
		batch = batch[:0]
		for ii := start; ii < end; ii++ {
			batch = append(batch, ds.Row(ii).Image)
		}
		features, err := b.featurizer.Featurize(batch)
		if err != nil {
			return nil, errors.WithMessagef(err, "while featurizing images %d to %d of %q", start, end-1, setName)
		}
		dims := features.Shape().Dimensions
		if features.DType() != dtypes.Float32 || len(dims) != 2 || dims[0] != end-start {
			return nil, errors.Wrapf(ErrTraining, "featurizer %q returned features shaped %s for %d images, wanted float32 [%d, <dim>]",
				b.featurizer.Name(), features.Shape(), end-start, end-start)
		}
		if featuresDim == -1 {
			featuresDim = dims[1]
			flat = make([]float32, 0, numImages*featuresDim)
		}
		flat = append(flat, tensors.CopyFlatData[float32](features)...)
		if bar != nil {
			_ = bar.Add(end - start)
		}
		if b.callback != nil {
			b.callback(Metrics{Phase: PhaseBottleneck, DatasetUsed: setName, ImageIndex: end})
		}
	}
	if bar != nil {
		_ = bar.Finish()
		fmt.Println()
	}
	return tensors.FromFlatDataAndDimensions(flat, numImages, featuresDim), nil
}

func (b *bottleneckBuilder) save(features *tensors.Tensor, tensorPath, manifestPath string, paths []string) error {
	if _, err := fsutil.EnsureDir(filepath.Dir(tensorPath)); err != nil {
		return err
	}
	if err := features.Save(tensorPath); err != nil {
		return errors.WithMessagef(err, "saving bottleneck to %q", tensorPath)
	}
	manifest := bottleneckManifest{
		Featurizer: b.featurizer.Name(),
		Dims:       features.Shape().Dimensions,
		ImagePaths: paths,
	}
	contents, err := json.MarshalIndent(&manifest, "", "  ")
	if err != nil {
		return errors.Wrap(err, "encoding bottleneck manifest")
	}
	return errors.Wrapf(os.WriteFile(manifestPath, contents, 0644), "writing bottleneck manifest %q", manifestPath)
}

func (b *bottleneckBuilder) load(tensorPath, manifestPath string, paths []string) (*tensors.Tensor, error) {
	exists, err := fsutil.FileExists(manifestPath)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, errors.Errorf("no cached bottleneck in %q", filepath.Dir(manifestPath))
	}
	contents, err := os.ReadFile(manifestPath)
	if err != nil {
		return nil, errors.Wrap(err, "reading bottleneck manifest")
	}
	var manifest bottleneckManifest
	if err = json.Unmarshal(contents, &manifest); err != nil {
		return nil, errors.Wrapf(err, "decoding bottleneck manifest %q", manifestPath)
	}
	if manifest.Featurizer != b.featurizer.Name() {
		return nil, errors.Errorf("cached bottleneck computed by %q, current featurizer is %q", manifest.Featurizer, b.featurizer.Name())
	}
	if !slices.Equal(manifest.ImagePaths, paths) {
		return nil, errors.New("cached bottleneck computed for different images")
	}
	features, err := tensors.Load(tensorPath)
	if err != nil {
		return nil, errors.WithMessagef(err, "loading cached bottleneck %q", tensorPath)
	}
	if !slices.Equal(features.Shape().Dimensions, manifest.Dims) {
		return nil, errors.Errorf("cached bottleneck shaped %s, manifest expected %v", features.Shape(), manifest.Dims)
	}
	return features, nil
}
