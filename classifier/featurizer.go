// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package classifier

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	_ "image/jpeg"
	_ "image/png"

	"github.com/disintegration/imaging"
	"github.com/gomlx/exceptions"
	"github.com/gomlx/gomlx/backends"
	"github.com/gomlx/gomlx/graph"
	"github.com/gomlx/gomlx/ml/context"
	"github.com/gomlx/gomlx/models/inceptionv3"
	"github.com/gomlx/gomlx/types/tensors"
	timage "github.com/gomlx/gomlx/types/tensors/images"
	"github.com/gomlx/gopjrt/dtypes"
	"github.com/gomlx/imageclassifier/dataset"
	"github.com/gomlx/imageclassifier/internal/workerspool"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// Featurizer converts encoded images to feature vectors.
type Featurizer interface {
	// Name identifies the featurizer and its configuration. Cached bottlenecks are only reused
	// if computed by a featurizer with the same name.
	Name() string

	// Featurize returns a tensor shaped [len(images), featuresDim] of float32.
	// Images that fail to decode return an error wrapping dataset.ErrImageDecode.
	Featurize(images [][]byte) (*tensors.Tensor, error)
}

// InceptionV3Featurizer uses the InceptionV3 model, pretrained on ImageNet, without its
// classification top, and max-pools its last layer.
type InceptionV3Featurizer struct {
	imageSize int
	exec      *context.Exec
}

var _ Featurizer = (*InceptionV3Featurizer)(nil)

// NewInceptionV3Featurizer downloads the weights to weightsDir if not there yet, and creates the featurizer
// for images resized to imageSize x imageSize.
func NewInceptionV3Featurizer(backend backends.Backend, weightsDir string, imageSize int) (*InceptionV3Featurizer, error) {
	if imageSize < inceptionv3.MinimumImageSize {
		return nil, errors.Errorf("image size %d smaller than the minimum %d for InceptionV3", imageSize, inceptionv3.MinimumImageSize)
	}
	if err := inceptionv3.DownloadAndUnpackWeights(weightsDir); err != nil {
		return nil, errors.WithMessagef(err, "failed to download InceptionV3 weights to %q", weightsDir)
	}
	f := &InceptionV3Featurizer{imageSize: imageSize}
	ctx := context.New().In("backbone")
	f.exec = context.NewExec(backend, ctx, func(ctx *context.Context, images *graph.Node) *graph.Node {
		images = inceptionv3.PreprocessImage(images, 1.0, timage.ChannelsLast)
		features := inceptionv3.BuildGraph(ctx, images).
			PreTrained(weightsDir).
			SetPooling(inceptionv3.MaxPooling).
			Trainable(false).
			Done()
		return graph.StopGradient(features)
	})
	return f, nil
}

// Name implements Featurizer.
func (f *InceptionV3Featurizer) Name() string {
	return fmt.Sprintf("%s/max_pooling/%dx%d", InceptionV3, f.imageSize, f.imageSize)
}

// Featurize implements Featurizer.
func (f *InceptionV3Featurizer) Featurize(encoded [][]byte) (*tensors.Tensor, error) {
	imgs, err := DecodeImages(encoded, f.imageSize)
	if err != nil {
		return nil, err
	}
	batch := timage.ToTensor(dtypes.Float32).Batch(imgs)
	var features *tensors.Tensor
	err = exceptions.TryCatch[error](func() {
		features = f.exec.Call(batch)[0]
	})
	if err != nil {
		return nil, errors.WithMessage(err, "failed to featurize images with InceptionV3")
	}
	klog.V(2).Infof("featurized %d images: %s", len(encoded), features.Shape())
	return features, nil
}

// decodePool parallelizes decoding and resizing of images.
var decodePool = workerspool.New()

// DecodeImages decodes and resizes (keeping the aspect ratio) each image to size x size.
func DecodeImages(encoded [][]byte, size int) ([]image.Image, error) {
	imgs := make([]image.Image, len(encoded))
	err := decodePool.Run(len(encoded), func(ii int) error {
		img, _, err := image.Decode(bytes.NewReader(encoded[ii]))
		if err != nil {
			return errors.Wrapf(dataset.ErrImageDecode, "image #%d: %v", ii, err)
		}
		imgs[ii] = ResizeWithPadding(img, size, size)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return imgs, nil
}

// ResizeWithPadding resizes the image to width x height keeping the aspect ratio, and
// centers it on a black background.
func ResizeWithPadding(img image.Image, width, height int) image.Image {
	size := img.Bounds().Size()
	wRatio := float64(width) / float64(size.X)
	hRatio := float64(height) / float64(size.Y)
	fitWidth, fitHeight := width, height
	switch {
	case wRatio < hRatio:
		fitHeight = max(1, int(wRatio*float64(size.Y)))
	case hRatio < wRatio:
		fitWidth = max(1, int(hRatio*float64(size.X)))
	}
	img = imaging.Resize(img, fitWidth, fitHeight, imaging.Lanczos)
	if fitWidth == width && fitHeight == height {
		return img
	}
	background := imaging.New(width, height, color.Black)
	return imaging.PasteCenter(background, img)
}
