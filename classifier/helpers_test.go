package classifier

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"math/rand"
	"os"
	"path/filepath"
	"testing"

	"github.com/gomlx/gomlx/types/tensors"
	"github.com/gomlx/imageclassifier/dataset"
	"github.com/gomlx/imageclassifier/scan"
	"github.com/janpfeifer/must"
	"github.com/stretchr/testify/require"
)

// encodePNG returns a PNG image of the given size and color.
func encodePNG(t *testing.T, width, height int, c color.Color) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.Set(x, y, c)
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

// redsAndBlues creates a dataset with numPerLabel red images labeled "red" and as many blue ones
// labeled "blue".
func redsAndBlues(t *testing.T, numPerLabel int) *dataset.Dataset {
	root := t.TempDir()
	colors := map[string]color.Color{
		"red":  color.RGBA{R: 230, G: 20, B: 10, A: 255},
		"blue": color.RGBA{R: 5, G: 30, B: 240, A: 255},
	}
	for label, c := range colors {
		require.NoError(t, os.MkdirAll(filepath.Join(root, label), 0755))
		for ii := range numPerLabel {
			filePath := filepath.Join(root, label, fmt.Sprintf("%02d.png", ii))
			require.NoError(t, os.WriteFile(filePath, encodePNG(t, 6, 4, c), 0644))
		}
	}
	records := must.M1(scan.Collect(scan.Images(root, true)))
	return must.M1(dataset.Assemble(records, dataset.AssembleOptions{Rand: rand.New(rand.NewSource(7))}))
}

// colorFeaturizer uses the mean red, green and blue values of the images as features.
type colorFeaturizer struct {
	calls int
}

func (f *colorFeaturizer) Name() string { return "mean_color" }

func (f *colorFeaturizer) Featurize(encoded [][]byte) (*tensors.Tensor, error) {
	f.calls++
	imgs, err := DecodeImages(encoded, 4)
	if err != nil {
		return nil, err
	}
	features := make([]float32, 0, 3*len(imgs))
	for _, img := range imgs {
		var sum [3]float64
		bounds := img.Bounds()
		for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
			for x := bounds.Min.X; x < bounds.Max.X; x++ {
				r, g, b, _ := img.At(x, y).RGBA()
				sum[0] += float64(r)
				sum[1] += float64(g)
				sum[2] += float64(b)
			}
		}
		numPixels := float64(bounds.Dx()*bounds.Dy()) * 0xFFFF
		for _, s := range sum {
			features = append(features, float32(s/numPixels))
		}
	}
	return tensors.FromFlatDataAndDimensions(features, len(imgs), 3), nil
}
