package classifier

import (
	"flag"
	"fmt"
	"image"
	"image/color"
	"testing"

	"github.com/gomlx/gomlx/graph/graphtest"
	"github.com/gomlx/gomlx/models/inceptionv3"
	"github.com/gomlx/gopjrt/dtypes"
	"github.com/gomlx/imageclassifier/dataset"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var flagWeightsDir = flag.String("inceptionv3_dir", "/tmp/gomlx_inceptionv3", "Directory where to download the InceptionV3 weights.")

func TestInceptionV3Featurizer(t *testing.T) {
	if testing.Short() {
		fmt.Println("- TestInceptionV3Featurizer disabled for go test --short because it requires downloading a large file with weights.")
		return
	}
	backend := graphtest.BuildTestBackend()
	featurizer, err := NewInceptionV3Featurizer(backend, *flagWeightsDir, inceptionv3.MinimumImageSize)
	require.NoError(t, err)
	assert.Equal(t, fmt.Sprintf("inception_v3/max_pooling/%dx%d", inceptionv3.MinimumImageSize, inceptionv3.MinimumImageSize), featurizer.Name())

	images := [][]byte{
		encodePNG(t, 120, 80, color.RGBA{R: 230, G: 20, B: 10, A: 255}),
		encodePNG(t, 64, 96, color.RGBA{R: 5, G: 30, B: 240, A: 255}),
	}
	features, err := featurizer.Featurize(images)
	require.NoError(t, err)
	assert.Equal(t, dtypes.Float32, features.DType())
	assert.Equal(t, []int{2, 2048}, features.Shape().Dimensions)

	_, err = featurizer.Featurize([][]byte{images[0], []byte("not an image")})
	assert.True(t, errors.Is(err, dataset.ErrImageDecode))

	_, err = NewInceptionV3Featurizer(backend, *flagWeightsDir, inceptionv3.MinimumImageSize-1)
	assert.Error(t, err)
}

func TestResizeWithPadding(t *testing.T) {
	white := color.NRGBA{R: 255, G: 255, B: 255, A: 255}
	img := image.NewNRGBA(image.Rect(0, 0, 100, 50))
	for y := 0; y < 50; y++ {
		for x := 0; x < 100; x++ {
			img.Set(x, y, white)
		}
	}
	resized := ResizeWithPadding(img, 40, 40)
	require.Equal(t, image.Rect(0, 0, 40, 40), resized.Bounds())

	// Wide image: padding on top and bottom.
	r, g, b, _ := resized.At(20, 20).RGBA()
	for _, channel := range []uint32{r, g, b} {
		assert.Greater(t, channel, uint32(0xF000))
	}
	r, g, b, _ = resized.At(20, 2).RGBA()
	assert.Equal(t, []uint32{0, 0, 0}, []uint32{r, g, b})
	r, g, b, _ = resized.At(20, 37).RGBA()
	assert.Equal(t, []uint32{0, 0, 0}, []uint32{r, g, b})

	// Same aspect ratio: no padding.
	square := ResizeWithPadding(resized, 10, 10)
	require.Equal(t, image.Rect(0, 0, 10, 10), square.Bounds())
}

func TestDecodeImages(t *testing.T) {
	red := encodePNG(t, 8, 4, color.RGBA{R: 255, A: 255})
	imgs, err := DecodeImages([][]byte{red, red}, 6)
	require.NoError(t, err)
	require.Len(t, imgs, 2)
	assert.Equal(t, image.Rect(0, 0, 6, 6), imgs[0].Bounds())

	_, err = DecodeImages([][]byte{red, []byte("not an image")}, 6)
	require.Error(t, err)
	assert.True(t, errors.Is(err, dataset.ErrImageDecode))
}
