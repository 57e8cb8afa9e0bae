package cropper

import (
	"image"
	"image/color"
	"testing"

	"github.com/cyclopcam/logs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/t2d2ai/annotation-cropper/pkg/geometry"
	"github.com/t2d2ai/annotation-cropper/pkg/types"
)

// createTestImage creates a gradient image so crops can be checked by pixel value
func createTestImage(width, height int) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.Set(x, y, color.RGBA{uint8(x % 256), uint8(y % 256), 128, 255})
		}
	}
	return img
}

func annotation(id int64, shape types.Shape, points ...float64) *types.Annotation {
	return &types.Annotation{
		ID:     id,
		Shape:  shape,
		Points: points,
		Class:  &types.AnnotationClass{Color: "#FF0000", Name: "crack"},
	}
}

func TestNew(t *testing.T) {
	c := New(logs.NewTestingLog(t))
	require.NotNil(t, c)
	assert.Equal(t, 0.2, c.Config().PaddingPercent)
	assert.Equal(t, 50, c.Config().MinSize)
}

func TestNewWithConfig(t *testing.T) {
	c := NewWithConfig(logs.NewTestingLog(t), CropConfig{PaddingPercent: 0.5, MinSize: 10})
	assert.Equal(t, 0.5, c.Config().PaddingPercent)
	assert.Equal(t, 10, c.Config().MinSize)
}

func TestCropAnnotation(t *testing.T) {
	c := New(logs.NewTestingLog(t))
	img := createTestImage(400, 300)

	res, err := c.CropAnnotation(img, annotation(1, types.Rectangle, 0.25, 0.25, 0.5, 0.5), 400, 300)
	require.NoError(t, err)

	// bbox (100,75)-(200,150), 100x75 -> padding 20x15
	assert.Equal(t, geometry.Box{XMin: 80, YMin: 60, XMax: 220, YMax: 165}, res.Box)
	assert.Equal(t, 140, res.Image.Bounds().Dx())
	assert.Equal(t, 105, res.Image.Bounds().Dy())

	// crop origin maps to the box origin in the source
	r, g, _, _ := res.Image.At(0, 0).RGBA()
	assert.Equal(t, uint32(80), r>>8)
	assert.Equal(t, uint32(60), g>>8)
}

func TestCropAnnotationDoesNotMutateSource(t *testing.T) {
	c := New(logs.NewTestingLog(t))
	img := createTestImage(100, 100).(*image.RGBA)
	before := append([]uint8(nil), img.Pix...)

	_, err := c.CropAnnotation(img, annotation(1, types.Point, 0.5, 0.5), 100, 100)
	require.NoError(t, err)
	assert.Equal(t, before, img.Pix)
}

func TestCropSmallAnnotationUsesMinSize(t *testing.T) {
	c := NewWithConfig(logs.NewTestingLog(t), CropConfig{PaddingPercent: 0, MinSize: 50})
	img := createTestImage(1000, 1000)

	res, err := c.CropAnnotation(img, annotation(1, types.Rectangle, 0.04, 0.04, 0.045, 0.045), 1000, 1000)
	require.NoError(t, err)
	assert.Equal(t, geometry.Box{XMin: 17, YMin: 17, XMax: 67, YMax: 67}, res.Box)
	assert.Equal(t, 50, res.Image.Bounds().Dx())
}

func TestCropInsufficientPoints(t *testing.T) {
	c := New(logs.NewTestingLog(t))
	img := createTestImage(100, 100)

	_, err := c.CropAnnotation(img, annotation(1, types.Point, 0.5), 100, 100)
	assert.ErrorIs(t, err, ErrInvalidBoundingBox)
	assert.ErrorIs(t, err, geometry.ErrInsufficientPoints)
	assert.True(t, IsRecoverable(err))
}

func TestCropDegenerateBox(t *testing.T) {
	// min size 0 and no padding leaves a single point as a zero-area box
	c := NewWithConfig(logs.NewTestingLog(t), CropConfig{PaddingPercent: 0, MinSize: 0})
	img := createTestImage(100, 100)

	_, err := c.CropAnnotation(img, annotation(1, types.Point, 0.5, 0.5), 100, 100)
	assert.ErrorIs(t, err, ErrDegenerateBox)
	assert.True(t, IsRecoverable(err))
}

func TestCropDeclaredSizeLargerThanImage(t *testing.T) {
	c := New(logs.NewTestingLog(t))
	img := createTestImage(100, 100)

	// the declared size places the box entirely outside the decoded pixels
	_, err := c.CropAnnotation(img, annotation(1, types.Rectangle, 0.8, 0.8, 0.9, 0.9), 2000, 2000)
	assert.ErrorIs(t, err, ErrEmptyCrop)
}

func TestCropNilImage(t *testing.T) {
	c := New(logs.NewTestingLog(t))
	_, err := c.CropAnnotation(nil, annotation(1, types.Point, 0.5, 0.5), 100, 100)
	assert.ErrorIs(t, err, ErrNoImage)
}

func TestCropMalformedAnnotation(t *testing.T) {
	c := New(logs.NewTestingLog(t))
	img := createTestImage(100, 100)

	ann := annotation(1, types.Point, 0.5, 0.5)
	ann.Class = nil
	_, err := c.CropAnnotation(img, ann, 100, 100)
	assert.ErrorIs(t, err, types.ErrMalformedAnnotation)
	assert.False(t, IsRecoverable(err))
}

func TestCropNonZeroOrigin(t *testing.T) {
	c := NewWithConfig(logs.NewTestingLog(t), CropConfig{PaddingPercent: 0, MinSize: 10})
	full := createTestImage(200, 200).(*image.RGBA)
	sub := full.SubImage(image.Rect(100, 100, 200, 200))

	res, err := c.CropAnnotation(sub, annotation(1, types.Rectangle, 0, 0, 0.2, 0.2), 100, 100)
	require.NoError(t, err)

	r, g, _, _ := res.Image.At(0, 0).RGBA()
	assert.Equal(t, uint32(100), r>>8)
	assert.Equal(t, uint32(100), g>>8)
}
