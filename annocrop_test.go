package annocrop

import (
	"context"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/cyclopcam/logs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/t2d2ai/annotation-cropper/pkg/source"
	"github.com/t2d2ai/annotation-cropper/pkg/types"
)

const recordsJSON = `[
  {
    "id": 1,
    "url": "one.png",
    "info": {"width": 400, "height": 300},
    "annotations": [
      {"id": 11, "shape": 3, "points": [[0.1, 0.1], [0.3, 0.3]],
       "annotation_class": {"annotation_class_color": "#FF0000", "annotation_class_name": "crack"}},
      {"id": 12, "shape": 4, "points": [0.5, 0.5, 0.7, 0.5, 0.6, 0.8], "visible": false,
       "annotation_class": {"annotation_class_color": "00FF00", "annotation_class_name": "spall"}}
    ]
  },
  {
    "id": 2,
    "url": "missing.png",
    "info": {"width": 400, "height": 300},
    "annotations": []
  }
]`

// writeTestImage writes a gray PNG that the file source can serve
func writeTestImage(t *testing.T, dir, name string, width, height int) {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.Set(x, y, color.RGBA{100, 100, 100, 255})
		}
	}
	f, err := os.Create(filepath.Join(dir, name))
	require.NoError(t, err)
	defer f.Close()
	require.NoError(t, png.Encode(f, img))
}

// countingSource counts fetches so tests can check images are downloaded once
type countingSource struct {
	inner source.ImageSource
	calls atomic.Int32
}

func (s *countingSource) Fetch(ctx context.Context, locator string) ([]byte, error) {
	s.calls.Add(1)
	return s.inner.Fetch(ctx, locator)
}

func newTestCropper(t *testing.T) (*Cropper, *countingSource) {
	dir := t.TempDir()
	writeTestImage(t, dir, "one.png", 400, 300)

	src := &countingSource{inner: &source.FileSource{Root: dir}}
	opts := DefaultOptions()
	opts.Source = src

	c, err := NewFromJSON(logs.NewTestingLog(t), strings.NewReader(recordsJSON), opts)
	require.NoError(t, err)
	return c, src
}

func TestNewFromJSON(t *testing.T) {
	c, _ := newTestCropper(t)
	require.Len(t, c.Records(), 2)
	assert.Equal(t, types.Rectangle, c.Records()[0].Annotations[0].Shape)
}

func TestNewFromJSONSingleRecord(t *testing.T) {
	c, err := NewFromJSON(logs.NewTestingLog(t), strings.NewReader(`{"id": 5, "url": "x.png", "info": {"width": 10, "height": 10}}`), DefaultOptions())
	require.NoError(t, err)
	require.Len(t, c.Records(), 1)
	assert.Equal(t, int64(5), c.Records()[0].ID)
}

func TestSummaryDownloadsOnce(t *testing.T) {
	c, src := newTestCropper(t)
	ctx := context.Background()

	s, err := c.Summary(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, s.Total)
	assert.Equal(t, 1, s.Succeeded)
	assert.Equal(t, 1, s.Failed)
	assert.Equal(t, 2, s.Images[0].TotalAnnotations)
	assert.Equal(t, 1, s.Images[0].VisibleAnnotations)

	_, err = c.SaveIndividualCrops(ctx, t.TempDir(), 0.2)
	require.NoError(t, err)
	_, err = c.CreateVisualization(ctx, filepath.Join(t.TempDir(), "panel.png"), 0.2)
	require.NoError(t, err)

	assert.Equal(t, int32(2), src.calls.Load())
}

func TestSaveIndividualCrops(t *testing.T) {
	c, _ := newTestCropper(t)
	dir := t.TempDir()

	report, err := c.SaveIndividualCrops(context.Background(), dir, 0.2)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Succeeded)

	_, err = os.Stat(filepath.Join(dir, "img1_crop_11_crack.jpg"))
	assert.NoError(t, err)
}

func TestCreateVisualization(t *testing.T) {
	c, _ := newTestCropper(t)
	dir := t.TempDir()

	report, err := c.CreateVisualization(context.Background(), filepath.Join(dir, "annotation_crops.png"), 0.2)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Written)

	_, err = os.Stat(filepath.Join(dir, "annotation_crops_image_1.png"))
	assert.NoError(t, err)
}

func TestDownloadCancelled(t *testing.T) {
	c, src := newTestCropper(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := c.Download(ctx)
	assert.ErrorIs(t, err, context.Canceled)

	// a cancelled attempt is not cached
	images, err := c.Download(context.Background())
	require.NoError(t, err)
	assert.Len(t, images, 2)
	assert.LessOrEqual(t, src.calls.Load(), int32(2))
}

func TestCropAndRender(t *testing.T) {
	c, _ := newTestCropper(t)
	images, err := c.Download(context.Background())
	require.NoError(t, err)

	img := images[0]
	ann := &img.Record.Annotations[0]
	res, err := c.CropAnnotation(img.Pixels, ann, 400, 300, 0)
	require.NoError(t, err)
	// (40,30)-(120,90), already at least 50 wide and tall
	assert.Equal(t, 80, res.Image.Bounds().Dx())
	assert.Equal(t, 60, res.Image.Bounds().Dy())

	marked := c.Render(res.Image, ann, 400, 300, &res.Box)
	assert.Equal(t, res.Image.Bounds().Size(), marked.Bounds().Size())
	edge := color.RGBAModel.Convert(marked.At(0, 0)).(color.RGBA)
	assert.Greater(t, edge.R, uint8(200), "outline drawn at the crop edge")
	assert.Less(t, edge.G, uint8(50))
}

func TestGetVersion(t *testing.T) {
	assert.Equal(t, Version, GetVersion())
}

func TestZeroOptionsUseDefaults(t *testing.T) {
	dir := t.TempDir()
	writeTestImage(t, dir, "one.png", 400, 300)
	records, err := types.LoadImages(strings.NewReader(recordsJSON))
	require.NoError(t, err)

	c := New(logs.NewTestingLog(t), records, Options{Source: &source.FileSource{Root: dir}})
	ctx := context.Background()

	out := t.TempDir()
	panels, err := c.CreateVisualization(ctx, filepath.Join(out, "annotation_crops.png"), 0.2)
	require.NoError(t, err)
	assert.Equal(t, 1, panels.Written)

	crops, err := c.SaveIndividualCrops(ctx, out, 0.2)
	require.NoError(t, err)
	assert.Equal(t, 1, crops.Succeeded)
	_, err = os.Stat(filepath.Join(out, "img1_crop_11_crack.jpg"))
	assert.NoError(t, err)
}
