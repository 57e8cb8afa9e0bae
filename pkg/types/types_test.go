package types

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleRecord = `{
	"id": 17,
	"url": "https://example.com/a.jpg",
	"info": {"width": 800, "height": 600},
	"annotations": [
		{
			"id": 1,
			"shape": 3,
			"points": [0.1, 0.2, 0.3, 0.4],
			"annotation_class": {"annotation_class_color": "#FF0000", "annotation_class_name": "crack", "annotation_class_long_name": "Concrete Crack"},
			"area": 12.5,
			"condition": {"rating_name": "Poor"}
		},
		{
			"id": 2,
			"shape": 4,
			"points": [[0.1, 0.1], [0.5, 0.1], [0.3, 0.6]],
			"annotation_class": {"annotation_class_color": "#00FF00", "annotation_class_name": "spall"},
			"visible": false
		}
	]
}`

func TestPointsAcceptsBothForms(t *testing.T) {
	var flat, nested Points
	require.NoError(t, json.Unmarshal([]byte(`[0.1, 0.2, 0.3, 0.4]`), &flat))
	require.NoError(t, json.Unmarshal([]byte(`[[0.1, 0.2], [0.3, 0.4]]`), &nested))
	assert.Equal(t, flat, nested)
	assert.Equal(t, Points{0.1, 0.2, 0.3, 0.4}, flat)
}

func TestPointsNull(t *testing.T) {
	var p Points
	require.NoError(t, json.Unmarshal([]byte(`null`), &p))
	assert.Nil(t, p)
}

func TestPointsRejectsObject(t *testing.T) {
	var p Points
	assert.Error(t, json.Unmarshal([]byte(`{"x": 1}`), &p))
}

func TestLoadSingleRecord(t *testing.T) {
	images, err := LoadImages(strings.NewReader(sampleRecord))
	require.NoError(t, err)
	require.Len(t, images, 1)

	img := images[0]
	assert.Equal(t, int64(17), img.ID)
	assert.Equal(t, 800, img.Info.Width)
	require.Len(t, img.Annotations, 2)

	rect := img.Annotations[0]
	assert.Equal(t, Rectangle, rect.Shape)
	assert.Equal(t, "crack", rect.ClassName())
	assert.Equal(t, "Concrete Crack", rect.Class.DisplayName())
	assert.Equal(t, "Poor", rect.RatingName())
	assert.True(t, rect.IsVisible())

	poly := img.Annotations[1]
	assert.Equal(t, Points{0.1, 0.1, 0.5, 0.1, 0.3, 0.6}, poly.Points)
	assert.False(t, poly.IsVisible())
	assert.Equal(t, "spall", poly.Class.DisplayName())
}

func TestLoadRecordList(t *testing.T) {
	images, err := LoadImages(strings.NewReader("[" + sampleRecord + "," + sampleRecord + "]"))
	require.NoError(t, err)
	assert.Len(t, images, 2)
}

func TestLoadImagesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "images.json")
	require.NoError(t, os.WriteFile(path, []byte(sampleRecord), 0o644))

	images, err := LoadImagesFile(path)
	require.NoError(t, err)
	assert.Len(t, images, 1)

	_, err = LoadImagesFile(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}

func TestLoadImagesEmpty(t *testing.T) {
	_, err := LoadImages(strings.NewReader("   "))
	assert.Error(t, err)
}

func TestVisibleAnnotations(t *testing.T) {
	images, err := LoadImages(strings.NewReader(sampleRecord))
	require.NoError(t, err)

	visible := images[0].VisibleAnnotations()
	require.Len(t, visible, 1)
	assert.Equal(t, int64(1), visible[0].ID)
}

func TestShapeKind(t *testing.T) {
	assert.Equal(t, Rectangle, Shape(3).Kind())
	assert.Equal(t, Polygon, Shape(4).Kind())
	assert.Equal(t, Line, Shape(5).Kind())
	assert.Equal(t, Point, Shape(8).Kind())
	assert.Equal(t, Unknown, Shape(42).Kind())
	assert.Equal(t, "unknown(42)", Shape(42).String())
}

func TestValidate(t *testing.T) {
	ann := Annotation{ID: 5, Points: Points{0.1, 0.1}, Class: &AnnotationClass{Color: "#123456"}}
	assert.NoError(t, ann.Validate())

	noPoints := ann
	noPoints.Points = nil
	assert.ErrorIs(t, noPoints.Validate(), ErrMalformedAnnotation)

	noClass := ann
	noClass.Class = nil
	assert.ErrorIs(t, noClass.Validate(), ErrMalformedAnnotation)

	noColor := ann
	noColor.Class = &AnnotationClass{Name: "crack"}
	assert.ErrorIs(t, noColor.Validate(), ErrMalformedAnnotation)
}
