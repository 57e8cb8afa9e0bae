package cropper

import (
	"errors"
	"fmt"
	"image"

	"github.com/cyclopcam/logs"
	"github.com/disintegration/imaging"

	"github.com/t2d2ai/annotation-cropper/pkg/geometry"
	"github.com/t2d2ai/annotation-cropper/pkg/types"
)

// ErrCropSkipped is wrapped by every recoverable cropping failure
var ErrCropSkipped = errors.New("crop skipped")

// Recoverable cropping failures
var (
	ErrInvalidBoundingBox = fmt.Errorf("%w: invalid bounding box", ErrCropSkipped)
	ErrDegenerateBox      = fmt.Errorf("%w: degenerate expanded box", ErrCropSkipped)
	ErrEmptyCrop          = fmt.Errorf("%w: zero-size crop", ErrCropSkipped)
	ErrNoImage            = fmt.Errorf("%w: no image data", ErrCropSkipped)
)

// IsRecoverable reports whether err is an expected per-annotation failure
// that a batch should record and move past.
func IsRecoverable(err error) bool {
	return errors.Is(err, ErrCropSkipped)
}

// AnnotationCropper cuts annotated regions out of images
type AnnotationCropper struct {
	log    logs.Log
	config CropConfig
}

// CropConfig holds configuration for annotation cropping
type CropConfig struct {
	PaddingPercent float64
	MinSize        int
}

// DefaultConfig returns the standard context padding and minimum crop size
func DefaultConfig() CropConfig {
	return CropConfig{
		PaddingPercent: geometry.DefaultPaddingPercent,
		MinSize:        geometry.DefaultMinSize,
	}
}

// New creates a new AnnotationCropper with default configuration
func New(log logs.Log) *AnnotationCropper {
	return NewWithConfig(log, DefaultConfig())
}

// NewWithConfig creates a new AnnotationCropper with custom configuration
func NewWithConfig(log logs.Log, config CropConfig) *AnnotationCropper {
	return &AnnotationCropper{
		log:    log,
		config: config,
	}
}

// Config returns the cropper configuration
func (c *AnnotationCropper) Config() CropConfig {
	return c.config
}

// CropResult contains the result of a cropping operation
type CropResult struct {
	Image image.Image
	// Box is the expanded box in full-image pixel space. It is needed to
	// re-offset annotation coordinates when drawing onto the crop.
	Box geometry.Box
}

// BoundingBox returns the clamped pixel bounding box of an annotation and
// logs the recoverable anomalies it hits along the way.
func (c *AnnotationCropper) BoundingBox(ann *types.Annotation, width, height int) (geometry.Box, error) {
	if _, dropped := geometry.Denormalize(ann.Points, width, height); dropped {
		c.log.Warnf("Annotation %v: odd number of coordinate values (%v), truncating last value", ann.ID, len(ann.Points))
	}
	box, err := geometry.BoundingBox(ann.Points, width, height)
	if err != nil {
		c.log.Warnf("Annotation %v: %v", ann.ID, err)
		return geometry.Box{}, fmt.Errorf("%w: %w", ErrInvalidBoundingBox, err)
	}
	c.log.Debugf("Annotation %v: bounding box %v", ann.ID, box)
	return box, nil
}

// CropAnnotation crops the image around an annotation using the configured padding
func (c *AnnotationCropper) CropAnnotation(img image.Image, ann *types.Annotation, width, height int) (CropResult, error) {
	return c.CropAnnotationWithPadding(img, ann, width, height, c.config.PaddingPercent)
}

// CropAnnotationWithPadding crops the image around an annotation with the
// given context padding. width and height are the declared image size, not
// the decoded bounds.
//
// Recoverable failures are logged and returned wrapping ErrCropSkipped. A
// malformed annotation returns an error wrapping types.ErrMalformedAnnotation.
func (c *AnnotationCropper) CropAnnotationWithPadding(img image.Image, ann *types.Annotation, width, height int, paddingPercent float64) (CropResult, error) {
	if err := ann.Validate(); err != nil {
		return CropResult{}, err
	}
	if img == nil {
		c.log.Warnf("Annotation %v: no image to crop", ann.ID)
		return CropResult{}, ErrNoImage
	}

	box, err := c.BoundingBox(ann, width, height)
	if err != nil {
		return CropResult{}, err
	}

	expanded := geometry.Expand(box, width, height, paddingPercent, c.config.MinSize)
	c.log.Debugf("Annotation %v: expanded box %v", ann.ID, expanded)
	if !expanded.Valid() {
		c.log.Warnf("Annotation %v: invalid expanded box %v", ann.ID, expanded)
		return CropResult{}, ErrDegenerateBox
	}

	cropped := c.cropImageToBox(img, expanded)
	if cropped.Bounds().Dx() == 0 || cropped.Bounds().Dy() == 0 {
		c.log.Warnf("Annotation %v: zero-size crop for box %v", ann.ID, expanded)
		return CropResult{}, ErrEmptyCrop
	}

	c.log.Infof("Cropped annotation %v, size %vx%v", ann.ID, cropped.Bounds().Dx(), cropped.Bounds().Dy())
	return CropResult{
		Image: cropped,
		Box:   expanded,
	}, nil
}

// cropImageToBox returns a new image holding the box region. Box coordinates
// are relative to the image origin, which may not be (0, 0).
func (c *AnnotationCropper) cropImageToBox(img image.Image, box geometry.Box) *image.NRGBA {
	rect := box.Rect().Add(img.Bounds().Min)
	return imaging.Crop(img, rect)
}
