// Package overlay draws annotation shapes on top of images.
//
// Rendering always works on a fresh copy. The caller's image is never
// modified, so the same decoded image can be rendered many times.
package overlay

import (
	"errors"
	"fmt"
	"image"
	"strings"

	"github.com/cyclopcam/logs"
	"github.com/fogleman/gg"
	colorful "github.com/lucasb-eyer/go-colorful"

	"github.com/t2d2ai/annotation-cropper/pkg/geometry"
	"github.com/t2d2ai/annotation-cropper/pkg/processing"
	"github.com/t2d2ai/annotation-cropper/pkg/types"
)

// ErrInsufficientPoints is returned when a shape has too few points to draw
var ErrInsufficientPoints = errors.New("insufficient points for shape")

// Style controls how shapes are painted
type Style struct {
	FillAlpha   uint8
	StrokeWidth float64
	PointRadius float64
}

// DefaultStyle is a translucent fill with a 3px opaque outline
func DefaultStyle() Style {
	return Style{
		FillAlpha:   80,
		StrokeWidth: 3,
		PointRadius: 15,
	}
}

// Renderer draws annotations onto copies of images
type Renderer struct {
	log       logs.Log
	style     Style
	processor *processing.Processor
}

// New creates a Renderer with the default style
func New(log logs.Log) *Renderer {
	return NewWithStyle(log, DefaultStyle())
}

// NewWithStyle creates a Renderer with a custom style
func NewWithStyle(log logs.Log, style Style) *Renderer {
	return &Renderer{log: log, style: style, processor: processing.NewProcessor()}
}

// Style returns the renderer's style
func (r *Renderer) Style() Style {
	return r.style
}

// ParseColor parses a "#RRGGBB" class color. The leading '#' is optional.
func ParseColor(hex string) (r, g, b uint8, err error) {
	hex = strings.TrimSpace(hex)
	if !strings.HasPrefix(hex, "#") {
		hex = "#" + hex
	}
	c, err := colorful.Hex(hex)
	if err != nil {
		return 0, 0, 0, fmt.Errorf("invalid color %q: %w", hex, err)
	}
	r, g, b = c.RGB255()
	return r, g, b, nil
}

// Render returns a copy of img with the annotation drawn on top.
//
// Points are denormalized against width and height. When offset is not nil
// the image is a crop and offset is the crop's box in full-image pixel space;
// coordinates are shifted by its origin.
//
// Render never fails. If the shape has too few points the copy is returned
// undrawn. If anything else goes wrong the original image is returned.
func (r *Renderer) Render(img image.Image, ann *types.Annotation, width, height int, offset *geometry.Box) (out image.Image) {
	defer func() {
		if p := recover(); p != nil {
			r.log.Errorf("Failed to draw annotation: %v", p)
			out = img
		}
	}()

	if ann == nil {
		r.log.Errorf("Failed to draw annotation: nil annotation")
		return img
	}
	if err := ann.Validate(); err != nil {
		r.log.Errorf("Failed to draw annotation: %v", err)
		return img
	}
	cr, cg, cb, err := ParseColor(ann.Class.Color)
	if err != nil {
		r.log.Errorf("Failed to draw annotation %v: %v", ann.ID, err)
		return img
	}

	pix, dropped := geometry.Denormalize(ann.Points, width, height)
	if dropped {
		r.log.Warnf("Annotation %v: odd number of coordinate values (%v), truncating last value", ann.ID, len(ann.Points))
	}
	if offset != nil {
		pix = geometry.Offset(pix, offset.Origin())
	}

	dc := r.newContext(img)
	p := painter{
		dc:     dc,
		style:  r.style,
		r:      int(cr),
		g:      int(cg),
		b:      int(cb),
		shape:  ann.Shape,
		pixels: pix,
	}
	if err := p.draw(); err != nil {
		r.log.Warnf("Annotation %v (%v): %v", ann.ID, ann.Shape, err)
	} else {
		r.log.Debugf("Drew annotation %v (%v)", ann.ID, ann.Shape)
	}
	return dc.Image()
}

// RenderAll draws every visible annotation in order onto a single copy of img.
// An annotation that cannot be drawn is skipped.
func (r *Renderer) RenderAll(img image.Image, anns []types.Annotation, width, height int, offset *geometry.Box) image.Image {
	out := img
	drawn := false
	for i := range anns {
		if !anns[i].IsVisible() {
			continue
		}
		out = r.Render(out, &anns[i], width, height, offset)
		drawn = true
	}
	if !drawn {
		return r.processor.Clone(img)
	}
	return out
}

// newContext copies img into a drawing context anchored at (0, 0)
func (r *Renderer) newContext(img image.Image) *gg.Context {
	if img.Bounds().Min != (image.Point{}) {
		img = r.processor.Clone(img)
	}
	return gg.NewContextForImage(img)
}

type painter struct {
	dc      *gg.Context
	style   Style
	r, g, b int
	shape   types.Shape
	pixels  []int
}

func (p *painter) draw() error {
	switch p.shape.Kind() {
	case types.Rectangle:
		if len(p.pixels) < 4 {
			return fmt.Errorf("%w: rectangle has %d values", ErrInsufficientPoints, len(p.pixels))
		}
		p.rectangle(p.pixels[0], p.pixels[1], p.pixels[2], p.pixels[3])
	case types.Polygon:
		pts := geometry.Pairs(p.pixels)
		if len(pts) < 3 {
			return fmt.Errorf("%w: polygon has %d points", ErrInsufficientPoints, len(pts))
		}
		p.polygon(pts)
	case types.Point:
		if len(p.pixels) < 2 {
			return fmt.Errorf("%w: point has %d values", ErrInsufficientPoints, len(p.pixels))
		}
		p.circle(p.pixels[0], p.pixels[1])
	case types.Line:
		pts := geometry.Pairs(p.pixels)
		if len(pts) < 2 {
			return fmt.Errorf("%w: line has %d points", ErrInsufficientPoints, len(pts))
		}
		p.polyline(pts)
	default:
		box, ok := geometry.Extent(p.pixels)
		if !ok || len(p.pixels) < 4 {
			return fmt.Errorf("%w: unknown shape has %d values", ErrInsufficientPoints, len(p.pixels))
		}
		p.rectangle(box.XMin, box.YMin, box.XMax, box.YMax)
	}
	return nil
}

func (p *painter) rectangle(x0, y0, x1, y1 int) {
	if x1 < x0 {
		x0, x1 = x1, x0
	}
	if y1 < y0 {
		y0, y1 = y1, y0
	}
	p.dc.DrawRectangle(float64(x0), float64(y0), float64(x1-x0), float64(y1-y0))
	p.fillAndStroke()
}

func (p *painter) polygon(pts []image.Point) {
	p.dc.MoveTo(float64(pts[0].X), float64(pts[0].Y))
	for _, pt := range pts[1:] {
		p.dc.LineTo(float64(pt.X), float64(pt.Y))
	}
	p.dc.ClosePath()
	p.fillAndStroke()
}

func (p *painter) circle(x, y int) {
	p.dc.DrawCircle(float64(x), float64(y), p.style.PointRadius)
	p.fillAndStroke()
}

func (p *painter) polyline(pts []image.Point) {
	p.dc.MoveTo(float64(pts[0].X), float64(pts[0].Y))
	for _, pt := range pts[1:] {
		p.dc.LineTo(float64(pt.X), float64(pt.Y))
	}
	p.dc.SetLineCapRound()
	p.dc.SetLineJoinRound()
	p.stroke()
}

func (p *painter) fillAndStroke() {
	p.dc.SetRGBA255(p.r, p.g, p.b, int(p.style.FillAlpha))
	p.dc.FillPreserve()
	p.stroke()
}

func (p *painter) stroke() {
	p.dc.SetRGBA255(p.r, p.g, p.b, 255)
	p.dc.SetLineWidth(p.style.StrokeWidth)
	p.dc.Stroke()
}
