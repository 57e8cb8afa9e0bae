// Package geometry converts annotation coordinates between normalized and
// pixel space and derives the bounding boxes used for cropping.
//
// All functions are pure: they never log and never mutate their inputs.
// Callers decide how to report the anomalies surfaced here.
package geometry

import (
	"encoding/json"
	"errors"
	"fmt"
	"image"
)

// Defaults used when expanding a bounding box for cropping
const (
	DefaultPaddingPercent = 0.2
	DefaultMinSize        = 50
)

// ErrInsufficientPoints is returned when there are not enough pixel values
// to form a bounding box.
var ErrInsufficientPoints = errors.New("insufficient coordinates for bounding box")

// Box is an axis-aligned box in integer pixel space
type Box struct {
	XMin int `json:"x_min"`
	YMin int `json:"y_min"`
	XMax int `json:"x_max"`
	YMax int `json:"y_max"`
}

// Width returns XMax - XMin
func (b Box) Width() int { return b.XMax - b.XMin }

// Height returns YMax - YMin
func (b Box) Height() int { return b.YMax - b.YMin }

// Valid reports whether the box has a positive extent on both axes.
func (b Box) Valid() bool {
	return b.XMax > b.XMin && b.YMax > b.YMin
}

// Rect returns the box as an image.Rectangle with an exclusive upper bound.
func (b Box) Rect() image.Rectangle {
	return image.Rect(b.XMin, b.YMin, b.XMax, b.YMax)
}

// Origin is the top-left corner of the box
func (b Box) Origin() image.Point {
	return image.Point{X: b.XMin, Y: b.YMin}
}

func (b Box) String() string {
	return fmt.Sprintf("(%d, %d, %d, %d) size %dx%d", b.XMin, b.YMin, b.XMax, b.YMax, b.Width(), b.Height())
}

// FlattenPoints turns either [x1, y1, x2, y2] or [[x1, y1], [x2, y2]] (or a
// mixture of both) into a single flat slice. Pairing is not validated.
// Values that are not numeric are skipped.
func FlattenPoints(points []any) []float64 {
	flat := make([]float64, 0, len(points)*2)
	for _, p := range points {
		flat = appendValue(flat, p)
	}
	return flat
}

func appendValue(flat []float64, v any) []float64 {
	switch t := v.(type) {
	case float64:
		return append(flat, t)
	case float32:
		return append(flat, float64(t))
	case int:
		return append(flat, float64(t))
	case int64:
		return append(flat, float64(t))
	case json.Number:
		if f, err := t.Float64(); err == nil {
			return append(flat, f)
		}
		return flat
	case []float64:
		return append(flat, t...)
	case [2]float64:
		return append(flat, t[0], t[1])
	case []any:
		for _, inner := range t {
			flat = appendValue(flat, inner)
		}
		return flat
	}
	return flat
}

// Denormalize converts flat normalized coordinates to flat pixel
// coordinates. Each value is clamped to [0, 1] and then truncated, so
// x = floor(xn * width). If the input has an odd length the trailing value
// is dropped and dropped is true.
func Denormalize(flat []float64, width, height int) (pix []int, dropped bool) {
	n := len(flat)
	if n%2 != 0 {
		n--
		dropped = true
	}
	pix = make([]int, 0, n)
	for i := 0; i+1 < n; i += 2 {
		x := clampUnit(flat[i])
		y := clampUnit(flat[i+1])
		pix = append(pix, int(x*float64(width)), int(y*float64(height)))
	}
	return pix, dropped
}

// Pairs groups flat pixel values into points. A trailing unpaired value is ignored.
func Pairs(pix []int) []image.Point {
	pts := make([]image.Point, 0, len(pix)/2)
	for i := 0; i+1 < len(pix); i += 2 {
		pts = append(pts, image.Point{X: pix[i], Y: pix[i+1]})
	}
	return pts
}

// Offset translates flat pixel coordinates so that origin becomes (0, 0).
// A new slice is returned.
func Offset(pix []int, origin image.Point) []int {
	out := make([]int, len(pix))
	for i, v := range pix {
		if i%2 == 0 {
			out[i] = v - origin.X
		} else {
			out[i] = v - origin.Y
		}
	}
	return out
}

// Extent returns the min/max box over all pairs in pix without clamping.
// ok is false when pix holds no complete pair.
func Extent(pix []int) (box Box, ok bool) {
	pts := Pairs(pix)
	if len(pts) == 0 {
		return Box{}, false
	}
	box = Box{XMin: pts[0].X, YMin: pts[0].Y, XMax: pts[0].X, YMax: pts[0].Y}
	for _, p := range pts[1:] {
		box.XMin = min(box.XMin, p.X)
		box.YMin = min(box.YMin, p.Y)
		box.XMax = max(box.XMax, p.X)
		box.YMax = max(box.YMax, p.Y)
	}
	return box, true
}

// BoundingBox computes the pixel bounding box of normalized points. It is
// shape-agnostic: a two-point rectangle, an N-point polygon and a single
// point are all handled the same way. Each bound is clamped to
// [0, dim-1]. A degenerate box is returned without error; callers must
// check Valid.
func BoundingBox(flat []float64, width, height int) (Box, error) {
	pix, _ := Denormalize(flat, width, height)
	if len(pix) < 2 {
		return Box{}, fmt.Errorf("%w: got %d values", ErrInsufficientPoints, len(pix))
	}
	box, ok := Extent(pix)
	if !ok {
		return Box{}, ErrInsufficientPoints
	}
	box.XMin = clampInt(box.XMin, 0, width-1)
	box.YMin = clampInt(box.YMin, 0, height-1)
	box.XMax = clampInt(box.XMax, 0, width-1)
	box.YMax = clampInt(box.YMax, 0, height-1)
	return box, nil
}

// Expand grows a box for context before cropping.
//
// A side shorter than minSize is recentered on its midpoint and forced to
// minSize. Padding of paddingPercent of the (possibly forced) size is then
// added on both ends and the result is clamped to [0, width] x [0, height].
// The upper clamp uses the dimension itself because crop bounds are
// exclusive. Clamping at an image edge can leave the box smaller than
// minSize; that is not corrected.
func Expand(box Box, width, height int, paddingPercent float64, minSize int) Box {
	w := box.Width()
	h := box.Height()

	if w < minSize {
		cx := floorDiv(box.XMin+box.XMax, 2)
		box.XMin = cx - minSize/2
		box.XMax = cx + minSize/2
		w = minSize
	}
	if h < minSize {
		cy := floorDiv(box.YMin+box.YMax, 2)
		box.YMin = cy - minSize/2
		box.YMax = cy + minSize/2
		h = minSize
	}

	padX := int(float64(w) * paddingPercent)
	padY := int(float64(h) * paddingPercent)

	return Box{
		XMin: clampInt(box.XMin-padX, 0, width),
		YMin: clampInt(box.YMin-padY, 0, height),
		XMax: clampInt(box.XMax+padX, 0, width),
		YMax: clampInt(box.YMax+padY, 0, height),
	}
}

func clampUnit(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// floorDiv rounds toward negative infinity, unlike Go's integer division.
func floorDiv(a, b int) int {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}
