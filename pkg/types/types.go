package types

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/t2d2ai/annotation-cropper/pkg/geometry"
)

// ErrMalformedAnnotation is returned when an annotation lacks a field that the
// engine needs to crop or draw it.
var ErrMalformedAnnotation = errors.New("malformed annotation")

// Shape is the platform's shape code for an annotation
type Shape int

// Known shape codes. Any other value is drawn as its bounding box.
const (
	Unknown   Shape = 0
	Rectangle Shape = 3
	Polygon   Shape = 4
	Line      Shape = 5
	Point     Shape = 8
)

// Kind maps the raw code onto the closed set of shapes the renderer knows.
func (s Shape) Kind() Shape {
	switch s {
	case Rectangle, Polygon, Line, Point:
		return s
	}
	return Unknown
}

func (s Shape) String() string {
	switch s {
	case Rectangle:
		return "rectangle"
	case Polygon:
		return "polygon"
	case Line:
		return "line"
	case Point:
		return "point"
	}
	return "unknown(" + strconv.Itoa(int(s)) + ")"
}

// Points holds normalized coordinates as a flat [x1, y1, x2, y2, ...] slice.
// It decodes from either a flat list or a list of [x, y] pairs.
type Points []float64

// UnmarshalJSON accepts both flat and nested coordinate lists
func (p *Points) UnmarshalJSON(data []byte) error {
	var raw []any
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&raw); err != nil {
		return fmt.Errorf("invalid points: %w", err)
	}
	if raw == nil {
		*p = nil
		return nil
	}
	*p = geometry.FlattenPoints(raw)
	return nil
}

// AnnotationClass carries the display color and names of an annotation
type AnnotationClass struct {
	ID       int64  `json:"id,omitempty"`
	Color    string `json:"annotation_class_color"`
	Name     string `json:"annotation_class_name"`
	LongName string `json:"annotation_class_long_name,omitempty"`
}

// DisplayName prefers the long name for captions
func (c *AnnotationClass) DisplayName() string {
	if c.LongName != "" {
		return c.LongName
	}
	return c.Name
}

// Condition is the severity rating attached to an annotation
type Condition struct {
	Rating     int    `json:"rating,omitempty"`
	RatingName string `json:"rating_name,omitempty"`
}

// Annotation is a geometric marking on one image
type Annotation struct {
	ID        int64            `json:"id"`
	Shape     Shape            `json:"shape"`
	Points    Points           `json:"points"`
	Class     *AnnotationClass `json:"annotation_class"`
	Visible   *bool            `json:"visible,omitempty"`
	Area      float64          `json:"area,omitempty"`
	Length    float64          `json:"length,omitempty"`
	Condition *Condition       `json:"condition,omitempty"`
}

// IsVisible reports the visible flag, which defaults to true
func (a *Annotation) IsVisible() bool {
	return a.Visible == nil || *a.Visible
}

// Validate checks the fields needed for cropping and drawing
func (a *Annotation) Validate() error {
	if a.Points == nil {
		return fmt.Errorf("%w %d: missing points", ErrMalformedAnnotation, a.ID)
	}
	if a.Class == nil {
		return fmt.Errorf("%w %d: missing annotation_class", ErrMalformedAnnotation, a.ID)
	}
	if a.Class.Color == "" {
		return fmt.Errorf("%w %d: missing annotation_class_color", ErrMalformedAnnotation, a.ID)
	}
	return nil
}

// ClassName returns the short class name, or "" if no class is set
func (a *Annotation) ClassName() string {
	if a.Class == nil {
		return ""
	}
	return a.Class.Name
}

// RatingName returns the condition rating name, or "" if none is set
func (a *Annotation) RatingName() string {
	if a.Condition == nil {
		return ""
	}
	return a.Condition.RatingName
}

// ImageInfo holds the declared pixel size of an image
type ImageInfo struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Image is an image record together with its annotations
type Image struct {
	ID          int64        `json:"id"`
	URL         string       `json:"url"`
	Filename    string       `json:"filename,omitempty"`
	Info        ImageInfo    `json:"info"`
	Annotations []Annotation `json:"annotations"`
}

// VisibleAnnotations returns the annotations that are not hidden
func (img *Image) VisibleAnnotations() []Annotation {
	visible := make([]Annotation, 0, len(img.Annotations))
	for _, ann := range img.Annotations {
		if ann.IsVisible() {
			visible = append(visible, ann)
		}
	}
	return visible
}

// LoadImages decodes either a single image object or a list of them
func LoadImages(r io.Reader) ([]Image, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read image records: %w", err)
	}
	trimmed := strings.TrimSpace(string(data))
	if trimmed == "" {
		return nil, fmt.Errorf("no image records")
	}

	if strings.HasPrefix(trimmed, "{") {
		var single Image
		if err := json.Unmarshal([]byte(trimmed), &single); err != nil {
			return nil, fmt.Errorf("failed to parse image record: %w", err)
		}
		return []Image{single}, nil
	}

	var list []Image
	if err := json.Unmarshal([]byte(trimmed), &list); err != nil {
		return nil, fmt.Errorf("failed to parse image records: %w", err)
	}
	return list, nil
}

// LoadImagesFile reads image records from a JSON file
func LoadImagesFile(path string) ([]Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open image records: %w", err)
	}
	defer f.Close()
	return LoadImages(f)
}
