package processing

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/chai2010/webp"
	"github.com/disintegration/imaging"
	_ "golang.org/x/image/webp"

	"github.com/t2d2ai/annotation-cropper/internal/utils"
)

// ErrUnsupportedFormat is returned for image formats we cannot decode or encode
var ErrUnsupportedFormat = errors.New("unsupported image format")

// Default output settings for saved crops
const (
	DefaultFormat  = "jpg"
	DefaultQuality = 95
)

// SaveOptions controls how an image is encoded
type SaveOptions struct {
	Format   string // jpg, png or webp; derived from the path if empty
	Quality  int    // JPEG/WebP quality (1-100)
	Lossless bool   // WebP lossless mode
}

// Processor handles image decoding and encoding
type Processor struct{}

// NewProcessor creates a new image processor
func NewProcessor() *Processor {
	return &Processor{}
}

// Decode decodes image bytes, with WebP support
func (p *Processor) Decode(data []byte) (image.Image, error) {
	// Try standard image.Decode first
	if img, _, err := image.Decode(bytes.NewReader(data)); err == nil {
		return img, nil
	}

	// Try WebP decode
	if img, err := webp.Decode(bytes.NewReader(data)); err == nil {
		return img, nil
	}

	return nil, fmt.Errorf("%w: unknown image data (%d bytes)", ErrUnsupportedFormat, len(data))
}

// LoadImage loads an image from a file path
func (p *Processor) LoadImage(path string) (image.Image, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	img, err := p.Decode(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return img, nil
}

// NormalizeFormat maps an extension or format name onto jpg, png or webp
func NormalizeFormat(format string) (string, error) {
	switch strings.TrimPrefix(strings.ToLower(format), ".") {
	case "jpg", "jpeg":
		return "jpg", nil
	case "png":
		return "png", nil
	case "webp":
		return "webp", nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
}

// Encode writes img to w in the given format
func (p *Processor) Encode(w io.Writer, img image.Image, opts SaveOptions) error {
	format, err := NormalizeFormat(opts.Format)
	if err != nil {
		return err
	}
	quality := opts.Quality
	if quality <= 0 {
		quality = DefaultQuality
	}

	switch format {
	case "webp":
		return webp.Encode(w, img, &webp.Options{Lossless: opts.Lossless, Quality: float32(quality)})
	case "png":
		return imaging.Encode(w, img, imaging.PNG)
	default:
		return imaging.Encode(w, img, imaging.JPEG, imaging.JPEGQuality(quality))
	}
}

// SaveImage writes img to path. The image is encoded into a temporary file
// in the same directory and renamed into place, so a failed save never
// leaves a partial file at path.
func (p *Processor) SaveImage(img image.Image, path string, opts SaveOptions) error {
	if opts.Format == "" {
		opts.Format = utils.GetFileExtension(path)
	}
	if _, err := NormalizeFormat(opts.Format); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create output file: %w", err)
	}
	tmpName := tmp.Name()

	if err := p.Encode(tmp, img, opts); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to encode %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	// CreateTemp uses 0600
	if err := os.Chmod(tmpName, 0644); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to set permissions on %s: %w", path, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to move %s into place: %w", path, err)
	}
	return nil
}

// Clone returns a copy of img anchored at (0, 0)
func (p *Processor) Clone(img image.Image) *image.NRGBA {
	return imaging.Clone(img)
}
