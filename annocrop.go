// Package annocrop crops annotated regions out of inspection images and draws
// the annotations onto them.
//
// Basic usage:
//
//	package main
//
//	import (
//		"context"
//		"os"
//
//		"github.com/cyclopcam/logs"
//		"github.com/t2d2ai/annotation-cropper"
//		"github.com/t2d2ai/annotation-cropper/pkg/types"
//	)
//
//	func main() {
//		log, _ := logs.NewLog()
//		records, err := types.LoadImagesFile("images.json")
//		if err != nil {
//			log.Criticalf("%v", err)
//			os.Exit(1)
//		}
//
//		c := annocrop.New(log, records, annocrop.DefaultOptions())
//		ctx := context.Background()
//
//		// Download once, then crop and visualize
//		if _, err := c.SaveIndividualCrops(ctx, "./crops", 0.2); err != nil {
//			log.Errorf("%v", err)
//		}
//		if _, err := c.CreateVisualization(ctx, "annotation_crops.png", 0.2); err != nil {
//			log.Errorf("%v", err)
//		}
//	}
//
// The package consists of these components:
//
//  1. Geometry (pkg/geometry): normalized points to pixel boxes, context padding
//  2. Cropper (pkg/cropper): crops one annotation out of an image
//  3. Overlay (pkg/overlay): draws annotations by shape
//  4. Source (pkg/source): fetches images over HTTP, from GCS or from disk
//  5. Batch (pkg/batch): bulk crops, panels and download summaries
//  6. Panel (pkg/panel): visualization panel layout
//
// Every per-image and per-annotation failure is logged and skipped. Only a
// malformed annotation, one without points or a class color, stops a batch.
package annocrop

import (
	"context"
	"image"
	"io"
	"sync"
	"time"

	"github.com/cyclopcam/logs"

	"github.com/t2d2ai/annotation-cropper/pkg/batch"
	"github.com/t2d2ai/annotation-cropper/pkg/cropper"
	"github.com/t2d2ai/annotation-cropper/pkg/geometry"
	"github.com/t2d2ai/annotation-cropper/pkg/source"
	"github.com/t2d2ai/annotation-cropper/pkg/types"
)

// Version of the annotation cropper library
const Version = "1.0.0"

// Options configures a Cropper
type Options struct {
	Batch       batch.Options
	Source      source.ImageSource
	Concurrency int
}

// DefaultOptions fetches images sequentially over HTTP(S) or from local files
func DefaultOptions() Options {
	return Options{
		Batch: batch.DefaultOptions(),
		Source: &source.Router{
			HTTP: source.NewHTTPSource(30*time.Second, source.DefaultUserAgent),
			File: &source.FileSource{},
		},
		Concurrency: 1,
	}
}

// Cropper holds a set of image records and downloads them at most once
type Cropper struct {
	log     logs.Log
	records []types.Image
	runner  *batch.Runner
	fetcher *source.Fetcher

	mu     sync.Mutex
	images []source.Loaded
}

// New creates a Cropper for the given image records
func New(log logs.Log, records []types.Image, opts Options) *Cropper {
	if opts.Source == nil {
		opts.Source = DefaultOptions().Source
	}
	return &Cropper{
		log:     log,
		records: records,
		runner:  batch.NewRunner(log, opts.Batch),
		fetcher: source.NewFetcher(log, opts.Source, opts.Concurrency),
	}
}

// NewFromJSON creates a Cropper from a JSON image record or list of records
func NewFromJSON(log logs.Log, r io.Reader, opts Options) (*Cropper, error) {
	records, err := types.LoadImages(r)
	if err != nil {
		return nil, err
	}
	return New(log, records, opts), nil
}

// Records returns the image records
func (c *Cropper) Records() []types.Image {
	return c.records
}

// Download fetches and decodes every image. Later calls return the first
// result without fetching again, unless the first attempt was cancelled.
func (c *Cropper) Download(ctx context.Context) ([]source.Loaded, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.images != nil {
		return c.images, nil
	}
	images, err := c.fetcher.FetchAll(ctx, c.records)
	if err != nil {
		return nil, err
	}
	c.images = images
	return images, nil
}

// Summary downloads the images if needed and describes the batch
func (c *Cropper) Summary(ctx context.Context) (batch.Summary, error) {
	images, err := c.Download(ctx)
	if err != nil {
		return batch.Summary{}, err
	}
	return batch.Summarize(images), nil
}

// SaveIndividualCrops saves one marked crop per visible annotation into outputDir
func (c *Cropper) SaveIndividualCrops(ctx context.Context, outputDir string, paddingPercent float64) (batch.Report, error) {
	images, err := c.Download(ctx)
	if err != nil {
		return batch.Report{}, err
	}
	return c.runner.CropAndRenderAll(images, outputDir, paddingPercent)
}

// CreateVisualization writes one panel per image, named after outputPath
func (c *Cropper) CreateVisualization(ctx context.Context, outputPath string, paddingPercent float64) (batch.PanelReport, error) {
	images, err := c.Download(ctx)
	if err != nil {
		return batch.PanelReport{}, err
	}
	return c.runner.BuildVisualizationPanel(images, outputPath, paddingPercent)
}

// CropAnnotation crops one annotation out of img
func (c *Cropper) CropAnnotation(img image.Image, ann *types.Annotation, width, height int, paddingPercent float64) (cropper.CropResult, error) {
	return c.runner.Cropper().CropAnnotationWithPadding(img, ann, width, height, paddingPercent)
}

// Render draws one annotation onto a copy of img. offset is the crop box img
// was cut from, or nil for the full image.
func (c *Cropper) Render(img image.Image, ann *types.Annotation, width, height int, offset *geometry.Box) image.Image {
	return c.runner.Renderer().Render(img, ann, width, height, offset)
}

// GetVersion returns the library version
func GetVersion() string {
	return Version
}
