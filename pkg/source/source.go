// Package source fetches raw image bytes from wherever an image record's
// locator points: HTTP(S) URLs, Google Cloud Storage objects or local files.
package source

import (
	"context"
	"errors"
	"fmt"
	"image"
	"net/url"
	"strings"

	"github.com/cyclopcam/logs"
	"golang.org/x/sync/errgroup"

	"github.com/t2d2ai/annotation-cropper/pkg/processing"
	"github.com/t2d2ai/annotation-cropper/pkg/types"
)

// ErrUnsupportedLocator is returned when no source can handle a locator
var ErrUnsupportedLocator = errors.New("unsupported image locator")

// ImageSource fetches the raw bytes of one image
type ImageSource interface {
	Fetch(ctx context.Context, locator string) ([]byte, error)
}

// Router sends each locator to the source registered for its scheme
type Router struct {
	HTTP ImageSource // http and https, except storage.googleapis.com when GCS is set
	GCS  ImageSource // gs:// and https://storage.googleapis.com/
	File ImageSource // file:// and bare paths
}

// Fetch implements ImageSource
func (r *Router) Fetch(ctx context.Context, locator string) ([]byte, error) {
	src, err := r.route(locator)
	if err != nil {
		return nil, err
	}
	return src.Fetch(ctx, locator)
}

func (r *Router) route(locator string) (ImageSource, error) {
	u, err := url.Parse(locator)
	if err != nil || u.Scheme == "" || len(u.Scheme) == 1 {
		// bare paths, including Windows drive letters
		if r.File != nil {
			return r.File, nil
		}
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedLocator, locator)
	}

	var src ImageSource
	switch strings.ToLower(u.Scheme) {
	case "gs":
		src = r.GCS
	case "http", "https":
		src = r.HTTP
		if r.GCS != nil && strings.EqualFold(u.Host, gcsPublicHost) {
			src = r.GCS
		}
	case "file":
		src = r.File
	}
	if src == nil {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedLocator, locator)
	}
	return src, nil
}

// Loaded pairs an image record with its decoded pixels. Pixels is nil and
// Err is set when the fetch or decode failed.
type Loaded struct {
	Index  int // 1-based position in the input
	Record types.Image
	Pixels image.Image
	Size   int // bytes fetched
	Err    error
}

// OK reports whether the image was fetched and decoded
func (l *Loaded) OK() bool {
	return l.Pixels != nil
}

// Fetcher downloads and decodes a batch of images
type Fetcher struct {
	log         logs.Log
	src         ImageSource
	processor   *processing.Processor
	concurrency int
}

// NewFetcher creates a Fetcher. A concurrency below 1 means sequential.
func NewFetcher(log logs.Log, src ImageSource, concurrency int) *Fetcher {
	if concurrency < 1 {
		concurrency = 1
	}
	return &Fetcher{
		log:         log,
		src:         src,
		processor:   processing.NewProcessor(),
		concurrency: concurrency,
	}
}

// FetchAll fetches every record. A failure is recorded in that record's slot
// and never stops the others. The result has one entry per record, in order.
// Only a cancelled context aborts the batch.
func (f *Fetcher) FetchAll(ctx context.Context, records []types.Image) ([]Loaded, error) {
	f.log.Infof("Starting download of %v images", len(records))
	loaded := make([]Loaded, len(records))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(f.concurrency)
	for i := range records {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			loaded[i] = f.fetchOne(gctx, i, len(records), records[i])
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return loaded, err
	}

	succeeded := 0
	for i := range loaded {
		if loaded[i].OK() {
			succeeded++
		}
	}
	f.log.Infof("Download complete: %v/%v images successfully downloaded", succeeded, len(records))
	return loaded, nil
}

func (f *Fetcher) fetchOne(ctx context.Context, i, total int, rec types.Image) Loaded {
	l := Loaded{Index: i + 1, Record: rec}
	data, err := f.src.Fetch(ctx, rec.URL)
	if err != nil {
		f.log.Errorf("[%v/%v] Error downloading image %v: %v", i+1, total, rec.ID, err)
		l.Err = err
		return l
	}
	l.Size = len(data)

	img, err := f.processor.Decode(data)
	if err != nil {
		f.log.Errorf("[%v/%v] Error decoding image %v: %v", i+1, total, rec.ID, err)
		l.Err = err
		return l
	}
	l.Pixels = img
	f.log.Infof("[%v/%v] Downloaded: %vx%v (%v bytes)", i+1, total, rec.Info.Width, rec.Info.Height, len(data))
	return l
}
