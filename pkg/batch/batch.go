// Package batch runs the cropping engine over sets of images. Every
// per-image and per-annotation failure is recorded and the batch moves on;
// only a malformed annotation stops an operation.
package batch

import (
	"errors"
	"fmt"
	"path/filepath"

	"github.com/cyclopcam/logs"

	"github.com/t2d2ai/annotation-cropper/internal/utils"
	"github.com/t2d2ai/annotation-cropper/pkg/cropper"
	"github.com/t2d2ai/annotation-cropper/pkg/overlay"
	"github.com/t2d2ai/annotation-cropper/pkg/panel"
	"github.com/t2d2ai/annotation-cropper/pkg/processing"
	"github.com/t2d2ai/annotation-cropper/pkg/source"
	"github.com/t2d2ai/annotation-cropper/pkg/types"
)

// ErrNotDownloaded marks images that have no pixel data
var ErrNotDownloaded = errors.New("image not downloaded")

// Outcome is the result of one attempted annotation crop
type Outcome struct {
	ImageIndex   int
	AnnotationID int64
	ClassName    string
	Path         string // set on success
	Err          error  // set when skipped
}

// OK reports whether the crop was produced
func (o Outcome) OK() bool {
	return o.Err == nil
}

// Report aggregates the outcomes of a bulk crop
type Report struct {
	Attempted int
	Succeeded int
	Images    int // images processed
	Outcomes  []Outcome
}

func (r *Report) add(o Outcome) {
	r.Attempted++
	if o.OK() {
		r.Succeeded++
	}
	r.Outcomes = append(r.Outcomes, o)
}

// PanelOutcome is the result of building one image's panel
type PanelOutcome struct {
	ImageIndex int
	Path       string // set when the panel was written
	Crops      int    // tiles in the panel
	Visible    int
	Err        error // set when the image was skipped
}

// PanelReport aggregates the panels of a batch
type PanelReport struct {
	Written  int
	Outcomes []PanelOutcome
}

// Runner wires the cropper, renderer and encoder together for bulk work
type Runner struct {
	log       logs.Log
	cropper   *cropper.AnnotationCropper
	renderer  *overlay.Renderer
	processor *processing.Processor
	save      processing.SaveOptions
	layout    panel.Layout
}

// Options configures a Runner
type Options struct {
	Crop   cropper.CropConfig
	Style  overlay.Style
	Save   processing.SaveOptions
	Layout panel.Layout
}

// DefaultOptions returns the defaults of every stage
func DefaultOptions() Options {
	return Options{
		Crop:   cropper.DefaultConfig(),
		Style:  overlay.DefaultStyle(),
		Save:   processing.SaveOptions{Format: processing.DefaultFormat, Quality: processing.DefaultQuality},
		Layout: panel.DefaultLayout(),
	}
}

// NewRunner creates a Runner. Zero-value sections of opts take their defaults.
func NewRunner(log logs.Log, opts Options) *Runner {
	defaults := DefaultOptions()
	if opts.Crop == (cropper.CropConfig{}) {
		opts.Crop = defaults.Crop
	}
	if opts.Style == (overlay.Style{}) {
		opts.Style = defaults.Style
	}
	if opts.Layout == (panel.Layout{}) {
		opts.Layout = defaults.Layout
	}
	if opts.Save.Format == "" {
		opts.Save.Format = processing.DefaultFormat
	}
	return &Runner{
		log:       log,
		cropper:   cropper.NewWithConfig(log, opts.Crop),
		renderer:  overlay.NewWithStyle(log, opts.Style),
		processor: processing.NewProcessor(),
		save:      opts.Save,
		layout:    opts.Layout,
	}
}

// Cropper returns the runner's annotation cropper
func (r *Runner) Cropper() *cropper.AnnotationCropper {
	return r.cropper
}

// Renderer returns the runner's overlay renderer
func (r *Runner) Renderer() *overlay.Renderer {
	return r.renderer
}

// CropAndRenderAll crops every visible annotation of every downloaded image,
// draws the annotation onto its crop and saves it as
// {outputDir}/img{index}_crop_{annotationID}_{className}.{ext}.
//
// Failed downloads and failed crops are recorded and skipped. A malformed
// annotation stops the batch; the report built so far is returned with the error.
func (r *Runner) CropAndRenderAll(images []source.Loaded, outputDir string, paddingPercent float64) (Report, error) {
	var report Report
	r.log.Infof("Saving individual crops to %v", outputDir)
	if err := utils.EnsureDir(outputDir); err != nil {
		return report, fmt.Errorf("failed to create output directory: %w", err)
	}
	format, err := processing.NormalizeFormat(r.save.Format)
	if err != nil {
		return report, err
	}

	for i := range images {
		img := &images[i]
		if !img.OK() {
			r.log.Warnf("Skipping image %v (download failed)", img.Index)
			continue
		}
		report.Images++

		width, height := img.Record.Info.Width, img.Record.Info.Height
		visible := img.Record.VisibleAnnotations()
		r.log.Infof("Processing image %v: %v visible annotations", img.Index, len(visible))

		for j := range visible {
			ann := &visible[j]
			outcome := Outcome{
				ImageIndex:   img.Index,
				AnnotationID: ann.ID,
				ClassName:    ann.ClassName(),
			}

			crop, err := r.cropper.CropAnnotationWithPadding(img.Pixels, ann, width, height, paddingPercent)
			if err != nil {
				if !cropper.IsRecoverable(err) {
					return report, fmt.Errorf("image %v: %w", img.Index, err)
				}
				r.log.Warnf("Skipping annotation %v (crop failed)", ann.ID)
				outcome.Err = err
				report.add(outcome)
				continue
			}

			marked := r.renderer.Render(crop.Image, ann, width, height, &crop.Box)
			path := utils.CropFilename(outputDir, img.Index, ann.ID, ann.ClassName(), format)
			if err := r.processor.SaveImage(marked, path, r.save); err != nil {
				r.log.Errorf("Failed to save %v: %v", path, err)
				outcome.Err = err
				report.add(outcome)
				continue
			}
			outcome.Path = path
			report.add(outcome)
			r.log.Infof("Saved: %v", path)
		}
	}

	r.log.Infof("Total crops saved: %v/%v across %v images", report.Succeeded, report.Attempted, len(images))
	return report, nil
}

// BuildVisualizationPanel writes one panel per image: the full image with all
// visible annotations, a legend, and one captioned tile per successful crop.
// The path of each panel is derived from outputPathTemplate with
// utils.PanelPath.
//
// Images that failed to download, have no visible annotations, or produce no
// crops are skipped.
func (r *Runner) BuildVisualizationPanel(images []source.Loaded, outputPathTemplate string, paddingPercent float64) (PanelReport, error) {
	var report PanelReport
	r.log.Infof("Starting visualization creation")

	for i := range images {
		img := &images[i]
		outcome := PanelOutcome{ImageIndex: img.Index}
		if !img.OK() {
			r.log.Warnf("Skipping image %v (download failed)", img.Index)
			outcome.Err = ErrNotDownloaded
			report.Outcomes = append(report.Outcomes, outcome)
			continue
		}

		written, err := r.buildPanel(img, outputPathTemplate, paddingPercent, &outcome)
		if err != nil {
			return report, err
		}
		if written {
			report.Written++
		}
		report.Outcomes = append(report.Outcomes, outcome)
	}

	r.log.Infof("Visualization creation complete: %v panels written", report.Written)
	return report, nil
}

type tileSource struct {
	ann  *types.Annotation
	crop cropper.CropResult
}

func (r *Runner) buildPanel(img *source.Loaded, template string, paddingPercent float64, outcome *PanelOutcome) (bool, error) {
	width, height := img.Record.Info.Width, img.Record.Info.Height
	visible := img.Record.VisibleAnnotations()
	outcome.Visible = len(visible)
	if len(visible) == 0 {
		r.log.Warnf("No visible annotations found in image %v", img.Index)
		outcome.Err = fmt.Errorf("image %v: no visible annotations", img.Index)
		return false, nil
	}

	var crops []tileSource
	for j := range visible {
		ann := &visible[j]
		crop, err := r.cropper.CropAnnotationWithPadding(img.Pixels, ann, width, height, paddingPercent)
		if err != nil {
			if !cropper.IsRecoverable(err) {
				return false, fmt.Errorf("image %v: %w", img.Index, err)
			}
			continue
		}
		crops = append(crops, tileSource{ann: ann, crop: crop})
	}
	if len(crops) == 0 {
		r.log.Warnf("No valid crops could be created for image %v", img.Index)
		outcome.Err = fmt.Errorf("image %v: no valid crops", img.Index)
		return false, nil
	}
	r.log.Infof("Image %v: successfully cropped %v/%v annotations", img.Index, len(crops), len(visible))

	p := panel.Panel{
		Title:  fmt.Sprintf("Image %d: Original with All Annotations", img.Index),
		Header: r.renderer.RenderAll(img.Pixels, visible, width, height, nil),
	}
	for _, c := range crops {
		p.Legend = append(p.Legend, LegendEntry(c.ann))
		p.Tiles = append(p.Tiles, panel.Tile{
			Image:   r.renderer.Render(c.crop.Image, c.ann, width, height, &c.crop.Box),
			Caption: Caption(c.ann),
		})
	}

	path := utils.PanelPath(template, img.Index)
	if err := utils.EnsureDir(filepath.Dir(path)); err != nil {
		return false, fmt.Errorf("failed to create output directory: %w", err)
	}
	composed := panel.Compose(p, r.layout)
	save := r.save
	save.Format = "" // follow the panel path's extension
	if err := r.processor.SaveImage(composed, path, save); err != nil {
		r.log.Errorf("Failed to save visualization %v: %v", path, err)
		outcome.Err = err
		return false, nil
	}

	outcome.Path = path
	outcome.Crops = len(crops)
	r.log.Infof("Visualization saved to %v", path)
	return true, nil
}

// LegendEntry is the legend line of an annotation
func LegendEntry(ann *types.Annotation) string {
	return fmt.Sprintf("ID %d: %s", ann.ID, ann.Class.DisplayName())
}

// Caption returns the tile caption lines of an annotation
func Caption(ann *types.Annotation) []string {
	lines := []string{fmt.Sprintf("ID: %d - %s", ann.ID, ann.Class.DisplayName())}
	if ann.Area > 0 {
		lines = append(lines, fmt.Sprintf("Area: %.1f sq units", ann.Area))
	}
	if rating := ann.RatingName(); rating != "" && rating != "N/A" {
		lines = append(lines, "Condition: "+rating)
	}
	return lines
}
