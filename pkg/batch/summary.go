package batch

import "github.com/t2d2ai/annotation-cropper/pkg/source"

// Summary describes a downloaded batch
type Summary struct {
	Total     int            `json:"total_images"`
	Succeeded int            `json:"successful_downloads"`
	Failed    int            `json:"failed_downloads"`
	Images    []ImageSummary `json:"images"`
}

// ImageSummary describes one image of a batch
type ImageSummary struct {
	Index              int   `json:"index"`
	ID                 int64 `json:"id"`
	Downloaded         bool  `json:"downloaded"`
	Width              int   `json:"width"`
	Height             int   `json:"height"`
	TotalAnnotations   int   `json:"total_annotations"`
	VisibleAnnotations int   `json:"visible_annotations"`
	Bytes              int   `json:"bytes,omitempty"`
}

// Summarize counts downloads and annotations per image
func Summarize(images []source.Loaded) Summary {
	s := Summary{Total: len(images), Images: make([]ImageSummary, 0, len(images))}
	for i := range images {
		img := &images[i]
		if img.OK() {
			s.Succeeded++
		}
		s.Images = append(s.Images, ImageSummary{
			Index:              img.Index,
			ID:                 img.Record.ID,
			Downloaded:         img.OK(),
			Width:              img.Record.Info.Width,
			Height:             img.Record.Info.Height,
			TotalAnnotations:   len(img.Record.Annotations),
			VisibleAnnotations: len(img.Record.VisibleAnnotations()),
			Bytes:              img.Size,
		})
	}
	s.Failed = s.Total - s.Succeeded
	return s
}
