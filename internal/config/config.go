package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/t2d2ai/annotation-cropper/pkg/cropper"
	"github.com/t2d2ai/annotation-cropper/pkg/overlay"
	"github.com/t2d2ai/annotation-cropper/pkg/panel"
	"github.com/t2d2ai/annotation-cropper/pkg/processing"
)

// Config holds the application configuration
type Config struct {
	Cropper CropperConfig `json:"cropper"`
	Render  RenderConfig  `json:"render"`
	Output  OutputConfig  `json:"output"`
	Panel   PanelConfig   `json:"panel"`
	Source  SourceConfig  `json:"source"`
}

// CropperConfig holds configuration for annotation cropping
type CropperConfig struct {
	PaddingPercent float64 `json:"padding_percent"`
	MinSize        int     `json:"min_size"`
}

// RenderConfig holds configuration for overlay drawing
type RenderConfig struct {
	FillAlpha   int     `json:"fill_alpha"`
	StrokeWidth float64 `json:"stroke_width"`
	PointRadius float64 `json:"point_radius"`
}

// OutputConfig holds configuration for output generation
type OutputConfig struct {
	Format    string `json:"format"`
	Quality   int    `json:"quality"`
	Lossless  bool   `json:"lossless"`
	OutputDir string `json:"output_dir"`
}

// PanelConfig holds configuration for visualization panels
type PanelConfig struct {
	Columns      int `json:"columns"`
	TileSize     int `json:"tile_size"`
	HeaderHeight int `json:"header_height"`
	LegendLimit  int `json:"legend_limit"`
}

// SourceConfig holds configuration for image downloads
type SourceConfig struct {
	Concurrency    int    `json:"concurrency"`
	TimeoutSeconds int    `json:"timeout_seconds"`
	UserAgent      string `json:"user_agent"`
	FileRoot       string `json:"file_root"`
	EnableGCS      bool   `json:"enable_gcs"`
}

// Default returns a configuration with default values
func Default() *Config {
	crop := cropper.DefaultConfig()
	style := overlay.DefaultStyle()
	layout := panel.DefaultLayout()
	return &Config{
		Cropper: CropperConfig{
			PaddingPercent: crop.PaddingPercent,
			MinSize:        crop.MinSize,
		},
		Render: RenderConfig{
			FillAlpha:   int(style.FillAlpha),
			StrokeWidth: style.StrokeWidth,
			PointRadius: style.PointRadius,
		},
		Output: OutputConfig{
			Format:    processing.DefaultFormat,
			Quality:   processing.DefaultQuality,
			Lossless:  false,
			OutputDir: "./crops",
		},
		Panel: PanelConfig{
			Columns:      layout.Columns,
			TileSize:     layout.TileSize,
			HeaderHeight: layout.HeaderHeight,
			LegendLimit:  layout.LegendLimit,
		},
		Source: SourceConfig{
			Concurrency:    1,
			TimeoutSeconds: 30,
		},
	}
}

// LoadFromFile loads configuration from a JSON file. Missing keys keep their defaults.
func LoadFromFile(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := Default()
	if err := json.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return config, nil
}

// SaveToFile saves configuration to a JSON file
func (c *Config) SaveToFile(filename string) error {
	// Create directory if it doesn't exist
	dir := filepath.Dir(filename)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(filename, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Cropper.PaddingPercent < 0 || c.Cropper.PaddingPercent > 1 {
		return fmt.Errorf("cropper.padding_percent must be between 0 and 1")
	}

	if c.Cropper.MinSize < 0 {
		return fmt.Errorf("cropper.min_size cannot be negative")
	}

	if c.Render.FillAlpha < 0 || c.Render.FillAlpha > 255 {
		return fmt.Errorf("render.fill_alpha must be between 0 and 255")
	}

	if c.Render.StrokeWidth <= 0 {
		return fmt.Errorf("render.stroke_width must be positive")
	}

	if c.Render.PointRadius <= 0 {
		return fmt.Errorf("render.point_radius must be positive")
	}

	if _, err := processing.NormalizeFormat(c.Output.Format); err != nil {
		return fmt.Errorf("output.format: %w", err)
	}

	if c.Output.Quality < 1 || c.Output.Quality > 100 {
		return fmt.Errorf("output.quality must be between 1 and 100")
	}

	if c.Panel.Columns < 1 {
		return fmt.Errorf("panel.columns must be positive")
	}

	if c.Panel.TileSize < 16 {
		return fmt.Errorf("panel.tile_size must be at least 16")
	}

	if c.Panel.HeaderHeight < 16 {
		return fmt.Errorf("panel.header_height must be at least 16")
	}

	if c.Source.Concurrency < 1 {
		return fmt.Errorf("source.concurrency must be positive")
	}

	if c.Source.TimeoutSeconds < 1 {
		return fmt.Errorf("source.timeout_seconds must be positive")
	}

	return nil
}

// CropConfig converts the cropper section for the cropper package
func (c *Config) CropConfig() cropper.CropConfig {
	return cropper.CropConfig{
		PaddingPercent: c.Cropper.PaddingPercent,
		MinSize:        c.Cropper.MinSize,
	}
}

// Style converts the render section for the overlay package
func (c *Config) Style() overlay.Style {
	return overlay.Style{
		FillAlpha:   uint8(c.Render.FillAlpha),
		StrokeWidth: c.Render.StrokeWidth,
		PointRadius: c.Render.PointRadius,
	}
}

// SaveOptions converts the output section for the processing package
func (c *Config) SaveOptions() processing.SaveOptions {
	return processing.SaveOptions{
		Format:   c.Output.Format,
		Quality:  c.Output.Quality,
		Lossless: c.Output.Lossless,
	}
}

// Layout converts the panel section for the panel package
func (c *Config) Layout() panel.Layout {
	layout := panel.DefaultLayout()
	layout.Columns = c.Panel.Columns
	layout.TileSize = c.Panel.TileSize
	layout.HeaderHeight = c.Panel.HeaderHeight
	layout.LegendLimit = c.Panel.LegendLimit
	return layout
}

// Timeout returns the per-request download timeout
func (c *Config) Timeout() time.Duration {
	return time.Duration(c.Source.TimeoutSeconds) * time.Second
}

// GetConfigPath returns the default configuration file path
func GetConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "./config.json"
	}
	return filepath.Join(home, ".config", "annotation-cropper", "config.json")
}
