package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"

	"github.com/alecthomas/kong"
	"github.com/cyclopcam/logs"

	annocrop "github.com/t2d2ai/annotation-cropper"
	"github.com/t2d2ai/annotation-cropper/internal/config"
	"github.com/t2d2ai/annotation-cropper/internal/utils"
	"github.com/t2d2ai/annotation-cropper/pkg/batch"
	"github.com/t2d2ai/annotation-cropper/pkg/processing"
	"github.com/t2d2ai/annotation-cropper/pkg/source"
	"github.com/t2d2ai/annotation-cropper/pkg/types"
)

var cli struct {
	Config      string  `short:"c" type:"path" help:"JSON config file. Defaults to ~/.config/annotation-cropper/config.json when present"`
	Padding     float64 `short:"p" default:"-1" help:"Context padding as a fraction of the box size (default from config)"`
	Concurrency int     `short:"j" default:"0" help:"Parallel image downloads (default from config)"`
	Format      string  `short:"f" help:"Crop format: jpg, png or webp (default from config)"`
	Quality     int     `short:"q" default:"0" help:"JPEG/WebP quality 1-100 (default from config)"`
	GCS         bool    `help:"Read gs:// and storage.googleapis.com locators with Google Cloud credentials"`
	Root        string  `type:"path" help:"Directory that relative image paths are resolved against"`

	Summary SummaryCmd `cmd:"" help:"Download the images and print a JSON summary"`
	Crops   CropsCmd   `cmd:"" help:"Save one marked crop per visible annotation"`
	Panel   PanelCmd   `cmd:"" help:"Write one visualization panel per image"`
}

// SummaryCmd prints the download summary
type SummaryCmd struct {
	Input string `arg:"" type:"path" help:"JSON file with an image record or a list of records"`
}

// CropsCmd saves individual crops
type CropsCmd struct {
	Input  string `arg:"" type:"path" help:"JSON file with an image record or a list of records"`
	Output string `short:"o" type:"path" help:"Output directory (default from config)"`
}

// PanelCmd writes visualization panels
type PanelCmd struct {
	Input  string `arg:"" type:"path" help:"JSON file with an image record or a list of records"`
	Output string `short:"o" type:"path" default:"annotation_crops.png" help:"Panel path; _image_N is inserted before the extension"`
}

// app is what every subcommand runs against
type app struct {
	ctx    context.Context
	log    logs.Log
	config *config.Config
	closer func()
}

func (a *app) cropper(input string) (*annocrop.Cropper, error) {
	records, err := types.LoadImagesFile(input)
	if err != nil {
		return nil, err
	}
	a.log.Infof("Loaded %v image records from %v", len(records), input)

	router := &source.Router{
		HTTP: source.NewHTTPSource(a.config.Timeout(), a.config.Source.UserAgent),
		File: &source.FileSource{Root: a.config.Source.FileRoot},
	}
	if a.config.Source.EnableGCS {
		gcs, err := source.NewGCSSource(a.ctx)
		if err != nil {
			return nil, err
		}
		router.GCS = gcs
		a.closer = func() { gcs.Close() }
	}

	opts := annocrop.Options{
		Batch: batch.Options{
			Crop:   a.config.CropConfig(),
			Style:  a.config.Style(),
			Save:   a.config.SaveOptions(),
			Layout: a.config.Layout(),
		},
		Source:      router,
		Concurrency: a.config.Source.Concurrency,
	}
	return annocrop.New(a.log, records, opts), nil
}

// Run implements the summary command
func (cmd *SummaryCmd) Run(a *app) error {
	c, err := a.cropper(cmd.Input)
	if err != nil {
		return err
	}
	summary, err := c.Summary(a.ctx)
	if err != nil {
		return err
	}
	for _, img := range summary.Images {
		if img.Downloaded {
			a.log.Infof("Image %v: %vx%v, %v", img.Index, img.Width, img.Height, utils.FormatFileSize(int64(img.Bytes)))
		}
	}
	js, err := json.MarshalIndent(summary, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(js))
	return nil
}

// Run implements the crops command
func (cmd *CropsCmd) Run(a *app) error {
	c, err := a.cropper(cmd.Input)
	if err != nil {
		return err
	}
	outDir := cmd.Output
	if outDir == "" {
		outDir = a.config.Output.OutputDir
	}
	report, err := c.SaveIndividualCrops(a.ctx, outDir, a.config.Cropper.PaddingPercent)
	fmt.Printf("Saved %d/%d crops from %d images to %s\n", report.Succeeded, report.Attempted, report.Images, outDir)
	return err
}

// Run implements the panel command
func (cmd *PanelCmd) Run(a *app) error {
	c, err := a.cropper(cmd.Input)
	if err != nil {
		return err
	}
	report, err := c.CreateVisualization(a.ctx, cmd.Output, a.config.Cropper.PaddingPercent)
	for _, o := range report.Outcomes {
		if o.Path != "" {
			fmt.Printf("Wrote %s (%d crops)\n", o.Path, o.Crops)
		}
	}
	return err
}

// loadConfig reads the config file and applies command line overrides
func loadConfig() (*config.Config, error) {
	cfg := config.Default()
	path := cli.Config
	if path == "" {
		if _, err := os.Stat(config.GetConfigPath()); err == nil {
			path = config.GetConfigPath()
		}
	}
	if path != "" {
		var err error
		if cfg, err = config.LoadFromFile(path); err != nil {
			return nil, err
		}
	}

	if cli.Padding >= 0 {
		cfg.Cropper.PaddingPercent = cli.Padding
	}
	if cli.Concurrency > 0 {
		cfg.Source.Concurrency = cli.Concurrency
	}
	if cli.Format != "" {
		format, err := processing.NormalizeFormat(cli.Format)
		if err != nil {
			return nil, err
		}
		cfg.Output.Format = format
	}
	if cli.Quality > 0 {
		cfg.Output.Quality = cli.Quality
	}
	if cli.GCS {
		cfg.Source.EnableGCS = true
	}
	if cli.Root != "" {
		cfg.Source.FileRoot = cli.Root
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func main() {
	kctx := kong.Parse(&cli,
		kong.Name("annocrop"),
		kong.Description("Crop annotated regions out of inspection images and draw the annotations onto them."),
	)

	logger, err := logs.NewLog()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Close()

	cfg, err := loadConfig()
	if err != nil {
		logger.Criticalf("%v", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	a := &app{ctx: ctx, log: logger, config: cfg}
	err = kctx.Run(a)
	if a.closer != nil {
		a.closer()
	}
	if err != nil {
		logger.Errorf("%v", err)
		os.Exit(1)
	}
}
