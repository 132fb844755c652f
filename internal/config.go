package internal

import (
	"fmt"
	"log/slog"
	"regexp"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/layerexport/internal/layers"
	"github.com/starford/layerexport/internal/pipeline"
	"github.com/starford/layerexport/internal/plan"
	"github.com/starford/layerexport/internal/renderer"
)

var areaSizePattern = regexp.MustCompile(`^-?[0-9.]+:-?[0-9.]+:-?[0-9.]+:-?[0-9.]+$`)

// Config represents the application configuration.
type Config struct {
	Export     ExportConfig     `yaml:"export"`
	Controls   ControlsConfig   `yaml:"controls"`
	Area       AreaConfig       `yaml:"area"`
	Resolution ResolutionConfig `yaml:"resolution"`
	Naming     NamingConfig     `yaml:"naming"`
	Workers    WorkersConfig    `yaml:"workers"`
	Renderer   RendererConfig   `yaml:"renderer"`
	Log        LogConfig        `yaml:"log"`
	Ledger     LedgerConfig     `yaml:"ledger"`
	Publish    PublishConfig    `yaml:"publish"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	for _, v := range []validation.Validatable{
		&c.Export, &c.Controls, &c.Area, &c.Resolution, &c.Naming,
		&c.Workers, &c.Renderer, &c.Log, &c.Publish,
	} {
		if err := v.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// ExportConfig holds the output format and destination.
type ExportConfig struct {
	Type       string `yaml:"type"`
	PlainSVG   bool   `yaml:"plain_svg"`
	PDFVersion string `yaml:"pdf_version"`
	Path       string `yaml:"path"`
	Overwrite  bool   `yaml:"overwrite"`
	Manifest   bool   `yaml:"manifest"`
}

// Validate validates the export configuration.
func (c *ExportConfig) Validate() error {
	if err := validation.ValidateStruct(c,
		validation.Field(&c.Type, validation.Required, validation.In("svg", "png", "ps", "eps", "pdf", "emf", "wmf", "xaml")),
		validation.Field(&c.PDFVersion, validation.In("1.4", "1.5")),
		validation.Field(&c.Path, validation.Required),
	); err != nil {
		return fmt.Errorf("export: %w", err)
	}
	return nil
}

// ControlsConfig holds the layer selection switches.
type ControlsConfig struct {
	PreserveClones    bool   `yaml:"preserve_clones"`
	SkipHidden        bool   `yaml:"skip_hidden"`
	SkipPrefix        string `yaml:"skip_prefix"`
	Selection         string `yaml:"selection"`
	IgnorePrefix      string `yaml:"ignore_prefix"`
	UseIgnoredName    bool   `yaml:"use_ignored_name"`
	ForceChildVisible bool   `yaml:"force_child_visible"`
}

// Validate validates the controls configuration.
func (c *ControlsConfig) Validate() error {
	if err := validation.ValidateStruct(c,
		validation.Field(&c.Selection, validation.Required, validation.In(string(layers.OnlyLeaf), string(layers.All))),
	); err != nil {
		return fmt.Errorf("controls: %w", err)
	}
	return nil
}

// AreaConfig selects the exported area.
type AreaConfig struct {
	Type string `yaml:"type"`
	// Size is x0:y0:x1:y1, used when Type is custom.
	Size string `yaml:"size"`
}

// Validate validates the area configuration.
func (c *AreaConfig) Validate() error {
	if err := validation.ValidateStruct(c,
		validation.Field(&c.Type, validation.Required, validation.In(renderer.AreaPage, renderer.AreaDrawing, renderer.AreaCustom)),
		validation.Field(&c.Size, validation.When(c.Type == renderer.AreaCustom, validation.Required, validation.Match(areaSizePattern))),
	); err != nil {
		return fmt.Errorf("area: %w", err)
	}
	return nil
}

// ResolutionConfig selects the raster resolution.
type ResolutionConfig struct {
	Type   string `yaml:"type"`
	DPI    int    `yaml:"dpi"`
	Width  int    `yaml:"width"`
	Height int    `yaml:"height"`
}

// Validate validates the resolution configuration.
func (c *ResolutionConfig) Validate() error {
	isSize := c.Type == renderer.ResolutionSize
	if err := validation.ValidateStruct(c,
		validation.Field(&c.Type, validation.Required, validation.In(renderer.ResolutionDefault, renderer.ResolutionDPI, renderer.ResolutionSize)),
		validation.Field(&c.DPI, validation.When(c.Type == renderer.ResolutionDPI, validation.Required, validation.Min(1))),
		validation.Field(&c.Width, validation.When(isSize, validation.Required, validation.Min(1))),
		validation.Field(&c.Height, validation.When(isSize, validation.Required, validation.Min(1))),
	); err != nil {
		return fmt.Errorf("resolution: %w", err)
	}
	return nil
}

// NamingConfig holds the output file naming template and hierarchy options.
type NamingConfig struct {
	Template            string `yaml:"template"`
	CounterStart        int    `yaml:"counter_start"`
	Separator           string `yaml:"separator"`
	Strategy            string `yaml:"strategy"`
	EmptyExtraSeparator bool   `yaml:"empty_extra_separator"`
	TopFirst            bool   `yaml:"top_first"`
}

// Validate validates the naming configuration.
func (c *NamingConfig) Validate() error {
	if err := validation.ValidateStruct(c,
		validation.Field(&c.Template, validation.Required),
		validation.Field(&c.Strategy, validation.Required, validation.In(
			string(plan.StrategyNone), string(plan.StrategyLeft), string(plan.StrategyRight), string(plan.StrategyBoth))),
	); err != nil {
		return fmt.Errorf("naming: %w", err)
	}
	return nil
}

// WorkersConfig bounds export concurrency.
type WorkersConfig struct {
	Count     int `yaml:"count"`
	ChunkSize int `yaml:"chunk_size"`
}

// Validate validates the workers configuration.
func (c *WorkersConfig) Validate() error {
	if err := validation.ValidateStruct(c,
		validation.Field(&c.Count, validation.Required, validation.Min(1), validation.Max(256)),
		validation.Field(&c.ChunkSize, validation.Required, validation.Min(1)),
	); err != nil {
		return fmt.Errorf("workers: %w", err)
	}
	return nil
}

// RendererConfig locates the external renderer.
type RendererConfig struct {
	Binary  string        `yaml:"binary"`
	Timeout time.Duration `yaml:"timeout"`
}

// Validate validates the renderer configuration.
func (c *RendererConfig) Validate() error {
	if err := validation.ValidateStruct(c,
		validation.Field(&c.Binary, validation.Required),
		validation.Field(&c.Timeout, validation.Required, validation.Min(time.Second)),
	); err != nil {
		return fmt.Errorf("renderer: %w", err)
	}
	return nil
}

// LogConfig configures diagnostics.
//
// Enabled turns on diagnostics mode: debug level and renderer output passed
// through. Path, when set, is a directory that receives layerexport.log.
type LogConfig struct {
	Enabled   bool       `yaml:"enabled"`
	Level     slog.Level `yaml:"level"`
	Path      string     `yaml:"path"`
	Overwrite bool       `yaml:"overwrite"`
}

// Validate validates the log configuration.
func (c *LogConfig) Validate() error {
	return nil
}

// EffectiveLevel returns the level to log at.
func (c *LogConfig) EffectiveLevel() slog.Level {
	if c.Enabled {
		return slog.LevelDebug
	}
	return c.Level
}

// LedgerConfig points to the optional export history database.
type LedgerConfig struct {
	Path string `yaml:"path"`
}

// PublishConfig holds the optional upload targets.
type PublishConfig struct {
	S3 S3Config `yaml:"s3"`
}

// Validate validates the publish configuration.
func (c *PublishConfig) Validate() error {
	return c.S3.Validate()
}

// S3Config configures upload of finished batches to an S3-compatible store.
// Publishing is disabled while Bucket is empty.
type S3Config struct {
	Endpoint  string `yaml:"endpoint"`
	Region    string `yaml:"region"`
	Bucket    string `yaml:"bucket"`
	Prefix    string `yaml:"prefix"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	UseSSL    bool   `yaml:"use_ssl"`
}

// Enabled reports whether publishing is configured.
func (c *S3Config) Enabled() bool {
	return c.Bucket != ""
}

// Validate validates the S3 configuration.
func (c *S3Config) Validate() error {
	if !c.Enabled() {
		return nil
	}
	if err := validation.ValidateStruct(c,
		validation.Field(&c.Endpoint, validation.Required),
		validation.Field(&c.AccessKey, validation.Required),
		validation.Field(&c.SecretKey, validation.Required),
	); err != nil {
		return fmt.Errorf("publish.s3: %w", err)
	}
	return nil
}

// PipelineOptions converts the configuration into the pipeline's record.
func (c *Config) PipelineOptions() pipeline.Options {
	return pipeline.Options{
		Renderer: renderer.Options{
			Binary:         c.Renderer.Binary,
			ExportType:     c.Export.Type,
			PlainSVG:       c.Export.PlainSVG,
			PDFVersion:     c.Export.PDFVersion,
			AreaType:       c.Area.Type,
			AreaSize:       c.Area.Size,
			ResolutionType: c.Resolution.Type,
			DPI:            c.Resolution.DPI,
			Width:          c.Resolution.Width,
			Height:         c.Resolution.Height,
		},
		Plan: plan.Options{
			Naming: plan.Naming{
				Separator:           c.Naming.Separator,
				Strategy:            plan.Strategy(c.Naming.Strategy),
				EmptyExtraSeparator: c.Naming.EmptyExtraSeparator,
				TopHierarchyFirst:   c.Naming.TopFirst,
				IgnorePrefix:        c.Controls.IgnorePrefix,
				UseIgnoredName:      c.Controls.UseIgnoredName,
			},
			OutputRoot:   c.Export.Path,
			Extension:    c.Export.Type,
			Template:     c.Naming.Template,
			CounterStart: c.Naming.CounterStart,
			Overwrite:    c.Export.Overwrite,
		},
		PreserveClones:    c.Controls.PreserveClones,
		SkipHidden:        c.Controls.SkipHidden,
		SkipPrefix:        c.Controls.SkipPrefix,
		Mode:              layers.Mode(c.Controls.Selection),
		IgnorePrefix:      c.Controls.IgnorePrefix,
		ForceChildVisible: c.Controls.ForceChildVisible,
		Manifest:          c.Export.Manifest,
		Workers:           c.Workers.Count,
		ChunkSize:         c.Workers.ChunkSize,
	}
}

// NewDefaultConfig returns a new Config with sensible default values.
func NewDefaultConfig() *Config {
	return &Config{
		Export: ExportConfig{
			Type:       "svg",
			PDFVersion: "1.5",
			Path:       "./export",
			Manifest:   true,
		},
		Controls: ControlsConfig{
			PreserveClones: true,
			SkipPrefix:     "_",
			Selection:      string(layers.OnlyLeaf),
		},
		Area: AreaConfig{
			Type: renderer.AreaPage,
			Size: "0:0:100:100",
		},
		Resolution: ResolutionConfig{
			Type:   renderer.ResolutionDefault,
			DPI:    96,
			Width:  100,
			Height: 100,
		},
		Naming: NamingConfig{
			Template:     "[LAYER_NAME]",
			CounterStart: 1,
			Separator:    "_",
			Strategy:     string(plan.StrategyRight),
			TopFirst:     true,
		},
		Workers: WorkersConfig{
			Count:     4,
			ChunkSize: 1,
		},
		Renderer: RendererConfig{
			Binary:  renderer.DefaultBinary,
			Timeout: renderer.DefaultTimeout,
		},
		Log: LogConfig{
			Level: slog.LevelInfo,
		},
	}
}
