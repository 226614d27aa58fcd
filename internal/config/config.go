// Package config loads conversion settings from a TOML file and the
// environment.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"

	"github.com/yuanying/epub2pdf/internal/layout"
)

// EnvPrefix marks environment variables that override settings.
const EnvPrefix = "EPUB2PDF_"

// DefaultProducer is written to the Creator and Producer fields.
const DefaultProducer = "epub2pdf"

// Duration is a time.Duration written as "2m" or "1500ms" in TOML.
type Duration time.Duration

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

// MarginsConfig holds page margins in inches.
type MarginsConfig struct {
	Top    float64 `toml:"top"`
	Bottom float64 `toml:"bottom"`
	Left   float64 `toml:"left"`
	Right  float64 `toml:"right"`
}

// PageConfig is the trim size in inches.
type PageConfig struct {
	Width   float64       `toml:"width"`
	Height  float64       `toml:"height"`
	Margins MarginsConfig `toml:"margins"`
}

// RenderConfig controls the headless browser.
type RenderConfig struct {
	Timeout    Duration `toml:"timeout"`
	Settle     Duration `toml:"settle"`
	ChromePath string   `toml:"chrome-path"`
	NoSandbox  bool     `toml:"no-sandbox"`
}

// CoverConfig controls the generated cover page.
type CoverConfig struct {
	Enabled       bool `toml:"enabled"`
	DPI           int  `toml:"dpi"`
	Quality       int  `toml:"quality"`
	SkipCoverPage bool `toml:"skip-cover-page"`
}

// OutputConfig controls the final document.
type OutputConfig struct {
	Producer string `toml:"producer"`
}

// Config is the top-level configuration.
type Config struct {
	Page   PageConfig   `toml:"page"`
	Render RenderConfig `toml:"render"`
	Cover  CoverConfig  `toml:"cover"`
	Output OutputConfig `toml:"output"`
}

// Default returns the settings used when no file is given.
func Default() *Config {
	page := layout.DefaultPage()
	return &Config{
		Page: PageConfig{
			Width:  page.Width,
			Height: page.Height,
			Margins: MarginsConfig{
				Top:    page.Margins.Top,
				Bottom: page.Margins.Bottom,
				Left:   page.Margins.Left,
				Right:  page.Margins.Right,
			},
		},
		Render: RenderConfig{
			Timeout: Duration(2 * time.Minute),
			Settle:  Duration(2 * time.Second),
		},
		Cover: CoverConfig{
			Enabled:       true,
			DPI:           150,
			Quality:       90,
			SkipCoverPage: true,
		},
		Output: OutputConfig{
			Producer: DefaultProducer,
		},
	}
}

// Load reads a TOML file over the defaults. An empty path returns the
// defaults. Environment overrides are applied afterwards.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := toml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}
	if err := cfg.UpdateFromEnv(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFromString parses TOML content over the defaults without looking at
// the environment.
func LoadFromString(content string) (*Config, error) {
	cfg := Default()
	if err := toml.Unmarshal([]byte(content), cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return cfg, nil
}

// PageLayout returns the configured page geometry.
func (c *Config) PageLayout() layout.Page {
	return layout.Page{
		Width:  c.Page.Width,
		Height: c.Page.Height,
		Margins: layout.Margins{
			Top:    c.Page.Margins.Top,
			Bottom: c.Page.Margins.Bottom,
			Left:   c.Page.Margins.Left,
			Right:  c.Page.Margins.Right,
		},
	}
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	if err := c.PageLayout().Validate(); err != nil {
		return fmt.Errorf("page: %w", err)
	}
	if c.Render.Timeout <= 0 {
		return fmt.Errorf("render.timeout must be positive")
	}
	if c.Render.Settle < 0 {
		return fmt.Errorf("render.settle must not be negative")
	}
	if c.Cover.DPI < 36 || c.Cover.DPI > 600 {
		return fmt.Errorf("cover.dpi must be between 36 and 600, got %d", c.Cover.DPI)
	}
	if c.Cover.Quality < 1 || c.Cover.Quality > 100 {
		return fmt.Errorf("cover.quality must be between 1 and 100, got %d", c.Cover.Quality)
	}
	return nil
}

// UpdateFromEnv applies EPUB2PDF_* variables.
// EPUB2PDF_FOO_BAR -> foo-bar
// EPUB2PDF_FOO__BAR -> foo.bar
func (c *Config) UpdateFromEnv() error {
	for _, env := range os.Environ() {
		if !strings.HasPrefix(env, EnvPrefix) {
			continue
		}
		name, value, ok := strings.Cut(env, "=")
		if !ok {
			continue
		}

		key := strings.ToLower(strings.TrimPrefix(name, EnvPrefix))
		key = strings.ReplaceAll(key, "__", ".")
		key = strings.ReplaceAll(key, "_", "-")

		if err := c.Set(key, value); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
	}
	return nil
}

// Set assigns a value by dotted key, e.g. "page.margins.top".
// Unknown keys are ignored.
func (c *Config) Set(key, value string) error {
	switch strings.ToLower(key) {
	case "page.width":
		return setFloat(&c.Page.Width, value)
	case "page.height":
		return setFloat(&c.Page.Height, value)
	case "page.margins.top":
		return setFloat(&c.Page.Margins.Top, value)
	case "page.margins.bottom":
		return setFloat(&c.Page.Margins.Bottom, value)
	case "page.margins.left":
		return setFloat(&c.Page.Margins.Left, value)
	case "page.margins.right":
		return setFloat(&c.Page.Margins.Right, value)
	case "render.timeout":
		return c.Render.Timeout.UnmarshalText([]byte(value))
	case "render.settle":
		return c.Render.Settle.UnmarshalText([]byte(value))
	case "render.chrome-path":
		c.Render.ChromePath = value
	case "render.no-sandbox":
		return setBool(&c.Render.NoSandbox, value)
	case "cover.enabled":
		return setBool(&c.Cover.Enabled, value)
	case "cover.dpi":
		return setInt(&c.Cover.DPI, value)
	case "cover.quality":
		return setInt(&c.Cover.Quality, value)
	case "cover.skip-cover-page":
		return setBool(&c.Cover.SkipCoverPage, value)
	case "output.producer":
		c.Output.Producer = value
	}
	return nil
}

func setFloat(dst *float64, value string) error {
	v, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil {
		return err
	}
	*dst = v
	return nil
}

func setInt(dst *int, value string) error {
	v, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return err
	}
	*dst = v
	return nil
}

func setBool(dst *bool, value string) error {
	v, err := strconv.ParseBool(strings.TrimSpace(value))
	if err != nil {
		return err
	}
	*dst = v
	return nil
}
