package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.Equal(t, 5.5, cfg.Page.Width)
	assert.Equal(t, 8.5, cfg.Page.Height)
	assert.Equal(t, 0.75, cfg.Page.Margins.Top)
	assert.Equal(t, 0.65, cfg.Page.Margins.Left)
	assert.Equal(t, Duration(2*time.Minute), cfg.Render.Timeout)
	assert.Equal(t, 150, cfg.Cover.DPI)
	assert.True(t, cfg.Cover.Enabled)
	assert.True(t, cfg.Cover.SkipCoverPage)
	assert.Equal(t, DefaultProducer, cfg.Output.Producer)
	require.NoError(t, cfg.Validate())
}

func TestLoadFromString(t *testing.T) {
	content := `
[page]
width = 6
height = 9

[page.margins]
top = 0.5

[render]
timeout = "45s"
chrome-path = "/usr/bin/chromium"
no-sandbox = true

[cover]
quality = 80
skip-cover-page = false
`

	cfg, err := LoadFromString(content)
	require.NoError(t, err)

	assert.Equal(t, 6.0, cfg.Page.Width)
	assert.Equal(t, 9.0, cfg.Page.Height)
	assert.Equal(t, 0.5, cfg.Page.Margins.Top)
	// untouched keys keep defaults
	assert.Equal(t, 0.75, cfg.Page.Margins.Bottom)
	assert.Equal(t, Duration(45*time.Second), cfg.Render.Timeout)
	assert.Equal(t, Duration(2*time.Second), cfg.Render.Settle)
	assert.Equal(t, "/usr/bin/chromium", cfg.Render.ChromePath)
	assert.True(t, cfg.Render.NoSandbox)
	assert.Equal(t, 80, cfg.Cover.Quality)
	assert.False(t, cfg.Cover.SkipCoverPage)

	page := cfg.PageLayout()
	assert.Equal(t, 6.0, page.Width)
	assert.Equal(t, 0.5, page.Margins.Top)
}

func TestLoadFromStringInvalid(t *testing.T) {
	_, err := LoadFromString("[render]\ntimeout = \"soon\"\n")
	require.Error(t, err)
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "epub2pdf.toml")
	require.NoError(t, os.WriteFile(path, []byte("[output]\nproducer = \"press\"\n"), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "press", cfg.Output.Producer)

	_, err = Load(filepath.Join(t.TempDir(), "missing.toml"))
	require.Error(t, err)
}

func TestLoadEmptyPathReturnsDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default().Page, cfg.Page)
}

func TestUpdateFromEnv(t *testing.T) {
	t.Setenv("EPUB2PDF_PAGE__WIDTH", "6")
	t.Setenv("EPUB2PDF_PAGE__MARGINS__LEFT", "0.4")
	t.Setenv("EPUB2PDF_RENDER__CHROME_PATH", "/opt/chrome")
	t.Setenv("EPUB2PDF_RENDER__TIMEOUT", "30s")
	t.Setenv("EPUB2PDF_COVER__SKIP_COVER_PAGE", "false")

	cfg := Default()
	require.NoError(t, cfg.UpdateFromEnv())

	assert.Equal(t, 6.0, cfg.Page.Width)
	assert.Equal(t, 0.4, cfg.Page.Margins.Left)
	assert.Equal(t, "/opt/chrome", cfg.Render.ChromePath)
	assert.Equal(t, Duration(30*time.Second), cfg.Render.Timeout)
	assert.False(t, cfg.Cover.SkipCoverPage)
}

func TestUpdateFromEnvInvalidValue(t *testing.T) {
	t.Setenv("EPUB2PDF_COVER__DPI", "high")

	err := Default().UpdateFromEnv()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "EPUB2PDF_COVER__DPI")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero width", func(c *Config) { c.Page.Width = 0 }},
		{"margins too large", func(c *Config) { c.Page.Margins.Top = 5; c.Page.Margins.Bottom = 5 }},
		{"dpi too low", func(c *Config) { c.Cover.DPI = 1 }},
		{"no timeout", func(c *Config) { c.Render.Timeout = 0 }},
		{"negative settle", func(c *Config) { c.Render.Settle = Duration(-time.Second) }},
		{"cover dpi", func(c *Config) { c.Cover.DPI = 5000 }},
		{"quality", func(c *Config) { c.Cover.Quality = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestSetUnknownKeyIgnored(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Set("book.title", "x"))
	assert.Equal(t, Default(), cfg)
}
