// Package config holds the on-disk configuration: which bars to show on
// which outputs, and the named modules the bars are assembled from. The
// core consumes these structs and never reads files itself.
package config

import (
	"errors"
	"fmt"
	"image/color"
	"os"
	"path/filepath"
	"strings"

	yaml "gopkg.in/yaml.v3"
)

const (
	DefaultSide        = "top"
	DefaultHeight      = 24
	DefaultBackground  = "#101010d0"
	DefaultClockFormat = "15:04"
)

// Bar places one strip on an edge of an output.
type Bar struct {
	// Output selects a display by name; empty matches every output.
	Output     string   `yaml:"output,omitempty"`
	Side       string   `yaml:"side"`
	Height     int      `yaml:"height"`
	Background string   `yaml:"background,omitempty"`
	Modules    []string `yaml:"modules"`
}

// Matches reports whether the bar should appear on the named output.
func (b Bar) Matches(output string) bool {
	return b.Output == "" || b.Output == output
}

// Module defines one named module. Type selects the implementation; the
// remaining fields apply per type: Format is the clock layout or the text
// template, Value the static value, Width the spacer width, Spacing the
// tray icon gap.
type Module struct {
	Name    string `yaml:"name"`
	Type    string `yaml:"type"`
	Format  string `yaml:"format,omitempty"`
	Value   string `yaml:"value,omitempty"`
	Width   int    `yaml:"width,omitempty"`
	Spacing int    `yaml:"spacing,omitempty"`
}

type Config struct {
	Bars    []Bar    `yaml:"bars"`
	Modules []Module `yaml:"modules"`
}

// Default returns the built-in configuration: a top bar on every output
// with a clock and the tray.
func Default() *Config {
	return &Config{
		Bars: []Bar{{
			Side:       DefaultSide,
			Height:     DefaultHeight,
			Background: DefaultBackground,
			Modules:    []string{"clock", "gap", "tray"},
		}},
		Modules: []Module{
			{Name: "clock", Type: "clock", Format: DefaultClockFormat},
			{Name: "gap", Type: "spacer", Width: 12},
			{Name: "tray", Type: "tray", Spacing: 4},
		},
	}
}

// DefaultPath returns the per-user config location.
func DefaultPath() string {
	base, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(base, "wlbar", "wlbar.yaml")
}

// Load reads the configuration at path, falling back to DefaultPath when
// path is empty and to Default() when no file exists there.
func Load(path string) (*Config, error) {
	if path == "" {
		path = DefaultPath()
	}
	if path == "" {
		return Default(), nil
	}
	b, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return Default(), nil
	}
	if err != nil {
		return nil, err
	}
	cfg := &Config{}
	if err := yaml.Unmarshal(b, cfg); err != nil {
		return nil, fmt.Errorf("config parse: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	for i := range c.Bars {
		b := &c.Bars[i]
		if b.Side == "" {
			b.Side = DefaultSide
		}
		if b.Side != "top" && b.Side != "bottom" {
			return fmt.Errorf("config: bar %d: side %q (want top or bottom)", i, b.Side)
		}
		if b.Height <= 0 {
			b.Height = DefaultHeight
		}
		if b.Background == "" {
			b.Background = DefaultBackground
		}
		if _, err := ParseColor(b.Background); err != nil {
			return fmt.Errorf("config: bar %d: %w", i, err)
		}
	}
	seen := map[string]bool{}
	for i, m := range c.Modules {
		if m.Name == "" {
			return fmt.Errorf("config: module %d: missing name", i)
		}
		if m.Type == "" {
			return fmt.Errorf("config: module %q: missing type", m.Name)
		}
		if seen[m.Name] {
			return fmt.Errorf("config: module %q defined twice", m.Name)
		}
		seen[m.Name] = true
	}
	return nil
}

// ParseColor parses #rgb, #rrggbb, or #rrggbbaa (the # is optional) into a
// premultiplied color, which is what the pixel buffers store.
func ParseColor(s string) (color.RGBA, error) {
	hex := strings.TrimPrefix(s, "#")
	var r, g, b, a uint32
	a = 0xff
	switch len(hex) {
	case 3:
		if _, err := fmt.Sscanf(hex, "%1x%1x%1x", &r, &g, &b); err != nil {
			return color.RGBA{}, fmt.Errorf("color %q: %w", s, err)
		}
		r, g, b = r*0x11, g*0x11, b*0x11
	case 6:
		if _, err := fmt.Sscanf(hex, "%2x%2x%2x", &r, &g, &b); err != nil {
			return color.RGBA{}, fmt.Errorf("color %q: %w", s, err)
		}
	case 8:
		if _, err := fmt.Sscanf(hex, "%2x%2x%2x%2x", &r, &g, &b, &a); err != nil {
			return color.RGBA{}, fmt.Errorf("color %q: %w", s, err)
		}
	default:
		return color.RGBA{}, fmt.Errorf("color %q: want #rgb, #rrggbb or #rrggbbaa", s)
	}
	return color.RGBA{
		R: uint8(r * a / 0xff),
		G: uint8(g * a / 0xff),
		B: uint8(b * a / 0xff),
		A: uint8(a),
	}, nil
}
