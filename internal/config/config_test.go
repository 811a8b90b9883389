package config

import (
	"image/color"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultValidates(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.validate())
	require.Len(t, cfg.Bars, 1)
	assert.True(t, cfg.Bars[0].Matches("DP-1"))
	assert.Equal(t, DefaultHeight, cfg.Bars[0].Height)
}

func TestLoadMissingFileReturnsDefault(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoadParsesAndBackfills(t *testing.T) {
	path := filepath.Join(t.TempDir(), "wlbar.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
bars:
  - output: DP-1
    height: 30
    modules: [clock]
  - side: bottom
    modules: [tray]
modules:
  - name: clock
    type: clock
    format: "15:04:05"
  - name: tray
    type: tray
    spacing: 6
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Len(t, cfg.Bars, 2)

	assert.Equal(t, "top", cfg.Bars[0].Side)
	assert.Equal(t, 30, cfg.Bars[0].Height)
	assert.Equal(t, DefaultBackground, cfg.Bars[0].Background)
	assert.True(t, cfg.Bars[0].Matches("DP-1"))
	assert.False(t, cfg.Bars[0].Matches("DP-2"))

	assert.Equal(t, "bottom", cfg.Bars[1].Side)
	assert.Equal(t, DefaultHeight, cfg.Bars[1].Height)

	require.Len(t, cfg.Modules, 2)
	assert.Equal(t, "15:04:05", cfg.Modules[0].Format)
	assert.Equal(t, 6, cfg.Modules[1].Spacing)
}

func TestLoadRejectsBadSide(t *testing.T) {
	path := filepath.Join(t.TempDir(), "wlbar.yaml")
	require.NoError(t, os.WriteFile(path, []byte("bars:\n  - side: left\n"), 0o644))

	_, err := Load(path)
	assert.ErrorContains(t, err, "side")
}

func TestLoadRejectsDuplicateModule(t *testing.T) {
	path := filepath.Join(t.TempDir(), "wlbar.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
modules:
  - name: clock
    type: clock
  - name: clock
    type: text
`), 0o644))

	_, err := Load(path)
	assert.ErrorContains(t, err, "defined twice")
}

func TestLoadRejectsMalformedYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "wlbar.yaml")
	require.NoError(t, os.WriteFile(path, []byte("bars: ["), 0o644))

	_, err := Load(path)
	assert.ErrorContains(t, err, "config parse")
}

func TestParseColor(t *testing.T) {
	c, err := ParseColor("#fff")
	require.NoError(t, err)
	assert.Equal(t, color.RGBA{R: 0xff, G: 0xff, B: 0xff, A: 0xff}, c)

	c, err = ParseColor("102030")
	require.NoError(t, err)
	assert.Equal(t, color.RGBA{R: 0x10, G: 0x20, B: 0x30, A: 0xff}, c)

	// Premultiplied: half-alpha white stores half-intensity channels.
	c, err = ParseColor("#ffffff80")
	require.NoError(t, err)
	assert.Equal(t, color.RGBA{R: 0x80, G: 0x80, B: 0x80, A: 0x80}, c)

	_, err = ParseColor("#12345")
	assert.Error(t, err)
	_, err = ParseColor("#gghhii")
	assert.Error(t, err)
}
