package main

import (
	"fmt"
	"image/png"
	"os"

	"github.com/godbus/dbus/v5"
	"github.com/rs/zerolog"

	"wlbar/internal/compositor"
	"wlbar/internal/compositor/headless"
	"wlbar/internal/config"
	"wlbar/internal/modules"
	"wlbar/internal/state"
	"wlbar/internal/tray"
)

const version = "0.1.0"

var (
	flagConfig    string
	flagBackend   string
	flagLogLevel  string
	flagLogFormat string

	flagOut   string
	flagWidth int
)

func openBackend(name string) (compositor.Conn, error) {
	switch name {
	case "headless":
		return headless.New(), nil
	case "wayland", "":
		return nil, fmt.Errorf("backend %q not available in this build", name)
	}
	return nil, fmt.Errorf("unknown backend %q", name)
}

// buildApp wires the full application: runtime, configured modules, and
// the tray directory when a session bus is reachable. The bar comes up
// without the tray rather than failing.
func buildApp(log zerolog.Logger, cfg *config.Config, conn compositor.Conn) (*state.App, error) {
	rt := state.NewRuntime(log)

	var dir *tray.Directory
	if bus, err := dbus.SessionBus(); err != nil {
		log.Warn().Err(err).Msg("session bus unavailable, tray disabled")
	} else {
		dir = tray.New(bus, log)
	}

	if err := registerModules(cfg, rt, dir, log); err != nil {
		return nil, err
	}
	return state.NewApp(state.AppOptions{
		Log:     log,
		Config:  cfg,
		Runtime: rt,
		Conn:    conn,
		Tray:    dir,
	}), nil
}

func registerModules(cfg *config.Config, rt *state.Runtime, dir *tray.Directory, log zerolog.Logger) error {
	for _, m := range cfg.Modules {
		var err error
		switch m.Type {
		case "clock":
			if err = rt.AddVariable(m.Name, modules.NewClock(m.Format)); err == nil {
				err = rt.AddItem(m.Name, modules.NewText("{"+m.Name+"}"))
			}
		case "value":
			if err = rt.AddVariable(m.Name, modules.NewValue(m.Value)); err == nil {
				err = rt.AddItem(m.Name, modules.NewText("{"+m.Name+"}"))
			}
		case "text":
			err = rt.AddItem(m.Name, modules.NewText(m.Format))
		case "spacer":
			width := m.Width
			if width <= 0 {
				width = 8
			}
			err = rt.AddItem(m.Name, modules.NewSpacer(width))
		case "tray":
			if dir == nil {
				log.Warn().Str("module", m.Name).Msg("tray module skipped without session bus")
				continue
			}
			spacing := float64(m.Spacing)
			if spacing <= 0 {
				spacing = 4
			}
			err = rt.AddItem(m.Name, tray.NewModule(dir, spacing))
		default:
			return fmt.Errorf("module %q: unknown type %q", m.Name, m.Type)
		}
		if err != nil {
			return fmt.Errorf("module %q: %w", m.Name, err)
		}
	}
	return nil
}

// writePreview renders one frame of the first configured bar on a
// synthetic output and encodes it as PNG. The tray needs a session bus
// and is left out of previews.
func writePreview(log zerolog.Logger, cfg *config.Config, width int, out string) error {
	conn := headless.New(headless.WithOutput(compositor.Output{
		Name:   "PREVIEW-1",
		Width:  width,
		Height: 720,
		Scale:  1,
	}))
	defer conn.Close()

	rt := state.NewRuntime(log)
	if err := registerModules(cfg, rt, nil, log); err != nil {
		return err
	}
	app := state.NewApp(state.AppOptions{
		Log:     log,
		Config:  cfg,
		Runtime: rt,
		Conn:    conn,
	})
	if err := app.RenderOnce(); err != nil {
		return err
	}

	surfaces := conn.Surfaces()
	if len(surfaces) == 0 {
		return fmt.Errorf("no bar matched the preview output; check the configuration")
	}
	img := surfaces[0].Image()
	if img == nil {
		return fmt.Errorf("no pixels were committed")
	}

	f, err := os.Create(out)
	if err != nil {
		return err
	}
	if err := png.Encode(f, img); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	log.Info().Str("path", out).Int("width", img.Bounds().Dx()).Int("height", img.Bounds().Dy()).Msg("preview written")
	return nil
}
