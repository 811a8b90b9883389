package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"wlbar/internal/config"
	"wlbar/internal/logging"
)

var (
	rootCmd = &cobra.Command{
		Use:   "wlbar",
		Short: "A Wayland status bar with a StatusNotifier tray",
		Long: `
wlbar draws one status strip per configured output: named modules (clock,
text, spacers, the system tray) laid out left to right, repainted only when
something they show actually changed. Tray icons come from StatusNotifier
items on the session bus; hovering one shows its menu.

Flags can also be set through the environment as WLBAR_CONFIG,
WLBAR_LOG_LEVEL, WLBAR_LOG_FORMAT and WLBAR_BACKEND.
`,
		RunE: func(cmd *cobra.Command, args []string) error { return cmd.Usage() },
	}

	runCmd = &cobra.Command{
		Use:   "run",
		Short: "Run the bar against a compositor backend",
		RunE:  runRunCmd,
	}

	previewCmd = &cobra.Command{
		Use:   "preview",
		Short: "Render one frame headlessly and write it as a PNG",
		RunE:  runPreviewCmd,
	}

	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, args []string) {
			cmd.Printf("wlbar %s\n", version)
		},
	}
)

func init() {
	viper.SetEnvPrefix("WLBAR")
	viper.AutomaticEnv()

	rootFlags := rootCmd.PersistentFlags()
	rootFlags.StringVar(&flagConfig, "config", viper.GetString("config"), "path to the configuration file")
	rootFlags.StringVar(&flagLogLevel, "log-level", viper.GetString("log_level"), "log level: trace/debug/info/warn/error")
	rootFlags.StringVar(&flagLogFormat, "log-format", viper.GetString("log_format"), "log format: console or json")

	runFlags := runCmd.PersistentFlags()
	runFlags.StringVar(&flagBackend, "backend", defaultBackend(), "compositor backend: wayland or headless")

	previewFlags := previewCmd.PersistentFlags()
	previewFlags.StringVar(&flagOut, "out", "wlbar.png", "output PNG path")
	previewFlags.IntVar(&flagWidth, "width", 1280, "virtual output width")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(previewCmd)
	rootCmd.AddCommand(versionCmd)
}

func defaultBackend() string {
	if b := viper.GetString("backend"); b != "" {
		return b
	}
	return "wayland"
}

func runRunCmd(cmd *cobra.Command, args []string) error {
	log, err := logging.New(os.Stderr, flagLogLevel, flagLogFormat)
	if err != nil {
		return err
	}
	cfg, err := config.Load(flagConfig)
	if err != nil {
		return err
	}
	conn, err := openBackend(flagBackend)
	if err != nil {
		return err
	}
	defer conn.Close()

	app, err := buildApp(log, cfg, conn)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := app.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func runPreviewCmd(cmd *cobra.Command, args []string) error {
	log, err := logging.New(os.Stderr, flagLogLevel, flagLogFormat)
	if err != nil {
		return err
	}
	cfg, err := config.Load(flagConfig)
	if err != nil {
		return err
	}
	return writePreview(log, cfg, flagWidth, flagOut)
}
