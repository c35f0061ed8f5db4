// SPDX-License-Identifier: MIT

package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/reelfeed/reelfeed/internal/config"
	"github.com/reelfeed/reelfeed/internal/daemon"
	"github.com/reelfeed/reelfeed/internal/log"
	"github.com/reelfeed/reelfeed/internal/telemetry"
)

var (
	version   = "v0.3.0"
	commit    = "none"
	buildDate = "unknown"
)

func main() {
	showVersion := flag.Bool("version", false, "print version and exit")
	configPath := flag.String("config", "", "path to config file (YAML)")
	flag.Parse()

	if *showVersion {
		fmt.Printf("%s (commit: %s, built: %s)\n", version, commit, buildDate)
		os.Exit(0)
	}

	// Safe logging defaults until the config is loaded.
	log.Configure(log.Config{Level: "info", Service: "reelfeed"})
	logger := log.WithComponent("main")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Config path: explicit flag first, else ${data_dir}/config.yaml when
	// present so a hand-edited config survives restarts without flags.
	effectivePath := strings.TrimSpace(*configPath)
	if effectivePath == "" {
		dataDir := strings.TrimSpace(config.ParseString("REELFEED_DATA_DIR", config.Defaults().DataDir))
		autoPath := filepath.Join(dataDir, "config.yaml")
		if _, err := os.Stat(autoPath); err == nil {
			effectivePath = autoPath
		}
	}

	loader := config.NewLoader(effectivePath)
	cfg, err := loader.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("configuration invalid")
	}
	log.Configure(log.Config{Level: cfg.LogLevel, Service: "reelfeed"})

	tp, err := telemetry.NewProvider(ctx, telemetry.Config{
		Enabled:        cfg.Telemetry.Enabled,
		ServiceName:    "reelfeed",
		ServiceVersion: version,
		ExporterType:   cfg.Telemetry.Protocol,
		Endpoint:       cfg.Telemetry.Endpoint,
		SamplingRate:   cfg.Telemetry.SampleRatio,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("telemetry setup failed")
	}
	defer func() {
		if err := tp.Shutdown(context.Background()); err != nil {
			logger.Warn().Err(err).Msg("telemetry shutdown failed")
		}
	}()

	holder := config.NewHolder(cfg, loader)
	app, err := daemon.NewApp(ctx, holder, version)
	if err != nil {
		logger.Fatal().Err(err).Msg("startup failed")
	}

	logger.Info().
		Str("version", version).
		Str("listen", cfg.Listen).
		Str(log.FieldCollection, cfg.Feed.Collection).
		Msg("starting reelfeed")

	if err := app.Run(ctx); err != nil {
		logger.Fatal().Err(err).Msg("daemon exited with error")
	}
	logger.Info().Msg("shutdown complete")
}
