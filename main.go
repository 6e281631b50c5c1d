package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"

	"github.com/dselans/pngbop/config"
	"github.com/dselans/pngbop/pipeline"
)

func main() {
	cfg, err := config.NewConfig()
	if err != nil {
		fmt.Println("ERROR: ", err)
		os.Exit(1)
	}

	setupLogging(cfg)

	if !cfg.CLI.Quiet {
		displayConfig(cfg)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	p, err := pipeline.New(ctx, cfg, nil)
	if err != nil {
		logrus.Errorf("unable to create pipeline: %s", err)
		os.Exit(1)
	}

	if err := p.Run(ctx); err != nil {
		logrus.Errorf("error during pipeline run: %s", err)
		os.Exit(1)
	}

	if !cfg.CLI.Quiet {
		displaySummary(p)
	}
}

func setupLogging(cfg *config.Config) {
	logrus.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
		DisableColors: cfg.CLI.DisableColor,
	})

	// Validated by config
	level, _ := logrus.ParseLevel(cfg.TOML.Config.LogLevel)
	logrus.SetLevel(level)

	if cfg.CLI.Debug {
		logrus.Info("debug mode enabled")
		logrus.SetLevel(logrus.DebugLevel)
	}
}

func displayConfig(cfg *config.Config) {
	if cfg == nil {
		return
	}

	logrus.Info("pngbop settings:")
	logrus.Info("  [CLI]")
	logrus.Infof("  version: %s", config.VERSION)
	logrus.Infof("  debug: %v", cfg.CLI.Debug)
	logrus.Infof("  config file: %s", cfg.CLI.ConfigFile)
	logrus.Infof("  report output: %s", cfg.CLI.ReportOutput)
	logrus.Infof("  report interval: %s", cfg.CLI.ReportInterval)
	logrus.Infof("  dry run: %v", cfg.CLI.DryRun)
	logrus.Infof("  disable resume: %v", cfg.CLI.DisableResume)
	logrus.Infof("  disable color: %v", cfg.CLI.DisableColor)
	logrus.Info("")
	logrus.Info("  [CONFIG]")
	logrus.Infof("  config.log_level: %s", cfg.TOML.Config.LogLevel)
	logrus.Infof("  config.num_workers: %d", cfg.TOML.Config.NumWorkers)
	logrus.Infof("  config.num_writers: %d", cfg.TOML.Config.NumWriters)
	logrus.Infof("  config.checkpoint_file: %s", cfg.TOML.Config.CheckpointFile)
	logrus.Infof("  config.checkpoint_interval: %s", cfg.TOML.Config.CheckpointInterval)
	logrus.Infof("  config.disable_checkpointing: %v", cfg.TOML.Config.DisableCheckpointing)
	logrus.Infof("  config.stop_on_error: %v", cfg.TOML.Config.StopOnError)
	logrus.Info("")
	logrus.Info("  [LIMITS]")
	logrus.Infof("  limits.max_width: %d", cfg.TOML.Limits.MaxWidth)
	logrus.Infof("  limits.max_height: %d", cfg.TOML.Limits.MaxHeight)
	logrus.Infof("  limits.max_pixels: %d", cfg.TOML.Limits.MaxPixels)
	logrus.Info("")
	logrus.Info("  [SOURCE]")
	logrus.Infof("  source.file: %s", cfg.TOML.Source.File)
	logrus.Infof("  source.file_type: %s", cfg.TOML.Source.FileType)
	logrus.Infof("  source.base_dir: %s", cfg.TOML.Source.BaseDir)
	logrus.Info("")
	logrus.Info("  [DESTINATION]")
	logrus.Infof("  destination.type: %s", cfg.TOML.Destination.Type)
	logrus.Infof("  destination.dsn: %s", cfg.TOML.Destination.DSN)
	logrus.Infof("  destination.dir: %s", cfg.TOML.Destination.Dir)
	logrus.Infof("  destination.format: %s", cfg.TOML.Destination.Format)
	logrus.Infof("  destination.write_samples: %v", cfg.TOML.Destination.WriteSamples)
	logrus.Infof("  destination.key_prefix: %s", cfg.TOML.Destination.KeyPrefix)
	logrus.Infof("  destination.create_table: %v", cfg.TOML.Destination.CreateTable)
}

func displaySummary(p *pipeline.Pipeline) {
	r := p.Report(true)

	logrus.Info("pngbop summary:")
	logrus.Infof("  run id: %s", r.RunID)
	logrus.Infof("  elapsed: %s", r.Elapsed)
	logrus.Infof("  lines read: %d", r.LinesRead)
	logrus.Infof("  decoded: %d", r.Decoded)
	logrus.Infof("  failed: %d", r.Failed)
	logrus.Infof("  written: %d", r.Written)
	logrus.Infof("  inflated bytes: %d", r.InflatedBytes)
	logrus.Infof("  checkpoint line offset: %d", r.LineOffset)
}
