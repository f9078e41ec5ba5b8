package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/oshokin/clip2gif-packager/internal/config"
	"github.com/oshokin/clip2gif-packager/internal/logger"
	"github.com/oshokin/clip2gif-packager/internal/service/pipeline"
	"github.com/oshokin/clip2gif-packager/internal/version"
)

var (
	// configPath to the configuration YAML file.
	configPath string
	// targetOS overrides the configured target operating system.
	targetOS string
	// targetArch pins the CPU architecture of the produced package.
	targetArch string
	// download enables remote acquisition of missing helper binaries.
	download bool
	// outputDir overrides where the final artifact is written.
	outputDir string
	// logLevel adjusts logging verbosity.
	logLevel string

	// rootCmd represents the base command running the full packaging pipeline.
	rootCmd = &cobra.Command{
		Use:   "clip2gif-packager",
		Short: "Package the Clip2Gif application for macOS or Windows",
		Long: `Runs the full packaging pipeline: resolves the target platform, gathers the
ffmpeg and ffprobe helper binaries through pre-staged, system and remote
sources, runs the build step (under Rosetta 2 when cross-building for x86_64
on Apple Silicon), assembles the application bundle and produces the final
distributable (a .dmg on macOS, a directory on Windows).

Missing optional pieces are reported as warnings; the run only fails when a
mandatory step cannot complete.`,
		Args: cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			// Setup graceful shutdown handling.
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
			defer stop()

			options, err := loadOptions()
			if err != nil {
				return err
			}

			_, err = pipeline.New().Run(ctx, options)

			return err
		},
	}
)

// Execute runs the clip2gif-packager CLI and exits with non-zero status on error.
func Execute() {
	version.AttachCobraVersionCommand(rootCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// loadOptions applies the log level, loads the configuration and layers the
// command-line overrides on top of it.
func loadOptions() (*pipeline.Options, error) {
	if logLevel != "" {
		level, ok := logger.ParseLogLevel(logLevel)
		if !ok {
			return nil, fmt.Errorf("unknown log level %q", logLevel)
		}

		logger.SetLevel(level)
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	if targetOS != "" {
		cfg.TargetOS = targetOS
	}

	if targetArch != "" {
		cfg.TargetArch = targetArch
	}

	if outputDir != "" {
		cfg.OutputDir = outputDir
	}

	if download {
		cfg.Binaries.Download.Enabled = true
	}

	if err = config.Validate(cfg); err != nil {
		return nil, err
	}

	return &pipeline.Options{Config: cfg}, nil
}

//nolint:gochecknoinits // Required by Cobra CLI framework architecture.
func init() {
	// Setup command flags with consistent naming and descriptions.
	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&configPath, "config", "c", config.DefaultConfigFilename, "path to configuration file")
	flags.StringVar(&targetOS, "target-os", "", "target operating system (macos or windows)")
	flags.StringVarP(&targetArch, "target-arch", "a", "", "target CPU architecture (x86_64 or arm64)")
	flags.BoolVarP(&download, "download", "d", false, "download missing helper binaries from remote sources")
	flags.StringVarP(&outputDir, "output-dir", "o", "", "directory for produced artifacts")
	flags.StringVar(&logLevel, "log-level", "", "logging level (debug, info, warn, error)")
}
