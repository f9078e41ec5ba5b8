package cmd

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/oshokin/clip2gif-packager/internal/service/pipeline"
)

// fetchCmd pre-stages the helper binaries without packaging anything,
// typically with --download on a machine that has network access.
var fetchCmd = &cobra.Command{
	Use:   "fetch",
	Short: "Acquire ffmpeg helper binaries into the pre-staged directory",
	Args:  cobra.NoArgs,
	RunE: func(_ *cobra.Command, _ []string) error {
		// Setup graceful shutdown handling.
		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
		defer stop()

		options, err := loadOptions()
		if err != nil {
			return err
		}

		_, err = pipeline.New().Fetch(ctx, options)

		return err
	},
}

//nolint:gochecknoinits // Required by Cobra CLI framework architecture.
func init() {
	rootCmd.AddCommand(fetchCmd)
}
