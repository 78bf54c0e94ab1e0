package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"

	"s3-storage/internal/config"
	"s3-storage/internal/logging"

	_ "github.com/rclone/rclone/backend/all" // import all backends
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	version   = "dev"
	gitCommit = "none"
	buildTime = "unknown"
)

func newRootCmd() *cobra.Command {
	var (
		cfgFile string
		opts    config.Options
	)
	v := viper.New()

	rootCmd := &cobra.Command{
		Use:   "s3-storage [source]",
		Short: "Upload files matching a wildcard expression to object storage",
		Long: `Upload the files selected by a wildcard expression to an S3 bucket,
an rclone remote or an SSH host.

The expression supports '*' (any run of characters except separators), '**'
(any run of characters), '?' (exactly one character) and ';' between
alternatives. '/' and '\' are interchangeable separators.

Examples:
  s3-storage --enable --bucket artifacts -d releases/1.0 'target/*.jar;target/*.pom'
  s3-storage --enable -b rclone --remote gdrive:site -d docs --relative-to build 'build/**.html'
  s3-storage --enable --archive site.tar.gz --bucket artifacts -d site 'public/**'`,
		Version:      fmt.Sprintf("%s (commit: %s, built at: %s)", version, gitCommit, buildTime),
		Args:         cobra.MaximumNArgs(1),
		SilenceUsage: true,
		PreRunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				v.Set("source", args[0])
			}

			var err error
			opts, err = config.Load(v, cfgFile)
			if err != nil {
				return err
			}

			// Update logger with verbose flag
			if err := logging.InitLogger(opts.Verbose); err != nil {
				return fmt.Errorf("failed to reinitialize logger: %w", err)
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), opts, cmd.OutOrStdout(), logging.GetSugar())
		},
	}

	rootCmd.Flags().StringVar(&cfgFile, "config", "", "config file (default is ./.s3-storage.yaml or $HOME/.s3-storage.yaml)")
	config.RegisterFlags(rootCmd.Flags())
	if err := config.Bind(v, rootCmd.Flags()); err != nil {
		log.Fatalf("failed to bind flags: %v", err)
	}
	return rootCmd
}

func main() {
	// Defaults until the verbose flag has been parsed
	if err := logging.InitLogger(false); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	err := newRootCmd().ExecuteContext(ctx)
	stop()
	logging.SyncLogger()

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
