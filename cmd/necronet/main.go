package main

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"sync"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/tendant/necronet/pkg/necronet/client"
	"github.com/tendant/necronet/pkg/necronet/config"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	if err := NewRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// app is shared by all subcommands once the root command has run.
type app struct {
	cfg    *config.ClientConfig
	client *client.Client
	logger *slog.Logger
	json   bool
	outMu  sync.Mutex
}

func NewRootCommand() *cobra.Command {
	var (
		apiURL  string
		envFile string
		verbose bool
	)
	a := &app{}

	rootCmd := &cobra.Command{
		Use:   "necronet",
		Short: "NecroNet CLI - resurrect legacy artifacts",
		Long: `NecroNet Command Line Interface

Upload legacy files (Flash, HTML, images, archives) to the NecroNet museum,
follow their migration and fetch the results.

Settings come from NECRONET_* and AWS_S3_* environment variables, optionally
loaded from a .env file.`,
		Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
				return fmt.Errorf("load %s: %w", envFile, err)
			}

			level := slog.LevelInfo
			if verbose {
				level = slog.LevelDebug
			}
			a.logger = slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))

			opts := []config.Option{config.WithEnv()}
			if apiURL != "" {
				opts = append(opts, config.WithBaseURL(apiURL))
			}
			cfg, err := config.Load(opts...)
			if err != nil {
				return err
			}
			a.cfg = cfg
			a.client = client.New(append(cfg.ClientOptions(), client.WithLogger(a.logger))...)
			a.logger.Debug("configuration loaded", "api_url", cfg.APIURL, "bucket", cfg.S3.Bucket)
			return nil
		},
	}

	rootCmd.PersistentFlags().StringVar(&apiURL, "api-url", "", "service address (overrides NECRONET_API_URL)")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file to load if present")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().BoolVar(&a.json, "json", false, "print results as JSON")

	rootCmd.AddCommand(
		NewUploadCommand(a),
		NewGetCommand(a),
		NewWatchCommand(a),
		NewListCommand(a),
		NewPlanCommand(a),
		NewValidateCommand(a),
		NewURLCommand(a),
		NewFetchCommand(a),
		NewHealthCommand(a),
	)
	return rootCmd
}
