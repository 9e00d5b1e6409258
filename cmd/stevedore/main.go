package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/newshub/stevedore/pkg/config"
	"github.com/newshub/stevedore/pkg/log"
	"github.com/newshub/stevedore/pkg/pipeline"
	"github.com/newshub/stevedore/pkg/runtime"
	"github.com/newshub/stevedore/pkg/storage"
	"github.com/newshub/stevedore/pkg/types"
)

var (
	// Version information (set via ldflags during build)
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

// Exit codes by failure class, stable for CI gating
const (
	exitConfiguration = 2
	exitFetch         = 3
	exitTimeout       = 4
	exitHealthCheck   = 5
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(exitCode(err))
	}
}

// exitCode maps the typed deployment errors onto the documented codes.
// Anything untyped is a generic failure.
func exitCode(err error) int {
	var (
		cfgErr     *types.ConfigurationError
		fetchErr   *types.FetchError
		timeoutErr *types.OrchestrationTimeout
		healthErr  *types.HealthCheckError
	)
	switch {
	case errors.As(err, &cfgErr):
		return exitConfiguration
	case errors.As(err, &fetchErr):
		return exitFetch
	case errors.As(err, &timeoutErr):
		return exitTimeout
	case errors.As(err, &healthErr):
		return exitHealthCheck
	}
	return 1
}

var rootCmd = &cobra.Command{
	Use:   "stevedore",
	Short: "Stevedore - Health-gated deployments for a single Docker host",
	Long: `Stevedore deploys a versioned set of containers onto one Docker host,
gating promotion on container health and external probes. A failed
release is rolled back and the database is snapshotted before every
redeploy.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

var (
	flagManifest  string
	flagDataDir   string
	flagBackupDir string
	flagTag       string
	flagJSON      bool
	flagVerbose   bool
)

func init() {
	// Set version template
	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"Stevedore version %s\nCommit: %s\nBuilt: %s\n",
		Version, Commit, BuildTime,
	))

	rootCmd.PersistentFlags().StringVar(&flagManifest, "manifest", config.DefaultManifest, "service manifest path")
	rootCmd.PersistentFlags().StringVar(&flagDataDir, "data-dir", config.DefaultDataDir, "attempt store, audit log, and metrics directory")
	rootCmd.PersistentFlags().StringVar(&flagBackupDir, "backup-dir", config.DefaultBackupDir, "database backup directory")
	rootCmd.PersistentFlags().BoolVar(&flagJSON, "json", false, "structured JSON logs for CI pipelines")
	rootCmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "debug logging")

	// Add subcommands
	rootCmd.AddCommand(deployCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(backupsCmd)
}

func initLogging() {
	level := log.InfoLevel
	if flagVerbose {
		level = log.DebugLevel
	}
	log.Init(log.Config{Level: level, JSONOutput: flagJSON})
}

var deployCmd = &cobra.Command{
	Use:   "deploy",
	Short: "Deploy the manifest's services at the configured tag",
	Long: `Deploy validates the environment, snapshots the database, pulls the
release's images, replaces the running containers, and polls health
until every service is up. An external probe pass gates final success;
any health failure rolls the release back.

The release tag comes from --tag, then IMAGE_TAG, then "latest".`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		initLogging()

		cfg, err := config.Load(flagManifest, flagDataDir, flagBackupDir, flagTag)
		if err != nil {
			return err
		}
		if err := cfg.EnsureDirs(); err != nil {
			return err
		}

		services, err := config.LoadManifest(cfg.ManifestPath, cfg.Env)
		if err != nil {
			return err
		}
		rel, err := types.NewRelease(cfg.Tag, services)
		if err != nil {
			return err
		}

		rt, err := runtime.NewDockerRuntime()
		if err != nil {
			return err
		}
		defer rt.Close()

		store, err := storage.NewBoltStore(cfg.StorePath())
		if err != nil {
			return err
		}
		defer store.Close()

		// Ctrl+C aborts at the next safe point and leaves the host
		// for the operator to inspect
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		fmt.Printf("Deploying release %s (%d services)...\n", rel.Tag, len(rel.Services))
		attempt, err := pipeline.New(cfg, rt, store).Deploy(ctx, rel)
		if err != nil {
			fmt.Fprintf(os.Stderr, "✗ Deployment %s: %s\n", attempt.Outcome, attempt.FailureStage)
			if attempt.LogExcerpt != "" {
				fmt.Fprintln(os.Stderr, attempt.LogExcerpt)
			}
			return err
		}

		fmt.Printf("✓ Release %s deployed in %s\n", rel.Tag,
			attempt.FinishedAt.Sub(attempt.StartedAt).Round(time.Second))
		return nil
	},
}

func init() {
	deployCmd.Flags().StringVar(&flagTag, "tag", "", "release tag override (default: IMAGE_TAG or latest)")
}
