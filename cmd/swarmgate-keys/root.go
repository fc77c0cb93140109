package main

import (
	"context"
	"fmt"
	"log/slog"

	"swarmgate/internal/blob"
	"swarmgate/internal/config"
	"swarmgate/internal/keymanager"
	"swarmgate/internal/logger"
	"swarmgate/internal/notify"
	"swarmgate/internal/registry"
	"swarmgate/internal/scheduler"
	"swarmgate/internal/server"

	"github.com/spf13/cobra"
)

// env is what the commands operate on.
type env struct {
	keys      *keymanager.Manager
	scheduler *scheduler.Scheduler
	close     func()
}

type opener func(ctx context.Context, configPath string, debug bool) (*env, error)

type nopNotifier struct{}

func (nopNotifier) Dispatch(notify.Message) {}

// openFromConfig opens the registry and ops store named by the config file.
// Notifications are not sent from the CLI.
func openFromConfig(ctx context.Context, configPath string, debug bool) (*env, error) {
	cfg, _, err := config.LoadConfig(configPath)
	if err != nil {
		return nil, err
	}
	log := logger.New(debug)

	stores, err := server.OpenStores(ctx, cfg.Storage)
	if err != nil {
		return nil, err
	}
	store, closeStore, err := server.OpenRegistry(cfg, stores["ops"], log)
	if err != nil {
		return nil, err
	}
	return newEnv(store, stores["ops"], cfg, log, func() { _ = closeStore() }), nil
}

func newEnv(store registry.Store, ops blob.Store, cfg *config.Config, log *slog.Logger, closeFn func()) *env {
	return &env{
		keys:      keymanager.NewManager(store, cfg.Tiers, nopNotifier{}, log),
		scheduler: scheduler.NewScheduler(store, ops, nopNotifier{}, cfg.Scheduler, log),
		close:     closeFn,
	}
}

// NewRootCmd creates the root command with persistent flags and subcommands.
func NewRootCmd(open opener) *cobra.Command {
	var (
		configPath string
		debug      bool
	)
	rootCmd := &cobra.Command{
		Use:           "swarmgate-keys",
		Short:         "Inspect and manage issued data API keys",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "config.yaml", "Path to gateway config YAML")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logs")

	withEnv := func(run func(cmd *cobra.Command, e *env, args []string) error) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, args []string) error {
			e, err := open(cmd.Context(), configPath, debug)
			if err != nil {
				return fmt.Errorf("failed to open registry: %w", err)
			}
			defer e.close()
			return run(cmd, e, args)
		}
	}

	rootCmd.AddCommand(
		newListCmd(withEnv),
		newShowCmd(withEnv),
		newIssueCmd(withEnv),
		newRevokeCmd(withEnv),
		newResetCmd(withEnv),
		newSnapshotCmd(withEnv),
	)
	return rootCmd
}
