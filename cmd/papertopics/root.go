package main

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/hurttlocker/papertopics/internal/aggregate"
	"github.com/hurttlocker/papertopics/internal/config"
	"github.com/hurttlocker/papertopics/internal/engine"
	"github.com/hurttlocker/papertopics/internal/logutil"
	"github.com/hurttlocker/papertopics/internal/store"
	"github.com/hurttlocker/papertopics/internal/topic"
	"github.com/spf13/cobra"
)

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "papertopics",
		Short:         "Topic frequency aggregation for confirmed exam papers",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	cmd.PersistentFlags().String("config", "", "Config file path (default ~/.papertopics/config.yaml).")
	cmd.PersistentFlags().String("db", "", "SQLite database path (overrides db.path).")
	cmd.PersistentFlags().String("driver", "", "Store driver: sqlite|postgres|memory.")
	cmd.PersistentFlags().String("dsn", "", "Postgres connection string.")
	cmd.PersistentFlags().String("membership", "", "Decrement membership mode: occurrence|paper.")
	cmd.PersistentFlags().String("log-level", "", "Logging level: debug|info|warn|error.")
	cmd.PersistentFlags().String("log-format", "", "Logging format: text|json.")
	cmd.PersistentFlags().Bool("json", false, "Print JSON even on a terminal.")

	cmd.AddCommand(newConfirmCmd())
	cmd.AddCommand(newDeleteCmd())
	cmd.AddCommand(newTopCmd())
	cmd.AddCommand(newSearchCmd())
	cmd.AddCommand(newStatsCmd())
	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newConfigCmd())
	cmd.AddCommand(newVacuumCmd())

	return cmd
}

func resolveFromCmd(cmd *cobra.Command) (config.ResolvedConfig, error) {
	flag := func(name string) string {
		v, _ := cmd.Flags().GetString(name)
		return v
	}
	return config.ResolveConfig(config.ResolveOptions{
		ConfigPath:    flag("config"),
		CLIDBPath:     flag("db"),
		CLIDriver:     flag("driver"),
		CLIDSN:        flag("dsn"),
		CLIMembership: flag("membership"),
		CLILogLevel:   flag("log-level"),
		CLILogFormat:  flag("log-format"),
	})
}

// app is the per-invocation wiring of config, store and engine.
type app struct {
	cfg    config.ResolvedConfig
	log    *slog.Logger
	store  store.Store
	engine *engine.Engine
}

func openApp(cmd *cobra.Command) (*app, error) {
	cfg, err := resolveFromCmd(cmd)
	if err != nil {
		return nil, err
	}
	logger, err := logutil.LoggerFromConfig(cfg)
	if err != nil {
		return nil, err
	}

	attempts, err := cfg.MaxAttemptsValue()
	if err != nil {
		return nil, err
	}
	backoff, err := cfg.BackoffValue()
	if err != nil {
		return nil, err
	}
	if backoff == 0 {
		backoff = -1
	}
	ttl, err := cfg.CacheTTLValue()
	if err != nil {
		return nil, err
	}
	mode, ok := topic.ParseMembershipMode(cfg.Membership.Value)
	if !ok {
		return nil, fmt.Errorf("membership %q (from %s): must be occurrence or paper", cfg.Membership.Value, cfg.Membership.Source)
	}

	st, err := store.NewStore(store.StoreConfig{
		Driver: cfg.DBDriver.Value,
		DBPath: cfg.DBPath.Value,
		DSN:    cfg.DBDSN.Value,
	})
	if err != nil {
		return nil, fmt.Errorf("opening store: %w", err)
	}
	logger.Debug("store_opened", "driver", cfg.DBDriver.Value, "path", cfg.DBPath.Value)

	eng := engine.New(st, engine.Options{
		CacheTTL: ttl,
		Logger:   logger,
		Aggregate: aggregate.Options{
			MaxAttempts: attempts,
			Backoff:     backoff,
			Mode:        mode,
		},
	})
	return &app{cfg: cfg, log: logger, store: st, engine: eng}, nil
}

func (a *app) Close() error {
	return a.store.Close()
}

// withApp opens the app for the duration of fn.
func withApp(cmd *cobra.Command, fn func(*app) error) error {
	a, err := openApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(a)
}

func requireFlags(cmd *cobra.Command, names ...string) error {
	var missing []string
	for _, n := range names {
		if v, _ := cmd.Flags().GetString(n); strings.TrimSpace(v) == "" {
			missing = append(missing, "--"+n)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required flags: %s", strings.Join(missing, ", "))
	}
	return nil
}
