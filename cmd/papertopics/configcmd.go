package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/hurttlocker/papertopics/internal/config"
	"github.com/spf13/cobra"
)

func newConfigCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Show the resolved configuration and where each value came from",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := resolveFromCmd(cmd)
			if err != nil {
				return err
			}
			cfg = cfg.Redacted()
			if !wantTable(cmd) {
				return writeJSON(cmd.OutOrStdout(), cfg)
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintf(w, "config file\t%s\n\n", cfg.ConfigPath)
			fmt.Fprintln(w, "KEY\tVALUE\tSOURCE")
			for _, row := range []struct {
				key string
				v   config.ResolvedValue
			}{
				{"db.driver", cfg.DBDriver},
				{"db.path", cfg.DBPath},
				{"db.dsn", cfg.DBDSN},
				{"aggregate.max_attempts", cfg.MaxAttempts},
				{"aggregate.backoff", cfg.Backoff},
				{"aggregate.membership", cfg.Membership},
				{"cache.ttl", cfg.CacheTTL},
				{"logging.level", cfg.LogLevel},
				{"logging.format", cfg.LogFormat},
				{"logging.add_source", cfg.LogSource},
			} {
				src := string(row.v.Source)
				if row.v.From != "" && row.v.Source != config.SourceDefault {
					src += " (" + row.v.From + ")"
				}
				if src == "" {
					src = string(config.SourceUnknown)
				}
				fmt.Fprintf(w, "%s\t%s\t%s\n", row.key, row.v.Value, src)
			}
			return w.Flush()
		},
	}
}
