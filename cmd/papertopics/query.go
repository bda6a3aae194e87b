package main

import (
	"fmt"

	"github.com/hurttlocker/papertopics/internal/engine"
	"github.com/hurttlocker/papertopics/internal/store"
	"github.com/hurttlocker/papertopics/internal/topic"
	"github.com/spf13/cobra"
)

func addScopeFlags(cmd *cobra.Command) {
	cmd.Flags().String("college", "", "College name")
	cmd.Flags().String("subject", "", "Subject name")
	cmd.Flags().String("semester", "", "Semester")
	cmd.Flags().String("exam-type", "semester", "Exam type: semester|midterm1|midterm2")
}

func flagString(cmd *cobra.Command, name string) string {
	v, _ := cmd.Flags().GetString(name)
	return v
}

func newTopCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "top",
		Short: "Most frequent topics across all branches of a scope",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requireFlags(cmd, "college", "subject", "semester"); err != nil {
				return err
			}
			return withApp(cmd, func(a *app) error {
				res, err := a.engine.GetTopTopics(cmd.Context(), engine.TopQuery{
					College:  flagString(cmd, "college"),
					Subject:  flagString(cmd, "subject"),
					Semester: flagString(cmd, "semester"),
					ExamType: topic.ExamType(flagString(cmd, "exam-type")),
				})
				if err != nil {
					return err
				}
				return printTop(cmd, res)
			})
		},
	}
	addScopeFlags(cmd)
	return cmd
}

func newSearchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "search",
		Short: "Raw topic entries of one branch, in storage order",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requireFlags(cmd, "college", "subject", "semester", "branch"); err != nil {
				return err
			}
			var part *topic.Part
			if raw := flagString(cmd, "part"); raw != "" {
				p, err := topic.ParsePart(raw)
				if err != nil {
					return err
				}
				part = &p
			}
			return withApp(cmd, func(a *app) error {
				views, err := a.engine.SearchTopics(cmd.Context(), topic.Facet{
					College:  flagString(cmd, "college"),
					Subject:  flagString(cmd, "subject"),
					Semester: flagString(cmd, "semester"),
					Branch:   flagString(cmd, "branch"),
					ExamType: topic.ExamType(flagString(cmd, "exam-type")),
				}, part)
				if err != nil {
					return err
				}
				return printSearch(cmd, views)
			})
		},
	}
	addScopeFlags(cmd)
	cmd.Flags().String("branch", "", "Branch")
	cmd.Flags().String("part", "", "A or B (default: both)")
	return cmd
}

func newStatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show topic store statistics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(a *app) error {
				st, err := a.engine.Stats(cmd.Context())
				if err != nil {
					return err
				}
				return printStats(cmd, st)
			})
		},
	}
}

func newVacuumCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "vacuum",
		Short: "Compact the SQLite database file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(a *app) error {
				sq, ok := a.store.(*store.SQLiteStore)
				if !ok {
					return fmt.Errorf("vacuum requires the sqlite driver, have %s", a.cfg.DBDriver.Value)
				}
				before, _ := sq.Stats(cmd.Context())
				if err := sq.Vacuum(cmd.Context()); err != nil {
					return fmt.Errorf("vacuum: %w", err)
				}
				after, err := sq.Stats(cmd.Context())
				if err != nil {
					return err
				}
				var from int64
				if before != nil {
					from = before.DBSizeBytes
				}
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "vacuumed %s: %s -> %s\n", a.cfg.DBPath.Value, humanBytes(from), humanBytes(after.DBSizeBytes))
				return nil
			})
		},
	}
}
