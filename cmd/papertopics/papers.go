package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/hurttlocker/papertopics/internal/engine"
	"github.com/spf13/cobra"
)

// paperFile is a parsed paper JSON file. A file holds one paper object or an
// array of them.
type paperFile struct {
	path   string
	papers []engine.Paper
	array  bool
}

func loadPaperFile(path string) (*paperFile, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	pf := &paperFile{path: path}
	trimmed := bytes.TrimSpace(b)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		pf.array = true
		if err := json.Unmarshal(trimmed, &pf.papers); err != nil {
			return nil, fmt.Errorf("parsing %s: %w", path, err)
		}
		return pf, nil
	}
	var p engine.Paper
	if err := json.Unmarshal(trimmed, &p); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	pf.papers = []engine.Paper{p}
	return pf, nil
}

// assignIDs gives every paper without an ID a fresh UUID and reports whether
// any were assigned.
func (pf *paperFile) assignIDs() bool {
	changed := false
	for i := range pf.papers {
		if strings.TrimSpace(pf.papers[i].ID) == "" {
			pf.papers[i].ID = uuid.NewString()
			changed = true
		}
	}
	return changed
}

func (pf *paperFile) save() error {
	var v interface{} = pf.papers[0]
	if pf.array {
		v = pf.papers
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(pf.path, append(data, '\n'), 0o644)
}

func newConfirmCmd() *cobra.Command {
	var writeIDs bool
	cmd := &cobra.Command{
		Use:   "confirm <paper.json>...",
		Short: "Credit the topics of confirmed papers",
		Long: `Credit every Part A and Part B question topic of each paper to its topic groups.

Papers without an "id" get a generated UUID, written back to the file so the
same paper can later be deleted. With --write-ids=false such papers are
rejected before any file is credited.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(a *app) error {
				files := make([]*paperFile, 0, len(args))
				for _, path := range args {
					pf, err := loadPaperFile(path)
					if err != nil {
						return err
					}
					files = append(files, pf)
				}
				// IDs are settled for every file before anything is credited.
				for _, pf := range files {
					if !pf.assignIDs() {
						continue
					}
					if !writeIDs {
						return fmt.Errorf("%s: paper has no id and --write-ids=false; the generated id would be lost and the paper could never be deleted", pf.path)
					}
					if err := pf.save(); err != nil {
						return fmt.Errorf("writing generated ids to %s: %w", pf.path, err)
					}
				}

				var results []*engine.PaperResult
				for _, pf := range files {
					path := pf.path
					for _, p := range pf.papers {
						res, err := a.engine.OnPaperConfirmed(cmd.Context(), p)
						if err != nil {
							return fmt.Errorf("%s: %w", path, err)
						}
						results = append(results, res)
					}
				}
				return printPaperResults(cmd, "confirmed", results)
			})
		},
	}
	cmd.Flags().BoolVar(&writeIDs, "write-ids", true, "Write generated paper IDs back to their files")
	return cmd
}

func newDeleteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delete <paper.json>...",
		Short: "Remove the topic contributions of deleted papers",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(a *app) error {
				var results []*engine.PaperResult
				for _, path := range args {
					pf, err := loadPaperFile(path)
					if err != nil {
						return err
					}
					for _, p := range pf.papers {
						if strings.TrimSpace(p.ID) == "" {
							return fmt.Errorf("%s: paper has no id; only confirmed papers can be deleted", path)
						}
						res, err := a.engine.OnPaperDeleted(cmd.Context(), p)
						if err != nil {
							return fmt.Errorf("%s: %w", path, err)
						}
						results = append(results, res)
					}
				}
				return printPaperResults(cmd, "deleted", results)
			})
		},
	}
	return cmd
}
