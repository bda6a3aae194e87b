package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/hurttlocker/papertopics/internal/engine"
	"github.com/hurttlocker/papertopics/internal/topic"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
)

// wantTable reports whether output goes to a terminal and --json is unset.
func wantTable(cmd *cobra.Command) bool {
	if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
		return false
	}
	f, ok := cmd.OutOrStdout().(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func humanBytes(n int64) string {
	if n <= 0 {
		return "-"
	}
	return humanize.Bytes(uint64(n))
}

func humanTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return humanize.Time(t)
}

func printPaperResults(cmd *cobra.Command, verb string, results []*engine.PaperResult) error {
	if !wantTable(cmd) {
		return writeJSON(cmd.OutOrStdout(), results)
	}
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "PAPER\tPART A\tPART B\tATTEMPTS")
	for _, r := range results {
		fmt.Fprintf(w, "%s\t%d applied, %d skipped\t%d applied, %d skipped\t%d/%d\n",
			r.PaperID,
			r.PartA.Applied, r.PartA.Skipped,
			r.PartB.Applied, r.PartB.Skipped,
			r.PartA.Attempts, r.PartB.Attempts,
		)
	}
	fmt.Fprintf(w, "\n%s %d paper(s)\n", verb, len(results))
	return w.Flush()
}

func printTop(cmd *cobra.Command, res *topic.TopResult) error {
	if !wantTable(cmd) {
		return writeJSON(cmd.OutOrStdout(), res)
	}
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	for _, p := range topic.Parts {
		pr := res.Part(p)
		fmt.Fprintf(w, "PART %s (%d of %d)\n", p, len(pr.Topics), pr.Total)
		fmt.Fprintln(w, "#\tTOPIC\tCOUNT\tPAPERS\tBRANCH\tLAST SEEN")
		for i, t := range pr.Topics {
			fmt.Fprintf(w, "%d\t%s\t%s\t%d\t%s\t%s\n", i+1, t.Name, humanize.Comma(int64(t.Count)), t.PaperCount, t.Branch, humanTime(t.LastOccurred))
		}
		fmt.Fprintln(w)
	}
	return w.Flush()
}

func printSearch(cmd *cobra.Command, views []engine.GroupView) error {
	if !wantTable(cmd) {
		return writeJSON(cmd.OutOrStdout(), views)
	}
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	for _, v := range views {
		fmt.Fprintf(w, "PART %s  version %d  updated %s\n", v.Key.Part, v.Version, humanTime(v.UpdatedAt))
		fmt.Fprintln(w, "TOPIC\tCOUNT\tPAPERS")
		for _, e := range v.Entries {
			fmt.Fprintf(w, "%s\t%d\t%d\n", e.Name, e.Count, len(e.Papers))
		}
		fmt.Fprintln(w)
	}
	return w.Flush()
}

func printStats(cmd *cobra.Command, st *engine.Stats) error {
	if !wantTable(cmd) {
		return writeJSON(cmd.OutOrStdout(), st)
	}
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "driver\t%s\n", st.Store.Driver)
	fmt.Fprintf(w, "topic groups\t%s\n", humanize.Comma(st.Store.GroupCount))
	fmt.Fprintf(w, "topic entries\t%s\n", humanize.Comma(st.Store.EntryCount))
	fmt.Fprintf(w, "occurrences\t%s\n", humanize.Comma(st.Store.OccurrenceCount))
	fmt.Fprintf(w, "database size\t%s\n", humanBytes(st.Store.DBSizeBytes))
	fmt.Fprintf(w, "membership\t%s\n", st.Membership)
	fmt.Fprintf(w, "cache ttl\t%s\n", st.CacheTTL)
	return w.Flush()
}
