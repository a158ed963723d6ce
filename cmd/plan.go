package cmd

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/s0up4200/qbit-dedup/dedup"
	"github.com/s0up4200/qbit-dedup/filter"
	"github.com/s0up4200/qbit-dedup/qbittorrent"
)

// planCmd represents the plan command
var planCmd = &cobra.Command{
	Use:   "plan",
	Short: "Show duplicate groups and what a run would delete",
	Long: `List every group of duplicate torrents in qBittorrent, the torrent that
would be kept and the ones a run would delete. Nothing is deleted.`,
	RunE: runPlan,
}

func runPlan(cmd *cobra.Command, args []string) error {
	policy, protect, err := groupPolicy()
	if err != nil {
		return err
	}

	session, err := newSession()
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	if err := session.Login(ctx); err != nil {
		return fmt.Errorf("failed to log in to qBittorrent: %w", err)
	}

	entries, err := qbittorrent.NewClient(session, logger).ListEntries(ctx)
	if err != nil {
		return err
	}

	plan := dedup.NewPlan(entries, policy)
	return printPlan(cmd.OutOrStdout(), plan, len(entries), protect)
}

func printPlan(w io.Writer, plan dedup.Plan, total int, protect *filter.ExprFilter) error {
	duplicates := plan.Duplicates()
	if len(duplicates) == 0 {
		fmt.Fprintf(w, "No duplicates found among %d torrents (grouped by %s).\n", total, plan.Policy)
		return nil
	}

	fmt.Fprintf(w, "\nFound %d duplicate groups among %d torrents (grouped by %s):\n", len(duplicates), total, plan.Policy)
	fmt.Fprintln(w, strings.Repeat("-", 80))

	var victims, protected int
	for _, g := range duplicates {
		fmt.Fprintf(w, "• %s\n", g.Key)

		keep := g.Survivor()
		fmt.Fprintf(w, "  keep    %s  %s  (added %s)\n", keep.Hash, keep.Name, keep.AddedOn.Format("2006-01-02 15:04"))

		for _, v := range g.Victims() {
			label := "delete"
			if protect != nil {
				match, err := protect.Match(v)
				if err != nil {
					return err
				}
				if match {
					label = "protect"
					protected++
				}
			}
			if label == "delete" {
				victims++
			}
			fmt.Fprintf(w, "  %-7s %s  %s  (added %s)\n", label, v.Hash, v.Name, v.AddedOn.Format("2006-01-02 15:04"))
		}
	}

	fmt.Fprintln(w, strings.Repeat("-", 80))
	fmt.Fprintf(w, "A run would delete %d torrents", victims)
	if protected > 0 {
		fmt.Fprintf(w, " and keep %d protected", protected)
	}
	fmt.Fprintln(w, ".")
	return nil
}
