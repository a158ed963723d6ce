package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/s0up4200/qbit-dedup/dedup"
	"github.com/s0up4200/qbit-dedup/qbittorrent"
)

// testCmd represents the test command
var testCmd = &cobra.Command{
	Use:   "test",
	Short: "Test connection to qBittorrent",
	Long:  `Test the connection to your qBittorrent instance and display basic information.`,
	RunE:  runTest,
}

func runTest(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Testing connection to qBittorrent at %s...\n", cfg.QBittorrent.URL)

	ctx := cmd.Context()
	probe, err := qbittorrent.NewProbe(ctx,
		cfg.QBittorrent.URL,
		cfg.QBittorrent.Username,
		cfg.QBittorrent.Password,
		cfg.QBittorrent.InsecureSkipVerify,
		cfg.QBittorrent.Timeout(),
		logger,
	)
	if err != nil {
		return err
	}
	fmt.Fprintln(out, "✓ Connection successful!")

	entries, err := probe.Entries(ctx)
	if err != nil {
		return err
	}

	policy, _, err := groupPolicy()
	if err != nil {
		return err
	}
	plan := dedup.NewPlan(entries, policy)

	fmt.Fprintf(out, "\nqBittorrent Statistics:\n")
	fmt.Fprintf(out, "- Total torrents: %d\n", len(entries))
	fmt.Fprintf(out, "- Duplicate groups (%s): %d\n", policy.Name(), len(plan.Duplicates()))
	fmt.Fprintf(out, "- Torrents a run would delete: %d\n", len(plan.Victims()))

	fmt.Fprintf(out, "\nSettings:\n")
	fmt.Fprintf(out, "- Dry run: %s\n", boolToStatus(cfg.Safety.DryRun))
	fmt.Fprintf(out, "- Delete files: %s\n", boolToStatus(cfg.Safety.DeleteFiles))
	fmt.Fprintf(out, "- Push channel: %s\n", boolToStatus(cfg.Trigger.UseWebsocket))
	if cfg.Dedup.Protect != "" {
		fmt.Fprintf(out, "- Protect filter: %s\n", cfg.Dedup.Protect)
	}

	return nil
}
