package main

import (
	"errors"
	"fmt"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/ineyio/keyrelay"
	"github.com/ineyio/keyrelay/usage"
)

var usageCmd = &cobra.Command{
	Use:   "usage",
	Short: "Show today's per-key usage from the snapshot file",
	Args:  cobra.NoArgs,
	RunE:  runUsage,
}

func init() {
	rootCmd.AddCommand(usageCmd)
}

func runUsage(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	snap, err := usage.NewFileStore(cfg.UsageFile).Load()
	if errors.Is(err, keyrelay.ErrSnapshotNotFound) {
		fmt.Fprintf(cmd.OutOrStdout(), "No usage recorded yet (%s)\n", cfg.UsageFile)
		return nil
	}
	if err != nil {
		return err
	}
	// Counters reset on the first request of a new day, so an older
	// snapshot says nothing about today.
	if snap.Date < keyrelay.TrackingDate(time.Now()) {
		fmt.Fprintf(cmd.OutOrStdout(), "No usage recorded today (last: %s)\n", snap.Date)
		return nil
	}

	// With a key file, list every key, including unused ones, in file order.
	keys := make([]string, 0, len(snap.Counts))
	if creds, err := keyrelay.LoadCredentials(cfg.KeysFile); err == nil {
		keys = creds
	} else {
		for k := range snap.Counts {
			keys = append(keys, k)
		}
		sort.Strings(keys)
	}

	exhausted := make(map[string]bool, len(snap.Exhausted))
	for _, k := range snap.Exhausted {
		exhausted[k] = true
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Date: %s\n\n", snap.Date)

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "KEY\tCOUNT\tEXHAUSTED")
	var total int64
	for _, k := range keys {
		n := snap.Counts[k]
		total += n
		fmt.Fprintf(w, "%s\t%d\t%t\n", keyrelay.MaskCredential(k), n, exhausted[k])
	}
	fmt.Fprintf(w, "TOTAL\t%d\t\n", total)
	return w.Flush()
}
