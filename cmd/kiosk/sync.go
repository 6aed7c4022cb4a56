package main

import (
	"fmt"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"staffattend/internal/syncqueue"
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Send queued writes to the API",
	Long: `Replays every pending item in the order it was queued. Items the API
rejects stay pending with their error and are retried on the next sync.`,
	RunE: runSync,
}

func init() {
	rootCmd.AddCommand(syncCmd)
	syncCmd.Flags().Bool("quiet", false, "Do not show a progress bar")
}

func runSync(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	s, err := openSession(cmd)
	if err != nil {
		return err
	}
	defer s.Close()

	stats, err := s.queue.Stats(ctx)
	if err != nil {
		return err
	}
	if stats.Pending == 0 {
		fmt.Println("Nothing to sync.")
		return nil
	}

	var bar *progressbar.ProgressBar
	if !mustGetBool(cmd, "quiet") {
		bar = progressbar.NewOptions(stats.Pending,
			progressbar.OptionSetDescription("Syncing"),
			progressbar.OptionShowCount(),
			progressbar.OptionShowIts(),
			progressbar.OptionSetItsString("items"),
			progressbar.OptionShowElapsedTimeOnFinish(),
			progressbar.OptionSetPredictTime(true),
			progressbar.OptionFullWidth(),
		)
	}

	var failures []syncqueue.Item
	res, err := s.station.Sync(ctx, func(it syncqueue.Item, err error) {
		if err != nil {
			failures = append(failures, it)
		}
		if bar != nil {
			bar.Add(1)
		}
	})
	if bar != nil {
		bar.Finish()
		fmt.Println()
	}
	if err != nil {
		return fmt.Errorf("sync: %w", err)
	}

	for _, it := range failures {
		fmt.Printf("  #%d %s %s %s: %s\n", it.ID, it.Op, it.Table, it.RecordID, it.LastError)
	}
	fmt.Printf("Synced %d, failed %d\n", res.Processed, res.Failed)
	return nil
}
