package main

import (
	"fmt"
	"os"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"staffattend/internal/apperrors"
	"staffattend/internal/syncqueue"
)

var queueCmd = &cobra.Command{
	Use:   "queue",
	Short: "Inspect and maintain the local sync queue",
}

var queueListCmd = &cobra.Command{
	Use:   "list",
	Short: "List queued items",
	RunE:  runQueueList,
}

var queuePurgeCmd = &cobra.Command{
	Use:   "purge",
	Short: "Delete processed items",
	RunE:  runQueuePurge,
}

var queueDropCmd = &cobra.Command{
	Use:   "drop <id>",
	Short: "Delete one item regardless of status",
	Args:  cobra.ExactArgs(1),
	RunE:  runQueueDrop,
}

func init() {
	rootCmd.AddCommand(queueCmd)
	queueCmd.AddCommand(queueListCmd, queuePurgeCmd, queueDropCmd)

	queueListCmd.Flags().String("status", "pending", "Filter by status: pending, processed or all")
	queuePurgeCmd.Flags().Duration("older-than", 7*24*time.Hour, "Only purge items processed longer ago than this")
}

func runQueueList(cmd *cobra.Command, args []string) error {
	s, err := openSession(cmd)
	if err != nil {
		return err
	}
	defer s.Close()

	var status syncqueue.Status
	switch v := mustGetString(cmd, "status"); v {
	case "all":
	case string(syncqueue.StatusPending), string(syncqueue.StatusProcessed):
		status = syncqueue.Status(v)
	default:
		return apperrors.Validation(fmt.Sprintf("unknown status %q", v))
	}

	items, err := s.queue.List(cmd.Context(), status)
	if err != nil {
		return err
	}
	if len(items) == 0 {
		fmt.Println("Queue is empty.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tTABLE\tOP\tRECORD\tSTATUS\tATTEMPTS\tQUEUED\tLAST ERROR")
	for _, it := range items {
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%d\t%s\t%s\n",
			it.ID, it.Table, it.Op, it.RecordID, it.Status, it.Attempts,
			it.CreatedAt.Local().Format("2006-01-02 15:04"), it.LastError)
	}
	w.Flush()
	fmt.Printf("\nTotal: %d items\n", len(items))
	return nil
}

func runQueuePurge(cmd *cobra.Command, args []string) error {
	s, err := openSession(cmd)
	if err != nil {
		return err
	}
	defer s.Close()

	n, err := s.queue.Purge(cmd.Context(), mustGetDuration(cmd, "older-than"))
	if err != nil {
		return err
	}
	fmt.Printf("Purged %d processed items\n", n)
	return nil
}

func runQueueDrop(cmd *cobra.Command, args []string) error {
	id, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return apperrors.Validation(fmt.Sprintf("invalid item id %q", args[0]))
	}
	s, err := openSession(cmd)
	if err != nil {
		return err
	}
	defer s.Close()

	if err := s.queue.Discard(cmd.Context(), id); err != nil {
		return err
	}
	fmt.Printf("Dropped item %d\n", id)
	return nil
}
