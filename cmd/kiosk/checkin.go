package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"staffattend/internal/apperrors"
)

var checkinCmd = &cobra.Command{
	Use:   "checkin",
	Short: "Check a staff member in by face",
	Long: `Matches the face against the cached gallery and records attendance.
When the API cannot be reached the check-in is queued and sent by sync.`,
	RunE: runCheckin,
}

func init() {
	rootCmd.AddCommand(checkinCmd)
	addProbeFlags(checkinCmd)
}

func runCheckin(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	s, err := openSession(cmd)
	if err != nil {
		return err
	}
	defer s.Close()

	emb, imageURL, err := probe(ctx, cmd)
	if err != nil {
		return err
	}

	res, err := s.station.CheckIn(ctx, emb, imageURL)
	if errors.Is(err, apperrors.ErrLowConfidence) {
		return fmt.Errorf("not recognized (closest %s, similarity %.2f)", res.Match.Name, res.Match.Similarity)
	}
	if err != nil {
		return err
	}

	switch {
	case res.Queued:
		fmt.Printf("%s checked in offline (queued as #%d)\n", res.Match.Name, res.ItemID)
	case res.Created:
		fmt.Printf("%s checked in: %s at %s\n", res.Match.Name, res.Record.Status, res.Record.CheckInAt.Local().Format("15:04"))
	default:
		fmt.Printf("%s already checked in today\n", res.Match.Name)
	}
	return nil
}
