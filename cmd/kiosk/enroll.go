package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var enrollCmd = &cobra.Command{
	Use:   "enroll <staff-id>",
	Short: "Enroll a staff member's face",
	Long: `Computes an embedding from --image or --image-url (or takes one from
--embedding) and attaches it to the staff member. Enrollment needs the API.`,
	Args: cobra.ExactArgs(1),
	RunE: runEnroll,
}

func init() {
	rootCmd.AddCommand(enrollCmd)
	addProbeFlags(enrollCmd)
	enrollCmd.Flags().String("photo-url", "", "Photo URL stored with the enrollment")
}

func runEnroll(cmd *cobra.Command, args []string) error {
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
	photoURL := mustGetString(cmd, "photo-url")
	if photoURL == "" {
		photoURL = imageURL
	}

	staff, err := s.station.Enroll(ctx, args[0], emb, photoURL)
	if err != nil {
		return fmt.Errorf("enroll: %w", err)
	}
	fmt.Printf("Enrolled %s (%s)\n", staff.Name, staff.StaffNo)
	return nil
}
