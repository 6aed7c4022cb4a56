package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var registerCmd = &cobra.Command{
	Use:   "register <device-id>",
	Short: "Register this station with the attendance API",
	Args:  cobra.ExactArgs(1),
	RunE:  runRegister,
}

func init() {
	rootCmd.AddCommand(registerCmd)
}

func runRegister(cmd *cobra.Command, args []string) error {
	s, err := openSession(cmd)
	if err != nil {
		return err
	}
	defer s.Close()

	if err := s.station.Register(cmd.Context(), args[0]); err != nil {
		return fmt.Errorf("register: %w", err)
	}
	fmt.Printf("Registered as %s\n", args[0])
	return nil
}
