package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var galleryCmd = &cobra.Command{
	Use:   "gallery",
	Short: "Inspect the locally cached gallery",
	RunE:  runGalleryInfo,
}

var galleryRefreshCmd = &cobra.Command{
	Use:   "refresh",
	Short: "Download the enrolled embeddings from the API",
	RunE:  runGalleryRefresh,
}

func init() {
	rootCmd.AddCommand(galleryCmd)
	galleryCmd.AddCommand(galleryRefreshCmd)
}

func runGalleryInfo(cmd *cobra.Command, args []string) error {
	s, err := openSession(cmd)
	if err != nil {
		return err
	}
	defer s.Close()

	_, _, info, err := s.station.Gallery(cmd.Context())
	if err != nil {
		return err
	}
	fmt.Printf("Candidates: %d\n", info.Candidates)
	fmt.Printf("Threshold:  %.2f\n", info.Threshold)
	fmt.Printf("Dimension:  %d\n", info.Dim)
	fmt.Printf("Refreshed:  %s\n", info.RefreshedAt.Local().Format(time.RFC1123))
	return nil
}

func runGalleryRefresh(cmd *cobra.Command, args []string) error {
	s, err := openSession(cmd)
	if err != nil {
		return err
	}
	defer s.Close()

	n, err := s.station.RefreshGallery(cmd.Context())
	if err != nil {
		return fmt.Errorf("refresh gallery: %w", err)
	}
	fmt.Printf("Cached %d enrolled staff\n", n)
	return nil
}
