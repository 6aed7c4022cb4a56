package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"staffattend/internal/apperrors"
)

// mustGetString gets a string flag value or panics if the flag doesn't exist.
func mustGetString(cmd *cobra.Command, name string) string {
	val, err := cmd.Flags().GetString(name)
	if err != nil {
		panic(fmt.Sprintf("flag error for --%s: %v", name, err))
	}
	return val
}

// mustGetDuration gets a duration flag value or panics if the flag doesn't exist.
func mustGetDuration(cmd *cobra.Command, name string) time.Duration {
	val, err := cmd.Flags().GetDuration(name)
	if err != nil {
		panic(fmt.Sprintf("flag error for --%s: %v", name, err))
	}
	return val
}

// mustGetBool gets a bool flag value or panics if the flag doesn't exist.
func mustGetBool(cmd *cobra.Command, name string) bool {
	val, err := cmd.Flags().GetBool(name)
	if err != nil {
		panic(fmt.Sprintf("flag error for --%s: %v", name, err))
	}
	return val
}

// flagOrEnv prefers an explicitly set flag, then the env var, then fallback.
func flagOrEnv(cmd *cobra.Command, name, env, fallback string) string {
	if v := mustGetString(cmd, name); v != "" {
		return v
	}
	if v := os.Getenv(env); v != "" {
		return v
	}
	return fallback
}

// addProbeFlags registers the ways a command can be given a face.
func addProbeFlags(cmd *cobra.Command) {
	cmd.Flags().String("image", "", "Path of a face image to embed")
	cmd.Flags().String("image-url", "", "URL of a face image to embed")
	cmd.Flags().String("embedding", "", "Precomputed embedding as a JSON array")
}

// probe returns the embedding selected by the probe flags and the image URL
// it came from, if any.
func probe(ctx context.Context, cmd *cobra.Command) ([]float32, string, error) {
	image := mustGetString(cmd, "image")
	imageURL := mustGetString(cmd, "image-url")
	raw := mustGetString(cmd, "embedding")

	switch {
	case raw != "":
		var emb []float32
		if err := json.Unmarshal([]byte(raw), &emb); err != nil {
			return nil, "", apperrors.Validation(fmt.Sprintf("invalid --embedding: %v", err))
		}
		return emb, imageURL, nil
	case image != "":
		data, err := os.ReadFile(image)
		if err != nil {
			return nil, "", fmt.Errorf("read image: %w", err)
		}
		res, err := newFaceClient().EmbedImage(ctx, data, filepath.Base(image))
		if err != nil {
			return nil, "", err
		}
		return res.Embedding, "", nil
	case imageURL != "":
		res, err := newFaceClient().EmbedURL(ctx, imageURL)
		if err != nil {
			return nil, "", err
		}
		return res.Embedding, imageURL, nil
	}
	return nil, "", apperrors.Validation("one of --image, --image-url or --embedding is required")
}
