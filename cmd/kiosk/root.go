package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"staffattend/internal/auth"
	"staffattend/internal/backend"
	"staffattend/internal/config"
	"staffattend/internal/faceclient"
	"staffattend/internal/kiosk"
	"staffattend/internal/logger"
	"staffattend/internal/syncqueue"
)

var cfg config.App

var rootCmd = &cobra.Command{
	Use:   "kiosk",
	Short: "Capture station for staff attendance",
	Long: `kiosk runs on a capture station. It registers the station with the
attendance API, caches the enrolled gallery, checks staff in by matching
faces locally and queues check-ins in a local SQLite database while the
API is unreachable.`,
	SilenceUsage: true,
}

func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		stop()
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().String("api", "", "Attendance API base URL (env KIOSK_API_URL)")
	rootCmd.PersistentFlags().String("db", "", "Path of the local queue database (env KIOSK_DB)")
}

func initConfig() {
	// config.Load reads an optional .env file first.
	cfg = config.Load()
	logger.Configure(logger.Config{Level: cfg.LogLevel, JSON: cfg.LogJSON})
}

// session bundles what most commands need.
type session struct {
	station *kiosk.Station
	queue   *syncqueue.Queue
	client  *backend.Client
}

func (s *session) Close() { s.queue.Close() }

// openSession opens the local queue and a backend client carrying the
// station's stored tokens. Tokens issued later are saved back to the queue.
func openSession(cmd *cobra.Command) (*session, error) {
	ctx := cmd.Context()
	apiURL := flagOrEnv(cmd, "api", "KIOSK_API_URL", "http://localhost:"+cfg.HTTPPort)
	dbPath := flagOrEnv(cmd, "db", "KIOSK_DB", "kiosk.db")

	q, err := syncqueue.Open(dbPath)
	if err != nil {
		return nil, err
	}
	client := backend.New(apiURL)
	st := kiosk.New(client, q)

	pair, ok, err := st.Tokens(ctx)
	if err != nil {
		q.Close()
		return nil, err
	}
	if ok {
		client.SetTokens(pair)
	}
	client.OnTokens = func(p auth.TokenPair) {
		if err := st.SaveTokens(context.WithoutCancel(ctx), p); err != nil {
			logger.Error().Err(err).Msg("save tokens failed")
		}
	}
	return &session{station: st, queue: q, client: client}, nil
}

func newFaceClient() *faceclient.Client {
	return faceclient.New(cfg.FaceServiceURL, cfg.FaceSkip, cfg.EmbeddingDim)
}
