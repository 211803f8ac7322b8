package commands

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/mhismail3/tron-sub003/internal/blobstore"
	"github.com/mhismail3/tron-sub003/internal/config"
	"github.com/mhismail3/tron-sub003/internal/linearizer"
	"github.com/mhismail3/tron-sub003/internal/logging"
	"github.com/mhismail3/tron-sub003/internal/metrics"
	"github.com/mhismail3/tron-sub003/internal/orchestrator"
	"github.com/mhismail3/tron-sub003/internal/rpc"
	"github.com/mhismail3/tron-sub003/internal/store"
	"github.com/mhismail3/tron-sub003/internal/tokens"
)

var (
	servePort     int
	serveHostname string
	serveRedisURL string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the session core as an HTTP server",
	Long: `Start the agent session core as a headless HTTP server exposing
the RPC surface (events.getHistory/getSince/append, message.delete,
model.switch/list) and a WebSocket streaming endpoint.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().IntVarP(&servePort, "port", "p", 8080, "Port to listen on")
	serveCmd.Flags().StringVar(&serveHostname, "hostname", "127.0.0.1", "Hostname to listen on")
	serveCmd.Flags().StringVar(&serveRedisURL, "redis-url", "", "Optional Redis URL for cross-process streaming mirror")
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	s, err := store.Open(ctx, dbPath)
	if err != nil {
		return fmt.Errorf("open event store: %w", err)
	}
	defer s.Close()

	m := metrics.New()
	lin := linearizer.New(s, m)
	tr := tokens.NewTracker(m)
	blobs := blobstore.New(s.DB(), m)

	opts := []orchestrator.Option{orchestrator.WithBlobOffload(blobs, config.Default().ToolResultEmbedCap)}
	if serveRedisURL != "" {
		redisOpts, err := redis.ParseURL(serveRedisURL)
		if err != nil {
			return fmt.Errorf("parse redis url: %w", err)
		}
		opts = append(opts, orchestrator.WithRedisMirror(orchestrator.NewRedisMirror(redis.NewClient(redisOpts), "")))
		logging.Info().Str("redis_url", serveRedisURL).Msg("cross-process streaming mirror enabled")
	}

	orch := orchestrator.New(lin, tr, opts...)
	defer orch.Close()

	rpcServer := rpc.New(rpc.DefaultConfig(), s, lin, orch)

	httpSrv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", serveHostname, servePort),
		Handler:      rpcServer.Router(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0, // no write timeout: the streaming endpoint holds connections open
	}

	go func() {
		logging.Info().
			Str("addr", httpSrv.Addr).
			Str("db", dbPath).
			Msg("eventctl serve listening")
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logging.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logging.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return httpSrv.Shutdown(shutdownCtx)
}
