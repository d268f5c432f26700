package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/haivivi/automuter/pkg/enroll"
	"github.com/haivivi/automuter/pkg/server"
	"github.com/haivivi/automuter/pkg/verify"
)

var (
	flagListen    string
	flagThreshold float64
	flagFormat    string
	flagWorkers   int
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the verification server",
	Long: `Run the HTTP/WebSocket verification server.

Clients stream audio chunks as binary frames to /ws/{userId} and receive a
JSON {action, similarity, isTargetSpeaker} message per decodable chunk.
Enrollment and speaker administration are exposed as JSON endpoints.

The embedding gateway must be reachable at startup.`,
	RunE: runServe,
}

func init() {
	f := serveCmd.Flags()
	f.StringVar(&flagListen, "listen", "", "listen address (default: config listen)")
	f.Float64Var(&flagThreshold, "threshold", 0, "decision threshold (default: config threshold)")
	f.StringVar(&flagFormat, "format", "", "container format of streamed chunks (default: config format)")
	f.IntVar(&flagWorkers, "workers", 0, "embedding models in the pool (default: config embedding.workers)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	a := newApp()
	defer a.close()
	cfg := a.cfg
	logger := a.logger

	if cmd.Flags().Changed("listen") {
		cfg.Listen = flagListen
	}
	if cmd.Flags().Changed("threshold") {
		cfg.Threshold = flagThreshold
	}
	if cmd.Flags().Changed("format") {
		cfg.Format = flagFormat
	}
	if cmd.Flags().Changed("workers") {
		cfg.Embedding.Workers = flagWorkers
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("Shutting down...")
		cancel()
	}()

	galleries, err := a.store()
	if err != nil {
		return err
	}
	emb, err := a.embedderPool(ctx, cfg.Embedding.Workers)
	if err != nil {
		return fmt.Errorf("embedding model: %w", err)
	}

	srv := server.New(server.Config{
		Sessions: &verify.Sessions{
			Threshold: cfg.Threshold,
			Format:    cfg.Format,
			Embedder:  emb,
			Galleries: galleries,
			Logger:    logger,
		},
		Enroll: &enroll.Service{
			Acquirer:   a.downloader(),
			Embedder:   emb,
			Galleries:  galleries,
			Logger:     logger,
			RemoteOnly: true,
		},
		Galleries:    galleries,
		AllowOrigins: cfg.AllowOrigins,
		Logger:       logger,
	})
	logger.Info("Server ready", "addr", cfg.Listen, "threshold", cfg.Threshold, "format", cfg.Format)
	return srv.ListenAndServe(ctx, cfg.Listen)
}
