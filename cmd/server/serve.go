package main

import (
	"context"
	"log/slog"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/avvvet/skillbuddy-chat/internal/transport"
)

const shutdownTimeout = 10 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the chat over HTTP/WebSocket and, when NATS_URL is set, NATS",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe(cmd.Context())
	},
}

func runServe(ctx context.Context) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	slog.Info("🚀 Starting service...", "service", cfg.ServiceName)

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg)
	if err != nil {
		slog.Error("❌ Startup failed", "err", err)
		return err
	}
	defer a.Close()

	server, err := transport.NewServer(cfg, a.chat, a.memory)
	if err != nil {
		slog.Error("❌ Failed to build HTTP server", "err", err)
		return err
	}

	var natsTransport *transport.NATSTransport
	if cfg.NatsURL != "" {
		slog.Info("📡 Connecting to NATS...", "url", cfg.NatsURL)
		natsTransport, err = transport.NewNATSTransport(cfg, transport.NewDispatcher(a.chat))
		if err != nil {
			slog.Error("❌ Failed to initialize NATS transport", "err", err)
			return err
		}
		defer natsTransport.Close()

		if err := natsTransport.Start(); err != nil {
			slog.Error("❌ Failed to start NATS transport", "err", err)
			return err
		}
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	slog.Info("✅ Service is running!", "addr", cfg.Addr(), "cors_origins", cfg.CORSOrigins)
	if natsTransport != nil {
		slog.Info("👂 Listening on subject", "subject", cfg.NatsRequestSubject)
	}

	select {
	case err := <-errCh:
		if err != nil {
			slog.Error("❌ HTTP server failed", "err", err)
		}
		return err
	case <-ctx.Done():
		slog.Info("🛑 Shutdown signal received")
	}

	slog.Info("🔄 Shutting down gracefully...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Warn("⚠️ Error during HTTP shutdown", "err", err)
	}

	slog.Info("👋 Service stopped")
	return nil
}
