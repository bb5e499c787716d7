package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/avvvet/skillbuddy-chat/internal/config"
	"github.com/avvvet/skillbuddy-chat/internal/handlers"
	"github.com/avvvet/skillbuddy-chat/internal/models"
)

// NATSTransport serves the chat protocol on a NATS subject. Each request
// carries one inbound message; every reply is published, in order, to the
// request's reply subject, so requesters subscribe to an inbox rather than
// using single-response Request.
type NATSTransport struct {
	conn       *nats.Conn
	config     *config.Config
	dispatcher *Dispatcher
	sub        *nats.Subscription

	publish func(subject string, data []byte) error
}

func NewNATSTransport(cfg *config.Config, dispatcher *Dispatcher) (*NATSTransport, error) {
	// Connect to NATS
	conn, err := nats.Connect(cfg.NatsURL,
		nats.Name(cfg.ServiceName),
		nats.Timeout(cfg.NatsTimeout),
		nats.ReconnectWait(2*time.Second),
		nats.MaxReconnects(-1), // Infinite reconnects
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	slog.Info("connected to NATS server", "url", cfg.NatsURL)

	return &NATSTransport{
		conn:       conn,
		config:     cfg,
		dispatcher: dispatcher,
		publish:    conn.Publish,
	}, nil
}

// Start subscribes to the request subject. NATS delivers a subscription's
// messages one at a time, so turns arriving here are processed in order.
func (nt *NATSTransport) Start() error {
	sub, err := nt.conn.Subscribe(nt.config.NatsRequestSubject, nt.handleRequest)
	if err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", nt.config.NatsRequestSubject, err)
	}
	nt.sub = sub

	slog.Info("subscribed to subject", "subject", nt.config.NatsRequestSubject)
	return nil
}

func (nt *NATSTransport) handleRequest(msg *nats.Msg) {
	if msg.Reply == "" {
		slog.Warn("dropping NATS request without reply subject", "subject", msg.Subject)
		return
	}

	emit := handlers.EmitterFunc(func(ctx context.Context, out models.Outbound) error {
		data, err := json.Marshal(out)
		if err != nil {
			return fmt.Errorf("failed to marshal response: %w", err)
		}
		if err := nt.publish(msg.Reply, data); err != nil {
			return fmt.Errorf("failed to send response: %w", err)
		}
		return nil
	})

	if err := nt.dispatcher.Dispatch(context.Background(), msg.Data, emit); err != nil {
		slog.Error("error replying over NATS", "reply", msg.Reply, "err", err)
	}
}

func (nt *NATSTransport) Close() error {
	if nt.sub != nil {
		if err := nt.sub.Unsubscribe(); err != nil {
			slog.Warn("failed to unsubscribe", "err", err)
		}
	}
	if nt.conn != nil {
		nt.conn.Close()
		slog.Info("NATS connection closed")
	}
	return nil
}
