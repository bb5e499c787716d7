package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/avvvet/skillbuddy-chat/internal/handlers"
	"github.com/avvvet/skillbuddy-chat/internal/models"
)

// ChatService runs chat turns.
type ChatService interface {
	NewSession() string
	HandleUserMessage(ctx context.Context, sessionID, text string, emit handlers.Emitter) (string, error)
}

// Dispatcher routes one inbound protocol message to the chat service and
// writes every reply through the caller's emitter. Malformed input gets a
// typed error reply; the only error returned is a failed emit, after which
// the connection is unusable.
type Dispatcher struct {
	chat ChatService
}

func NewDispatcher(chat ChatService) *Dispatcher {
	return &Dispatcher{chat: chat}
}

func (d *Dispatcher) Dispatch(ctx context.Context, raw []byte, emit handlers.Emitter) error {
	var data models.Inbound
	if err := json.Unmarshal(raw, &data); err != nil {
		return emit.Emit(ctx, models.ErrorReply(models.ErrorInvalidJSON, "Message must be valid JSON", ""))
	}

	switch data.Type {
	case models.TypePing:
		return emit.Emit(ctx, models.Pong())

	case models.TypeNewSession:
		return emit.Emit(ctx, models.SessionStarted(d.chat.NewSession()))

	case models.TypeUserMessage:
		if strings.TrimSpace(data.Text) == "" {
			return emit.Emit(ctx, models.ErrorReply(models.ErrorEmptyText, "Text cannot be empty", data.SessionID))
		}
		return d.userMessage(ctx, data, emit)

	default:
		return emit.Emit(ctx, models.ErrorReply(models.ErrorUnknownType,
			fmt.Sprintf("Unknown message type: %s", data.Type), data.SessionID))
	}
}

// errTurnPanicked marks a turn that blew up inside the chat service.
var errTurnPanicked = errors.New("turn panicked")

func (d *Dispatcher) userMessage(ctx context.Context, data models.Inbound, emit handlers.Emitter) error {
	sessionID, err := d.runTurn(ctx, data, emit)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, handlers.ErrEmptyText):
		return emit.Emit(ctx, models.ErrorReply(models.ErrorEmptyText, "Text cannot be empty", sessionID))
	case errors.Is(err, errTurnPanicked):
		slog.Error("turn failed", "session", sessionID, "err", err)
		return emit.Emit(ctx, models.ErrorReply(models.ErrorInferenceFailed, err.Error(), sessionID))
	default:
		return err
	}
}

func (d *Dispatcher) runTurn(ctx context.Context, data models.Inbound, emit handlers.Emitter) (sessionID string, err error) {
	sessionID = data.SessionID
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("%w: %v", errTurnPanicked, p)
		}
	}()
	return d.chat.HandleUserMessage(ctx, data.SessionID, data.Text, emit)
}
