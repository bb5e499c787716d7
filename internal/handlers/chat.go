package handlers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/avvvet/skillbuddy-chat/internal/llm"
	"github.com/avvvet/skillbuddy-chat/internal/memory"
	"github.com/avvvet/skillbuddy-chat/internal/models"
	"github.com/avvvet/skillbuddy-chat/internal/retrieval"
)

// ErrEmptyText is returned for a blank user message; nothing is recorded.
var ErrEmptyText = errors.New("text cannot be empty")

// ApologyPrefix starts the answer recorded when generation fails.
const ApologyPrefix = "Sorry, an error occurred while processing your question: "

// Searcher finds passages relevant to a question.
type Searcher interface {
	Search(ctx context.Context, query string, k int) retrieval.Result
}

// PromptBuilder assembles the prompt for one turn.
type PromptBuilder interface {
	Build(question, history string, passages []string) (string, error)
}

// SessionMemory stores turns and renders recent context.
type SessionMemory interface {
	StartNewSession() string
	AddMessage(ctx context.Context, sessionID, user, ai string) memory.Message
	ContextForPrompt(sessionID string) string
}

// Emitter delivers outbound protocol messages to whoever drives the turn.
type Emitter interface {
	Emit(ctx context.Context, msg models.Outbound) error
}

// EmitterFunc adapts a function to Emitter.
type EmitterFunc func(ctx context.Context, msg models.Outbound) error

func (f EmitterFunc) Emit(ctx context.Context, msg models.Outbound) error {
	return f(ctx, msg)
}

type sessionTurn struct {
	mu    sync.Mutex // held for the whole turn
	state atomic.Int32
}

func (t *sessionTurn) set(state TurnState) {
	t.state.Store(int32(state))
}

// ChatHandler runs turns: retrieve, build prompt, generate, record.
// Turns of one session run strictly one after another; turns of different
// sessions run independently.
type ChatHandler struct {
	searcher  Searcher
	k         int
	builder   PromptBuilder
	completer llm.Completer
	memory    SessionMemory

	mu       sync.Mutex
	sessions map[string]*sessionTurn
}

func NewChatHandler(searcher Searcher, k int, builder PromptBuilder, completer llm.Completer, mem SessionMemory) *ChatHandler {
	if k <= 0 {
		k = retrieval.DefaultK
	}
	return &ChatHandler{
		searcher:  searcher,
		k:         k,
		builder:   builder,
		completer: completer,
		memory:    mem,
		sessions:  make(map[string]*sessionTurn),
	}
}

// NewSession starts a fresh session and returns its id.
func (h *ChatHandler) NewSession() string {
	return h.memory.StartNewSession()
}

// State reports where the session's current turn is. Sessions that never
// ran a turn are idle.
func (h *ChatHandler) State(sessionID string) TurnState {
	h.mu.Lock()
	turn, ok := h.sessions[sessionID]
	h.mu.Unlock()

	if !ok {
		return StateIdle
	}
	return TurnState(turn.state.Load())
}

// HandleUserMessage runs one turn for sessionID and returns the session the
// turn ran in. An empty sessionID starts a new session, announced with
// session_started before anything else. The emitted sequence is
// status:thinking, bot_message, status:idle.
//
// A failed generation is not an error: the apology becomes the answer and
// is recorded like any other. Errors come only from blank text or from
// emit failures.
func (h *ChatHandler) HandleUserMessage(ctx context.Context, sessionID, text string, emit Emitter) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return sessionID, ErrEmptyText
	}

	if sessionID == "" {
		sessionID = h.memory.StartNewSession()
		if err := emit.Emit(ctx, models.SessionStarted(sessionID)); err != nil {
			return sessionID, fmt.Errorf("failed to emit session start: %w", err)
		}
	}

	turn := h.turn(sessionID)
	turn.mu.Lock()
	defer func() {
		turn.set(StateIdle)
		turn.mu.Unlock()
	}()

	if err := emit.Emit(ctx, models.Status(sessionID, models.StatusThinking)); err != nil {
		return sessionID, fmt.Errorf("failed to emit thinking status: %w", err)
	}

	answer := h.answer(ctx, turn, sessionID, text)
	h.memory.AddMessage(ctx, sessionID, text, answer)

	if err := emit.Emit(ctx, models.BotMessage(sessionID, answer)); err != nil {
		return sessionID, fmt.Errorf("failed to emit answer: %w", err)
	}

	turn.set(StateIdle)
	if err := emit.Emit(ctx, models.Status(sessionID, models.StatusIdle)); err != nil {
		return sessionID, fmt.Errorf("failed to emit idle status: %w", err)
	}
	return sessionID, nil
}

// answer produces the text to record for the turn. Callers hold turn.mu.
func (h *ChatHandler) answer(ctx context.Context, turn *sessionTurn, sessionID, question string) string {
	turn.set(StateRetrieving)
	result := h.searcher.Search(ctx, question, h.k)
	slog.Debug("passages retrieved",
		"session", sessionID, "status", result.Status, "passages", len(result.Passages))

	turn.set(StatePrompting)
	prompt, err := h.builder.Build(question, h.memory.ContextForPrompt(sessionID), result.Passages)
	if err != nil {
		slog.Error("failed to build prompt", "session", sessionID, "err", err)
		return ApologyPrefix + err.Error()
	}

	turn.set(StateGenerating)
	answer, err := h.completer.Complete(ctx, prompt)
	if err != nil {
		slog.Error("generation failed", "session", sessionID, "err", err)
		return ApologyPrefix + err.Error()
	}

	slog.Info("turn answered", "session", sessionID, "answer_len", len(answer))
	return answer
}

func (h *ChatHandler) turn(sessionID string) *sessionTurn {
	h.mu.Lock()
	defer h.mu.Unlock()

	turn, ok := h.sessions[sessionID]
	if !ok {
		turn = &sessionTurn{}
		h.sessions[sessionID] = turn
	}
	return turn
}
