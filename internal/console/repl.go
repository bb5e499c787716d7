// Package console runs the chat as an interactive terminal session.
package console

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/avvvet/skillbuddy-chat/internal/handlers"
	"github.com/avvvet/skillbuddy-chat/internal/models"
)

const helpText = `🤖 Commands:
  /new   - Start a new conversation
  /help  - Show this help
  quit   - Leave (also exit, bye)`

// Chat is the part of the orchestrator the REPL drives.
type Chat interface {
	NewSession() string
	HandleUserMessage(ctx context.Context, sessionID, text string, emit handlers.Emitter) (string, error)
}

// REPL reads one question per line and prints each answer.
type REPL struct {
	chat Chat
	in   io.Reader
	out  io.Writer

	sessionID string
}

func NewREPL(chat Chat, in io.Reader, out io.Writer) *REPL {
	return &REPL{chat: chat, in: in, out: out}
}

// Run starts a session and loops until quit, end of input or ctx is done.
func (r *REPL) Run(ctx context.Context) error {
	fmt.Fprintln(r.out, strings.Repeat("=", 50))
	fmt.Fprintln(r.out, "🧠 SKILLBUDDY CAREER CHAT (memory + knowledge base)")
	fmt.Fprintln(r.out, "Type /help for commands, 'quit' to leave")

	r.sessionID = r.chat.NewSession()
	fmt.Fprintf(r.out, "\n💬 Conversation started: %s\n", r.sessionID)

	scanner := bufio.NewScanner(r.in)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		fmt.Fprint(r.out, "\n🤔 You: ")
		if !scanner.Scan() {
			fmt.Fprintln(r.out)
			return scanner.Err()
		}

		line := strings.TrimSpace(scanner.Text())
		switch {
		case line == "":
			continue
		case isQuit(line):
			fmt.Fprintln(r.out, "👋 Goodbye! Your conversation has been saved.")
			return nil
		case strings.HasPrefix(line, "/"):
			fmt.Fprintf(r.out, "🤖 System: %s\n", r.command(line))
			continue
		}

		if err := r.ask(ctx, line); err != nil {
			fmt.Fprintf(r.out, "❌ Error: %v\n", err)
		}
	}
}

func (r *REPL) command(cmd string) string {
	switch cmd {
	case "/new":
		r.sessionID = r.chat.NewSession()
		return fmt.Sprintf("🆕 Started a new conversation: %s", r.sessionID)
	case "/help":
		return "\n" + helpText
	default:
		return fmt.Sprintf("❓ Invalid command: %s. Type /help to see the commands.", cmd)
	}
}

func (r *REPL) ask(ctx context.Context, question string) error {
	emit := handlers.EmitterFunc(func(ctx context.Context, msg models.Outbound) error {
		switch {
		case msg.Type == models.TypeStatus && msg.Status == models.StatusThinking:
			fmt.Fprintln(r.out, "🤖 Bot is thinking...")
		case msg.Type == models.TypeBotMessage:
			fmt.Fprintf(r.out, "🤖 Bot: %s\n", msg.Text)
		}
		return nil
	})

	sessionID, err := r.chat.HandleUserMessage(ctx, r.sessionID, question, emit)
	if sessionID != "" {
		r.sessionID = sessionID
	}
	return err
}

func isQuit(line string) bool {
	switch strings.ToLower(line) {
	case "quit", "exit", "bye":
		return true
	}
	return false
}
