package memory

import "strings"

const (
	// DefaultWindowSize is how many recent turns a Window retains.
	DefaultWindowSize = 10

	// DefaultPromptTurns is how many of the retained turns are rendered into
	// a prompt.
	DefaultPromptTurns = 5

	historyHeader = "=== RECENT CONVERSATION HISTORY ==="
	historyFooter = "=== END OF HISTORY ==="
)

// Window is a bounded FIFO of the most recent turns of one session.
// It is not safe for concurrent use; Manager guards it.
type Window struct {
	size     int
	messages []Message
}

// NewWindow creates a window keeping at most size turns.
func NewWindow(size int) *Window {
	if size <= 0 {
		size = DefaultWindowSize
	}
	return &Window{size: size}
}

// Append adds msg at the tail and evicts the oldest turns beyond the cap.
func (w *Window) Append(msg Message) {
	w.messages = append(w.messages, msg)
	if over := len(w.messages) - w.size; over > 0 {
		kept := make([]Message, w.size)
		copy(kept, w.messages[over:])
		w.messages = kept
	}
}

func (w *Window) Len() int {
	return len(w.messages)
}

func (w *Window) Size() int {
	return w.size
}

// Messages returns a copy of the retained turns, oldest first.
func (w *Window) Messages() []Message {
	out := make([]Message, len(w.messages))
	copy(out, w.messages)
	return out
}

// Render formats the last n turns as a labeled transcript framed by a
// header and footer. It returns "" when the window is empty.
func (w *Window) Render(n int) string {
	if len(w.messages) == 0 {
		return ""
	}
	if n <= 0 {
		n = DefaultPromptTurns
	}

	recent := w.messages
	if len(recent) > n {
		recent = recent[len(recent)-n:]
	}

	var builder strings.Builder
	builder.WriteString(historyHeader)
	builder.WriteString("\n")
	for _, msg := range recent {
		builder.WriteString("User: " + msg.User + "\n")
		builder.WriteString("AI: " + msg.AI + "\n")
		builder.WriteString("---\n")
	}
	builder.WriteString(historyFooter)

	return builder.String()
}
