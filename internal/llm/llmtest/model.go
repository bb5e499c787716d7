// Package llmtest provides a scripted langchaingo model for tests.
package llmtest

import (
	"context"
	"errors"
	"sync"

	"github.com/tmc/langchaingo/llms"
)

// ErrScriptExhausted is returned when more calls arrive than were scripted
// and no fallback is set.
var ErrScriptExhausted = errors.New("llmtest: no scripted response left")

// Reply is one scripted outcome.
type Reply struct {
	Text  string
	Err   error
	Panic any

	// Block, when set, is waited on before replying.
	Block <-chan struct{}
}

// Model implements llms.Model by replaying Replies in order.
type Model struct {
	mu       sync.Mutex
	replies  []Reply
	fallback *Reply
	prompts  []string
}

// New creates a model returning replies in order.
func New(replies ...Reply) *Model {
	return &Model{replies: replies}
}

// Always creates a model returning text for every call.
func Always(text string) *Model {
	return &Model{fallback: &Reply{Text: text}}
}

// Failing creates a model failing every call with err.
func Failing(err error) *Model {
	return &Model{fallback: &Reply{Err: err}}
}

// Prompts returns every prompt received, in order.
func (m *Model) Prompts() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]string, len(m.prompts))
	copy(out, m.prompts)
	return out
}

func (m *Model) next(prompt string) Reply {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.prompts = append(m.prompts, prompt)
	if len(m.replies) > 0 {
		r := m.replies[0]
		m.replies = m.replies[1:]
		return r
	}
	if m.fallback != nil {
		return *m.fallback
	}
	return Reply{Err: ErrScriptExhausted}
}

func (m *Model) GenerateContent(ctx context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error) {
	var prompt string
	for _, msg := range messages {
		for _, part := range msg.Parts {
			if text, ok := part.(llms.TextContent); ok {
				prompt += text.Text
			}
		}
	}

	r := m.next(prompt)
	if r.Block != nil {
		select {
		case <-r.Block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if r.Panic != nil {
		panic(r.Panic)
	}
	if r.Err != nil {
		return nil, r.Err
	}
	return &llms.ContentResponse{
		Choices: []*llms.ContentChoice{{Content: r.Text}},
	}, nil
}

func (m *Model) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	return llms.GenerateFromSinglePrompt(ctx, m, prompt, options...)
}
