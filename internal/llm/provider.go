package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/llms"
)

// ErrGeneration wraps every failure of the generation backend.
var ErrGeneration = errors.New("generation failed")

// Completer turns a fully built prompt into answer text.
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// AnswerService sends prompts to a langchaingo model. It never retries.
type AnswerService struct {
	model   llms.Model
	options []llms.CallOption
}

func NewAnswerService(model llms.Model, options ...llms.CallOption) *AnswerService {
	return &AnswerService{
		model:   model,
		options: options,
	}
}

// Complete returns the model's text. Transport errors, quota errors, empty
// or malformed responses and panics inside the client all come back wrapped
// in ErrGeneration.
func (s *AnswerService) Complete(ctx context.Context, prompt string) (answer string, err error) {
	defer func() {
		if p := recover(); p != nil {
			answer, err = "", fmt.Errorf("%w: model client panicked: %v", ErrGeneration, p)
		}
	}()

	text, err := llms.GenerateFromSinglePrompt(ctx, s.model, prompt, s.options...)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrGeneration, err)
	}
	if strings.TrimSpace(text) == "" {
		return "", fmt.Errorf("%w: empty response from model", ErrGeneration)
	}
	return text, nil
}
