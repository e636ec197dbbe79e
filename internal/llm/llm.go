// Package llm talks to the language model that drives the conversation.
package llm

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/ashureev/caspchat/internal/domain"
)

//go:embed prompts/system.md
var defaultSystemPrompt string

// ErrEmptyResponse is returned when the model produces no text.
var ErrEmptyResponse = errors.New("model returned an empty response")

// Model produces the next assistant utterance from the conversation so far
// and the decorated user payload for this round.
type Model interface {
	Generate(ctx context.Context, history []domain.Turn, prompt string) (string, error)
}

// DefaultSystemPrompt returns the built-in system instruction.
func DefaultSystemPrompt() string {
	return defaultSystemPrompt
}

// LoadSystemPrompt reads the system instruction from path, falling back to
// the built-in prompt when path is empty.
func LoadSystemPrompt(path string) (string, error) {
	if path == "" {
		return defaultSystemPrompt, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read system prompt: %w", err)
	}
	prompt := strings.TrimSpace(string(data))
	if prompt == "" {
		return "", fmt.Errorf("system prompt %s is empty", path)
	}
	return prompt, nil
}

// conversation drops leading assistant turns: chat models expect the first
// content to come from the user.
func conversation(history []domain.Turn) []domain.Turn {
	for i, t := range history {
		if t.Role == domain.RoleUser {
			return history[i:]
		}
	}
	return nil
}
