package llm

import (
	"context"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"github.com/ashureev/caspchat/internal/domain"
)

// DefaultGeminiModel is used when no model name is configured.
const DefaultGeminiModel = "gemini-2.0-flash"

// Gemini generates replies with Google's Gemini API.
type Gemini struct {
	client       *genai.Client
	model        string
	systemPrompt string
}

// NewGemini creates a Gemini-backed model.
func NewGemini(ctx context.Context, apiKey, model, systemPrompt string) (*Gemini, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini API key is required")
	}
	if model == "" {
		model = DefaultGeminiModel
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}

	return &Gemini{
		client:       client,
		model:        model,
		systemPrompt: systemPrompt,
	}, nil
}

// Name returns the backend and model name.
func (g *Gemini) Name() string {
	return "gemini:" + g.model
}

// Generate sends the prior turns followed by prompt and returns the reply text.
func (g *Gemini) Generate(ctx context.Context, history []domain.Turn, prompt string) (string, error) {
	contents := Contents(history, prompt)

	var cfg *genai.GenerateContentConfig
	if g.systemPrompt != "" {
		cfg = &genai.GenerateContentConfig{
			SystemInstruction: genai.NewContentFromText(g.systemPrompt, genai.RoleUser),
		}
	}

	resp, err := g.client.Models.GenerateContent(ctx, g.model, contents, cfg)
	if err != nil {
		return "", fmt.Errorf("gemini generate failed: %w", err)
	}

	text := strings.TrimSpace(resp.Text())
	if text == "" {
		return "", ErrEmptyResponse
	}
	return text, nil
}

// Contents converts history and the current payload into Gemini contents.
func Contents(history []domain.Turn, prompt string) []*genai.Content {
	turns := conversation(history)
	contents := make([]*genai.Content, 0, len(turns)+1)
	for _, t := range turns {
		role := genai.Role(genai.RoleUser)
		if t.Role == domain.RoleAssistant {
			role = genai.RoleModel
		}
		contents = append(contents, genai.NewContentFromText(t.Text, role))
	}
	return append(contents, genai.NewContentFromText(prompt, genai.RoleUser))
}
