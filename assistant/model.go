package assistant

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	openai "github.com/sashabaranov/go-openai"
	"google.golang.org/api/option"
)

// Model answers one message given a system briefing.
type Model interface {
	Reply(ctx context.Context, system, message string) (string, error)
	Close() error
}

const (
	DefaultOpenAIModel = openai.GPT4oMini
	DefaultGeminiModel = "gemini-1.5-flash"
	maxReplyTokens     = 400
)

// New builds the model for provider ("openai" or "gemini"). An empty model
// name picks the provider default.
func New(ctx context.Context, provider, apiKey, model string) (Model, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("assistant: %s needs an API key", provider)
	}
	switch strings.ToLower(provider) {
	case "openai":
		if model == "" {
			model = DefaultOpenAIModel
		}
		return &openAIModel{client: openai.NewClient(apiKey), model: model}, nil
	case "gemini":
		if model == "" {
			model = DefaultGeminiModel
		}
		client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
		if err != nil {
			return nil, fmt.Errorf("assistant: create gemini client: %w", err)
		}
		return &geminiModel{client: client, model: model}, nil
	}
	return nil, fmt.Errorf("assistant: unsupported provider %q", provider)
}

// =============================================================================
// OPENAI
// =============================================================================

type openAIModel struct {
	client *openai.Client
	model  string
}

func (m *openAIModel) Reply(ctx context.Context, system, message string) (string, error) {
	resp, err := m.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:     m.model,
		MaxTokens: maxReplyTokens,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: system},
			{Role: openai.ChatMessageRoleUser, Content: message},
		},
	})
	if err != nil {
		return "", fmt.Errorf("openai: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", nil
	}
	return resp.Choices[0].Message.Content, nil
}

func (m *openAIModel) Close() error { return nil }

// =============================================================================
// GEMINI
// =============================================================================

type geminiModel struct {
	client *genai.Client
	model  string
}

func (m *geminiModel) Reply(ctx context.Context, system, message string) (string, error) {
	gm := m.client.GenerativeModel(m.model)
	gm.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(system)}}
	gm.SetTemperature(0.3)
	gm.SetMaxOutputTokens(maxReplyTokens)

	resp, err := gm.GenerateContent(ctx, genai.Text(message))
	if err != nil {
		return "", fmt.Errorf("gemini: %w", err)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", nil
	}
	var b strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if text, ok := part.(genai.Text); ok {
			b.WriteString(string(text))
		}
	}
	return b.String(), nil
}

func (m *geminiModel) Close() error { return m.client.Close() }
