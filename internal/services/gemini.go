package services

import (
	"context"
	"fmt"
	"iter"
	"log/slog"

	"github.com/MegaGrindStone/polaris/internal/chat"
	"google.golang.org/genai"
)

// Gemini opens chat sessions against the Google Gemini API. The conversation history is kept by the SDK chat.
type Gemini struct {
	apiKey  string
	baseURL string
	model   string
	params  LLMParameters

	logger *slog.Logger
}

type geminiSession struct {
	chat   *genai.Chat
	logger *slog.Logger
}

// NewGemini creates a Gemini service. An empty apiKey is accepted here and reported by Open. An empty baseURL
// keeps the SDK endpoint.
func NewGemini(apiKey, baseURL, model string, params LLMParameters, logger *slog.Logger) Gemini {
	return Gemini{
		apiKey:  apiKey,
		baseURL: baseURL,
		model:   model,
		params:  params,
		logger:  logger.With(slog.String("module", "gemini")),
	}
}

// Open creates a chat bound to persona.
func (g Gemini) Open(ctx context.Context, persona string) (chat.Session, error) {
	if g.apiKey == "" {
		return nil, fmt.Errorf("gemini: %w", chat.ErrMissingCredential)
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:      g.apiKey,
		Backend:     genai.BackendGeminiAPI,
		HTTPOptions: genai.HTTPOptions{BaseURL: g.baseURL},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}

	cfg := &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(persona, genai.RoleUser),
		Temperature:       g.params.Temperature,
		TopP:              g.params.TopP,
	}
	if g.params.MaxTokens != nil {
		cfg.MaxOutputTokens = int32(*g.params.MaxTokens)
	}

	cs, err := client.Chats.Create(ctx, g.model, cfg, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create chat: %w", err)
	}

	g.logger.Debug("Chat session created", slog.String("model", g.model))

	return geminiSession{chat: cs, logger: g.logger}, nil
}

// StreamReply sends text to the chat and yields the text of every streamed chunk.
func (s geminiSession) StreamReply(ctx context.Context, text string) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		for res, err := range s.chat.SendMessageStream(ctx, genai.Part{Text: text}) {
			if err != nil {
				yield("", fmt.Errorf("error receiving response: %w", err))
				return
			}
			if !yield(res.Text(), nil) {
				return
			}
		}
	}
}
