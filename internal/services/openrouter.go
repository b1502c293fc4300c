package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"iter"
	"log/slog"
	"net/http"
	"strings"

	"github.com/MegaGrindStone/polaris/internal/chat"
	"github.com/tmaxmax/go-sse"
)

// OpenRouter provides an implementation of the chat service for OpenRouter's language models.
type OpenRouter struct {
	apiKey   string
	model    string
	params   LLMParameters
	endpoint string

	client *http.Client

	logger *slog.Logger
}

type openRouterSession struct {
	OpenRouter
	persona string
	history history
}

type openRouterChatRequest struct {
	Model       string              `json:"model"`
	Messages    []openRouterMessage `json:"messages"`
	Stream      bool                `json:"stream"`
	Temperature *float32            `json:"temperature,omitempty"`
	TopP        *float32            `json:"top_p,omitempty"`
	MaxTokens   *int                `json:"max_tokens,omitempty"`
}

type openRouterMessage struct {
	Role    string `json:"role"`
	Content string `json:"content,omitempty"`
}

type openRouterStreamingResponse struct {
	Choices []openRouterStreamingChoice `json:"choices"`
}

type openRouterStreamingChoice struct {
	Delta openRouterMessage `json:"delta"`
}

const (
	openRouterAPIEndpoint = "https://openrouter.ai/api/v1"
)

// NewOpenRouter creates a new OpenRouter instance with the specified API key and model name. An empty endpoint
// uses the public API.
func NewOpenRouter(apiKey, endpoint, model string, params LLMParameters, logger *slog.Logger) OpenRouter {
	if endpoint == "" {
		endpoint = openRouterAPIEndpoint
	}
	return OpenRouter{
		apiKey:   apiKey,
		model:    model,
		params:   params,
		endpoint: strings.TrimSuffix(endpoint, "/"),
		client:   &http.Client{},
		logger:   logger.With(slog.String("module", "openrouter")),
	}
}

// Open starts a conversation bound to persona.
func (o OpenRouter) Open(_ context.Context, persona string) (chat.Session, error) {
	if o.apiKey == "" {
		return nil, fmt.Errorf("openrouter: %w", chat.ErrMissingCredential)
	}
	return &openRouterSession{OpenRouter: o, persona: persona}, nil
}

// StreamReply streams the reply from the OpenRouter API. The context can be used to cancel ongoing requests.
func (s *openRouterSession) StreamReply(ctx context.Context, text string) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		resp, err := s.doRequest(ctx, text)
		if err != nil {
			yield("", fmt.Errorf("error sending request: %w", err))
			return
		}
		defer resp.Body.Close()

		var reply strings.Builder
		for ev, err := range sse.Read(resp.Body, nil) {
			if err != nil {
				yield("", fmt.Errorf("error reading response: %w", err))
				return
			}

			s.logger.Debug("Received event",
				slog.String("event", ev.Data),
			)

			if ev.Data == "[DONE]" {
				s.history.record(text, &reply)
				return
			}

			var res openRouterStreamingResponse
			if err := json.Unmarshal([]byte(ev.Data), &res); err != nil {
				yield("", fmt.Errorf("error unmarshaling response: %w", err))
				return
			}

			if len(res.Choices) == 0 {
				continue
			}

			content := res.Choices[0].Delta.Content
			if content == "" {
				continue
			}
			reply.WriteString(content)
			if !yield(content, nil) {
				return
			}
		}

		yield("", errors.New("stream ended before [DONE]"))
	}
}

func (s *openRouterSession) doRequest(ctx context.Context, text string) (*http.Response, error) {
	entries := s.history.with(text)
	msgs := make([]openRouterMessage, 0, len(entries)+1)
	msgs = append(msgs, openRouterMessage{
		Role:    roleSystem,
		Content: s.persona,
	})
	for _, e := range entries {
		msgs = append(msgs, openRouterMessage{
			Role:    e.role,
			Content: e.content,
		})
	}

	reqBody := openRouterChatRequest{
		Model:       s.model,
		Messages:    msgs,
		Stream:      true,
		Temperature: s.params.Temperature,
		TopP:        s.params.TopP,
		MaxTokens:   s.params.MaxTokens,
	}

	jsonBody, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("error marshaling request: %w", err)
	}

	s.logger.Debug("Request Body", slog.String("body", string(jsonBody)))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		s.endpoint+"/chat/completions", bytes.NewBuffer(jsonBody))
	if err != nil {
		return nil, fmt.Errorf("error creating request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+s.apiKey)
	req.Header.Set("HTTP-Referer", "https://github.com/MegaGrindStone/polaris/")
	req.Header.Set("X-Title", "Polaris")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		return nil, fmt.Errorf("unexpected status code: %d, body: %s", resp.StatusCode, string(body))
	}

	return resp, nil
}
