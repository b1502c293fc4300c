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

// Anthropic provides an interface to the Anthropic API for large language model interactions. It handles
// streaming chat completions using Claude models.
type Anthropic struct {
	apiKey    string
	model     string
	maxTokens int
	params    LLMParameters
	endpoint  string

	client *http.Client

	logger *slog.Logger
}

type anthropicSession struct {
	Anthropic
	persona string
	history history
}

type anthropicChatRequest struct {
	Model       string             `json:"model"`
	Messages    []anthropicMessage `json:"messages"`
	System      string             `json:"system,omitempty"`
	MaxTokens   int                `json:"max_tokens"`
	Temperature *float32           `json:"temperature,omitempty"`
	TopP        *float32           `json:"top_p,omitempty"`
	Stream      bool               `json:"stream"`
}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicStreamResponse struct {
	Type  string `json:"type"`
	Delta struct {
		Text string `json:"text"`
	} `json:"delta"`
}

type anthropicError struct {
	Type  string `json:"type"`
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

const (
	anthropicAPIEndpoint      = "https://api.anthropic.com/v1"
	anthropicDefaultMaxTokens = 1024
)

// NewAnthropic creates a new Anthropic instance with the specified API key and model name. An empty endpoint
// uses the public API.
func NewAnthropic(apiKey, endpoint, model string, params LLMParameters, logger *slog.Logger) Anthropic {
	if endpoint == "" {
		endpoint = anthropicAPIEndpoint
	}
	maxTokens := anthropicDefaultMaxTokens
	if params.MaxTokens != nil {
		maxTokens = *params.MaxTokens
	}
	return Anthropic{
		apiKey:    apiKey,
		model:     model,
		maxTokens: maxTokens,
		params:    params,
		endpoint:  strings.TrimSuffix(endpoint, "/"),
		client:    &http.Client{},
		logger:    logger.With(slog.String("module", "anthropic")),
	}
}

// Open starts a conversation bound to persona.
func (a Anthropic) Open(_ context.Context, persona string) (chat.Session, error) {
	if a.apiKey == "" {
		return nil, fmt.Errorf("anthropic: %w", chat.ErrMissingCredential)
	}
	return &anthropicSession{Anthropic: a, persona: persona}, nil
}

// StreamReply streams the reply from the Anthropic messages API. The context can be used to cancel ongoing
// requests.
func (s *anthropicSession) StreamReply(ctx context.Context, text string) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		entries := s.history.with(text)
		msgs := make([]anthropicMessage, len(entries))
		for i, e := range entries {
			msgs[i] = anthropicMessage{
				Role:    e.role,
				Content: e.content,
			}
		}

		reqBody := anthropicChatRequest{
			Model:       s.model,
			Messages:    msgs,
			Stream:      true,
			System:      s.persona,
			MaxTokens:   s.maxTokens,
			Temperature: s.params.Temperature,
			TopP:        s.params.TopP,
		}

		jsonBody, err := json.Marshal(reqBody)
		if err != nil {
			yield("", fmt.Errorf("error marshaling request: %w", err))
			return
		}

		s.logger.Debug("Request Body", slog.String("body", string(jsonBody)))

		req, err := http.NewRequestWithContext(ctx, http.MethodPost,
			s.endpoint+"/messages", bytes.NewBuffer(jsonBody))
		if err != nil {
			yield("", fmt.Errorf("error creating request: %w", err))
			return
		}

		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("x-api-key", s.apiKey)
		req.Header.Set("anthropic-version", "2023-06-01")

		resp, err := s.client.Do(req)
		if err != nil {
			yield("", fmt.Errorf("error sending request: %w", err))
			return
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			body, _ := io.ReadAll(resp.Body)
			yield("", fmt.Errorf("unexpected status code: %d, body: %s", resp.StatusCode, string(body)))
			return
		}

		var reply strings.Builder
		for ev, err := range sse.Read(resp.Body, nil) {
			if err != nil {
				yield("", fmt.Errorf("error reading response: %w", err))
				return
			}
			switch ev.Type {
			case "error":
				var e anthropicError
				if err := json.Unmarshal([]byte(ev.Data), &e); err != nil {
					yield("", fmt.Errorf("error unmarshaling error: %w", err))
					return
				}
				yield("", fmt.Errorf("anthropic error %s: %s", e.Error.Type, e.Error.Message))
				return
			case "message_stop":
				s.history.record(text, &reply)
				return
			case "content_block_delta":
				var res anthropicStreamResponse
				if err := json.Unmarshal([]byte(ev.Data), &res); err != nil {
					yield("", fmt.Errorf("error unmarshaling response: %w", err))
					return
				}
				reply.WriteString(res.Delta.Text)
				if !yield(res.Delta.Text, nil) {
					return
				}
			default:
				continue
			}
		}
		yield("", errors.New("stream ended before message_stop"))
	}
}
