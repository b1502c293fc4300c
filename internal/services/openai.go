package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"iter"
	"log/slog"
	"strings"

	"github.com/MegaGrindStone/polaris/internal/chat"
	goopenai "github.com/sashabaranov/go-openai"
)

// OpenAI provides an implementation of the chat service for OpenAI's language models, or any server speaking the
// same API when a base URL is given.
type OpenAI struct {
	apiKey string
	model  string
	params LLMParameters

	client *goopenai.Client

	logger *slog.Logger
}

type openAISession struct {
	OpenAI
	persona string
	history history
}

// NewOpenAI creates a new OpenAI instance with the specified API key, base URL and model name. An empty baseURL
// uses the public endpoint.
func NewOpenAI(apiKey, baseURL, model string, params LLMParameters, logger *slog.Logger) OpenAI {
	cfg := goopenai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return OpenAI{
		apiKey: apiKey,
		model:  model,
		params: params,
		client: goopenai.NewClientWithConfig(cfg),
		logger: logger.With(slog.String("module", "openai")),
	}
}

// Open starts a conversation bound to persona. The history lives in the returned session.
func (o OpenAI) Open(_ context.Context, persona string) (chat.Session, error) {
	if o.apiKey == "" {
		return nil, fmt.Errorf("openai: %w", chat.ErrMissingCredential)
	}
	return &openAISession{OpenAI: o, persona: persona}, nil
}

// StreamReply is a wrapper around the OpenAI chat completion streaming API.
func (s *openAISession) StreamReply(ctx context.Context, text string) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		entries := s.history.with(text)
		msgs := make([]goopenai.ChatCompletionMessage, 0, len(entries)+1)
		msgs = append(msgs, goopenai.ChatCompletionMessage{
			Role:    goopenai.ChatMessageRoleSystem,
			Content: s.persona,
		})
		for _, e := range entries {
			msgs = append(msgs, goopenai.ChatCompletionMessage{
				Role:    e.role,
				Content: e.content,
			})
		}

		req := s.chatRequest(msgs)

		reqJSON, err := json.Marshal(req)
		if err == nil {
			s.logger.Debug("Request", slog.String("req", string(reqJSON)))
		}

		ctx, cancel := context.WithCancel(ctx)
		defer cancel()

		stream, err := s.client.CreateChatCompletionStream(ctx, req)
		if err != nil {
			yield("", fmt.Errorf("error sending request: %w", err))
			return
		}
		defer stream.Close()

		var reply strings.Builder
		for {
			response, err := stream.Recv()
			if err != nil {
				if errors.Is(err, io.EOF) {
					break
				}
				yield("", fmt.Errorf("error receiving response: %w", err))
				return
			}

			if len(response.Choices) == 0 {
				continue
			}

			content := response.Choices[0].Delta.Content
			if content == "" {
				continue
			}
			reply.WriteString(content)
			if !yield(content, nil) {
				return
			}
		}

		s.history.record(text, &reply)
	}
}

func (o OpenAI) chatRequest(messages []goopenai.ChatCompletionMessage) goopenai.ChatCompletionRequest {
	req := goopenai.ChatCompletionRequest{
		Model:    o.model,
		Messages: messages,
		Stream:   true,
	}

	if o.params.Temperature != nil {
		req.Temperature = *o.params.Temperature
	}
	if o.params.TopP != nil {
		req.TopP = *o.params.TopP
	}
	if o.params.MaxTokens != nil {
		req.MaxTokens = *o.params.MaxTokens
	}

	return req
}
