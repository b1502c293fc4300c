package services

import (
	"context"
	"fmt"
	"iter"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/MegaGrindStone/polaris/internal/chat"
	"github.com/ollama/ollama/api"
)

// DefaultOllamaHost is used when neither the configuration nor OLLAMA_HOST name a server.
const DefaultOllamaHost = "http://localhost:11434"

// Ollama provides an implementation of the chat service for models served by an Ollama instance. Ollama needs no
// credential, so opening a session never fails.
type Ollama struct {
	host   string
	model  string
	params LLMParameters

	client *api.Client

	logger *slog.Logger
}

type ollamaSession struct {
	Ollama
	persona string
	history history
}

// NewOllama creates a new Ollama instance with the specified host URL and model name.
func NewOllama(host, model string, params LLMParameters, logger *slog.Logger) (Ollama, error) {
	if host == "" {
		host = DefaultOllamaHost
	}
	u, err := url.Parse(host)
	if err != nil {
		return Ollama{}, fmt.Errorf("invalid ollama host %q: %w", host, err)
	}

	return Ollama{
		host:   host,
		model:  model,
		params: params,
		client: api.NewClient(u, &http.Client{}),
		logger: logger.With(slog.String("module", "ollama")),
	}, nil
}

// Open starts a conversation bound to persona.
func (o Ollama) Open(_ context.Context, persona string) (chat.Session, error) {
	return &ollamaSession{Ollama: o, persona: persona}, nil
}

// StreamReply streams the reply of the Ollama model. The response is forwarded chunk by chunk as the server
// produces it.
func (s *ollamaSession) StreamReply(ctx context.Context, text string) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		entries := s.history.with(text)
		msgs := make([]api.Message, 0, len(entries)+1)
		msgs = append(msgs, api.Message{
			Role:    roleSystem,
			Content: s.persona,
		})
		for _, e := range entries {
			msgs = append(msgs, api.Message{
				Role:    e.role,
				Content: e.content,
			})
		}

		t := true
		req := api.ChatRequest{
			Model:    s.model,
			Messages: msgs,
			Stream:   &t,
			Options:  s.options(),
		}

		ctx, cancel := context.WithCancel(ctx)
		defer cancel()

		var reply strings.Builder
		stopped := false
		if err := s.client.Chat(ctx, &req, func(res api.ChatResponse) error {
			if stopped || res.Message.Content == "" {
				return nil
			}
			reply.WriteString(res.Message.Content)
			if !yield(res.Message.Content, nil) {
				stopped = true
				cancel()
			}
			return nil
		}); err != nil {
			// Cancelling after the consumer stopped surfaces as an error; it is not one.
			if !stopped {
				yield("", fmt.Errorf("error sending request: %w", err))
			}
			return
		}
		if stopped {
			return
		}

		s.history.record(text, &reply)
	}
}

func (o Ollama) options() map[string]any {
	opts := map[string]any{}
	if o.params.Temperature != nil {
		opts["temperature"] = *o.params.Temperature
	}
	if o.params.TopP != nil {
		opts["top_p"] = *o.params.TopP
	}
	if o.params.MaxTokens != nil {
		opts["num_predict"] = *o.params.MaxTokens
	}
	if len(opts) == 0 {
		return nil
	}
	return opts
}
