package chat

import (
	"context"
	"fmt"
	"log/slog"
)

// Client owns the session with the chat service. It is not safe for concurrent sends; callers serialize turns.
type Client struct {
	service Service
	persona string
	session Session

	logger *slog.Logger
}

// NewClient creates a client for service. No session is opened until Initialize or the first send.
func NewClient(service Service, persona string, logger *slog.Logger) *Client {
	if persona == "" {
		persona = Persona
	}
	return &Client{
		service: service,
		persona: persona,
		logger:  logger.With(slog.String("module", "chat")),
	}
}

// Initialize opens a new session and replaces the current one. On failure the error is logged, the client is
// left without a session, and false is returned.
func (c *Client) Initialize(ctx context.Context) bool {
	c.session = nil

	session, err := c.service.Open(ctx, c.persona)
	if err != nil {
		c.logger.Error("Failed to open chat session", slog.String("error", err.Error()))
		return false
	}

	c.session = session
	return true
}

// Ready reports whether a session is open.
func (c *Client) Ready() bool {
	return c.session != nil
}

// SendMessageStream returns the reply to text as a lazy stream. Nothing is sent until the stream is iterated.
//
// Without a session, one initialization is attempted per send; if it fails the stream yields
// DiagnosticUnavailable. A service error yields DiagnosticFailure after the fragments already delivered.
func (c *Client) SendMessageStream(ctx context.Context, text string) *Stream {
	return newStream(func(yield func(string) bool) (Outcome, error) {
		if c.session == nil && !c.Initialize(ctx) {
			yield(DiagnosticUnavailable)
			return OutcomeUnavailable, ErrNoSession
		}

		for fragment, err := range c.session.StreamReply(ctx, text) {
			if err != nil {
				if ctx.Err() != nil {
					return OutcomeCanceled, ctx.Err()
				}
				c.logger.Error("Error from chat service", slog.String("error", err.Error()))
				yield(DiagnosticFailure)
				return OutcomeFailed, fmt.Errorf("error streaming reply: %w", err)
			}
			if fragment == "" {
				continue
			}
			if !yield(fragment) {
				return OutcomeCanceled, nil
			}
		}
		if err := ctx.Err(); err != nil {
			return OutcomeCanceled, err
		}
		return OutcomeCompleted, nil
	})
}
