// Package chat wraps a hosted streaming chat service behind a single lazily created session.
package chat

import (
	"context"
	"errors"
	"iter"
)

// Service opens conversations against a hosted chat completion backend. The persona is the system instruction
// that every reply of the session is bound to.
type Service interface {
	Open(ctx context.Context, persona string) (Session, error)
}

// Session is a live conversation with the backend. StreamReply returns the reply to text as a sequence of text
// fragments in receipt order. A non-nil error ends the sequence.
type Session interface {
	StreamReply(ctx context.Context, text string) iter.Seq2[string, error]
}

// ErrMissingCredential is returned by a Service that cannot open a session because no credential is configured.
var ErrMissingCredential = errors.New("missing credential")

// Persona is the default system instruction of the assistant.
const Persona = `You are Polaris, an advanced AI assistant visualized as a floating blue sphere.
You are helpful, concise, and intelligent.
Your responses should be clean and formatted nicely.
You can use markdown.
When asked about your appearance, describe yourself as a perfect, glowing blue sphere of pure intelligence.`

// Diagnostics shown to the user in place of a reply.
const (
	DiagnosticUnavailable = "I cannot connect to my processing core right now. Please check my configuration and try again."
	DiagnosticFailure     = "I encountered a disturbance in my processing core. Please try again."
)
