package models

import "time"

// Message represents an individual entry of the transcript. Text keeps growing while Streaming is true and is
// fixed once the reply that fills it has terminated.
type Message struct {
	ID        string    `json:"id"`
	Text      string    `json:"text"`
	Sender    Sender    `json:"sender"`
	Timestamp time.Time `json:"timestamp"`
	Streaming bool      `json:"streaming,omitempty"`
}

// Sender identifies who authored a message.
type Sender string

const (
	// SenderUser marks a message typed by the user.
	SenderUser Sender = "user"
	// SenderBot marks a message produced by the assistant, including diagnostics.
	SenderBot Sender = "bot"
)

// WelcomeMessageID is the fixed identifier of the greeting that opens an empty transcript.
const WelcomeMessageID = "welcome"

// WelcomeMessage returns the greeting the assistant shows before any exchange.
func WelcomeMessage(now time.Time) Message {
	return Message{
		ID:        WelcomeMessageID,
		Text:      "Systems online. I am Polaris. How may I assist you today?",
		Sender:    SenderBot,
		Timestamp: now,
	}
}

// IsUser reports whether the message was authored by the user.
func (m Message) IsUser() bool {
	return m.Sender == SenderUser
}
