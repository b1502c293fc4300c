// Package services implements the hosted chat backends Polaris can talk to and the persistent transcript store.
package services

import (
	"strings"
)

// LLMParameters are optional sampling parameters shared by every backend. A nil field keeps the backend default.
type LLMParameters struct {
	Temperature *float32 `yaml:"temperature" mapstructure:"temperature"`
	TopP        *float32 `yaml:"topP" mapstructure:"topP"`
	MaxTokens   *int     `yaml:"maxTokens" mapstructure:"maxTokens"`
}

const (
	roleUser      = "user"
	roleAssistant = "assistant"
	roleSystem    = "system"
)

// historyEntry is one message of a session that has no server-side conversation state.
type historyEntry struct {
	role    string
	content string
}

// history collects the completed exchanges of a session. Only complete replies are recorded, so a failed or
// cancelled turn leaves no trace in what the model sees next.
type history struct {
	entries []historyEntry
}

func (h *history) with(text string) []historyEntry {
	entries := make([]historyEntry, 0, len(h.entries)+1)
	entries = append(entries, h.entries...)
	return append(entries, historyEntry{role: roleUser, content: text})
}

func (h *history) record(text string, reply *strings.Builder) {
	h.entries = append(h.entries,
		historyEntry{role: roleUser, content: text},
		historyEntry{role: roleAssistant, content: reply.String()},
	)
}
