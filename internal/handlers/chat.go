package handlers

import (
	"log/slog"
	"net/http"
)

// HandleMessages accepts a submission from the input box through the "message" form field.
//
// An accepted submission answers 202 Accepted and the reply is streamed in the background; the new messages
// and every fragment reach the page as SSE events. Blank input, or input sent while a reply is still streaming,
// is rejected silently with 204 No Content.
func (m Main) HandleMessages(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		m.logger.Error("Method not allowed", slog.String("method", r.Method))
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	turn, ok := m.controller.Submit(r.FormValue("message"))
	if !ok {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	go func() {
		outcome := turn.Run(m.turnCtx)
		m.logger.Info("Reply finished",
			slog.String("botMessageID", turn.BotMessageID),
			slog.String("outcome", outcome.String()))
	}()

	w.WriteHeader(http.StatusAccepted)
}

// HandleFocus reports that the input field gained focus.
func (m Main) HandleFocus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	m.controller.Focus()
	w.WriteHeader(http.StatusNoContent)
}

// HandleBlur reports that the input field lost focus.
func (m Main) HandleBlur(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	m.controller.Blur()
	w.WriteHeader(http.StatusNoContent)
}

// HandleSSE streams the conversation events to the browser.
func (m Main) HandleSSE(w http.ResponseWriter, r *http.Request) {
	m.sseSrv.ServeHTTP(w, r)
}
