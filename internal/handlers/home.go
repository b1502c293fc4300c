package handlers

import (
	"log/slog"
	"net/http"

	"github.com/MegaGrindStone/polaris/internal/models"
)

type homePageData struct {
	Model    string
	State    models.OrbState
	Status   string
	Busy     bool
	Messages []messageView
}

// HandleHome renders the whole page: the orb in its current state and the transcript so far.
func (m Main) HandleHome(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	msgs := m.controller.Transcript().Messages()
	views := make([]messageView, 0, len(msgs))
	for _, msg := range msgs {
		view, err := m.messageView(msg)
		if err != nil {
			m.logger.Error("Failed to render message", slog.String(errLoggerKey, err.Error()))
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		views = append(views, view)
	}

	state := m.controller.State()
	data := homePageData{
		Model:    m.model,
		State:    state,
		Status:   state.StatusText(),
		Busy:     m.controller.Busy(),
		Messages: views,
	}

	if err := m.templates.ExecuteTemplate(w, "home.html", data); err != nil {
		m.logger.Error("Failed to execute home template", slog.String(errLoggerKey, err.Error()))
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
