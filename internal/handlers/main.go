package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"html/template"
	"log/slog"
	"strings"
	"time"

	"github.com/MegaGrindStone/polaris"
	"github.com/MegaGrindStone/polaris/internal/conversation"
	"github.com/MegaGrindStone/polaris/internal/models"
	"github.com/MegaGrindStone/polaris/internal/orb"
	"github.com/MegaGrindStone/polaris/internal/render"
	"github.com/MegaGrindStone/polaris/internal/transcript"
	"github.com/tmaxmax/go-sse"
)

// Main serves the Polaris page and pushes every change of the conversation to the browser through server-sent
// events. It only renders: state changes come from the conversation controller it subscribes to.
type Main struct {
	sseSrv    *sse.Server
	templates *template.Template

	controller *conversation.Controller
	renderer   render.Renderer
	driver     *orb.Driver
	model      string

	// turnCtx bounds the replies streamed in the background.
	turnCtx    context.Context
	cancelTurn context.CancelFunc

	unsubscribe []func()

	logger *slog.Logger
}

// Options tunes the presentation.
type Options struct {
	// Model is the model name shown in the header.
	Model string
	// FrameInterval is the period of the orb animation frames.
	FrameInterval time.Duration
}

// SSE event types for real-time updates.
var (
	messageSSEType = sse.Type("messages")
	stateSSEType   = sse.Type("state")
	orbSSEType     = sse.Type("orb")
	focusSSEType   = sse.Type("focus")
)

const errLoggerKey = "error"

// NewMain creates a new Main instance for the given controller. It parses the HTML templates from the embedded
// filesystem, subscribes to the transcript, the orb state machine and focus requests, and starts the orb
// animation.
func NewMain(
	controller *conversation.Controller,
	renderer render.Renderer,
	opts Options,
	logger *slog.Logger,
) (Main, error) {
	// We parse templates from three distinct directories to separate layout, pages, and partial views
	tmpl, err := template.ParseFS(
		polaris.TemplateFS,
		"templates/layout/*.html",
		"templates/pages/*.html",
		"templates/partials/*.html",
	)
	if err != nil {
		return Main{}, err
	}

	turnCtx, cancelTurn := context.WithCancel(context.Background())

	m := Main{
		sseSrv: &sse.Server{
			OnSession: func(s *sse.Session) (sse.Subscription, bool) {
				return sse.Subscription{
					Client:      s,
					LastEventID: s.LastEventID,
					Topics:      []string{sse.DefaultTopic},
				}, true
			},
		},
		templates:  tmpl,
		controller: controller,
		renderer:   renderer,
		model:      opts.Model,
		turnCtx:    turnCtx,
		cancelTurn: cancelTurn,
		logger:     logger.With(slog.String("module", "main")),
	}
	m.driver = orb.NewDriver(opts.FrameInterval, m.publishFrame)

	m.unsubscribe = append(m.unsubscribe,
		controller.Transcript().Subscribe(m.publishMessage),
		controller.Subscribe(m.onTransition),
		controller.OnFocusRequest(m.publishFocus),
	)

	m.driver.Start(controller.State())

	return m, nil
}

// Shutdown gracefully terminates the Main instance. It cancels any reply still streaming, stops the orb
// animation, broadcasts a close message to all connected clients and waits up to 5 seconds for connections to
// terminate.
func (m Main) Shutdown(ctx context.Context) error {
	m.driver.Close()
	m.cancelTurn()
	for _, unsubscribe := range m.unsubscribe {
		unsubscribe()
	}

	e := &sse.Message{Type: sse.Type("close")}
	// Browsers drop events without data
	e.AppendData("bye")

	// We ignore the error here since we're shutting down anyway
	_ = m.sseSrv.Publish(e)

	ctx, cancel := context.WithTimeout(ctx, time.Second*5)
	defer cancel()

	return m.sseSrv.Shutdown(ctx)
}

type messageView struct {
	ID        string
	Sender    string
	IsUser    bool
	HTML      template.HTML
	Streaming bool
	Timestamp time.Time
}

type statePayload struct {
	State  models.OrbState `json:"state"`
	Status string          `json:"status"`
	Busy   bool            `json:"busy"`
}

func (m Main) messageView(msg models.Message) (messageView, error) {
	html, err := m.renderer.Render(msg.Text)
	if err != nil {
		return messageView{}, fmt.Errorf("failed to render message %s: %w", msg.ID, err)
	}
	return messageView{
		ID:        msg.ID,
		Sender:    string(msg.Sender),
		IsUser:    msg.IsUser(),
		HTML:      html,
		Streaming: msg.Streaming,
		Timestamp: msg.Timestamp,
	}, nil
}

func (m Main) publishMessage(e transcript.Event) {
	view, err := m.messageView(e.Message)
	if err != nil {
		m.logger.Error("Failed to render message", slog.String(errLoggerKey, err.Error()))
		return
	}

	var sb strings.Builder
	if err := m.templates.ExecuteTemplate(&sb, "chat_message", view); err != nil {
		m.logger.Error("Failed to execute chat_message template",
			slog.String("id", e.Message.ID),
			slog.String(errLoggerKey, err.Error()))
		return
	}

	msg := &sse.Message{Type: messageSSEType}
	msg.AppendData(sb.String())
	m.publish("messages", msg)
}

func (m Main) onTransition(t conversation.Transition) {
	m.logger.Debug("Orb state changed",
		slog.String("from", t.From.String()),
		slog.String("to", t.To.String()),
		slog.String("event", string(t.Event)))

	m.driver.Start(t.To)

	payload, err := json.Marshal(statePayload{
		State:  t.To,
		Status: t.To.StatusText(),
		Busy:   t.To == models.OrbThinking || t.To == models.OrbSpeaking,
	})
	if err != nil {
		m.logger.Error("Failed to marshal state", slog.String(errLoggerKey, err.Error()))
		return
	}

	msg := &sse.Message{Type: stateSSEType}
	msg.AppendData(string(payload))
	m.publish("state", msg)
}

func (m Main) publishFocus() {
	msg := &sse.Message{Type: focusSSEType}
	msg.AppendData("input")
	m.publish("focus", msg)
}

func (m Main) publishFrame(f orb.Frame) {
	payload, err := json.Marshal(f)
	if err != nil {
		return
	}
	msg := &sse.Message{Type: orbSSEType}
	msg.AppendData(string(payload))
	// Frames are frequent and disposable, so a failed publish is not worth more than a debug line.
	if err := m.sseSrv.Publish(msg); err != nil {
		m.logger.Debug("Failed to publish orb frame", slog.String(errLoggerKey, err.Error()))
	}
}

func (m Main) publish(eventType string, msg *sse.Message) {
	if err := m.sseSrv.Publish(msg); err != nil {
		m.logger.Warn("Failed to publish event",
			slog.String("type", eventType),
			slog.String(errLoggerKey, err.Error()))
	}
}
