// Package conversation drives a chat turn: it validates input, records messages in the transcript, streams the
// reply and moves the orb through its states.
package conversation

import (
	"context"
	"log/slog"
	"strings"
	"sync"

	"github.com/MegaGrindStone/polaris/internal/chat"
	"github.com/MegaGrindStone/polaris/internal/models"
	"github.com/MegaGrindStone/polaris/internal/transcript"
)

// Controller connects the input box, the transcript, the chat client and the orb state machine. It owns the chat
// session; nothing else can reach it.
type Controller struct {
	mu       sync.Mutex
	inFlight bool
	draft    string

	machine    *Machine
	transcript *transcript.Transcript
	client     *chat.Client

	focusMu     sync.Mutex
	focusSubs   map[int]func()
	nextFocusID int

	logger *slog.Logger
}

// Turn is one accepted submission. Every turn returned by Submit must be run exactly once, since no other
// submission is accepted until it terminates.
type Turn struct {
	Text          string
	UserMessageID string
	BotMessageID  string

	c       *Controller
	once    sync.Once
	outcome chat.Outcome
}

const errLoggerKey = "error"

// New creates a controller that talks to service with the given persona and records the conversation in tr.
func New(service chat.Service, persona string, tr *transcript.Transcript, logger *slog.Logger) *Controller {
	return &Controller{
		machine:    NewMachine(),
		transcript: tr,
		client:     chat.NewClient(service, persona, logger),
		focusSubs:  make(map[int]func()),
		logger:     logger.With(slog.String("module", "conversation")),
	}
}

// Initialize opens a fresh chat session, replacing the current one. It is refused while a turn is in flight. A
// failure is not fatal: the next send retries once and reports a diagnostic if the session is still missing.
func (c *Controller) Initialize(ctx context.Context) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.inFlight {
		c.logger.Warn("Refusing to replace the chat session while a reply is streaming")
		return false
	}
	return c.client.Initialize(ctx)
}

// State returns the active orb state.
func (c *Controller) State() models.OrbState {
	return c.machine.State()
}

// Busy reports whether a turn is in flight.
func (c *Controller) Busy() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.inFlight
}

// Transcript returns the transcript the controller writes to.
func (c *Controller) Transcript() *transcript.Transcript {
	return c.transcript
}

// Subscribe registers fn for every orb state transition. fn must not call back into the controller's input
// methods.
func (c *Controller) Subscribe(fn func(Transition)) func() {
	return c.machine.Subscribe(fn)
}

// OnFocusRequest registers fn to be called when a turn terminates and the input field should regain focus.
func (c *Controller) OnFocusRequest(fn func()) func() {
	c.focusMu.Lock()
	defer c.focusMu.Unlock()

	id := c.nextFocusID
	c.nextFocusID++
	c.focusSubs[id] = fn

	return func() {
		c.focusMu.Lock()
		defer c.focusMu.Unlock()
		delete(c.focusSubs, id)
	}
}

// Focus reports that the input field gained focus. The orb moves to Listening only from Idle.
func (c *Controller) Focus() bool {
	_, ok := c.machine.Fire(EventFocus)
	return ok
}

// Blur reports that the input field lost focus. The orb returns to Idle only from Listening, which is never the
// case while a turn is in flight.
func (c *Controller) Blur() bool {
	_, ok := c.machine.Fire(EventBlur)
	return ok
}

// SetDraft replaces the content of the input buffer.
func (c *Controller) SetDraft(text string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.draft = text
}

// Draft returns the content of the input buffer.
func (c *Controller) Draft() string {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.draft
}

// SubmitDraft submits the input buffer.
func (c *Controller) SubmitDraft() (*Turn, bool) {
	return c.Submit(c.Draft())
}

// Submit accepts input as a new turn. Input that is empty after trimming, or that arrives while another turn is
// in flight, is rejected without touching the transcript or the orb.
//
// On acceptance the orb moves to Thinking, the user message and an empty streaming bot message are appended,
// and the input buffer is cleared. The reply is streamed by Turn.Run.
func (c *Controller) Submit(input string) (*Turn, bool) {
	text := strings.TrimSpace(input)

	c.mu.Lock()
	if text == "" || c.inFlight {
		c.mu.Unlock()
		return nil, false
	}
	c.inFlight = true
	c.mu.Unlock()

	c.machine.Fire(EventSubmit)
	user := c.transcript.NewUserMessage(text)
	bot := c.transcript.NewBotPlaceholder()

	c.mu.Lock()
	c.draft = ""
	c.mu.Unlock()

	c.logger.Debug("Turn accepted",
		slog.String("userMessageID", user.ID),
		slog.String("botMessageID", bot.ID))

	return &Turn{
		Text:          text,
		UserMessageID: user.ID,
		BotMessageID:  bot.ID,
		c:             c,
	}, true
}

// Send submits input and streams the reply to completion. It returns false if the input was rejected.
func (c *Controller) Send(ctx context.Context, input string) (chat.Outcome, bool) {
	turn, ok := c.Submit(input)
	if !ok {
		return chat.OutcomePending, false
	}
	return turn.Run(ctx), true
}

// Run streams the reply into the bot message. Whatever the outcome, the bot message stops streaming, the orb
// returns to Idle and focus is requested for the next entry. Later calls return the first outcome.
func (t *Turn) Run(ctx context.Context) chat.Outcome {
	t.once.Do(func() {
		t.outcome = t.c.stream(ctx, t)
	})
	return t.outcome
}

func (c *Controller) stream(ctx context.Context, t *Turn) chat.Outcome {
	defer c.finish()

	stream := c.client.SendMessageStream(ctx, t.Text)
	c.machine.Fire(EventDispatch)

	for fragment := range stream.Fragments() {
		if _, err := c.transcript.AppendText(t.BotMessageID, fragment); err != nil {
			c.logger.Error("Failed to append fragment",
				slog.String("botMessageID", t.BotMessageID),
				slog.String(errLoggerKey, err.Error()))
		}
	}

	if _, err := c.transcript.FinishStreaming(t.BotMessageID); err != nil {
		c.logger.Error("Failed to finish message",
			slog.String("botMessageID", t.BotMessageID),
			slog.String(errLoggerKey, err.Error()))
	}

	outcome := stream.Outcome()
	if err := stream.Err(); err != nil {
		c.logger.Warn("Turn ended without a complete reply",
			slog.String("outcome", outcome.String()),
			slog.String(errLoggerKey, err.Error()))
	} else {
		c.logger.Debug("Turn completed", slog.String("outcome", outcome.String()))
	}
	return outcome
}

func (c *Controller) finish() {
	c.machine.Fire(EventFinish)

	c.mu.Lock()
	c.inFlight = false
	c.mu.Unlock()

	c.focusMu.Lock()
	fns := make([]func(), 0, len(c.focusSubs))
	for id := 0; id < c.nextFocusID; id++ {
		if fn, ok := c.focusSubs[id]; ok {
			fns = append(fns, fn)
		}
	}
	c.focusMu.Unlock()

	for _, fn := range fns {
		fn()
	}
}
