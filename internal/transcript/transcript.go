// Package transcript holds the ordered conversation history shown to the user.
package transcript

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/MegaGrindStone/polaris/internal/models"
	"github.com/google/uuid"
)

// Store persists transcript messages. Implementations must return messages in insertion order.
type Store interface {
	Messages(ctx context.Context) ([]models.Message, error)
	AddMessage(ctx context.Context, message models.Message) error
	UpdateMessage(ctx context.Context, message models.Message) error
}

// EventKind describes how the transcript changed.
type EventKind int

const (
	// EventAppended is emitted when a message is added at the end of the transcript.
	EventAppended EventKind = iota
	// EventUpdated is emitted when the text or streaming flag of an existing message changes.
	EventUpdated
)

// Event notifies subscribers about one mutation. Fragment carries the appended text for text updates.
type Event struct {
	Kind     EventKind
	Message  models.Message
	Fragment string
}

// ErrNotFound is returned when an update addresses an identifier that is not in the transcript.
var ErrNotFound = errors.New("message not found")

// ErrFinished is returned when text is appended to a message that is no longer streaming.
var ErrFinished = errors.New("message is not streaming")

// Transcript is the ordered sequence of messages. It only grows at the end; existing messages are updated in
// place, addressed by identifier.
type Transcript struct {
	// writeMu serializes mutations together with their notifications.
	writeMu sync.Mutex

	mu       sync.Mutex
	messages []models.Message
	index    map[string]int

	subs   map[int]func(Event)
	nextID int

	store  Store
	logger *slog.Logger
	now    func() time.Time
}

// Option configures a Transcript.
type Option func(*Transcript)

// WithStore persists every mutation to store. Persistence failures are logged; the in-memory transcript stays
// authoritative.
func WithStore(store Store) Option {
	return func(t *Transcript) {
		t.store = store
	}
}

// WithClock overrides the clock used to timestamp new messages.
func WithClock(now func() time.Time) Option {
	return func(t *Transcript) {
		t.now = now
	}
}

// New creates an empty transcript.
func New(logger *slog.Logger, opts ...Option) *Transcript {
	t := &Transcript{
		index:  make(map[string]int),
		subs:   make(map[int]func(Event)),
		logger: logger.With(slog.String("module", "transcript")),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Load replaces the in-memory messages with the stored ones. Messages left streaming by an interrupted
// process are closed, since nobody is going to stream into them anymore. If nothing was stored, the welcome
// message is appended.
func (t *Transcript) Load(ctx context.Context) error {
	var stored []models.Message
	if t.store != nil {
		var err error
		stored, err = t.store.Messages(ctx)
		if err != nil {
			return fmt.Errorf("failed to load messages: %w", err)
		}
	}

	t.mu.Lock()
	t.messages = t.messages[:0]
	clear(t.index)
	var stale []models.Message
	for _, msg := range stored {
		if msg.Streaming {
			msg.Streaming = false
			stale = append(stale, msg)
		}
		t.index[msg.ID] = len(t.messages)
		t.messages = append(t.messages, msg)
	}
	empty := len(t.messages) == 0
	t.mu.Unlock()

	for _, msg := range stale {
		t.persistUpdate(msg)
	}

	if empty {
		t.Append(models.WelcomeMessage(t.now()))
	}
	return nil
}

// Messages returns a snapshot of the transcript in insertion order.
func (t *Transcript) Messages() []models.Message {
	t.mu.Lock()
	defer t.mu.Unlock()

	return slices.Clone(t.messages)
}

// Message returns the message with the given identifier.
func (t *Transcript) Message(id string) (models.Message, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	i, ok := t.index[id]
	if !ok {
		return models.Message{}, false
	}
	return t.messages[i], true
}

// Len returns the number of messages.
func (t *Transcript) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()

	return len(t.messages)
}

// Append adds msg at the end of the transcript and returns it. An empty ID is replaced by a fresh one and a zero
// timestamp by the current time.
func (t *Transcript) Append(msg models.Message) models.Message {
	if msg.ID == "" {
		msg.ID = uuid.New().String()
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = t.now()
	}

	t.writeMu.Lock()
	defer t.writeMu.Unlock()

	t.mu.Lock()
	t.index[msg.ID] = len(t.messages)
	t.messages = append(t.messages, msg)
	t.mu.Unlock()

	if t.store != nil {
		if err := t.store.AddMessage(context.Background(), msg); err != nil {
			t.logger.Error("Failed to persist message",
				slog.String("id", msg.ID),
				slog.String("error", err.Error()))
		}
	}

	t.publish(Event{Kind: EventAppended, Message: msg})
	return msg
}

// NewUserMessage appends a finished message authored by the user.
func (t *Transcript) NewUserMessage(text string) models.Message {
	return t.Append(models.Message{
		Text:   text,
		Sender: models.SenderUser,
	})
}

// NewBotPlaceholder appends an empty bot message that is waiting for streamed text.
func (t *Transcript) NewBotPlaceholder() models.Message {
	return t.Append(models.Message{
		Sender:    models.SenderBot,
		Streaming: true,
	})
}

// AppendText appends fragment to the text of the streaming message id.
func (t *Transcript) AppendText(id, fragment string) (models.Message, error) {
	t.writeMu.Lock()
	defer t.writeMu.Unlock()

	t.mu.Lock()
	i, ok := t.index[id]
	if !ok {
		t.mu.Unlock()
		return models.Message{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if !t.messages[i].Streaming {
		t.mu.Unlock()
		return models.Message{}, fmt.Errorf("%w: %s", ErrFinished, id)
	}
	t.messages[i].Text += fragment
	msg := t.messages[i]
	t.mu.Unlock()

	t.persistUpdate(msg)
	t.publish(Event{Kind: EventUpdated, Message: msg, Fragment: fragment})
	return msg, nil
}

// FinishStreaming clears the streaming flag of message id. The flag is cleared once; finishing a message twice
// returns ErrFinished.
func (t *Transcript) FinishStreaming(id string) (models.Message, error) {
	t.writeMu.Lock()
	defer t.writeMu.Unlock()

	t.mu.Lock()
	i, ok := t.index[id]
	if !ok {
		t.mu.Unlock()
		return models.Message{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if !t.messages[i].Streaming {
		t.mu.Unlock()
		return models.Message{}, fmt.Errorf("%w: %s", ErrFinished, id)
	}
	t.messages[i].Streaming = false
	msg := t.messages[i]
	t.mu.Unlock()

	t.persistUpdate(msg)
	t.publish(Event{Kind: EventUpdated, Message: msg})
	return msg, nil
}

// Subscribe registers fn to be called after every mutation, in mutation order. fn may read the transcript but
// must not mutate it. The returned function removes the subscription.
func (t *Transcript) Subscribe(fn func(Event)) func() {
	t.mu.Lock()
	defer t.mu.Unlock()

	id := t.nextID
	t.nextID++
	t.subs[id] = fn

	return func() {
		t.mu.Lock()
		defer t.mu.Unlock()
		delete(t.subs, id)
	}
}

func (t *Transcript) publish(e Event) {
	t.mu.Lock()
	ids := make([]int, 0, len(t.subs))
	for id := range t.subs {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	fns := make([]func(Event), 0, len(ids))
	for _, id := range ids {
		fns = append(fns, t.subs[id])
	}
	t.mu.Unlock()

	for _, fn := range fns {
		fn(e)
	}
}

func (t *Transcript) persistUpdate(msg models.Message) {
	if t.store == nil {
		return
	}
	if err := t.store.UpdateMessage(context.Background(), msg); err != nil {
		t.logger.Error("Failed to persist message update",
			slog.String("id", msg.ID),
			slog.String("error", err.Error()))
	}
}
