package conversation_test

import (
	"context"
	"errors"
	"io"
	"iter"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/MegaGrindStone/polaris/internal/chat"
	"github.com/MegaGrindStone/polaris/internal/conversation"
	"github.com/MegaGrindStone/polaris/internal/models"
	"github.com/MegaGrindStone/polaris/internal/transcript"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockService struct {
	fragments []string
	err       error
	openErr   error

	// gate, when set, blocks the reply until it is closed.
	gate chan struct{}
}

func (m *mockService) Open(context.Context, string) (chat.Session, error) {
	if m.openErr != nil {
		return nil, m.openErr
	}
	return m, nil
}

func (m *mockService) StreamReply(_ context.Context, _ string) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		if m.gate != nil {
			<-m.gate
		}
		for _, f := range m.fragments {
			if !yield(f, nil) {
				return
			}
		}
		if m.err != nil {
			yield("", m.err)
		}
	}
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type recorder struct {
	mu         sync.Mutex
	states     []models.OrbState
	events     []transcript.Event
	focusAsked int
}

func newController(t *testing.T, svc chat.Service) (*conversation.Controller, *recorder) {
	t.Helper()

	tr := transcript.New(discardLogger())
	c := conversation.New(svc, "", tr, discardLogger())

	rec := &recorder{states: []models.OrbState{c.State()}}
	c.Subscribe(func(t conversation.Transition) {
		rec.mu.Lock()
		defer rec.mu.Unlock()
		rec.states = append(rec.states, t.To)
	})
	tr.Subscribe(func(e transcript.Event) {
		rec.mu.Lock()
		defer rec.mu.Unlock()
		rec.events = append(rec.events, e)
	})
	c.OnFocusRequest(func() {
		rec.mu.Lock()
		defer rec.mu.Unlock()
		rec.focusAsked++
	})
	return c, rec
}

func TestSendStreamsReply(t *testing.T) {
	c, rec := newController(t, &mockService{fragments: []string{"Hi", " there", "!"}})

	outcome, ok := c.Send(context.Background(), "  Hello  ")
	require.True(t, ok)
	assert.Equal(t, chat.OutcomeCompleted, outcome)

	msgs := c.Transcript().Messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, models.SenderUser, msgs[0].Sender)
	assert.Equal(t, "Hello", msgs[0].Text)
	assert.Equal(t, models.SenderBot, msgs[1].Sender)
	assert.Equal(t, "Hi there!", msgs[1].Text)
	assert.False(t, msgs[1].Streaming)

	assert.Equal(t, []models.OrbState{
		models.OrbIdle, models.OrbThinking, models.OrbSpeaking, models.OrbIdle,
	}, rec.states)
	assert.Equal(t, models.OrbIdle, c.State())
	assert.False(t, c.Busy())
	assert.Equal(t, 1, rec.focusAsked)
}

func TestStreamingFlagLifecycle(t *testing.T) {
	c, rec := newController(t, &mockService{fragments: []string{"a", "b"}})

	_, ok := c.Send(context.Background(), "Hello")
	require.True(t, ok)

	// user append, placeholder append, two fragments, finish
	require.Len(t, rec.events, 5)
	for i, e := range rec.events[1:4] {
		assert.True(t, e.Message.Streaming, "event %d should still be streaming", i+1)
	}
	assert.Equal(t, "a", rec.events[2].Fragment)
	assert.Equal(t, "b", rec.events[3].Fragment)
	assert.False(t, rec.events[4].Message.Streaming)
	assert.Equal(t, "ab", rec.events[4].Message.Text)
}

func TestSubmitRejectsBlankInput(t *testing.T) {
	for _, input := range []string{"", "   ", "\n\t"} {
		c, rec := newController(t, &mockService{})

		_, ok := c.Submit(input)
		assert.False(t, ok, "input %q", input)
		assert.Zero(t, c.Transcript().Len())
		assert.Equal(t, []models.OrbState{models.OrbIdle}, rec.states)
		assert.Empty(t, rec.events)
	}
}

func TestSubmitRejectsWhileInFlight(t *testing.T) {
	svc := &mockService{fragments: []string{"done"}, gate: make(chan struct{})}
	c, rec := newController(t, svc)

	turn, ok := c.Submit("first")
	require.True(t, ok)

	done := make(chan chat.Outcome)
	go func() { done <- turn.Run(context.Background()) }()
	require.Eventually(t, func() bool { return c.State() == models.OrbSpeaking }, time.Second, time.Millisecond)

	eventsBefore := c.Transcript().Len()
	rec.mu.Lock()
	statesBefore := len(rec.states)
	rec.mu.Unlock()

	_, ok = c.Submit("second")
	assert.False(t, ok)
	assert.True(t, c.Busy())
	assert.Equal(t, eventsBefore, c.Transcript().Len())
	rec.mu.Lock()
	assert.Equal(t, statesBefore, len(rec.states))
	rec.mu.Unlock()

	close(svc.gate)
	assert.Equal(t, chat.OutcomeCompleted, <-done)

	_, ok = c.Send(context.Background(), "third")
	assert.True(t, ok, "a new turn is accepted once the previous one terminated")
}

func TestSendWithoutCredential(t *testing.T) {
	c, rec := newController(t, &mockService{openErr: chat.ErrMissingCredential})
	assert.False(t, c.Initialize(context.Background()))

	outcome, ok := c.Send(context.Background(), "Hello")
	require.True(t, ok)
	assert.Equal(t, chat.OutcomeUnavailable, outcome)

	msgs := c.Transcript().Messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, chat.DiagnosticUnavailable, msgs[1].Text)
	assert.False(t, msgs[1].Streaming)
	assert.Equal(t, models.OrbIdle, c.State())
	assert.Equal(t, models.OrbIdle, rec.states[len(rec.states)-1])
}

func TestSendServiceFailure(t *testing.T) {
	c, _ := newController(t, &mockService{fragments: []string{"Par"}, err: errors.New("boom")})

	outcome, ok := c.Send(context.Background(), "Hello")
	require.True(t, ok)
	assert.Equal(t, chat.OutcomeFailed, outcome)

	msg, found := c.Transcript().Message(c.Transcript().Messages()[1].ID)
	require.True(t, found)
	assert.Equal(t, "Par"+chat.DiagnosticFailure, msg.Text)
	assert.False(t, msg.Streaming)
	assert.Equal(t, models.OrbIdle, c.State())
}

func TestFocusAndBlur(t *testing.T) {
	c, rec := newController(t, &mockService{fragments: []string{"x"}})

	assert.True(t, c.Focus())
	assert.Equal(t, models.OrbListening, c.State())
	assert.False(t, c.Focus())
	assert.True(t, c.Blur())
	assert.Equal(t, models.OrbIdle, c.State())

	c.Focus()
	_, ok := c.Send(context.Background(), "hi")
	require.True(t, ok)

	assert.Equal(t, []models.OrbState{
		models.OrbIdle, models.OrbListening, models.OrbIdle,
		models.OrbListening, models.OrbThinking, models.OrbSpeaking, models.OrbIdle,
	}, rec.states)
}

func TestDraft(t *testing.T) {
	c, _ := newController(t, &mockService{fragments: []string{"x"}})

	c.SetDraft("   ")
	_, ok := c.SubmitDraft()
	assert.False(t, ok)
	assert.Equal(t, "   ", c.Draft(), "rejected input stays in the buffer")

	c.SetDraft("Hello")
	turn, ok := c.SubmitDraft()
	require.True(t, ok)
	assert.Empty(t, c.Draft())
	assert.Equal(t, "Hello", turn.Text)

	first := turn.Run(context.Background())
	assert.Equal(t, first, turn.Run(context.Background()))
	assert.Equal(t, 2, c.Transcript().Len())
}
