package conversation_test

import (
	"testing"

	"github.com/MegaGrindStone/polaris/internal/conversation"
	"github.com/MegaGrindStone/polaris/internal/models"
	"github.com/stretchr/testify/assert"
)

func TestMachineTable(t *testing.T) {
	tests := []struct {
		name   string
		events []conversation.Event
		want   models.OrbState
		fired  []bool
	}{
		{
			name:   "Focus then blur",
			events: []conversation.Event{conversation.EventFocus, conversation.EventBlur},
			want:   models.OrbIdle,
			fired:  []bool{true, true},
		},
		{
			name:   "Blur while idle is ignored",
			events: []conversation.Event{conversation.EventBlur},
			want:   models.OrbIdle,
			fired:  []bool{false},
		},
		{
			name: "Full turn from listening",
			events: []conversation.Event{
				conversation.EventFocus, conversation.EventSubmit, conversation.EventDispatch, conversation.EventFinish,
			},
			want:  models.OrbIdle,
			fired: []bool{true, true, true, true},
		},
		{
			name: "Focus and blur ignored while speaking",
			events: []conversation.Event{
				conversation.EventSubmit, conversation.EventDispatch, conversation.EventFocus, conversation.EventBlur,
			},
			want:  models.OrbSpeaking,
			fired: []bool{true, true, false, false},
		},
		{
			name:   "Second submit while thinking is ignored",
			events: []conversation.Event{conversation.EventSubmit, conversation.EventSubmit},
			want:   models.OrbThinking,
			fired:  []bool{true, false},
		},
		{
			name:   "Dispatch needs a submit",
			events: []conversation.Event{conversation.EventDispatch},
			want:   models.OrbIdle,
			fired:  []bool{false},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := conversation.NewMachine()
			for i, ev := range tt.events {
				can := m.Can(ev)
				_, ok := m.Fire(ev)
				assert.Equal(t, tt.fired[i], ok, "event %d (%s)", i, ev)
				assert.Equal(t, can, ok, "Can and Fire disagree on event %d", i)
			}
			assert.Equal(t, tt.want, m.State())
		})
	}
}

func TestMachineSubscribe(t *testing.T) {
	m := conversation.NewMachine()

	var got []conversation.Transition
	unsubscribe := m.Subscribe(func(tr conversation.Transition) {
		got = append(got, tr)
	})

	m.Fire(conversation.EventFocus)
	m.Fire(conversation.EventFocus)
	unsubscribe()
	m.Fire(conversation.EventBlur)

	assert.Equal(t, []conversation.Transition{
		{From: models.OrbIdle, To: models.OrbListening, Event: conversation.EventFocus},
	}, got)
}
