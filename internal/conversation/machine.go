package conversation

import (
	"sync"

	"github.com/MegaGrindStone/polaris/internal/models"
)

// Event is an input of the conversation state machine.
type Event string

const (
	EventFocus    Event = "focus"
	EventBlur     Event = "blur"
	EventSubmit   Event = "submit"
	EventDispatch Event = "dispatch"
	EventFinish   Event = "finish"
)

// Transition records one state change.
type Transition struct {
	From  models.OrbState
	To    models.OrbState
	Event Event
}

type transitionKey struct {
	from  models.OrbState
	event Event
}

// transitions is the complete table; any pair missing from it is ignored.
var transitions = map[transitionKey]models.OrbState{
	{models.OrbIdle, EventFocus}:        models.OrbListening,
	{models.OrbListening, EventBlur}:    models.OrbIdle,
	{models.OrbIdle, EventSubmit}:       models.OrbThinking,
	{models.OrbListening, EventSubmit}:  models.OrbThinking,
	{models.OrbThinking, EventDispatch}: models.OrbSpeaking,
	{models.OrbThinking, EventFinish}:   models.OrbIdle,
	{models.OrbSpeaking, EventFinish}:   models.OrbIdle,
}

// Machine is the orb state machine. Subscribers are notified of every transition in order; they never set the
// state themselves.
type Machine struct {
	// fireMu keeps notifications in transition order.
	fireMu sync.Mutex

	mu    sync.Mutex
	state models.OrbState

	subs   map[int]func(Transition)
	nextID int
}

// NewMachine returns a machine in the Idle state.
func NewMachine() *Machine {
	return &Machine{
		state: models.OrbIdle,
		subs:  make(map[int]func(Transition)),
	}
}

// State returns the active state.
func (m *Machine) State() models.OrbState {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.state
}

// Can reports whether ev triggers a transition from the active state.
func (m *Machine) Can(ev Event) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	_, ok := transitions[transitionKey{m.state, ev}]
	return ok
}

// Fire applies ev. It returns the transition and true when the table has an entry for the active state, and
// leaves the state untouched otherwise.
func (m *Machine) Fire(ev Event) (Transition, bool) {
	m.fireMu.Lock()
	defer m.fireMu.Unlock()

	m.mu.Lock()
	next, ok := transitions[transitionKey{m.state, ev}]
	if !ok {
		m.mu.Unlock()
		return Transition{}, false
	}
	tr := Transition{From: m.state, To: next, Event: ev}
	m.state = next
	fns := make([]func(Transition), 0, len(m.subs))
	for id := 0; id < m.nextID; id++ {
		if fn, ok := m.subs[id]; ok {
			fns = append(fns, fn)
		}
	}
	m.mu.Unlock()

	for _, fn := range fns {
		fn(tr)
	}
	return tr, true
}

// Subscribe registers fn for every future transition. fn must not fire events. The returned function removes
// it.
func (m *Machine) Subscribe(fn func(Transition)) func() {
	m.mu.Lock()
	defer m.mu.Unlock()

	id := m.nextID
	m.nextID++
	m.subs[id] = fn

	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		delete(m.subs, id)
	}
}
