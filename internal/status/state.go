package status

import (
	"fmt"
	"slices"
	"sync"

	"github.com/lfmelo/zapcrm/internal/bus"
)

// State represents the lifecycle state of the messaging session.
type State string

const (
	Idle         State = "IDLE"
	Initializing State = "INITIALIZING"
	AwaitingScan State = "AWAITING_SCAN"
	Ready        State = "READY"
	Disconnected State = "DISCONNECTED"
	Failed       State = "FAILED"
)

// validTransitions defines allowed state transitions. Stop (→ Idle) and a
// fatal error (→ Failed) are legal from anywhere, so every state lists both.
var validTransitions = map[State][]State{
	Idle:         {Initializing, Failed, Idle},
	Initializing: {AwaitingScan, Ready, Disconnected, Failed, Idle},
	AwaitingScan: {Initializing, Disconnected, Failed, Idle},
	Ready:        {Disconnected, Failed, Idle},
	Disconnected: {Initializing, Failed, Idle},
	Failed:       {Initializing, Idle, Failed},
}

// Machine tracks and enforces session state transitions.
type Machine struct {
	mu      sync.RWMutex
	current State
	bus     *bus.Bus
}

// NewMachine creates a state machine starting in Idle.
func NewMachine(b *bus.Bus) *Machine {
	return &Machine{current: Idle, bus: b}
}

// Current returns the current state.
func (m *Machine) Current() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// Transition attempts to move to a new state. Returns an error and leaves the
// state unchanged if the transition is not allowed.
func (m *Machine) Transition(to State) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !slices.Contains(validTransitions[m.current], to) {
		return fmt.Errorf("invalid transition from %s to %s", m.current, to)
	}
	from := m.current
	m.current = to
	if m.bus != nil {
		m.bus.Publish(bus.Event{
			Kind:    bus.KindStatusChanged,
			Payload: StatusChange{From: from, To: to},
		})
	}
	return nil
}

// StatusChange is the payload for status change events.
type StatusChange struct {
	From State
	To   State
}
