package status

import (
	"fmt"
	"slices"
	"sync"

	"github.com/matheus3301/dmsync/internal/bus"
)

// KindStateChanged is published on the bus after every accepted transition.
const KindStateChanged = "view.state_changed"

// State represents the lifecycle state of a conversation view.
type State string

const (
	Idle    State = "IDLE"
	Loading State = "LOADING"
	Ready   State = "READY"
)

// validTransitions defines allowed state transitions. Loading -> Loading is
// a conversation switch before the previous history arrived.
var validTransitions = map[State][]State{
	Idle:    {Loading},
	Loading: {Loading, Ready, Idle},
	Ready:   {Loading, Idle},
}

// Machine tracks and enforces view state transitions. Every transition into
// Loading or Idle starts a new epoch; work started under an older epoch is
// stale and must be discarded by its owner.
type Machine struct {
	mu      sync.RWMutex
	current State
	epoch   uint64
	bus     *bus.Bus
}

// NewMachine creates a new state machine starting in Idle state.
func NewMachine(b *bus.Bus) *Machine {
	return &Machine{
		current: Idle,
		bus:     b,
	}
}

// Current returns the current state.
func (m *Machine) Current() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// Epoch returns the current epoch.
func (m *Machine) Epoch() uint64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.epoch
}

// Transition attempts to move to a new state and returns the epoch the
// machine is in afterwards. Returns error if transition is invalid.
func (m *Machine) Transition(to State) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	allowed := validTransitions[m.current]
	if !slices.Contains(allowed, to) {
		return m.epoch, fmt.Errorf("invalid transition from %s to %s", m.current, to)
	}
	from := m.current
	m.current = to
	if to == Loading || to == Idle {
		m.epoch++
	}
	m.bus.Publish(bus.Event{
		Kind: KindStateChanged,
		Payload: StatusChange{
			From:  from,
			To:    to,
			Epoch: m.epoch,
		},
	})
	return m.epoch, nil
}

// IsCurrent reports whether epoch is still the live one and the machine is in
// one of the given states.
func (m *Machine) IsCurrent(epoch uint64, states ...State) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if epoch != m.epoch {
		return false
	}
	return len(states) == 0 || slices.Contains(states, m.current)
}

// StatusChange is the payload for status change events.
type StatusChange struct {
	From  State
	To    State
	Epoch uint64
}
