package status

import (
	"testing"

	"github.com/matheus3301/dmsync/internal/bus"
)

func TestInitialState(t *testing.T) {
	m := NewMachine(nil)
	if m.Current() != Idle {
		t.Errorf("initial state = %s, want IDLE", m.Current())
	}
	if m.Epoch() != 0 {
		t.Errorf("initial epoch = %d, want 0", m.Epoch())
	}
}

func TestValidTransitions(t *testing.T) {
	tests := []struct {
		from State
		to   State
	}{
		{Idle, Loading},
		{Loading, Ready},
		{Loading, Loading},
		{Loading, Idle},
		{Ready, Loading},
		{Ready, Idle},
	}
	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			m := NewMachine(nil)
			walkTo(t, m, tt.from)
			if _, err := m.Transition(tt.to); err != nil {
				t.Errorf("Transition(%s -> %s) error = %v", tt.from, tt.to, err)
			}
			if m.Current() != tt.to {
				t.Errorf("state = %s, want %s", m.Current(), tt.to)
			}
		})
	}
}

func TestInvalidTransition(t *testing.T) {
	m := NewMachine(nil)
	if _, err := m.Transition(Ready); err == nil {
		t.Error("Transition(IDLE -> READY) should fail")
	}
	if _, err := m.Transition(Idle); err == nil {
		t.Error("Transition(IDLE -> IDLE) should fail")
	}
	walkTo(t, m, Ready)
	if _, err := m.Transition(Ready); err == nil {
		t.Error("Transition(READY -> READY) should fail")
	}
}

func TestEpochAdvancesOnOpenAndClose(t *testing.T) {
	m := NewMachine(nil)

	e1, _ := m.Transition(Loading)
	e2, _ := m.Transition(Ready)
	if e1 != e2 {
		t.Errorf("Ready must not start a new epoch: %d != %d", e1, e2)
	}
	e3, _ := m.Transition(Loading)
	if e3 <= e2 {
		t.Errorf("reopen epoch = %d, want > %d", e3, e2)
	}
	e4, _ := m.Transition(Idle)
	if e4 <= e3 {
		t.Errorf("close epoch = %d, want > %d", e4, e3)
	}
}

func TestIsCurrent(t *testing.T) {
	m := NewMachine(nil)
	epoch, _ := m.Transition(Loading)

	if !m.IsCurrent(epoch, Loading) {
		t.Error("IsCurrent(epoch, LOADING) = false while loading")
	}
	if m.IsCurrent(epoch, Ready) {
		t.Error("IsCurrent(epoch, READY) = true while loading")
	}

	// A conversation switch invalidates the old epoch.
	if _, err := m.Transition(Loading); err != nil {
		t.Fatal(err)
	}
	if m.IsCurrent(epoch) {
		t.Error("stale epoch reported as current")
	}
}

func TestTransitionEmitsEvent(t *testing.T) {
	b := bus.New()
	ch, unsub := b.Subscribe("view.", 10)
	defer unsub()

	m := NewMachine(b)
	if _, err := m.Transition(Loading); err != nil {
		t.Fatal(err)
	}

	evt := <-ch
	if evt.Kind != KindStateChanged {
		t.Errorf("event kind = %q, want %s", evt.Kind, KindStateChanged)
	}
	change, ok := evt.Payload.(StatusChange)
	if !ok {
		t.Fatalf("payload type = %T, want StatusChange", evt.Payload)
	}
	if change.From != Idle || change.To != Loading || change.Epoch != 1 {
		t.Errorf("change = %+v, want IDLE -> LOADING at epoch 1", change)
	}
}

// walkTo is a helper that transitions the machine to a target state.
func walkTo(t *testing.T, m *Machine, target State) {
	t.Helper()
	paths := map[State][]State{
		Idle:    {},
		Loading: {Loading},
		Ready:   {Loading, Ready},
	}
	for _, s := range paths[target] {
		if _, err := m.Transition(s); err != nil {
			t.Fatalf("walkTo(%s): %v", target, err)
		}
	}
}
