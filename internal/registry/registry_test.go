package registry

import (
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/matheus3301/dmsync/internal/bus"
	"github.com/matheus3301/dmsync/internal/model"
)

type fakeConn struct {
	name   string
	mu     sync.Mutex
	closed bool
}

func (c *fakeConn) Send(model.Event) error { return nil }

func (c *fakeConn) Close() error {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	return nil
}

func TestRegisterLookup(t *testing.T) {
	r := New(nil)
	c := &fakeConn{name: "a"}
	if prev := r.Register("alice", c); prev != nil {
		t.Errorf("Register returned replaced handle %v for new id", prev)
	}

	got, ok := r.Lookup("alice")
	if !ok || got != c {
		t.Fatalf("Lookup(alice) = %v, %v", got, ok)
	}
	if _, ok := r.Lookup("bob"); ok {
		t.Error("Lookup(bob) found an entry")
	}
}

func TestLastRegistrationWins(t *testing.T) {
	r := New(nil)
	old := &fakeConn{name: "old"}
	cur := &fakeConn{name: "new"}
	r.Register("alice", old)

	if prev := r.Register("alice", cur); prev != old {
		t.Errorf("replaced = %v, want old handle", prev)
	}
	got, _ := r.Lookup("alice")
	if got != cur {
		t.Errorf("Lookup(alice) = %v, want new handle", got)
	}

	// The stale handle disconnecting must not evict the newer one.
	if r.Unregister(old) {
		t.Error("Unregister(old) removed an entry")
	}
	if _, ok := r.Lookup("alice"); !ok {
		t.Error("alice went offline after stale handle unregistered")
	}
}

func TestUnregisterIdempotent(t *testing.T) {
	r := New(nil)
	c := &fakeConn{}
	r.Register("alice", c)

	if !r.Unregister(c) {
		t.Error("first Unregister returned false")
	}
	if r.Unregister(c) {
		t.Error("second Unregister returned true")
	}
	if r.Len() != 0 {
		t.Errorf("Len() = %d, want 0", r.Len())
	}
}

func TestOnlineSortedSnapshot(t *testing.T) {
	r := New(nil)
	r.Register("carol", &fakeConn{})
	r.Register("alice", &fakeConn{})
	r.Register("bob", &fakeConn{})

	got := r.Online()
	want := []string{"alice", "bob", "carol"}
	if !slices.Equal(got, want) {
		t.Errorf("Online() = %v, want %v", got, want)
	}

	got[0] = "mallory"
	if r.Online()[0] != "alice" {
		t.Error("Online() snapshot aliases internal state")
	}
}

func TestPresencePublished(t *testing.T) {
	b := bus.New()
	ch, unsub := b.Subscribe("presence.", 10)
	defer unsub()

	r := New(b)
	c := &fakeConn{}
	r.Register("alice", c)
	// Replacing a handle does not change the online set.
	r.Register("alice", &fakeConn{})
	r.Unregister(c)

	expect := func(want []string) {
		t.Helper()
		select {
		case evt := <-ch:
			got, ok := evt.Payload.([]string)
			if !ok {
				t.Fatalf("payload type = %T", evt.Payload)
			}
			if !slices.Equal(got, want) {
				t.Errorf("presence = %v, want %v", got, want)
			}
		case <-time.After(time.Second):
			t.Fatal("timeout waiting for presence event")
		}
	}
	expect([]string{"alice"})

	select {
	case evt := <-ch:
		t.Errorf("unexpected presence event: %v", evt.Payload)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestCloseAll(t *testing.T) {
	r := New(nil)
	a, b := &fakeConn{}, &fakeConn{}
	r.Register("alice", a)
	r.Register("bob", b)
	r.CloseAll()
	if !a.closed || !b.closed {
		t.Error("CloseAll left a connection open")
	}
}
