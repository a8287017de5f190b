package client

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/matheus3301/dmsync/internal/auth"
	"github.com/matheus3301/dmsync/internal/model"
)

// ErrAlreadySubscribed is returned when a handler for the event kind is
// already installed. Callers unsubscribe first.
var ErrAlreadySubscribed = errors.New("already subscribed")

// Handler receives one decoded event. Handlers run on the read goroutine.
type Handler = func(model.Event)

// Realtime is a client's websocket event channel. It allows at most one
// handler per event kind.
type Realtime struct {
	ws  *websocket.Conn
	log *zap.Logger

	mu       sync.Mutex
	handlers map[string]Handler

	writeMu sync.Mutex
	done    chan struct{}
	err     error
}

// Dial opens the event channel of the daemon at baseURL as uid.
func Dial(ctx context.Context, baseURL, uid string, log *zap.Logger) (*Realtime, error) {
	if log == nil {
		log = zap.NewNop()
	}
	u, err := url.Parse(strings.TrimRight(baseURL, "/") + "/ws")
	if err != nil {
		return nil, fmt.Errorf("parse url: %w", err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	}

	header := http.Header{}
	header.Set(auth.HeaderName, uid)
	ws, _, err := websocket.DefaultDialer.DialContext(ctx, u.String(), header)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w: %w", u, model.ErrTransient, err)
	}

	rt := &Realtime{
		ws:       ws,
		log:      log.With(zap.String("uid", uid)),
		handlers: make(map[string]Handler),
		done:     make(chan struct{}),
	}
	ws.SetPingHandler(func(data string) error {
		rt.writeMu.Lock()
		defer rt.writeMu.Unlock()
		return ws.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(3*time.Second))
	})
	go rt.readLoop()
	return rt, nil
}

// Subscribe installs fn for events of kind.
func (r *Realtime) Subscribe(kind string, fn Handler) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.handlers[kind]; ok {
		return fmt.Errorf("%s: %w", kind, ErrAlreadySubscribed)
	}
	r.handlers[kind] = fn
	return nil
}

// Replace installs fn for events of kind, swapping out any existing handler
// in one step so no event of kind arrives with no handler installed.
func (r *Realtime) Replace(kind string, fn Handler) {
	r.mu.Lock()
	r.handlers[kind] = fn
	r.mu.Unlock()
}

// Unsubscribe removes the handler for kind. Removing a missing handler is a no-op.
func (r *Realtime) Unsubscribe(kind string) {
	r.mu.Lock()
	delete(r.handlers, kind)
	r.mu.Unlock()
}

// Done is closed when the channel stops reading.
func (r *Realtime) Done() <-chan struct{} { return r.done }

// Err returns the error that stopped the read loop, once Done is closed.
func (r *Realtime) Err() error {
	<-r.done
	return r.err
}

// Close shuts the channel down.
func (r *Realtime) Close() error {
	r.writeMu.Lock()
	_ = r.ws.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
	r.writeMu.Unlock()
	err := r.ws.Close()
	<-r.done
	return err
}

func (r *Realtime) readLoop() {
	defer close(r.done)
	for {
		var evt model.Event
		if err := r.ws.ReadJSON(&evt); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				r.err = err
			}
			return
		}
		r.mu.Lock()
		fn := r.handlers[evt.Type]
		r.mu.Unlock()
		if fn == nil {
			r.log.Debug("no handler for event", zap.String("type", evt.Type))
			continue
		}
		fn(evt)
	}
}
