package realtime

import (
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/matheus3301/dmsync/internal/model"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 3 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = 20 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 25 * time.Second

	// websocket max message size to read.
	readLimit = 64 * 1024
)

var (
	errConnClosed = errors.New("connection closed")
	errSlowPeer   = errors.New("send buffer full")
)

// Conn is one participant's websocket. It implements registry.Conn.
type Conn struct {
	uid  string
	ws   *websocket.Conn
	hub  *Hub
	log  *zap.Logger
	data chan model.Event

	closeOnce sync.Once
	done      chan struct{}
}

func newConn(h *Hub, uid string, ws *websocket.Conn, buf int) *Conn {
	return &Conn{
		uid:  uid,
		ws:   ws,
		hub:  h,
		log:  h.log.With(zap.String("uid", uid)),
		data: make(chan model.Event, buf),
		done: make(chan struct{}),
	}
}

// Send queues evt for the send loop. It never blocks: a peer that does not
// drain its buffer loses the event.
func (c *Conn) Send(evt model.Event) error {
	select {
	case <-c.done:
		return errConnClosed
	default:
	}
	select {
	case c.data <- evt:
		return nil
	case <-c.done:
		return errConnClosed
	default:
		return errSlowPeer
	}
}

// Close tears the socket down and removes the connection from the registry.
func (c *Conn) Close() error {
	c.closeOnce.Do(func() {
		close(c.done)
		_ = c.ws.WriteControl(websocket.CloseMessage, []byte{}, time.Now().Add(writeWait))
		_ = c.ws.Close()
		c.hub.reg.Unregister(c)
		c.log.Debug("connection closed")
	})
	return nil
}

func (c *Conn) recvLoop() {
	defer c.Close()

	c.ws.SetReadLimit(readLimit)
	_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		msgType, raw, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.log.Warn("read failed", zap.Error(err))
			}
			return
		}
		if msgType != websocket.TextMessage {
			c.log.Warn("unexpected message type", zap.Int("type", msgType))
			return
		}

		var evt model.Event
		if err := json.Unmarshal(raw, &evt); err != nil {
			c.log.Warn("malformed client event", zap.Error(err))
			continue
		}
		switch evt.Type {
		case model.EventMessagesRead:
			// Receipts are produced by the mark-read endpoint.
			c.log.Debug("ignoring client messagesRead")
		default:
			c.log.Debug("ignoring client event", zap.String("type", evt.Type))
		}
	}
}

func (c *Conn) sendLoop() {
	pingTicker := time.NewTicker(pingPeriod)
	defer func() {
		pingTicker.Stop()
		c.Close()
	}()

	for {
		select {
		case <-c.done:
			return
		case evt := <-c.data:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteJSON(evt); err != nil {
				c.log.Warn("write failed", zap.String("type", evt.Type), zap.Error(err))
				return
			}
		case <-pingTicker.C:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.log.Warn("ping failed", zap.Error(err))
				return
			}
		}
	}
}
