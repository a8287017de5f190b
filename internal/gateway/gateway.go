// Package gateway is the validated entry point to the durable message log.
package gateway

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/matheus3301/dmsync/internal/metrics"
	"github.com/matheus3301/dmsync/internal/model"
	"github.com/matheus3301/dmsync/internal/store"
)

// Gateway appends, queries and marks messages in the log.
type Gateway struct {
	db      *store.DB
	metrics *metrics.Metrics
	log     *zap.Logger
	now     func() time.Time
}

// New creates a Gateway over db. m and log may be nil.
func New(db *store.DB, m *metrics.Metrics, log *zap.Logger) *Gateway {
	if log == nil {
		log = zap.NewNop()
	}
	return &Gateway{db: db, metrics: m, log: log, now: time.Now}
}

// Append validates and persists a new unread message from sender to receiver.
// The log assigns the id and creation time.
func (g *Gateway) Append(ctx context.Context, sender, receiver, text, media string) (model.Message, error) {
	text = strings.TrimSpace(text)
	media = strings.TrimSpace(media)

	switch {
	case !model.ValidIdentity(sender):
		return model.Message{}, fmt.Errorf("append: malformed sender %q: %w", sender, model.ErrInvalid)
	case !model.ValidIdentity(receiver):
		return model.Message{}, fmt.Errorf("append: malformed receiver %q: %w", receiver, model.ErrInvalid)
	case sender == receiver:
		return model.Message{}, fmt.Errorf("append: sender and receiver are the same: %w", model.ErrInvalid)
	case text == "" && media == "":
		return model.Message{}, fmt.Errorf("append: empty message: %w", model.ErrInvalid)
	}

	exists, err := g.db.UserExists(ctx, receiver)
	if err != nil {
		return model.Message{}, fmt.Errorf("append: lookup receiver: %w: %w", model.ErrTransient, err)
	}
	if !exists {
		return model.Message{}, fmt.Errorf("append: unknown receiver %s: %w", receiver, model.ErrInvalid)
	}

	msg := model.Message{
		ID:         uuid.NewString(),
		SenderID:   sender,
		ReceiverID: receiver,
		Text:       text,
		Media:      media,
		CreatedAt:  g.now().Truncate(time.Millisecond),
	}

	start := time.Now()
	err = g.db.InsertMessage(ctx, &msg)
	g.metrics.ObserveStore("append", start)
	if err != nil {
		g.log.Error("append message failed",
			zap.String("sender", sender),
			zap.String("receiver", receiver),
			zap.Error(err),
		)
		return model.Message{}, fmt.Errorf("append: %w: %w", model.ErrTransient, err)
	}
	g.metrics.Appended()
	return msg, nil
}

// RangeBetween returns the conversation between a and b oldest first. A pair
// with no history yields an empty, non-nil slice.
func (g *Gateway) RangeBetween(ctx context.Context, a, b string) ([]model.Message, error) {
	if !model.ValidIdentity(a) || !model.ValidIdentity(b) {
		return nil, fmt.Errorf("range: malformed identity: %w", model.ErrInvalid)
	}

	start := time.Now()
	msgs, err := g.db.MessagesBetween(ctx, a, b)
	g.metrics.ObserveStore("range", start)
	if err != nil {
		return nil, fmt.Errorf("range: %w: %w", model.ErrTransient, err)
	}
	return msgs, nil
}

// MarkReadFrom flips every unread message from sender to reader and returns
// the number of messages that changed. A repeated call returns 0.
func (g *Gateway) MarkReadFrom(ctx context.Context, sender, reader string) (int64, error) {
	if !model.ValidIdentity(sender) || !model.ValidIdentity(reader) {
		return 0, fmt.Errorf("mark read: malformed identity: %w", model.ErrInvalid)
	}

	start := time.Now()
	n, err := g.db.MarkReadFrom(ctx, sender, reader)
	g.metrics.ObserveStore("mark_read", start)
	if err != nil {
		return 0, fmt.Errorf("mark read: %w: %w", model.ErrTransient, err)
	}
	g.metrics.MarkedRead(n)
	if n > 0 {
		g.log.Debug("messages marked read",
			zap.String("sender", sender),
			zap.String("reader", reader),
			zap.Int64("count", n),
		)
	}
	return n, nil
}
