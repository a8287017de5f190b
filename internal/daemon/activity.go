package daemon

import (
	"context"

	"go.uber.org/zap"

	"github.com/matheus3301/dmsync/internal/bus"
	"github.com/matheus3301/dmsync/internal/model"
)

const activityNamespace = "message."

// runActivityLog writes one debug line per appended message and read
// receipt published on b until ctx is done.
func runActivityLog(ctx context.Context, b *bus.Bus, logger *zap.Logger) {
	ch, unsub := b.Subscribe(activityNamespace, 256)
	defer unsub()

	for {
		select {
		case <-ctx.Done():
			return
		case evt := <-ch:
			switch p := evt.Payload.(type) {
			case model.Message:
				logger.Debug("message appended",
					zap.String("id", p.ID),
					zap.String("sender", p.SenderID),
					zap.String("receiver", p.ReceiverID),
					zap.Bool("media", p.Media != ""),
				)
			case model.ReadReceipt:
				logger.Debug("messages read",
					zap.String("sender", p.SenderID),
					zap.String("reader", p.ReaderID),
				)
			default:
				logger.Debug("activity", zap.String("kind", evt.Kind))
			}
		}
	}
}
