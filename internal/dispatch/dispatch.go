// Package dispatch pushes realtime events to connected participants.
package dispatch

import (
	"go.uber.org/zap"

	"github.com/matheus3301/dmsync/internal/bus"
	"github.com/matheus3301/dmsync/internal/metrics"
	"github.com/matheus3301/dmsync/internal/model"
	"github.com/matheus3301/dmsync/internal/registry"
)

// Dispatcher routes events to the registry's live connections. Pushes are
// fire-and-forget: an offline target or a failed send is logged and counted
// but never reported to the caller.
type Dispatcher struct {
	reg     *registry.Registry
	bus     *bus.Bus
	metrics *metrics.Metrics
	log     *zap.Logger
}

// New creates a Dispatcher. b, m and log may be nil.
func New(reg *registry.Registry, b *bus.Bus, m *metrics.Metrics, log *zap.Logger) *Dispatcher {
	if log == nil {
		log = zap.NewNop()
	}
	return &Dispatcher{reg: reg, bus: b, metrics: m, log: log}
}

// PushNewMessage delivers msg to its receiver.
func (d *Dispatcher) PushNewMessage(msg model.Message) {
	d.bus.Publish(bus.Event{Kind: bus.KindMessageAppended, Payload: msg})
	d.push(msg.ReceiverID, model.EventNewMessage, msg)
}

// PushReadReceipt tells sender that reader has read their messages.
func (d *Dispatcher) PushReadReceipt(sender, reader string) {
	receipt := model.ReadReceipt{SenderID: sender, ReaderID: reader}
	d.bus.Publish(bus.Event{Kind: bus.KindMessagesRead, Payload: receipt})
	d.push(sender, model.EventMessagesRead, receipt)
}

func (d *Dispatcher) push(target, typ string, payload any) {
	conn, ok := d.reg.Lookup(target)
	if !ok {
		d.metrics.Push(typ, metrics.ResultOffline)
		return
	}
	evt, err := model.NewEvent(typ, payload)
	if err != nil {
		d.log.Error("encode push", zap.String("type", typ), zap.Error(err))
		d.metrics.Push(typ, metrics.ResultError)
		return
	}
	if err := conn.Send(evt); err != nil {
		d.log.Warn("push failed",
			zap.String("type", typ),
			zap.String("target", target),
			zap.Error(err),
		)
		d.metrics.Push(typ, metrics.ResultError)
		return
	}
	d.metrics.Push(typ, metrics.ResultDelivered)
}
