// Package syncstore keeps a participant's local view of their conversations
// consistent with the daemon: optimistic sends, live event ingestion and
// debounced read receipts.
package syncstore

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/matheus3301/dmsync/internal/bus"
	"github.com/matheus3301/dmsync/internal/model"
	"github.com/matheus3301/dmsync/internal/status"
)

// DefaultReadDebounce is the quiet period before unread incoming messages
// of the open conversation are marked read.
const DefaultReadDebounce = 400 * time.Millisecond

// ErrStale is returned by Open when a later Open or Close superseded it
// before its history arrived.
var ErrStale = errors.New("superseded by a newer view")

// API is the request/response side of the daemon.
type API interface {
	History(ctx context.Context, partner string) ([]model.Message, error)
	Send(ctx context.Context, partner, text, media string) (model.Message, error)
	MarkRead(ctx context.Context, sender string) (int64, error)
	Chats(ctx context.Context) ([]model.ConversationSummary, error)
}

// EventSource delivers pushed events. It holds at most one handler per kind:
// Subscribe refuses a second handler and Replace swaps the current one.
type EventSource interface {
	Subscribe(kind string, fn func(model.Event)) error
	Replace(kind string, fn func(model.Event))
	Unsubscribe(kind string)
}

// Notifier is told about incoming messages outside the open conversation.
type Notifier interface {
	Notify(msg model.Message)
}

// Config configures a Store.
type Config struct {
	Self     string
	API      API
	Events   EventSource
	Notifier Notifier
	// ReadDebounce defaults to DefaultReadDebounce.
	ReadDebounce time.Duration
	// Bus receives view state changes. Optional.
	Bus    *bus.Bus
	Logger *zap.Logger
}

var eventKinds = []string{model.EventNewMessage, model.EventMessagesRead}

// Store is the local view of one participant. All view mutations happen
// under mu; network calls are made with mu released and their results are
// applied only if the view epoch did not change meanwhile.
type Store struct {
	self     string
	api      API
	events   EventSource
	notifier Notifier
	debounce time.Duration
	log      *zap.Logger

	mu        sync.Mutex
	machine   *status.Machine
	partner   string
	entries   []Entry
	summaries []model.ConversationSummary
	readTimer *time.Timer
	notify    bool

	refreshCh chan struct{}
}

// New creates a Store. Call Start to begin receiving events.
func New(cfg Config) *Store {
	if cfg.ReadDebounce <= 0 {
		cfg.ReadDebounce = DefaultReadDebounce
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &Store{
		self:      cfg.Self,
		api:       cfg.API,
		events:    cfg.Events,
		notifier:  cfg.Notifier,
		debounce:  cfg.ReadDebounce,
		log:       cfg.Logger.With(zap.String("self", cfg.Self)),
		machine:   status.NewMachine(cfg.Bus),
		notify:    true,
		refreshCh: make(chan struct{}, 1),
	}
}

// Stop removes the event handlers and closes the open conversation.
func (s *Store) Stop() {
	for _, kind := range eventKinds {
		s.events.Unsubscribe(kind)
	}
	s.Close()
}

// RefreshCh signals that the view changed.
func (s *Store) RefreshCh() <-chan struct{} {
	return s.refreshCh
}

func (s *Store) signalRefresh() {
	select {
	case s.refreshCh <- struct{}{}:
	default:
	}
}

func (s *Store) handlers() map[string]func(model.Event) {
	return map[string]func(model.Event){
		model.EventNewMessage:   s.handleNewMessage,
		model.EventMessagesRead: s.handleMessagesRead,
	}
}

// Start installs the event handlers. It fails if another handler already
// owns one of the kinds.
func (s *Store) Start() error {
	h := s.handlers()
	for i, kind := range eventKinds {
		if err := s.events.Subscribe(kind, h[kind]); err != nil {
			for _, installed := range eventKinds[:i] {
				s.events.Unsubscribe(installed)
			}
			return fmt.Errorf("subscribe %s: %w", kind, err)
		}
	}
	return nil
}

// resubscribe leaves exactly one handler per event kind installed, with no
// window in which a kind has none.
func (s *Store) resubscribe() {
	h := s.handlers()
	for _, kind := range eventKinds {
		s.events.Replace(kind, h[kind])
	}
}

// Open makes partner the open conversation: the view is rebuilt from the
// history, merged with anything pushed while it loaded.
func (s *Store) Open(ctx context.Context, partner string) error {
	s.mu.Lock()
	epoch, err := s.machine.Transition(status.Loading)
	if err != nil {
		s.mu.Unlock()
		return err
	}
	s.stopReadTimerLocked()
	s.partner = partner
	s.entries = nil
	s.mu.Unlock()
	s.signalRefresh()

	history, err := s.api.History(ctx, partner)

	s.mu.Lock()
	if !s.machine.IsCurrent(epoch, status.Loading) {
		s.mu.Unlock()
		return ErrStale
	}
	if err != nil {
		_, _ = s.machine.Transition(status.Idle)
		s.partner = ""
		s.entries = nil
		s.mu.Unlock()
		s.signalRefresh()
		return fmt.Errorf("open %s: %w", partner, err)
	}
	s.entries = mergeHistory(history, s.entries)
	_, _ = s.machine.Transition(status.Ready)
	s.mu.Unlock()

	s.resubscribe()

	s.mu.Lock()
	if s.machine.IsCurrent(epoch, status.Ready) && s.hasUnreadIncomingLocked() {
		s.scheduleReadLocked(epoch)
	}
	s.mu.Unlock()
	s.signalRefresh()
	return nil
}

// Close discards the open conversation. In-flight work for it is ignored
// when it completes.
func (s *Store) Close() {
	s.mu.Lock()
	if s.machine.Current() != status.Idle {
		_, _ = s.machine.Transition(status.Idle)
	}
	s.stopReadTimerLocked()
	s.partner = ""
	s.entries = nil
	s.mu.Unlock()
	s.signalRefresh()
}

// Send shows the message immediately as pending, appends it through the
// API and swaps the pending entry for the confirmed one. On failure the
// pending entry is removed and the error returned. There is no retry.
func (s *Store) Send(ctx context.Context, text, media string) (model.Message, error) {
	text = strings.TrimSpace(text)
	media = strings.TrimSpace(media)
	if text == "" && media == "" {
		return model.Message{}, fmt.Errorf("send: empty message: %w", model.ErrInvalid)
	}

	s.mu.Lock()
	if s.machine.Current() == status.Idle {
		s.mu.Unlock()
		return model.Message{}, fmt.Errorf("send: no open conversation: %w", model.ErrInvalid)
	}
	epoch := s.machine.Epoch()
	partner := s.partner
	tempID := TempIDPrefix + uuid.NewString()
	s.entries = append(s.entries, Pending{
		TempID: tempID,
		Draft: model.Message{
			SenderID:   s.self,
			ReceiverID: partner,
			Text:       text,
			Media:      media,
			CreatedAt:  time.Now(),
		},
	})
	s.mu.Unlock()
	s.signalRefresh()

	msg, err := s.api.Send(ctx, partner, text, media)

	s.mu.Lock()
	if err != nil {
		if s.machine.IsCurrent(epoch) {
			s.entries = slices.DeleteFunc(s.entries, func(e Entry) bool { return e.Key() == tempID })
		}
		s.mu.Unlock()
		s.signalRefresh()
		return model.Message{}, err
	}
	if s.machine.IsCurrent(epoch) {
		s.confirmLocked(tempID, msg)
	}
	s.touchSummaryLocked(partner, msg, false)
	s.mu.Unlock()
	s.signalRefresh()
	return msg, nil
}

// confirmLocked replaces the pending entry in place. If the confirmed
// message is already in the view the pending entry is dropped instead.
func (s *Store) confirmLocked(tempID string, msg model.Message) {
	if s.indexLocked(msg.ID) >= 0 {
		s.entries = slices.DeleteFunc(s.entries, func(e Entry) bool { return e.Key() == tempID })
		return
	}
	if i := s.indexLocked(tempID); i >= 0 {
		s.entries[i] = Confirmed{Msg: msg}
		return
	}
	s.entries = append(s.entries, Confirmed{Msg: msg})
}

func (s *Store) indexLocked(key string) int {
	return slices.IndexFunc(s.entries, func(e Entry) bool { return e.Key() == key })
}

func (s *Store) handleNewMessage(evt model.Event) {
	var msg model.Message
	if err := evt.Decode(&msg); err != nil {
		s.log.Warn("malformed newMessage", zap.Error(err))
		return
	}
	if !msg.Involves(s.self) {
		return
	}
	partner := msg.PartnerOf(s.self)
	incoming := msg.ReceiverID == s.self

	s.mu.Lock()
	state := s.machine.Current()
	open := state != status.Idle && partner == s.partner
	notify := false
	if open {
		if s.indexLocked(msg.ID) < 0 {
			s.entries = append(s.entries, Confirmed{Msg: msg})
		}
		s.updateSummaryPreviewLocked(partner, msg)
		if incoming && state == status.Ready {
			s.scheduleReadLocked(s.machine.Epoch())
		}
	} else {
		s.touchSummaryLocked(partner, msg, incoming)
		notify = incoming && s.notify && s.notifier != nil
	}
	s.mu.Unlock()

	if notify {
		s.notifier.Notify(msg)
	}
	s.signalRefresh()
}

func (s *Store) handleMessagesRead(evt model.Event) {
	var receipt model.ReadReceipt
	if err := evt.Decode(&receipt); err != nil {
		s.log.Warn("malformed messagesRead", zap.Error(err))
		return
	}
	if receipt.SenderID != s.self {
		return
	}

	s.mu.Lock()
	if s.machine.Current() != status.Idle && receipt.ReaderID == s.partner {
		for i, e := range s.entries {
			if c, ok := e.(Confirmed); ok && c.Msg.SenderID == s.self && !c.Msg.Read {
				c.Msg.Read = true
				s.entries[i] = c
			}
		}
	}
	if i := s.summaryIndexLocked(receipt.ReaderID); i >= 0 {
		if last := s.summaries[i].LastMessage; last != nil && last.SenderID == s.self {
			cp := *last
			cp.Read = true
			s.summaries[i].LastMessage = &cp
		}
	}
	s.mu.Unlock()
	s.signalRefresh()
}

func (s *Store) hasUnreadIncomingLocked() bool {
	return slices.ContainsFunc(s.entries, func(e Entry) bool {
		c, ok := e.(Confirmed)
		return ok && c.Msg.ReceiverID == s.self && !c.Msg.Read
	})
}

func (s *Store) stopReadTimerLocked() {
	if s.readTimer != nil {
		s.readTimer.Stop()
		s.readTimer = nil
	}
}

// scheduleReadLocked restarts the debounce window for epoch.
func (s *Store) scheduleReadLocked(epoch uint64) {
	s.stopReadTimerLocked()
	s.readTimer = time.AfterFunc(s.debounce, func() { s.fireRead(epoch) })
}

// fireRead marks the unread incoming messages present now as read, remotely
// and then locally. Messages that arrive during the call are not covered.
func (s *Store) fireRead(epoch uint64) {
	s.mu.Lock()
	if !s.machine.IsCurrent(epoch, status.Ready) {
		s.mu.Unlock()
		return
	}
	partner := s.partner
	covered := make(map[string]struct{})
	for _, e := range s.entries {
		if c, ok := e.(Confirmed); ok && c.Msg.ReceiverID == s.self && !c.Msg.Read {
			covered[c.Msg.ID] = struct{}{}
		}
	}
	s.mu.Unlock()
	if len(covered) == 0 {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	n, err := s.api.MarkRead(ctx, partner)
	cancel()
	if err != nil {
		s.log.Warn("mark read failed", zap.String("partner", partner), zap.Error(err))
	} else {
		s.log.Debug("marked read", zap.String("partner", partner), zap.Int64("count", n))
	}

	s.mu.Lock()
	if !s.machine.IsCurrent(epoch) {
		s.mu.Unlock()
		return
	}
	remaining := 0
	for i, e := range s.entries {
		c, ok := e.(Confirmed)
		if !ok || c.Msg.ReceiverID != s.self || c.Msg.Read {
			continue
		}
		if _, hit := covered[c.Msg.ID]; hit {
			c.Msg.Read = true
			s.entries[i] = c
			continue
		}
		remaining++
	}
	if i := s.summaryIndexLocked(partner); i >= 0 {
		s.summaries[i].UnreadCount = remaining
		if last := s.summaries[i].LastMessage; last != nil {
			if _, hit := covered[last.ID]; hit {
				cp := *last
				cp.Read = true
				s.summaries[i].LastMessage = &cp
			}
		}
	}
	s.mu.Unlock()
	s.signalRefresh()
}

// mergeHistory returns history followed by the live entries it does not
// already contain, in their arrival order.
func mergeHistory(history []model.Message, live []Entry) []Entry {
	out := make([]Entry, 0, len(history)+len(live))
	seen := make(map[string]struct{}, len(history))
	for _, m := range history {
		out = append(out, Confirmed{Msg: m})
		seen[m.ID] = struct{}{}
	}
	for _, e := range live {
		if _, dup := seen[e.Key()]; dup {
			continue
		}
		out = append(out, e)
	}
	return out
}

// SetNotifications toggles the notifier side effect.
func (s *Store) SetNotifications(on bool) {
	s.mu.Lock()
	s.notify = on
	s.mu.Unlock()
}

// NotificationsEnabled reports whether incoming messages trigger the notifier.
func (s *Store) NotificationsEnabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.notify
}

// State returns the view state.
func (s *Store) State() status.State {
	return s.machine.Current()
}

// Partner returns the open conversation partner, or "" when idle.
func (s *Store) Partner() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.partner
}

// Entries returns a snapshot of the open conversation.
func (s *Store) Entries() []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.entries)
}

// Messages returns the open conversation as display records. Pending
// entries carry their temp id and Optimistic set.
func (s *Store) Messages() []model.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.Message, len(s.entries))
	for i, e := range s.entries {
		out[i] = e.Message()
	}
	return out
}
