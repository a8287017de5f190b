package syncstore

import (
	"cmp"
	"context"
	"fmt"
	"slices"

	"github.com/matheus3301/dmsync/internal/model"
)

// LoadSummaries replaces the chat list with the daemon's, most recently
// active conversation first.
func (s *Store) LoadSummaries(ctx context.Context) error {
	list, err := s.api.Chats(ctx)
	if err != nil {
		return fmt.Errorf("load summaries: %w", err)
	}
	slices.SortStableFunc(list, func(a, b model.ConversationSummary) int {
		return cmp.Compare(lastActivity(b), lastActivity(a))
	})

	s.mu.Lock()
	s.summaries = list
	s.mu.Unlock()
	s.signalRefresh()
	return nil
}

func lastActivity(c model.ConversationSummary) int64 {
	if c.LastMessage == nil {
		return 0
	}
	return c.LastMessage.CreatedAt.UnixMilli()
}

// Summaries returns a snapshot of the chat list.
func (s *Store) Summaries() []model.ConversationSummary {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.ConversationSummary, len(s.summaries))
	for i, c := range s.summaries {
		if c.LastMessage != nil {
			m := *c.LastMessage
			c.LastMessage = &m
		}
		out[i] = c
	}
	return out
}

func (s *Store) summaryIndexLocked(partner string) int {
	return slices.IndexFunc(s.summaries, func(c model.ConversationSummary) bool {
		return c.PartnerID == partner
	})
}

// updateSummaryPreviewLocked sets the preview of partner's summary in place.
func (s *Store) updateSummaryPreviewLocked(partner string, msg model.Message) {
	if i := s.summaryIndexLocked(partner); i >= 0 {
		m := msg
		s.summaries[i].LastMessage = &m
		return
	}
	s.touchSummaryLocked(partner, msg, false)
}

// touchSummaryLocked sets the preview of partner's summary and moves it to
// the front, bumping the unread count for incoming messages. An unknown
// partner gets a summary named after its identity until the next load.
func (s *Store) touchSummaryLocked(partner string, msg model.Message, incoming bool) {
	m := msg
	sum := model.ConversationSummary{PartnerID: partner, DisplayName: partner}
	if i := s.summaryIndexLocked(partner); i >= 0 {
		sum = s.summaries[i]
		s.summaries = slices.Delete(s.summaries, i, i+1)
	}
	sum.LastMessage = &m
	if incoming {
		sum.UnreadCount++
	}
	s.summaries = slices.Insert(s.summaries, 0, sum)
}
