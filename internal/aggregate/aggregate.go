// Package aggregate builds the per-partner conversation summaries of a chat list.
package aggregate

import (
	"context"
	"fmt"
	"strings"
	"unicode"

	"github.com/nyaruka/phonenumbers"
	"go.uber.org/zap"

	"github.com/matheus3301/dmsync/internal/model"
	"github.com/matheus3301/dmsync/internal/store"
)

// Aggregator is read-only over the message log and the directory tables.
type Aggregator struct {
	db  *store.DB
	log *zap.Logger
}

// New creates an Aggregator. log may be nil.
func New(db *store.DB, log *zap.Logger) *Aggregator {
	if log == nil {
		log = zap.NewNop()
	}
	return &Aggregator{db: db, log: log}
}

// SummariesFor returns one summary per partner self has exchanged messages
// with. Partners that no longer exist are skipped. The result carries no
// ordering guarantee.
func (a *Aggregator) SummariesFor(ctx context.Context, self string) ([]model.ConversationSummary, error) {
	if !model.ValidIdentity(self) {
		return nil, fmt.Errorf("summaries: malformed identity: %w", model.ErrInvalid)
	}
	partners, err := a.db.ChatPartners(ctx, self)
	if err != nil {
		return nil, fmt.Errorf("summaries: partners: %w: %w", model.ErrTransient, err)
	}

	out := make([]model.ConversationSummary, 0, len(partners))
	for _, partnerID := range partners {
		s, ok, err := a.summary(ctx, self, partnerID)
		if err != nil {
			return nil, fmt.Errorf("summaries: %s: %w: %w", partnerID, model.ErrTransient, err)
		}
		if !ok {
			a.log.Debug("skipping deleted partner", zap.String("partner", partnerID))
			continue
		}
		out = append(out, s)
	}
	return out, nil
}

func (a *Aggregator) summary(ctx context.Context, self, partnerID string) (model.ConversationSummary, bool, error) {
	partner, err := a.db.GetUser(ctx, partnerID)
	if err != nil || partner == nil {
		return model.ConversationSummary{}, false, err
	}

	s := model.ConversationSummary{
		PartnerID:   partnerID,
		PhoneNumber: partner.PhoneNumber,
		DisplayName: FormatPhone(partner.PhoneNumber, partner.Region),
	}
	contact, err := a.db.GetContact(ctx, self, partnerID)
	if err != nil {
		return s, false, err
	}
	if contact != nil && contact.Name != "" {
		s.DisplayName = contact.Name
	}

	if s.UnreadCount, err = a.db.UnreadCountFrom(ctx, partnerID, self); err != nil {
		return s, false, err
	}
	if s.UnreadCount > 0 {
		s.LastMessage, err = a.db.LatestUnreadFrom(ctx, partnerID, self)
	} else {
		s.LastMessage, err = a.db.LatestBetween(ctx, self, partnerID)
	}
	if err != nil {
		return s, false, err
	}
	return s, true, nil
}

// FormatPhone renders phone in international format for region. Numbers that
// cannot be parsed fall back to "+" followed by their digits.
func FormatPhone(phone, region string) string {
	num, err := phonenumbers.Parse(phone, strings.ToUpper(region))
	if err == nil {
		return phonenumbers.Format(num, phonenumbers.INTERNATIONAL)
	}
	digits := strings.Map(func(r rune) rune {
		if unicode.IsDigit(r) {
			return r
		}
		return -1
	}, phone)
	return "+" + digits
}
