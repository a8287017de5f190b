// Package model holds the domain types shared by the server components and
// the client synchronization store.
package model

import "time"

// Message is a single direct message. Everything except Read is immutable
// once persisted; Read only ever moves from false to true.
type Message struct {
	ID         string    `json:"_id"`
	SenderID   string    `json:"senderId"`
	ReceiverID string    `json:"receiverId"`
	Text       string    `json:"text,omitempty"`
	Media      string    `json:"image,omitempty"`
	CreatedAt  time.Time `json:"createdAt"`
	Read       bool      `json:"isReaded"`

	// Optimistic marks a provisional client-side record. Never persisted.
	Optimistic bool `json:"isOptimistic,omitempty"`
}

// PartnerOf returns the other participant of the message as seen by self.
func (m *Message) PartnerOf(self string) string {
	if m.SenderID == self {
		return m.ReceiverID
	}
	return m.SenderID
}

// Involves reports whether id is the sender or the receiver.
func (m *Message) Involves(id string) bool {
	return m.SenderID == id || m.ReceiverID == id
}

// ConversationSummary is the per-partner row of the chat list.
type ConversationSummary struct {
	PartnerID   string   `json:"_id"`
	DisplayName string   `json:"displayName"`
	PhoneNumber string   `json:"phoneNumber,omitempty"`
	LastMessage *Message `json:"lastMessage,omitempty"`
	UnreadCount int      `json:"unreadCount"`
}

// User is a registered participant.
type User struct {
	ID          string    `json:"_id"`
	FullName    string    `json:"fullName"`
	PhoneNumber string    `json:"phoneNumber"`
	Region      string    `json:"region"`
	CreatedAt   time.Time `json:"createdAt"`
}

// Contact is an owner's private name for another user.
type Contact struct {
	OwnerID     string    `json:"userId"`
	ContactID   string    `json:"contactId"`
	Name        string    `json:"name"`
	PhoneNumber string    `json:"phoneNumber"`
	CreatedAt   time.Time `json:"createdAt"`
}
