package syncstore

import "github.com/matheus3301/dmsync/internal/model"

// TempIDPrefix marks the ids of pending entries.
const TempIDPrefix = "temp-"

// Entry is one row of the open conversation: either Confirmed or Pending.
type Entry interface {
	// Key is the server id of a confirmed entry or the temp id of a pending one.
	Key() string
	// Message returns the record to display.
	Message() model.Message
	isEntry()
}

// Confirmed is a message the log has accepted.
type Confirmed struct {
	Msg model.Message
}

func (c Confirmed) Key() string            { return c.Msg.ID }
func (c Confirmed) Message() model.Message { return c.Msg }
func (Confirmed) isEntry()                 {}

// Pending is a locally sent message awaiting the log's answer.
type Pending struct {
	TempID string
	Draft  model.Message
}

func (p Pending) Key() string { return p.TempID }

func (p Pending) Message() model.Message {
	m := p.Draft
	m.ID = p.TempID
	m.Optimistic = true
	return m
}

func (Pending) isEntry() {}
