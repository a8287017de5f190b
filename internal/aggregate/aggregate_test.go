package aggregate

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/matheus3301/dmsync/internal/model"
	"github.com/matheus3301/dmsync/internal/store"
)

func testDB(t *testing.T) *store.DB {
	t.Helper()
	db, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := db.Migrate(); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func addUser(t *testing.T, db *store.DB, phone, region string) string {
	t.Helper()
	id := uuid.NewString()
	if err := db.CreateUser(context.Background(), &model.User{ID: id, FullName: "U", PhoneNumber: phone, Region: region}); err != nil {
		t.Fatal(err)
	}
	return id
}

func send(t *testing.T, db *store.DB, from, to, text string, at int64, read bool) model.Message {
	t.Helper()
	m := model.Message{ID: uuid.NewString(), SenderID: from, ReceiverID: to, Text: text, CreatedAt: time.UnixMilli(at), Read: read}
	if err := db.InsertMessage(context.Background(), &m); err != nil {
		t.Fatal(err)
	}
	return m
}

func bySummary(list []model.ConversationSummary) map[string]model.ConversationSummary {
	out := make(map[string]model.ConversationSummary, len(list))
	for _, s := range list {
		out[s.PartnerID] = s
	}
	return out
}

func TestSummariesPreviewAndUnread(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	me := addUser(t, db, "+16502530000", "US")
	bob := addUser(t, db, "+16502530001", "US")
	carol := addUser(t, db, "+442079460000", "GB")

	// Bob: two unread incoming, then an outgoing reply. Preview is the newest unread incoming.
	send(t, db, bob, me, "b1", 1000, false)
	unread := send(t, db, bob, me, "b2", 2000, false)
	send(t, db, me, bob, "reply", 3000, false)

	// Carol: everything read. Preview is newest overall.
	send(t, db, carol, me, "c1", 1000, true)
	last := send(t, db, me, carol, "c2", 4000, false)

	if err := db.AddContact(ctx, &model.Contact{OwnerID: me, ContactID: bob, Name: "Bobby", PhoneNumber: "+16502530001"}); err != nil {
		t.Fatal(err)
	}

	agg := New(db, nil)
	list, err := agg.SummariesFor(ctx, me)
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 2 {
		t.Fatalf("got %d summaries, want 2", len(list))
	}
	got := bySummary(list)

	b := got[bob]
	if b.DisplayName != "Bobby" {
		t.Errorf("bob DisplayName = %q, want contact name", b.DisplayName)
	}
	if b.UnreadCount != 2 {
		t.Errorf("bob UnreadCount = %d, want 2", b.UnreadCount)
	}
	if b.LastMessage == nil || b.LastMessage.ID != unread.ID {
		t.Errorf("bob preview = %+v, want newest unread incoming", b.LastMessage)
	}

	c := got[carol]
	if c.DisplayName != "+44 20 7946 0000" {
		t.Errorf("carol DisplayName = %q, want international format", c.DisplayName)
	}
	if c.UnreadCount != 0 {
		t.Errorf("carol UnreadCount = %d, want 0", c.UnreadCount)
	}
	if c.LastMessage == nil || c.LastMessage.ID != last.ID {
		t.Errorf("carol preview = %+v, want newest overall", c.LastMessage)
	}

	// Outgoing unread messages never count toward my unread total.
	theirs, err := agg.SummariesFor(ctx, bob)
	if err != nil {
		t.Fatal(err)
	}
	if len(theirs) != 1 || theirs[0].UnreadCount != 1 {
		t.Errorf("bob's view = %+v, want 1 unread from me", theirs)
	}
}

func TestSummariesAfterMarkRead(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	me := addUser(t, db, "+16502530000", "US")
	bob := addUser(t, db, "+16502530001", "US")
	agg := New(db, nil)

	summaryOf := func() model.ConversationSummary {
		t.Helper()
		list, err := agg.SummariesFor(ctx, me)
		if err != nil {
			t.Fatal(err)
		}
		if len(list) != 1 {
			t.Fatalf("got %d summaries, want 1", len(list))
		}
		return list[0]
	}

	send(t, db, bob, me, "b1", 1000, false)
	send(t, db, bob, me, "b2", 2000, false)
	unread := send(t, db, bob, me, "b3", 3000, false)
	reply := send(t, db, me, bob, "reply", 4000, false)

	s := summaryOf()
	if s.UnreadCount != 3 {
		t.Errorf("UnreadCount = %d, want 3", s.UnreadCount)
	}
	if s.LastMessage == nil || s.LastMessage.ID != unread.ID {
		t.Errorf("preview = %+v, want newest unread incoming", s.LastMessage)
	}

	n, err := db.MarkReadFrom(ctx, bob, me)
	if err != nil {
		t.Fatal(err)
	}
	if n != 3 {
		t.Errorf("MarkReadFrom = %d, want 3", n)
	}

	s = summaryOf()
	if s.UnreadCount != 0 {
		t.Errorf("UnreadCount after mark read = %d, want 0", s.UnreadCount)
	}
	if s.LastMessage == nil || s.LastMessage.ID != reply.ID {
		t.Errorf("preview after mark read = %+v, want newest overall", s.LastMessage)
	}

	late := send(t, db, bob, me, "b4", 5000, false)
	s = summaryOf()
	if s.UnreadCount != 1 {
		t.Errorf("UnreadCount after new arrival = %d, want 1", s.UnreadCount)
	}
	if s.LastMessage == nil || s.LastMessage.ID != late.ID {
		t.Errorf("preview after new arrival = %+v, want the new message", s.LastMessage)
	}
}

func TestSummariesSkipDeletedPartner(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	me := addUser(t, db, "+16502530000", "US")
	gone := addUser(t, db, "+16502530001", "US")
	send(t, db, gone, me, "bye", 1000, false)

	if _, err := db.DeleteUser(ctx, gone); err != nil {
		t.Fatal(err)
	}

	list, err := New(db, nil).SummariesFor(ctx, me)
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 0 {
		t.Errorf("got %+v, want deleted partner skipped", list)
	}
}

func TestSummariesEmptyAndInvalid(t *testing.T) {
	db := testDB(t)
	agg := New(db, nil)

	list, err := agg.SummariesFor(context.Background(), uuid.NewString())
	if err != nil {
		t.Fatal(err)
	}
	if list == nil || len(list) != 0 {
		t.Errorf("SummariesFor = %v, want empty non-nil", list)
	}
	if _, err := agg.SummariesFor(context.Background(), "bad"); !errors.Is(err, model.ErrInvalid) {
		t.Errorf("error = %v, want ErrInvalid", err)
	}
}

func TestFormatPhone(t *testing.T) {
	tests := []struct {
		phone, region, want string
	}{
		{"+16502530000", "US", "+1 650-253-0000"},
		{"+442079460000", "gb", "+44 20 7946 0000"},
		{"not a number 42", "ZZ", "+42"},
	}
	for _, tt := range tests {
		if got := FormatPhone(tt.phone, tt.region); got != tt.want {
			t.Errorf("FormatPhone(%q, %q) = %q, want %q", tt.phone, tt.region, got, tt.want)
		}
	}
}
