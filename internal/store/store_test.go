package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/matheus3301/dmsync/internal/model"
)

func testDB(t *testing.T) *DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	db, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := db.Migrate(); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func addUser(t *testing.T, db *DB, phone string) string {
	t.Helper()
	id := uuid.NewString()
	if err := db.CreateUser(context.Background(), &model.User{ID: id, FullName: "U " + phone, PhoneNumber: phone, Region: "PK"}); err != nil {
		t.Fatal(err)
	}
	return id
}

func insert(t *testing.T, db *DB, from, to, text string, at int64) model.Message {
	t.Helper()
	m := model.Message{ID: uuid.NewString(), SenderID: from, ReceiverID: to, Text: text, CreatedAt: time.UnixMilli(at)}
	if err := db.InsertMessage(context.Background(), &m); err != nil {
		t.Fatal(err)
	}
	return m
}

func TestMigrateAppliesOnFreshDB(t *testing.T) {
	db := testDB(t)

	// testDB already ran Migrate, so a second run must be a no-op.
	result, err := db.Migrate()
	if err != nil {
		t.Fatal(err)
	}
	if result.Changed {
		t.Error("second Migrate() should report Changed=false")
	}
	if result.Version != 2 {
		t.Errorf("version = %d, want 2 (init + indexes)", result.Version)
	}

	v, dirty, err := db.SchemaVersion()
	if err != nil {
		t.Fatal(err)
	}
	if v != 2 || dirty {
		t.Errorf("SchemaVersion() = %d dirty=%v, want 2 clean", v, dirty)
	}
}

func TestSelfMessageRejectedBySchema(t *testing.T) {
	db := testDB(t)
	m := model.Message{ID: uuid.NewString(), SenderID: "a", ReceiverID: "a", Text: "x", CreatedAt: time.Now()}
	err := db.InsertMessage(context.Background(), &m)
	if err == nil {
		t.Fatal("expected CHECK constraint failure")
	}
	if !IsConstraintError(err) {
		t.Errorf("IsConstraintError(%v) = false", err)
	}
}

func TestMessagesBetweenOrdering(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	a, b, c := addUser(t, db, "1001"), addUser(t, db, "1002"), addUser(t, db, "1003")

	insert(t, db, a, b, "third", 3000)
	insert(t, db, b, a, "first", 1000)
	insert(t, db, a, c, "other pair", 1500)
	insert(t, db, a, b, "second", 2000)
	insert(t, db, b, a, "tie", 3000)

	msgs, err := db.MessagesBetween(ctx, a, b)
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"first", "second", "third", "tie"}
	if len(msgs) != len(want) {
		t.Fatalf("got %d messages, want %d", len(msgs), len(want))
	}
	for i, m := range msgs {
		if m.Text != want[i] {
			t.Errorf("msgs[%d] = %q, want %q", i, m.Text, want[i])
		}
		if i > 0 && m.CreatedAt.Before(msgs[i-1].CreatedAt) {
			t.Errorf("msgs[%d] out of order", i)
		}
	}

	// Symmetric.
	rev, err := db.MessagesBetween(ctx, b, a)
	if err != nil {
		t.Fatal(err)
	}
	if len(rev) != len(msgs) {
		t.Errorf("reverse pair returned %d, want %d", len(rev), len(msgs))
	}
}

func TestMessagesBetweenEmpty(t *testing.T) {
	db := testDB(t)
	msgs, err := db.MessagesBetween(context.Background(), "x", "y")
	if err != nil {
		t.Fatal(err)
	}
	if msgs == nil || len(msgs) != 0 {
		t.Errorf("got %v, want empty non-nil slice", msgs)
	}
}

func TestMarkReadFromIdempotent(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	a, b := addUser(t, db, "1001"), addUser(t, db, "1002")

	insert(t, db, a, b, "one", 1000)
	insert(t, db, a, b, "two", 2000)
	insert(t, db, b, a, "reply", 2500)

	n, err := db.MarkReadFrom(ctx, a, b)
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Errorf("first MarkReadFrom = %d, want 2", n)
	}
	n, err = db.MarkReadFrom(ctx, a, b)
	if err != nil {
		t.Fatal(err)
	}
	if n != 0 {
		t.Errorf("second MarkReadFrom = %d, want 0", n)
	}

	// b's reply to a is untouched.
	unread, err := db.UnreadCountFrom(ctx, b, a)
	if err != nil {
		t.Fatal(err)
	}
	if unread != 1 {
		t.Errorf("unread b->a = %d, want 1", unread)
	}
}

func TestChatPartnersAndLatest(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	me, p1, p2 := addUser(t, db, "1001"), addUser(t, db, "1002"), addUser(t, db, "1003")

	insert(t, db, p1, me, "p1 old unread", 1000)
	insert(t, db, me, p1, "my reply", 2000)
	insert(t, db, me, p2, "to p2", 3000)

	partners, err := db.ChatPartners(ctx, me)
	if err != nil {
		t.Fatal(err)
	}
	if len(partners) != 2 || partners[0] != p2 || partners[1] != p1 {
		t.Errorf("partners = %v, want [p2 p1]", partners)
	}

	latest, err := db.LatestBetween(ctx, me, p1)
	if err != nil {
		t.Fatal(err)
	}
	if latest == nil || latest.Text != "my reply" {
		t.Errorf("LatestBetween = %v, want my reply", latest)
	}

	unread, err := db.LatestUnreadFrom(ctx, p1, me)
	if err != nil {
		t.Fatal(err)
	}
	if unread == nil || unread.Text != "p1 old unread" {
		t.Errorf("LatestUnreadFrom = %v, want p1 old unread", unread)
	}

	none, err := db.LatestUnreadFrom(ctx, p2, me)
	if err != nil {
		t.Fatal(err)
	}
	if none != nil {
		t.Errorf("LatestUnreadFrom(p2) = %v, want nil", none)
	}
}

func TestUsers(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	id := addUser(t, db, "923001234567")

	u, err := db.GetUser(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	if u == nil || u.PhoneNumber != "923001234567" {
		t.Fatalf("GetUser = %v", u)
	}

	byPhone, err := db.UserByPhone(ctx, "923001234567")
	if err != nil {
		t.Fatal(err)
	}
	if byPhone == nil || byPhone.ID != id {
		t.Errorf("UserByPhone = %v, want %s", byPhone, id)
	}

	// Duplicate phone.
	err = db.CreateUser(ctx, &model.User{ID: uuid.NewString(), FullName: "dup", PhoneNumber: "923001234567"})
	if !IsConstraintError(err) {
		t.Errorf("duplicate phone error = %v, want constraint error", err)
	}

	deleted, err := db.DeleteUser(ctx, id)
	if err != nil || !deleted {
		t.Fatalf("DeleteUser = %v, %v", deleted, err)
	}
	exists, err := db.UserExists(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	if exists {
		t.Error("user still exists after delete")
	}
	deleted, err = db.DeleteUser(ctx, id)
	if err != nil || deleted {
		t.Errorf("second DeleteUser = %v, %v, want false", deleted, err)
	}
}

func TestContacts(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	me, other := addUser(t, db, "1001"), addUser(t, db, "1002")

	if err := db.AddContact(ctx, &model.Contact{OwnerID: me, ContactID: other, Name: "Bob", PhoneNumber: "1002"}); err != nil {
		t.Fatal(err)
	}
	c, err := db.GetContact(ctx, me, other)
	if err != nil {
		t.Fatal(err)
	}
	if c == nil || c.Name != "Bob" {
		t.Errorf("GetContact = %v, want Bob", c)
	}

	// The relation is directional.
	c, err = db.GetContact(ctx, other, me)
	if err != nil {
		t.Fatal(err)
	}
	if c != nil {
		t.Errorf("reverse GetContact = %v, want nil", c)
	}

	if err := db.AddContact(ctx, &model.Contact{OwnerID: me, ContactID: other, Name: "Bobby"}); !IsConstraintError(err) {
		t.Errorf("duplicate contact error = %v, want constraint error", err)
	}

	list, err := db.ListContacts(ctx, me)
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 1 {
		t.Errorf("got %d contacts, want 1", len(list))
	}

	// Deleting the contact user cascades the entry but not messages.
	insert(t, db, me, other, "still here", 1000)
	if _, err := db.DeleteUser(ctx, other); err != nil {
		t.Fatal(err)
	}
	list, err = db.ListContacts(ctx, me)
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 0 {
		t.Errorf("got %d contacts after delete, want 0", len(list))
	}
	count, err := db.MessageCount(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if count != 1 {
		t.Errorf("message count = %d, want 1", count)
	}
}
