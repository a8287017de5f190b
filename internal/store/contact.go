package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/matheus3301/dmsync/internal/model"
)

// AddContact stores an owner's name for another user. A second entry for
// the same pair is a constraint error.
func (db *DB) AddContact(ctx context.Context, c *model.Contact) error {
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now()
	}
	_, err := db.ExecContext(ctx, `
		INSERT INTO contacts (owner_id, contact_id, name, phone_number, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		c.OwnerID, c.ContactID, c.Name, c.PhoneNumber, c.CreatedAt.UnixMilli())
	return err
}

// GetContact returns the owner's entry for contactID, or nil.
func (db *DB) GetContact(ctx context.Context, ownerID, contactID string) (*model.Contact, error) {
	var c model.Contact
	var created int64
	err := db.QueryRowContext(ctx, `
		SELECT owner_id, contact_id, name, phone_number, created_at
		FROM contacts WHERE owner_id = ? AND contact_id = ?`, ownerID, contactID).
		Scan(&c.OwnerID, &c.ContactID, &c.Name, &c.PhoneNumber, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	c.CreatedAt = time.UnixMilli(created)
	return &c, nil
}

// ListContacts returns the owner's contacts ordered by name.
func (db *DB) ListContacts(ctx context.Context, ownerID string) ([]model.Contact, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT owner_id, contact_id, name, phone_number, created_at
		FROM contacts WHERE owner_id = ?
		ORDER BY name COLLATE NOCASE`, ownerID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var contacts []model.Contact
	for rows.Next() {
		var c model.Contact
		var created int64
		if err := rows.Scan(&c.OwnerID, &c.ContactID, &c.Name, &c.PhoneNumber, &created); err != nil {
			return nil, err
		}
		c.CreatedAt = time.UnixMilli(created)
		contacts = append(contacts, c)
	}
	return contacts, rows.Err()
}
