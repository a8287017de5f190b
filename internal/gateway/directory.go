package gateway

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/nyaruka/phonenumbers"

	"github.com/matheus3301/dmsync/internal/model"
	"github.com/matheus3301/dmsync/internal/store"
)

// Directory manages participants and their contact entries.
type Directory struct {
	db            *store.DB
	defaultRegion string
}

// NewDirectory creates a Directory. defaultRegion is the ISO 3166 region used
// when a user is registered without one.
func NewDirectory(db *store.DB, defaultRegion string) *Directory {
	return &Directory{db: db, defaultRegion: strings.ToUpper(defaultRegion)}
}

// NormalizePhone parses a phone number for region and returns it in E.164.
func NormalizePhone(phone, region string) (string, error) {
	num, err := phonenumbers.Parse(phone, strings.ToUpper(region))
	if err != nil {
		return "", fmt.Errorf("parse phone %q: %w", phone, model.ErrInvalid)
	}
	if !phonenumbers.IsPossibleNumber(num) {
		return "", fmt.Errorf("impossible phone %q: %w", phone, model.ErrInvalid)
	}
	return phonenumbers.Format(num, phonenumbers.E164), nil
}

// CreateUser registers a participant. An empty id gets a fresh one; the
// phone number is stored in E.164.
func (d *Directory) CreateUser(ctx context.Context, u model.User) (model.User, error) {
	u.FullName = strings.TrimSpace(u.FullName)
	if u.FullName == "" {
		return model.User{}, fmt.Errorf("create user: empty name: %w", model.ErrInvalid)
	}
	if u.ID == "" {
		u.ID = uuid.NewString()
	} else if !model.ValidIdentity(u.ID) {
		return model.User{}, fmt.Errorf("create user: malformed id %q: %w", u.ID, model.ErrInvalid)
	}
	if u.Region == "" {
		u.Region = d.defaultRegion
	}
	u.Region = strings.ToUpper(u.Region)

	phone, err := NormalizePhone(u.PhoneNumber, u.Region)
	if err != nil {
		return model.User{}, fmt.Errorf("create user: %w", err)
	}
	u.PhoneNumber = phone

	if err := d.db.CreateUser(ctx, &u); err != nil {
		if store.IsConstraintError(err) {
			return model.User{}, fmt.Errorf("create user: id or phone already registered: %w", model.ErrInvalid)
		}
		return model.User{}, fmt.Errorf("create user: %w: %w", model.ErrTransient, err)
	}
	return u, nil
}

// DeleteUser removes a participant. Their messages stay in the log.
func (d *Directory) DeleteUser(ctx context.Context, id string) error {
	ok, err := d.db.DeleteUser(ctx, id)
	if err != nil {
		return fmt.Errorf("delete user: %w: %w", model.ErrTransient, err)
	}
	if !ok {
		return fmt.Errorf("delete user %s: %w", id, model.ErrNotFound)
	}
	return nil
}

// AddContact stores owner's name for the user registered with phone. The
// number is interpreted in the owner's region.
func (d *Directory) AddContact(ctx context.Context, owner, name, phone string) (model.Contact, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return model.Contact{}, fmt.Errorf("add contact: empty name: %w", model.ErrInvalid)
	}
	self, err := d.db.GetUser(ctx, owner)
	if err != nil {
		return model.Contact{}, fmt.Errorf("add contact: %w: %w", model.ErrTransient, err)
	}
	if self == nil {
		return model.Contact{}, fmt.Errorf("add contact: unknown owner %s: %w", owner, model.ErrInvalid)
	}

	normalized, err := NormalizePhone(phone, self.Region)
	if err != nil {
		return model.Contact{}, fmt.Errorf("add contact: %w", err)
	}
	target, err := d.db.UserByPhone(ctx, normalized)
	if err != nil {
		return model.Contact{}, fmt.Errorf("add contact: %w: %w", model.ErrTransient, err)
	}
	if target == nil {
		return model.Contact{}, fmt.Errorf("add contact: no user with phone %s: %w", normalized, model.ErrNotFound)
	}
	if target.ID == owner {
		return model.Contact{}, fmt.Errorf("add contact: cannot add yourself: %w", model.ErrInvalid)
	}

	c := model.Contact{
		OwnerID:     owner,
		ContactID:   target.ID,
		Name:        name,
		PhoneNumber: normalized,
	}
	if err := d.db.AddContact(ctx, &c); err != nil {
		if store.IsConstraintError(err) {
			return model.Contact{}, fmt.Errorf("add contact: already in contacts: %w", model.ErrInvalid)
		}
		return model.Contact{}, fmt.Errorf("add contact: %w: %w", model.ErrTransient, err)
	}
	return c, nil
}

// Contacts lists the owner's contacts by name.
func (d *Directory) Contacts(ctx context.Context, owner string) ([]model.Contact, error) {
	contacts, err := d.db.ListContacts(ctx, owner)
	if err != nil {
		return nil, fmt.Errorf("list contacts: %w: %w", model.ErrTransient, err)
	}
	if contacts == nil {
		contacts = []model.Contact{}
	}
	return contacts, nil
}
