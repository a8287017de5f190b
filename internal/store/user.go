package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/matheus3301/dmsync/internal/model"
)

// CreateUser inserts a participant. Duplicate ids or phone numbers surface
// as constraint errors (see IsConstraintError).
func (db *DB) CreateUser(ctx context.Context, u *model.User) error {
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now()
	}
	_, err := db.ExecContext(ctx, `
		INSERT INTO users (id, full_name, phone_number, region, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		u.ID, u.FullName, u.PhoneNumber, u.Region, u.CreatedAt.UnixMilli())
	return err
}

// GetUser returns a user by id, or nil when it does not exist.
func (db *DB) GetUser(ctx context.Context, id string) (*model.User, error) {
	return db.scanUser(db.QueryRowContext(ctx, `
		SELECT id, full_name, phone_number, region, created_at
		FROM users WHERE id = ?`, id))
}

// UserByPhone returns the user registered with the phone number, or nil.
func (db *DB) UserByPhone(ctx context.Context, phone string) (*model.User, error) {
	return db.scanUser(db.QueryRowContext(ctx, `
		SELECT id, full_name, phone_number, region, created_at
		FROM users WHERE phone_number = ?`, phone))
}

// UserExists reports whether a user with the id is registered.
func (db *DB) UserExists(ctx context.Context, id string) (bool, error) {
	var one int
	err := db.QueryRowContext(ctx, `SELECT 1 FROM users WHERE id = ?`, id).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// DeleteUser removes a user and their contact entries. Messages are kept.
// Returns false when no such user existed.
func (db *DB) DeleteUser(ctx context.Context, id string) (bool, error) {
	res, err := db.ExecContext(ctx, `DELETE FROM users WHERE id = ?`, id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (db *DB) scanUser(row *sql.Row) (*model.User, error) {
	var u model.User
	var created int64
	err := row.Scan(&u.ID, &u.FullName, &u.PhoneNumber, &u.Region, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	u.CreatedAt = time.UnixMilli(created)
	return &u, nil
}
