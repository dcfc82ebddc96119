package auth

import (
	"context"
	"database/sql"
	"errors"

	"uniportal/internal/session"
)

// User is an account row from the users table.
type User struct {
	ID           int64
	Name         string
	PasswordHash string
	Role         session.Role
	// StudentID is the zach number for student accounts, empty otherwise.
	StudentID string
	GroupName string
}

// Repository loads user accounts from Postgres.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a repo.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// FindByName returns the user with the given login name, or nil when absent.
func (r *Repository) FindByName(ctx context.Context, name string) (*User, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, name, password_hash, role, COALESCE(zach_number, ''), COALESCE(group_name, '')
		FROM users WHERE name = $1
	`, name)
	var u User
	if err := row.Scan(&u.ID, &u.Name, &u.PasswordHash, &u.Role, &u.StudentID, &u.GroupName); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &u, nil
}

// FindByID returns the user with the given id, or nil when absent.
func (r *Repository) FindByID(ctx context.Context, id int64) (*User, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, name, password_hash, role, COALESCE(zach_number, ''), COALESCE(group_name, '')
		FROM users WHERE id = $1
	`, id)
	var u User
	if err := row.Scan(&u.ID, &u.Name, &u.PasswordHash, &u.Role, &u.StudentID, &u.GroupName); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &u, nil
}
