package session

import (
	"context"
	"errors"
	"time"
)

// Role identifies the kind of principal a session belongs to.
type Role string

const (
	RoleStudent Role = "student"
	RoleTeacher Role = "teacher"
	RoleDean    Role = "dean"
	RoleAdmin   Role = "admin"
)

// Status tracks the session lifecycle. A closed session never re-activates.
type Status string

const (
	StatusActive Status = "active"
	StatusClosed Status = "closed"
)

// Session is an authenticated principal's live login state, looked up per request.
type Session struct {
	ID         string    `json:"id"`
	Role       Role      `json:"role"`
	UserID     int64     `json:"user_id"`
	Name       string    `json:"name"`
	Status     Status    `json:"status"`
	CreatedAt  time.Time `json:"created_at"`
	LastSeenAt time.Time `json:"last_seen_at"`
}

// Active reports whether the session may authenticate a request.
func (s Session) Active() bool {
	return s.Status == StatusActive
}

// ErrNotFound is returned when no session exists for an identifier.
var ErrNotFound = errors.New("session not found")

// Store persists session records. Every mutation is a write-through;
// session checks gate every request, so correctness wins over throughput.
type Store interface {
	Create(ctx context.Context, role Role, userID int64, name string) (Session, error)
	Get(ctx context.Context, id string) (Session, error)
	Touch(ctx context.Context, id string) error
	Close(ctx context.Context, id string) error
}
