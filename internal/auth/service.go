package auth

import (
	"context"
	"errors"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"uniportal/internal/session"
)

// ErrBadLogin is returned for any login failure. Callers must not learn
// whether the name or the password was wrong.
var ErrBadLogin = errors.New("invalid name or password")

// UserStore is the account lookup the service needs.
type UserStore interface {
	FindByName(ctx context.Context, name string) (*User, error)
	FindByID(ctx context.Context, id int64) (*User, error)
}

// Service handles login and logout against the session store.
type Service struct {
	users    UserStore
	sessions session.Store
	log      *zap.Logger
}

// NewService creates an auth service.
func NewService(users UserStore, sessions session.Store, log *zap.Logger) *Service {
	return &Service{users: users, sessions: sessions, log: log}
}

// Login verifies credentials and opens a new session.
func (s *Service) Login(ctx context.Context, name, password string) (session.Session, error) {
	u, err := s.users.FindByName(ctx, name)
	if err != nil {
		return session.Session{}, err
	}
	if u == nil {
		// Burn a comparison anyway so lookup misses cost the same as bad passwords.
		_ = bcrypt.CompareHashAndPassword([]byte("$2a$10$0000000000000000000000000000000000000000000000000000"), []byte(password))
		return session.Session{}, ErrBadLogin
	}
	if bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)) != nil {
		return session.Session{}, ErrBadLogin
	}
	sess, err := s.sessions.Create(ctx, u.Role, u.ID, u.Name)
	if err != nil {
		return session.Session{}, err
	}
	s.log.Info("login", zap.String("name", u.Name), zap.String("role", string(u.Role)))
	return sess, nil
}

// Logout closes the session. Unknown or already-closed sessions are not an error.
func (s *Service) Logout(ctx context.Context, sessionID string) error {
	err := s.sessions.Close(ctx, sessionID)
	if errors.Is(err, session.ErrNotFound) {
		return nil
	}
	return err
}
