package auth

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"uniportal/internal/session"
)

type memUsers struct {
	users map[string]*User
}

func (m *memUsers) FindByName(_ context.Context, name string) (*User, error) {
	return m.users[name], nil
}

func (m *memUsers) FindByID(_ context.Context, id int64) (*User, error) {
	for _, u := range m.users {
		if u.ID == id {
			return u, nil
		}
	}
	return nil, nil
}

func newTestAuth(t *testing.T) (*Service, *memSessions) {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte("swordfish"), bcrypt.MinCost)
	require.NoError(t, err)
	users := &memUsers{users: map[string]*User{
		"Ivanov": {ID: 7, Name: "Ivanov", PasswordHash: string(hash), Role: session.RoleTeacher},
	}}
	sessions := newMemSessions()
	return NewService(users, sessions, zap.NewNop()), sessions
}

func TestLoginCreatesActiveSession(t *testing.T) {
	svc, sessions := newTestAuth(t)

	sess, err := svc.Login(context.Background(), "Ivanov", "swordfish")
	require.NoError(t, err)

	assert.Equal(t, session.RoleTeacher, sess.Role)
	assert.Equal(t, int64(7), sess.UserID)
	assert.Equal(t, session.StatusActive, sess.Status)

	stored, err := sessions.Get(context.Background(), sess.ID)
	require.NoError(t, err)
	assert.True(t, stored.Active())
}

func TestLoginFailuresAreUniform(t *testing.T) {
	svc, _ := newTestAuth(t)

	_, badPassword := svc.Login(context.Background(), "Ivanov", "wrong")
	_, badName := svc.Login(context.Background(), "Nobody", "swordfish")

	assert.ErrorIs(t, badPassword, ErrBadLogin)
	assert.ErrorIs(t, badName, ErrBadLogin)
	assert.Equal(t, badPassword, badName)
}

func TestLogoutClosesSessionPermanently(t *testing.T) {
	svc, sessions := newTestAuth(t)

	sess, err := svc.Login(context.Background(), "Ivanov", "swordfish")
	require.NoError(t, err)
	require.NoError(t, svc.Logout(context.Background(), sess.ID))

	stored, err := sessions.Get(context.Background(), sess.ID)
	require.NoError(t, err)
	assert.False(t, stored.Active())

	// Logging out again is fine, and so is logging out an unknown session.
	assert.NoError(t, svc.Logout(context.Background(), sess.ID))
	assert.NoError(t, svc.Logout(context.Background(), "ghost"))
}
