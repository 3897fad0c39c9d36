package auth

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/avelichko/circlechat-server/internal/store"
)

type memUserStore struct {
	users map[string]*store.User
}

func newMemUserStore() *memUserStore {
	return &memUserStore{users: make(map[string]*store.User)}
}

func (m *memUserStore) CreateUser(_ context.Context, u *store.User) error {
	m.users[u.ID] = u
	return nil
}

func (m *memUserStore) GetUserByID(_ context.Context, id string) (*store.User, error) {
	u, ok := m.users[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return u, nil
}

func (m *memUserStore) GetUserByUsername(_ context.Context, name string) (*store.User, error) {
	for _, u := range m.users {
		if u.Username == name {
			return u, nil
		}
	}
	return nil, store.ErrNotFound
}

func newTestService() (*Service, *memUserStore) {
	st := newMemUserStore()
	return NewService(st, testJWTConfig()), st
}

func TestRegisterAndLogin(t *testing.T) {
	svc, st := newTestService()
	ctx := context.Background()

	token, err := svc.Register(ctx, "alice", "secret1")
	require.NoError(t, err)
	require.Len(t, st.users, 1)

	claims, err := svc.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, "alice", claims.Username)
	assert.NotEmpty(t, claims.UserID)

	token, err = svc.Login(ctx, "alice", "secret1")
	require.NoError(t, err)
	claims2, err := svc.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, claims.UserID, claims2.UserID)
}

func TestRegisterValidation(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	_, err := svc.Register(ctx, "ab", "secret1")
	assert.ErrorIs(t, err, ErrInvalidUsername)

	_, err = svc.Register(ctx, "alice", "short")
	assert.ErrorIs(t, err, ErrInvalidPassword)

	_, err = svc.Register(ctx, "alice", "secret1")
	require.NoError(t, err)
	_, err = svc.Register(ctx, "alice", "secret1")
	assert.ErrorIs(t, err, ErrUserExists)
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	_, err := svc.Register(ctx, "alice", "secret1")
	require.NoError(t, err)

	_, err = svc.Login(ctx, "alice", "wrongpass")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = svc.Login(ctx, "nobody", "secret1")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}
