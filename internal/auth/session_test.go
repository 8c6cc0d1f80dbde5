package auth

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeProvider struct {
	users      map[string]string
	signOutErr error
}

func (f *fakeProvider) SignIn(_ context.Context, email, password string) (*Identity, error) {
	if f.users[email] != password {
		return nil, ErrInvalidCredentials
	}
	return &Identity{UID: "uid-" + email, Email: email}, nil
}

func (f *fakeProvider) SignOut(context.Context) error {
	return f.signOutErr
}

func TestSession_SignInAndOut(t *testing.T) {
	ctx := context.Background()
	s := NewSession(&fakeProvider{users: map[string]string{"ana": "pw"}}, zap.NewNop())

	var changes []*Identity
	s.OnChange(func(id *Identity) { changes = append(changes, id) })

	assert.Nil(t, s.CurrentUser())
	assert.Empty(t, s.CurrentUID())

	_, err := s.SignIn(ctx, "ana", "bad")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	assert.Nil(t, s.CurrentUser())

	id, err := s.SignIn(ctx, "ana", "pw")
	require.NoError(t, err)
	assert.Same(t, id, s.CurrentUser())
	assert.Equal(t, "uid-ana", s.CurrentUID())

	require.NoError(t, s.SignOut(ctx))
	assert.Nil(t, s.CurrentUser())
	assert.ErrorIs(t, s.SignOut(ctx), ErrNotSignedIn)

	require.Len(t, changes, 2)
	assert.Equal(t, "uid-ana", changes[0].UID)
	assert.Nil(t, changes[1])
}

func TestSession_SignOutFailureKeepsUser(t *testing.T) {
	ctx := context.Background()
	p := &fakeProvider{users: map[string]string{"ana": "pw"}, signOutErr: errors.New("offline")}
	s := NewSession(p, zap.NewNop())
	_, err := s.SignIn(ctx, "ana", "pw")
	require.NoError(t, err)

	assert.Error(t, s.SignOut(ctx))
	assert.NotNil(t, s.CurrentUser())
}

func TestSession_WithoutProvider(t *testing.T) {
	s := NewSession(nil, zap.NewNop())
	_, err := s.SignIn(context.Background(), "ana", "pw")
	assert.ErrorIs(t, err, ErrNoProvider)
}
