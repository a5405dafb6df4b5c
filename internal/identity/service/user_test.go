package service

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/openshelf-dev/identity/internal/identity/domain"
	"github.com/openshelf-dev/identity/pkg/cryptox"
	"github.com/stretchr/testify/require"
)

func TestRegister(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	svc := &UserService{Store: st}

	cryptox.SetPepperPath(filepath.Join(t.TempDir(), "pepper"))

	t.Run("creates an active client principal", func(t *testing.T) {
		p, err := svc.Register(ctx, "alice", "Alice@Example.com", "password-one")
		require.NoError(t, err)
		require.Equal(t, domain.RoleClient, p.Role)
		require.True(t, p.Active)
		require.False(t, p.SecondFactorEnabled)
		require.Equal(t, "alice@example.com", p.Email)
		require.NotEqual(t, "password-one", p.PasswordHash)
		require.NoError(t, cryptox.VerifyPassword("password-one", p.PasswordHash))
	})

	t.Run("rejects duplicate identifiers", func(t *testing.T) {
		_, err := svc.Register(ctx, "alice", "other@example.com", "password-x")
		require.ErrorIs(t, err, ErrIdentifierTaken)

		_, err = svc.Register(ctx, "other", "alice@example.com", "password-x")
		require.ErrorIs(t, err, ErrIdentifierTaken)
	})
}

func TestChangePassword(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	svc := &UserService{Store: st}

	alice := createTestPrincipal(t, st, "alice", "old-password")

	t.Run("requires the current password", func(t *testing.T) {
		err := svc.ChangePassword(ctx, alice, "wrong", "new-password")
		require.ErrorIs(t, err, ErrInvalidCredentials)
	})

	t.Run("persists the new hash", func(t *testing.T) {
		require.NoError(t, svc.ChangePassword(ctx, alice, "old-password", "new-password"))

		refreshed, err := st.Principals().GetByID(ctx, alice.ID)
		require.NoError(t, err)
		require.NoError(t, cryptox.VerifyPassword("new-password", refreshed.PasswordHash))
		require.Error(t, cryptox.VerifyPassword("old-password", refreshed.PasswordHash))
	})
}

func TestDeactivate(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	svc := &UserService{Store: st}

	alice := createTestPrincipal(t, st, "alice", "password-one")

	require.NoError(t, svc.Deactivate(ctx, alice.ID))

	refreshed, err := st.Principals().GetByID(ctx, alice.ID)
	require.NoError(t, err)
	require.NotNil(t, refreshed.DeletedAt)
	require.False(t, refreshed.CanAuthenticate())
}
