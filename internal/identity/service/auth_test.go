package service

import (
	"context"
	"testing"
	"time"

	"github.com/openshelf-dev/identity/internal/identity/store"
	"github.com/openshelf-dev/identity/pkg/jwtx"
	"github.com/stretchr/testify/require"
)

func newTestAuthService(t *testing.T, st store.Store) *AuthService {
	t.Helper()

	signer, err := jwtx.NewEphemeralSignerEdDSA()
	require.NoError(t, err)
	codec, err := jwtx.NewCodec(signer, "openshelf-test")
	require.NoError(t, err)

	sf := &SecondFactorService{Store: st, Issuer: "openshelf-test"}
	return NewAuthService(st, codec, sf, 15*time.Minute, 10*time.Minute, 7*24*time.Hour)
}

func TestLogin(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	svc := newTestAuthService(t, st)

	alice := createTestPrincipal(t, st, "alice", "password-one")

	t.Run("valid credentials yield access and refresh tokens", func(t *testing.T) {
		grant, err := svc.Login(ctx, "alice", "password-one")
		require.NoError(t, err)
		require.Equal(t, jwtx.KindAccess, grant.TokenKind)
		require.NotEmpty(t, grant.Token)
		require.NotEmpty(t, grant.RefreshToken)
		require.Equal(t, int64((15 * time.Minute).Seconds()), grant.ExpiresIn)

		claims, err := svc.Codec.Decode(grant.Token, jwtx.KindAccess)
		require.NoError(t, err)
		require.Equal(t, alice.ID, claims.Subject)
		require.Equal(t, "client", claims.Role)
		require.Equal(t, "alice", claims.Handle)

		refreshed, err := st.Principals().GetByID(ctx, alice.ID)
		require.NoError(t, err)
		require.Equal(t, 1, refreshed.LoginCount)
		require.NotNil(t, refreshed.LastLogin)
	})

	t.Run("email works as identifier", func(t *testing.T) {
		grant, err := svc.Login(ctx, "alice@example.com", "password-one")
		require.NoError(t, err)
		require.Equal(t, jwtx.KindAccess, grant.TokenKind)
	})

	t.Run("wrong password is invalid credentials", func(t *testing.T) {
		_, err := svc.Login(ctx, "alice", "wrong")
		require.ErrorIs(t, err, ErrInvalidCredentials)
	})

	t.Run("unknown identifier is indistinguishable from wrong password", func(t *testing.T) {
		_, err := svc.Login(ctx, "nobody", "password-one")
		require.ErrorIs(t, err, ErrInvalidCredentials)
	})

	t.Run("soft deleted principal cannot log in", func(t *testing.T) {
		ghost := createTestPrincipal(t, st, "ghost", "password-g")
		require.NoError(t, st.Principals().SoftDelete(ctx, ghost.ID, time.Now().UTC()))

		_, err := svc.Login(ctx, "ghost", "password-g")
		require.ErrorIs(t, err, ErrInvalidCredentials)
	})
}

func TestLoginWithSecondFactor(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	svc := newTestAuthService(t, st)

	alice := createTestPrincipal(t, st, "alice", "password-one")
	alice, secret, backupCodes := enrollPrincipal(t, st, svc.SecondFactor, alice)

	t.Run("login yields a pending grant, never access", func(t *testing.T) {
		grant, err := svc.Login(ctx, "alice", "password-one")
		require.NoError(t, err)
		require.Equal(t, jwtx.KindSecondFactorPending, grant.TokenKind)
		require.Empty(t, grant.RefreshToken)
		require.True(t, grant.Pending())

		// The pending token must not pass as an access token.
		_, err = svc.Codec.Decode(grant.Token, jwtx.KindAccess)
		require.ErrorIs(t, err, jwtx.ErrTokenInvalid)

		// And no login is recorded yet.
		refreshed, err := st.Principals().GetByID(ctx, alice.ID)
		require.NoError(t, err)
		require.Zero(t, refreshed.LoginCount)
	})

	t.Run("challenge with totp code completes the login", func(t *testing.T) {
		grant, err := svc.Login(ctx, "alice", "password-one")
		require.NoError(t, err)

		full, err := svc.CompleteSecondFactor(ctx, grant.Token, currentCode(t, secret))
		require.NoError(t, err)
		require.Equal(t, jwtx.KindAccess, full.TokenKind)
		require.NotEmpty(t, full.RefreshToken)

		refreshed, err := st.Principals().GetByID(ctx, alice.ID)
		require.NoError(t, err)
		require.Equal(t, 1, refreshed.LoginCount)
	})

	t.Run("challenge with backup code completes the login", func(t *testing.T) {
		grant, err := svc.Login(ctx, "alice", "password-one")
		require.NoError(t, err)

		full, err := svc.CompleteSecondFactor(ctx, grant.Token, backupCodes[0])
		require.NoError(t, err)
		require.Equal(t, jwtx.KindAccess, full.TokenKind)

		// The same backup code cannot complete a second login.
		grant, err = svc.Login(ctx, "alice", "password-one")
		require.NoError(t, err)
		_, err = svc.CompleteSecondFactor(ctx, grant.Token, backupCodes[0])
		require.ErrorIs(t, err, ErrInvalidSecondFactor)
	})

	t.Run("challenge rejects wrong codes", func(t *testing.T) {
		grant, err := svc.Login(ctx, "alice", "password-one")
		require.NoError(t, err)

		_, err = svc.CompleteSecondFactor(ctx, grant.Token, "000000")
		require.ErrorIs(t, err, ErrInvalidSecondFactor)
	})

	t.Run("challenge rejects non-pending tokens", func(t *testing.T) {
		createTestPrincipal(t, st, "bob", "password-two")
		grant, err := svc.Login(ctx, "bob", "password-two")
		require.NoError(t, err)
		require.Equal(t, jwtx.KindAccess, grant.TokenKind)

		_, err = svc.CompleteSecondFactor(ctx, grant.Token, currentCode(t, secret))
		require.ErrorIs(t, err, ErrInvalidToken)

		_, err = svc.CompleteSecondFactor(ctx, "garbage", currentCode(t, secret))
		require.ErrorIs(t, err, ErrInvalidToken)
	})
}

func TestCompleteSecondFactorAttemptBudget(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	svc := newTestAuthService(t, st)

	alice := createTestPrincipal(t, st, "alice", "password-one")
	alice, secret, _ := enrollPrincipal(t, st, svc.SecondFactor, alice)

	grant, err := svc.Login(ctx, "alice", "password-one")
	require.NoError(t, err)

	for range maxSecondFactorAttempts {
		_, err := svc.CompleteSecondFactor(ctx, grant.Token, "000000")
		require.ErrorIs(t, err, ErrInvalidSecondFactor)
	}

	// Budget exhausted: even the correct code is refused now.
	_, err = svc.CompleteSecondFactor(ctx, grant.Token, currentCode(t, secret))
	require.ErrorIs(t, err, ErrTooManyAttempts)
}

func TestRefresh(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	svc := newTestAuthService(t, st)

	alice := createTestPrincipal(t, st, "alice", "password-one")

	grant, err := svc.Login(ctx, "alice", "password-one")
	require.NoError(t, err)

	t.Run("refresh token yields a fresh grant", func(t *testing.T) {
		next, err := svc.Refresh(ctx, grant.RefreshToken)
		require.NoError(t, err)
		require.Equal(t, jwtx.KindAccess, next.TokenKind)
		require.NotEmpty(t, next.RefreshToken)

		claims, err := svc.Codec.Decode(next.Token, jwtx.KindAccess)
		require.NoError(t, err)
		require.Equal(t, alice.ID, claims.Subject)
	})

	t.Run("access token is not a refresh token", func(t *testing.T) {
		_, err := svc.Refresh(ctx, grant.Token)
		require.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("refresh stops once the principal is soft deleted", func(t *testing.T) {
		require.NoError(t, st.Principals().SoftDelete(ctx, alice.ID, time.Now().UTC()))

		_, err := svc.Refresh(ctx, grant.RefreshToken)
		require.ErrorIs(t, err, ErrInvalidToken)
	})
}

func TestAuthenticate(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	svc := newTestAuthService(t, st)

	alice := createTestPrincipal(t, st, "alice", "password-one")

	grant, err := svc.Login(ctx, "alice", "password-one")
	require.NoError(t, err)

	principal, err := svc.Authenticate(ctx, grant.Token)
	require.NoError(t, err)
	require.Equal(t, alice.ID, principal.ID)

	_, err = svc.Authenticate(ctx, grant.RefreshToken)
	require.ErrorIs(t, err, ErrInvalidToken)

	require.NoError(t, st.Principals().SoftDelete(ctx, alice.ID, time.Now().UTC()))
	_, err = svc.Authenticate(ctx, grant.Token)
	require.ErrorIs(t, err, ErrInvalidToken)
}
