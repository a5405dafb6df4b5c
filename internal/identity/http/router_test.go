package http

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/openshelf-dev/identity/internal/identity/domain"
	"github.com/openshelf-dev/identity/internal/identity/service"
	"github.com/openshelf-dev/identity/internal/identity/store"
	"github.com/openshelf-dev/identity/internal/identity/store/drivers/sqlite"
	"github.com/openshelf-dev/identity/pkg/cryptox"
	"github.com/openshelf-dev/identity/pkg/idx"
	"github.com/openshelf-dev/identity/pkg/jwtx"
	"github.com/pquerna/otp/totp"
	"github.com/stretchr/testify/require"
)

type testEnv struct {
	router *Router
	store  store.Store
	codec  *jwtx.Codec

	// Each request gets a distinct client IP so per-IP rate limit
	// profiles never interfere across test cases.
	nextIP int
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	cryptox.SetPepperPath(filepath.Join(t.TempDir(), "pepper"))

	st, err := sqlite.NewStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	require.NoError(t, st.ApplyMigrations())

	signer, err := jwtx.NewEphemeralSignerEdDSA()
	require.NoError(t, err)
	codec, err := jwtx.NewCodec(signer, "openshelf-test")
	require.NoError(t, err)

	userService := &service.UserService{Store: st}
	secondFactorService := &service.SecondFactorService{Store: st, Issuer: "openshelf-test"}
	authService := service.NewAuthService(st, codec, secondFactorService,
		15*time.Minute, 10*time.Minute, 7*24*time.Hour)

	router := NewRouter(codec, "test", st, slog.Default())
	router.AuthService = authService
	router.UserService = userService
	router.SecondFactorService = secondFactorService
	router.ApplyRoutes()

	return &testEnv{router: router, store: st, codec: codec}
}

// do issues a JSON request against the router and decodes the response body
// into out when it is non-nil.
func (e *testEnv) do(t *testing.T, method, path, bearer string, body, out any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}

	req := httptest.NewRequest(method, path, &buf)
	e.nextIP++
	req.Header.Set("X-Forwarded-For", fmt.Sprintf("198.51.100.%d", e.nextIP%250+1))
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)

	if out != nil && rec.Code < 300 {
		require.NoError(t, json.NewDecoder(rec.Body).Decode(out))
	}
	return rec
}

func (e *testEnv) signup(t *testing.T, username, password string) {
	t.Helper()

	rec := e.do(t, http.MethodPost, "/v1/auth/signup", "", map[string]string{
		"username": username,
		"email":    username + "@example.com",
		"password": password,
	}, nil)
	require.Equal(t, http.StatusCreated, rec.Code)
}

func (e *testEnv) login(t *testing.T, identifier, password string) tokenResponse {
	t.Helper()

	var grant tokenResponse
	rec := e.do(t, http.MethodPost, "/v1/auth/login", "", map[string]string{
		"identifier": identifier,
		"password":   password,
	}, &grant)
	require.Equal(t, http.StatusOK, rec.Code)
	return grant
}

func TestSignupAndLoginFlow(t *testing.T) {
	env := newTestEnv(t)

	env.signup(t, "alice", "password-one")

	t.Run("duplicate signup conflicts", func(t *testing.T) {
		rec := env.do(t, http.MethodPost, "/v1/auth/signup", "", map[string]string{
			"username": "alice",
			"email":    "alice@example.com",
			"password": "password-one",
		}, nil)
		require.Equal(t, http.StatusConflict, rec.Code)
	})

	t.Run("invalid body rejected", func(t *testing.T) {
		rec := env.do(t, http.MethodPost, "/v1/auth/signup", "", map[string]string{
			"username": "x",
		}, nil)
		require.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("login returns an access grant", func(t *testing.T) {
		grant := env.login(t, "alice", "password-one")
		require.Equal(t, "access", grant.TokenKind)
		require.NotEmpty(t, grant.Token)
		require.NotEmpty(t, grant.RefreshToken)
	})

	t.Run("wrong password is 401", func(t *testing.T) {
		rec := env.do(t, http.MethodPost, "/v1/auth/login", "", map[string]string{
			"identifier": "alice",
			"password":   "wrong",
		}, nil)
		require.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("me requires and honours the bearer token", func(t *testing.T) {
		grant := env.login(t, "alice", "password-one")

		var me principalResponse
		rec := env.do(t, http.MethodGet, "/v1/me", grant.Token, nil, &me)
		require.Equal(t, http.StatusOK, rec.Code)
		require.Equal(t, "alice", me.Username)
		require.Equal(t, "client", me.Role)

		rec = env.do(t, http.MethodGet, "/v1/me", "", nil, nil)
		require.Equal(t, http.StatusUnauthorized, rec.Code)

		rec = env.do(t, http.MethodGet, "/v1/me", "not-a-token", nil, nil)
		require.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("refresh rotates the grant", func(t *testing.T) {
		grant := env.login(t, "alice", "password-one")

		var next tokenResponse
		rec := env.do(t, http.MethodPost, "/v1/auth/refresh", "", map[string]string{
			"refresh_token": grant.RefreshToken,
		}, &next)
		require.Equal(t, http.StatusOK, rec.Code)
		require.Equal(t, "access", next.TokenKind)

		// An access token is not accepted as a refresh token.
		rec = env.do(t, http.MethodPost, "/v1/auth/refresh", "", map[string]string{
			"refresh_token": grant.Token,
		}, nil)
		require.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("password change requires the current password", func(t *testing.T) {
		grant := env.login(t, "alice", "password-one")

		rec := env.do(t, http.MethodPost, "/v1/auth/password", grant.Token, map[string]string{
			"current_password": "wrong",
			"new_password":     "password-two",
		}, nil)
		require.Equal(t, http.StatusUnauthorized, rec.Code)

		rec = env.do(t, http.MethodPost, "/v1/auth/password", grant.Token, map[string]string{
			"current_password": "password-one",
			"new_password":     "password-two",
		}, nil)
		require.Equal(t, http.StatusNoContent, rec.Code)

		env.login(t, "alice", "password-two")
	})

	t.Run("logout is stateless", func(t *testing.T) {
		grant := env.login(t, "alice", "password-two")
		rec := env.do(t, http.MethodPost, "/v1/auth/logout", grant.Token, nil, nil)
		require.Equal(t, http.StatusNoContent, rec.Code)
	})
}

func TestDeactivatedPrincipalLosesAccess(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	env.signup(t, "alice", "password-one")
	grant := env.login(t, "alice", "password-one")

	var me principalResponse
	rec := env.do(t, http.MethodGet, "/v1/me", grant.Token, nil, &me)
	require.Equal(t, http.StatusOK, rec.Code)

	// Soft-delete out from under the still-valid token. Every guarded
	// endpoint re-resolves the principal, so the token dies with the row.
	require.NoError(t, env.store.Principals().SoftDelete(ctx, me.ID, time.Now().UTC()))

	rec = env.do(t, http.MethodGet, "/v1/me", grant.Token, nil, nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = env.do(t, http.MethodPost, "/v1/auth/password", grant.Token, map[string]string{
		"current_password": "password-one",
		"new_password":     "password-two",
	}, nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = env.do(t, http.MethodGet, "/v1/second-factor/status", grant.Token, nil, nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = env.do(t, http.MethodPost, "/v1/second-factor/enroll/initiate", grant.Token, nil, nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	// The password change above must not have gone through.
	stored, err := env.store.Principals().GetByID(ctx, me.ID)
	require.NoError(t, err)
	require.NoError(t, cryptox.VerifyPassword("password-one", stored.PasswordHash))

	// Refresh stops too.
	rec = env.do(t, http.MethodPost, "/v1/auth/refresh", "", map[string]string{
		"refresh_token": grant.RefreshToken,
	}, nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestSecondFactorFlowOverHTTP(t *testing.T) {
	env := newTestEnv(t)

	env.signup(t, "alice", "password-one")
	grant := env.login(t, "alice", "password-one")

	// Initiate enrollment.
	var enrollment enrollmentResponse
	rec := env.do(t, http.MethodPost, "/v1/second-factor/enroll/initiate", grant.Token, nil, &enrollment)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NotEmpty(t, enrollment.Secret)
	require.Contains(t, enrollment.ProvisioningURI, "otpauth://totp/")

	code := func() string {
		c, err := totp.GenerateCode(enrollment.Secret, time.Now().UTC())
		require.NoError(t, err)
		return c
	}

	// A wrong code must not complete enrollment.
	rec = env.do(t, http.MethodPost, "/v1/second-factor/enroll/complete", grant.Token, map[string]string{
		"secret": enrollment.Secret,
		"code":   "000000",
	}, nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	// The right code does, and hands over backup codes once.
	var codes backupCodesResponse
	rec = env.do(t, http.MethodPost, "/v1/second-factor/enroll/complete", grant.Token, map[string]string{
		"secret": enrollment.Secret,
		"code":   code(),
	}, &codes)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, codes.BackupCodes, 10)

	// Login now yields a pending grant.
	var pending tokenResponse
	rec = env.do(t, http.MethodPost, "/v1/auth/login", "", map[string]string{
		"identifier": "alice",
		"password":   "password-one",
	}, &pending)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "second_factor_pending", pending.TokenKind)
	require.Empty(t, pending.RefreshToken)

	// The pending token is not an access token.
	rec = env.do(t, http.MethodGet, "/v1/me", pending.Token, nil, nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	// Completing the challenge yields the real grant.
	var full tokenResponse
	rec = env.do(t, http.MethodPost, "/v1/second-factor/verify", "", map[string]string{
		"pending_token": pending.Token,
		"code":          code(),
	}, &full)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "access", full.TokenKind)
	require.NotEmpty(t, full.RefreshToken)

	// Status reflects the enrollment.
	var status secondFactorStatusResponse
	rec = env.do(t, http.MethodGet, "/v1/second-factor/status", full.Token, nil, &status)
	require.Equal(t, http.StatusOK, rec.Code)
	require.True(t, status.Enabled)
	require.Equal(t, 10, status.BackupCodesLeft)

	// A backup code also completes a challenge, exactly once.
	var pending2 tokenResponse
	rec = env.do(t, http.MethodPost, "/v1/auth/login", "", map[string]string{
		"identifier": "alice",
		"password":   "password-one",
	}, &pending2)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(t, http.MethodPost, "/v1/second-factor/verify", "", map[string]string{
		"pending_token": pending2.Token,
		"code":          codes.BackupCodes[0],
	}, &full)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(t, http.MethodPost, "/v1/auth/login", "", map[string]string{
		"identifier": "alice",
		"password":   "password-one",
	}, &pending2)
	require.Equal(t, http.StatusOK, rec.Code)
	rec = env.do(t, http.MethodPost, "/v1/second-factor/verify", "", map[string]string{
		"pending_token": pending2.Token,
		"code":          codes.BackupCodes[0],
	}, nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	// Disabling needs password and a live code.
	rec = env.do(t, http.MethodPost, "/v1/second-factor/disable", full.Token, map[string]string{
		"password": "wrong",
		"code":     code(),
	}, nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = env.do(t, http.MethodPost, "/v1/second-factor/disable", full.Token, map[string]string{
		"password": "password-one",
		"code":     code(),
	}, nil)
	require.Equal(t, http.StatusNoContent, rec.Code)

	// Back to single-factor logins.
	grant = env.login(t, "alice", "password-one")
	require.Equal(t, "access", grant.TokenKind)
}

func TestAdminRoutesEnforceRoles(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	createWithRole := func(username string, role domain.Role) domain.Principal {
		hash, err := cryptox.HashPassword("password-" + username)
		require.NoError(t, err)

		now := time.Now().UTC()
		p := domain.Principal{
			ID:           idx.New().String(),
			Username:     username,
			Email:        username + "@example.com",
			PasswordHash: hash,
			Role:         role,
			Active:       true,
			CreatedAt:    now,
			UpdatedAt:    now,
		}
		require.NoError(t, env.store.Principals().Create(ctx, p))
		return p
	}

	client := createWithRole("client", domain.RoleClient)
	createWithRole("admin", domain.RoleAdmin)
	createWithRole("root", domain.RoleSuperAdmin)

	clientGrant := env.login(t, "client", "password-client")
	adminGrant := env.login(t, "admin", "password-admin")
	rootGrant := env.login(t, "root", "password-root")

	target := fmt.Sprintf("/v1/admin/principals/%s", client.ID)

	t.Run("client is forbidden", func(t *testing.T) {
		rec := env.do(t, http.MethodGet, target, clientGrant.Token, nil, nil)
		require.Equal(t, http.StatusForbidden, rec.Code)
	})

	t.Run("admin can read but not deactivate", func(t *testing.T) {
		var p principalResponse
		rec := env.do(t, http.MethodGet, target, adminGrant.Token, nil, &p)
		require.Equal(t, http.StatusOK, rec.Code)
		require.Equal(t, "client", p.Username)

		rec = env.do(t, http.MethodDelete, target, adminGrant.Token, nil, nil)
		require.Equal(t, http.StatusForbidden, rec.Code)
	})

	t.Run("super admin cannot deactivate themselves", func(t *testing.T) {
		var self principalResponse
		rec := env.do(t, http.MethodGet, "/v1/me", rootGrant.Token, nil, &self)
		require.Equal(t, http.StatusOK, rec.Code)

		rec = env.do(t, http.MethodDelete, "/v1/admin/principals/"+self.ID, rootGrant.Token, nil, nil)
		require.Equal(t, http.StatusConflict, rec.Code)

		// Still active afterwards.
		env.login(t, "root", "password-root")
	})

	t.Run("super admin can deactivate", func(t *testing.T) {
		rec := env.do(t, http.MethodDelete, target, rootGrant.Token, nil, nil)
		require.Equal(t, http.StatusNoContent, rec.Code)

		// The deactivated principal cannot log in anymore.
		rec = env.do(t, http.MethodPost, "/v1/auth/login", "", map[string]string{
			"identifier": "client",
			"password":   "password-client",
		}, nil)
		require.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("unknown principal is 404", func(t *testing.T) {
		rec := env.do(t, http.MethodGet, "/v1/admin/principals/"+idx.New().String(), rootGrant.Token, nil, nil)
		require.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestSystemEndpoints(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/livez", "", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var health healthResponse
	rec = env.do(t, http.MethodGet, "/readyz", "", nil, &health)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "ok", health.Status)
	require.Equal(t, "ok", health.Checks.Database)

	rec = env.do(t, http.MethodGet, "/metrics", "", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
}
