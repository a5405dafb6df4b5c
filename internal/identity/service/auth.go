package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/openshelf-dev/identity/internal/identity/domain"
	"github.com/openshelf-dev/identity/internal/identity/metrics"
	"github.com/openshelf-dev/identity/internal/identity/store"
	"github.com/openshelf-dev/identity/pkg/cryptox"
	"github.com/openshelf-dev/identity/pkg/jwtx"
	"github.com/openshelf-dev/identity/pkg/slogx"
)

var (
	ErrInvalidCredentials = errors.New("invalid_credentials")
	ErrInvalidToken       = errors.New("invalid_token")
	ErrTooManyAttempts    = errors.New("too_many_attempts")
)

// AuthService is the credential and session authority: it turns passwords
// into token grants, drives the second-factor challenge step, and rotates
// refresh tokens. Every credential failure surfaces as ErrInvalidCredentials
// so responses never reveal whether the account, the password, or the
// account's state was the problem.
type AuthService struct {
	Store        store.Store
	Codec        *jwtx.Codec
	SecondFactor *SecondFactorService

	AccessTTL  time.Duration
	PendingTTL time.Duration
	RefreshTTL time.Duration

	attempts *attemptLimiter
}

// NewAuthService wires an AuthService with the default attempt budget for
// second-factor challenges.
func NewAuthService(st store.Store, codec *jwtx.Codec, sf *SecondFactorService, accessTTL, pendingTTL, refreshTTL time.Duration) *AuthService {
	return &AuthService{
		Store:        st,
		Codec:        codec,
		SecondFactor: sf,
		AccessTTL:    accessTTL,
		PendingTTL:   pendingTTL,
		RefreshTTL:   refreshTTL,
		attempts:     newAttemptLimiter(maxSecondFactorAttempts, 15*time.Minute),
	}
}

// Login verifies an identifier/password pair. For principals without a
// second factor it returns a full grant; for enrolled principals it returns
// a pending grant whose token is only good for CompleteSecondFactor.
func (s *AuthService) Login(ctx context.Context, identifier, password string) (domain.TokenGrant, error) {
	l := slogx.FromContext(ctx)

	principal, err := s.Store.Principals().GetByIdentifier(ctx, strings.TrimSpace(identifier))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			// Burn a hash comparison anyway so a missing account costs the
			// same as a wrong password.
			_ = cryptox.VerifyPassword(password, cryptox.DummyHash)
			metrics.LoginsTotal.WithLabelValues("rejected").Inc()
			return domain.TokenGrant{}, ErrInvalidCredentials
		}
		return domain.TokenGrant{}, err
	}

	if err := cryptox.VerifyPassword(password, principal.PasswordHash); err != nil {
		l.Info("login rejected", slog.String("principal_id", principal.ID))
		metrics.LoginsTotal.WithLabelValues("rejected").Inc()
		return domain.TokenGrant{}, ErrInvalidCredentials
	}

	if !principal.CanAuthenticate() {
		l.Info("login rejected for inactive principal", slog.String("principal_id", principal.ID))
		metrics.LoginsTotal.WithLabelValues("rejected").Inc()
		return domain.TokenGrant{}, ErrInvalidCredentials
	}

	if principal.SecondFactorEnabled {
		pending, err := s.signPending(principal)
		if err != nil {
			return domain.TokenGrant{}, err
		}
		metrics.LoginsTotal.WithLabelValues("second_factor_pending").Inc()
		return pending, nil
	}

	grant, err := s.signGrant(principal)
	if err != nil {
		return domain.TokenGrant{}, err
	}

	if err := s.Store.Principals().RecordLogin(ctx, principal.ID, time.Now().UTC()); err != nil {
		return domain.TokenGrant{}, err
	}

	l.Info("login succeeded", slog.String("principal_id", principal.ID))
	metrics.LoginsTotal.WithLabelValues("ok").Inc()
	return grant, nil
}

// CompleteSecondFactor exchanges a pending token plus a valid challenge
// code for a full grant. Failed attempts are budgeted per principal; an
// exhausted budget refuses the challenge before any code is checked.
func (s *AuthService) CompleteSecondFactor(ctx context.Context, pendingToken, code string) (domain.TokenGrant, error) {
	l := slogx.FromContext(ctx)

	claims, err := s.Codec.Decode(pendingToken, jwtx.KindSecondFactorPending)
	if err != nil {
		return domain.TokenGrant{}, ErrInvalidToken
	}

	if !s.attempts.Allow(claims.Subject) {
		l.Info("second factor challenge refused, attempt budget exhausted", slog.String("principal_id", claims.Subject))
		return domain.TokenGrant{}, ErrTooManyAttempts
	}

	principal, err := s.resolveActive(ctx, claims.Subject)
	if err != nil {
		return domain.TokenGrant{}, err
	}

	if err := s.SecondFactor.VerifyChallenge(ctx, principal, code); err != nil {
		if errors.Is(err, ErrInvalidSecondFactor) || errors.Is(err, ErrSecondFactorNotEnabled) {
			s.attempts.RecordFailure(claims.Subject)
			return domain.TokenGrant{}, ErrInvalidSecondFactor
		}
		return domain.TokenGrant{}, err
	}
	s.attempts.Reset(claims.Subject)

	grant, err := s.signGrant(principal)
	if err != nil {
		return domain.TokenGrant{}, err
	}

	if err := s.Store.Principals().RecordLogin(ctx, principal.ID, time.Now().UTC()); err != nil {
		return domain.TokenGrant{}, err
	}

	l.Info("second factor challenge passed", slog.String("principal_id", principal.ID))
	metrics.LoginsTotal.WithLabelValues("ok").Inc()
	return grant, nil
}

// Refresh trades a refresh token for a fresh grant. The principal is
// re-resolved from storage so a deactivated or deleted account stops
// refreshing immediately, whatever its tokens say.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (domain.TokenGrant, error) {
	claims, err := s.Codec.Decode(refreshToken, jwtx.KindRefresh)
	if err != nil {
		return domain.TokenGrant{}, ErrInvalidToken
	}

	principal, err := s.resolveActive(ctx, claims.Subject)
	if err != nil {
		return domain.TokenGrant{}, err
	}

	return s.signGrant(principal)
}

// Authenticate resolves an access token to its live principal, for callers
// holding a raw token outside the HTTP middleware path. A token for a
// since-deactivated account dies here with ErrInvalidToken.
func (s *AuthService) Authenticate(ctx context.Context, accessToken string) (domain.Principal, error) {
	claims, err := s.Codec.Decode(accessToken, jwtx.KindAccess)
	if err != nil {
		return domain.Principal{}, ErrInvalidToken
	}
	return s.resolveActive(ctx, claims.Subject)
}

func (s *AuthService) resolveActive(ctx context.Context, principalID string) (domain.Principal, error) {
	principal, err := s.Store.Principals().GetByID(ctx, principalID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.Principal{}, ErrInvalidToken
		}
		return domain.Principal{}, err
	}
	if !principal.CanAuthenticate() {
		return domain.Principal{}, ErrInvalidToken
	}
	return principal, nil
}

func (s *AuthService) signGrant(principal domain.Principal) (domain.TokenGrant, error) {
	claims := jwtx.NewClaims(principal.ID)
	claims.Role = string(principal.Role)
	claims.Handle = principal.Username

	access, err := s.Codec.Issue(claims, jwtx.KindAccess, s.AccessTTL)
	if err != nil {
		return domain.TokenGrant{}, err
	}
	metrics.TokensIssuedTotal.WithLabelValues(string(jwtx.KindAccess)).Inc()

	refresh, err := s.Codec.Issue(jwtx.NewClaims(principal.ID), jwtx.KindRefresh, s.RefreshTTL)
	if err != nil {
		return domain.TokenGrant{}, err
	}
	metrics.TokensIssuedTotal.WithLabelValues(string(jwtx.KindRefresh)).Inc()

	return domain.TokenGrant{
		Token:        access,
		TokenKind:    jwtx.KindAccess,
		RefreshToken: refresh,
		ExpiresIn:    int64(s.AccessTTL.Seconds()),
	}, nil
}

func (s *AuthService) signPending(principal domain.Principal) (domain.TokenGrant, error) {
	token, err := s.Codec.Issue(jwtx.NewClaims(principal.ID), jwtx.KindSecondFactorPending, s.PendingTTL)
	if err != nil {
		return domain.TokenGrant{}, err
	}
	metrics.TokensIssuedTotal.WithLabelValues(string(jwtx.KindSecondFactorPending)).Inc()

	return domain.TokenGrant{
		Token:     token,
		TokenKind: jwtx.KindSecondFactorPending,
		ExpiresIn: int64(s.PendingTTL.Seconds()),
	}, nil
}
