package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/openshelf-dev/identity/internal/identity/domain"
	"github.com/openshelf-dev/identity/internal/identity/store"
	"github.com/openshelf-dev/identity/pkg/cryptox"
	"github.com/openshelf-dev/identity/pkg/idx"
)

var ErrIdentifierTaken = errors.New("identifier_taken")

// UserService covers principal lifecycle outside of authentication:
// signup, password changes, and soft deletion.
type UserService struct {
	Store store.Store
}

// GetByID fetches a principal by id.
func (s *UserService) GetByID(ctx context.Context, principalID string) (domain.Principal, error) {
	return s.Store.Principals().GetByID(ctx, principalID)
}

// Register creates a new client-role principal. Username and email must
// both be unused; the stored username is kept as given, the email lowered.
func (s *UserService) Register(ctx context.Context, username, email, password string) (domain.Principal, error) {
	hash, err := cryptox.HashPassword(password)
	if err != nil {
		return domain.Principal{}, err
	}

	now := time.Now().UTC()
	principal := domain.Principal{
		ID:           idx.New().String(),
		Username:     strings.TrimSpace(username),
		Email:        strings.ToLower(strings.TrimSpace(email)),
		PasswordHash: hash,
		Role:         domain.RoleClient,
		Active:       true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := s.Store.Principals().Create(ctx, principal); err != nil {
		if errors.Is(err, store.ErrAlreadyExists) {
			return domain.Principal{}, ErrIdentifierTaken
		}
		return domain.Principal{}, err
	}

	return principal, nil
}

// ChangePassword swaps the principal's password after verifying the
// current one. Existing tokens stay valid until they expire.
func (s *UserService) ChangePassword(ctx context.Context, principal domain.Principal, current, next string) error {
	if err := cryptox.VerifyPassword(current, principal.PasswordHash); err != nil {
		return ErrInvalidCredentials
	}

	hash, err := cryptox.HashPassword(next)
	if err != nil {
		return err
	}

	return s.Store.Principals().UpdatePasswordHash(ctx, principal.ID, hash)
}

// Deactivate soft-deletes a principal. The row survives for audit until
// housekeeping purges it; authentication stops immediately.
func (s *UserService) Deactivate(ctx context.Context, principalID string) error {
	return s.Store.Principals().SoftDelete(ctx, principalID, time.Now().UTC())
}
