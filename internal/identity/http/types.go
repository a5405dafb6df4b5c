package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/openshelf-dev/identity/internal/identity/domain"
)

// validate holds the shared validator instance for request DTOs.
var validate = validator.New()

var errInvalidBody = errors.New("invalid request body")

// decodeValid parses a JSON body into dst and runs struct validation.
func decodeValid(r *http.Request, dst any) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return errInvalidBody
	}
	if err := validate.Struct(dst); err != nil {
		return errInvalidBody
	}
	return nil
}

type signupRequest struct {
	Username string `json:"username" validate:"required,min=3,max=64"`
	Email    string `json:"email"    validate:"required,email"`
	Password string `json:"password" validate:"required,min=8,max=128"`
}

type loginRequest struct {
	Identifier string `json:"identifier" validate:"required"`
	Password   string `json:"password"   validate:"required"`
}

type secondFactorVerifyRequest struct {
	PendingToken string `json:"pending_token" validate:"required"`
	Code         string `json:"code"          validate:"required,min=6,max=8"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token" validate:"required"`
}

type changePasswordRequest struct {
	CurrentPassword string `json:"current_password" validate:"required"`
	NewPassword     string `json:"new_password"     validate:"required,min=8,max=128"`
}

type enrollCompleteRequest struct {
	Secret string `json:"secret" validate:"required"`
	Code   string `json:"code"   validate:"required,len=6"`
}

type disableSecondFactorRequest struct {
	Password string `json:"password" validate:"required"`
	Code     string `json:"code"     validate:"required,min=6,max=8"`
}

type regenerateBackupCodesRequest struct {
	Code string `json:"code" validate:"required,min=6,max=8"`
}

type tokenResponse struct {
	Token        string `json:"token"`
	TokenKind    string `json:"token_kind"`
	RefreshToken string `json:"refresh_token,omitempty"`
	ExpiresIn    int64  `json:"expires_in"`
}

func newTokenResponse(grant domain.TokenGrant) tokenResponse {
	return tokenResponse{
		Token:        grant.Token,
		TokenKind:    string(grant.TokenKind),
		RefreshToken: grant.RefreshToken,
		ExpiresIn:    grant.ExpiresIn,
	}
}

type principalResponse struct {
	ID                  string     `json:"id"`
	Username            string     `json:"username"`
	Email               string     `json:"email"`
	Role                string     `json:"role"`
	SecondFactorEnabled bool       `json:"second_factor_enabled"`
	LastLogin           *time.Time `json:"last_login,omitempty"`
	CreatedAt           time.Time  `json:"created_at"`
}

func newPrincipalResponse(p domain.Principal) principalResponse {
	return principalResponse{
		ID:                  p.ID,
		Username:            p.Username,
		Email:               p.Email,
		Role:                string(p.Role),
		SecondFactorEnabled: p.SecondFactorEnabled,
		LastLogin:           p.LastLogin,
		CreatedAt:           p.CreatedAt,
	}
}

type enrollmentResponse struct {
	Secret          string `json:"secret"`
	ProvisioningURI string `json:"provisioning_uri"`
	Issuer          string `json:"issuer"`
	Account         string `json:"account"`
}

// backupCodesResponse carries plaintext backup codes. This is the only
// moment they are visible; only fingerprints are stored.
type backupCodesResponse struct {
	BackupCodes []string `json:"backup_codes"`
}

type secondFactorStatusResponse struct {
	Enabled         bool       `json:"enabled"`
	BackupCodesLeft int        `json:"backup_codes_left"`
	LastUsedAt      *time.Time `json:"last_used_at,omitempty"`
}

type healthResponse struct {
	Status  string        `json:"status"`
	Uptime  string        `json:"uptime"`
	Version string        `json:"version"`
	Checks  *healthChecks `json:"checks,omitempty"`
}

type healthChecks struct {
	Database string `json:"database"`
	Signer   string `json:"signer"`
}
