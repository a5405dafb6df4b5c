package http

import (
	"errors"
	"net/http"

	"github.com/openshelf-dev/identity/internal/identity/domain"
	"github.com/openshelf-dev/identity/internal/identity/service"
	"github.com/openshelf-dev/identity/pkg/httpx"
	"github.com/openshelf-dev/identity/pkg/slogx"
)

// AuthHandler handles signup, login, the second-factor challenge step,
// refresh, and password changes.
type AuthHandler struct {
	AuthService *service.AuthService
	UserService *service.UserService
}

// HandleSignup handles POST /v1/auth/signup.
func (h *AuthHandler) HandleSignup(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	var req signupRequest
	if err := decodeValid(r, &req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid_request", "Invalid JSON body")
		return
	}

	principal, err := h.UserService.Register(ctx, req.Username, req.Email, req.Password)
	if err != nil {
		if errors.Is(err, service.ErrIdentifierTaken) {
			httpx.WriteError(w, http.StatusConflict, "identifier_taken", "Username or email is already in use")
			return
		}
		log.Error("signup failed", "err", err)
		httpx.WriteError(w, http.StatusInternalServerError, "server_error", "")
		return
	}

	log.Info("principal registered", "principal_id", principal.ID)
	httpx.WriteJSON(w, http.StatusCreated, newPrincipalResponse(principal))
}

// HandleLogin handles POST /v1/auth/login. Principals with a second factor
// get a pending token; everyone else gets a full grant.
func (h *AuthHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	var req loginRequest
	if err := decodeValid(r, &req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid_request", "Invalid JSON body")
		return
	}

	grant, err := h.AuthService.Login(ctx, req.Identifier, req.Password)
	if err != nil {
		if errors.Is(err, service.ErrInvalidCredentials) {
			httpx.WriteError(w, http.StatusUnauthorized, "invalid_credentials", "Incorrect identifier or password")
			return
		}
		log.Error("login failed", "err", err)
		httpx.WriteError(w, http.StatusInternalServerError, "server_error", "")
		return
	}

	httpx.WriteJSON(w, http.StatusOK, newTokenResponse(grant))
}

// HandleCompleteSecondFactor handles POST /v1/second-factor/verify,
// exchanging a pending token plus challenge code for a full grant.
func (h *AuthHandler) HandleCompleteSecondFactor(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	var req secondFactorVerifyRequest
	if err := decodeValid(r, &req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid_request", "Invalid JSON body")
		return
	}

	grant, err := h.AuthService.CompleteSecondFactor(ctx, req.PendingToken, req.Code)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidToken):
			httpx.WriteError(w, http.StatusUnauthorized, "invalid_token", "Pending token is invalid or expired")
		case errors.Is(err, service.ErrTooManyAttempts):
			httpx.WriteError(w, http.StatusTooManyRequests, "too_many_attempts", "Too many failed attempts. Please try again later.")
		case errors.Is(err, service.ErrInvalidSecondFactor):
			httpx.WriteError(w, http.StatusUnauthorized, "invalid_code", "Incorrect verification code")
		default:
			log.Error("second factor challenge failed", "err", err)
			httpx.WriteError(w, http.StatusInternalServerError, "server_error", "")
		}
		return
	}

	httpx.WriteJSON(w, http.StatusOK, newTokenResponse(grant))
}

// HandleRefresh handles POST /v1/auth/refresh.
func (h *AuthHandler) HandleRefresh(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	var req refreshRequest
	if err := decodeValid(r, &req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid_request", "Invalid JSON body")
		return
	}

	grant, err := h.AuthService.Refresh(ctx, req.RefreshToken)
	if err != nil {
		if errors.Is(err, service.ErrInvalidToken) {
			httpx.WriteError(w, http.StatusUnauthorized, "invalid_token", "Refresh token is invalid or expired")
			return
		}
		log.Error("refresh failed", "err", err)
		httpx.WriteError(w, http.StatusInternalServerError, "server_error", "")
		return
	}

	httpx.WriteJSON(w, http.StatusOK, newTokenResponse(grant))
}

// HandleLogout handles POST /v1/auth/logout. Tokens are stateless, so the
// server has nothing to revoke; clients discard their copies.
func (h *AuthHandler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusNoContent)
}

// HandleChangePassword handles POST /v1/auth/password.
func (h *AuthHandler) HandleChangePassword(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	principal, ok := h.currentPrincipal(w, r)
	if !ok {
		return
	}

	var req changePasswordRequest
	if err := decodeValid(r, &req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid_request", "Invalid JSON body")
		return
	}

	if err := h.UserService.ChangePassword(ctx, principal, req.CurrentPassword, req.NewPassword); err != nil {
		if errors.Is(err, service.ErrInvalidCredentials) {
			httpx.WriteError(w, http.StatusUnauthorized, "invalid_credentials", "Current password is incorrect")
			return
		}
		log.Error("password change failed", "principal_id", principal.ID, "err", err)
		httpx.WriteError(w, http.StatusInternalServerError, "server_error", "")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// HandleMe handles GET /v1/me.
func (h *AuthHandler) HandleMe(w http.ResponseWriter, r *http.Request) {
	principal, ok := h.currentPrincipal(w, r)
	if !ok {
		return
	}
	httpx.WriteJSON(w, http.StatusOK, newPrincipalResponse(principal))
}

// currentPrincipal loads the authenticated principal. The token already
// passed signature and expiry checks in the middleware; this re-resolves the
// row so a principal deactivated after issuance loses access immediately. A
// false return means the response has already been written.
func (h *AuthHandler) currentPrincipal(w http.ResponseWriter, r *http.Request) (domain.Principal, bool) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	principalID := httpx.PrincipalIDFromContext(ctx)
	if principalID == "" {
		httpx.WriteError(w, http.StatusUnauthorized, "invalid_token", "")
		return domain.Principal{}, false
	}

	principal, err := h.UserService.GetByID(ctx, principalID)
	if err != nil {
		log.Warn("failed to load principal", "principal_id", principalID, "err", err)
		httpx.WriteError(w, http.StatusUnauthorized, "invalid_token", "")
		return domain.Principal{}, false
	}
	if !principal.CanAuthenticate() {
		httpx.WriteError(w, http.StatusUnauthorized, "invalid_token", "")
		return domain.Principal{}, false
	}
	return principal, true
}
