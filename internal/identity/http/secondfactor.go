package http

import (
	"errors"
	"net/http"

	"github.com/openshelf-dev/identity/internal/identity/domain"
	"github.com/openshelf-dev/identity/internal/identity/service"
	"github.com/openshelf-dev/identity/pkg/httpx"
	"github.com/openshelf-dev/identity/pkg/slogx"
)

// SecondFactorHandler handles TOTP enrollment and management. Every route
// requires an authenticated principal.
type SecondFactorHandler struct {
	SecondFactorService *service.SecondFactorService
	UserService         *service.UserService
}

// HandleEnrollInitiate handles POST /v1/second-factor/enroll/initiate.
// Returns a fresh secret and provisioning URI; nothing is stored yet.
func (h *SecondFactorHandler) HandleEnrollInitiate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	principal, ok := h.currentPrincipal(w, r)
	if !ok {
		return
	}

	enrollment, err := h.SecondFactorService.BeginEnrollment(ctx, principal)
	if err != nil {
		if errors.Is(err, service.ErrSecondFactorAlreadyEnabled) {
			httpx.WriteError(w, http.StatusConflict, "second_factor_already_enabled", "A second factor is already enrolled")
			return
		}
		log.Error("enrollment initiation failed", "principal_id", principal.ID, "err", err)
		httpx.WriteError(w, http.StatusInternalServerError, "server_error", "")
		return
	}

	httpx.WriteJSON(w, http.StatusOK, enrollmentResponse{
		Secret:          enrollment.Secret,
		ProvisioningURI: enrollment.ProvisioningURI,
		Issuer:          enrollment.Issuer,
		Account:         enrollment.Account,
	})
}

// HandleEnrollComplete handles POST /v1/second-factor/enroll/complete.
// Returns the backup codes; they are shown exactly once.
func (h *SecondFactorHandler) HandleEnrollComplete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	principal, ok := h.currentPrincipal(w, r)
	if !ok {
		return
	}

	var req enrollCompleteRequest
	if err := decodeValid(r, &req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid_request", "Invalid JSON body")
		return
	}

	backupCodes, err := h.SecondFactorService.CompleteEnrollment(ctx, principal, req.Secret, req.Code)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrSecondFactorAlreadyEnabled):
			httpx.WriteError(w, http.StatusConflict, "second_factor_already_enabled", "A second factor is already enrolled")
		case errors.Is(err, service.ErrInvalidSecondFactor):
			httpx.WriteError(w, http.StatusBadRequest, "invalid_code", "Incorrect verification code")
		default:
			log.Error("enrollment completion failed", "principal_id", principal.ID, "err", err)
			httpx.WriteError(w, http.StatusInternalServerError, "server_error", "")
		}
		return
	}

	log.Info("second factor enrolled", "principal_id", principal.ID)
	httpx.WriteJSON(w, http.StatusOK, backupCodesResponse{BackupCodes: backupCodes})
}

// HandleDisable handles POST /v1/second-factor/disable. Requires the
// current password and a valid code.
func (h *SecondFactorHandler) HandleDisable(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	principal, ok := h.currentPrincipal(w, r)
	if !ok {
		return
	}

	var req disableSecondFactorRequest
	if err := decodeValid(r, &req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid_request", "Invalid JSON body")
		return
	}

	if err := h.SecondFactorService.Disable(ctx, principal, req.Password, req.Code); err != nil {
		switch {
		case errors.Is(err, service.ErrSecondFactorNotEnabled):
			httpx.WriteError(w, http.StatusConflict, "second_factor_not_enabled", "No second factor is enrolled")
		case errors.Is(err, service.ErrInvalidCredentials):
			httpx.WriteError(w, http.StatusUnauthorized, "invalid_credentials", "Incorrect password")
		case errors.Is(err, service.ErrInvalidSecondFactor):
			httpx.WriteError(w, http.StatusUnauthorized, "invalid_code", "Incorrect verification code")
		default:
			log.Error("second factor disable failed", "principal_id", principal.ID, "err", err)
			httpx.WriteError(w, http.StatusInternalServerError, "server_error", "")
		}
		return
	}

	log.Info("second factor disabled", "principal_id", principal.ID)
	w.WriteHeader(http.StatusNoContent)
}

// HandleRegenerateBackupCodes handles POST /v1/second-factor/backup-codes.
func (h *SecondFactorHandler) HandleRegenerateBackupCodes(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	principal, ok := h.currentPrincipal(w, r)
	if !ok {
		return
	}

	var req regenerateBackupCodesRequest
	if err := decodeValid(r, &req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid_request", "Invalid JSON body")
		return
	}

	backupCodes, err := h.SecondFactorService.RegenerateBackupCodes(ctx, principal, req.Code)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrSecondFactorNotEnabled):
			httpx.WriteError(w, http.StatusConflict, "second_factor_not_enabled", "No second factor is enrolled")
		case errors.Is(err, service.ErrInvalidSecondFactor):
			httpx.WriteError(w, http.StatusUnauthorized, "invalid_code", "Incorrect verification code")
		default:
			log.Error("backup code regeneration failed", "principal_id", principal.ID, "err", err)
			httpx.WriteError(w, http.StatusInternalServerError, "server_error", "")
		}
		return
	}

	log.Info("backup codes regenerated", "principal_id", principal.ID)
	httpx.WriteJSON(w, http.StatusOK, backupCodesResponse{BackupCodes: backupCodes})
}

// HandleStatus handles GET /v1/second-factor/status.
func (h *SecondFactorHandler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	principal, ok := h.currentPrincipal(w, r)
	if !ok {
		return
	}

	status, err := h.SecondFactorService.Status(ctx, principal)
	if err != nil {
		log.Error("second factor status failed", "principal_id", principal.ID, "err", err)
		httpx.WriteError(w, http.StatusInternalServerError, "server_error", "")
		return
	}

	httpx.WriteJSON(w, http.StatusOK, secondFactorStatusResponse{
		Enabled:         status.Enabled,
		BackupCodesLeft: status.BackupCodesLeft,
		LastUsedAt:      status.LastUsedAt,
	})
}

func (h *SecondFactorHandler) currentPrincipal(w http.ResponseWriter, r *http.Request) (domain.Principal, bool) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	principalID := httpx.PrincipalIDFromContext(ctx)
	if principalID == "" {
		httpx.WriteError(w, http.StatusUnauthorized, "invalid_token", "")
		return domain.Principal{}, false
	}

	p, err := h.UserService.GetByID(ctx, principalID)
	if err != nil {
		log.Warn("failed to load principal", "principal_id", principalID, "err", err)
		httpx.WriteError(w, http.StatusUnauthorized, "invalid_token", "")
		return domain.Principal{}, false
	}
	if !p.CanAuthenticate() {
		httpx.WriteError(w, http.StatusUnauthorized, "invalid_token", "")
		return domain.Principal{}, false
	}
	return p, true
}
