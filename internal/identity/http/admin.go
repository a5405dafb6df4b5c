package http

import (
	"errors"
	"net/http"

	"github.com/openshelf-dev/identity/internal/identity/service"
	"github.com/openshelf-dev/identity/internal/identity/store"
	"github.com/openshelf-dev/identity/pkg/httpx"
	"github.com/openshelf-dev/identity/pkg/slogx"
)

// AdminHandler exposes principal administration. Routes are role-gated in
// the router: reads need admin, deactivation needs super_admin.
type AdminHandler struct {
	UserService *service.UserService
}

// HandleGetPrincipal handles GET /v1/admin/principals/{id}.
func (h *AdminHandler) HandleGetPrincipal(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	principal, err := h.UserService.GetByID(ctx, r.PathValue("id"))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			httpx.WriteError(w, http.StatusNotFound, "not_found", "")
			return
		}
		slogx.FromContext(ctx).Error("admin principal lookup failed", "err", err)
		httpx.WriteError(w, http.StatusInternalServerError, "server_error", "")
		return
	}

	httpx.WriteJSON(w, http.StatusOK, newPrincipalResponse(principal))
}

// HandleDeactivatePrincipal handles DELETE /v1/admin/principals/{id}.
// Soft-deletes the principal; housekeeping purges the row later. An
// administrator cannot deactivate their own account.
func (h *AdminHandler) HandleDeactivatePrincipal(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	id := r.PathValue("id")
	if id == httpx.PrincipalIDFromContext(ctx) {
		httpx.WriteError(w, http.StatusConflict, "self_deactivation", "Administrators cannot deactivate their own account")
		return
	}

	if err := h.UserService.Deactivate(ctx, id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			httpx.WriteError(w, http.StatusNotFound, "not_found", "")
			return
		}
		log.Error("admin principal deactivation failed", "principal_id", id, "err", err)
		httpx.WriteError(w, http.StatusInternalServerError, "server_error", "")
		return
	}

	log.Info("principal deactivated", "principal_id", id)
	w.WriteHeader(http.StatusNoContent)
}
