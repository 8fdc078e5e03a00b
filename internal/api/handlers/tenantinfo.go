package handlers

import (
	"errors"
	"net/http"

	"github.com/agentgrid/tenancy-plane/internal/database"
	"github.com/agentgrid/tenancy-plane/internal/tenantctx"
)

// TenantInfoHandler answers "who am I" for business collaborators. It is
// the reference consumer of the scoped session factory: acquire once per
// request, query unqualified table names, release on every exit path.
type TenantInfoHandler struct {
	sessions *database.SessionFactory
}

func NewTenantInfoHandler(sessions *database.SessionFactory) *TenantInfoHandler {
	return &TenantInfoHandler{sessions: sessions}
}

func (h *TenantInfoHandler) Current(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	scope, err := tenantctx.Require(ctx)
	if err != nil {
		writeError(w, http.StatusBadRequest, "tenant_unresolved", err.Error())
		return
	}

	sess, err := h.sessions.Acquire(ctx)
	if err != nil {
		if errors.Is(err, database.ErrNamespaceUnavailable) {
			writeError(w, http.StatusServiceUnavailable, "namespace_unavailable", err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, "internal_error", "could not acquire session")
		return
	}
	defer sess.Release()

	// users resolves inside the tenant namespace via the session's
	// search_path binding.
	var userCount int
	if err := sess.QueryRow(ctx, "SELECT COUNT(*) FROM users").Scan(&userCount); err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error", "query failed")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"tenant":    scope.Label,
		"namespace": scope.Namespace,
		"users":     userCount,
	})
}
