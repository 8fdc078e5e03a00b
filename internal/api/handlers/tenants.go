package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/agentgrid/tenancy-plane/internal/database"
	"github.com/agentgrid/tenancy-plane/internal/tenancy"
)

// TenantHandler serves the platform administration surface. Its routes are
// on the resolver exemption list and always run against the control
// namespace.
type TenantHandler struct {
	registry    *tenancy.Registry
	provisioner *tenancy.Provisioner
}

func NewTenantHandler(registry *tenancy.Registry, provisioner *tenancy.Provisioner) *TenantHandler {
	return &TenantHandler{registry: registry, provisioner: provisioner}
}

func (h *TenantHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req tenancy.NewTenant
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid JSON body")
		return
	}

	t, err := h.provisioner.Provision(r.Context(), req)
	if err != nil {
		writeTenancyError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, t)
}

func (h *TenantHandler) List(w http.ResponseWriter, r *http.Request) {
	tenants, err := h.registry.List(r.Context())
	if err != nil {
		writeTenancyError(w, err)
		return
	}
	if tenants == nil {
		tenants = []tenancy.Tenant{}
	}
	writeJSON(w, http.StatusOK, tenants)
}

func (h *TenantHandler) Get(w http.ResponseWriter, r *http.Request) {
	t, err := h.registry.GetBySlug(r.Context(), chi.URLParam(r, "slug"))
	if err != nil {
		writeTenancyError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (h *TenantHandler) Suspend(w http.ResponseWriter, r *http.Request) {
	t, err := h.registry.SetStatus(r.Context(), chi.URLParam(r, "slug"), tenancy.StatusSuspended)
	if err != nil {
		writeTenancyError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (h *TenantHandler) Activate(w http.ResponseWriter, r *http.Request) {
	t, err := h.registry.SetStatus(r.Context(), chi.URLParam(r, "slug"), tenancy.StatusActive)
	if err != nil {
		writeTenancyError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (h *TenantHandler) Delete(w http.ResponseWriter, r *http.Request) {
	t, err := h.provisioner.Deprovision(r.Context(), chi.URLParam(r, "slug"))
	if err != nil {
		writeTenancyError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func writeTenancyError(w http.ResponseWriter, err error) {
	var validationErr *tenancy.ValidationError
	var inactiveErr *tenancy.InactiveError

	switch {
	case errors.As(err, &validationErr):
		writeError(w, http.StatusBadRequest, "validation_error", validationErr.Error())
	case errors.Is(err, tenancy.ErrConflict):
		writeError(w, http.StatusConflict, "conflict", err.Error())
	case errors.Is(err, tenancy.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found", err.Error())
	case errors.Is(err, tenancy.ErrInvalidTransition):
		writeError(w, http.StatusConflict, "invalid_transition", err.Error())
	case errors.As(err, &inactiveErr):
		writeError(w, http.StatusForbidden, "tenant_inactive", inactiveErr.Error())
	case errors.Is(err, database.ErrNamespaceUnavailable):
		writeError(w, http.StatusServiceUnavailable, "namespace_unavailable", err.Error())
	default:
		slog.Error("tenant operation failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "an unexpected error occurred")
	}
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, map[string]string{"error": code, "message": msg})
}
