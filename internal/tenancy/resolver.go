package tenancy

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/agentgrid/tenancy-plane/internal/tenantctx"
)

// Directory is the lookup surface the resolver needs from the registry.
type Directory interface {
	GetBySlug(ctx context.Context, slug string) (*Tenant, error)
}

// HintFunc extracts a tenant slug from request state populated by an
// earlier middleware, e.g. a claim on a verified identity token.
type HintFunc func(r *http.Request) string

// Resolver determines the tenant of every inbound request and scopes the
// request context before any handler runs. Hint precedence, applied
// deterministically with first match winning:
//
//  1. the routing header (X-Tenant-ID by default)
//  2. the tenant claim of the verified identity token
//  3. the request subdomain
//
// Paths on the exemption list skip resolution entirely and execute against
// the control namespace. All resolver failures happen before any session
// is acquired for the request.
type Resolver struct {
	directory   Directory
	header      string
	tokenHint   HintFunc
	exemptPaths []string
}

func NewResolver(directory Directory, header string, tokenHint HintFunc, exemptPaths []string) *Resolver {
	if header == "" {
		header = "X-Tenant-ID"
	}
	return &Resolver{
		directory:   directory,
		header:      header,
		tokenHint:   tokenHint,
		exemptPaths: exemptPaths,
	}
}

func (rv *Resolver) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodOptions {
			next.ServeHTTP(w, r)
			return
		}

		// Start from a scope-free context: resolution is the only way a
		// request gains a tenant, and a pooled execution unit must never
		// inherit one from a previous request.
		ctx := tenantctx.Clear(r.Context())
		r = r.WithContext(ctx)

		if rv.IsExempt(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}

		slug, source := rv.hint(r)
		if slug == "" {
			writeTenantError(w, http.StatusBadRequest, "tenant_unresolved", ErrUnresolvedTenant.Error())
			return
		}

		t, err := rv.directory.GetBySlug(ctx, slug)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				writeTenantError(w, http.StatusBadRequest, "tenant_unknown", ErrUnknownTenant.Error()+": "+slug)
				return
			}
			slog.Error("tenant lookup failed", "slug", slug, "error", err)
			writeTenantError(w, http.StatusInternalServerError, "internal_error", "tenant lookup failed")
			return
		}

		if !t.IsActive() {
			inactive := &InactiveError{Slug: t.Slug, Status: t.Status}
			slog.Warn("blocked request for inactive tenant", "slug", t.Slug, "status", t.Status)
			writeInactiveError(w, inactive)
			return
		}

		// Defense in depth: the namespace is about to be interpolated into
		// a search_path statement downstream.
		if err := ValidateNamespace(t.NamespaceName); err != nil {
			slog.Error("registry holds invalid namespace name", "slug", t.Slug, "namespace", t.NamespaceName)
			writeTenantError(w, http.StatusInternalServerError, "internal_error", "invalid tenant configuration")
			return
		}

		ctx = tenantctx.With(ctx, t.NamespaceName, t.Slug)
		w.Header().Set("X-Tenant-Slug", t.Slug)
		slog.Debug("tenant resolved", "slug", t.Slug, "namespace", t.NamespaceName, "source", source)

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (rv *Resolver) hint(r *http.Request) (slug, source string) {
	if v := r.Header.Get(rv.header); v != "" {
		return v, "header"
	}
	if rv.tokenHint != nil {
		if v := rv.tokenHint(r); v != "" {
			return v, "token"
		}
	}
	if v := subdomain(r.Host); v != "" {
		return v, "subdomain"
	}
	return "", ""
}

// IsExempt reports whether the path bypasses tenant resolution. Exempt
// entries match exactly or as a parent path, on segment boundaries only,
// so "/platform/tenants" does not exempt "/platform/tenants-evil".
func (rv *Resolver) IsExempt(path string) bool {
	for _, exempt := range rv.exemptPaths {
		if path == exempt || strings.HasPrefix(path, strings.TrimSuffix(exempt, "/")+"/") {
			return true
		}
	}
	return false
}

// subdomain pulls a tenant hint from hosts shaped like slug.example.com.
// Bare domains, localhost, IPs and the shared www/api/app subdomains yield
// nothing.
func subdomain(host string) string {
	if h, _, ok := strings.Cut(host, ":"); ok {
		host = h
	}
	if host == "" || strings.Contains(host, "localhost") {
		return ""
	}
	if strings.Trim(host, "0123456789.") == "" {
		return ""
	}

	parts := strings.Split(host, ".")
	if len(parts) < 3 {
		return ""
	}
	switch parts[0] {
	case "www", "api", "app":
		return ""
	}
	return parts[0]
}

func writeInactiveError(w http.ResponseWriter, err *InactiveError) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusForbidden)
	json.NewEncoder(w).Encode(map[string]string{
		"error":   "tenant_inactive",
		"message": err.Error(),
		"status":  string(err.Status),
	})
}

func writeTenantError(w http.ResponseWriter, status int, code, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": code, "message": msg})
}
