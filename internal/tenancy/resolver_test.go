package tenancy

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentgrid/tenancy-plane/internal/tenantctx"
)

type fakeDirectory struct {
	tenants map[string]*Tenant
}

func (d *fakeDirectory) GetBySlug(ctx context.Context, slug string) (*Tenant, error) {
	if t, ok := d.tenants[slug]; ok {
		return t, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrNotFound, slug)
}

func newTestResolver(dir Directory) *Resolver {
	tokenHint := func(r *http.Request) string {
		return r.Header.Get("X-Test-Claim")
	}
	return NewResolver(dir, "X-Tenant-ID", tokenHint, []string{"/healthz", "/platform/tenants"})
}

func activeTenant(slug string) *Tenant {
	return &Tenant{Slug: slug, NamespaceName: DeriveNamespace(slug), Status: StatusActive}
}

// captureHandler records the tenant scope it observed.
func captureHandler(scope *tenantctx.Scope, err *error) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*scope, *err = tenantctx.Require(r.Context())
		w.WriteHeader(http.StatusOK)
	})
}

func TestResolverHeaderHint(t *testing.T) {
	dir := &fakeDirectory{tenants: map[string]*Tenant{"acme": activeTenant("acme")}}
	var scope tenantctx.Scope
	var scopeErr error
	h := newTestResolver(dir).Middleware(captureHandler(&scope, &scopeErr))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/tenant", nil)
	req.Header.Set("X-Tenant-ID", "acme")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, scopeErr)
	assert.Equal(t, "tenant_acme", scope.Namespace)
	assert.Equal(t, "acme", scope.Label)
	assert.Equal(t, "acme", rec.Header().Get("X-Tenant-Slug"))
}

func TestResolverHintPrecedence(t *testing.T) {
	dir := &fakeDirectory{tenants: map[string]*Tenant{
		"alpha": activeTenant("alpha"),
		"beta":  activeTenant("beta"),
		"gamma": activeTenant("gamma"),
	}}
	resolver := newTestResolver(dir)

	tests := []struct {
		name      string
		header    string
		claim     string
		host      string
		wantLabel string
	}{
		{"header beats claim and subdomain", "alpha", "beta", "gamma.example.com", "alpha"},
		{"claim beats subdomain", "", "beta", "gamma.example.com", "beta"},
		{"subdomain alone", "", "", "gamma.example.com", "gamma"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var scope tenantctx.Scope
			var scopeErr error
			h := resolver.Middleware(captureHandler(&scope, &scopeErr))

			req := httptest.NewRequest(http.MethodGet, "/api/v1/tenant", nil)
			req.Host = tt.host
			if tt.header != "" {
				req.Header.Set("X-Tenant-ID", tt.header)
			}
			if tt.claim != "" {
				req.Header.Set("X-Test-Claim", tt.claim)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			require.Equal(t, http.StatusOK, rec.Code)
			require.NoError(t, scopeErr)
			assert.Equal(t, tt.wantLabel, scope.Label)
		})
	}
}

func TestResolverSubdomainSkipsSharedHosts(t *testing.T) {
	for _, host := range []string{"example.com", "www.example.com", "api.example.com", "app.example.com", "localhost:8080", "127.0.0.1"} {
		assert.Empty(t, subdomain(host), "host %q", host)
	}
	assert.Equal(t, "acme", subdomain("acme.example.com"))
	assert.Equal(t, "acme", subdomain("acme.example.com:8443"))
}

func TestResolverNoHint(t *testing.T) {
	dir := &fakeDirectory{tenants: map[string]*Tenant{}}
	h := newTestResolver(dir).Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler must not run for unresolved requests")
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/tenant", nil)
	req.Host = "example.com"
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "tenant_unresolved", body["error"])
}

func TestResolverUnknownTenant(t *testing.T) {
	dir := &fakeDirectory{tenants: map[string]*Tenant{}}
	h := newTestResolver(dir).Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler must not run for unknown tenants")
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/tenant", nil)
	req.Header.Set("X-Tenant-ID", "ghost")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "tenant_unknown", body["error"])
}

func TestResolverStatusGating(t *testing.T) {
	acme := activeTenant("acme")
	dir := &fakeDirectory{tenants: map[string]*Tenant{"acme": acme}}
	resolver := newTestResolver(dir)

	send := func() *httptest.ResponseRecorder {
		var scope tenantctx.Scope
		var scopeErr error
		h := resolver.Middleware(captureHandler(&scope, &scopeErr))
		req := httptest.NewRequest(http.MethodGet, "/api/v1/tenant", nil)
		req.Header.Set("X-Tenant-ID", "acme")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec
	}

	assert.Equal(t, http.StatusOK, send().Code)

	acme.Status = StatusSuspended
	rec := send()
	assert.Equal(t, http.StatusForbidden, rec.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "tenant_inactive", body["error"])
	assert.Equal(t, "suspended", body["status"])

	acme.Status = StatusDeleted
	rec = send()
	assert.Equal(t, http.StatusForbidden, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "deleted", body["status"])

	acme.Status = StatusActive
	assert.Equal(t, http.StatusOK, send().Code)
}

func TestResolverExemptPath(t *testing.T) {
	dir := &fakeDirectory{tenants: map[string]*Tenant{}}
	var scope tenantctx.Scope
	var scopeErr error
	h := newTestResolver(dir).Middleware(captureHandler(&scope, &scopeErr))

	// No hint at all: the request still succeeds and carries no scope,
	// so downstream sessions bind to the control namespace.
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.ErrorIs(t, scopeErr, tenantctx.ErrNotResolved)

	// Prefix match covers nested admin routes.
	req = httptest.NewRequest(http.MethodDelete, "/platform/tenants/acme", nil)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	// Prefixes match on segment boundaries only: a sibling path that merely
	// shares the leading characters still requires resolution.
	req = httptest.NewRequest(http.MethodGet, "/platform/tenants-evil", nil)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestResolverClearsInheritedScope(t *testing.T) {
	dir := &fakeDirectory{tenants: map[string]*Tenant{}}
	var scope tenantctx.Scope
	var scopeErr error
	h := newTestResolver(dir).Middleware(captureHandler(&scope, &scopeErr))

	// A stale scope on the incoming context (reused execution unit) must
	// never survive into the handler.
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req = req.WithContext(tenantctx.With(req.Context(), "tenant_stale", "stale"))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.ErrorIs(t, scopeErr, tenantctx.ErrNotResolved)
}
