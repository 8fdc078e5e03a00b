// Package tenantctx carries the resolved tenant scope of one in-flight
// request. The scope rides on the request's context.Context, so it
// propagates automatically into any goroutine or call spawned from the same
// request and can never be observed by a concurrently handled request. It
// dies with the request; nothing is stored per-process or per-goroutine.
package tenantctx

import (
	"context"
	"errors"
)

// ErrNotResolved is returned by Require when no tenant scope has been set
// on the context.
var ErrNotResolved = errors.New("tenant not resolved for this request")

type contextKey string

const scopeKey contextKey = "tenant_scope"

// Scope names the namespace all queries of this request must run in, plus a
// human-readable label for logging and audit correlation.
type Scope struct {
	Namespace string
	Label     string
}

// With returns a child context scoped to the given tenant namespace.
func With(ctx context.Context, namespace, label string) context.Context {
	return context.WithValue(ctx, scopeKey, Scope{Namespace: namespace, Label: label})
}

// FromContext reports the tenant scope of ctx, if one has been resolved.
func FromContext(ctx context.Context) (Scope, bool) {
	s, ok := ctx.Value(scopeKey).(Scope)
	if !ok || s.Namespace == "" {
		return Scope{}, false
	}
	return s, true
}

// Namespace returns the resolved namespace, or "" when unset.
func Namespace(ctx context.Context) string {
	s, _ := FromContext(ctx)
	return s.Namespace
}

// Label returns the resolved tenant label, or "" when unset.
func Label(ctx context.Context) string {
	s, _ := FromContext(ctx)
	return s.Label
}

// Require returns the tenant scope or ErrNotResolved when none is set.
func Require(ctx context.Context) (Scope, error) {
	s, ok := FromContext(ctx)
	if !ok {
		return Scope{}, ErrNotResolved
	}
	return s, nil
}

// Clear returns a child context with any tenant scope removed. Downstream
// calls on the returned context behave as if resolution never happened.
func Clear(ctx context.Context) context.Context {
	return context.WithValue(ctx, scopeKey, Scope{})
}
