package tenantctx

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWithAndFromContext(t *testing.T) {
	ctx := context.Background()

	_, ok := FromContext(ctx)
	assert.False(t, ok)
	assert.Empty(t, Namespace(ctx))
	assert.Empty(t, Label(ctx))

	ctx = With(ctx, "tenant_acme", "acme")

	scope, ok := FromContext(ctx)
	require.True(t, ok)
	assert.Equal(t, "tenant_acme", scope.Namespace)
	assert.Equal(t, "acme", scope.Label)
	assert.Equal(t, "tenant_acme", Namespace(ctx))
	assert.Equal(t, "acme", Label(ctx))
}

func TestRequire(t *testing.T) {
	_, err := Require(context.Background())
	assert.ErrorIs(t, err, ErrNotResolved)

	scope, err := Require(With(context.Background(), "tenant_acme", "acme"))
	require.NoError(t, err)
	assert.Equal(t, "tenant_acme", scope.Namespace)
}

func TestClear(t *testing.T) {
	ctx := With(context.Background(), "tenant_acme", "acme")
	cleared := Clear(ctx)

	_, err := Require(cleared)
	assert.ErrorIs(t, err, ErrNotResolved)

	// The parent context keeps its scope; Clear never mutates in place.
	assert.Equal(t, "tenant_acme", Namespace(ctx))
}

func TestScopePropagatesToChildOperations(t *testing.T) {
	ctx := With(context.Background(), "tenant_acme", "acme")

	done := make(chan string, 1)
	go func(ctx context.Context) {
		done <- Namespace(ctx)
	}(ctx)

	assert.Equal(t, "tenant_acme", <-done)
}

func TestConcurrentRequestsSeeIndependentScopes(t *testing.T) {
	base := context.Background()

	var wg sync.WaitGroup
	for _, tenant := range []string{"alpha", "beta", "gamma"} {
		wg.Add(1)
		go func(slug string) {
			defer wg.Done()
			ctx := With(base, "tenant_"+slug, slug)
			for i := 0; i < 1000; i++ {
				if got := Label(ctx); got != slug {
					t.Errorf("scope bled across requests: got %q, want %q", got, slug)
					return
				}
			}
		}(tenant)
	}
	wg.Wait()

	// The shared parent never gains a scope.
	_, err := Require(base)
	assert.ErrorIs(t, err, ErrNotResolved)
}
