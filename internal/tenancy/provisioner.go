package tenancy

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// registryStore is the slice of the Registry the provisioner needs.
type registryStore interface {
	Create(ctx context.Context, t *Tenant) error
	GetBySlug(ctx context.Context, slug string) (*Tenant, error)
	SetStatus(ctx context.Context, slug string, next Status) (*Tenant, error)
}

// Provisioner creates and tears down tenant namespaces, keeping the
// registry and the physical schemas in lockstep: a tenant row never
// outlives a failed namespace, and a namespace created for a failed
// provision is dropped before the error surfaces.
type Provisioner struct {
	registry registryStore
	ddl      namespaceDDL

	// Schema DDL commits outside the caller's transaction, so a freshly
	// created namespace may take a moment to become visible to other
	// connections. The existence probe retries a bounded number of times.
	visibilityRetries int
	retryDelay        time.Duration
}

func NewProvisioner(registry registryStore, ddl namespaceDDL) *Provisioner {
	return &Provisioner{
		registry:          registry,
		ddl:               ddl,
		visibilityRetries: 3,
		retryDelay:        100 * time.Millisecond,
	}
}

// Provision allocates a namespace for a new tenant, migrates it to head so
// the baseline relation set exists, and registers the tenant as active.
func (p *Provisioner) Provision(ctx context.Context, req NewTenant) (*Tenant, error) {
	if err := ValidateSlug(req.Slug); err != nil {
		return nil, err
	}

	namespace := DeriveNamespace(req.Slug)
	if err := ValidateNamespace(namespace); err != nil {
		return nil, err
	}

	if _, err := p.registry.GetBySlug(ctx, req.Slug); err == nil {
		return nil, fmt.Errorf("%w: slug %s", ErrConflict, req.Slug)
	} else if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	slog.Info("provisioning tenant", "slug", req.Slug, "namespace", namespace)

	if err := p.ddl.CreateNamespace(ctx, namespace); err != nil {
		return nil, err
	}

	if err := p.waitVisible(ctx, namespace); err != nil {
		p.compensate(ctx, namespace)
		return nil, err
	}

	if err := p.ddl.MigrateToHead(ctx, namespace); err != nil {
		p.compensate(ctx, namespace)
		return nil, fmt.Errorf("initialize namespace %s: %w", namespace, err)
	}

	t := &Tenant{
		Slug:          req.Slug,
		NamespaceName: namespace,
		DisplayName:   req.DisplayName,
		Status:        StatusActive,
		AdminEmail:    req.AdminEmail,
		MaxUsers:      req.MaxUsers,
	}
	if err := p.registry.Create(ctx, t); err != nil {
		// A concurrent provision won the slug: its row now owns this
		// namespace, so compensation must not drop it.
		if !errors.Is(err, ErrConflict) {
			p.compensate(ctx, namespace)
		}
		return nil, err
	}

	slog.Info("tenant provisioned", "slug", t.Slug, "namespace", t.NamespaceName)
	return t, nil
}

// Deprovision marks the tenant deleted (terminal) and drops its namespace.
// The registry row remains as a tombstone; the drop is best-effort and
// logged on failure, since the deleted status already gates all access.
func (p *Provisioner) Deprovision(ctx context.Context, slug string) (*Tenant, error) {
	t, err := p.registry.SetStatus(ctx, slug, StatusDeleted)
	if err != nil {
		return nil, err
	}

	if err := p.ddl.DropNamespace(ctx, t.NamespaceName); err != nil {
		slog.Error("failed to drop namespace for deleted tenant",
			"slug", slug, "namespace", t.NamespaceName, "error", err)
	}
	return t, nil
}

func (p *Provisioner) waitVisible(ctx context.Context, namespace string) error {
	var lastErr error
	for attempt := 0; attempt < p.visibilityRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(p.retryDelay):
			}
		}
		exists, err := p.ddl.NamespaceExists(ctx, namespace)
		if err != nil {
			lastErr = err
			continue
		}
		if exists {
			return nil
		}
		lastErr = fmt.Errorf("namespace %s not yet visible", namespace)
	}
	return fmt.Errorf("namespace visibility check failed: %w", lastErr)
}

// compensate drops the half-built namespace. The provision may have
// failed because the caller's context was cancelled, so the drop runs
// detached from that cancellation or it would never succeed on exactly
// the path that needs it.
func (p *Provisioner) compensate(ctx context.Context, namespace string) {
	if err := p.ddl.DropNamespace(context.WithoutCancel(ctx), namespace); err != nil {
		slog.Error("failed to clean up partially provisioned namespace",
			"namespace", namespace, "error", err)
	}
}
