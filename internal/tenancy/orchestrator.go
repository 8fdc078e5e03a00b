package tenancy

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
)

// tenantLister is the slice of the Registry the orchestrator iterates.
type tenantLister interface {
	ListActive(ctx context.Context) ([]Tenant, error)
}

// namespaceMigrator applies one migration set to named namespaces.
// PoolDDL implements it; one instance exists per migration set.
type namespaceMigrator interface {
	NamespaceExists(ctx context.Context, name string) (bool, error)
	MigrateToHead(ctx context.Context, name string) error
}

// Failure records one tenant whose migration did not complete.
type Failure struct {
	Tenant string
	Err    error
}

// Summary is the outcome of one migrate-all run. Callers decide whether a
// non-empty Failed list is fatal for the deployment.
type Summary struct {
	RunID     uuid.UUID
	Succeeded []string
	Failed    []Failure
}

// Orchestrator drives schema migrations across every namespace: the control
// namespace once, then each active tenant namespace independently. Tenants
// are the isolation boundary, so one tenant's failure never blocks the
// rest of the batch.
type Orchestrator struct {
	registry      tenantLister
	controlSchema string
	control       namespaceMigrator
	tenants       namespaceMigrator
}

func NewOrchestrator(registry tenantLister, controlSchema string, control, tenants namespaceMigrator) *Orchestrator {
	return &Orchestrator{
		registry:      registry,
		controlSchema: controlSchema,
		control:       control,
		tenants:       tenants,
	}
}

// MigrateAll migrates the control namespace first; a failure there aborts
// the whole run since every tenant schema assumes a current control
// namespace. Tenant failures are collected into the summary and the batch
// continues.
func (o *Orchestrator) MigrateAll(ctx context.Context) (*Summary, error) {
	sum := &Summary{RunID: uuid.New()}
	slog.Info("starting migration run", "run_id", sum.RunID)

	if err := o.control.MigrateToHead(ctx, o.controlSchema); err != nil {
		return nil, fmt.Errorf("migrate control namespace: %w", err)
	}

	tenants, err := o.registry.ListActive(ctx)
	if err != nil {
		return nil, fmt.Errorf("list active tenants: %w", err)
	}

	for _, t := range tenants {
		if err := o.migrateTenant(ctx, t); err != nil {
			slog.Error("tenant migration failed", "run_id", sum.RunID, "tenant", t.Slug, "error", err)
			sum.Failed = append(sum.Failed, Failure{Tenant: t.Slug, Err: err})
			continue
		}
		sum.Succeeded = append(sum.Succeeded, t.Slug)
	}

	slog.Info("migration run finished",
		"run_id", sum.RunID, "succeeded", len(sum.Succeeded), "failed", len(sum.Failed))
	return sum, nil
}

func (o *Orchestrator) migrateTenant(ctx context.Context, t Tenant) error {
	exists, err := o.tenants.NamespaceExists(ctx, t.NamespaceName)
	if err != nil {
		return err
	}
	if !exists {
		return fmt.Errorf("namespace %s does not exist", t.NamespaceName)
	}
	return o.tenants.MigrateToHead(ctx, t.NamespaceName)
}
