package tenancy

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/agentgrid/tenancy-plane/internal/database"
)

// namespaceDDL is the namespace lifecycle surface the provisioner drives.
// Split out so provisioning logic tests against a fake instead of Postgres.
type namespaceDDL interface {
	CreateNamespace(ctx context.Context, name string) error
	DropNamespace(ctx context.Context, name string) error
	NamespaceExists(ctx context.Context, name string) (bool, error)
	MigrateToHead(ctx context.Context, name string) error
}

// PoolDDL executes namespace DDL directly on the pool. Pool-level Exec runs
// outside any transaction, which is what CREATE/DROP SCHEMA want: the DDL
// commits immediately and is visible to other connections on its own.
type PoolDDL struct {
	pool     *pgxpool.Pool
	sessions *database.SessionFactory
	migrator *database.Migrator
}

func NewPoolDDL(pool *pgxpool.Pool, sessions *database.SessionFactory, migrator *database.Migrator) *PoolDDL {
	return &PoolDDL{pool: pool, sessions: sessions, migrator: migrator}
}

func (d *PoolDDL) CreateNamespace(ctx context.Context, name string) error {
	if err := ValidateNamespace(name); err != nil {
		return err
	}
	_, err := d.pool.Exec(ctx, "CREATE SCHEMA IF NOT EXISTS "+pgx.Identifier{name}.Sanitize())
	if err != nil {
		return fmt.Errorf("create namespace %s: %w", name, err)
	}
	return nil
}

func (d *PoolDDL) DropNamespace(ctx context.Context, name string) error {
	if err := ValidateNamespace(name); err != nil {
		return err
	}
	_, err := d.pool.Exec(ctx, "DROP SCHEMA IF EXISTS "+pgx.Identifier{name}.Sanitize()+" CASCADE")
	if err != nil {
		return fmt.Errorf("drop namespace %s: %w", name, err)
	}
	return nil
}

func (d *PoolDDL) NamespaceExists(ctx context.Context, name string) (bool, error) {
	var exists bool
	err := d.pool.QueryRow(ctx,
		"SELECT EXISTS(SELECT 1 FROM pg_namespace WHERE nspname = $1)", name,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("probe namespace %s: %w", name, err)
	}
	return exists, nil
}

// MigrateToHead applies the tenant migration set inside the namespace,
// creating the baseline relation set for a fresh namespace.
func (d *PoolDDL) MigrateToHead(ctx context.Context, name string) error {
	sess, err := d.sessions.AcquireNamespace(ctx, name)
	if err != nil {
		return err
	}
	defer sess.Release()

	return d.migrator.Apply(ctx, sess)
}
