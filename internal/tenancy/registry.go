package tenancy

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/agentgrid/tenancy-plane/internal/database"
)

const tenantColumns = "id, slug, namespace_name, display_name, status, admin_email, max_users, created_at, status_changed_at"

// Registry is the control-plane record store for tenants. It lives in the
// control namespace and is pure data: CRUD plus the status transition
// machine, nothing else. Namespace DDL belongs to the Provisioner.
type Registry struct {
	sessions *database.SessionFactory
	cache    *Cache
}

func NewRegistry(sessions *database.SessionFactory, cache *Cache) *Registry {
	return &Registry{sessions: sessions, cache: cache}
}

// Create inserts a new tenant row. Uniqueness of slug and namespace_name is
// enforced by constraints, so two concurrent creates for the same slug
// resolve to exactly one winner; the loser observes ErrConflict.
func (r *Registry) Create(ctx context.Context, t *Tenant) error {
	sess, err := r.sessions.AcquireNamespace(ctx, r.sessions.ControlSchema())
	if err != nil {
		return err
	}
	defer sess.Release()

	err = sess.QueryRow(ctx,
		`INSERT INTO tenants (slug, namespace_name, display_name, status, admin_email, max_users)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 RETURNING id, created_at`,
		t.Slug, t.NamespaceName, t.DisplayName, t.Status, t.AdminEmail, t.MaxUsers,
	).Scan(&t.ID, &t.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: slug %s", ErrConflict, t.Slug)
		}
		return fmt.Errorf("create tenant: %w", err)
	}
	return nil
}

// GetBySlug looks a tenant up through the cache.
func (r *Registry) GetBySlug(ctx context.Context, slug string) (*Tenant, error) {
	if t, ok := r.cache.Get(ctx, slug); ok {
		return t, nil
	}

	sess, err := r.sessions.AcquireNamespace(ctx, r.sessions.ControlSchema())
	if err != nil {
		return nil, err
	}
	defer sess.Release()

	t, err := scanTenant(sess.QueryRow(ctx,
		"SELECT "+tenantColumns+" FROM tenants WHERE slug = $1", slug))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, slug)
		}
		return nil, fmt.Errorf("get tenant %s: %w", slug, err)
	}

	r.cache.Set(ctx, t)
	return t, nil
}

// SetStatus moves a tenant through the lifecycle machine. The current row
// is locked for the duration of the transition so concurrent transitions
// serialize; illegal steps (anything out of deleted, unknown statuses)
// fail with ErrInvalidTransition.
func (r *Registry) SetStatus(ctx context.Context, slug string, next Status) (*Tenant, error) {
	if !next.IsValid() {
		return nil, fmt.Errorf("%w: unknown status %q", ErrInvalidTransition, next)
	}

	sess, err := r.sessions.AcquireNamespace(ctx, r.sessions.ControlSchema())
	if err != nil {
		return nil, err
	}
	defer sess.Release()

	if err := sess.Begin(ctx); err != nil {
		return nil, err
	}

	t, err := r.transition(ctx, sess, slug, next)
	if finishErr := sess.Finish(ctx, err); finishErr != nil {
		return nil, finishErr
	}
	if err != nil {
		return nil, err
	}

	r.cache.Invalidate(ctx, slug)
	return t, nil
}

func (r *Registry) transition(ctx context.Context, sess *database.Session, slug string, next Status) (*Tenant, error) {
	t, err := scanTenant(sess.QueryRow(ctx,
		"SELECT "+tenantColumns+" FROM tenants WHERE slug = $1 FOR UPDATE", slug))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, slug)
		}
		return nil, fmt.Errorf("lock tenant %s: %w", slug, err)
	}

	if !t.Status.CanTransition(next) {
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, t.Status, next)
	}

	now := time.Now().UTC()
	_, err = sess.Exec(ctx,
		"UPDATE tenants SET status = $1, status_changed_at = $2 WHERE slug = $3",
		next, now, slug)
	if err != nil {
		return nil, fmt.Errorf("update tenant status: %w", err)
	}

	t.Status = next
	t.StatusChangedAt = &now
	return t, nil
}

// ListActive returns every tenant eligible for request traffic and for the
// migration batch.
func (r *Registry) ListActive(ctx context.Context) ([]Tenant, error) {
	active := StatusActive
	return r.listByStatus(ctx, &active)
}

// List returns all tenants, deleted tombstones included.
func (r *Registry) List(ctx context.Context) ([]Tenant, error) {
	return r.listByStatus(ctx, nil)
}

func (r *Registry) listByStatus(ctx context.Context, status *Status) ([]Tenant, error) {
	sess, err := r.sessions.AcquireNamespace(ctx, r.sessions.ControlSchema())
	if err != nil {
		return nil, err
	}
	defer sess.Release()

	query := "SELECT " + tenantColumns + " FROM tenants"
	args := []any{}
	if status != nil {
		query += " WHERE status = $1"
		args = append(args, *status)
	}
	query += " ORDER BY slug"

	rows, err := sess.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list tenants: %w", err)
	}
	defer rows.Close()

	var tenants []Tenant
	for rows.Next() {
		t, err := scanTenant(rows)
		if err != nil {
			return nil, fmt.Errorf("scan tenant: %w", err)
		}
		tenants = append(tenants, *t)
	}
	return tenants, rows.Err()
}

func scanTenant(row pgx.Row) (*Tenant, error) {
	var t Tenant
	err := row.Scan(
		&t.ID, &t.Slug, &t.NamespaceName, &t.DisplayName, &t.Status,
		&t.AdminEmail, &t.MaxUsers, &t.CreatedAt, &t.StatusChangedAt,
	)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
