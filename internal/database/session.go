package database

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/agentgrid/tenancy-plane/internal/tenantctx"
)

// ErrNamespaceUnavailable means the target namespace vanished or could not
// be bound after the tenant had already passed resolution (e.g. a race with
// concurrent deletion). It is not retried: proceeding with an ambiguous
// scope is worse than failing loudly.
var ErrNamespaceUnavailable = errors.New("tenant namespace unavailable")

// SessionFactory hands out pool connections scoped to the tenant namespace
// of the calling request. It is the only sanctioned way for business code
// to obtain a database handle.
type SessionFactory struct {
	pool          *pgxpool.Pool
	controlSchema string
}

func NewSessionFactory(pool *pgxpool.Pool, controlSchema string) *SessionFactory {
	return &SessionFactory{pool: pool, controlSchema: controlSchema}
}

// ControlSchema returns the shared control namespace name.
func (f *SessionFactory) ControlSchema() string {
	return f.controlSchema
}

// Check verifies the database is reachable and the control namespace binds,
// exercising the same checkout and scoping path request sessions use. A dead
// socket and a missing control schema both fail readiness.
func (f *SessionFactory) Check(ctx context.Context) error {
	sess, err := f.AcquireNamespace(ctx, f.controlSchema)
	if err != nil {
		return err
	}
	defer sess.Release()

	var one int
	if err := sess.QueryRow(ctx, "SELECT 1").Scan(&one); err != nil {
		return fmt.Errorf("control schema probe: %w", err)
	}
	return nil
}

// Acquire checks out a connection scoped to the namespace in the request's
// tenant context. When no tenant is resolved (exempt paths, registry
// operations) the session binds to the control namespace; that is the
// documented default, not an error.
func (f *SessionFactory) Acquire(ctx context.Context) (*Session, error) {
	return f.AcquireNamespace(ctx, targetNamespace(ctx, f.controlSchema))
}

// targetNamespace picks the namespace a session must bind to: the resolved
// tenant namespace when the request has one, the control namespace
// otherwise.
func targetNamespace(ctx context.Context, control string) string {
	if ns := tenantctx.Namespace(ctx); ns != "" {
		return ns
	}
	return control
}

// AcquireNamespace checks out a connection scoped to an explicit namespace.
// Used by the provisioner and the migration orchestrator, which operate on
// namespaces other than the calling request's.
//
// The scope statement is issued on every checkout, unconditionally. Pooled
// connections are anonymous with respect to which unit of work last used
// them, so "this connection is already scoped correctly" can never be
// assumed, cached, or optimized away.
func (f *SessionFactory) AcquireNamespace(ctx context.Context, namespace string) (*Session, error) {
	conn, err := f.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}

	if err := f.scope(ctx, conn, namespace); err != nil {
		conn.Release()
		return nil, err
	}

	return &Session{conn: conn, Namespace: namespace}, nil
}

// scope binds the connection's search_path to the namespace. SET search_path
// succeeds silently for schemas that do not exist, so tenant namespaces are
// probed first; a vanished namespace surfaces ErrNamespaceUnavailable before
// any caller query can run against the wrong scope.
func (f *SessionFactory) scope(ctx context.Context, conn *pgxpool.Conn, namespace string) error {
	if namespace != f.controlSchema {
		var exists bool
		err := conn.QueryRow(ctx,
			"SELECT EXISTS(SELECT 1 FROM pg_namespace WHERE nspname = $1)", namespace,
		).Scan(&exists)
		if err != nil {
			return fmt.Errorf("probe namespace %s: %w", namespace, err)
		}
		if !exists {
			return fmt.Errorf("%w: %s", ErrNamespaceUnavailable, namespace)
		}
	}

	stmt := "SET search_path TO " + pgx.Identifier{namespace}.Sanitize()
	if namespace != f.controlSchema {
		stmt += ", " + pgx.Identifier{f.controlSchema}.Sanitize()
	}
	if _, err := conn.Exec(ctx, stmt); err != nil {
		return fmt.Errorf("%w: set search_path for %s: %v", ErrNamespaceUnavailable, namespace, err)
	}

	return nil
}

// Session is one namespace-bound unit of work. It wraps exactly one pool
// checkout; the namespace binding established at acquisition holds for the
// session's whole life because the underlying connection never returns to
// the pool until release.
type Session struct {
	conn      *pgxpool.Conn
	tx        pgx.Tx
	Namespace string
	released  bool
}

func (s *Session) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	if s.tx != nil {
		return s.tx.Exec(ctx, sql, args...)
	}
	return s.conn.Exec(ctx, sql, args...)
}

func (s *Session) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	if s.tx != nil {
		return s.tx.Query(ctx, sql, args...)
	}
	return s.conn.Query(ctx, sql, args...)
}

func (s *Session) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	if s.tx != nil {
		return s.tx.QueryRow(ctx, sql, args...)
	}
	return s.conn.QueryRow(ctx, sql, args...)
}

// Begin starts a transaction on the session's connection.
func (s *Session) Begin(ctx context.Context) error {
	if s.tx != nil {
		return errors.New("session transaction already open")
	}
	tx, err := s.conn.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	s.tx = tx
	return nil
}

// Finish ends the unit of work: commit when err is nil, roll back otherwise,
// then return the connection to the pool. The cleanup runs even when ctx is
// already cancelled so a mid-request timeout cannot leak the connection or
// poison the pool. The search_path is not reset here; the next checkout
// re-scopes unconditionally.
func (s *Session) Finish(ctx context.Context, err error) error {
	if s.released {
		return nil
	}
	txErr := s.finishTx(ctx, err)
	s.conn.Release()
	s.released = true
	return txErr
}

// finishTx ends any open transaction (commit when err is nil, rollback
// otherwise) without releasing the connection. Used by multi-step callers
// such as the migrator that run several transactions on one session.
func (s *Session) finishTx(ctx context.Context, err error) error {
	if s.tx == nil {
		return nil
	}
	ctx = context.WithoutCancel(ctx)

	var txErr error
	if err != nil {
		txErr = s.tx.Rollback(ctx)
	} else {
		txErr = s.tx.Commit(ctx)
	}
	s.tx = nil

	if txErr != nil && !errors.Is(txErr, pgx.ErrTxClosed) {
		return fmt.Errorf("finish transaction: %w", txErr)
	}
	return nil
}

// Release returns the connection to the pool, rolling back any open
// transaction. Safe to defer alongside an explicit Finish.
func (s *Session) Release() {
	if s.released {
		return
	}
	if s.tx != nil {
		_ = s.tx.Rollback(context.WithoutCancel(context.Background()))
		s.tx = nil
	}
	s.conn.Release()
	s.released = true
}
