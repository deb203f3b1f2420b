// Package sqlitestore persists service definitions in SQLite.
package sqlitestore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/melih/lighthouse/internal/core/domain"
	"github.com/melih/lighthouse/internal/logging"
)

const schema = `
CREATE TABLE IF NOT EXISTS service (
	id           INTEGER PRIMARY KEY AUTOINCREMENT,
	name         TEXT    NOT NULL UNIQUE,
	compose_name TEXT    NOT NULL,
	repo_url     TEXT    NOT NULL,
	access_url   TEXT    NOT NULL DEFAULT '',
	active       INTEGER NOT NULL DEFAULT 1,
	cred_file    TEXT    NOT NULL DEFAULT '',
	use_key      INTEGER NOT NULL DEFAULT 0
);`

const selectColumns = `SELECT id, name, compose_name, repo_url, access_url, active, cred_file, use_key FROM service`

var pragmas = []string{
	"PRAGMA journal_mode=WAL",
	"PRAGMA synchronous=NORMAL",
	"PRAGMA busy_timeout=5000",
}

// Config configures Open.
type Config struct {
	// Path is the database file. A pool cannot share a plain ":memory:"
	// database; use a file or a shared-cache URI instead.
	Path string
	// PoolSize defaults to 4.
	PoolSize int
}

// Store implements ports.ServiceStore on a pool of SQLite connections.
type Store struct {
	pool   *sqlitex.Pool
	path   string
	logger *slog.Logger
}

// Open opens the database and creates the schema on every new connection.
func Open(cfg Config, logger *slog.Logger) (*Store, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("sqlitestore: path is required")
	}
	size := cfg.PoolSize
	if size <= 0 {
		size = 4
	}

	pool, err := sqlitex.NewPool(cfg.Path, sqlitex.PoolOptions{
		PoolSize:    size,
		PrepareConn: prepare,
	})
	if err != nil {
		return nil, fmt.Errorf("sqlitestore: opening %s: %w", cfg.Path, err)
	}

	logger = logging.OrDiscard(logger)
	logger.Info("service store opened", "path", cfg.Path, "pool_size", size)
	return &Store{pool: pool, path: cfg.Path, logger: logger}, nil
}

func prepare(conn *sqlite.Conn) error {
	for _, p := range pragmas {
		if err := sqlitex.ExecuteTransient(conn, p, nil); err != nil {
			return fmt.Errorf("%s: %w", p, err)
		}
	}
	return sqlitex.ExecuteScript(conn, schema, nil)
}

// Close closes every connection of the pool.
func (s *Store) Close() error {
	if err := s.pool.Close(); err != nil {
		return fmt.Errorf("sqlitestore: closing %s: %w", s.path, err)
	}
	return nil
}

// List returns every service ordered by id.
func (s *Store) List(ctx context.Context) ([]domain.Service, error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return nil, storeErr("list", err)
	}
	defer s.pool.Put(conn)

	services := []domain.Service{}
	err = sqlitex.Execute(conn, selectColumns+` ORDER BY id`, &sqlitex.ExecOptions{
		ResultFunc: func(stmt *sqlite.Stmt) error {
			services = append(services, scanService(stmt))
			return nil
		},
	})
	if err != nil {
		return nil, storeErr("list", err)
	}
	return services, nil
}

// Get returns the service with the given id.
func (s *Store) Get(ctx context.Context, id int64) (domain.Service, error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return domain.Service{}, storeErr("get", err)
	}
	defer s.pool.Put(conn)

	var (
		svc   domain.Service
		found bool
	)
	err = sqlitex.Execute(conn, selectColumns+` WHERE id = ?`, &sqlitex.ExecOptions{
		Args: []any{id},
		ResultFunc: func(stmt *sqlite.Stmt) error {
			svc = scanService(stmt)
			found = true
			return nil
		},
	})
	if err != nil {
		return domain.Service{}, storeErr("get", err)
	}
	if !found {
		return domain.Service{}, storeErr("get", fmt.Errorf("id %d: %w", id, domain.ErrServiceNotFound))
	}
	return svc, nil
}

// Create inserts svc and returns its new id. svc.ID is ignored.
func (s *Store) Create(ctx context.Context, svc domain.Service) (int64, error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return 0, storeErr("create", err)
	}
	defer s.pool.Put(conn)

	err = sqlitex.Execute(conn,
		`INSERT INTO service (name, compose_name, repo_url, access_url, active, cred_file, use_key)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		&sqlitex.ExecOptions{Args: serviceArgs(svc)})
	if err != nil {
		return 0, storeErr("create", translate(err, svc.Name))
	}

	id := conn.LastInsertRowID()
	s.logger.Info("service created", "service_id", id, "service", svc.Name)
	return id, nil
}

// Update replaces every field of the service with the given id.
func (s *Store) Update(ctx context.Context, id int64, svc domain.Service) error {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return storeErr("update", err)
	}
	defer s.pool.Put(conn)

	err = sqlitex.Execute(conn,
		`UPDATE service SET name = ?, compose_name = ?, repo_url = ?, access_url = ?,
		 active = ?, cred_file = ?, use_key = ? WHERE id = ?`,
		&sqlitex.ExecOptions{Args: append(serviceArgs(svc), id)})
	if err != nil {
		return storeErr("update", translate(err, svc.Name))
	}
	if conn.Changes() == 0 {
		return storeErr("update", fmt.Errorf("id %d: %w", id, domain.ErrServiceNotFound))
	}

	s.logger.Info("service updated", "service_id", id, "service", svc.Name)
	return nil
}

func scanService(stmt *sqlite.Stmt) domain.Service {
	return domain.Service{
		ID:          stmt.ColumnInt64(0),
		Name:        stmt.ColumnText(1),
		ComposeName: stmt.ColumnText(2),
		RepoURL:     stmt.ColumnText(3),
		AccessURL:   stmt.ColumnText(4),
		Active:      stmt.ColumnInt64(5) != 0,
		CredFile:    stmt.ColumnText(6),
		UseKey:      stmt.ColumnInt64(7) != 0,
	}
}

func serviceArgs(svc domain.Service) []any {
	return []any{
		svc.Name, svc.ComposeName, svc.RepoURL, svc.AccessURL,
		boolInt(svc.Active), svc.CredFile, boolInt(svc.UseKey),
	}
}

func boolInt(b bool) int64 {
	if b {
		return 1
	}
	return 0
}

// translate maps the unique constraint on name to ErrServiceNameTaken.
func translate(err error, name string) error {
	if sqlite.ErrCode(err) == sqlite.ResultConstraintUnique {
		return fmt.Errorf("%q: %w", name, domain.ErrServiceNameTaken)
	}
	return err
}

func storeErr(op string, err error) error {
	var se *domain.StoreError
	if errors.As(err, &se) {
		return err
	}
	return &domain.StoreError{Op: op, Err: err}
}
