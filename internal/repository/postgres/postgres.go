// Package postgres is the PostgreSQL user directory, using the pgx
// database/sql driver and goose migrations embedded in the binary.
package postgres

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"github.com/raakeshmj/vpnshield/internal/db"
	"github.com/raakeshmj/vpnshield/internal/repository"
)

//go:embed migrations/*.sql
var migrations embed.FS

// DBTX is the subset of *sql.DB and *sql.Tx the repository needs.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Open connects with the pgx driver and verifies the connection.
func Open(ctx context.Context, dsn string) (*sql.DB, error) {
	conn, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	if err := conn.PingContext(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("db error: %w", err)
	}
	return conn, nil
}

// gooseUpContext is a seam for testing goose.UpContext.
var gooseUpContext = func(ctx context.Context, conn *sql.DB, dir string, opts ...goose.OptionsFunc) error {
	return goose.UpContext(ctx, conn, dir, opts...)
}

// Migrate applies the embedded migrations.
func Migrate(ctx context.Context, conn *sql.DB) error {
	goose.SetBaseFS(migrations)
	if err := goose.SetDialect("pgx"); err != nil {
		return err
	}
	if err := gooseUpContext(ctx, conn, "migrations"); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

type PostgresRepository struct {
	db DBTX
}

func NewPostgresRepository(db DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const userColumns = `email, password_hash, name, role, plan, provider, created_at, connections, bytes_transferred`

type scanner interface {
	Scan(dest ...any) error
}

func scanUser(row scanner) (*db.User, error) {
	u := &db.User{}
	err := row.Scan(&u.Email, &u.PasswordHash, &u.Name, &u.Role, &u.Plan, &u.Provider,
		&u.CreatedAt, &u.Usage.Connections, &u.Usage.BytesTransferred)
	return u, err
}

func (r *PostgresRepository) Get(ctx context.Context, email string) (*db.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE email = $1`

	u, err := scanUser(r.db.QueryRowContext(ctx, query, db.NormalizeEmail(email)))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return u, nil
}

func (r *PostgresRepository) Create(ctx context.Context, user *db.User) error {
	query :=
		`INSERT INTO users (` + userColumns + `)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 ON CONFLICT (email) DO NOTHING`

	res, err := r.db.ExecContext(ctx, query, userArgs(user)...)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if n == 0 {
		return repository.ErrAlreadyExists
	}
	return nil
}

func (r *PostgresRepository) Put(ctx context.Context, user *db.User) error {
	query :=
		`INSERT INTO users (` + userColumns + `)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 ON CONFLICT (email) DO UPDATE SET
		 password_hash = EXCLUDED.password_hash, name = EXCLUDED.name,
		 role = EXCLUDED.role, plan = EXCLUDED.plan, provider = EXCLUDED.provider,
		 connections = EXCLUDED.connections, bytes_transferred = EXCLUDED.bytes_transferred`

	if _, err := r.db.ExecContext(ctx, query, userArgs(user)...); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func userArgs(u *db.User) []any {
	return []any{db.NormalizeEmail(u.Email), u.PasswordHash, u.Name, u.Role, u.Plan, u.Provider,
		u.CreatedAt, u.Usage.Connections, u.Usage.BytesTransferred}
}

func (r *PostgresRepository) Delete(ctx context.Context, email string) error {
	return r.execOne(ctx, `DELETE FROM users WHERE email = $1`, db.NormalizeEmail(email))
}

func (r *PostgresRepository) List(ctx context.Context) ([]*db.User, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+userColumns+` FROM users ORDER BY email`)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var list []*db.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		list = append(list, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return list, nil
}

func (r *PostgresRepository) SetRole(ctx context.Context, email, role string) error {
	return r.execOne(ctx, `UPDATE users SET role = $2 WHERE email = $1`, db.NormalizeEmail(email), role)
}

func (r *PostgresRepository) SetPlan(ctx context.Context, email, plan string) error {
	return r.execOne(ctx, `UPDATE users SET plan = $2 WHERE email = $1`, db.NormalizeEmail(email), plan)
}

func (r *PostgresRepository) AddUsage(ctx context.Context, email string, delta db.Usage) error {
	query :=
		`UPDATE users SET connections = connections + $2,
		 bytes_transferred = bytes_transferred + $3
		 WHERE email = $1`
	return r.execOne(ctx, query, db.NormalizeEmail(email), delta.Connections, delta.BytesTransferred)
}

// execOne runs a statement that must touch exactly one user.
func (r *PostgresRepository) execOne(ctx context.Context, query string, args ...any) error {
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if n == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// Ping reports whether the database is reachable.
func (r *PostgresRepository) Ping(ctx context.Context) error {
	if p, ok := r.db.(interface{ PingContext(context.Context) error }); ok {
		return p.PingContext(ctx)
	}
	return nil
}

var (
	_ repository.UserRepository = (*PostgresRepository)(nil)
	_ repository.Pinger         = (*PostgresRepository)(nil)
)
