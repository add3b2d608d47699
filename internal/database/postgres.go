package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	migratepg "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/lib/pq"
	"github.com/npezzotti/go-echoes/internal/database/migrations"
)

const uniqueViolation = "23505"

type PgEchoesRepository struct {
	conn *sql.DB
}

func NewPgEchoesRepository(dsn string) (*PgEchoesRepository, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}

	if err := db.Ping(); err != nil {
		return nil, err
	}

	return &PgEchoesRepository{conn: db}, nil
}

func newPgEchoesRepositoryWithDB(db *sql.DB) *PgEchoesRepository {
	return &PgEchoesRepository{conn: db}
}

func (db *PgEchoesRepository) Ping(ctx context.Context) error {
	return db.conn.PingContext(ctx)
}

func (db *PgEchoesRepository) Close() error {
	if db.conn != nil {
		return db.conn.Close()
	}
	return nil
}

// Migrate applies the embedded schema migrations. It is a no-op when the
// schema is already current.
func (db *PgEchoesRepository) Migrate() error {
	src, err := iofs.New(migrations.FS, ".")
	if err != nil {
		return fmt.Errorf("migration source: %w", err)
	}

	driver, err := migratepg.WithInstance(db.conn, &migratepg.Config{})
	if err != nil {
		return fmt.Errorf("migration driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", src, "postgres", driver)
	if err != nil {
		return fmt.Errorf("new migrate: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migrate up: %w", err)
	}

	return nil
}

// pgError translates driver errors into the repository sentinels.
func pgError(err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
		return fmt.Errorf("%w: %s", ErrDuplicate, pqErr.Constraint)
	}

	return fmt.Errorf("db error: %w", err)
}
