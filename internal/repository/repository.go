package repository

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"github.com/codebyem/IndiaLimaYankee/internal/models"
)

// SettingsRepository persists the user-changeable dashboard settings.
type SettingsRepository interface {
	ListSettings(ctx context.Context) ([]models.Setting, error)
	SaveSettings(ctx context.Context, values map[string]string) error
	Close() error
}

const settingsSchema = `
CREATE TABLE IF NOT EXISTS settings (
	key        TEXT PRIMARY KEY,
	value      TEXT NOT NULL,
	updated_at TIMESTAMP NOT NULL
)`

// SQLRepository implements SettingsRepository on SQLite or PostgreSQL.
type SQLRepository struct {
	db  *sqlx.DB
	now func() time.Time
}

var _ SettingsRepository = (*SQLRepository)(nil)

// Open connects with driver "sqlite" or "postgres" and creates the schema.
func Open(ctx context.Context, driver, dsn string) (*SQLRepository, error) {
	var (
		r   *SQLRepository
		err error
	)
	switch driver {
	case "sqlite":
		r, err = NewSQLiteRepository(dsn)
	case "postgres":
		r, err = NewPostgresRepository(dsn)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}
	if err != nil {
		return nil, err
	}
	if err := r.Migrate(ctx); err != nil {
		_ = r.Close()
		return nil, err
	}
	return r, nil
}

// NewSQLiteRepository opens the pure Go SQLite driver on dbPath.
func NewSQLiteRepository(dbPath string) (*SQLRepository, error) {
	db, err := sqlx.Connect("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to SQLite: %w", err)
	}
	// One writer at a time; SQLite would otherwise answer SQLITE_BUSY under concurrent saves.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}
	return &SQLRepository{db: db, now: time.Now}, nil
}

// NewPostgresRepository connects to PostgreSQL.
func NewPostgresRepository(connectionString string) (*SQLRepository, error) {
	db, err := sqlx.Connect("postgres", connectionString)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to PostgreSQL: %w", err)
	}
	db.SetMaxOpenConns(5)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(5 * time.Minute)
	return &SQLRepository{db: db, now: time.Now}, nil
}

// Migrate creates the settings table if needed.
func (r *SQLRepository) Migrate(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, settingsSchema); err != nil {
		return fmt.Errorf("migrate settings: %w", err)
	}
	return nil
}

// Ping checks database connectivity.
func (r *SQLRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// Close closes the database connection
func (r *SQLRepository) Close() error {
	return r.db.Close()
}

// ListSettings returns every stored setting ordered by key.
func (r *SQLRepository) ListSettings(ctx context.Context) ([]models.Setting, error) {
	var out []models.Setting
	query := `SELECT key, value, updated_at FROM settings ORDER BY key`
	if err := r.db.SelectContext(ctx, &out, query); err != nil {
		return nil, fmt.Errorf("list settings: %w", err)
	}
	return out, nil
}

// SaveSettings upserts all values in one transaction.
func (r *SQLRepository) SaveSettings(ctx context.Context, values map[string]string) error {
	if len(values) == 0 {
		return nil
	}
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	query := r.db.Rebind(`
		INSERT INTO settings (key, value, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			value = excluded.value,
			updated_at = excluded.updated_at
	`)

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("save settings: %w", err)
	}
	now := r.now().UTC()
	for _, k := range keys {
		if _, err := tx.ExecContext(ctx, query, k, values[k], now); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("save setting %s: %w", k, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("save settings: %w", err)
	}
	return nil
}
