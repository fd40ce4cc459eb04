package sessionstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"bahr/analytics/models"
	"bahr/analytics/telemetry"
)

// Dialect holds the statements for one SQL engine.
type Dialect struct {
	Name   string
	Create string
	Select string
	Upsert string
}

var (
	SQLiteDialect = Dialect{
		Name: "sqlite",
		Create: `CREATE TABLE IF NOT EXISTS telemetry_sessions (
			key TEXT PRIMARY KEY,
			document TEXT NOT NULL,
			updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		Select: `SELECT document FROM telemetry_sessions WHERE key = ?`,
		Upsert: `INSERT INTO telemetry_sessions (key, document, updated_at)
			VALUES (?, ?, CURRENT_TIMESTAMP)
			ON CONFLICT (key) DO UPDATE SET document = excluded.document, updated_at = excluded.updated_at`,
	}

	PostgresDialect = Dialect{
		Name: "postgres",
		Create: `CREATE TABLE IF NOT EXISTS telemetry_sessions (
			key TEXT PRIMARY KEY,
			document JSONB NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		Select: `SELECT document FROM telemetry_sessions WHERE key = $1`,
		Upsert: `INSERT INTO telemetry_sessions (key, document, updated_at)
			VALUES ($1, $2, NOW())
			ON CONFLICT (key) DO UPDATE SET document = EXCLUDED.document, updated_at = EXCLUDED.updated_at`,
	}
)

// SQL stores the session document in a key/value table.
type SQL struct {
	db      *sql.DB
	dialect Dialect
	key     string
}

// NewSQL creates the table if needed and returns a store for the fixed session key.
func NewSQL(ctx context.Context, db *sql.DB, dialect Dialect) (*SQL, error) {
	if _, err := db.ExecContext(ctx, dialect.Create); err != nil {
		return nil, fmt.Errorf("failed to create telemetry_sessions table (%s): %w", dialect.Name, err)
	}
	return &SQL{db: db, dialect: dialect, key: telemetry.StorageKey}, nil
}

func (s *SQL) Load(ctx context.Context) (*models.Session, error) {
	var doc string
	err := s.db.QueryRowContext(ctx, s.dialect.Select, s.key).Scan(&doc)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, telemetry.ErrNoSession
		}
		return nil, fmt.Errorf("failed to load session: %w", err)
	}
	return decodeSession([]byte(doc))
}

func (s *SQL) Save(ctx context.Context, session *models.Session) error {
	data, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, s.dialect.Upsert, s.key, string(data)); err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}
	return nil
}
