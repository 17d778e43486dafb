package scratch

import (
	"context"
	"database/sql"
	"encoding/json"
	"log/slog"
	"time"

	_ "modernc.org/sqlite"
)

// DefaultTTL bounds how long an unwritten scratch scope survives
// before the store is free to expire it (§4.8: "e.g., 30 days").
const DefaultTTL = 30 * 24 * time.Hour

// SQLBackend persists scratch scopes as single JSON blobs in an
// embedded SQLite database, refreshing each scope's expiry on every
// write. Load treats a scope past expiry as empty; Vacuum deletes such
// rows, and nothing in the hub calls it, so expired rows stay in the
// database until they are overwritten or vacuumed.
type SQLBackend struct {
	db  *sql.DB
	ttl time.Duration
}

// OpenSQLBackend opens (creating if needed) a SQLite-backed scratch
// store at dsn, e.g. "file:scratch.db?_pragma=journal_mode(WAL)".
func OpenSQLBackend(dsn string) (*SQLBackend, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS scratch (
			scope      TEXT PRIMARY KEY,
			data       TEXT NOT NULL,
			expires_at INTEGER NOT NULL
		)
	`); err != nil {
		db.Close()
		return nil, err
	}
	return &SQLBackend{db: db, ttl: DefaultTTL}, nil
}

// Close closes the underlying database handle.
func (b *SQLBackend) Close() error {
	return b.db.Close()
}

func (b *SQLBackend) Load(ctx context.Context, scope Scope) (map[string]any, error) {
	var raw string
	var expiresAt int64

	err := b.db.QueryRowContext(ctx,
		`SELECT data, expires_at FROM scratch WHERE scope = ?`, string(scope),
	).Scan(&raw, &expiresAt)
	if err == sql.ErrNoRows {
		return make(map[string]any), nil
	}
	if err != nil {
		return nil, err
	}
	if time.Unix(expiresAt, 0).Before(time.Now()) {
		return make(map[string]any), nil
	}

	var data map[string]any
	if err := json.Unmarshal([]byte(raw), &data); err != nil {
		slog.Error("scratch: corrupt value, treating as hard error", "scope", scope, "error", err)
		return nil, ErrCorrupt
	}
	return data, nil
}

func (b *SQLBackend) Save(ctx context.Context, scope Scope, data map[string]any) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return err
	}

	_, err = b.db.ExecContext(ctx, `
		INSERT INTO scratch (scope, data, expires_at)
		VALUES (?, ?, ?)
		ON CONFLICT(scope) DO UPDATE SET data = excluded.data, expires_at = excluded.expires_at
	`, string(scope), string(raw), time.Now().Add(b.ttl).Unix())
	if err != nil {
		slog.Error("scratch: save failed", "scope", scope, "error", err)
	}
	return err
}

// Vacuum deletes every scope whose expiry has passed and returns the
// number of rows removed.
func (b *SQLBackend) Vacuum(ctx context.Context) (int64, error) {
	res, err := b.db.ExecContext(ctx, `DELETE FROM scratch WHERE expires_at < ?`, time.Now().Unix())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
