package registry

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/roomforge/themekit/pkg/sqliteutil"
	"github.com/roomforge/themekit/pkg/theme"
)

var sqliteMigrations = []sqliteutil.Migration{
	{
		ID:   1,
		Name: "create_themes",
		SQL: `CREATE TABLE IF NOT EXISTS themes (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL DEFAULT '',
			parent_id TEXT NOT NULL DEFAULT '',
			config TEXT NOT NULL DEFAULT '{}',
			updated_at TEXT NOT NULL
		)`,
	},
	{
		ID:   2,
		Name: "index_themes_parent",
		SQL:  `CREATE INDEX IF NOT EXISTS idx_themes_parent ON themes(parent_id)`,
	},
}

// SQLite stores theme records in a SQLite database. The configuration is
// kept as a JSON document.
type SQLite struct {
	db *sql.DB
}

var _ Store = (*SQLite)(nil)

// NewSQLite opens (creating and migrating if needed) the database at path.
func NewSQLite(ctx context.Context, path string) (*SQLite, error) {
	db, err := sqliteutil.OpenDB(ctx, path)
	if err != nil {
		return nil, err
	}
	if err := sqliteutil.Migrate(ctx, db, sqliteMigrations); err != nil {
		db.Close()
		return nil, err
	}
	return &SQLite{db: db}, nil
}

func (s *SQLite) Close() error {
	return s.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*theme.Record, error) {
	var (
		rec        theme.Record
		configJSON string
	)
	if err := row.Scan(&rec.ID, &rec.Name, &rec.ParentID, &configJSON); err != nil {
		return nil, err
	}

	var raw map[string]any
	if err := json.Unmarshal([]byte(configJSON), &raw); err != nil {
		return nil, fmt.Errorf("decoding config of theme %q: %w", rec.ID, err)
	}
	cfg, err := theme.FromMap(raw)
	if err != nil {
		return nil, fmt.Errorf("decoding config of theme %q: %w", rec.ID, err)
	}
	rec.Config = cfg
	return &rec, nil
}

func (s *SQLite) GetTheme(ctx context.Context, id string) (*theme.Record, error) {
	row := s.db.QueryRowContext(ctx, "SELECT id, name, parent_id, config FROM themes WHERE id = ?", id)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound(id)
	}
	return rec, err
}

func (s *SQLite) ListThemes(ctx context.Context) ([]*theme.Record, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT id, name, parent_id, config FROM themes ORDER BY id")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []*theme.Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

func (s *SQLite) UpdateThemeConfig(ctx context.Context, id string, cfg *theme.Config) error {
	configJSON, err := encodeConfig(cfg)
	if err != nil {
		return err
	}

	res, err := s.db.ExecContext(ctx, "UPDATE themes SET config = ?, updated_at = ? WHERE id = ?", configJSON, now(), id)
	if err != nil {
		return err
	}
	return requireRow(res, id)
}

func (s *SQLite) PutTheme(ctx context.Context, rec *theme.Record) error {
	if err := ValidateID(rec.ID); err != nil {
		return err
	}
	configJSON, err := encodeConfig(rec.Config)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO themes (id, name, parent_id, config, updated_at) VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			parent_id = excluded.parent_id,
			config = excluded.config,
			updated_at = excluded.updated_at`,
		rec.ID, rec.Name, rec.ParentID, configJSON, now())
	return err
}

func (s *SQLite) DeleteTheme(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM themes WHERE id = ?", id)
	if err != nil {
		return err
	}
	return requireRow(res, id)
}

func encodeConfig(cfg *theme.Config) (string, error) {
	if cfg == nil {
		cfg = theme.NewConfig()
	}
	data, err := json.Marshal(cfg)
	if err != nil {
		return "", fmt.Errorf("encoding theme config: %w", err)
	}
	return string(data), nil
}

func requireRow(res sql.Result, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return notFound(id)
	}
	return nil
}

func now() string {
	return time.Now().UTC().Format(time.RFC3339Nano)
}
