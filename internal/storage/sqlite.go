package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

// SQLite is the relational Driver. Durable, supports secondary queries by
// created_at. List order is id (lexicographic).
type SQLite struct {
	db   *sql.DB
	Path string
}

// OpenSQLite opens (or creates) the database at path, configures pragmas,
// and runs migrations.
func OpenSQLite(path string) (*SQLite, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}

	sqlDB, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	s := &SQLite{db: sqlDB, Path: path}
	if err := s.init(); err != nil {
		sqlDB.Close()
		return nil, err
	}
	return s, nil
}

// OpenSQLiteMemory opens an in-memory database for testing.
func OpenSQLiteMemory() (*SQLite, error) {
	sqlDB, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		return nil, fmt.Errorf("open sqlite memory: %w", err)
	}
	s := &SQLite{db: sqlDB, Path: ":memory:"}
	if err := s.init(); err != nil {
		sqlDB.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLite) init() error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
	}
	for _, p := range pragmas {
		if _, err := s.db.Exec(p); err != nil {
			return fmt.Errorf("pragma %q: %w", p, err)
		}
	}
	if err := s.migrate(); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

const sigilColumns = `id, content_hash, signature, coordinate, payload,
	importance, pinned, revoked, created_at, last_accessed_at, access_count`

func (s *SQLite) Put(ctx context.Context, rec *Record) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sigil_records (`+sigilColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			content_hash = excluded.content_hash,
			signature = excluded.signature,
			coordinate = excluded.coordinate,
			payload = excluded.payload,
			importance = excluded.importance,
			pinned = excluded.pinned,
			revoked = excluded.revoked,
			last_accessed_at = excluded.last_accessed_at,
			access_count = excluded.access_count
	`, rec.ID, rec.ContentHash, rec.Signature, rec.Coordinate, []byte(rec.Payload),
		rec.Importance, boolInt(rec.Pinned), boolInt(rec.Revoked),
		rec.CreatedAt, rec.LastAccessedAt, rec.AccessCount)
	if err != nil {
		return fmt.Errorf("put record %s: %w", rec.ID, err)
	}
	return nil
}

func (s *SQLite) Get(ctx context.Context, id string) (*Record, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+sigilColumns+` FROM sigil_records WHERE id = ?
	`, id)
	rec, err := scanRecord(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get record %s: %w", id, err)
	}
	return rec, nil
}

func (s *SQLite) List(ctx context.Context, cursor string, limit int) ([]Record, string, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}

	// The cursor is compared as a value, never re-resolved through a
	// subquery, so pagination keeps going when the cursor record itself
	// has since been deleted.
	query := `SELECT ` + sigilColumns + ` FROM sigil_records`
	args := []any{}
	if cursor != "" {
		query += ` WHERE id > ?`
		args = append(args, cursor)
	}
	query += ` ORDER BY id LIMIT ?`
	args = append(args, limit+1)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, "", fmt.Errorf("list records: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, "", fmt.Errorf("scan record: %w", err)
		}
		out = append(out, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, "", err
	}

	next := ""
	if len(out) > limit {
		out = out[:limit]
		next = out[limit-1].ID
	}
	return out, next, nil
}

func (s *SQLite) GetByCoordinate(ctx context.Context, coordinate string) (*Record, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+sigilColumns+` FROM sigil_records WHERE coordinate = ?
	`, coordinate)
	rec, err := scanRecord(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get coordinate %s: %w", coordinate, err)
	}
	return rec, nil
}

func (s *SQLite) Delete(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM sigil_records WHERE id = ?", id); err != nil {
		return fmt.Errorf("delete record %s: %w", id, err)
	}
	return nil
}

func (s *SQLite) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SQLite) Close() error {
	return s.db.Close()
}

// CreatedBetween returns records created in [from, to), a relational-only
// secondary query used by audit tooling.
func (s *SQLite) CreatedBetween(ctx context.Context, from, to int64) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+sigilColumns+` FROM sigil_records
		WHERE created_at >= ? AND created_at < ?
		ORDER BY created_at, id
	`, from, to)
	if err != nil {
		return nil, fmt.Errorf("created between: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}
		out = append(out, *rec)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*Record, error) {
	var rec Record
	var pinned, revoked int
	var payload []byte
	err := row.Scan(&rec.ID, &rec.ContentHash, &rec.Signature, &rec.Coordinate,
		&payload, &rec.Importance, &pinned, &revoked,
		&rec.CreatedAt, &rec.LastAccessedAt, &rec.AccessCount)
	if err != nil {
		return nil, err
	}
	rec.Payload = payload
	rec.Pinned = pinned != 0
	rec.Revoked = revoked != 0
	return &rec, nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
