package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/hurttlocker/papertopics/internal/topic"
	_ "modernc.org/sqlite"
)

// SQLiteStore implements Store on a single SQLite file.
type SQLiteStore struct {
	db     *sql.DB
	dbPath string
}

// NewSQLiteStore opens (and migrates) the SQLite database at cfg.DBPath.
// Pass ":memory:" for in-memory databases (testing).
func NewSQLiteStore(cfg StoreConfig) (*SQLiteStore, error) {
	if cfg.DBPath == "" {
		cfg.DBPath = DefaultDBPath
	}
	cfg.DBPath = expandPath(cfg.DBPath)
	if cfg.BusyTimeoutMs <= 0 {
		cfg.BusyTimeoutMs = DefaultBusyTimeoutMs
	}

	// Create parent directory for non-memory databases
	if cfg.DBPath != ":memory:" {
		dir := filepath.Dir(cfg.DBPath)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("creating db directory: %w", err)
		}
	}

	// busy_timeout is per connection, so it rides on the DSN to reach every
	// pooled connection, not just the one the PRAGMA below runs on.
	dsn := cfg.DBPath
	if dsn != ":memory:" {
		dsn += fmt.Sprintf("?_pragma=busy_timeout(%d)&_pragma=foreign_keys(1)", cfg.BusyTimeoutMs)
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// Every pooled connection to ":memory:" would see its own empty database.
	if cfg.DBPath == ":memory:" {
		db.SetMaxOpenConns(1)
	} else if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys=ON",
		fmt.Sprintf("PRAGMA busy_timeout=%d", cfg.BusyTimeoutMs),
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("setting pragma %q: %w", p, err)
		}
	}

	s := &SQLiteStore{db: db, dbPath: cfg.DBPath}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	return s, nil
}

// GetGroup reads the current snapshot of one group.
func (s *SQLiteStore) GetGroup(ctx context.Context, key topic.FacetKey) (*topic.Group, error) {
	var r groupRow
	err := s.db.QueryRowContext(ctx,
		`SELECT group_id, key_json, entries_json, version, updated_at
		 FROM topic_groups WHERE group_id = ?`, key.ID(),
	).Scan(&r.ID, &r.KeyJSON, &r.EntriesJSON, &r.Version, &r.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, unavailable(fmt.Sprintf("getting topic group %s", key), err)
	}
	return r.decode()
}

// SaveGroup performs the version-checked write.
func (s *SQLiteStore) SaveGroup(ctx context.Context, g *topic.Group, expectedVersion int64) error {
	keyJSON, entriesJSON, err := encodeGroup(g)
	if err != nil {
		return err
	}
	now := nowUTC()
	stamp := now.Format(time.RFC3339Nano)

	var res sql.Result
	if expectedVersion == 0 {
		c := g.Key.Canonical()
		res, err = s.db.ExecContext(ctx,
			`INSERT INTO topic_groups (group_id, college, subject, semester, branch, exam_type, part,
			                           key_json, entries_json, version, created_at, updated_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, 1, ?, ?)
			 ON CONFLICT(group_id) DO NOTHING`,
			g.Key.ID(), c.College, c.Subject, c.Semester, c.Branch, string(c.ExamType), string(c.Part),
			keyJSON, entriesJSON, stamp, stamp,
		)
	} else {
		res, err = s.db.ExecContext(ctx,
			`UPDATE topic_groups
			 SET entries_json = ?, version = version + 1, updated_at = ?
			 WHERE group_id = ? AND version = ?`,
			entriesJSON, stamp, g.Key.ID(), expectedVersion,
		)
	}
	if err != nil {
		return unavailable(fmt.Sprintf("saving topic group %s", g.Key), err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return unavailable("reading rows affected", err)
	}
	if n == 0 {
		return topic.ErrVersionConflict
	}
	g.Version = expectedVersion + 1
	g.UpdatedAt = now
	return nil
}

// ListGroups returns every group matching f.
func (s *SQLiteStore) ListGroups(ctx context.Context, f GroupFilter) ([]*topic.Group, error) {
	f = f.canonical()
	where, args := f.where(func(int) string { return "?" })
	query := `SELECT group_id, key_json, entries_json, version, updated_at FROM topic_groups` + where
	query += " ORDER BY college, subject, semester, exam_type, branch, part"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, unavailable("listing topic groups", err)
	}
	defer rows.Close()

	var out []*topic.Group
	for rows.Next() {
		var r groupRow
		if err := rows.Scan(&r.ID, &r.KeyJSON, &r.EntriesJSON, &r.Version, &r.UpdatedAt); err != nil {
			return nil, unavailable("scanning topic group", err)
		}
		g, err := r.decode()
		if err != nil {
			return nil, err
		}
		out = append(out, g)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("iterating topic groups", err)
	}
	return out, nil
}

// GroupVersions returns group_id -> version for every group matching f.
func (s *SQLiteStore) GroupVersions(ctx context.Context, f GroupFilter) (map[string]int64, error) {
	where, args := f.canonical().where(func(int) string { return "?" })
	rows, err := s.db.QueryContext(ctx, `SELECT group_id, version FROM topic_groups`+where, args...)
	if err != nil {
		return nil, unavailable("listing topic group versions", err)
	}
	defer rows.Close()

	out := map[string]int64{}
	for rows.Next() {
		var (
			id      string
			version int64
		)
		if err := rows.Scan(&id, &version); err != nil {
			return nil, unavailable("scanning topic group version", err)
		}
		out[id] = version
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("iterating topic group versions", err)
	}
	return out, nil
}

// Stats reports group and entry counts plus the database file size.
func (s *SQLiteStore) Stats(ctx context.Context) (*StoreStats, error) {
	groups, err := s.ListGroups(ctx, GroupFilter{})
	if err != nil {
		return nil, err
	}
	st := statsFromGroups(DriverSQLite, groups)
	if s.dbPath != ":memory:" {
		if info, err := os.Stat(s.dbPath); err == nil {
			st.DBSizeBytes = info.Size()
		}
	}
	return st, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Vacuum runs VACUUM on the database. Manual only, never automatic.
func (s *SQLiteStore) Vacuum(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, "VACUUM")
	return err
}
