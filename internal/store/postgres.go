package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/hurttlocker/papertopics/internal/topic"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore implements Store on a shared Postgres database.
type PostgresStore struct {
	pool *pgxpool.Pool
}

var postgresDDL = []string{
	`CREATE TABLE IF NOT EXISTS topic_groups (
		group_id   TEXT PRIMARY KEY,
		college    TEXT NOT NULL,
		subject    TEXT NOT NULL,
		semester   TEXT NOT NULL,
		branch     TEXT NOT NULL,
		exam_type  TEXT NOT NULL,
		part       TEXT NOT NULL,
		key_json   JSONB NOT NULL,
		entries    JSONB NOT NULL DEFAULT '[]'::jsonb,
		version    BIGINT NOT NULL DEFAULT 1,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_topic_groups_scope
		ON topic_groups(college, subject, semester, exam_type, branch, part)`,
}

// NewPostgresStore connects with cfg.DSN and creates the schema if needed.
func NewPostgresStore(ctx context.Context, cfg StoreConfig) (*PostgresStore, error) {
	if strings.TrimSpace(cfg.DSN) == "" {
		return nil, fmt.Errorf("postgres store requires a DSN")
	}
	pcfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parsing postgres DSN: %w", err)
	}
	if cfg.MaxOpenConns > 0 {
		pcfg.MaxConns = int32(cfg.MaxOpenConns)
	}

	pool, err := pgxpool.NewWithConfig(ctx, pcfg)
	if err != nil {
		return nil, fmt.Errorf("opening postgres pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging postgres: %w", err)
	}
	for _, stmt := range postgresDDL {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			pool.Close()
			return nil, fmt.Errorf("executing migration %q: %w", truncate(stmt, 80), err)
		}
	}
	return &PostgresStore{pool: pool}, nil
}

func (s *PostgresStore) GetGroup(ctx context.Context, key topic.FacetKey) (*topic.Group, error) {
	var (
		r         groupRow
		updatedAt time.Time
	)
	err := s.pool.QueryRow(ctx,
		`SELECT group_id, key_json::text, entries::text, version, updated_at
		 FROM topic_groups WHERE group_id = $1`, key.ID(),
	).Scan(&r.ID, &r.KeyJSON, &r.EntriesJSON, &r.Version, &updatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, unavailable(fmt.Sprintf("getting topic group %s", key), err)
	}
	r.UpdatedAt = updatedAt.UTC().Format(time.RFC3339Nano)
	return r.decode()
}

func (s *PostgresStore) SaveGroup(ctx context.Context, g *topic.Group, expectedVersion int64) error {
	keyJSON, entriesJSON, err := encodeGroup(g)
	if err != nil {
		return err
	}
	now := nowUTC()

	var affected int64
	if expectedVersion == 0 {
		c := g.Key.Canonical()
		tag, err := s.pool.Exec(ctx,
			`INSERT INTO topic_groups (group_id, college, subject, semester, branch, exam_type, part,
			                           key_json, entries, version, created_at, updated_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8::jsonb, $9::jsonb, 1, $10, $10)
			 ON CONFLICT (group_id) DO NOTHING`,
			g.Key.ID(), c.College, c.Subject, c.Semester, c.Branch, string(c.ExamType), string(c.Part),
			keyJSON, entriesJSON, now,
		)
		if err != nil {
			return unavailable(fmt.Sprintf("creating topic group %s", g.Key), err)
		}
		affected = tag.RowsAffected()
	} else {
		tag, err := s.pool.Exec(ctx,
			`UPDATE topic_groups
			 SET entries = $1::jsonb, version = version + 1, updated_at = $2
			 WHERE group_id = $3 AND version = $4`,
			entriesJSON, now, g.Key.ID(), expectedVersion,
		)
		if err != nil {
			return unavailable(fmt.Sprintf("updating topic group %s", g.Key), err)
		}
		affected = tag.RowsAffected()
	}

	if affected == 0 {
		return topic.ErrVersionConflict
	}
	g.Version = expectedVersion + 1
	g.UpdatedAt = now
	return nil
}

func (s *PostgresStore) ListGroups(ctx context.Context, f GroupFilter) ([]*topic.Group, error) {
	f = f.canonical()
	where, args := f.where(func(n int) string { return fmt.Sprintf("$%d", n) })
	query := `SELECT group_id, key_json::text, entries::text, version, updated_at FROM topic_groups` + where
	query += " ORDER BY college, subject, semester, exam_type, branch, part"

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, unavailable("listing topic groups", err)
	}
	defer rows.Close()

	var out []*topic.Group
	for rows.Next() {
		var (
			r         groupRow
			updatedAt time.Time
		)
		if err := rows.Scan(&r.ID, &r.KeyJSON, &r.EntriesJSON, &r.Version, &updatedAt); err != nil {
			return nil, unavailable("scanning topic group", err)
		}
		r.UpdatedAt = updatedAt.UTC().Format(time.RFC3339Nano)
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

func (s *PostgresStore) GroupVersions(ctx context.Context, f GroupFilter) (map[string]int64, error) {
	where, args := f.canonical().where(func(n int) string { return fmt.Sprintf("$%d", n) })
	rows, err := s.pool.Query(ctx, `SELECT group_id, version FROM topic_groups`+where, args...)
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

func (s *PostgresStore) Stats(ctx context.Context) (*StoreStats, error) {
	groups, err := s.ListGroups(ctx, GroupFilter{})
	if err != nil {
		return nil, err
	}
	st := statsFromGroups(DriverPostgres, groups)
	if err := s.pool.QueryRow(ctx, `SELECT pg_total_relation_size('topic_groups')`).Scan(&st.DBSizeBytes); err != nil {
		return nil, unavailable("reading table size", err)
	}
	return st, nil
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}
