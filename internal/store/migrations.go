package store

import (
	"database/sql"
	"fmt"
	"time"
)

// schemaVersion is bumped whenever a migration step is appended.
const schemaVersion = "2"

// migrate creates all tables if they don't exist and seeds metadata.
func (s *SQLiteStore) migrate() error {
	bootstrapDone, err := s.isMetaFlagEnabled("schema_bootstrap_complete")
	if err != nil {
		return fmt.Errorf("checking bootstrap state: %w", err)
	}

	if !bootstrapDone {
		if err := s.runBootstrapDDL(); err != nil {
			return err
		}
	}

	// Seed metadata (outside bootstrap transaction, meta table now exists)
	if err := s.seedMeta(); err != nil {
		return fmt.Errorf("seeding metadata: %w", err)
	}

	if !bootstrapDone {
		if err := s.setMetaFlag("schema_bootstrap_complete"); err != nil {
			return fmt.Errorf("marking bootstrap complete: %w", err)
		}
	}

	// Schema evolution: scope index for cross-branch top-topic queries.
	if err := s.migrateScopeIndex(); err != nil {
		return fmt.Errorf("migrating scope index: %w", err)
	}

	return nil
}

func (s *SQLiteStore) runBootstrapDDL() error {
	statements := []string{
		// One row per (college, subject, semester, branch, exam_type, part).
		// Key columns are canonical; key_json keeps the first-seen display form.
		`CREATE TABLE IF NOT EXISTS topic_groups (
			group_id     TEXT PRIMARY KEY,
			college      TEXT NOT NULL,
			subject      TEXT NOT NULL,
			semester     TEXT NOT NULL,
			branch       TEXT NOT NULL,
			exam_type    TEXT NOT NULL,
			part         TEXT NOT NULL,
			key_json     TEXT NOT NULL,
			entries_json TEXT NOT NULL DEFAULT '[]',
			version      INTEGER NOT NULL DEFAULT 1,
			created_at   TEXT NOT NULL,
			updated_at   TEXT NOT NULL
		)`,

		// Metadata table
		`CREATE TABLE IF NOT EXISTS meta (
			key   TEXT PRIMARY KEY,
			value TEXT
		)`,
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("beginning migration transaction: %w", err)
	}
	defer tx.Rollback()

	for _, stmt := range statements {
		if _, err := tx.Exec(stmt); err != nil {
			return fmt.Errorf("executing migration %q: %w", truncate(stmt, 80), err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing migration: %w", err)
	}

	return nil
}

func (s *SQLiteStore) isMetaFlagEnabled(key string) (bool, error) {
	var exists int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='meta'`).Scan(&exists); err != nil {
		return false, err
	}
	if exists == 0 {
		return false, nil
	}

	var value string
	err := s.db.QueryRow("SELECT value FROM meta WHERE key = ?", key).Scan(&value)
	if err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, err
	}
	return value == "true", nil
}

func (s *SQLiteStore) setMetaFlag(key string) error {
	_, err := s.db.Exec("INSERT OR REPLACE INTO meta (key, value) VALUES (?, 'true')", key)
	return err
}

func (s *SQLiteStore) getMetaValue(key string) (string, error) {
	var value string
	err := s.db.QueryRow("SELECT value FROM meta WHERE key = ?", key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return value, err
}

func (s *SQLiteStore) seedMeta() error {
	defaults := map[string]string{
		"schema_version": "1",
		"created_at":     time.Now().UTC().Format(time.RFC3339),
	}

	for k, v := range defaults {
		_, err := s.db.Exec(
			"INSERT OR IGNORE INTO meta (key, value) VALUES (?, ?)", k, v,
		)
		if err != nil {
			return fmt.Errorf("seeding meta key %q: %w", k, err)
		}
	}
	return nil
}

func (s *SQLiteStore) migrateScopeIndex() error {
	done, err := s.isMetaFlagEnabled("scope_index_v1")
	if err != nil {
		return err
	}
	if done {
		return nil
	}

	// Serves GetTopTopics, which fans out over every branch of a scope.
	if _, err := s.db.Exec(`CREATE INDEX IF NOT EXISTS idx_topic_groups_scope
		ON topic_groups(college, subject, semester, exam_type, branch, part)`); err != nil {
		return fmt.Errorf("creating scope index: %w", err)
	}

	if err := s.setMetaFlag("scope_index_v1"); err != nil {
		return fmt.Errorf("setting scope_index_v1 flag: %w", err)
	}
	if _, err := s.db.Exec(`UPDATE meta SET value = ? WHERE key = 'schema_version'`, schemaVersion); err != nil {
		return fmt.Errorf("bumping schema_version: %w", err)
	}
	return nil
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
