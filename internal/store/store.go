// Package store provides persistence for topic groups.
//
// Each (college, subject, semester, branch, exam type, part) facet owns one
// row holding its clustered topic entries and a version counter. Writes are
// conditional on that version so concurrent aggregators never lose updates:
// - SQLite (default): single file, WAL, pure-Go driver
// - Postgres: shared deployments via pgx
// - Memory: tests and throwaway runs
package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/hurttlocker/papertopics/internal/topic"
)

// DefaultDBPath is the default SQLite database location.
const DefaultDBPath = "~/.papertopics/topics.db"

// DefaultBusyTimeoutMs is the SQLite busy timeout applied when unset.
const DefaultBusyTimeoutMs = 5000

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

// GroupFilter selects groups for listing. Empty fields match anything; text
// fields are compared in canonical form.
type GroupFilter struct {
	College  string
	Subject  string
	Semester string
	Branch   string
	ExamType topic.ExamType
	Part     topic.Part
}

// StoreStats holds observability statistics about the store.
type StoreStats struct {
	Driver          string `json:"driver"`
	GroupCount      int64  `json:"group_count"`
	EntryCount      int64  `json:"entry_count"`
	OccurrenceCount int64  `json:"occurrence_count"`
	DBSizeBytes     int64  `json:"db_size_bytes,omitempty"`
}

// StoreConfig holds configuration for NewStore.
type StoreConfig struct {
	Driver        string // "sqlite" (default), "postgres" or "memory"
	DBPath        string // SQLite file, or ":memory:"
	DSN           string // Postgres connection string
	BusyTimeoutMs int
	MaxOpenConns  int
}

// Store is the topic group persistence contract.
type Store interface {
	// GetGroup returns nil, nil when no group exists for key.
	GetGroup(ctx context.Context, key topic.FacetKey) (*topic.Group, error)

	// SaveGroup writes g only if the stored version still equals
	// expectedVersion (0 = create). On success g.Version is bumped in place;
	// on a lost race it returns topic.ErrVersionConflict.
	SaveGroup(ctx context.Context, g *topic.Group, expectedVersion int64) error

	// ListGroups returns matching groups in facet order; within one scope
	// that is by branch, then part.
	ListGroups(ctx context.Context, f GroupFilter) ([]*topic.Group, error)

	// GroupVersions returns the version of every matching group, keyed by
	// group ID. It reads no entries.
	GroupVersions(ctx context.Context, f GroupFilter) (map[string]int64, error)

	Stats(ctx context.Context) (*StoreStats, error)
	Close() error
}

// NewStore opens the backend selected by cfg.Driver.
func NewStore(cfg StoreConfig) (Store, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Driver)) {
	case "", DriverSQLite, "sqlite3":
		s, err := NewSQLiteStore(cfg)
		if err != nil {
			return nil, err
		}
		return s, nil
	case DriverPostgres, "postgresql", "pgx":
		s, err := NewPostgresStore(context.Background(), cfg)
		if err != nil {
			return nil, err
		}
		return s, nil
	case DriverMemory:
		return NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
	}
}

func (f GroupFilter) canonical() GroupFilter {
	c := topic.Facet{College: f.College, Subject: f.Subject, Semester: f.Semester, Branch: f.Branch}.Canonical()
	return GroupFilter{
		College:  c.College,
		Subject:  c.Subject,
		Semester: c.Semester,
		Branch:   c.Branch,
		ExamType: f.ExamType,
		Part:     f.Part,
	}
}

// where renders the non-empty fields of a canonical filter as a SQL WHERE
// clause. placeholder returns the bind marker for the n-th argument.
func (f GroupFilter) where(placeholder func(n int) string) (string, []interface{}) {
	var (
		conds []string
		args  []interface{}
	)
	for _, cond := range []struct {
		col, val string
	}{
		{"college", f.College},
		{"subject", f.Subject},
		{"semester", f.Semester},
		{"branch", f.Branch},
		{"exam_type", string(f.ExamType)},
		{"part", string(f.Part)},
	} {
		if cond.val == "" {
			continue
		}
		args = append(args, cond.val)
		conds = append(conds, cond.col+" = "+placeholder(len(args)))
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

// matches reports whether a canonical key passes a canonical filter.
func (f GroupFilter) matches(k topic.FacetKey) bool {
	return (f.College == "" || f.College == k.College) &&
		(f.Subject == "" || f.Subject == k.Subject) &&
		(f.Semester == "" || f.Semester == k.Semester) &&
		(f.Branch == "" || f.Branch == k.Branch) &&
		(f.ExamType == "" || f.ExamType == k.ExamType) &&
		(f.Part == "" || f.Part == k.Part)
}

func statsFromGroups(driver string, groups []*topic.Group) *StoreStats {
	st := &StoreStats{Driver: driver, GroupCount: int64(len(groups))}
	for _, g := range groups {
		st.EntryCount += int64(len(g.Entries))
		st.OccurrenceCount += int64(g.TotalCount())
	}
	return st
}

func unavailable(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", topic.ErrStoreUnavailable, op, err)
}

func nowUTC() time.Time {
	return time.Now().UTC()
}

// expandPath expands ~ to home directory.
func expandPath(path string) string {
	if len(path) > 0 && path[0] == '~' {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[1:])
	}
	return path
}
