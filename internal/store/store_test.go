package store

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/hurttlocker/papertopics/internal/topic"
)

var testNow = time.Date(2026, 5, 2, 10, 0, 0, 0, time.UTC)

func facet(branch string) topic.Facet {
	return topic.Facet{
		College:  "BMS College",
		Subject:  "Operating Systems",
		Semester: "4",
		Branch:   branch,
		ExamType: topic.ExamSemester,
	}
}

// backends yields a fresh store per backend. Postgres runs only when
// PAPERTOPICS_TEST_POSTGRES_DSN points at a disposable database.
func backends(t *testing.T) map[string]func(t *testing.T) Store {
	t.Helper()
	out := map[string]func(t *testing.T) Store{
		"memory": func(t *testing.T) Store { return NewMemoryStore() },
		"sqlite": func(t *testing.T) Store {
			s, err := NewStore(StoreConfig{DBPath: filepath.Join(t.TempDir(), "topics.db")})
			if err != nil {
				t.Fatalf("NewStore: %v", err)
			}
			return s
		},
	}
	if dsn := os.Getenv("PAPERTOPICS_TEST_POSTGRES_DSN"); dsn != "" {
		out["postgres"] = func(t *testing.T) Store {
			s, err := NewPostgresStore(context.Background(), StoreConfig{DSN: dsn})
			if err != nil {
				t.Fatalf("NewPostgresStore: %v", err)
			}
			if _, err := s.pool.Exec(context.Background(), `TRUNCATE topic_groups`); err != nil {
				t.Fatalf("truncating: %v", err)
			}
			return s
		}
	}
	return out
}

func forEachBackend(t *testing.T, fn func(t *testing.T, s Store)) {
	for name, open := range backends(t) {
		t.Run(name, func(t *testing.T) {
			s := open(t)
			defer s.Close()
			fn(t, s)
		})
	}
}

func TestStore_GetMissingGroup(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s Store) {
		g, err := s.GetGroup(context.Background(), facet("CSE").Key(topic.PartA))
		if err != nil {
			t.Fatalf("GetGroup: %v", err)
		}
		if g != nil {
			t.Fatalf("expected nil group, got %+v", g)
		}
	})
}

func TestStore_CreateAndUpdate(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		key := facet("CSE").Key(topic.PartA)

		g := topic.NewGroup(key)
		g.Increment("Deadlocks", "P1", testNow)
		if err := s.SaveGroup(ctx, g, 0); err != nil {
			t.Fatalf("create: %v", err)
		}
		if g.Version != 1 {
			t.Fatalf("expected version 1 after create, got %d", g.Version)
		}

		got, err := s.GetGroup(ctx, key)
		if err != nil || got == nil {
			t.Fatalf("GetGroup: %v %v", got, err)
		}
		if got.Version != 1 || len(got.Entries) != 1 || got.Entries[0].Name != "Deadlocks" {
			t.Fatalf("unexpected stored group %+v", got)
		}
		if !got.Entries[0].LastOccurred.Equal(testNow) {
			t.Fatalf("last occurrence not preserved: %v", got.Entries[0].LastOccurred)
		}

		got.Increment("Paging", "P2", testNow)
		if err := s.SaveGroup(ctx, got, 1); err != nil {
			t.Fatalf("update: %v", err)
		}
		if got.Version != 2 {
			t.Fatalf("expected version 2, got %d", got.Version)
		}

		again, _ := s.GetGroup(ctx, key)
		if again.Version != 2 || len(again.Entries) != 2 {
			t.Fatalf("update not persisted: %+v", again)
		}
	})
}

func TestStore_StaleVersionConflicts(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		key := facet("CSE").Key(topic.PartB)

		first := topic.NewGroup(key)
		first.Increment("Scheduling", "P1", testNow)
		if err := s.SaveGroup(ctx, first, 0); err != nil {
			t.Fatalf("create: %v", err)
		}

		// A second creator raced and lost.
		second := topic.NewGroup(key)
		second.Increment("Threads", "P2", testNow)
		if err := s.SaveGroup(ctx, second, 0); !errors.Is(err, topic.ErrVersionConflict) {
			t.Fatalf("expected conflict on duplicate create, got %v", err)
		}

		a, _ := s.GetGroup(ctx, key)
		b, _ := s.GetGroup(ctx, key)
		a.Increment("Semaphores", "P3", testNow)
		if err := s.SaveGroup(ctx, a, 1); err != nil {
			t.Fatalf("first update: %v", err)
		}
		b.Increment("Monitors", "P4", testNow)
		if err := s.SaveGroup(ctx, b, 1); !errors.Is(err, topic.ErrVersionConflict) {
			t.Fatalf("expected conflict on stale update, got %v", err)
		}

		final, _ := s.GetGroup(ctx, key)
		if final.Version != 2 || len(final.Entries) != 2 {
			t.Fatalf("losing write must leave the group unchanged, got %+v", final)
		}
	})
}

func TestStore_ReadReturnsSnapshot(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		key := facet("CSE").Key(topic.PartA)
		g := topic.NewGroup(key)
		g.Increment("Deadlocks", "P1", testNow)
		if err := s.SaveGroup(ctx, g, 0); err != nil {
			t.Fatalf("create: %v", err)
		}

		snap, _ := s.GetGroup(ctx, key)
		snap.Entries[0].Count = 99

		fresh, _ := s.GetGroup(ctx, key)
		if fresh.Entries[0].Count != 1 {
			t.Fatalf("mutating a read snapshot leaked into the store: %+v", fresh)
		}
	})
}

func TestStore_ListGroupsCaseInsensitive(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		for _, k := range []topic.FacetKey{
			facet("ISE").Key(topic.PartB),
			facet("CSE").Key(topic.PartA),
			facet("ISE").Key(topic.PartA),
			{Facet: topic.Facet{College: "Other", Subject: "Operating Systems", Semester: "4", Branch: "CSE", ExamType: topic.ExamSemester}, Part: topic.PartA},
		} {
			g := topic.NewGroup(k)
			g.Increment("Paging", "P1", testNow)
			if err := s.SaveGroup(ctx, g, 0); err != nil {
				t.Fatalf("create %s: %v", k, err)
			}
		}

		groups, err := s.ListGroups(ctx, GroupFilter{
			College:  "bms  COLLEGE",
			Subject:  "operating systems",
			Semester: "4",
			ExamType: topic.ExamSemester,
		})
		if err != nil {
			t.Fatalf("ListGroups: %v", err)
		}
		if len(groups) != 3 {
			t.Fatalf("expected 3 groups, got %d", len(groups))
		}
		want := []struct {
			branch string
			part   topic.Part
		}{{"CSE", topic.PartA}, {"ISE", topic.PartA}, {"ISE", topic.PartB}}
		for i, w := range want {
			if groups[i].Key.Branch != w.branch || groups[i].Key.Part != w.part {
				t.Fatalf("position %d: expected %s/%s, got %s/%s", i, w.branch, w.part, groups[i].Key.Branch, groups[i].Key.Part)
			}
		}

		parts, _ := s.ListGroups(ctx, GroupFilter{College: "BMS College", Part: topic.PartB})
		if len(parts) != 1 {
			t.Fatalf("expected 1 part-B group, got %d", len(parts))
		}
	})
}

func TestStore_GroupVersions(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		cse := topic.NewGroup(facet("CSE").Key(topic.PartA))
		cse.Increment("Paging", "P1", testNow)
		if err := s.SaveGroup(ctx, cse, 0); err != nil {
			t.Fatalf("create: %v", err)
		}
		cse.Increment("Deadlock", "P2", testNow)
		if err := s.SaveGroup(ctx, cse, 1); err != nil {
			t.Fatalf("update: %v", err)
		}
		ise := topic.NewGroup(facet("ISE").Key(topic.PartB))
		ise.Increment("Paging", "P3", testNow)
		if err := s.SaveGroup(ctx, ise, 0); err != nil {
			t.Fatalf("create: %v", err)
		}

		versions, err := s.GroupVersions(ctx, GroupFilter{
			College:  "bms college",
			Subject:  "OPERATING SYSTEMS",
			Semester: "4",
			ExamType: topic.ExamSemester,
		})
		if err != nil {
			t.Fatalf("GroupVersions: %v", err)
		}
		if len(versions) != 2 {
			t.Fatalf("expected 2 versions, got %v", versions)
		}
		if versions[cse.Key.ID()] != 2 || versions[ise.Key.ID()] != 1 {
			t.Fatalf("unexpected versions %v", versions)
		}

		none, err := s.GroupVersions(ctx, GroupFilter{College: "Nowhere"})
		if err != nil || len(none) != 0 {
			t.Fatalf("expected no versions, got %v, %v", none, err)
		}
	})
}

func TestStore_DisplayFormFromFirstWrite(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		original := facet("CSE").Key(topic.PartA)
		g := topic.NewGroup(original)
		g.Increment("Paging", "P1", testNow)
		if err := s.SaveGroup(ctx, g, 0); err != nil {
			t.Fatalf("create: %v", err)
		}

		shouty := original
		shouty.College = "BMS COLLEGE"
		shouty.Branch = "cse"
		got, err := s.GetGroup(ctx, shouty)
		if err != nil || got == nil {
			t.Fatalf("case-insensitive lookup failed: %v", err)
		}
		got.Key = shouty
		got.Increment("Paging", "P2", testNow)
		if err := s.SaveGroup(ctx, got, got.Version); err != nil {
			t.Fatalf("update: %v", err)
		}

		final, _ := s.GetGroup(ctx, original)
		if final.Key.College != "BMS College" || final.Key.Branch != "CSE" {
			t.Fatalf("display form should stay as first written, got %+v", final.Key)
		}
	})
}

func TestStore_Stats(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		g := topic.NewGroup(facet("CSE").Key(topic.PartA))
		g.Increment("Paging", "P1", testNow)
		g.Increment("paging", "P2", testNow)
		g.Increment("Deadlocks", "P2", testNow)
		if err := s.SaveGroup(ctx, g, 0); err != nil {
			t.Fatalf("create: %v", err)
		}

		st, err := s.Stats(ctx)
		if err != nil {
			t.Fatalf("Stats: %v", err)
		}
		if st.GroupCount != 1 || st.EntryCount != 2 || st.OccurrenceCount != 3 {
			t.Fatalf("unexpected stats %+v", st)
		}
	})
}

func TestStore_ConcurrentCreateOneWinner(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		key := facet("ECE").Key(topic.PartA)

		const writers = 8
		var (
			wg        sync.WaitGroup
			mu        sync.Mutex
			wins      int
			conflicts int
		)
		for i := 0; i < writers; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				g := topic.NewGroup(key)
				g.Increment("Signals", "P", testNow)
				err := s.SaveGroup(ctx, g, 0)
				mu.Lock()
				defer mu.Unlock()
				switch {
				case err == nil:
					wins++
				case errors.Is(err, topic.ErrVersionConflict):
					conflicts++
				default:
					t.Errorf("writer %d: %v", i, err)
				}
			}(i)
		}
		wg.Wait()

		if wins != 1 || conflicts != writers-1 {
			t.Fatalf("expected exactly one winner, got wins=%d conflicts=%d", wins, conflicts)
		}
	})
}

func TestSQLiteStore_ReopenKeepsDataAndSchema(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "topics.db")
	s, err := NewSQLiteStore(StoreConfig{DBPath: dbPath})
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	g := topic.NewGroup(facet("CSE").Key(topic.PartA))
	g.Increment("Paging", "P1", testNow)
	if err := s.SaveGroup(context.Background(), g, 0); err != nil {
		t.Fatalf("create: %v", err)
	}
	s.Close()

	s2, err := NewSQLiteStore(StoreConfig{DBPath: dbPath})
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s2.Close()

	v, err := s2.getMetaValue("schema_version")
	if err != nil {
		t.Fatalf("getMetaValue: %v", err)
	}
	if v != schemaVersion {
		t.Fatalf("expected schema_version %s, got %q", schemaVersion, v)
	}
	got, _ := s2.GetGroup(context.Background(), g.Key)
	if got == nil || got.Version != 1 {
		t.Fatalf("expected persisted group after reopen, got %+v", got)
	}

	st, _ := s2.Stats(context.Background())
	if st.DBSizeBytes <= 0 {
		t.Fatalf("expected non-zero db size, got %d", st.DBSizeBytes)
	}
	if err := s2.Vacuum(context.Background()); err != nil {
		t.Fatalf("Vacuum: %v", err)
	}
}

func TestSQLiteStore_InMemory(t *testing.T) {
	s, err := NewStore(StoreConfig{DBPath: ":memory:"})
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	defer s.Close()
	g := topic.NewGroup(facet("CSE").Key(topic.PartA))
	g.Increment("Paging", "P1", testNow)
	if err := s.SaveGroup(context.Background(), g, 0); err != nil {
		t.Fatalf("create: %v", err)
	}
	got, err := s.GetGroup(context.Background(), g.Key)
	if err != nil || got == nil {
		t.Fatalf("GetGroup: %v %v", got, err)
	}
}

func TestSQLiteStore_ClosedIsUnavailable(t *testing.T) {
	s, err := NewSQLiteStore(StoreConfig{DBPath: filepath.Join(t.TempDir(), "topics.db")})
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	s.Close()

	_, err = s.GetGroup(context.Background(), facet("CSE").Key(topic.PartA))
	if !errors.Is(err, topic.ErrStoreUnavailable) {
		t.Fatalf("expected ErrStoreUnavailable, got %v", err)
	}
}

func TestNewStore_UnknownDriver(t *testing.T) {
	if _, err := NewStore(StoreConfig{Driver: "mongo"}); err == nil {
		t.Fatal("expected error for unknown driver")
	}
}

func TestNewStore_PostgresNeedsDSN(t *testing.T) {
	if _, err := NewStore(StoreConfig{Driver: "postgres"}); err == nil {
		t.Fatal("expected error without DSN")
	}
}
