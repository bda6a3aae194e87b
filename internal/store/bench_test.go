package store

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/hurttlocker/papertopics/internal/topic"
)

func BenchmarkSaveGroup_Update(b *testing.B) {
	s := setupBenchStore(b, 1)
	defer s.Close()
	ctx := context.Background()

	key := facet("BR000").Key(topic.PartA)
	g, err := s.GetGroup(ctx, key)
	if err != nil || g == nil {
		b.Fatalf("GetGroup: %v", err)
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		g.Increment("Deadlock Avoidance", fmt.Sprintf("B%d", i), testNow)
		if err := s.SaveGroup(ctx, g, g.Version); err != nil {
			b.Fatalf("SaveGroup: %v", err)
		}
	}
}

func BenchmarkListGroups_Scope(b *testing.B) {
	s := setupBenchStore(b, 40)
	defer s.Close()
	ctx := context.Background()
	f := GroupFilter{College: "BMS College", Subject: "Operating Systems", Semester: "4", ExamType: topic.ExamSemester}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		groups, err := s.ListGroups(ctx, f)
		if err != nil {
			b.Fatalf("ListGroups: %v", err)
		}
		if len(groups) != 80 {
			b.Fatalf("expected 80 groups, got %d", len(groups))
		}
	}
}

// setupBenchStore seeds branchCount branches, each with 60 Part A and
// 30 Part B topics.
func setupBenchStore(b *testing.B, branchCount int) *SQLiteStore {
	b.Helper()
	s, err := NewSQLiteStore(StoreConfig{DBPath: filepath.Join(b.TempDir(), "bench.db")})
	if err != nil {
		b.Fatalf("NewSQLiteStore: %v", err)
	}
	ctx := context.Background()
	for br := 0; br < branchCount; br++ {
		f := facet(fmt.Sprintf("BR%03d", br))
		for _, part := range topic.Parts {
			n := 60
			if part == topic.PartB {
				n = 30
			}
			g := topic.NewGroup(f.Key(part))
			for i := 0; i < n; i++ {
				g.Entries = append(g.Entries, topic.Entry{
					Name:         fmt.Sprintf("topic-%d-%d", br, i),
					Count:        1 + i%7,
					Papers:       []string{"P1"},
					LastOccurred: testNow,
				})
			}
			if err := s.SaveGroup(ctx, g, 0); err != nil {
				b.Fatalf("seeding: %v", err)
			}
		}
	}
	return s
}
