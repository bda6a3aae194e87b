package topic

import (
	"fmt"
	"testing"
)

func groupWithCounts(key FacetKey, counts ...int) *Group {
	g := NewGroup(key)
	for i, c := range counts {
		g.Entries = append(g.Entries, Entry{
			Name:   fmt.Sprintf("topic %02d", i),
			Count:  c,
			Papers: []string{fmt.Sprintf("P%d", i)},
		})
	}
	return g
}

func TestLimit(t *testing.T) {
	cases := []struct {
		exam ExamType
		part Part
		want int
	}{
		{ExamSemester, PartA, 40},
		{ExamSemester, PartB, 25},
		{ExamMidterm1, PartA, 25},
		{ExamMidterm1, PartB, 10},
		{ExamMidterm2, PartA, 25},
		{ExamMidterm2, PartB, 10},
	}
	for _, tc := range cases {
		if got := Limit(tc.exam, tc.part); got != tc.want {
			t.Errorf("Limit(%s, %s) = %d, want %d", tc.exam, tc.part, got, tc.want)
		}
	}
}

func TestTopK_SemesterLimits(t *testing.T) {
	counts := make([]int, 50)
	for i := range counts {
		counts[i] = i + 1
	}
	key := testKey()
	a := groupWithCounts(key, counts...)
	b := groupWithCounts(key.Facet.Key(PartB), counts...)

	res := TopK(ExamSemester, a, b)
	if len(res.PartA.Topics) != 40 || res.PartA.Total != 50 {
		t.Fatalf("part A: expected 40 of 50, got %d of %d", len(res.PartA.Topics), res.PartA.Total)
	}
	if len(res.PartB.Topics) != 25 || res.PartB.Total != 50 {
		t.Fatalf("part B: expected 25 of 50, got %d of %d", len(res.PartB.Topics), res.PartB.Total)
	}
	if res.PartA.Topics[0].Count != 50 || res.PartA.Topics[39].Count != 11 {
		t.Fatalf("unexpected ranking bounds: first=%d last=%d", res.PartA.Topics[0].Count, res.PartA.Topics[39].Count)
	}
}

func TestTopK_MidtermLimits(t *testing.T) {
	counts := make([]int, 30)
	for i := range counts {
		counts[i] = 1
	}
	res := TopK(ExamMidterm2, groupWithCounts(testKey(), counts...), groupWithCounts(testKey(), counts...))
	if len(res.PartA.Topics) != 25 || len(res.PartB.Topics) != 10 {
		t.Fatalf("expected 25/10 topics, got %d/%d", len(res.PartA.Topics), len(res.PartB.Topics))
	}
}

func TestTopK_StableTies(t *testing.T) {
	g := groupWithCounts(testKey(), 1, 3, 3, 2)
	res := RankGroups(0, g)

	want := []string{"topic 01", "topic 02", "topic 03", "topic 00"}
	for i, name := range want {
		if res.Topics[i].Name != name {
			t.Fatalf("position %d: expected %s, got %s", i, name, res.Topics[i].Name)
		}
	}

	again := RankGroups(0, g)
	for i := range res.Topics {
		if res.Topics[i].Name != again.Topics[i].Name {
			t.Fatal("ranking must be deterministic across repeated queries")
		}
	}
}

func TestTopK_MissingGroups(t *testing.T) {
	res := TopK(ExamSemester, nil, nil)
	if res.PartA.Total != 0 || len(res.PartA.Topics) != 0 || res.PartA.Topics == nil {
		t.Fatalf("expected empty non-nil part A, got %+v", res.PartA)
	}
	if res.PartB.Total != 0 || len(res.PartB.Topics) != 0 {
		t.Fatalf("expected empty part B, got %+v", res.PartB)
	}
}

func TestRankGroups_MergesBranchesWithoutReclustering(t *testing.T) {
	cse := NewGroup(Facet{College: "X", Subject: "DS", Semester: "3", Branch: "CSE", ExamType: ExamSemester}.Key(PartA))
	cse.Increment("Graph Algorithms", "P1", testNow)
	ise := NewGroup(Facet{College: "X", Subject: "DS", Semester: "3", Branch: "ISE", ExamType: ExamSemester}.Key(PartA))
	ise.Increment("graph algorithm", "P2", testNow)
	ise.Increment("graph algorithm", "P3", testNow)

	res := RankGroups(40, cse, ise)
	if res.Total != 2 || len(res.Topics) != 2 {
		t.Fatalf("expected both branch entries kept separately, got %+v", res)
	}
	if res.Topics[0].Branch != "ISE" || res.Topics[0].Count != 2 {
		t.Fatalf("expected ISE entry first with count 2, got %+v", res.Topics[0])
	}
	if res.Topics[1].Branch != "CSE" || res.Topics[1].PaperCount != 1 {
		t.Fatalf("unexpected second entry %+v", res.Topics[1])
	}
}
