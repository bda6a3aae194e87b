package topic

import (
	"sort"
	"time"
)

// Ranked is one topic in a ranked listing.
type Ranked struct {
	Name         string    `json:"name"`
	Count        int       `json:"count"`
	PaperCount   int       `json:"paper_count"`
	LastOccurred time.Time `json:"last_occurred"`
	Branch       string    `json:"branch,omitempty"`
}

// PartResult is the ranked listing of one part. Total is the number of
// entries before truncation.
type PartResult struct {
	Topics []Ranked `json:"topics"`
	Total  int      `json:"total"`
}

// TopResult holds both parts of a top-K query.
type TopResult struct {
	PartA PartResult `json:"part_a"`
	PartB PartResult `json:"part_b"`
}

// Part returns the result for p.
func (r *TopResult) Part(p Part) *PartResult {
	if p == PartB {
		return &r.PartB
	}
	return &r.PartA
}

// Clone copies both topic slices.
func (r TopResult) Clone() TopResult {
	r.PartA.Topics = append([]Ranked(nil), r.PartA.Topics...)
	r.PartB.Topics = append([]Ranked(nil), r.PartB.Topics...)
	return r
}

// Limit is the fixed top-K size per exam type and part.
func Limit(examType ExamType, p Part) int {
	if examType == ExamSemester {
		if p == PartA {
			return 40
		}
		return 25
	}
	if p == PartA {
		return 25
	}
	return 10
}

// TopK ranks a and b (either may be nil) using the limits for examType.
func TopK(examType ExamType, a, b *Group) TopResult {
	return TopResult{
		PartA: RankGroups(Limit(examType, PartA), a),
		PartB: RankGroups(Limit(examType, PartB), b),
	}
}

// RankGroups merges the entries of groups in the given order, sorts them by
// count descending and truncates to limit. Ties keep storage order. Entries
// from different groups are never re-clustered. A limit <= 0 keeps every entry.
func RankGroups(limit int, groups ...*Group) PartResult {
	var all []Ranked
	for _, g := range groups {
		if g == nil {
			continue
		}
		for _, e := range g.Entries {
			all = append(all, Ranked{
				Name:         e.Name,
				Count:        e.Count,
				PaperCount:   len(e.Papers),
				LastOccurred: e.LastOccurred,
				Branch:       g.Key.Branch,
			})
		}
	}
	res := PartResult{Topics: []Ranked{}, Total: len(all)}
	if len(all) == 0 {
		return res
	}
	sort.SliceStable(all, func(i, j int) bool {
		return all[i].Count > all[j].Count
	})
	if limit > 0 && len(all) > limit {
		all = all[:limit]
	}
	res.Topics = all
	return res
}
