package topic

import (
	"strings"
	"time"
)

// MembershipMode controls how a decrement updates an entry's contributors.
type MembershipMode string

const (
	// MembershipOccurrence tracks per-paper occurrence counts, so a paper that
	// contributed a topic twice stays a contributor until both occurrences
	// are removed.
	MembershipOccurrence MembershipMode = "occurrence"

	// MembershipPaper drops the paper from an entry on its first decrement,
	// whatever its remaining occurrences.
	MembershipPaper MembershipMode = "paper"
)

// ParseMembershipMode returns the default mode for an empty string.
func ParseMembershipMode(s string) (MembershipMode, bool) {
	switch MembershipMode(strings.ToLower(strings.TrimSpace(s))) {
	case "", MembershipOccurrence:
		return MembershipOccurrence, true
	case MembershipPaper:
		return MembershipPaper, true
	}
	return "", false
}

// Entry is one clustered topic within a group.
type Entry struct {
	// Name is the display name of the first occurrence and never changes.
	Name         string         `json:"name"`
	Count        int            `json:"count"`
	Papers       []string       `json:"papers"`
	Occurrences  map[string]int `json:"occurrences,omitempty"`
	LastOccurred time.Time      `json:"last_occurred"`
}

// HasPaper reports whether paperID is a contributor.
func (e *Entry) HasPaper(paperID string) bool {
	return indexOf(e.Papers, paperID) >= 0
}

func (e *Entry) addPaper(paperID string) {
	if !e.HasPaper(paperID) {
		e.Papers = append(e.Papers, paperID)
	}
	if e.Occurrences == nil {
		e.Occurrences = map[string]int{}
	}
	e.Occurrences[paperID]++
}

func (e *Entry) removePaper(paperID string, mode MembershipMode) {
	if mode == MembershipOccurrence && e.Occurrences[paperID] > 1 {
		e.Occurrences[paperID]--
		return
	}
	delete(e.Occurrences, paperID)
	if i := indexOf(e.Papers, paperID); i >= 0 {
		e.Papers = append(e.Papers[:i], e.Papers[i+1:]...)
	}
}

// Group is the clustered topic set for one FacetKey. Entries keep insertion
// order; matching and ranking ties both depend on it.
type Group struct {
	Key       FacetKey  `json:"key"`
	Entries   []Entry   `json:"entries"`
	Version   int64     `json:"version"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewGroup returns an empty, never-persisted group.
func NewGroup(key FacetKey) *Group {
	return &Group{Key: key, Entries: []Entry{}}
}

// Clone returns a deep copy, so callers can mutate a snapshot freely.
func (g *Group) Clone() *Group {
	if g == nil {
		return nil
	}
	out := *g
	out.Entries = make([]Entry, len(g.Entries))
	for i, e := range g.Entries {
		e.Papers = append([]string{}, e.Papers...)
		if e.Occurrences != nil {
			occ := make(map[string]int, len(e.Occurrences))
			for k, v := range e.Occurrences {
				occ[k] = v
			}
			e.Occurrences = occ
		}
		out.Entries[i] = e
	}
	return &out
}

// TotalCount sums entry counts.
func (g *Group) TotalCount() int {
	n := 0
	for _, e := range g.Entries {
		n += e.Count
	}
	return n
}

// Increment records one occurrence of label from paperID. It merges into the
// first entry whose normalized name is similar enough, or appends a new entry
// named after the trimmed label. Empty labels are ignored and report false.
func (g *Group) Increment(label, paperID string, now time.Time) bool {
	normalized := Normalize(label)
	if normalized == "" {
		return false
	}
	if i := FindMatch(normalized, g.normalizedNames()); i >= 0 {
		e := &g.Entries[i]
		e.Count++
		e.LastOccurred = now
		e.addPaper(paperID)
		return true
	}
	e := Entry{
		Name:         strings.TrimSpace(label),
		Count:        1,
		LastOccurred: now,
	}
	e.addPaper(paperID)
	g.Entries = append(g.Entries, e)
	return true
}

// Decrement removes one occurrence credited to paperID. The entry is located
// by paper membership rather than by matching the label; the label only
// chooses among several entries the paper contributed to. It reports false
// when the label is empty or no entry lists the paper.
func (g *Group) Decrement(label, paperID string, mode MembershipMode) bool {
	normalized := Normalize(label)
	if normalized == "" {
		return false
	}
	// Every entry listing the paper is a candidate, even one with no bigram
	// in common with label. In paper mode a repeated label whose own entry
	// already dropped the paper therefore debits another of its entries.
	best := -1
	bestSim := -1.0
	for i := range g.Entries {
		if !g.Entries[i].HasPaper(paperID) {
			continue
		}
		sim := Similarity(normalized, Normalize(g.Entries[i].Name))
		if sim > bestSim {
			best, bestSim = i, sim
		}
	}
	if best < 0 {
		return false
	}

	e := &g.Entries[best]
	if e.Count > 0 {
		e.Count--
	}
	e.removePaper(paperID, mode)
	if e.Count == 0 {
		g.Entries = append(g.Entries[:best], g.Entries[best+1:]...)
	}
	return true
}

func (g *Group) normalizedNames() []string {
	names := make([]string, len(g.Entries))
	for i, e := range g.Entries {
		names[i] = Normalize(e.Name)
	}
	return names
}

func indexOf(list []string, v string) int {
	for i, s := range list {
		if s == v {
			return i
		}
	}
	return -1
}
