package store

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/hurttlocker/papertopics/internal/topic"
)

// groupRow is the column form shared by the SQL backends. Key columns hold
// the canonical facet; keyJSON keeps the display form seen on creation.
type groupRow struct {
	ID          string
	KeyJSON     string
	EntriesJSON string
	Version     int64
	UpdatedAt   string
}

func encodeGroup(g *topic.Group) (keyJSON, entriesJSON string, err error) {
	k, err := json.Marshal(g.Key)
	if err != nil {
		return "", "", fmt.Errorf("encoding facet key: %w", err)
	}
	entries := g.Entries
	if entries == nil {
		entries = []topic.Entry{}
	}
	e, err := json.Marshal(entries)
	if err != nil {
		return "", "", fmt.Errorf("encoding topic entries: %w", err)
	}
	return string(k), string(e), nil
}

func (r groupRow) decode() (*topic.Group, error) {
	g := &topic.Group{Version: r.Version}
	if err := json.Unmarshal([]byte(r.KeyJSON), &g.Key); err != nil {
		return nil, fmt.Errorf("decoding facet key of group %s: %w", r.ID, err)
	}
	if err := json.Unmarshal([]byte(r.EntriesJSON), &g.Entries); err != nil {
		return nil, fmt.Errorf("decoding entries of group %s: %w", r.ID, err)
	}
	if g.Entries == nil {
		g.Entries = []topic.Entry{}
	}
	if r.UpdatedAt != "" {
		if t, err := time.Parse(time.RFC3339Nano, r.UpdatedAt); err == nil {
			g.UpdatedAt = t
		}
	}
	return g, nil
}
