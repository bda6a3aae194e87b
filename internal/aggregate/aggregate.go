// Package aggregate applies topic label batches to stored topic groups.
//
// Every batch is one read-modify-write cycle per (facet, part): read the
// group and its version, apply all labels to that snapshot in memory, then
// write conditionally on the version. A lost race recomputes the whole batch
// against a fresh snapshot, because what a label merges into can change with
// whatever was inserted concurrently. No locks are held across the store
// round-trip.
package aggregate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/hurttlocker/papertopics/internal/store"
	"github.com/hurttlocker/papertopics/internal/topic"
)

const (
	// DefaultMaxAttempts bounds read-modify-write cycles per batch.
	DefaultMaxAttempts = 5

	// DefaultBackoff is multiplied by the attempt number between retries.
	DefaultBackoff = 10 * time.Millisecond
)

// Options tunes an Aggregator. Zero values take defaults; a negative
// Backoff retries immediately.
type Options struct {
	MaxAttempts int
	Backoff     time.Duration
	Mode        topic.MembershipMode
	Now         func() time.Time
	Logger      *slog.Logger
}

// BatchResult describes one applied batch.
type BatchResult struct {
	Key      topic.FacetKey `json:"key"`
	Applied  int            `json:"applied"`
	Skipped  int            `json:"skipped"`
	Attempts int            `json:"attempts"`
	Version  int64          `json:"version"`
	Written  bool           `json:"written"`
}

// Aggregator owns the merge-or-create decision and the conditional write.
type Aggregator struct {
	store       store.Store
	maxAttempts int
	backoff     time.Duration
	mode        topic.MembershipMode
	now         func() time.Time
	log         *slog.Logger
}

// New returns an Aggregator writing to st.
func New(st store.Store, opts Options) *Aggregator {
	a := &Aggregator{
		store:       st,
		maxAttempts: opts.MaxAttempts,
		backoff:     opts.Backoff,
		mode:        opts.Mode,
		now:         opts.Now,
		log:         opts.Logger,
	}
	if a.maxAttempts <= 0 {
		a.maxAttempts = DefaultMaxAttempts
	}
	if a.backoff < 0 {
		a.backoff = 0
	} else if a.backoff == 0 {
		a.backoff = DefaultBackoff
	}
	if a.mode == "" {
		a.mode = topic.MembershipOccurrence
	}
	if a.now == nil {
		a.now = func() time.Time { return time.Now().UTC() }
	}
	if a.log == nil {
		a.log = slog.Default()
	}
	return a
}

// Mode reports the membership mode used by DecrementBatch.
func (a *Aggregator) Mode() topic.MembershipMode {
	return a.mode
}

// IncrementBatch credits every non-empty label to paperID within the
// (facet, part) group, creating the group on first use. Empty labels are
// skipped. The batch commits with a single conditional write or not at all.
func (a *Aggregator) IncrementBatch(ctx context.Context, facet topic.Facet, part topic.Part, labels []string, paperID string) (BatchResult, error) {
	return a.apply(ctx, "increment", facet.Key(part), labels, paperID, func(g *topic.Group, now time.Time) int {
		n := 0
		for _, l := range labels {
			if g.Increment(l, paperID, now) {
				n++
			}
		}
		return n
	})
}

// DecrementBatch removes paperID's contribution for each non-empty label.
// Entries are found by paper membership; labels with no crediting entry are
// skipped, so repeating a decrement is safe.
func (a *Aggregator) DecrementBatch(ctx context.Context, facet topic.Facet, part topic.Part, labels []string, paperID string) (BatchResult, error) {
	return a.apply(ctx, "decrement", facet.Key(part), labels, paperID, func(g *topic.Group, _ time.Time) int {
		n := 0
		for _, l := range labels {
			if g.Decrement(l, paperID, a.mode) {
				n++
			}
		}
		return n
	})
}

func (a *Aggregator) apply(ctx context.Context, op string, key topic.FacetKey, labels []string, paperID string, mutate func(*topic.Group, time.Time) int) (BatchResult, error) {
	res := BatchResult{Key: key, Skipped: len(labels)}
	if err := key.Validate(); err != nil {
		return res, err
	}
	if strings.TrimSpace(paperID) == "" {
		return res, &topic.ValidationError{Field: "paper_id"}
	}
	if !hasLabel(labels) {
		return res, nil
	}

	var (
		attempt      int
		lastConflict bool
	)
	try := func() error {
		attempt++
		res.Attempts = attempt
		lastConflict = false
		if err := ctx.Err(); err != nil {
			return backoff.Permanent(err)
		}

		cur, err := a.store.GetGroup(ctx, key)
		if err != nil {
			return backoff.Permanent(err)
		}
		var expected int64
		g := cur
		if g == nil {
			g = topic.NewGroup(key)
		} else {
			expected = g.Version
		}

		res.Applied = mutate(g, a.now())
		res.Skipped = len(labels) - res.Applied
		if res.Applied == 0 {
			res.Version = expected
			return nil
		}

		err = a.store.SaveGroup(ctx, g, expected)
		if err == nil {
			res.Version = g.Version
			res.Written = true
			a.log.Debug("topic_batch_applied",
				"op", op,
				"facet", key.String(),
				"paper_id", paperID,
				"applied", res.Applied,
				"skipped", res.Skipped,
				"attempts", attempt,
				"version", g.Version,
			)
			return nil
		}
		if !errors.Is(err, topic.ErrVersionConflict) {
			return backoff.Permanent(err)
		}
		lastConflict = true
		a.log.Debug("topic_group_conflict", "op", op, "facet", key.String(), "attempt", attempt, "expected_version", expected)
		return err
	}

	b := backoff.WithContext(
		backoff.WithMaxRetries(&linearBackOff{step: a.backoff}, uint64(a.maxAttempts-1)),
		ctx,
	)
	err := backoff.Retry(try, b)
	switch {
	case err == nil:
		return res, nil
	case errors.Is(err, topic.ErrVersionConflict):
		a.log.Warn("topic_group_conflict_exhausted", "op", op, "facet", key.String(), "paper_id", paperID, "attempts", attempt)
		return res, fmt.Errorf("%w: %s after %d attempts", topic.ErrConflictExhausted, key, attempt)
	case lastConflict:
		// The context ended while waiting to retry a conflict.
		return res, fmt.Errorf("%w: %s: %w", topic.ErrConflictExhausted, key, err)
	default:
		return res, err
	}
}

// linearBackOff waits step, 2*step, 3*step... between attempts.
type linearBackOff struct {
	step time.Duration
	n    int
}

func (l *linearBackOff) NextBackOff() time.Duration {
	l.n++
	return l.step * time.Duration(l.n)
}

func (l *linearBackOff) Reset() { l.n = 0 }

func hasLabel(labels []string) bool {
	for _, l := range labels {
		if topic.Normalize(l) != "" {
			return true
		}
	}
	return false
}
