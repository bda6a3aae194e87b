// Package engine connects the paper lifecycle to topic aggregation and
// serves ranked topic queries.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"strings"
	"time"

	"github.com/hurttlocker/papertopics/internal/aggregate"
	"github.com/hurttlocker/papertopics/internal/store"
	"github.com/hurttlocker/papertopics/internal/topic"
	gocache "github.com/patrickmn/go-cache"
	"golang.org/x/sync/errgroup"
)

// DefaultCacheTTL is how long a top-topics result is served from memory.
const DefaultCacheTTL = 5 * time.Minute

// Question is one extracted question of a confirmed paper.
type Question struct {
	Number string `json:"number"`
	Text   string `json:"text"`
	Marks  int    `json:"marks,omitempty"`
	Topic  string `json:"topic"`
}

// Paper is a confirmed exam paper with its extracted questions.
type Paper struct {
	ID    string      `json:"id"`
	Facet topic.Facet `json:"facet"`
	PartA []Question  `json:"part_a"`
	PartB []Question  `json:"part_b"`
}

// Labels returns the topic label of every question in part p, in order.
func (p Paper) Labels(part topic.Part) []string {
	qs := p.PartA
	if part == topic.PartB {
		qs = p.PartB
	}
	labels := make([]string, 0, len(qs))
	for _, q := range qs {
		labels = append(labels, q.Topic)
	}
	return labels
}

func (p Paper) validate() error {
	if strings.TrimSpace(p.ID) == "" {
		return &topic.ValidationError{Field: "paper_id"}
	}
	return p.Facet.Validate()
}

// normalizeFacet resolves loose exam type spellings ("Midterm 1") before
// validation.
func normalizeFacet(f topic.Facet) topic.Facet {
	if et, err := topic.ParseExamType(string(f.ExamType)); err == nil {
		f.ExamType = et
	}
	return f
}

// PaperResult reports what a lifecycle event did to each part.
type PaperResult struct {
	PaperID string                `json:"paper_id"`
	PartA   aggregate.BatchResult `json:"part_a"`
	PartB   aggregate.BatchResult `json:"part_b"`
}

// TopQuery scopes a top-topics query. Branch is deliberately absent: every
// branch of the scope is merged.
type TopQuery struct {
	College  string         `json:"college"`
	Subject  string         `json:"subject"`
	Semester string         `json:"semester"`
	ExamType topic.ExamType `json:"exam_type"`
}

func (q TopQuery) validate() error {
	for _, f := range []struct{ name, val string }{
		{"college", q.College},
		{"subject", q.Subject},
		{"semester", q.Semester},
	} {
		if strings.TrimSpace(f.val) == "" {
			return &topic.ValidationError{Field: f.name}
		}
	}
	if _, err := topic.ParseExamType(string(q.ExamType)); err != nil {
		return err
	}
	return nil
}

// scope is the canonical cache key of q.
func (q TopQuery) scope() string {
	c := topic.Facet{College: q.College, Subject: q.Subject, Semester: q.Semester}.Canonical()
	et, _ := topic.ParseExamType(string(q.ExamType))
	return strings.Join([]string{c.College, c.Subject, c.Semester, string(et)}, "\x00")
}

func scopeOf(f topic.Facet) string {
	return TopQuery{College: f.College, Subject: f.Subject, Semester: f.Semester, ExamType: f.ExamType}.scope()
}

// GroupView is the raw stored content of one group.
type GroupView struct {
	Key       topic.FacetKey `json:"key"`
	Entries   []topic.Entry  `json:"entries"`
	Version   int64          `json:"version"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// Stats summarizes the engine and its store.
type Stats struct {
	Store         *store.StoreStats    `json:"store"`
	Membership    topic.MembershipMode `json:"membership"`
	CachedQueries int                  `json:"cached_queries"`
	CacheTTL      string               `json:"cache_ttl"`
}

// Options configures an Engine.
type Options struct {
	Aggregate aggregate.Options
	// CacheTTL <= 0 disables the top-topics cache.
	CacheTTL time.Duration
	Logger   *slog.Logger
}

// Engine is the query and lifecycle API over a topic store.
type Engine struct {
	store store.Store
	agg   *aggregate.Aggregator
	log   *slog.Logger

	cache    *gocache.Cache
	cacheTTL time.Duration
}

// cachedTop is a ranking together with the version of every group it was
// built from.
type cachedTop struct {
	result   topic.TopResult
	versions map[string]int64
}

// New builds an Engine over st.
func New(st store.Store, opts Options) *Engine {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if opts.Aggregate.Logger == nil {
		opts.Aggregate.Logger = logger
	}
	e := &Engine{
		store:    st,
		agg:      aggregate.New(st, opts.Aggregate),
		log:      logger,
		cacheTTL: opts.CacheTTL,
	}
	if opts.CacheTTL > 0 {
		e.cache = gocache.New(opts.CacheTTL, 2*opts.CacheTTL)
	}
	return e
}

// Store returns the underlying store.
func (e *Engine) Store() store.Store {
	return e.store
}

// OnPaperConfirmed credits every question topic of p to its facet, both
// parts concurrently. Either part failing fails the call; the other part may
// already be committed, and confirming again is not idempotent.
func (e *Engine) OnPaperConfirmed(ctx context.Context, p Paper) (*PaperResult, error) {
	return e.applyPaper(ctx, "confirm", p, e.agg.IncrementBatch)
}

// OnPaperDeleted removes p's contribution from both parts. Deleting a paper
// twice is a no-op the second time.
func (e *Engine) OnPaperDeleted(ctx context.Context, p Paper) (*PaperResult, error) {
	return e.applyPaper(ctx, "delete", p, e.agg.DecrementBatch)
}

type batchFunc func(ctx context.Context, facet topic.Facet, part topic.Part, labels []string, paperID string) (aggregate.BatchResult, error)

func (e *Engine) applyPaper(ctx context.Context, op string, p Paper, fn batchFunc) (*PaperResult, error) {
	p.Facet = normalizeFacet(p.Facet)
	if err := p.validate(); err != nil {
		return nil, err
	}
	res := &PaperResult{PaperID: p.ID}

	g, gctx := errgroup.WithContext(ctx)
	for _, part := range topic.Parts {
		part := part
		g.Go(func() error {
			r, err := fn(gctx, p.Facet, part, p.Labels(part), p.ID)
			if r.Written {
				e.invalidate(p.Facet)
			}
			if err != nil {
				return fmt.Errorf("%s paper %s part %s: %w", op, p.ID, part, err)
			}
			if part == topic.PartA {
				res.PartA = r
			} else {
				res.PartB = r
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		e.log.Warn("paper_event_failed", "op", op, "paper_id", p.ID, "error", err)
		return res, err
	}
	e.log.Info("paper_event_applied",
		"op", op,
		"paper_id", p.ID,
		"college", p.Facet.College,
		"subject", p.Facet.Subject,
		"branch", p.Facet.Branch,
		"exam_type", string(p.Facet.ExamType),
		"part_a_applied", res.PartA.Applied,
		"part_b_applied", res.PartB.Applied,
	)
	return res, nil
}

// GetTopTopics ranks the topics of every branch in q's scope, per part, with
// the fixed limits of q's exam type. A cached ranking is served only while
// the stored group versions of the scope still match the ones it was built
// from, so writes made through other engines or processes are never hidden.
func (e *Engine) GetTopTopics(ctx context.Context, q TopQuery) (*topic.TopResult, error) {
	if err := q.validate(); err != nil {
		return nil, err
	}
	q.ExamType, _ = topic.ParseExamType(string(q.ExamType))
	scope := q.scope()
	filter := store.GroupFilter{
		College:  q.College,
		Subject:  q.Subject,
		Semester: q.Semester,
		ExamType: q.ExamType,
	}

	if e.cache != nil {
		if v, ok := e.cache.Get(scope); ok {
			hit := v.(cachedTop)
			current, err := e.store.GroupVersions(ctx, filter)
			if err != nil {
				return nil, err
			}
			if maps.Equal(current, hit.versions) {
				res := hit.result.Clone()
				return &res, nil
			}
			e.log.Debug("top_topics_cache_stale", "scope", strings.ReplaceAll(scope, "\x00", "/"))
		}
	}

	groups, err := e.store.ListGroups(ctx, filter)
	if err != nil {
		return nil, err
	}

	var a, b []*topic.Group
	versions := make(map[string]int64, len(groups))
	for _, g := range groups {
		versions[g.Key.ID()] = g.Version
		if g.Key.Part == topic.PartB {
			b = append(b, g)
		} else {
			a = append(a, g)
		}
	}
	res := topic.TopResult{
		PartA: topic.RankGroups(topic.Limit(q.ExamType, topic.PartA), a...),
		PartB: topic.RankGroups(topic.Limit(q.ExamType, topic.PartB), b...),
	}

	if e.cache != nil {
		e.cache.SetDefault(scope, cachedTop{result: res.Clone(), versions: versions})
	}
	return &res, nil
}

// SearchTopics returns the stored entries of facet for part, or for both
// parts when part is nil. Entries keep storage order and are not truncated.
func (e *Engine) SearchTopics(ctx context.Context, facet topic.Facet, part *topic.Part) ([]GroupView, error) {
	facet = normalizeFacet(facet)
	if err := facet.Validate(); err != nil {
		return nil, err
	}
	parts := topic.Parts
	if part != nil {
		if err := facet.Key(*part).Validate(); err != nil {
			return nil, err
		}
		parts = []topic.Part{*part}
	}

	out := make([]GroupView, 0, len(parts))
	for _, p := range parts {
		key := facet.Key(p)
		g, err := e.store.GetGroup(ctx, key)
		if err != nil {
			return nil, err
		}
		view := GroupView{Key: key, Entries: []topic.Entry{}}
		if g != nil {
			view.Key = g.Key
			view.Entries = g.Entries
			view.Version = g.Version
			view.UpdatedAt = g.UpdatedAt
		}
		out = append(out, view)
	}
	return out, nil
}

// Stats reports store counts and cache state.
func (e *Engine) Stats(ctx context.Context) (*Stats, error) {
	st, err := e.store.Stats(ctx)
	if err != nil {
		return nil, err
	}
	out := &Stats{Store: st, Membership: e.agg.Mode(), CacheTTL: "disabled"}
	if e.cache != nil {
		out.CachedQueries = e.cache.ItemCount()
		out.CacheTTL = e.cacheTTL.String()
	}
	return out, nil
}

// invalidate drops the cached ranking for f's scope.
func (e *Engine) invalidate(f topic.Facet) {
	if e.cache == nil {
		return
	}
	e.cache.Delete(scopeOf(f))
}
