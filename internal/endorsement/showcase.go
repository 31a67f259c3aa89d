// internal/endorsement/showcase.go
package endorsement

import (
	"context"
	"sort"
	"strings"
	"time"

	"endorsement-workers/internal/common/logger"
	"endorsement-workers/internal/common/metrics"
	"endorsement-workers/internal/common/observability"

	"go.opentelemetry.io/otel/attribute"
)

// MatchesShowcase reports whether e is eligible for the public showcase under q.
func MatchesShowcase(e *Endorsement, q ShowcaseQuery) bool {
	if e == nil || e.Status != StatusApproved {
		return false
	}
	if q.Category != "" && !strings.EqualFold(e.EndorserCategory, q.Category) {
		return false
	}
	if q.Country != "" && !strings.EqualFold(e.Country, q.Country) {
		return false
	}
	if q.Search == "" {
		return true
	}
	term := strings.ToLower(q.Search)
	return strings.Contains(strings.ToLower(e.OrganizationName), term) ||
		strings.Contains(strings.ToLower(e.Headline), term) ||
		strings.Contains(strings.ToLower(e.Statement), term)
}

// SortShowcase orders featured entries first, then by approval time
// (newest first) and id.
func SortShowcase(list []*Endorsement) {
	sort.SliceStable(list, func(i, j int) bool {
		a, b := list[i], list[j]
		if a.Featured != b.Featured {
			return a.Featured
		}
		at, bt := approvedAt(a), approvedAt(b)
		if !at.Equal(bt) {
			return at.After(bt)
		}
		return a.ID < b.ID
	})
}

func approvedAt(e *Endorsement) (t time.Time) {
	if e.ApprovedAt != nil {
		return *e.ApprovedAt
	}
	return t
}

// Searcher finds approved endorsements matching a query. The Store
// satisfies it; so does the search index.
type Searcher interface {
	SearchApproved(ctx context.Context, q ShowcaseQuery) ([]*Endorsement, error)
}

// ShowcaseCache caches rendered showcase pages by query. Get reports the
// cache generation it read, and Set stores under that generation, so a page
// computed before an invalidation is never served after it.
type ShowcaseCache interface {
	Get(ctx context.Context, q ShowcaseQuery) (list []PublicEndorsement, generation int64, ok bool, err error)
	Set(ctx context.Context, generation int64, q ShowcaseQuery, list []PublicEndorsement) error
	Invalidate(ctx context.Context) error
}

// ShowcaseService answers public showcase queries.
type ShowcaseService struct {
	searcher Searcher
	cache    ShowcaseCache
	logger   logger.Logger
}

func NewShowcaseService(searcher Searcher, cache ShowcaseCache, log logger.Logger) *ShowcaseService {
	if log == nil {
		log = logger.NewNoOpLogger()
	}
	return &ShowcaseService{searcher: searcher, cache: cache, logger: log}
}

// List returns the public projection of approved endorsements matching q.
// Whatever the backend, the approved-only filter and the featured-first
// ordering are applied here.
func (s *ShowcaseService) List(ctx context.Context, q ShowcaseQuery) (result []PublicEndorsement, err error) {
	q = q.Normalize()

	ctx, span := observability.StartSpan(ctx, "endorsement.showcase",
		attribute.String("showcase.search", q.Search),
		attribute.String("showcase.category", q.Category),
		attribute.String("showcase.country", q.Country),
	)
	defer func() { observability.EndSpan(span, err) }()

	cacheable := false
	var generation int64
	if s.cache != nil {
		cached, gen, ok, cErr := s.cache.Get(ctx, q)
		switch {
		case cErr != nil:
			metrics.ShowcaseCacheLookups.WithLabelValues("error").Inc()
			s.logger.Warn("Showcase cache read failed", map[string]interface{}{"error": cErr.Error()})
		case ok:
			metrics.ShowcaseCacheLookups.WithLabelValues("hit").Inc()
			return cached, nil
		default:
			metrics.ShowcaseCacheLookups.WithLabelValues("miss").Inc()
			cacheable = true
			generation = gen
		}
	}

	found, err := s.searcher.SearchApproved(ctx, q)
	if err != nil {
		return nil, err
	}

	eligible := make([]*Endorsement, 0, len(found))
	for _, e := range found {
		if MatchesShowcase(e, q) {
			eligible = append(eligible, e)
		}
	}
	SortShowcase(eligible)

	result = make([]PublicEndorsement, len(eligible))
	for i, e := range eligible {
		result[i] = e.ToPublic()
	}

	if cacheable {
		if cErr := s.cache.Set(ctx, generation, q, result); cErr != nil {
			s.logger.Warn("Showcase cache write failed", map[string]interface{}{"error": cErr.Error()})
		}
	}
	return result, nil
}
