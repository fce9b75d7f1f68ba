package search

import (
	"context"
	"encoding/json"

	"go.uber.org/zap"

	"github.com/homequest/realestate-search/internal/cache"
	"github.com/homequest/realestate-search/internal/index"
	"github.com/homequest/realestate-search/internal/models"
	"github.com/homequest/realestate-search/internal/observability"
	"github.com/homequest/realestate-search/internal/resolver"
)

// EntityIndex is the slice of the index client the SERP surface needs.
type EntityIndex interface {
	Search(ctx context.Context, query map[string]any) (*index.SearchResult, error)
	FetchTrending(ctx context.Context, limit int, cityID string) ([]models.Entity, error)
}

// Groups buckets hits by entity type for the UI.
type Groups struct {
	Locations    []models.Entity `json:"locations"`
	Projects     []models.Entity `json:"projects"`
	Builders     []models.Entity `json:"builders"`
	RatePages    []models.Entity `json:"rate_pages"`
	PropertyPDPs []models.Entity `json:"property_pdps"`
}

func (g Groups) total() int {
	return len(g.Locations) + len(g.Projects) + len(g.Builders) + len(g.RatePages) + len(g.PropertyPDPs)
}

type groupCaps struct {
	locations, projects, builders, ratePages, propertyPDPs int
}

// Fallbacks describes what the service did when the primary query came up
// short.
type Fallbacks struct {
	Reason      string          `json:"reason,omitempty"`
	RelaxedUsed bool            `json:"relaxed_used"`
	Trending    []models.Entity `json:"trending"`
}

type Response struct {
	Query           string    `json:"q"`
	NormalizedQuery string    `json:"normalized_q"`
	DidYouMean      string    `json:"did_you_mean,omitempty"`
	Groups          Groups    `json:"groups"`
	Fallbacks       Fallbacks `json:"fallbacks"`
}

type SuggestResponse struct {
	Query           string `json:"q"`
	NormalizedQuery string `json:"normalized_q"`
	DidYouMean      string `json:"did_you_mean,omitempty"`
	Groups          Groups `json:"groups"`
}

// Service serves the grouped SERP, autocomplete and trending surfaces.
type Service struct {
	idx    EntityIndex
	cache  *cache.RedisCache
	logger *zap.Logger
}

// New creates the search service. cache may be nil; every surface degrades
// to the index alone.
func New(idx EntityIndex, c *cache.RedisCache, logger *zap.Logger) *Service {
	return &Service{idx: idx, cache: c, logger: logger}
}

// Search runs the grouped SERP: a strict query first, a relaxed pass when
// that returns nothing, and trending entities as a last resort.
func (s *Service) Search(ctx context.Context, q, cityID string, limit int) (*Response, error) {
	ctx, span := observability.StartSpan(ctx, "search.serp")
	defer span.End()

	if limit <= 0 {
		limit = 20
	}
	qNorm := resolver.NormalizeQuery(q)

	resp := &Response{
		Query:           q,
		NormalizedQuery: qNorm,
		Groups:          emptyGroups(),
		Fallbacks:       Fallbacks{Trending: []models.Entity{}},
	}

	if qNorm == "" {
		resp.Fallbacks.Reason = "empty"
		resp.Fallbacks.Trending = s.trendingOrEmpty(ctx, cityID, 10)
		return resp, nil
	}

	// Fetch more than needed; grouping caps per bucket.
	fetchSize := limit * 5
	if fetchSize < 60 {
		fetchSize = 60
	}
	caps := groupCaps{locations: 10, projects: 10, builders: 10, ratePages: 10, propertyPDPs: 10}

	result, err := s.idx.Search(ctx, index.SerpQuery(qNorm, fetchSize, cityID))
	if err != nil {
		return nil, err
	}
	resp.DidYouMean = result.DidYouMean
	resp.Groups = groupHits(result.Hits, caps)

	if resp.Groups.total() == 0 {
		relaxed, err := s.idx.Search(ctx, index.RelaxedQuery(qNorm, fetchSize, cityID))
		if err != nil {
			return nil, err
		}
		resp.Groups = groupHits(relaxed.Hits, caps)
		resp.Fallbacks.RelaxedUsed = true
	}

	if resp.Groups.total() == 0 {
		resp.Fallbacks.Reason = "no_results"
		resp.Fallbacks.Trending = s.trendingOrEmpty(ctx, cityID, 10)
	}

	return resp, nil
}

// Suggest serves autocomplete. bool_prefix over search_as_you_type keeps it
// fast enough to hit on every keystroke, and results are cached per prefix.
func (s *Service) Suggest(ctx context.Context, q, cityID string, limit int) (*SuggestResponse, error) {
	ctx, span := observability.StartSpan(ctx, "search.suggest")
	defer span.End()

	if limit <= 0 {
		limit = 10
	}
	qNorm := resolver.NormalizeQuery(q)

	resp := &SuggestResponse{
		Query:           q,
		NormalizedQuery: qNorm,
		Groups:          emptyGroups(),
	}
	if qNorm == "" {
		return resp, nil
	}

	if s.cache != nil {
		if payload, err := s.cache.GetSuggest(ctx, qNorm, cityID, limit); err == nil && payload != nil {
			var cached SuggestResponse
			if err := json.Unmarshal(payload, &cached); err == nil {
				cached.Query = q
				return &cached, nil
			}
		}
	}

	fetchSize := limit * 5
	if fetchSize < 30 {
		fetchSize = 30
	}

	result, err := s.idx.Search(ctx, index.SuggestQuery(qNorm, fetchSize, cityID))
	if err != nil {
		return nil, err
	}

	caps := groupCaps{
		locations:    min(6, limit),
		projects:     min(5, limit),
		builders:     min(4, limit),
		ratePages:    min(4, limit),
		propertyPDPs: min(4, limit),
	}
	resp.DidYouMean = result.DidYouMean
	resp.Groups = groupHits(result.Hits, caps)

	if s.cache != nil {
		if payload, err := json.Marshal(resp); err == nil {
			if err := s.cache.SetSuggest(ctx, qNorm, cityID, limit, payload); err != nil {
				s.logger.Debug("suggest cache write failed", zap.Error(err))
			}
		}
	}

	return resp, nil
}

// Trending returns the most popular active entities, cached per city.
func (s *Service) Trending(ctx context.Context, cityID string, limit int) ([]models.Entity, error) {
	if limit <= 0 {
		limit = 10
	}

	if s.cache != nil {
		if cached, err := s.cache.GetTrending(ctx, cityID); err == nil && cached != nil {
			if len(cached) > limit {
				cached = cached[:limit]
			}
			return cached, nil
		}
	}

	entities, err := s.idx.FetchTrending(ctx, limit, cityID)
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		if err := s.cache.SetTrending(ctx, cityID, entities); err != nil {
			s.logger.Debug("trending cache write failed", zap.Error(err))
		}
	}

	return entities, nil
}

func (s *Service) trendingOrEmpty(ctx context.Context, cityID string, limit int) []models.Entity {
	entities, err := s.Trending(ctx, cityID, limit)
	if err != nil {
		s.logger.Warn("trending fallback failed", zap.Error(err))
		return []models.Entity{}
	}
	if entities == nil {
		return []models.Entity{}
	}
	return entities
}

func emptyGroups() Groups {
	return Groups{
		Locations:    []models.Entity{},
		Projects:     []models.Entity{},
		Builders:     []models.Entity{},
		RatePages:    []models.Entity{},
		PropertyPDPs: []models.Entity{},
	}
}

func groupHits(hits []models.Entity, caps groupCaps) Groups {
	groups := emptyGroups()
	for _, hit := range hits {
		switch hit.EntityType {
		case models.TypeCity, models.TypeMicromarket, models.TypeLocality, models.TypeListingPage, models.TypeLocalityOverview:
			if len(groups.Locations) < caps.locations {
				groups.Locations = append(groups.Locations, hit)
			}
		case models.TypeProject:
			if len(groups.Projects) < caps.projects {
				groups.Projects = append(groups.Projects, hit)
			}
		case models.TypeBuilder:
			if len(groups.Builders) < caps.builders {
				groups.Builders = append(groups.Builders, hit)
			}
		case models.TypeRatePage:
			if len(groups.RatePages) < caps.ratePages {
				groups.RatePages = append(groups.RatePages, hit)
			}
		case models.TypePropertyPDP:
			if len(groups.PropertyPDPs) < caps.propertyPDPs {
				groups.PropertyPDPs = append(groups.PropertyPDPs, hit)
			}
		}
	}
	return groups
}
