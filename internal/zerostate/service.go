package zerostate

import (
	"context"

	"go.uber.org/zap"

	"github.com/homequest/realestate-search/internal/cache"
	"github.com/homequest/realestate-search/internal/events"
	"github.com/homequest/realestate-search/internal/models"
	"github.com/homequest/realestate-search/internal/observability"
)

// EntityIndex is the slice of the index client the zero-state surface needs.
type EntityIndex interface {
	FetchTrendingByType(ctx context.Context, limit int, cityID string, entityTypes []models.EntityType) ([]models.Entity, error)
}

// Service assembles the pre-typing payload: recent searches from the event
// log plus popularity-ranked entities and localities from the index.
type Service struct {
	idx    EntityIndex
	store  *events.Store
	cache  *cache.RedisCache
	logger *zap.Logger
}

// New creates the zero-state service. cache may be nil.
func New(idx EntityIndex, store *events.Store, c *cache.RedisCache, logger *zap.Logger) *Service {
	return &Service{idx: idx, store: store, cache: c, logger: logger}
}

func (s *Service) ZeroState(ctx context.Context, cityID string, limit int) (*models.ZeroState, error) {
	ctx, span := observability.StartSpan(ctx, "zerostate.build")
	defer span.End()

	if limit < 1 {
		limit = 8
	}
	if limit > 20 {
		limit = 20
	}

	// Recent searches are per-user-adjacent and change on every search, so
	// only the entity-backed portions are cached.
	recent, err := s.store.RecentSearches(cityID, limit)
	if err != nil {
		s.logger.Warn("recent searches unavailable", zap.Error(err))
		recent = nil
	}

	zs := s.cachedEntities(ctx, cityID, limit)
	zs.CityID = cityID
	if recent == nil {
		recent = []models.RecentSearch{}
	}
	zs.RecentSearches = recent
	return zs, nil
}

func (s *Service) cachedEntities(ctx context.Context, cityID string, limit int) *models.ZeroState {
	if s.cache != nil {
		if cached, err := s.cache.GetZeroState(ctx, cityID); err == nil && cached != nil {
			return cached
		}
	}

	zs := &models.ZeroState{
		TrendingSearches:   []models.Entity{},
		TrendingLocalities: []models.Entity{},
		PopularEntities:    []models.Entity{},
	}

	popular, err := s.idx.FetchTrendingByType(ctx, limit, cityID, nil)
	if err != nil {
		s.logger.Warn("trending entities unavailable", zap.Error(err))
	} else {
		zs.TrendingSearches = popular
		zs.PopularEntities = popular
	}

	localityLimit := limit
	if localityLimit > 8 {
		localityLimit = 8
	}
	localities, err := s.idx.FetchTrendingByType(ctx, localityLimit, cityID,
		[]models.EntityType{models.TypeCity, models.TypeMicromarket, models.TypeLocality})
	if err != nil {
		s.logger.Warn("trending localities unavailable", zap.Error(err))
	} else {
		zs.TrendingLocalities = localities
	}

	if s.cache != nil {
		if err := s.cache.SetZeroState(ctx, cityID, zs); err != nil {
			s.logger.Debug("zero state cache write failed", zap.Error(err))
		}
	}
	return zs
}
