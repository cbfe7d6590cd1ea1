package service

import (
	"context"
	"time"

	"github.com/movira/transreg-backend/internal/app/repository"
	"github.com/movira/transreg-backend/pkg/logger"
	redisCache "github.com/movira/transreg-backend/pkg/redis"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100

	statsCacheTTL = 5 * time.Minute
)

// DocumentQueryService serves filtered listings and aggregate statistics.
type DocumentQueryService interface {
	List(filter repository.DocumentFilter) (*repository.DocumentListResult, error)
	Statistics(ctx context.Context, filter repository.StatsFilter) (*repository.DocumentStats, error)
}

type documentQueryService struct {
	repo  repository.DocumentRepository
	cache *redisCache.Cache
}

// NewDocumentQueryService creates the query engine. cache may be nil.
func NewDocumentQueryService(repo repository.DocumentRepository, cache *redisCache.Cache) DocumentQueryService {
	return &documentQueryService{repo: repo, cache: cache}
}

func (s *documentQueryService) List(filter repository.DocumentFilter) (*repository.DocumentListResult, error) {
	if filter.Page < 1 {
		filter.Page = 1
	}
	if filter.PageSize <= 0 {
		filter.PageSize = defaultPageSize
	}
	if filter.PageSize > maxPageSize {
		filter.PageSize = maxPageSize
	}
	if filter.SortBy == "" {
		filter.SortBy = repository.DocumentSortCreatedAt
	}

	result, err := s.repo.FindWithFilter(filter)
	if err != nil {
		logger.Error("Failed to list documents", err)
		return nil, err
	}

	logger.Debug("Documents listed", map[string]interface{}{
		"count":       len(result.Documents),
		"total_count": result.TotalCount,
		"page":        result.Page,
	})
	return result, nil
}

// Statistics computes the aggregate counts for a base filter. The unfiltered
// aggregate is served from cache when available; the repository stays the
// source of truth and filtered requests always hit it directly.
func (s *documentQueryService) Statistics(ctx context.Context, filter repository.StatsFilter) (*repository.DocumentStats, error) {
	cacheable := filter.EntityType == nil && filter.UploadedAfter == nil && filter.UploadedBefore == nil

	if cacheable {
		var cached repository.DocumentStats
		hit, err := s.cache.GetJSON(ctx, repository.CacheKeyDocumentStats, &cached)
		if err != nil {
			logger.Warn("Failed to read statistics cache", map[string]interface{}{
				"error": err.Error(),
			})
		} else if hit {
			return &cached, nil
		}
	}

	stats, err := s.repo.Stats(filter)
	if err != nil {
		logger.Error("Failed to compute document statistics", err)
		return nil, err
	}

	if cacheable {
		if err := s.cache.SetJSON(ctx, repository.CacheKeyDocumentStats, stats, statsCacheTTL); err != nil {
			logger.Warn("Failed to write statistics cache", map[string]interface{}{
				"error": err.Error(),
			})
		}
	}

	return stats, nil
}
