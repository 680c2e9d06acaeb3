package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/course-feedback-api/internal/models"
	appErrors "github.com/noah-isme/course-feedback-api/pkg/errors"
)

// CacheRepository abstracts persistence for cached payloads.
type CacheRepository interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
}

// BoardCacheKey is the cache key of a course's guest board.
func BoardCacheKey(courseID int64) string {
	return fmt.Sprintf("board:course:%d", courseID)
}

// BoardCache keeps rendered guest boards keyed by course. It is best effort: read
// failures count as misses and write failures are only logged.
type BoardCache struct {
	repo    CacheRepository
	metrics *MetricsService
	ttl     time.Duration
	logger  *zap.Logger
	enabled bool
}

// NewBoardCache constructs a board cache. A non-positive ttl defaults to one minute.
func NewBoardCache(repo CacheRepository, metrics *MetricsService, ttl time.Duration, logger *zap.Logger, enabled bool) *BoardCache {
	if ttl <= 0 {
		ttl = time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BoardCache{repo: repo, metrics: metrics, ttl: ttl, logger: logger, enabled: enabled}
}

// Enabled reports whether boards are cached at all.
func (b *BoardCache) Enabled() bool {
	return b != nil && b.enabled && b.repo != nil
}

// Load returns the cached board of a course, if any.
func (b *BoardCache) Load(ctx context.Context, courseID int64) (*models.Board, bool) {
	if !b.Enabled() {
		return nil, false
	}
	key := BoardCacheKey(courseID)
	start := time.Now()
	var board models.Board
	err := b.repo.Get(ctx, key, &board)
	b.metrics.RecordCacheOperation(err == nil, time.Since(start))
	if err != nil {
		if !errors.Is(err, appErrors.ErrCacheMiss) {
			b.logger.Warn("board cache read failed", zap.Int64("course_id", courseID), zap.Error(err))
		}
		return nil, false
	}
	return &board, true
}

// Store caches a freshly built board.
func (b *BoardCache) Store(ctx context.Context, board *models.Board) {
	if !b.Enabled() || board == nil {
		return
	}
	start := time.Now()
	err := b.repo.Set(ctx, BoardCacheKey(board.CourseID), board, b.ttl)
	b.metrics.ObserveCacheWrite(time.Since(start))
	if err != nil {
		b.logger.Warn("board cache write failed", zap.Int64("course_id", board.CourseID), zap.Error(err))
	}
}

// Forget drops the cached boards of the given courses.
func (b *BoardCache) Forget(ctx context.Context, courseIDs ...int64) error {
	if !b.Enabled() || len(courseIDs) == 0 {
		return nil
	}
	keys := make([]string, 0, len(courseIDs))
	for _, id := range courseIDs {
		keys = append(keys, BoardCacheKey(id))
	}
	if err := b.repo.Delete(ctx, keys...); err != nil {
		return fmt.Errorf("forget boards %v: %w", courseIDs, err)
	}
	return nil
}
