package leaderboard

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ZanzyTHEbar/ideoscope/internal/cache"
)

// LeaderboardCache provides caching for leaderboard data. Cached values are
// shared between callers and must not be modified.
type LeaderboardCache struct {
	boards *cache.Cache[*Response]
	ranks  *cache.Cache[*UserRank]
}

// NewLeaderboardCache creates a new leaderboard cache
func NewLeaderboardCache(ttl time.Duration) *LeaderboardCache {
	return &LeaderboardCache{
		boards: cache.NewCache[*Response](ttl),
		ranks:  cache.NewCache[*UserRank](ttl),
	}
}

// Close stops both janitors.
func (lc *LeaderboardCache) Close() {
	lc.boards.Close()
	lc.ranks.Close()
}

func (lc *LeaderboardCache) generateCacheKey(period string, limit int) string {
	return fmt.Sprintf("leaderboard:%s:%d", period, limit)
}

func (lc *LeaderboardCache) generateRankCacheKey(userID, period string) string {
	return fmt.Sprintf("rank:%s:%s", cache.Key(userID), period)
}

// GetLeaderboard retrieves cached leaderboard data
func (lc *LeaderboardCache) GetLeaderboard(period string, limit int) (*Response, bool) {
	response, found := lc.boards.Get(lc.generateCacheKey(period, limit))
	if found {
		slog.Debug("Leaderboard cache hit", "period", period, "limit", limit)
	}
	return response, found
}

// LoadLeaderboard returns the cached board or computes it once, however
// many requests miss at the same time.
func (lc *LeaderboardCache) LoadLeaderboard(period string, limit int, compute func() (*Response, error)) (*Response, error) {
	return lc.boards.GetOrLoad(lc.generateCacheKey(period, limit), compute)
}

// SetLeaderboard caches leaderboard data
func (lc *LeaderboardCache) SetLeaderboard(period string, limit int, response *Response) {
	lc.boards.Set(lc.generateCacheKey(period, limit), response)
	slog.Debug("Leaderboard cached", "period", period, "limit", limit, "entries", len(response.Entries))
}

// GetUserRank retrieves a cached rank
func (lc *LeaderboardCache) GetUserRank(userID, period string) (*UserRank, bool) {
	return lc.ranks.Get(lc.generateRankCacheKey(userID, period))
}

// SetUserRank caches a rank
func (lc *LeaderboardCache) SetUserRank(userID, period string, rank *UserRank) {
	lc.ranks.Set(lc.generateRankCacheKey(userID, period), rank)
}

// InvalidateAll drops every cached board and rank.
func (lc *LeaderboardCache) InvalidateAll() {
	lc.boards.Clear()
	lc.ranks.Clear()
	slog.Info("Invalidated leaderboard cache")
}

// GetStats returns cache statistics
func (lc *LeaderboardCache) GetStats() map[string]interface{} {
	return map[string]interface{}{
		"boards": lc.boards.Stats(),
		"ranks":  lc.ranks.Stats(),
	}
}

// popularConfigs are the boards the landing page asks for.
var popularConfigs = []struct {
	period string
	limit  int
}{
	{PeriodDaily, DefaultLimit},
	{PeriodWeekly, DefaultLimit},
	{PeriodMonthly, DefaultLimit},
	{PeriodAllTime, DefaultLimit},
	{PeriodAllTime, MaxLimit},
}

// WarmCache recomputes the popular boards, one query per period, replacing
// whatever was cached.
func (lc *LeaderboardCache) WarmCache(ctx context.Context, service *Service) {
	slog.Debug("Starting leaderboard cache warming")

	computed := map[string]*Response{}
	for _, config := range popularConfigs {
		full, ok := computed[config.period]
		if !ok {
			var err error
			full, err = service.rank(ctx, config.period)
			if err != nil {
				slog.Error("Failed to warm cache for leaderboard",
					"error", err, "period", config.period, "limit", config.limit)
				continue
			}
			computed[config.period] = full
		}

		response := *full
		if len(response.Entries) > config.limit {
			response.Entries = response.Entries[:config.limit]
		}
		lc.SetLeaderboard(config.period, config.limit, &response)
	}

	slog.Debug("Leaderboard cache warming completed", "periods", len(computed))
}

// AutoRefresh warms the cache every interval until ctx is done.
func (lc *LeaderboardCache) AutoRefresh(ctx context.Context, service *Service, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			lc.WarmCache(ctx, service)
		}
	}
}
