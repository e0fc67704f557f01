// Package leaderboard ranks reference ideologies by how many users currently
// match them. A user counts once, under their most recent match, and only
// when that match was recorded inside the requested period.
package leaderboard

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/ZanzyTHEbar/ideoscope/internal/database"
)

// Periods accepted by GetLeaderboard.
const (
	PeriodDaily   = "daily"
	PeriodWeekly  = "weekly"
	PeriodMonthly = "monthly"
	PeriodAllTime = "all_time"
)

const (
	DefaultLimit = 10
	MaxLimit     = 100
)

var (
	// ErrInvalidPeriod is returned for a period outside the four above.
	ErrInvalidPeriod = errors.New("invalid leaderboard period")
	// ErrNotRanked means the user has no match inside the period.
	ErrNotRanked = errors.New("user has no ideology match in this period")
)

// Entry is one ranked ideology.
type Entry struct {
	Rank       int     `json:"rank"`
	IdeologyID int64   `json:"ideology_id"`
	Name       string  `json:"name"`
	Users      int     `json:"users"`
	Share      float64 `json:"share"`
}

// Response is a ranked slice of the leaderboard. Total counts every ranked
// user in the period, not only those under the returned entries.
type Response struct {
	Entries     []Entry    `json:"entries"`
	Total       int        `json:"total"`
	Period      string     `json:"period"`
	PeriodStart *time.Time `json:"period_start,omitempty"`
	GeneratedAt time.Time  `json:"generated_at"`
}

// UserRank places a user's current ideology on the leaderboard.
type UserRank struct {
	Entry
	Period    string    `json:"period"`
	Total     int       `json:"total"`
	Distance  float64   `json:"distance"`
	MatchedAt time.Time `json:"matched_at"`
}

// Service handles leaderboard operations
type Service struct {
	db    *database.DB
	repo  *database.Repository
	cache *LeaderboardCache
}

// NewService creates a leaderboard service whose results are cached for ttl.
func NewService(db *database.DB, repo *database.Repository, ttl time.Duration) *Service {
	return NewServiceWithCache(db, repo, NewLeaderboardCache(ttl))
}

// NewServiceWithCache creates a leaderboard service with a custom cache
func NewServiceWithCache(db *database.DB, repo *database.Repository, cache *LeaderboardCache) *Service {
	return &Service{db: db, repo: repo, cache: cache}
}

// Close stops the cache janitor.
func (s *Service) Close() {
	s.cache.Close()
}

// PeriodStart returns the inclusive lower bound of period at now, in UTC.
// Weeks start on Monday. all_time has no bound and returns the zero time.
func PeriodStart(period string, now time.Time) (time.Time, error) {
	now = now.UTC()
	day := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)

	switch period {
	case PeriodDaily:
		return day, nil
	case PeriodWeekly:
		sinceMonday := (int(now.Weekday()) + 6) % 7
		return day.AddDate(0, 0, -sinceMonday), nil
	case PeriodMonthly:
		return time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC), nil
	case PeriodAllTime:
		return time.Time{}, nil
	default:
		return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidPeriod, period)
	}
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return DefaultLimit
	}
	if limit > MaxLimit {
		return MaxLimit
	}
	return limit
}

// GetLeaderboard returns the top ideologies for period, at most limit of them.
func (s *Service) GetLeaderboard(ctx context.Context, period string, limit int) (*Response, error) {
	limit = clampLimit(limit)

	return s.cache.LoadLeaderboard(period, limit, func() (*Response, error) {
		full, err := s.rank(ctx, period)
		if err != nil {
			return nil, err
		}
		if len(full.Entries) > limit {
			full.Entries = full.Entries[:limit]
		}
		return full, nil
	})
}

// rank computes the complete ranking for period.
func (s *Service) rank(ctx context.Context, period string) (*Response, error) {
	now := time.Now().UTC()
	start, err := PeriodStart(period, now)
	if err != nil {
		return nil, err
	}

	// Stored timestamps are UTC text, so the bound compares lexically.
	rows, err := s.db.QueryContext(ctx, `
		SELECT m.ideology_id, i.name, COUNT(*) AS users
		FROM ideology_per_user m
		JOIN ideologies i ON i.id = m.ideology_id
		WHERE m.seq IN (SELECT MAX(seq) FROM ideology_per_user GROUP BY user_id)
		  AND m.created_at >= ?
		GROUP BY m.ideology_id, i.name
		ORDER BY users DESC, m.ideology_id ASC
	`, start)
	if err != nil {
		return nil, fmt.Errorf("failed to query leaderboard: %w", err)
	}
	defer rows.Close()

	response := &Response{
		Entries:     []Entry{},
		Period:      period,
		GeneratedAt: now,
	}
	if !start.IsZero() {
		response.PeriodStart = &start
	}

	for rows.Next() {
		var entry Entry
		if err := rows.Scan(&entry.IdeologyID, &entry.Name, &entry.Users); err != nil {
			return nil, fmt.Errorf("failed to scan leaderboard entry: %w", err)
		}
		entry.Rank = len(response.Entries) + 1
		response.Total += entry.Users
		response.Entries = append(response.Entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate leaderboard: %w", err)
	}

	for i := range response.Entries {
		share := float64(response.Entries[i].Users) / float64(response.Total) * 100
		response.Entries[i].Share = math.Round(share*10) / 10
	}

	slog.Debug("Leaderboard computed", "period", period, "ideologies", len(response.Entries), "users", response.Total)
	return response, nil
}

// GetUserRank places the user's most recent match on the period's leaderboard.
// It returns database.ErrNotFound when the user never matched and
// ErrNotRanked when the latest match falls before the period. A cached rank
// is reused only while it still describes the latest match.
func (s *Service) GetUserRank(ctx context.Context, userID, period string) (*UserRank, error) {
	start, err := PeriodStart(period, time.Now())
	if err != nil {
		return nil, err
	}

	latest, err := s.repo.LatestIdeologyMatch(ctx, userID)
	if err != nil {
		return nil, err
	}
	if latest.CreatedAt.Before(start) {
		return nil, ErrNotRanked
	}

	if cached, found := s.cache.GetUserRank(userID, period); found &&
		cached.IdeologyID == latest.IdeologyID && cached.MatchedAt.Equal(latest.CreatedAt) {
		return cached, nil
	}

	board, err := s.GetLeaderboard(ctx, period, MaxLimit)
	if err != nil {
		return nil, err
	}
	if board.GeneratedAt.Before(latest.CreatedAt) {
		// The cached board predates this match.
		if board, err = s.rank(ctx, period); err != nil {
			return nil, err
		}
	}

	for _, entry := range board.Entries {
		if entry.IdeologyID != latest.IdeologyID {
			continue
		}
		rank := &UserRank{
			Entry:     entry,
			Period:    period,
			Total:     board.Total,
			Distance:  latest.Distance,
			MatchedAt: latest.CreatedAt,
		}
		s.cache.SetUserRank(userID, period, rank)
		return rank, nil
	}
	return nil, ErrNotRanked
}

// Invalidate drops every cached ranking.
func (s *Service) Invalidate() {
	s.cache.InvalidateAll()
}

// GetCacheStats returns leaderboard cache statistics
func (s *Service) GetCacheStats() map[string]interface{} {
	return s.cache.GetStats()
}

// WarmCache precomputes the popular leaderboards.
func (s *Service) WarmCache(ctx context.Context) {
	s.cache.WarmCache(ctx, s)
}

// StartAutoRefresh recomputes the popular leaderboards every interval until
// ctx is done.
func (s *Service) StartAutoRefresh(ctx context.Context, interval time.Duration) {
	s.cache.AutoRefresh(ctx, s, interval)
}
