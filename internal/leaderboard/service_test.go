package leaderboard

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ZanzyTHEbar/ideoscope/internal/database"
)

const (
	centrism = int64(8)
	marxism  = int64(4)
	neolib   = int64(12)
)

func setupService(t *testing.T) (*Service, *database.DB, *database.Repository) {
	t.Helper()

	db, err := database.NewDB(database.Config{DataDir: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	repo := database.NewRepository(db)
	_, err = repo.SeedIfEmpty(context.Background())
	require.NoError(t, err)

	svc := NewService(db, repo, time.Minute)
	t.Cleanup(svc.Close)
	return svc, db, repo
}

// match records a match for a fresh user and returns the user id.
func match(t *testing.T, repo *database.Repository, ideologies ...int64) string {
	t.Helper()
	ctx := context.Background()

	user, err := repo.CreateUser(ctx, "198.51.100.7", "go-test")
	require.NoError(t, err)
	for _, id := range ideologies {
		_, err := repo.AppendIdeologyMatch(ctx, user.ID, 1, id, 1.5)
		require.NoError(t, err)
	}
	return user.ID
}

func age(t *testing.T, db *database.DB, userID string, by time.Duration) {
	t.Helper()
	_, err := db.Exec(`UPDATE ideology_per_user SET created_at = ? WHERE user_id = ?`,
		time.Now().UTC().Add(-by), userID)
	require.NoError(t, err)
}

func TestPeriodStart(t *testing.T) {
	// Thursday.
	now := time.Date(2026, time.October, 15, 13, 45, 0, 0, time.UTC)

	tests := []struct {
		period string
		want   time.Time
	}{
		{PeriodDaily, time.Date(2026, time.October, 15, 0, 0, 0, 0, time.UTC)},
		{PeriodWeekly, time.Date(2026, time.October, 12, 0, 0, 0, 0, time.UTC)},
		{PeriodMonthly, time.Date(2026, time.October, 1, 0, 0, 0, 0, time.UTC)},
		{PeriodAllTime, time.Time{}},
	}
	for _, tt := range tests {
		t.Run(tt.period, func(t *testing.T) {
			got, err := PeriodStart(tt.period, now)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	t.Run("sunday belongs to the week that started monday", func(t *testing.T) {
		sunday := time.Date(2026, time.October, 18, 23, 0, 0, 0, time.UTC)
		got, err := PeriodStart(PeriodWeekly, sunday)
		require.NoError(t, err)
		assert.Equal(t, time.Date(2026, time.October, 12, 0, 0, 0, 0, time.UTC), got)
	})

	t.Run("unknown period", func(t *testing.T) {
		_, err := PeriodStart("yearly", now)
		assert.True(t, errors.Is(err, ErrInvalidPeriod))
	})
}

func TestGetLeaderboard(t *testing.T) {
	ctx := context.Background()
	svc, db, repo := setupService(t)

	match(t, repo, centrism)
	match(t, repo, centrism)
	match(t, repo, marxism)
	// Only the latest match counts.
	match(t, repo, centrism, neolib)
	old := match(t, repo, marxism)
	age(t, db, old, 60*24*time.Hour)

	t.Run("all time counts every user once", func(t *testing.T) {
		board, err := svc.GetLeaderboard(ctx, PeriodAllTime, 0)
		require.NoError(t, err)

		assert.Equal(t, 5, board.Total)
		assert.Nil(t, board.PeriodStart)
		require.Len(t, board.Entries, 3)

		// Ties break on ideology id.
		assert.Equal(t, Entry{Rank: 1, IdeologyID: marxism, Name: "Marxism", Users: 2, Share: 40}, board.Entries[0])
		assert.Equal(t, Entry{Rank: 2, IdeologyID: centrism, Name: "Centrism", Users: 2, Share: 40}, board.Entries[1])
		assert.Equal(t, Entry{Rank: 3, IdeologyID: neolib, Name: "Neoliberalism", Users: 1, Share: 20}, board.Entries[2])
	})

	t.Run("daily excludes older matches", func(t *testing.T) {
		board, err := svc.GetLeaderboard(ctx, PeriodDaily, 10)
		require.NoError(t, err)

		assert.Equal(t, 4, board.Total)
		require.NotNil(t, board.PeriodStart)
		require.Len(t, board.Entries, 3)
		assert.Equal(t, 1, board.Entries[1].Users)
		assert.Equal(t, 25.0, board.Entries[1].Share)
	})

	t.Run("limit truncates entries but not total", func(t *testing.T) {
		board, err := svc.GetLeaderboard(ctx, PeriodAllTime, 1)
		require.NoError(t, err)
		assert.Len(t, board.Entries, 1)
		assert.Equal(t, 5, board.Total)
	})

	t.Run("invalid period", func(t *testing.T) {
		_, err := svc.GetLeaderboard(ctx, "hourly", 10)
		assert.ErrorIs(t, err, ErrInvalidPeriod)
	})
}

func TestGetLeaderboardEmpty(t *testing.T) {
	svc, _, _ := setupService(t)

	board, err := svc.GetLeaderboard(context.Background(), PeriodWeekly, 10)
	require.NoError(t, err)
	assert.Empty(t, board.Entries)
	assert.Equal(t, 0, board.Total)
}

func TestGetLeaderboardIsCached(t *testing.T) {
	ctx := context.Background()
	svc, _, repo := setupService(t)

	match(t, repo, centrism)
	first, err := svc.GetLeaderboard(ctx, PeriodAllTime, 10)
	require.NoError(t, err)
	assert.Equal(t, 1, first.Total)

	match(t, repo, centrism)
	cached, err := svc.GetLeaderboard(ctx, PeriodAllTime, 10)
	require.NoError(t, err)
	assert.Equal(t, 1, cached.Total)

	svc.WarmCache(ctx)
	warmed, err := svc.GetLeaderboard(ctx, PeriodAllTime, 10)
	require.NoError(t, err)
	assert.Equal(t, 2, warmed.Total)

	match(t, repo, marxism)
	svc.Invalidate()
	fresh, err := svc.GetLeaderboard(ctx, PeriodAllTime, 10)
	require.NoError(t, err)
	assert.Equal(t, 3, fresh.Total)

	stats := svc.GetCacheStats()
	assert.Contains(t, stats, "boards")
	assert.Contains(t, stats, "ranks")
}

func TestGetUserRank(t *testing.T) {
	ctx := context.Background()
	svc, db, repo := setupService(t)

	match(t, repo, centrism)
	user := match(t, repo, marxism)
	match(t, repo, marxism)

	rank, err := svc.GetUserRank(ctx, user, PeriodWeekly)
	require.NoError(t, err)
	assert.Equal(t, 1, rank.Rank)
	assert.Equal(t, marxism, rank.IdeologyID)
	assert.Equal(t, 2, rank.Users)
	assert.Equal(t, 3, rank.Total)
	assert.Equal(t, 1.5, rank.Distance)

	t.Run("never matched", func(t *testing.T) {
		_, err := svc.GetUserRank(ctx, "unknown-user", PeriodAllTime)
		assert.ErrorIs(t, err, database.ErrNotFound)
	})

	t.Run("match outside period", func(t *testing.T) {
		stale := match(t, repo, centrism)
		age(t, db, stale, 40*24*time.Hour)

		_, err := svc.GetUserRank(ctx, stale, PeriodMonthly)
		assert.ErrorIs(t, err, ErrNotRanked)
	})

	t.Run("match newer than the cached board", func(t *testing.T) {
		_, err := svc.GetLeaderboard(ctx, PeriodAllTime, MaxLimit)
		require.NoError(t, err)

		late := match(t, repo, neolib)
		rank, err := svc.GetUserRank(ctx, late, PeriodAllTime)
		require.NoError(t, err)
		assert.Equal(t, neolib, rank.IdeologyID)
	})

	t.Run("rematch replaces the cached rank", func(t *testing.T) {
		mover := match(t, repo, marxism)
		rank, err := svc.GetUserRank(ctx, mover, PeriodAllTime)
		require.NoError(t, err)
		require.Equal(t, marxism, rank.IdeologyID)

		_, err = repo.AppendIdeologyMatch(ctx, mover, 1, neolib, 0.5)
		require.NoError(t, err)

		rank, err = svc.GetUserRank(ctx, mover, PeriodAllTime)
		require.NoError(t, err)
		assert.Equal(t, neolib, rank.IdeologyID)
		assert.Equal(t, 0.5, rank.Distance)
	})
}

func TestAutoRefreshStopsWithContext(t *testing.T) {
	svc, _, _ := setupService(t)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		svc.StartAutoRefresh(ctx, 10*time.Millisecond)
		close(done)
	}()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("auto refresh did not stop")
	}

	_, found := svc.cache.GetLeaderboard(PeriodAllTime, DefaultLimit)
	assert.True(t, found)
}
