package privacy

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ZanzyTHEbar/ideoscope/internal/database"
)

func setupService(t *testing.T, retentionDays int) (*Service, *database.DB, *database.Repository) {
	t.Helper()

	db, err := database.NewDB(database.Config{DataDir: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	repo := database.NewRepository(db)
	_, err = repo.SeedIfEmpty(context.Background())
	require.NoError(t, err)

	return NewService(db, repo, retentionDays), db, repo
}

func backdate(t *testing.T, db *database.DB, userID string, age time.Duration) {
	t.Helper()
	_, err := db.Exec(`UPDATE users SET created_at = ? WHERE id = ?`, time.Now().UTC().Add(-age), userID)
	require.NoError(t, err)
}

func TestAnonymizeData(t *testing.T) {
	a := AnonymizeData("127.0.0.1")
	assert.Len(t, a, 64)
	assert.Equal(t, a, AnonymizeData("127.0.0.1"))
	assert.NotEqual(t, a, AnonymizeData("127.0.0.2"))
}

func TestExportAndDeleteUserData(t *testing.T) {
	ctx := context.Background()
	svc, _, repo := setupService(t, 30)

	user, err := repo.CreateUser(ctx, "203.0.113.9", "go-test")
	require.NoError(t, err)

	_, err = repo.SaveProgress(ctx, user.ID, 1, map[int64]float64{1: 1, 2: 0.5})
	require.NoError(t, err)
	_, err = repo.AppendIdeologyMatch(ctx, user.ID, 1, 8, 0)
	require.NoError(t, err)
	_, err = repo.CreatePayment(ctx, user.ID, "pi_123", "usd", "succeeded", "subscription", 500)
	require.NoError(t, err)

	export, err := svc.ExportUserData(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, user.ID, export.User.ID)
	require.Len(t, export.Progress, 1)
	assert.Equal(t, 0.5, export.Progress[0].Answers[2])
	require.Len(t, export.Ideologies, 1)
	assert.Equal(t, "Centrism", export.Ideologies[0].IdeologyName)
	require.Len(t, export.Payments, 1)
	assert.Equal(t, int64(500), export.Payments[0].Amount)
	assert.Equal(t, 30, export.Retention["inactive_session_retention_days"])

	res, err := svc.DeleteUserData(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), res.Progress)
	assert.Equal(t, int64(1), res.Ideologies)
	assert.True(t, res.Anonymized)

	after, err := svc.ExportUserData(ctx, user.ID)
	require.NoError(t, err)
	assert.Empty(t, after.Progress)
	assert.Empty(t, after.Ideologies)
	assert.Len(t, after.Payments, 1, "payments are kept")

	stored, err := repo.GetUser(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, AnonymizeData(user.ID), stored.IPAddress)
	assert.Empty(t, stored.UserAgent)

	_, err = svc.DeleteUserData(ctx, "no-such-user")
	assert.ErrorIs(t, err, database.ErrNotFound)
}

func TestCleanupInactive(t *testing.T) {
	ctx := context.Background()
	svc, db, repo := setupService(t, 30)
	old := 45 * 24 * time.Hour

	abandoned, err := repo.CreateUser(ctx, "198.51.100.1", "go-test")
	require.NoError(t, err)
	_, err = repo.SaveProgress(ctx, abandoned.ID, 1, map[int64]float64{1: 1})
	require.NoError(t, err)
	backdate(t, db, abandoned.ID, old)

	withResults, err := repo.CreateUser(ctx, "198.51.100.2", "go-test")
	require.NoError(t, err)
	_, err = repo.AppendIdeologyMatch(ctx, withResults.ID, 0, 4, 1)
	require.NoError(t, err)
	backdate(t, db, withResults.ID, old)

	recent, err := repo.CreateUser(ctx, "198.51.100.3", "go-test")
	require.NoError(t, err)

	removed, err := svc.CleanupInactive(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), removed)

	_, err = repo.GetUser(ctx, abandoned.ID)
	assert.ErrorIs(t, err, database.ErrNotFound)
	_, err = repo.GetProgress(ctx, abandoned.ID, 1)
	assert.ErrorIs(t, err, database.ErrNotFound)

	for _, id := range []string{withResults.ID, recent.ID} {
		_, err := repo.GetUser(ctx, id)
		assert.NoError(t, err)
	}

	removed, err = svc.CleanupInactive(ctx)
	require.NoError(t, err)
	assert.Zero(t, removed)
}

func TestNewServiceDefaultsRetention(t *testing.T) {
	svc := NewService(nil, nil, 0)
	assert.Equal(t, DefaultRetentionDays, svc.RetentionDays())
}
