package insights

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ZanzyTHEbar/ideoscope/internal/catalog"
	"github.com/ZanzyTHEbar/ideoscope/internal/database"
	"github.com/ZanzyTHEbar/ideoscope/internal/monitoring"
	"github.com/ZanzyTHEbar/ideoscope/internal/scoring"
)

type fixedPicker struct{ idx int }

func (p fixedPicker) Intn(n int) int { return p.idx % n }

type stubCatalog struct {
	snap *catalog.Snapshot
	err  error
}

func (s stubCatalog) Snapshot(ctx context.Context) (*catalog.Snapshot, error) {
	return s.snap, s.err
}

type fixture struct {
	repo    *database.Repository
	store   *catalog.Store
	metrics *monitoring.Metrics
	userID  string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()

	db, err := database.NewDB(database.Config{DataDir: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	repo := database.NewRepository(db)
	_, err = repo.SeedIfEmpty(ctx)
	require.NoError(t, err)

	user, err := repo.CreateUser(ctx, "127.0.0.1", "go-test")
	require.NoError(t, err)

	store := catalog.NewStore(repo, time.Minute)
	t.Cleanup(store.Close)

	return &fixture{repo: repo, store: store, metrics: monitoring.NewMetrics(), userID: user.ID}
}

func (f *fixture) service(cat Catalog, policy scoring.MissingAnswerPolicy) *Service {
	engine := scoring.NewEngineWithPicker(scoring.Config{MissingAnswerPolicy: policy}, fixedPicker{})
	logger := monitoring.NewLoggerTo(io.Discard, slog.LevelDebug)
	return NewService(f.repo, cat, engine, logger, f.metrics)
}

func (f *fixture) answerAll(t *testing.T, response float64) {
	t.Helper()
	questions, err := f.repo.ListQuestions(context.Background(), 1)
	require.NoError(t, err)

	answers := make(map[int64]float64, len(questions))
	for _, q := range questions {
		answers[q.ID] = response
	}
	_, err = f.repo.SaveProgress(context.Background(), f.userID, 1, answers)
	require.NoError(t, err)
}

func TestRunNeutralAnswersMatchCentrism(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.answerAll(t, scoring.NeutralResponse)

	res, err := f.service(f.store, scoring.MissingAnswerReject).Run(ctx, f.userID, 1, false)
	require.NoError(t, err)

	assert.True(t, res.Recomputed)
	require.NotNil(t, res.Scores)
	assert.Equal(t, scoring.AxisScoreVector{Econ: 50, Dipl: 50, Govt: 50, Scty: 50}, *res.Scores)

	require.Len(t, res.Insights, 4)
	for i, rec := range res.Insights {
		assert.Equal(t, scoring.Axes[i], rec.Category)
		assert.Equal(t, scoring.BandCentrist, rec.Band)
		assert.Equal(t, 50, rec.Percentage)
		assert.NotZero(t, rec.CategoryID)
	}

	require.NotNil(t, res.Ideology)
	assert.Equal(t, int64(8), res.Ideology.ID)
	assert.Equal(t, 0.0, res.Ideology.Distance)
	assert.Empty(t, res.IdeologyError)

	require.NotNil(t, res.Figure)
	assert.Equal(t, int64(8), res.Figure.Figure.IdeologyID)
	assert.False(t, res.Figure.Substituted)

	progress, err := f.repo.GetProgress(ctx, f.userID, 1)
	require.NoError(t, err)
	assert.Equal(t, database.StatusCompleted, progress.Status)

	assert.Equal(t, int64(1), f.metrics.GetStats()["scoring_runs"])
	assert.Equal(t, int64(1), f.metrics.GetStats()["ideology_matches"])
}

func TestRunWithoutForceReturnsExisting(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.answerAll(t, scoring.NeutralResponse)
	svc := f.service(f.store, scoring.MissingAnswerReject)

	first, err := svc.Run(ctx, f.userID, 1, false)
	require.NoError(t, err)

	// Changing the answers has no effect until a forced recompute.
	f.answerAll(t, scoring.StronglyAgree)

	second, err := svc.Run(ctx, f.userID, 1, false)
	require.NoError(t, err)
	assert.False(t, second.Recomputed)
	assert.Nil(t, second.Ideology)
	require.Len(t, second.Insights, 4)
	for i := range first.Insights {
		assert.Equal(t, first.Insights[i].Band, second.Insights[i].Band)
	}

	n, err := f.repo.CountIdeologyMatches(ctx, f.userID)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestRunConcurrentFirstSubmissionsInsertOnce(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.answerAll(t, scoring.NeutralResponse)
	svc := f.service(f.store, scoring.MissingAnswerReject)

	const callers = 8
	var (
		wg    sync.WaitGroup
		ready = make(chan struct{})
		errs  = make([]error, callers)
	)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-ready
			_, errs[i] = svc.Run(ctx, f.userID, 1, false)
		}(i)
	}
	close(ready)
	wg.Wait()

	for _, err := range errs {
		require.NoError(t, err)
	}

	stored, err := f.repo.ListInsights(ctx, f.userID, 1)
	require.NoError(t, err)
	assert.Len(t, stored, 4)

	n, err := f.repo.CountIdeologyMatches(ctx, f.userID)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestRunForcedReplacesSnapshotAndAppendsHistory(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.answerAll(t, scoring.NeutralResponse)
	svc := f.service(f.store, scoring.MissingAnswerReject)

	first, err := svc.Run(ctx, f.userID, 1, false)
	require.NoError(t, err)

	f.answerAll(t, scoring.StronglyAgree)
	second, err := svc.Run(ctx, f.userID, 1, true)
	require.NoError(t, err)
	assert.True(t, second.Recomputed)
	assert.NotEqual(t, *first.Scores, *second.Scores)

	stored, err := f.repo.ListInsights(ctx, f.userID, 1)
	require.NoError(t, err)
	require.Len(t, stored, 4)
	for i, rec := range stored {
		assert.Equal(t, second.Insights[i].Percentage, rec.Percentage)
	}

	n, err := f.repo.CountIdeologyMatches(ctx, f.userID)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	latest, err := f.repo.LatestIdeologyMatch(ctx, f.userID)
	require.NoError(t, err)
	assert.Equal(t, second.Ideology.SequenceID, latest.SequenceID)
	assert.Greater(t, second.Ideology.SequenceID, first.Ideology.SequenceID)
}

func TestRunIncompleteAnswersWritesNothing(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	_, err := f.repo.SaveProgress(ctx, f.userID, 1, map[int64]float64{1: scoring.Agree})
	require.NoError(t, err)

	_, err = f.service(f.store, scoring.MissingAnswerReject).Run(ctx, f.userID, 1, true)
	require.Error(t, err)

	var incomplete *scoring.IncompleteAnswersError
	require.ErrorAs(t, err, &incomplete)
	assert.Len(t, incomplete.Missing, 15)

	stored, err := f.repo.ListInsights(ctx, f.userID, 1)
	require.NoError(t, err)
	assert.Empty(t, stored)

	n, err := f.repo.CountIdeologyMatches(ctx, f.userID)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Equal(t, int64(1), f.metrics.GetStats()["scoring_failures"])
}

func TestRunNeutralPolicyWithoutProgress(t *testing.T) {
	f := newFixture(t)

	res, err := f.service(f.store, scoring.MissingAnswerNeutral).Run(context.Background(), f.userID, 1, false)
	require.NoError(t, err)
	assert.Equal(t, scoring.AxisScoreVector{Econ: 50, Dipl: 50, Govt: 50, Scty: 50}, *res.Scores)
}

func TestRunUnknownTest(t *testing.T) {
	f := newFixture(t)

	_, err := f.service(f.store, scoring.MissingAnswerReject).Run(context.Background(), f.userID, 99, false)
	assert.ErrorIs(t, err, ErrUnknownTest)
}

func TestRunCatalogGapAbortsBeforeWrites(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.answerAll(t, scoring.NeutralResponse)

	snap, err := f.store.Snapshot(ctx)
	require.NoError(t, err)
	gap := *snap
	gap.Insights = nil
	for _, in := range snap.Insights {
		if in.Category != scoring.AxisGovt {
			gap.Insights = append(gap.Insights, in)
		}
	}

	_, err = f.service(stubCatalog{snap: &gap}, scoring.MissingAnswerReject).Run(ctx, f.userID, 1, true)
	var noMatch *scoring.NoMatchingInsightError
	require.ErrorAs(t, err, &noMatch)
	assert.Equal(t, scoring.AxisGovt, noMatch.Category)

	stored, err := f.repo.ListInsights(ctx, f.userID, 1)
	require.NoError(t, err)
	assert.Empty(t, stored)
}

func TestRunIdeologyFailureKeepsInsights(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.answerAll(t, scoring.NeutralResponse)

	snap, err := f.store.Snapshot(ctx)
	require.NoError(t, err)
	empty := *snap
	empty.Ideologies = nil

	res, err := f.service(stubCatalog{snap: &empty}, scoring.MissingAnswerReject).Run(ctx, f.userID, 1, false)
	require.NoError(t, err)
	assert.NotEmpty(t, res.IdeologyError)
	assert.Nil(t, res.Ideology)
	assert.Nil(t, res.Figure)

	stored, err := f.repo.ListInsights(ctx, f.userID, 1)
	require.NoError(t, err)
	assert.Len(t, stored, 4)
}

func TestRunCatalogUnavailable(t *testing.T) {
	f := newFixture(t)
	f.answerAll(t, scoring.NeutralResponse)

	_, err := f.service(stubCatalog{err: errors.New("locked")}, scoring.MissingAnswerReject).Run(context.Background(), f.userID, 1, false)
	assert.EqualError(t, err, "locked")
}

func TestMatchScores(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	svc := f.service(f.store, scoring.MissingAnswerReject)

	fifty := 50.0
	res, err := svc.MatchScores(ctx, f.userID, scoring.ScoreInput{Econ: &fifty, Dipl: &fifty, Govt: &fifty, Scty: &fifty})
	require.NoError(t, err)
	assert.Equal(t, int64(8), res.ID)
	assert.Equal(t, "Centrism", res.Name)

	latest, err := svc.LatestIdeology(ctx, f.userID)
	require.NoError(t, err)
	assert.Equal(t, res.SequenceID, latest.SequenceID)
	assert.Equal(t, "Centrism", latest.IdeologyName)

	t.Run("missing field", func(t *testing.T) {
		_, err := svc.MatchScores(ctx, f.userID, scoring.ScoreInput{Econ: &fifty})
		var invalid *scoring.InvalidScoresError
		require.ErrorAs(t, err, &invalid)
		assert.Contains(t, invalid.Fields, scoring.AxisDipl)
	})

	t.Run("out of range", func(t *testing.T) {
		high := 101.0
		_, err := svc.MatchScores(ctx, f.userID, scoring.ScoreInput{Econ: &high, Dipl: &fifty, Govt: &fifty, Scty: &fifty})
		var invalid *scoring.InvalidScoresError
		require.ErrorAs(t, err, &invalid)
	})
}

func TestPublicFigure(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	svc := f.service(f.store, scoring.MissingAnswerReject)

	_, err := svc.PublicFigure(ctx, f.userID)
	assert.ErrorIs(t, err, database.ErrNotFound)

	fifty := 50.0
	_, err = svc.MatchScores(ctx, f.userID, scoring.ScoreInput{Econ: &fifty, Dipl: &fifty, Govt: &fifty, Scty: &fifty})
	require.NoError(t, err)

	fig, err := svc.PublicFigure(ctx, f.userID)
	require.NoError(t, err)
	assert.Equal(t, int64(8), fig.Figure.IdeologyID)

	snap, err := f.store.Snapshot(ctx)
	require.NoError(t, err)
	noFigures := *snap
	noFigures.Figures = nil
	_, err = f.service(stubCatalog{snap: &noFigures}, scoring.MissingAnswerReject).PublicFigure(ctx, f.userID)
	var none *scoring.NoPublicFiguresError
	assert.ErrorAs(t, err, &none)
}
