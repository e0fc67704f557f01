// Package insights runs a scoring pass for a user and keeps its results:
// per-axis insight snapshots and the append-only ideology history.
package insights

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"

	"github.com/ZanzyTHEbar/ideoscope/internal/catalog"
	"github.com/ZanzyTHEbar/ideoscope/internal/database"
	"github.com/ZanzyTHEbar/ideoscope/internal/monitoring"
	"github.com/ZanzyTHEbar/ideoscope/internal/scoring"
)

// ErrUnknownTest is returned for a test with no questions.
var ErrUnknownTest = errors.New("test not found")

// Store is the persistence gateway used by a scoring run.
type Store interface {
	ListQuestions(ctx context.Context, testID int64) ([]scoring.Question, error)
	GetProgress(ctx context.Context, userID string, testID int64) (*database.TestProgress, error)
	CompleteProgress(ctx context.Context, userID string, testID int64, score scoring.AxisScoreVector) error
	ListInsights(ctx context.Context, userID string, testID int64) ([]database.InsightRecord, error)
	PersistInsights(ctx context.Context, userID string, testID int64, records []database.InsightRecord, replace bool) error
	AppendIdeologyMatch(ctx context.Context, userID string, testID, ideologyID int64, distance float64) (int64, error)
	LatestIdeologyMatch(ctx context.Context, userID string) (*database.IdeologyRecord, error)
}

// Catalog provides the reference data snapshot.
type Catalog interface {
	Snapshot(ctx context.Context) (*catalog.Snapshot, error)
}

// Result is the outcome of a scoring run.
type Result struct {
	TestID   int64                    `json:"test_id"`
	Scores   *scoring.AxisScoreVector `json:"scores,omitempty"`
	Insights []database.InsightRecord `json:"insights"`
	Ideology *IdeologyResult          `json:"ideology,omitempty"`
	Figure   *scoring.FigureMatch     `json:"public_figure,omitempty"`
	// Recomputed is false when existing insights were returned untouched.
	Recomputed bool `json:"recomputed"`
	// IdeologyError is set when insights were stored but matching failed.
	IdeologyError string `json:"ideology_error,omitempty"`
}

// IdeologyResult is a matched ideology and its history sequence id.
type IdeologyResult struct {
	SequenceID int64   `json:"sequence_id"`
	ID         int64   `json:"id"`
	Name       string  `json:"name"`
	Distance   float64 `json:"distance"`
}

// Service orchestrates scoring runs.
type Service struct {
	store   Store
	catalog Catalog
	engine  *scoring.Engine
	logger  *monitoring.Logger
	metrics *monitoring.Metrics

	// non-forced runs per user and test, so two first submissions insert once
	firstRuns singleflight.Group
}

// NewService creates a scoring service.
func NewService(store Store, cat Catalog, engine *scoring.Engine, logger *monitoring.Logger, metrics *monitoring.Metrics) *Service {
	return &Service{
		store:   store,
		catalog: cat,
		engine:  engine,
		logger:  logger,
		metrics: metrics,
	}
}

// Run scores the user's saved answers for testID.
//
// Without force an existing snapshot is returned as is. Otherwise answers are
// aggregated and classified, and only a fully classified vector is written.
// Ideology matching happens after the insights are stored; its failure is
// reported in Result.IdeologyError and does not undo the insights.
// Concurrent non-forced runs for the same user and test share one pass.
func (s *Service) Run(ctx context.Context, userID string, testID int64, force bool) (result *Result, err error) {
	start := time.Now()
	ctx, span := monitoring.StartSpan(ctx, "insights.Run",
		attribute.String("user.id", userID),
		attribute.Int64("test.id", testID),
		attribute.Bool("force", force),
	)
	defer func() {
		if err != nil {
			s.metrics.IncrementScoringFailure()
		}
		monitoring.EndSpan(span, err)
	}()

	if force {
		return s.run(ctx, userID, testID, true, start)
	}

	key := fmt.Sprintf("%s/%d", userID, testID)
	v, err, shared := s.firstRuns.Do(key, func() (any, error) {
		existing, err := s.store.ListInsights(ctx, userID, testID)
		if err != nil {
			return nil, err
		}
		if len(existing) > 0 {
			span.SetAttributes(attribute.Bool("cached", true))
			return &Result{TestID: testID, Insights: existing}, nil
		}
		return s.run(ctx, userID, testID, false, start)
	})
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.Bool("shared", shared))
	return v.(*Result), nil
}

func (s *Service) run(ctx context.Context, userID string, testID int64, force bool, start time.Time) (*Result, error) {
	questions, err := s.store.ListQuestions(ctx, testID)
	if err != nil {
		return nil, err
	}
	if len(questions) == 0 {
		return nil, fmt.Errorf("%w: %d", ErrUnknownTest, testID)
	}

	responses := map[int64]float64{}
	progress, err := s.store.GetProgress(ctx, userID, testID)
	switch {
	case errors.Is(err, database.ErrNotFound):
		progress = nil
	case err != nil:
		return nil, err
	default:
		responses = progress.Answers
	}

	snap, err := s.catalog.Snapshot(ctx)
	if err != nil {
		return nil, err
	}

	scores, err := s.engine.AggregateScores(scoring.BuildAnswers(questions, responses))
	if err != nil {
		return nil, err
	}
	classified, err := s.engine.Classify(scores, snap.Insights)
	if err != nil {
		return nil, err
	}

	records := make([]database.InsightRecord, len(classified))
	for i, in := range classified {
		records[i] = database.InsightRecordFrom(userID, testID, in)
		if cat, ok := snap.Category(in.Category); ok {
			records[i].CategoryID = cat.ID
		}
	}

	if err := s.store.PersistInsights(ctx, userID, testID, records, force); err != nil {
		return nil, err
	}
	if progress != nil {
		if err := s.store.CompleteProgress(ctx, userID, testID, scores); err != nil {
			return nil, err
		}
	}
	s.metrics.IncrementScoringRun()

	result := &Result{
		TestID:     testID,
		Scores:     &scores,
		Insights:   records,
		Recomputed: true,
	}

	ideology, err := s.matchAndRecord(ctx, userID, testID, scores, snap)
	if err != nil {
		s.logger.Error("Ideology match failed after insights were stored",
			"user_id", userID, "test_id", testID, "error", err)
		result.IdeologyError = err.Error()
		trace.SpanFromContext(ctx).SetAttributes(attribute.String("ideology.error", err.Error()))
		return result, nil
	}
	result.Ideology = ideology

	if fig, err := s.engine.MatchPublicFigure(ideology.ID, snap.Figures); err == nil {
		result.Figure = &fig
	}

	s.logger.ScoringLogger(userID, testID, ideology.ID, time.Since(start), force)
	return result, nil
}

func (s *Service) matchAndRecord(ctx context.Context, userID string, testID int64, scores scoring.AxisScoreVector, snap *catalog.Snapshot) (*IdeologyResult, error) {
	match, err := s.engine.MatchIdeology(scores, snap.Ideologies)
	if err != nil {
		return nil, err
	}
	seq, err := s.store.AppendIdeologyMatch(ctx, userID, testID, match.Ideology.ID, match.Distance)
	if err != nil {
		return nil, err
	}
	s.metrics.IncrementIdeologyMatch()
	return &IdeologyResult{
		SequenceID: seq,
		ID:         match.Ideology.ID,
		Name:       match.Ideology.Name,
		Distance:   match.Distance,
	}, nil
}

// MatchScores matches directly submitted scores and appends the result to
// the user's history.
func (s *Service) MatchScores(ctx context.Context, userID string, input scoring.ScoreInput) (*IdeologyResult, error) {
	ctx, span := monitoring.StartSpan(ctx, "insights.MatchScores", attribute.String("user.id", userID))

	scores, err := input.Vector()
	if err != nil {
		monitoring.EndSpan(span, err)
		return nil, err
	}
	snap, err := s.catalog.Snapshot(ctx)
	if err != nil {
		monitoring.EndSpan(span, err)
		return nil, err
	}
	res, err := s.matchAndRecord(ctx, userID, 0, scores, snap)
	monitoring.EndSpan(span, err)
	return res, err
}

// LatestIdeology returns the most recent entry of the user's history.
func (s *Service) LatestIdeology(ctx context.Context, userID string) (*database.IdeologyRecord, error) {
	return s.store.LatestIdeologyMatch(ctx, userID)
}

// PublicFigure picks a figure for the user's latest ideology.
func (s *Service) PublicFigure(ctx context.Context, userID string) (*scoring.FigureMatch, error) {
	latest, err := s.store.LatestIdeologyMatch(ctx, userID)
	if err != nil {
		return nil, err
	}
	snap, err := s.catalog.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	fig, err := s.engine.MatchPublicFigure(latest.IdeologyID, snap.Figures)
	if err != nil {
		return nil, err
	}
	return &fig, nil
}
