// Package catalog serves an immutable, cached snapshot of the reference data
// a scoring run reads: categories, insights, ideologies and public figures.
package catalog

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ZanzyTHEbar/ideoscope/internal/cache"
	"github.com/ZanzyTHEbar/ideoscope/internal/database"
	"github.com/ZanzyTHEbar/ideoscope/internal/scoring"
)

// Source is the read side of the persistence gateway the snapshot is built from.
type Source interface {
	ListTests(ctx context.Context) ([]database.Test, error)
	ListCategories(ctx context.Context) ([]database.Category, error)
	ListInsightCatalog(ctx context.Context) ([]scoring.InsightCatalogEntry, error)
	ListIdeologies(ctx context.Context) ([]scoring.IdeologyCatalogEntry, error)
	ListPublicFigures(ctx context.Context) ([]scoring.PublicFigureCatalogEntry, error)
}

// Snapshot is a consistent read of the catalog. Callers must not mutate it.
type Snapshot struct {
	Tests      []database.Test
	Categories []database.Category
	Insights   []scoring.InsightCatalogEntry
	Ideologies []scoring.IdeologyCatalogEntry
	Figures    []scoring.PublicFigureCatalogEntry
	LoadedAt   time.Time
}

// Category returns the category record for axis.
func (s *Snapshot) Category(axis scoring.Axis) (database.Category, bool) {
	for _, c := range s.Categories {
		if c.Axis == axis {
			return c, true
		}
	}
	return database.Category{}, false
}

// Ideology returns the ideology with id.
func (s *Snapshot) Ideology(id int64) (scoring.IdeologyCatalogEntry, bool) {
	for _, i := range s.Ideologies {
		if i.ID == id {
			return i, true
		}
	}
	return scoring.IdeologyCatalogEntry{}, false
}

// Test returns the test with id.
func (s *Snapshot) Test(id int64) (database.Test, bool) {
	for _, t := range s.Tests {
		if t.ID == id {
			return t, true
		}
	}
	return database.Test{}, false
}

const snapshotKey = "catalog:snapshot"

// Store loads snapshots from a Source and caches them for ttl.
type Store struct {
	source Source
	cache  *cache.Cache[*Snapshot]

	// loadMu collapses concurrent misses into one load.
	loadMu sync.Mutex
}

// NewStore creates a store. A ttl <= 0 defaults to five minutes.
func NewStore(source Source, ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &Store{
		source: source,
		cache:  cache.NewCache[*Snapshot](ttl),
	}
}

// Snapshot returns the cached snapshot, loading it on a miss.
func (s *Store) Snapshot(ctx context.Context) (*Snapshot, error) {
	if snap, ok := s.cache.Get(snapshotKey); ok {
		return snap, nil
	}

	s.loadMu.Lock()
	defer s.loadMu.Unlock()

	if snap, ok := s.cache.Get(snapshotKey); ok {
		return snap, nil
	}

	snap, err := Load(ctx, s.source)
	if err != nil {
		return nil, err
	}
	s.cache.Set(snapshotKey, snap)
	return snap, nil
}

// Invalidate drops the cached snapshot so the next read reloads it.
func (s *Store) Invalidate() {
	s.cache.Delete(snapshotKey)
}

// Close stops the cache janitor.
func (s *Store) Close() {
	s.cache.Close()
}

// Load reads every catalog table concurrently.
func Load(ctx context.Context, source Source) (*Snapshot, error) {
	snap := &Snapshot{}
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		tests, err := source.ListTests(gctx)
		if err != nil {
			return fmt.Errorf("failed to load tests: %w", err)
		}
		snap.Tests = tests
		return nil
	})
	g.Go(func() error {
		categories, err := source.ListCategories(gctx)
		if err != nil {
			return fmt.Errorf("failed to load categories: %w", err)
		}
		snap.Categories = categories
		return nil
	})
	g.Go(func() error {
		insights, err := source.ListInsightCatalog(gctx)
		if err != nil {
			return fmt.Errorf("failed to load insight catalog: %w", err)
		}
		snap.Insights = insights
		return nil
	})
	g.Go(func() error {
		ideologies, err := source.ListIdeologies(gctx)
		if err != nil {
			return fmt.Errorf("failed to load ideologies: %w", err)
		}
		snap.Ideologies = ideologies
		return nil
	})
	g.Go(func() error {
		figures, err := source.ListPublicFigures(gctx)
		if err != nil {
			return fmt.Errorf("failed to load public figures: %w", err)
		}
		snap.Figures = figures
		return nil
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}
	snap.LoadedAt = time.Now()
	return snap, nil
}
