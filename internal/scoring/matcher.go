package scoring

import (
	"math"
	"math/rand"
	"sort"
	"sync"
)

// Distance is the canonical metric between two score vectors: the mean
// absolute difference across the four axes. Every ideology match uses it.
func Distance(a, b AxisScoreVector) float64 {
	total := 0.0
	for _, axis := range Axes {
		total += math.Abs(a.Get(axis) - b.Get(axis))
	}
	return total / float64(len(Axes))
}

// IdeologyMatch is the winning catalog entry and its distance.
type IdeologyMatch struct {
	Ideology IdeologyCatalogEntry `json:"ideology"`
	Distance float64              `json:"distance"`
}

// MatchIdeology returns the catalog entry closest to scores. Candidates are
// ordered by ascending id before the scan and ties keep the first entry, so
// the result does not depend on the order the caller loaded the catalog in.
func MatchIdeology(scores AxisScoreVector, catalog []IdeologyCatalogEntry) (IdeologyMatch, error) {
	if len(catalog) == 0 {
		return IdeologyMatch{}, &EmptyCatalogError{}
	}

	ordered := make([]IdeologyCatalogEntry, len(catalog))
	copy(ordered, catalog)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].ID < ordered[j].ID })

	best := IdeologyMatch{Ideology: ordered[0], Distance: Distance(scores, ordered[0].ScoreVector)}
	for _, candidate := range ordered[1:] {
		d := Distance(scores, candidate.ScoreVector)
		if d < best.Distance {
			best = IdeologyMatch{Ideology: candidate, Distance: d}
		}
	}
	return best, nil
}

// FigureMatch is a selected public figure. Substituted is set when nobody in
// the catalog shares the ideology and an unrelated figure was used instead.
type FigureMatch struct {
	Figure      PublicFigureCatalogEntry `json:"figure"`
	Substituted bool                     `json:"substituted"`
}

// Picker chooses an index in [0, n). *rand.Rand satisfies it.
type Picker interface {
	Intn(n int) int
}

// LockedPicker makes a *rand.Rand safe for concurrent requests.
type LockedPicker struct {
	mu  sync.Mutex
	rnd *rand.Rand
}

// NewLockedPicker seeds a concurrency-safe picker.
func NewLockedPicker(seed int64) *LockedPicker {
	return &LockedPicker{rnd: rand.New(rand.NewSource(seed))}
}

func (p *LockedPicker) Intn(n int) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.rnd.Intn(n)
}

// MatchPublicFigure picks uniformly among figures sharing ideologyID. With no
// such figure it falls back to the first figure of the catalog (by id) and
// marks the result substituted. Only an empty catalog is an error.
func MatchPublicFigure(ideologyID int64, catalog []PublicFigureCatalogEntry, picker Picker) (FigureMatch, error) {
	if len(catalog) == 0 {
		return FigureMatch{}, &NoPublicFiguresError{}
	}

	var candidates []PublicFigureCatalogEntry
	for _, f := range catalog {
		if f.IdeologyID == ideologyID {
			candidates = append(candidates, f)
		}
	}
	if len(candidates) > 0 {
		return FigureMatch{Figure: candidates[picker.Intn(len(candidates))]}, nil
	}

	fallback := catalog[0]
	for _, f := range catalog[1:] {
		if f.ID < fallback.ID {
			fallback = f
		}
	}
	return FigureMatch{Figure: fallback, Substituted: true}, nil
}
