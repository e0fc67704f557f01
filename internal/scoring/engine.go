package scoring

import "time"

// Config is the explicit configuration of an Engine. The engine never reads
// process environment.
type Config struct {
	MissingAnswerPolicy MissingAnswerPolicy
	// Seed for public figure selection. Zero seeds from the clock.
	Seed int64
}

// Engine bundles aggregation, classification and matching behind one
// configured value that is safe for concurrent use.
type Engine struct {
	aggregator *Aggregator
	picker     Picker
}

// NewEngine builds an engine from cfg.
func NewEngine(cfg Config) *Engine {
	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &Engine{
		aggregator: NewAggregator(cfg.MissingAnswerPolicy),
		picker:     NewLockedPicker(seed),
	}
}

// NewEngineWithPicker is NewEngine with a caller-supplied picker.
func NewEngineWithPicker(cfg Config, picker Picker) *Engine {
	e := NewEngine(cfg)
	e.picker = picker
	return e
}

// Policy returns the engine's missing-answer policy.
func (e *Engine) Policy() MissingAnswerPolicy {
	return e.aggregator.Policy()
}

func (e *Engine) AggregateScores(answers []AnsweredQuestion) (AxisScoreVector, error) {
	return e.aggregator.AggregateScores(answers)
}

func (e *Engine) Classify(v AxisScoreVector, catalog []InsightCatalogEntry) ([]AxisInsight, error) {
	return ClassifyVector(v, catalog)
}

func (e *Engine) MatchIdeology(v AxisScoreVector, catalog []IdeologyCatalogEntry) (IdeologyMatch, error) {
	return MatchIdeology(v, catalog)
}

func (e *Engine) MatchPublicFigure(ideologyID int64, catalog []PublicFigureCatalogEntry) (FigureMatch, error) {
	return MatchPublicFigure(ideologyID, catalog, e.picker)
}

// Evaluation is a full offline evaluation of a score vector.
type Evaluation struct {
	Scores   AxisScoreVector `json:"scores"`
	Insights []AxisInsight   `json:"insights"`
	Ideology IdeologyMatch   `json:"ideology"`
	Figure   *FigureMatch    `json:"figure,omitempty"`
}

// Evaluate classifies and matches v without persisting anything. A public
// figure failure leaves Figure nil and does not fail the evaluation.
func (e *Engine) Evaluate(v AxisScoreVector, insights []InsightCatalogEntry, ideologies []IdeologyCatalogEntry, figures []PublicFigureCatalogEntry) (*Evaluation, error) {
	if err := v.Validate(); err != nil {
		return nil, err
	}
	classified, err := e.Classify(v, insights)
	if err != nil {
		return nil, err
	}
	match, err := e.MatchIdeology(v, ideologies)
	if err != nil {
		return nil, err
	}
	out := &Evaluation{Scores: v, Insights: classified, Ideology: match}
	if fig, err := e.MatchPublicFigure(match.Ideology.ID, figures); err == nil {
		out.Figure = &fig
	}
	return out, nil
}
