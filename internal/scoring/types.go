package scoring

import (
	"fmt"
	"math"
)

// Axis identifies one of the four ideological dimensions.
type Axis string

const (
	AxisEcon Axis = "econ"
	AxisDipl Axis = "dipl"
	AxisGovt Axis = "govt"
	AxisScty Axis = "scty"
)

// Axes lists every axis in the canonical order used for output and storage.
var Axes = []Axis{AxisEcon, AxisDipl, AxisGovt, AxisScty}

// Valid reports whether a is one of the four known axes.
func (a Axis) Valid() bool {
	switch a {
	case AxisEcon, AxisDipl, AxisGovt, AxisScty:
		return true
	}
	return false
}

// ParseAxis accepts the short axis keys as well as the category names used by
// the question catalog (Economic, Diplomatic, Civil, Societal).
func ParseAxis(s string) (Axis, error) {
	switch s {
	case "econ", "Economic", "economic":
		return AxisEcon, nil
	case "dipl", "Diplomatic", "diplomatic":
		return AxisDipl, nil
	case "govt", "Civil", "civil", "Government", "government":
		return AxisGovt, nil
	case "scty", "Societal", "societal", "Society", "society":
		return AxisScty, nil
	}
	return "", fmt.Errorf("unknown axis %q", s)
}

// AxisScoreVector is a point in the four dimensional ideology space. Every
// field lies in [0, 100].
type AxisScoreVector struct {
	Econ float64 `json:"econ" yaml:"econ"`
	Dipl float64 `json:"dipl" yaml:"dipl"`
	Govt float64 `json:"govt" yaml:"govt"`
	Scty float64 `json:"scty" yaml:"scty"`
}

// Get returns the score for axis a.
func (v AxisScoreVector) Get(a Axis) float64 {
	switch a {
	case AxisEcon:
		return v.Econ
	case AxisDipl:
		return v.Dipl
	case AxisGovt:
		return v.Govt
	case AxisScty:
		return v.Scty
	}
	return math.NaN()
}

// With returns a copy of v with axis a set to score.
func (v AxisScoreVector) With(a Axis, score float64) AxisScoreVector {
	switch a {
	case AxisEcon:
		v.Econ = score
	case AxisDipl:
		v.Dipl = score
	case AxisGovt:
		v.Govt = score
	case AxisScty:
		v.Scty = score
	}
	return v
}

// Validate checks that every field is finite and inside [0, 100].
func (v AxisScoreVector) Validate() error {
	invalid := map[Axis]string{}
	for _, a := range Axes {
		s := v.Get(a)
		switch {
		case math.IsNaN(s) || math.IsInf(s, 0):
			invalid[a] = "must be a finite number"
		case s < MinScore || s > MaxScore:
			invalid[a] = fmt.Sprintf("must be between %d and %d", int(MinScore), int(MaxScore))
		}
	}
	if len(invalid) > 0 {
		return &InvalidScoresError{Fields: invalid}
	}
	return nil
}

// ScoreInput is the wire shape of a score vector. Pointer fields let callers
// tell a missing axis apart from an explicit zero.
type ScoreInput struct {
	Econ *float64 `json:"econ"`
	Dipl *float64 `json:"dipl"`
	Govt *float64 `json:"govt"`
	Scty *float64 `json:"scty"`
}

// Vector converts the input to a validated AxisScoreVector. Missing axes are
// rejected rather than defaulted to zero.
func (in ScoreInput) Vector() (AxisScoreVector, error) {
	fields := map[Axis]*float64{AxisEcon: in.Econ, AxisDipl: in.Dipl, AxisGovt: in.Govt, AxisScty: in.Scty}
	invalid := map[Axis]string{}
	var v AxisScoreVector
	for _, a := range Axes {
		p := fields[a]
		if p == nil {
			invalid[a] = "is required"
			continue
		}
		v = v.With(a, *p)
	}
	if len(invalid) > 0 {
		return AxisScoreVector{}, &InvalidScoresError{Fields: invalid}
	}
	if err := v.Validate(); err != nil {
		return AxisScoreVector{}, err
	}
	return v, nil
}

// Effect maps axes to the signed weight a question carries on them.
type Effect map[Axis]float64

// Question is a catalog question together with its axis effect.
type Question struct {
	ID        int64  `json:"id"`
	TestID    int64  `json:"test_id"`
	Text      string `json:"question"`
	Effect    Effect `json:"effect"`
	SortOrder int    `json:"sort_order"`
}

// AnsweredQuestion pairs a question's effect with the user's response
// strength. Answered is false for questions of the test the user skipped.
type AnsweredQuestion struct {
	QuestionID int64
	Effect     Effect
	Response   float64
	Answered   bool
}

// BuildAnswers joins the ordered questions of a test with the stored
// responses keyed by question id.
func BuildAnswers(questions []Question, responses map[int64]float64) []AnsweredQuestion {
	out := make([]AnsweredQuestion, 0, len(questions))
	for _, q := range questions {
		r, ok := responses[q.ID]
		out = append(out, AnsweredQuestion{
			QuestionID: q.ID,
			Effect:     q.Effect,
			Response:   r,
			Answered:   ok,
		})
	}
	return out
}

// Likert response strengths.
const (
	StronglyAgree    = 1.0
	Agree            = 0.5
	NeutralResponse  = 0.0
	Disagree         = -0.5
	StronglyDisagree = -1.0
)

var likertValues = map[string]float64{
	"strongly_agree":    StronglyAgree,
	"agree":             Agree,
	"neutral":           NeutralResponse,
	"disagree":          Disagree,
	"strongly_disagree": StronglyDisagree,
}

// ParseLikert converts a Likert option key into its response strength.
func ParseLikert(option string) (float64, error) {
	v, ok := likertValues[option]
	if !ok {
		return 0, fmt.Errorf("unknown likert option %q", option)
	}
	return v, nil
}

// InsightBand is the qualitative label attached to a single axis score.
type InsightBand string

const (
	BandCentrist InsightBand = "centrist"
	BandModerate InsightBand = "moderate"
	BandBalanced InsightBand = "balanced"
	BandNeutral  InsightBand = "neutral"
)

// Bands lists all bands in classification priority order.
var Bands = []InsightBand{BandCentrist, BandModerate, BandBalanced, BandNeutral}

// InsightCatalogEntry is a static insight text covering [LowerLimit, UpperLimit)
// of one axis.
type InsightCatalogEntry struct {
	ID          int64   `json:"id" yaml:"id"`
	Category    Axis    `json:"category" yaml:"category"`
	LowerLimit  float64 `json:"lower_limit" yaml:"lower_limit"`
	UpperLimit  float64 `json:"upper_limit" yaml:"upper_limit"`
	InsightText string  `json:"insight" yaml:"insight"`
}

// Covers reports whether score falls inside the entry's half-open range.
func (e InsightCatalogEntry) Covers(score float64) bool {
	return e.LowerLimit <= score && score < e.UpperLimit
}

// IdeologyCatalogEntry is a reference ideology and its score vector.
type IdeologyCatalogEntry struct {
	ID          int64           `json:"id" yaml:"id"`
	Name        string          `json:"name" yaml:"name"`
	ScoreVector AxisScoreVector `json:"scores" yaml:"scores"`
}

// PublicFigureCatalogEntry associates a public figure with an ideology.
type PublicFigureCatalogEntry struct {
	ID         int64  `json:"id" yaml:"id"`
	Name       string `json:"name" yaml:"name"`
	IdeologyID int64  `json:"ideology_id" yaml:"ideology_id"`
}

// AxisInsight is the classification of one axis in a scoring run.
type AxisInsight struct {
	Category Axis                `json:"category"`
	Score    int                 `json:"percentage"`
	Band     InsightBand         `json:"description"`
	Insight  InsightCatalogEntry `json:"insight"`
}
