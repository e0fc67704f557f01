package scoring

import (
	"fmt"
	"math"
)

const (
	MinScore      = 0.0
	MaxScore      = 100.0
	MidpointScore = 50.0
)

// MissingAnswerPolicy decides what happens to unanswered questions.
type MissingAnswerPolicy string

const (
	// MissingAnswerReject fails the run with IncompleteAnswersError.
	MissingAnswerReject MissingAnswerPolicy = "reject"
	// MissingAnswerNeutral treats a skipped question as a neutral response,
	// which pulls the axis toward its midpoint.
	MissingAnswerNeutral MissingAnswerPolicy = "neutral"
)

// ParseMissingAnswerPolicy validates a configured policy name.
func ParseMissingAnswerPolicy(s string) (MissingAnswerPolicy, error) {
	switch MissingAnswerPolicy(s) {
	case MissingAnswerReject, MissingAnswerNeutral:
		return MissingAnswerPolicy(s), nil
	case "":
		return MissingAnswerReject, nil
	}
	return "", fmt.Errorf("unknown missing answer policy %q", s)
}

// Aggregator reduces weighted question effects into an AxisScoreVector.
type Aggregator struct {
	policy MissingAnswerPolicy
}

// NewAggregator creates an aggregator with an explicit missing-answer policy.
func NewAggregator(policy MissingAnswerPolicy) *Aggregator {
	if policy == "" {
		policy = MissingAnswerReject
	}
	return &Aggregator{policy: policy}
}

// Policy returns the configured missing-answer policy.
func (a *Aggregator) Policy() MissingAnswerPolicy {
	return a.policy
}

// AggregateScores sums weight × response per axis across the answers, then
// normalizes each axis against the largest possible swing of the test's
// questions:
//
//	score = 100 × (max + sum) / (2 × max),  max = Σ|weight|
//
// Axes no question touches score the midpoint. Results are clamped to
// [0, 100] and rounded to the nearest integer.
func (a *Aggregator) AggregateScores(answers []AnsweredQuestion) (AxisScoreVector, error) {
	var missing []int64
	sums := make(map[Axis]float64, len(Axes))
	maxes := make(map[Axis]float64, len(Axes))

	for _, ans := range answers {
		response := ans.Response
		if !ans.Answered {
			missing = append(missing, ans.QuestionID)
			response = NeutralResponse
		} else if math.IsNaN(response) || response < StronglyDisagree || response > StronglyAgree {
			return AxisScoreVector{}, &InvalidResponseError{QuestionID: ans.QuestionID, Response: response}
		}

		for axis, weight := range ans.Effect {
			if !axis.Valid() {
				continue
			}
			sums[axis] += weight * response
			maxes[axis] += math.Abs(weight)
		}
	}

	if len(missing) > 0 && a.policy == MissingAnswerReject {
		return AxisScoreVector{}, &IncompleteAnswersError{Missing: missing}
	}

	var v AxisScoreVector
	for _, axis := range Axes {
		v = v.With(axis, normalize(sums[axis], maxes[axis]))
	}
	return v, nil
}

func normalize(sum, swing float64) float64 {
	if swing == 0 {
		return MidpointScore
	}
	raw := MaxScore * (swing + sum) / (2 * swing)
	return RoundScore(clamp(raw, MinScore, MaxScore))
}

func clamp(x, lo, hi float64) float64 {
	if x < lo {
		return lo
	}
	if x > hi {
		return hi
	}
	return x
}

// RoundScore rounds half away from zero. It is the single rounding rule used
// before any band or catalog lookup.
func RoundScore(score float64) float64 {
	return math.Round(score)
}
