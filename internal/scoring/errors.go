package scoring

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ErrorKind tells callers who can correct a failure.
type ErrorKind string

const (
	// KindUserInput failures are caused by the submitted answers or scores.
	KindUserInput ErrorKind = "user_input"
	// KindCatalog failures mean reference data is incomplete.
	KindCatalog ErrorKind = "catalog"
	// KindInternal failures indicate a bug upstream of the failing step.
	KindInternal ErrorKind = "internal"
)

// Error is implemented by every error the engine returns.
type Error interface {
	error
	Kind() ErrorKind
}

// KindOf returns the kind of a scoring error anywhere in err's chain, or the
// empty string when err did not come from this package.
func KindOf(err error) ErrorKind {
	var se Error
	if errors.As(err, &se) {
		return se.Kind()
	}
	return ""
}

// IncompleteAnswersError is returned when required questions are unanswered
// and the missing-answer policy is reject.
type IncompleteAnswersError struct {
	Missing []int64
}

func (e *IncompleteAnswersError) Error() string {
	ids := make([]string, len(e.Missing))
	for i, id := range e.Missing {
		ids[i] = fmt.Sprint(id)
	}
	return fmt.Sprintf("incomplete answers: %d unanswered question(s) [%s]", len(e.Missing), strings.Join(ids, ", "))
}

func (e *IncompleteAnswersError) Kind() ErrorKind { return KindUserInput }

// InvalidResponseError is returned for a response strength outside [-1, 1].
type InvalidResponseError struct {
	QuestionID int64
	Response   float64
}

func (e *InvalidResponseError) Error() string {
	return fmt.Sprintf("invalid response %v for question %d: must be between -1 and 1", e.Response, e.QuestionID)
}

func (e *InvalidResponseError) Kind() ErrorKind { return KindUserInput }

// InvalidScoresError is returned when a caller-supplied score vector is
// missing an axis or has an axis out of range.
type InvalidScoresError struct {
	Fields map[Axis]string
}

func (e *InvalidScoresError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for a := range e.Fields {
		keys = append(keys, string(a))
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = k + " " + e.Fields[Axis(k)]
	}
	return "invalid scores: " + strings.Join(parts, "; ")
}

func (e *InvalidScoresError) Kind() ErrorKind { return KindUserInput }

// InvalidScoreRangeError means a score outside [0, 100] reached the
// classifier.
type InvalidScoreRangeError struct {
	Score float64
}

func (e *InvalidScoreRangeError) Error() string {
	return fmt.Sprintf("score %v is outside [0, 100]", e.Score)
}

func (e *InvalidScoreRangeError) Kind() ErrorKind { return KindInternal }

// NoMatchingInsightError means no catalog insight covers a score.
type NoMatchingInsightError struct {
	Category Axis
	Score    float64
}

func (e *NoMatchingInsightError) Error() string {
	return fmt.Sprintf("no insight in catalog for category %s at score %v", e.Category, e.Score)
}

func (e *NoMatchingInsightError) Kind() ErrorKind { return KindCatalog }

// EmptyCatalogError means the ideology catalog has no candidates.
type EmptyCatalogError struct{}

func (e *EmptyCatalogError) Error() string { return "ideology catalog is empty" }

func (e *EmptyCatalogError) Kind() ErrorKind { return KindCatalog }

// NoPublicFiguresError means the public figure catalog is empty.
type NoPublicFiguresError struct{}

func (e *NoPublicFiguresError) Error() string { return "public figure catalog is empty" }

func (e *NoPublicFiguresError) Kind() ErrorKind { return KindCatalog }
