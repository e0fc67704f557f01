package scoring

import "math"

// bandRange is an inclusive-lower range with a configurable upper bound.
type bandRange struct {
	band           InsightBand
	lower, upper   float64
	upperInclusive bool
}

// Ranges are evaluated in order. Centrist is closed on both ends, so 45 and
// 55 are both centrist; everything not claimed by a named range is neutral.
var bandRanges = []bandRange{
	{band: BandCentrist, lower: 45, upper: 55, upperInclusive: true},
	{band: BandModerate, lower: 35, upper: 45},
	{band: BandBalanced, lower: 25, upper: 35},
}

func (r bandRange) contains(score float64) bool {
	if score < r.lower {
		return false
	}
	if r.upperInclusive {
		return score <= r.upper
	}
	return score < r.upper
}

// ClassifyBand maps a score in [0, 100] to its insight band. The score is
// rounded first, so 44.999 is centrist.
func ClassifyBand(score float64) (InsightBand, error) {
	if math.IsNaN(score) || score < MinScore || score > MaxScore {
		return "", &InvalidScoreRangeError{Score: score}
	}
	rounded := RoundScore(score)
	for _, r := range bandRanges {
		if r.contains(rounded) {
			return r.band, nil
		}
	}
	return BandNeutral, nil
}

// LookupInsightText finds the catalog insight for category whose range covers
// the rounded score. The first covering entry wins.
func LookupInsightText(catalog []InsightCatalogEntry, category Axis, score float64) (InsightCatalogEntry, error) {
	rounded := RoundScore(score)
	for _, entry := range catalog {
		if entry.Category == category && entry.Covers(rounded) {
			return entry, nil
		}
	}
	return InsightCatalogEntry{}, &NoMatchingInsightError{Category: category, Score: rounded}
}

// ClassifyVector classifies all four axes of v. Any failure aborts the whole
// classification so callers never see a partial set.
func ClassifyVector(v AxisScoreVector, catalog []InsightCatalogEntry) ([]AxisInsight, error) {
	out := make([]AxisInsight, 0, len(Axes))
	for _, axis := range Axes {
		score := v.Get(axis)
		band, err := ClassifyBand(score)
		if err != nil {
			return nil, err
		}
		entry, err := LookupInsightText(catalog, axis, score)
		if err != nil {
			return nil, err
		}
		out = append(out, AxisInsight{
			Category: axis,
			Score:    int(RoundScore(score)),
			Band:     band,
			Insight:  entry,
		})
	}
	return out, nil
}
