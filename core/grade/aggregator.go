package grade

import "github.com/volatiletech/null/v8"

// WeightSumTolerance is the accepted deviation of a weight tuple's sum from 100.
const WeightSumTolerance = 0.01

var components = []Component{ComponentQuiz, ComponentAssignment, ComponentMidterm, ComponentFinal}

// TotalScore computes the weighted total of a Record's component scores.
// Components that have no score yet, or whose weight is 0, are skipped and the
// result is renormalized over the weight actually present; a partially graded
// record therefore shows a provisional total instead of treating missing
// components as zero. The result is null while no weighted component has a score.
//
// This is the single authoritative formula: every persisted Record.TotalScore
// must come out of this function.
func TotalScore(rec Record, w WeightConfig) null.Float64 {
	var sum, totalWeight float64
	for _, c := range components {
		score := rec.ComponentScore(c)
		weight := w.ComponentWeight(c)
		if score.Valid && weight > 0 {
			sum += score.Float64 * weight
			totalWeight += weight
		}
	}
	if totalWeight <= 0 {
		return null.Float64{}
	}
	return null.Float64From(sum / totalWeight)
}

// Recompute derives and sets rec.TotalScore from its current component scores
// and the given weights, reporting whether the stored value changed.
func Recompute(rec *Record, w WeightConfig) bool {
	total := TotalScore(*rec, w)
	changed := total != rec.TotalScore
	rec.TotalScore = total
	return changed
}
