package grade

import (
	"strings"

	"github.com/trezcool/shule/core"
)

// letterPoints maps stored final letter grades to grade points on the 4.0 scale.
var letterPoints = map[string]float64{
	"A+": 4.0,
	"A":  4.0,
	"A-": 3.7,
	"B+": 3.3,
	"B":  3.0,
	"B-": 2.7,
	"C+": 2.3,
	"C":  2.0,
	"C-": 1.7,
	"D+": 1.3,
	"D":  1.0,
	"D-": 0.7,
	"F":  0.0,
}

// LetterPoints maps a letter grade to grade points; unknown letters yield 0.
func LetterPoints(letter string) float64 {
	return letterPoints[strings.ToUpper(core.CleanString(letter))]
}

// ScorePoints maps a numeric total score (0-100) to grade points.
func ScorePoints(score float64) float64 {
	switch {
	case score >= 90:
		return 4.0
	case score >= 87:
		return 3.7
	case score >= 84:
		return 3.3
	case score >= 80:
		return 3.0
	case score >= 77:
		return 2.7
	case score >= 74:
		return 2.3
	case score >= 70:
		return 2.0
	case score >= 67:
		return 1.7
	case score >= 64:
		return 1.3
	case score >= 60:
		return 1.0
	}
	return 0.0
}

// GPA computes a credit-hour weighted grade point average over the given
// course grades. Zero total credits yields 0, never NaN.
func GPA(grades []CourseGrade) float64 {
	var points, credits float64
	for _, cg := range grades {
		points += cg.Points() * cg.CreditHours
		credits += cg.CreditHours
	}
	if credits <= 0 {
		return 0
	}
	return points / credits
}

// SemesterGPA computes GPA restricted to courses in the given semester.
func SemesterGPA(grades []CourseGrade, semesterID string) float64 {
	filtered := make([]CourseGrade, 0, len(grades))
	for _, cg := range grades {
		if cg.SemesterID == semesterID {
			filtered = append(filtered, cg)
		}
	}
	return GPA(filtered)
}
