package grade

import (
	"math"
	"testing"

	"github.com/volatiletech/null/v8"
)

func TestLetterPoints(t *testing.T) {
	tests := []struct {
		letter string
		want   float64
	}{
		{"A+", 4.0},
		{"A", 4.0},
		{"A-", 3.7},
		{"B+", 3.3},
		{"B", 3.0},
		{"B-", 2.7},
		{"C+", 2.3},
		{"C", 2.0},
		{"C-", 1.7},
		{"D+", 1.3},
		{"D", 1.0},
		{"D-", 0.7},
		{"F", 0.0},
		{"a", 4.0},    // case-insensitive
		{" b+ ", 3.3}, // trimmed
		{"E", 0.0},    // unknown letter
		{"", 0.0},
	}
	for _, tt := range tests {
		if got := LetterPoints(tt.letter); got != tt.want {
			t.Errorf("LetterPoints(%q) = %v, want %v", tt.letter, got, tt.want)
		}
	}
}

func TestScorePoints(t *testing.T) {
	tests := []struct {
		score float64
		want  float64
	}{
		{100, 4.0},
		{90, 4.0},
		{89.99, 3.7},
		{87, 3.7},
		{84, 3.3},
		{80, 3.0},
		{77, 2.7},
		{74, 2.3},
		{70, 2.0},
		{67, 1.7},
		{64, 1.3},
		{60, 1.0},
		{59.99, 0.0},
		{0, 0.0},
	}
	for _, tt := range tests {
		if got := ScorePoints(tt.score); got != tt.want {
			t.Errorf("ScorePoints(%v) = %v, want %v", tt.score, got, tt.want)
		}
	}
}

func TestGPA(t *testing.T) {
	tests := []struct {
		name   string
		grades []CourseGrade
		want   float64
	}{
		{name: "no courses", grades: nil, want: 0},
		{
			name: "zero credit hours",
			grades: []CourseGrade{
				{CourseID: "c1", CreditHours: 0, FinalGrade: null.StringFrom("A")},
			},
			want: 0,
		},
		{
			name: "letter grades credit-weighted",
			grades: []CourseGrade{
				{CourseID: "c1", CreditHours: 3, FinalGrade: null.StringFrom("A")}, // 4.0
				{CourseID: "c2", CreditHours: 1, FinalGrade: null.StringFrom("F")}, // 0.0
			},
			want: 3.0, // (4*3 + 0*1) / 4
		},
		{
			name: "numeric totals use breakpoints",
			grades: []CourseGrade{
				{CourseID: "c1", CreditHours: 3, TotalScore: null.Float64From(92)}, // 4.0
				{CourseID: "c2", CreditHours: 3, TotalScore: null.Float64From(75)}, // 2.3
			},
			want: 3.15,
		},
		{
			name: "mixed letter and numeric",
			grades: []CourseGrade{
				{CourseID: "c1", CreditHours: 4, FinalGrade: null.StringFrom("B")}, // 3.0
				{CourseID: "c2", CreditHours: 2, TotalScore: null.Float64From(88)}, // 3.7
			},
			want: (3.0*4 + 3.7*2) / 6,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := GPA(tt.grades); math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("GPA() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestSemesterGPA(t *testing.T) {
	grades := []CourseGrade{
		{CourseID: "c1", SemesterID: "s1", CreditHours: 3, FinalGrade: null.StringFrom("A")},
		{CourseID: "c2", SemesterID: "s2", CreditHours: 3, TotalScore: null.Float64From(62)}, // 1.0
		{CourseID: "c3", SemesterID: "s2", CreditHours: 3, TotalScore: null.Float64From(95)}, // 4.0
	}

	if got := SemesterGPA(grades, "s1"); got != 4.0 {
		t.Errorf("SemesterGPA(s1) = %v, want 4.0", got)
	}
	if got := SemesterGPA(grades, "s2"); got != 2.5 {
		t.Errorf("SemesterGPA(s2) = %v, want 2.5", got)
	}
	if got := SemesterGPA(grades, "s3"); got != 0 {
		t.Errorf("SemesterGPA(s3) = %v, want 0", got)
	}
}
