package quiz

import (
	"testing"
	"time"

	"github.com/volatiletech/null/v8"
)

func TestGradeAnswer(t *testing.T) {
	now := time.Now().UTC()

	mcq := Question{
		ID: "q1", Type: QuestionMultipleChoice, Points: 10,
		Options: []Option{
			{ID: "o1", Text: "2", IsCorrect: false},
			{ID: "o2", Text: "4", IsCorrect: true},
			{ID: "o3", Text: "4.0", IsCorrect: true},
		},
	}
	matching := Question{
		ID: "q2", Type: QuestionMatching, Points: 8,
		Options: []Option{
			{ID: "l1", Text: "Go", IsCorrect: true, Side: null.StringFrom(SideLeft), MatchingID: null.IntFrom(1)},
			{ID: "r1", Text: "2009", IsCorrect: true, Side: null.StringFrom(SideRight), MatchingID: null.IntFrom(1)},
			{ID: "l2", Text: "C", IsCorrect: true, Side: null.StringFrom(SideLeft), MatchingID: null.IntFrom(2)},
			{ID: "r2", Text: "1972", IsCorrect: true, Side: null.StringFrom(SideRight), MatchingID: null.IntFrom(2)},
		},
	}
	short := Question{
		ID: "q3", Type: QuestionShortAnswer, Points: 5,
		Options: []Option{
			{ID: "s1", Text: "paris", IsCorrect: true},
			{ID: "s2", Text: "Paris, France", IsCorrect: true},
		},
	}
	essay := Question{ID: "q4", Type: QuestionEssay, Points: 20}

	tests := []struct {
		name        string
		question    Question
		sub         SubmittedAnswer
		wantGraded  bool
		wantCorrect bool
		wantPoints  float64
	}{
		{
			name:        "multiple choice all correct options selected",
			question:    mcq,
			sub:         SubmittedAnswer{SelectedOptionIDs: []string{"o3", "o2"}},
			wantGraded:  true,
			wantCorrect: true,
			wantPoints:  10,
		},
		{
			name:       "multiple choice partial selection is wrong",
			question:   mcq,
			sub:        SubmittedAnswer{SelectedOptionIDs: []string{"o2"}},
			wantGraded: true,
		},
		{
			name:       "multiple choice extra wrong option",
			question:   mcq,
			sub:        SubmittedAnswer{SelectedOptionIDs: []string{"o1", "o2", "o3"}},
			wantGraded: true,
		},
		{
			name:       "multiple choice nothing selected",
			question:   mcq,
			sub:        SubmittedAnswer{},
			wantGraded: true,
		},
		{
			name:        "matching order does not matter",
			question:    matching,
			sub:         SubmittedAnswer{SelectedOptionIDs: []string{"r2", "l1", "r1", "l2"}},
			wantGraded:  true,
			wantCorrect: true,
			wantPoints:  8,
		},
		{
			name:       "matching missing a pair",
			question:   matching,
			sub:        SubmittedAnswer{SelectedOptionIDs: []string{"l1", "r1"}},
			wantGraded: true,
		},
		{
			name:        "short answer case and space insensitive",
			question:    short,
			sub:         SubmittedAnswer{Text: "  PARIS "},
			wantGraded:  true,
			wantCorrect: true,
			wantPoints:  5,
		},
		{
			name:        "short answer alternate accepted answer",
			question:    short,
			sub:         SubmittedAnswer{Text: "paris, france"},
			wantGraded:  true,
			wantCorrect: true,
			wantPoints:  5,
		},
		{
			name:       "short answer wrong",
			question:   short,
			sub:        SubmittedAnswer{Text: "London"},
			wantGraded: true,
		},
		{
			name:     "essay stays ungraded",
			question: essay,
			sub:      SubmittedAnswer{Text: "The industrial revolution..."},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ans := gradeAnswer(tt.question, tt.sub, now)
			if ans.QuestionID != tt.question.ID {
				t.Errorf("QuestionID = %q, want %q", ans.QuestionID, tt.question.ID)
			}
			if ans.IsCorrect.Valid != tt.wantGraded || ans.GradedAt.Valid != tt.wantGraded {
				t.Errorf("graded = %v/%v, want %v", ans.IsCorrect.Valid, ans.GradedAt.Valid, tt.wantGraded)
			}
			if ans.IsCorrect.Bool != tt.wantCorrect {
				t.Errorf("IsCorrect = %v, want %v", ans.IsCorrect.Bool, tt.wantCorrect)
			}
			if ans.PointsEarned != tt.wantPoints {
				t.Errorf("PointsEarned = %v, want %v", ans.PointsEarned, tt.wantPoints)
			}
		})
	}
}

func TestScoreAttempt(t *testing.T) {
	questions := []Question{
		{ID: "q1", Points: 10},
		{ID: "q2", Points: 10},
		{ID: "q3", Points: 20}, // unanswered, still in the denominator
	}

	tests := []struct {
		name    string
		answers []Answer
		want    null.Float64
	}{
		{
			name: "all correct",
			answers: []Answer{
				{QuestionID: "q1", PointsEarned: 10},
				{QuestionID: "q2", PointsEarned: 10},
				{QuestionID: "q3", PointsEarned: 20},
			},
			want: null.Float64From(100),
		},
		{
			name: "unanswered question still counts",
			answers: []Answer{
				{QuestionID: "q1", PointsEarned: 10},
				{QuestionID: "q2", PointsEarned: 10},
			},
			want: null.Float64From(50),
		},
		{
			name: "nothing answered",
			want: null.Float64From(0),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := scoreAttempt(questions, tt.answers); got != tt.want {
				t.Errorf("scoreAttempt() = %v, want %v", got, tt.want)
			}
		})
	}

	t.Run("no gradable points", func(t *testing.T) {
		if got := scoreAttempt(nil, nil); got.Valid {
			t.Errorf("scoreAttempt() = %v, want null", got)
		}
	})
}
