package quiz

import (
	"time"

	"github.com/volatiletech/null/v8"

	"github.com/trezcool/shule/core"
)

// gradeAnswer grades a single answer against its question. Essay answers are
// left ungraded (null correctness, zero points) for manual review.
func gradeAnswer(q Question, sub SubmittedAnswer, now time.Time) Answer {
	ans := Answer{
		QuestionID:        q.ID,
		SelectedOptionIDs: sub.SelectedOptionIDs,
	}
	if sub.Text != "" {
		ans.Text = null.StringFrom(sub.Text)
	}

	var correct bool
	switch q.Type {
	case QuestionEssay:
		return ans
	case QuestionMultipleChoice, QuestionTrueFalse, QuestionDropdown:
		correct = sameIDSet(sub.SelectedOptionIDs, q.CorrectOptionIDs())
	case QuestionMatching, QuestionDragDrop:
		correct = sameIDSet(sub.SelectedOptionIDs, q.CorrectOptionIDs())
	case QuestionShortAnswer:
		given := core.CleanString(sub.Text, true /* lower */)
		for _, accepted := range q.AcceptedAnswers() {
			if given == accepted {
				correct = true
				break
			}
		}
	}

	ans.IsCorrect = null.BoolFrom(correct)
	if correct {
		ans.PointsEarned = q.Points
	}
	ans.GradedAt = null.TimeFrom(now)
	return ans
}

// sameIDSet reports whether the two id slices contain exactly the same set
// of ids, regardless of order or duplicates.
func sameIDSet(got, want []string) bool {
	if len(want) == 0 {
		return false
	}
	gotSet := make(map[string]struct{}, len(got))
	for _, id := range got {
		gotSet[id] = struct{}{}
	}
	wantSet := make(map[string]struct{}, len(want))
	for _, id := range want {
		wantSet[id] = struct{}{}
	}
	if len(gotSet) != len(wantSet) {
		return false
	}
	for id := range wantSet {
		if _, ok := gotSet[id]; !ok {
			return false
		}
	}
	return true
}

// scoreAttempt computes the attempt score as a 0..100 percentage of points
// earned over the total points of ALL questions; unanswered and ungraded
// questions earn nothing but still count in the denominator.
func scoreAttempt(questions []Question, answers []Answer) null.Float64 {
	var total float64
	for _, q := range questions {
		total += q.Points
	}
	if total <= 0 {
		return null.Float64{}
	}
	var earned float64
	for _, ans := range answers {
		earned += ans.PointsEarned
	}
	return null.Float64From(100 * earned / total)
}
