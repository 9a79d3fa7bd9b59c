package quiz

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/shule/core"
)

var (
	// errors
	ErrNotFound            = errors.New("quiz not found")
	ErrAttemptNotFound     = errors.New("quiz attempt not found")
	ErrQuestionNotFound    = errors.New("question not found")
	ErrAnswerNotFound      = errors.New("answer not found")
	ErrAttemptsExhausted   = errors.New("maximum number of attempts reached")
	ErrQuizNotAvailable    = errors.New("quiz is not available")
	ErrAlreadySubmitted    = errors.New("attempt has already been submitted")
	ErrNotEnrolled         = errors.New("student is not enrolled in this course")
	ErrNotCourseInstructor = errors.New("instructor is not assigned to this course")
)

// Question types
type QuestionType string

const (
	QuestionMultipleChoice QuestionType = "multiple_choice"
	QuestionTrueFalse      QuestionType = "true_false"
	QuestionMatching       QuestionType = "matching"
	QuestionShortAnswer    QuestionType = "short_answer"
	QuestionEssay          QuestionType = "essay"
	QuestionDropdown       QuestionType = "dropdown"
	QuestionDragDrop       QuestionType = "drag_drop"
)

// Matching sides
const (
	SideLeft  = "left"
	SideRight = "right"
)

// Attempt statuses
type AttemptStatus string

const (
	AttemptInProgress AttemptStatus = "in_progress"
	AttemptSubmitted  AttemptStatus = "submitted"
	AttemptGraded     AttemptStatus = "graded"
)

type Quiz struct {
	ID              string       `json:"id"`
	CourseID        string       `json:"course_id"`
	Title           string       `json:"title"`
	Description     string       `json:"description"`
	TimeLimit       null.Int     `json:"time_limit"` // minutes
	AllowedAttempts int          `json:"allowed_attempts"`
	PassingScore    null.Float64 `json:"passing_score"`
	Published       bool         `json:"published"`
	AvailableFrom   null.Time    `json:"available_from"`
	AvailableUntil  null.Time    `json:"available_until"`
	CreatedAt       time.Time    `json:"created_at"` // UTC
	UpdatedAt       time.Time    `json:"updated_at"` // UTC
}

// AvailableAt reports whether the quiz can be taken at t: it must be
// published and t must fall within the availability window when one is set.
func (q Quiz) AvailableAt(t time.Time) bool {
	if !q.Published {
		return false
	}
	if q.AvailableFrom.Valid && t.Before(q.AvailableFrom.Time) {
		return false
	}
	if q.AvailableUntil.Valid && t.After(q.AvailableUntil.Time) {
		return false
	}
	return true
}

type Option struct {
	ID         string      `json:"id"`
	QuestionID string      `json:"question_id"`
	Text       string      `json:"text"`
	IsCorrect  bool        `json:"-"`
	MatchingID null.Int    `json:"matching_id,omitempty"`
	Side       null.String `json:"side,omitempty"`
	Position   int         `json:"position"`
}

type Question struct {
	ID       string       `json:"id"`
	QuizID   string       `json:"quiz_id"`
	Type     QuestionType `json:"type"`
	Text     string       `json:"text"`
	Points   float64      `json:"points"`
	Position int          `json:"position"`
	Options  []Option     `json:"options"`
}

// CorrectOptionIDs returns the ids of every option flagged correct.
func (q Question) CorrectOptionIDs() []string {
	ids := make([]string, 0, len(q.Options))
	for _, opt := range q.Options {
		if opt.IsCorrect {
			ids = append(ids, opt.ID)
		}
	}
	return ids
}

// AcceptedAnswers returns the normalized texts of every correct option;
// for short_answer questions these are the accepted answers.
func (q Question) AcceptedAnswers() []string {
	answers := make([]string, 0, len(q.Options))
	for _, opt := range q.Options {
		if opt.IsCorrect {
			answers = append(answers, core.CleanString(opt.Text, true /* lower */))
		}
	}
	return answers
}

type Answer struct {
	ID                string      `json:"id"`
	AttemptID         string      `json:"attempt_id"`
	QuestionID        string      `json:"question_id"`
	SelectedOptionIDs []string    `json:"selected_option_ids"`
	Text              null.String `json:"text"`
	IsCorrect         null.Bool   `json:"is_correct"`
	PointsEarned      float64     `json:"points_earned"`
	GradedAt          null.Time   `json:"graded_at"`
}

type Attempt struct {
	ID        string        `json:"id"`
	QuizID    string        `json:"quiz_id"`
	StudentID string        `json:"student_id"`
	StartTime time.Time     `json:"start_time"` // UTC
	EndTime   null.Time     `json:"end_time"`
	Score     null.Float64  `json:"score"`
	Status    AttemptStatus `json:"status"`
	GradedAt  null.Time     `json:"graded_at"`
	Answers   []Answer      `json:"answers,omitempty"`
}

// SubmittedAnswer is a student's raw answer to one question: selected option
// ids for choice/matching types, free text for short_answer and essay.
type SubmittedAnswer struct {
	SelectedOptionIDs []string `json:"selected_option_ids"`
	Text              string   `json:"text"`
}

// Answers maps question id to the student's submitted answer.
type Answers map[string]SubmittedAnswer

// NewOption contains information needed to create a question Option.
type NewOption struct {
	Text       string `json:"text" validate:"required"`
	IsCorrect  bool   `json:"is_correct"`
	MatchingID *int   `json:"matching_id"`
	Side       string `json:"side" validate:"omitempty,oneof=left right"`
}

// NewQuestion contains information needed to add a Question to a quiz.
// Validate enforces the per-type option shape at creation time.
type NewQuestion struct {
	Type    QuestionType `json:"type" validate:"required,oneof=multiple_choice true_false matching short_answer essay dropdown drag_drop"`
	Text    string       `json:"text" validate:"required"`
	Points  float64      `json:"points" validate:"gt=0"`
	Options []NewOption  `json:"options" validate:"dive"`
}

func (nq *NewQuestion) Validate(validate *validator.Validate) error {
	nq.Text = core.CleanString(nq.Text)
	for i := range nq.Options {
		nq.Options[i].Text = core.CleanString(nq.Options[i].Text)
	}
	if err := validate.Struct(nq); err != nil {
		return err
	}

	switch nq.Type {
	case QuestionMultipleChoice, QuestionDropdown:
		return nq.validateChoice()
	case QuestionTrueFalse:
		return nq.validateTrueFalse()
	case QuestionShortAnswer:
		return nq.validateShortAnswer()
	case QuestionMatching, QuestionDragDrop:
		return nq.validateMatching()
	case QuestionEssay:
		if len(nq.Options) > 0 {
			return optionsErr("essay questions take no options")
		}
	}
	return nil
}

func (nq *NewQuestion) validateChoice() error {
	if len(nq.Options) < 2 {
		return optionsErr("at least 2 options are required")
	}
	if nq.correctCount() < 1 {
		return optionsErr("at least 1 option must be marked correct")
	}
	return nil
}

// validateTrueFalse normalizes the question to exactly two options, True and
// False, with exactly one marked correct.
func (nq *NewQuestion) validateTrueFalse() error {
	if len(nq.Options) != 2 {
		return optionsErr("exactly 2 options (True/False) are required")
	}
	if nq.correctCount() != 1 {
		return optionsErr("exactly 1 option must be marked correct")
	}
	var sawTrue, sawFalse bool
	for i := range nq.Options {
		switch strings.ToLower(nq.Options[i].Text) {
		case "true":
			nq.Options[i].Text = "True"
			sawTrue = true
		case "false":
			nq.Options[i].Text = "False"
			sawFalse = true
		default:
			return optionsErr("options must be True and False")
		}
	}
	if !(sawTrue && sawFalse) {
		return optionsErr("options must be True and False")
	}
	return nil
}

// validateShortAnswer requires at least one accepted answer; every option is
// an accepted answer, so all are normalized to correct.
func (nq *NewQuestion) validateShortAnswer() error {
	if len(nq.Options) < 1 {
		return optionsErr("at least 1 accepted answer is required")
	}
	for i := range nq.Options {
		nq.Options[i].IsCorrect = true
	}
	return nil
}

// validateMatching requires an even number (>= 4) of options, each tagged
// with a side and a matching id, and every matching id appearing exactly
// once per side.
func (nq *NewQuestion) validateMatching() error {
	if len(nq.Options) < 4 || len(nq.Options)%2 != 0 {
		return optionsErr("an even number of at least 4 options is required")
	}
	perSide := map[string]map[int]int{SideLeft: {}, SideRight: {}}
	for _, opt := range nq.Options {
		if opt.Side == "" || opt.MatchingID == nil {
			return optionsErr("every option must carry a side and a matching_id")
		}
		perSide[opt.Side][*opt.MatchingID]++
	}
	if len(perSide[SideLeft]) != len(perSide[SideRight]) {
		return optionsErr("every matching_id must appear exactly once on each side")
	}
	for id, cnt := range perSide[SideLeft] {
		if cnt != 1 || perSide[SideRight][id] != 1 {
			return optionsErr("every matching_id must appear exactly once on each side")
		}
	}
	return nil
}

func (nq NewQuestion) correctCount() int {
	var n int
	for _, opt := range nq.Options {
		if opt.IsCorrect {
			n++
		}
	}
	return n
}

func optionsErr(msg string) error {
	return core.NewValidationError(fmt.Errorf("invalid question options: %s", msg), core.FieldError{Field: "options", Error: msg})
}
