package grade

import (
	"math"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/shule/core"
)

var (
	// errors
	ErrNotFound             = errors.New("grade record not found")
	ErrCourseNotFound       = errors.New("course not found")
	ErrWeightsNotConfigured = errors.New("grade weights not configured for this course")
	ErrNotCourseInstructor  = errors.New("instructor is not assigned to this course")
	ErrNotEnrolled          = errors.New("student is not enrolled in this course")
	ErrGradesLocked         = errors.New("grades are pending approval or already posted")

	errWeightSum = errors.New("weights must add up to 100%")
)

// Workflow statuses
type Status string

const (
	StatusInProgress      Status = "in_progress"
	StatusPendingApproval Status = "pending_approval"
	StatusPosted          Status = "posted"
	StatusRejected        Status = "rejected"
)

// Graded components feeding the weighted total
type Component string

const (
	ComponentQuiz       Component = "quiz"
	ComponentAssignment Component = "assignment"
	ComponentMidterm    Component = "midterm"
	ComponentFinal      Component = "final"
)

// Record is the per-student, per-course grade book row. TotalScore is derived;
// it is recomputed (never hand-written) whenever a component score or the
// course weights change.
type Record struct {
	ID              string       `json:"id"`
	CourseID        string       `json:"course_id"`
	StudentID       string       `json:"student_id"`
	QuizScore       null.Float64 `json:"quiz_score"`
	AssignmentScore null.Float64 `json:"assignment_score"`
	MidtermScore    null.Float64 `json:"midterm_score"`
	FinalScore      null.Float64 `json:"final_score"`
	TotalScore      null.Float64 `json:"total_score"`
	Status          Status       `json:"status"`
	PostedBy        null.String  `json:"posted_by"`
	PostedAt        null.Time    `json:"posted_at"`
	ApprovedBy      null.String  `json:"approved_by"`
	ApprovedAt      null.Time    `json:"approved_at"`
	CreatedAt       time.Time    `json:"created_at"` // UTC
	UpdatedAt       time.Time    `json:"updated_at"` // UTC
}

func (r Record) ComponentScore(c Component) null.Float64 {
	switch c {
	case ComponentQuiz:
		return r.QuizScore
	case ComponentAssignment:
		return r.AssignmentScore
	case ComponentMidterm:
		return r.MidtermScore
	case ComponentFinal:
		return r.FinalScore
	}
	return null.Float64{}
}

func (r *Record) SetComponentScore(c Component, score null.Float64) {
	switch c {
	case ComponentQuiz:
		r.QuizScore = score
	case ComponentAssignment:
		r.AssignmentScore = score
	case ComponentMidterm:
		r.MidtermScore = score
	case ComponentFinal:
		r.FinalScore = score
	}
}

// WeightConfig is the per-course component weighting. The four weights always
// add up to 100 (± WeightSumTolerance); this is enforced on write.
type WeightConfig struct {
	CourseID         string    `json:"course_id"`
	QuizWeight       float64   `json:"quiz_weight"`
	AssignmentWeight float64   `json:"assignment_weight"`
	MidtermWeight    float64   `json:"midterm_weight"`
	FinalWeight      float64   `json:"final_weight"`
	UpdatedAt        time.Time `json:"updated_at"` // UTC
}

func (w WeightConfig) Sum() float64 {
	return w.QuizWeight + w.AssignmentWeight + w.MidtermWeight + w.FinalWeight
}

func (w WeightConfig) ComponentWeight(c Component) float64 {
	switch c {
	case ComponentQuiz:
		return w.QuizWeight
	case ComponentAssignment:
		return w.AssignmentWeight
	case ComponentMidterm:
		return w.MidtermWeight
	case ComponentFinal:
		return w.FinalWeight
	}
	return 0
}

// NewWeights contains information needed to configure a course's WeightConfig.
type NewWeights struct {
	QuizWeight       float64 `json:"quiz_weight" validate:"min=0,max=100"`
	AssignmentWeight float64 `json:"assignment_weight" validate:"min=0,max=100"`
	MidtermWeight    float64 `json:"midterm_weight" validate:"min=0,max=100"`
	FinalWeight      float64 `json:"final_weight" validate:"min=0,max=100"`
}

func (nw NewWeights) Sum() float64 {
	return nw.QuizWeight + nw.AssignmentWeight + nw.MidtermWeight + nw.FinalWeight
}

func (nw *NewWeights) Validate(validate *validator.Validate) error {
	if err := validate.Struct(nw); err != nil {
		return err
	}
	if math.Abs(nw.Sum()-100) > WeightSumTolerance {
		return core.NewValidationError(errWeightSum, core.FieldError{Field: "weights", Error: errWeightSum.Error()})
	}
	return nil
}

// UpdateScore defines an instructor's edit of a single component score.
type UpdateScore struct {
	Component Component `json:"component" validate:"required,oneof=quiz assignment midterm final"`
	Score     float64   `json:"score" validate:"min=0,max=100"`
}

func (us *UpdateScore) Validate(validate *validator.Validate) error {
	return validate.Struct(us)
}

// GPARecord is the derived per-student, per-semester GPA snapshot; it is
// upserted on every grade approval and never user-mutated.
type GPARecord struct {
	StudentID     string    `json:"student_id"`
	SemesterID    string    `json:"semester_id"`
	SemesterGPA   float64   `json:"semester_gpa"`
	CumulativeGPA float64   `json:"cumulative_gpa"`
	ComputedAt    time.Time `json:"computed_at"` // UTC
}

// CourseGrade is one course's contribution to a student's GPA: credit hours
// plus either a stored final letter grade (completed course) or the posted
// numeric total score.
type CourseGrade struct {
	CourseID    string
	SemesterID  string
	CreditHours float64
	FinalGrade  null.String
	TotalScore  null.Float64
}

// Points maps this course grade to grade points: the stored letter grade when
// present, otherwise the numeric total score through the breakpoint table.
func (cg CourseGrade) Points() float64 {
	if cg.FinalGrade.Valid {
		return LetterPoints(cg.FinalGrade.String)
	}
	if cg.TotalScore.Valid {
		return ScorePoints(cg.TotalScore.Float64)
	}
	return 0
}

// CourseInfo is the slice of course data this package needs: identification,
// semester, credit hours and the assigned instructor's contact.
type CourseInfo struct {
	ID              string  `json:"id"`
	Code            string  `json:"code"`
	Title           string  `json:"title"`
	SemesterID      string  `json:"semester_id"`
	CreditHours     float64 `json:"credit_hours"`
	InstructorID    string  `json:"instructor_id"`
	InstructorName  string  `json:"instructor_name"`
	InstructorEmail string  `json:"instructor_email"`
}

// GradeSheet is an instructor's view of a course's grade book.
type GradeSheet struct {
	Course     CourseInfo   `json:"course"`
	WeightsSet bool         `json:"weights_set"`
	Weights    WeightConfig `json:"weights"`
	Records    []Record     `json:"records"`
}
