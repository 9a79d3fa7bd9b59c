package quiz

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/shule/core"
)

type (
	Repository interface {
		GetQuiz(ctx context.Context, quizID string, exec ...core.DBExecutor) (Quiz, error)
		// GetQuizForUpdate loads the quiz row with a row-level lock so the
		// attempt-count check and the attempt insert are serialized. It must
		// run inside a transaction.
		GetQuizForUpdate(ctx context.Context, quizID string, exec core.DBExecutor) (Quiz, error)
		QueryQuestions(ctx context.Context, quizID string, exec ...core.DBExecutor) ([]Question, error)
		GetQuestion(ctx context.Context, questionID string, exec ...core.DBExecutor) (Question, error)
		CreateQuestion(ctx context.Context, q Question, exec ...core.DBExecutor) (Question, error)
		CountAttempts(ctx context.Context, quizID, studentID string, exec ...core.DBExecutor) (int, error)
		// GetOpenAttempt returns the student's in-progress attempt on the quiz,
		// or ErrAttemptNotFound.
		GetOpenAttempt(ctx context.Context, quizID, studentID string, exec ...core.DBExecutor) (Attempt, error)
		GetAttempt(ctx context.Context, attemptID string, exec ...core.DBExecutor) (Attempt, error)
		CreateAttempt(ctx context.Context, a Attempt, exec ...core.DBExecutor) (Attempt, error)
		UpdateAttempt(ctx context.Context, a Attempt, exec ...core.DBExecutor) (Attempt, error)
		// SaveAnswer upserts on (attempt_id, question_id).
		SaveAnswer(ctx context.Context, ans Answer, exec ...core.DBExecutor) (Answer, error)
		// GetAnswer returns the attempt's answer to the question, or
		// ErrAnswerNotFound.
		GetAnswer(ctx context.Context, attemptID, questionID string, exec ...core.DBExecutor) (Answer, error)
		QueryAnswers(ctx context.Context, attemptID string, exec ...core.DBExecutor) ([]Answer, error)
		// QueryGradedScores returns (quiz id, score) pairs of every graded
		// attempt the student has on the course's published quizzes.
		QueryGradedScores(ctx context.Context, courseID, studentID string, exec ...core.DBExecutor) ([]QuizScore, error)
		IsCourseInstructor(ctx context.Context, courseID, instructorID string, exec ...core.DBExecutor) (bool, error)
		IsEnrolled(ctx context.Context, courseID, studentID string, exec ...core.DBExecutor) (bool, error)
	}

	// Gradebook receives the folded quiz component score for a course.
	// core/grade.Service satisfies it.
	Gradebook interface {
		RecordQuizScore(ctx context.Context, courseID, studentID string, score float64) error
	}

	QuizScore struct {
		QuizID string
		Score  float64
	}

	Service struct {
		db        core.DB
		repo      Repository
		gradebook Gradebook
		logger    core.Logger
	}
)

func NewService(db core.DB, repo Repository, gradebook Gradebook, logger core.Logger) *Service {
	return &Service{
		db:        db,
		repo:      repo,
		gradebook: gradebook,
		logger:    logger,
	}
}

func (svc *Service) checkInstructor(ctx context.Context, courseID, instructorID string) error {
	ok, err := svc.repo.IsCourseInstructor(ctx, courseID, instructorID)
	if err != nil {
		return errors.Wrap(err, "checking course instructor")
	}
	if !ok {
		return ErrNotCourseInstructor
	}
	return nil
}

func (svc *Service) checkEnrollment(ctx context.Context, courseID, studentID string) error {
	ok, err := svc.repo.IsEnrolled(ctx, courseID, studentID)
	if err != nil {
		return errors.Wrap(err, "checking enrollment")
	}
	if !ok {
		return ErrNotEnrolled
	}
	return nil
}

// GetQuiz returns the quiz with its questions.
func (svc *Service) GetQuiz(ctx context.Context, quizID string) (Quiz, []Question, error) {
	q, err := svc.repo.GetQuiz(ctx, quizID)
	if err != nil {
		return Quiz{}, nil, err
	}
	questions, err := svc.repo.QueryQuestions(ctx, quizID)
	if err != nil {
		return Quiz{}, nil, errors.Wrap(err, "querying questions")
	}
	return q, questions, nil
}

// AddQuestion appends a question (and its options) to the quiz. The input
// must already be validated, which normalizes the options per question type.
func (svc *Service) AddQuestion(ctx context.Context, quizID, instructorID string, nq NewQuestion) (Question, error) {
	q, err := svc.repo.GetQuiz(ctx, quizID)
	if err != nil {
		return Question{}, err
	}
	if err = svc.checkInstructor(ctx, q.CourseID, instructorID); err != nil {
		return Question{}, err
	}

	existing, err := svc.repo.QueryQuestions(ctx, quizID)
	if err != nil {
		return Question{}, errors.Wrap(err, "querying questions")
	}

	question := Question{
		QuizID:   quizID,
		Type:     nq.Type,
		Text:     nq.Text,
		Points:   nq.Points,
		Position: len(existing) + 1,
	}
	for i, no := range nq.Options {
		opt := Option{
			Text:      no.Text,
			IsCorrect: no.IsCorrect,
			Position:  i + 1,
		}
		if no.MatchingID != nil {
			opt.MatchingID = null.IntFrom(*no.MatchingID)
		}
		if no.Side != "" {
			opt.Side = null.StringFrom(no.Side)
		}
		question.Options = append(question.Options, opt)
	}
	return svc.repo.CreateQuestion(ctx, question)
}

// StartAttempt opens a new attempt for the student. The quiz row is locked
// for the duration of the transaction so two concurrent starts cannot both
// take the last allowed attempt.
func (svc *Service) StartAttempt(ctx context.Context, quizID, studentID string) (Attempt, error) {
	q, err := svc.repo.GetQuiz(ctx, quizID)
	if err != nil {
		return Attempt{}, err
	}
	if err = svc.checkEnrollment(ctx, q.CourseID, studentID); err != nil {
		return Attempt{}, err
	}

	var attempt Attempt
	err = core.Atomic(ctx, svc.db, func(tx core.DBExecutor) error {
		attempt, err = svc.openAttempt(ctx, quizID, studentID, tx)
		return err
	})
	return attempt, err
}

// openAttempt creates a new in-progress attempt inside tx, enforcing
// availability and the allowed-attempts cap under the quiz row lock.
func (svc *Service) openAttempt(ctx context.Context, quizID, studentID string, tx core.DBExecutor) (Attempt, error) {
	q, err := svc.repo.GetQuizForUpdate(ctx, quizID, tx)
	if err != nil {
		return Attempt{}, errors.Wrap(err, "locking quiz")
	}

	now := time.Now().UTC()
	if !q.AvailableAt(now) {
		return Attempt{}, ErrQuizNotAvailable
	}

	used, err := svc.repo.CountAttempts(ctx, quizID, studentID, tx)
	if err != nil {
		return Attempt{}, errors.Wrap(err, "counting attempts")
	}
	if q.AllowedAttempts > 0 && used >= q.AllowedAttempts {
		return Attempt{}, ErrAttemptsExhausted
	}

	attempt, err := svc.repo.CreateAttempt(ctx, Attempt{
		QuizID:    quizID,
		StudentID: studentID,
		StartTime: now,
		Status:    AttemptInProgress,
	}, tx)
	if err != nil {
		return Attempt{}, errors.Wrap(err, "creating attempt")
	}
	return attempt, nil
}

// RecordAnswer saves (or replaces) the student's answer to one question of
// their open attempt, ungraded until submission.
func (svc *Service) RecordAnswer(ctx context.Context, attemptID, studentID, questionID string, sub SubmittedAnswer) (Answer, error) {
	attempt, err := svc.repo.GetAttempt(ctx, attemptID)
	if err != nil {
		return Answer{}, err
	}
	if attempt.StudentID != studentID {
		return Answer{}, ErrAttemptNotFound
	}
	if attempt.Status != AttemptInProgress {
		return Answer{}, ErrAlreadySubmitted
	}

	question, err := svc.repo.GetQuestion(ctx, questionID)
	if err != nil {
		return Answer{}, err
	}
	if question.QuizID != attempt.QuizID {
		return Answer{}, ErrQuestionNotFound
	}

	ans := Answer{
		AttemptID:         attemptID,
		QuestionID:        questionID,
		SelectedOptionIDs: sub.SelectedOptionIDs,
	}
	if sub.Text != "" {
		ans.Text = null.StringFrom(sub.Text)
	}
	return svc.repo.SaveAnswer(ctx, ans)
}

// SubmitAttempt grades the student's open attempt on the quiz against the
// answers given, creating the attempt first when the student has none open
// and is still within the allowed-attempts cap. Answers recorded earlier
// with RecordAnswer stand for questions absent from `answers`. After the
// grading transaction commits, the quiz component is folded into the
// course's gradebook; a fold failure is logged, not returned.
func (svc *Service) SubmitAttempt(ctx context.Context, quizID, studentID string, answers Answers) (Attempt, error) {
	q, err := svc.repo.GetQuiz(ctx, quizID)
	if err != nil {
		return Attempt{}, err
	}
	if err = svc.checkEnrollment(ctx, q.CourseID, studentID); err != nil {
		return Attempt{}, err
	}

	var attempt Attempt
	err = core.Atomic(ctx, svc.db, func(tx core.DBExecutor) error {
		attempt, err = svc.repo.GetOpenAttempt(ctx, quizID, studentID, tx)
		if errors.Is(err, ErrAttemptNotFound) {
			attempt, err = svc.openAttempt(ctx, quizID, studentID, tx)
		}
		if err != nil {
			return err
		}
		if attempt.Status != AttemptInProgress {
			return ErrAlreadySubmitted
		}

		questions, err := svc.repo.QueryQuestions(ctx, quizID, tx)
		if err != nil {
			return errors.Wrap(err, "querying questions")
		}
		saved, err := svc.repo.QueryAnswers(ctx, attempt.ID, tx)
		if err != nil {
			return errors.Wrap(err, "querying saved answers")
		}
		savedByQuestion := make(map[string]Answer, len(saved))
		for _, ans := range saved {
			savedByQuestion[ans.QuestionID] = ans
		}

		now := time.Now().UTC()
		attempt.Answers = attempt.Answers[:0]
		for _, question := range questions {
			sub, ok := answers[question.ID]
			if !ok {
				prev, found := savedByQuestion[question.ID]
				if !found {
					continue
				}
				sub = SubmittedAnswer{SelectedOptionIDs: prev.SelectedOptionIDs, Text: prev.Text.String}
			}
			ans := gradeAnswer(question, sub, now)
			ans.AttemptID = attempt.ID
			if ans, err = svc.repo.SaveAnswer(ctx, ans, tx); err != nil {
				return errors.Wrap(err, "saving answer")
			}
			attempt.Answers = append(attempt.Answers, ans)
		}

		attempt.EndTime = null.TimeFrom(now)
		attempt.Score = scoreAttempt(questions, attempt.Answers)
		attempt.Status = AttemptGraded
		attempt.GradedAt = null.TimeFrom(now)
		if attempt, err = svc.repo.UpdateAttempt(ctx, attempt, tx); err != nil {
			return errors.Wrap(err, "updating attempt")
		}
		return nil
	})
	if err != nil {
		return Attempt{}, err
	}

	svc.foldCourseScore(ctx, q.CourseID, studentID)
	return attempt, nil
}

// GradeEssay records an instructor's manual grade for an essay answer,
// re-scores the attempt and re-folds the course quiz component. The attempt's
// graded_at is re-stamped so consumers can detect the change.
func (svc *Service) GradeEssay(ctx context.Context, attemptID, questionID, instructorID string, points float64) (Attempt, error) {
	attempt, err := svc.repo.GetAttempt(ctx, attemptID)
	if err != nil {
		return Attempt{}, err
	}
	if attempt.Status == AttemptInProgress {
		return Attempt{}, ErrAttemptNotFound
	}

	q, err := svc.repo.GetQuiz(ctx, attempt.QuizID)
	if err != nil {
		return Attempt{}, err
	}
	if err = svc.checkInstructor(ctx, q.CourseID, instructorID); err != nil {
		return Attempt{}, err
	}

	question, err := svc.repo.GetQuestion(ctx, questionID)
	if err != nil {
		return Attempt{}, err
	}
	if question.QuizID != attempt.QuizID || question.Type != QuestionEssay {
		return Attempt{}, ErrQuestionNotFound
	}
	if points < 0 || points > question.Points {
		return Attempt{}, core.NewValidationError(
			errors.Errorf("points must be between 0 and %v", question.Points),
			core.FieldError{Field: "points", Error: "out of range"},
		)
	}

	err = core.Atomic(ctx, svc.db, func(tx core.DBExecutor) error {
		ans, err := svc.repo.GetAnswer(ctx, attemptID, questionID, tx)
		if errors.Is(err, ErrAnswerNotFound) {
			ans = Answer{AttemptID: attemptID, QuestionID: questionID}
		} else if err != nil {
			return errors.Wrap(err, "getting answer")
		}

		now := time.Now().UTC()
		ans.PointsEarned = points
		ans.IsCorrect = null.BoolFrom(points > 0)
		ans.GradedAt = null.TimeFrom(now)
		if _, err = svc.repo.SaveAnswer(ctx, ans, tx); err != nil {
			return errors.Wrap(err, "saving answer")
		}

		questions, err := svc.repo.QueryQuestions(ctx, attempt.QuizID, tx)
		if err != nil {
			return errors.Wrap(err, "querying questions")
		}
		answers, err := svc.repo.QueryAnswers(ctx, attemptID, tx)
		if err != nil {
			return errors.Wrap(err, "querying answers")
		}

		attempt.Answers = answers
		attempt.Score = scoreAttempt(questions, answers)
		attempt.Status = AttemptGraded
		attempt.GradedAt = null.TimeFrom(now)
		if attempt, err = svc.repo.UpdateAttempt(ctx, attempt, tx); err != nil {
			return errors.Wrap(err, "updating attempt")
		}
		return nil
	})
	if err != nil {
		return Attempt{}, err
	}

	svc.foldCourseScore(ctx, q.CourseID, attempt.StudentID)
	return attempt, nil
}

// foldCourseScore recomputes the student's quiz component for the course as
// the mean of their best graded attempt on each quiz, and hands it to the
// gradebook. Failures are logged; grading the attempt already succeeded.
func (svc *Service) foldCourseScore(ctx context.Context, courseID, studentID string) {
	scores, err := svc.repo.QueryGradedScores(ctx, courseID, studentID)
	if err != nil {
		svc.logger.Error("querying graded quiz scores", "error", err, "course", courseID, "student", studentID)
		return
	}
	if len(scores) == 0 {
		return
	}

	best := make(map[string]float64, len(scores))
	for _, qs := range scores {
		if cur, ok := best[qs.QuizID]; !ok || qs.Score > cur {
			best[qs.QuizID] = qs.Score
		}
	}
	var sum float64
	for _, score := range best {
		sum += score
	}
	folded := sum / float64(len(best))

	if err = svc.gradebook.RecordQuizScore(ctx, courseID, studentID, folded); err != nil {
		svc.logger.Error("recording folded quiz score", "error", err, "course", courseID, "student", studentID)
	}
}
