package sqlxrepos

import (
	"context"
	"database/sql"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/shule/core"
	"github.com/trezcool/shule/core/quiz"
)

var _ quiz.Repository = (*quizRepository)(nil)

type quizRepository struct {
	db core.DBExecutor
}

func NewQuizRepository(db core.DBExecutor) *quizRepository {
	return &quizRepository{db: db}
}

type quizRow struct {
	ID              string       `db:"id"`
	CourseID        string       `db:"course_id"`
	Title           string       `db:"title"`
	Description     string       `db:"description"`
	TimeLimit       null.Int     `db:"time_limit"`
	AllowedAttempts int          `db:"allowed_attempts"`
	PassingScore    null.Float64 `db:"passing_score"`
	Published       bool         `db:"published"`
	AvailableFrom   null.Time    `db:"available_from"`
	AvailableUntil  null.Time    `db:"available_until"`
	CreatedAt       time.Time    `db:"created_at"`
	UpdatedAt       time.Time    `db:"updated_at"`
}

func (row quizRow) quiz() quiz.Quiz {
	return quiz.Quiz{
		ID:              row.ID,
		CourseID:        row.CourseID,
		Title:           row.Title,
		Description:     row.Description,
		TimeLimit:       row.TimeLimit,
		AllowedAttempts: row.AllowedAttempts,
		PassingScore:    row.PassingScore,
		Published:       row.Published,
		AvailableFrom:   row.AvailableFrom,
		AvailableUntil:  row.AvailableUntil,
		CreatedAt:       row.CreatedAt,
		UpdatedAt:       row.UpdatedAt,
	}
}

var quizColumns = []string{
	"id", "course_id", "title", "description", "time_limit", "allowed_attempts",
	"passing_score", "published", "available_from", "available_until",
	"created_at", "updated_at",
}

func (repo quizRepository) getQuiz(ctx context.Context, ex core.DBExecutor, quizID string, forUpdate bool) (quiz.Quiz, error) {
	query := psql.
		Select(quizColumns...).
		From("quizzes").
		Where(sq.Eq{"id": quizID})
	if forUpdate {
		query = query.Suffix("FOR UPDATE")
	}
	q, args, err := query.ToSql()
	if err != nil {
		return quiz.Quiz{}, err
	}
	var row quizRow
	if err = sqlx.GetContext(ctx, ex, &row, q, args...); err != nil {
		if err == sql.ErrNoRows {
			return quiz.Quiz{}, quiz.ErrNotFound
		}
		return quiz.Quiz{}, errors.Wrap(err, "getting quiz")
	}
	return row.quiz(), nil
}

func (repo quizRepository) GetQuiz(ctx context.Context, quizID string, exec ...core.DBExecutor) (quiz.Quiz, error) {
	return repo.getQuiz(ctx, executor(repo.db, exec), quizID, false)
}

func (repo quizRepository) GetQuizForUpdate(ctx context.Context, quizID string, exec core.DBExecutor) (quiz.Quiz, error) {
	return repo.getQuiz(ctx, exec, quizID, true)
}

type questionRow struct {
	ID       string  `db:"id"`
	QuizID   string  `db:"quiz_id"`
	Type     string  `db:"type"`
	Text     string  `db:"text"`
	Points   float64 `db:"points"`
	Position int     `db:"position"`
}

type optionRow struct {
	ID         string      `db:"id"`
	QuestionID string      `db:"question_id"`
	Text       string      `db:"text"`
	IsCorrect  bool        `db:"is_correct"`
	MatchingID null.Int    `db:"matching_id"`
	Side       null.String `db:"side"`
	Position   int         `db:"position"`
}

func (row optionRow) option() quiz.Option {
	return quiz.Option{
		ID:         row.ID,
		QuestionID: row.QuestionID,
		Text:       row.Text,
		IsCorrect:  row.IsCorrect,
		MatchingID: row.MatchingID,
		Side:       row.Side,
		Position:   row.Position,
	}
}

func (repo quizRepository) queryOptions(ctx context.Context, ex core.DBExecutor, questionIDs []string) (map[string][]quiz.Option, error) {
	if len(questionIDs) == 0 {
		return nil, nil
	}
	q, args, err := psql.
		Select("id", "question_id", "text", "is_correct", "matching_id", "side", "position").
		From("question_options").
		Where(sq.Eq{"question_id": questionIDs}).
		OrderBy("question_id ASC", "position ASC").
		ToSql()
	if err != nil {
		return nil, err
	}
	var rows []optionRow
	if err = sqlx.SelectContext(ctx, ex, &rows, q, args...); err != nil {
		return nil, errors.Wrap(err, "querying options")
	}
	byQuestion := make(map[string][]quiz.Option, len(questionIDs))
	for _, row := range rows {
		byQuestion[row.QuestionID] = append(byQuestion[row.QuestionID], row.option())
	}
	return byQuestion, nil
}

func (repo quizRepository) QueryQuestions(ctx context.Context, quizID string, exec ...core.DBExecutor) ([]quiz.Question, error) {
	ex := executor(repo.db, exec)
	q, args, err := psql.
		Select("id", "quiz_id", "type", "text", "points", "position").
		From("quiz_questions").
		Where(sq.Eq{"quiz_id": quizID}).
		OrderBy("position ASC").
		ToSql()
	if err != nil {
		return nil, err
	}
	var rows []questionRow
	if err = sqlx.SelectContext(ctx, ex, &rows, q, args...); err != nil {
		return nil, errors.Wrap(err, "querying questions")
	}

	ids := make([]string, len(rows))
	for i, row := range rows {
		ids[i] = row.ID
	}
	options, err := repo.queryOptions(ctx, ex, ids)
	if err != nil {
		return nil, err
	}

	questions := make([]quiz.Question, len(rows))
	for i, row := range rows {
		questions[i] = quiz.Question{
			ID:       row.ID,
			QuizID:   row.QuizID,
			Type:     quiz.QuestionType(row.Type),
			Text:     row.Text,
			Points:   row.Points,
			Position: row.Position,
			Options:  options[row.ID],
		}
	}
	return questions, nil
}

func (repo quizRepository) GetQuestion(ctx context.Context, questionID string, exec ...core.DBExecutor) (quiz.Question, error) {
	ex := executor(repo.db, exec)
	q, args, err := psql.
		Select("id", "quiz_id", "type", "text", "points", "position").
		From("quiz_questions").
		Where(sq.Eq{"id": questionID}).
		ToSql()
	if err != nil {
		return quiz.Question{}, err
	}
	var row questionRow
	if err = sqlx.GetContext(ctx, ex, &row, q, args...); err != nil {
		if err == sql.ErrNoRows {
			return quiz.Question{}, quiz.ErrQuestionNotFound
		}
		return quiz.Question{}, errors.Wrap(err, "getting question")
	}
	options, err := repo.queryOptions(ctx, ex, []string{row.ID})
	if err != nil {
		return quiz.Question{}, err
	}
	return quiz.Question{
		ID:       row.ID,
		QuizID:   row.QuizID,
		Type:     quiz.QuestionType(row.Type),
		Text:     row.Text,
		Points:   row.Points,
		Position: row.Position,
		Options:  options[row.ID],
	}, nil
}

func (repo quizRepository) CreateQuestion(ctx context.Context, question quiz.Question, exec ...core.DBExecutor) (quiz.Question, error) {
	ex := executor(repo.db, exec)
	question.ID = uuid.New().String()
	q, args, err := psql.
		Insert("quiz_questions").
		Columns("id", "quiz_id", "type", "text", "points", "position").
		Values(question.ID, question.QuizID, question.Type, question.Text, question.Points, question.Position).
		ToSql()
	if err != nil {
		return quiz.Question{}, err
	}
	if _, err = ex.ExecContext(ctx, q, args...); err != nil {
		return quiz.Question{}, errors.Wrap(err, "creating question")
	}

	for i := range question.Options {
		opt := &question.Options[i]
		opt.ID = uuid.New().String()
		opt.QuestionID = question.ID
		q, args, err = psql.
			Insert("question_options").
			Columns("id", "question_id", "text", "is_correct", "matching_id", "side", "position").
			Values(opt.ID, opt.QuestionID, opt.Text, opt.IsCorrect, opt.MatchingID, opt.Side, opt.Position).
			ToSql()
		if err != nil {
			return quiz.Question{}, err
		}
		if _, err = ex.ExecContext(ctx, q, args...); err != nil {
			return quiz.Question{}, errors.Wrap(err, "creating option")
		}
	}
	return question, nil
}

type attemptRow struct {
	ID        string       `db:"id"`
	QuizID    string       `db:"quiz_id"`
	StudentID string       `db:"student_id"`
	StartTime time.Time    `db:"start_time"`
	EndTime   null.Time    `db:"end_time"`
	Score     null.Float64 `db:"score"`
	Status    string       `db:"status"`
	GradedAt  null.Time    `db:"graded_at"`
}

func (row attemptRow) attempt() quiz.Attempt {
	return quiz.Attempt{
		ID:        row.ID,
		QuizID:    row.QuizID,
		StudentID: row.StudentID,
		StartTime: row.StartTime,
		EndTime:   row.EndTime,
		Score:     row.Score,
		Status:    quiz.AttemptStatus(row.Status),
		GradedAt:  row.GradedAt,
	}
}

var attemptColumns = []string{
	"id", "quiz_id", "student_id", "start_time", "end_time", "score", "status", "graded_at",
}

func (repo quizRepository) CountAttempts(ctx context.Context, quizID, studentID string, exec ...core.DBExecutor) (int, error) {
	ex := executor(repo.db, exec)
	q, args, err := psql.
		Select("COUNT(*)").
		From("quiz_attempts").
		Where(sq.Eq{"quiz_id": quizID, "student_id": studentID}).
		ToSql()
	if err != nil {
		return 0, err
	}
	var n int
	if err = sqlx.GetContext(ctx, ex, &n, q, args...); err != nil {
		return 0, errors.Wrap(err, "counting attempts")
	}
	return n, nil
}

func (repo quizRepository) GetOpenAttempt(ctx context.Context, quizID, studentID string, exec ...core.DBExecutor) (quiz.Attempt, error) {
	ex := executor(repo.db, exec)
	q, args, err := psql.
		Select(attemptColumns...).
		From("quiz_attempts").
		Where(sq.Eq{"quiz_id": quizID, "student_id": studentID, "status": quiz.AttemptInProgress}).
		OrderBy("start_time DESC").
		Limit(1).
		ToSql()
	if err != nil {
		return quiz.Attempt{}, err
	}
	var row attemptRow
	if err = sqlx.GetContext(ctx, ex, &row, q, args...); err != nil {
		if err == sql.ErrNoRows {
			return quiz.Attempt{}, quiz.ErrAttemptNotFound
		}
		return quiz.Attempt{}, errors.Wrap(err, "getting open attempt")
	}
	return row.attempt(), nil
}

func (repo quizRepository) GetAttempt(ctx context.Context, attemptID string, exec ...core.DBExecutor) (quiz.Attempt, error) {
	ex := executor(repo.db, exec)
	q, args, err := psql.
		Select(attemptColumns...).
		From("quiz_attempts").
		Where(sq.Eq{"id": attemptID}).
		ToSql()
	if err != nil {
		return quiz.Attempt{}, err
	}
	var row attemptRow
	if err = sqlx.GetContext(ctx, ex, &row, q, args...); err != nil {
		if err == sql.ErrNoRows {
			return quiz.Attempt{}, quiz.ErrAttemptNotFound
		}
		return quiz.Attempt{}, errors.Wrap(err, "getting attempt")
	}
	return row.attempt(), nil
}

func (repo quizRepository) CreateAttempt(ctx context.Context, a quiz.Attempt, exec ...core.DBExecutor) (quiz.Attempt, error) {
	ex := executor(repo.db, exec)
	a.ID = uuid.New().String()
	q, args, err := psql.
		Insert("quiz_attempts").
		Columns(attemptColumns...).
		Values(a.ID, a.QuizID, a.StudentID, a.StartTime, a.EndTime, a.Score, a.Status, a.GradedAt).
		ToSql()
	if err != nil {
		return quiz.Attempt{}, err
	}
	if _, err = ex.ExecContext(ctx, q, args...); err != nil {
		return quiz.Attempt{}, errors.Wrap(err, "creating attempt")
	}
	return a, nil
}

func (repo quizRepository) UpdateAttempt(ctx context.Context, a quiz.Attempt, exec ...core.DBExecutor) (quiz.Attempt, error) {
	ex := executor(repo.db, exec)
	q, args, err := psql.
		Update("quiz_attempts").
		Set("end_time", a.EndTime).
		Set("score", a.Score).
		Set("status", a.Status).
		Set("graded_at", a.GradedAt).
		Where(sq.Eq{"id": a.ID}).
		ToSql()
	if err != nil {
		return quiz.Attempt{}, err
	}
	res, err := ex.ExecContext(ctx, q, args...)
	if err != nil {
		return quiz.Attempt{}, errors.Wrap(err, "updating attempt")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return quiz.Attempt{}, quiz.ErrAttemptNotFound
	}
	return a, nil
}

type answerRow struct {
	ID                string         `db:"id"`
	AttemptID         string         `db:"attempt_id"`
	QuestionID        string         `db:"question_id"`
	SelectedOptionIDs pq.StringArray `db:"selected_option_ids"`
	Text              null.String    `db:"text"`
	IsCorrect         null.Bool      `db:"is_correct"`
	PointsEarned      float64        `db:"points_earned"`
	GradedAt          null.Time      `db:"graded_at"`
}

func (row answerRow) answer() quiz.Answer {
	return quiz.Answer{
		ID:                row.ID,
		AttemptID:         row.AttemptID,
		QuestionID:        row.QuestionID,
		SelectedOptionIDs: row.SelectedOptionIDs,
		Text:              row.Text,
		IsCorrect:         row.IsCorrect,
		PointsEarned:      row.PointsEarned,
		GradedAt:          row.GradedAt,
	}
}

var answerColumns = []string{
	"id", "attempt_id", "question_id", "selected_option_ids", "text", "is_correct", "points_earned", "graded_at",
}

func (repo quizRepository) SaveAnswer(ctx context.Context, ans quiz.Answer, exec ...core.DBExecutor) (quiz.Answer, error) {
	ex := executor(repo.db, exec)
	if ans.ID == "" {
		ans.ID = uuid.New().String()
	}
	q, args, err := psql.
		Insert("attempt_answers").
		Columns(answerColumns...).
		Values(
			ans.ID, ans.AttemptID, ans.QuestionID, pq.StringArray(ans.SelectedOptionIDs),
			ans.Text, ans.IsCorrect, ans.PointsEarned, ans.GradedAt,
		).
		Suffix(`ON CONFLICT (attempt_id, question_id) DO UPDATE SET
			selected_option_ids = EXCLUDED.selected_option_ids,
			text = EXCLUDED.text,
			is_correct = EXCLUDED.is_correct,
			points_earned = EXCLUDED.points_earned,
			graded_at = EXCLUDED.graded_at`).
		ToSql()
	if err != nil {
		return quiz.Answer{}, err
	}
	if _, err = ex.ExecContext(ctx, q, args...); err != nil {
		return quiz.Answer{}, errors.Wrap(err, "saving answer")
	}
	return ans, nil
}

func (repo quizRepository) GetAnswer(ctx context.Context, attemptID, questionID string, exec ...core.DBExecutor) (quiz.Answer, error) {
	ex := executor(repo.db, exec)
	q, args, err := psql.
		Select(answerColumns...).
		From("attempt_answers").
		Where(sq.Eq{"attempt_id": attemptID, "question_id": questionID}).
		ToSql()
	if err != nil {
		return quiz.Answer{}, err
	}
	var row answerRow
	if err = sqlx.GetContext(ctx, ex, &row, q, args...); err != nil {
		if err == sql.ErrNoRows {
			return quiz.Answer{}, quiz.ErrAnswerNotFound
		}
		return quiz.Answer{}, errors.Wrap(err, "getting answer")
	}
	return row.answer(), nil
}

func (repo quizRepository) QueryAnswers(ctx context.Context, attemptID string, exec ...core.DBExecutor) ([]quiz.Answer, error) {
	ex := executor(repo.db, exec)
	q, args, err := psql.
		Select(answerColumns...).
		From("attempt_answers").
		Where(sq.Eq{"attempt_id": attemptID}).
		ToSql()
	if err != nil {
		return nil, err
	}
	var rows []answerRow
	if err = sqlx.SelectContext(ctx, ex, &rows, q, args...); err != nil {
		return nil, errors.Wrap(err, "querying answers")
	}
	answers := make([]quiz.Answer, len(rows))
	for i, row := range rows {
		answers[i] = row.answer()
	}
	return answers, nil
}

func (repo quizRepository) QueryGradedScores(ctx context.Context, courseID, studentID string, exec ...core.DBExecutor) ([]quiz.QuizScore, error) {
	ex := executor(repo.db, exec)
	q, args, err := psql.
		Select("a.quiz_id", "a.score").
		From("quiz_attempts a").
		Join("quizzes q ON q.id = a.quiz_id").
		Where(sq.Eq{"q.course_id": courseID, "q.published": true, "a.student_id": studentID, "a.status": quiz.AttemptGraded}).
		Where("a.score IS NOT NULL").
		ToSql()
	if err != nil {
		return nil, err
	}
	var rows []struct {
		QuizID string  `db:"quiz_id"`
		Score  float64 `db:"score"`
	}
	if err = sqlx.SelectContext(ctx, ex, &rows, q, args...); err != nil {
		return nil, errors.Wrap(err, "querying graded scores")
	}
	scores := make([]quiz.QuizScore, len(rows))
	for i, row := range rows {
		scores[i] = quiz.QuizScore{QuizID: row.QuizID, Score: row.Score}
	}
	return scores, nil
}

func (repo quizRepository) IsCourseInstructor(ctx context.Context, courseID, instructorID string, exec ...core.DBExecutor) (bool, error) {
	ex := executor(repo.db, exec)
	return exists(ctx, ex, psql.
		Select("1").
		From("courses").
		Where(sq.Eq{"id": courseID, "instructor_id": instructorID}),
	)
}

func (repo quizRepository) IsEnrolled(ctx context.Context, courseID, studentID string, exec ...core.DBExecutor) (bool, error) {
	ex := executor(repo.db, exec)
	return exists(ctx, ex, psql.
		Select("1").
		From("enrollments").
		Where(sq.Eq{"course_id": courseID, "student_id": studentID}),
	)
}
