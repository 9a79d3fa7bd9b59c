package sqlxrepos

import (
	"context"
	"database/sql"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/shule/core"
	"github.com/trezcool/shule/core/grade"
)

var _ grade.Repository = (*gradeRepository)(nil)

type gradeRepository struct {
	db core.DBExecutor
}

func NewGradeRepository(db core.DBExecutor) *gradeRepository {
	return &gradeRepository{db: db}
}

type gradeRow struct {
	ID              string       `db:"id"`
	CourseID        string       `db:"course_id"`
	StudentID       string       `db:"student_id"`
	QuizScore       null.Float64 `db:"quiz_score"`
	AssignmentScore null.Float64 `db:"assignment_score"`
	MidtermScore    null.Float64 `db:"midterm_score"`
	FinalScore      null.Float64 `db:"final_score"`
	TotalScore      null.Float64 `db:"total_score"`
	Status          string       `db:"status"`
	PostedBy        null.String  `db:"posted_by"`
	PostedAt        null.Time    `db:"posted_at"`
	ApprovedBy      null.String  `db:"approved_by"`
	ApprovedAt      null.Time    `db:"approved_at"`
	CreatedAt       time.Time    `db:"created_at"`
	UpdatedAt       time.Time    `db:"updated_at"`
}

func (row gradeRow) record() grade.Record {
	return grade.Record{
		ID:              row.ID,
		CourseID:        row.CourseID,
		StudentID:       row.StudentID,
		QuizScore:       row.QuizScore,
		AssignmentScore: row.AssignmentScore,
		MidtermScore:    row.MidtermScore,
		FinalScore:      row.FinalScore,
		TotalScore:      row.TotalScore,
		Status:          grade.Status(row.Status),
		PostedBy:        row.PostedBy,
		PostedAt:        row.PostedAt,
		ApprovedBy:      row.ApprovedBy,
		ApprovedAt:      row.ApprovedAt,
		CreatedAt:       row.CreatedAt,
		UpdatedAt:       row.UpdatedAt,
	}
}

type weightsRow struct {
	CourseID         string    `db:"course_id"`
	QuizWeight       float64   `db:"quiz_weight"`
	AssignmentWeight float64   `db:"assignment_weight"`
	MidtermWeight    float64   `db:"midterm_weight"`
	FinalWeight      float64   `db:"final_weight"`
	UpdatedAt        time.Time `db:"updated_at"`
}

func (row weightsRow) config() grade.WeightConfig {
	return grade.WeightConfig{
		CourseID:         row.CourseID,
		QuizWeight:       row.QuizWeight,
		AssignmentWeight: row.AssignmentWeight,
		MidtermWeight:    row.MidtermWeight,
		FinalWeight:      row.FinalWeight,
		UpdatedAt:        row.UpdatedAt,
	}
}

func (repo gradeRepository) GetWeights(ctx context.Context, courseID string, exec ...core.DBExecutor) (grade.WeightConfig, error) {
	ex := executor(repo.db, exec)
	q, args, err := psql.
		Select("course_id", "quiz_weight", "assignment_weight", "midterm_weight", "final_weight", "updated_at").
		From("course_weights").
		Where(sq.Eq{"course_id": courseID}).
		ToSql()
	if err != nil {
		return grade.WeightConfig{}, err
	}
	var row weightsRow
	if err = sqlx.GetContext(ctx, ex, &row, q, args...); err != nil {
		if err == sql.ErrNoRows {
			return grade.WeightConfig{}, grade.ErrWeightsNotConfigured
		}
		return grade.WeightConfig{}, errors.Wrap(err, "getting weights")
	}
	return row.config(), nil
}

func (repo gradeRepository) UpsertWeights(ctx context.Context, w grade.WeightConfig, exec ...core.DBExecutor) (grade.WeightConfig, error) {
	ex := executor(repo.db, exec)
	q, args, err := psql.
		Insert("course_weights").
		Columns("course_id", "quiz_weight", "assignment_weight", "midterm_weight", "final_weight", "updated_at").
		Values(w.CourseID, w.QuizWeight, w.AssignmentWeight, w.MidtermWeight, w.FinalWeight, w.UpdatedAt).
		Suffix(`ON CONFLICT (course_id) DO UPDATE SET
			quiz_weight = EXCLUDED.quiz_weight,
			assignment_weight = EXCLUDED.assignment_weight,
			midterm_weight = EXCLUDED.midterm_weight,
			final_weight = EXCLUDED.final_weight,
			updated_at = EXCLUDED.updated_at`).
		ToSql()
	if err != nil {
		return grade.WeightConfig{}, err
	}
	if _, err = ex.ExecContext(ctx, q, args...); err != nil {
		return grade.WeightConfig{}, errors.Wrap(err, "upserting weights")
	}
	return w, nil
}

var gradeColumns = []string{
	"id", "course_id", "student_id",
	"quiz_score", "assignment_score", "midterm_score", "final_score", "total_score",
	"status", "posted_by", "posted_at", "approved_by", "approved_at",
	"created_at", "updated_at",
}

func (repo gradeRepository) GetRecord(ctx context.Context, courseID, studentID string, exec ...core.DBExecutor) (grade.Record, error) {
	ex := executor(repo.db, exec)
	q, args, err := psql.
		Select(gradeColumns...).
		From("grades").
		Where(sq.Eq{"course_id": courseID, "student_id": studentID}).
		ToSql()
	if err != nil {
		return grade.Record{}, err
	}
	var row gradeRow
	if err = sqlx.GetContext(ctx, ex, &row, q, args...); err != nil {
		if err == sql.ErrNoRows {
			return grade.Record{}, grade.ErrNotFound
		}
		return grade.Record{}, errors.Wrap(err, "getting grade record")
	}
	return row.record(), nil
}

func (repo gradeRepository) CreateRecord(ctx context.Context, rec grade.Record, exec ...core.DBExecutor) (grade.Record, error) {
	ex := executor(repo.db, exec)
	now := time.Now().UTC()
	rec.ID = uuid.New().String()
	rec.CreatedAt = now
	rec.UpdatedAt = now
	if rec.Status == "" {
		rec.Status = grade.StatusInProgress
	}
	q, args, err := psql.
		Insert("grades").
		Columns(gradeColumns...).
		Values(
			rec.ID, rec.CourseID, rec.StudentID,
			rec.QuizScore, rec.AssignmentScore, rec.MidtermScore, rec.FinalScore, rec.TotalScore,
			rec.Status, rec.PostedBy, rec.PostedAt, rec.ApprovedBy, rec.ApprovedAt,
			rec.CreatedAt, rec.UpdatedAt,
		).
		ToSql()
	if err != nil {
		return grade.Record{}, err
	}
	if _, err = ex.ExecContext(ctx, q, args...); err != nil {
		return grade.Record{}, errors.Wrap(err, "creating grade record")
	}
	return rec, nil
}

func (repo gradeRepository) UpdateRecord(ctx context.Context, rec grade.Record, exec ...core.DBExecutor) (grade.Record, error) {
	ex := executor(repo.db, exec)
	rec.UpdatedAt = time.Now().UTC()
	q, args, err := psql.
		Update("grades").
		Set("quiz_score", rec.QuizScore).
		Set("assignment_score", rec.AssignmentScore).
		Set("midterm_score", rec.MidtermScore).
		Set("final_score", rec.FinalScore).
		Set("total_score", rec.TotalScore).
		Set("status", rec.Status).
		Set("posted_by", rec.PostedBy).
		Set("posted_at", rec.PostedAt).
		Set("approved_by", rec.ApprovedBy).
		Set("approved_at", rec.ApprovedAt).
		Set("updated_at", rec.UpdatedAt).
		Where(sq.Eq{"id": rec.ID}).
		ToSql()
	if err != nil {
		return grade.Record{}, err
	}
	res, err := ex.ExecContext(ctx, q, args...)
	if err != nil {
		return grade.Record{}, errors.Wrap(err, "updating grade record")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return grade.Record{}, grade.ErrNotFound
	}
	return rec, nil
}

// orderableGradeColumns are the fields callers may sort grade records by.
var orderableGradeColumns = map[string]bool{
	"student_id":  true,
	"total_score": true,
	"status":      true,
	"updated_at":  true,
}

func (repo gradeRepository) QueryCourseRecords(ctx context.Context, courseID string, ordering []core.DBOrdering, exec ...core.DBExecutor) ([]grade.Record, error) {
	ex := executor(repo.db, exec)
	orderBy := make([]string, 0, len(ordering)+1)
	for _, ord := range ordering {
		if orderableGradeColumns[ord.Field] {
			orderBy = append(orderBy, ord.String())
		}
	}
	if len(orderBy) == 0 {
		orderBy = append(orderBy, "student_id ASC")
	}
	q, args, err := psql.
		Select(gradeColumns...).
		From("grades").
		Where(sq.Eq{"course_id": courseID}).
		OrderBy(orderBy...).
		ToSql()
	if err != nil {
		return nil, err
	}
	var rows []gradeRow
	if err = sqlx.SelectContext(ctx, ex, &rows, q, args...); err != nil {
		return nil, errors.Wrap(err, "querying course records")
	}
	recs := make([]grade.Record, len(rows))
	for i, row := range rows {
		recs[i] = row.record()
	}
	return recs, nil
}

func (repo gradeRepository) UpdateStatus(
	ctx context.Context,
	courseID string,
	from, to grade.Status,
	actorID string,
	at time.Time,
	exec ...core.DBExecutor,
) (int, error) {
	ex := executor(repo.db, exec)
	update := psql.
		Update("grades").
		Set("status", to).
		Set("updated_at", at).
		Where(sq.Eq{"course_id": courseID, "status": from})
	switch to {
	case grade.StatusPendingApproval:
		update = update.Set("posted_by", actorID).Set("posted_at", at)
	case grade.StatusPosted, grade.StatusRejected:
		// rejections record the acting admin in approved_by/approved_at too
		update = update.Set("approved_by", actorID).Set("approved_at", at)
	}
	q, args, err := update.ToSql()
	if err != nil {
		return 0, err
	}
	res, err := ex.ExecContext(ctx, q, args...)
	if err != nil {
		return 0, errors.Wrap(err, "updating grade statuses")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, errors.Wrap(err, "counting updated rows")
	}
	return int(n), nil
}

func (repo gradeRepository) StudentsWithStatus(ctx context.Context, courseID string, status grade.Status, exec ...core.DBExecutor) ([]string, error) {
	ex := executor(repo.db, exec)
	q, args, err := psql.
		Select("student_id").
		From("grades").
		Where(sq.Eq{"course_id": courseID, "status": status}).
		OrderBy("student_id ASC").
		ToSql()
	if err != nil {
		return nil, err
	}
	var ids []string
	if err = sqlx.SelectContext(ctx, ex, &ids, q, args...); err != nil {
		return nil, errors.Wrap(err, "querying students by status")
	}
	return ids, nil
}

type courseGradeRow struct {
	CourseID    string       `db:"course_id"`
	SemesterID  string       `db:"semester_id"`
	CreditHours float64      `db:"credit_hours"`
	FinalGrade  null.String  `db:"final_grade"`
	TotalScore  null.Float64 `db:"total_score"`
}

func (row courseGradeRow) courseGrade() grade.CourseGrade {
	return grade.CourseGrade{
		CourseID:    row.CourseID,
		SemesterID:  row.SemesterID,
		CreditHours: row.CreditHours,
		FinalGrade:  row.FinalGrade,
		TotalScore:  row.TotalScore,
	}
}

func (repo gradeRepository) QueryPostedGrades(ctx context.Context, studentID string, exec ...core.DBExecutor) ([]grade.CourseGrade, error) {
	ex := executor(repo.db, exec)
	q, args, err := psql.
		Select("g.course_id", "c.semester_id", "c.credit_hours", "NULL::text AS final_grade", "g.total_score").
		From("grades g").
		Join("courses c ON c.id = g.course_id").
		Join("enrollments e ON e.course_id = g.course_id AND e.student_id = g.student_id").
		Where(sq.Eq{"g.student_id": studentID, "g.status": grade.StatusPosted}).
		Where("g.posted_at IS NOT NULL").
		Where("g.approved_at IS NOT NULL").
		Where("e.final_grade IS NULL"). // the stored letter grade takes precedence
		ToSql()
	if err != nil {
		return nil, err
	}
	var rows []courseGradeRow
	if err = sqlx.SelectContext(ctx, ex, &rows, q, args...); err != nil {
		return nil, errors.Wrap(err, "querying posted grades")
	}
	grades := make([]grade.CourseGrade, len(rows))
	for i, row := range rows {
		grades[i] = row.courseGrade()
	}
	return grades, nil
}

func (repo gradeRepository) QueryCompletedCourses(ctx context.Context, studentID string, exec ...core.DBExecutor) ([]grade.CourseGrade, error) {
	ex := executor(repo.db, exec)
	q, args, err := psql.
		Select("e.course_id", "c.semester_id", "c.credit_hours", "e.final_grade", "NULL::double precision AS total_score").
		From("enrollments e").
		Join("courses c ON c.id = e.course_id").
		Where(sq.Eq{"e.student_id": studentID}).
		Where("e.final_grade IS NOT NULL").
		ToSql()
	if err != nil {
		return nil, err
	}
	var rows []courseGradeRow
	if err = sqlx.SelectContext(ctx, ex, &rows, q, args...); err != nil {
		return nil, errors.Wrap(err, "querying completed courses")
	}
	grades := make([]grade.CourseGrade, len(rows))
	for i, row := range rows {
		grades[i] = row.courseGrade()
	}
	return grades, nil
}

func (repo gradeRepository) UpsertGPARecord(ctx context.Context, rec grade.GPARecord, exec ...core.DBExecutor) error {
	ex := executor(repo.db, exec)
	q, args, err := psql.
		Insert("gpa_records").
		Columns("student_id", "semester_id", "semester_gpa", "cumulative_gpa", "computed_at").
		Values(rec.StudentID, rec.SemesterID, rec.SemesterGPA, rec.CumulativeGPA, rec.ComputedAt).
		Suffix(`ON CONFLICT (student_id, semester_id) DO UPDATE SET
			semester_gpa = EXCLUDED.semester_gpa,
			cumulative_gpa = EXCLUDED.cumulative_gpa,
			computed_at = EXCLUDED.computed_at`).
		ToSql()
	if err != nil {
		return err
	}
	if _, err = ex.ExecContext(ctx, q, args...); err != nil {
		return errors.Wrap(err, "upserting GPA record")
	}
	return nil
}

func (repo gradeRepository) GetCourse(ctx context.Context, courseID string, exec ...core.DBExecutor) (grade.CourseInfo, error) {
	ex := executor(repo.db, exec)
	q, args, err := psql.
		Select("c.id", "c.code", "c.title", "c.semester_id", "c.credit_hours", "c.instructor_id", "i.name AS instructor_name", "i.email AS instructor_email").
		From("courses c").
		Join("instructors i ON i.id = c.instructor_id").
		Where(sq.Eq{"c.id": courseID}).
		ToSql()
	if err != nil {
		return grade.CourseInfo{}, err
	}
	var row struct {
		ID              string  `db:"id"`
		Code            string  `db:"code"`
		Title           string  `db:"title"`
		SemesterID      string  `db:"semester_id"`
		CreditHours     float64 `db:"credit_hours"`
		InstructorID    string  `db:"instructor_id"`
		InstructorName  string  `db:"instructor_name"`
		InstructorEmail string  `db:"instructor_email"`
	}
	if err = sqlx.GetContext(ctx, ex, &row, q, args...); err != nil {
		if err == sql.ErrNoRows {
			return grade.CourseInfo{}, grade.ErrCourseNotFound
		}
		return grade.CourseInfo{}, errors.Wrap(err, "getting course")
	}
	return grade.CourseInfo{
		ID:              row.ID,
		Code:            row.Code,
		Title:           row.Title,
		SemesterID:      row.SemesterID,
		CreditHours:     row.CreditHours,
		InstructorID:    row.InstructorID,
		InstructorName:  row.InstructorName,
		InstructorEmail: row.InstructorEmail,
	}, nil
}

func (repo gradeRepository) IsCourseInstructor(ctx context.Context, courseID, instructorID string, exec ...core.DBExecutor) (bool, error) {
	ex := executor(repo.db, exec)
	return exists(ctx, ex, psql.
		Select("1").
		From("courses").
		Where(sq.Eq{"id": courseID, "instructor_id": instructorID}),
	)
}

func (repo gradeRepository) IsEnrolled(ctx context.Context, courseID, studentID string, exec ...core.DBExecutor) (bool, error) {
	ex := executor(repo.db, exec)
	return exists(ctx, ex, psql.
		Select("1").
		From("enrollments").
		Where(sq.Eq{"course_id": courseID, "student_id": studentID}),
	)
}
