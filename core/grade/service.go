package grade

import (
	"context"
	"fmt"
	"net/mail"
	"time"

	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/shule/core"
)

type (
	Repository interface {
		GetWeights(ctx context.Context, courseID string, exec ...core.DBExecutor) (WeightConfig, error)
		UpsertWeights(ctx context.Context, w WeightConfig, exec ...core.DBExecutor) (WeightConfig, error)
		GetRecord(ctx context.Context, courseID, studentID string, exec ...core.DBExecutor) (Record, error)
		CreateRecord(ctx context.Context, rec Record, exec ...core.DBExecutor) (Record, error)
		UpdateRecord(ctx context.Context, rec Record, exec ...core.DBExecutor) (Record, error)
		// QueryCourseRecords lists a course's grade records, sorted by
		// student_id unless an ordering is given. Unknown ordering fields
		// are ignored.
		QueryCourseRecords(ctx context.Context, courseID string, ordering []core.DBOrdering, exec ...core.DBExecutor) ([]Record, error)
		// UpdateStatus transitions every record of courseID currently in `from`
		// to `to`, stamping posted_by/posted_at or approved_by/approved_at as
		// the target status requires. It reports the number of rows affected.
		UpdateStatus(ctx context.Context, courseID string, from, to Status, actorID string, at time.Time, exec ...core.DBExecutor) (int, error)
		StudentsWithStatus(ctx context.Context, courseID string, status Status, exec ...core.DBExecutor) ([]string, error)
		// QueryPostedGrades returns the GPA inputs from approved grade records:
		// only rows with status=posted and both posted_at and approved_at set.
		QueryPostedGrades(ctx context.Context, studentID string, exec ...core.DBExecutor) ([]CourseGrade, error)
		// QueryCompletedCourses returns the GPA inputs from enrollments that
		// carry a stored final letter grade.
		QueryCompletedCourses(ctx context.Context, studentID string, exec ...core.DBExecutor) ([]CourseGrade, error)
		UpsertGPARecord(ctx context.Context, rec GPARecord, exec ...core.DBExecutor) error
		GetCourse(ctx context.Context, courseID string, exec ...core.DBExecutor) (CourseInfo, error)
		IsCourseInstructor(ctx context.Context, courseID, instructorID string, exec ...core.DBExecutor) (bool, error)
		IsEnrolled(ctx context.Context, courseID, studentID string, exec ...core.DBExecutor) (bool, error)
	}

	// SemesterProvider resolves the semester that approvals are recorded
	// against. It is an explicit collaborator so the workflow never reads
	// ambient "current semester" state.
	SemesterProvider interface {
		CurrentSemesterID(ctx context.Context) (string, error)
	}

	Service struct {
		db        core.DB
		repo      Repository
		semesters SemesterProvider
		mailSvc   core.EmailService
		logger    core.Logger
		conf      *core.Config
	}
)

func NewService(
	db core.DB,
	repo Repository,
	semesters SemesterProvider,
	mailSvc core.EmailService,
	logger core.Logger,
	conf *core.Config,
) *Service {
	return &Service{
		db:        db,
		repo:      repo,
		semesters: semesters,
		mailSvc:   mailSvc,
		logger:    logger,
		conf:      conf,
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

// SetWeights validates and stores a course's component weights, then
// recomputes every grade record of the course against them. The upsert and
// the full recompute run in one transaction; an invalid tuple mutates nothing.
func (svc *Service) SetWeights(ctx context.Context, courseID, instructorID string, nw NewWeights) (WeightConfig, error) {
	if err := svc.checkInstructor(ctx, courseID, instructorID); err != nil {
		return WeightConfig{}, err
	}

	w := WeightConfig{
		CourseID:         courseID,
		QuizWeight:       nw.QuizWeight,
		AssignmentWeight: nw.AssignmentWeight,
		MidtermWeight:    nw.MidtermWeight,
		FinalWeight:      nw.FinalWeight,
		UpdatedAt:        time.Now().UTC(),
	}

	err := core.Atomic(ctx, svc.db, func(tx core.DBExecutor) error {
		var err error
		if w, err = svc.repo.UpsertWeights(ctx, w, tx); err != nil {
			return errors.Wrap(err, "upserting weights")
		}
		return svc.recomputeCourse(ctx, courseID, w, nil, tx)
	})
	if err != nil {
		return WeightConfig{}, err
	}
	return w, nil
}

// UpdateScore records an instructor's edit of one component score and
// recomputes the record's total in the same transaction. The Record is
// created on first entry. Editing a rejected record silently reopens it to
// in_progress; records pending approval or already posted are locked.
func (svc *Service) UpdateScore(ctx context.Context, courseID, studentID, instructorID string, us UpdateScore) (Record, error) {
	if err := svc.checkInstructor(ctx, courseID, instructorID); err != nil {
		return Record{}, err
	}
	if err := svc.checkEnrollment(ctx, courseID, studentID); err != nil {
		return Record{}, err
	}

	var rec Record
	err := core.Atomic(ctx, svc.db, func(tx core.DBExecutor) error {
		weights, err := svc.repo.GetWeights(ctx, courseID, tx)
		if err != nil {
			return err
		}

		now := time.Now().UTC()
		rec, err = svc.repo.GetRecord(ctx, courseID, studentID, tx)
		switch errors.Cause(err) {
		case nil:
		case ErrNotFound:
			rec = Record{
				CourseID:  courseID,
				StudentID: studentID,
				Status:    StatusInProgress,
				CreatedAt: now,
			}
			if rec, err = svc.repo.CreateRecord(ctx, rec, tx); err != nil {
				return errors.Wrap(err, "creating grade record")
			}
		default:
			return errors.Wrap(err, "finding grade record")
		}

		switch rec.Status {
		case StatusInProgress:
		case StatusRejected:
			rec.Status = StatusInProgress
		default:
			return ErrGradesLocked
		}

		rec.SetComponentScore(us.Component, null.Float64From(us.Score))
		Recompute(&rec, weights)
		rec.UpdatedAt = now

		if rec, err = svc.repo.UpdateRecord(ctx, rec, tx); err != nil {
			return errors.Wrap(err, "updating grade record")
		}
		return nil
	})
	if err != nil {
		return Record{}, err
	}
	return rec, nil
}

// RecordQuizScore folds an auto-graded quiz average into the course's quiz
// component for one student and recomputes the total. Records pending
// approval or posted are left untouched so approved grades cannot drift.
func (svc *Service) RecordQuizScore(ctx context.Context, courseID, studentID string, score float64) error {
	return core.Atomic(ctx, svc.db, func(tx core.DBExecutor) error {
		weights, err := svc.repo.GetWeights(ctx, courseID, tx)
		if err != nil && errors.Cause(err) != ErrWeightsNotConfigured {
			return err
		}

		now := time.Now().UTC()
		rec, err := svc.repo.GetRecord(ctx, courseID, studentID, tx)
		switch errors.Cause(err) {
		case nil:
		case ErrNotFound:
			rec = Record{
				CourseID:  courseID,
				StudentID: studentID,
				Status:    StatusInProgress,
				CreatedAt: now,
			}
			if rec, err = svc.repo.CreateRecord(ctx, rec, tx); err != nil {
				return errors.Wrap(err, "creating grade record")
			}
		default:
			return errors.Wrap(err, "finding grade record")
		}

		if rec.Status == StatusPendingApproval || rec.Status == StatusPosted {
			svc.logger.Info(fmt.Sprintf(
				"skipping quiz score fold: grades %s for student %s in course %s", rec.Status, studentID, courseID))
			return nil
		}

		rec.QuizScore = null.Float64From(score)
		Recompute(&rec, weights)
		rec.UpdatedAt = now

		_, err = svc.repo.UpdateRecord(ctx, rec, tx)
		return errors.Wrap(err, "updating grade record")
	})
}

// Recompute re-derives total scores for a course, optionally restricted to
// specific students. It is the recompute-on-write hook exposed to callers
// that edit component inputs out of band.
func (svc *Service) Recompute(ctx context.Context, courseID string, studentIDs ...string) error {
	return core.Atomic(ctx, svc.db, func(tx core.DBExecutor) error {
		weights, err := svc.repo.GetWeights(ctx, courseID, tx)
		if err != nil {
			return err
		}
		return svc.recomputeCourse(ctx, courseID, weights, studentIDs, tx)
	})
}

func (svc *Service) recomputeCourse(ctx context.Context, courseID string, w WeightConfig, studentIDs []string, exec ...core.DBExecutor) error {
	records, err := svc.repo.QueryCourseRecords(ctx, courseID, nil, exec...)
	if err != nil {
		return errors.Wrap(err, "querying course grade records")
	}

	var only map[string]bool
	if len(studentIDs) > 0 {
		only = make(map[string]bool, len(studentIDs))
		for _, id := range studentIDs {
			only[id] = true
		}
	}

	now := time.Now().UTC()
	for i := range records {
		rec := &records[i]
		if only != nil && !only[rec.StudentID] {
			continue
		}
		if !Recompute(rec, w) {
			continue
		}
		rec.UpdatedAt = now
		if _, err = svc.repo.UpdateRecord(ctx, *rec, exec...); err != nil {
			return errors.Wrap(err, "updating recomputed grade record")
		}
	}
	return nil
}

// PostGrades moves a course's editable grades into the admin review queue:
// every in_progress record becomes pending_approval, stamped with the posting
// instructor and time. Zero affected rows is a no-op, not an error.
func (svc *Service) PostGrades(ctx context.Context, courseID, instructorID string) (int, error) {
	if err := svc.checkInstructor(ctx, courseID, instructorID); err != nil {
		return 0, err
	}
	updated, err := svc.repo.UpdateStatus(ctx, courseID, StatusInProgress, StatusPendingApproval, instructorID, time.Now().UTC())
	if err != nil {
		return 0, errors.Wrap(err, "posting grades")
	}
	return updated, nil
}

// ApprovalResult reports what an approval touched.
type ApprovalResult struct {
	UpdatedCount     int      `json:"updated_count"`
	GPARecomputedFor []string `json:"gpa_recomputed_for"`
}

// ApproveGrades finalizes a course's pending grades and recomputes the
// semester and cumulative GPA of every student with posted grades in the
// course. The status transition and all GPA upserts commit or roll back as
// one transaction; "approved but GPA not updated" is never observable.
// Calling it again is a no-op reporting zero updates.
func (svc *Service) ApproveGrades(ctx context.Context, courseID, adminID string) (ApprovalResult, error) {
	semesterID, err := svc.semesters.CurrentSemesterID(ctx)
	if err != nil {
		return ApprovalResult{}, errors.Wrap(err, "resolving current semester")
	}

	var res ApprovalResult
	err = core.Atomic(ctx, svc.db, func(tx core.DBExecutor) error {
		now := time.Now().UTC()
		updated, err := svc.repo.UpdateStatus(ctx, courseID, StatusPendingApproval, StatusPosted, adminID, now, tx)
		if err != nil {
			return errors.Wrap(err, "approving grades")
		}
		res.UpdatedCount = updated
		if updated == 0 {
			return nil
		}

		students, err := svc.repo.StudentsWithStatus(ctx, courseID, StatusPosted, tx)
		if err != nil {
			return errors.Wrap(err, "listing affected students")
		}

		for _, studentID := range students {
			grades, err := svc.gradeInputs(ctx, studentID, tx)
			if err != nil {
				return err
			}
			gpaRec := GPARecord{
				StudentID:     studentID,
				SemesterID:    semesterID,
				SemesterGPA:   SemesterGPA(grades, semesterID),
				CumulativeGPA: GPA(grades),
				ComputedAt:    now,
			}
			if err = svc.repo.UpsertGPARecord(ctx, gpaRec, tx); err != nil {
				return errors.Wrap(err, "upserting GPA record")
			}
		}
		res.GPARecomputedFor = students
		return nil
	})
	if err != nil {
		return ApprovalResult{}, err
	}
	return res, nil
}

// RejectGrades sends a course's pending grades back to the instructor with a
// required reason: pending_approval records become rejected, stamped with the
// rejecting admin and time. The instructor is notified by email; a failed
// send is logged by the email service and never fails the rejection. No GPA
// work happens here.
func (svc *Service) RejectGrades(ctx context.Context, courseID, adminID, reason string) (int, error) {
	reason = core.CleanString(reason)
	if reason == "" {
		return 0, core.NewValidationError(nil, core.FieldError{Field: "reason", Error: "this field is required"})
	}

	updated, err := svc.repo.UpdateStatus(ctx, courseID, StatusPendingApproval, StatusRejected, adminID, time.Now().UTC())
	if err != nil {
		return 0, errors.Wrap(err, "rejecting grades")
	}
	if updated == 0 {
		return 0, nil
	}

	course, err := svc.repo.GetCourse(ctx, courseID)
	if err != nil {
		svc.logger.Error(fmt.Sprintf("loading course %s for rejection notice: %v", courseID, err), err)
		return updated, nil
	}
	svc.mailSvc.SendMessages(&core.EmailMessage{
		To:           []mail.Address{{Name: course.InstructorName, Address: course.InstructorEmail}},
		Subject:      fmt.Sprintf("Grade Rejection: %s", course.Code),
		TemplateName: "grades-rejected",
		TemplateData: struct {
			Course CourseInfo
			Reason string
		}{course, reason},
	})
	return updated, nil
}

// CourseGrades returns an instructor's grade sheet for a course.
func (svc *Service) CourseGrades(ctx context.Context, courseID, instructorID string, ordering ...core.DBOrdering) (GradeSheet, error) {
	if err := svc.checkInstructor(ctx, courseID, instructorID); err != nil {
		return GradeSheet{}, err
	}

	course, err := svc.repo.GetCourse(ctx, courseID)
	if err != nil {
		return GradeSheet{}, errors.Wrap(err, "finding course")
	}

	sheet := GradeSheet{Course: course}
	switch weights, err := svc.repo.GetWeights(ctx, courseID); errors.Cause(err) {
	case nil:
		sheet.WeightsSet = true
		sheet.Weights = weights
	case ErrWeightsNotConfigured:
	default:
		return GradeSheet{}, errors.Wrap(err, "finding weights")
	}

	if sheet.Records, err = svc.repo.QueryCourseRecords(ctx, courseID, ordering); err != nil {
		return GradeSheet{}, errors.Wrap(err, "querying grade records")
	}
	return sheet, nil
}

// StudentGPA computes a student's cumulative GPA over completed courses and
// approved grade records.
func (svc *Service) StudentGPA(ctx context.Context, studentID string) (float64, error) {
	grades, err := svc.gradeInputs(ctx, studentID)
	if err != nil {
		return 0, err
	}
	return GPA(grades), nil
}

// StudentSemesterGPA computes a student's GPA restricted to one semester.
func (svc *Service) StudentSemesterGPA(ctx context.Context, studentID, semesterID string) (float64, error) {
	grades, err := svc.gradeInputs(ctx, studentID)
	if err != nil {
		return 0, err
	}
	return SemesterGPA(grades, semesterID), nil
}

// gradeInputs gathers every course grade contributing to this student's GPA:
// completed courses via their stored letter grade, plus approved records via
// their numeric total. Pending, rejected and draft grades never contribute.
// A course counts once: its stored letter grade takes precedence over a posted
// numeric total.
func (svc *Service) gradeInputs(ctx context.Context, studentID string, exec ...core.DBExecutor) ([]CourseGrade, error) {
	completed, err := svc.repo.QueryCompletedCourses(ctx, studentID, exec...)
	if err != nil {
		return nil, errors.Wrap(err, "querying completed courses")
	}
	posted, err := svc.repo.QueryPostedGrades(ctx, studentID, exec...)
	if err != nil {
		return nil, errors.Wrap(err, "querying posted grades")
	}

	lettered := make(map[string]bool, len(completed))
	for _, cg := range completed {
		lettered[cg.CourseID] = true
	}
	grades := completed
	for _, cg := range posted {
		if lettered[cg.CourseID] {
			continue
		}
		grades = append(grades, cg)
	}
	return grades, nil
}
