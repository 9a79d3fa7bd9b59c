package grade

import (
	"context"
	"sort"
	"testing"
	"time"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/shule/core"
	testutil "github.com/trezcool/shule/tests"
)

func newTestValidator(t *testing.T) *validator.Validate {
	t.Helper()
	validate := validator.New()
	_en := en.New()
	uni := ut.New(_en, _en)
	translator, _ := uni.GetTranslator("en")
	core.InitValidators(validate, translator)
	return validate
}

// fakeGradeRepo is an in-memory Repository; it ignores the executor it is
// handed, the fake DB's transactions are no-ops.
type fakeGradeRepo struct {
	weights     map[string]WeightConfig       // courseID
	records     map[string]map[string]*Record // courseID -> studentID
	gpaRecords  map[string]GPARecord          // studentID+semesterID
	courses     map[string]CourseInfo         // courseID
	enrollments map[string]map[string]bool    // courseID -> studentID
	completed   map[string][]CourseGrade      // studentID
	nextID      int
}

var _ Repository = (*fakeGradeRepo)(nil)

func newFakeGradeRepo() *fakeGradeRepo {
	return &fakeGradeRepo{
		weights:     make(map[string]WeightConfig),
		records:     make(map[string]map[string]*Record),
		gpaRecords:  make(map[string]GPARecord),
		courses:     make(map[string]CourseInfo),
		enrollments: make(map[string]map[string]bool),
		completed:   make(map[string][]CourseGrade),
	}
}

func (repo *fakeGradeRepo) addCourse(course CourseInfo, studentIDs ...string) {
	repo.courses[course.ID] = course
	repo.enrollments[course.ID] = make(map[string]bool, len(studentIDs))
	for _, sid := range studentIDs {
		repo.enrollments[course.ID][sid] = true
	}
}

func (repo *fakeGradeRepo) GetWeights(_ context.Context, courseID string, _ ...core.DBExecutor) (WeightConfig, error) {
	w, ok := repo.weights[courseID]
	if !ok {
		return WeightConfig{}, ErrWeightsNotConfigured
	}
	return w, nil
}

func (repo *fakeGradeRepo) UpsertWeights(_ context.Context, w WeightConfig, _ ...core.DBExecutor) (WeightConfig, error) {
	repo.weights[w.CourseID] = w
	return w, nil
}

func (repo *fakeGradeRepo) GetRecord(_ context.Context, courseID, studentID string, _ ...core.DBExecutor) (Record, error) {
	if rec, ok := repo.records[courseID][studentID]; ok {
		return *rec, nil
	}
	return Record{}, ErrNotFound
}

func (repo *fakeGradeRepo) CreateRecord(_ context.Context, rec Record, _ ...core.DBExecutor) (Record, error) {
	repo.nextID++
	rec.ID = "rec-" + string(rune('0'+repo.nextID))
	if repo.records[rec.CourseID] == nil {
		repo.records[rec.CourseID] = make(map[string]*Record)
	}
	stored := rec
	repo.records[rec.CourseID][rec.StudentID] = &stored
	return rec, nil
}

func (repo *fakeGradeRepo) UpdateRecord(_ context.Context, rec Record, _ ...core.DBExecutor) (Record, error) {
	stored, ok := repo.records[rec.CourseID][rec.StudentID]
	if !ok {
		return Record{}, ErrNotFound
	}
	*stored = rec
	return rec, nil
}

func (repo *fakeGradeRepo) QueryCourseRecords(_ context.Context, courseID string, _ []core.DBOrdering, _ ...core.DBExecutor) ([]Record, error) {
	recs := make([]Record, 0, len(repo.records[courseID]))
	for _, rec := range repo.records[courseID] {
		recs = append(recs, *rec)
	}
	sort.Slice(recs, func(i, j int) bool { return recs[i].StudentID < recs[j].StudentID })
	return recs, nil
}

func (repo *fakeGradeRepo) UpdateStatus(_ context.Context, courseID string, from, to Status, actorID string, at time.Time, _ ...core.DBExecutor) (int, error) {
	var n int
	for _, rec := range repo.records[courseID] {
		if rec.Status != from {
			continue
		}
		rec.Status = to
		rec.UpdatedAt = at
		switch to {
		case StatusPendingApproval:
			rec.PostedBy = null.StringFrom(actorID)
			rec.PostedAt = null.TimeFrom(at)
		case StatusPosted, StatusRejected:
			rec.ApprovedBy = null.StringFrom(actorID)
			rec.ApprovedAt = null.TimeFrom(at)
		}
		n++
	}
	return n, nil
}

func (repo *fakeGradeRepo) StudentsWithStatus(_ context.Context, courseID string, status Status, _ ...core.DBExecutor) ([]string, error) {
	var ids []string
	for sid, rec := range repo.records[courseID] {
		if rec.Status == status {
			ids = append(ids, sid)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

func (repo *fakeGradeRepo) QueryPostedGrades(_ context.Context, studentID string, _ ...core.DBExecutor) ([]CourseGrade, error) {
	var grades []CourseGrade
	for courseID, recs := range repo.records {
		rec, ok := recs[studentID]
		if !ok || rec.Status != StatusPosted || !rec.PostedAt.Valid || !rec.ApprovedAt.Valid {
			continue
		}
		course := repo.courses[courseID]
		grades = append(grades, CourseGrade{
			CourseID:    courseID,
			SemesterID:  course.SemesterID,
			CreditHours: course.CreditHours,
			TotalScore:  rec.TotalScore,
		})
	}
	return grades, nil
}

func (repo *fakeGradeRepo) QueryCompletedCourses(_ context.Context, studentID string, _ ...core.DBExecutor) ([]CourseGrade, error) {
	return repo.completed[studentID], nil
}

func (repo *fakeGradeRepo) UpsertGPARecord(_ context.Context, rec GPARecord, _ ...core.DBExecutor) error {
	repo.gpaRecords[rec.StudentID+"/"+rec.SemesterID] = rec
	return nil
}

func (repo *fakeGradeRepo) GetCourse(_ context.Context, courseID string, _ ...core.DBExecutor) (CourseInfo, error) {
	course, ok := repo.courses[courseID]
	if !ok {
		return CourseInfo{}, ErrCourseNotFound
	}
	return course, nil
}

func (repo *fakeGradeRepo) IsCourseInstructor(_ context.Context, courseID, instructorID string, _ ...core.DBExecutor) (bool, error) {
	course, ok := repo.courses[courseID]
	return ok && course.InstructorID == instructorID, nil
}

func (repo *fakeGradeRepo) IsEnrolled(_ context.Context, courseID, studentID string, _ ...core.DBExecutor) (bool, error) {
	return repo.enrollments[courseID][studentID], nil
}

const (
	testCourseID     = "course-1"
	testInstructorID = "teacher-1"
	testAdminID      = "admin-1"
	testSemesterID   = "sem-1"
)

func setup(t *testing.T) (*Service, *fakeGradeRepo, *testutil.FakeEmailService) {
	t.Helper()
	repo := newFakeGradeRepo()
	repo.addCourse(CourseInfo{
		ID:              testCourseID,
		Code:            "CS101",
		Title:           "Intro to Computer Science",
		SemesterID:      testSemesterID,
		CreditHours:     3,
		InstructorID:    testInstructorID,
		InstructorName:  "Ada",
		InstructorEmail: "ada@shule.cd",
	}, "student-1", "student-2")

	mailSvc := &testutil.FakeEmailService{}
	svc := NewService(
		testutil.FakeDB{},
		repo,
		testutil.FakeSemesterProvider{SemesterID: testSemesterID},
		mailSvc,
		&testutil.FakeLogger{},
		&core.Config{},
	)
	return svc, repo, mailSvc
}

func setStandardWeights(t *testing.T, svc *Service) {
	t.Helper()
	_, err := svc.SetWeights(context.Background(), testCourseID, testInstructorID, NewWeights{
		QuizWeight: 30, AssignmentWeight: 30, MidtermWeight: 10, FinalWeight: 30,
	})
	if err != nil {
		t.Fatalf("SetWeights() failed: %v", err)
	}
}

func TestService_SetWeights(t *testing.T) {
	svc, repo, _ := setup(t)
	ctx := context.Background()

	t.Run("not the instructor", func(t *testing.T) {
		_, err := svc.SetWeights(ctx, testCourseID, "someone-else", NewWeights{QuizWeight: 100})
		if err != ErrNotCourseInstructor {
			t.Errorf("SetWeights() error = %v, want %v", err, ErrNotCourseInstructor)
		}
	})

	t.Run("stores and recomputes", func(t *testing.T) {
		// seed a record under old weights
		repo.weights[testCourseID] = WeightConfig{CourseID: testCourseID, QuizWeight: 50, AssignmentWeight: 50}
		rec, _ := repo.CreateRecord(ctx, Record{
			CourseID:  testCourseID,
			StudentID: "student-1",
			Status:    StatusInProgress,
			QuizScore: null.Float64From(80),
		})
		_ = rec

		_, err := svc.SetWeights(ctx, testCourseID, testInstructorID, NewWeights{
			QuizWeight: 30, AssignmentWeight: 30, MidtermWeight: 10, FinalWeight: 30,
		})
		if err != nil {
			t.Fatalf("SetWeights() failed: %v", err)
		}

		if w := repo.weights[testCourseID]; w.QuizWeight != 30 || w.FinalWeight != 30 {
			t.Errorf("stored weights = %+v", w)
		}
		got, _ := repo.GetRecord(ctx, testCourseID, "student-1")
		if !got.TotalScore.Valid || got.TotalScore.Float64 != 80 {
			t.Errorf("recomputed total = %v, want 80", got.TotalScore)
		}
	})
}

func TestService_UpdateScore(t *testing.T) {
	ctx := context.Background()

	t.Run("requires configured weights", func(t *testing.T) {
		svc, _, _ := setup(t)
		_, err := svc.UpdateScore(ctx, testCourseID, "student-1", testInstructorID, UpdateScore{Component: ComponentQuiz, Score: 80})
		if err != ErrWeightsNotConfigured {
			t.Errorf("UpdateScore() error = %v, want %v", err, ErrWeightsNotConfigured)
		}
	})

	t.Run("requires enrollment", func(t *testing.T) {
		svc, _, _ := setup(t)
		setStandardWeights(t, svc)
		_, err := svc.UpdateScore(ctx, testCourseID, "stranger", testInstructorID, UpdateScore{Component: ComponentQuiz, Score: 80})
		if err != ErrNotEnrolled {
			t.Errorf("UpdateScore() error = %v, want %v", err, ErrNotEnrolled)
		}
	})

	t.Run("creates record on first entry and recomputes", func(t *testing.T) {
		svc, repo, _ := setup(t)
		setStandardWeights(t, svc)

		rec, err := svc.UpdateScore(ctx, testCourseID, "student-1", testInstructorID, UpdateScore{Component: ComponentMidterm, Score: 70})
		if err != nil {
			t.Fatalf("UpdateScore() failed: %v", err)
		}
		if rec.Status != StatusInProgress {
			t.Errorf("status = %v, want %v", rec.Status, StatusInProgress)
		}
		if !rec.TotalScore.Valid || rec.TotalScore.Float64 != 70 {
			t.Errorf("total = %v, want 70 (only midterm graded)", rec.TotalScore)
		}
		if _, err = repo.GetRecord(ctx, testCourseID, "student-1"); err != nil {
			t.Errorf("record not persisted: %v", err)
		}
	})

	t.Run("locked once pending approval", func(t *testing.T) {
		svc, _, _ := setup(t)
		setStandardWeights(t, svc)

		if _, err := svc.UpdateScore(ctx, testCourseID, "student-1", testInstructorID, UpdateScore{Component: ComponentQuiz, Score: 80}); err != nil {
			t.Fatalf("UpdateScore() failed: %v", err)
		}
		if _, err := svc.PostGrades(ctx, testCourseID, testInstructorID); err != nil {
			t.Fatalf("PostGrades() failed: %v", err)
		}

		_, err := svc.UpdateScore(ctx, testCourseID, "student-1", testInstructorID, UpdateScore{Component: ComponentQuiz, Score: 90})
		if err != ErrGradesLocked {
			t.Errorf("UpdateScore() error = %v, want %v", err, ErrGradesLocked)
		}
	})

	t.Run("rejected record silently reopens", func(t *testing.T) {
		svc, repo, _ := setup(t)
		setStandardWeights(t, svc)

		if _, err := svc.UpdateScore(ctx, testCourseID, "student-1", testInstructorID, UpdateScore{Component: ComponentQuiz, Score: 80}); err != nil {
			t.Fatalf("UpdateScore() failed: %v", err)
		}
		if _, err := svc.PostGrades(ctx, testCourseID, testInstructorID); err != nil {
			t.Fatalf("PostGrades() failed: %v", err)
		}
		if _, err := svc.RejectGrades(ctx, testCourseID, testAdminID, "midterm missing"); err != nil {
			t.Fatalf("RejectGrades() failed: %v", err)
		}

		rec, err := svc.UpdateScore(ctx, testCourseID, "student-1", testInstructorID, UpdateScore{Component: ComponentMidterm, Score: 60})
		if err != nil {
			t.Fatalf("UpdateScore() after rejection failed: %v", err)
		}
		if rec.Status != StatusInProgress {
			t.Errorf("status = %v, want %v", rec.Status, StatusInProgress)
		}
		stored, _ := repo.GetRecord(ctx, testCourseID, "student-1")
		if stored.Status != StatusInProgress {
			t.Errorf("stored status = %v, want %v", stored.Status, StatusInProgress)
		}
	})
}

func TestService_Workflow(t *testing.T) {
	ctx := context.Background()

	t.Run("post then approve upserts GPA atomically", func(t *testing.T) {
		svc, repo, _ := setup(t)
		setStandardWeights(t, svc)

		for sid, score := range map[string]float64{"student-1": 92, "student-2": 75} {
			if _, err := svc.UpdateScore(ctx, testCourseID, sid, testInstructorID, UpdateScore{Component: ComponentFinal, Score: score}); err != nil {
				t.Fatalf("UpdateScore(%s) failed: %v", sid, err)
			}
		}

		posted, err := svc.PostGrades(ctx, testCourseID, testInstructorID)
		if err != nil {
			t.Fatalf("PostGrades() failed: %v", err)
		}
		if posted != 2 {
			t.Errorf("PostGrades() = %d, want 2", posted)
		}
		rec, _ := repo.GetRecord(ctx, testCourseID, "student-1")
		if rec.Status != StatusPendingApproval || !rec.PostedAt.Valid || rec.PostedBy.String != testInstructorID {
			t.Errorf("posted record = %+v", rec)
		}

		res, err := svc.ApproveGrades(ctx, testCourseID, testAdminID)
		if err != nil {
			t.Fatalf("ApproveGrades() failed: %v", err)
		}
		if res.UpdatedCount != 2 {
			t.Errorf("UpdatedCount = %d, want 2", res.UpdatedCount)
		}
		testutil.Diff(t, []string{"student-1", "student-2"}, res.GPARecomputedFor)

		rec, _ = repo.GetRecord(ctx, testCourseID, "student-1")
		if rec.Status != StatusPosted || !rec.ApprovedAt.Valid || rec.ApprovedBy.String != testAdminID {
			t.Errorf("approved record = %+v", rec)
		}

		// student-1: total 92 -> 4.0 over one 3-credit course
		gpa, ok := repo.gpaRecords["student-1/"+testSemesterID]
		if !ok {
			t.Fatal("GPA record not upserted")
		}
		if gpa.SemesterGPA != 4.0 || gpa.CumulativeGPA != 4.0 {
			t.Errorf("GPA record = %+v, want 4.0/4.0", gpa)
		}
	})

	t.Run("approve is idempotent", func(t *testing.T) {
		svc, repo, _ := setup(t)
		setStandardWeights(t, svc)

		if _, err := svc.UpdateScore(ctx, testCourseID, "student-1", testInstructorID, UpdateScore{Component: ComponentFinal, Score: 88}); err != nil {
			t.Fatalf("UpdateScore() failed: %v", err)
		}
		if _, err := svc.PostGrades(ctx, testCourseID, testInstructorID); err != nil {
			t.Fatalf("PostGrades() failed: %v", err)
		}
		if _, err := svc.ApproveGrades(ctx, testCourseID, testAdminID); err != nil {
			t.Fatalf("ApproveGrades() failed: %v", err)
		}

		before := len(repo.gpaRecords)
		res, err := svc.ApproveGrades(ctx, testCourseID, testAdminID)
		if err != nil {
			t.Fatalf("second ApproveGrades() failed: %v", err)
		}
		if res.UpdatedCount != 0 || len(res.GPARecomputedFor) != 0 {
			t.Errorf("second approval = %+v, want no-op", res)
		}
		if len(repo.gpaRecords) != before {
			t.Error("second approval touched GPA records")
		}
	})

	t.Run("approve includes completed courses in GPA", func(t *testing.T) {
		svc, repo, _ := setup(t)
		setStandardWeights(t, svc)

		// an earlier 3-credit course completed with a C (2.0)
		repo.completed["student-1"] = []CourseGrade{
			{CourseID: "old-course", SemesterID: "sem-0", CreditHours: 3, FinalGrade: null.StringFrom("C")},
		}

		if _, err := svc.UpdateScore(ctx, testCourseID, "student-1", testInstructorID, UpdateScore{Component: ComponentFinal, Score: 92}); err != nil {
			t.Fatalf("UpdateScore() failed: %v", err)
		}
		if _, err := svc.PostGrades(ctx, testCourseID, testInstructorID); err != nil {
			t.Fatalf("PostGrades() failed: %v", err)
		}
		if _, err := svc.ApproveGrades(ctx, testCourseID, testAdminID); err != nil {
			t.Fatalf("ApproveGrades() failed: %v", err)
		}

		gpa := repo.gpaRecords["student-1/"+testSemesterID]
		if gpa.SemesterGPA != 4.0 {
			t.Errorf("SemesterGPA = %v, want 4.0", gpa.SemesterGPA)
		}
		if gpa.CumulativeGPA != 3.0 { // (4.0*3 + 2.0*3) / 6
			t.Errorf("CumulativeGPA = %v, want 3.0", gpa.CumulativeGPA)
		}
	})

	t.Run("reject requires a reason", func(t *testing.T) {
		svc, _, _ := setup(t)
		_, err := svc.RejectGrades(ctx, testCourseID, testAdminID, "   ")
		if _, ok := err.(*core.ValidationError); !ok {
			t.Errorf("RejectGrades() error = %T, want *core.ValidationError", err)
		}
	})

	t.Run("reject notifies instructor and does no GPA work", func(t *testing.T) {
		svc, repo, mailSvc := setup(t)
		setStandardWeights(t, svc)

		if _, err := svc.UpdateScore(ctx, testCourseID, "student-1", testInstructorID, UpdateScore{Component: ComponentFinal, Score: 40}); err != nil {
			t.Fatalf("UpdateScore() failed: %v", err)
		}
		if _, err := svc.PostGrades(ctx, testCourseID, testInstructorID); err != nil {
			t.Fatalf("PostGrades() failed: %v", err)
		}

		rejected, err := svc.RejectGrades(ctx, testCourseID, testAdminID, "scores look wrong")
		if err != nil {
			t.Fatalf("RejectGrades() failed: %v", err)
		}
		if rejected != 1 {
			t.Errorf("RejectGrades() = %d, want 1", rejected)
		}

		rec, _ := repo.GetRecord(ctx, testCourseID, "student-1")
		if rec.Status != StatusRejected {
			t.Errorf("status = %v, want %v", rec.Status, StatusRejected)
		}
		if len(repo.gpaRecords) != 0 {
			t.Error("rejection must not touch GPA records")
		}

		if len(mailSvc.Messages) != 1 {
			t.Fatalf("sent %d messages, want 1", len(mailSvc.Messages))
		}
		msg := mailSvc.Messages[0]
		if msg.TemplateName != "grades-rejected" {
			t.Errorf("template = %q, want grades-rejected", msg.TemplateName)
		}
		if len(msg.To) != 1 || msg.To[0].Address != "ada@shule.cd" {
			t.Errorf("recipients = %+v", msg.To)
		}
	})

	t.Run("reject scoped to one course", func(t *testing.T) {
		svc, repo, _ := setup(t)
		setStandardWeights(t, svc)

		repo.addCourse(CourseInfo{
			ID: "course-2", Code: "CS102", SemesterID: testSemesterID, CreditHours: 3,
			InstructorID: testInstructorID, InstructorName: "Ada", InstructorEmail: "ada@shule.cd",
		}, "student-1")
		repo.weights["course-2"] = WeightConfig{CourseID: "course-2", QuizWeight: 100}

		for _, courseID := range []string{testCourseID, "course-2"} {
			if _, err := svc.UpdateScore(ctx, courseID, "student-1", testInstructorID, UpdateScore{Component: ComponentQuiz, Score: 50}); err != nil {
				t.Fatalf("UpdateScore(%s) failed: %v", courseID, err)
			}
			if _, err := svc.PostGrades(ctx, courseID, testInstructorID); err != nil {
				t.Fatalf("PostGrades(%s) failed: %v", courseID, err)
			}
		}

		if _, err := svc.RejectGrades(ctx, testCourseID, testAdminID, "redo"); err != nil {
			t.Fatalf("RejectGrades() failed: %v", err)
		}

		other, _ := repo.GetRecord(ctx, "course-2", "student-1")
		if other.Status != StatusPendingApproval {
			t.Errorf("other course status = %v, want untouched %v", other.Status, StatusPendingApproval)
		}
	})
}

func TestService_RecordQuizScore(t *testing.T) {
	ctx := context.Background()

	t.Run("sets quiz component and total", func(t *testing.T) {
		svc, repo, _ := setup(t)
		setStandardWeights(t, svc)

		if err := svc.RecordQuizScore(ctx, testCourseID, "student-1", 85); err != nil {
			t.Fatalf("RecordQuizScore() failed: %v", err)
		}
		rec, _ := repo.GetRecord(ctx, testCourseID, "student-1")
		if rec.QuizScore.Float64 != 85 {
			t.Errorf("quiz score = %v, want 85", rec.QuizScore)
		}
		if !rec.TotalScore.Valid || rec.TotalScore.Float64 != 85 {
			t.Errorf("total = %v, want 85", rec.TotalScore)
		}
	})

	t.Run("works without configured weights", func(t *testing.T) {
		svc, repo, _ := setup(t)

		if err := svc.RecordQuizScore(ctx, testCourseID, "student-1", 70); err != nil {
			t.Fatalf("RecordQuizScore() failed: %v", err)
		}
		rec, _ := repo.GetRecord(ctx, testCourseID, "student-1")
		if rec.QuizScore.Float64 != 70 {
			t.Errorf("quiz score = %v, want 70", rec.QuizScore)
		}
		if rec.TotalScore.Valid {
			t.Errorf("total = %v, want null without weights", rec.TotalScore)
		}
	})

	t.Run("skips records in review", func(t *testing.T) {
		svc, repo, _ := setup(t)
		setStandardWeights(t, svc)

		if _, err := svc.UpdateScore(ctx, testCourseID, "student-1", testInstructorID, UpdateScore{Component: ComponentQuiz, Score: 60}); err != nil {
			t.Fatalf("UpdateScore() failed: %v", err)
		}
		if _, err := svc.PostGrades(ctx, testCourseID, testInstructorID); err != nil {
			t.Fatalf("PostGrades() failed: %v", err)
		}

		if err := svc.RecordQuizScore(ctx, testCourseID, "student-1", 95); err != nil {
			t.Fatalf("RecordQuizScore() failed: %v", err)
		}
		rec, _ := repo.GetRecord(ctx, testCourseID, "student-1")
		if rec.QuizScore.Float64 != 60 {
			t.Errorf("quiz score = %v, want untouched 60", rec.QuizScore.Float64)
		}
	})
}

func TestService_StudentGPA(t *testing.T) {
	svc, repo, _ := setup(t)
	ctx := context.Background()

	repo.completed["student-1"] = []CourseGrade{
		{CourseID: "old-1", SemesterID: "sem-0", CreditHours: 3, FinalGrade: null.StringFrom("B")}, // 3.0
	}
	// a posted+approved record: 90 -> 4.0
	now := time.Now().UTC()
	repo.records[testCourseID] = map[string]*Record{
		"student-1": {
			ID: "r1", CourseID: testCourseID, StudentID: "student-1",
			TotalScore: null.Float64From(90), Status: StatusPosted,
			PostedAt: null.TimeFrom(now), ApprovedAt: null.TimeFrom(now),
		},
		// pending grades never count
		"student-2": {
			ID: "r2", CourseID: testCourseID, StudentID: "student-2",
			TotalScore: null.Float64From(50), Status: StatusPendingApproval,
		},
	}

	gpa, err := svc.StudentGPA(ctx, "student-1")
	if err != nil {
		t.Fatalf("StudentGPA() failed: %v", err)
	}
	if gpa != 3.5 { // (3.0*3 + 4.0*3) / 6
		t.Errorf("StudentGPA() = %v, want 3.5", gpa)
	}

	semGPA, err := svc.StudentSemesterGPA(ctx, "student-1", testSemesterID)
	if err != nil {
		t.Fatalf("StudentSemesterGPA() failed: %v", err)
	}
	if semGPA != 4.0 {
		t.Errorf("StudentSemesterGPA() = %v, want 4.0", semGPA)
	}

	// student-2's only record is pending: nothing counts
	gpa, err = svc.StudentGPA(ctx, "student-2")
	if err != nil {
		t.Fatalf("StudentGPA() failed: %v", err)
	}
	if gpa != 0 {
		t.Errorf("StudentGPA() = %v, want 0 while grades pend", gpa)
	}
}

func TestService_StudentGPA_letterPrecedence(t *testing.T) {
	svc, repo, _ := setup(t)
	ctx := context.Background()

	// the same 3-credit course carries both a stored letter grade and a
	// posted+approved record; it must count once, through the letter
	repo.completed["student-1"] = []CourseGrade{
		{CourseID: testCourseID, SemesterID: testSemesterID, CreditHours: 3, FinalGrade: null.StringFrom("B")}, // 3.0
	}
	now := time.Now().UTC()
	repo.records[testCourseID] = map[string]*Record{
		"student-1": {
			ID: "r1", CourseID: testCourseID, StudentID: "student-1",
			TotalScore: null.Float64From(90), Status: StatusPosted, // 4.0 if it counted
			PostedAt: null.TimeFrom(now), ApprovedAt: null.TimeFrom(now),
		},
	}

	gpa, err := svc.StudentGPA(ctx, "student-1")
	if err != nil {
		t.Fatalf("StudentGPA() failed: %v", err)
	}
	if gpa != 3.0 {
		t.Errorf("StudentGPA() = %v, want 3.0 (letter grade precedence, course counted once)", gpa)
	}

	semGPA, err := svc.StudentSemesterGPA(ctx, "student-1", testSemesterID)
	if err != nil {
		t.Fatalf("StudentSemesterGPA() failed: %v", err)
	}
	if semGPA != 3.0 {
		t.Errorf("StudentSemesterGPA() = %v, want 3.0", semGPA)
	}
}
