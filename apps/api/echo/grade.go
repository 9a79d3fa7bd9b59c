package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/shule/core/grade"
)

func registerGradeAPI(g *echo.Group, jwt echo.MiddlewareFunc, svc *grade.Service, validate *validator.Validate) {
	api := gradeAPI{svc: svc, validate: validate}

	cg := g.Group("/courses/:cid/grades", jwt)
	cg.GET("", api.courseGrades, teacherMiddleware())
	cg.PUT("/weights", api.setWeights, teacherMiddleware())
	cg.PUT("/students/:sid", api.updateScore, teacherMiddleware())
	cg.POST("/post", api.postGrades, teacherMiddleware())
	cg.POST("/approve", api.approveGrades, adminMiddleware())
	cg.POST("/reject", api.rejectGrades, adminMiddleware())
	cg.POST("/recompute", api.recompute, teacherMiddleware())

	sg := g.Group("/students/:sid/gpa", jwt)
	sg.GET("", api.studentGPA)
	sg.GET("/semesters/:semid", api.studentSemesterGPA)
}

type gradeAPI struct {
	svc      *grade.Service
	validate *validator.Validate
}

// GET /v1/courses/:cid/grades?ordering=-total_score
func (api *gradeAPI) courseGrades(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return err
	}
	var ord Ordering
	ord.Bind(ctx)

	sheet, err := api.svc.CourseGrades(ctx.Request().Context(), ctx.Param("cid"), claims.Subject, ord.Orderings...)
	if err != nil {
		return errors.Wrap(err, "getting course grades")
	}
	return ctx.JSON(http.StatusOK, sheet)
}

// PUT /v1/courses/:cid/grades/weights
func (api *gradeAPI) setWeights(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return err
	}
	var nw grade.NewWeights
	if err = ctx.Bind(&nw); err != nil {
		return errors.Wrap(err, "binding weights")
	}
	if err = nw.Validate(api.validate); err != nil {
		return err
	}

	weights, err := api.svc.SetWeights(ctx.Request().Context(), ctx.Param("cid"), claims.Subject, nw)
	if err != nil {
		return errors.Wrap(err, "setting weights")
	}
	return ctx.JSON(http.StatusOK, weights)
}

// PUT /v1/courses/:cid/grades/students/:sid
func (api *gradeAPI) updateScore(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return err
	}
	var us grade.UpdateScore
	if err = ctx.Bind(&us); err != nil {
		return errors.Wrap(err, "binding score update")
	}
	if err = us.Validate(api.validate); err != nil {
		return err
	}

	rec, err := api.svc.UpdateScore(ctx.Request().Context(), ctx.Param("cid"), ctx.Param("sid"), claims.Subject, us)
	if err != nil {
		return errors.Wrap(err, "updating score")
	}
	return ctx.JSON(http.StatusOK, rec)
}

// POST /v1/courses/:cid/grades/post
func (api *gradeAPI) postGrades(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return err
	}
	count, err := api.svc.PostGrades(ctx.Request().Context(), ctx.Param("cid"), claims.Subject)
	if err != nil {
		return errors.Wrap(err, "posting grades")
	}
	return ctx.JSON(http.StatusOK, echo.Map{"posted": count})
}

// POST /v1/courses/:cid/grades/approve
func (api *gradeAPI) approveGrades(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return err
	}
	res, err := api.svc.ApproveGrades(ctx.Request().Context(), ctx.Param("cid"), claims.Subject)
	if err != nil {
		return errors.Wrap(err, "approving grades")
	}
	return ctx.JSON(http.StatusOK, res)
}

type rejectGradesInput struct {
	Reason string `json:"reason" validate:"required"`
}

// POST /v1/courses/:cid/grades/reject
func (api *gradeAPI) rejectGrades(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return err
	}
	var in rejectGradesInput
	if err = ctx.Bind(&in); err != nil {
		return errors.Wrap(err, "binding rejection")
	}
	if err = api.validate.Struct(&in); err != nil {
		return err
	}

	count, err := api.svc.RejectGrades(ctx.Request().Context(), ctx.Param("cid"), claims.Subject, in.Reason)
	if err != nil {
		return errors.Wrap(err, "rejecting grades")
	}
	return ctx.JSON(http.StatusOK, echo.Map{"rejected": count})
}

// POST /v1/courses/:cid/grades/recompute
func (api *gradeAPI) recompute(ctx echo.Context) error {
	if err := api.svc.Recompute(ctx.Request().Context(), ctx.Param("cid")); err != nil {
		return errors.Wrap(err, "recomputing grades")
	}
	return ctx.NoContent(http.StatusNoContent)
}

// GET /v1/students/:sid/gpa
func (api *gradeAPI) studentGPA(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return err
	}
	studentID := ctx.Param("sid")
	// students may only read their own GPA
	if claims.IsStudent && !claims.IsAdmin && !claims.IsTeacher && claims.Subject != studentID {
		return errHttpForbidden
	}

	gpa, err := api.svc.StudentGPA(ctx.Request().Context(), studentID)
	if err != nil {
		return errors.Wrap(err, "computing GPA")
	}
	return ctx.JSON(http.StatusOK, echo.Map{"student_id": studentID, "cumulative_gpa": gpa})
}

// GET /v1/students/:sid/gpa/semesters/:semid
func (api *gradeAPI) studentSemesterGPA(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return err
	}
	studentID := ctx.Param("sid")
	if claims.IsStudent && !claims.IsAdmin && !claims.IsTeacher && claims.Subject != studentID {
		return errHttpForbidden
	}

	semesterID := ctx.Param("semid")
	gpa, err := api.svc.StudentSemesterGPA(ctx.Request().Context(), studentID, semesterID)
	if err != nil {
		return errors.Wrap(err, "computing semester GPA")
	}
	return ctx.JSON(http.StatusOK, echo.Map{"student_id": studentID, "semester_id": semesterID, "semester_gpa": gpa})
}
