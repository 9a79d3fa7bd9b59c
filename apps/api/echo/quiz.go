package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/shule/core/quiz"
)

func registerQuizAPI(g *echo.Group, jwt echo.MiddlewareFunc, svc *quiz.Service, validate *validator.Validate) {
	api := quizAPI{svc: svc, validate: validate}

	qg := g.Group("/quizzes/:qid", jwt)
	qg.GET("", api.getQuiz)
	qg.POST("/questions", api.addQuestion, teacherMiddleware())
	qg.POST("/attempts", api.startAttempt, studentMiddleware())
	qg.POST("/submit", api.submitAttempt, studentMiddleware())

	ag := g.Group("/attempts/:aid", jwt)
	ag.PUT("/answers/:qnid", api.recordAnswer, studentMiddleware())
	ag.PUT("/essays/:qnid", api.gradeEssay, teacherMiddleware())
}

type quizAPI struct {
	svc      *quiz.Service
	validate *validator.Validate
}

// questionView strips grading keys from a question before it reaches a student.
type questionView struct {
	ID       string            `json:"id"`
	Type     quiz.QuestionType `json:"type"`
	Text     string            `json:"text"`
	Points   float64           `json:"points"`
	Position int               `json:"position"`
	Options  []optionView      `json:"options"`
}

type optionView struct {
	ID         string `json:"id"`
	Text       string `json:"text"`
	MatchingID *int   `json:"matching_id,omitempty"`
	Side       string `json:"side,omitempty"`
	Position   int    `json:"position"`
}

func newQuestionViews(questions []quiz.Question) []questionView {
	views := make([]questionView, len(questions))
	for i, q := range questions {
		view := questionView{
			ID:       q.ID,
			Type:     q.Type,
			Text:     q.Text,
			Points:   q.Points,
			Position: q.Position,
			Options:  make([]optionView, len(q.Options)),
		}
		for j, opt := range q.Options {
			ov := optionView{ID: opt.ID, Text: opt.Text, Side: opt.Side.String, Position: opt.Position}
			if opt.MatchingID.Valid {
				id := opt.MatchingID.Int
				ov.MatchingID = &id
			}
			view.Options[j] = ov
		}
		views[i] = view
	}
	return views
}

// GET /v1/quizzes/:qid
func (api *quizAPI) getQuiz(ctx echo.Context) error {
	q, questions, err := api.svc.GetQuiz(ctx.Request().Context(), ctx.Param("qid"))
	if err != nil {
		return errors.Wrap(err, "getting quiz")
	}
	return ctx.JSON(http.StatusOK, echo.Map{"quiz": q, "questions": newQuestionViews(questions)})
}

// POST /v1/quizzes/:qid/questions
func (api *quizAPI) addQuestion(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return err
	}
	var nq quiz.NewQuestion
	if err = ctx.Bind(&nq); err != nil {
		return errors.Wrap(err, "binding question")
	}
	if err = nq.Validate(api.validate); err != nil {
		return err
	}

	question, err := api.svc.AddQuestion(ctx.Request().Context(), ctx.Param("qid"), claims.Subject, nq)
	if err != nil {
		return errors.Wrap(err, "adding question")
	}
	return ctx.JSON(http.StatusCreated, question)
}

// POST /v1/quizzes/:qid/attempts
func (api *quizAPI) startAttempt(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return err
	}
	attempt, err := api.svc.StartAttempt(ctx.Request().Context(), ctx.Param("qid"), claims.Subject)
	if err != nil {
		return errors.Wrap(err, "starting attempt")
	}
	return ctx.JSON(http.StatusCreated, attempt)
}

// POST /v1/quizzes/:qid/submit
func (api *quizAPI) submitAttempt(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return err
	}
	var answers quiz.Answers
	if err = ctx.Bind(&answers); err != nil {
		return errors.Wrap(err, "binding answers")
	}

	attempt, err := api.svc.SubmitAttempt(ctx.Request().Context(), ctx.Param("qid"), claims.Subject, answers)
	if err != nil {
		return errors.Wrap(err, "submitting attempt")
	}
	return ctx.JSON(http.StatusOK, attempt)
}

// PUT /v1/attempts/:aid/answers/:qnid
func (api *quizAPI) recordAnswer(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return err
	}
	var sub quiz.SubmittedAnswer
	if err = ctx.Bind(&sub); err != nil {
		return errors.Wrap(err, "binding answer")
	}

	ans, err := api.svc.RecordAnswer(ctx.Request().Context(), ctx.Param("aid"), claims.Subject, ctx.Param("qnid"), sub)
	if err != nil {
		return errors.Wrap(err, "recording answer")
	}
	return ctx.JSON(http.StatusOK, ans)
}

type gradeEssayInput struct {
	Points float64 `json:"points" validate:"min=0"`
}

// PUT /v1/attempts/:aid/essays/:qnid
func (api *quizAPI) gradeEssay(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return err
	}
	var in gradeEssayInput
	if err = ctx.Bind(&in); err != nil {
		return errors.Wrap(err, "binding essay grade")
	}
	if err = api.validate.Struct(&in); err != nil {
		return err
	}

	attempt, err := api.svc.GradeEssay(ctx.Request().Context(), ctx.Param("aid"), ctx.Param("qnid"), claims.Subject, in.Points)
	if err != nil {
		return errors.Wrap(err, "grading essay")
	}
	return ctx.JSON(http.StatusOK, attempt)
}
