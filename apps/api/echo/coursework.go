package echoapi

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/codexlms/codex/core"
	"github.com/codexlms/codex/core/course"
	"github.com/codexlms/codex/core/coursework"
	"github.com/codexlms/codex/core/enrollment"
	"github.com/codexlms/codex/core/user"
)

type courseworkApi struct {
	users       *user.Service
	courses     *course.Service
	work        *coursework.Service
	enrollments *enrollment.Service
}

func registerCourseworkAPI(g *echo.Group, jwt echo.MiddlewareFunc, deps ServerDeps) {
	api := courseworkApi{
		users:       deps.UserSvc,
		courses:     deps.CourseSvc,
		work:        deps.CourseworkSvc,
		enrollments: deps.EnrollmentSvc,
	}

	wg := g.Group("/coursework/:kind", jwt)
	wg.GET("", api.listByCourse)
	wg.POST("", api.create, staffMiddleware())

	dg := wg.Group("/:id", api.workMiddleware)
	dg.GET("", api.retrieve)
	dg.PUT("", api.update, api.managerMiddleware)
	dg.DELETE("", api.destroy, api.managerMiddleware)
	dg.POST("/submissions", api.submit)
	dg.GET("/submissions", api.listSubmissions, api.managerMiddleware)
	dg.GET("/submissions/:uid", api.retrieveSubmission)
	dg.PUT("/submissions/:uid/grade", api.grade, api.managerMiddleware)

	g.GET("/submissions", api.querySubmissions, jwt)
}

// manages reports whether usr may edit the coursework of courseID.
// Coursework of a deleted course is left to admins.
func (api *courseworkApi) manages(ctx context.Context, usr user.User, courseID string) (bool, error) {
	if usr.IsAdmin() {
		return true, nil
	}
	if !usr.IsTeacher() {
		return false, nil
	}
	c, err := api.courses.Get(ctx, courseID)
	if err != nil {
		if errors.Cause(err) == course.ErrNotFound {
			return false, nil
		}
		return false, errors.Wrap(err, "getting course")
	}
	return canManage(usr, c), nil
}

func (api *courseworkApi) workMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(ctx echo.Context) error {
		w, err := api.work.Get(ctx.Request().Context(), ctx.Param("kind"), ctx.Param("id"))
		if err != nil {
			return errors.Wrap(err, "getting coursework")
		}
		ctx.Set("work", w)
		return next(ctx)
	}
}

func (api *courseworkApi) managerMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(ctx echo.Context) error {
		usr, err := getContextUser(ctx, api.users)
		if err != nil {
			return errors.Wrap(err, "getting context user")
		}
		ok, err := api.manages(ctx.Request().Context(), usr, ctxWork(ctx).CourseID)
		if err != nil {
			return err
		}
		if !ok {
			return errHttpForbidden
		}
		return next(ctx)
	}
}

func ctxWork(ctx echo.Context) coursework.Work {
	w, _ := ctx.Get("work").(coursework.Work)
	return w
}

// forViewer hides exam answers from students.
func forViewer(usr user.User, w coursework.Work) coursework.Work {
	if usr.IsAdmin() || usr.IsTeacher() {
		return w
	}
	return w.Blank()
}

// Handlers

func (api *courseworkApi) listByCourse(ctx echo.Context) error {
	usr, err := getContextUser(ctx, api.users)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	courseID := ctx.QueryParam("courseId")
	if courseID == "" {
		return core.NewFieldError("courseId", "this field is required")
	}

	works, err := api.work.ListByCourse(ctx.Request().Context(), ctx.Param("kind"), courseID)
	if err != nil {
		return errors.Wrap(err, "listing coursework")
	}
	list := make([]coursework.Work, 0, len(works))
	for _, w := range works {
		list = append(list, forViewer(usr, w))
	}
	return ctx.JSON(http.StatusOK, list)
}

func (api *courseworkApi) create(ctx echo.Context) error {
	usr, err := getContextUser(ctx, api.users)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	var data coursework.NewWork
	if err := bind(ctx, &data, "NewWork"); err != nil {
		return err
	}
	if data.CourseID != "" {
		ok, err := api.manages(ctx.Request().Context(), usr, data.CourseID)
		if err != nil {
			return err
		}
		if !ok {
			return errHttpForbidden
		}
	}
	data.CreatedBy = usr.ID

	w, err := api.work.Create(ctx.Request().Context(), ctx.Param("kind"), data)
	if err != nil {
		return errors.Wrap(err, "creating coursework")
	}
	return ctx.JSON(http.StatusCreated, w)
}

func (api *courseworkApi) retrieve(ctx echo.Context) error {
	usr, err := getContextUser(ctx, api.users)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	return ctx.JSON(http.StatusOK, forViewer(usr, ctxWork(ctx)))
}

func (api *courseworkApi) update(ctx echo.Context) error {
	var data coursework.UpdateWork
	if err := bind(ctx, &data, "UpdateWork"); err != nil {
		return err
	}
	w := ctxWork(ctx)
	w, err := api.work.Update(ctx.Request().Context(), w.Kind, w.ID, data)
	if err != nil {
		return errors.Wrap(err, "updating coursework")
	}
	return ctx.JSON(http.StatusOK, w)
}

func (api *courseworkApi) destroy(ctx echo.Context) error {
	w := ctxWork(ctx)
	if err := api.work.Delete(ctx.Request().Context(), w.Kind, w.ID); err != nil {
		return errors.Wrap(err, "deleting coursework")
	}
	return ctx.NoContent(http.StatusNoContent)
}

// submit records the submission of the context user, who must be enrolled in the course.
func (api *courseworkApi) submit(ctx echo.Context) error {
	usr, err := getContextUser(ctx, api.users)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	w := ctxWork(ctx)

	enrolled, err := api.enrollments.IsEnrolled(ctx.Request().Context(), usr.ID, w.CourseID)
	if err != nil {
		return errors.Wrap(err, "checking enrollment")
	}
	if !enrolled {
		return errHttpForbidden
	}

	var data coursework.NewSubmission
	if err := bind(ctx, &data, "NewSubmission"); err != nil {
		return err
	}
	data.UserID = usr.ID

	sub, err := api.work.Submit(ctx.Request().Context(), w.Kind, w.ID, data)
	if err != nil {
		return errors.Wrap(err, "submitting")
	}
	return ctx.JSON(http.StatusCreated, sub)
}

func (api *courseworkApi) listSubmissions(ctx echo.Context) error {
	w := ctxWork(ctx)
	subs, err := api.work.ListSubmissions(ctx.Request().Context(), w.Kind, w.ID)
	if err != nil {
		return errors.Wrap(err, "listing submissions")
	}
	return ctx.JSON(http.StatusOK, submissionList(subs))
}

func (api *courseworkApi) retrieveSubmission(ctx echo.Context) error {
	usr, err := getContextUser(ctx, api.users)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	w := ctxWork(ctx)

	if ctx.Param("uid") != usr.ID {
		ok, err := api.manages(ctx.Request().Context(), usr, w.CourseID)
		if err != nil {
			return err
		}
		if !ok {
			return errHttpNotFound
		}
	}

	sub, err := api.work.GetSubmission(ctx.Request().Context(), w.Kind, w.ID, ctx.Param("uid"))
	if err != nil {
		return errors.Wrap(err, "getting submission")
	}
	return ctx.JSON(http.StatusOK, sub)
}

func (api *courseworkApi) grade(ctx echo.Context) error {
	usr, err := getContextUser(ctx, api.users)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	var data coursework.GradeSubmission
	if err := bind(ctx, &data, "GradeSubmission"); err != nil {
		return err
	}
	data.GradedBy = usr.ID

	w := ctxWork(ctx)
	sub, err := api.work.Grade(ctx.Request().Context(), w.Kind, w.ID, ctx.Param("uid"), data)
	if err != nil {
		return errors.Wrap(err, "grading submission")
	}
	return ctx.JSON(http.StatusOK, sub)
}

// querySubmissions searches every submission; students only get theirs.
func (api *courseworkApi) querySubmissions(ctx echo.Context) error {
	usr, err := getContextUser(ctx, api.users)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	var filter coursework.SubmissionFilter
	if err := ctx.Bind(&filter); err != nil {
		return ctx.JSON(http.StatusOK, []coursework.Submission{})
	}
	if !(usr.IsAdmin() || usr.IsTeacher()) {
		filter.UserID = usr.ID
	}

	subs, err := api.work.QuerySubmissions(ctx.Request().Context(), filter)
	if err != nil {
		return errors.Wrap(err, "querying submissions")
	}
	return ctx.JSON(http.StatusOK, submissionList(subs))
}

func submissionList(subs []coursework.Submission) []coursework.Submission {
	if subs == nil {
		return []coursework.Submission{}
	}
	return subs
}
