package echoapi

import (
	"bytes"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/codexlms/codex/core/course"
	"github.com/codexlms/codex/core/enrollment"
	"github.com/codexlms/codex/core/user"
	"github.com/codexlms/codex/services/gradebook"
)

const xlsxMIME = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

type courseApi struct {
	users       *user.Service
	courses     *course.Service
	enrollments *enrollment.Service
	gradebook   *gradebook.Exporter
}

func registerCourseAPI(g *echo.Group, jwt echo.MiddlewareFunc, deps ServerDeps) {
	api := courseApi{
		users:       deps.UserSvc,
		courses:     deps.CourseSvc,
		enrollments: deps.EnrollmentSvc,
		gradebook:   deps.Gradebook,
	}

	cg := g.Group("/courses", jwt)
	cg.GET("", api.query)
	cg.POST("", api.create, staffMiddleware())

	dg := cg.Group("/:id", api.courseMiddleware)
	dg.GET("", api.retrieve)
	dg.PUT("", api.update, api.managerMiddleware)
	dg.DELETE("", api.destroy, api.managerMiddleware)
	dg.POST("/modules", api.addModule, api.managerMiddleware)
	dg.POST("/modules/:moduleId/lessons", api.addLesson, api.managerMiddleware)
	dg.GET("/resources", api.resources)
	dg.GET("/gradebook", api.exportGradebook, api.managerMiddleware)

	dg.POST("/enrollment", api.enroll)
	dg.DELETE("/enrollment", api.unenroll)
	dg.GET("/enrollments", api.listEnrollments, api.managerMiddleware)
	dg.PUT("/lessons/:lessonId/progress", api.toggleLesson)

	g.GET("/enrollments", api.myEnrollments, jwt)
}

// canManage reports whether usr may edit c.
func canManage(usr user.User, c course.Course) bool {
	return usr.IsAdmin() || (usr.IsTeacher() && c.TeacherID == usr.ID)
}

// canSee reports whether usr may see c; drafts are hidden from students.
func canSee(usr user.User, c course.Course) bool {
	return c.IsPublished() || usr.IsAdmin() || usr.IsTeacher()
}

// courseMiddleware loads the course visible to the context user into the "course" key.
func (api *courseApi) courseMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(ctx echo.Context) error {
		usr, err := getContextUser(ctx, api.users)
		if err != nil {
			return errors.Wrap(err, "getting context user")
		}
		c, err := api.courses.Get(ctx.Request().Context(), ctx.Param("id"))
		if err != nil {
			return errors.Wrap(err, "getting course")
		}
		if !canSee(usr, c) {
			return errHttpNotFound
		}
		ctx.Set("course", c)
		return next(ctx)
	}
}

func (api *courseApi) managerMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(ctx echo.Context) error {
		usr, err := getContextUser(ctx, api.users)
		if err != nil {
			return errors.Wrap(err, "getting context user")
		}
		if !canManage(usr, ctxCourse(ctx)) {
			return errHttpForbidden
		}
		return next(ctx)
	}
}

func ctxCourse(ctx echo.Context) course.Course {
	c, _ := ctx.Get("course").(course.Course)
	return c
}

// Handlers

func (api *courseApi) query(ctx echo.Context) error {
	usr, err := getContextUser(ctx, api.users)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	var filter course.QueryFilter
	if err := ctx.Bind(&filter); err != nil {
		return ctx.JSON(http.StatusOK, []course.Course{})
	}
	filter.Clean()
	if !(usr.IsAdmin() || usr.IsTeacher()) {
		filter.Status = course.StatusPublished
	}
	ordering := new(Ordering)
	ordering.Bind(ctx)

	courses, err := api.courses.Query(ctx.Request().Context(), filter, ordering.Orderings)
	if err != nil {
		return errors.Wrap(err, "querying courses")
	}
	outlines := make([]course.Course, 0, len(courses))
	for _, c := range courses {
		outlines = append(outlines, c.Outline())
	}
	return ctx.JSON(http.StatusOK, outlines)
}

func (api *courseApi) create(ctx echo.Context) error {
	usr, err := getContextUser(ctx, api.users)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	var data course.NewCourse
	if err := bind(ctx, &data, "NewCourse"); err != nil {
		return err
	}
	if data.TeacherID == "" || !usr.IsAdmin() {
		data.TeacherID = usr.ID
	}

	c, err := api.courses.Create(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "creating course")
	}
	return ctx.JSON(http.StatusCreated, c)
}

// retrieve sends lesson contents to the course managers and enrolled users only.
func (api *courseApi) retrieve(ctx echo.Context) error {
	usr, err := getContextUser(ctx, api.users)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	c := ctxCourse(ctx)
	if canManage(usr, c) {
		return ctx.JSON(http.StatusOK, c)
	}

	enrolled, err := api.enrollments.IsEnrolled(ctx.Request().Context(), usr.ID, c.ID)
	if err != nil {
		return errors.Wrap(err, "checking enrollment")
	}
	if !enrolled {
		c = c.Outline()
	}
	return ctx.JSON(http.StatusOK, c)
}

func (api *courseApi) update(ctx echo.Context) error {
	usr, err := getContextUser(ctx, api.users)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	var data course.UpdateCourse
	if err := bind(ctx, &data, "UpdateCourse"); err != nil {
		return err
	}
	if data.TeacherID != nil && !usr.IsAdmin() {
		return errHttpForbidden
	}

	c, err := api.courses.Update(ctx.Request().Context(), ctxCourse(ctx).ID, data)
	if err != nil {
		return errors.Wrap(err, "updating course")
	}
	return ctx.JSON(http.StatusOK, c)
}

func (api *courseApi) destroy(ctx echo.Context) error {
	if err := api.courses.Delete(ctx.Request().Context(), ctxCourse(ctx).ID); err != nil {
		return errors.Wrap(err, "deleting course")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *courseApi) addModule(ctx echo.Context) error {
	var data course.NewModule
	if err := bind(ctx, &data, "NewModule"); err != nil {
		return err
	}
	c, err := api.courses.AddModule(ctx.Request().Context(), ctxCourse(ctx).ID, data)
	if err != nil {
		return errors.Wrap(err, "adding module")
	}
	return ctx.JSON(http.StatusCreated, c)
}

func (api *courseApi) addLesson(ctx echo.Context) error {
	var data course.NewLesson
	if err := bind(ctx, &data, "NewLesson"); err != nil {
		return err
	}
	c, err := api.courses.AddLesson(ctx.Request().Context(), ctxCourse(ctx).ID, ctx.Param("moduleId"), data)
	if err != nil {
		return errors.Wrap(err, "adding lesson")
	}
	return ctx.JSON(http.StatusCreated, c)
}

func (api *courseApi) resources(ctx echo.Context) error {
	resources := ctxCourse(ctx).Resources
	if resources == nil {
		resources = []course.Resource{}
	}
	return ctx.JSON(http.StatusOK, resources)
}

func (api *courseApi) exportGradebook(ctx echo.Context) error {
	c := ctxCourse(ctx)
	var buf bytes.Buffer
	if err := api.gradebook.Write(ctx.Request().Context(), &buf, c); err != nil {
		return errors.Wrap(err, "exporting gradebook")
	}
	ctx.Response().Header().Set(echo.HeaderContentDisposition, fmt.Sprintf("attachment; filename=%q", "gradebook-"+c.ID+".xlsx"))
	return ctx.Blob(http.StatusOK, xlsxMIME, buf.Bytes())
}

func (api *courseApi) enroll(ctx echo.Context) error {
	usr, err := getContextUser(ctx, api.users)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	enr, err := api.enrollments.Enroll(ctx.Request().Context(), usr.ID, ctxCourse(ctx).ID)
	if err != nil {
		return errors.Wrap(err, "enrolling")
	}
	return ctx.JSON(http.StatusCreated, enr)
}

func (api *courseApi) unenroll(ctx echo.Context) error {
	usr, err := getContextUser(ctx, api.users)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	if err := api.enrollments.Unenroll(ctx.Request().Context(), usr.ID, ctxCourse(ctx).ID); err != nil {
		return errors.Wrap(err, "unenrolling")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *courseApi) listEnrollments(ctx echo.Context) error {
	enrs, err := api.enrollments.ListForCourse(ctx.Request().Context(), ctxCourse(ctx).ID)
	if err != nil {
		return errors.Wrap(err, "listing enrollments")
	}
	return ctx.JSON(http.StatusOK, enrollmentList(enrs))
}

func (api *courseApi) toggleLesson(ctx echo.Context) error {
	usr, err := getContextUser(ctx, api.users)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	var data LessonProgressRequest
	if err := bind(ctx, &data, "LessonProgressRequest"); err != nil {
		return err
	}
	enr, err := api.enrollments.ToggleLesson(ctx.Request().Context(), usr.ID, ctxCourse(ctx).ID, ctx.Param("lessonId"), data.Completed)
	if err != nil {
		return errors.Wrap(err, "toggling lesson")
	}
	return ctx.JSON(http.StatusOK, enr)
}

func (api *courseApi) myEnrollments(ctx echo.Context) error {
	usr, err := getContextUser(ctx, api.users)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	enrs, err := api.enrollments.ListForUser(ctx.Request().Context(), usr.ID)
	if err != nil {
		return errors.Wrap(err, "listing enrollments")
	}
	return ctx.JSON(http.StatusOK, enrollmentList(enrs))
}

func enrollmentList(enrs []enrollment.Enrollment) []enrollment.Enrollment {
	if enrs == nil {
		return []enrollment.Enrollment{}
	}
	return enrs
}

type LessonProgressRequest struct {
	Completed bool `json:"completed"`
}
