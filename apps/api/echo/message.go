package echoapi

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/codexlms/codex/core/course"
	"github.com/codexlms/codex/core/enrollment"
	"github.com/codexlms/codex/core/message"
	"github.com/codexlms/codex/core/user"
)

type messageApi struct {
	kind        string
	users       *user.Service
	courses     *course.Service
	enrollments *enrollment.Service
	messages    *message.Service
}

func registerMessageAPI(g *echo.Group, jwt echo.MiddlewareFunc, deps ServerDeps) {
	for _, kind := range []string{message.KindMessage, message.KindNotification} {
		api := &messageApi{
			kind:        kind,
			users:       deps.UserSvc,
			courses:     deps.CourseSvc,
			enrollments: deps.EnrollmentSvc,
			messages:    deps.MessageSvc,
		}

		mg := g.Group("/"+kind, jwt)
		mg.GET("", api.list)
		mg.POST("", api.send, staffMiddleware())
		mg.GET("/all", api.listAll, adminMiddleware())
		mg.GET("/:id", api.retrieve)
		mg.PUT("/:id/read", api.markRead)
		mg.DELETE("/:id", api.destroy, adminMiddleware())
	}
}

// canTarget reports whether usr may send to the target of nm: admins send anywhere,
// teachers to single users and to the courses they teach.
func (api *messageApi) canTarget(ctx context.Context, usr user.User, nm message.NewMessage) (bool, error) {
	if usr.IsAdmin() {
		return true, nil
	}
	switch nm.TargetType {
	case message.TargetUser:
		return true, nil
	case message.TargetCourse:
		c, err := api.courses.Get(ctx, nm.TargetID)
		if err != nil {
			if errors.Cause(err) == course.ErrNotFound {
				return false, nil
			}
			return false, errors.Wrap(err, "getting course")
		}
		return canManage(usr, c), nil
	default:
		return false, nil
	}
}

// canRead reports whether msg is listed for usr.
func (api *messageApi) canRead(ctx context.Context, usr user.User, msg message.Message) (bool, error) {
	if usr.IsAdmin() || msg.SenderID == usr.ID {
		return true, nil
	}
	switch msg.TargetType {
	case message.TargetGeneral:
		return true, nil
	case message.TargetUser:
		return msg.TargetID == usr.ID, nil
	case message.TargetCourse:
		return api.enrollments.IsEnrolled(ctx, usr.ID, msg.TargetID)
	default:
		return false, nil
	}
}

func (api *messageApi) list(ctx echo.Context) error {
	usr, err := getContextUser(ctx, api.users)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	msgs, err := api.messages.ListFor(ctx.Request().Context(), api.kind, usr)
	if err != nil {
		return errors.Wrapf(err, "listing %s", api.kind)
	}
	return ctx.JSON(http.StatusOK, msgs)
}

func (api *messageApi) listAll(ctx echo.Context) error {
	msgs, err := api.messages.ListAll(ctx.Request().Context(), api.kind)
	if err != nil {
		return errors.Wrapf(err, "listing %s", api.kind)
	}
	if msgs == nil {
		msgs = []message.Message{}
	}
	return ctx.JSON(http.StatusOK, msgs)
}

func (api *messageApi) send(ctx echo.Context) error {
	usr, err := getContextUser(ctx, api.users)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	var data message.NewMessage
	if err := bind(ctx, &data, "NewMessage"); err != nil {
		return err
	}
	ok, err := api.canTarget(ctx.Request().Context(), usr, data)
	if err != nil {
		return err
	}
	if !ok {
		return errHttpForbidden
	}
	data.SenderID = usr.ID

	msg, err := api.messages.Send(ctx.Request().Context(), api.kind, data)
	if err != nil {
		return errors.Wrapf(err, "sending %s", api.kind)
	}
	return ctx.JSON(http.StatusCreated, msg)
}

func (api *messageApi) retrieve(ctx echo.Context) error {
	usr, err := getContextUser(ctx, api.users)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	msg, err := api.messages.Get(ctx.Request().Context(), api.kind, ctx.Param("id"))
	if err != nil {
		return errors.Wrapf(err, "getting %s", api.kind)
	}
	ok, err := api.canRead(ctx.Request().Context(), usr, msg)
	if err != nil {
		return errors.Wrap(err, "checking enrollment")
	}
	if !ok {
		return errHttpNotFound
	}
	return ctx.JSON(http.StatusOK, msg)
}

func (api *messageApi) markRead(ctx echo.Context) error {
	usr, err := getContextUser(ctx, api.users)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	msg, err := api.messages.Get(ctx.Request().Context(), api.kind, ctx.Param("id"))
	if err != nil {
		return errors.Wrapf(err, "getting %s", api.kind)
	}
	ok, err := api.canRead(ctx.Request().Context(), usr, msg)
	if err != nil {
		return errors.Wrap(err, "checking enrollment")
	}
	if !ok {
		return errHttpNotFound
	}

	msg, err = api.messages.MarkRead(ctx.Request().Context(), api.kind, msg.ID, usr.ID)
	if err != nil {
		return errors.Wrapf(err, "marking %s read", api.kind)
	}
	return ctx.JSON(http.StatusOK, msg)
}

func (api *messageApi) destroy(ctx echo.Context) error {
	if err := api.messages.Delete(ctx.Request().Context(), api.kind, ctx.Param("id")); err != nil {
		return errors.Wrapf(err, "deleting %s", api.kind)
	}
	return ctx.NoContent(http.StatusNoContent)
}
