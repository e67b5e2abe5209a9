package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/codexlms/codex/core/friend"
	"github.com/codexlms/codex/core/user"
)

type friendApi struct {
	users   *user.Service
	friends *friend.Service
}

func registerFriendAPI(g *echo.Group, jwt echo.MiddlewareFunc, deps ServerDeps) {
	api := friendApi{users: deps.UserSvc, friends: deps.FriendSvc}

	fg := g.Group("/friends", jwt)
	fg.GET("", api.list)
	fg.POST("/:id", api.request)
	fg.PUT("/:id/accept", api.accept)
	fg.PUT("/:id/decline", api.decline)
	fg.DELETE("/:id", api.remove)
}

func (api *friendApi) list(ctx echo.Context) error {
	usr, err := getContextUser(ctx, api.users)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	friends, err := api.friends.List(ctx.Request().Context(), usr.ID, ctx.QueryParam("status"))
	if err != nil {
		return errors.Wrap(err, "listing friends")
	}
	if friends == nil {
		friends = []friend.Friend{}
	}
	return ctx.JSON(http.StatusOK, friends)
}

func (api *friendApi) request(ctx echo.Context) error {
	usr, err := getContextUser(ctx, api.users)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	f, err := api.friends.Request(ctx.Request().Context(), usr.ID, ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "requesting friend")
	}
	return ctx.JSON(http.StatusCreated, f)
}

func (api *friendApi) accept(ctx echo.Context) error {
	usr, err := getContextUser(ctx, api.users)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	f, err := api.friends.Accept(ctx.Request().Context(), usr.ID, ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "accepting friend")
	}
	return ctx.JSON(http.StatusOK, f)
}

func (api *friendApi) decline(ctx echo.Context) error {
	usr, err := getContextUser(ctx, api.users)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	f, err := api.friends.Decline(ctx.Request().Context(), usr.ID, ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "declining friend")
	}
	return ctx.JSON(http.StatusOK, f)
}

func (api *friendApi) remove(ctx echo.Context) error {
	usr, err := getContextUser(ctx, api.users)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	if err := api.friends.Remove(ctx.Request().Context(), usr.ID, ctx.Param("id")); err != nil {
		return errors.Wrap(err, "removing friend")
	}
	return ctx.NoContent(http.StatusNoContent)
}
