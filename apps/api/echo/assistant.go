package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/codexlms/codex/core/assistant"
	"github.com/codexlms/codex/core/user"
)

type assistantApi struct {
	users     *user.Service
	assistant *assistant.Assistant
	sessions  *assistant.SessionStore
}

func registerAssistantAPI(g *echo.Group, jwt echo.MiddlewareFunc, deps ServerDeps) {
	api := assistantApi{users: deps.UserSvc, assistant: deps.Assistant, sessions: deps.Sessions}

	ag := g.Group("/assistant", jwt, staffMiddleware())
	ag.POST("", api.handle)
	ag.DELETE("/session", api.reset)
}

func (api *assistantApi) handle(ctx echo.Context) error {
	usr, err := getContextUser(ctx, api.users)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	var data TranscriptRequest
	if err := bind(ctx, &data, "TranscriptRequest"); err != nil {
		return err
	}
	out, err := api.assistant.Handle(ctx.Request().Context(), usr, data.Transcript)
	if err != nil {
		return errors.Wrap(err, "handling transcript")
	}
	return ctx.JSON(http.StatusOK, out)
}

func (api *assistantApi) reset(ctx echo.Context) error {
	usr, err := getContextUser(ctx, api.users)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	if err := api.sessions.Reset(ctx.Request().Context(), usr.ID); err != nil {
		return errors.Wrap(err, "resetting session")
	}
	return ctx.NoContent(http.StatusNoContent)
}

type TranscriptRequest struct {
	Transcript string `json:"transcript"`
}
