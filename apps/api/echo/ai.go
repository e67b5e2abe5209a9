package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/codexlms/codex/core/ai"
	"github.com/codexlms/codex/core/billing"
	"github.com/codexlms/codex/core/user"
)

type aiApi struct {
	users    *user.Service
	billing  *billing.Service
	flows    *ai.Flows
	validate *validator.Validate
}

func registerAIAPI(g *echo.Group, jwt echo.MiddlewareFunc, deps ServerDeps) {
	api := aiApi{
		users:    deps.UserSvc,
		billing:  deps.BillingSvc,
		flows:    deps.Flows,
		validate: deps.Validate,
	}

	ag := g.Group("/ai", jwt)
	ag.POST("/course-content", api.courseContent, staffMiddleware())
	ag.POST("/coach", api.coach)
	ag.POST("/interview", api.interview)
	ag.POST("/speech", api.speech)
}

// meter counts one use of feature by the context user; requests over the plan limit are refused.
func (api *aiApi) meter(ctx echo.Context, feature string) (user.User, error) {
	usr, err := getContextUser(ctx, api.users)
	if err != nil {
		return user.User{}, errors.Wrap(err, "getting context user")
	}
	if _, err := api.billing.IncrementUsage(ctx.Request().Context(), usr.ID, feature); err != nil {
		return user.User{}, errors.Wrap(err, "metering usage")
	}
	return usr, nil
}

func (api *aiApi) courseContent(ctx echo.Context) error {
	var data ai.CourseContentInput
	if err := bind(ctx, &data, "CourseContentInput"); err != nil {
		return err
	}
	if err := api.validate.Struct(data); err != nil {
		return err
	}
	if _, err := api.meter(ctx, billing.FeatureCourseGeneration); err != nil {
		return err
	}
	content, err := api.flows.GenerateCourseContent(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "generating course content")
	}
	return ctx.JSON(http.StatusOK, content)
}

func (api *aiApi) coach(ctx echo.Context) error {
	var data ai.ChatInput
	if err := bind(ctx, &data, "ChatInput"); err != nil {
		return err
	}
	if err := api.validate.Struct(data); err != nil {
		return err
	}
	if _, err := api.meter(ctx, billing.FeatureCoaching); err != nil {
		return err
	}
	reply, err := api.flows.Coach(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "coaching")
	}
	return ctx.JSON(http.StatusOK, reply)
}

func (api *aiApi) interview(ctx echo.Context) error {
	var data ai.InterviewInput
	if err := bind(ctx, &data, "InterviewInput"); err != nil {
		return err
	}
	if err := api.validate.Struct(data); err != nil {
		return err
	}
	if _, err := api.meter(ctx, billing.FeatureInterviewPrep); err != nil {
		return err
	}
	reply, err := api.flows.InterviewPrep(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "preparing interview")
	}
	return ctx.JSON(http.StatusOK, reply)
}

func (api *aiApi) speech(ctx echo.Context) error {
	var data SpeechRequest
	if err := bind(ctx, &data, "SpeechRequest"); err != nil {
		return err
	}
	if err := api.validate.Struct(data); err != nil {
		return err
	}
	usr, err := api.meter(ctx, billing.FeatureTextToSpeech)
	if err != nil {
		return err
	}
	voice := data.Voice
	if voice == "" {
		voice = usr.Settings.AssistantVoice
	}
	speech, err := api.flows.TextToSpeech(ctx.Request().Context(), data.Text, voice)
	if err != nil {
		return errors.Wrap(err, "synthesizing speech")
	}
	return ctx.Blob(http.StatusOK, speech.MimeType, speech.Data)
}

type SpeechRequest struct {
	Text  string `json:"text" validate:"required,notblank,max=5000"`
	Voice string `json:"voice" validate:"max=50"`
}
