package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/codexlms/codex/core/billing"
	"github.com/codexlms/codex/core/user"
)

type billingApi struct {
	users *user.Service
	svc   *billing.Service
}

func registerBillingAPI(g *echo.Group, jwt echo.MiddlewareFunc, deps ServerDeps) {
	api := billingApi{users: deps.UserSvc, svc: deps.BillingSvc}

	bg := g.Group("/billing")
	bg.GET("/plans", api.plans)

	sg := bg.Group("/subscription", jwt)
	sg.GET("", api.current)
	sg.POST("", api.purchase)
	sg.POST("/confirm", api.confirm)
	sg.DELETE("", api.cancel)
}

func (api *billingApi) plans(ctx echo.Context) error {
	return ctx.JSON(http.StatusOK, api.svc.Plans())
}

func (api *billingApi) current(ctx echo.Context) error {
	usr, err := getContextUser(ctx, api.users)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	sub, err := api.svc.Current(ctx.Request().Context(), usr.ID)
	if err != nil {
		return errors.Wrap(err, "getting subscription")
	}
	return ctx.JSON(http.StatusOK, sub)
}

func (api *billingApi) purchase(ctx echo.Context) error {
	usr, err := getContextUser(ctx, api.users)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	var data PurchaseRequest
	if err := bind(ctx, &data, "PurchaseRequest"); err != nil {
		return err
	}
	sub, err := api.svc.Purchase(ctx.Request().Context(), usr, data.PlanID)
	if err != nil {
		return errors.Wrap(err, "purchasing plan")
	}
	return ctx.JSON(http.StatusCreated, sub)
}

func (api *billingApi) confirm(ctx echo.Context) error {
	usr, err := getContextUser(ctx, api.users)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	sub, err := api.svc.Confirm(ctx.Request().Context(), usr.ID)
	if err != nil {
		return errors.Wrap(err, "confirming payment")
	}
	return ctx.JSON(http.StatusOK, sub)
}

func (api *billingApi) cancel(ctx echo.Context) error {
	usr, err := getContextUser(ctx, api.users)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	sub, err := api.svc.Cancel(ctx.Request().Context(), usr.ID)
	if err != nil {
		return errors.Wrap(err, "cancelling subscription")
	}
	return ctx.JSON(http.StatusOK, sub)
}

type PurchaseRequest struct {
	PlanID string `json:"planId"`
}
