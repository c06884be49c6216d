package echoapi

import (
	"net/http"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/suprss/suprss/core"
	"github.com/suprss/suprss/core/search"
)

type searchApi struct {
	svc      *search.Service
	validate *validator.Validate
}

func registerSearchAPI(g *echo.Group, authed []echo.MiddlewareFunc, svc *search.Service, validate *validator.Validate) {
	api := searchApi{svc: svc, validate: validate}

	sg := g.Group("/search", authed...)
	sg.POST("", api.search)
	sg.GET("/suggestions", api.suggestions)
}

func (api *searchApi) search(ctx echo.Context) error {
	userID, err := contextUserID(ctx)
	if err != nil {
		return err
	}

	var data search.Query
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to Query")
	}
	if err = data.Validate(api.validate); err != nil {
		return err
	}

	resp, err := api.svc.Search(ctx.Request().Context(), userID, data)
	if err != nil {
		return errors.Wrap(err, "searching")
	}
	return ctx.JSON(http.StatusOK, resp)
}

func (api *searchApi) suggestions(ctx echo.Context) error {
	userID, err := contextUserID(ctx)
	if err != nil {
		return err
	}

	prefix := core.CleanString(ctx.QueryParam("q"))
	limit, _ := strconv.Atoi(ctx.QueryParam("limit"))
	items, err := api.svc.Suggestions(ctx.Request().Context(), userID, prefix, limit)
	if err != nil {
		return errors.Wrap(err, "getting suggestions")
	}
	if items == nil {
		items = []string{}
	}
	return ctx.JSON(http.StatusOK, items)
}
