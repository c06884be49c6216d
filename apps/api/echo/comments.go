package echoapi

import (
	"net/http"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/suprss/suprss/core/interaction"
)

type interactionApi struct {
	svc      *interaction.Service
	validate *validator.Validate
}

func registerInteractionAPI(g *echo.Group, authed []echo.MiddlewareFunc, svc *interaction.Service, validate *validator.Validate) {
	api := interactionApi{svc: svc, validate: validate}

	cg := g.Group("/comments", authed...)
	cg.POST("", api.createComment)
	cg.GET("/mine", api.myComments)
	cg.PUT("/:id", api.updateComment)
	cg.DELETE("/:id", api.deleteComment)

	g.GET("/activity", api.activity, authed...)
}

// Handlers

func (api *interactionApi) createComment(ctx echo.Context) error {
	userID, err := contextUserID(ctx)
	if err != nil {
		return err
	}

	var data interaction.NewComment
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewComment")
	}
	if err = data.Validate(api.validate); err != nil {
		return err
	}

	c, err := api.svc.CreateComment(ctx.Request().Context(), userID, data)
	if err != nil {
		return errors.Wrap(err, "creating comment")
	}
	return ctx.JSON(http.StatusCreated, c)
}

func (api *interactionApi) myComments(ctx echo.Context) error {
	userID, err := contextUserID(ctx)
	if err != nil {
		return err
	}
	items, info, err := api.svc.MyComments(ctx.Request().Context(), userID, bindPagination(ctx))
	if err != nil {
		return errors.Wrap(err, "listing my comments")
	}
	return ctx.JSON(http.StatusOK, PageResponse{Items: items, PageInfo: info})
}

func (api *interactionApi) updateComment(ctx echo.Context) error {
	userID, id, err := userAndParamID(ctx, "id")
	if err != nil {
		return err
	}

	var data interaction.UpdateComment
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateComment")
	}
	if err = data.Validate(api.validate); err != nil {
		return err
	}

	c, err := api.svc.UpdateComment(ctx.Request().Context(), id, userID, data)
	if err != nil {
		return errors.Wrap(err, "updating comment")
	}
	return ctx.JSON(http.StatusOK, c)
}

func (api *interactionApi) deleteComment(ctx echo.Context) error {
	userID, id, err := userAndParamID(ctx, "id")
	if err != nil {
		return err
	}
	if err = api.svc.DeleteComment(ctx.Request().Context(), id, userID); err != nil {
		return errors.Wrap(err, "deleting comment")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *interactionApi) activity(ctx echo.Context) error {
	userID, err := contextUserID(ctx)
	if err != nil {
		return err
	}

	filter := interaction.ActivityFilter{CollectionID: queryInt64(ctx, "collection_id")}
	filter.Limit, _ = strconv.Atoi(ctx.QueryParam("limit"))
	filter.Clean()

	items, err := api.svc.RecentActivity(ctx.Request().Context(), userID, filter)
	if err != nil {
		return errors.Wrap(err, "listing recent activity")
	}
	if items == nil {
		items = []interaction.Activity{}
	}
	return ctx.JSON(http.StatusOK, items)
}
