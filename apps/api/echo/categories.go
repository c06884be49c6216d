package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/suprss/suprss/core/feed"
)

func (api *feedApi) createCategory(ctx echo.Context) error {
	userID, err := contextUserID(ctx)
	if err != nil {
		return err
	}

	var data feed.NewCategory
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewCategory")
	}
	if err = data.Validate(api.validate); err != nil {
		return err
	}

	cat, err := api.svc.CreateCategory(ctx.Request().Context(), userID, data)
	if err != nil {
		return errors.Wrap(err, "creating category")
	}
	return ctx.JSON(http.StatusCreated, cat)
}

func (api *feedApi) listCategories(ctx echo.Context) error {
	userID, err := contextUserID(ctx)
	if err != nil {
		return err
	}
	cats, err := api.svc.ListCategories(ctx.Request().Context(), userID)
	if err != nil {
		return errors.Wrap(err, "listing categories")
	}
	if cats == nil {
		cats = []feed.Category{}
	}
	return ctx.JSON(http.StatusOK, cats)
}

func (api *feedApi) updateCategory(ctx echo.Context) error {
	userID, id, err := userAndParamID(ctx, "id")
	if err != nil {
		return err
	}

	var data feed.UpdateCategory
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateCategory")
	}
	if err = data.Validate(api.validate); err != nil {
		return err
	}

	cat, err := api.svc.UpdateCategory(ctx.Request().Context(), userID, id, data)
	if err != nil {
		return errors.Wrap(err, "updating category")
	}
	return ctx.JSON(http.StatusOK, cat)
}

func (api *feedApi) deleteCategory(ctx echo.Context) error {
	userID, id, err := userAndParamID(ctx, "id")
	if err != nil {
		return err
	}
	if err = api.svc.DeleteCategory(ctx.Request().Context(), userID, id); err != nil {
		return errors.Wrap(err, "deleting category")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *feedApi) moveFeed(ctx echo.Context) error {
	userID, err := contextUserID(ctx)
	if err != nil {
		return err
	}

	var data feed.MoveFeed
	if err = bindValid(ctx, api.validate, &data); err != nil {
		return err
	}

	if err = api.svc.MoveFeed(ctx.Request().Context(), userID, data); err != nil {
		return errors.Wrap(err, "moving feed")
	}
	return ctx.JSON(http.StatusOK, SuccessResponse{Success: "Feed moved."})
}
