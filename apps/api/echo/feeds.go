package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/suprss/suprss/core/feed"
)

type feedApi struct {
	svc      *feed.Service
	validate *validator.Validate
}

func registerFeedAPI(g *echo.Group, authed []echo.MiddlewareFunc, svc *feed.Service, validate *validator.Validate) {
	api := feedApi{svc: svc, validate: validate}

	fg := g.Group("/feeds", authed...)
	fg.POST("", api.subscribe)
	fg.GET("", api.list)
	fg.GET("/:id", api.retrieve)
	fg.PUT("/:id", api.update)
	fg.DELETE("/:id", api.unsubscribe)
	fg.POST("/:id/refresh", api.refresh)

	ag := g.Group("/articles", authed...)
	ag.GET("", api.listArticles)
	ag.GET("/favorites", api.favorites)
	ag.GET("/unread-count", api.unreadCount)
	ag.POST("/bulk", api.bulkAction)
	ag.GET("/:id", api.retrieveArticle)
	ag.PATCH("/:id/status", api.updateStatus)

	cg := g.Group("/categories", authed...)
	cg.POST("", api.createCategory)
	cg.GET("", api.listCategories)
	cg.PUT("/:id", api.updateCategory)
	cg.DELETE("/:id", api.deleteCategory)
	cg.POST("/move-feed", api.moveFeed)
}

// Handlers

func (api *feedApi) subscribe(ctx echo.Context) error {
	userID, err := contextUserID(ctx)
	if err != nil {
		return err
	}

	var data feed.NewSubscription
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewSubscription")
	}
	if err = data.Validate(api.validate); err != nil {
		return err
	}

	f, err := api.svc.Subscribe(ctx.Request().Context(), userID, data)
	if err != nil {
		return errors.Wrap(err, "subscribing to feed")
	}
	return ctx.JSON(http.StatusCreated, f)
}

func (api *feedApi) list(ctx echo.Context) error {
	userID, err := contextUserID(ctx)
	if err != nil {
		return err
	}

	filter := feed.FeedFilter{
		CategoryID: queryInt64(ctx, "category_id"),
		IsActive:   queryBool(ctx, "is_active"),
	}
	feeds, err := api.svc.ListFeeds(ctx.Request().Context(), userID, filter)
	if err != nil {
		return errors.Wrap(err, "listing feeds")
	}
	if feeds == nil {
		feeds = []feed.Feed{}
	}
	return ctx.JSON(http.StatusOK, feeds)
}

func (api *feedApi) retrieve(ctx echo.Context) error {
	userID, id, err := userAndParamID(ctx, "id")
	if err != nil {
		return err
	}
	f, err := api.svc.GetFeed(ctx.Request().Context(), userID, id)
	if err != nil {
		return errors.Wrap(err, "getting feed")
	}
	return ctx.JSON(http.StatusOK, f)
}

func (api *feedApi) update(ctx echo.Context) error {
	userID, id, err := userAndParamID(ctx, "id")
	if err != nil {
		return err
	}

	var data feed.UpdateFeed
	if err = bindValid(ctx, api.validate, &data); err != nil {
		return err
	}

	f, err := api.svc.UpdateFeed(ctx.Request().Context(), userID, id, data)
	if err != nil {
		return errors.Wrap(err, "updating feed")
	}
	return ctx.JSON(http.StatusOK, f)
}

func (api *feedApi) unsubscribe(ctx echo.Context) error {
	userID, id, err := userAndParamID(ctx, "id")
	if err != nil {
		return err
	}
	if err = api.svc.Unsubscribe(ctx.Request().Context(), userID, id); err != nil {
		return errors.Wrap(err, "unsubscribing from feed")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *feedApi) refresh(ctx echo.Context) error {
	userID, id, err := userAndParamID(ctx, "id")
	if err != nil {
		return err
	}
	n, err := api.svc.Refresh(ctx.Request().Context(), userID, id)
	if err != nil {
		return errors.Wrap(err, "refreshing feed")
	}
	return ctx.JSON(http.StatusOK, RefreshResponse{NewArticles: n})
}

// userAndParamID returns the authenticated User ID along with the int64 path parameter `name`.
func userAndParamID(ctx echo.Context, name string) (int64, int64, error) {
	userID, err := contextUserID(ctx)
	if err != nil {
		return 0, 0, err
	}
	id, err := paramID(ctx, name)
	if err != nil {
		return 0, 0, err
	}
	return userID, id, nil
}
