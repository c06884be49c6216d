package echoapi

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/suprss/suprss/core/feed"
)

func (api *feedApi) listArticles(ctx echo.Context) error {
	userID, err := contextUserID(ctx)
	if err != nil {
		return err
	}

	filter, err := bindArticleFilter(ctx)
	if err != nil {
		return err
	}
	if err = api.validate.Struct(filter); err != nil {
		return err
	}

	list, err := api.svc.ListArticles(ctx.Request().Context(), userID, filter)
	if err != nil {
		return errors.Wrap(err, "listing articles")
	}
	return ctx.JSON(http.StatusOK, list)
}

func (api *feedApi) favorites(ctx echo.Context) error {
	userID, err := contextUserID(ctx)
	if err != nil {
		return err
	}
	items, info, err := api.svc.Favorites(ctx.Request().Context(), userID, bindPagination(ctx))
	if err != nil {
		return errors.Wrap(err, "listing favorites")
	}
	return ctx.JSON(http.StatusOK, PageResponse{Items: items, PageInfo: info})
}

func (api *feedApi) unreadCount(ctx echo.Context) error {
	userID, err := contextUserID(ctx)
	if err != nil {
		return err
	}
	filter := feed.UnreadCountFilter{
		CategoryID: queryInt64(ctx, "category_id"),
		FeedID:     queryInt64(ctx, "feed_id"),
	}
	n, err := api.svc.UnreadCount(ctx.Request().Context(), userID, filter)
	if err != nil {
		return errors.Wrap(err, "counting unread articles")
	}
	return ctx.JSON(http.StatusOK, CountResponse{Count: n})
}

func (api *feedApi) bulkAction(ctx echo.Context) error {
	userID, err := contextUserID(ctx)
	if err != nil {
		return err
	}

	var data feed.BulkAction
	if err = bindValid(ctx, api.validate, &data); err != nil {
		return err
	}

	n, err := api.svc.BulkAction(ctx.Request().Context(), userID, data)
	if err != nil {
		return errors.Wrap(err, "applying bulk action")
	}
	return ctx.JSON(http.StatusOK, CountResponse{Count: n})
}

func (api *feedApi) retrieveArticle(ctx echo.Context) error {
	userID, id, err := userAndParamID(ctx, "id")
	if err != nil {
		return err
	}
	a, err := api.svc.GetArticle(ctx.Request().Context(), userID, id)
	if err != nil {
		return errors.Wrap(err, "getting article")
	}
	return ctx.JSON(http.StatusOK, a)
}

func (api *feedApi) updateStatus(ctx echo.Context) error {
	userID, id, err := userAndParamID(ctx, "id")
	if err != nil {
		return err
	}

	var data feed.StatusUpdate
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to StatusUpdate")
	}

	status, err := api.svc.UpdateStatus(ctx.Request().Context(), userID, id, data)
	if err != nil {
		return errors.Wrap(err, "updating article status")
	}
	return ctx.JSON(http.StatusOK, status)
}

// bindArticleFilter reads the feed.ArticleFilter from the query string. Dates are RFC3339.
func bindArticleFilter(ctx echo.Context) (feed.ArticleFilter, error) {
	filter := feed.ArticleFilter{
		CategoryID: queryInt64(ctx, "category_id"),
		FeedID:     queryInt64(ctx, "feed_id"),
		Search:     ctx.QueryParam("search"),
		SortBy:     ctx.QueryParam("sort_by"),
		SortOrder:  ctx.QueryParam("sort_order"),
	}
	if v := queryBool(ctx, "unread_only"); v != nil {
		filter.UnreadOnly = *v
	}
	if v := queryBool(ctx, "favorites_only"); v != nil {
		filter.FavoritesOnly = *v
	}
	filter.Limit, _ = strconv.Atoi(ctx.QueryParam("limit"))
	filter.Offset, _ = strconv.Atoi(ctx.QueryParam("offset"))

	var err error
	if filter.From, err = queryTime(ctx, "from"); err != nil {
		return filter, err
	}
	if filter.To, err = queryTime(ctx, "to"); err != nil {
		return filter, err
	}
	filter.Clean()
	return filter, nil
}
