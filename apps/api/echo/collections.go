package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/suprss/suprss/core/collection"
	"github.com/suprss/suprss/core/interaction"
)

type collectionApi struct {
	svc      *collection.Service
	interSvc *interaction.Service
	validate *validator.Validate
}

func registerCollectionAPI(
	g *echo.Group,
	authed []echo.MiddlewareFunc,
	svc *collection.Service,
	interSvc *interaction.Service,
	validate *validator.Validate,
) {
	api := collectionApi{svc: svc, interSvc: interSvc, validate: validate}

	cg := g.Group("/collections", authed...)
	cg.POST("", api.create)
	cg.GET("", api.list)
	cg.GET("/:id", api.retrieve)
	cg.PUT("/:id", api.update)
	cg.DELETE("/:id", api.destroy)
	cg.POST("/:id/toggle-sharing", api.toggleSharing)

	// feeds
	cg.POST("/:id/feeds", api.addFeed)
	cg.DELETE("/:id/feeds/:feedId", api.removeFeed)
	cg.GET("/:id/articles", api.articles)

	// members
	cg.GET("/:id/members", api.members)
	cg.POST("/:id/members", api.addMember)
	cg.PUT("/:id/members/:userId", api.updateMember)
	cg.DELETE("/:id/members/:userId", api.removeMember)

	// interactions
	cg.GET("/:id/messages", api.messages)
	cg.POST("/:id/messages", api.postMessage)
	cg.GET("/:id/articles/:articleId/comments", api.articleComments)
}

// Handlers

func (api *collectionApi) create(ctx echo.Context) error {
	userID, err := contextUserID(ctx)
	if err != nil {
		return err
	}

	var data collection.NewCollection
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewCollection")
	}
	if err = data.Validate(api.validate); err != nil {
		return err
	}

	coll, err := api.svc.Create(ctx.Request().Context(), userID, data)
	if err != nil {
		return errors.Wrap(err, "creating collection")
	}
	return ctx.JSON(http.StatusCreated, coll)
}

func (api *collectionApi) list(ctx echo.Context) error {
	userID, err := contextUserID(ctx)
	if err != nil {
		return err
	}
	items, info, err := api.svc.ListMine(ctx.Request().Context(), userID, bindPagination(ctx))
	if err != nil {
		return errors.Wrap(err, "listing collections")
	}
	return ctx.JSON(http.StatusOK, PageResponse{Items: items, PageInfo: info})
}

func (api *collectionApi) retrieve(ctx echo.Context) error {
	userID, id, err := userAndParamID(ctx, "id")
	if err != nil {
		return err
	}
	detail, err := api.svc.Detail(ctx.Request().Context(), id, userID)
	if err != nil {
		return errors.Wrap(err, "getting collection")
	}
	return ctx.JSON(http.StatusOK, detail)
}

func (api *collectionApi) update(ctx echo.Context) error {
	userID, id, err := userAndParamID(ctx, "id")
	if err != nil {
		return err
	}

	var data collection.UpdateCollection
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateCollection")
	}
	if err = data.Validate(api.validate); err != nil {
		return err
	}

	coll, err := api.svc.Update(ctx.Request().Context(), id, userID, data)
	if err != nil {
		return errors.Wrap(err, "updating collection")
	}
	return ctx.JSON(http.StatusOK, coll)
}

func (api *collectionApi) destroy(ctx echo.Context) error {
	userID, id, err := userAndParamID(ctx, "id")
	if err != nil {
		return err
	}
	if err = api.svc.Delete(ctx.Request().Context(), id, userID); err != nil {
		return errors.Wrap(err, "deleting collection")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *collectionApi) toggleSharing(ctx echo.Context) error {
	userID, id, err := userAndParamID(ctx, "id")
	if err != nil {
		return err
	}
	coll, err := api.svc.ToggleSharing(ctx.Request().Context(), id, userID)
	if err != nil {
		return errors.Wrap(err, "toggling collection sharing")
	}
	return ctx.JSON(http.StatusOK, coll)
}

func (api *collectionApi) addFeed(ctx echo.Context) error {
	userID, id, err := userAndParamID(ctx, "id")
	if err != nil {
		return err
	}

	var data collection.NewCollectionFeed
	if err = bindValid(ctx, api.validate, &data); err != nil {
		return err
	}

	cf, err := api.svc.AddFeed(ctx.Request().Context(), id, userID, data)
	if err != nil {
		return errors.Wrap(err, "adding feed to collection")
	}
	return ctx.JSON(http.StatusCreated, cf)
}

func (api *collectionApi) removeFeed(ctx echo.Context) error {
	userID, id, err := userAndParamID(ctx, "id")
	if err != nil {
		return err
	}
	feedID, err := paramID(ctx, "feedId")
	if err != nil {
		return err
	}
	if err = api.svc.RemoveFeed(ctx.Request().Context(), id, userID, feedID); err != nil {
		return errors.Wrap(err, "removing feed from collection")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *collectionApi) articles(ctx echo.Context) error {
	userID, id, err := userAndParamID(ctx, "id")
	if err != nil {
		return err
	}
	items, info, err := api.svc.Articles(ctx.Request().Context(), id, userID, bindPagination(ctx))
	if err != nil {
		return errors.Wrap(err, "listing collection articles")
	}
	return ctx.JSON(http.StatusOK, PageResponse{Items: items, PageInfo: info})
}

func (api *collectionApi) members(ctx echo.Context) error {
	userID, id, err := userAndParamID(ctx, "id")
	if err != nil {
		return err
	}
	members, err := api.svc.Members(ctx.Request().Context(), id, userID)
	if err != nil {
		return errors.Wrap(err, "listing members")
	}
	if members == nil {
		members = []collection.Member{}
	}
	return ctx.JSON(http.StatusOK, members)
}

func (api *collectionApi) addMember(ctx echo.Context) error {
	userID, id, err := userAndParamID(ctx, "id")
	if err != nil {
		return err
	}

	var data collection.NewMember
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewMember")
	}
	if err = data.Validate(api.validate); err != nil {
		return err
	}

	m, err := api.svc.AddMember(ctx.Request().Context(), id, userID, data)
	if err != nil {
		return errors.Wrap(err, "adding member")
	}
	return ctx.JSON(http.StatusCreated, m)
}

func (api *collectionApi) updateMember(ctx echo.Context) error {
	userID, id, err := userAndParamID(ctx, "id")
	if err != nil {
		return err
	}
	memberID, err := paramID(ctx, "userId")
	if err != nil {
		return err
	}

	var data collection.UpdateMember
	if err = bindValid(ctx, api.validate, &data); err != nil {
		return err
	}

	m, err := api.svc.UpdateMember(ctx.Request().Context(), id, userID, memberID, data)
	if err != nil {
		return errors.Wrap(err, "updating member")
	}
	return ctx.JSON(http.StatusOK, m)
}

func (api *collectionApi) removeMember(ctx echo.Context) error {
	userID, id, err := userAndParamID(ctx, "id")
	if err != nil {
		return err
	}
	memberID, err := paramID(ctx, "userId")
	if err != nil {
		return err
	}
	if err = api.svc.RemoveMember(ctx.Request().Context(), id, userID, memberID); err != nil {
		return errors.Wrap(err, "removing member")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *collectionApi) messages(ctx echo.Context) error {
	userID, id, err := userAndParamID(ctx, "id")
	if err != nil {
		return err
	}
	items, info, err := api.interSvc.Messages(ctx.Request().Context(), id, userID, bindPagination(ctx))
	if err != nil {
		return errors.Wrap(err, "listing messages")
	}
	return ctx.JSON(http.StatusOK, PageResponse{Items: items, PageInfo: info})
}

func (api *collectionApi) postMessage(ctx echo.Context) error {
	userID, id, err := userAndParamID(ctx, "id")
	if err != nil {
		return err
	}

	var data interaction.NewMessage
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewMessage")
	}
	if err = data.Validate(api.validate); err != nil {
		return err
	}

	msg, err := api.interSvc.PostMessage(ctx.Request().Context(), id, userID, data)
	if err != nil {
		return errors.Wrap(err, "posting message")
	}
	return ctx.JSON(http.StatusCreated, msg)
}

func (api *collectionApi) articleComments(ctx echo.Context) error {
	userID, id, err := userAndParamID(ctx, "id")
	if err != nil {
		return err
	}
	articleID, err := paramID(ctx, "articleId")
	if err != nil {
		return err
	}
	comments, err := api.interSvc.ArticleComments(ctx.Request().Context(), id, articleID, userID)
	if err != nil {
		return errors.Wrap(err, "listing article comments")
	}
	if comments == nil {
		comments = []interaction.Comment{}
	}
	return ctx.JSON(http.StatusOK, comments)
}
