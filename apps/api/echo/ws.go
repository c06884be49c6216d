package echoapi

import (
	"context"
	"net/http"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/suprss/suprss/core/collection"
	"github.com/suprss/suprss/core/interaction"
	chatsvc "github.com/suprss/suprss/services/chat"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// browsers cannot set the Authorization header on websockets: the JWT travels in the query string
	CheckOrigin: func(*http.Request) bool { return true },
}

type chatApi struct {
	collSvc    *collection.Service
	interSvc   *interaction.Service
	hub        *chatsvc.Hub
	validate   *validator.Validate
	translator ut.Translator
}

func registerChatAPI(g *echo.Group, a *auth, opts *Options) {
	api := chatApi{
		collSvc:    opts.CollectionSvc,
		interSvc:   opts.InteractionSvc,
		hub:        opts.Hub,
		validate:   opts.Validate,
		translator: opts.Translator,
	}
	g.GET("/ws/collections/:id", api.serve, a.middleware("query:token"), activeUserMiddleware(opts.UserSvc))
}

// serve upgrades the request to a websocket joined to the collection chat.
func (api *chatApi) serve(ctx echo.Context) error {
	userID, collID, err := userAndParamID(ctx, "id")
	if err != nil {
		return err
	}
	if _, err = api.collSvc.Authorize(ctx.Request().Context(), collID, userID, collection.PermRead); err != nil {
		return errors.Wrap(err, "authorizing chat access")
	}

	conn, err := upgrader.Upgrade(ctx.Response(), ctx.Request(), nil)
	if err != nil {
		// the upgrader already replied
		ctx.Logger().Warnf("chat: upgrading connection: %v", err)
		return nil
	}
	api.hub.Serve(conn, collID, userID, api.poster(collID, userID))
	return nil
}

// poster validates & posts the messages the user sends over their connection.
func (api *chatApi) poster(collID, userID int64) chatsvc.Poster {
	return func(ctx context.Context, content string) (interaction.Message, error) {
		data := interaction.NewMessage{Content: content}
		if err := data.Validate(api.validate); err != nil {
			if verrs, ok := err.(validator.ValidationErrors); ok && len(verrs) > 0 {
				return interaction.Message{}, errors.New(verrs[0].Translate(api.translator))
			}
			return interaction.Message{}, err
		}
		msg, err := api.interSvc.PostMessage(ctx, collID, userID, data)
		if err != nil {
			return interaction.Message{}, errors.Cause(err)
		}
		return msg, nil
	}
}
