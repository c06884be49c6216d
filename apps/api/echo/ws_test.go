package echoapi

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/suprss/suprss/core/collection"
	"github.com/suprss/suprss/core/interaction"
)

type chatEvent struct {
	Type    string               `json:"type"`
	Message *interaction.Message `json:"message"`
	Error   string               `json:"error"`
}

func dialChat(srv *httptest.Server, collID int64, token string) (*websocket.Conn, *http.Response, error) {
	url := fmt.Sprintf("ws%s/api/v1/ws/collections/%d", strings.TrimPrefix(srv.URL, "http"), collID)
	if token != "" {
		url += "?token=" + token
	}
	return websocket.DefaultDialer.Dial(url, nil)
}

func readChatEvent(t *testing.T, conn *websocket.Conn) chatEvent {
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	for {
		typ, data, err := conn.ReadMessage()
		require.NoError(t, err)
		if typ != websocket.TextMessage {
			continue
		}
		var ev chatEvent
		require.NoError(t, json.Unmarshal(data, &ev))
		return ev
	}
}

func Test_chatApi_serve(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent(), goleak.IgnoreAnyFunction("os/signal.loop"))

	app := setup(t)
	owner := app.createUser(t, "owner")
	member := app.createUser(t, "member")
	outsider := app.createUser(t, "outsider")
	token, memberToken := app.token(t, owner), app.token(t, member)

	c := app.createCollection(t, token, "Chatty")
	rec := app.do(http.MethodPost, fmt.Sprintf("/api/v1/collections/%d/members", c.ID), token,
		marchallObj(t, collection.NewMember{UserID: member.ID}))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	srv := httptest.NewServer(app.server)
	defer srv.Close()
	defer app.hub.Close()

	t.Run("rejected", func(t *testing.T) {
		_, resp, err := dialChat(srv, c.ID, "")
		require.ErrorIs(t, err, websocket.ErrBadHandshake)
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

		_, resp, err = dialChat(srv, c.ID, app.token(t, outsider))
		require.ErrorIs(t, err, websocket.ErrBadHandshake)
		assert.Equal(t, http.StatusForbidden, resp.StatusCode)

		_, resp, err = dialChat(srv, 9999, token)
		require.ErrorIs(t, err, websocket.ErrBadHandshake)
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	})

	ownerConn, _, err := dialChat(srv, c.ID, token)
	require.NoError(t, err)
	defer ownerConn.Close()
	memberConn, _, err := dialChat(srv, c.ID, memberToken)
	require.NoError(t, err)
	defer memberConn.Close()
	assert.Eventually(t, func() bool { return app.hub.Connections(c.ID) == 2 }, 2*time.Second, 10*time.Millisecond)

	t.Run("post over the socket", func(t *testing.T) {
		require.NoError(t, memberConn.WriteMessage(websocket.TextMessage, []byte(" hi all ")))

		ev := readChatEvent(t, memberConn)
		assert.Equal(t, "message", ev.Type)
		require.NotNil(t, ev.Message)
		assert.Equal(t, "hi all", ev.Message.Content)
		assert.Equal(t, "member", ev.Message.Username)

		ev = readChatEvent(t, ownerConn)
		require.NotNil(t, ev.Message)
		assert.Equal(t, member.ID, ev.Message.UserID)
		assert.Equal(t, "hi all", ev.Message.Content)
	})

	t.Run("post over http", func(t *testing.T) {
		rec := app.do(http.MethodPost, fmt.Sprintf("/api/v1/collections/%d/messages", c.ID), token, []byte(`{"content": "welcome"}`))
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

		ev := readChatEvent(t, memberConn)
		require.NotNil(t, ev.Message)
		assert.Equal(t, "welcome", ev.Message.Content)
		assert.Equal(t, owner.ID, ev.Message.UserID)

		// the author's open sockets get it as well
		ev = readChatEvent(t, ownerConn)
		require.NotNil(t, ev.Message)
		assert.Equal(t, "welcome", ev.Message.Content)
	})

	t.Run("invalid message", func(t *testing.T) {
		require.NoError(t, ownerConn.WriteMessage(websocket.TextMessage, []byte("   ")))
		ev := readChatEvent(t, ownerConn)
		assert.Equal(t, "error", ev.Type)
		assert.Equal(t, "this field is required", ev.Error)
	})

	t.Run("stored", func(t *testing.T) {
		rec := app.do(http.MethodGet, fmt.Sprintf("/api/v1/collections/%d/messages", c.ID), memberToken)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var resp struct {
			Items []interaction.Message `json:"items"`
		}
		unmarchall(t, rec, &resp)
		require.Len(t, resp.Items, 2)
		assert.Equal(t, "welcome", resp.Items[0].Content)
	})

	t.Run("read access revoked", func(t *testing.T) {
		rec := app.do(http.MethodPut, fmt.Sprintf("/api/v1/collections/%d/members/%d", c.ID, member.ID), token,
			[]byte(`{"permissions": {"can_read": false}}`))
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		assert.Eventually(t, func() bool { return app.hub.Connections(c.ID) == 1 }, 2*time.Second, 10*time.Millisecond)

		_ = memberConn.SetReadDeadline(time.Now().Add(2 * time.Second))
		_, _, err := memberConn.ReadMessage()
		assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure), "got %v", err)

		_, resp, err := dialChat(srv, c.ID, memberToken)
		require.ErrorIs(t, err, websocket.ErrBadHandshake)
		assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	})

	t.Run("removed member", func(t *testing.T) {
		rec := app.do(http.MethodPut, fmt.Sprintf("/api/v1/collections/%d/members/%d", c.ID, member.ID), token,
			[]byte(`{"permissions": {"can_read": true}}`))
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		conn, _, err := dialChat(srv, c.ID, memberToken)
		require.NoError(t, err)
		defer conn.Close()
		assert.Eventually(t, func() bool { return app.hub.Connections(c.ID) == 2 }, 2*time.Second, 10*time.Millisecond)

		rec = app.do(http.MethodDelete, fmt.Sprintf("/api/v1/collections/%d/members/%d", c.ID, member.ID), token)
		require.Equal(t, http.StatusNoContent, rec.Code, rec.Body.String())
		assert.Eventually(t, func() bool { return app.hub.Connections(c.ID) == 1 }, 2*time.Second, 10*time.Millisecond)
	})
}
