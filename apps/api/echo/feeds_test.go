package echoapi

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/suprss/suprss/core"
	"github.com/suprss/suprss/core/feed"
	"github.com/suprss/suprss/internal/testutil"
)

const goFeedURL = "https://blog.golang.org/feed.atom"

func (app *testApp) subscribe(t *testing.T, token, url string, categoryID ...int64) feed.Feed {
	data := feed.NewSubscription{URL: url}
	if len(categoryID) > 0 {
		data.CategoryID = categoryID[0]
	}
	rec := app.do(http.MethodPost, "/api/v1/feeds", token, marchallObj(t, data))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var f feed.Feed
	unmarchall(t, rec, &f)
	return f
}

func (app *testApp) listArticles(t *testing.T, token, query string) feed.ArticleList {
	rec := app.do(http.MethodGet, "/api/v1/articles"+query, token)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var list feed.ArticleList
	unmarchall(t, rec, &list)
	return list
}

func (app *testApp) unreadCount(t *testing.T, token string) int {
	rec := app.do(http.MethodGet, "/api/v1/articles/unread-count", token)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp CountResponse
	unmarchall(t, rec, &resp)
	return resp.Count
}

func Test_feedApi_feeds(t *testing.T) {
	app := setup(t)
	app.fetcher.Set(goFeedURL, feed.ParsedFeed{
		Title:       "The Go Blog",
		Description: "The official blog",
		Entries:     testutil.Entries("go", 3),
	})
	usr := app.createUser(t, "gopher")
	other := app.createUser(t, "other")
	token, otherToken := app.token(t, usr), app.token(t, other)

	runHTTPTests(t, app, []httpTest{
		{name: "auth required", path: "/api/v1/feeds", wantCode: http.StatusUnauthorized, wantData: marchallObj(t, errMissingToken)},
		{name: "none yet", path: "/api/v1/feeds", token: token, wantCode: http.StatusOK, wantData: []byte(`[]`)},
		{
			name: "invalid url", method: http.MethodPost, path: "/api/v1/feeds", token: token,
			body: []byte(`{"url": "not a url"}`), wantCode: http.StatusBadRequest,
		},
		{
			name: "not a feed", method: http.MethodPost, path: "/api/v1/feeds", token: token,
			body: []byte(`{"url": "https://example.com/nothing"}`), wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, httpErr{Error: map[string]string{"url": "unable to read a valid RSS/Atom feed at this URL"}}),
		},
		{
			name: "unknown category", method: http.MethodPost, path: "/api/v1/feeds", token: token,
			body: marchallObj(t, feed.NewSubscription{URL: goFeedURL, CategoryID: 9999}), wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, httpErr{Error: map[string]string{"category_id": feed.ErrCategoryNotFound.Error()}}),
		},
	})

	f := app.subscribe(t, token, goFeedURL)
	assert.Equal(t, "The Go Blog", f.Name)
	assert.Equal(t, "The official blog", f.Description)
	assert.Equal(t, 3, f.ArticleCount)
	assert.Equal(t, app.conf.Feeds.DefaultFrequencyHours, f.UpdateFrequencyHours)
	assert.True(t, f.IsActive)
	assert.Equal(t, 1, app.fetcher.Calls(goFeedURL))

	feedPath := fmt.Sprintf("/api/v1/feeds/%d", f.ID)
	runHTTPTests(t, app, []httpTest{
		{
			name: "already subscribed", method: http.MethodPost, path: "/api/v1/feeds", token: token,
			body: marchallObj(t, feed.NewSubscription{URL: goFeedURL}), wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, httpErr{Error: map[string]string{"url": feed.ErrAlreadySubscribed.Error()}}),
		},
		{name: "not subscribed", path: feedPath, token: otherToken, wantCode: http.StatusForbidden},
		{name: "refresh not subscribed", method: http.MethodPost, path: feedPath + "/refresh", token: otherToken, wantCode: http.StatusNotFound},
		{name: "refresh too soon", method: http.MethodPost, path: feedPath + "/refresh", token: token, wantCode: http.StatusTooManyRequests},
		{name: "unknown", path: "/api/v1/feeds/9999", token: token, wantCode: http.StatusNotFound},
		{
			name: "invalid frequency", method: http.MethodPut, path: feedPath, token: token,
			body: []byte(`{"update_frequency_hours": 500}`), wantCode: http.StatusBadRequest,
		},
	})

	t.Run("listed", func(t *testing.T) {
		rec := app.do(http.MethodGet, "/api/v1/feeds", token)
		require.Equal(t, http.StatusOK, rec.Code)
		var feeds []feed.Feed
		unmarchall(t, rec, &feeds)
		require.Len(t, feeds, 1)
		assert.Equal(t, f.ID, feeds[0].ID)
		assert.Equal(t, 3, feeds[0].ArticleCount)
	})

	t.Run("shared feed row", func(t *testing.T) {
		g := app.subscribe(t, otherToken, goFeedURL)
		assert.Equal(t, f.ID, g.ID)
		assert.Equal(t, 1, app.fetcher.Calls(goFeedURL))
	})

	t.Run("update", func(t *testing.T) {
		rec := app.do(http.MethodPut, feedPath, token, []byte(`{"name": "Go", "update_frequency_hours": 12, "is_active": false}`))
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var got feed.Feed
		unmarchall(t, rec, &got)
		assert.Equal(t, "Go", got.Name)
		assert.Equal(t, 12, got.UpdateFrequencyHours)
		assert.False(t, got.IsActive)
		assert.Equal(t, goFeedURL, got.URL)
	})

	t.Run("unsubscribe", func(t *testing.T) {
		rec := app.do(http.MethodDelete, feedPath, token)
		require.Equal(t, http.StatusNoContent, rec.Code, rec.Body.String())

		rec = app.do(http.MethodGet, "/api/v1/feeds", token)
		assert.JSONEq(t, `[]`, rec.Body.String())

		// still there for the other subscriber
		rec = app.do(http.MethodGet, feedPath, otherToken)
		assert.Equal(t, http.StatusOK, rec.Code)
	})
}

func Test_feedApi_articles(t *testing.T) {
	app := setup(t)
	app.fetcher.Set(goFeedURL, feed.ParsedFeed{Title: "The Go Blog", Entries: testutil.Entries("go", 3)})
	usr := app.createUser(t, "reader")
	other := app.createUser(t, "other")
	token, otherToken := app.token(t, usr), app.token(t, other)
	app.subscribe(t, token, goFeedURL)

	list := app.listArticles(t, token, "")
	require.Len(t, list.Items, 3)
	assert.Equal(t, 3, list.Total)
	assert.Equal(t, feed.DefaultArticleLimit, list.Limit)
	assert.Equal(t, "go article A", list.Items[0].Title) // newest first
	assert.Equal(t, "The Go Blog", list.Items[0].FeedName)
	assert.Equal(t, 3, app.unreadCount(t, token))

	newest, oldest := list.Items[0], list.Items[2]
	articlePath := fmt.Sprintf("/api/v1/articles/%d", newest.ID)

	runHTTPTests(t, app, []httpTest{
		{name: "invalid sort", path: "/api/v1/articles?sort_by=author", token: token, wantCode: http.StatusBadRequest},
		{name: "invalid date", path: "/api/v1/articles?from=today", token: token, wantCode: http.StatusBadRequest},
		{name: "retrieve", path: articlePath, token: token, wantCode: http.StatusOK, wantData: marchallObj(t, newest)},
		{name: "no access", path: articlePath, token: otherToken, wantCode: http.StatusForbidden},
		{name: "unknown", path: "/api/v1/articles/9999", token: token, wantCode: http.StatusNotFound},
		{name: "nothing for the other", path: "/api/v1/articles/unread-count", token: otherToken, wantCode: http.StatusOK, wantData: []byte(`{"count": 0}`)},
	})

	t.Run("filters", func(t *testing.T) {
		asc := app.listArticles(t, token, "?sort_order=asc&limit=2")
		require.Len(t, asc.Items, 2)
		assert.Equal(t, 3, asc.Total)
		assert.Equal(t, oldest.ID, asc.Items[0].ID)

		found := app.listArticles(t, token, "?search=ARTICLE%20B")
		require.Len(t, found.Items, 1)
		assert.Equal(t, "go article B", found.Items[0].Title)

		paged := app.listArticles(t, token, "?offset=2")
		require.Len(t, paged.Items, 1)
		assert.Equal(t, oldest.ID, paged.Items[0].ID)
	})

	t.Run("status", func(t *testing.T) {
		rec := app.do(http.MethodPatch, articlePath+"/status", token, []byte(`{"is_read": true}`))
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var st feed.Status
		unmarchall(t, rec, &st)
		assert.True(t, st.IsRead)
		assert.True(t, st.ReadAt.Valid)
		assert.False(t, st.IsFavorite)

		assert.Equal(t, 2, app.unreadCount(t, token))
		unread := app.listArticles(t, token, "?unread_only=true")
		assert.Equal(t, 2, unread.Total)

		rec = app.do(http.MethodPatch, articlePath+"/status", otherToken, []byte(`{"is_read": true}`))
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})

	t.Run("bulk", func(t *testing.T) {
		ids := make([]int64, 0, len(list.Items)+1)
		for _, a := range list.Items {
			ids = append(ids, a.ID)
		}
		rec := app.do(http.MethodPost, "/api/v1/articles/bulk", token, marchallObj(t, feed.BulkAction{
			ArticleIDs: append(ids, 9999), Action: feed.ActionMarkRead,
		}))
		checkCodeAndData(t, httpTest{wantCode: http.StatusOK, wantData: []byte(`{"count": 3}`)}, rec)
		assert.Equal(t, 0, app.unreadCount(t, token))

		rec = app.do(http.MethodPost, "/api/v1/articles/bulk", token, marchallObj(t, feed.BulkAction{
			ArticleIDs: []int64{oldest.ID}, Action: feed.ActionAddFavorite,
		}))
		checkCodeAndData(t, httpTest{wantCode: http.StatusOK, wantData: []byte(`{"count": 1}`)}, rec)

		rec = app.do(http.MethodPost, "/api/v1/articles/bulk", token, []byte(`{"article_ids": [1], "action": "delete"}`))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("favorites", func(t *testing.T) {
		rec := app.do(http.MethodGet, "/api/v1/articles/favorites", token)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		var resp struct {
			Items []feed.Article `json:"items"`
			core.PageInfo
		}
		unmarchall(t, rec, &resp)
		require.Len(t, resp.Items, 1)
		assert.Equal(t, oldest.ID, resp.Items[0].ID)
		assert.True(t, resp.Items[0].IsFavorite)
		assert.Equal(t, 1, resp.Total)
		assert.False(t, resp.HasNext)

		favs := app.listArticles(t, token, "?favorites_only=true")
		assert.Equal(t, 1, favs.Total)
	})
}

func Test_feedApi_categories(t *testing.T) {
	app := setup(t)
	app.fetcher.Set(goFeedURL, feed.ParsedFeed{Title: "The Go Blog", Entries: testutil.Entries("go", 1)})
	usr := app.createUser(t, "sorter")
	token := app.token(t, usr)
	otherToken := app.token(t, app.createUser(t, "other"))

	f := app.subscribe(t, token, goFeedURL)

	var tech feed.Category
	t.Run("create", func(t *testing.T) {
		rec := app.do(http.MethodPost, "/api/v1/categories", token, []byte(`{"name": " Tech ", "color": "#FF0000"}`))
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
		unmarchall(t, rec, &tech)
		assert.Equal(t, "Tech", tech.Name)
		assert.Equal(t, "#FF0000", tech.Color)
		assert.Equal(t, usr.ID, tech.UserID)
	})

	rec := app.do(http.MethodGet, "/api/v1/categories", token)
	require.Equal(t, http.StatusOK, rec.Code)
	var cats []feed.Category
	unmarchall(t, rec, &cats)
	require.Len(t, cats, 2)
	def := cats[1]
	assert.Equal(t, "Tech", cats[0].Name)
	assert.Equal(t, feed.DefaultCategoryName, def.Name)
	assert.Equal(t, 1, def.FeedCount)

	techPath := fmt.Sprintf("/api/v1/categories/%d", tech.ID)
	defPath := fmt.Sprintf("/api/v1/categories/%d", def.ID)
	runHTTPTests(t, app, []httpTest{
		{
			name: "duplicate", method: http.MethodPost, path: "/api/v1/categories", token: token,
			body: []byte(`{"name": "tech"}`), wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, httpErr{Error: map[string]string{"name": feed.ErrCategoryExists.Error()}}),
		},
		{
			name: "invalid color", method: http.MethodPost, path: "/api/v1/categories", token: token,
			body: []byte(`{"name": "Music", "color": "red"}`), wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, httpErr{Error: map[string]string{"color": "must be a color in the #RRGGBB format"}}),
		},
		{
			name: "rename default", method: http.MethodPut, path: defPath, token: token,
			body: []byte(`{"name": "Misc"}`), wantCode: http.StatusBadRequest,
		},
		{name: "delete default", method: http.MethodDelete, path: defPath, token: token, wantCode: http.StatusBadRequest},
		{name: "not theirs", method: http.MethodDelete, path: techPath, token: otherToken, wantCode: http.StatusNotFound},
		{
			name: "same category", method: http.MethodPost, path: "/api/v1/categories/move-feed", token: token,
			body: marchallObj(t, feed.MoveFeed{FeedID: f.ID, FromCategoryID: def.ID, ToCategoryID: def.ID}), wantCode: http.StatusBadRequest,
		},
		{
			name: "move feed", method: http.MethodPost, path: "/api/v1/categories/move-feed", token: token,
			body:     marchallObj(t, feed.MoveFeed{FeedID: f.ID, FromCategoryID: def.ID, ToCategoryID: tech.ID}),
			wantCode: http.StatusOK, wantData: marchallObj(t, SuccessResponse{Success: "Feed moved."}),
		},
		{
			name: "moved already", method: http.MethodPost, path: "/api/v1/categories/move-feed", token: token,
			body:     marchallObj(t, feed.MoveFeed{FeedID: f.ID, FromCategoryID: def.ID, ToCategoryID: tech.ID}),
			wantCode: http.StatusBadRequest,
		},
	})

	t.Run("articles by category", func(t *testing.T) {
		assert.Equal(t, 1, app.listArticles(t, token, fmt.Sprintf("?category_id=%d", tech.ID)).Total)
		assert.Equal(t, 0, app.listArticles(t, token, fmt.Sprintf("?category_id=%d", def.ID)).Total)
	})

	t.Run("update", func(t *testing.T) {
		rec := app.do(http.MethodPut, techPath, token, []byte(`{"name": "Programming"}`))
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var got feed.Category
		unmarchall(t, rec, &got)
		assert.Equal(t, "Programming", got.Name)
		assert.Equal(t, "#FF0000", got.Color)
		assert.Equal(t, 1, got.FeedCount)
	})

	t.Run("delete moves the feeds to the default category", func(t *testing.T) {
		rec := app.do(http.MethodDelete, techPath, token)
		require.Equal(t, http.StatusNoContent, rec.Code, rec.Body.String())

		rec = app.do(http.MethodGet, "/api/v1/categories", token)
		var cats []feed.Category
		unmarchall(t, rec, &cats)
		require.Len(t, cats, 1)
		assert.Equal(t, 1, cats[0].FeedCount)
	})
}
