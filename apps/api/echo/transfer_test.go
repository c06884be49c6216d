package echoapi

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/suprss/suprss/core/feed"
	"github.com/suprss/suprss/core/transfer"
	"github.com/suprss/suprss/internal/testutil"
)

const importCSV = "Type,Category/Collection,Feed Name,Feed URL,Description,Update Frequency (hours),Color\n" +
	"feed,Tech,Hacker News,https://news.ycombinator.com/rss,Links,12,#ff6600\n" +
	"feed,,Go Blog,https://blog.golang.org/feed.atom,,,\n" +
	"feed,Tech,No URL,,,,\n"

// upload posts `content` as the multipart `file` of the import form.
func (app *testApp) upload(t *testing.T, token, filename, content string, fields map[string]string) *httptest.ResponseRecorder {
	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	if filename != "" {
		part, err := w.CreateFormFile("file", filename)
		require.NoError(t, err)
		_, err = part.Write([]byte(content))
		require.NoError(t, err)
	}
	for k, v := range fields {
		require.NoError(t, w.WriteField(k, v))
	}
	require.NoError(t, w.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/transfer/import/file", &body)
	req.Header.Set(echo.HeaderContentType, w.FormDataContentType())
	req.Header.Set(echo.HeaderAuthorization, "Bearer "+token)
	rec := httptest.NewRecorder()
	app.server.ServeHTTP(rec, req)
	return rec
}

func Test_transferApi_export(t *testing.T) {
	app := setup(t)
	app.fetcher.Set(goFeedURL, feed.ParsedFeed{Title: "The Go Blog", Entries: testutil.Entries("go", 1)})
	usr := app.createUser(t, "exporter")
	token := app.token(t, usr)
	app.subscribe(t, token, goFeedURL)
	app.createCollection(t, token, "Mine")

	runHTTPTests(t, app, []httpTest{
		{
			name: "auth required", method: http.MethodPost, path: "/api/v1/transfer/export",
			wantCode: http.StatusUnauthorized, wantData: marchallObj(t, errMissingToken),
		},
		{
			name: "format required", method: http.MethodPost, path: "/api/v1/transfer/export", token: token,
			body: []byte(`{}`), wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, httpErr{Error: map[string]string{"format": "this field is required"}}),
		},
		{
			name: "unknown format", method: http.MethodPost, path: "/api/v1/transfer/export", token: token,
			body: []byte(`{"format": "yaml"}`), wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, httpErr{Error: map[string]string{"format": "must be one of: opml, json, csv"}}),
		},
	})

	t.Run("json", func(t *testing.T) {
		rec := app.do(http.MethodPost, "/api/v1/transfer/export", token, []byte(`{"format": "JSON"}`))
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		assert.Equal(t, "application/json", rec.Header().Get(echo.HeaderContentType))
		disposition := rec.Header().Get(echo.HeaderContentDisposition)
		assert.True(t, strings.HasPrefix(disposition, `attachment; filename="suprss_export_`), disposition)
		assert.True(t, strings.HasSuffix(disposition, `.json"`), disposition)

		var doc struct {
			Version   string `json:"version"`
			Generator string `json:"generator"`
			User      struct {
				Username string `json:"username"`
			} `json:"user"`
			Data struct {
				Categories []struct {
					Name  string `json:"name"`
					Feeds []struct {
						URL string `json:"url"`
					} `json:"feeds"`
				} `json:"categories"`
				Collections []struct {
					Name string `json:"name"`
				} `json:"collections"`
			} `json:"data"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &doc))
		assert.Equal(t, "SUPRSS", doc.Generator)
		assert.Equal(t, "exporter", doc.User.Username)
		require.Len(t, doc.Data.Categories, 1)
		assert.Equal(t, feed.DefaultCategoryName, doc.Data.Categories[0].Name)
		require.Len(t, doc.Data.Categories[0].Feeds, 1)
		assert.Equal(t, goFeedURL, doc.Data.Categories[0].Feeds[0].URL)
		require.Len(t, doc.Data.Collections, 1)
		assert.Equal(t, "Mine", doc.Data.Collections[0].Name)
	})

	t.Run("opml", func(t *testing.T) {
		rec := app.do(http.MethodPost, "/api/v1/transfer/export", token, []byte(`{"format": "opml", "include_collections": false}`))
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		assert.Equal(t, "application/xml", rec.Header().Get(echo.HeaderContentType))
		body := rec.Body.String()
		assert.Contains(t, body, `xmlUrl="`+goFeedURL+`"`)
		assert.NotContains(t, body, "Shared collections")
	})

	t.Run("history", func(t *testing.T) {
		rec := app.do(http.MethodGet, "/api/v1/transfer/history", token)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var h transfer.History
		unmarchall(t, rec, &h)
		require.Len(t, h.Exports, 2)
		assert.Equal(t, transfer.FormatOPML, h.Exports[0].Format) // newest first
		assert.Empty(t, h.Imports)
	})
}

func Test_transferApi_import(t *testing.T) {
	app := setup(t)
	usr := app.createUser(t, "importer")
	token := app.token(t, usr)

	runHTTPTests(t, app, []httpTest{
		{
			name: "content required", method: http.MethodPost, path: "/api/v1/transfer/import", token: token,
			body: []byte(`{"format": "csv"}`), wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, httpErr{Error: map[string]string{"content": "this field is required"}}),
		},
		{
			name: "invalid strategy", method: http.MethodPost, path: "/api/v1/transfer/import", token: token,
			body: []byte(`{"format": "csv", "content": "x", "merge_strategy": "overwrite"}`), wantCode: http.StatusBadRequest,
		},
		{
			name: "invalid document", method: http.MethodPost, path: "/api/v1/transfer/import", token: token,
			body: []byte(`{"format": "opml", "content": "<opml><body"}`), wantCode: http.StatusBadRequest,
		},
	})

	t.Run("csv", func(t *testing.T) {
		rec := app.do(http.MethodPost, "/api/v1/transfer/import", token, marchallObj(t, transfer.ImportRequest{
			Format: "csv", Content: importCSV,
		}))
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		var res transfer.ImportResult
		unmarchall(t, rec, &res)
		assert.True(t, res.Success)
		assert.Equal(t, 2, res.Imported)
		assert.Equal(t, 0, res.Skipped)
		assert.Equal(t, []string{"Tech"}, res.CreatedCategories)
		assert.Empty(t, res.Errors)

		rec = app.do(http.MethodGet, "/api/v1/categories", token)
		var cats []feed.Category
		unmarchall(t, rec, &cats)
		require.Len(t, cats, 2)
		assert.Equal(t, "Tech", cats[0].Name)
		assert.Equal(t, "#ff6600", cats[0].Color)
		assert.Equal(t, 1, cats[0].FeedCount)
		assert.Equal(t, 1, cats[1].FeedCount)
	})

	t.Run("skip existing", func(t *testing.T) {
		rec := app.do(http.MethodPost, "/api/v1/transfer/import", token, marchallObj(t, transfer.ImportRequest{
			Format: "csv", Content: importCSV, MergeStrategy: transfer.StrategySkip,
		}))
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		var res transfer.ImportResult
		unmarchall(t, rec, &res)
		assert.False(t, res.Success)
		assert.Equal(t, 0, res.Imported)
		assert.Equal(t, 2, res.Skipped)
	})

	t.Run("file", func(t *testing.T) {
		opml := `<?xml version="1.0"?><opml version="2.0"><head><title>x</title></head><body>` +
			`<outline text="News"><outline type="rss" text="Le Monde" xmlUrl="https://www.lemonde.fr/rss/une.xml"/></outline>` +
			`</body></opml>`
		rec := app.upload(t, token, "feeds.OPML", opml, map[string]string{"merge_strategy": "merge"})
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		var res transfer.ImportResult
		unmarchall(t, rec, &res)
		assert.Equal(t, 1, res.Imported)
		assert.Equal(t, []string{"News"}, res.CreatedCategories)
	})

	t.Run("file errors", func(t *testing.T) {
		rec := app.upload(t, token, "feeds.txt", "whatever", nil)
		checkCodeAndData(t, httpTest{
			wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, httpErr{Error: map[string]string{"file": transfer.ErrFileExtension.Error()}}),
		}, rec)

		rec = app.upload(t, token, "", "", map[string]string{"merge_strategy": "merge"})
		checkCodeAndData(t, httpTest{
			wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, httpErr{Error: map[string]string{"file": "a file is required"}}),
		}, rec)

		rec = app.upload(t, token, "feeds.csv", importCSV, map[string]string{"merge_strategy": "overwrite"})
		assert.Equal(t, http.StatusBadRequest, rec.Code)

		rec = app.upload(t, token, "big.csv", strings.Repeat("x", int(app.conf.Server.MaxUploadSize)+1), nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("history", func(t *testing.T) {
		rec := app.do(http.MethodGet, "/api/v1/transfer/history", token)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var h transfer.History
		unmarchall(t, rec, &h)
		require.Len(t, h.Imports, 3)
		assert.Equal(t, "feeds.OPML", h.Imports[0].Filename)
		assert.Equal(t, 1, h.Imports[0].FeedsImported)
		assert.Equal(t, "import.csv", h.Imports[2].Filename)
		assert.Empty(t, h.Exports)
	})
}
