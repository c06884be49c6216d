package pgrepos_test

import (
	"context"
	"os"
	"testing"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/suprss/suprss/core"
	"github.com/suprss/suprss/core/collection"
	"github.com/suprss/suprss/core/feed"
	"github.com/suprss/suprss/core/interaction"
	"github.com/suprss/suprss/core/search"
	"github.com/suprss/suprss/core/transfer"
	"github.com/suprss/suprss/core/user"
	"github.com/suprss/suprss/internal/testutil"
	emailsvc "github.com/suprss/suprss/services/email"
	"github.com/suprss/suprss/storage/database"
	pgrepos "github.com/suprss/suprss/storage/database/postgres"
)

const goURL = "https://blog.golang.org/feed.atom"

// openDB connects to the database at SUPRSS_TEST_DATABASE_URL, migrates it & empties every table.
func openDB(t *testing.T) *sqlx.DB {
	dbURL := os.Getenv("SUPRSS_TEST_DATABASE_URL")
	if dbURL == "" {
		t.Skip("SUPRSS_TEST_DATABASE_URL is not set")
	}
	db, err := sqlx.Open("postgres", dbURL)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	require.NoError(t, database.Check(context.Background(), db))
	require.NoError(t, database.Migrate(db.DB, database.MigrateUp))
	_, err = db.Exec(`TRUNCATE users, feeds, collections, export_logs, import_logs RESTART IDENTITY CASCADE`)
	require.NoError(t, err)
	return db
}

func TestRepositories(t *testing.T) {
	db := openDB(t)
	ctx := context.Background()
	conf := testutil.NewConfig()
	logger := core.NopLogger{}
	mailSvc := emailsvc.NewConsoleServiceMock(conf)

	usrRepo := pgrepos.NewUserRepository(db)
	fetcher := testutil.NewFetcher()
	fetcher.Set(goURL, feed.ParsedFeed{Title: "The Go Blog", Entries: testutil.Entries("go", 3)})
	feedSvc := feed.NewService(conf, pgrepos.NewFeedRepository(db), fetcher, logger)
	usrSvc := user.NewService(conf, usrRepo, mailSvc, feedSvc, logger)
	collSvc := collection.NewService(conf, pgrepos.NewCollectionRepository(db), usrSvc, feedSvc, mailSvc, logger)
	intSvc := interaction.NewService(pgrepos.NewInteractionRepository(db), collSvc, nil, logger)
	searchSvc := search.NewService(pgrepos.NewSearchRepository(db))
	transferSvc := transfer.NewService(conf, pgrepos.NewTransferRepository(db), usrSvc, feedSvc, collSvc, mailSvc, logger)

	alice := testutil.CreateUser(t, usrRepo, "alice", "alice@test.cd", true, false)
	bob := testutil.CreateUser(t, usrRepo, "bob", "bob@test.cd", true, false)
	for _, id := range []int64{alice.ID, bob.ID} {
		require.NoError(t, feedSvc.CreateDefaultCategory(ctx, id))
	}

	t.Run("users", func(t *testing.T) {
		got, err := usrSvc.GetByEmail(ctx, "ALICE@test.cd")
		require.NoError(t, err)
		assert.Equal(t, alice.ID, got.ID)
		assert.NoError(t, got.CheckPassword(testutil.Password))

		_, err = usrSvc.GetByID(ctx, 9999)
		assert.ErrorIs(t, err, core.ErrNotFound)
		assert.Error(t, usrSvc.CheckUniqueness(ctx, "alice", "new@test.cd"))
	})

	f, err := feedSvc.Subscribe(ctx, alice.ID, feed.NewSubscription{URL: goURL})
	require.NoError(t, err)

	t.Run("feeds", func(t *testing.T) {
		arts, err := feedSvc.ListArticles(ctx, alice.ID, feed.ArticleFilter{})
		require.NoError(t, err)
		assert.Equal(t, 3, arts.Total)

		// refreshing stores no duplicate
		n, err := feedSvc.RefreshFeed(ctx, f)
		require.NoError(t, err)
		assert.Zero(t, n)

		unread, err := feedSvc.UnreadCount(ctx, alice.ID, feed.UnreadCountFilter{})
		require.NoError(t, err)
		assert.Equal(t, 3, unread)
	})

	coll, err := collSvc.Create(ctx, alice.ID, collection.NewCollection{Name: "Team"})
	require.NoError(t, err)

	t.Run("collections", func(t *testing.T) {
		_, err := collSvc.AddMember(ctx, coll.ID, alice.ID, collection.NewMember{Email: "bob@test.cd"})
		require.NoError(t, err)
		_, err = collSvc.AddFeed(ctx, coll.ID, alice.ID, collection.NewCollectionFeed{FeedID: f.ID})
		require.NoError(t, err)

		members, err := collSvc.Members(ctx, coll.ID, bob.ID)
		require.NoError(t, err)
		require.Len(t, members, 2)
		assert.True(t, members[0].IsOwner())

		arts, page, err := collSvc.Articles(ctx, coll.ID, bob.ID, core.Pagination{})
		require.NoError(t, err)
		assert.Equal(t, 3, page.Total)

		c, err := intSvc.CreateComment(ctx, bob.ID, interaction.NewComment{
			ArticleID:    arts[0].ID,
			CollectionID: coll.ID,
			Content:      "great article",
		})
		require.NoError(t, err)
		assert.Equal(t, "bob", c.Username)
	})

	t.Run("search", func(t *testing.T) {
		resp, err := searchSvc.Search(ctx, bob.ID, search.Query{Query: "article", Types: search.AllTypes, LimitPerType: 10})
		require.NoError(t, err)
		assert.Len(t, resp.Results[search.TypeArticles], 3)
		assert.Len(t, resp.Results[search.TypeComments], 1)
	})

	t.Run("transfer", func(t *testing.T) {
		res, err := transferSvc.Export(ctx, alice.ID, transfer.ExportRequest{Format: transfer.FormatOPML, IncludePersonal: true, IncludeCollections: true})
		require.NoError(t, err)
		assert.Contains(t, string(res.Content), goURL)

		hist, err := transferSvc.History(ctx, alice.ID)
		require.NoError(t, err)
		assert.Len(t, hist.Exports, 1)
	})

	t.Run("cascade", func(t *testing.T) {
		require.NoError(t, collSvc.Delete(ctx, coll.ID, alice.ID))
		ids, err := collSvc.CollectionIDs(ctx, bob.ID)
		require.NoError(t, err)
		assert.Empty(t, ids)
	})
}
