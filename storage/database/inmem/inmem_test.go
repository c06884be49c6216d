package inmemdb

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/volatiletech/null/v8"

	"github.com/suprss/suprss/core/feed"
	"github.com/suprss/suprss/core/interaction"
	"github.com/suprss/suprss/core/user"
)

func TestFeedRepository_SaveArticles(t *testing.T) {
	ctx := context.Background()
	db, err := Open()
	require.NoError(t, err)
	repo := NewFeedRepository(db)

	f, err := repo.CreateFeed(ctx, feed.Feed{Name: "The Go Blog", URL: "https://blog.golang.org/feed.atom"})
	require.NoError(t, err)

	articles := []feed.Article{
		{GUID: "a", Title: "A"},
		{GUID: "b", Title: "B"},
		{GUID: "c", Title: "C"},
	}
	n, err := repo.SaveArticles(ctx, f.ID, articles, time.Now())
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	titles := make(map[string]string)
	for id, a := range db.articles {
		assert.Equal(t, id, a.ID)
		assert.Equal(t, f.ID, a.FeedID)
		titles[a.GUID] = a.Title
	}
	assert.Equal(t, map[string]string{"a": "A", "b": "B", "c": "C"}, titles)

	// known guids are skipped
	n, err = repo.SaveArticles(ctx, f.ID, append(articles, feed.Article{GUID: "d", Title: "D"}), time.Now())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Len(t, db.articles, 4)

	_, err = repo.SaveArticles(ctx, 9999, articles, time.Now())
	assert.ErrorIs(t, err, feed.ErrNotFound)
}

func TestFeedRepository_MoveFeed(t *testing.T) {
	ctx := context.Background()
	db, err := Open()
	require.NoError(t, err)
	repo := NewFeedRepository(db)

	f, err := repo.CreateFeed(ctx, feed.Feed{Name: "The Go Blog", URL: "https://blog.golang.org/feed.atom"})
	require.NoError(t, err)
	cats := make([]feed.Category, 0, 3)
	for _, name := range []string{"News", "Tech", "Misc"} {
		c, err := repo.CreateCategory(ctx, feed.Category{UserID: 1, Name: name})
		require.NoError(t, err)
		cats = append(cats, c)
	}
	news, tech, misc := cats[0].ID, cats[1].ID, cats[2].ID
	for _, id := range []int64{news, tech} {
		_, err = repo.Subscribe(ctx, feed.Subscription{FeedID: f.ID, CategoryID: id})
		require.NoError(t, err)
	}

	tests := []struct {
		name     string
		from, to int64
		wantErr  error
	}{
		{name: "not in source, already in target", from: misc, to: tech, wantErr: feed.ErrNotSubscribed},
		{name: "already in target", from: news, to: tech, wantErr: feed.ErrAlreadySubscribed},
		{name: "moved", from: news, to: misc},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := repo.MoveFeed(ctx, f.ID, tt.from, tt.to)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
		})
	}

	inMisc := false
	for _, s := range db.subscriptions {
		assert.NotEqual(t, news, s.CategoryID)
		inMisc = inMisc || s.CategoryID == misc
	}
	assert.True(t, inMisc)
}

func TestUserRepository_DeleteUsersByID_cascadesReplies(t *testing.T) {
	ctx := context.Background()
	db, err := Open()
	require.NoError(t, err)
	usrRepo := NewUserRepository(db)
	intRepo := NewInteractionRepository(db)

	alice, err := usrRepo.CreateUser(ctx, user.User{Username: "alice", Email: "alice@test.cd"})
	require.NoError(t, err)
	bob, err := usrRepo.CreateUser(ctx, user.User{Username: "bob", Email: "bob@test.cd"})
	require.NoError(t, err)

	root, err := intRepo.CreateComment(ctx, interaction.Comment{ArticleID: 1, CollectionID: 1, UserID: alice.ID, Content: "root"})
	require.NoError(t, err)
	reply, err := intRepo.CreateComment(ctx, interaction.Comment{ArticleID: 1, CollectionID: 1, UserID: bob.ID, ParentID: null.Int64From(root.ID), Content: "reply"})
	require.NoError(t, err)
	_, err = intRepo.CreateComment(ctx, interaction.Comment{ArticleID: 1, CollectionID: 1, UserID: bob.ID, ParentID: null.Int64From(reply.ID), Content: "nested"})
	require.NoError(t, err)
	other, err := intRepo.CreateComment(ctx, interaction.Comment{ArticleID: 1, CollectionID: 1, UserID: bob.ID, Content: "standalone"})
	require.NoError(t, err)

	require.NoError(t, usrRepo.DeleteUsersByID(ctx, alice.ID))

	comments, err := intRepo.ListArticleComments(ctx, 1, 1)
	require.NoError(t, err)
	require.Len(t, comments, 1)
	assert.Equal(t, other.ID, comments[0].ID)
	assert.Len(t, db.comments, 1)
}
