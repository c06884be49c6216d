package interaction_test

import (
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/suprss/suprss/core"
	"github.com/suprss/suprss/core/collection"
	"github.com/suprss/suprss/core/feed"
	"github.com/suprss/suprss/core/interaction"
	"github.com/suprss/suprss/core/user"
	"github.com/suprss/suprss/internal/testutil"
	emailsvc "github.com/suprss/suprss/services/email"
	inmemdb "github.com/suprss/suprss/storage/database/inmem"
)

const goURL = "https://blog.golang.org/feed.atom"

type broadcasterMock struct {
	mu   sync.Mutex
	msgs []interaction.Message
}

func (b *broadcasterMock) Broadcast(_ context.Context, msg interaction.Message) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.msgs = append(b.msgs, msg)
}

type testEnv struct {
	svc      *interaction.Service
	collSvc  *collection.Service
	bc       *broadcasterMock
	coll     collection.Collection
	articles []feed.Article
	owner    int64
	member   int64 // may read only
	outsider int64
}

// setup creates a collection holding one feed of 3 articles. Its "member" cannot comment nor delete.
func setup(t *testing.T) testEnv {
	ctx := context.Background()
	conf := testutil.NewConfig()
	db, err := inmemdb.Open()
	require.NoError(t, err)
	logger := core.NopLogger{}
	mailSvc := emailsvc.NewConsoleServiceMock(conf)

	usrRepo := inmemdb.NewUserRepository(db)
	fetcher := testutil.NewFetcher()
	fetcher.Set(goURL, feed.ParsedFeed{Title: "The Go Blog", Entries: testutil.Entries("go", 3)})
	feedSvc := feed.NewService(conf, inmemdb.NewFeedRepository(db), fetcher, logger)
	usrSvc := user.NewService(conf, usrRepo, mailSvc, feedSvc, logger)
	collSvc := collection.NewService(conf, inmemdb.NewCollectionRepository(db), usrSvc, feedSvc, mailSvc, logger)

	env := testEnv{collSvc: collSvc, bc: &broadcasterMock{}}
	env.svc = interaction.NewService(inmemdb.NewInteractionRepository(db), collSvc, env.bc, logger)

	ids := make([]int64, 0, 3)
	for _, uname := range []string{"owner", "member", "outsider"} {
		usr := testutil.CreateUser(t, usrRepo, uname, uname+"@test.cd", true, false)
		require.NoError(t, feedSvc.CreateDefaultCategory(ctx, usr.ID))
		ids = append(ids, usr.ID)
	}
	env.owner, env.member, env.outsider = ids[0], ids[1], ids[2]

	env.coll, err = collSvc.Create(ctx, env.owner, collection.NewCollection{Name: "Team"})
	require.NoError(t, err)
	no := false
	_, err = collSvc.AddMember(ctx, env.coll.ID, env.owner, collection.NewMember{
		UserID:      env.member,
		Permissions: &collection.PermissionsPatch{CanComment: &no},
	})
	require.NoError(t, err)

	f, err := feedSvc.Subscribe(ctx, env.owner, feed.NewSubscription{URL: goURL})
	require.NoError(t, err)
	_, err = collSvc.AddFeed(ctx, env.coll.ID, env.owner, collection.NewCollectionFeed{FeedID: f.ID})
	require.NoError(t, err)
	env.articles, _, err = collSvc.Articles(ctx, env.coll.ID, env.owner, core.Pagination{})
	require.NoError(t, err)
	require.Len(t, env.articles, 3)
	return env
}

func (env testEnv) comment(t *testing.T, articleID, parentID int64, content string) interaction.Comment {
	c, err := env.svc.CreateComment(context.Background(), env.owner, interaction.NewComment{
		ArticleID:    articleID,
		CollectionID: env.coll.ID,
		ParentID:     parentID,
		Content:      content,
	})
	require.NoError(t, err)
	return c
}

func fieldOf(t *testing.T, err error) string {
	var verr *core.ValidationError
	require.True(t, errors.As(err, &verr), "error = %v", err)
	require.NotEmpty(t, verr.Fields)
	return verr.Fields[0].Field
}

func TestService_CreateComment(t *testing.T) {
	env := setup(t)
	ctx := context.Background()
	art := env.articles[0].ID

	root := env.comment(t, art, 0, "first!")
	assert.Equal(t, "owner", root.Username)
	assert.False(t, root.ParentID.Valid)

	reply := env.comment(t, art, root.ID, "a reply")
	assert.Equal(t, root.ID, reply.ParentID.Int64)

	otherArt := env.comment(t, env.articles[1].ID, 0, "elsewhere")

	tests := []struct {
		name      string
		userID    int64
		nc        interaction.NewComment
		wantField string
		wantErr   error
	}{
		{
			name:    "outsider",
			userID:  env.outsider,
			nc:      interaction.NewComment{ArticleID: art, CollectionID: env.coll.ID, Content: "hi"},
			wantErr: core.ErrPermissionDenied,
		},
		{
			name:    "cannot comment",
			userID:  env.member,
			nc:      interaction.NewComment{ArticleID: art, CollectionID: env.coll.ID, Content: "hi"},
			wantErr: core.ErrPermissionDenied,
		},
		{
			name:      "article not in collection",
			userID:    env.owner,
			nc:        interaction.NewComment{ArticleID: 9999, CollectionID: env.coll.ID, Content: "hi"},
			wantField: "article_id",
		},
		{
			name:      "unknown parent",
			userID:    env.owner,
			nc:        interaction.NewComment{ArticleID: art, CollectionID: env.coll.ID, ParentID: 9999, Content: "hi"},
			wantField: "parent_id",
		},
		{
			name:      "parent on another article",
			userID:    env.owner,
			nc:        interaction.NewComment{ArticleID: art, CollectionID: env.coll.ID, ParentID: otherArt.ID, Content: "hi"},
			wantField: "parent_id",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.svc.CreateComment(ctx, tt.userID, tt.nc)
			if tt.wantErr != nil {
				assert.True(t, errors.Is(err, tt.wantErr), "error = %v", err)
			} else {
				assert.Equal(t, tt.wantField, fieldOf(t, err))
			}
		})
	}
}

func TestService_ArticleComments(t *testing.T) {
	env := setup(t)
	ctx := context.Background()
	art := env.articles[0].ID

	first := env.comment(t, art, 0, "first")
	second := env.comment(t, art, 0, "second")
	reply := env.comment(t, art, first.ID, "reply")
	nested := env.comment(t, art, reply.ID, "nested")
	env.comment(t, env.articles[1].ID, 0, "elsewhere")

	threads, err := env.svc.ArticleComments(ctx, env.coll.ID, art, env.member)
	require.NoError(t, err)
	require.Len(t, threads, 2)
	assert.Equal(t, first.ID, threads[0].ID)
	assert.Equal(t, second.ID, threads[1].ID)
	require.Len(t, threads[0].Replies, 1)
	assert.Equal(t, reply.ID, threads[0].Replies[0].ID)
	require.Len(t, threads[0].Replies[0].Replies, 1)
	assert.Equal(t, nested.ID, threads[0].Replies[0].Replies[0].ID)
	assert.Empty(t, threads[1].Replies)

	_, err = env.svc.ArticleComments(ctx, env.coll.ID, art, env.outsider)
	assert.True(t, errors.Is(err, core.ErrPermissionDenied))
}

func TestService_UpdateDeleteComment(t *testing.T) {
	env := setup(t)
	ctx := context.Background()
	art := env.articles[0].ID
	root := env.comment(t, art, 0, "typo")
	reply := env.comment(t, art, root.ID, "reply")

	_, err := env.svc.UpdateComment(ctx, root.ID, env.member, interaction.UpdateComment{Content: "hacked"})
	assert.Equal(t, interaction.ErrNotCommentAuthor, err)
	_, err = env.svc.UpdateComment(ctx, 9999, env.owner, interaction.UpdateComment{Content: "x"})
	assert.True(t, errors.Is(err, core.ErrNotFound))

	updated, err := env.svc.UpdateComment(ctx, root.ID, env.owner, interaction.UpdateComment{Content: "fixed"})
	require.NoError(t, err)
	assert.Equal(t, "fixed", updated.Content)
	assert.True(t, updated.IsEdited)

	// members without the delete permission cannot remove others' comments
	assert.Equal(t, interaction.ErrCommentDeleteDenied, env.svc.DeleteComment(ctx, root.ID, env.member))

	require.NoError(t, env.svc.DeleteComment(ctx, root.ID, env.owner))
	require.NoError(t, env.svc.DeleteComment(ctx, root.ID, env.owner))
	_, err = env.svc.UpdateComment(ctx, root.ID, env.owner, interaction.UpdateComment{Content: "back"})
	assert.Equal(t, interaction.ErrNotCommentAuthor, err)

	threads, err := env.svc.ArticleComments(ctx, env.coll.ID, art, env.owner)
	require.NoError(t, err)
	require.Len(t, threads, 1)
	assert.True(t, threads[0].IsDeleted)
	assert.Equal(t, interaction.DeletedContent, threads[0].Content)
	require.Len(t, threads[0].Replies, 1)
	assert.Equal(t, reply.ID, threads[0].Replies[0].ID)

	mine, page, err := env.svc.MyComments(ctx, env.owner, core.Pagination{})
	require.NoError(t, err)
	assert.Equal(t, 1, page.Total, "deleted comments are not listed")
	assert.Equal(t, reply.ID, mine[0].ID)
}

func TestService_Messages(t *testing.T) {
	env := setup(t)
	ctx := context.Background()

	_, err := env.svc.PostMessage(ctx, env.coll.ID, env.member, interaction.NewMessage{Content: "hi"})
	assert.True(t, errors.Is(err, core.ErrPermissionDenied))
	assert.Empty(t, env.bc.msgs)

	for _, content := range []string{"one", "two", "three"} {
		msg, err := env.svc.PostMessage(ctx, env.coll.ID, env.owner, interaction.NewMessage{Content: content})
		require.NoError(t, err)
		assert.Equal(t, "owner", msg.Username)
	}
	require.Len(t, env.bc.msgs, 3)
	assert.Equal(t, "one", env.bc.msgs[0].Content)

	msgs, page, err := env.svc.Messages(ctx, env.coll.ID, env.member, core.Pagination{PageSize: 2})
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "three", msgs[0].Content)
	assert.Equal(t, 3, page.Total)
	assert.True(t, page.HasNext)

	_, _, err = env.svc.Messages(ctx, env.coll.ID, env.outsider, core.Pagination{})
	assert.True(t, errors.Is(err, core.ErrPermissionDenied))
}

func TestService_RecentActivity(t *testing.T) {
	env := setup(t)
	ctx := context.Background()

	acts, err := env.svc.RecentActivity(ctx, env.outsider, interaction.ActivityFilter{})
	require.NoError(t, err)
	assert.Empty(t, acts)

	env.comment(t, env.articles[0].ID, 0, strings.Repeat("a", 150))
	_, err = env.svc.PostMessage(ctx, env.coll.ID, env.owner, interaction.NewMessage{Content: "hello"})
	require.NoError(t, err)

	acts, err = env.svc.RecentActivity(ctx, env.member, interaction.ActivityFilter{})
	require.NoError(t, err)
	require.Len(t, acts, 2)
	assert.Equal(t, interaction.ActivityMessage, acts[0].Type)
	assert.False(t, acts[0].ArticleID.Valid)
	assert.Equal(t, interaction.ActivityComment, acts[1].Type)
	assert.Equal(t, env.articles[0].ID, acts[1].ArticleID.Int64)
	assert.Equal(t, strings.Repeat("a", 100)+"...", acts[1].Content)

	acts, err = env.svc.RecentActivity(ctx, env.member, interaction.ActivityFilter{CollectionID: env.coll.ID, Limit: 1})
	require.NoError(t, err)
	assert.Len(t, acts, 1)

	_, err = env.svc.RecentActivity(ctx, env.outsider, interaction.ActivityFilter{CollectionID: env.coll.ID})
	assert.True(t, errors.Is(err, core.ErrPermissionDenied))
}
