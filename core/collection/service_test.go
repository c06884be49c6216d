package collection_test

import (
	"context"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/suprss/suprss/core"
	"github.com/suprss/suprss/core/collection"
	"github.com/suprss/suprss/core/feed"
	"github.com/suprss/suprss/core/user"
	"github.com/suprss/suprss/internal/testutil"
	emailsvc "github.com/suprss/suprss/services/email"
	inmemdb "github.com/suprss/suprss/storage/database/inmem"
)

const goURL = "https://blog.golang.org/feed.atom"

type testEnv struct {
	svc     *collection.Service
	feedSvc *feed.Service
	users   map[string]user.User
}

func setup(t *testing.T) testEnv {
	conf := testutil.NewConfig()
	db, err := inmemdb.Open()
	require.NoError(t, err)
	logger := core.NopLogger{}
	mailSvc := emailsvc.NewConsoleServiceMock(conf)

	usrRepo := inmemdb.NewUserRepository(db)
	fetcher := testutil.NewFetcher()
	fetcher.Set(goURL, feed.ParsedFeed{Title: "The Go Blog", Entries: testutil.Entries("go", 2)})
	feedSvc := feed.NewService(conf, inmemdb.NewFeedRepository(db), fetcher, logger)
	usrSvc := user.NewService(conf, usrRepo, mailSvc, feedSvc, logger)

	env := testEnv{
		svc:     collection.NewService(conf, inmemdb.NewCollectionRepository(db), usrSvc, feedSvc, mailSvc, logger),
		feedSvc: feedSvc,
		users:   make(map[string]user.User),
	}
	for _, uname := range []string{"owner", "admin", "member", "outsider"} {
		usr := testutil.CreateUser(t, usrRepo, uname, uname+"@test.cd", true, false)
		require.NoError(t, feedSvc.CreateDefaultCategory(context.Background(), usr.ID))
		env.users[uname] = usr
	}
	emailsvc.ResetSentMessages()
	return env
}

// newCollection creates a collection of "owner" with "admin" & "member" as members.
func (env testEnv) newCollection(t *testing.T) collection.Collection {
	ctx := context.Background()
	owner := env.users["owner"].ID
	c, err := env.svc.Create(ctx, owner, collection.NewCollection{Name: "Team"})
	require.NoError(t, err)
	_, err = env.svc.AddMember(ctx, c.ID, owner, collection.NewMember{UserID: env.users["admin"].ID, Role: collection.RoleAdministrator})
	require.NoError(t, err)
	_, err = env.svc.AddMember(ctx, c.ID, owner, collection.NewMember{Email: "member@test.cd"})
	require.NoError(t, err)
	return c
}

func ptr(b bool) *bool { return &b }

func TestPermissions(t *testing.T) {
	owner := collection.DefaultPermissions(collection.RoleOwner)
	admin := collection.DefaultPermissions(collection.RoleAdministrator)
	member := collection.DefaultPermissions(collection.RoleMember)

	for _, p := range []collection.Permission{collection.PermAddFeed, collection.PermRead, collection.PermComment, collection.PermEdit, collection.PermDelete} {
		assert.True(t, owner.Has(p), p.String())
	}
	assert.True(t, admin.Has(collection.PermEdit))
	assert.False(t, admin.Has(collection.PermDelete))
	assert.False(t, member.Has(collection.PermEdit))
	assert.Equal(t, member, collection.DefaultPermissions(collection.RoleModerator))
	assert.Equal(t, collection.Permissions{}, collection.DefaultPermissions("guest"))

	patched := member.Apply(&collection.PermissionsPatch{CanComment: ptr(false), CanDelete: ptr(true)})
	assert.False(t, patched.CanComment)
	assert.True(t, patched.CanDelete)
	assert.True(t, patched.CanRead)
	assert.Equal(t, member, member.Apply(nil))

	assert.Equal(t, "can_add_feed", collection.PermAddFeed.String())
	assert.True(t, collection.RoleModerator.IsValid())
	assert.False(t, collection.Role("guest").IsValid())
}

func TestService_Authorize(t *testing.T) {
	env := setup(t)
	ctx := context.Background()
	c := env.newCollection(t)

	_, err := env.svc.Authorize(ctx, 9999, env.users["owner"].ID)
	assert.True(t, errors.Is(err, collection.ErrNotFound))

	_, err = env.svc.Authorize(ctx, c.ID, env.users["outsider"].ID)
	assert.True(t, errors.Is(err, core.ErrPermissionDenied))
	assert.EqualError(t, err, "you are not a member of this collection")

	_, err = env.svc.Authorize(ctx, c.ID, env.users["member"].ID, collection.PermRead, collection.PermEdit)
	assert.EqualError(t, err, "permission denied: can_edit is required")

	m, err := env.svc.Authorize(ctx, c.ID, env.users["admin"].ID, collection.PermEdit)
	require.NoError(t, err)
	assert.Equal(t, collection.RoleAdministrator, m.Role)

	ids, err := env.svc.CollectionIDs(ctx, env.users["member"].ID)
	require.NoError(t, err)
	assert.Equal(t, []int64{c.ID}, ids)
}

func TestService_AddMember(t *testing.T) {
	env := setup(t)
	ctx := context.Background()
	c := env.newCollection(t)
	owner := env.users["owner"].ID

	sent := emailsvc.Sent()
	require.Len(t, sent, 2)
	assert.Equal(t, "collection_invitation", sent[1].TemplateName)
	assert.Equal(t, "member@test.cd", sent[1].To[0].Address)
	data, ok := sent[1].TemplateData.(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "Team", data["Collection"])
	assert.Equal(t, "owner", data["Inviter"])

	_, err := env.svc.AddMember(ctx, c.ID, owner, collection.NewMember{UserID: env.users["member"].ID})
	var verr *core.ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, collection.ErrMemberExists, verr.Err)

	_, err = env.svc.AddMember(ctx, c.ID, owner, collection.NewMember{UserID: env.users["outsider"].ID, Role: collection.RoleOwner})
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, collection.ErrOwnerRole, verr.Err)

	_, err = env.svc.AddMember(ctx, c.ID, env.users["member"].ID, collection.NewMember{UserID: env.users["outsider"].ID})
	assert.True(t, errors.Is(err, core.ErrPermissionDenied))

	m, err := env.svc.AddMember(ctx, c.ID, env.users["admin"].ID, collection.NewMember{
		UserID:      env.users["outsider"].ID,
		Role:        "unknown",
		Permissions: &collection.PermissionsPatch{CanAddFeed: ptr(false)},
	})
	require.NoError(t, err)
	assert.Equal(t, collection.RoleMember, m.Role)
	assert.False(t, m.CanAddFeed)
	assert.True(t, m.CanRead)
	assert.Equal(t, "outsider", m.Username)

	members, err := env.svc.Members(ctx, c.ID, env.users["member"].ID)
	require.NoError(t, err)
	assert.Len(t, members, 4)
}

func TestService_UpdateMember(t *testing.T) {
	env := setup(t)
	ctx := context.Background()
	c := env.newCollection(t)
	owner, admin, member := env.users["owner"].ID, env.users["admin"].ID, env.users["member"].ID

	m, err := env.svc.UpdateMember(ctx, c.ID, admin, member, collection.UpdateMember{
		Permissions: &collection.PermissionsPatch{CanComment: ptr(false)},
	})
	require.NoError(t, err)
	assert.Equal(t, collection.RoleMember, m.Role)
	assert.False(t, m.CanComment)

	// a role change resets the permissions first
	m, err = env.svc.UpdateMember(ctx, c.ID, owner, member, collection.UpdateMember{Role: collection.RoleAdministrator})
	require.NoError(t, err)
	assert.Equal(t, collection.DefaultPermissions(collection.RoleAdministrator), m.Permissions)

	_, err = env.svc.UpdateMember(ctx, c.ID, owner, member, collection.UpdateMember{Role: collection.RoleOwner})
	var verr *core.ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, collection.ErrOwnerRole, verr.Err)

	_, err = env.svc.UpdateMember(ctx, c.ID, admin, owner, collection.UpdateMember{})
	assert.Equal(t, collection.ErrOwnerOnly, err)

	_, err = env.svc.UpdateMember(ctx, c.ID, owner, owner, collection.UpdateMember{Role: collection.RoleMember})
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, "role", verr.Fields[0].Field)

	_, err = env.svc.UpdateMember(ctx, c.ID, owner, env.users["outsider"].ID, collection.UpdateMember{})
	assert.True(t, errors.Is(err, collection.ErrMemberNotFound))
}

func TestService_RemoveMember(t *testing.T) {
	env := setup(t)
	ctx := context.Background()
	c := env.newCollection(t)
	owner, admin, member := env.users["owner"].ID, env.users["admin"].ID, env.users["member"].ID

	assert.True(t, errors.Is(env.svc.RemoveMember(ctx, c.ID, member, admin), core.ErrPermissionDenied))
	assert.Equal(t, collection.ErrOwnerNotRemovable, env.svc.RemoveMember(ctx, c.ID, admin, owner))
	assert.Equal(t, collection.ErrOwnerNotRemovable, env.svc.RemoveMember(ctx, c.ID, owner, owner))

	// leaving needs no permission
	require.NoError(t, env.svc.RemoveMember(ctx, c.ID, member, member))
	_, err := env.svc.Detail(ctx, c.ID, member)
	assert.True(t, errors.Is(err, core.ErrPermissionDenied))

	require.NoError(t, env.svc.RemoveMember(ctx, c.ID, owner, admin))
	members, err := env.svc.Members(ctx, c.ID, owner)
	require.NoError(t, err)
	require.Len(t, members, 1)
	assert.True(t, members[0].IsOwner())
}

func TestService_Collections(t *testing.T) {
	env := setup(t)
	ctx := context.Background()
	c := env.newCollection(t)
	owner, admin, member := env.users["owner"].ID, env.users["admin"].ID, env.users["member"].ID

	assert.Equal(t, collection.RoleOwner, c.MyRole)
	assert.Equal(t, 1, c.MemberCount)

	name, desc := "Renamed", "About things"
	_, err := env.svc.Update(ctx, c.ID, member, collection.UpdateCollection{Name: &name})
	assert.True(t, errors.Is(err, core.ErrPermissionDenied))
	updated, err := env.svc.Update(ctx, c.ID, admin, collection.UpdateCollection{Name: &name, Description: &desc})
	require.NoError(t, err)
	assert.Equal(t, "Renamed", updated.Name)
	assert.Equal(t, "About things", updated.Description)

	empty := ""
	updated, err = env.svc.Update(ctx, c.ID, admin, collection.UpdateCollection{Name: &empty})
	require.NoError(t, err)
	assert.Equal(t, "Renamed", updated.Name)

	shared, err := env.svc.ToggleSharing(ctx, c.ID, owner)
	require.NoError(t, err)
	assert.True(t, shared.IsShared)

	detail, err := env.svc.Detail(ctx, c.ID, member)
	require.NoError(t, err)
	assert.Equal(t, 3, detail.MemberCount)
	assert.Equal(t, collection.RoleMember, detail.MyRole)
	assert.NotNil(t, detail.Feeds)

	items, page, err := env.svc.ListMine(ctx, member, core.Pagination{})
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, 1, page.Total)
	assert.Equal(t, core.DefaultPageSize, page.PageSize)

	assert.Equal(t, collection.ErrOwnerOnly, env.svc.Delete(ctx, c.ID, admin))
	require.NoError(t, env.svc.Delete(ctx, c.ID, owner))
	assert.True(t, errors.Is(env.svc.Delete(ctx, c.ID, owner), collection.ErrNotFound))
}

func TestService_Feeds(t *testing.T) {
	env := setup(t)
	ctx := context.Background()
	c := env.newCollection(t)
	owner, admin, member := env.users["owner"].ID, env.users["admin"].ID, env.users["member"].ID

	f, err := env.feedSvc.Subscribe(ctx, owner, feed.NewSubscription{URL: goURL})
	require.NoError(t, err)

	_, err = env.svc.AddFeed(ctx, c.ID, member, collection.NewCollectionFeed{FeedID: 9999})
	var verr *core.ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, "feed_id", verr.Fields[0].Field)

	cf, err := env.svc.AddFeed(ctx, c.ID, member, collection.NewCollectionFeed{FeedID: f.ID})
	require.NoError(t, err)
	assert.Equal(t, member, cf.AddedBy)
	assert.Equal(t, "The Go Blog", cf.Feed.Name)

	_, err = env.svc.AddFeed(ctx, c.ID, admin, collection.NewCollectionFeed{FeedID: f.ID})
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, collection.ErrFeedExists, verr.Err)

	// members read the collection feeds without subscribing
	arts, page, err := env.svc.Articles(ctx, c.ID, member, core.Pagination{PageSize: 1})
	require.NoError(t, err)
	assert.Len(t, arts, 1)
	assert.Equal(t, 2, page.Total)
	assert.True(t, page.HasNext)
	_, err = env.feedSvc.GetArticle(ctx, member, arts[0].ID)
	assert.NoError(t, err)

	exported, err := env.svc.Export(ctx, member)
	require.NoError(t, err)
	require.Len(t, exported, 1)
	assert.Equal(t, "Team", exported[0].Collection.Name)
	require.Len(t, exported[0].Feeds, 1)
	assert.Equal(t, goURL, exported[0].Feeds[0].URL)

	assert.True(t, errors.Is(env.svc.RemoveFeed(ctx, c.ID, admin, f.ID), core.ErrPermissionDenied))
	require.NoError(t, env.svc.RemoveFeed(ctx, c.ID, owner, f.ID))
	detail, err := env.svc.Detail(ctx, c.ID, owner)
	require.NoError(t, err)
	assert.Empty(t, detail.Feeds)
}

type disconnecterMock struct {
	kicked []int64
	closed []int64
}

func (d *disconnecterMock) Kick(collectionID, userID int64) { d.kicked = append(d.kicked, userID) }
func (d *disconnecterMock) CloseRoom(collectionID int64) { d.closed = append(d.closed, collectionID) }

func TestService_RevokedAccessDisconnects(t *testing.T) {
	env := setup(t)
	ctx := context.Background()
	c := env.newCollection(t)
	owner, admin, member := env.users["owner"].ID, env.users["admin"].ID, env.users["member"].ID

	dc := &disconnecterMock{}
	env.svc.SetDisconnecter(dc)

	// still readable
	_, err := env.svc.UpdateMember(ctx, c.ID, owner, member, collection.UpdateMember{Permissions: &collection.PermissionsPatch{CanComment: ptr(false)}})
	require.NoError(t, err)
	assert.Empty(t, dc.kicked)

	_, err = env.svc.UpdateMember(ctx, c.ID, owner, member, collection.UpdateMember{Permissions: &collection.PermissionsPatch{CanRead: ptr(false)}})
	require.NoError(t, err)
	assert.Equal(t, []int64{member}, dc.kicked)

	require.NoError(t, env.svc.RemoveMember(ctx, c.ID, owner, admin))
	assert.Equal(t, []int64{member, admin}, dc.kicked)

	// failed removals keep the connections
	assert.Error(t, env.svc.RemoveMember(ctx, c.ID, owner, owner))
	assert.Len(t, dc.kicked, 2)

	require.NoError(t, env.svc.Delete(ctx, c.ID, owner))
	assert.Equal(t, []int64{c.ID}, dc.closed)
}
