package main

import (
	"bytes"
	"context"
	"database/sql"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/suprss/suprss/core"
	"github.com/suprss/suprss/core/feed"
	"github.com/suprss/suprss/core/user"
	"github.com/suprss/suprss/internal/testutil"
	feedsvc "github.com/suprss/suprss/services/feeds"
	inmemdb "github.com/suprss/suprss/storage/database/inmem"
)

type pollerMock struct {
	rep   feedsvc.Report
	err   error
	calls int
}

func (m *pollerMock) PollOnce(context.Context) (feedsvc.Report, error) {
	m.calls++
	return m.rep, m.err
}

type cliApp struct {
	cli     *commandLine
	out     *bytes.Buffer
	usrRepo user.Repository
	feedSvc *feed.Service
	poller  *pollerMock
}

func setup(t *testing.T) *cliApp {
	conf := testutil.NewConfig()
	db, err := inmemdb.Open()
	require.NoError(t, err)

	app := &cliApp{
		out:     new(bytes.Buffer),
		usrRepo: inmemdb.NewUserRepository(db),
		feedSvc: feed.NewService(conf, inmemdb.NewFeedRepository(db), testutil.NewFetcher(), core.NopLogger{}),
		poller:  &pollerMock{},
	}
	app.cli = &commandLine{
		usrRepo: app.usrRepo,
		feeds:   app.feedSvc,
		poller:  app.poller,
		out:     app.out,
	}
	return app
}

// mockPassword makes the password prompt answer `pwd`.
func mockPassword(t *testing.T, pwd string) {
	orig := readPasswordFunc
	readPasswordFunc = func(int) ([]byte, error) { return []byte(pwd), nil }
	t.Cleanup(func() { readPasswordFunc = orig })
}

type cliTest struct {
	name    string
	args    []string // without program name
	pwd     string
	wantErr error
}

func runCLITests(t *testing.T, cli *commandLine, tests []cliTest) {
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockPassword(t, tt.pwd)
			err := cli.run(append([]string{"admin"}, tt.args...))
			if tt.wantErr != nil {
				assert.True(t, errors.Is(err, tt.wantErr), "cli.run() error = %v, wantErr %v", err, tt.wantErr)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func Test_commandLine_usage(t *testing.T) {
	app := setup(t)
	runCLITests(t, app.cli, []cliTest{
		{name: "no command", wantErr: errHelp},
		{name: "unknown command", args: []string{"lol"}, wantErr: errHelp},
	})
	assert.Contains(t, app.out.String(), "resetpassword -username USERNAME|EMAIL")
}

func Test_commandLine_migrate(t *testing.T) {
	app := setup(t)

	var commands []string
	orig := migrateFunc
	migrateFunc = func(_ *sql.DB, command string) error {
		switch command {
		case "up", "down", "redo", "status":
			commands = append(commands, command)
			return nil
		}
		return errors.Errorf("unknown migration command %q", command)
	}
	t.Cleanup(func() { migrateFunc = orig })

	runCLITests(t, app.cli, []cliTest{
		{name: "no subcommand", args: []string{"migrate"}, wantErr: errHelp},
		{name: "up", args: []string{"migrate", "up"}},
		{name: "status", args: []string{"migrate", "status"}},
	})
	assert.Equal(t, []string{"up", "status"}, commands)

	err := app.cli.run([]string{"admin", "migrate", "lol"})
	require.Error(t, err)
	assert.Equal(t, `unknown migration command "lol"`, err.Error())
}

func Test_commandLine_addUser(t *testing.T) {
	app := setup(t)
	ctx := context.Background()
	other := testutil.CreateUser(t, app.usrRepo, "other", "other@test.cd", true, false)

	runCLITests(t, app.cli, []cliTest{
		{name: "no args", args: []string{"adduser"}, wantErr: errHelp},
		{name: "no email", args: []string{"adduser", "-username", "alice"}, pwd: testutil.Password, wantErr: errHelp},
		{name: "no password", args: []string{"adduser", "-username", "alice", "-email", "alice@test.cd"}, wantErr: errHelp},
		{name: "email taken", args: []string{"adduser", "-username", "alice", "-email", other.Email}, pwd: testutil.Password, wantErr: user.ErrEmailExists},
		{name: "create", args: []string{"adduser", "-username", " Alice ", "-email", "ALICE@test.cd"}, pwd: testutil.Password},
	})

	usr, err := app.usrRepo.GetUser(ctx, user.GetFilter{Username: "alice"})
	require.NoError(t, err)
	assert.Equal(t, "alice@test.cd", usr.Email)
	assert.True(t, usr.IsActive)
	assert.False(t, usr.IsAdmin)
	assert.NoError(t, usr.CheckPassword(testutil.Password))
	cats, err := app.feedSvc.ListCategories(ctx, usr.ID)
	require.NoError(t, err)
	require.Len(t, cats, 1)
	assert.Equal(t, feed.DefaultCategoryName, cats[0].Name)

	t.Run("weak password", func(t *testing.T) {
		mockPassword(t, "password")
		err := app.cli.run([]string{"admin", "adduser", "-username", "bob", "-email", "bob@test.cd"})
		var verr *core.ValidationError
		assert.True(t, errors.As(err, &verr), "error = %v", err)
	})

	t.Run("update existing", func(t *testing.T) {
		mockPassword(t, "An0ther-Secr3t!")
		require.NoError(t, app.cli.run([]string{"admin", "adduser", "-username", "alice", "-email", "alice@new.cd", "-admin"}))

		updated, err := app.usrRepo.GetUser(ctx, user.GetFilter{ID: usr.ID})
		require.NoError(t, err)
		assert.Equal(t, "alice@new.cd", updated.Email)
		assert.True(t, updated.IsAdmin)
		assert.NoError(t, updated.CheckPassword("An0ther-Secr3t!"))

		cats, err := app.feedSvc.ListCategories(ctx, usr.ID)
		require.NoError(t, err)
		assert.Len(t, cats, 1)
	})
}

func Test_commandLine_resetPassword(t *testing.T) {
	app := setup(t)
	usr := testutil.CreateUser(t, app.usrRepo, "awe", "awe@test.cd", true, false)

	runCLITests(t, app.cli, []cliTest{
		{name: "no args", args: []string{"resetpassword"}, wantErr: errHelp},
		{name: "username but no password", args: []string{"resetpassword", "-username", "lol"}, wantErr: errHelp},
		{name: "user not found", args: []string{"resetpassword", "-username", "lol"}, pwd: "An0ther-Secr3t!", wantErr: user.ErrNotFound},
	})

	tests := []struct {
		name     string
		username string
		pwd      string
	}{
		{name: "reset with username", username: "AWE", pwd: "An0ther-Secr3t!"},
		{name: "reset with email", username: usr.Email, pwd: "Y3t-An0ther-One"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockPassword(t, tt.pwd)
			require.NoError(t, app.cli.run([]string{"admin", "resetpassword", "-username", tt.username}))

			refreshed, err := app.usrRepo.GetUser(context.Background(), user.GetFilter{ID: usr.ID})
			require.NoError(t, err)
			assert.NoError(t, refreshed.CheckPassword(tt.pwd))
		})
	}

	t.Run("weak password", func(t *testing.T) {
		mockPassword(t, "12345678")
		err := app.cli.run([]string{"admin", "resetpassword", "-username", "awe"})
		var verr *core.ValidationError
		assert.True(t, errors.As(err, &verr), "error = %v", err)
	})
}

func Test_commandLine_feeds(t *testing.T) {
	app := setup(t)

	app.poller.rep = feedsvc.Report{Due: 3, Refreshed: 2, Failed: 1, NewArticles: 7}
	require.NoError(t, app.cli.run([]string{"admin", "pollfeeds"}))
	assert.Equal(t, 1, app.poller.calls)
	assert.Contains(t, app.out.String(), "3 due feeds: 2 refreshed, 1 failed, 7 new articles")

	app.poller.err = errors.New("boom")
	assert.EqualError(t, app.cli.run([]string{"admin", "pollfeeds"}), "boom")

	require.NoError(t, app.cli.run([]string{"admin", "cleanup"}))
	assert.Contains(t, app.out.String(), "0 old articles deleted")
}
