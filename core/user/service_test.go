package user_test

import (
	"context"
	"strings"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/suprss/suprss/core"
	"github.com/suprss/suprss/core/feed"
	"github.com/suprss/suprss/core/user"
	"github.com/suprss/suprss/internal/testutil"
	emailsvc "github.com/suprss/suprss/services/email"
	inmemdb "github.com/suprss/suprss/storage/database/inmem"
)

type verifierMock struct {
	provider   string
	identities map[string]user.OAuthIdentity
}

func (v verifierMock) Provider() string { return v.provider }

func (v verifierMock) Verify(_ context.Context, token string) (user.OAuthIdentity, error) {
	id, ok := v.identities[token]
	if !ok {
		return user.OAuthIdentity{}, errors.New("invalid token")
	}
	return id, nil
}

type testEnv struct {
	conf    *core.Config
	repo    user.Repository
	svc     *user.Service
	feedSvc *feed.Service
}

func setup(t *testing.T) testEnv {
	conf := testutil.NewConfig()
	conf.OAuth.Github.Enabled = true
	db, err := inmemdb.Open()
	require.NoError(t, err)

	repo := inmemdb.NewUserRepository(db)
	feedSvc := feed.NewService(conf, inmemdb.NewFeedRepository(db), testutil.NewFetcher(), core.NopLogger{})
	github := verifierMock{provider: user.ProviderGithub, identities: map[string]user.OAuthIdentity{
		"gh-new": {Provider: user.ProviderGithub, ProviderUserID: "42", Email: "Octo@Test.cd", Username: "octo"},
		"gh-existing": {Provider: user.ProviderGithub, ProviderUserID: "43", Email: "jane@test.cd", Username: "jane"},
		"gh-noemail": {Provider: user.ProviderGithub, ProviderUserID: "44", Username: "jane"},
	}}
	google := verifierMock{provider: user.ProviderGoogle}
	svc := user.NewService(conf, repo, emailsvc.NewConsoleServiceMock(conf), feedSvc, core.NopLogger{}, github, google)

	emailsvc.ResetSentMessages()
	return testEnv{conf: conf, repo: repo, svc: svc, feedSvc: feedSvc}
}

// linkParts returns the uid & token of the link sent in the last email.
func linkParts(t *testing.T) (string, string) {
	sent := emailsvc.Sent()
	require.NotEmpty(t, sent)
	data, ok := sent[len(sent)-1].TemplateData.(map[string]interface{})
	require.True(t, ok)
	url, ok := data["URL"].(string)
	require.True(t, ok)
	parts := strings.Split(url, "/")
	require.True(t, len(parts) >= 2, url)
	return parts[len(parts)-2], parts[len(parts)-1]
}

func fieldErrors(t *testing.T, err error) map[string]string {
	var verr *core.ValidationError
	require.True(t, errors.As(err, &verr), "not a validation error: %v", err)
	flds := make(map[string]string, len(verr.Fields))
	for _, f := range verr.Fields {
		flds[f.Field] = f.Error
	}
	return flds
}

func TestService_Register(t *testing.T) {
	env := setup(t)
	ctx := context.Background()

	usr, err := env.svc.Register(ctx, user.NewUser{Username: "alice", Email: "alice@test.cd", Password: testutil.Password})
	require.NoError(t, err)
	assert.NotZero(t, usr.ID)
	assert.True(t, usr.IsActive)
	assert.False(t, usr.EmailVerified)
	assert.Equal(t, user.FontMedium, usr.FontSize)
	assert.NoError(t, usr.CheckPassword(testutil.Password))

	cats, err := env.feedSvc.ListCategories(ctx, usr.ID)
	require.NoError(t, err)
	require.Len(t, cats, 1)
	assert.True(t, cats[0].IsDefault())

	sent := emailsvc.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, "email_verification", sent[0].TemplateName)
	assert.Equal(t, "alice@test.cd", sent[0].To[0].Address)

	_, err = env.svc.Register(ctx, user.NewUser{Username: "alice", Email: "other@test.cd", Password: testutil.Password})
	assert.Equal(t, map[string]string{"username": user.ErrUsernameExists.Error()}, fieldErrors(t, err))

	_, err = env.svc.Register(ctx, user.NewUser{Username: "bob", Email: "alice@test.cd", Password: testutil.Password})
	assert.Equal(t, map[string]string{"email": user.ErrEmailExists.Error()}, fieldErrors(t, err))
}

func TestService_Authenticate(t *testing.T) {
	env := setup(t)
	ctx := context.Background()
	usr := testutil.CreateUser(t, env.repo, "alice", "alice@test.cd", true, false)
	testutil.CreateUser(t, env.repo, "gone", "gone@test.cd", false, false)

	tests := []struct {
		name    string
		login   string
		pwd     string
		wantErr error
	}{
		{name: "unknown user", login: "nobody", pwd: testutil.Password, wantErr: user.ErrInvalidCredentials},
		{name: "wrong password", login: "alice", pwd: "nope", wantErr: user.ErrInvalidCredentials},
		{name: "deactivated", login: "gone", pwd: testutil.Password, wantErr: user.ErrAccountDeactivated},
		{name: "username", login: " ALICE ", pwd: testutil.Password},
		{name: "email", login: "alice@test.cd", pwd: testutil.Password},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := env.svc.Authenticate(ctx, tt.login, tt.pwd)
			if tt.wantErr != nil {
				require.Error(t, err)
				var verr *core.ValidationError
				if errors.As(err, &verr) {
					assert.Equal(t, tt.wantErr, verr.Err)
				} else {
					assert.Equal(t, tt.wantErr, err)
				}
				return
			}
			require.NoError(t, err)
			assert.Equal(t, usr.ID, got.ID)
			assert.True(t, got.LastLogin.Valid)
		})
	}
}

func TestService_Update(t *testing.T) {
	env := setup(t)
	ctx := context.Background()
	usr := testutil.CreateUser(t, env.repo, "alice", "alice@test.cd", true, false)
	testutil.CreateUser(t, env.repo, "bob", "bob@test.cd", true, false)

	_, err := env.svc.Update(ctx, usr, user.UpdateUser{Username: "bob", Email: usr.Email})
	assert.Equal(t, map[string]string{"username": user.ErrUsernameExists.Error()}, fieldErrors(t, err))

	// same email: no verification mail
	updated, err := env.svc.Update(ctx, usr, user.UpdateUser{Username: "alice", Email: usr.Email, FirstName: "Alice"})
	require.NoError(t, err)
	assert.Equal(t, "Alice", updated.FirstName)
	assert.Empty(t, emailsvc.Sent())

	updated.EmailVerified = true
	updated, err = env.svc.Update(ctx, updated, user.UpdateUser{Username: "alice", Email: "new@test.cd"})
	require.NoError(t, err)
	assert.False(t, updated.EmailVerified)
	require.Len(t, emailsvc.Sent(), 1)

	dark := true
	updated, err = env.svc.UpdatePreferences(ctx, updated, user.UpdatePreferences{DarkMode: &dark, FontSize: user.FontLarge})
	require.NoError(t, err)
	assert.True(t, updated.DarkMode)
	assert.Equal(t, user.FontLarge, updated.FontSize)

	// omitted preferences are kept
	updated, err = env.svc.UpdatePreferences(ctx, updated, user.UpdatePreferences{})
	require.NoError(t, err)
	assert.True(t, updated.DarkMode)
	assert.Equal(t, user.FontLarge, updated.FontSize)
}

func TestService_ChangePassword(t *testing.T) {
	env := setup(t)
	ctx := context.Background()
	usr := testutil.CreateUser(t, env.repo, "alice", "alice@test.cd", true, false)

	_, err := env.svc.ChangePassword(ctx, usr, user.ChangePassword{OldPassword: "nope", NewPassword: "N3w-Passw0rd!"})
	assert.Equal(t, map[string]string{"old_password": "invalid password"}, fieldErrors(t, err))

	_, err = env.svc.ChangePassword(ctx, usr, user.ChangePassword{OldPassword: testutil.Password, NewPassword: "short"})
	assert.Contains(t, fieldErrors(t, err), "new_password")

	updated, err := env.svc.ChangePassword(ctx, usr, user.ChangePassword{OldPassword: testutil.Password, NewPassword: "N3w-Passw0rd!"})
	require.NoError(t, err)
	assert.NoError(t, updated.CheckPassword("N3w-Passw0rd!"))
}

func TestService_PasswordReset(t *testing.T) {
	env := setup(t)
	ctx := context.Background()
	usr := testutil.CreateUser(t, env.repo, "alice", "alice@test.cd", true, false)
	testutil.CreateUser(t, env.repo, "gone", "gone@test.cd", false, false)

	assert.True(t, errors.Is(env.svc.RequestPasswordReset(ctx, "nobody@test.cd"), user.ErrNotFound))
	assert.True(t, errors.Is(env.svc.RequestPasswordReset(ctx, "gone@test.cd"), user.ErrNotFound))
	assert.Empty(t, emailsvc.Sent())

	require.NoError(t, env.svc.RequestPasswordReset(ctx, " Alice@Test.cd "))
	sent := emailsvc.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, "password_reset", sent[0].TemplateName)
	uid, token := linkParts(t)

	_, err := env.svc.ResetPassword(ctx, user.ResetUserPassword{UID: "bad", Token: token, Password: "N3w-Passw0rd!"})
	assert.Contains(t, fieldErrors(t, err), "token")

	_, err = env.svc.ResetPassword(ctx, user.ResetUserPassword{UID: uid, Token: token + "x", Password: "N3w-Passw0rd!"})
	assert.Contains(t, fieldErrors(t, err), "token")

	_, err = env.svc.ResetPassword(ctx, user.ResetUserPassword{UID: uid, Token: token, Password: "alice"})
	assert.Contains(t, fieldErrors(t, err), "password")

	updated, err := env.svc.ResetPassword(ctx, user.ResetUserPassword{UID: uid, Token: token, Password: "N3w-Passw0rd!"})
	require.NoError(t, err)
	assert.Equal(t, usr.ID, updated.ID)
	assert.NoError(t, updated.CheckPassword("N3w-Passw0rd!"))

	// the token is single use: it is bound to the previous password
	_, err = env.svc.ResetPassword(ctx, user.ResetUserPassword{UID: uid, Token: token, Password: "An0ther-Passw0rd!"})
	assert.Contains(t, fieldErrors(t, err), "token")
}

func TestService_VerifyEmail(t *testing.T) {
	env := setup(t)
	ctx := context.Background()

	usr, err := env.svc.Register(ctx, user.NewUser{Username: "alice", Email: "alice@test.cd", Password: testutil.Password})
	require.NoError(t, err)
	uid, token := linkParts(t)

	_, err = env.svc.VerifyEmail(ctx, user.VerifyEmail{UID: uid, Token: "nope"})
	assert.Contains(t, fieldErrors(t, err), "token")

	verified, err := env.svc.VerifyEmail(ctx, user.VerifyEmail{UID: uid, Token: token})
	require.NoError(t, err)
	assert.Equal(t, usr.ID, verified.ID)
	assert.True(t, verified.EmailVerified)
	assert.True(t, verified.EmailVerifiedAt.Valid)
}

func TestService_OAuthLogin(t *testing.T) {
	env := setup(t)
	ctx := context.Background()
	jane := testutil.CreateUser(t, env.repo, "jane", "jane@test.cd", true, false)

	t.Run("disabled provider", func(t *testing.T) {
		_, err := env.svc.OAuthLogin(ctx, user.OAuthLogin{Provider: user.ProviderGoogle, AccessToken: "x"})
		assert.Equal(t, map[string]string{"provider": user.ErrProviderDisabled.Error()}, fieldErrors(t, err))
	})

	t.Run("invalid token", func(t *testing.T) {
		_, err := env.svc.OAuthLogin(ctx, user.OAuthLogin{Provider: user.ProviderGithub, AccessToken: "x"})
		assert.Equal(t, map[string]string{"access_token": "invalid access token"}, fieldErrors(t, err))
	})

	var octo user.User
	t.Run("new user", func(t *testing.T) {
		var err error
		octo, err = env.svc.OAuthLogin(ctx, user.OAuthLogin{Provider: user.ProviderGithub, AccessToken: "gh-new"})
		require.NoError(t, err)
		assert.Equal(t, "octo", octo.Username)
		assert.Equal(t, "octo@test.cd", octo.Email)
		assert.True(t, octo.EmailVerified)
		assert.False(t, octo.HasPassword())
		assert.True(t, octo.LastLogin.Valid)

		cats, err := env.feedSvc.ListCategories(ctx, octo.ID)
		require.NoError(t, err)
		assert.Len(t, cats, 1)

		again, err := env.svc.OAuthLogin(ctx, user.OAuthLogin{Provider: user.ProviderGithub, AccessToken: "gh-new"})
		require.NoError(t, err)
		assert.Equal(t, octo.ID, again.ID)
	})

	t.Run("linked by email", func(t *testing.T) {
		usr, err := env.svc.OAuthLogin(ctx, user.OAuthLogin{Provider: user.ProviderGithub, AccessToken: "gh-existing"})
		require.NoError(t, err)
		assert.Equal(t, jane.ID, usr.ID)

		accs, err := env.svc.OAuthAccounts(ctx, jane)
		require.NoError(t, err)
		require.Len(t, accs, 1)
		assert.Equal(t, "43", accs[0].ProviderUserID)
	})

	t.Run("username taken", func(t *testing.T) {
		usr, err := env.svc.OAuthLogin(ctx, user.OAuthLogin{Provider: user.ProviderGithub, AccessToken: "gh-noemail"})
		require.NoError(t, err)
		assert.Equal(t, "jane1", usr.Username)
		assert.Equal(t, "github.44@users.noreply.suprss", usr.Email)
		assert.False(t, usr.EmailVerified)
	})

	t.Run("unlink", func(t *testing.T) {
		assert.True(t, errors.Is(env.svc.UnlinkOAuthAccount(ctx, octo, user.ProviderGoogle), user.ErrOAuthNotFound))

		err := env.svc.UnlinkOAuthAccount(ctx, octo, user.ProviderGithub)
		var verr *core.ValidationError
		require.True(t, errors.As(err, &verr))
		assert.Equal(t, user.ErrOAuthLastLogin, verr.Err)

		require.NoError(t, env.svc.UnlinkOAuthAccount(ctx, jane, user.ProviderGithub))
		accs, err := env.svc.OAuthAccounts(ctx, jane)
		require.NoError(t, err)
		assert.Empty(t, accs)
	})
}
