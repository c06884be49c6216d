// Package testutil holds the fixtures shared by the package tests.
package testutil

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"

	"github.com/suprss/suprss/core"
	"github.com/suprss/suprss/core/feed"
	"github.com/suprss/suprss/core/user"
	appfs "github.com/suprss/suprss/fs"
)

// Password satisfies the password policy.
const Password = "Sup3r-Secr3t!"

var tmplOnce sync.Once

// NewConfig returns the configuration used by the tests.
func NewConfig() *core.Config {
	conf := &core.Config{
		AppName:          "SUPRSS",
		Build:            "test",
		Env:              "TEST",
		TestMode:         true,
		SecretKey:        "test-secret-key",
		DefaultFromEmail: "noreply@suprss.test",
		FrontendBaseURL:  "http://localhost:3000",
		Server: core.ServerConfig{
			DisableReqLogs:                true,
			ShutdownTimeout:               time.Second,
			JWTExpirationDelta:            30 * time.Minute,
			JWTRefreshExpirationDelta:     7 * 24 * time.Hour,
			PasswordResetTimeoutDelta:     time.Hour,
			EmailVerificationTimeoutDelta: 24 * time.Hour,
			MaxUploadSize:                 1 << 20,
		},
		Feeds: core.FeedsConfig{
			UserAgent:             "SUPRSS-test",
			Timeout:               5 * time.Second,
			MaxEntriesPerFeed:     100,
			DefaultFrequencyHours: 6,
			MinFrequencyHours:     1,
			MaxFrequencyHours:     168,
			MinRefreshInterval:    5 * time.Minute,
			PollInterval:          time.Minute,
			PollWorkers:           2,
			ArticleRetentionDays:  90,
		},
		Chat: core.ChatConfig{
			MessageQueueSize:  16,
			HeartbeatInterval: time.Second,
		},
	}
	tmplOnce.Do(func() {
		core.ParseEmailTemplates(appfs.FS, appfs.EmailTemplatesDir, conf, core.NopLogger{})
	})
	return conf
}

// NewValidator returns a validator with the app validators registered.
func NewValidator() (*validator.Validate, ut.Translator) {
	validate := validator.New()
	translator, _ := ut.New(en.New()).GetTranslator("en")
	core.InitValidators(validate, translator)
	user.InitValidators(validate, translator)
	return validate, translator
}

// CreateUser stores a user with the Password, bypassing the service rules.
func CreateUser(t *testing.T, repo user.Repository, uname, email string, isActive, isAdmin bool, createdAt ...time.Time) user.User {
	tstamp := time.Now().UTC()
	if len(createdAt) > 0 {
		tstamp = createdAt[0].UTC()
	}
	usr := user.User{
		Username:  uname,
		Email:     email,
		IsActive:  isActive,
		IsAdmin:   isAdmin,
		FontSize:  user.FontMedium,
		CreatedAt: tstamp,
		UpdatedAt: tstamp,
	}
	if err := usr.SetPassword(Password); err != nil {
		t.Fatalf("CreateUser(): %v", err)
	}
	usr, err := repo.CreateUser(context.Background(), usr)
	if err != nil {
		t.Fatalf("CreateUser(): %v", err)
	}
	return usr
}

// Fetcher serves canned feeds by URL.
type Fetcher struct {
	mu    sync.Mutex
	feeds map[string]feed.ParsedFeed
	calls map[string]int
}

var _ feed.Fetcher = (*Fetcher)(nil)

func NewFetcher() *Fetcher {
	return &Fetcher{feeds: make(map[string]feed.ParsedFeed), calls: make(map[string]int)}
}

// Set registers the feed served at `url`.
func (f *Fetcher) Set(url string, pf feed.ParsedFeed) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.feeds[url] = pf
}

func (f *Fetcher) Calls(url string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[url]
}

func (f *Fetcher) Fetch(_ context.Context, url string) (feed.ParsedFeed, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[url]++
	pf, ok := f.feeds[url]
	if !ok {
		return feed.ParsedFeed{}, errors.Errorf("no feed at %s", url)
	}
	return pf, nil
}

// Entries returns `n` feed entries published an hour apart, newest first.
func Entries(prefix string, n int) []feed.Article {
	now := time.Now().UTC().Truncate(time.Second)
	entries := make([]feed.Article, 0, n)
	for i := 0; i < n; i++ {
		title := prefix + " article " + string(rune('A'+i))
		entries = append(entries, feed.Article{
			Title:       title,
			Link:        "https://example.com/" + prefix + "/" + string(rune('a'+i)),
			GUID:        prefix + "-" + string(rune('a'+i)),
			Content:     "Content of " + title,
			Summary:     "Summary of " + title,
			PublishedAt: now.Add(-time.Duration(i) * time.Hour),
		})
	}
	return entries
}
