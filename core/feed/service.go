package feed

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"

	"github.com/suprss/suprss/core"
)

var (
	// errors
	ErrNotFound           = core.NewNotFoundError("feed not found")
	ErrArticleNotFound    = core.NewNotFoundError("article not found")
	ErrCategoryNotFound   = core.NewNotFoundError("category not found")
	ErrStatusNotFound     = core.NewNotFoundError("status not found")
	ErrPermissionDenied   = core.NewPermissionError("you do not have access to this feed")
	ErrAlreadySubscribed  = errors.New("you are already subscribed to this feed")
	ErrNotSubscribed      = errors.New("feed not found in this category")
	ErrCategoryExists     = errors.New("a category with this name already exists")
	ErrDefaultCategory    = errors.New("the default category cannot be deleted")
	ErrDefaultCategoryRen = errors.New("the default category cannot be renamed")
	ErrRefreshTooSoon     = core.NewTooManyRequestsError("this feed was refreshed too recently, please try again later")
)

type (
	Repository interface {
		CreateFeed(ctx context.Context, f Feed) (Feed, error)
		GetFeed(ctx context.Context, id int64) (Feed, error)
		GetFeedByURL(ctx context.Context, url string) (Feed, error)
		UpdateFeed(ctx context.Context, f Feed) (Feed, error)
		// ListUserFeeds returns the feeds linked to any of the user's categories, with their article count.
		ListUserFeeds(ctx context.Context, userID int64, filter FeedFilter) ([]Feed, error)
		IsSubscribed(ctx context.Context, userID, feedID int64) (bool, error)
		// CanReadFeed reports whether the user is subscribed to the feed or reads it through a collection.
		CanReadFeed(ctx context.Context, userID, feedID int64) (bool, error)
		Subscribe(ctx context.Context, sub Subscription) (Subscription, error)
		Unsubscribe(ctx context.Context, userID, feedID int64) error
		ListDueFeeds(ctx context.Context, now time.Time) ([]Feed, error)

		// SaveArticles inserts the articles that are not already stored (feed_id, guid) & sets the feed last_update.
		SaveArticles(ctx context.Context, feedID int64, articles []Article, fetchedAt time.Time) (int, error)
		ListArticles(ctx context.Context, userID int64, filter ArticleFilter) ([]Article, int, error)
		GetArticle(ctx context.Context, userID, articleID int64) (Article, error)
		CanReadArticle(ctx context.Context, userID, articleID int64) (bool, error)
		GetStatus(ctx context.Context, userID, articleID int64) (Status, error)
		SaveStatus(ctx context.Context, s Status) (Status, error)
		ListFavorites(ctx context.Context, userID int64, p core.Pagination) ([]Article, int, error)
		CountUnread(ctx context.Context, userID int64, filter UnreadCountFilter) (int, error)
		DeleteArticlesBefore(ctx context.Context, before time.Time) (int, error)

		CreateCategory(ctx context.Context, c Category) (Category, error)
		GetCategory(ctx context.Context, userID, id int64) (Category, error)
		GetCategoryByName(ctx context.Context, userID int64, name string) (Category, error)
		ListCategories(ctx context.Context, userID int64) ([]Category, error)
		UpdateCategory(ctx context.Context, c Category) (Category, error)
		// DeleteCategory moves the feeds of the category to `moveTo` then deletes it.
		DeleteCategory(ctx context.Context, id, moveTo int64) error
		MoveFeed(ctx context.Context, feedID, fromCategoryID, toCategoryID int64) error
	}

	// Fetcher downloads & parses remote feeds.
	Fetcher interface {
		Fetch(ctx context.Context, url string) (ParsedFeed, error)
	}

	Service struct {
		conf    *core.Config
		repo    Repository
		fetcher Fetcher
		logger  core.Logger
	}
)

func NewService(conf *core.Config, repo Repository, fetcher Fetcher, logger core.Logger) *Service {
	return &Service{
		conf:    conf,
		repo:    repo,
		fetcher: fetcher,
		logger:  logger,
	}
}

func validationErr(field string, err error) error {
	return core.NewValidationError(err, core.FieldError{Field: field, Error: err.Error()})
}

// Feeds

// Subscribe subscribes the user to the feed at NewSubscription.URL. The feed row is shared by all subscribers:
// it is only created (from the remote feed metadata) when no other user subscribed to it before.
func (svc *Service) Subscribe(ctx context.Context, userID int64, ns NewSubscription) (Feed, error) {
	cat, err := svc.resolveCategory(ctx, userID, ns.CategoryID)
	if err != nil {
		return Feed{}, err
	}

	f, err := svc.repo.GetFeedByURL(ctx, ns.URL)
	if errors.Is(err, ErrNotFound) {
		if f, err = svc.createFeed(ctx, ns); err != nil {
			return Feed{}, err
		}
	} else if err != nil {
		return Feed{}, errors.Wrap(err, "getting feed by url")
	} else {
		subscribed, err := svc.repo.IsSubscribed(ctx, userID, f.ID)
		if err != nil {
			return Feed{}, errors.Wrap(err, "checking subscription")
		}
		if subscribed {
			return Feed{}, validationErr("url", ErrAlreadySubscribed)
		}
	}

	if _, err = svc.repo.Subscribe(ctx, Subscription{FeedID: f.ID, CategoryID: cat.ID, CreatedAt: time.Now().UTC()}); err != nil {
		return Feed{}, errors.Wrap(err, "subscribing")
	}
	return f, nil
}

func (svc *Service) createFeed(ctx context.Context, ns NewSubscription) (Feed, error) {
	parsed, err := svc.fetcher.Fetch(ctx, ns.URL)
	if err != nil {
		svc.logger.Warn(fmt.Sprintf("feed.Subscribe: fetching %s: %v", ns.URL, err))
		return Feed{}, core.NewValidationError(errors.Wrap(err, "fetching feed"),
			core.FieldError{Field: "url", Error: "unable to read a valid RSS/Atom feed at this URL"})
	}

	name := ns.Name
	if name == "" {
		name = core.Truncate(core.CleanString(parsed.Title), 255)
	}
	if name == "" {
		name = ns.URL
	}
	desc := ns.Description
	if desc == "" {
		desc = core.Truncate(core.CleanString(parsed.Description), 2000)
	}
	freq := ns.UpdateFrequencyHours
	if freq == 0 {
		freq = svc.conf.Feeds.DefaultFrequencyHours
	}

	now := time.Now().UTC()
	f, err := svc.repo.CreateFeed(ctx, Feed{
		Name:                 name,
		URL:                  ns.URL,
		Description:          desc,
		UpdateFrequencyHours: freq,
		IsActive:             true,
		CreatedAt:            now,
		UpdatedAt:            now,
	})
	if err != nil {
		return Feed{}, errors.Wrap(err, "creating feed")
	}

	// store the entries we already have
	if n, err := svc.repo.SaveArticles(ctx, f.ID, svc.capEntries(parsed.Entries), now); err != nil {
		svc.logger.Error(fmt.Sprintf("feed.Subscribe: saving articles of %s: %v", f.URL, err), err)
	} else {
		f.ArticleCount = n
		f.LastUpdate.SetValid(now)
	}
	return f, nil
}

// resolveCategory returns the user category with `id`, or their default category when `id` is 0.
func (svc *Service) resolveCategory(ctx context.Context, userID, id int64) (Category, error) {
	if id == 0 {
		return svc.DefaultCategory(ctx, userID)
	}
	cat, err := svc.repo.GetCategory(ctx, userID, id)
	if errors.Is(err, ErrCategoryNotFound) {
		return Category{}, validationErr("category_id", ErrCategoryNotFound)
	}
	return cat, err
}

func (svc *Service) ListFeeds(ctx context.Context, userID int64, filter FeedFilter) ([]Feed, error) {
	return svc.repo.ListUserFeeds(ctx, userID, filter)
}

// FindFeed returns any feed by ID, regardless of the subscriptions.
func (svc *Service) FindFeed(ctx context.Context, id int64) (Feed, error) {
	return svc.repo.GetFeed(ctx, id)
}

// FindFeedByURL returns any feed by URL, regardless of the subscriptions.
func (svc *Service) FindFeedByURL(ctx context.Context, url string) (Feed, error) {
	return svc.repo.GetFeedByURL(ctx, core.CleanString(url))
}

// GetFeed returns the feed if the user is subscribed to it or reads it through a collection.
func (svc *Service) GetFeed(ctx context.Context, userID, id int64) (Feed, error) {
	f, err := svc.repo.GetFeed(ctx, id)
	if err != nil {
		return Feed{}, err
	}
	ok, err := svc.repo.CanReadFeed(ctx, userID, id)
	if err != nil {
		return Feed{}, errors.Wrap(err, "checking feed access")
	}
	if !ok {
		return Feed{}, ErrPermissionDenied
	}
	return f, nil
}

func (svc *Service) getSubscribedFeed(ctx context.Context, userID, id int64) (Feed, error) {
	f, err := svc.repo.GetFeed(ctx, id)
	if err != nil {
		return Feed{}, err
	}
	ok, err := svc.repo.IsSubscribed(ctx, userID, id)
	if err != nil {
		return Feed{}, errors.Wrap(err, "checking subscription")
	}
	if !ok {
		return Feed{}, ErrNotFound
	}
	return f, nil
}

func (svc *Service) UpdateFeed(ctx context.Context, userID, id int64, uf UpdateFeed) (Feed, error) {
	f, err := svc.getSubscribedFeed(ctx, userID, id)
	if err != nil {
		return Feed{}, err
	}
	if uf.Name != nil {
		if name := core.CleanString(*uf.Name); name != "" {
			f.Name = name
		}
	}
	if uf.Description != nil {
		f.Description = core.CleanString(*uf.Description)
	}
	if uf.UpdateFrequencyHours != nil {
		f.UpdateFrequencyHours = *uf.UpdateFrequencyHours
	}
	if uf.IsActive != nil {
		f.IsActive = *uf.IsActive
	}
	f.UpdatedAt = time.Now().UTC()
	return svc.repo.UpdateFeed(ctx, f)
}

// Unsubscribe removes the feed from all the user categories. The feed itself is kept for other subscribers.
func (svc *Service) Unsubscribe(ctx context.Context, userID, id int64) error {
	if _, err := svc.getSubscribedFeed(ctx, userID, id); err != nil {
		return err
	}
	return svc.repo.Unsubscribe(ctx, userID, id)
}

// Refresh fetches the feed on behalf of a subscriber and returns the number of new articles.
func (svc *Service) Refresh(ctx context.Context, userID, id int64) (int, error) {
	f, err := svc.getSubscribedFeed(ctx, userID, id)
	if err != nil {
		return 0, err
	}
	if f.LastUpdate.Valid && time.Since(f.LastUpdate.Time) < svc.conf.Feeds.MinRefreshInterval {
		return 0, ErrRefreshTooSoon
	}
	return svc.RefreshFeed(ctx, f)
}

// RefreshFeed fetches the feed and stores its new articles.
func (svc *Service) RefreshFeed(ctx context.Context, f Feed) (int, error) {
	parsed, err := svc.fetcher.Fetch(ctx, f.URL)
	if err != nil {
		return 0, errors.Wrapf(err, "fetching %s", f.URL)
	}
	n, err := svc.repo.SaveArticles(ctx, f.ID, svc.capEntries(parsed.Entries), time.Now().UTC())
	if err != nil {
		return 0, errors.Wrapf(err, "saving articles of %s", f.URL)
	}
	return n, nil
}

func (svc *Service) capEntries(entries []Article) []Article {
	if max := svc.conf.Feeds.MaxEntriesPerFeed; max > 0 && len(entries) > max {
		return entries[:max]
	}
	return entries
}

// DueFeeds returns the active feeds whose update frequency has elapsed since their last update.
func (svc *Service) DueFeeds(ctx context.Context) ([]Feed, error) {
	return svc.repo.ListDueFeeds(ctx, time.Now().UTC())
}

// CleanupArticles deletes the articles older than the retention window that nobody has favorited.
func (svc *Service) CleanupArticles(ctx context.Context) (int, error) {
	days := svc.conf.Feeds.ArticleRetentionDays
	if days <= 0 {
		return 0, nil
	}
	before := time.Now().UTC().AddDate(0, 0, -days)
	return svc.repo.DeleteArticlesBefore(ctx, before)
}

// Import subscribes the user to an imported feed, following the merge strategy for feeds that already exist:
// "skip" leaves them untouched (& unsubscribed), "replace" overwrites them, "merge" reuses them.
func (svc *Service) Import(ctx context.Context, userID int64, in ImportedFeed, strategy string, defaultCategoryID int64) (ImportOutcome, error) {
	var out ImportOutcome
	url := core.CleanString(in.URL)
	if url == "" {
		return out, errors.New("missing feed url")
	}

	now := time.Now().UTC()
	f, err := svc.repo.GetFeedByURL(ctx, url)
	switch {
	case err == nil:
		switch strategy {
		case "skip":
			return out, nil
		case "replace":
			if in.Name != "" {
				f.Name = core.Truncate(in.Name, 255)
			}
			if in.Description != "" {
				f.Description = core.Truncate(in.Description, 2000)
			}
			f.UpdateFrequencyHours = svc.cleanFrequency(in.UpdateFrequencyHours)
			f.UpdatedAt = now
			if f, err = svc.repo.UpdateFeed(ctx, f); err != nil {
				return out, errors.Wrap(err, "replacing feed")
			}
		}
	case errors.Is(err, ErrNotFound):
		name := core.Truncate(in.Name, 255)
		if name == "" {
			name = "Imported feed"
		}
		f, err = svc.repo.CreateFeed(ctx, Feed{
			Name:                 name,
			URL:                  url,
			Description:          core.Truncate(in.Description, 2000),
			UpdateFrequencyHours: svc.cleanFrequency(in.UpdateFrequencyHours),
			IsActive:             true,
			CreatedAt:            now,
			UpdatedAt:            now,
		})
		if err != nil {
			return out, errors.Wrap(err, "creating feed")
		}
	default:
		return out, errors.Wrap(err, "getting feed by url")
	}

	var cat Category
	if name := core.Truncate(core.CleanString(in.Category), 100); name != "" {
		cat, err = svc.repo.GetCategoryByName(ctx, userID, name)
		if errors.Is(err, ErrCategoryNotFound) {
			color := in.Color
			if !hexColorRegex.MatchString(color) {
				color = DefaultCategoryColor
			}
			cat, err = svc.repo.CreateCategory(ctx, Category{UserID: userID, Name: name, Color: color, CreatedAt: now, UpdatedAt: now})
			out.CategoryCreated = err == nil
		}
	} else {
		cat, err = svc.resolveCategory(ctx, userID, defaultCategoryID)
	}
	if err != nil {
		return out, errors.Wrap(err, "resolving category")
	}

	if _, err = svc.repo.Subscribe(ctx, Subscription{FeedID: f.ID, CategoryID: cat.ID, CreatedAt: now}); err != nil &&
		errors.Cause(err) != ErrAlreadySubscribed {
		return out, errors.Wrap(err, "subscribing")
	}
	out.Imported = true
	return out, nil
}

func (svc *Service) cleanFrequency(hours int) int {
	fc := svc.conf.Feeds
	if hours == 0 {
		return fc.DefaultFrequencyHours
	}
	if hours < fc.MinFrequencyHours {
		return fc.MinFrequencyHours
	}
	if hours > fc.MaxFrequencyHours {
		return fc.MaxFrequencyHours
	}
	return hours
}
