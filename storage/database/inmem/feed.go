package inmemdb

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/suprss/suprss/core"
	"github.com/suprss/suprss/core/feed"
	"github.com/suprss/suprss/core/interaction"
)

type feedRepository struct {
	db *DB
}

var _ feed.Repository = (*feedRepository)(nil) // interface compliance check

func NewFeedRepository(db *DB) feed.Repository {
	return &feedRepository{db: db}
}

// Feeds

func (repo *feedRepository) withCount(f feed.Feed) feed.Feed {
	f.ArticleCount = 0
	for _, a := range repo.db.articles {
		if a.FeedID == f.ID {
			f.ArticleCount++
		}
	}
	return f
}

func (repo *feedRepository) CreateFeed(_ context.Context, f feed.Feed) (feed.Feed, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	f.ID = repo.db.nextID()
	repo.db.feeds[f.ID] = &f
	return f, nil
}

func (repo *feedRepository) GetFeed(_ context.Context, id int64) (feed.Feed, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if f, ok := repo.db.feeds[id]; ok {
		return repo.withCount(*f), nil
	}
	return feed.Feed{}, feed.ErrNotFound
}

func (repo *feedRepository) GetFeedByURL(_ context.Context, url string) (feed.Feed, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	for _, f := range repo.db.feeds {
		if f.URL == url {
			return repo.withCount(*f), nil
		}
	}
	return feed.Feed{}, feed.ErrNotFound
}

func (repo *feedRepository) UpdateFeed(_ context.Context, f feed.Feed) (feed.Feed, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	if _, ok := repo.db.feeds[f.ID]; !ok {
		return feed.Feed{}, feed.ErrNotFound
	}
	f.ArticleCount = 0
	repo.db.feeds[f.ID] = &f
	return repo.withCount(f), nil
}

func (repo *feedRepository) ListUserFeeds(_ context.Context, userID int64, filter feed.FeedFilter) ([]feed.Feed, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	cats := repo.db.userCategoryIDs(userID)
	ids := make(map[int64]bool)
	for _, s := range repo.db.subscriptions {
		if !cats[s.CategoryID] || (filter.CategoryID != 0 && s.CategoryID != filter.CategoryID) {
			continue
		}
		ids[s.FeedID] = true
	}

	feeds := make([]feed.Feed, 0, len(ids))
	for id := range ids {
		f, ok := repo.db.feeds[id]
		if !ok || (filter.IsActive != nil && f.IsActive != *filter.IsActive) {
			continue
		}
		feeds = append(feeds, repo.withCount(*f))
	}
	sort.Slice(feeds, func(i, j int) bool {
		if feeds[i].Name == feeds[j].Name {
			return feeds[i].ID < feeds[j].ID
		}
		return feeds[i].Name < feeds[j].Name
	})
	return feeds, nil
}

func (repo *feedRepository) IsSubscribed(_ context.Context, userID, feedID int64) (bool, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()
	return repo.db.subscribedFeedIDs(userID)[feedID], nil
}

func (repo *feedRepository) CanReadFeed(_ context.Context, userID, feedID int64) (bool, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()
	return repo.db.readableFeedIDs(userID)[feedID], nil
}

func (repo *feedRepository) Subscribe(_ context.Context, sub feed.Subscription) (feed.Subscription, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	if _, ok := repo.db.categories[sub.CategoryID]; !ok {
		return feed.Subscription{}, feed.ErrCategoryNotFound
	}
	if _, ok := repo.db.feeds[sub.FeedID]; !ok {
		return feed.Subscription{}, feed.ErrNotFound
	}
	for _, s := range repo.db.subscriptions {
		if s.FeedID == sub.FeedID && s.CategoryID == sub.CategoryID {
			return feed.Subscription{}, feed.ErrAlreadySubscribed
		}
	}
	sub.ID = repo.db.nextID()
	repo.db.subscriptions[sub.ID] = &sub
	return sub, nil
}

func (repo *feedRepository) Unsubscribe(_ context.Context, userID, feedID int64) error {
	repo.db.Lock()
	defer repo.db.Unlock()

	cats := repo.db.userCategoryIDs(userID)
	for k, s := range repo.db.subscriptions {
		if s.FeedID == feedID && cats[s.CategoryID] {
			delete(repo.db.subscriptions, k)
		}
	}
	return nil
}

func (repo *feedRepository) ListDueFeeds(_ context.Context, now time.Time) ([]feed.Feed, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	feeds := make([]feed.Feed, 0)
	for _, f := range repo.db.feeds {
		if f.IsDue(now) {
			feeds = append(feeds, *f)
		}
	}
	sort.Slice(feeds, func(i, j int) bool { return feeds[i].ID < feeds[j].ID })
	return feeds, nil
}

// Articles

func (repo *feedRepository) SaveArticles(_ context.Context, feedID int64, articles []feed.Article, fetchedAt time.Time) (int, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	f, ok := repo.db.feeds[feedID]
	if !ok {
		return 0, feed.ErrNotFound
	}
	guids := make(map[string]bool)
	for _, a := range repo.db.articles {
		if a.FeedID == feedID {
			guids[a.GUID] = true
		}
	}

	var n int
	for _, a := range articles {
		if guids[a.GUID] {
			continue
		}
		guids[a.GUID] = true
		a.ID = repo.db.nextID()
		a.FeedID = feedID
		a.FeedName = ""
		a.FetchedAt = fetchedAt
		a.UpdatedAt = fetchedAt
		a.IsRead, a.IsFavorite = false, false
		stored := a
		repo.db.articles[a.ID] = &stored
		n++
	}
	f.LastUpdate.SetValid(fetchedAt)
	return n, nil
}

func (repo *feedRepository) ListArticles(_ context.Context, userID int64, filter feed.ArticleFilter) ([]feed.Article, int, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	feedIDs := repo.db.subscribedFeedIDs(userID)
	if filter.CategoryID != 0 {
		feedIDs = make(map[int64]bool)
		cats := repo.db.userCategoryIDs(userID)
		for _, s := range repo.db.subscriptions {
			if s.CategoryID == filter.CategoryID && cats[s.CategoryID] {
				feedIDs[s.FeedID] = true
			}
		}
	}

	search := strings.ToLower(filter.Search)
	arts := make([]feed.Article, 0)
	for _, a := range repo.db.articles {
		if !feedIDs[a.FeedID] || (filter.FeedID != 0 && a.FeedID != filter.FeedID) {
			continue
		}
		if !filter.From.IsZero() && a.PublishedAt.Before(filter.From) {
			continue
		}
		if !filter.To.IsZero() && a.PublishedAt.After(filter.To) {
			continue
		}
		if search != "" &&
			!strings.Contains(strings.ToLower(a.Title), search) &&
			!strings.Contains(strings.ToLower(a.Summary), search) &&
			!strings.Contains(strings.ToLower(a.Content), search) {
			continue
		}
		art := repo.db.withStatus(*a, userID)
		if (filter.UnreadOnly && art.IsRead) || (filter.FavoritesOnly && !art.IsFavorite) {
			continue
		}
		arts = append(arts, art)
	}

	asc := filter.SortOrder == feed.SortAsc
	sort.Slice(arts, func(i, j int) bool {
		a, b := arts[i], arts[j]
		if filter.SortBy == feed.SortByTitle && a.Title != b.Title {
			if asc {
				return a.Title < b.Title
			}
			return a.Title > b.Title
		}
		if !a.PublishedAt.Equal(b.PublishedAt) {
			if asc {
				return a.PublishedAt.Before(b.PublishedAt)
			}
			return a.PublishedAt.After(b.PublishedAt)
		}
		return a.ID > b.ID
	})

	total := len(arts)
	start, end := paginate(total, filter.Offset, filter.Limit)
	return arts[start:end], total, nil
}

func (repo *feedRepository) GetArticle(_ context.Context, userID, articleID int64) (feed.Article, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	a, ok := repo.db.articles[articleID]
	if !ok {
		return feed.Article{}, feed.ErrArticleNotFound
	}
	return repo.db.withStatus(*a, userID), nil
}

func (repo *feedRepository) CanReadArticle(_ context.Context, userID, articleID int64) (bool, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	a, ok := repo.db.articles[articleID]
	if !ok {
		return false, nil
	}
	return repo.db.readableFeedIDs(userID)[a.FeedID], nil
}

func (repo *feedRepository) GetStatus(_ context.Context, userID, articleID int64) (feed.Status, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if s := repo.db.status(userID, articleID); s != nil {
		return *s, nil
	}
	return feed.Status{}, feed.ErrStatusNotFound
}

func (repo *feedRepository) SaveStatus(_ context.Context, s feed.Status) (feed.Status, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	if _, ok := repo.db.articles[s.ArticleID]; !ok {
		return feed.Status{}, feed.ErrArticleNotFound
	}
	if existing := repo.db.status(s.UserID, s.ArticleID); existing != nil {
		s.ID = existing.ID
		s.CreatedAt = existing.CreatedAt
	} else {
		s.ID = repo.db.nextID()
	}
	repo.db.statuses[s.ID] = &s
	return s, nil
}

func (repo *feedRepository) ListFavorites(_ context.Context, userID int64, p core.Pagination) ([]feed.Article, int, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	type fav struct {
		art feed.Article
		at  time.Time
	}
	favs := make([]fav, 0)
	for _, s := range repo.db.statuses {
		if s.UserID != userID || !s.IsFavorite {
			continue
		}
		if a, ok := repo.db.articles[s.ArticleID]; ok {
			favs = append(favs, fav{art: repo.db.withStatus(*a, userID), at: s.FavoritedAt.Time})
		}
	}
	sort.Slice(favs, func(i, j int) bool {
		if favs[i].at.Equal(favs[j].at) {
			return favs[i].art.ID > favs[j].art.ID
		}
		return favs[i].at.After(favs[j].at)
	})

	total := len(favs)
	start, end := paginate(total, p.Offset(), p.Limit())
	arts := make([]feed.Article, 0, end-start)
	for _, f := range favs[start:end] {
		arts = append(arts, f.art)
	}
	return arts, total, nil
}

func (repo *feedRepository) CountUnread(_ context.Context, userID int64, filter feed.UnreadCountFilter) (int, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	cats := repo.db.userCategoryIDs(userID)
	feedIDs := make(map[int64]bool)
	for _, s := range repo.db.subscriptions {
		if cats[s.CategoryID] && (filter.CategoryID == 0 || s.CategoryID == filter.CategoryID) {
			feedIDs[s.FeedID] = true
		}
	}

	var n int
	for _, a := range repo.db.articles {
		if !feedIDs[a.FeedID] || (filter.FeedID != 0 && a.FeedID != filter.FeedID) {
			continue
		}
		if s := repo.db.status(userID, a.ID); s == nil || !s.IsRead {
			n++
		}
	}
	return n, nil
}

// DeleteArticlesBefore deletes the articles published before `before` that nobody has favorited.
func (repo *feedRepository) DeleteArticlesBefore(_ context.Context, before time.Time) (int, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	favorited := make(map[int64]bool)
	for _, s := range repo.db.statuses {
		if s.IsFavorite {
			favorited[s.ArticleID] = true
		}
	}

	var n int
	for id, a := range repo.db.articles {
		if !a.PublishedAt.Before(before) || favorited[id] {
			continue
		}
		delete(repo.db.articles, id)
		for k, s := range repo.db.statuses {
			if s.ArticleID == id {
				delete(repo.db.statuses, k)
			}
		}
		repo.db.deleteComments(func(c *interaction.Comment) bool { return c.ArticleID == id })
		n++
	}
	return n, nil
}

// Categories

func (repo *feedRepository) withFeedCount(c feed.Category) feed.Category {
	c.FeedCount = 0
	for _, s := range repo.db.subscriptions {
		if s.CategoryID == c.ID {
			c.FeedCount++
		}
	}
	return c
}

// nameTaken must be called with the lock held.
func (repo *feedRepository) nameTaken(c feed.Category) bool {
	for _, other := range repo.db.categories {
		if other.UserID == c.UserID && other.ID != c.ID && strings.EqualFold(other.Name, c.Name) {
			return true
		}
	}
	return false
}

func (repo *feedRepository) CreateCategory(_ context.Context, c feed.Category) (feed.Category, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	if repo.nameTaken(c) {
		return feed.Category{}, feed.ErrCategoryExists
	}
	c.ID = repo.db.nextID()
	c.FeedCount = 0
	repo.db.categories[c.ID] = &c
	return c, nil
}

func (repo *feedRepository) GetCategory(_ context.Context, userID, id int64) (feed.Category, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if c, ok := repo.db.categories[id]; ok && c.UserID == userID {
		return repo.withFeedCount(*c), nil
	}
	return feed.Category{}, feed.ErrCategoryNotFound
}

func (repo *feedRepository) GetCategoryByName(_ context.Context, userID int64, name string) (feed.Category, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	for _, c := range repo.db.categories {
		if c.UserID == userID && strings.EqualFold(c.Name, name) {
			return repo.withFeedCount(*c), nil
		}
	}
	return feed.Category{}, feed.ErrCategoryNotFound
}

func (repo *feedRepository) ListCategories(_ context.Context, userID int64) ([]feed.Category, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	cats := make([]feed.Category, 0)
	for _, c := range repo.db.categories {
		if c.UserID == userID {
			cats = append(cats, repo.withFeedCount(*c))
		}
	}
	sort.Slice(cats, func(i, j int) bool { return strings.ToLower(cats[i].Name) < strings.ToLower(cats[j].Name) })
	return cats, nil
}

func (repo *feedRepository) UpdateCategory(_ context.Context, c feed.Category) (feed.Category, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	if _, ok := repo.db.categories[c.ID]; !ok {
		return feed.Category{}, feed.ErrCategoryNotFound
	}
	if repo.nameTaken(c) {
		return feed.Category{}, feed.ErrCategoryExists
	}
	c.FeedCount = 0
	repo.db.categories[c.ID] = &c
	return repo.withFeedCount(c), nil
}

func (repo *feedRepository) DeleteCategory(_ context.Context, id, moveTo int64) error {
	repo.db.Lock()
	defer repo.db.Unlock()

	if _, ok := repo.db.categories[id]; !ok {
		return feed.ErrCategoryNotFound
	}
	inTarget := make(map[int64]bool)
	for _, s := range repo.db.subscriptions {
		if s.CategoryID == moveTo {
			inTarget[s.FeedID] = true
		}
	}
	for _, s := range repo.db.subscriptions {
		if s.CategoryID == id && !inTarget[s.FeedID] {
			s.CategoryID = moveTo
			inTarget[s.FeedID] = true
		}
	}
	repo.db.deleteCategory(id)
	return nil
}

func (repo *feedRepository) MoveFeed(_ context.Context, feedID, fromCategoryID, toCategoryID int64) error {
	repo.db.Lock()
	defer repo.db.Unlock()

	var sub *feed.Subscription
	inTarget := false
	for _, s := range repo.db.subscriptions {
		if s.FeedID != feedID {
			continue
		}
		switch s.CategoryID {
		case fromCategoryID:
			sub = s
		case toCategoryID:
			inTarget = true
		}
	}
	if sub == nil {
		return feed.ErrNotSubscribed
	}
	if inTarget {
		return feed.ErrAlreadySubscribed
	}
	sub.CategoryID = toCategoryID
	return nil
}

// deleteCategory deletes the category & its subscriptions. Callers hold the lock.
func (db *DB) deleteCategory(id int64) {
	for k, s := range db.subscriptions {
		if s.CategoryID == id {
			delete(db.subscriptions, k)
		}
	}
	delete(db.categories, id)
}
