package inmemdb

import (
	"context"
	"sort"
	"strings"

	"github.com/suprss/suprss/core/collection"
	"github.com/suprss/suprss/core/feed"
	"github.com/suprss/suprss/core/interaction"
	"github.com/suprss/suprss/core/search"
)

type searchRepository struct {
	db *DB
}

var _ search.Repository = (*searchRepository)(nil) // interface compliance check

func NewSearchRepository(db *DB) search.Repository {
	return &searchRepository{db: db}
}

func containsFold(q string, fields ...string) bool {
	q = strings.ToLower(q)
	for _, f := range fields {
		if strings.Contains(strings.ToLower(f), q) {
			return true
		}
	}
	return false
}

func (repo *searchRepository) SearchArticles(_ context.Context, userID int64, q string, limit int) ([]feed.Article, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	feeds := repo.db.readableFeedIDs(userID)
	arts := make([]feed.Article, 0)
	for _, a := range repo.db.articles {
		if feeds[a.FeedID] && containsFold(q, a.Title, a.Summary, a.Content, a.Author) {
			arts = append(arts, repo.db.withStatus(*a, userID))
		}
	}
	sort.Slice(arts, func(i, j int) bool { return arts[i].PublishedAt.After(arts[j].PublishedAt) })
	if len(arts) > limit {
		arts = arts[:limit]
	}
	return arts, nil
}

func (repo *searchRepository) SearchFeeds(_ context.Context, userID int64, q string, limit int) ([]feed.Feed, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	fr := feedRepository{db: repo.db}
	feeds := make([]feed.Feed, 0)
	for id := range repo.db.subscribedFeedIDs(userID) {
		if f, ok := repo.db.feeds[id]; ok && containsFold(q, f.Name, f.Description, f.URL) {
			feeds = append(feeds, fr.withCount(*f))
		}
	}
	sort.Slice(feeds, func(i, j int) bool { return feeds[i].Name < feeds[j].Name })
	if len(feeds) > limit {
		feeds = feeds[:limit]
	}
	return feeds, nil
}

func (repo *searchRepository) SearchCollections(_ context.Context, userID int64, q string, limit int) ([]collection.Collection, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	cr := collectionRepository{db: repo.db}
	colls := make([]collection.Collection, 0)
	for id := range repo.db.memberCollectionIDs(userID) {
		if c, ok := repo.db.collections[id]; ok && containsFold(q, c.Name, c.Description) {
			colls = append(colls, cr.detailed(*c))
		}
	}
	sort.Slice(colls, func(i, j int) bool { return colls[i].Name < colls[j].Name })
	if len(colls) > limit {
		colls = colls[:limit]
	}
	return colls, nil
}

func (repo *searchRepository) SearchComments(_ context.Context, userID int64, q string, limit int) ([]interaction.Comment, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	colls := repo.db.memberCollectionIDs(userID)
	comments := make([]interaction.Comment, 0)
	for _, c := range repo.db.comments {
		if colls[c.CollectionID] && !c.IsDeleted && containsFold(q, c.Content) {
			cm := *c
			cm.Username = repo.db.username(c.UserID)
			comments = append(comments, cm)
		}
	}
	sortComments(comments, true)
	if len(comments) > limit {
		comments = comments[:limit]
	}
	return comments, nil
}

func (repo *searchRepository) Suggestions(_ context.Context, userID int64, prefix string, limit int) ([]string, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	p := strings.ToLower(prefix)
	var out []string
	add := func(s string) {
		if strings.HasPrefix(strings.ToLower(s), p) {
			out = append(out, s)
		}
	}

	feeds := repo.db.readableFeedIDs(userID)
	for _, a := range repo.db.articles {
		if feeds[a.FeedID] {
			add(a.Title)
		}
	}
	for id := range repo.db.subscribedFeedIDs(userID) {
		if f, ok := repo.db.feeds[id]; ok {
			add(f.Name)
		}
	}
	for id := range repo.db.memberCollectionIDs(userID) {
		if c, ok := repo.db.collections[id]; ok {
			add(c.Name)
		}
	}
	sort.Strings(out)
	if len(out) > limit*2 {
		out = out[:limit*2]
	}
	return out, nil
}
