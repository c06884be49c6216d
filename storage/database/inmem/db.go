package inmemdb

import (
	"context"
	"sync"

	"github.com/suprss/suprss/core/collection"
	"github.com/suprss/suprss/core/feed"
	"github.com/suprss/suprss/core/interaction"
	"github.com/suprss/suprss/core/transfer"
	"github.com/suprss/suprss/core/user"
)

// DB is a thread-safe in-memory database. All the repositories created from the same DB share its tables,
// so that the cross table constraints (cascades, joins) are honored.
type DB struct {
	sync.RWMutex
	pk int64

	users         map[int64]*user.User
	oauthAccounts map[int64]*user.OAuthAccount

	feeds         map[int64]*feed.Feed
	articles      map[int64]*feed.Article
	statuses      map[int64]*feed.Status
	categories    map[int64]*feed.Category
	subscriptions map[int64]*feed.Subscription

	collections     map[int64]*collection.Collection
	members         map[int64]*collection.Member
	collectionFeeds map[int64]*collection.CollectionFeed

	comments map[int64]*interaction.Comment
	messages map[int64]*interaction.Message

	exportLogs map[int64]*transfer.ExportLog
	importLogs map[int64]*transfer.ImportLog
}

func Open() (*DB, error) {
	db := &DB{
		users:           make(map[int64]*user.User),
		oauthAccounts:   make(map[int64]*user.OAuthAccount),
		feeds:           make(map[int64]*feed.Feed),
		articles:        make(map[int64]*feed.Article),
		statuses:        make(map[int64]*feed.Status),
		categories:      make(map[int64]*feed.Category),
		subscriptions:   make(map[int64]*feed.Subscription),
		collections:     make(map[int64]*collection.Collection),
		members:         make(map[int64]*collection.Member),
		collectionFeeds: make(map[int64]*collection.CollectionFeed),
		comments:        make(map[int64]*interaction.Comment),
		messages:        make(map[int64]*interaction.Message),
		exportLogs:      make(map[int64]*transfer.ExportLog),
		importLogs:      make(map[int64]*transfer.ImportLog),
	}
	return db, nil
}

// nextID must be called with the write lock held.
func (db *DB) nextID() int64 {
	db.pk++
	return db.pk
}

// userCategoryIDs returns the IDs of the user's categories. Callers hold the lock.
func (db *DB) userCategoryIDs(userID int64) map[int64]bool {
	ids := make(map[int64]bool)
	for _, c := range db.categories {
		if c.UserID == userID {
			ids[c.ID] = true
		}
	}
	return ids
}

// subscribedFeedIDs returns the IDs of the feeds linked to any of the user's categories. Callers hold the lock.
func (db *DB) subscribedFeedIDs(userID int64) map[int64]bool {
	cats := db.userCategoryIDs(userID)
	ids := make(map[int64]bool)
	for _, s := range db.subscriptions {
		if cats[s.CategoryID] {
			ids[s.FeedID] = true
		}
	}
	return ids
}

// memberCollectionIDs returns the IDs of the collections the user is a member of. Callers hold the lock.
func (db *DB) memberCollectionIDs(userID int64) map[int64]bool {
	ids := make(map[int64]bool)
	for _, m := range db.members {
		if m.UserID == userID {
			ids[m.CollectionID] = true
		}
	}
	return ids
}

// readableFeedIDs returns the IDs of the feeds the user subscribed to or reads through a collection. Callers hold the lock.
func (db *DB) readableFeedIDs(userID int64) map[int64]bool {
	ids := db.subscribedFeedIDs(userID)
	colls := db.memberCollectionIDs(userID)
	for _, cf := range db.collectionFeeds {
		if colls[cf.CollectionID] {
			ids[cf.FeedID] = true
		}
	}
	return ids
}

// deleteComments deletes the matching comments along with every reply under them. Callers hold the lock.
func (db *DB) deleteComments(match func(c *interaction.Comment) bool) {
	deleted := make(map[int64]bool)
	for k, c := range db.comments {
		if match(c) {
			deleted[k] = true
			delete(db.comments, k)
		}
	}
	for len(deleted) > 0 {
		parents := deleted
		deleted = make(map[int64]bool)
		for k, c := range db.comments {
			if c.ParentID.Valid && parents[c.ParentID.Int64] {
				deleted[k] = true
				delete(db.comments, k)
			}
		}
	}
}

// status returns the user's status of the article, if any. Callers hold the lock.
func (db *DB) status(userID, articleID int64) *feed.Status {
	for _, s := range db.statuses {
		if s.UserID == userID && s.ArticleID == articleID {
			return s
		}
	}
	return nil
}

// withStatus sets the feed name & the user's read/favorite flags of the article. Callers hold the lock.
func (db *DB) withStatus(a feed.Article, userID int64) feed.Article {
	if f, ok := db.feeds[a.FeedID]; ok {
		a.FeedName = f.Name
	}
	a.IsRead, a.IsFavorite = false, false
	if s := db.status(userID, a.ID); s != nil {
		a.IsRead = s.IsRead
		a.IsFavorite = s.IsFavorite
	}
	return a
}

func (db *DB) username(userID int64) string {
	if u, ok := db.users[userID]; ok {
		return u.Username
	}
	return ""
}

func paginate(n, offset, limit int) (int, int) {
	if offset > n {
		offset = n
	}
	end := offset + limit
	if limit <= 0 || end > n {
		end = n
	}
	return offset, end
}

// PingContext lets the in-memory DB back the health check.
func (db *DB) PingContext(context.Context) error { return nil }
