package inmemdb

import (
	"context"
	"sort"

	"github.com/suprss/suprss/core"
	"github.com/suprss/suprss/core/interaction"
)

type interactionRepository struct {
	db *DB
}

var _ interaction.Repository = (*interactionRepository)(nil) // interface compliance check

func NewInteractionRepository(db *DB) interaction.Repository {
	return &interactionRepository{db: db}
}

func (repo *interactionRepository) withUsername(c interaction.Comment) interaction.Comment {
	c.Username = repo.db.username(c.UserID)
	return c
}

// Comments

func (repo *interactionRepository) CreateComment(_ context.Context, c interaction.Comment) (interaction.Comment, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	c.ID = repo.db.nextID()
	c.Replies = nil
	repo.db.comments[c.ID] = &c
	return repo.withUsername(c), nil
}

func (repo *interactionRepository) GetComment(_ context.Context, id int64) (interaction.Comment, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if c, ok := repo.db.comments[id]; ok {
		return repo.withUsername(*c), nil
	}
	return interaction.Comment{}, interaction.ErrCommentNotFound
}

func (repo *interactionRepository) UpdateComment(_ context.Context, c interaction.Comment) (interaction.Comment, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	existing, ok := repo.db.comments[c.ID]
	if !ok {
		return interaction.Comment{}, interaction.ErrCommentNotFound
	}
	existing.Content = c.Content
	existing.IsDeleted = c.IsDeleted
	existing.UpdatedAt = c.UpdatedAt
	return repo.withUsername(*existing), nil
}

func sortComments(comments []interaction.Comment, newestFirst bool) {
	sort.Slice(comments, func(i, j int) bool {
		a, b := comments[i], comments[j]
		if a.CreatedAt.Equal(b.CreatedAt) {
			if newestFirst {
				return a.ID > b.ID
			}
			return a.ID < b.ID
		}
		if newestFirst {
			return a.CreatedAt.After(b.CreatedAt)
		}
		return a.CreatedAt.Before(b.CreatedAt)
	})
}

func (repo *interactionRepository) ListArticleComments(_ context.Context, collectionID, articleID int64) ([]interaction.Comment, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	comments := make([]interaction.Comment, 0)
	for _, c := range repo.db.comments {
		if c.CollectionID == collectionID && c.ArticleID == articleID {
			comments = append(comments, repo.withUsername(*c))
		}
	}
	sortComments(comments, false)
	return comments, nil
}

func (repo *interactionRepository) ListUserComments(_ context.Context, userID int64, p core.Pagination) ([]interaction.Comment, int, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	comments := make([]interaction.Comment, 0)
	for _, c := range repo.db.comments {
		if c.UserID == userID && !c.IsDeleted {
			comments = append(comments, repo.withUsername(*c))
		}
	}
	sortComments(comments, true)

	total := len(comments)
	start, end := paginate(total, p.Offset(), p.Limit())
	return comments[start:end], total, nil
}

func (repo *interactionRepository) ArticleInCollection(_ context.Context, collectionID, articleID int64) (bool, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	a, ok := repo.db.articles[articleID]
	if !ok {
		return false, nil
	}
	for _, cf := range repo.db.collectionFeeds {
		if cf.CollectionID == collectionID && cf.FeedID == a.FeedID {
			return true, nil
		}
	}
	return false, nil
}

// Messages

func (repo *interactionRepository) CreateMessage(_ context.Context, m interaction.Message) (interaction.Message, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	m.ID = repo.db.nextID()
	repo.db.messages[m.ID] = &m
	m.Username = repo.db.username(m.UserID)
	return m, nil
}

func (repo *interactionRepository) sortedMessages(keep func(m *interaction.Message) bool) []interaction.Message {
	msgs := make([]interaction.Message, 0)
	for _, m := range repo.db.messages {
		if keep(m) {
			msg := *m
			msg.Username = repo.db.username(m.UserID)
			msgs = append(msgs, msg)
		}
	}
	sort.Slice(msgs, func(i, j int) bool {
		if msgs[i].CreatedAt.Equal(msgs[j].CreatedAt) {
			return msgs[i].ID > msgs[j].ID
		}
		return msgs[i].CreatedAt.After(msgs[j].CreatedAt)
	})
	return msgs
}

func (repo *interactionRepository) ListMessages(_ context.Context, collectionID int64, p core.Pagination) ([]interaction.Message, int, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	msgs := repo.sortedMessages(func(m *interaction.Message) bool { return m.CollectionID == collectionID })
	total := len(msgs)
	start, end := paginate(total, p.Offset(), p.Limit())
	return msgs[start:end], total, nil
}

// Activity

func idSet(ids []int64) map[int64]bool {
	set := make(map[int64]bool, len(ids))
	for _, id := range ids {
		set[id] = true
	}
	return set
}

func (repo *interactionRepository) RecentComments(_ context.Context, collectionIDs []int64, limit int) ([]interaction.Comment, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	colls := idSet(collectionIDs)
	comments := make([]interaction.Comment, 0)
	for _, c := range repo.db.comments {
		if colls[c.CollectionID] && !c.IsDeleted {
			comments = append(comments, repo.withUsername(*c))
		}
	}
	sortComments(comments, true)
	if len(comments) > limit {
		comments = comments[:limit]
	}
	return comments, nil
}

func (repo *interactionRepository) RecentMessages(_ context.Context, collectionIDs []int64, limit int) ([]interaction.Message, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	colls := idSet(collectionIDs)
	msgs := repo.sortedMessages(func(m *interaction.Message) bool { return colls[m.CollectionID] })
	if len(msgs) > limit {
		msgs = msgs[:limit]
	}
	return msgs, nil
}
