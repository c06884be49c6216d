package inmemdb

import (
	"context"
	"sort"

	"github.com/suprss/suprss/core"
	"github.com/suprss/suprss/core/collection"
	"github.com/suprss/suprss/core/feed"
	"github.com/suprss/suprss/core/interaction"
)

type collectionRepository struct {
	db *DB
}

var _ collection.Repository = (*collectionRepository)(nil) // interface compliance check

func NewCollectionRepository(db *DB) collection.Repository {
	return &collectionRepository{db: db}
}

// detailed sets the owner name & the counts of the collection. Callers hold the lock.
func (repo *collectionRepository) detailed(c collection.Collection) collection.Collection {
	c.OwnerUsername = repo.db.username(c.OwnerID)
	c.FeedCount, c.MemberCount = 0, 0
	for _, cf := range repo.db.collectionFeeds {
		if cf.CollectionID == c.ID {
			c.FeedCount++
		}
	}
	for _, m := range repo.db.members {
		if m.CollectionID == c.ID {
			c.MemberCount++
		}
	}
	c.MyRole = ""
	c.MyPermissions = nil
	return c
}

// CreateCollection creates the collection along with the owner membership.
func (repo *collectionRepository) CreateCollection(_ context.Context, c collection.Collection) (collection.Collection, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	c.ID = repo.db.nextID()
	repo.db.collections[c.ID] = &c

	owner := collection.Member{
		ID:           repo.db.nextID(),
		CollectionID: c.ID,
		UserID:       c.OwnerID,
		Role:         collection.RoleOwner,
		JoinedAt:     c.CreatedAt,
		Permissions:  collection.DefaultPermissions(collection.RoleOwner),
	}
	repo.db.members[owner.ID] = &owner
	return repo.detailed(c), nil
}

func (repo *collectionRepository) GetCollection(_ context.Context, id int64) (collection.Collection, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if c, ok := repo.db.collections[id]; ok {
		return repo.detailed(*c), nil
	}
	return collection.Collection{}, collection.ErrNotFound
}

func (repo *collectionRepository) ListUserCollections(_ context.Context, userID int64, p core.Pagination) ([]collection.Collection, int, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	colls := make([]collection.Collection, 0)
	for _, m := range repo.db.members {
		if m.UserID != userID {
			continue
		}
		c, ok := repo.db.collections[m.CollectionID]
		if !ok {
			continue
		}
		dc := repo.detailed(*c)
		perms := m.Permissions
		dc.MyRole = m.Role
		dc.MyPermissions = &perms
		colls = append(colls, dc)
	}
	sort.Slice(colls, func(i, j int) bool {
		if colls[i].CreatedAt.Equal(colls[j].CreatedAt) {
			return colls[i].ID > colls[j].ID
		}
		return colls[i].CreatedAt.After(colls[j].CreatedAt)
	})

	total := len(colls)
	start, end := paginate(total, p.Offset(), p.Limit())
	return colls[start:end], total, nil
}

func (repo *collectionRepository) ListUserCollectionIDs(_ context.Context, userID int64) ([]int64, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	ids := make([]int64, 0)
	for id := range repo.db.memberCollectionIDs(userID) {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

func (repo *collectionRepository) UpdateCollection(_ context.Context, c collection.Collection) (collection.Collection, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	if _, ok := repo.db.collections[c.ID]; !ok {
		return collection.Collection{}, collection.ErrNotFound
	}
	c = repo.detailed(c)
	stored := c
	repo.db.collections[c.ID] = &stored
	return c, nil
}

func (repo *collectionRepository) DeleteCollection(_ context.Context, id int64) error {
	repo.db.Lock()
	defer repo.db.Unlock()

	if _, ok := repo.db.collections[id]; !ok {
		return collection.ErrNotFound
	}
	repo.db.deleteCollection(id)
	return nil
}

// Members

// withUser sets the username & email of the member. Callers hold the lock.
func (repo *collectionRepository) withUser(m collection.Member) collection.Member {
	if u, ok := repo.db.users[m.UserID]; ok {
		m.Username = u.Username
		m.Email = u.Email
	}
	return m
}

func (repo *collectionRepository) member(collectionID, userID int64) *collection.Member {
	for _, m := range repo.db.members {
		if m.CollectionID == collectionID && m.UserID == userID {
			return m
		}
	}
	return nil
}

func (repo *collectionRepository) GetMember(_ context.Context, collectionID, userID int64) (collection.Member, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if m := repo.member(collectionID, userID); m != nil {
		return repo.withUser(*m), nil
	}
	return collection.Member{}, collection.ErrMemberNotFound
}

// ListMembers returns the owner first, then the other members by join date.
func (repo *collectionRepository) ListMembers(_ context.Context, collectionID int64) ([]collection.Member, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	members := make([]collection.Member, 0)
	for _, m := range repo.db.members {
		if m.CollectionID == collectionID {
			members = append(members, repo.withUser(*m))
		}
	}
	sort.Slice(members, func(i, j int) bool {
		if members[i].IsOwner() != members[j].IsOwner() {
			return members[i].IsOwner()
		}
		if members[i].JoinedAt.Equal(members[j].JoinedAt) {
			return members[i].ID < members[j].ID
		}
		return members[i].JoinedAt.Before(members[j].JoinedAt)
	})
	return members, nil
}

func (repo *collectionRepository) AddMember(_ context.Context, m collection.Member) (collection.Member, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	if _, ok := repo.db.collections[m.CollectionID]; !ok {
		return collection.Member{}, collection.ErrNotFound
	}
	if repo.member(m.CollectionID, m.UserID) != nil {
		return collection.Member{}, collection.ErrMemberExists
	}
	m.ID = repo.db.nextID()
	repo.db.members[m.ID] = &m
	return repo.withUser(m), nil
}

func (repo *collectionRepository) UpdateMember(_ context.Context, m collection.Member) (collection.Member, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	existing := repo.member(m.CollectionID, m.UserID)
	if existing == nil {
		return collection.Member{}, collection.ErrMemberNotFound
	}
	existing.Role = m.Role
	existing.Permissions = m.Permissions
	return repo.withUser(*existing), nil
}

func (repo *collectionRepository) RemoveMember(_ context.Context, collectionID, userID int64) error {
	repo.db.Lock()
	defer repo.db.Unlock()

	m := repo.member(collectionID, userID)
	if m == nil {
		return collection.ErrMemberNotFound
	}
	delete(repo.db.members, m.ID)
	return nil
}

// Feeds

func (repo *collectionRepository) ListFeeds(_ context.Context, collectionID int64) ([]collection.CollectionFeed, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	fr := feedRepository{db: repo.db}
	cfs := make([]collection.CollectionFeed, 0)
	for _, cf := range repo.db.collectionFeeds {
		if cf.CollectionID != collectionID {
			continue
		}
		c := *cf
		if f, ok := repo.db.feeds[c.FeedID]; ok {
			c.Feed = fr.withCount(*f)
		}
		cfs = append(cfs, c)
	}
	sort.Slice(cfs, func(i, j int) bool {
		if cfs[i].AddedAt.Equal(cfs[j].AddedAt) {
			return cfs[i].ID < cfs[j].ID
		}
		return cfs[i].AddedAt.Before(cfs[j].AddedAt)
	})
	return cfs, nil
}

func (repo *collectionRepository) AddFeed(_ context.Context, cf collection.CollectionFeed) (collection.CollectionFeed, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	if _, ok := repo.db.collections[cf.CollectionID]; !ok {
		return collection.CollectionFeed{}, collection.ErrNotFound
	}
	for _, existing := range repo.db.collectionFeeds {
		if existing.CollectionID == cf.CollectionID && existing.FeedID == cf.FeedID {
			return collection.CollectionFeed{}, collection.ErrFeedExists
		}
	}
	cf.ID = repo.db.nextID()
	cf.Feed = feed.Feed{}
	repo.db.collectionFeeds[cf.ID] = &cf
	return cf, nil
}

func (repo *collectionRepository) RemoveFeed(_ context.Context, collectionID, feedID int64) error {
	repo.db.Lock()
	defer repo.db.Unlock()

	for k, cf := range repo.db.collectionFeeds {
		if cf.CollectionID == collectionID && cf.FeedID == feedID {
			delete(repo.db.collectionFeeds, k)
			return nil
		}
	}
	return collection.ErrFeedNotFound
}

// ListArticles returns the articles of the collection feeds, newest first.
func (repo *collectionRepository) ListArticles(_ context.Context, collectionID, userID int64, p core.Pagination) ([]feed.Article, int, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	feedIDs := make(map[int64]bool)
	for _, cf := range repo.db.collectionFeeds {
		if cf.CollectionID == collectionID {
			feedIDs[cf.FeedID] = true
		}
	}
	arts := make([]feed.Article, 0)
	for _, a := range repo.db.articles {
		if feedIDs[a.FeedID] {
			arts = append(arts, repo.db.withStatus(*a, userID))
		}
	}
	sort.Slice(arts, func(i, j int) bool {
		if arts[i].PublishedAt.Equal(arts[j].PublishedAt) {
			return arts[i].ID > arts[j].ID
		}
		return arts[i].PublishedAt.After(arts[j].PublishedAt)
	})

	total := len(arts)
	start, end := paginate(total, p.Offset(), p.Limit())
	return arts[start:end], total, nil
}

// deleteCollection deletes the collection with its members, feeds, comments & messages. Callers hold the lock.
func (db *DB) deleteCollection(id int64) {
	for k, m := range db.members {
		if m.CollectionID == id {
			delete(db.members, k)
		}
	}
	for k, cf := range db.collectionFeeds {
		if cf.CollectionID == id {
			delete(db.collectionFeeds, k)
		}
	}
	db.deleteComments(func(c *interaction.Comment) bool { return c.CollectionID == id })
	for k, m := range db.messages {
		if m.CollectionID == id {
			delete(db.messages, k)
		}
	}
	delete(db.collections, id)
}
