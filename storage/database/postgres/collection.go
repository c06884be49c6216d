package pgrepos

import (
	"context"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/suprss/suprss/core"
	"github.com/suprss/suprss/core/collection"
	"github.com/suprss/suprss/core/feed"
)

var (
	collectionColumns = []string{
		"col.id", "col.name", "col.description", "col.owner_id", "col.is_shared", "col.created_at", "col.updated_at",
		"col.owner_username", "col.feed_count", "col.member_count",
	}
	memberColumns = []string{
		"m.id", "m.collection_id", "m.user_id", "u.username", "u.email", "m.role", "m.joined_at",
		"m.can_add_feed", "m.can_read", "m.can_comment", "m.can_edit", "m.can_delete",
	}
	collectionFeedColumns = []string{
		"cf.id", "cf.collection_id", "cf.feed_id", "COALESCE(cf.added_by, 0) AS added_by", "cf.added_at",
		`f.id AS "feed.id"`, `f.name AS "feed.name"`, `f.url AS "feed.url"`, `f.description AS "feed.description"`,
		`f.update_frequency_hours AS "feed.update_frequency_hours"`, `f.is_active AS "feed.is_active"`,
		`f.last_update AS "feed.last_update"`, `f.created_at AS "feed.created_at"`, `f.updated_at AS "feed.updated_at"`,
		`(SELECT COUNT(*) FROM articles a WHERE a.feed_id = f.id) AS "feed.article_count"`,
	}
)

type collectionRepository struct {
	db *sqlx.DB
}

var _ collection.Repository = (*collectionRepository)(nil) // interface compliance check

func NewCollectionRepository(db *sqlx.DB) collection.Repository {
	return &collectionRepository{db: db}
}

func collections() sq.SelectBuilder {
	return psql.Select(collectionColumns...).From("collections_detailed_view col")
}

// CreateCollection inserts the collection. The owner membership is added by the collection_owner_membership trigger.
func (repo *collectionRepository) CreateCollection(ctx context.Context, c collection.Collection) (collection.Collection, error) {
	b := psql.Insert("collections").
		Columns("name", "description", "owner_id", "is_shared", "created_at", "updated_at").
		Values(c.Name, c.Description, c.OwnerID, c.IsShared, c.CreatedAt, c.UpdatedAt).
		Suffix("RETURNING id")
	if err := get(ctx, repo.db, &c.ID, b); err != nil {
		return collection.Collection{}, errors.Wrap(err, "inserting collection")
	}
	return repo.GetCollection(ctx, c.ID)
}

func (repo *collectionRepository) GetCollection(ctx context.Context, id int64) (collection.Collection, error) {
	var c collection.Collection
	if err := get(ctx, repo.db, &c, collections().Where(sq.Eq{"col.id": id})); err != nil {
		return collection.Collection{}, trapNoRowsErr(err, collection.ErrNotFound, "getting collection")
	}
	return c, nil
}

func (repo *collectionRepository) ListUserCollections(ctx context.Context, userID int64, p core.Pagination) ([]collection.Collection, int, error) {
	b := psql.Select(append(collectionColumns,
		"m.role AS my_role", "m.can_add_feed", "m.can_read", "m.can_comment", "m.can_edit", "m.can_delete")...).
		From("collections_detailed_view col").
		Join("collection_members m ON m.collection_id = col.id AND m.user_id = ?", userID)

	total, err := count(ctx, repo.db, b)
	if err != nil {
		return nil, 0, errors.Wrap(err, "counting collections")
	}

	var rows []struct {
		collection.Collection
		collection.Permissions
	}
	if err = selectAll(ctx, repo.db, &rows, paginate(b.OrderBy("col.created_at DESC", "col.id DESC"), p)); err != nil {
		return nil, 0, errors.Wrap(err, "listing collections")
	}

	colls := make([]collection.Collection, 0, len(rows))
	for _, r := range rows {
		c := r.Collection
		perms := r.Permissions
		c.MyPermissions = &perms
		colls = append(colls, c)
	}
	return colls, total, nil
}

func (repo *collectionRepository) ListUserCollectionIDs(ctx context.Context, userID int64) ([]int64, error) {
	b := psql.Select("collection_id").From("collection_members").Where(sq.Eq{"user_id": userID}).OrderBy("collection_id")

	ids := make([]int64, 0)
	if err := selectAll(ctx, repo.db, &ids, b); err != nil {
		return nil, errors.Wrap(err, "listing collection ids")
	}
	return ids, nil
}

func (repo *collectionRepository) UpdateCollection(ctx context.Context, c collection.Collection) (collection.Collection, error) {
	b := psql.Update("collections").
		Set("name", c.Name).
		Set("description", c.Description).
		Set("is_shared", c.IsShared).
		Where(sq.Eq{"id": c.ID})
	n, err := exec(ctx, repo.db, b)
	if err != nil {
		return collection.Collection{}, errors.Wrap(err, "updating collection")
	}
	if n == 0 {
		return collection.Collection{}, collection.ErrNotFound
	}
	return repo.GetCollection(ctx, c.ID)
}

func (repo *collectionRepository) DeleteCollection(ctx context.Context, id int64) error {
	n, err := exec(ctx, repo.db, psql.Delete("collections").Where(sq.Eq{"id": id}))
	if err != nil {
		return errors.Wrap(err, "deleting collection")
	}
	if n == 0 {
		return collection.ErrNotFound
	}
	return nil
}

// Members

func members() sq.SelectBuilder {
	return psql.Select(memberColumns...).From("collection_members m").Join("users u ON u.id = m.user_id")
}

func (repo *collectionRepository) GetMember(ctx context.Context, collectionID, userID int64) (collection.Member, error) {
	var m collection.Member
	if err := get(ctx, repo.db, &m, members().Where(sq.Eq{"m.collection_id": collectionID, "m.user_id": userID})); err != nil {
		return collection.Member{}, trapNoRowsErr(err, collection.ErrMemberNotFound, "getting member")
	}
	return m, nil
}

// ListMembers returns the owner first, then the other members by join date.
func (repo *collectionRepository) ListMembers(ctx context.Context, collectionID int64) ([]collection.Member, error) {
	b := members().
		Where(sq.Eq{"m.collection_id": collectionID}).
		OrderBy("m.role = 'owner' DESC", "m.joined_at", "m.id")

	ms := make([]collection.Member, 0)
	if err := selectAll(ctx, repo.db, &ms, b); err != nil {
		return nil, errors.Wrap(err, "listing members")
	}
	return ms, nil
}

func (repo *collectionRepository) AddMember(ctx context.Context, m collection.Member) (collection.Member, error) {
	b := psql.Insert("collection_members").
		Columns("collection_id", "user_id", "role", "can_add_feed", "can_read", "can_comment", "can_edit", "can_delete", "joined_at").
		Values(m.CollectionID, m.UserID, m.Role, m.CanAddFeed, m.CanRead, m.CanComment, m.CanEdit, m.CanDelete, m.JoinedAt).
		Suffix("RETURNING id")
	if err := get(ctx, repo.db, &m.ID, b); err != nil {
		switch {
		case isUniqueViolation(err):
			return collection.Member{}, collection.ErrMemberExists
		case isForeignKeyViolation(err):
			return collection.Member{}, collection.ErrNotFound
		}
		return collection.Member{}, errors.Wrap(err, "inserting member")
	}
	return repo.GetMember(ctx, m.CollectionID, m.UserID)
}

func (repo *collectionRepository) UpdateMember(ctx context.Context, m collection.Member) (collection.Member, error) {
	b := psql.Update("collection_members").
		SetMap(map[string]interface{}{
			"role":         m.Role,
			"can_add_feed": m.CanAddFeed,
			"can_read":     m.CanRead,
			"can_comment":  m.CanComment,
			"can_edit":     m.CanEdit,
			"can_delete":   m.CanDelete,
		}).
		Where(sq.Eq{"collection_id": m.CollectionID, "user_id": m.UserID})
	n, err := exec(ctx, repo.db, b)
	if err != nil {
		return collection.Member{}, errors.Wrap(err, "updating member")
	}
	if n == 0 {
		return collection.Member{}, collection.ErrMemberNotFound
	}
	return repo.GetMember(ctx, m.CollectionID, m.UserID)
}

func (repo *collectionRepository) RemoveMember(ctx context.Context, collectionID, userID int64) error {
	n, err := exec(ctx, repo.db, psql.Delete("collection_members").Where(sq.Eq{"collection_id": collectionID, "user_id": userID}))
	if err != nil {
		return errors.Wrap(err, "removing member")
	}
	if n == 0 {
		return collection.ErrMemberNotFound
	}
	return nil
}

// Feeds

func (repo *collectionRepository) ListFeeds(ctx context.Context, collectionID int64) ([]collection.CollectionFeed, error) {
	b := psql.Select(collectionFeedColumns...).
		From("collection_feeds cf").
		Join("feeds f ON f.id = cf.feed_id").
		Where(sq.Eq{"cf.collection_id": collectionID}).
		OrderBy("cf.added_at", "cf.id")

	cfs := make([]collection.CollectionFeed, 0)
	if err := selectAll(ctx, repo.db, &cfs, b); err != nil {
		return nil, errors.Wrap(err, "listing collection feeds")
	}
	return cfs, nil
}

func (repo *collectionRepository) AddFeed(ctx context.Context, cf collection.CollectionFeed) (collection.CollectionFeed, error) {
	b := psql.Insert("collection_feeds").
		Columns("collection_id", "feed_id", "added_by", "added_at").
		Values(cf.CollectionID, cf.FeedID, null.NewInt64(cf.AddedBy, cf.AddedBy != 0), cf.AddedAt).
		Suffix("RETURNING id")
	if err := get(ctx, repo.db, &cf.ID, b); err != nil {
		switch {
		case isUniqueViolation(err):
			return collection.CollectionFeed{}, collection.ErrFeedExists
		case isForeignKeyViolation(err):
			return collection.CollectionFeed{}, collection.ErrNotFound
		}
		return collection.CollectionFeed{}, errors.Wrap(err, "inserting collection feed")
	}
	cf.Feed = feed.Feed{}
	return cf, nil
}

func (repo *collectionRepository) RemoveFeed(ctx context.Context, collectionID, feedID int64) error {
	n, err := exec(ctx, repo.db, psql.Delete("collection_feeds").Where(sq.Eq{"collection_id": collectionID, "feed_id": feedID}))
	if err != nil {
		return errors.Wrap(err, "removing collection feed")
	}
	if n == 0 {
		return collection.ErrFeedNotFound
	}
	return nil
}

// ListArticles returns the articles of the collection feeds, newest first.
func (repo *collectionRepository) ListArticles(ctx context.Context, collectionID, userID int64, p core.Pagination) ([]feed.Article, int, error) {
	b := articles(userID).Where("a.feed_id IN (SELECT feed_id FROM collection_feeds WHERE collection_id = ?)", collectionID)

	total, err := count(ctx, repo.db, b)
	if err != nil {
		return nil, 0, errors.Wrap(err, "counting collection articles")
	}

	arts := make([]feed.Article, 0)
	if err = selectAll(ctx, repo.db, &arts, paginate(b.OrderBy("a.published_at DESC", "a.id DESC"), p)); err != nil {
		return nil, 0, errors.Wrap(err, "listing collection articles")
	}
	return arts, total, nil
}
