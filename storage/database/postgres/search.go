package pgrepos

import (
	"context"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/suprss/suprss/core/collection"
	"github.com/suprss/suprss/core/feed"
	"github.com/suprss/suprss/core/interaction"
	"github.com/suprss/suprss/core/search"
)

type searchRepository struct {
	db *sqlx.DB
}

var _ search.Repository = (*searchRepository)(nil) // interface compliance check

func NewSearchRepository(db *sqlx.DB) search.Repository {
	return &searchRepository{db: db}
}

func ilikeAny(q string, columns ...string) sq.Or {
	val := containsPattern(q)
	or := make(sq.Or, 0, len(columns))
	for _, col := range columns {
		or = append(or, sq.ILike{col: val})
	}
	return or
}

func (repo *searchRepository) SearchArticles(ctx context.Context, userID int64, q string, limit int) ([]feed.Article, error) {
	b := articles(userID).
		Where(readableBy("a.feed_id", userID)).
		Where(ilikeAny(q, "a.title", "a.summary", "a.content", "a.author")).
		OrderBy("a.published_at DESC", "a.id DESC").
		Limit(uint64(limit))

	arts := make([]feed.Article, 0)
	if err := selectAll(ctx, repo.db, &arts, b); err != nil {
		return nil, errors.Wrap(err, "searching articles")
	}
	return arts, nil
}

func (repo *searchRepository) SearchFeeds(ctx context.Context, userID int64, q string, limit int) ([]feed.Feed, error) {
	b := psql.Select(feedColumns...).
		From("feeds f").
		Where("f.id IN ("+subscribedFeedsQuery+")", userID).
		Where(ilikeAny(q, "f.name", "f.description", "f.url")).
		OrderBy("f.name", "f.id").
		Limit(uint64(limit))

	feeds := make([]feed.Feed, 0)
	if err := selectAll(ctx, repo.db, &feeds, b); err != nil {
		return nil, errors.Wrap(err, "searching feeds")
	}
	return feeds, nil
}

func (repo *searchRepository) SearchCollections(ctx context.Context, userID int64, q string, limit int) ([]collection.Collection, error) {
	b := collections().
		Where("col.id IN (SELECT collection_id FROM collection_members WHERE user_id = ?)", userID).
		Where(ilikeAny(q, "col.name", "col.description")).
		OrderBy("col.name", "col.id").
		Limit(uint64(limit))

	colls := make([]collection.Collection, 0)
	if err := selectAll(ctx, repo.db, &colls, b); err != nil {
		return nil, errors.Wrap(err, "searching collections")
	}
	return colls, nil
}

func (repo *searchRepository) SearchComments(ctx context.Context, userID int64, q string, limit int) ([]interaction.Comment, error) {
	b := comments().
		Where("cm.collection_id IN (SELECT collection_id FROM collection_members WHERE user_id = ?)", userID).
		Where("NOT cm.is_deleted").
		Where(ilikeAny(q, "cm.content")).
		OrderBy("cm.created_at DESC", "cm.id DESC").
		Limit(uint64(limit))

	cs := make([]interaction.Comment, 0)
	if err := selectAll(ctx, repo.db, &cs, b); err != nil {
		return nil, errors.Wrap(err, "searching comments")
	}
	return cs, nil
}

func (repo *searchRepository) Suggestions(ctx context.Context, userID int64, prefix string, limit int) ([]string, error) {
	// prefix matching: escape the LIKE wildcards of the user input
	val := likeEscaper.Replace(prefix) + "%"
	q := `SELECT s FROM (
		SELECT a.title AS s FROM articles a WHERE ` + "a.feed_id IN (" + subscribedFeedsQuery + " UNION " + collectionFeedsQuery + `)
		UNION SELECT f.name FROM feeds f WHERE f.id IN (` + subscribedFeedsQuery + `)
		UNION SELECT col.name FROM collections col WHERE col.id IN (SELECT collection_id FROM collection_members WHERE user_id = ?)
	) sub WHERE s ILIKE ? ORDER BY s LIMIT ?`

	q, err := sq.Dollar.ReplacePlaceholders(q)
	if err != nil {
		return nil, errors.Wrap(err, "building query")
	}

	out := make([]string, 0)
	if err = sqlx.SelectContext(ctx, repo.db, &out, q, userID, userID, userID, userID, val, limit*2); err != nil {
		return nil, errors.Wrap(err, "listing suggestions")
	}
	return out, nil
}
