package pgrepos

import (
	"context"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/suprss/suprss/core"
	"github.com/suprss/suprss/core/interaction"
)

var (
	commentColumns = []string{
		"cm.id", "cm.article_id", "cm.user_id", "u.username", "cm.collection_id", "cm.parent_id", "cm.content",
		"cm.is_deleted", "cm.created_at", "cm.updated_at",
	}
	messageColumns = []string{
		"msg.id", "msg.collection_id", "msg.user_id", "u.username", "msg.content", "msg.created_at", "msg.updated_at",
	}
)

type interactionRepository struct {
	db *sqlx.DB
}

var _ interaction.Repository = (*interactionRepository)(nil) // interface compliance check

func NewInteractionRepository(db *sqlx.DB) interaction.Repository {
	return &interactionRepository{db: db}
}

func comments() sq.SelectBuilder {
	return psql.Select(commentColumns...).From("comments cm").Join("users u ON u.id = cm.user_id")
}

func messages() sq.SelectBuilder {
	return psql.Select(messageColumns...).From("messages msg").Join("users u ON u.id = msg.user_id")
}

// Comments

func (repo *interactionRepository) CreateComment(ctx context.Context, c interaction.Comment) (interaction.Comment, error) {
	b := psql.Insert("comments").
		Columns("article_id", "user_id", "collection_id", "parent_id", "content", "is_deleted", "created_at", "updated_at").
		Values(c.ArticleID, c.UserID, c.CollectionID, c.ParentID, c.Content, c.IsDeleted, c.CreatedAt, c.UpdatedAt).
		Suffix("RETURNING id")
	if err := get(ctx, repo.db, &c.ID, b); err != nil {
		return interaction.Comment{}, errors.Wrap(err, "inserting comment")
	}
	return repo.GetComment(ctx, c.ID)
}

func (repo *interactionRepository) GetComment(ctx context.Context, id int64) (interaction.Comment, error) {
	var c interaction.Comment
	if err := get(ctx, repo.db, &c, comments().Where(sq.Eq{"cm.id": id})); err != nil {
		return interaction.Comment{}, trapNoRowsErr(err, interaction.ErrCommentNotFound, "getting comment")
	}
	return c, nil
}

func (repo *interactionRepository) UpdateComment(ctx context.Context, c interaction.Comment) (interaction.Comment, error) {
	b := psql.Update("comments").Set("content", c.Content).Set("is_deleted", c.IsDeleted).Where(sq.Eq{"id": c.ID})
	n, err := exec(ctx, repo.db, b)
	if err != nil {
		return interaction.Comment{}, errors.Wrap(err, "updating comment")
	}
	if n == 0 {
		return interaction.Comment{}, interaction.ErrCommentNotFound
	}
	return repo.GetComment(ctx, c.ID)
}

func (repo *interactionRepository) ListArticleComments(ctx context.Context, collectionID, articleID int64) ([]interaction.Comment, error) {
	b := comments().
		Where(sq.Eq{"cm.collection_id": collectionID, "cm.article_id": articleID}).
		OrderBy("cm.created_at", "cm.id")

	cs := make([]interaction.Comment, 0)
	if err := selectAll(ctx, repo.db, &cs, b); err != nil {
		return nil, errors.Wrap(err, "listing article comments")
	}
	return cs, nil
}

func (repo *interactionRepository) ListUserComments(ctx context.Context, userID int64, p core.Pagination) ([]interaction.Comment, int, error) {
	b := comments().Where(sq.Eq{"cm.user_id": userID}).Where("NOT cm.is_deleted")

	total, err := count(ctx, repo.db, b)
	if err != nil {
		return nil, 0, errors.Wrap(err, "counting user comments")
	}

	cs := make([]interaction.Comment, 0)
	if err = selectAll(ctx, repo.db, &cs, paginate(b.OrderBy("cm.created_at DESC", "cm.id DESC"), p)); err != nil {
		return nil, 0, errors.Wrap(err, "listing user comments")
	}
	return cs, total, nil
}

func (repo *interactionRepository) ArticleInCollection(ctx context.Context, collectionID, articleID int64) (bool, error) {
	var ok bool
	b := psql.Select().
		Column(sq.Expr(`EXISTS (SELECT 1 FROM articles a JOIN collection_feeds cf ON cf.feed_id = a.feed_id
			WHERE a.id = ? AND cf.collection_id = ?)`, articleID, collectionID))
	if err := get(ctx, repo.db, &ok, b); err != nil {
		return false, errors.Wrap(err, "checking article collection")
	}
	return ok, nil
}

// Messages

func (repo *interactionRepository) CreateMessage(ctx context.Context, m interaction.Message) (interaction.Message, error) {
	b := psql.Insert("messages").
		Columns("collection_id", "user_id", "content", "created_at", "updated_at").
		Values(m.CollectionID, m.UserID, m.Content, m.CreatedAt, m.UpdatedAt).
		Suffix("RETURNING id")
	if err := get(ctx, repo.db, &m.ID, b); err != nil {
		return interaction.Message{}, errors.Wrap(err, "inserting message")
	}

	if err := get(ctx, repo.db, &m.Username, psql.Select("username").From("users").Where(sq.Eq{"id": m.UserID})); err != nil {
		return interaction.Message{}, errors.Wrap(err, "getting message author")
	}
	return m, nil
}

func (repo *interactionRepository) ListMessages(ctx context.Context, collectionID int64, p core.Pagination) ([]interaction.Message, int, error) {
	b := messages().Where(sq.Eq{"msg.collection_id": collectionID})

	total, err := count(ctx, repo.db, b)
	if err != nil {
		return nil, 0, errors.Wrap(err, "counting messages")
	}

	msgs := make([]interaction.Message, 0)
	if err = selectAll(ctx, repo.db, &msgs, paginate(b.OrderBy("msg.created_at DESC", "msg.id DESC"), p)); err != nil {
		return nil, 0, errors.Wrap(err, "listing messages")
	}
	return msgs, total, nil
}

// Activity

func (repo *interactionRepository) RecentComments(ctx context.Context, collectionIDs []int64, limit int) ([]interaction.Comment, error) {
	cs := make([]interaction.Comment, 0)
	if len(collectionIDs) == 0 {
		return cs, nil
	}
	b := comments().
		Where(sq.Eq{"cm.collection_id": collectionIDs}).
		Where("NOT cm.is_deleted").
		OrderBy("cm.created_at DESC", "cm.id DESC").
		Limit(uint64(limit))
	if err := selectAll(ctx, repo.db, &cs, b); err != nil {
		return nil, errors.Wrap(err, "listing recent comments")
	}
	return cs, nil
}

func (repo *interactionRepository) RecentMessages(ctx context.Context, collectionIDs []int64, limit int) ([]interaction.Message, error) {
	msgs := make([]interaction.Message, 0)
	if len(collectionIDs) == 0 {
		return msgs, nil
	}
	b := messages().
		Where(sq.Eq{"msg.collection_id": collectionIDs}).
		OrderBy("msg.created_at DESC", "msg.id DESC").
		Limit(uint64(limit))
	if err := selectAll(ctx, repo.db, &msgs, b); err != nil {
		return nil, errors.Wrap(err, "listing recent messages")
	}
	return msgs, nil
}
