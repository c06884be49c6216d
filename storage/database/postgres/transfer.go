package pgrepos

import (
	"context"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/suprss/suprss/core/transfer"
)

type transferRepository struct {
	db *sqlx.DB
}

var _ transfer.Repository = (*transferRepository)(nil) // interface compliance check

func NewTransferRepository(db *sqlx.DB) transfer.Repository {
	return &transferRepository{db: db}
}

func (repo *transferRepository) CreateExportLog(ctx context.Context, l transfer.ExportLog) (transfer.ExportLog, error) {
	b := psql.Insert("export_logs").
		Columns("user_id", "format", "filename", "created_at").
		Values(l.UserID, l.Format, l.Filename, l.CreatedAt).
		Suffix("RETURNING id")
	if err := get(ctx, repo.db, &l.ID, b); err != nil {
		return transfer.ExportLog{}, errors.Wrap(err, "inserting export log")
	}
	return l, nil
}

func (repo *transferRepository) CreateImportLog(ctx context.Context, l transfer.ImportLog) (transfer.ImportLog, error) {
	b := psql.Insert("import_logs").
		Columns("user_id", "format", "filename", "feeds_imported", "created_at").
		Values(l.UserID, l.Format, l.Filename, l.FeedsImported, l.CreatedAt).
		Suffix("RETURNING id")
	if err := get(ctx, repo.db, &l.ID, b); err != nil {
		return transfer.ImportLog{}, errors.Wrap(err, "inserting import log")
	}
	return l, nil
}

func (repo *transferRepository) ListExportLogs(ctx context.Context, userID int64, limit int) ([]transfer.ExportLog, error) {
	b := psql.Select("id", "user_id", "format", "filename", "created_at").
		From("export_logs").
		Where(sq.Eq{"user_id": userID}).
		OrderBy("id DESC").
		Limit(uint64(limit))

	logs := make([]transfer.ExportLog, 0)
	if err := selectAll(ctx, repo.db, &logs, b); err != nil {
		return nil, errors.Wrap(err, "listing export logs")
	}
	return logs, nil
}

func (repo *transferRepository) ListImportLogs(ctx context.Context, userID int64, limit int) ([]transfer.ImportLog, error) {
	b := psql.Select("id", "user_id", "format", "filename", "feeds_imported", "created_at").
		From("import_logs").
		Where(sq.Eq{"user_id": userID}).
		OrderBy("id DESC").
		Limit(uint64(limit))

	logs := make([]transfer.ImportLog, 0)
	if err := selectAll(ctx, repo.db, &logs, b); err != nil {
		return nil, errors.Wrap(err, "listing import logs")
	}
	return logs, nil
}

// ListArticleStatuses returns the read and/or favorite states the user set on the articles of the feed.
func (repo *transferRepository) ListArticleStatuses(ctx context.Context, userID, feedID int64, read, favorites bool) ([]transfer.ArticleStatus, error) {
	statuses := make([]transfer.ArticleStatus, 0)
	if !read && !favorites {
		return statuses, nil
	}

	b := psql.Select("a.guid", "a.title").
		Column(sq.Expr("(s.is_read AND ?) AS is_read", read)).
		Column(sq.Expr("CASE WHEN ? THEN s.read_at END AS read_at", read)).
		Column(sq.Expr("(s.is_favorite AND ?) AS is_favorite", favorites)).
		Column(sq.Expr("CASE WHEN ? THEN s.favorited_at END AS favorited_at", favorites)).
		From("article_statuses s").
		Join("articles a ON a.id = s.article_id").
		Where(sq.Eq{"s.user_id": userID, "a.feed_id": feedID}).
		Where(sq.Or{sq.Expr("(s.is_read AND ?)", read), sq.Expr("(s.is_favorite AND ?)", favorites)}).
		OrderBy("a.guid")
	if err := selectAll(ctx, repo.db, &statuses, b); err != nil {
		return nil, errors.Wrap(err, "listing article statuses")
	}
	return statuses, nil
}
