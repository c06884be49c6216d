package pgrepos

import (
	"context"
	"database/sql"
	"strings"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/suprss/suprss/core"
)

const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
)

var (
	psql        = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)
	likeEscaper = strings.NewReplacer(`\`, `\\`, "%", `\%`, "_", `\_`)
)

// containsPattern returns the ILIKE pattern matching the values that contain q literally.
func containsPattern(q string) string {
	return "%" + likeEscaper.Replace(q) + "%"
}

func pgErrCode(err error) string {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return string(pqErr.Code)
	}
	return ""
}

func isUniqueViolation(err error) bool     { return pgErrCode(err) == pgUniqueViolation }
func isForeignKeyViolation(err error) bool { return pgErrCode(err) == pgForeignKeyViolation }

// trapNoRowsErr maps psql "no rows" err to `notFound`
func trapNoRowsErr(err error, notFound error, msg string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return notFound
	}
	return errors.Wrap(err, msg)
}

func get(ctx context.Context, db sqlx.QueryerContext, dest interface{}, b sq.Sqlizer) error {
	q, args, err := b.ToSql()
	if err != nil {
		return errors.Wrap(err, "building query")
	}
	return sqlx.GetContext(ctx, db, dest, q, args...)
}

func selectAll(ctx context.Context, db sqlx.QueryerContext, dest interface{}, b sq.Sqlizer) error {
	q, args, err := b.ToSql()
	if err != nil {
		return errors.Wrap(err, "building query")
	}
	return sqlx.SelectContext(ctx, db, dest, q, args...)
}

func exec(ctx context.Context, db sqlx.ExecerContext, b sq.Sqlizer) (int64, error) {
	q, args, err := b.ToSql()
	if err != nil {
		return 0, errors.Wrap(err, "building query")
	}
	res, err := db.ExecContext(ctx, q, args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// count runs the select as a subquery & returns its number of rows.
func count(ctx context.Context, db sqlx.QueryerContext, b sq.SelectBuilder) (int, error) {
	var n int
	err := get(ctx, db, &n, psql.Select("COUNT(*)").FromSelect(b.RemoveLimit().RemoveOffset(), "sub"))
	return n, err
}

func paginate(b sq.SelectBuilder, p core.Pagination) sq.SelectBuilder {
	return b.Limit(uint64(p.Limit())).Offset(uint64(p.Offset()))
}

// withTx runs `fn` in a transaction, rolled back when `fn` fails.
func withTx(ctx context.Context, db *sqlx.DB, fn func(tx *sqlx.Tx) error) error {
	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "beginning transaction")
	}
	if err = fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return errors.Wrap(tx.Commit(), "committing transaction")
}
