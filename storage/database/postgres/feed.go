package pgrepos

import (
	"context"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/suprss/suprss/core"
	"github.com/suprss/suprss/core/feed"
)

const (
	// feeds linked to any of the categories of a user
	subscribedFeedsQuery = `SELECT fc.feed_id FROM feed_categories fc JOIN categories c ON c.id = fc.category_id WHERE c.user_id = ?`
	// feeds of the collections a user is a member of
	collectionFeedsQuery = `SELECT cf.feed_id FROM collection_feeds cf
		JOIN collection_members m ON m.collection_id = cf.collection_id WHERE m.user_id = ?`
)

var (
	feedColumns = []string{
		"f.id", "f.name", "f.url", "f.description", "f.update_frequency_hours", "f.is_active", "f.last_update",
		"f.created_at", "f.updated_at", "(SELECT COUNT(*) FROM articles a WHERE a.feed_id = f.id) AS article_count",
	}
	articleColumns = []string{
		"a.id", "a.feed_id", "f.name AS feed_name", "a.title", "a.link", "a.guid", "a.author", "a.content", "a.summary",
		"a.published_at", "a.fetched_at", "a.updated_at",
		"COALESCE(s.is_read, FALSE) AS is_read", "COALESCE(s.is_favorite, FALSE) AS is_favorite",
	}
	statusColumns = []string{
		"id", "user_id", "article_id", "is_read", "is_favorite", "read_at", "favorited_at", "created_at", "updated_at",
	}
	categoryColumns = []string{
		"c.id", "c.user_id", "c.name", "c.color", "c.created_at", "c.updated_at",
		"(SELECT COUNT(*) FROM feed_categories fc WHERE fc.category_id = c.id) AS feed_count",
	}
)

type feedRepository struct {
	db *sqlx.DB
}

var _ feed.Repository = (*feedRepository)(nil) // interface compliance check

func NewFeedRepository(db *sqlx.DB) feed.Repository {
	return &feedRepository{db: db}
}

// readableBy restricts `column` to the IDs of the feeds `userID` subscribed to or reads through a collection.
func readableBy(column string, userID int64) sq.Sqlizer {
	return sq.Expr(column+" IN ("+subscribedFeedsQuery+" UNION "+collectionFeedsQuery+")", userID, userID)
}

// articles selects the articles with the read & favorite state of `userID`.
func articles(userID int64) sq.SelectBuilder {
	return psql.Select(articleColumns...).
		From("articles a").
		Join("feeds f ON f.id = a.feed_id").
		LeftJoin("article_statuses s ON s.article_id = a.id AND s.user_id = ?", userID)
}

// Feeds

// CreateFeed inserts the feed. A feed with the same URL inserted concurrently is returned instead.
func (repo *feedRepository) CreateFeed(ctx context.Context, f feed.Feed) (feed.Feed, error) {
	b := psql.Insert("feeds").
		Columns("name", "url", "description", "update_frequency_hours", "is_active", "last_update", "created_at", "updated_at").
		Values(f.Name, f.URL, f.Description, f.UpdateFrequencyHours, f.IsActive, f.LastUpdate, f.CreatedAt, f.UpdatedAt).
		Suffix("RETURNING id")
	if err := get(ctx, repo.db, &f.ID, b); err != nil {
		if isUniqueViolation(err) {
			return repo.GetFeedByURL(ctx, f.URL)
		}
		return feed.Feed{}, errors.Wrap(err, "inserting feed")
	}
	return f, nil
}

func (repo *feedRepository) getFeed(ctx context.Context, where sq.Sqlizer) (feed.Feed, error) {
	var f feed.Feed
	if err := get(ctx, repo.db, &f, psql.Select(feedColumns...).From("feeds f").Where(where)); err != nil {
		return feed.Feed{}, trapNoRowsErr(err, feed.ErrNotFound, "getting feed")
	}
	return f, nil
}

func (repo *feedRepository) GetFeed(ctx context.Context, id int64) (feed.Feed, error) {
	return repo.getFeed(ctx, sq.Eq{"f.id": id})
}

func (repo *feedRepository) GetFeedByURL(ctx context.Context, url string) (feed.Feed, error) {
	return repo.getFeed(ctx, sq.Eq{"f.url": url})
}

func (repo *feedRepository) UpdateFeed(ctx context.Context, f feed.Feed) (feed.Feed, error) {
	b := psql.Update("feeds").
		SetMap(map[string]interface{}{
			"name":                   f.Name,
			"description":            f.Description,
			"update_frequency_hours": f.UpdateFrequencyHours,
			"is_active":              f.IsActive,
			"last_update":            f.LastUpdate,
		}).
		Where(sq.Eq{"id": f.ID})
	n, err := exec(ctx, repo.db, b)
	if err != nil {
		return feed.Feed{}, errors.Wrap(err, "updating feed")
	}
	if n == 0 {
		return feed.Feed{}, feed.ErrNotFound
	}
	return repo.GetFeed(ctx, f.ID)
}

func (repo *feedRepository) ListUserFeeds(ctx context.Context, userID int64, filter feed.FeedFilter) ([]feed.Feed, error) {
	subs := psql.Select("fc.feed_id").
		From("feed_categories fc").
		Join("categories c ON c.id = fc.category_id").
		Where(sq.Eq{"c.user_id": userID})
	if filter.CategoryID != 0 {
		subs = subs.Where(sq.Eq{"fc.category_id": filter.CategoryID})
	}
	subsSQL, subsArgs, err := subs.PlaceholderFormat(sq.Question).ToSql()
	if err != nil {
		return nil, errors.Wrap(err, "building query")
	}

	b := psql.Select(feedColumns...).From("feeds f").Where("f.id IN ("+subsSQL+")", subsArgs...).OrderBy("f.name", "f.id")
	if filter.IsActive != nil {
		b = b.Where(sq.Eq{"f.is_active": *filter.IsActive})
	}

	feeds := make([]feed.Feed, 0)
	if err = selectAll(ctx, repo.db, &feeds, b); err != nil {
		return nil, errors.Wrap(err, "listing user feeds")
	}
	return feeds, nil
}

func (repo *feedRepository) exists(ctx context.Context, b sq.SelectBuilder) (bool, error) {
	var ok bool
	if err := get(ctx, repo.db, &ok, b.Prefix("SELECT EXISTS (").Suffix(")")); err != nil {
		return false, err
	}
	return ok, nil
}

func (repo *feedRepository) IsSubscribed(ctx context.Context, userID, feedID int64) (bool, error) {
	ok, err := repo.exists(ctx, psql.Select("1").
		From("feed_categories fc").
		Join("categories c ON c.id = fc.category_id").
		Where(sq.Eq{"c.user_id": userID, "fc.feed_id": feedID}))
	if err != nil {
		return false, errors.Wrap(err, "checking subscription")
	}
	return ok, nil
}

func (repo *feedRepository) CanReadFeed(ctx context.Context, userID, feedID int64) (bool, error) {
	ok, err := repo.exists(ctx, psql.Select("1").
		From("feeds f").
		Where(sq.Eq{"f.id": feedID}).
		Where(readableBy("f.id", userID)))
	if err != nil {
		return false, errors.Wrap(err, "checking feed access")
	}
	return ok, nil
}

func (repo *feedRepository) Subscribe(ctx context.Context, sub feed.Subscription) (feed.Subscription, error) {
	b := psql.Insert("feed_categories").
		Columns("feed_id", "category_id", "created_at").
		Values(sub.FeedID, sub.CategoryID, sub.CreatedAt).
		Suffix("RETURNING id")
	if err := get(ctx, repo.db, &sub.ID, b); err != nil {
		switch {
		case isUniqueViolation(err):
			return feed.Subscription{}, feed.ErrAlreadySubscribed
		case isForeignKeyViolation(err):
			var pqErr *pq.Error
			if errors.As(err, &pqErr) && strings.Contains(pqErr.Constraint, "category") {
				return feed.Subscription{}, feed.ErrCategoryNotFound
			}
			return feed.Subscription{}, feed.ErrNotFound
		}
		return feed.Subscription{}, errors.Wrap(err, "subscribing")
	}
	return sub, nil
}

func (repo *feedRepository) Unsubscribe(ctx context.Context, userID, feedID int64) error {
	b := psql.Delete("feed_categories").
		Where(sq.Eq{"feed_id": feedID}).
		Where("category_id IN (SELECT id FROM categories WHERE user_id = ?)", userID)
	if _, err := exec(ctx, repo.db, b); err != nil {
		return errors.Wrap(err, "unsubscribing")
	}
	return nil
}

func (repo *feedRepository) ListDueFeeds(ctx context.Context, now time.Time) ([]feed.Feed, error) {
	b := psql.Select(feedColumns...).
		From("feeds f").
		Where("f.is_active").
		Where("(f.last_update IS NULL OR f.last_update + make_interval(hours => f.update_frequency_hours) <= ?)", now.UTC()).
		OrderBy("f.id")

	feeds := make([]feed.Feed, 0)
	if err := selectAll(ctx, repo.db, &feeds, b); err != nil {
		return nil, errors.Wrap(err, "listing due feeds")
	}
	return feeds, nil
}

// Articles

func (repo *feedRepository) SaveArticles(ctx context.Context, feedID int64, arts []feed.Article, fetchedAt time.Time) (int, error) {
	var inserted int64
	err := withTx(ctx, repo.db, func(tx *sqlx.Tx) error {
		n, err := exec(ctx, tx, psql.Update("feeds").Set("last_update", fetchedAt).Where(sq.Eq{"id": feedID}))
		if err != nil {
			return errors.Wrap(err, "setting feed last update")
		}
		if n == 0 {
			return feed.ErrNotFound
		}
		if len(arts) == 0 {
			return nil
		}

		b := psql.Insert("articles").
			Columns("feed_id", "title", "link", "guid", "author", "content", "summary", "published_at", "fetched_at", "updated_at").
			Suffix("ON CONFLICT (feed_id, guid) DO NOTHING")
		for _, a := range arts {
			b = b.Values(feedID, a.Title, a.Link, a.GUID, a.Author, a.Content, a.Summary, a.PublishedAt, fetchedAt, fetchedAt)
		}
		if inserted, err = exec(ctx, tx, b); err != nil {
			return errors.Wrap(err, "inserting articles")
		}
		return nil
	})
	return int(inserted), err
}

func (repo *feedRepository) ListArticles(ctx context.Context, userID int64, filter feed.ArticleFilter) ([]feed.Article, int, error) {
	b := articles(userID)
	if filter.CategoryID != 0 {
		b = b.Where(`a.feed_id IN (SELECT fc.feed_id FROM feed_categories fc JOIN categories c ON c.id = fc.category_id
			WHERE c.user_id = ? AND c.id = ?)`, userID, filter.CategoryID)
	} else {
		b = b.Where("a.feed_id IN ("+subscribedFeedsQuery+")", userID)
	}
	if filter.FeedID != 0 {
		b = b.Where(sq.Eq{"a.feed_id": filter.FeedID})
	}
	if !filter.From.IsZero() {
		b = b.Where(sq.GtOrEq{"a.published_at": filter.From.UTC()})
	}
	if !filter.To.IsZero() {
		b = b.Where(sq.LtOrEq{"a.published_at": filter.To.UTC()})
	}
	if filter.Search != "" {
		val := containsPattern(filter.Search)
		b = b.Where(sq.Or{sq.ILike{"a.title": val}, sq.ILike{"a.summary": val}, sq.ILike{"a.content": val}})
	}
	if filter.UnreadOnly {
		b = b.Where("NOT COALESCE(s.is_read, FALSE)")
	}
	if filter.FavoritesOnly {
		b = b.Where("COALESCE(s.is_favorite, FALSE)")
	}

	total, err := count(ctx, repo.db, b)
	if err != nil {
		return nil, 0, errors.Wrap(err, "counting articles")
	}

	direction := "DESC"
	if filter.SortOrder == feed.SortAsc {
		direction = "ASC"
	}
	if filter.SortBy == feed.SortByTitle {
		b = b.OrderBy("a.title " + direction)
	}
	b = b.OrderBy("a.published_at "+direction, "a.id DESC").
		Limit(uint64(filter.Limit)).
		Offset(uint64(filter.Offset))

	arts := make([]feed.Article, 0)
	if err = selectAll(ctx, repo.db, &arts, b); err != nil {
		return nil, 0, errors.Wrap(err, "listing articles")
	}
	return arts, total, nil
}

func (repo *feedRepository) GetArticle(ctx context.Context, userID, articleID int64) (feed.Article, error) {
	var a feed.Article
	if err := get(ctx, repo.db, &a, articles(userID).Where(sq.Eq{"a.id": articleID})); err != nil {
		return feed.Article{}, trapNoRowsErr(err, feed.ErrArticleNotFound, "getting article")
	}
	return a, nil
}

func (repo *feedRepository) CanReadArticle(ctx context.Context, userID, articleID int64) (bool, error) {
	ok, err := repo.exists(ctx, psql.Select("1").
		From("articles a").
		Where(sq.Eq{"a.id": articleID}).
		Where(readableBy("a.feed_id", userID)))
	if err != nil {
		return false, errors.Wrap(err, "checking article access")
	}
	return ok, nil
}

func (repo *feedRepository) GetStatus(ctx context.Context, userID, articleID int64) (feed.Status, error) {
	b := psql.Select(statusColumns...).From("article_statuses").Where(sq.Eq{"user_id": userID, "article_id": articleID})

	var s feed.Status
	if err := get(ctx, repo.db, &s, b); err != nil {
		return feed.Status{}, trapNoRowsErr(err, feed.ErrStatusNotFound, "getting status")
	}
	return s, nil
}

// SaveStatus inserts the status, or updates the one of the same user & article.
func (repo *feedRepository) SaveStatus(ctx context.Context, s feed.Status) (feed.Status, error) {
	b := psql.Insert("article_statuses").
		Columns(statusColumns[1:]...).
		Values(s.UserID, s.ArticleID, s.IsRead, s.IsFavorite, s.ReadAt, s.FavoritedAt, s.CreatedAt, s.UpdatedAt).
		Suffix(`ON CONFLICT (user_id, article_id) DO UPDATE SET
			is_read = EXCLUDED.is_read,
			is_favorite = EXCLUDED.is_favorite,
			read_at = EXCLUDED.read_at,
			favorited_at = EXCLUDED.favorited_at
			RETURNING id, created_at, updated_at`)

	var res struct {
		ID        int64     `db:"id"`
		CreatedAt time.Time `db:"created_at"`
		UpdatedAt time.Time `db:"updated_at"`
	}
	if err := get(ctx, repo.db, &res, b); err != nil {
		if isForeignKeyViolation(err) {
			return feed.Status{}, feed.ErrArticleNotFound
		}
		return feed.Status{}, errors.Wrap(err, "saving status")
	}
	s.ID, s.CreatedAt, s.UpdatedAt = res.ID, res.CreatedAt, res.UpdatedAt
	return s, nil
}

func (repo *feedRepository) ListFavorites(ctx context.Context, userID int64, p core.Pagination) ([]feed.Article, int, error) {
	b := psql.Select(articleColumns...).
		From("articles a").
		Join("feeds f ON f.id = a.feed_id").
		Join("article_statuses s ON s.article_id = a.id AND s.user_id = ?", userID).
		Where("s.is_favorite")

	total, err := count(ctx, repo.db, b)
	if err != nil {
		return nil, 0, errors.Wrap(err, "counting favorites")
	}

	arts := make([]feed.Article, 0)
	if err = selectAll(ctx, repo.db, &arts, paginate(b.OrderBy("s.favorited_at DESC", "a.id DESC"), p)); err != nil {
		return nil, 0, errors.Wrap(err, "listing favorites")
	}
	return arts, total, nil
}

func (repo *feedRepository) CountUnread(ctx context.Context, userID int64, filter feed.UnreadCountFilter) (int, error) {
	b := psql.Select("COUNT(DISTINCT id)").From("user_articles_view").Where(sq.Eq{"user_id": userID}).Where("NOT is_read")
	if filter.CategoryID != 0 {
		b = b.Where(sq.Eq{"category_id": filter.CategoryID})
	}
	if filter.FeedID != 0 {
		b = b.Where(sq.Eq{"feed_id": filter.FeedID})
	}

	var n int
	if err := get(ctx, repo.db, &n, b); err != nil {
		return 0, errors.Wrap(err, "counting unread articles")
	}
	return n, nil
}

// DeleteArticlesBefore deletes the articles published before `before` that nobody has favorited.
func (repo *feedRepository) DeleteArticlesBefore(ctx context.Context, before time.Time) (int, error) {
	b := psql.Delete("articles").
		Where(sq.Lt{"published_at": before.UTC()}).
		Where("NOT EXISTS (SELECT 1 FROM article_statuses s WHERE s.article_id = articles.id AND s.is_favorite)")
	n, err := exec(ctx, repo.db, b)
	if err != nil {
		return 0, errors.Wrap(err, "deleting old articles")
	}
	return int(n), nil
}

// Categories

func (repo *feedRepository) CreateCategory(ctx context.Context, c feed.Category) (feed.Category, error) {
	b := psql.Insert("categories").
		Columns("user_id", "name", "color", "created_at", "updated_at").
		Values(c.UserID, c.Name, c.Color, c.CreatedAt, c.UpdatedAt).
		Suffix("RETURNING id")
	if err := get(ctx, repo.db, &c.ID, b); err != nil {
		if isUniqueViolation(err) {
			return feed.Category{}, feed.ErrCategoryExists
		}
		return feed.Category{}, errors.Wrap(err, "inserting category")
	}
	c.FeedCount = 0
	return c, nil
}

func (repo *feedRepository) getCategory(ctx context.Context, where ...sq.Sqlizer) (feed.Category, error) {
	b := psql.Select(categoryColumns...).From("categories c")
	for _, w := range where {
		b = b.Where(w)
	}
	var c feed.Category
	if err := get(ctx, repo.db, &c, b); err != nil {
		return feed.Category{}, trapNoRowsErr(err, feed.ErrCategoryNotFound, "getting category")
	}
	return c, nil
}

func (repo *feedRepository) GetCategory(ctx context.Context, userID, id int64) (feed.Category, error) {
	return repo.getCategory(ctx, sq.Eq{"c.id": id, "c.user_id": userID})
}

func (repo *feedRepository) GetCategoryByName(ctx context.Context, userID int64, name string) (feed.Category, error) {
	return repo.getCategory(ctx, sq.Eq{"c.user_id": userID}, sq.Expr("LOWER(c.name) = LOWER(?)", name))
}

func (repo *feedRepository) ListCategories(ctx context.Context, userID int64) ([]feed.Category, error) {
	b := psql.Select(categoryColumns...).From("categories c").Where(sq.Eq{"c.user_id": userID}).OrderBy("LOWER(c.name)")

	cats := make([]feed.Category, 0)
	if err := selectAll(ctx, repo.db, &cats, b); err != nil {
		return nil, errors.Wrap(err, "listing categories")
	}
	return cats, nil
}

func (repo *feedRepository) UpdateCategory(ctx context.Context, c feed.Category) (feed.Category, error) {
	b := psql.Update("categories").Set("name", c.Name).Set("color", c.Color).Where(sq.Eq{"id": c.ID})
	n, err := exec(ctx, repo.db, b)
	if err != nil {
		if isUniqueViolation(err) {
			return feed.Category{}, feed.ErrCategoryExists
		}
		return feed.Category{}, errors.Wrap(err, "updating category")
	}
	if n == 0 {
		return feed.Category{}, feed.ErrCategoryNotFound
	}
	return repo.GetCategory(ctx, c.UserID, c.ID)
}

func (repo *feedRepository) DeleteCategory(ctx context.Context, id, moveTo int64) error {
	return withTx(ctx, repo.db, func(tx *sqlx.Tx) error {
		move := psql.Update("feed_categories").
			Set("category_id", moveTo).
			Where(sq.Eq{"category_id": id}).
			Where("feed_id NOT IN (SELECT feed_id FROM feed_categories WHERE category_id = ?)", moveTo)
		if _, err := exec(ctx, tx, move); err != nil {
			return errors.Wrap(err, "moving feeds")
		}

		// the remaining subscriptions were already in `moveTo` & go with the cascade
		n, err := exec(ctx, tx, psql.Delete("categories").Where(sq.Eq{"id": id}))
		if err != nil {
			return errors.Wrap(err, "deleting category")
		}
		if n == 0 {
			return feed.ErrCategoryNotFound
		}
		return nil
	})
}

func (repo *feedRepository) MoveFeed(ctx context.Context, feedID, fromCategoryID, toCategoryID int64) error {
	b := psql.Update("feed_categories").
		Set("category_id", toCategoryID).
		Where(sq.Eq{"feed_id": feedID, "category_id": fromCategoryID})
	n, err := exec(ctx, repo.db, b)
	if err != nil {
		if isUniqueViolation(err) {
			return feed.ErrAlreadySubscribed
		}
		return errors.Wrap(err, "moving feed")
	}
	if n == 0 {
		return feed.ErrNotSubscribed
	}
	return nil
}
