package pgrepos

import (
	"context"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/suprss/suprss/core"
	"github.com/suprss/suprss/core/user"
)

var (
	userColumns = []string{
		"id", "username", "email", "password_hash", "first_name", "last_name", "avatar_url", "email_verified",
		"email_verified_at", "is_active", "is_admin", "dark_mode", "font_size", "last_login", "created_at", "updated_at",
	}
	userOrderFields = map[string]bool{
		"username": true, "email": true, "first_name": true, "last_name": true, "created_at": true, "last_login": true,
	}
)

type userRepository struct {
	db *sqlx.DB
}

var _ user.Repository = (*userRepository)(nil) // interface compliance check

func NewUserRepository(db *sqlx.DB) user.Repository {
	return &userRepository{db: db}
}

func (repo *userRepository) CheckUniqueness(ctx context.Context, username, email string, excludedUsers ...user.User) error {
	b := psql.Select("LOWER(username) AS username", "LOWER(email) AS email").
		From("users").
		Where(sq.Or{sq.Expr("LOWER(username) = LOWER(?)", username), sq.Expr("LOWER(email) = LOWER(?)", email)}).
		Limit(2)
	if len(excludedUsers) > 0 {
		ids := make([]int64, 0, len(excludedUsers))
		for _, u := range excludedUsers {
			ids = append(ids, u.ID)
		}
		b = b.Where(sq.NotEq{"id": ids})
	}

	var taken []struct {
		Username string `db:"username"`
		Email    string `db:"email"`
	}
	if err := selectAll(ctx, repo.db, &taken, b); err != nil {
		return errors.Wrap(err, "checking user uniqueness")
	}
	for _, t := range taken {
		if t.Username == strings.ToLower(username) {
			return user.ErrUsernameExists
		}
	}
	if len(taken) > 0 {
		return user.ErrEmailExists
	}
	return nil
}

func (repo *userRepository) CreateUser(ctx context.Context, usr user.User) (user.User, error) {
	b := psql.Insert("users").
		Columns(userColumns[1:]...).
		Values(usr.Username, usr.Email, usr.PasswordHash, usr.FirstName, usr.LastName, usr.AvatarURL, usr.EmailVerified,
			usr.EmailVerifiedAt, usr.IsActive, usr.IsAdmin, usr.DarkMode, usr.FontSize, usr.LastLogin, usr.CreatedAt, usr.UpdatedAt).
		Suffix("RETURNING id")
	if err := get(ctx, repo.db, &usr.ID, b); err != nil {
		if isUniqueViolation(err) {
			return user.User{}, user.ErrUsernameExists
		}
		return user.User{}, errors.Wrap(err, "inserting user")
	}
	return usr, nil
}

func (repo *userRepository) GetUser(ctx context.Context, filter user.GetFilter) (user.User, error) {
	b := psql.Select(userColumns...).From("users").Limit(1)
	switch {
	case filter.ID != 0:
		b = b.Where(sq.Eq{"id": filter.ID})
	case filter.Username != "":
		b = b.Where("LOWER(username) = LOWER(?)", filter.Username)
	case filter.Email != "":
		b = b.Where("LOWER(email) = LOWER(?)", filter.Email)
	case filter.UsernameOrEmail != "":
		b = b.Where("LOWER(username) = LOWER(?) OR LOWER(email) = LOWER(?)", filter.UsernameOrEmail, filter.UsernameOrEmail)
	default:
		return user.User{}, user.ErrNotFound
	}

	var usr user.User
	if err := get(ctx, repo.db, &usr, b); err != nil {
		return user.User{}, trapNoRowsErr(err, user.ErrNotFound, "getting user")
	}
	return usr, nil
}

func (repo *userRepository) FilterUsers(ctx context.Context, filter user.QueryFilter, ordering ...core.DBOrdering) ([]user.User, error) {
	b := psql.Select(userColumns...).From("users")

	// users with Username, Email, FirstName or LastName matching the search keyword
	if filter.Search != "" {
		val := containsPattern(filter.Search)
		b = b.Where(sq.Or{
			sq.ILike{"username": val}, sq.ILike{"email": val}, sq.ILike{"first_name": val}, sq.ILike{"last_name": val},
		})
	}
	if filter.IsActive != nil {
		b = b.Where(sq.Eq{"is_active": *filter.IsActive})
	}
	if filter.IsAdmin != nil {
		b = b.Where(sq.Eq{"is_admin": *filter.IsAdmin})
	}
	if !filter.CreatedFrom.IsZero() {
		b = b.Where(sq.GtOrEq{"created_at": filter.CreatedFrom.UTC()})
	}
	if !filter.CreatedTo.IsZero() {
		b = b.Where(sq.LtOrEq{"created_at": filter.CreatedTo.UTC()})
	}

	orderList := make([]string, 0, len(ordering)+1)
	for _, ord := range ordering {
		if userOrderFields[ord.Field] {
			orderList = append(orderList, ord.String())
		}
	}
	b = b.OrderBy(append(orderList, "id ASC")...)

	users := make([]user.User, 0)
	if err := selectAll(ctx, repo.db, &users, b); err != nil {
		return nil, errors.Wrap(err, "filtering users")
	}
	return users, nil
}

func (repo *userRepository) UpdateUser(ctx context.Context, usr user.User) (user.User, error) {
	b := psql.Update("users").
		SetMap(map[string]interface{}{
			"username":          usr.Username,
			"email":             usr.Email,
			"password_hash":     usr.PasswordHash,
			"first_name":        usr.FirstName,
			"last_name":         usr.LastName,
			"avatar_url":        usr.AvatarURL,
			"email_verified":    usr.EmailVerified,
			"email_verified_at": usr.EmailVerifiedAt,
			"is_active":         usr.IsActive,
			"is_admin":          usr.IsAdmin,
			"dark_mode":         usr.DarkMode,
			"font_size":         usr.FontSize,
			"last_login":        usr.LastLogin,
		}).
		Where(sq.Eq{"id": usr.ID}).
		Suffix("RETURNING updated_at")
	if err := get(ctx, repo.db, &usr.UpdatedAt, b); err != nil {
		if isUniqueViolation(err) {
			return user.User{}, user.ErrUsernameExists
		}
		return user.User{}, trapNoRowsErr(err, user.ErrNotFound, "updating user")
	}
	return usr, nil
}

// DeleteUsersByID deletes the users; everything they own goes with them through the FK cascades.
func (repo *userRepository) DeleteUsersByID(ctx context.Context, ids ...int64) error {
	if len(ids) == 0 {
		return nil
	}
	if _, err := exec(ctx, repo.db, psql.Delete("users").Where(sq.Eq{"id": ids})); err != nil {
		return errors.Wrap(err, "deleting users")
	}
	return nil
}

func (repo *userRepository) GetUserStats(ctx context.Context, id int64) (user.Stats, error) {
	b := psql.Select(
		"(SELECT COUNT(*) FROM article_statuses s WHERE s.user_id = u.id AND s.is_read) AS read_articles",
		"(SELECT COUNT(*) FROM article_statuses s WHERE s.user_id = u.id AND s.is_favorite) AS favorite_articles",
		`(SELECT COUNT(DISTINCT fc.feed_id) FROM feed_categories fc JOIN categories c ON c.id = fc.category_id
			WHERE c.user_id = u.id) AS feeds`,
		"(SELECT COUNT(*) FROM collection_members m WHERE m.user_id = u.id) AS collections",
		"(SELECT COUNT(*) FROM comments cm WHERE cm.user_id = u.id AND NOT cm.is_deleted) AS comments",
	).From("users u").Where(sq.Eq{"u.id": id})

	var stats user.Stats
	if err := get(ctx, repo.db, &stats, b); err != nil {
		return user.Stats{}, trapNoRowsErr(err, user.ErrNotFound, "getting user stats")
	}
	return stats, nil
}

var oauthColumns = []string{
	"id", "user_id", "provider", "provider_user_id", "provider_email", "provider_username", "created_at", "last_used_at",
}

func (repo *userRepository) GetOAuthAccount(ctx context.Context, provider, providerUserID string) (user.OAuthAccount, error) {
	b := psql.Select(oauthColumns...).
		From("oauth_accounts").
		Where(sq.Eq{"provider": provider, "provider_user_id": providerUserID})

	var acc user.OAuthAccount
	if err := get(ctx, repo.db, &acc, b); err != nil {
		return user.OAuthAccount{}, trapNoRowsErr(err, user.ErrOAuthNotFound, "getting oauth account")
	}
	return acc, nil
}

func (repo *userRepository) ListOAuthAccounts(ctx context.Context, userID int64) ([]user.OAuthAccount, error) {
	b := psql.Select(oauthColumns...).From("oauth_accounts").Where(sq.Eq{"user_id": userID}).OrderBy("provider")

	accs := make([]user.OAuthAccount, 0)
	if err := selectAll(ctx, repo.db, &accs, b); err != nil {
		return nil, errors.Wrap(err, "listing oauth accounts")
	}
	return accs, nil
}

// SaveOAuthAccount inserts the account, or updates the one of the same user & provider.
func (repo *userRepository) SaveOAuthAccount(ctx context.Context, acc user.OAuthAccount) (user.OAuthAccount, error) {
	b := psql.Insert("oauth_accounts").
		Columns(oauthColumns[1:]...).
		Values(acc.UserID, acc.Provider, acc.ProviderUserID, acc.ProviderEmail, acc.ProviderUsername, acc.CreatedAt, acc.LastUsedAt).
		Suffix(`ON CONFLICT (user_id, provider) DO UPDATE SET
			provider_user_id = EXCLUDED.provider_user_id,
			provider_email = EXCLUDED.provider_email,
			provider_username = EXCLUDED.provider_username,
			last_used_at = EXCLUDED.last_used_at
			RETURNING id, created_at`)

	var res struct {
		ID        int64     `db:"id"`
		CreatedAt time.Time `db:"created_at"`
	}
	if err := get(ctx, repo.db, &res, b); err != nil {
		return user.OAuthAccount{}, errors.Wrap(err, "saving oauth account")
	}
	acc.ID, acc.CreatedAt = res.ID, res.CreatedAt
	return acc, nil
}

func (repo *userRepository) DeleteOAuthAccount(ctx context.Context, userID int64, provider string) error {
	n, err := exec(ctx, repo.db, psql.Delete("oauth_accounts").Where(sq.Eq{"user_id": userID, "provider": provider}))
	if err != nil {
		return errors.Wrap(err, "deleting oauth account")
	}
	if n == 0 {
		return user.ErrOAuthNotFound
	}
	return nil
}
