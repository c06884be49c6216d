package inmemdb

import (
	"context"
	"sort"
	"strings"

	"github.com/suprss/suprss/core"
	"github.com/suprss/suprss/core/interaction"
	"github.com/suprss/suprss/core/user"
)

type userRepository struct {
	db *DB
}

var _ user.Repository = (*userRepository)(nil) // interface compliance check

func NewUserRepository(db *DB) user.Repository {
	return &userRepository{db: db}
}

func (repo *userRepository) query() []user.User {
	users := make([]user.User, 0, len(repo.db.users))
	for _, u := range repo.db.users {
		users = append(users, *u)
	}
	sort.Slice(users, func(i, j int) bool { return users[i].ID < users[j].ID })
	return users
}

func (repo *userRepository) CheckUniqueness(_ context.Context, username, email string, excludedUsers ...user.User) error {
	repo.db.RLock()
	defer repo.db.RUnlock()

	exclUsrsLen := len(excludedUsers)
	if exclUsrsLen > 1 {
		sort.Slice(excludedUsers, func(i, j int) bool { return excludedUsers[i].ID < excludedUsers[j].ID })
	}

	for _, usr := range repo.query() {
		if strings.EqualFold(usr.Username, username) && !isExcluded(usr, excludedUsers, exclUsrsLen) {
			return user.ErrUsernameExists
		}
		if strings.EqualFold(usr.Email, email) && !isExcluded(usr, excludedUsers, exclUsrsLen) {
			return user.ErrEmailExists
		}
	}
	return nil
}

func (repo *userRepository) CreateUser(_ context.Context, usr user.User) (user.User, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	usr.ID = repo.db.nextID()
	repo.db.users[usr.ID] = &usr
	return usr, nil
}

func (repo *userRepository) GetUser(_ context.Context, filter user.GetFilter) (user.User, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if filter.ID != 0 {
		if usr, ok := repo.db.users[filter.ID]; ok {
			return *usr, nil
		}
		return user.User{}, user.ErrNotFound
	}

	for _, usr := range repo.query() {
		switch {
		case filter.Username != "":
			if strings.EqualFold(usr.Username, filter.Username) {
				return usr, nil
			}
		case filter.Email != "":
			if strings.EqualFold(usr.Email, filter.Email) {
				return usr, nil
			}
		case filter.UsernameOrEmail != "":
			if strings.EqualFold(usr.Username, filter.UsernameOrEmail) || strings.EqualFold(usr.Email, filter.UsernameOrEmail) {
				return usr, nil
			}
		}
	}
	return user.User{}, user.ErrNotFound
}

func (repo *userRepository) FilterUsers(_ context.Context, filter user.QueryFilter, ordering ...core.DBOrdering) ([]user.User, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	search := strings.ToLower(filter.Search)
	users := make([]user.User, 0)
	for _, usr := range repo.query() {
		if search != "" &&
			!strings.Contains(strings.ToLower(usr.Username), search) &&
			!strings.Contains(strings.ToLower(usr.Email), search) &&
			!strings.Contains(strings.ToLower(usr.FirstName), search) &&
			!strings.Contains(strings.ToLower(usr.LastName), search) {
			continue
		}
		if filter.IsActive != nil && usr.IsActive != *filter.IsActive {
			continue
		}
		if filter.IsAdmin != nil && usr.IsAdmin != *filter.IsAdmin {
			continue
		}
		if !filter.CreatedFrom.IsZero() && usr.CreatedAt.Before(filter.CreatedFrom) {
			continue
		}
		if !filter.CreatedTo.IsZero() && usr.CreatedAt.After(filter.CreatedTo) {
			continue
		}
		users = append(users, usr)
	}

	if len(ordering) > 0 {
		sort.SliceStable(users, func(i, j int) bool {
			for _, ord := range ordering {
				a, b := userField(users[i], ord.Field), userField(users[j], ord.Field)
				if a == b {
					continue
				}
				if ord.Ascending {
					return a < b
				}
				return a > b
			}
			return false
		})
	}
	return users, nil
}

// userField returns a sortable representation of a User field.
func userField(usr user.User, field string) string {
	switch field {
	case "username":
		return strings.ToLower(usr.Username)
	case "email":
		return strings.ToLower(usr.Email)
	case "first_name":
		return strings.ToLower(usr.FirstName)
	case "last_name":
		return strings.ToLower(usr.LastName)
	case "created_at":
		return usr.CreatedAt.Format("20060102150405.000000000")
	case "last_login":
		return usr.LastLogin.Time.Format("20060102150405.000000000")
	}
	return ""
}

func (repo *userRepository) UpdateUser(_ context.Context, usr user.User) (user.User, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	if _, ok := repo.db.users[usr.ID]; !ok {
		return user.User{}, user.ErrNotFound
	}
	repo.db.users[usr.ID] = &usr
	return usr, nil
}

// DeleteUsersByID deletes the users along with everything they own.
func (repo *userRepository) DeleteUsersByID(_ context.Context, ids ...int64) error {
	repo.db.Lock()
	defer repo.db.Unlock()

	for _, id := range ids {
		if _, ok := repo.db.users[id]; !ok {
			continue
		}
		delete(repo.db.users, id)
		for k, acc := range repo.db.oauthAccounts {
			if acc.UserID == id {
				delete(repo.db.oauthAccounts, k)
			}
		}
		for k, c := range repo.db.categories {
			if c.UserID == id {
				repo.db.deleteCategory(k)
			}
		}
		for k, s := range repo.db.statuses {
			if s.UserID == id {
				delete(repo.db.statuses, k)
			}
		}
		for k, c := range repo.db.collections {
			if c.OwnerID == id {
				repo.db.deleteCollection(k)
			}
		}
		for k, m := range repo.db.members {
			if m.UserID == id {
				delete(repo.db.members, k)
			}
		}
		repo.db.deleteComments(func(c *interaction.Comment) bool { return c.UserID == id })
		for k, m := range repo.db.messages {
			if m.UserID == id {
				delete(repo.db.messages, k)
			}
		}
		for k, l := range repo.db.exportLogs {
			if l.UserID == id {
				delete(repo.db.exportLogs, k)
			}
		}
		for k, l := range repo.db.importLogs {
			if l.UserID == id {
				delete(repo.db.importLogs, k)
			}
		}
	}
	return nil
}

func (repo *userRepository) GetUserStats(_ context.Context, id int64) (user.Stats, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if _, ok := repo.db.users[id]; !ok {
		return user.Stats{}, user.ErrNotFound
	}
	var stats user.Stats
	for _, s := range repo.db.statuses {
		if s.UserID != id {
			continue
		}
		if s.IsRead {
			stats.ReadArticles++
		}
		if s.IsFavorite {
			stats.FavoriteArticles++
		}
	}
	stats.Feeds = len(repo.db.subscribedFeedIDs(id))
	stats.Collections = len(repo.db.memberCollectionIDs(id))
	for _, c := range repo.db.comments {
		if c.UserID == id && !c.IsDeleted {
			stats.Comments++
		}
	}
	return stats, nil
}

func (repo *userRepository) GetOAuthAccount(_ context.Context, provider, providerUserID string) (user.OAuthAccount, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	for _, acc := range repo.db.oauthAccounts {
		if acc.Provider == provider && acc.ProviderUserID == providerUserID {
			return *acc, nil
		}
	}
	return user.OAuthAccount{}, user.ErrOAuthNotFound
}

func (repo *userRepository) ListOAuthAccounts(_ context.Context, userID int64) ([]user.OAuthAccount, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	accs := make([]user.OAuthAccount, 0)
	for _, acc := range repo.db.oauthAccounts {
		if acc.UserID == userID {
			accs = append(accs, *acc)
		}
	}
	sort.Slice(accs, func(i, j int) bool { return accs[i].Provider < accs[j].Provider })
	return accs, nil
}

// SaveOAuthAccount inserts the account, or updates the one of the same user & provider.
func (repo *userRepository) SaveOAuthAccount(_ context.Context, acc user.OAuthAccount) (user.OAuthAccount, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	for _, existing := range repo.db.oauthAccounts {
		if existing.UserID == acc.UserID && existing.Provider == acc.Provider {
			acc.ID = existing.ID
			acc.CreatedAt = existing.CreatedAt
			*existing = acc
			return acc, nil
		}
	}
	acc.ID = repo.db.nextID()
	repo.db.oauthAccounts[acc.ID] = &acc
	return acc, nil
}

func (repo *userRepository) DeleteOAuthAccount(_ context.Context, userID int64, provider string) error {
	repo.db.Lock()
	defer repo.db.Unlock()

	for k, acc := range repo.db.oauthAccounts {
		if acc.UserID == userID && acc.Provider == provider {
			delete(repo.db.oauthAccounts, k)
			return nil
		}
	}
	return user.ErrOAuthNotFound
}

func isExcluded(usr user.User, excludedUsers []user.User, n int) bool {
	if n <= 0 {
		return false
	}
	idx := sort.Search(n, func(i int) bool { return excludedUsers[i].ID >= usr.ID })
	return idx < n && excludedUsers[idx].ID == usr.ID
}
