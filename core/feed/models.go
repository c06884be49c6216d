package feed

import (
	"crypto/md5"
	"encoding/hex"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/volatiletech/null/v8"

	"github.com/suprss/suprss/core"
)

const (
	DefaultCategoryName  = "Uncategorized"
	DefaultCategoryColor = "#007bff"

	maxTitleLen = 500
	maxGUIDLen  = 500

	SortByDate  = "date"
	SortByTitle = "title"
	SortAsc     = "asc"
	SortDesc    = "desc"

	ActionMarkRead       = "mark_read"
	ActionMarkUnread     = "mark_unread"
	ActionAddFavorite    = "add_favorite"
	ActionRemoveFavorite = "remove_favorite"

	DefaultArticleLimit = 50
	MaxArticleLimit     = 200
)

type Feed struct {
	ID                   int64     `json:"id" db:"id"`
	Name                 string    `json:"name" db:"name"`
	URL                  string    `json:"url" db:"url"`
	Description          string    `json:"description" db:"description"`
	UpdateFrequencyHours int       `json:"update_frequency_hours" db:"update_frequency_hours"`
	IsActive             bool      `json:"is_active" db:"is_active"`
	LastUpdate           null.Time `json:"last_update" db:"last_update"`
	CreatedAt            time.Time `json:"created_at" db:"created_at"`
	UpdatedAt            time.Time `json:"updated_at" db:"updated_at"`
	ArticleCount         int       `json:"article_count" db:"article_count"`
}

// IsDue tells whether the feed should be polled at `now`.
func (f Feed) IsDue(now time.Time) bool {
	if !f.IsActive {
		return false
	}
	if !f.LastUpdate.Valid {
		return true
	}
	return !f.LastUpdate.Time.Add(time.Duration(f.UpdateFrequencyHours) * time.Hour).After(now)
}

type Article struct {
	ID          int64     `json:"id" db:"id"`
	FeedID      int64     `json:"feed_id" db:"feed_id"`
	FeedName    string    `json:"feed_name" db:"feed_name"`
	Title       string    `json:"title" db:"title"`
	Link        string    `json:"link" db:"link"`
	GUID        string    `json:"guid" db:"guid"`
	Author      string    `json:"author" db:"author"`
	Content     string    `json:"content" db:"content"`
	Summary     string    `json:"summary" db:"summary"`
	PublishedAt time.Time `json:"published_at" db:"published_at"`
	FetchedAt   time.Time `json:"fetched_at" db:"fetched_at"`
	UpdatedAt   time.Time `json:"updated_at" db:"updated_at"`
	IsRead      bool      `json:"is_read" db:"is_read"`
	IsFavorite  bool      `json:"is_favorite" db:"is_favorite"`
}

// Status is the per user read & favorite state of an Article.
type Status struct {
	ID          int64     `json:"id" db:"id"`
	UserID      int64     `json:"user_id" db:"user_id"`
	ArticleID   int64     `json:"article_id" db:"article_id"`
	IsRead      bool      `json:"is_read" db:"is_read"`
	IsFavorite  bool      `json:"is_favorite" db:"is_favorite"`
	ReadAt      null.Time `json:"read_at" db:"read_at"`
	FavoritedAt null.Time `json:"favorited_at" db:"favorited_at"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time `json:"updated_at" db:"updated_at"`
}

// Apply sets the fields of the StatusUpdate on the Status.
func (s *Status) Apply(su StatusUpdate, now time.Time) {
	if su.IsRead != nil {
		s.IsRead = *su.IsRead
		s.ReadAt = null.NewTime(now, s.IsRead)
	}
	if su.IsFavorite != nil {
		s.IsFavorite = *su.IsFavorite
		s.FavoritedAt = null.NewTime(now, s.IsFavorite)
	}
	s.UpdatedAt = now
}

type Category struct {
	ID        int64     `json:"id" db:"id"`
	UserID    int64     `json:"user_id" db:"user_id"`
	Name      string    `json:"name" db:"name"`
	Color     string    `json:"color" db:"color"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
	FeedCount int       `json:"feed_count" db:"feed_count"`
}

func (c Category) IsDefault() bool { return c.Name == DefaultCategoryName }

// Subscription links a Feed to a Category, thus to the Category owner.
type Subscription struct {
	ID         int64     `json:"id" db:"id"`
	FeedID     int64     `json:"feed_id" db:"feed_id"`
	CategoryID int64     `json:"category_id" db:"category_id"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
}

// ParsedFeed is the result of fetching a remote feed.
type ParsedFeed struct {
	Title       string
	Description string
	Entries     []Article
}

// ArticleGUID returns a stable identifier for a feed entry: its guid, else its link,
// else the md5 of its title & publication date.
func ArticleGUID(guid, link, title string, published time.Time) string {
	if guid = core.CleanString(guid); guid != "" {
		return core.Truncate(guid, maxGUIDLen)
	}
	if link = core.CleanString(link); link != "" {
		return core.Truncate(link, maxGUIDLen)
	}
	sum := md5.Sum([]byte(title + published.UTC().Format(time.RFC3339)))
	return hex.EncodeToString(sum[:])
}

// ArticleTitle cleans & truncates an entry title.
func ArticleTitle(title string) string {
	return core.Truncate(core.CleanString(title), maxTitleLen)
}

// NewSubscription contains information needed to subscribe a User to a Feed.
type NewSubscription struct {
	URL                  string `json:"url" validate:"required,url,max=2048"`
	Name                 string `json:"name" validate:"max=255"`
	Description          string `json:"description" validate:"max=2000"`
	CategoryID           int64  `json:"category_id"`
	UpdateFrequencyHours int    `json:"update_frequency_hours" validate:"omitempty,min=1,max=168"`
}

func (ns *NewSubscription) Validate(validate *validator.Validate) error {
	ns.URL = core.CleanString(ns.URL)
	ns.Name = core.CleanString(ns.Name)
	ns.Description = core.CleanString(ns.Description)
	return validate.Struct(ns)
}

type UpdateFeed struct {
	Name                 *string `json:"name" validate:"omitempty,min=1,max=255"`
	Description          *string `json:"description" validate:"omitempty,max=2000"`
	UpdateFrequencyHours *int    `json:"update_frequency_hours" validate:"omitempty,min=1,max=168"`
	IsActive             *bool   `json:"is_active"`
}

type FeedFilter struct {
	CategoryID int64 `query:"category_id"`
	IsActive   *bool `query:"is_active"`
}

type ArticleFilter struct {
	CategoryID    int64     `query:"category_id"`
	FeedID        int64     `query:"feed_id"`
	UnreadOnly    bool      `query:"unread_only"`
	FavoritesOnly bool      `query:"favorites_only"`
	Search        string    `query:"search" validate:"max=200"`
	From          time.Time `query:"from"`
	To            time.Time `query:"to"`
	Limit         int       `query:"limit" validate:"min=0,max=200"`
	Offset        int       `query:"offset" validate:"min=0"`
	SortBy        string    `query:"sort_by" validate:"omitempty,oneof=date title"`
	SortOrder     string    `query:"sort_order" validate:"omitempty,oneof=asc desc"`
}

// Clean applies defaults.
func (af *ArticleFilter) Clean() {
	af.Search = core.CleanString(af.Search)
	if af.Limit <= 0 {
		af.Limit = DefaultArticleLimit
	}
	if af.Limit > MaxArticleLimit {
		af.Limit = MaxArticleLimit
	}
	if af.Offset < 0 {
		af.Offset = 0
	}
	if af.SortBy == "" {
		af.SortBy = SortByDate
	}
	if af.SortOrder == "" {
		af.SortOrder = SortDesc
	}
}

type ArticleList struct {
	Items  []Article `json:"items"`
	Total  int       `json:"total"`
	Limit  int       `json:"limit"`
	Offset int       `json:"offset"`
}

type StatusUpdate struct {
	IsRead     *bool `json:"is_read"`
	IsFavorite *bool `json:"is_favorite"`
}

type BulkAction struct {
	ArticleIDs []int64 `json:"article_ids" validate:"required,min=1,max=500"`
	Action     string  `json:"action" validate:"required,oneof=mark_read mark_unread add_favorite remove_favorite"`
}

// StatusUpdate returns the StatusUpdate matching the bulk action.
func (ba BulkAction) StatusUpdate() StatusUpdate {
	t, f := true, false
	switch ba.Action {
	case ActionMarkRead:
		return StatusUpdate{IsRead: &t}
	case ActionMarkUnread:
		return StatusUpdate{IsRead: &f}
	case ActionAddFavorite:
		return StatusUpdate{IsFavorite: &t}
	case ActionRemoveFavorite:
		return StatusUpdate{IsFavorite: &f}
	}
	return StatusUpdate{}
}

type UnreadCountFilter struct {
	CategoryID int64 `query:"category_id"`
	FeedID     int64 `query:"feed_id"`
}

type NewCategory struct {
	Name  string `json:"name" validate:"required,min=1,max=100"`
	Color string `json:"color" validate:"omitempty,hexcolor6"`
}

func (nc *NewCategory) Validate(validate *validator.Validate) error {
	nc.Name = core.CleanString(nc.Name)
	nc.Color = core.CleanString(nc.Color)
	return validate.Struct(nc)
}

type UpdateCategory struct {
	Name  string `json:"name" validate:"omitempty,min=1,max=100"`
	Color string `json:"color" validate:"omitempty,hexcolor6"`
}

func (uc *UpdateCategory) Validate(validate *validator.Validate) error {
	uc.Name = core.CleanString(uc.Name)
	uc.Color = core.CleanString(uc.Color)
	return validate.Struct(uc)
}

type MoveFeed struct {
	FeedID         int64 `json:"feed_id" validate:"required"`
	FromCategoryID int64 `json:"from_category_id" validate:"required"`
	ToCategoryID   int64 `json:"to_category_id" validate:"required,nefield=FromCategoryID"`
}

// ImportedFeed is a feed entry read from an import file.
type ImportedFeed struct {
	URL                  string
	Name                 string
	Description          string
	UpdateFrequencyHours int
	Category             string
	Color                string
}

type ImportOutcome struct {
	Imported        bool
	CategoryCreated bool
}
