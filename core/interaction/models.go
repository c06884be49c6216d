package interaction

import (
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/volatiletech/null/v8"

	"github.com/suprss/suprss/core"
)

const (
	DeletedContent = "[deleted]"

	ActivityComment = "comment"
	ActivityMessage = "message"

	activityPreviewLen = 100

	DefaultActivityLimit = 20
	MaxActivityLimit     = 100
)

type Comment struct {
	ID           int64      `json:"id" db:"id"`
	ArticleID    int64      `json:"article_id" db:"article_id"`
	UserID       int64      `json:"user_id" db:"user_id"`
	Username     string     `json:"username" db:"username"`
	CollectionID int64      `json:"collection_id" db:"collection_id"`
	ParentID     null.Int64 `json:"parent_id" db:"parent_id"`
	Content      string     `json:"content" db:"content"`
	IsDeleted    bool       `json:"is_deleted" db:"is_deleted"`
	IsEdited     bool       `json:"is_edited" db:"-"`
	CreatedAt    time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at" db:"updated_at"`
	Replies      []Comment  `json:"replies,omitempty" db:"-"`
}

// setEdited flags the comment as edited when it was modified after its creation.
func (c *Comment) setEdited() { c.IsEdited = c.UpdatedAt.After(c.CreatedAt) }

type Message struct {
	ID           int64     `json:"id" db:"id"`
	CollectionID int64     `json:"collection_id" db:"collection_id"`
	UserID       int64     `json:"user_id" db:"user_id"`
	Username     string    `json:"username" db:"username"`
	Content      string    `json:"content" db:"content"`
	IsEdited     bool      `json:"is_edited" db:"-"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time `json:"updated_at" db:"updated_at"`
}

func (m *Message) setEdited() { m.IsEdited = m.UpdatedAt.After(m.CreatedAt) }

type Activity struct {
	Type         string     `json:"type"`
	ID           int64      `json:"id"`
	Content      string     `json:"content"`
	UserID       int64      `json:"user_id"`
	Username     string     `json:"username"`
	CollectionID int64      `json:"collection_id"`
	ArticleID    null.Int64 `json:"article_id"`
	CreatedAt    time.Time  `json:"created_at"`
}

// preview truncates activity content to a short preview.
func preview(s string) string {
	return core.Ellipsize(s, activityPreviewLen)
}

type NewComment struct {
	ArticleID    int64  `json:"article_id" validate:"required"`
	CollectionID int64  `json:"collection_id" validate:"required"`
	ParentID     int64  `json:"parent_id"`
	Content      string `json:"content" validate:"required,min=1,max=5000"`
}

func (nc *NewComment) Validate(validate *validator.Validate) error {
	nc.Content = core.CleanString(nc.Content)
	return validate.Struct(nc)
}

type UpdateComment struct {
	Content string `json:"content" validate:"required,min=1,max=5000"`
}

func (uc *UpdateComment) Validate(validate *validator.Validate) error {
	uc.Content = core.CleanString(uc.Content)
	return validate.Struct(uc)
}

type NewMessage struct {
	Content string `json:"content" validate:"required,min=1,max=2000"`
}

func (nm *NewMessage) Validate(validate *validator.Validate) error {
	nm.Content = core.CleanString(nm.Content)
	return validate.Struct(nm)
}

type ActivityFilter struct {
	CollectionID int64 `query:"collection_id"`
	Limit        int   `query:"limit"`
}

func (af *ActivityFilter) Clean() {
	if af.Limit <= 0 {
		af.Limit = DefaultActivityLimit
	}
	if af.Limit > MaxActivityLimit {
		af.Limit = MaxActivityLimit
	}
}
