package collection

import (
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/suprss/suprss/core"
	"github.com/suprss/suprss/core/feed"
)

type Role string

const (
	RoleOwner         Role = "owner"
	RoleAdministrator Role = "administrator"
	RoleModerator     Role = "moderator"
	RoleMember        Role = "member"
)

func (r Role) IsValid() bool {
	switch r {
	case RoleOwner, RoleAdministrator, RoleModerator, RoleMember:
		return true
	}
	return false
}

// Permission is a single member capability.
type Permission int

const (
	PermAddFeed Permission = iota
	PermRead
	PermComment
	PermEdit
	PermDelete
)

var permissionNames = map[Permission]string{
	PermAddFeed: "can_add_feed",
	PermRead:    "can_read",
	PermComment: "can_comment",
	PermEdit:    "can_edit",
	PermDelete:  "can_delete",
}

func (p Permission) String() string { return permissionNames[p] }

type Permissions struct {
	CanAddFeed bool `json:"can_add_feed" db:"can_add_feed"`
	CanRead    bool `json:"can_read" db:"can_read"`
	CanComment bool `json:"can_comment" db:"can_comment"`
	CanEdit    bool `json:"can_edit" db:"can_edit"`
	CanDelete  bool `json:"can_delete" db:"can_delete"`
}

// Has reports whether the capability flag of `p` is set.
func (perms Permissions) Has(p Permission) bool {
	switch p {
	case PermAddFeed:
		return perms.CanAddFeed
	case PermRead:
		return perms.CanRead
	case PermComment:
		return perms.CanComment
	case PermEdit:
		return perms.CanEdit
	case PermDelete:
		return perms.CanDelete
	}
	return false
}

// Apply overrides the flags set in the patch.
func (perms Permissions) Apply(patch *PermissionsPatch) Permissions {
	if patch == nil {
		return perms
	}
	if patch.CanAddFeed != nil {
		perms.CanAddFeed = *patch.CanAddFeed
	}
	if patch.CanRead != nil {
		perms.CanRead = *patch.CanRead
	}
	if patch.CanComment != nil {
		perms.CanComment = *patch.CanComment
	}
	if patch.CanEdit != nil {
		perms.CanEdit = *patch.CanEdit
	}
	if patch.CanDelete != nil {
		perms.CanDelete = *patch.CanDelete
	}
	return perms
}

// DefaultPermissions returns the capability flags a role grants by default.
func DefaultPermissions(role Role) Permissions {
	switch role {
	case RoleOwner:
		return Permissions{CanAddFeed: true, CanRead: true, CanComment: true, CanEdit: true, CanDelete: true}
	case RoleAdministrator:
		return Permissions{CanAddFeed: true, CanRead: true, CanComment: true, CanEdit: true}
	case RoleModerator, RoleMember:
		return Permissions{CanAddFeed: true, CanRead: true, CanComment: true}
	}
	return Permissions{}
}

type Collection struct {
	ID          int64     `json:"id" db:"id"`
	Name        string    `json:"name" db:"name"`
	Description string    `json:"description" db:"description"`
	OwnerID     int64     `json:"owner_id" db:"owner_id"`
	IsShared    bool      `json:"is_shared" db:"is_shared"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time `json:"updated_at" db:"updated_at"`

	// listings
	OwnerUsername string       `json:"owner_username" db:"owner_username"`
	FeedCount     int          `json:"feed_count" db:"feed_count"`
	MemberCount   int          `json:"member_count" db:"member_count"`
	MyRole        Role         `json:"my_role,omitempty" db:"my_role"`
	MyPermissions *Permissions `json:"my_permissions,omitempty" db:"-"`
}

type Member struct {
	ID           int64     `json:"id" db:"id"`
	CollectionID int64     `json:"collection_id" db:"collection_id"`
	UserID       int64     `json:"user_id" db:"user_id"`
	Username     string    `json:"username" db:"username"`
	Email        string    `json:"email" db:"email"`
	Role         Role      `json:"role" db:"role"`
	JoinedAt     time.Time `json:"joined_at" db:"joined_at"`
	Permissions  `json:"permissions"`
}

func (m Member) IsOwner() bool { return m.Role == RoleOwner }

type CollectionFeed struct {
	ID           int64     `json:"id" db:"id"`
	CollectionID int64     `json:"collection_id" db:"collection_id"`
	FeedID       int64     `json:"feed_id" db:"feed_id"`
	AddedBy      int64     `json:"added_by" db:"added_by"`
	AddedAt      time.Time `json:"added_at" db:"added_at"`
	Feed         feed.Feed `json:"feed" db:"feed"`
}

// Detail is a Collection with its feeds & members.
type Detail struct {
	Collection
	Feeds   []CollectionFeed `json:"feeds"`
	Members []Member         `json:"members"`
}

type NewCollection struct {
	Name        string `json:"name" validate:"required,min=1,max=255"`
	Description string `json:"description" validate:"max=1000"`
	IsShared    bool   `json:"is_shared"`
}

func (nc *NewCollection) Validate(validate *validator.Validate) error {
	nc.Name = core.CleanString(nc.Name)
	nc.Description = core.CleanString(nc.Description)
	return validate.Struct(nc)
}

type UpdateCollection struct {
	Name        *string `json:"name" validate:"omitempty,min=1,max=255"`
	Description *string `json:"description" validate:"omitempty,max=1000"`
}

func (uc *UpdateCollection) Validate(validate *validator.Validate) error {
	if uc.Name != nil {
		name := core.CleanString(*uc.Name)
		uc.Name = &name
	}
	if uc.Description != nil {
		desc := core.CleanString(*uc.Description)
		uc.Description = &desc
	}
	return validate.Struct(uc)
}

type PermissionsPatch struct {
	CanAddFeed *bool `json:"can_add_feed"`
	CanRead    *bool `json:"can_read"`
	CanComment *bool `json:"can_comment"`
	CanEdit    *bool `json:"can_edit"`
	CanDelete  *bool `json:"can_delete"`
}

// NewMember identifies the user to add either by UserID or by Email.
type NewMember struct {
	UserID      int64             `json:"user_id" validate:"required_without=Email"`
	Email       string            `json:"email" validate:"omitempty,email"`
	Role        Role              `json:"role" validate:"omitempty,memberrole"`
	Permissions *PermissionsPatch `json:"permissions"`
}

func (nm *NewMember) Validate(validate *validator.Validate) error {
	nm.Email = core.CleanString(nm.Email, true /* lower */)
	if nm.Role == "" {
		nm.Role = RoleMember
	}
	return validate.Struct(nm)
}

type UpdateMember struct {
	Role        Role              `json:"role" validate:"omitempty,memberrole"`
	Permissions *PermissionsPatch `json:"permissions"`
}

type NewCollectionFeed struct {
	FeedID int64 `json:"feed_id" validate:"required"`
}

// ExportedCollection is a Collection with its feeds, as exported by the transfer module.
type ExportedCollection struct {
	Collection Collection
	Feeds      []feed.Feed
}
