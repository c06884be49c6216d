package user

import (
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/volatiletech/null/v8"
	"golang.org/x/crypto/bcrypt"

	"github.com/suprss/suprss/core"
)

const (
	FontSmall  = "small"
	FontMedium = "medium"
	FontLarge  = "large"
	FontXLarge = "x-large"

	ProviderGoogle    = "google"
	ProviderMicrosoft = "microsoft"
	ProviderGithub    = "github"
)

type User struct {
	ID              int64     `json:"id" db:"id"`
	Username        string    `json:"username" db:"username"`
	Email           string    `json:"email" db:"email"`
	PasswordHash    []byte    `json:"-" db:"password_hash"`
	FirstName       string    `json:"first_name" db:"first_name"`
	LastName        string    `json:"last_name" db:"last_name"`
	AvatarURL       string    `json:"avatar_url" db:"avatar_url"`
	EmailVerified   bool      `json:"email_verified" db:"email_verified"`
	EmailVerifiedAt null.Time `json:"email_verified_at" db:"email_verified_at"`
	IsActive        bool      `json:"is_active" db:"is_active"`
	IsAdmin         bool      `json:"is_admin" db:"is_admin"`
	DarkMode        bool      `json:"dark_mode" db:"dark_mode"`
	FontSize        string    `json:"font_size" db:"font_size"`
	LastLogin       null.Time `json:"last_login" db:"last_login"` // UTC
	CreatedAt       time.Time `json:"created_at" db:"created_at"` // UTC
	UpdatedAt       time.Time `json:"updated_at" db:"updated_at"` // UTC
}

func (u *User) SetPassword(pwd string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(pwd), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	u.PasswordHash = hash
	return nil
}

func (u *User) CheckPassword(pwd string) error {
	if len(u.PasswordHash) == 0 {
		return bcrypt.ErrMismatchedHashAndPassword
	}
	return bcrypt.CompareHashAndPassword(u.PasswordHash, []byte(pwd))
}

func (u *User) HasPassword() bool { return len(u.PasswordHash) > 0 }

func (u *User) FullName() string {
	return core.CleanString(u.FirstName + " " + u.LastName)
}

// OAuthAccount links a User to an identity at an OAuth2 provider.
type OAuthAccount struct {
	ID               int64     `json:"id" db:"id"`
	UserID           int64     `json:"user_id" db:"user_id"`
	Provider         string    `json:"provider" db:"provider"`
	ProviderUserID   string    `json:"provider_user_id" db:"provider_user_id"`
	ProviderEmail    string    `json:"provider_email" db:"provider_email"`
	ProviderUsername string    `json:"provider_username" db:"provider_username"`
	CreatedAt        time.Time `json:"created_at" db:"created_at"`
	LastUsedAt       null.Time `json:"last_used_at" db:"last_used_at"`
}

// OAuthIdentity is what a provider tells us about the owner of an access token.
type OAuthIdentity struct {
	Provider       string
	ProviderUserID string
	Email          string
	Username       string
	FirstName      string
	LastName       string
	AvatarURL      string
}

type Stats struct {
	ReadArticles     int `json:"read_articles" db:"read_articles"`
	FavoriteArticles int `json:"favorite_articles" db:"favorite_articles"`
	Feeds            int `json:"feeds" db:"feeds"`
	Collections      int `json:"collections" db:"collections"`
	Comments         int `json:"comments" db:"comments"`
}

// NewUser contains information needed to register a new User.
type NewUser struct {
	Username        string `json:"username" validate:"required,min=3,max=50,alphanum_"`
	Email           string `json:"email" validate:"required,email"`
	Password        string `json:"password" validate:"required"`
	PasswordConfirm string `json:"password_confirm" validate:"required,eqfield=Password"`
	FirstName       string `json:"first_name" validate:"max=100"`
	LastName        string `json:"last_name" validate:"max=100"`
	IsAdmin         bool   `json:"-"`
}

func (nu *NewUser) Validate(validate *validator.Validate) error {
	nu.Username = core.CleanString(nu.Username, true /* lower */)
	nu.Email = core.CleanString(nu.Email, true /* lower */)
	nu.FirstName = core.CleanString(nu.FirstName)
	nu.LastName = core.CleanString(nu.LastName)
	return validate.Struct(nu)
}

// UpdateUser defines what information may be provided to modify a User's profile.
// Empty fields are left unchanged.
type UpdateUser struct {
	Username  string `json:"username" validate:"omitempty,min=3,max=50,alphanum_"`
	Email     string `json:"email" validate:"omitempty,email"`
	FirstName string `json:"first_name" validate:"max=100"`
	LastName  string `json:"last_name" validate:"max=100"`
	AvatarURL string `json:"avatar_url" validate:"omitempty,url,max=500"`
}

func (uu *UpdateUser) Validate(origUsr User, validate *validator.Validate) error {
	if uname := core.CleanString(uu.Username, true /* lower */); uname != "" {
		uu.Username = uname
	} else {
		uu.Username = origUsr.Username
	}
	if email := core.CleanString(uu.Email, true /* lower */); email != "" {
		uu.Email = email
	} else {
		uu.Email = origUsr.Email
	}
	if fname := core.CleanString(uu.FirstName); fname != "" {
		uu.FirstName = fname
	} else {
		uu.FirstName = origUsr.FirstName
	}
	if lname := core.CleanString(uu.LastName); lname != "" {
		uu.LastName = lname
	} else {
		uu.LastName = origUsr.LastName
	}
	if uu.AvatarURL = core.CleanString(uu.AvatarURL); uu.AvatarURL == "" {
		uu.AvatarURL = origUsr.AvatarURL
	}
	return validate.Struct(uu)
}

type UpdatePreferences struct {
	DarkMode *bool `json:"dark_mode"`
	FontSize string `json:"font_size" validate:"omitempty,fontsize"`
}

type ChangePassword struct {
	OldPassword        string `json:"old_password" validate:"required"`
	NewPassword        string `json:"new_password" validate:"required"`
	NewPasswordConfirm string `json:"new_password_confirm" validate:"required,eqfield=NewPassword"`
}

type ResetUserPassword struct {
	Token           string `json:"token,omitempty" validate:"required"`
	UID             string `json:"uid,omitempty" validate:"required"`
	Password        string `json:"password,omitempty" validate:"required"`
	PasswordConfirm string `json:"password_confirm,omitempty" validate:"required,eqfield=Password"`
}

type VerifyEmail struct {
	Token string `json:"token" validate:"required"`
	UID   string `json:"uid" validate:"required"`
}

type OAuthLogin struct {
	Provider    string `json:"provider" validate:"required,oauthprovider"`
	AccessToken string `json:"access_token" validate:"required"`
}

// GetFilter selects a single User. The first non-zero field wins.
type GetFilter struct {
	ID              int64
	Username        string
	Email           string
	UsernameOrEmail string
}

type QueryFilter struct {
	Search      string    `query:"search"`
	IsActive    *bool     `query:"is_active"`
	IsAdmin     *bool     `query:"is_admin"`
	CreatedFrom time.Time `query:"created_from"`
	CreatedTo   time.Time `query:"created_to"`
}

func (qf *QueryFilter) IsEmpty() bool {
	return qf.Search == "" && qf.IsActive == nil && qf.IsAdmin == nil && qf.CreatedFrom.IsZero() && qf.CreatedTo.IsZero()
}

func (qf *QueryFilter) Clean() {
	qf.Search = core.CleanString(qf.Search)
}
