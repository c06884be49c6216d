package user

import (
	"context"
	"fmt"
	"net/mail"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/suprss/suprss/core"
)

var (
	// errors
	ErrNotFound           = core.NewNotFoundError("user not found")
	ErrEmailExists        = errors.New("a user with this email already exists")
	ErrUsernameExists     = errors.New("a user with this username already exists")
	ErrInvalidCredentials = errors.New("unable to log in with provided credentials")
	ErrAccountDeactivated = core.NewPermissionError("account deactivated")
	ErrOAuthNotFound      = core.NewNotFoundError("oauth account not found")
	ErrOAuthLastLogin     = errors.New("cannot unlink the last login method of an account without password")
	ErrProviderDisabled   = errors.New("oauth provider not supported")
)

type (
	Repository interface {
		CheckUniqueness(ctx context.Context, username, email string, excludedUsers ...User) error
		CreateUser(ctx context.Context, usr User) (User, error)
		GetUser(ctx context.Context, filter GetFilter) (User, error)
		// FilterUsers applies AND operation on available QueryFilter fields.
		// QueryFilter.Search does a case-insensitive match on one of Username, Email, FirstName or LastName.
		FilterUsers(ctx context.Context, filter QueryFilter, ordering ...core.DBOrdering) ([]User, error)
		UpdateUser(ctx context.Context, usr User) (User, error)
		DeleteUsersByID(ctx context.Context, ids ...int64) error
		GetUserStats(ctx context.Context, id int64) (Stats, error)

		GetOAuthAccount(ctx context.Context, provider, providerUserID string) (OAuthAccount, error)
		ListOAuthAccounts(ctx context.Context, userID int64) ([]OAuthAccount, error)
		SaveOAuthAccount(ctx context.Context, acc OAuthAccount) (OAuthAccount, error)
		DeleteOAuthAccount(ctx context.Context, userID int64, provider string) error
	}

	// CategoryInitializer creates the default category of newly registered users.
	CategoryInitializer interface {
		CreateDefaultCategory(ctx context.Context, userID int64) error
	}

	// IdentityVerifier resolves the owner of an OAuth2 provider access token.
	IdentityVerifier interface {
		Provider() string
		Verify(ctx context.Context, accessToken string) (OAuthIdentity, error)
	}

	Service struct {
		conf       *core.Config
		repo       Repository
		mailSvc    core.EmailService
		categories CategoryInitializer
		verifiers  map[string]IdentityVerifier
		logger     core.Logger
		resetGen   *tokenGenerator
		verifyGen  *tokenGenerator
	}
)

func NewService(
	conf *core.Config,
	repo Repository,
	mailSvc core.EmailService,
	categories CategoryInitializer,
	logger core.Logger,
	verifiers ...IdentityVerifier,
) *Service {
	svc := &Service{
		conf:       conf,
		repo:       repo,
		mailSvc:    mailSvc,
		categories: categories,
		verifiers:  make(map[string]IdentityVerifier, len(verifiers)),
		logger:     logger,
		resetGen:   newPasswordResetTokenGenerator(conf.SecretKey, conf.Server.PasswordResetTimeoutDelta),
		verifyGen:  newEmailVerificationTokenGenerator(conf.SecretKey, conf.Server.EmailVerificationTimeoutDelta),
	}
	for _, v := range verifiers {
		svc.verifiers[v.Provider()] = v
	}
	return svc
}

func (svc *Service) CheckUniqueness(ctx context.Context, uname, email string, exclUsers ...User) error {
	if err := svc.repo.CheckUniqueness(ctx, uname, email, exclUsers...); err != nil {
		var field string
		switch errors.Cause(err) {
		case ErrUsernameExists:
			field = "username"
		case ErrEmailExists:
			field = "email"
		default:
			return err
		}
		return core.NewValidationError(err, core.FieldError{Field: field, Error: err.Error()})
	}
	return nil
}

// Register creates a new User along with their default category & sends them an email verification link.
// NewUser must have been validated.
func (svc *Service) Register(ctx context.Context, nu NewUser) (User, error) {
	if err := svc.CheckUniqueness(ctx, nu.Username, nu.Email); err != nil {
		return User{}, err
	}

	now := time.Now().UTC()
	usr := User{
		Username:  nu.Username,
		Email:     nu.Email,
		FirstName: nu.FirstName,
		LastName:  nu.LastName,
		IsActive:  true,
		IsAdmin:   nu.IsAdmin,
		FontSize:  FontMedium,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := usr.SetPassword(nu.Password); err != nil {
		return User{}, errors.Wrap(err, "setting password")
	}

	usr, err := svc.repo.CreateUser(ctx, usr)
	if err != nil {
		return User{}, errors.Wrap(err, "creating user")
	}
	if err = svc.categories.CreateDefaultCategory(ctx, usr.ID); err != nil {
		return User{}, errors.Wrap(err, "creating default category")
	}

	svc.sendEmailVerificationMail(usr)
	return usr, nil
}

// Authenticate checks the credentials of a User & records their login.
func (svc *Service) Authenticate(ctx context.Context, usernameOrEmail, pwd string) (User, error) {
	usr, err := svc.GetByUsernameOrEmail(ctx, usernameOrEmail)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return User{}, core.NewValidationError(ErrInvalidCredentials)
		}
		return User{}, errors.Wrap(err, "finding user by username or email")
	}
	if err = usr.CheckPassword(pwd); err != nil {
		return User{}, core.NewValidationError(ErrInvalidCredentials)
	}
	if !usr.IsActive {
		return User{}, ErrAccountDeactivated
	}
	return svc.SetLastLogin(ctx, usr)
}

func (svc *Service) SetLastLogin(ctx context.Context, usr User) (User, error) {
	usr.LastLogin = null.TimeFrom(time.Now().UTC())
	return svc.repo.UpdateUser(ctx, usr)
}

func (svc *Service) GetByID(ctx context.Context, id int64) (User, error) {
	return svc.repo.GetUser(ctx, GetFilter{ID: id})
}

func (svc *Service) GetByUsername(ctx context.Context, uname string) (User, error) {
	return svc.repo.GetUser(ctx, GetFilter{Username: core.CleanString(uname, true /* lower */)})
}

func (svc *Service) GetByEmail(ctx context.Context, email string) (User, error) {
	return svc.repo.GetUser(ctx, GetFilter{Email: core.CleanString(email, true /* lower */)})
}

func (svc *Service) GetByUsernameOrEmail(ctx context.Context, uname string) (User, error) {
	return svc.repo.GetUser(ctx, GetFilter{UsernameOrEmail: core.CleanString(uname, true /* lower */)})
}

func (svc *Service) Filter(ctx context.Context, filter QueryFilter, ordering ...core.DBOrdering) ([]User, error) {
	return svc.repo.FilterUsers(ctx, filter, ordering...)
}

// Update saves the profile of `usr`. UpdateUser must have been validated.
// Changing the email address resets its verification.
func (svc *Service) Update(ctx context.Context, usr User, uu UpdateUser) (User, error) {
	if err := svc.CheckUniqueness(ctx, uu.Username, uu.Email, usr); err != nil {
		return User{}, err
	}

	emailChanged := uu.Email != usr.Email
	usr.Username = uu.Username
	usr.Email = uu.Email
	usr.FirstName = uu.FirstName
	usr.LastName = uu.LastName
	usr.AvatarURL = uu.AvatarURL
	usr.UpdatedAt = time.Now().UTC()
	if emailChanged {
		usr.EmailVerified = false
		usr.EmailVerifiedAt = null.Time{}
	}

	usr, err := svc.repo.UpdateUser(ctx, usr)
	if err != nil {
		return User{}, errors.Wrap(err, "updating user")
	}
	if emailChanged {
		svc.sendEmailVerificationMail(usr)
	}
	return usr, nil
}

func (svc *Service) UpdatePreferences(ctx context.Context, usr User, up UpdatePreferences) (User, error) {
	if up.DarkMode != nil {
		usr.DarkMode = *up.DarkMode
	}
	if up.FontSize != "" {
		usr.FontSize = up.FontSize
	}
	usr.UpdatedAt = time.Now().UTC()
	return svc.repo.UpdateUser(ctx, usr)
}

// ChangePassword sets a new password after checking the current one. ChangePassword must have been validated.
func (svc *Service) ChangePassword(ctx context.Context, usr User, cp ChangePassword) (User, error) {
	if err := usr.CheckPassword(cp.OldPassword); err != nil {
		msg := "invalid password"
		return User{}, core.NewValidationError(errors.New(msg), core.FieldError{Field: "old_password", Error: msg})
	}
	if err := CheckPasswordPolicy(cp.NewPassword, usr, "new_password"); err != nil {
		return User{}, err
	}
	if err := usr.SetPassword(cp.NewPassword); err != nil {
		return User{}, errors.Wrap(err, "setting password")
	}
	usr.UpdatedAt = time.Now().UTC()
	return svc.repo.UpdateUser(ctx, usr)
}

// Deactivate soft deletes a User account.
func (svc *Service) Deactivate(ctx context.Context, usr User) error {
	usr.IsActive = false
	usr.UpdatedAt = time.Now().UTC()
	_, err := svc.repo.UpdateUser(ctx, usr)
	return err
}

func (svc *Service) Delete(ctx context.Context, ids ...int64) error {
	return svc.repo.DeleteUsersByID(ctx, ids...)
}

func (svc *Service) Stats(ctx context.Context, id int64) (Stats, error) {
	return svc.repo.GetUserStats(ctx, id)
}

// RequestPasswordReset sends a password reset email to the active User with `email`.
func (svc *Service) RequestPasswordReset(ctx context.Context, email string) error {
	usr, err := svc.GetByEmail(ctx, email)
	if err != nil {
		return err
	}
	if !usr.IsActive {
		return ErrNotFound
	}
	svc.sendPasswordResetMail(usr)
	return nil
}

func (svc *Service) sendPasswordResetMail(usr User) {
	svc.sendMail(usr, "Password Reset", "password_reset", map[string]interface{}{
		"Name":  svc.displayName(usr),
		"URL":   fmt.Sprintf("%s/password-reset/%s/%s", svc.conf.FrontendBaseURL, EncodeUID(usr), svc.resetGen.makeToken(usr)),
		"Hours": int(svc.conf.Server.PasswordResetTimeoutDelta.Hours()),
	})
}

func (svc *Service) sendEmailVerificationMail(usr User) {
	svc.sendMail(usr, "Verify your email address", "email_verification", map[string]interface{}{
		"Name":  svc.displayName(usr),
		"URL":   fmt.Sprintf("%s/verify-email/%s/%s", svc.conf.FrontendBaseURL, EncodeUID(usr), svc.verifyGen.makeToken(usr)),
		"Hours": int(svc.conf.Server.EmailVerificationTimeoutDelta.Hours()),
	})
}

func (svc *Service) sendMail(usr User, subject, tmpl string, data map[string]interface{}) {
	svc.mailSvc.SendMessages(&core.EmailMessage{
		To:           []mail.Address{{Name: usr.FullName(), Address: usr.Email}},
		Subject:      fmt.Sprintf("[%s] %s", svc.conf.AppName, subject),
		TemplateName: tmpl,
		TemplateData: data,
	})
}

func (svc *Service) displayName(usr User) string {
	if name := usr.FullName(); name != "" {
		return name
	}
	return usr.Username
}

func (svc *Service) getUserFromUID(ctx context.Context, uid string) (User, error) {
	id, err := decodeUID(uid)
	if err != nil {
		return User{}, err
	}
	return svc.GetByID(ctx, id)
}

// ResetPassword sets a new password once the reset token is verified. ResetUserPassword must have been validated.
func (svc *Service) ResetPassword(ctx context.Context, data ResetUserPassword) (User, error) {
	invalidErr := func(err error) error {
		return core.NewValidationError(err, core.FieldError{Field: "token", Error: err.Error()})
	}

	usr, err := svc.getUserFromUID(ctx, data.UID)
	if err != nil {
		if err == errInvalidUID || errors.Is(err, ErrNotFound) {
			return User{}, invalidErr(errInvalidToken)
		}
		return User{}, errors.Wrap(err, "getting user from uid")
	}
	if err = svc.resetGen.verifyToken(usr, data.Token); err != nil {
		return User{}, invalidErr(err)
	}
	if err = CheckPasswordPolicy(data.Password, usr, "password"); err != nil {
		return User{}, err
	}
	if err = usr.SetPassword(data.Password); err != nil {
		return User{}, errors.Wrap(err, "setting password")
	}
	usr.UpdatedAt = time.Now().UTC()
	return svc.repo.UpdateUser(ctx, usr)
}

// VerifyEmail marks the email address of a User as verified once the token is verified.
func (svc *Service) VerifyEmail(ctx context.Context, data VerifyEmail) (User, error) {
	invalidErr := func(err error) error {
		return core.NewValidationError(err, core.FieldError{Field: "token", Error: err.Error()})
	}

	usr, err := svc.getUserFromUID(ctx, data.UID)
	if err != nil {
		if err == errInvalidUID || errors.Is(err, ErrNotFound) {
			return User{}, invalidErr(errInvalidToken)
		}
		return User{}, errors.Wrap(err, "getting user from uid")
	}
	if err = svc.verifyGen.verifyToken(usr, data.Token); err != nil {
		return User{}, invalidErr(err)
	}

	now := time.Now().UTC()
	usr.EmailVerified = true
	usr.EmailVerifiedAt = null.TimeFrom(now)
	usr.UpdatedAt = now
	return svc.repo.UpdateUser(ctx, usr)
}

// OAuthLogin resolves the identity behind a provider access token and returns the matching User.
// Unknown identities are linked to the User with the same email or get a brand new verified account.
func (svc *Service) OAuthLogin(ctx context.Context, data OAuthLogin) (User, error) {
	if _, enabled := svc.conf.OAuth.OAuthProvider(data.Provider); !enabled {
		return User{}, core.NewValidationError(ErrProviderDisabled, core.FieldError{Field: "provider", Error: ErrProviderDisabled.Error()})
	}
	verifier, ok := svc.verifiers[data.Provider]
	if !ok {
		return User{}, core.NewValidationError(ErrProviderDisabled, core.FieldError{Field: "provider", Error: ErrProviderDisabled.Error()})
	}

	identity, err := verifier.Verify(ctx, data.AccessToken)
	if err != nil {
		return User{}, core.NewValidationError(errors.Wrap(err, "verifying access token"),
			core.FieldError{Field: "access_token", Error: "invalid access token"})
	}
	identity.Email = core.CleanString(identity.Email, true /* lower */)

	var usr User
	acc, err := svc.repo.GetOAuthAccount(ctx, identity.Provider, identity.ProviderUserID)
	switch {
	case err == nil:
		if usr, err = svc.GetByID(ctx, acc.UserID); err != nil {
			return User{}, errors.Wrap(err, "getting linked user")
		}
	case errors.Is(err, ErrOAuthNotFound):
		if usr, err = svc.findOrCreateOAuthUser(ctx, identity); err != nil {
			return User{}, err
		}
		acc = OAuthAccount{
			UserID:         usr.ID,
			Provider:       identity.Provider,
			ProviderUserID: identity.ProviderUserID,
			CreatedAt:      time.Now().UTC(),
		}
	default:
		return User{}, errors.Wrap(err, "getting oauth account")
	}

	if !usr.IsActive {
		return User{}, ErrAccountDeactivated
	}

	acc.ProviderEmail = identity.Email
	acc.ProviderUsername = identity.Username
	acc.LastUsedAt = null.TimeFrom(time.Now().UTC())
	if _, err = svc.repo.SaveOAuthAccount(ctx, acc); err != nil {
		return User{}, errors.Wrap(err, "saving oauth account")
	}
	return svc.SetLastLogin(ctx, usr)
}

func (svc *Service) findOrCreateOAuthUser(ctx context.Context, identity OAuthIdentity) (User, error) {
	if identity.Email != "" {
		usr, err := svc.GetByEmail(ctx, identity.Email)
		if err == nil {
			return usr, nil
		} else if !errors.Is(err, ErrNotFound) {
			return User{}, errors.Wrap(err, "getting user by email")
		}
	}

	uname, err := svc.uniqueUsername(ctx, identity)
	if err != nil {
		return User{}, err
	}
	email := identity.Email
	if email == "" {
		email = fmt.Sprintf("%s.%s@users.noreply.suprss", identity.Provider, identity.ProviderUserID)
	}

	now := time.Now().UTC()
	usr, err := svc.repo.CreateUser(ctx, User{
		Username:        uname,
		Email:           email,
		FirstName:       core.Truncate(identity.FirstName, 100),
		LastName:        core.Truncate(identity.LastName, 100),
		AvatarURL:       core.Truncate(identity.AvatarURL, 500),
		EmailVerified:   identity.Email != "",
		EmailVerifiedAt: null.NewTime(now, identity.Email != ""),
		IsActive:        true,
		FontSize:        FontMedium,
		CreatedAt:       now,
		UpdatedAt:       now,
	})
	if err != nil {
		return User{}, errors.Wrap(err, "creating oauth user")
	}
	if err = svc.categories.CreateDefaultCategory(ctx, usr.ID); err != nil {
		return User{}, errors.Wrap(err, "creating default category")
	}
	return usr, nil
}

// uniqueUsername derives an available username from the identity, suffixing it with a counter when taken.
func (svc *Service) uniqueUsername(ctx context.Context, identity OAuthIdentity) (string, error) {
	base := identity.Username
	if base == "" {
		base = strings.SplitN(identity.Email, "@", 2)[0]
	}
	base = strings.ToLower(base)
	base = strings.Map(func(r rune) rune {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '_' || r == '-' {
			return r
		}
		return '_'
	}, base)
	if len(base) < 3 {
		base = identity.Provider + "_" + base
	}
	base = core.Truncate(base, 40)

	uname := base
	for i := 1; i <= 100; i++ {
		_, err := svc.GetByUsername(ctx, uname)
		if errors.Is(err, ErrNotFound) {
			return uname, nil
		} else if err != nil {
			return "", errors.Wrap(err, "getting user by username")
		}
		uname = base + strconv.Itoa(i)
	}
	return core.Truncate(base, 13) + "_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:12], nil
}

func (svc *Service) OAuthAccounts(ctx context.Context, usr User) ([]OAuthAccount, error) {
	return svc.repo.ListOAuthAccounts(ctx, usr.ID)
}

// UnlinkOAuthAccount removes the link to `provider`, unless it is the only way left for the User to log in.
func (svc *Service) UnlinkOAuthAccount(ctx context.Context, usr User, provider string) error {
	accs, err := svc.repo.ListOAuthAccounts(ctx, usr.ID)
	if err != nil {
		return errors.Wrap(err, "listing oauth accounts")
	}

	found := false
	for _, acc := range accs {
		if acc.Provider == provider {
			found = true
			break
		}
	}
	if !found {
		return ErrOAuthNotFound
	}
	if !usr.HasPassword() && len(accs) == 1 {
		return core.NewValidationError(ErrOAuthLastLogin)
	}
	return svc.repo.DeleteOAuthAccount(ctx, usr.ID, provider)
}
