package echoapi

import (
	"strconv"
	"time"

	"github.com/dgrijalva/jwt-go"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"

	"github.com/suprss/suprss/core"
	"github.com/suprss/suprss/core/user"
)

const (
	contextTokenKey = "userToken"
	contextUserKey  = "user"
)

// Claims represents the authorization claims transmitted via a JWT.
type Claims struct {
	jwt.StandardClaims
	OrigIssuedAt int64  `json:"oriat,omitempty"`
	Username     string `json:"username,omitempty"`
	Email        string `json:"email,omitempty"`
	IsAdmin      bool   `json:"adm,omitempty"`
}

// UserID returns the ID of the User the claims were issued for.
func (c Claims) UserID() int64 {
	id, _ := strconv.ParseInt(c.Subject, 10, 64)
	return id
}

type auth struct {
	appName          string
	secretKey        []byte
	expiration       time.Duration
	refreshExpiraton time.Duration
}

func newAuth(conf *core.Config) *auth {
	return &auth{
		appName:          conf.AppName,
		secretKey:        []byte(conf.SecretKey),
		expiration:       conf.Server.JWTExpirationDelta,
		refreshExpiraton: conf.Server.JWTRefreshExpirationDelta,
	}
}

// middleware returns the JWT auth middleware, reading the token from `lookup` ("header:Authorization" by default).
func (a *auth) middleware(lookup ...string) echo.MiddlewareFunc {
	conf := middleware.JWTConfig{
		SigningKey:    a.secretKey,
		SigningMethod: middleware.AlgorithmHS256,
		ContextKey:    contextTokenKey,
		Claims:        new(Claims),
	}
	if len(lookup) > 0 {
		conf.TokenLookup = lookup[0]
	}
	return middleware.JWTWithConfig(conf)
}

func (a *auth) userClaims(usr user.User, origIat ...int64) *Claims {
	now := time.Now()
	nownix := now.Unix()

	var oriat int64
	if len(origIat) > 0 {
		oriat = origIat[0]
	} else {
		oriat = nownix
	}

	return &Claims{
		StandardClaims: jwt.StandardClaims{
			Issuer:    a.appName,
			Subject:   strconv.FormatInt(usr.ID, 10),
			ExpiresAt: now.Add(a.expiration).Unix(),
			IssuedAt:  nownix,
		},
		OrigIssuedAt: oriat,
		Username:     usr.Username,
		Email:        usr.Email,
		IsAdmin:      usr.IsAdmin,
	}
}

// GenerateToken generates a signed JWT token string representing the user Claims.
func (a *auth) GenerateToken(claims *Claims) (string, error) {
	token := jwt.NewWithClaims(jwt.GetSigningMethod(middleware.AlgorithmHS256), claims)
	ss, err := token.SignedString(a.secretKey)
	if err != nil {
		return "", errors.Wrap(err, "signing token")
	}
	return ss, nil
}

// userToken returns a fresh token response for the User.
func (a *auth) userToken(usr user.User, origIat ...int64) (TokenResponse, error) {
	token, err := a.GenerateToken(a.userClaims(usr, origIat...))
	if err != nil {
		return TokenResponse{}, err
	}
	return TokenResponse{Token: token, User: usr}, nil
}

func getContextClaims(ctx echo.Context) (Claims, error) {
	if token, ok := ctx.Get(contextTokenKey).(*jwt.Token); ok {
		if claims, ok := token.Claims.(*Claims); ok {
			return *claims, nil
		}
	}
	return Claims{}, errUnauthorized
}

// getContextUser returns the authenticated User, loaded once per request.
func getContextUser(ctx echo.Context, svc *user.Service) (user.User, error) {
	if usr, ok := ctx.Get(contextUserKey).(user.User); ok {
		return usr, nil
	}

	claims, err := getContextClaims(ctx)
	if err != nil {
		return user.User{}, err
	}
	usr, err := svc.GetByID(ctx.Request().Context(), claims.UserID())
	if err != nil {
		if errors.Is(err, user.ErrNotFound) {
			return user.User{}, errUnauthorized
		}
		return user.User{}, errors.Wrap(err, "finding user by ID")
	}
	ctx.Set(contextUserKey, usr)
	return usr, nil
}

// contextUserID returns the authenticated User ID, from the token claims.
func contextUserID(ctx echo.Context) (int64, error) {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return 0, err
	}
	return claims.UserID(), nil
}

func (a *auth) refreshToken(ctx echo.Context, svc *user.Service) (TokenResponse, error) {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return TokenResponse{}, err
	}
	usr, err := getContextUser(ctx, svc)
	if err != nil {
		return TokenResponse{}, errors.Wrap(err, "getting context user")
	}

	// check if user is still active
	if !usr.IsActive {
		return TokenResponse{}, errAccountDeactivated
	}

	// check if refresh has not expired
	expTime := time.Unix(claims.OrigIssuedAt, 0).Add(a.refreshExpiraton)
	if time.Now().After(expTime) {
		return TokenResponse{}, errRefreshExpired
	}
	return a.userToken(usr, claims.OrigIssuedAt)
}
