package echoapi

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/suprss/suprss/core"
	"github.com/suprss/suprss/core/user"
)

type userApi struct {
	svc      *user.Service
	auth     *auth
	validate *validator.Validate
}

func registerUserAPI(
	g *echo.Group,
	a *auth,
	authed []echo.MiddlewareFunc,
	svc *user.Service,
	validate *validator.Validate,
) {
	api := userApi{svc: svc, auth: a, validate: validate}

	ug := g.Group("/users")

	// un-authed endpoints
	ug.POST("/register", api.register)
	ug.POST("/login", api.login)
	ug.POST("/oauth/login", api.oauthLogin)
	ug.POST("/password-reset", api.resetPassword)
	ug.POST("/password-reset-confirm", api.confirmPasswordReset)
	ug.POST("/verify-email", api.verifyEmail)

	// authed endpoints
	ag := ug.Group("", authed...)
	ag.POST("/refresh-token", api.refreshToken)
	ag.GET("/me", api.me)
	ag.PUT("/me", api.updateMe)
	ag.DELETE("/me", api.deactivateMe)
	ag.PUT("/me/preferences", api.updatePreferences)
	ag.POST("/me/change-password", api.changePassword)
	ag.GET("/me/stats", api.stats)
	ag.GET("/me/oauth", api.oauthAccounts)
	ag.DELETE("/me/oauth/:provider", api.unlinkOAuth)

	// admin endpoints
	adm := ag.Group("", adminMiddleware())
	adm.GET("", api.query)
	adm.DELETE("", api.destroyMultiple)
	adm.GET("/:id", api.retrieve)
	adm.DELETE("/:id", api.destroy)
}

// Handlers

func (api *userApi) register(ctx echo.Context) error {
	var data user.NewUser
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewUser")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	usr, err := api.svc.Register(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "registering user")
	}
	resp, err := api.auth.userToken(usr)
	if err != nil {
		return errors.Wrap(err, "generating token")
	}
	return ctx.JSON(http.StatusCreated, resp)
}

func (api *userApi) login(ctx echo.Context) error {
	var data LoginRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to LoginRequest")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	usr, err := api.svc.Authenticate(ctx.Request().Context(), data.Username, data.Password)
	if err != nil {
		return errors.Wrap(err, "authenticating")
	}
	resp, err := api.auth.userToken(usr)
	if err != nil {
		return errors.Wrap(err, "generating token")
	}
	return ctx.JSON(http.StatusOK, resp)
}

func (api *userApi) oauthLogin(ctx echo.Context) error {
	var data user.OAuthLogin
	if err := bindValid(ctx, api.validate, &data); err != nil {
		return err
	}

	usr, err := api.svc.OAuthLogin(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "logging in with oauth")
	}
	resp, err := api.auth.userToken(usr)
	if err != nil {
		return errors.Wrap(err, "generating token")
	}
	return ctx.JSON(http.StatusOK, resp)
}

func (api *userApi) resetPassword(ctx echo.Context) error {
	var data PasswordResetRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to PasswordResetRequest")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	if err := api.svc.RequestPasswordReset(ctx.Request().Context(), data.Email); !(err == nil || errors.Is(err, user.ErrNotFound)) {
		// do not return errors to attackers
		ctx.Logger().Errorf("%+v", errors.Wrap(err, "requesting password reset"))
	}
	return ctx.JSON(http.StatusOK, SuccessResponse{
		Success: "If the email address supplied is associated with an active account on this system, " +
			"an email will arrive in your inbox shortly with instructions to reset your password.",
	})
}

func (api *userApi) confirmPasswordReset(ctx echo.Context) error {
	var data user.ResetUserPassword
	if err := bindValid(ctx, api.validate, &data); err != nil {
		return err
	}

	if _, err := api.svc.ResetPassword(ctx.Request().Context(), data); err != nil {
		return errors.Wrap(err, "resetting password")
	}
	return ctx.JSON(http.StatusOK, SuccessResponse{Success: "Password has been reset with the new password."})
}

func (api *userApi) verifyEmail(ctx echo.Context) error {
	var data user.VerifyEmail
	if err := bindValid(ctx, api.validate, &data); err != nil {
		return err
	}

	usr, err := api.svc.VerifyEmail(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "verifying email")
	}
	return ctx.JSON(http.StatusOK, usr)
}

func (api *userApi) refreshToken(ctx echo.Context) error {
	resp, err := api.auth.refreshToken(ctx, api.svc)
	if err != nil {
		return errors.Wrap(err, "refreshing token")
	}
	return ctx.JSON(http.StatusOK, resp)
}

func (api *userApi) me(ctx echo.Context) error {
	usr, err := getContextUser(ctx, api.svc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	return ctx.JSON(http.StatusOK, usr)
}

func (api *userApi) updateMe(ctx echo.Context) error {
	usr, err := getContextUser(ctx, api.svc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	var data user.UpdateUser
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateUser")
	}
	if err = data.Validate(usr, api.validate); err != nil {
		return err
	}

	usr, err = api.svc.Update(ctx.Request().Context(), usr, data)
	if err != nil {
		return errors.Wrap(err, "updating user")
	}
	return ctx.JSON(http.StatusOK, usr)
}

func (api *userApi) deactivateMe(ctx echo.Context) error {
	usr, err := getContextUser(ctx, api.svc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	if err = api.svc.Deactivate(ctx.Request().Context(), usr); err != nil {
		return errors.Wrap(err, "deactivating user")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *userApi) updatePreferences(ctx echo.Context) error {
	usr, err := getContextUser(ctx, api.svc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	var data user.UpdatePreferences
	if err = bindValid(ctx, api.validate, &data); err != nil {
		return err
	}

	usr, err = api.svc.UpdatePreferences(ctx.Request().Context(), usr, data)
	if err != nil {
		return errors.Wrap(err, "updating preferences")
	}
	return ctx.JSON(http.StatusOK, usr)
}

func (api *userApi) changePassword(ctx echo.Context) error {
	usr, err := getContextUser(ctx, api.svc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	var data user.ChangePassword
	if err = bindValid(ctx, api.validate, &data); err != nil {
		return err
	}

	if _, err = api.svc.ChangePassword(ctx.Request().Context(), usr, data); err != nil {
		return errors.Wrap(err, "changing password")
	}
	return ctx.JSON(http.StatusOK, SuccessResponse{Success: "Password has been changed."})
}

func (api *userApi) stats(ctx echo.Context) error {
	userID, err := contextUserID(ctx)
	if err != nil {
		return err
	}
	stats, err := api.svc.Stats(ctx.Request().Context(), userID)
	if err != nil {
		return errors.Wrap(err, "getting user stats")
	}
	return ctx.JSON(http.StatusOK, stats)
}

func (api *userApi) oauthAccounts(ctx echo.Context) error {
	usr, err := getContextUser(ctx, api.svc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	accounts, err := api.svc.OAuthAccounts(ctx.Request().Context(), usr)
	if err != nil {
		return errors.Wrap(err, "listing oauth accounts")
	}
	if accounts == nil {
		accounts = []user.OAuthAccount{}
	}
	return ctx.JSON(http.StatusOK, accounts)
}

func (api *userApi) unlinkOAuth(ctx echo.Context) error {
	usr, err := getContextUser(ctx, api.svc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	if err = api.svc.UnlinkOAuthAccount(ctx.Request().Context(), usr, ctx.Param("provider")); err != nil {
		return errors.Wrap(err, "unlinking oauth account")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *userApi) query(ctx echo.Context) error {
	filter, err := bindUserFilter(ctx)
	if err != nil {
		return err
	}
	ordering := new(Ordering)
	ordering.Bind(ctx)

	users, err := api.svc.Filter(ctx.Request().Context(), filter, ordering.Orderings...)
	if err != nil {
		return errors.Wrap(err, "filtering users")
	}
	if users == nil {
		users = []user.User{}
	}
	return ctx.JSON(http.StatusOK, users)
}

func (api *userApi) retrieve(ctx echo.Context) error {
	id, err := paramID(ctx, "id")
	if err != nil {
		return err
	}
	usr, err := api.svc.GetByID(ctx.Request().Context(), id)
	if err != nil {
		return errors.Wrap(err, "finding user by ID")
	}
	return ctx.JSON(http.StatusOK, usr)
}

func (api *userApi) destroy(ctx echo.Context) error {
	id, err := paramID(ctx, "id")
	if err != nil {
		return err
	}

	// Say No to Suicide! ctxUser cannot delete themselves
	ctxUsrID, err := contextUserID(ctx)
	if err != nil {
		return err
	}
	if id == ctxUsrID {
		return errHttpForbidden
	}

	if _, err = api.svc.GetByID(ctx.Request().Context(), id); err != nil {
		return errors.Wrap(err, "finding user by ID")
	}
	if err = api.svc.Delete(ctx.Request().Context(), id); err != nil {
		return errors.Wrap(err, "deleting user")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *userApi) destroyMultiple(ctx echo.Context) error {
	var data DeleteUsersRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to DeleteUsersRequest")
	}
	if len(data.IDs) == 0 {
		return ctx.NoContent(http.StatusNoContent)
	}

	// Say No to Suicide! ctxUser cannot delete themselves
	ctxUsrID, err := contextUserID(ctx)
	if err != nil {
		return err
	}
	for _, id := range data.IDs {
		if id == ctxUsrID {
			return errHttpForbidden
		}
	}

	if err = api.svc.Delete(ctx.Request().Context(), data.IDs...); err != nil {
		return errors.Wrap(err, "deleting users")
	}
	return ctx.NoContent(http.StatusNoContent)
}

// bindUserFilter reads the user.QueryFilter from the query string. Dates are RFC3339.
func bindUserFilter(ctx echo.Context) (user.QueryFilter, error) {
	filter := user.QueryFilter{
		Search:   ctx.QueryParam("search"),
		IsActive: queryBool(ctx, "is_active"),
		IsAdmin:  queryBool(ctx, "is_admin"),
	}
	var err error
	if filter.CreatedFrom, err = queryTime(ctx, "created_from"); err != nil {
		return filter, err
	}
	if filter.CreatedTo, err = queryTime(ctx, "created_to"); err != nil {
		return filter, err
	}
	filter.Clean()
	return filter, nil
}

func queryTime(ctx echo.Context, name string) (time.Time, error) {
	v := strings.TrimSpace(ctx.QueryParam(name))
	if v == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		msg := "invalid date, expected the RFC3339 format"
		return time.Time{}, core.NewValidationError(errors.New(msg), core.FieldError{Field: name, Error: msg})
	}
	return t, nil
}

func (lr *LoginRequest) Validate(validate *validator.Validate) error {
	lr.Username = core.CleanString(lr.Username, true /* lower */)
	return validate.Struct(lr)
}

func (pr *PasswordResetRequest) Validate(validate *validator.Validate) error {
	pr.Email = core.CleanString(pr.Email, true /* lower */)
	return validate.Struct(pr)
}
