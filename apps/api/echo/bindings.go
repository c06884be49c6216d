package echoapi

import (
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/suprss/suprss/core"
	"github.com/suprss/suprss/core/user"
)

var orderingParam = "ordering"

type Ordering struct {
	Orderings []core.DBOrdering
}

func (ord *Ordering) Bind(ctx echo.Context) {
	data := ctx.QueryParams()
	if len(data) == 0 {
		return
	}
	val, ok := data[orderingParam]
	if !ok || len(val) == 0 || val[0] == "" {
		return
	}

	for _, field := range strings.Split(val[0], ",") {
		field = strings.TrimSpace(field)
		descending := strings.HasPrefix(field, "-")
		if descending {
			field = field[1:] // drop "-"
		}
		if field == "" {
			continue
		}
		ord.Orderings = append(ord.Orderings, core.DBOrdering{Field: field, Ascending: !descending})
	}
}

// Requests & responses

type LoginRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type PasswordResetRequest struct {
	Email string `json:"email" validate:"required,email"`
}

type DeleteUsersRequest struct {
	IDs []int64 `json:"ids" validate:"required,min=1"`
}

type TokenResponse struct {
	Token string    `json:"token"`
	User  user.User `json:"user"`
}

type SuccessResponse struct {
	Success string `json:"success"`
}

type RefreshResponse struct {
	NewArticles int `json:"new_articles"`
}

type CountResponse struct {
	Count int `json:"count"`
}

// PageResponse is a page of items with its paging info.
type PageResponse struct {
	Items interface{} `json:"items"`
	core.PageInfo
}

// Helpers

// bindValid binds the request to `data` then validates it.
func bindValid(ctx echo.Context, validate *validator.Validate, data interface{}) error {
	if err := ctx.Bind(data); err != nil {
		return errors.Wrap(err, "binding request")
	}
	return validate.Struct(data)
}

// paramID parses the int64 path parameter `name`.
func paramID(ctx echo.Context, name string) (int64, error) {
	id, err := strconv.ParseInt(ctx.Param(name), 10, 64)
	if err != nil || id <= 0 {
		return 0, errInvalidID
	}
	return id, nil
}

// bindPagination reads the page & page_size query parameters.
func bindPagination(ctx echo.Context) core.Pagination {
	var p core.Pagination
	p.Page, _ = strconv.Atoi(ctx.QueryParam("page"))
	p.PageSize, _ = strconv.Atoi(ctx.QueryParam("page_size"))
	p.Clean()
	return p
}

func queryInt64(ctx echo.Context, name string) int64 {
	return parseInt64(ctx.QueryParam(name))
}

func parseInt64(s string) int64 {
	v, _ := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	return v
}

func queryBool(ctx echo.Context, name string) *bool {
	v, err := strconv.ParseBool(ctx.QueryParam(name))
	if err != nil {
		return nil
	}
	return &v
}
