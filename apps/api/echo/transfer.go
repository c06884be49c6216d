package echoapi

import (
	"fmt"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/suprss/suprss/core"
	"github.com/suprss/suprss/core/transfer"
)

type transferApi struct {
	svc      *transfer.Service
	validate *validator.Validate
}

func registerTransferAPI(g *echo.Group, authed []echo.MiddlewareFunc, svc *transfer.Service, validate *validator.Validate) {
	api := transferApi{svc: svc, validate: validate}

	tg := g.Group("/transfer", authed...)
	tg.POST("/export", api.export)
	tg.POST("/import", api.importContent)
	tg.POST("/import/file", api.importFile)
	tg.GET("/history", api.history)
}

// export sends the export file as an attachment.
func (api *transferApi) export(ctx echo.Context) error {
	userID, err := contextUserID(ctx)
	if err != nil {
		return err
	}

	data := transfer.NewExportRequest()
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to ExportRequest")
	}
	if err = data.Validate(api.validate); err != nil {
		return err
	}

	res, err := api.svc.Export(ctx.Request().Context(), userID, data)
	if err != nil {
		return errors.Wrap(err, "exporting")
	}
	ctx.Response().Header().Set(echo.HeaderContentDisposition, fmt.Sprintf("attachment; filename=%q", res.Filename))
	return ctx.Blob(http.StatusOK, res.ContentType, res.Content)
}

func (api *transferApi) importContent(ctx echo.Context) error {
	userID, err := contextUserID(ctx)
	if err != nil {
		return err
	}

	var data transfer.ImportRequest
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to ImportRequest")
	}
	if err = data.Validate(api.validate); err != nil {
		return err
	}

	res, err := api.svc.Import(ctx.Request().Context(), userID, data)
	if err != nil {
		return errors.Wrap(err, "importing")
	}
	return ctx.JSON(http.StatusOK, res)
}

// importFile imports the multipart `file` upload.
func (api *transferApi) importFile(ctx echo.Context) error {
	userID, err := contextUserID(ctx)
	if err != nil {
		return err
	}

	fh, err := ctx.FormFile("file")
	if err != nil {
		msg := "a file is required"
		return core.NewValidationError(errors.Wrap(err, "reading form file"), core.FieldError{Field: "file", Error: msg})
	}
	f, err := fh.Open()
	if err != nil {
		return errors.Wrap(err, "opening uploaded file")
	}
	defer f.Close()

	res, err := api.svc.ImportFile(
		ctx.Request().Context(),
		userID,
		fh.Filename,
		fh.Size,
		f,
		ctx.FormValue("merge_strategy"),
		parseInt64(ctx.FormValue("default_category_id")),
	)
	if err != nil {
		return errors.Wrap(err, "importing file")
	}
	return ctx.JSON(http.StatusOK, res)
}

func (api *transferApi) history(ctx echo.Context) error {
	userID, err := contextUserID(ctx)
	if err != nil {
		return err
	}
	h, err := api.svc.History(ctx.Request().Context(), userID)
	if err != nil {
		return errors.Wrap(err, "getting transfer history")
	}
	return ctx.JSON(http.StatusOK, h)
}
