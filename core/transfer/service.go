// Package transfer imports & exports the user feeds, categories & collections in OPML, JSON or CSV.
package transfer

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"net/mail"
	"path/filepath"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/pkg/errors"

	"github.com/suprss/suprss/core"
	"github.com/suprss/suprss/core/collection"
	"github.com/suprss/suprss/core/feed"
	"github.com/suprss/suprss/core/user"
)

const historyLimit = 50

var (
	// errors
	ErrUnsupportedFormat = errors.New("unsupported format")
	ErrFileTooLarge      = errors.New("the file is too large")
	ErrFileExtension     = errors.New("the file extension must be one of: .opml, .xml, .json, .csv")
)

type (
	Repository interface {
		CreateExportLog(ctx context.Context, l ExportLog) (ExportLog, error)
		CreateImportLog(ctx context.Context, l ImportLog) (ImportLog, error)
		// ListExportLogs & ListImportLogs return the user's logs, newest first.
		ListExportLogs(ctx context.Context, userID int64, limit int) ([]ExportLog, error)
		ListImportLogs(ctx context.Context, userID int64, limit int) ([]ImportLog, error)
		// ListArticleStatuses returns the read and/or favorite articles of the feed for the user.
		ListArticleStatuses(ctx context.Context, userID, feedID int64, read, favorites bool) ([]ArticleStatus, error)
	}

	UserGetter interface {
		GetByID(ctx context.Context, id int64) (user.User, error)
	}

	FeedStore interface {
		ListCategories(ctx context.Context, userID int64) ([]feed.Category, error)
		ListFeeds(ctx context.Context, userID int64, filter feed.FeedFilter) ([]feed.Feed, error)
		Import(ctx context.Context, userID int64, in feed.ImportedFeed, strategy string, defaultCategoryID int64) (feed.ImportOutcome, error)
	}

	CollectionExporter interface {
		Export(ctx context.Context, userID int64) ([]collection.ExportedCollection, error)
	}

	Service struct {
		conf        *core.Config
		repo        Repository
		users       UserGetter
		feeds       FeedStore
		collections CollectionExporter
		mailSvc     core.EmailService
		logger      core.Logger
	}
)

func NewService(
	conf *core.Config,
	repo Repository,
	users UserGetter,
	feeds FeedStore,
	collections CollectionExporter,
	mailSvc core.EmailService,
	logger core.Logger,
) *Service {
	return &Service{
		conf:        conf,
		repo:        repo,
		users:       users,
		feeds:       feeds,
		collections: collections,
		mailSvc:     mailSvc,
		logger:      logger,
	}
}

// Export

// Export renders the user data in the requested format & logs the export.
func (svc *Service) Export(ctx context.Context, userID int64, req ExportRequest) (ExportResult, error) {
	usr, err := svc.users.GetByID(ctx, userID)
	if err != nil {
		return ExportResult{}, err
	}
	now := time.Now().UTC()
	data, err := svc.gather(ctx, usr, req, now)
	if err != nil {
		return ExportResult{}, err
	}

	var content []byte
	switch req.Format {
	case FormatOPML:
		content, err = encodeOPML(data)
	case FormatJSON:
		content, err = encodeJSON(data)
	case FormatCSV:
		content, err = encodeCSV(data)
	default:
		return ExportResult{}, core.NewValidationError(ErrUnsupportedFormat,
			core.FieldError{Field: "format", Error: ErrUnsupportedFormat.Error()})
	}
	if err != nil {
		return ExportResult{}, errors.Wrapf(err, "encoding %s export", req.Format)
	}

	res := ExportResult{
		Content:     content,
		Filename:    fmt.Sprintf("suprss_export_%s.%s", now.Format("20060102_150405"), req.Format),
		ContentType: contentTypes[req.Format],
	}
	if _, err = svc.repo.CreateExportLog(ctx, ExportLog{
		UserID:    userID,
		Format:    req.Format,
		Filename:  res.Filename,
		CreatedAt: now,
	}); err != nil {
		return ExportResult{}, errors.Wrap(err, "logging export")
	}

	if req.SendEmail {
		svc.sendExport(usr, res)
	}
	return res, nil
}

func (svc *Service) sendExport(usr user.User, res ExportResult) {
	msg := &core.EmailMessage{
		To:      []mail.Address{{Name: usr.FullName(), Address: usr.Email}},
		Subject: fmt.Sprintf("[%s] Your data export", svc.conf.AppName),
		BodyStr: fmt.Sprintf("Hello %s,\n\nPlease find attached your %s export.\n", usr.Username, svc.conf.AppName),
	}
	if err := msg.Attach(bytes.NewReader(res.Content), res.Filename, res.ContentType); err != nil {
		svc.logger.Error(fmt.Sprintf("transfer.sendExport: %v", err), err)
		return
	}
	svc.mailSvc.SendMessages(msg)
}

func (svc *Service) gather(ctx context.Context, usr user.User, req ExportRequest, now time.Time) (exportData, error) {
	data := exportData{
		User:        exportUser{Username: usr.Username, Email: usr.Email, ExportDate: now},
		Categories:  []exportCategory{},
		Collections: []exportCollection{},
	}

	if req.IncludeCategories || req.IncludePersonal {
		cats, err := svc.feeds.ListCategories(ctx, usr.ID)
		if err != nil {
			return data, errors.Wrap(err, "listing categories")
		}
		for _, cat := range cats {
			ec := exportCategory{Name: cat.Name, Color: cat.Color, Feeds: []exportFeed{}}
			if req.IncludePersonal {
				feeds, err := svc.feeds.ListFeeds(ctx, usr.ID, feed.FeedFilter{CategoryID: cat.ID})
				if err != nil {
					return data, errors.Wrap(err, "listing feeds")
				}
				for _, f := range feeds {
					ef := exportFeed{
						Name:                 f.Name,
						URL:                  f.URL,
						Description:          f.Description,
						UpdateFrequencyHours: f.UpdateFrequencyHours,
					}
					if req.IncludeReadStatus || req.IncludeFavorites {
						if ef.ArticlesStatus, err = svc.repo.ListArticleStatuses(ctx, usr.ID, f.ID,
							req.IncludeReadStatus, req.IncludeFavorites); err != nil {
							return data, errors.Wrap(err, "listing article statuses")
						}
					}
					ec.Feeds = append(ec.Feeds, ef)
				}
			}
			data.Categories = append(data.Categories, ec)
		}
	}

	if req.IncludeCollections {
		colls, err := svc.collections.Export(ctx, usr.ID)
		if err != nil {
			return data, errors.Wrap(err, "exporting collections")
		}
		for _, c := range colls {
			// only the collections the user created
			if c.Collection.OwnerID != usr.ID {
				continue
			}
			ec := exportCollection{
				Name:        c.Collection.Name,
				Description: c.Collection.Description,
				IsShared:    c.Collection.IsShared,
				Feeds:       make([]exportFeed, 0, len(c.Feeds)),
			}
			for _, f := range c.Feeds {
				ec.Feeds = append(ec.Feeds, exportFeed{Name: f.Name, URL: f.URL, Description: f.Description})
			}
			data.Collections = append(data.Collections, ec)
		}
	}
	return data, nil
}

// Import

// Import subscribes the user to every feed of the file content, following the merge strategy.
// Entries failing to import are reported in ImportResult.Errors & counted as skipped.
func (svc *Service) Import(ctx context.Context, userID int64, req ImportRequest) (ImportResult, error) {
	content := decodeContent(req.Content)

	var (
		entries []entry
		err     error
	)
	switch req.Format {
	case FormatOPML:
		entries, err = parseOPML([]byte(content))
	case FormatJSON:
		entries, err = parseJSON([]byte(content))
	case FormatCSV:
		entries, err = parseCSV(content)
	default:
		err = ErrUnsupportedFormat
	}
	if err != nil {
		return ImportResult{}, core.NewValidationError(err, core.FieldError{Field: "content", Error: err.Error()})
	}

	res := ImportResult{
		Errors:            []string{},
		CreatedCategories: []string{},
		Details: map[string]interface{}{
			"format":         req.Format,
			"merge_strategy": req.MergeStrategy,
			"total_entries":  len(entries),
		},
	}
	for _, e := range entries {
		out, err := svc.feeds.Import(ctx, userID, feed.ImportedFeed{
			URL:                  e.URL,
			Name:                 e.Name,
			Description:          e.Description,
			UpdateFrequencyHours: e.Frequency,
			Category:             e.Category,
			Color:                e.Color,
		}, req.MergeStrategy, req.DefaultCategoryID)
		if err != nil {
			res.Errors = append(res.Errors, fmt.Sprintf("%s: %v", e.URL, err))
			res.Skipped++
			continue
		}
		if !out.Imported {
			res.Skipped++
			continue
		}
		res.Imported++
		if out.CategoryCreated {
			res.CreatedCategories = append(res.CreatedCategories, e.Category)
		}
	}
	res.Success = res.Imported > 0

	filename := req.Filename
	if filename == "" {
		filename = "import." + req.Format
	}
	if _, err = svc.repo.CreateImportLog(ctx, ImportLog{
		UserID:        userID,
		Format:        req.Format,
		Filename:      core.Truncate(filename, 255),
		FeedsImported: res.Imported,
		CreatedAt:     time.Now().UTC(),
	}); err != nil {
		return res, errors.Wrap(err, "logging import")
	}
	return res, nil
}

// ImportFile imports an uploaded file. Its extension gives the format.
func (svc *Service) ImportFile(ctx context.Context, userID int64, filename string, size int64, r io.Reader, strategy string, defaultCategoryID int64) (ImportResult, error) {
	maxSize := svc.conf.Server.MaxUploadSize
	if size > maxSize {
		return ImportResult{}, core.NewValidationError(ErrFileTooLarge,
			core.FieldError{Field: "file", Error: fmt.Sprintf("the file must not exceed %d bytes", maxSize)})
	}
	format, ok := fileFormats[strings.ToLower(filepath.Ext(filename))]
	if !ok {
		return ImportResult{}, core.NewValidationError(ErrFileExtension,
			core.FieldError{Field: "file", Error: ErrFileExtension.Error()})
	}

	b, err := io.ReadAll(io.LimitReader(r, maxSize+1))
	if err != nil {
		return ImportResult{}, errors.Wrap(err, "reading file")
	}
	if int64(len(b)) > maxSize {
		return ImportResult{}, core.NewValidationError(ErrFileTooLarge,
			core.FieldError{Field: "file", Error: fmt.Sprintf("the file must not exceed %d bytes", maxSize)})
	}

	if strategy = core.CleanString(strategy, true); strategy == "" {
		strategy = StrategyMerge
	}
	switch strategy {
	case StrategySkip, StrategyReplace, StrategyMerge:
	default:
		return ImportResult{}, core.NewValidationError(errors.New("invalid merge strategy"),
			core.FieldError{Field: "merge_strategy", Error: "must be one of: skip, replace, merge"})
	}

	return svc.Import(ctx, userID, ImportRequest{
		Format:            format,
		Content:           string(b),
		MergeStrategy:     strategy,
		DefaultCategoryID: defaultCategoryID,
		Filename:          filepath.Base(filename),
	})
}

// decodeContent returns the base64 decoded content when it is valid base64 text, else the content as is.
func decodeContent(content string) string {
	trimmed := strings.TrimSpace(content)
	if trimmed == "" || strings.ContainsAny(trimmed[:1], "<{[") {
		return content
	}
	compact := strings.Join(strings.Fields(trimmed), "")
	b, err := base64.StdEncoding.DecodeString(compact)
	if err != nil || len(b) == 0 || !utf8.Valid(b) {
		return content
	}
	return string(b)
}

// History

func (svc *Service) History(ctx context.Context, userID int64) (History, error) {
	exports, err := svc.repo.ListExportLogs(ctx, userID, historyLimit)
	if err != nil {
		return History{}, errors.Wrap(err, "listing exports")
	}
	imports, err := svc.repo.ListImportLogs(ctx, userID, historyLimit)
	if err != nil {
		return History{}, errors.Wrap(err, "listing imports")
	}
	if exports == nil {
		exports = []ExportLog{}
	}
	if imports == nil {
		imports = []ImportLog{}
	}
	return History{Exports: exports, Imports: imports}, nil
}
