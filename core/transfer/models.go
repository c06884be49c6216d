package transfer

import (
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/volatiletech/null/v8"

	"github.com/suprss/suprss/core"
)

const (
	FormatOPML = "opml"
	FormatJSON = "json"
	FormatCSV  = "csv"

	StrategySkip    = "skip"
	StrategyReplace = "replace"
	StrategyMerge   = "merge"

	exportVersion   = "1.0"
	exportGenerator = "SUPRSS"

	sharedCollectionsOutline = "Shared collections"
	collectionCategoryPrefix = "Collection: "
)

var contentTypes = map[string]string{
	FormatOPML: "application/xml",
	FormatJSON: "application/json",
	FormatCSV:  "text/csv",
}

// fileFormats maps the accepted upload extensions to their format.
var fileFormats = map[string]string{
	".opml": FormatOPML,
	".xml":  FormatOPML,
	".json": FormatJSON,
	".csv":  FormatCSV,
}

type ExportRequest struct {
	Format             string `json:"format" validate:"required,transferformat"`
	IncludeCollections bool   `json:"include_collections"`
	IncludePersonal    bool   `json:"include_personal_feeds"`
	IncludeCategories  bool   `json:"include_categories"`
	IncludeReadStatus  bool   `json:"include_read_status"`
	IncludeFavorites   bool   `json:"include_favorites"`
	SendEmail          bool   `json:"send_email"`
}

// NewExportRequest returns an ExportRequest with the default options, to be overridden by binding.
func NewExportRequest() ExportRequest {
	return ExportRequest{
		IncludeCollections: true,
		IncludePersonal:    true,
		IncludeCategories:  true,
	}
}

func (er *ExportRequest) Validate(validate *validator.Validate) error {
	er.Format = core.CleanString(er.Format, true /* lower */)
	return validate.Struct(er)
}

type ExportResult struct {
	Content     []byte
	Filename    string
	ContentType string
}

type ImportRequest struct {
	Format            string `json:"format" validate:"required,transferformat"`
	Content           string `json:"content" validate:"required"`
	MergeStrategy     string `json:"merge_strategy" validate:"omitempty,mergestrategy"`
	DefaultCategoryID int64  `json:"default_category_id"`
	// Filename is recorded in the import log.
	Filename string `json:"-"`
}

func (ir *ImportRequest) Validate(validate *validator.Validate) error {
	ir.Format = core.CleanString(ir.Format, true /* lower */)
	ir.MergeStrategy = core.CleanString(ir.MergeStrategy, true /* lower */)
	if ir.MergeStrategy == "" {
		ir.MergeStrategy = StrategyMerge
	}
	return validate.Struct(ir)
}

type ImportResult struct {
	Success           bool                   `json:"success"`
	Imported          int                    `json:"imported_feeds"`
	Skipped           int                    `json:"skipped_feeds"`
	Errors            []string               `json:"errors"`
	CreatedCategories []string               `json:"created_categories"`
	Details           map[string]interface{} `json:"details"`
}

type ExportLog struct {
	ID        int64     `json:"id" db:"id"`
	UserID    int64     `json:"user_id" db:"user_id"`
	Format    string    `json:"format" db:"format"`
	Filename  string    `json:"filename" db:"filename"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

type ImportLog struct {
	ID            int64     `json:"id" db:"id"`
	UserID        int64     `json:"user_id" db:"user_id"`
	Format        string    `json:"format" db:"format"`
	Filename      string    `json:"filename" db:"filename"`
	FeedsImported int       `json:"feeds_imported" db:"feeds_imported"`
	CreatedAt     time.Time `json:"created_at" db:"created_at"`
}

type History struct {
	Exports []ExportLog `json:"exports"`
	Imports []ImportLog `json:"imports"`
}

// ArticleStatus is the exported read & favorite state of an article.
type ArticleStatus struct {
	GUID        string    `json:"article_guid" db:"guid"`
	Title       string    `json:"article_title" db:"title"`
	IsRead      bool      `json:"is_read,omitempty" db:"is_read"`
	ReadAt      null.Time `json:"read_at,omitempty" db:"read_at"`
	IsFavorite  bool      `json:"is_favorite,omitempty" db:"is_favorite"`
	FavoritedAt null.Time `json:"favorited_at,omitempty" db:"favorited_at"`
}

// entry is a feed read from an import file.
type entry struct {
	Name        string
	URL         string
	Description string
	Category    string
	Color       string
	Frequency   int
}
