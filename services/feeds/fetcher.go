package feedsvc

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"
	"github.com/pkg/errors"

	"github.com/suprss/suprss/core"
	"github.com/suprss/suprss/core/feed"
)

const acceptHeader = "application/atom+xml, application/rss+xml, application/xml;q=0.9, text/xml;q=0.8, */*;q=0.5"

type acceptTransport struct {
	base http.RoundTripper
}

func (t acceptTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	clone := req.Clone(req.Context())
	if clone.Header.Get("Accept") == "" {
		clone.Header.Set("Accept", acceptHeader)
	}
	return t.base.RoundTrip(clone)
}

// Fetcher downloads RSS & Atom feeds with gofeed.
type Fetcher struct {
	parser  *gofeed.Parser
	timeout time.Duration
	now     func() time.Time
}

var _ feed.Fetcher = (*Fetcher)(nil)

func NewFetcher(conf *core.Config) *Fetcher {
	fp := gofeed.NewParser()
	fp.UserAgent = conf.Feeds.UserAgent
	fp.Client = &http.Client{
		Timeout:   conf.Feeds.Timeout,
		Transport: acceptTransport{base: http.DefaultTransport},
	}
	return &Fetcher{
		parser:  fp,
		timeout: conf.Feeds.Timeout,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

func (f *Fetcher) Fetch(ctx context.Context, url string) (feed.ParsedFeed, error) {
	url = strings.TrimSpace(url)
	if url == "" {
		return feed.ParsedFeed{}, errors.New("feed url is empty")
	}
	if f.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.timeout)
		defer cancel()
	}

	parsed, err := f.parser.ParseURLWithContext(url, ctx)
	if err != nil {
		return feed.ParsedFeed{}, errors.Wrap(err, "parsing feed")
	}
	return convert(parsed, f.now()), nil
}

// Parse reads a feed document, mostly useful to check local files.
func (f *Fetcher) Parse(body string) (feed.ParsedFeed, error) {
	parsed, err := f.parser.ParseString(body)
	if err != nil {
		return feed.ParsedFeed{}, errors.Wrap(err, "parsing feed")
	}
	return convert(parsed, f.now()), nil
}

func convert(parsed *gofeed.Feed, now time.Time) feed.ParsedFeed {
	out := feed.ParsedFeed{
		Title:       core.CleanString(parsed.Title),
		Description: core.CleanString(parsed.Description),
		Entries:     make([]feed.Article, 0, len(parsed.Items)),
	}
	for _, item := range parsed.Items {
		if item == nil {
			continue
		}
		published := now
		if item.PublishedParsed != nil {
			published = item.PublishedParsed.UTC()
		} else if item.UpdatedParsed != nil {
			published = item.UpdatedParsed.UTC()
		}

		title := feed.ArticleTitle(item.Title)
		if title == "" {
			title = "Untitled"
		}
		out.Entries = append(out.Entries, feed.Article{
			GUID:        feed.ArticleGUID(item.GUID, item.Link, item.Title, published),
			Title:       title,
			Link:        strings.TrimSpace(item.Link),
			Author:      author(item),
			Content:     item.Content,
			Summary:     item.Description,
			PublishedAt: published,
		})
	}
	return out
}

func author(item *gofeed.Item) string {
	if item.Author != nil && item.Author.Name != "" {
		return core.Truncate(core.CleanString(item.Author.Name), 255)
	}
	for _, p := range item.Authors {
		if p != nil && p.Name != "" {
			return core.Truncate(core.CleanString(p.Name), 255)
		}
	}
	return ""
}
