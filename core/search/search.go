// Package search implements the global search over the articles, feeds, collections & comments a user can see.
package search

import (
	"context"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"

	"github.com/suprss/suprss/core"
	"github.com/suprss/suprss/core/collection"
	"github.com/suprss/suprss/core/feed"
	"github.com/suprss/suprss/core/interaction"
)

const (
	TypeArticles    = "articles"
	TypeFeeds       = "feeds"
	TypeCollections = "collections"
	TypeComments    = "comments"

	DefaultLimitPerType = 10
	MaxLimitPerType     = 50
	MaxSuggestions      = 10

	snippetLen = 150
)

var AllTypes = []string{TypeArticles, TypeFeeds, TypeCollections, TypeComments}

type (
	Query struct {
		Query        string   `json:"query" validate:"required,min=2,max=200"`
		Types        []string `json:"types" validate:"omitempty,dive,oneof=articles feeds collections comments"`
		LimitPerType int      `json:"limit_per_type" validate:"min=0,max=50"`
	}

	Result struct {
		Type           string                 `json:"type"`
		ID             int64                  `json:"id"`
		Title          string                 `json:"title"`
		Description    string                 `json:"description"`
		URL            string                 `json:"url"`
		MatchSnippet   string                 `json:"match_snippet"`
		RelevanceScore float64                `json:"relevance_score"`
		Metadata       map[string]interface{} `json:"metadata"`
	}

	Response struct {
		Query   string              `json:"query"`
		Total   int                 `json:"total"`
		Results map[string][]Result `json:"results"`
		TookMS  int64               `json:"took_ms"`
	}

	Repository interface {
		SearchArticles(ctx context.Context, userID int64, q string, limit int) ([]feed.Article, error)
		SearchFeeds(ctx context.Context, userID int64, q string, limit int) ([]feed.Feed, error)
		SearchCollections(ctx context.Context, userID int64, q string, limit int) ([]collection.Collection, error)
		SearchComments(ctx context.Context, userID int64, q string, limit int) ([]interaction.Comment, error)
		// Suggestions returns article titles, feed names & collection names starting with `prefix`.
		Suggestions(ctx context.Context, userID int64, prefix string, limit int) ([]string, error)
	}

	Service struct {
		repo Repository
	}
)

func (q *Query) Validate(validate *validator.Validate) error {
	q.Query = core.CleanString(q.Query)
	if err := validate.Struct(q); err != nil {
		return err
	}
	if len(q.Types) == 0 {
		q.Types = AllTypes
	}
	if q.LimitPerType == 0 {
		q.LimitPerType = DefaultLimitPerType
	}
	return nil
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// Search runs the query against every requested type. Results of each type are sorted by relevance.
func (svc *Service) Search(ctx context.Context, userID int64, q Query) (Response, error) {
	start := time.Now()
	resp := Response{Query: q.Query, Results: make(map[string][]Result, len(q.Types))}

	for _, typ := range q.Types {
		var (
			results []Result
			err     error
		)
		switch typ {
		case TypeArticles:
			results, err = svc.searchArticles(ctx, userID, q)
		case TypeFeeds:
			results, err = svc.searchFeeds(ctx, userID, q)
		case TypeCollections:
			results, err = svc.searchCollections(ctx, userID, q)
		case TypeComments:
			results, err = svc.searchComments(ctx, userID, q)
		default:
			continue
		}
		if err != nil {
			return Response{}, errors.Wrapf(err, "searching %s", typ)
		}
		sortByScore(results)
		resp.Results[typ] = results
		resp.Total += len(results)
	}

	resp.TookMS = time.Since(start).Milliseconds()
	return resp, nil
}

func (svc *Service) searchArticles(ctx context.Context, userID int64, q Query) ([]Result, error) {
	arts, err := svc.repo.SearchArticles(ctx, userID, q.Query, q.LimitPerType)
	if err != nil {
		return nil, err
	}
	now := time.Now()
	results := make([]Result, 0, len(arts))
	for _, a := range arts {
		text := a.Content
		if text == "" {
			text = a.Summary
		}
		score := scoreFields(q.Query,
			weighted{a.Title, 3}, weighted{a.Summary, 2}, weighted{a.Author, 1.5}, weighted{a.Content, 1})
		results = append(results, Result{
			Type:           TypeArticles,
			ID:             a.ID,
			Title:          a.Title,
			Description:    core.Ellipsize(a.Summary, 300),
			URL:            a.Link,
			MatchSnippet:   Snippet(text, q.Query),
			RelevanceScore: score + recencyBonus(a.PublishedAt, now),
			Metadata: map[string]interface{}{
				"feed_id":      a.FeedID,
				"feed_name":    a.FeedName,
				"author":       a.Author,
				"published_at": a.PublishedAt,
				"is_read":      a.IsRead,
				"is_favorite":  a.IsFavorite,
			},
		})
	}
	return results, nil
}

func (svc *Service) searchFeeds(ctx context.Context, userID int64, q Query) ([]Result, error) {
	feeds, err := svc.repo.SearchFeeds(ctx, userID, q.Query, q.LimitPerType)
	if err != nil {
		return nil, err
	}
	results := make([]Result, 0, len(feeds))
	for _, f := range feeds {
		results = append(results, Result{
			Type:           TypeFeeds,
			ID:             f.ID,
			Title:          f.Name,
			Description:    f.Description,
			URL:            f.URL,
			RelevanceScore: scoreFields(q.Query, weighted{f.Name, 3}, weighted{f.Description, 2}, weighted{f.URL, 1}),
			Metadata: map[string]interface{}{
				"is_active":              f.IsActive,
				"update_frequency_hours": f.UpdateFrequencyHours,
				"last_update":            f.LastUpdate,
			},
		})
	}
	return results, nil
}

func (svc *Service) searchCollections(ctx context.Context, userID int64, q Query) ([]Result, error) {
	colls, err := svc.repo.SearchCollections(ctx, userID, q.Query, q.LimitPerType)
	if err != nil {
		return nil, err
	}
	results := make([]Result, 0, len(colls))
	for _, c := range colls {
		results = append(results, Result{
			Type:           TypeCollections,
			ID:             c.ID,
			Title:          c.Name,
			Description:    c.Description,
			RelevanceScore: scoreFields(q.Query, weighted{c.Name, 3}, weighted{c.Description, 2}),
			Metadata: map[string]interface{}{
				"owner_id":       c.OwnerID,
				"owner_username": c.OwnerUsername,
				"is_shared":      c.IsShared,
			},
		})
	}
	return results, nil
}

func (svc *Service) searchComments(ctx context.Context, userID int64, q Query) ([]Result, error) {
	comments, err := svc.repo.SearchComments(ctx, userID, q.Query, q.LimitPerType)
	if err != nil {
		return nil, err
	}
	results := make([]Result, 0, len(comments))
	for _, c := range comments {
		results = append(results, Result{
			Type:           TypeComments,
			ID:             c.ID,
			Title:          "Comment by " + c.Username,
			MatchSnippet:   Snippet(c.Content, q.Query),
			RelevanceScore: scoreFields(q.Query, weighted{c.Content, 2}),
			Metadata: map[string]interface{}{
				"article_id":    c.ArticleID,
				"collection_id": c.CollectionID,
				"user_id":       c.UserID,
				"created_at":    c.CreatedAt,
			},
		})
	}
	return results, nil
}

// Suggestions returns up to `limit` distinct completions for `prefix`.
func (svc *Service) Suggestions(ctx context.Context, userID int64, prefix string, limit int) ([]string, error) {
	prefix = core.CleanString(prefix)
	if utf8.RuneCountInString(prefix) < 2 {
		return []string{}, nil
	}
	if limit <= 0 || limit > MaxSuggestions {
		limit = MaxSuggestions
	}
	raw, err := svc.repo.Suggestions(ctx, userID, prefix, limit)
	if err != nil {
		return nil, errors.Wrap(err, "getting suggestions")
	}

	seen := make(map[string]bool, len(raw))
	out := make([]string, 0, limit)
	for _, s := range raw {
		s = core.Truncate(s, 100)
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

type weighted struct {
	text   string
	weight float64
}

// scoreFields sums the weights of the fields containing the query (case insensitive).
func scoreFields(q string, fields ...weighted) float64 {
	lq := strings.ToLower(q)
	var score float64
	for _, f := range fields {
		if f.text != "" && strings.Contains(strings.ToLower(f.text), lq) {
			score += f.weight
		}
	}
	return score
}

// recencyBonus favors recently published articles.
func recencyBonus(published, now time.Time) float64 {
	age := now.Sub(published)
	switch {
	case age < 7*24*time.Hour:
		return 1
	case age < 30*24*time.Hour:
		return .5
	}
	return 0
}

func sortByScore(results []Result) {
	sort.SliceStable(results, func(i, j int) bool { return results[i].RelevanceScore > results[j].RelevanceScore })
}

// Snippet returns about 150 runes of `text` around the first match of `q`, with "..." markers when cut.
func Snippet(text, q string) string {
	text = core.CleanString(text)
	if text == "" {
		return ""
	}
	runes := []rune(text)
	lower := []rune(strings.ToLower(text))
	lq := []rune(strings.ToLower(q))

	idx := indexRunes(lower, lq)
	if idx < 0 || len(lower) != len(runes) {
		return core.Ellipsize(text, snippetLen)
	}

	start := idx - snippetLen/2
	if start < 0 {
		start = 0
	}
	end := idx + len(lq) + snippetLen/2
	if end > len(runes) {
		end = len(runes)
	}

	snippet := string(runes[start:end])
	if start > 0 {
		snippet = "..." + snippet
	}
	if end < len(runes) {
		snippet += "..."
	}
	return snippet
}

func indexRunes(s, sub []rune) int {
	if len(sub) == 0 {
		return 0
	}
outer:
	for i := 0; i+len(sub) <= len(s); i++ {
		for j := range sub {
			if s[i+j] != sub[j] {
				continue outer
			}
		}
		return i
	}
	return -1
}
