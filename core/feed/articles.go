package feed

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/suprss/suprss/core"
)

// ListArticles returns the articles of the user's feeds matching the filter, with their read & favorite state.
func (svc *Service) ListArticles(ctx context.Context, userID int64, filter ArticleFilter) (ArticleList, error) {
	filter.Clean()
	items, total, err := svc.repo.ListArticles(ctx, userID, filter)
	if err != nil {
		return ArticleList{}, errors.Wrap(err, "listing articles")
	}
	if items == nil {
		items = []Article{}
	}
	return ArticleList{Items: items, Total: total, Limit: filter.Limit, Offset: filter.Offset}, nil
}

// GetArticle returns the article if the user is subscribed to its feed or reads it through a collection.
func (svc *Service) GetArticle(ctx context.Context, userID, id int64) (Article, error) {
	ok, err := svc.repo.CanReadArticle(ctx, userID, id)
	if err != nil {
		return Article{}, errors.Wrap(err, "checking article access")
	}
	art, err := svc.repo.GetArticle(ctx, userID, id)
	if err != nil {
		return Article{}, err
	}
	if !ok {
		return Article{}, core.NewPermissionError("you do not have access to this article")
	}
	return art, nil
}

// UpdateStatus upserts the read & favorite state of an article for the user.
func (svc *Service) UpdateStatus(ctx context.Context, userID, articleID int64, su StatusUpdate) (Status, error) {
	if _, err := svc.GetArticle(ctx, userID, articleID); err != nil {
		return Status{}, err
	}
	return svc.saveStatus(ctx, userID, articleID, su, time.Now().UTC())
}

func (svc *Service) saveStatus(ctx context.Context, userID, articleID int64, su StatusUpdate, now time.Time) (Status, error) {
	st, err := svc.repo.GetStatus(ctx, userID, articleID)
	if errors.Is(err, core.ErrNotFound) {
		st = Status{UserID: userID, ArticleID: articleID, CreatedAt: now}
	} else if err != nil {
		return Status{}, errors.Wrap(err, "getting status")
	}
	st.Apply(su, now)
	return svc.repo.SaveStatus(ctx, st)
}

// BulkAction applies the action to every readable article of BulkAction.ArticleIDs.
// It returns the number of updated articles.
func (svc *Service) BulkAction(ctx context.Context, userID int64, ba BulkAction) (int, error) {
	su := ba.StatusUpdate()
	now := time.Now().UTC()

	var n int
	seen := make(map[int64]bool, len(ba.ArticleIDs))
	for _, id := range ba.ArticleIDs {
		if seen[id] {
			continue
		}
		seen[id] = true

		ok, err := svc.repo.CanReadArticle(ctx, userID, id)
		if err != nil {
			return n, errors.Wrap(err, "checking article access")
		}
		if !ok {
			continue
		}
		if _, err = svc.saveStatus(ctx, userID, id, su, now); err != nil {
			if errors.Is(err, core.ErrNotFound) {
				continue
			}
			return n, err
		}
		n++
	}
	return n, nil
}

// Favorites returns the user's favorite articles, the most recently favorited first.
func (svc *Service) Favorites(ctx context.Context, userID int64, p core.Pagination) ([]Article, core.PageInfo, error) {
	p.Clean()
	items, total, err := svc.repo.ListFavorites(ctx, userID, p)
	if err != nil {
		return nil, core.PageInfo{}, errors.Wrap(err, "listing favorites")
	}
	if items == nil {
		items = []Article{}
	}
	return items, core.NewPageInfo(total, p), nil
}

func (svc *Service) UnreadCount(ctx context.Context, userID int64, filter UnreadCountFilter) (int, error) {
	return svc.repo.CountUnread(ctx, userID, filter)
}
