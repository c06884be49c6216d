package interaction

import (
	"context"
	"sort"
	"time"

	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/suprss/suprss/core"
	"github.com/suprss/suprss/core/collection"
)

var (
	// errors
	ErrCommentNotFound     = core.NewNotFoundError("comment not found")
	ErrArticleNotInColl    = errors.New("this article does not belong to the collection")
	ErrInvalidParent       = errors.New("the parent comment must be on the same article and collection")
	ErrNotCommentAuthor    = core.NewPermissionError("only the author can edit this comment")
	ErrCommentDeleteDenied = core.NewPermissionError("you cannot delete this comment")
)

type (
	Repository interface {
		CreateComment(ctx context.Context, c Comment) (Comment, error)
		GetComment(ctx context.Context, id int64) (Comment, error)
		UpdateComment(ctx context.Context, c Comment) (Comment, error)
		// ListArticleComments returns every comment of the article in the collection, oldest first.
		ListArticleComments(ctx context.Context, collectionID, articleID int64) ([]Comment, error)
		ListUserComments(ctx context.Context, userID int64, p core.Pagination) ([]Comment, int, error)
		ArticleInCollection(ctx context.Context, collectionID, articleID int64) (bool, error)

		CreateMessage(ctx context.Context, m Message) (Message, error)
		// ListMessages returns the messages of the collection, newest first.
		ListMessages(ctx context.Context, collectionID int64, p core.Pagination) ([]Message, int, error)

		RecentComments(ctx context.Context, collectionIDs []int64, limit int) ([]Comment, error)
		RecentMessages(ctx context.Context, collectionIDs []int64, limit int) ([]Message, error)
	}

	Authorizer interface {
		Authorize(ctx context.Context, collectionID, userID int64, perms ...collection.Permission) (collection.Member, error)
		CollectionIDs(ctx context.Context, userID int64) ([]int64, error)
	}

	// Broadcaster delivers new messages to the live chat connections of a collection.
	Broadcaster interface {
		Broadcast(ctx context.Context, msg Message)
	}

	Service struct {
		repo        Repository
		auth        Authorizer
		broadcaster Broadcaster
		logger      core.Logger
	}
)

func NewService(repo Repository, auth Authorizer, broadcaster Broadcaster, logger core.Logger) *Service {
	return &Service{
		repo:        repo,
		auth:        auth,
		broadcaster: broadcaster,
		logger:      logger,
	}
}

func validationErr(field string, err error) error {
	return core.NewValidationError(err, core.FieldError{Field: field, Error: err.Error()})
}

// Comments

// CreateComment comments an article of a collection (or replies to a comment).
func (svc *Service) CreateComment(ctx context.Context, userID int64, nc NewComment) (Comment, error) {
	if _, err := svc.auth.Authorize(ctx, nc.CollectionID, userID, collection.PermComment); err != nil {
		return Comment{}, err
	}
	ok, err := svc.repo.ArticleInCollection(ctx, nc.CollectionID, nc.ArticleID)
	if err != nil {
		return Comment{}, errors.Wrap(err, "checking article")
	}
	if !ok {
		return Comment{}, validationErr("article_id", ErrArticleNotInColl)
	}

	var parentID null.Int64
	if nc.ParentID != 0 {
		parent, err := svc.repo.GetComment(ctx, nc.ParentID)
		if err != nil {
			if errors.Is(err, ErrCommentNotFound) {
				return Comment{}, validationErr("parent_id", ErrInvalidParent)
			}
			return Comment{}, errors.Wrap(err, "getting parent comment")
		}
		if parent.ArticleID != nc.ArticleID || parent.CollectionID != nc.CollectionID {
			return Comment{}, validationErr("parent_id", ErrInvalidParent)
		}
		parentID = null.Int64From(parent.ID)
	}

	now := time.Now().UTC()
	c, err := svc.repo.CreateComment(ctx, Comment{
		ArticleID:    nc.ArticleID,
		UserID:       userID,
		CollectionID: nc.CollectionID,
		ParentID:     parentID,
		Content:      nc.Content,
		CreatedAt:    now,
		UpdatedAt:    now,
	})
	if err != nil {
		return Comment{}, errors.Wrap(err, "creating comment")
	}
	return c, nil
}

// ArticleComments returns the comment threads of an article in a collection:
// top level comments oldest first, each with its replies oldest first.
func (svc *Service) ArticleComments(ctx context.Context, collectionID, articleID, userID int64) ([]Comment, error) {
	if _, err := svc.auth.Authorize(ctx, collectionID, userID, collection.PermRead); err != nil {
		return nil, err
	}
	comments, err := svc.repo.ListArticleComments(ctx, collectionID, articleID)
	if err != nil {
		return nil, errors.Wrap(err, "listing comments")
	}
	return buildThreads(comments), nil
}

// buildThreads nests replies under their parent. `comments` must be sorted oldest first.
func buildThreads(comments []Comment) []Comment {
	children := make(map[int64][]Comment)
	roots := make([]Comment, 0, len(comments))
	for _, c := range comments {
		c.setEdited()
		if c.ParentID.Valid {
			children[c.ParentID.Int64] = append(children[c.ParentID.Int64], c)
		} else {
			roots = append(roots, c)
		}
	}

	var attach func(c *Comment)
	attach = func(c *Comment) {
		c.Replies = children[c.ID]
		for i := range c.Replies {
			attach(&c.Replies[i])
		}
	}
	for i := range roots {
		attach(&roots[i])
	}
	return roots
}

func (svc *Service) UpdateComment(ctx context.Context, id, userID int64, uc UpdateComment) (Comment, error) {
	c, err := svc.repo.GetComment(ctx, id)
	if err != nil {
		return Comment{}, err
	}
	if c.UserID != userID || c.IsDeleted {
		return Comment{}, ErrNotCommentAuthor
	}
	c.Content = uc.Content
	c.UpdatedAt = time.Now().UTC()
	if c, err = svc.repo.UpdateComment(ctx, c); err != nil {
		return Comment{}, err
	}
	c.setEdited()
	return c, nil
}

// DeleteComment soft deletes a comment, so that its replies survive.
// The author or a member allowed to delete may do it.
func (svc *Service) DeleteComment(ctx context.Context, id, userID int64) error {
	c, err := svc.repo.GetComment(ctx, id)
	if err != nil {
		return err
	}
	if c.UserID != userID {
		if _, err = svc.auth.Authorize(ctx, c.CollectionID, userID, collection.PermDelete); err != nil {
			if errors.Is(err, core.ErrPermissionDenied) {
				return ErrCommentDeleteDenied
			}
			return err
		}
	}
	if c.IsDeleted {
		return nil
	}
	c.Content = DeletedContent
	c.IsDeleted = true
	c.UpdatedAt = time.Now().UTC()
	_, err = svc.repo.UpdateComment(ctx, c)
	return err
}

// MyComments returns the comments of the user, newest first.
func (svc *Service) MyComments(ctx context.Context, userID int64, p core.Pagination) ([]Comment, core.PageInfo, error) {
	p.Clean()
	items, total, err := svc.repo.ListUserComments(ctx, userID, p)
	if err != nil {
		return nil, core.PageInfo{}, errors.Wrap(err, "listing comments")
	}
	if items == nil {
		items = []Comment{}
	}
	for i := range items {
		items[i].setEdited()
	}
	return items, core.NewPageInfo(total, p), nil
}

// Messages

// PostMessage saves a chat message & broadcasts it to the collection live connections.
func (svc *Service) PostMessage(ctx context.Context, collectionID, userID int64, nm NewMessage) (Message, error) {
	m, err := svc.auth.Authorize(ctx, collectionID, userID, collection.PermComment)
	if err != nil {
		return Message{}, err
	}

	now := time.Now().UTC()
	msg, err := svc.repo.CreateMessage(ctx, Message{
		CollectionID: collectionID,
		UserID:       userID,
		Username:     m.Username,
		Content:      nm.Content,
		CreatedAt:    now,
		UpdatedAt:    now,
	})
	if err != nil {
		return Message{}, errors.Wrap(err, "creating message")
	}
	if svc.broadcaster != nil {
		svc.broadcaster.Broadcast(ctx, msg)
	}
	return msg, nil
}

// Messages returns the messages of the collection, newest first.
func (svc *Service) Messages(ctx context.Context, collectionID, userID int64, p core.Pagination) ([]Message, core.PageInfo, error) {
	if _, err := svc.auth.Authorize(ctx, collectionID, userID, collection.PermRead); err != nil {
		return nil, core.PageInfo{}, err
	}
	p.Clean()
	items, total, err := svc.repo.ListMessages(ctx, collectionID, p)
	if err != nil {
		return nil, core.PageInfo{}, errors.Wrap(err, "listing messages")
	}
	if items == nil {
		items = []Message{}
	}
	for i := range items {
		items[i].setEdited()
	}
	return items, core.NewPageInfo(total, p), nil
}

// RecentActivity returns the latest comments & messages of one or all of the user's collections,
// half of the limit from each source, merged newest first.
func (svc *Service) RecentActivity(ctx context.Context, userID int64, filter ActivityFilter) ([]Activity, error) {
	filter.Clean()

	var ids []int64
	if filter.CollectionID != 0 {
		if _, err := svc.auth.Authorize(ctx, filter.CollectionID, userID, collection.PermRead); err != nil {
			return nil, err
		}
		ids = []int64{filter.CollectionID}
	} else {
		var err error
		if ids, err = svc.auth.CollectionIDs(ctx, userID); err != nil {
			return nil, errors.Wrap(err, "listing collections")
		}
	}
	if len(ids) == 0 {
		return []Activity{}, nil
	}

	half := filter.Limit / 2
	if half == 0 {
		half = 1
	}
	comments, err := svc.repo.RecentComments(ctx, ids, half)
	if err != nil {
		return nil, errors.Wrap(err, "listing recent comments")
	}
	messages, err := svc.repo.RecentMessages(ctx, ids, half)
	if err != nil {
		return nil, errors.Wrap(err, "listing recent messages")
	}

	acts := make([]Activity, 0, len(comments)+len(messages))
	for _, c := range comments {
		acts = append(acts, Activity{
			Type:         ActivityComment,
			ID:           c.ID,
			Content:      preview(c.Content),
			UserID:       c.UserID,
			Username:     c.Username,
			CollectionID: c.CollectionID,
			ArticleID:    null.Int64From(c.ArticleID),
			CreatedAt:    c.CreatedAt,
		})
	}
	for _, m := range messages {
		acts = append(acts, Activity{
			Type:         ActivityMessage,
			ID:           m.ID,
			Content:      preview(m.Content),
			UserID:       m.UserID,
			Username:     m.Username,
			CollectionID: m.CollectionID,
			CreatedAt:    m.CreatedAt,
		})
	}
	sort.SliceStable(acts, func(i, j int) bool { return acts[i].CreatedAt.After(acts[j].CreatedAt) })
	if len(acts) > filter.Limit {
		acts = acts[:filter.Limit]
	}
	return acts, nil
}
