package feed

import (
	"context"
	"regexp"
	"time"

	"github.com/pkg/errors"
)

var hexColorRegex = regexp.MustCompile(`^#[0-9A-Fa-f]{6}$`)

// DefaultCategory returns the user's default category, creating it if missing.
func (svc *Service) DefaultCategory(ctx context.Context, userID int64) (Category, error) {
	cat, err := svc.repo.GetCategoryByName(ctx, userID, DefaultCategoryName)
	if errors.Is(err, ErrCategoryNotFound) {
		now := time.Now().UTC()
		cat, err = svc.repo.CreateCategory(ctx, Category{
			UserID:    userID,
			Name:      DefaultCategoryName,
			Color:     DefaultCategoryColor,
			CreatedAt: now,
			UpdatedAt: now,
		})
		if errors.Cause(err) == ErrCategoryExists { // created concurrently
			return svc.repo.GetCategoryByName(ctx, userID, DefaultCategoryName)
		}
	}
	if err != nil {
		return Category{}, errors.Wrap(err, "getting default category")
	}
	return cat, nil
}

// CreateDefaultCategory makes sure that the user has a default category.
func (svc *Service) CreateDefaultCategory(ctx context.Context, userID int64) error {
	_, err := svc.DefaultCategory(ctx, userID)
	return err
}

func (svc *Service) CreateCategory(ctx context.Context, userID int64, nc NewCategory) (Category, error) {
	color := nc.Color
	if color == "" {
		color = DefaultCategoryColor
	}
	now := time.Now().UTC()
	cat, err := svc.repo.CreateCategory(ctx, Category{
		UserID:    userID,
		Name:      nc.Name,
		Color:     color,
		CreatedAt: now,
		UpdatedAt: now,
	})
	if errors.Cause(err) == ErrCategoryExists {
		return Category{}, validationErr("name", ErrCategoryExists)
	}
	return cat, err
}

// ListCategories returns the user's categories ordered by name, with their feed count.
func (svc *Service) ListCategories(ctx context.Context, userID int64) ([]Category, error) {
	cats, err := svc.repo.ListCategories(ctx, userID)
	if err != nil {
		return nil, errors.Wrap(err, "listing categories")
	}
	if cats == nil {
		cats = []Category{}
	}
	return cats, nil
}

func (svc *Service) GetCategory(ctx context.Context, userID, id int64) (Category, error) {
	return svc.repo.GetCategory(ctx, userID, id)
}

func (svc *Service) UpdateCategory(ctx context.Context, userID, id int64, uc UpdateCategory) (Category, error) {
	cat, err := svc.repo.GetCategory(ctx, userID, id)
	if err != nil {
		return Category{}, err
	}
	if uc.Name != "" && uc.Name != cat.Name {
		if cat.IsDefault() {
			return Category{}, validationErr("name", ErrDefaultCategoryRen)
		}
		cat.Name = uc.Name
	}
	if uc.Color != "" {
		cat.Color = uc.Color
	}
	cat.UpdatedAt = time.Now().UTC()

	cat, err = svc.repo.UpdateCategory(ctx, cat)
	if errors.Cause(err) == ErrCategoryExists {
		return Category{}, validationErr("name", ErrCategoryExists)
	}
	return cat, err
}

// DeleteCategory deletes a category after moving its feeds to the default category.
func (svc *Service) DeleteCategory(ctx context.Context, userID, id int64) error {
	cat, err := svc.repo.GetCategory(ctx, userID, id)
	if err != nil {
		return err
	}
	if cat.IsDefault() {
		return validationErr("id", ErrDefaultCategory)
	}
	def, err := svc.DefaultCategory(ctx, userID)
	if err != nil {
		return err
	}
	return svc.repo.DeleteCategory(ctx, cat.ID, def.ID)
}

// MoveFeed moves a feed between two of the user's categories.
func (svc *Service) MoveFeed(ctx context.Context, userID int64, mf MoveFeed) error {
	if _, err := svc.resolveCategory(ctx, userID, mf.FromCategoryID); err != nil {
		return err
	}
	if _, err := svc.resolveCategory(ctx, userID, mf.ToCategoryID); err != nil {
		return err
	}
	err := svc.repo.MoveFeed(ctx, mf.FeedID, mf.FromCategoryID, mf.ToCategoryID)
	switch errors.Cause(err) {
	case ErrNotSubscribed:
		return validationErr("feed_id", ErrNotSubscribed)
	case ErrAlreadySubscribed:
		return validationErr("to_category_id", errors.New("feed already exists in the target category"))
	}
	return err
}
