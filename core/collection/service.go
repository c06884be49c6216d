package collection

import (
	"context"
	"fmt"
	"net/mail"
	"time"

	"github.com/pkg/errors"

	"github.com/suprss/suprss/core"
	"github.com/suprss/suprss/core/feed"
	"github.com/suprss/suprss/core/user"
)

var (
	// errors
	ErrNotFound          = core.NewNotFoundError("collection not found")
	ErrMemberNotFound    = core.NewNotFoundError("member not found")
	ErrFeedNotFound      = core.NewNotFoundError("feed not found in this collection")
	ErrMemberExists      = errors.New("this user is already a member of the collection")
	ErrFeedExists        = errors.New("this feed is already in the collection")
	ErrOwnerRole         = errors.New("the owner role cannot be granted")
	ErrOwnerOnly         = core.NewPermissionError("only the owner can do this")
	ErrOwnerNotRemovable = core.NewPermissionError("the owner cannot be removed from the collection")
	ErrUserInactive      = errors.New("this user account is deactivated")
)

// PermissionError is returned when a member lacks a capability.
func PermissionError(p Permission) error {
	return core.NewPermissionError(fmt.Sprintf("permission denied: %s is required", p))
}

type (
	Repository interface {
		// CreateCollection creates the collection & its owner membership with every flag set.
		CreateCollection(ctx context.Context, c Collection) (Collection, error)
		GetCollection(ctx context.Context, id int64) (Collection, error)
		ListUserCollections(ctx context.Context, userID int64, p core.Pagination) ([]Collection, int, error)
		ListUserCollectionIDs(ctx context.Context, userID int64) ([]int64, error)
		UpdateCollection(ctx context.Context, c Collection) (Collection, error)
		DeleteCollection(ctx context.Context, id int64) error

		GetMember(ctx context.Context, collectionID, userID int64) (Member, error)
		ListMembers(ctx context.Context, collectionID int64) ([]Member, error)
		AddMember(ctx context.Context, m Member) (Member, error)
		UpdateMember(ctx context.Context, m Member) (Member, error)
		RemoveMember(ctx context.Context, collectionID, userID int64) error

		ListFeeds(ctx context.Context, collectionID int64) ([]CollectionFeed, error)
		AddFeed(ctx context.Context, cf CollectionFeed) (CollectionFeed, error)
		RemoveFeed(ctx context.Context, collectionID, feedID int64) error
		ListArticles(ctx context.Context, collectionID, userID int64, p core.Pagination) ([]feed.Article, int, error)
	}

	UserGetter interface {
		GetByID(ctx context.Context, id int64) (user.User, error)
		GetByEmail(ctx context.Context, email string) (user.User, error)
	}

	FeedFinder interface {
		FindFeed(ctx context.Context, id int64) (feed.Feed, error)
	}

	// Disconnecter drops the live chat connections of users who lost read access.
	Disconnecter interface {
		Kick(collectionID, userID int64)
		CloseRoom(collectionID int64)
	}

	Service struct {
		conf         *core.Config
		repo         Repository
		users        UserGetter
		feeds        FeedFinder
		mailSvc      core.EmailService
		logger       core.Logger
		disconnecter Disconnecter
	}
)

func NewService(
	conf *core.Config,
	repo Repository,
	users UserGetter,
	feeds FeedFinder,
	mailSvc core.EmailService,
	logger core.Logger,
) *Service {
	return &Service{
		conf:    conf,
		repo:    repo,
		users:   users,
		feeds:   feeds,
		mailSvc: mailSvc,
		logger:  logger,
	}
}

// SetDisconnecter registers the chat hub to notify when members lose access.
func (svc *Service) SetDisconnecter(d Disconnecter) {
	svc.disconnecter = d
}

func validationErr(field string, err error) error {
	return core.NewValidationError(err, core.FieldError{Field: field, Error: err.Error()})
}

// Authorize returns the membership of the user if it grants all the permissions.
// A user who is not a member has no permission at all.
func (svc *Service) Authorize(ctx context.Context, collectionID, userID int64, perms ...Permission) (Member, error) {
	if _, err := svc.repo.GetCollection(ctx, collectionID); err != nil {
		return Member{}, err
	}
	m, err := svc.repo.GetMember(ctx, collectionID, userID)
	if err != nil {
		if errors.Is(err, ErrMemberNotFound) {
			return Member{}, core.NewPermissionError("you are not a member of this collection")
		}
		return Member{}, errors.Wrap(err, "getting membership")
	}
	for _, p := range perms {
		if !m.Has(p) {
			return Member{}, PermissionError(p)
		}
	}
	return m, nil
}

func (svc *Service) Create(ctx context.Context, ownerID int64, nc NewCollection) (Collection, error) {
	now := time.Now().UTC()
	c, err := svc.repo.CreateCollection(ctx, Collection{
		Name:        nc.Name,
		Description: nc.Description,
		OwnerID:     ownerID,
		IsShared:    nc.IsShared,
		CreatedAt:   now,
		UpdatedAt:   now,
	})
	if err != nil {
		return Collection{}, errors.Wrap(err, "creating collection")
	}
	perms := DefaultPermissions(RoleOwner)
	c.MyRole = RoleOwner
	c.MyPermissions = &perms
	c.MemberCount = 1
	return c, nil
}

// ListMine returns the collections the user is a member of, with their role & permissions.
func (svc *Service) ListMine(ctx context.Context, userID int64, p core.Pagination) ([]Collection, core.PageInfo, error) {
	p.Clean()
	items, total, err := svc.repo.ListUserCollections(ctx, userID, p)
	if err != nil {
		return nil, core.PageInfo{}, errors.Wrap(err, "listing collections")
	}
	if items == nil {
		items = []Collection{}
	}
	return items, core.NewPageInfo(total, p), nil
}

// CollectionIDs returns the IDs of the collections the user is a member of.
func (svc *Service) CollectionIDs(ctx context.Context, userID int64) ([]int64, error) {
	return svc.repo.ListUserCollectionIDs(ctx, userID)
}

func (svc *Service) Detail(ctx context.Context, id, userID int64) (Detail, error) {
	m, err := svc.Authorize(ctx, id, userID, PermRead)
	if err != nil {
		return Detail{}, err
	}
	c, err := svc.repo.GetCollection(ctx, id)
	if err != nil {
		return Detail{}, err
	}
	feeds, err := svc.repo.ListFeeds(ctx, id)
	if err != nil {
		return Detail{}, errors.Wrap(err, "listing feeds")
	}
	members, err := svc.repo.ListMembers(ctx, id)
	if err != nil {
		return Detail{}, errors.Wrap(err, "listing members")
	}
	if feeds == nil {
		feeds = []CollectionFeed{}
	}

	c.FeedCount = len(feeds)
	c.MemberCount = len(members)
	c.MyRole = m.Role
	c.MyPermissions = &m.Permissions
	return Detail{Collection: c, Feeds: feeds, Members: members}, nil
}

func (svc *Service) Update(ctx context.Context, id, userID int64, uc UpdateCollection) (Collection, error) {
	if _, err := svc.Authorize(ctx, id, userID, PermEdit); err != nil {
		return Collection{}, err
	}
	c, err := svc.repo.GetCollection(ctx, id)
	if err != nil {
		return Collection{}, err
	}
	if uc.Name != nil && *uc.Name != "" {
		c.Name = *uc.Name
	}
	if uc.Description != nil {
		c.Description = *uc.Description
	}
	c.UpdatedAt = time.Now().UTC()
	return svc.repo.UpdateCollection(ctx, c)
}

func (svc *Service) ToggleSharing(ctx context.Context, id, userID int64) (Collection, error) {
	if _, err := svc.Authorize(ctx, id, userID, PermEdit); err != nil {
		return Collection{}, err
	}
	c, err := svc.repo.GetCollection(ctx, id)
	if err != nil {
		return Collection{}, err
	}
	c.IsShared = !c.IsShared
	c.UpdatedAt = time.Now().UTC()
	return svc.repo.UpdateCollection(ctx, c)
}

// Delete deletes the collection with its members, feeds, comments & messages. Only the owner may do it.
func (svc *Service) Delete(ctx context.Context, id, userID int64) error {
	c, err := svc.repo.GetCollection(ctx, id)
	if err != nil {
		return err
	}
	if c.OwnerID != userID {
		return ErrOwnerOnly
	}
	if err = svc.repo.DeleteCollection(ctx, id); err != nil {
		return err
	}
	if svc.disconnecter != nil {
		svc.disconnecter.CloseRoom(id)
	}
	return nil
}

// Feeds

func (svc *Service) AddFeed(ctx context.Context, id, userID int64, ncf NewCollectionFeed) (CollectionFeed, error) {
	if _, err := svc.Authorize(ctx, id, userID, PermAddFeed); err != nil {
		return CollectionFeed{}, err
	}
	f, err := svc.feeds.FindFeed(ctx, ncf.FeedID)
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			return CollectionFeed{}, validationErr("feed_id", errors.New("feed not found"))
		}
		return CollectionFeed{}, errors.Wrap(err, "finding feed")
	}

	cf, err := svc.repo.AddFeed(ctx, CollectionFeed{
		CollectionID: id,
		FeedID:       f.ID,
		AddedBy:      userID,
		AddedAt:      time.Now().UTC(),
	})
	if errors.Cause(err) == ErrFeedExists {
		return CollectionFeed{}, validationErr("feed_id", ErrFeedExists)
	} else if err != nil {
		return CollectionFeed{}, errors.Wrap(err, "adding feed")
	}
	cf.Feed = f
	return cf, nil
}

func (svc *Service) RemoveFeed(ctx context.Context, id, userID, feedID int64) error {
	if _, err := svc.Authorize(ctx, id, userID, PermDelete); err != nil {
		return err
	}
	return svc.repo.RemoveFeed(ctx, id, feedID)
}

// Articles returns the articles of the collection feeds, with the user's read & favorite state.
func (svc *Service) Articles(ctx context.Context, id, userID int64, p core.Pagination) ([]feed.Article, core.PageInfo, error) {
	if _, err := svc.Authorize(ctx, id, userID, PermRead); err != nil {
		return nil, core.PageInfo{}, err
	}
	p.Clean()
	items, total, err := svc.repo.ListArticles(ctx, id, userID, p)
	if err != nil {
		return nil, core.PageInfo{}, errors.Wrap(err, "listing articles")
	}
	if items == nil {
		items = []feed.Article{}
	}
	return items, core.NewPageInfo(total, p), nil
}

// Export returns every collection of the user with its feeds.
func (svc *Service) Export(ctx context.Context, userID int64) ([]ExportedCollection, error) {
	ids, err := svc.repo.ListUserCollectionIDs(ctx, userID)
	if err != nil {
		return nil, errors.Wrap(err, "listing collections")
	}
	out := make([]ExportedCollection, 0, len(ids))
	for _, id := range ids {
		c, err := svc.repo.GetCollection(ctx, id)
		if err != nil {
			return nil, errors.Wrap(err, "getting collection")
		}
		cfs, err := svc.repo.ListFeeds(ctx, id)
		if err != nil {
			return nil, errors.Wrap(err, "listing feeds")
		}
		ec := ExportedCollection{Collection: c, Feeds: make([]feed.Feed, 0, len(cfs))}
		for _, cf := range cfs {
			ec.Feeds = append(ec.Feeds, cf.Feed)
		}
		out = append(out, ec)
	}
	return out, nil
}

// Members

func (svc *Service) Members(ctx context.Context, id, userID int64) ([]Member, error) {
	if _, err := svc.Authorize(ctx, id, userID, PermRead); err != nil {
		return nil, err
	}
	members, err := svc.repo.ListMembers(ctx, id)
	if err != nil {
		return nil, errors.Wrap(err, "listing members")
	}
	return members, nil
}

// AddMember adds a user (by ID or email) to the collection & notifies them by email.
// The role defaults apply, then the custom permissions.
func (svc *Service) AddMember(ctx context.Context, id, userID int64, nm NewMember) (Member, error) {
	if _, err := svc.Authorize(ctx, id, userID, PermEdit); err != nil {
		return Member{}, err
	}
	if nm.Role == RoleOwner {
		return Member{}, validationErr("role", ErrOwnerRole)
	}
	if !nm.Role.IsValid() {
		nm.Role = RoleMember
	}

	var (
		usr user.User
		err error
	)
	if nm.UserID != 0 {
		usr, err = svc.users.GetByID(ctx, nm.UserID)
	} else {
		usr, err = svc.users.GetByEmail(ctx, nm.Email)
	}
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			field := "user_id"
			if nm.UserID == 0 {
				field = "email"
			}
			return Member{}, validationErr(field, errors.New("user not found"))
		}
		return Member{}, errors.Wrap(err, "getting user")
	}
	if !usr.IsActive {
		return Member{}, validationErr("user_id", ErrUserInactive)
	}

	m, err := svc.repo.AddMember(ctx, Member{
		CollectionID: id,
		UserID:       usr.ID,
		Role:         nm.Role,
		Permissions:  DefaultPermissions(nm.Role).Apply(nm.Permissions),
		JoinedAt:     time.Now().UTC(),
	})
	if errors.Cause(err) == ErrMemberExists {
		return Member{}, validationErr("user_id", ErrMemberExists)
	} else if err != nil {
		return Member{}, errors.Wrap(err, "adding member")
	}
	m.Username = usr.Username
	m.Email = usr.Email

	svc.sendInvitation(ctx, id, userID, usr, m)
	return m, nil
}

func (svc *Service) sendInvitation(ctx context.Context, id, inviterID int64, usr user.User, m Member) {
	c, err := svc.repo.GetCollection(ctx, id)
	if err != nil {
		svc.logger.Error(fmt.Sprintf("collection.sendInvitation: %v", err), err)
		return
	}
	inviter, err := svc.users.GetByID(ctx, inviterID)
	if err != nil {
		svc.logger.Error(fmt.Sprintf("collection.sendInvitation: %v", err), err)
		return
	}
	svc.mailSvc.SendMessages(&core.EmailMessage{
		To:           []mail.Address{{Name: usr.FullName(), Address: usr.Email}},
		Subject:      fmt.Sprintf("[%s] You have been added to %q", svc.conf.AppName, c.Name),
		TemplateName: "collection_invitation",
		TemplateData: map[string]interface{}{
			"Name":       usr.Username,
			"Inviter":    inviter.Username,
			"Collection": c.Name,
			"Role":       string(m.Role),
			"URL":        fmt.Sprintf("%s/collections/%d", svc.conf.FrontendBaseURL, c.ID),
		},
	})
}

// UpdateMember changes the role and/or permissions of a member.
// A role change resets the permissions to the role defaults before the custom ones apply.
// The owner membership can only be changed by the owner & its role never changes.
func (svc *Service) UpdateMember(ctx context.Context, id, userID, memberID int64, um UpdateMember) (Member, error) {
	caller, err := svc.Authorize(ctx, id, userID, PermEdit)
	if err != nil {
		return Member{}, err
	}
	m, err := svc.repo.GetMember(ctx, id, memberID)
	if err != nil {
		return Member{}, err
	}
	if um.Role == RoleOwner {
		return Member{}, validationErr("role", ErrOwnerRole)
	}
	if m.IsOwner() {
		if !caller.IsOwner() {
			return Member{}, ErrOwnerOnly
		}
		if um.Role != "" && um.Role != RoleOwner {
			return Member{}, validationErr("role", errors.New("the owner role cannot be changed"))
		}
	}

	if um.Role != "" && um.Role != m.Role {
		m.Role = um.Role
		m.Permissions = DefaultPermissions(um.Role)
	}
	m.Permissions = m.Permissions.Apply(um.Permissions)
	m, err = svc.repo.UpdateMember(ctx, m)
	if err != nil {
		return Member{}, err
	}
	if !m.Permissions.CanRead {
		svc.kick(id, memberID)
	}
	return m, nil
}

// RemoveMember removes a member. Members may always leave; removing others requires `edit`.
// The owner can never be removed.
func (svc *Service) RemoveMember(ctx context.Context, id, userID, memberID int64) error {
	var err error
	if memberID == userID {
		_, err = svc.Authorize(ctx, id, userID)
	} else {
		_, err = svc.Authorize(ctx, id, userID, PermEdit)
	}
	if err != nil {
		return err
	}

	m, err := svc.repo.GetMember(ctx, id, memberID)
	if err != nil {
		return err
	}
	if m.IsOwner() {
		return ErrOwnerNotRemovable
	}
	if err = svc.repo.RemoveMember(ctx, id, memberID); err != nil {
		return err
	}
	svc.kick(id, memberID)
	return nil
}

func (svc *Service) kick(id, userID int64) {
	if svc.disconnecter != nil {
		svc.disconnecter.Kick(id, userID)
	}
}
