package main

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/suprss/suprss/core"
	"github.com/suprss/suprss/core/user"
)

// addUser updates or creates an active user.User.
// New users get their default category.
func (cli *commandLine) addUser(ctx context.Context, uname, email, pwd string, isAdmin bool) (user.User, error) {
	uname = core.CleanString(uname, true /* lower */)
	email = core.CleanString(email, true /* lower */)
	now := time.Now().UTC()

	usr, err := cli.usrRepo.GetUser(ctx, user.GetFilter{Username: uname})
	created := false
	switch {
	case err == nil:
		if err = cli.usrRepo.CheckUniqueness(ctx, uname, email, usr); err != nil {
			return user.User{}, err
		}
	case errors.Is(err, user.ErrNotFound):
		if err = cli.usrRepo.CheckUniqueness(ctx, uname, email); err != nil {
			return user.User{}, err
		}
		usr = user.User{Username: uname, FontSize: user.FontMedium, CreatedAt: now}
		created = true
	default:
		return user.User{}, err
	}

	usr.Email = email
	usr.IsActive = true
	if isAdmin {
		usr.IsAdmin = true
	}
	usr.UpdatedAt = now
	if err = user.CheckPasswordPolicy(pwd, usr, "password"); err != nil {
		return user.User{}, err
	}
	if err = usr.SetPassword(pwd); err != nil {
		return user.User{}, err
	}

	if !created {
		return cli.usrRepo.UpdateUser(ctx, usr)
	}
	if usr, err = cli.usrRepo.CreateUser(ctx, usr); err != nil {
		return user.User{}, err
	}
	if err = cli.feeds.CreateDefaultCategory(ctx, usr.ID); err != nil {
		return user.User{}, errors.Wrap(err, "creating default category")
	}
	return usr, nil
}
