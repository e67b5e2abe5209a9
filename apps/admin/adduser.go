package main

import (
	"context"

	"github.com/codexlms/codex/core"
	"github.com/codexlms/codex/core/user"
)

// addUser updates or creates a user.User
func (cli *commandLine) addUser(ctx context.Context, name, uname, email, pwd string, roles []string) (user.User, error) {
	uname = core.CleanString(uname, true /* lower */)
	email = core.CleanString(email, true /* lower */)

	usr, err := cli.findUser(ctx, uname, email)
	if err != nil {
		if err != user.ErrNotFound {
			return user.User{}, err
		}
		if name == "" {
			name = uname
		}
		return cli.users.Create(ctx, user.NewUser{
			Name:            name,
			Username:        uname,
			Email:           email,
			Password:        pwd,
			PasswordConfirm: pwd,
			Roles:           roles,
		})
	}

	isActive := true
	return cli.users.Update(ctx, usr.ID, user.UpdateUser{
		Name:            name,
		IsActive:        &isActive,
		Roles:           roles,
		Password:        pwd,
		PasswordConfirm: pwd,
	})
}

func (cli *commandLine) findUser(ctx context.Context, uname, email string) (user.User, error) {
	for _, key := range []string{uname, email} {
		if key == "" {
			continue
		}
		usr, err := cli.users.GetByUsernameOrEmail(ctx, key)
		if err != user.ErrNotFound {
			return usr, err
		}
	}
	return user.User{}, user.ErrNotFound
}
