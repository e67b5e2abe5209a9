package main

import (
	"context"

	"github.com/codexlms/codex/core"
	"github.com/codexlms/codex/core/user"
)

func (cli *commandLine) resetPassword(ctx context.Context, uname, pwd string) error {
	usr, err := cli.users.GetByUsernameOrEmail(ctx, core.CleanString(uname, true /* lower */))
	if err != nil {
		return err
	}
	_, err = cli.users.Update(ctx, usr.ID, user.UpdateUser{Password: pwd, PasswordConfirm: pwd})
	return err
}
