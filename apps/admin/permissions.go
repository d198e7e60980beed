package main

import (
	"context"
	"encoding/json"

	"github.com/trezcool/examportal/core/permission"
	"github.com/trezcool/examportal/core/user"
)

// cliActor stands for the operator running the CLI. It has no account, so changes are recorded without an actor.
var cliActor = user.User{Role: permission.RoleSuperAdmin}

// permissions prints the normalized permission tree of a user, optionally reset to the user type defaults first.
func (cli *commandLine) permissions(uname string, reset bool) error {
	ctx := context.Background()
	usr, err := cli.usrSvc.GetByUsernameOrEmail(ctx, uname)
	if err != nil {
		return err
	}
	if reset {
		if usr, err = cli.usrSvc.ResetPermissions(ctx, cliActor, usr); err != nil {
			return err
		}
	}

	enc := json.NewEncoder(cli.stdout())
	enc.SetIndent("", "  ")
	return enc.Encode(cli.usrSvc.Permissions(usr))
}
