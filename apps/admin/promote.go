package main

import (
	"context"
	"fmt"
)

// promote makes a user a superadmin, granting them every permission.
func (cli *commandLine) promote(uname string) error {
	ctx := context.Background()
	usr, err := cli.usrSvc.GetByUsernameOrEmail(ctx, uname)
	if err != nil {
		return err
	}
	if usr.IsSuperAdmin() {
		_, err = fmt.Fprintf(cli.stdout(), "%q is already a superadmin\n", usr.Name)
		return err
	}
	if usr, err = cli.usrSvc.PromoteSuperAdmin(ctx, usr); err != nil {
		return err
	}
	_, err = fmt.Fprintf(cli.stdout(), "%q is now a superadmin\n", usr.Name)
	return err
}
