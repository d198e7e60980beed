package main

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/kat-co/vala"

	"github.com/trezcool/examportal/core"
	"github.com/trezcool/examportal/core/permission"
	"github.com/trezcool/examportal/core/user"
)

func roleFlag(s string) permission.Role {
	return permission.Role(core.CleanString(s, true /* lower */))
}

// permsFlag passes a JSON permission tree through as a JSON string, leaving its repair to the user service.
func permsFlag(s string) json.RawMessage {
	if s == "" {
		return nil
	}
	b, _ := json.Marshal(s)
	return b
}

// addUser creates a user.User of any type, superadmin included.
func (cli *commandLine) addUser(nu user.NewUser) error {
	if err := vala.BeginValidation().Validate(
		vala.IsNotNil(cli.usrSvc, "usrSvc"),
		vala.IsNotNil(cli.validate, "validate"),
	).Check(); err != nil {
		return err
	}

	ctx := context.Background()
	if err := nu.Validate(ctx, cli.validate, cli.usrSvc); err != nil {
		return err
	}
	usr, err := cli.usrSvc.Create(ctx, nu)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(cli.stdout(), "created %s %q (%s)\n", usr.Role, usr.Name, usr.ID)
	return err
}
