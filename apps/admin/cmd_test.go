package main

import (
	"bytes"
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/examportal/core/permission"
	"github.com/trezcool/examportal/core/user"
	"github.com/trezcool/examportal/services/email"
	"github.com/trezcool/examportal/storage/database/inmem"
	"github.com/trezcool/examportal/tests"
)

type cliApp struct {
	cli     *commandLine
	usrRepo user.Repository
	out     *bytes.Buffer
}

func setup(t *testing.T) cliApp {
	t.Helper()

	conf := testutil.NewConfig()
	logger := testutil.NewLogger(conf)

	// set up DB & repos
	db := inmemdb.Open()
	usrRepo := inmemdb.NewUserRepository(db)
	usrSvc := user.NewService(
		usrRepo,
		inmemdb.NewAuditRepository(db),
		emailsvc.NewConsoleServiceMock(logger, conf),
		logger,
		conf,
	)

	// start CLI
	var out bytes.Buffer
	return cliApp{
		cli: &commandLine{
			usrSvc:   usrSvc,
			validate: testutil.NewValidator(),
			out:      &out,
		},
		usrRepo: usrRepo,
		out:     &out,
	}
}

type cliTest struct {
	name       string
	args       []string // without program name
	wantErr    error
	wantErrStr string
	extra      interface{}
}

func (tt cliTest) check(t *testing.T, err error) {
	t.Helper()
	switch {
	case tt.wantErr != nil:
		assert.Equal(t, tt.wantErr, err)
	case tt.wantErrStr != "":
		if assert.Error(t, err) {
			assert.Equal(t, tt.wantErrStr, err.Error())
		}
	default:
		assert.NoError(t, err)
	}
}

func mockPassword(pwd string) {
	readPasswordFunc = func(fd int) ([]byte, error) {
		return []byte(pwd), nil
	}
}

func Test_commandLine_migrate(t *testing.T) {
	app := setup(t)

	gooseRunFunc = func(db *sql.DB, command string, args ...string) error {
		switch command {
		case "up", "up-by-one", "down", "fix", "redo", "reset", "status", "version": // pass
		case "up-to", "down-to":
			if len(args) == 0 {
				return fmt.Errorf("%s must be of form: goose [OPTIONS] DRIVER DBSTRING %s VERSION", command, command)
			}
			if _, err := strconv.ParseInt(args[0], 10, 64); err != nil {
				return fmt.Errorf("version must be a number (got '%s')", args[0])
			}
		default:
			return fmt.Errorf("%q: no such command", command)
		}
		return nil
	}

	tests := []cliTest{
		{name: "no subcommand", args: []string{"migrate"}, wantErr: errHelp},
		{name: "unknown subcommand", args: []string{"migrate", "lol"}, wantErrStr: "\"lol\": no such command"},
		{name: "up-to: no args", args: []string{"migrate", "up-to"}, wantErrStr: "up-to must be of form: goose [OPTIONS] DRIVER DBSTRING up-to VERSION"},
		{name: "up-to: non-int arg", args: []string{"migrate", "up-to", "lol"}, wantErrStr: "version must be a number (got 'lol')"},
		{name: "down-to: no args", args: []string{"migrate", "down-to"}, wantErrStr: "down-to must be of form: goose [OPTIONS] DRIVER DBSTRING down-to VERSION"},
		{name: "up", args: []string{"migrate", "up"}},
		{name: "up-to", args: []string{"migrate", "up-to", "2"}},
		{name: "down", args: []string{"migrate", "down"}},
		{name: "down-to", args: []string{"migrate", "down-to", "1"}},
		{name: "redo", args: []string{"migrate", "redo"}},
		{name: "status", args: []string{"migrate", "status"}},
		{name: "version", args: []string{"migrate", "version"}},
	}
	for _, tt := range tests {
		args := append([]string{"admin"}, tt.args...)

		t.Run(tt.name, func(t *testing.T) {
			tt.check(t, app.cli.run(args))
		})
	}
}

func Test_commandLine_addUser(t *testing.T) {
	app := setup(t)
	testutil.CreateUser(t, app.usrRepo, "Taken", "taken", "taken@test.cd", "", permission.RoleStaff, nil, true)

	tests := []cliTest{
		{name: "no args", args: []string{"adduser"}, wantErr: errHelp},
		{name: "no user type", args: []string{"adduser", "-name", "Root", "-username", "root"}, wantErr: errHelp},
		{name: "no username nor email", args: []string{"adduser", "-name", "Root", "-type", "superadmin"}, wantErr: errHelp},
		{name: "no password", args: []string{"adduser", "-name", "Root", "-username", "root", "-type", "superadmin"}, extra: "", wantErr: errHelp},
		{name: "unknown flag", args: []string{"adduser", "-lol"}, wantErr: errHelp},
		{name: "username taken", args: []string{"adduser", "-name", "Lol", "-username", "taken", "-type", "staff"}, extra: "Xk3#vP9q!z", wantErrStr: user.ErrUsernameExists.Error()},
		{name: "superadmin", args: []string{"adduser", "-name", "Root", "-username", "root", "-type", "SuperAdmin"}, extra: "Xk3#vP9q!z"},
		{
			name:  "staff with permissions",
			args:  []string{"adduser", "-name", "Clerk", "-email", "clerk@test.cd", "-type", "staff", "-permissions", `{"centre_mgmt":{"view":true}}`},
			extra: "Xk3#vP9q!z",
		},
	}
	for _, tt := range tests {
		args := append([]string{"admin"}, tt.args...)
		pwd, _ := tt.extra.(string)
		mockPassword(pwd)

		t.Run(tt.name, func(t *testing.T) {
			tt.check(t, app.cli.run(args))
		})
	}

	ctx := context.Background()
	root, err := app.cli.usrSvc.GetByUsernameOrEmail(ctx, "root")
	require.NoError(t, err)
	assert.True(t, root.IsSuperAdmin())
	assert.True(t, root.Permissions.AllGranted())
	assert.NoError(t, root.CheckPassword("Xk3#vP9q!z"))

	clerk, err := app.cli.usrSvc.GetByUsernameOrEmail(ctx, "clerk@test.cd")
	require.NoError(t, err)
	assert.Equal(t, permission.RoleStaff, clerk.Role)
	assert.True(t, clerk.Permissions.Granted(permission.ModuleCentreMgmt, "", permission.View))
	assert.False(t, clerk.Permissions.Granted(permission.ModuleCentreMgmt, "", permission.Edit))
}

func Test_commandLine_resetPassword(t *testing.T) {
	app := setup(t)
	usr := testutil.CreateUser(t, app.usrRepo, "User", "awe", "awe@test.cd", "mdr", permission.RoleStaff, nil, true)

	tests := []cliTest{
		{name: "no command", wantErr: errHelp},
		{name: "unknown command", args: []string{"lol"}, wantErr: errHelp},
		{name: "no args", args: []string{"resetpassword"}, wantErr: errHelp},
		{name: "username but no password", args: []string{"resetpassword", "-username", "lol"}, wantErr: errHelp},
		{name: "user not found", args: []string{"resetpassword", "-username", "lol"}, extra: "lol", wantErr: user.ErrNotFound},
		{name: "reset with username", args: []string{"resetpassword", "-username", usr.Username}, extra: "lol"},
		{name: "reset with email", args: []string{"resetpassword", "-username", usr.Email}, extra: "lmao"},
	}
	for _, tt := range tests {
		args := append([]string{"admin"}, tt.args...)
		pwd, _ := tt.extra.(string)
		mockPassword(pwd)

		t.Run(tt.name, func(t *testing.T) {
			err := app.cli.run(args)
			tt.check(t, err)
			if err != nil {
				return
			}
			refreshedUsr, err := app.usrRepo.GetUser(context.Background(), user.GetFilter{ID: usr.ID})
			require.NoError(t, err)
			assert.NoError(t, refreshedUsr.CheckPassword(pwd))
		})
	}
}

func Test_commandLine_promote(t *testing.T) {
	app := setup(t)
	usr := testutil.CreateUser(t, app.usrRepo, "User", "awe", "awe@test.cd", "", permission.RoleStaff, `{"question_bank":{"view":true}}`, true)

	tests := []cliTest{
		{name: "no args", args: []string{"promote"}, wantErr: errHelp},
		{name: "user not found", args: []string{"promote", "-username", "lol"}, wantErr: user.ErrNotFound},
		{name: "promote", args: []string{"promote", "-username", usr.Email}},
		{name: "already superadmin", args: []string{"promote", "-username", usr.Username}},
	}
	for _, tt := range tests {
		args := append([]string{"admin"}, tt.args...)

		t.Run(tt.name, func(t *testing.T) {
			tt.check(t, app.cli.run(args))
		})
	}

	promoted, err := app.cli.usrSvc.GetByID(context.Background(), usr.ID)
	require.NoError(t, err)
	assert.Equal(t, permission.RoleSuperAdmin, promoted.Role)
	assert.True(t, promoted.Permissions.AllGranted())
	assert.Contains(t, app.out.String(), `"User" is already a superadmin`)
}

func Test_commandLine_permissions(t *testing.T) {
	app := setup(t)
	usr := testutil.CreateUser(t, app.usrRepo, "User", "awe", "awe@test.cd", "", permission.RoleStaff, `{"question_bank":{"view":true}}`, true)

	tests := []struct {
		cliTest
		want permission.Tree
	}{
		{cliTest: cliTest{name: "no args", args: []string{"permissions"}, wantErr: errHelp}},
		{cliTest: cliTest{name: "user not found", args: []string{"permissions", "-username", "lol"}, wantErr: user.ErrNotFound}},
		{cliTest: cliTest{name: "print", args: []string{"permissions", "-username", "awe"}}, want: usr.Permissions},
		{cliTest: cliTest{name: "reset", args: []string{"permissions", "-username", "awe", "-reset"}}, want: permission.Default(permission.RoleStaff)},
	}
	for _, tt := range tests {
		args := append([]string{"admin"}, tt.args...)

		t.Run(tt.name, func(t *testing.T) {
			app.out.Reset()
			err := app.cli.run(args)
			tt.check(t, err)
			if err != nil {
				return
			}
			printed := permission.Normalize(app.out.String(), permission.RoleStaff)
			assert.True(t, printed.Equal(tt.want), app.out.String())
		})
	}

	changes, err := app.cli.usrSvc.PermissionHistory(context.Background(), usr)
	require.NoError(t, err)
	require.Len(t, changes, 1)
	assert.Equal(t, user.ChangeReset, changes[0].Kind)
	assert.Empty(t, changes[0].ActorID)
}
