package main

import (
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"syscall"

	"github.com/go-playground/validator/v10"
	"golang.org/x/term"

	"github.com/trezcool/examportal/core/user"
)

var (
	readPasswordFunc = term.ReadPassword // mockable

	errHelp = errors.New("help provided")
)

type commandLine struct {
	db       *sql.DB
	usrSvc   user.Service
	validate *validator.Validate
	out      io.Writer
}

func (cli *commandLine) stdout() io.Writer {
	if cli.out == nil {
		return os.Stdout
	}
	return cli.out
}

func (cli *commandLine) printUsage() {
	fmt.Println("Usage:")
	fmt.Println("  adduser -name NAME -username USERNAME -email EMAIL -type USER_TYPE [-permissions JSON] - create a user")
	fmt.Println("  resetpassword -username USERNAME|EMAIL - reset user's password")
	fmt.Println("  promote -username USERNAME|EMAIL - make the user a superadmin")
	fmt.Println("  permissions -username USERNAME|EMAIL [-reset] - print (or reset) the user's permissions")
	fmt.Println("  migrate COMMAND [ARGS...] - run a database migration command (up, down, status, ...)")
}

// promptPassword reads a password from the terminal; an empty password prints `usage`.
func promptPassword(prompt string, usage func()) (string, error) {
	fmt.Print(prompt)
	pwd, err := readPasswordFunc(int(syscall.Stdin))
	fmt.Println()
	if err != nil {
		return "", err
	}
	if len(pwd) == 0 {
		usage()
		return "", errHelp
	}
	return string(pwd), nil
}

func (cli *commandLine) run(args []string) error {
	if len(args) < 2 {
		cli.printUsage()
		return errHelp
	}

	addUserCmd := flag.NewFlagSet("adduser", flag.ContinueOnError)
	addUserName := addUserCmd.String("name", "", "The user's full name.")
	addUserUname := addUserCmd.String("username", "", "The user's username.")
	addUserEmail := addUserCmd.String("email", "", "The user's email.")
	addUserType := addUserCmd.String("type", "", "The user type: superadmin, admin, staff, parent or student.")
	addUserPerms := addUserCmd.String("permissions", "", "Optional JSON permission tree; missing parts get the user type defaults.")

	resetPasswordCmd := flag.NewFlagSet("resetpassword", flag.ContinueOnError)
	resetPasswordUname := resetPasswordCmd.String("username", "", "The user's username or email. The password will be prompted next.")

	promoteCmd := flag.NewFlagSet("promote", flag.ContinueOnError)
	promoteUname := promoteCmd.String("username", "", "The user's username or email.")

	permissionsCmd := flag.NewFlagSet("permissions", flag.ContinueOnError)
	permissionsUname := permissionsCmd.String("username", "", "The user's username or email.")
	permissionsReset := permissionsCmd.Bool("reset", false, "Restore the user type defaults before printing.")

	switch args[1] {
	case "adduser":
		if err := addUserCmd.Parse(args[2:]); err != nil {
			return errHelp
		}
		if *addUserName == "" || *addUserType == "" || (*addUserUname == "" && *addUserEmail == "") {
			addUserCmd.Usage()
			return errHelp
		}
		pwd, err := promptPassword("Enter password:", addUserCmd.Usage)
		if err != nil {
			return err
		}
		return cli.addUser(user.NewUser{
			Name:            *addUserName,
			Username:        *addUserUname,
			Email:           *addUserEmail,
			Password:        pwd,
			PasswordConfirm: pwd,
			Role:            roleFlag(*addUserType),
			Permissions:     permsFlag(*addUserPerms),
		})

	case "resetpassword":
		if err := resetPasswordCmd.Parse(args[2:]); err != nil {
			return errHelp
		}
		if *resetPasswordUname == "" {
			resetPasswordCmd.Usage()
			return errHelp
		}
		pwd, err := promptPassword("Enter password:", resetPasswordCmd.Usage)
		if err != nil {
			return err
		}
		return cli.resetPassword(*resetPasswordUname, pwd)

	case "promote":
		if err := promoteCmd.Parse(args[2:]); err != nil {
			return errHelp
		}
		if *promoteUname == "" {
			promoteCmd.Usage()
			return errHelp
		}
		return cli.promote(*promoteUname)

	case "permissions":
		if err := permissionsCmd.Parse(args[2:]); err != nil {
			return errHelp
		}
		if *permissionsUname == "" {
			permissionsCmd.Usage()
			return errHelp
		}
		return cli.permissions(*permissionsUname, *permissionsReset)

	case "migrate":
		if len(args) < 3 {
			cli.printUsage()
			return errHelp
		}
		return cli.migrate(args[2:])

	default:
		cli.printUsage()
		return errHelp
	}
}
