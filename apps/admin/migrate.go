package main

import (
	"github.com/trezcool/examportal/storage/database"
)

var gooseRunFunc = database.RunMigrationCommand // mockable

func (cli *commandLine) migrate(args []string) error {
	return gooseRunFunc(cli.db, args[0], args[1:]...)
}
