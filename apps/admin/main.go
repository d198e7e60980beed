package main

import (
	"context"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"

	"github.com/trezcool/examportal/core"
	"github.com/trezcool/examportal/core/user"
	"github.com/trezcool/examportal/services/email"
	"github.com/trezcool/examportal/services/logger"
	"github.com/trezcool/examportal/storage/database"
	"github.com/trezcool/examportal/storage/database/sqlboiler"
	"github.com/trezcool/examportal/storage/database/sqlx"
)

func main() {
	conf := core.NewConfig()

	logger := logsvc.NewRollbarLogger(
		log.New(os.Stdout, "ADMIN : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile),
		conf,
	)
	defer logger.Close()

	// set up DB
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := database.CreateIfNotExist(ctx, conf); err != nil {
		logger.Fatal("creating database", err)
	}
	db, err := database.Open(conf)
	if err != nil {
		logger.Fatal("opening database", err)
	}
	if err = database.Ping(ctx, db); err != nil {
		logger.Fatal("pinging database", err)
	}

	// set up services
	var mailSvc core.EmailService
	if conf.Debug {
		mailSvc = emailsvc.NewConsoleService(log.New(os.Stdout, "MAIL : ", log.LstdFlags), logger, conf)
	} else {
		mailSvc = emailsvc.NewSendgridService(logger, conf)
	}
	usrSvc := user.NewService(
		sqlxrepos.NewUserRepository(sqlx.NewDb(db, "postgres"), logger),
		boiledrepos.NewAuditRepository(db),
		mailSvc,
		logger,
		conf,
	)

	validate := validator.New()
	translator := core.NewTranslator()
	core.InitValidators(validate, translator)
	user.InitValidators(validate, translator)
	user.LoadCommonPasswords(logger, filepath.Join(conf.WorkDir, "assets", "common-passwords.txt.gz"))

	// start CLI
	cli := commandLine{
		db:       db,
		usrSvc:   usrSvc,
		validate: validate,
	}
	err = cli.run(os.Args)
	_ = db.Close()
	if err != nil {
		if err != errHelp {
			logger.Error("admin command failed: "+err.Error(), err)
		}
		logger.Close()
		os.Exit(1)
	}
}
