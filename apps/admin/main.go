package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/codexlms/codex/core"
	"github.com/codexlms/codex/core/course"
	"github.com/codexlms/codex/core/user"
	emailsvc "github.com/codexlms/codex/services/email"
	logsvc "github.com/codexlms/codex/services/logger"
	"github.com/codexlms/codex/storage/database"
	postgresdb "github.com/codexlms/codex/storage/database/postgres"
)

func main() {
	conf := core.NewConfig()
	logger := logsvc.NewRollbarLogger(log.New(os.Stdout, "ADMIN : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile), conf)
	logger.Enable(!conf.Debug)
	ctx := context.Background()

	if conf.Store.Backend == core.StorePostgres {
		errAndDie(logger, postgresdb.CreateIfNotExist(ctx, conf))
	}
	db, err := database.Open(ctx, conf)
	errAndDie(logger, err)

	validate, translator := core.NewValidator()
	user.InitValidators(validate, translator)
	user.LoadCommonPasswords(logger)

	cli := commandLine{
		db:      db,
		users:   user.NewService(db, emailsvc.NewConsoleService(conf, logger), validate, conf),
		courses: course.NewService(db, validate),
		out:     os.Stdout,
	}
	err = cli.run(ctx, os.Args[1:])
	_ = db.Close()
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "\nerror: %s\n", err)
		os.Exit(1)
	}
}

func errAndDie(logger core.Logger, err error) {
	if err != nil {
		logger.Fatal(fmt.Sprintf("setting up: %v", err), err)
	}
}
