package main

import (
	"fmt"
	"log"
	"os"

	"github.com/suprss/suprss/core"
	"github.com/suprss/suprss/core/feed"
	feedsvc "github.com/suprss/suprss/services/feeds"
	logsvc "github.com/suprss/suprss/services/logger"
	"github.com/suprss/suprss/storage/database"
	pgrepos "github.com/suprss/suprss/storage/database/postgres"
)

func main() {
	conf := core.NewConfig()

	z, err := logsvc.NewZap(conf)
	if err != nil {
		log.Fatal(err)
	}
	logger := logsvc.NewZapLogger(z.Named("admin"))
	defer func() { _ = logger.Sync() }()

	// set up DB
	db, err := database.Open(conf)
	if err != nil {
		logger.Fatal(fmt.Sprintf("opening database: %v", err), err)
	}
	defer func() { _ = db.Close() }()

	// set up services
	feedSvc := feed.NewService(conf, pgrepos.NewFeedRepository(db), feedsvc.NewFetcher(conf), logger)
	poller, err := feedsvc.NewPoller(conf, feedSvc, logger)
	if err != nil {
		logger.Fatal(fmt.Sprintf("setting up poller: %v", err), err)
	}

	// start CLI
	cli := commandLine{
		db:      db.DB,
		usrRepo: pgrepos.NewUserRepository(db),
		feeds:   feedSvc,
		poller:  poller,
		out:     os.Stdout,
	}
	if err = cli.run(os.Args); err != nil {
		if err != errHelp {
			logger.Error(fmt.Sprintf("error: %v", err), err)
		}
		_ = db.Close()
		os.Exit(1)
	}
}
