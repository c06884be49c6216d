package dig_container

import (
	"fmt"
	"log"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"go.uber.org/dig"
	"go.uber.org/zap"

	echoapi "github.com/suprss/suprss/apps/api/echo"
	"github.com/suprss/suprss/core"
	"github.com/suprss/suprss/core/collection"
	"github.com/suprss/suprss/core/feed"
	"github.com/suprss/suprss/core/interaction"
	"github.com/suprss/suprss/core/search"
	"github.com/suprss/suprss/core/transfer"
	"github.com/suprss/suprss/core/user"
	chatsvc "github.com/suprss/suprss/services/chat"
	emailsvc "github.com/suprss/suprss/services/email"
	feedsvc "github.com/suprss/suprss/services/feeds"
	logsvc "github.com/suprss/suprss/services/logger"
	oauthsvc "github.com/suprss/suprss/services/oauth"
	"github.com/suprss/suprss/storage/database"
	pgrepos "github.com/suprss/suprss/storage/database/postgres"
)

type DBLoggerParam struct {
	dig.In
	Logger core.Logger `name:"dbLogger"`
}

func newZapLogger(z *zap.Logger, name string, conf *core.Config) core.Logger {
	logger := logsvc.NewRollbarLogger(logsvc.NewZapLogger(z.Named(name)), conf)
	logger.Enable(!conf.Debug && conf.RollbarToken != "")
	return logger
}

func newLogger(conf *core.Config, z *zap.Logger) core.Logger {
	return newZapLogger(z, "api", conf)
}

func newDBLogger(conf *core.Config, z *zap.Logger) core.Logger {
	return newZapLogger(z, "db", conf)
}

func newDB(conf *core.Config, loggerParam DBLoggerParam) (*sqlx.DB, core.Pinger) {
	setUp := func() (*sqlx.DB, error) {
		if err := database.CreateIfNotExist(conf); err != nil {
			return nil, err
		}

		db, err := database.Open(conf)
		if err != nil {
			return nil, err
		}

		if err = database.Migrate(db.DB, database.MigrateUp); err != nil {
			_ = db.Close()
			return nil, err
		}
		return db, nil
	}

	db, err := setUp()
	if err != nil {
		loggerParam.Logger.Fatal(fmt.Sprintf("setting up database: %v", err), err)
	}
	return db, db
}

func newEmailService(conf *core.Config, logger core.Logger) core.EmailService {
	if conf.Debug {
		return emailsvc.NewConsoleService(conf, logger)
	}
	return emailsvc.NewSendgridService(conf, logger)
}

func newTranslator() ut.Translator {
	_en := en.New()
	uni := ut.New(_en, _en)
	translator, _ := uni.GetTranslator("en")
	return translator
}

func newFetcher(conf *core.Config) feed.Fetcher {
	return feedsvc.NewFetcher(conf)
}

func newUserService(
	conf *core.Config,
	repo user.Repository,
	mailSvc core.EmailService,
	feedSvc *feed.Service,
	logger core.Logger,
) *user.Service {
	return user.NewService(conf, repo, mailSvc, feedSvc, logger, oauthsvc.NewVerifiers(conf)...)
}

func newCollectionService(
	conf *core.Config,
	repo collection.Repository,
	usrSvc *user.Service,
	feedSvc *feed.Service,
	mailSvc core.EmailService,
	hub *chatsvc.Hub,
	logger core.Logger,
) *collection.Service {
	svc := collection.NewService(conf, repo, usrSvc, feedSvc, mailSvc, logger)
	svc.SetDisconnecter(hub)
	return svc
}

func newInteractionService(
	repo interaction.Repository,
	collSvc *collection.Service,
	hub *chatsvc.Hub,
	logger core.Logger,
) *interaction.Service {
	return interaction.NewService(repo, collSvc, hub, logger)
}

func newTransferService(
	conf *core.Config,
	repo transfer.Repository,
	usrSvc *user.Service,
	feedSvc *feed.Service,
	collSvc *collection.Service,
	mailSvc core.EmailService,
	logger core.Logger,
) *transfer.Service {
	return transfer.NewService(conf, repo, usrSvc, feedSvc, collSvc, mailSvc, logger)
}

type serverParams struct {
	dig.In

	Conf           *core.Config
	Logger         core.Logger
	DB             core.Pinger
	Validate       *validator.Validate
	Translator     ut.Translator
	UserSvc        *user.Service
	FeedSvc        *feed.Service
	CollectionSvc  *collection.Service
	InteractionSvc *interaction.Service
	SearchSvc      *search.Service
	TransferSvc    *transfer.Service
	Hub            *chatsvc.Hub
}

func newServer(p serverParams) *echoapi.Server {
	return echoapi.NewServer(&echoapi.Options{
		Conf:           p.Conf,
		Logger:         p.Logger,
		DB:             p.DB,
		Validate:       p.Validate,
		Translator:     p.Translator,
		UserSvc:        p.UserSvc,
		FeedSvc:        p.FeedSvc,
		CollectionSvc:  p.CollectionSvc,
		InteractionSvc: p.InteractionSvc,
		SearchSvc:      p.SearchSvc,
		TransferSvc:    p.TransferSvc,
		Hub:            p.Hub,
	})
}

func newPoller(conf *core.Config, feedSvc *feed.Service, logger core.Logger) (*feedsvc.Poller, error) {
	return feedsvc.NewPoller(conf, feedSvc, logger)
}

// New returns a new dependency injection dig.Container
func New() *dig.Container {
	c := dig.New()

	must(c.Provide(core.NewConfig))
	must(c.Provide(logsvc.NewZap))
	must(c.Provide(newLogger))
	must(c.Provide(newDBLogger, dig.Name("dbLogger")))
	must(c.Provide(newDB))
	must(c.Provide(newEmailService))
	must(c.Provide(validator.New))
	must(c.Provide(newTranslator))

	// repositories
	must(c.Provide(pgrepos.NewUserRepository))
	must(c.Provide(pgrepos.NewFeedRepository))
	must(c.Provide(pgrepos.NewCollectionRepository))
	must(c.Provide(pgrepos.NewInteractionRepository))
	must(c.Provide(pgrepos.NewSearchRepository))
	must(c.Provide(pgrepos.NewTransferRepository))

	// services
	must(c.Provide(newFetcher))
	must(c.Provide(feed.NewService))
	must(c.Provide(newUserService))
	must(c.Provide(newCollectionService))
	must(c.Provide(chatsvc.NewHub))
	must(c.Provide(newInteractionService))
	must(c.Provide(search.NewService))
	must(c.Provide(newTransferService))
	must(c.Provide(newPoller))
	must(c.Provide(newServer))

	return c
}

// must exits program if err happened
func must(err error) {
	if err != nil {
		log.Fatal(errors.Wrap(err, "failed to provide dependency").Error())
	}
}
