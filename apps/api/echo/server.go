package echoapi

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/labstack/gommon/log"

	"github.com/suprss/suprss/core"
	"github.com/suprss/suprss/core/collection"
	"github.com/suprss/suprss/core/feed"
	"github.com/suprss/suprss/core/interaction"
	"github.com/suprss/suprss/core/search"
	"github.com/suprss/suprss/core/transfer"
	"github.com/suprss/suprss/core/user"
	chatsvc "github.com/suprss/suprss/services/chat"
)

type (
	Options struct {
		Conf       *core.Config
		Logger     core.Logger
		DB         core.Pinger
		Validate   *validator.Validate
		Translator ut.Translator

		UserSvc        *user.Service
		FeedSvc        *feed.Service
		CollectionSvc  *collection.Service
		InteractionSvc *interaction.Service
		SearchSvc      *search.Service
		TransferSvc    *transfer.Service
		Hub            *chatsvc.Hub
	}

	Server struct {
		opts     *Options
		app      *echo.Echo
		auth     *auth
		errors   chan error
		shutdown chan os.Signal
	}
)

func NewServer(opts *Options) *Server {
	s := &Server{
		opts:     opts,
		app:      echo.New(),
		auth:     newAuth(opts.Conf),
		errors:   make(chan error, 1),
		shutdown: make(chan os.Signal, 1),
	}
	signal.Notify(s.shutdown, os.Interrupt, syscall.SIGTERM)
	s.setup()
	return s
}

func (s *Server) setup() {
	conf := s.opts.Conf

	s.app.HideBanner = true
	s.app.Pre(middleware.RemoveTrailingSlash())
	if !conf.Server.DisableReqLogs {
		s.app.Use(middleware.Logger())
	}
	// do not recover in DEV|TEST mode
	if !(conf.Debug || conf.TestMode) {
		s.app.Use(middleware.RecoverWithConfig(middleware.RecoverConfig{LogLevel: log.ERROR}))
	}
	s.app.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{http.MethodGet, http.MethodHead, http.MethodPut, http.MethodPatch, http.MethodPost, http.MethodDelete},
		AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization},
	}))
	s.app.Use(middleware.BodyLimit(bodyLimit(conf.Server.MaxUploadSize)))

	s.app.HTTPErrorHandler = newAppHTTPErrorHandler(s.opts.Logger, s.opts.Translator, s.SignalShutdown)
	s.app.Debug = conf.Debug

	s.app.GET("/", s.home)
	s.app.GET("/health", s.health)

	v1 := s.app.Group("/api/v1")
	v1.GET("/health", s.health)
	authed := []echo.MiddlewareFunc{s.auth.middleware(), activeUserMiddleware(s.opts.UserSvc)}

	registerUserAPI(v1, s.auth, authed, s.opts.UserSvc, s.opts.Validate)
	registerFeedAPI(v1, authed, s.opts.FeedSvc, s.opts.Validate)
	registerCollectionAPI(v1, authed, s.opts.CollectionSvc, s.opts.InteractionSvc, s.opts.Validate)
	registerInteractionAPI(v1, authed, s.opts.InteractionSvc, s.opts.Validate)
	registerSearchAPI(v1, authed, s.opts.SearchSvc, s.opts.Validate)
	registerTransferAPI(v1, authed, s.opts.TransferSvc, s.opts.Validate)
	registerChatAPI(v1, s.auth, s.opts)
}

// bodyLimit formats the upload size limit for middleware.BodyLimit, leaving room for the multipart envelope.
func bodyLimit(maxUpload int64) string {
	const kb = 1 << 10
	if maxUpload <= 0 {
		maxUpload = 10 << 20
	}
	return strconv.FormatInt((maxUpload+512*kb)/kb, 10) + "K"
}

func (s *Server) Start() {
	if err := s.app.Start(s.opts.Conf.Server.Host); err != nil && err != http.ErrServerClosed {
		s.errors <- err
	}
}

// Errors reports the errors that stopped the server.
func (s *Server) Errors() <-chan error { return s.errors }

// ShutdownSignal reports the OS signals & shutdown requests.
func (s *Server) ShutdownSignal() <-chan os.Signal { return s.shutdown }

// SignalShutdown asks the server owner to shut it down gracefully.
func (s *Server) SignalShutdown() {
	select {
	case s.shutdown <- syscall.SIGTERM:
	default:
	}
}

func (s *Server) Shutdown(ctx context.Context) error {
	signal.Stop(s.shutdown)
	if s.opts.Hub != nil {
		s.opts.Hub.Close()
	}
	return s.app.Shutdown(ctx)
}

func (s *Server) Close() error {
	return s.app.Close()
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) { // for tests
	s.app.ServeHTTP(w, r)
}

func (s *Server) home(ctx echo.Context) error {
	return ctx.JSON(http.StatusOK, echo.Map{"message": "Welcome to " + s.opts.Conf.AppName + " API!", "build": s.opts.Conf.Build})
}

func (s *Server) health(ctx echo.Context) error {
	status := http.StatusOK
	dbStatus := "ok"
	if err := s.opts.DB.PingContext(ctx.Request().Context()); err != nil {
		s.opts.Logger.Warn("health: database ping failed", err)
		status = http.StatusServiceUnavailable
		dbStatus = "unavailable"
	}
	return ctx.JSON(status, echo.Map{"status": http.StatusText(status), "database": dbStatus, "build": s.opts.Conf.Build})
}
