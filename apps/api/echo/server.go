package echoapi

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/labstack/gommon/log"

	"github.com/codexlms/codex/core"
	"github.com/codexlms/codex/core/ai"
	"github.com/codexlms/codex/core/assistant"
	"github.com/codexlms/codex/core/billing"
	"github.com/codexlms/codex/core/course"
	"github.com/codexlms/codex/core/coursework"
	"github.com/codexlms/codex/core/enrollment"
	"github.com/codexlms/codex/core/friend"
	"github.com/codexlms/codex/core/message"
	"github.com/codexlms/codex/core/user"
	"github.com/codexlms/codex/services/gradebook"
)

// ServerDeps holds everything the API needs.
type ServerDeps struct {
	Conf           *core.Config
	Logger         core.Logger
	Store          core.DocumentStore
	Validate       *validator.Validate
	Translator     ut.Translator
	UserSvc        *user.Service
	CourseSvc      *course.Service
	CourseworkSvc  *coursework.Service
	EnrollmentSvc  *enrollment.Service
	FriendSvc      *friend.Service
	MessageSvc     *message.Service
	BillingSvc     *billing.Service
	Flows          *ai.Flows
	Assistant      *assistant.Assistant
	Sessions       *assistant.SessionStore
	Gradebook      *gradebook.Exporter
	DisableReqLogs bool
}

type Server struct {
	deps     ServerDeps
	app      *echo.Echo
	errors   chan error
	shutdown chan os.Signal
}

func NewServer(deps ServerDeps) *Server {
	s := &Server{
		deps:     deps,
		app:      echo.New(),
		errors:   make(chan error, 1),
		shutdown: make(chan os.Signal, 1),
	}
	if !deps.Conf.TestMode {
		signal.Notify(s.shutdown, os.Interrupt, syscall.SIGTERM)
	}
	s.setup()
	return s
}

func (s *Server) setup() {
	conf := s.deps.Conf

	s.app.HideBanner = true
	s.app.Pre(middleware.RemoveTrailingSlash())
	if !(s.deps.DisableReqLogs || conf.TestMode) {
		s.app.Use(middleware.Logger())
	}
	// do not recover in DEV|TEST mode
	if !(conf.Debug || conf.TestMode) {
		s.app.Use(middleware.RecoverWithConfig(middleware.RecoverConfig{LogLevel: log.ERROR}))
	}
	s.app.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{conf.FrontendBaseURL},
		AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization},
	}))

	s.app.HTTPErrorHandler = newAppHTTPErrorHandler(s.deps.Logger, s.deps.Translator, s.signalShutdown)
	s.app.Debug = conf.Debug

	s.app.GET("/", s.home)

	v1 := s.app.Group("/v1")
	jwt := newJWTMiddleware(conf, "header:Authorization:Bearer ")

	registerUserAPI(v1, jwt, s.deps)
	registerCourseAPI(v1, jwt, s.deps)
	registerCourseworkAPI(v1, jwt, s.deps)
	registerFriendAPI(v1, jwt, s.deps)
	registerMessageAPI(v1, jwt, s.deps)
	registerBillingAPI(v1, jwt, s.deps)
	registerAIAPI(v1, jwt, s.deps)
	registerAssistantAPI(v1, jwt, s.deps)

	// browsers cannot set headers on websocket handshakes
	registerLiveAPI(v1, newJWTMiddleware(conf, "header:Authorization:Bearer ,query:token"), s.deps)
}

// Start blocks until the server stops. Listening errors are sent to Errors().
func (s *Server) Start() {
	if err := s.app.Start(s.deps.Conf.Server.Address); err != nil && err != http.ErrServerClosed {
		s.errors <- err
	}
}

func (s *Server) Errors() <-chan error {
	return s.errors
}

func (s *Server) ShutdownSignal() <-chan os.Signal {
	return s.shutdown
}

func (s *Server) signalShutdown() {
	select {
	case s.shutdown <- syscall.SIGTERM:
	default:
	}
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.app.Shutdown(ctx)
}

func (s *Server) Close() error {
	return s.app.Close()
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) { // for tests
	s.app.ServeHTTP(w, r)
}

func (s *Server) home(ctx echo.Context) error {
	return ctx.String(http.StatusOK, "Welcome to "+s.deps.Conf.AppName+" API!")
}
